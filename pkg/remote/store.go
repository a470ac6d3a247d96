package remote

import (
	"context"
	"errors"
	"io"
	"net"
	"time"

	"github.com/aws/smithy-go"
)

// Object is the metadata the destination exposes for one stored file.
// An empty ChecksumSHA256 means the store does not expose one cheaply.
type Object struct {
	Path           string // Relative to the sync prefix, forward slashes
	Size           int64
	ModTime        time.Time
	ChecksumSHA256 string
}

// PutInput describes one upload. PartSize controls chunked (multipart)
// transfer for large objects; zero means the store's default.
type PutInput struct {
	Key            string
	Body           io.Reader
	Size           int64
	ChecksumSHA256 string
	ContentType    string
	PartSize       int64
}

// Store is the capability the destination must provide. Any backend
// satisfying list/head/put/get can be synchronized against.
type Store interface {
	List(ctx context.Context, prefix string) ([]Object, error)
	Head(ctx context.Context, key string) (*Object, error)
	Put(ctx context.Context, in *PutInput) error
	Get(ctx context.Context, key string) (io.ReadCloser, error)
}

// ErrUnavailable marks a destination that cannot be listed at all.
// It is fatal: no plan can be made, so the run aborts before any transfer.
var ErrUnavailable = errors.New("remote unavailable")

// ErrTransient marks an injected or wrapped error as retryable.
var ErrTransient = errors.New("transient transfer error")

// transient S3 error codes worth retrying.
var transientCodes = map[string]bool{
	"SlowDown":             true,
	"RequestTimeout":       true,
	"InternalError":        true,
	"ServiceUnavailable":   true,
	"Throttling":           true,
	"ThrottlingException":  true,
	"RequestLimitExceeded": true,
}

// Transient reports whether an operation that failed with err is worth
// retrying with backoff. Context cancellation is never transient.
func Transient(err error) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return false
	}
	if errors.Is(err, ErrTransient) {
		return true
	}

	var apiErr smithy.APIError
	if errors.As(err, &apiErr) {
		return transientCodes[apiErr.ErrorCode()]
	}

	var netErr net.Error
	if errors.As(err, &netErr) {
		return netErr.Timeout()
	}

	return false
}
