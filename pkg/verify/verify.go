// Package verify re-checks uploaded objects against their source digest.
package verify

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"golang.org/x/time/rate"

	"github.com/bulksync/bulksync/pkg/manifest"
	"github.com/bulksync/bulksync/pkg/remote"
)

// ErrChecksumMismatch marks a verified object whose content digest does not
// match the source. The scheduler retries it within the attempt ceiling.
var ErrChecksumMismatch = errors.New("checksum mismatch")

// Verifier fetches remote metadata after an upload and compares it against
// the source unit. It never mutates remote state.
type Verifier struct {
	store   remote.Store
	limiter *rate.Limiter
}

func New(store remote.Store, limiter *rate.Limiter) *Verifier {
	if limiter == nil {
		limiter = rate.NewLimiter(rate.Inf, 1)
	}
	return &Verifier{store: store, limiter: limiter}
}

// Verify heads the uploaded object and compares size and SHA-256 digest
// against the source. When the destination exposes no usable digest (or
// only a multipart composite), the object content is probed instead.
func (v *Verifier) Verify(ctx context.Context, unit manifest.Unit, wantChecksum string) error {
	if err := v.limiter.Wait(ctx); err != nil {
		return err
	}

	obj, err := v.store.Head(ctx, unit.Path)
	if err != nil {
		return fmt.Errorf("head object %s: %w", unit.Path, err)
	}

	if obj.Size != unit.Size {
		return fmt.Errorf("%w: %s: size %d, want %d", ErrChecksumMismatch, unit.Path, obj.Size, unit.Size)
	}

	dest := obj.ChecksumSHA256
	if strings.Contains(dest, "-") {
		dest = ""
	}
	if dest == "" {
		dest, err = v.probe(ctx, unit.Path)
		if err != nil {
			return fmt.Errorf("probe object %s: %w", unit.Path, err)
		}
	}

	if dest != wantChecksum {
		return fmt.Errorf("%w: %s: got %s, want %s", ErrChecksumMismatch, unit.Path, dest, wantChecksum)
	}

	return nil
}

// probe streams the object back through SHA-256.
func (v *Verifier) probe(ctx context.Context, key string) (string, error) {
	if err := v.limiter.Wait(ctx); err != nil {
		return "", err
	}

	body, err := v.store.Get(ctx, key)
	if err != nil {
		return "", err
	}
	defer body.Close()

	return manifest.ReaderChecksum(body)
}
