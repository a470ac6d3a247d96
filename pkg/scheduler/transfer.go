package scheduler

import (
	"context"
	"errors"
	"fmt"
	"os"

	"github.com/bulksync/bulksync/pkg/manifest"
	"github.com/bulksync/bulksync/pkg/planner"
	"github.com/bulksync/bulksync/pkg/remote"
	"github.com/bulksync/bulksync/pkg/report"
	"github.com/bulksync/bulksync/pkg/verify"
)

// transfer uploads one unit and verifies it, retrying transient failures
// and checksum mismatches with backoff up to the attempt ceiling.
func (s *Scheduler) transfer(ctx context.Context, op planner.Operation) report.Result {
	var lastErr error
	attempts := 0

	for attempt := 1; attempt <= s.cfg.MaxAttempts; attempt++ {
		attempts = attempt

		if attempt > 1 {
			s.logger.Retry(op.Unit.Path, attempt, lastErr)
			if err := sleepBackoff(ctx, attempt-1); err != nil {
				lastErr = err
				break
			}
		}

		if err := s.limiter.Wait(ctx); err != nil {
			lastErr = err
			break
		}

		if op.ChecksumSHA256 == "" {
			// The planner defers the digest for files it could not read;
			// compute it now so an unreadable file fails this unit alone.
			checksum, err := manifest.FileChecksum(op.Unit.LocalPath)
			if err != nil {
				lastErr = fmt.Errorf("calculate checksum: %w", err)
				break
			}
			op.ChecksumSHA256 = checksum
		}

		s.logger.Upload(op.Unit.LocalPath, op.Unit.Path)

		err := s.upload(ctx, op)
		if err == nil {
			err = s.verifier.Verify(ctx, op.Unit, op.ChecksumSHA256)
			if err == nil {
				return report.Result{
					Path:     op.Unit.Path,
					Action:   op.Action,
					Outcome:  report.OutcomeSucceeded,
					Attempts: attempt,
					Bytes:    op.Unit.Size,
				}
			}
		}

		lastErr = err
		if !retryable(err) {
			break
		}
	}

	if errors.Is(lastErr, verify.ErrChecksumMismatch) {
		lastErr = fmt.Errorf("checksum mismatch after %d attempts", attempts)
	}

	return report.Result{
		Path:     op.Unit.Path,
		Action:   op.Action,
		Outcome:  report.OutcomeFailed,
		Attempts: attempts,
		Err:      lastErr,
	}
}

func (s *Scheduler) upload(ctx context.Context, op planner.Operation) error {
	file, err := os.Open(op.Unit.LocalPath)
	if err != nil {
		return fmt.Errorf("open file: %w", err)
	}
	defer file.Close()

	return s.store.Put(ctx, &remote.PutInput{
		Key:            op.Unit.Path,
		Body:           file,
		Size:           op.Unit.Size,
		ChecksumSHA256: op.ChecksumSHA256,
		ContentType:    guessContentType(op.Unit.LocalPath),
		PartSize:       s.cfg.ChunkSize,
	})
}

// retryable decides whether another attempt can help: transient transfer
// errors and verification mismatches are retried, everything else fails
// the unit immediately.
func retryable(err error) bool {
	return remote.Transient(err) || errors.Is(err, verify.ErrChecksumMismatch)
}
