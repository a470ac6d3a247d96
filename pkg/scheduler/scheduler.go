// Package scheduler executes planned operations against the remote store
// with bounded concurrency, a shared rate ceiling and retry with backoff.
package scheduler

import (
	"context"
	"sync"

	"golang.org/x/time/rate"

	"github.com/bulksync/bulksync/pkg/logger"
	"github.com/bulksync/bulksync/pkg/planner"
	"github.com/bulksync/bulksync/pkg/remote"
	"github.com/bulksync/bulksync/pkg/report"
	"github.com/bulksync/bulksync/pkg/verify"
)

// Config tunes the scheduler.
type Config struct {
	// Transfers is the worker count: at most this many operations in flight.
	Transfers int
	// MaxAttempts bounds retries per unit, including the first attempt.
	MaxAttempts int
	// ChunkSize is the multipart part size for large uploads; 0 uses the
	// store default.
	ChunkSize int64
}

// Scheduler drives transfers. It is the only component that mutates remote
// state, and every remote transaction passes through the shared limiter.
type Scheduler struct {
	store    remote.Store
	verifier *verify.Verifier
	logger   logger.Logger
	limiter  *rate.Limiter
	cfg      Config
}

func New(store remote.Store, verifier *verify.Verifier, log logger.Logger, limiter *rate.Limiter, cfg Config) *Scheduler {
	if cfg.Transfers <= 0 {
		cfg.Transfers = 4
	}
	if cfg.MaxAttempts <= 0 {
		cfg.MaxAttempts = 3
	}
	if limiter == nil {
		limiter = rate.NewLimiter(rate.Inf, 1)
	}
	return &Scheduler{
		store:    store,
		verifier: verifier,
		logger:   log,
		limiter:  limiter,
		cfg:      cfg,
	}
}

// Run executes the plan. Skips are recorded without touching the remote.
// A failed unit never aborts the run; cancellation stops dispatching new
// operations immediately while in-flight ones finish, so the sink reflects
// partial completion.
func (s *Scheduler) Run(ctx context.Context, operations []planner.Operation, sink *report.Sink) {
	sink.SetTotal(len(operations))

	jobs := make(chan planner.Operation)
	var wg sync.WaitGroup

	for i := 0; i < s.cfg.Transfers; i++ {
		wg.Add(1)
		go s.worker(ctx, jobs, sink, &wg)
	}

dispatch:
	for _, op := range operations {
		if op.Action == planner.ActionSkip {
			s.logger.Skip(op.Unit.Path, op.Reason)
			sink.Record(report.Result{
				Path:     op.Unit.Path,
				Action:   op.Action,
				Outcome:  report.OutcomeSkipped,
				Attempts: 0,
			})
			continue
		}

		select {
		case <-ctx.Done():
			break dispatch
		default:
		}

		select {
		case jobs <- op:
		case <-ctx.Done():
			break dispatch
		}
	}
	close(jobs)

	wg.Wait()
}

func (s *Scheduler) worker(ctx context.Context, jobs <-chan planner.Operation, sink *report.Sink, wg *sync.WaitGroup) {
	defer wg.Done()

	for op := range jobs {
		result := s.transfer(ctx, op)
		if result.Err != nil {
			s.logger.Error(string(op.Action), op.Unit.Path, result.Err)
		}
		sink.Record(result)
	}
}
