package planner

import (
	"context"
	"fmt"
	"strings"
	"sync"

	"golang.org/x/time/rate"

	"github.com/bulksync/bulksync/pkg/logger"
	"github.com/bulksync/bulksync/pkg/manifest"
	"github.com/bulksync/bulksync/pkg/remote"
)

// Planner builds a deterministic plan from a manifest and a remote
// inventory, collecting content digests where size alone cannot decide.
type Planner struct {
	store    remote.Store
	logger   logger.Logger
	limiter  *rate.Limiter
	checkers int
}

// New creates a Planner. checkers bounds how many digest comparisons run in
// parallel; limiter is the run-wide transaction ceiling shared with the
// scheduler.
func New(store remote.Store, log logger.Logger, limiter *rate.Limiter, checkers int) *Planner {
	if checkers <= 0 {
		checkers = 8
	}
	if limiter == nil {
		limiter = rate.NewLimiter(rate.Inf, 1)
	}
	return &Planner{
		store:    store,
		logger:   log,
		limiter:  limiter,
		checkers: checkers,
	}
}

// Plan compares the manifest against the inventory and returns one
// Operation per unit, in manifest order.
func (p *Planner) Plan(ctx context.Context, units []manifest.Unit, inventory map[string]remote.Object, opts Options) ([]Operation, error) {
	var checksums map[string]ChecksumPair

	if opts.Checksum {
		need := NeedsVerification(units, inventory)
		p.logger.Debug("collecting checksums for %d same-size candidates", len(need))

		collected, err := p.collectChecksums(ctx, need, inventory)
		if err != nil {
			return nil, fmt.Errorf("collect checksums: %w", err)
		}
		checksums = collected
	}

	operations := BuildPlan(units, inventory, checksums, opts)

	// Transfers need the source digest for upload integrity and
	// post-upload verification; fill in any still missing. A file that
	// cannot be read here fails per-unit at transfer time instead of
	// aborting the whole plan.
	for i, op := range operations {
		if !op.Action.Transfer() || op.ChecksumSHA256 != "" {
			continue
		}
		checksum, err := manifest.FileChecksum(op.Unit.LocalPath)
		if err != nil {
			p.logger.Debug("checksum for %s deferred: %v", op.Unit.Path, err)
			continue
		}
		operations[i].ChecksumSHA256 = checksum
	}

	return operations, nil
}

// collectChecksums hashes each candidate locally and heads its remote
// counterpart, bounded by the checkers limit.
func (p *Planner) collectChecksums(ctx context.Context, units []manifest.Unit, inventory map[string]remote.Object) (map[string]ChecksumPair, error) {
	pairs := make(map[string]ChecksumPair, len(units))
	var mu sync.Mutex

	sem := make(chan struct{}, p.checkers)
	var wg sync.WaitGroup
	var firstErr error
	var errOnce sync.Once

	for _, unit := range units {
		wg.Add(1)
		go func(u manifest.Unit) {
			defer wg.Done()

			sem <- struct{}{}
			defer func() { <-sem }()

			pair, err := p.checksumPair(ctx, u, inventory[u.Path])
			if err != nil {
				errOnce.Do(func() { firstErr = err })
				return
			}

			mu.Lock()
			pairs[u.Path] = pair
			mu.Unlock()
		}(unit)
	}

	wg.Wait()

	if firstErr != nil {
		return nil, firstErr
	}
	return pairs, nil
}

func (p *Planner) checksumPair(ctx context.Context, unit manifest.Unit, obj remote.Object) (ChecksumPair, error) {
	// Per-unit read or head failures do not abort planning; an empty side
	// forces a conservative reupload and the transfer surfaces the error.
	source, err := manifest.FileChecksum(unit.LocalPath)
	if err != nil {
		p.logger.Debug("checksum for %s: %v", unit.Path, err)
		source = ""
	}

	dest := obj.ChecksumSHA256
	if dest == "" {
		if err := p.limiter.Wait(ctx); err != nil {
			return ChecksumPair{}, err
		}
		head, err := p.store.Head(ctx, unit.Path)
		if err != nil {
			if ctx.Err() != nil {
				return ChecksumPair{}, ctx.Err()
			}
			p.logger.Debug("head object %s: %v", unit.Path, err)
		} else {
			dest = head.ChecksumSHA256
		}
	}

	// Composite digests from multipart uploads cannot be compared against
	// a whole-file hash; treat them as unavailable.
	if strings.Contains(dest, "-") {
		dest = ""
	}

	return ChecksumPair{Source: source, Dest: dest}, nil
}
