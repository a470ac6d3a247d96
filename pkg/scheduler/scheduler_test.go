package scheduler

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/bulksync/bulksync/pkg/logger"
	"github.com/bulksync/bulksync/pkg/manifest"
	"github.com/bulksync/bulksync/pkg/planner"
	"github.com/bulksync/bulksync/pkg/remote"
	"github.com/bulksync/bulksync/pkg/report"
	"github.com/bulksync/bulksync/pkg/verify"
)

// opsFor writes the given files under a temp dir and returns one upload
// operation per file, checksums filled, in path order.
func opsFor(t *testing.T, files map[string]string) []planner.Operation {
	t.Helper()

	root := t.TempDir()
	for rel, content := range files {
		path := filepath.Join(root, filepath.FromSlash(rel))
		require.NoError(t, os.MkdirAll(filepath.Dir(path), 0755))
		require.NoError(t, os.WriteFile(path, []byte(content), 0644))
	}

	units, _, err := manifest.Build(root, manifest.Options{})
	require.NoError(t, err)

	var ops []planner.Operation
	for _, u := range units {
		checksum, err := manifest.FileChecksum(u.LocalPath)
		require.NoError(t, err)
		ops = append(ops, planner.Operation{
			Unit:           u,
			Action:         planner.ActionUpload,
			Reason:         "new file",
			ChecksumSHA256: checksum,
		})
	}
	return ops
}

func newScheduler(store remote.Store, cfg Config) *Scheduler {
	return New(store, verify.New(store, nil), logger.NullLogger{}, nil, cfg)
}

func TestRunUploadsEverything(t *testing.T) {
	store := remote.NewMemoryStore()
	ops := opsFor(t, map[string]string{
		"a.txt": "0123456789",
		"b.txt": "01234567890123456789",
	})

	sink := report.NewSink()
	newScheduler(store, Config{Transfers: 2}).Run(context.Background(), ops, sink)

	summary := sink.Finalize()
	assert.Equal(t, 2, summary.Uploaded)
	assert.Equal(t, 0, summary.Failed)
	assert.Equal(t, int64(30), summary.BytesTransferred)
	assert.True(t, summary.Ok())

	obj, err := store.Head(context.Background(), "a.txt")
	require.NoError(t, err)
	assert.Equal(t, int64(10), obj.Size)
}

func TestRunSkipsWithoutTouchingStore(t *testing.T) {
	store := &countingStore{MemoryStore: remote.NewMemoryStore()}
	ops := opsFor(t, map[string]string{"a.txt": "x"})
	ops[0].Action = planner.ActionSkip
	ops[0].Reason = "checksum matches"

	sink := report.NewSink()
	newScheduler(store, Config{Transfers: 2}).Run(context.Background(), ops, sink)

	summary := sink.Finalize()
	assert.Equal(t, 1, summary.Skipped)
	assert.Equal(t, 0, summary.Uploaded)
	assert.Equal(t, int64(0), store.puts.Load())
	assert.Equal(t, int64(0), store.heads.Load())
}

func TestRunRetriesTransientFailure(t *testing.T) {
	store := &flakyStore{MemoryStore: remote.NewMemoryStore(), failuresLeft: 2}
	ops := opsFor(t, map[string]string{"a.txt": "content"})

	sink := report.NewSink()
	newScheduler(store, Config{Transfers: 1, MaxAttempts: 3}).Run(context.Background(), ops, sink)

	summary := sink.Finalize()
	assert.Equal(t, 1, summary.Uploaded)
	assert.Equal(t, 0, summary.Failed)
	assert.Equal(t, 1, summary.Retried)
}

func TestRunExhaustsAttemptsAndContinues(t *testing.T) {
	// a.txt always fails transiently; b.txt must still be processed.
	store := &flakyStore{
		MemoryStore:  remote.NewMemoryStore(),
		failuresLeft: 1 << 30,
		onlyKey:      "a.txt",
	}
	ops := opsFor(t, map[string]string{
		"a.txt": "doomed",
		"b.txt": "fine",
	})

	sink := report.NewSink()
	newScheduler(store, Config{Transfers: 2, MaxAttempts: 3}).Run(context.Background(), ops, sink)

	summary := sink.Finalize()
	assert.Equal(t, 1, summary.Uploaded)
	assert.Equal(t, 1, summary.Failed)
	assert.False(t, summary.Ok())

	require.Len(t, summary.Failures, 1)
	assert.Equal(t, "a.txt", summary.Failures[0].Path)

	assert.Equal(t, int64(3), store.attempts.Load())
}

func TestRunUnreadableSourceFailsUnit(t *testing.T) {
	store := remote.NewMemoryStore()
	ops := []planner.Operation{{
		Unit: manifest.Unit{
			Path:      "gone.txt",
			LocalPath: filepath.Join(t.TempDir(), "gone.txt"),
			Size:      4,
		},
		Action: planner.ActionUpload,
		Reason: "new file",
	}}

	sink := report.NewSink()
	newScheduler(store, Config{Transfers: 1, MaxAttempts: 3}).Run(context.Background(), ops, sink)

	summary := sink.Finalize()
	assert.Equal(t, 1, summary.Failed)
	require.Len(t, summary.Failures, 1)
	assert.Contains(t, summary.Failures[0].Reason, "calculate checksum")

	_, err := store.Head(context.Background(), "gone.txt")
	assert.Error(t, err)
}

func TestRunChecksumMismatchExhaustion(t *testing.T) {
	store := &corruptingStore{MemoryStore: remote.NewMemoryStore()}
	ops := opsFor(t, map[string]string{"a.txt": "original"})

	sink := report.NewSink()
	newScheduler(store, Config{Transfers: 1, MaxAttempts: 3}).Run(context.Background(), ops, sink)

	summary := sink.Finalize()
	assert.Equal(t, 1, summary.Failed)
	require.Len(t, summary.Failures, 1)
	assert.Equal(t, "checksum mismatch after 3 attempts", summary.Failures[0].Reason)
}

func TestRunBoundedConcurrency(t *testing.T) {
	store := &probeStore{MemoryStore: remote.NewMemoryStore()}

	files := make(map[string]string, 100)
	for i := 0; i < 100; i++ {
		files[fmt.Sprintf("f%03d.txt", i)] = fmt.Sprintf("content-%d", i)
	}
	ops := opsFor(t, files)

	sink := report.NewSink()
	newScheduler(store, Config{Transfers: 4}).Run(context.Background(), ops, sink)

	summary := sink.Finalize()
	assert.Equal(t, 100, summary.Uploaded)
	assert.LessOrEqual(t, store.maxInFlight.Load(), int64(4))
	assert.Greater(t, store.maxInFlight.Load(), int64(1))
}

func TestRunCancellationProducesPartialSummary(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())

	store := &cancellingStore{
		MemoryStore: remote.NewMemoryStore(),
		cancelAfter: 5,
		cancel:      cancel,
	}

	files := make(map[string]string, 50)
	for i := 0; i < 50; i++ {
		files[fmt.Sprintf("f%03d.txt", i)] = "payload"
	}
	ops := opsFor(t, files)

	sink := report.NewSink()
	sched := newScheduler(store, Config{Transfers: 2, MaxAttempts: 1})

	done := make(chan struct{})
	go func() {
		sched.Run(ctx, ops, sink)
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(10 * time.Second):
		t.Fatal("Run did not return after cancellation")
	}

	// The op that tripped the cancellation may fail its own verification
	// under the cancelled context, so only the earlier ones are guaranteed.
	snap := sink.Progress()
	assert.GreaterOrEqual(t, snap.Uploaded, 4)
	assert.Less(t, snap.Done, 50, "cancellation must stop dispatching new operations")
}

func TestRoundTripSecondRunUploadsNothing(t *testing.T) {
	root := t.TempDir()
	for rel, content := range map[string]string{
		"a.txt":       "first file",
		"dir/b.txt":   "second file",
		"dir/c.empty": "",
	} {
		path := filepath.Join(root, filepath.FromSlash(rel))
		require.NoError(t, os.MkdirAll(filepath.Dir(path), 0755))
		require.NoError(t, os.WriteFile(path, []byte(content), 0644))
	}

	store := remote.NewMemoryStore()

	runOnce := func() report.Summary {
		units, skipped, err := manifest.Build(root, manifest.Options{})
		require.NoError(t, err)
		require.Empty(t, skipped)

		inventory, err := remote.Inventory(context.Background(), store, nil, nil)
		require.NoError(t, err)

		plnr := planner.New(store, logger.NullLogger{}, nil, 4)
		ops, err := plnr.Plan(context.Background(), units, inventory, planner.Options{Checksum: true})
		require.NoError(t, err)

		sink := report.NewSink()
		newScheduler(store, Config{Transfers: 2}).Run(context.Background(), ops, sink)
		return sink.Finalize()
	}

	first := runOnce()
	assert.Equal(t, 3, first.Uploaded)
	assert.Equal(t, 0, first.Failed)

	second := runOnce()
	assert.Equal(t, 0, second.Uploaded, "unchanged source must be fully skipped on the second run")
	assert.Equal(t, 3, second.Skipped)
	assert.Equal(t, 0, second.Failed)
}

// countingStore tallies remote calls.
type countingStore struct {
	*remote.MemoryStore
	puts  atomic.Int64
	heads atomic.Int64
}

func (s *countingStore) Put(ctx context.Context, in *remote.PutInput) error {
	s.puts.Add(1)
	return s.MemoryStore.Put(ctx, in)
}

func (s *countingStore) Head(ctx context.Context, key string) (*remote.Object, error) {
	s.heads.Add(1)
	return s.MemoryStore.Head(ctx, key)
}

// flakyStore fails Put with a transient error a configured number of times.
type flakyStore struct {
	*remote.MemoryStore
	mu           sync.Mutex
	failuresLeft int
	onlyKey      string
	attempts     atomic.Int64
}

func (s *flakyStore) Put(ctx context.Context, in *remote.PutInput) error {
	if s.onlyKey == "" || s.onlyKey == in.Key {
		s.attempts.Add(1)
		s.mu.Lock()
		if s.failuresLeft > 0 {
			s.failuresLeft--
			s.mu.Unlock()
			return fmt.Errorf("%w: injected failure", remote.ErrTransient)
		}
		s.mu.Unlock()
	}
	return s.MemoryStore.Put(ctx, in)
}

// corruptingStore stores different bytes of the same length, so every
// verification fails.
type corruptingStore struct {
	*remote.MemoryStore
}

func (s *corruptingStore) Put(ctx context.Context, in *remote.PutInput) error {
	data, err := io.ReadAll(in.Body)
	if err != nil {
		return err
	}
	if len(data) > 0 {
		data[0] ^= 0xff
	}
	in.Body = bytes.NewReader(data)
	return s.MemoryStore.Put(ctx, in)
}

// probeStore records the maximum number of concurrent Put calls.
type probeStore struct {
	*remote.MemoryStore
	inFlight    atomic.Int64
	maxInFlight atomic.Int64
}

func (s *probeStore) Put(ctx context.Context, in *remote.PutInput) error {
	n := s.inFlight.Add(1)
	defer s.inFlight.Add(-1)

	for {
		max := s.maxInFlight.Load()
		if n <= max || s.maxInFlight.CompareAndSwap(max, n) {
			break
		}
	}

	time.Sleep(2 * time.Millisecond)
	return s.MemoryStore.Put(ctx, in)
}

// cancellingStore cancels the run after a number of successful puts.
type cancellingStore struct {
	*remote.MemoryStore
	completed   atomic.Int64
	cancelAfter int64
	cancel      context.CancelFunc
}

func (s *cancellingStore) Put(ctx context.Context, in *remote.PutInput) error {
	err := s.MemoryStore.Put(ctx, in)
	if err == nil && s.completed.Add(1) == s.cancelAfter {
		s.cancel()
	}
	return err
}
