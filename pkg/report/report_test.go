package report

import (
	"errors"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/bulksync/bulksync/pkg/manifest"
	"github.com/bulksync/bulksync/pkg/planner"
)

func TestSinkCounts(t *testing.T) {
	sink := NewSink()
	sink.SetTotal(4)

	sink.Record(Result{Path: "a", Action: planner.ActionUpload, Outcome: OutcomeSucceeded, Attempts: 1, Bytes: 10})
	sink.Record(Result{Path: "b", Action: planner.ActionSkip, Outcome: OutcomeSkipped})
	sink.Record(Result{Path: "c", Action: planner.ActionUpload, Outcome: OutcomeFailed, Attempts: 3, Err: errors.New("timeout")})
	sink.Record(Result{Path: "d", Action: planner.ActionReupload, Outcome: OutcomeSucceeded, Attempts: 2, Bytes: 5})

	summary := sink.Finalize()

	assert.Equal(t, 2, summary.Uploaded)
	assert.Equal(t, 1, summary.Skipped)
	assert.Equal(t, 1, summary.Failed)
	assert.Equal(t, 2, summary.Retried) // c and d each took more than one attempt
	assert.Equal(t, int64(15), summary.BytesTransferred)
	assert.False(t, summary.Ok())

	require.Len(t, summary.Failures, 1)
	assert.Equal(t, "c", summary.Failures[0].Path)
	assert.Equal(t, "timeout", summary.Failures[0].Reason)
}

func TestSinkFailuresInManifestOrder(t *testing.T) {
	sink := NewSink()

	// Arrival order is completion order, which is arbitrary under
	// concurrency; the summary must enumerate failures by path.
	for _, path := range []string{"z.txt", "a.txt", "m/deep.txt"} {
		sink.Record(Result{Path: path, Outcome: OutcomeFailed, Err: errors.New("boom")})
	}

	summary := sink.Finalize()

	var got []string
	for _, f := range summary.Failures {
		got = append(got, f.Path)
	}
	assert.Equal(t, []string{"a.txt", "m/deep.txt", "z.txt"}, got)
}

func TestSinkRecordSkippedSource(t *testing.T) {
	sink := NewSink()
	sink.RecordSkippedSource(manifest.SkippedFile{Path: "bad.txt", Err: errors.New("permission denied")})

	summary := sink.Finalize()

	assert.Equal(t, 1, summary.Failed)
	require.Len(t, summary.Failures, 1)
	assert.Contains(t, summary.Failures[0].Reason, "unreadable source")
}

func TestSinkConcurrentRecord(t *testing.T) {
	sink := NewSink()
	sink.SetTotal(100)

	var wg sync.WaitGroup
	for i := 0; i < 100; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			sink.Record(Result{Path: "p", Outcome: OutcomeSucceeded, Attempts: 1, Bytes: 1})
		}()
	}
	wg.Wait()

	snap := sink.Progress()
	assert.Equal(t, 100, snap.Done)
	assert.Equal(t, 100, snap.Uploaded)

	summary := sink.Finalize()
	assert.Equal(t, 100, summary.Uploaded)
	assert.Equal(t, int64(100), summary.BytesTransferred)
	assert.True(t, summary.Ok())
}

func TestSummaryFormat(t *testing.T) {
	summary := Summary{
		Uploaded:         3,
		Skipped:          1,
		Failed:           1,
		BytesTransferred: 2048,
		Failures:         []Failure{{Path: "x.txt", Reason: "checksum mismatch after 3 attempts"}},
	}

	out := summary.Format()
	assert.Contains(t, out, "Uploaded: 3 files (2.0 KiB)")
	assert.Contains(t, out, "Skipped: 1 files")
	assert.Contains(t, out, "x.txt: checksum mismatch after 3 attempts")
}
