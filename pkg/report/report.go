// Package report accumulates per-unit outcomes into a run summary.
package report

import (
	"fmt"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/dustin/go-humanize"

	"github.com/bulksync/bulksync/pkg/manifest"
	"github.com/bulksync/bulksync/pkg/planner"
)

// Outcome is the terminal state of one unit.
type Outcome string

const (
	OutcomeSucceeded Outcome = "succeeded"
	OutcomeSkipped   Outcome = "skipped"
	OutcomeFailed    Outcome = "failed"
)

// Result is the terminal record for one planned operation.
type Result struct {
	Path     string
	Action   planner.Action
	Outcome  Outcome
	Attempts int
	Bytes    int64
	Err      error
}

// Failure names one unit that did not make it, with the reason.
type Failure struct {
	Path   string `json:"path"`
	Reason string `json:"reason"`
}

// Summary is the immutable end-of-run aggregate. Failures are listed in
// manifest (path) order so summaries diff cleanly across runs.
type Summary struct {
	Uploaded         int
	Skipped          int
	Failed           int
	Retried          int
	BytesTransferred int64
	Elapsed          time.Duration
	Failures         []Failure
}

// Ok reports whether every unit succeeded or was skipped.
func (s Summary) Ok() bool {
	return s.Failed == 0
}

// Format renders the summary for terminal output.
func (s Summary) Format() string {
	var b strings.Builder
	fmt.Fprintf(&b, "Uploaded: %d files (%s)\n", s.Uploaded, humanize.IBytes(uint64(s.BytesTransferred)))
	fmt.Fprintf(&b, "Skipped: %d files\n", s.Skipped)
	if s.Retried > 0 {
		fmt.Fprintf(&b, "Retried: %d files\n", s.Retried)
	}
	if s.Failed > 0 {
		fmt.Fprintf(&b, "Failed: %d files\n", s.Failed)
		for _, f := range s.Failures {
			fmt.Fprintf(&b, "  %s: %s\n", f.Path, f.Reason)
		}
	}
	fmt.Fprintf(&b, "Elapsed: %s\n", s.Elapsed.Round(time.Millisecond))
	return b.String()
}

// Snapshot is a point-in-time view for live progress output.
type Snapshot struct {
	Done     int
	Total    int
	Uploaded int
	Skipped  int
	Failed   int
}

// Sink accumulates results from concurrent workers. All methods are safe
// for concurrent use; Finalize seals the summary.
type Sink struct {
	mu sync.Mutex

	start    time.Time
	total    int
	done     int
	uploaded int
	skipped  int
	failed   int
	retried  int
	bytes    int64
	failures []Failure
}

func NewSink() *Sink {
	return &Sink{start: time.Now()}
}

// SetTotal declares how many operations the run will process.
func (s *Sink) SetTotal(n int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.total = n
}

// Record folds one terminal result into the running counts.
func (s *Sink) Record(r Result) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.done++
	if r.Attempts > 1 {
		s.retried++
	}

	switch r.Outcome {
	case OutcomeSucceeded:
		s.uploaded++
		s.bytes += r.Bytes
	case OutcomeSkipped:
		s.skipped++
	case OutcomeFailed:
		s.failed++
		reason := "unknown"
		if r.Err != nil {
			reason = r.Err.Error()
		}
		s.failures = append(s.failures, Failure{Path: r.Path, Reason: reason})
	}
}

// RecordSkippedSource records a source file that became unreadable during
// the manifest scan. It counts as failed: the destination will not have it.
func (s *Sink) RecordSkippedSource(sf manifest.SkippedFile) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.failed++
	s.failures = append(s.failures, Failure{
		Path:   sf.Path,
		Reason: fmt.Sprintf("unreadable source: %v", sf.Err),
	})
}

// Progress returns a point-in-time snapshot for live output.
func (s *Sink) Progress() Snapshot {
	s.mu.Lock()
	defer s.mu.Unlock()
	return Snapshot{
		Done:     s.done,
		Total:    s.total,
		Uploaded: s.uploaded,
		Skipped:  s.skipped,
		Failed:   s.failed,
	}
}

// Finalize seals the run into an immutable Summary. A cancelled run yields
// a summary reflecting whatever completed.
func (s *Sink) Finalize() Summary {
	s.mu.Lock()
	defer s.mu.Unlock()

	failures := make([]Failure, len(s.failures))
	copy(failures, s.failures)
	sort.Slice(failures, func(i, j int) bool {
		return failures[i].Path < failures[j].Path
	})

	return Summary{
		Uploaded:         s.uploaded,
		Skipped:          s.skipped,
		Failed:           s.failed,
		Retried:          s.retried,
		BytesTransferred: s.bytes,
		Elapsed:          time.Since(s.start),
		Failures:         failures,
	}
}
