package export

import (
	"fmt"
	"io"
	"strings"
	"sync"
	"time"
)

// Reporter receives progress from a run. Job callbacks arrive concurrently.
type Reporter interface {
	Planned(p *Plan)
	JobCompleted(year int, elapsed time.Duration)
	JobFailed(year int, err error)
	Finished(s *Summary)
}

// NopReporter discards all progress
type NopReporter struct{}

func (NopReporter) Planned(*Plan) {}
func (NopReporter) JobCompleted(int, time.Duration) {}
func (NopReporter) JobFailed(int, error) {}
func (NopReporter) Finished(*Summary) {}

// TextReporter writes short, self-contained progress lines
type TextReporter struct {
	mu sync.Mutex
	w  io.Writer
}

// NewTextReporter creates a reporter writing to w
func NewTextReporter(w io.Writer) *TextReporter {
	return &TextReporter{w: w}
}

func (r *TextReporter) printf(format string, a ...any) {
	r.mu.Lock()
	defer r.mu.Unlock()
	_, _ = fmt.Fprintf(r.w, format, a...)
}

func (r *TextReporter) Planned(p *Plan) {
	rule := strings.Repeat("═", 59)
	r.printf("\n%s\n  OHM Snapshot Export\n%s\n\n", rule, rule)
	r.printf("  Range:      %d → %d (%d years)\n", p.Start, p.End, len(p.Years))
	r.printf("  To export:  %d\n", len(p.Pending))
	r.printf("  Skipped:    %d (already exported)\n", len(p.Skipped))
	r.printf("  Workers:    %d\n\n", p.Workers)
}

func (r *TextReporter) JobCompleted(year int, elapsed time.Duration) {
	r.printf("✓ %d (%s)\n", year, elapsed.Round(time.Millisecond))
}

func (r *TextReporter) JobFailed(year int, err error) {
	r.printf("✗ %d: %v\n", year, err)
}

func (r *TextReporter) Finished(s *Summary) {
	rule := strings.Repeat("═", 59)
	r.printf("\n%s\n  Export Complete\n%s\n\n", rule, rule)
	r.printf("  Exported:   %d\n", s.Completed)
	r.printf("  Failed:     %d\n", s.Failed)
	r.printf("  Elapsed:    %s\n", s.Elapsed.Round(time.Millisecond))
	r.printf("  Artifacts:  %d of %d years on disk\n\n", s.Artifacts, s.Total)
}
