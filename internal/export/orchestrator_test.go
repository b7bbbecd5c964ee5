package export

import (
	"bytes"
	"context"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/ppiankov/ohmexport/internal/extract"
	"github.com/ppiankov/ohmexport/internal/model"
)

func testOptions(dir string) Options {
	return Options{
		StoreTarget: "postgres://ohm@localhost/ohm",
		Columns:     model.DefaultConfig().Store,
		Table:       "osm_admin_areas",
		Filter:      "admin_level = 2",
		OutputDir:   dir,
		Prefix:      "countries",
	}
}

// recordingExtractor writes a small FeatureCollection and records calls
type recordingExtractor struct {
	mu       sync.Mutex
	years    []int
	requests []extract.Request
	fail     map[int]bool
	delay    time.Duration

	active    int32
	maxActive int32
}

func (r *recordingExtractor) Extract(ctx context.Context, req extract.Request) error {
	n := atomic.AddInt32(&r.active, 1)
	defer atomic.AddInt32(&r.active, -1)
	for {
		m := atomic.LoadInt32(&r.maxActive)
		if n <= m || atomic.CompareAndSwapInt32(&r.maxActive, m, n) {
			break
		}
	}

	r.mu.Lock()
	r.years = append(r.years, req.Year)
	r.requests = append(r.requests, req)
	r.mu.Unlock()

	if r.delay > 0 {
		time.Sleep(r.delay)
	}

	if r.fail[req.Year] {
		// Leave a partial file behind to check it never becomes an artifact
		_ = os.WriteFile(req.Output, []byte(`{"type":"Feature`), 0o644)
		return errors.New("tool exited with status 1")
	}
	return os.WriteFile(req.Output, []byte(`{"type":"FeatureCollection","features":[]}`), 0o644)
}

func (r *recordingExtractor) calls() []int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]int(nil), r.years...)
}

func TestRun_SkipsExistingArtifacts(t *testing.T) {
	dir := t.TempDir()

	existing := ArtifactPath(dir, "countries", 1849)
	original := []byte(`{"type":"FeatureCollection","features":[{"id":1}]}`)
	if err := os.WriteFile(existing, original, 0o644); err != nil {
		t.Fatal(err)
	}
	old := time.Now().Add(-time.Hour).Truncate(time.Second)
	if err := os.Chtimes(existing, old, old); err != nil {
		t.Fatal(err)
	}

	ext := &recordingExtractor{}
	o := New(testOptions(dir), ext, nil, nil)

	summary, err := o.Run(context.Background(), 1848, 1850, 1)
	if err != nil {
		t.Fatalf("Run failed: %v", err)
	}

	if summary.Total != 3 {
		t.Errorf("expected total 3, got %d", summary.Total)
	}
	if summary.ToExport != 2 {
		t.Errorf("expected 2 to export, got %d", summary.ToExport)
	}
	if summary.Skipped != 1 {
		t.Errorf("expected 1 skipped, got %d", summary.Skipped)
	}
	if summary.Completed != 2 || summary.Failed != 0 {
		t.Errorf("expected 2 completed and 0 failed, got %d and %d", summary.Completed, summary.Failed)
	}
	if summary.Artifacts != 3 {
		t.Errorf("expected 3 artifacts on disk, got %d", summary.Artifacts)
	}

	for _, year := range ext.calls() {
		if year == 1849 {
			t.Error("extractor was called for a year that already had an artifact")
		}
	}

	data, err := os.ReadFile(existing)
	if err != nil {
		t.Fatal(err)
	}
	if !bytes.Equal(data, original) {
		t.Error("existing artifact contents changed")
	}
	info, err := os.Stat(existing)
	if err != nil {
		t.Fatal(err)
	}
	if !info.ModTime().Equal(old) {
		t.Errorf("existing artifact mtime changed: %v != %v", info.ModTime(), old)
	}
}

func TestRun_RerunExportsNothing(t *testing.T) {
	dir := t.TempDir()
	ext := &recordingExtractor{}
	o := New(testOptions(dir), ext, nil, nil)

	if _, err := o.Run(context.Background(), -2, 2, 2); err != nil {
		t.Fatalf("first run failed: %v", err)
	}
	first := len(ext.calls())
	if first != 5 {
		t.Fatalf("expected 5 extractions on first run, got %d", first)
	}

	summary, err := o.Run(context.Background(), -2, 2, 2)
	if err != nil {
		t.Fatalf("second run failed: %v", err)
	}
	if summary.ToExport != 0 || summary.Skipped != 5 {
		t.Errorf("expected 0 to export and 5 skipped, got %d and %d", summary.ToExport, summary.Skipped)
	}
	if len(ext.calls()) != first {
		t.Errorf("expected no extra extractions, got %d", len(ext.calls())-first)
	}

	if _, err := os.Stat(filepath.Join(dir, "countries_-2.geojson")); err != nil {
		t.Errorf("expected negative-year artifact: %v", err)
	}
}

func TestRun_WorkerBound(t *testing.T) {
	dir := t.TempDir()
	ext := &recordingExtractor{delay: 20 * time.Millisecond}
	o := New(testOptions(dir), ext, nil, nil)

	summary, err := o.Run(context.Background(), 1, 12, 3)
	if err != nil {
		t.Fatalf("Run failed: %v", err)
	}
	if summary.Completed != 12 {
		t.Errorf("expected 12 completed, got %d", summary.Completed)
	}
	if max := atomic.LoadInt32(&ext.maxActive); max != 3 {
		t.Errorf("expected exactly 3 concurrent extractions, got %d", max)
	}
}

func TestRun_ValidationBeforeWork(t *testing.T) {
	tests := []struct {
		name    string
		start   int
		end     int
		workers int
		wantErr error
	}{
		{"reversed range", 1900, 1800, 2, ErrInvalidRange},
		{"zero workers", 1800, 1900, 0, ErrInvalidWorkers},
		{"negative workers", 1800, 1900, -1, ErrInvalidWorkers},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			dir := filepath.Join(t.TempDir(), "out")
			ext := &recordingExtractor{}
			o := New(testOptions(dir), ext, nil, nil)

			_, err := o.Run(context.Background(), tt.start, tt.end, tt.workers)
			if !errors.Is(err, tt.wantErr) {
				t.Errorf("expected %v, got %v", tt.wantErr, err)
			}
			if len(ext.calls()) != 0 {
				t.Error("extractor was called despite invalid input")
			}
			if _, err := os.Stat(dir); !os.IsNotExist(err) {
				t.Error("output directory was created despite invalid input")
			}
		})
	}
}

func TestRun_FailureDoesNotAbortSiblings(t *testing.T) {
	dir := t.TempDir()
	ext := &recordingExtractor{fail: map[int]bool{1802: true}}
	o := New(testOptions(dir), ext, nil, nil)

	summary, err := o.Run(context.Background(), 1800, 1804, 2)
	if err != nil {
		t.Fatalf("per-year failure should not fail the run: %v", err)
	}

	if summary.Completed != 4 || summary.Failed != 1 {
		t.Errorf("expected 4 completed and 1 failed, got %d and %d", summary.Completed, summary.Failed)
	}
	if _, ok := summary.Failures[1802]; !ok {
		t.Error("expected failure recorded for 1802")
	}
	if summary.Artifacts != 4 {
		t.Errorf("expected 4 artifacts, got %d", summary.Artifacts)
	}

	if _, err := os.Stat(ArtifactPath(dir, "countries", 1802)); !os.IsNotExist(err) {
		t.Error("failed year left an artifact behind")
	}

	entries, err := os.ReadDir(dir)
	if err != nil {
		t.Fatal(err)
	}
	for _, e := range entries {
		if strings.HasSuffix(e.Name(), ".tmp") {
			t.Errorf("temporary file left behind: %s", e.Name())
		}
	}

	// The failed year is retried on the next run
	ext.fail = nil
	summary, err = o.Run(context.Background(), 1800, 1804, 2)
	if err != nil {
		t.Fatalf("rerun failed: %v", err)
	}
	if summary.ToExport != 1 || summary.Artifacts != 5 {
		t.Errorf("expected 1 to export and 5 artifacts, got %d and %d", summary.ToExport, summary.Artifacts)
	}
}

func TestRun_RequestShape(t *testing.T) {
	dir := t.TempDir()
	ext := &recordingExtractor{}
	o := New(testOptions(dir), ext, nil, nil)

	if _, err := o.Run(context.Background(), -500, -500, 1); err != nil {
		t.Fatalf("Run failed: %v", err)
	}

	if len(ext.requests) != 1 {
		t.Fatalf("expected 1 request, got %d", len(ext.requests))
	}
	req := ext.requests[0]

	if req.Layer != "countries_-500" {
		t.Errorf("expected layer countries_-500, got %q", req.Layer)
	}
	if filepath.Dir(req.Output) != dir {
		t.Errorf("expected temp output inside %s, got %s", dir, req.Output)
	}
	if req.Output == ArtifactPath(dir, "countries", -500) {
		t.Error("extractor should write to a temporary path, not the artifact name")
	}
	if !strings.Contains(req.Query, "start_year <= -500") || !strings.Contains(req.Query, "end_year >= -500") {
		t.Errorf("expected activity predicate for -500 in query, got %s", req.Query)
	}
	if !strings.Contains(req.Query, "admin_level = 2") {
		t.Errorf("expected filter in query, got %s", req.Query)
	}
}

func TestRun_NoOutputIsFailure(t *testing.T) {
	dir := t.TempDir()
	silent := extract.ExtractorFunc(func(ctx context.Context, req extract.Request) error {
		return nil
	})
	o := New(testOptions(dir), silent, nil, nil)

	summary, err := o.Run(context.Background(), 10, 10, 1)
	if err != nil {
		t.Fatalf("Run failed: %v", err)
	}
	if summary.Failed != 1 {
		t.Errorf("expected 1 failure, got %d", summary.Failed)
	}
	if !errors.Is(summary.Failures[10], ErrNoOutput) {
		t.Errorf("expected ErrNoOutput, got %v", summary.Failures[10])
	}
}

func TestRun_Cancelled(t *testing.T) {
	dir := t.TempDir()
	ext := &recordingExtractor{}
	o := New(testOptions(dir), ext, nil, nil)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	summary, err := o.Run(ctx, 1, 5, 2)
	if !errors.Is(err, context.Canceled) {
		t.Errorf("expected context.Canceled, got %v", err)
	}
	if summary == nil {
		t.Fatal("expected summary even when interrupted")
	}
	if summary.Artifacts != 0 {
		t.Errorf("expected no artifacts, got %d", summary.Artifacts)
	}
}

func TestRun_Reporter(t *testing.T) {
	dir := t.TempDir()
	var buf bytes.Buffer
	o := New(testOptions(dir), &recordingExtractor{fail: map[int]bool{2: true}}, NewTextReporter(&buf), nil)

	if _, err := o.Run(context.Background(), 1, 3, 1); err != nil {
		t.Fatalf("Run failed: %v", err)
	}

	out := buf.String()
	for _, want := range []string{"To export:  3", "✓ 1", "✗ 2", "✓ 3", "Exported:   2", "Failed:     1", "Artifacts:  2 of 3"} {
		if !strings.Contains(out, want) {
			t.Errorf("expected output to contain %q, got:\n%s", want, out)
		}
	}
}

type fakeCounter struct {
	n   int64
	err error
}

func (f fakeCounter) CountActive(ctx context.Context, table, filter string, year int) (int64, error) {
	return f.n, f.err
}

func TestExportYear(t *testing.T) {
	t.Run("nothing to export", func(t *testing.T) {
		dir := t.TempDir()
		ext := &recordingExtractor{}
		o := New(testOptions(dir), ext, nil, nil)

		res, err := o.ExportYear(context.Background(), fakeCounter{n: 0}, 1066)
		if err != nil {
			t.Fatalf("ExportYear failed: %v", err)
		}
		if res.Path != "" {
			t.Errorf("expected no path, got %q", res.Path)
		}
		if len(ext.calls()) != 0 {
			t.Error("extractor called for an empty year")
		}
	})

	t.Run("overwrites existing", func(t *testing.T) {
		dir := t.TempDir()
		path := ArtifactPath(dir, "countries", 1066)
		if err := os.WriteFile(path, []byte("stale"), 0o644); err != nil {
			t.Fatal(err)
		}

		o := New(testOptions(dir), &recordingExtractor{}, nil, nil)
		res, err := o.ExportYear(context.Background(), fakeCounter{n: 7}, 1066)
		if err != nil {
			t.Fatalf("ExportYear failed: %v", err)
		}
		if res.Path != path || res.Features != 7 {
			t.Errorf("unexpected result %+v", res)
		}

		data, err := os.ReadFile(path)
		if err != nil {
			t.Fatal(err)
		}
		if string(data) == "stale" {
			t.Error("expected artifact to be replaced")
		}
	})

	t.Run("count error", func(t *testing.T) {
		o := New(testOptions(t.TempDir()), &recordingExtractor{}, nil, nil)
		if _, err := o.ExportYear(context.Background(), fakeCounter{err: errors.New("no such table")}, 1); err == nil {
			t.Error("expected count error to propagate")
		}
	})
}
