// Package metrics holds the Prometheus collectors for export and backfill
// runs. Runs are short-lived, so collectors are flushed to a node-exporter
// textfile instead of being scraped.
package metrics

import (
	"fmt"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	ExportJobsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "ohmexport_export_jobs_total",
			Help: "Per-year export jobs by outcome",
		},
		[]string{"status"}, // completed, failed
	)

	ExportYearsSkippedTotal = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "ohmexport_export_years_skipped_total",
			Help: "Years skipped because their artifact already existed",
		},
	)

	ExportJobDurationSeconds = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "ohmexport_export_job_duration_seconds",
			Help:    "Wall time of one per-year extraction",
			Buckets: prometheus.ExponentialBuckets(0.5, 2, 12), // 0.5s to ~17min
		},
	)

	ArtifactsOnDisk = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "ohmexport_artifacts_on_disk",
			Help: "Artifacts present for the last requested range",
		},
	)

	BackfillRowsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "ohmexport_backfill_rows_total",
			Help: "Rows whose start/end year columns were recomputed",
		},
		[]string{"table"},
	)

	TranslationsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "ohmexport_translations_total",
			Help: "Name translations by source",
		},
		[]string{"source"}, // cache, remote, fallback
	)
)

// WriteTextfile writes every registered collector to path in the Prometheus
// text format. An empty path is a no-op.
func WriteTextfile(path string) error {
	if path == "" {
		return nil
	}
	if err := prometheus.WriteToTextfile(path, prometheus.DefaultGatherer); err != nil {
		return fmt.Errorf("write metrics textfile: %w", err)
	}
	return nil
}
