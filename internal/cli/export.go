package cli

import (
	"fmt"
	"os"
	"time"

	"github.com/ppiankov/ohmexport/internal/export"
	"github.com/ppiankov/ohmexport/internal/extract"
	"github.com/spf13/cobra"
)

var exportDryRun bool

// exportCmd represents the export command
var exportCmd = &cobra.Command{
	Use:   "export [start_year] [end_year] [workers]",
	Short: "Export one GeoJSON snapshot per year in a range",
	Long: `Export writes <prefix>_<year>.geojson for every year in [start_year, end_year]
that has no snapshot yet, running up to [workers] extractions at once.

start_year defaults to export.start_year (1900), end_year to the current
year, and workers to export.workers. Years already on disk are skipped; a
failed year leaves no file and is retried on the next run.

Negative (BCE) years need "--" so they are not read as flags.

Example:
  ohmexport export
  ohmexport export 1848 1850 2
  ohmexport export -- -500 -400 8
  ohmexport export 1900 1950 --dry-run`,
	Args: cobra.MaximumNArgs(3),
	RunE: runExport,
}

func init() {
	rootCmd.AddCommand(exportCmd)

	exportCmd.Flags().BoolVar(&exportDryRun, "dry-run", false, "show which years would be exported without running anything")
}

func runExport(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}

	start, end, workers, err := export.ParseArgs(args, export.Defaults{
		Start:   cfg.Export.StartYear,
		End:     time.Now().Year(),
		Workers: cfg.Export.Workers,
	})
	if err != nil {
		return err
	}
	if err := cfg.Validate(); err != nil {
		return err
	}

	logger := newLogger()
	reporter := export.NewTextReporter(os.Stdout)

	ext, err := extract.NewOgr2Ogr(cfg.Export.Tool, cfg.Store.DSN, cfg.Export.Precision)
	if err != nil {
		return err
	}

	orch := export.New(export.OptionsFromConfig(cfg), ext, reporter, logger)

	if exportDryRun {
		plan, err := orch.Plan(start, end, workers)
		if err != nil {
			return err
		}
		reporter.Planned(plan)
		for _, year := range plan.Pending {
			fmt.Printf("  would export %s\n", export.ArtifactName(cfg.Export.Prefix, year))
		}
		return nil
	}

	ctx, cancel := signalContext()
	defer cancel()

	summary, err := orch.Run(ctx, start, end, workers)
	flushMetrics(cfg, logger)
	if err != nil {
		return err
	}

	if summary.Failed > 0 {
		fmt.Fprintf(os.Stderr, "%d year(s) failed and will be retried on the next run\n", summary.Failed)
	}
	return nil
}
