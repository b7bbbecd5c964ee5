package cli

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/ppiankov/ohmexport/internal/model"
	"github.com/ppiankov/ohmexport/internal/store"
	"github.com/spf13/cobra"
)

// prepareCmd represents the prepare command
var prepareCmd = &cobra.Command{
	Use:   "prepare",
	Short: "Materialize start/end years and build snapshot indexes",
	Long: `Prepare adds start_year and end_year columns to every table in store.tables,
fills them from the start_date and end_date tags, and creates the indexes
snapshot queries rely on. It is safe to run repeatedly; every run recomputes
all rows.`,
	Args: cobra.NoArgs,
	RunE: runPrepare,
}

func init() {
	rootCmd.AddCommand(prepareCmd)
}

func runPrepare(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	if err := cfg.Validate(); err != nil {
		return err
	}

	logger := newLogger()
	ctx, cancel := signalContext()
	defer cancel()

	return prepareStore(ctx, cfg, logger)
}

// prepareStore runs Prepare and prints one line per table
func prepareStore(ctx context.Context, cfg *model.Config, logger *slog.Logger) error {
	st, err := store.Open(ctx, cfg.Store, logger)
	if err != nil {
		return err
	}
	defer func() { _ = st.Close() }()

	results, err := st.Prepare(ctx)
	flushMetrics(cfg, logger)
	if err != nil {
		return fmt.Errorf("prepare failed: %w", err)
	}

	for _, r := range results {
		fmt.Printf("✓ %s: %d row(s) backfilled\n", r.Table, r.Rows)
	}
	return nil
}
