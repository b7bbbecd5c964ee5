package cli

import (
	"fmt"

	"github.com/ppiankov/ohmexport/internal/export"
	"github.com/ppiankov/ohmexport/internal/extract"
	"github.com/ppiankov/ohmexport/internal/store"
	"github.com/spf13/cobra"
)

// yearCmd represents the year command
var yearCmd = &cobra.Command{
	Use:   "year <year>",
	Short: "Export the snapshot for a single year",
	Long: `Year counts the features active in <year> and, when there are any, writes
<prefix>_<year>.geojson, replacing an existing file.

Example:
  ohmexport year 1850
  ohmexport year -- -44`,
	Args: cobra.ExactArgs(1),
	RunE: runYear,
}

func init() {
	rootCmd.AddCommand(yearCmd)
}

func runYear(cmd *cobra.Command, args []string) error {
	year, err := export.ParseYearArg(args[0])
	if err != nil {
		return err
	}

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

	st, err := store.Open(ctx, cfg.Store, logger)
	if err != nil {
		return err
	}
	defer func() { _ = st.Close() }()

	ext, err := extract.NewOgr2Ogr(cfg.Export.Tool, cfg.Store.DSN, cfg.Export.Precision)
	if err != nil {
		return err
	}

	orch := export.New(export.OptionsFromConfig(cfg), ext, nil, logger)
	res, err := orch.ExportYear(ctx, st, year)
	if err != nil {
		return err
	}

	fmt.Printf("Found %d feature(s) active in %d\n", res.Features, year)
	if res.Path == "" {
		fmt.Println("nothing to export")
		return nil
	}

	fmt.Printf("✓ Exported %s\n", res.Path)
	return nil
}
