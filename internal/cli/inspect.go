package cli

import (
	"fmt"

	"github.com/ppiankov/ohmexport/internal/inspect"
	"github.com/spf13/cobra"
)

// inspectCmd represents the inspect command
var inspectCmd = &cobra.Command{
	Use:   "inspect <extract.osm.pbf>",
	Short: "Survey start_date/end_date tags in an OSM extract",
	Long: `Inspect reads an OSM PBF extract and reports how many objects carry date
tags, how many of those normalize to a year, the year span, and a sample of
values that do not parse. Unparseable dates become NULL years on import.`,
	Args: cobra.ExactArgs(1),
	RunE: runInspect,
}

func init() {
	rootCmd.AddCommand(inspectCmd)
}

func runInspect(cmd *cobra.Command, args []string) error {
	ctx, cancel := signalContext()
	defer cancel()

	tally, err := inspect.ScanFile(ctx, args[0])
	if err != nil {
		return fmt.Errorf("inspect failed: %w", err)
	}

	fmt.Println("═══════════════════════════════════════════════════════════")
	fmt.Println("  Date Tag Survey")
	fmt.Println("═══════════════════════════════════════════════════════════")
	fmt.Println()
	fmt.Printf("  Objects:     %d\n", tally.Objects)
	fmt.Printf("  start_date:  %d present, %d parsed, %d unparsed\n", tally.Start.Present, tally.Start.Parsed, tally.Start.Unparsed)
	fmt.Printf("  end_date:    %d present, %d parsed, %d unparsed\n", tally.End.Present, tally.End.Parsed, tally.End.Unparsed)
	if tally.HasYears() {
		fmt.Printf("  Year span:   %d → %d\n", tally.MinYear, tally.MaxYear)
	}

	if len(tally.Samples) > 0 {
		fmt.Println()
		fmt.Println("  Unparsed samples:")
		for _, s := range tally.Samples {
			fmt.Printf("    %s/%d %s=%q\n", s.Kind, s.ID, s.Tag, s.Value)
		}
	}
	fmt.Println()
	return nil
}
