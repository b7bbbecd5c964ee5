package cli

import (
	"fmt"
	"os"

	"github.com/ppiankov/ohmexport/internal/loader"
	"github.com/spf13/cobra"
)

var ingestSkipPrepare bool

// ingestCmd represents the ingest command
var ingestCmd = &cobra.Command{
	Use:   "ingest <extract.osm.pbf | url>",
	Short: "Import an OSM extract and prepare it for export",
	Long: `Ingest runs the configured loader (imposm by default) on an OSM extract,
then runs prepare so the imported tables carry start/end years. An http(s)
URL is first downloaded into loader.download_dir, unless a file of the same
name is already there.

The loader command line comes from loader.path and loader.args; {input} and
{dsn} in the arguments are replaced with the extract path and store.dsn.

Example:
  ohmexport ingest planet-ohm.osm.pbf
  ohmexport ingest https://planet.openhistoricalmap.org/planet/planet-latest.osm.pbf
  ohmexport ingest extract.osm.pbf --skip-prepare`,
	Args: cobra.ExactArgs(1),
	RunE: runIngest,
}

func init() {
	rootCmd.AddCommand(ingestCmd)

	ingestCmd.Flags().BoolVar(&ingestSkipPrepare, "skip-prepare", false, "import only, do not backfill years")
}

func runIngest(cmd *cobra.Command, args []string) error {
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

	input := args[0]
	if loader.IsRemote(input) {
		f := loader.NewFetcher(cfg.Loader.DownloadDir, cfg.Loader.UserAgent, logger)
		if input, err = f.FetchWithRetry(ctx, input); err != nil {
			return fmt.Errorf("download failed: %w", err)
		}
	}

	l, err := loader.New(cfg.Loader, cfg.Store.DSN, os.Stdout, os.Stderr, logger)
	if err != nil {
		return err
	}
	if err := l.Load(ctx, input); err != nil {
		return err
	}

	if ingestSkipPrepare {
		return nil
	}
	return prepareStore(ctx, cfg, logger)
}
