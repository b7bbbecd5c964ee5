package cli

import (
	"log/slog"
	"os"
	"time"

	"github.com/ppiankov/ohmexport/internal/cache"
	"github.com/ppiankov/ohmexport/internal/convert"
	"github.com/ppiankov/ohmexport/internal/llm"
	"github.com/spf13/cobra"
)

var (
	convertStart    int
	convertEnd      int
	convertProvider string
)

// convertCmd represents the convert command
var convertCmd = &cobra.Command{
	Use:   "convert",
	Short: "Convert yearly GeoJSON snapshots to shapefiles with Chinese titles",
	Long: `Convert reads <prefix>_<year>.geojson from export.output_dir and writes
<convert.output_dir>/<year>/<prefix>_<year>.shp with three attributes:

  OID       1-based row number
  TITLE     Chinese name from name:zh* tags, or machine-translated
  TITLE_EN  name:en, or name

Names without a Chinese tag are collected across all years first and
translated once, in batches. Translations are cached in convert.cache_dir.
If translation is unavailable the English name is used.

Example:
  ohmexport convert
  ohmexport convert --start 1950 --end 2000
  OPENAI_API_KEY=sk-... ohmexport convert --provider openai`,
	Args: cobra.NoArgs,
	RunE: runConvert,
}

func init() {
	rootCmd.AddCommand(convertCmd)

	convertCmd.Flags().IntVar(&convertStart, "start", 0, "first year (default: convert.start_year)")
	convertCmd.Flags().IntVar(&convertEnd, "end", 0, "last year (default: convert.end_year)")
	convertCmd.Flags().StringVar(&convertProvider, "provider", "", "translation provider: openai, ollama, none (default: convert.provider)")
}

func runConvert(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}

	start, end := cfg.Convert.StartYear, cfg.Convert.EndYear
	if cmd.Flags().Changed("start") {
		start = convertStart
	}
	if cmd.Flags().Changed("end") {
		end = convertEnd
	}
	if cmd.Flags().Changed("provider") {
		cfg.Convert.Provider = convertProvider
		if convertProvider == "none" {
			cfg.Convert.Provider = ""
		}
	}

	logger := newLogger()
	ctx, cancel := signalContext()
	defer cancel()

	provider, err := llm.NewProvider(llm.ConfigFromModel(cfg.Convert))
	if err != nil {
		logger.Warn("translation disabled", slog.String("error", err.Error()))
		provider = nil
	}

	c := cache.NewLayeredCache(time.Hour, cfg.Convert.CacheDir, cfg.Convert.CacheTTL)
	translator := convert.NewTranslator(provider, c, convert.TranslatorOptions{
		TargetLang: cfg.Convert.TargetLang,
		Model:      cfg.Convert.Model,
		BatchSize:  cfg.Convert.BatchSize,
		BatchDelay: cfg.Convert.BatchDelay,
		CacheTTL:   cfg.Convert.CacheTTL,
	}, logger)

	conv := convert.NewConverter(convert.Options{
		InputDir:  cfg.Export.OutputDir,
		Prefix:    cfg.Export.Prefix,
		OutputDir: cfg.Convert.OutputDir,
	}, translator, os.Stdout, logger)

	_, err = conv.Run(ctx, start, end)
	flushMetrics(cfg, logger)
	return err
}
