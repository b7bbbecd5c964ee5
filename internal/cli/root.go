package cli

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/ppiankov/ohmexport/internal/metrics"
	"github.com/ppiankov/ohmexport/internal/model"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
)

// version is set at build time with -ldflags "-X ...cli.version=..."
var version = "v0.1.0"

var (
	cfgFile string
	verbose bool
)

// rootCmd represents the base command
var rootCmd = &cobra.Command{
	Use:   "ohmexport",
	Short: "ohmexport - Per-year snapshots of OpenHistoricalMap boundaries",
	Long: `ohmexport materializes signed start/end years on imported OpenHistoricalMap
features and exports one GeoJSON snapshot per calendar year: every feature
active in that year, and nothing else.

Exports are resumable. A year whose snapshot file already exists is skipped,
so an interrupted run picks up where it stopped.`,
	SilenceErrors: true,
	SilenceUsage:  true,
}

// Execute runs the root command
func Execute() error {
	return rootCmd.Execute()
}

// versionCmd represents the version command
var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Print version information",
	Run: func(cmd *cobra.Command, args []string) {
		fmt.Printf("ohmexport %s\n", version)
	},
}

func init() {
	cobra.OnInitialize(initConfig)

	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", "", "config file (default: $HOME/.ohmexport/config.yaml)")
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "verbose output")

	_ = viper.BindPFlag("output.verbose", rootCmd.PersistentFlags().Lookup("verbose"))

	rootCmd.AddCommand(versionCmd)
}

// initConfig reads in config file and ENV variables
func initConfig() {
	if cfgFile != "" {
		viper.SetConfigFile(cfgFile)
	} else {
		home, err := os.UserHomeDir()
		if err != nil {
			fmt.Fprintf(os.Stderr, "Error finding home directory: %v\n", err)
			return
		}

		viper.AddConfigPath(home + "/.ohmexport")
		viper.AddConfigPath(".")
		viper.SetConfigType("yaml")
		viper.SetConfigName("config")
	}

	setDefaults(model.DefaultConfig())

	// OHMEXPORT_STORE_DSN overrides store.dsn, and so on
	viper.SetEnvPrefix("OHMEXPORT")
	viper.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	viper.AutomaticEnv()

	if err := viper.ReadInConfig(); err == nil && verbose {
		fmt.Fprintf(os.Stderr, "Using config file: %s\n", viper.ConfigFileUsed())
	}
}

// setDefaults registers every key so environment variables can override
// keys that no config file mentions
func setDefaults(d *model.Config) {
	viper.SetDefault("store.dsn", d.Store.DSN)
	viper.SetDefault("store.tables", d.Store.Tables)
	viper.SetDefault("store.key_column", d.Store.KeyColumn)
	viper.SetDefault("store.tags_column", d.Store.TagsColumn)
	viper.SetDefault("store.geometry_column", d.Store.GeomColumn)
	viper.SetDefault("store.backfill_batch", d.Store.BackfillBatch)

	viper.SetDefault("export.tool", d.Export.Tool)
	viper.SetDefault("export.output_dir", d.Export.OutputDir)
	viper.SetDefault("export.prefix", d.Export.Prefix)
	viper.SetDefault("export.table", d.Export.Table)
	viper.SetDefault("export.filter", d.Export.Filter)
	viper.SetDefault("export.precision", d.Export.Precision)
	viper.SetDefault("export.workers", d.Export.Workers)
	viper.SetDefault("export.start_year", d.Export.StartYear)
	viper.SetDefault("export.launch_rate", d.Export.LaunchRate)

	viper.SetDefault("loader.path", d.Loader.Path)
	viper.SetDefault("loader.args", d.Loader.Args)
	viper.SetDefault("loader.download_dir", d.Loader.DownloadDir)
	viper.SetDefault("loader.user_agent", d.Loader.UserAgent)

	viper.SetDefault("convert.output_dir", d.Convert.OutputDir)
	viper.SetDefault("convert.provider", d.Convert.Provider)
	viper.SetDefault("convert.start_year", d.Convert.StartYear)
	viper.SetDefault("convert.end_year", d.Convert.EndYear)
	viper.SetDefault("convert.api_key", d.Convert.APIKey)
	viper.SetDefault("convert.base_url", d.Convert.BaseURL)
	viper.SetDefault("convert.model", d.Convert.Model)
	viper.SetDefault("convert.batch_size", d.Convert.BatchSize)
	viper.SetDefault("convert.batch_delay", d.Convert.BatchDelay)
	viper.SetDefault("convert.cache_dir", d.Convert.CacheDir)
	viper.SetDefault("convert.cache_ttl", d.Convert.CacheTTL)
	viper.SetDefault("convert.target_lang", d.Convert.TargetLang)
	viper.SetDefault("convert.request_timeout", d.Convert.RequestTimeout)

	viper.SetDefault("metrics.textfile", d.Metrics.Textfile)
	viper.SetDefault("output.verbose", d.Output.Verbose)
}

// loadConfig resolves defaults, config file, environment and flags
func loadConfig() (*model.Config, error) {
	cfg := model.DefaultConfig()
	if err := viper.Unmarshal(cfg); err != nil {
		return nil, fmt.Errorf("decode configuration: %w", err)
	}

	if cfg.Convert.APIKey == "" {
		cfg.Convert.APIKey = os.Getenv("OPENAI_API_KEY")
	}
	return cfg, nil
}

// newLogger writes structured logs to stderr, debug level with --verbose
func newLogger() *slog.Logger {
	level := slog.LevelInfo
	if verbose || viper.GetBool("output.verbose") {
		level = slog.LevelDebug
	}
	return slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: level}))
}

// signalContext is cancelled on SIGINT or SIGTERM
func signalContext() (context.Context, context.CancelFunc) {
	return signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
}

// flushMetrics writes the metrics textfile when one is configured
func flushMetrics(cfg *model.Config, logger *slog.Logger) {
	if err := metrics.WriteTextfile(cfg.Metrics.Textfile); err != nil {
		logger.Warn("metrics not written", slog.String("error", err.Error()))
	}
}
