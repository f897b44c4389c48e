package main

import (
	"fmt"
	"log/slog"
	"os"

	"github.com/spf13/cobra"

	"github.com/cascadekit/cascade"
)

var (
	verbose    bool
	configPath string
)

// rootCmd represents the base command when called without any subcommands
var rootCmd = &cobra.Command{
	Use:   "cascade",
	Short: "Inspect and mutate entities of a reactive entity store",
	Long: `Cascade stores named entities as schema-less property bags in a pluggable
backend (memory, Redis, SQLite or flat files). This CLI reads and writes
entity properties against the backend selected by --config or the
CASCADE_STORAGE_* environment variables.`,
	PersistentPreRun: func(cmd *cobra.Command, args []string) {
		level := slog.LevelInfo
		if verbose {
			level = slog.LevelDebug
		}

		opts := &slog.HandlerOptions{
			Level: level,
		}
		logger := slog.New(slog.NewTextHandler(os.Stderr, opts))
		slog.SetDefault(logger)
	},
}

// Execute adds all child commands to the root command and sets flags appropriately.
// This is called by main.main().
func Execute() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Println(err)
		os.Exit(1)
	}
}

func init() {
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "Enable verbose logging")
	rootCmd.PersistentFlags().StringVarP(&configPath, "config", "c", "", "Path to a YAML config file (default: environment)")
}

// newEngine builds the engine from --config or the environment.
func newEngine() (*cascade.Engine, error) {
	cfg := cascade.FromEnv()
	if configPath != "" {
		loaded, err := cascade.LoadConfig(configPath)
		if err != nil {
			return nil, err
		}
		cfg = loaded
	}
	return cascade.FromConfig(cfg, cascade.WithLogger(slog.Default()))
}
