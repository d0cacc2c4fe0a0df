package main

import (
	"log/slog"
	"os"

	"github.com/spf13/cobra"

	"github.com/dgallion1/corpusqa/internal/config"
)

var verbose bool

var rootCmd = &cobra.Command{
	Use:           "corpusctl",
	Short:         "Build and query the corpus knowledge base",
	SilenceUsage:  true,
	SilenceErrors: true,
}

func init() {
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "log at debug level")
}

// setup loads and validates configuration and returns a stderr logger.
func setup() (config.Config, *slog.Logger, error) {
	cfg, err := config.Load()
	if err != nil {
		return cfg, nil, err
	}
	level := cfg.SlogLevel()
	if verbose {
		level = slog.LevelDebug
	}
	log := slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: level}))
	if err := cfg.Validate(); err != nil {
		return cfg, log, err
	}
	return cfg, log, nil
}
