package main

import (
	"encoding/json"
	"errors"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/dgallion1/corpusqa/internal/app"
	"github.com/dgallion1/corpusqa/internal/pipeline"
)

var buildCmd = &cobra.Command{
	Use:   "build",
	Short: "Crawl, ingest, chunk and index the corpus",
	Long: `Runs a full rebuild of the knowledge base. The crawl starts from the
configured seeds, local files come from SOURCE_FOLDER, and the new index
replaces the one in INDEX_DIR only when the build succeeds.`,
	Args: cobra.NoArgs,
	RunE: runBuild,
}

func init() {
	rootCmd.AddCommand(buildCmd)
}

func runBuild(cmd *cobra.Command, _ []string) error {
	cfg, log, err := setup()
	if err != nil {
		return err
	}
	if err := cfg.ValidateCrawl(); err != nil {
		return err
	}

	emb, err := app.Embedder(cfg)
	if err != nil {
		return err
	}
	fetcher := app.Fetcher(cfg, log)
	defer fetcher.Close()

	report, runErr := app.Builder(cfg, fetcher, emb, log).Run(cmd.Context())

	data, err := json.MarshalIndent(report.Snapshot(), "", "  ")
	if err != nil {
		return fmt.Errorf("failed to marshal report: %w", err)
	}
	cmd.Println(string(data))

	if errors.Is(runErr, pipeline.ErrEmptyCorpus) {
		return fmt.Errorf("%w; previous index in %s kept", runErr, cfg.IndexDir)
	}
	return runErr
}
