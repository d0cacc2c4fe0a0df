package main

import (
	"github.com/spf13/cobra"

	"github.com/dgallion1/corpusqa/internal/app"
	"github.com/dgallion1/corpusqa/internal/crawler"
)

var (
	crawlDepth int
	crawlPages int
)

var crawlCmd = &cobra.Command{
	Use:   "crawl [seed...]",
	Short: "List the pages a build would visit",
	Long:  `Crawls from the given seeds (or the configured ones) and prints each URL in discovery order.`,
	RunE:  runCrawl,
}

func init() {
	crawlCmd.Flags().IntVar(&crawlDepth, "depth", 0, "maximum crawl depth (default from config)")
	crawlCmd.Flags().IntVar(&crawlPages, "pages", 0, "maximum pages (default from config)")
	rootCmd.AddCommand(crawlCmd)
}

func runCrawl(cmd *cobra.Command, args []string) error {
	cfg, log, err := setup()
	if err != nil {
		return err
	}
	if err := cfg.ValidateCrawl(); err != nil {
		return err
	}

	seeds := cfg.Seeds
	if len(args) > 0 {
		seeds = args
	}
	depth, pages := cfg.CrawlMaxDepth, cfg.CrawlMaxPages
	if crawlDepth > 0 {
		depth = crawlDepth
	}
	if crawlPages > 0 {
		pages = crawlPages
	}

	fetcher := app.Fetcher(cfg, log)
	defer fetcher.Close()

	for _, u := range crawler.New(fetcher, log).Crawl(cmd.Context(), seeds, depth, pages) {
		cmd.Println(u)
	}
	return nil
}
