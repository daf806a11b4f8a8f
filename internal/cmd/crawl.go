package cmd

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/YesIKnowIT/SODump/internal/pipeline"
	"github.com/YesIKnowIT/SODump/internal/storage"
)

var crawlCmd = &cobra.Command{
	Use:   "crawl",
	Short: "Crawl the capture index and harvest question captures",
	Long: `Crawl pages through the CDX capture index for the configured URL
prefix, downloads every capture not yet in the database, and stores the
extracted view counts and tags. Interrupting the run is safe: committed
batches persist and the next run resumes where this one stopped.`,
	RunE: runCrawl,
}

func init() {
	rootCmd.AddCommand(crawlCmd)

	crawlCmd.Flags().StringP("prefix", "p", "", "URL prefix to query the capture index for")
	crawlCmd.Flags().String("cdx-endpoint", "", "CDX index API endpoint")
	crawlCmd.Flags().Int("cdx-page-size", 0, "captures per index page")
	crawlCmd.Flags().Int("cdx-workers", 0, "number of index paginators")
	crawlCmd.Flags().IntP("fetch-workers", "w", 0, "number of capture downloaders")
	crawlCmd.Flags().Int("parse-workers", 0, "number of extraction workers")
	crawlCmd.Flags().IntP("queue-length", "q", 0, "admission window size")
	crawlCmd.Flags().Int("max-retry", 0, "per-capture attempt budget")
	crawlCmd.Flags().Int("batch-size", 0, "write batch flush threshold")
	crawlCmd.Flags().DurationP("timeout", "t", 0, "HTTP request timeout")
	crawlCmd.Flags().StringP("user-agent", "u", "", "HTTP User-Agent header")
	crawlCmd.Flags().Bool("retry-not-found", true, "retry captures that replay as 404")
	crawlCmd.Flags().Bool("follow-redirects", false, "alias redirected captures to their target")
	crawlCmd.Flags().Bool("show-config", false, "display the effective configuration and exit")

	binds := []struct {
		viperKey string
		flagName string
	}{
		{"prefix", "prefix"},
		{"cdx_endpoint", "cdx-endpoint"},
		{"cdx_page_size", "cdx-page-size"},
		{"cdx_workers", "cdx-workers"},
		{"fetch_workers", "fetch-workers"},
		{"parse_workers", "parse-workers"},
		{"queue_length", "queue-length"},
		{"max_retry", "max-retry"},
		{"batch_size", "batch-size"},
		{"request_timeout", "timeout"},
		{"user_agent", "user-agent"},
		{"retry_not_found", "retry-not-found"},
		{"follow_redirects", "follow-redirects"},
	}
	for _, bind := range binds {
		if err := viper.BindPFlag(bind.viperKey, crawlCmd.Flags().Lookup(bind.flagName)); err != nil {
			fmt.Fprintf(os.Stderr, "Warning: failed to bind flag %s: %v\n", bind.flagName, err)
		}
	}
}

func runCrawl(cmd *cobra.Command, args []string) error {
	showConfig, _ := cmd.Flags().GetBool("show-config")

	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	if showConfig {
		return showCurrentConfig(cfg)
	}

	store, err := openStore(cfg.DatabasePath)
	if err != nil {
		return err
	}
	defer func() { _ = store.Close() }()

	err = pipeline.New(cfg, store).Run(cmd.Context())
	if errors.Is(err, context.Canceled) {
		// Interrupted runs are resumable; not an error.
		return nil
	}
	return err
}

// openStore opens the database, creating its directory when necessary.
func openStore(path string) (*storage.Store, error) {
	if dir := filepath.Dir(path); dir != "." {
		if err := os.MkdirAll(dir, 0750); err != nil {
			return nil, fmt.Errorf("failed to create database directory: %w", err)
		}
	}

	started := time.Now()
	store, err := storage.Open(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open database %s: %w", path, err)
	}
	if elapsed := time.Since(started); elapsed > time.Second {
		fmt.Fprintf(os.Stderr, "Database migration took %v\n", elapsed.Round(time.Millisecond))
	}
	return store, nil
}
