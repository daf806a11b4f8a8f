package cmd

import (
	"context"
	"errors"
	"fmt"
	"os"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"golang.org/x/sync/errgroup"

	"github.com/YesIKnowIT/SODump/internal/pipeline"
	"github.com/YesIKnowIT/SODump/internal/scan"
)

var reparseCmd = &cobra.Command{
	Use:   "reparse",
	Short: "Re-run extraction over an already-downloaded archive tree",
	Long: `Reparse feeds previously downloaded captures back through the
extraction engine without touching the network, for example after the
engine learns a new page layout. Keys come from walking the archive
tree, or from standard input with --stdin.`,
	RunE: runReparse,
}

func init() {
	rootCmd.AddCommand(reparseCmd)

	reparseCmd.Flags().String("archive-root", "", "root of the downloaded archive tree")
	reparseCmd.Flags().Bool("stdin", false, "read keys from standard input instead of walking the tree")

	if err := viper.BindPFlag("archive_root", reparseCmd.Flags().Lookup("archive-root")); err != nil {
		fmt.Fprintf(os.Stderr, "Warning: failed to bind flag archive-root: %v\n", err)
	}
}

func runReparse(cmd *cobra.Command, args []string) error {
	fromStdin, _ := cmd.Flags().GetBool("stdin")

	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	if !fromStdin {
		if _, err := os.Stat(cfg.ArchiveRoot); err != nil {
			return fmt.Errorf("archive root %s: %w", cfg.ArchiveRoot, err)
		}
	}

	store, err := openStore(cfg.DatabasePath)
	if err != nil {
		return err
	}
	defer func() { _ = store.Close() }()

	keys := make(chan string)
	g, ctx := errgroup.WithContext(cmd.Context())

	g.Go(func() error {
		defer close(keys)
		if fromStdin {
			return scan.Lines(ctx, os.Stdin, keys)
		}
		return scan.Tree(ctx, cfg.ArchiveRoot, keys)
	})
	g.Go(func() error {
		return pipeline.New(cfg, store).Reparse(ctx, keys)
	})

	err = g.Wait()
	if errors.Is(err, context.Canceled) {
		return nil
	}
	return err
}
