package cmd

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/YesIKnowIT/SODump/internal/export"
)

var exportCmd = &cobra.Command{
	Use:   "export",
	Short: "Export collected view observations as per-year CSV files",
	RunE:  runExport,
}

func init() {
	rootCmd.AddCommand(exportCmd)

	exportCmd.Flags().StringP("output", "o", "export", "output directory for the CSV files")
}

func runExport(cmd *cobra.Command, args []string) error {
	outDir, _ := cmd.Flags().GetString("output")

	cfg, err := loadConfig()
	if err != nil {
		return err
	}

	store, err := openStore(cfg.DatabasePath)
	if err != nil {
		return err
	}
	defer func() { _ = store.Close() }()

	n, err := store.CountSources()
	if err != nil {
		return err
	}
	fmt.Fprintf(os.Stderr, "Exporting views from %d sources to %s\n", n, outDir)

	return export.Run(store, outDir)
}
