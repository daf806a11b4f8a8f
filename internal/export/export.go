// Package export writes the collected view observations out as CSV,
// one file per capture year, with a manifest listing what was written.
package export

import (
	"encoding/csv"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sort"
	"strconv"

	"github.com/YesIKnowIT/SODump/internal/storage"
)

var header = []string{"date", "question", "viewcount"}

// yearFile is one open per-year CSV output.
type yearFile struct {
	file   *os.File
	writer *csv.Writer
	rows   int
}

// Run streams every view observation from the store into dir, splitting
// by the year prefix of the capture timestamp. Files are named
// views-YYYY.csv; a manifest.csv summarizing row counts per year is
// written last.
func Run(store *storage.Store, dir string) error {
	if err := os.MkdirAll(dir, 0755); err != nil {
		return fmt.Errorf("failed to create export directory: %w", err)
	}

	years := make(map[string]*yearFile)
	defer func() {
		for _, yf := range years {
			if yf.file != nil {
				yf.writer.Flush()
				_ = yf.file.Close()
			}
		}
	}()

	err := store.ForEachView(func(date, question string, viewcount int) error {
		if len(date) < 4 {
			slog.Warn("Skipping view with malformed date", "date", date, "question", question)
			return nil
		}
		year := date[:4]

		yf, ok := years[year]
		if !ok {
			var err error
			yf, err = openYear(dir, year)
			if err != nil {
				return err
			}
			years[year] = yf
		}

		yf.rows++
		return yf.writer.Write([]string{date, question, strconv.Itoa(viewcount)})
	})
	if err != nil {
		return err
	}

	for year, yf := range years {
		yf.writer.Flush()
		if err := yf.writer.Error(); err != nil {
			return fmt.Errorf("failed to flush %s: %w", year, err)
		}
		if err := yf.file.Close(); err != nil {
			return fmt.Errorf("failed to close %s: %w", year, err)
		}
		yf.file, yf.writer = nil, nil
		slog.Info("Exported year", "year", year, "rows", yf.rows)
	}

	counts := make(map[string]int, len(years))
	for year, yf := range years {
		counts[year] = yf.rows
	}
	return writeManifest(dir, counts)
}

func openYear(dir, year string) (*yearFile, error) {
	path := filepath.Join(dir, "views-"+year+".csv")
	f, err := os.Create(path)
	if err != nil {
		return nil, fmt.Errorf("failed to create %s: %w", path, err)
	}

	w := csv.NewWriter(f)
	if err := w.Write(header); err != nil {
		_ = f.Close()
		return nil, fmt.Errorf("failed to write header to %s: %w", path, err)
	}
	return &yearFile{file: f, writer: w}, nil
}

func writeManifest(dir string, counts map[string]int) error {
	path := filepath.Join(dir, "manifest.csv")
	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("failed to create manifest: %w", err)
	}

	sorted := make([]string, 0, len(counts))
	for year := range counts {
		sorted = append(sorted, year)
	}
	sort.Strings(sorted)

	w := csv.NewWriter(f)
	if err := w.Write([]string{"file", "year", "rows"}); err != nil {
		_ = f.Close()
		return err
	}
	for _, year := range sorted {
		if err := w.Write([]string{"views-" + year + ".csv", year, strconv.Itoa(counts[year])}); err != nil {
			_ = f.Close()
			return err
		}
	}
	w.Flush()
	if err := w.Error(); err != nil {
		_ = f.Close()
		return fmt.Errorf("failed to write manifest: %w", err)
	}
	return f.Close()
}
