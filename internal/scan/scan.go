// Package scan enumerates storage keys for offline reparsing, either by
// walking a downloaded archive tree or by reading keys line by line.
package scan

import (
	"bufio"
	"context"
	"io"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
)

// Tree walks a downloaded archive tree rooted at root and sends the
// storage key of every question capture it finds. A capture lives in a
// numeric directory under a "questions" directory and holds exactly one
// file; anything else is reported and skipped. Keys are slash-separated
// paths relative to root.
func Tree(ctx context.Context, root string, out chan<- string) error {
	return filepath.WalkDir(root, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			slog.Warn("Unreadable archive entry", "path", path, "error", err)
			if d != nil && d.IsDir() {
				return fs.SkipDir
			}
			return nil
		}
		if ctx.Err() != nil {
			return ctx.Err()
		}
		if !d.IsDir() || d.Name() != "questions" {
			return nil
		}

		if err := questionsDir(ctx, root, path, out); err != nil {
			return err
		}
		return fs.SkipDir
	})
}

// questionsDir emits the capture held by each numeric child directory.
func questionsDir(ctx context.Context, root, dir string, out chan<- string) error {
	entries, err := os.ReadDir(dir)
	if err != nil {
		slog.Warn("Unreadable questions directory", "path", dir, "error", err)
		return nil
	}

	for _, entry := range entries {
		if !entry.IsDir() || !numeric(entry.Name()) {
			slog.Warn("Unexpected entry in questions directory", "path", filepath.Join(dir, entry.Name()))
			continue
		}

		qdir := filepath.Join(dir, entry.Name())
		files, err := os.ReadDir(qdir)
		if err != nil {
			slog.Warn("Unreadable question directory", "path", qdir, "error", err)
			continue
		}
		if len(files) != 1 || files[0].IsDir() {
			slog.Warn("Question directory does not hold exactly one file", "path", qdir, "entries", len(files))
			continue
		}

		rel, err := filepath.Rel(root, filepath.Join(qdir, files[0].Name()))
		if err != nil {
			continue
		}

		select {
		case out <- filepath.ToSlash(rel):
		case <-ctx.Done():
			return ctx.Err()
		}
	}
	return nil
}

// Lines sends one key per non-blank input line.
func Lines(ctx context.Context, r io.Reader, out chan<- string) error {
	scanner := bufio.NewScanner(r)
	scanner.Buffer(make([]byte, 64*1024), 1024*1024)
	for scanner.Scan() {
		key := strings.TrimSpace(scanner.Text())
		if key == "" {
			continue
		}
		select {
		case out <- key:
		case <-ctx.Done():
			return ctx.Err()
		}
	}
	return scanner.Err()
}

func numeric(s string) bool {
	if s == "" {
		return false
	}
	for _, r := range s {
		if r < '0' || r > '9' {
			return false
		}
	}
	return true
}
