package logging

import (
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sync"
	"time"
)

// RotatingWriter appends to a log file and rotates it by size, keeping
// a bounded number of dated, numbered backups. Safe for concurrent use.
type RotatingWriter struct {
	mu         sync.Mutex
	file       *os.File
	path       string
	maxBytes   int64
	maxBackups int
	written    int64
}

// NewRotatingWriter opens (or creates) the log file at path.
func NewRotatingWriter(path string, maxBytes int64, maxBackups int) (*RotatingWriter, error) {
	w := &RotatingWriter{path: path, maxBytes: maxBytes, maxBackups: maxBackups}
	if err := w.open(); err != nil {
		return nil, err
	}

	info, err := w.file.Stat()
	if err != nil {
		_ = w.file.Close()
		return nil, err
	}
	w.written = info.Size()
	return w, nil
}

// Write implements io.Writer, rotating first when the record would push
// the file over the size limit.
func (w *RotatingWriter) Write(p []byte) (int, error) {
	w.mu.Lock()
	defer w.mu.Unlock()

	if w.written+int64(len(p)) > w.maxBytes {
		if err := w.rotate(); err != nil {
			return 0, err
		}
	}

	n, err := w.file.Write(p)
	w.written += int64(n)
	return n, err
}

// Close closes the underlying file.
func (w *RotatingWriter) Close() error {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.file == nil {
		return nil
	}
	return w.file.Close()
}

func (w *RotatingWriter) open() error {
	f, err := os.OpenFile(w.path, os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0600)
	if err != nil {
		return err
	}
	w.file = f
	return nil
}

// rotate shifts existing backups up by one index, dropping the oldest,
// and starts a fresh file.
func (w *RotatingWriter) rotate() error {
	if w.file != nil {
		if err := w.file.Close(); err != nil {
			return err
		}
	}

	for i := w.maxBackups - 1; i > 0; i-- {
		if i == w.maxBackups-1 {
			_ = os.Remove(w.backupName(i + 1))
			continue
		}
		old := w.backupName(i)
		if _, err := os.Stat(old); err == nil {
			if err := os.Rename(old, w.backupName(i+1)); err != nil {
				return err
			}
		}
	}

	// The current file may not exist when rotation races a removal, so
	// a failed rename is not fatal.
	_ = os.Rename(w.path, w.backupName(1))

	if err := w.open(); err != nil {
		return err
	}
	w.written = 0
	return nil
}

func (w *RotatingWriter) backupName(index int) string {
	dir := filepath.Dir(w.path)
	base := filepath.Base(w.path)
	ext := filepath.Ext(base)
	stem := base[:len(base)-len(ext)]
	stamp := time.Now().Format("20060102")
	return filepath.Join(dir, fmt.Sprintf("%s-%s.%d%s", stem, stamp, index, ext))
}

var _ io.WriteCloser = (*RotatingWriter)(nil)
