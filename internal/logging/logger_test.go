package logging

import (
	"encoding/json"
	"log/slog"
	"os"
	"path/filepath"
	"testing"
)

func TestParseLevel(t *testing.T) {
	tests := []struct {
		name     string
		input    string
		expected slog.Level
	}{
		{"debug level", "debug", slog.LevelDebug},
		{"info level", "info", slog.LevelInfo},
		{"warn level", "warn", slog.LevelWarn},
		{"warning level", "warning", slog.LevelWarn},
		{"error level", "error", slog.LevelError},
		{"uppercase DEBUG", "DEBUG", slog.LevelDebug},
		{"mixed case Info", "Info", slog.LevelInfo},
		{"unknown name", "loud", slog.LevelInfo},
		{"empty string", "", slog.LevelInfo},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := ParseLevel(tt.input); got != tt.expected {
				t.Errorf("ParseLevel(%q) = %v, want %v", tt.input, got, tt.expected)
			}
		})
	}
}

func TestDefaultOptions(t *testing.T) {
	opts := DefaultOptions()
	if opts.Level != slog.LevelInfo {
		t.Errorf("level = %v, want info", opts.Level)
	}
	if opts.FilePath != "" {
		t.Errorf("file path = %q, want empty", opts.FilePath)
	}
	if !opts.Console {
		t.Errorf("console sink should be enabled by default")
	}
}

func TestNewWritesJSONToFile(t *testing.T) {
	logFile := filepath.Join(t.TempDir(), "logs", "test.log")

	logger, err := New(Options{
		Level:      slog.LevelDebug,
		FilePath:   logFile,
		MaxSizeMB:  10,
		MaxBackups: 3,
	})
	if err != nil {
		t.Fatalf("New failed: %v", err)
	}

	logger.Info("commit", "size", 42)

	data, err := os.ReadFile(logFile)
	if err != nil {
		t.Fatalf("log file not written: %v", err)
	}

	var record map[string]any
	if err := json.Unmarshal(data, &record); err != nil {
		t.Fatalf("log record is not JSON: %v", err)
	}
	if record["msg"] != "commit" {
		t.Errorf("msg = %v, want commit", record["msg"])
	}
	if record["size"] != float64(42) {
		t.Errorf("size = %v, want 42", record["size"])
	}
}

func TestNewLevelFilter(t *testing.T) {
	logFile := filepath.Join(t.TempDir(), "test.log")

	logger, err := New(Options{
		Level:      slog.LevelWarn,
		FilePath:   logFile,
		MaxSizeMB:  10,
		MaxBackups: 3,
	})
	if err != nil {
		t.Fatalf("New failed: %v", err)
	}

	logger.Info("filtered out")

	data, err := os.ReadFile(logFile)
	if err != nil {
		t.Fatalf("failed to read log file: %v", err)
	}
	if len(data) != 0 {
		t.Errorf("info record leaked through a warn-level logger: %q", data)
	}
}

func TestNewDefaultsToConsole(t *testing.T) {
	logger, err := New(Options{})
	if err != nil {
		t.Fatalf("New failed: %v", err)
	}
	if logger == nil {
		t.Fatal("New returned nil logger")
	}
}

func TestSetup(t *testing.T) {
	logFile := filepath.Join(t.TempDir(), "test.log")

	if err := Setup(Options{
		Level:      slog.LevelDebug,
		FilePath:   logFile,
		MaxSizeMB:  10,
		MaxBackups: 3,
	}); err != nil {
		t.Fatalf("Setup failed: %v", err)
	}

	slog.Info("via default logger")

	if _, err := os.Stat(logFile); os.IsNotExist(err) {
		t.Errorf("log file was not created at %s", logFile)
	}
}
