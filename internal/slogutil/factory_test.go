package slogutil

import (
	"bytes"
	"log/slog"
	"os"
	"strings"
	"testing"

	"finledger/internal/config"
	"finledger/internal/paths"
)

func TestLoggerFactory_EffectiveLevel(t *testing.T) {
	cfg := config.DefaultConfig()
	cfg.Logging.Level = "error"

	f := NewLoggerFactory("", cfg, nil)
	if got := f.EffectiveLevel(); got != slog.LevelError {
		t.Errorf("EffectiveLevel() = %v, want %v", got, slog.LevelError)
	}

	debug := slog.LevelDebug
	f = NewLoggerFactory("", cfg, &debug)
	if got := f.EffectiveLevel(); got != slog.LevelDebug {
		t.Errorf("EffectiveLevel() with CLI flag = %v, want %v", got, slog.LevelDebug)
	}
}

func TestLoggerFactory_JSONFormat(t *testing.T) {
	cfg := config.DefaultConfig()
	cfg.Logging.Format = "json"

	var buf bytes.Buffer
	f := NewLoggerFactory("", cfg, nil)
	f.SetOutput(&buf)

	f.Logger().Info("store opened", "version", 4)

	if !strings.Contains(buf.String(), `"msg":"store opened"`) {
		t.Errorf("expected JSON output, got: %s", buf.String())
	}
}

func TestLoggerFactory_FileTee(t *testing.T) {
	dataDir := t.TempDir()
	cfg := config.DefaultConfig()
	cfg.Logging.File = true

	var buf bytes.Buffer
	f := NewLoggerFactory(dataDir, cfg, nil)
	f.SetOutput(&buf)

	f.Logger().Warn("integrity issues found", "count", 2)
	if err := f.Close(); err != nil {
		t.Fatalf("Close() error = %v", err)
	}

	if !strings.Contains(buf.String(), "integrity issues found") {
		t.Errorf("console should contain message, got: %s", buf.String())
	}

	data, err := os.ReadFile(paths.LogPath(dataDir))
	if err != nil {
		t.Fatalf("failed to read log file: %v", err)
	}
	if !strings.Contains(string(data), "count=2") {
		t.Errorf("log file should contain message, got: %s", string(data))
	}
}
