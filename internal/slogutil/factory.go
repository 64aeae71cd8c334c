package slogutil

import (
	"io"
	"log/slog"
	"os"

	"finledger/internal/config"
	"finledger/internal/paths"
)

// LoggerFactory builds the process logger from configuration and CLI flags.
// Precedence for the level: CLI flags > logging.level in config > info.
type LoggerFactory struct {
	dataDir  string
	config   *config.Config
	cliLevel *slog.Level
	stderr   io.Writer
	closers  []io.Closer
}

// NewLoggerFactory creates a new logger factory.
// cliLevel is nil when no CLI verbosity flag was given.
func NewLoggerFactory(dataDir string, cfg *config.Config, cliLevel *slog.Level) *LoggerFactory {
	if cfg == nil {
		cfg = config.DefaultConfig()
	}
	return &LoggerFactory{
		dataDir:  dataDir,
		config:   cfg,
		cliLevel: cliLevel,
		stderr:   os.Stderr,
		closers:  make([]io.Closer, 0),
	}
}

// SetOutput replaces the console writer (stderr by default).
func (f *LoggerFactory) SetOutput(w io.Writer) {
	f.stderr = w
}

// Logger returns the console logger, teed into <dataDir>/logs/finledger.log
// when logging.file is enabled. File errors fall back to console only.
func (f *LoggerFactory) Logger() *slog.Logger {
	level := f.EffectiveLevel()
	console := f.consoleHandler(level)

	if !f.config.Logging.File || f.dataDir == "" {
		return slog.New(console)
	}

	if _, err := paths.EnsureDir(paths.LogsDir(f.dataDir)); err != nil {
		return slog.New(console)
	}

	fileLogger, closer, err := f.createFileLogger(paths.LogPath(f.dataDir), level)
	if err != nil {
		return slog.New(console)
	}
	f.closers = append(f.closers, closer)

	return NewTeeLogger(console, fileLogger.Handler())
}

func (f *LoggerFactory) consoleHandler(level slog.Level) slog.Handler {
	opts := &slog.HandlerOptions{Level: level}
	if f.config.Logging.Format == "json" {
		return slog.NewJSONHandler(f.stderr, opts)
	}
	return NewLineHandler(f.stderr, opts)
}

// createFileLogger opens the log file, rotated when logging.maxSize is set.
func (f *LoggerFactory) createFileLogger(path string, level slog.Level) (*slog.Logger, io.Closer, error) {
	return NewRotatingFileLogger(path, level, f.config.Logging.MaxSize, f.config.Logging.MaxBackups)
}

// EffectiveLevel returns the level after applying precedence rules.
func (f *LoggerFactory) EffectiveLevel() slog.Level {
	if f.cliLevel != nil {
		return *f.cliLevel
	}
	if f.config.Logging.Level != "" {
		return LevelFromString(f.config.Logging.Level)
	}
	return slog.LevelInfo
}

// Close closes all open log files.
func (f *LoggerFactory) Close() error {
	var firstErr error
	for _, c := range f.closers {
		if err := c.Close(); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	f.closers = nil
	return firstErr
}
