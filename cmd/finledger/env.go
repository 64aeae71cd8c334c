package main

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"finledger/internal/config"
	"finledger/internal/ledger"
	"finledger/internal/paths"
	"finledger/internal/slogutil"
	"finledger/internal/storage"
)

// appEnv is an opened data directory: configuration, logger and store.
type appEnv struct {
	home    string
	cfg     *config.Config
	logger  *slog.Logger
	factory *slogutil.LoggerFactory
	store   *storage.Store
}

// cliLevel returns the level chosen by -v/-q, or nil when neither was given.
func cliLevel() *slog.Level {
	if verboseFlag == 0 && !quietFlag {
		return nil
	}
	level := slogutil.LevelFromVerbosity(verboseFlag, quietFlag)
	return &level
}

// resolveHome returns the data directory, creating it if needed.
func resolveHome() (string, error) {
	home, err := paths.GetHome(homeFlag)
	if err != nil {
		return "", fmt.Errorf("failed to resolve data directory: %w", err)
	}
	return paths.EnsureDir(home)
}

// openEnv loads config.json, builds the logger and opens (and migrates) the store.
func openEnv(ctx context.Context) (*appEnv, error) {
	home, err := resolveHome()
	if err != nil {
		return nil, err
	}

	cfg, err := config.LoadConfig(home)
	if err != nil {
		return nil, err
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	factory := slogutil.NewLoggerFactory(home, cfg, cliLevel())
	logger := factory.Logger()

	store := storage.New(storage.Options{
		Path:        paths.DatabasePath(home, cfg.Storage.Path),
		Policy:      storage.PolicyForMode(cfg.IsDevelopment(), logger),
		BusyTimeout: time.Duration(cfg.Storage.BusyTimeoutMs) * time.Millisecond,
		Logger:      logger,
	})
	if err := store.Open(ctx); err != nil {
		_ = factory.Close()
		return nil, err
	}

	logger.Debug("Data directory opened",
		"home", home,
		"mode", cfg.Mode,
		"backend", cfg.Backend.Kind,
	)
	return &appEnv{home: home, cfg: cfg, logger: logger, factory: factory, store: store}, nil
}

// Close closes the store and any log files.
func (e *appEnv) Close() {
	if err := e.store.Close(); err != nil {
		e.logger.Warn("Failed to close store", "error", err)
	}
	_ = e.factory.Close()
}

// ledger opens the configured backend. The returned func closes it.
func (e *appEnv) ledger(ctx context.Context) (*ledger.Service, func(), error) {
	backend, err := ledger.OpenBackend(ctx, e.cfg, e.store, e.logger)
	if err != nil {
		return nil, nil, err
	}
	closeFn := func() {
		if err := backend.Close(); err != nil {
			e.logger.Warn("Failed to close backend", "error", err)
		}
	}
	return ledger.NewService(backend, e.cfg.Backend.UserID, e.logger), closeFn, nil
}
