package storage

import (
	"context"
	"fmt"
	"log/slog"
	"os"

	ferrors "finledger/internal/errors"
	"finledger/internal/slogutil"
)

// UpgradeFailurePolicy decides what Open does when the store cannot be brought
// to the latest schema version. Returning nil asks Open to retry once; any
// error is returned to the caller unchanged.
type UpgradeFailurePolicy interface {
	HandleUpgradeFailure(ctx context.Context, path string, cause error) error
}

// HaltPolicy surfaces the upgrade error and leaves the file untouched.
type HaltPolicy struct{}

// HandleUpgradeFailure implements UpgradeFailurePolicy.
func (HaltPolicy) HandleUpgradeFailure(_ context.Context, _ string, cause error) error {
	return cause
}

// ResetPolicy destroys the store file and lets Open recreate it empty.
// Everything in the store is lost; meant for local development only.
type ResetPolicy struct {
	Logger *slog.Logger
}

// HandleUpgradeFailure implements UpgradeFailurePolicy.
func (p ResetPolicy) HandleUpgradeFailure(_ context.Context, path string, cause error) error {
	logger := slogutil.OrDiscard(p.Logger)
	logger.Warn("Schema upgrade failed, resetting store",
		"path", path,
		"error", cause,
	)

	for _, f := range []string{path, path + "-wal", path + "-shm"} {
		if err := os.Remove(f); err != nil && !os.IsNotExist(err) {
			return ferrors.New(ferrors.SchemaUpgradeFailed,
				fmt.Sprintf("failed to remove %s during reset", f), err)
		}
	}
	return nil
}

// PolicyForMode returns ResetPolicy for development mode and HaltPolicy otherwise.
func PolicyForMode(development bool, logger *slog.Logger) UpgradeFailurePolicy {
	if development {
		return ResetPolicy{Logger: logger}
	}
	return HaltPolicy{}
}
