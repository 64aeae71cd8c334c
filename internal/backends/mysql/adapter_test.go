package mysql

import (
	"context"
	"os"
	"testing"

	"github.com/joho/godotenv"

	"finledger/internal/backends"
	"finledger/internal/backends/backendtest"
	ferrors "finledger/internal/errors"
	"finledger/internal/storage"
)

// testDSN returns FINLEDGER_TEST_MYSQL_DSN, reading a .env file first if present.
func testDSN(t *testing.T) string {
	t.Helper()
	_ = godotenv.Load()
	dsn := os.Getenv("FINLEDGER_TEST_MYSQL_DSN")
	if dsn == "" {
		t.Skip("FINLEDGER_TEST_MYSQL_DSN not set")
	}
	return dsn
}

func TestConformance(t *testing.T) {
	dsn := testDSN(t)
	backendtest.Run(t, func(t *testing.T) backends.Backend {
		a, err := New(context.Background(), Options{DSN: dsn, UserID: "test-" + storage.NewID(), MaxConns: 2})
		if err != nil {
			t.Fatalf("New() error = %v", err)
		}
		return a
	})
}

func TestInvalidDSN(t *testing.T) {
	_, err := New(context.Background(), Options{DSN: "user:pass@tcp(localhost:3306)"})
	if !ferrors.Is(err, ferrors.ValidationFailed) {
		t.Errorf("New() error = %v, want VALIDATION_FAILED", err)
	}
}
