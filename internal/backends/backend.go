// Package backends defines the record repository every ledger service talks to.
//
// Adapters live in subpackages: local (the embedded SQLite store), memory (an
// in-process stand-in for a remote service), postgres and mysql. Every adapter
// publishes its writes to a live.Hub, so Subscribe behaves the same whichever
// one is configured.
package backends

import (
	"context"

	ferrors "finledger/internal/errors"
	"finledger/internal/live"
	"finledger/internal/schema"
	"finledger/internal/storage"
)

// BackendID uniquely identifies a backend type
type BackendID string

const (
	// BackendLocal is the embedded SQLite store
	BackendLocal BackendID = "local"
	// BackendMemory is the in-process mock remote
	BackendMemory BackendID = "memory"
	// BackendPostgres stores documents in a PostgreSQL JSONB table
	BackendPostgres BackendID = "postgres"
	// BackendMySQL stores documents in a MySQL JSON table
	BackendMySQL BackendID = "mysql"
)

// RecordsTable is the single table remote adapters keep every document in.
const RecordsTable = "finledger_records"

// Backend is the repository interface all adapters implement
type Backend interface {
	// ID returns the unique identifier for this backend
	ID() BackendID

	// Get returns one record, or nil when it does not exist
	Get(ctx context.Context, table, id string) (storage.Record, error)

	// List returns the records matching q
	List(ctx context.Context, q storage.Query) ([]storage.Record, error)

	// Add inserts rec, assigning an id when it has none, and fails if the id exists
	Add(ctx context.Context, table string, rec storage.Record) (string, error)

	// Update merges fields into an existing record and returns the result
	Update(ctx context.Context, table, id string, fields map[string]any) (storage.Record, error)

	// Delete removes a record and reports whether it existed
	Delete(ctx context.Context, table, id string) (bool, error)

	// Subscribe starts a live query over this backend's data
	Subscribe(q storage.Query, fn func(live.Result)) *live.Subscription

	// Close releases the backend's resources and stops its subscriptions
	Close() error
}

// CheckTable rejects table names absent from the registry's latest version.
func CheckTable(registry *schema.Registry, table string) error {
	if _, ok := registry.Table(table); !ok {
		return ferrors.Newf(ferrors.UnknownTable, "unknown table %q", table)
	}
	return nil
}

// PrepareAdd validates the table, copies rec and assigns an id when missing.
// Adapters that are not backed by storage.Tx use it to match its id rules.
func PrepareAdd(registry *schema.Registry, table string, rec storage.Record) (storage.Record, string, error) {
	if err := CheckTable(registry, table); err != nil {
		return nil, "", err
	}
	if rec == nil {
		return nil, "", ferrors.Newf(ferrors.ValidationFailed, "nil record for table %q", table)
	}
	out := rec.Clone()
	id := out.ID()
	if id == "" {
		if v, present := out["id"]; present && v != nil && v != "" {
			return nil, "", ferrors.Newf(ferrors.ValidationFailed, "record id in %q must be a string", table)
		}
		id = storage.NewID()
		out["id"] = id
	}
	return out, id, nil
}

// Duplicate is the error adapters return when Add hits an existing id.
func Duplicate(table, id string, cause error) error {
	return ferrors.New(ferrors.TransactionFailed, table+"/"+id+" already exists", cause)
}

// Missing is the error adapters return when Update addresses no record.
func Missing(table, id string) error {
	return ferrors.Newf(ferrors.NotFound, "%s/%s not found", table, id)
}

// Unavailable wraps a connection failure.
func Unavailable(id BackendID, cause error) error {
	return ferrors.New(ferrors.BackendUnavailable, string(id)+" backend is not reachable", cause)
}
