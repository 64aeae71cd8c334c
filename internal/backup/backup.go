// Package backup exports the whole store as one JSON document and restores
// it.
//
// Import is all-or-nothing: every row is checked before anything is written,
// then each table present in the document is cleared and refilled inside a
// single transaction. Tables absent from the document are left alone. An
// import is audited only when the document does not restore auditLogs itself.
package backup

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"sort"
	"time"

	"finledger/internal/audit"
	ferrors "finledger/internal/errors"
	"finledger/internal/models"
	"finledger/internal/schema"
	"finledger/internal/slogutil"
	"finledger/internal/storage"
	"finledger/internal/version"
)

// FormatVersion is written to every export and accepted on import.
const FormatVersion = version.ExportFormat

// Tables lists the exported tables in document order.
var Tables = []string{
	schema.Txns,
	schema.Goals,
	schema.CreditCards,
	schema.Vehicles,
	schema.Investments,
	schema.Policies,
	schema.RentalProperties,
	schema.Tenants,
	schema.Gold,
	schema.Loans,
	schema.Subscriptions,
	schema.HealthProfiles,
	schema.Medicines,
	schema.Wallets,
	schema.FamilyAccounts,
	schema.FamilyTransfers,
	schema.EmergencyFunds,
	schema.AuditLogs,
	schema.TaxRecords,
	schema.Settings,
}

var knownTable = func() map[string]bool {
	m := make(map[string]bool, len(Tables))
	for _, t := range Tables {
		m[t] = true
	}
	return m
}()

// Document is a backup. Tables maps a table name to its rows; a table that is
// not in the map is not part of the backup.
type Document struct {
	ExportedAt string
	Version    string
	Tables     map[string][]storage.Record
}

// MarshalJSON flattens the tables next to exportedAt and version.
func (d *Document) MarshalJSON() ([]byte, error) {
	out := make(map[string]any, len(d.Tables)+2)
	for name, rows := range d.Tables {
		if rows == nil {
			rows = []storage.Record{}
		}
		out[name] = rows
	}
	out["exportedAt"] = d.ExportedAt
	out["version"] = d.Version
	return json.Marshal(out)
}

// UnmarshalJSON reads a backup document and checks every row. Unknown keys,
// rows that are not objects and rows without a string id are rejected with
// one issue each.
func (d *Document) UnmarshalJSON(data []byte) error {
	var raw map[string]json.RawMessage
	if err := json.Unmarshal(data, &raw); err != nil {
		return ferrors.New(ferrors.ValidationFailed, "backup is not a JSON object", err)
	}

	var issues []ferrors.ValidationIssue
	add := func(path, msg string) {
		issues = append(issues, ferrors.ValidationIssue{Path: path, Message: msg})
	}

	doc := Document{Tables: make(map[string][]storage.Record)}
	keys := make([]string, 0, len(raw))
	for k := range raw {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	for _, key := range keys {
		value := raw[key]
		switch {
		case key == "exportedAt":
			if err := json.Unmarshal(value, &doc.ExportedAt); err != nil {
				add(key, "must be a string")
			}
		case key == "version":
			if err := json.Unmarshal(value, &doc.Version); err != nil || doc.Version != FormatVersion {
				add(key, "must be \""+FormatVersion+"\"")
			}
		case !knownTable[key]:
			add(key, "is not a known table")
		default:
			rows, rowIssues := decodeRows(key, value)
			issues = append(issues, rowIssues...)
			doc.Tables[key] = rows
		}
	}

	if _, ok := raw["version"]; !ok {
		add("version", "is required")
	}
	if len(issues) > 0 {
		sort.SliceStable(issues, func(i, j int) bool { return issues[i].Path < issues[j].Path })
		return ferrors.Validation("invalid backup", issues)
	}
	*d = doc
	return nil
}

func decodeRows(table string, data json.RawMessage) ([]storage.Record, []ferrors.ValidationIssue) {
	var items []json.RawMessage
	if err := json.Unmarshal(data, &items); err != nil {
		return nil, []ferrors.ValidationIssue{{Path: table, Message: "must be an array of records"}}
	}

	var issues []ferrors.ValidationIssue
	rows := make([]storage.Record, 0, len(items))
	seen := make(map[string]int, len(items))
	for i, item := range items {
		path := fmt.Sprintf("%s[%d]", table, i)
		dec := json.NewDecoder(bytes.NewReader(item))
		dec.UseNumber()
		var rec storage.Record
		if err := dec.Decode(&rec); err != nil || rec == nil {
			issues = append(issues, ferrors.ValidationIssue{Path: path, Message: "must be a JSON object"})
			continue
		}
		id, ok := rec["id"].(string)
		if !ok || id == "" {
			issues = append(issues, ferrors.ValidationIssue{Path: path + ".id", Message: "must be a non-empty string"})
			continue
		}
		if prev, dup := seen[id]; dup {
			issues = append(issues, ferrors.ValidationIssue{
				Path:    path + ".id",
				Message: fmt.Sprintf("duplicates %s[%d]", table, prev),
			})
			continue
		}
		seen[id] = i
		rows = append(rows, rec)
	}
	return rows, issues
}

// Parse reads a document from r.
func Parse(r io.Reader) (*Document, error) {
	var doc Document
	if err := json.NewDecoder(r).Decode(&doc); err != nil {
		if ferrors.Is(err, ferrors.ValidationFailed) {
			return nil, err
		}
		return nil, ferrors.New(ferrors.ValidationFailed, "backup is not valid JSON", err)
	}
	return &doc, nil
}

// Write encodes doc to w as indented JSON.
func Write(w io.Writer, doc *Document) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(doc)
}

// ImportResult reports how many rows each imported table now holds.
type ImportResult struct {
	Counts map[string]int `json:"counts"`
	Total  int            `json:"total"`
}

// Service exports from and imports into a store.
type Service struct {
	store  *storage.Store
	now    func() time.Time
	logger *slog.Logger
}

// NewService creates a backup service.
func NewService(store *storage.Store, logger *slog.Logger) *Service {
	return &Service{store: store, now: time.Now, logger: slogutil.OrDiscard(logger)}
}

// Export reads every table in one transaction so the snapshot is consistent.
func (s *Service) Export(ctx context.Context) (*Document, error) {
	doc := &Document{
		ExportedAt: s.now().UTC().Format(time.RFC3339),
		Version:    FormatVersion,
		Tables:     make(map[string][]storage.Record, len(Tables)),
	}
	err := s.store.RunTransaction(ctx, Tables, func(tx *storage.Tx) error {
		for _, name := range Tables {
			rows, err := tx.Find(storage.From(name))
			if err != nil {
				return err
			}
			doc.Tables[name] = rows
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	s.logger.Info("Backup exported", "tables", len(doc.Tables))
	return doc, nil
}

// Import replaces the contents of every table present in doc. Either all of
// them are replaced or none are.
func (s *Service) Import(ctx context.Context, doc *Document) (*ImportResult, error) {
	if doc == nil || len(doc.Tables) == 0 {
		return nil, ferrors.Newf(ferrors.ValidationFailed, "backup contains no tables")
	}
	scope := []string{schema.AuditLogs}
	for _, name := range Tables {
		if _, ok := doc.Tables[name]; ok && name != schema.AuditLogs {
			scope = append(scope, name)
		}
	}
	for name := range doc.Tables {
		if !knownTable[name] {
			return nil, ferrors.Validation("invalid backup", []ferrors.ValidationIssue{{Path: name, Message: "is not a known table"}})
		}
	}

	res := &ImportResult{Counts: make(map[string]int, len(doc.Tables))}
	err := s.store.RunTransaction(ctx, scope, func(tx *storage.Tx) error {
		for _, name := range Tables {
			rows, ok := doc.Tables[name]
			if !ok {
				continue
			}
			if _, err := tx.Clear(name); err != nil {
				return err
			}
			ids, err := tx.BulkAdd(name, rows)
			if err != nil {
				return fmt.Errorf("import %s: %w", name, err)
			}
			res.Counts[name] = len(ids)
			res.Total += len(ids)
		}
		// a restored audit log must match the export row for row
		if _, restored := doc.Tables[schema.AuditLogs]; restored {
			return nil
		}
		details := make(map[string]any, len(res.Counts)+1)
		for name, n := range res.Counts {
			details[name] = n
		}
		details["exportedAt"] = doc.ExportedAt
		return audit.Log(tx, s.now(), models.AuditImport, "", "", details)
	})
	if err != nil {
		s.logger.Error("Backup import failed", "error", err)
		return nil, err
	}
	s.logger.Info("Backup imported",
		"tables", len(res.Counts),
		"records", res.Total,
		"exportedAt", doc.ExportedAt,
	)
	return res, nil
}
