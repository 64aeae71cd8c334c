// Package audit writes and reads the auditLogs table.
//
// Entries are written inside the caller's transaction so an audited change
// and its log row commit or roll back together.
package audit

import (
	"context"
	"fmt"
	"time"

	"finledger/internal/models"
	"finledger/internal/schema"
	"finledger/internal/storage"
)

// Write appends entry inside tx. tx must include schema.AuditLogs in its scope.
func Write(tx *storage.Tx, entry models.AuditLog) (string, error) {
	if entry.Action == "" {
		return "", fmt.Errorf("audit entry without action")
	}
	if entry.At == "" {
		entry.At = time.Now().UTC().Format(time.RFC3339)
	}
	rec, err := storage.EncodeRecord(entry)
	if err != nil {
		return "", err
	}
	return tx.Add(schema.AuditLogs, rec)
}

// Log is Write with the entry built from its parts and stamped with now.
func Log(tx *storage.Tx, now time.Time, action, table, recordID string, details map[string]any) error {
	_, err := Write(tx, models.NewAuditLog(action, table, recordID, now, details))
	return err
}

// Recent returns up to limit entries, newest first. Action filters when non-empty.
func Recent(ctx context.Context, store *storage.Store, action string, limit int) ([]models.AuditLog, error) {
	q := storage.From(schema.AuditLogs).Sort("at", true).Take(limit)
	if action != "" {
		q = q.Filter("action", storage.OpEq, action)
	}
	recs, err := store.Find(ctx, q)
	if err != nil {
		return nil, err
	}
	out := make([]models.AuditLog, 0, len(recs))
	for _, r := range recs {
		var entry models.AuditLog
		if err := r.Decode(&entry); err != nil {
			return nil, fmt.Errorf("decode audit entry %s: %w", r.ID(), err)
		}
		out = append(out, entry)
	}
	return out, nil
}
