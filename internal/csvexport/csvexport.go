// Package csvexport writes transactions as an RFC 4180 CSV file.
package csvexport

import (
	"context"
	"encoding/csv"
	"io"
	"os"
	"strings"

	"finledger/internal/ledger"
	"finledger/internal/models"
)

// Header is the first row of every export.
var Header = []string{"Date", "Description", "Category", "Amount", "Payment Method", "Tags"}

// Lister supplies the transactions to export.
type Lister interface {
	List(ctx context.Context, f ledger.Filter) ([]models.Transaction, error)
}

// Row renders one transaction. Tags are joined with ";".
func Row(t models.Transaction) []string {
	desc := t.Description
	if desc == "" {
		desc = t.Note
	}
	method := t.PaymentMethod
	if method == "" && len(t.PaymentMix) > 0 {
		modes := make([]string, len(t.PaymentMix))
		for i, p := range t.PaymentMix {
			modes[i] = p.Mode
		}
		method = strings.Join(modes, "+")
	}
	return []string{
		t.Date,
		desc,
		t.Category,
		t.Amount.String(),
		method,
		strings.Join(t.Tags, ";"),
	}
}

// Write writes the header and one row per transaction, CRLF-terminated.
func Write(w io.Writer, txns []models.Transaction) error {
	cw := csv.NewWriter(w)
	cw.UseCRLF = true

	if err := cw.Write(Header); err != nil {
		return err
	}
	for _, t := range txns {
		if err := cw.Write(Row(t)); err != nil {
			return err
		}
	}
	cw.Flush()
	return cw.Error()
}

// Export writes the transactions matching f and returns how many were written.
func Export(ctx context.Context, w io.Writer, l Lister, f ledger.Filter) (int, error) {
	txns, err := l.List(ctx, f)
	if err != nil {
		return 0, err
	}
	if err := Write(w, txns); err != nil {
		return 0, err
	}
	return len(txns), nil
}

// ExportFile is Export into a newly created file at path.
func ExportFile(ctx context.Context, path string, l Lister, f ledger.Filter) (int, error) {
	file, err := os.Create(path)
	if err != nil {
		return 0, err
	}
	n, err := Export(ctx, file, l, f)
	if cerr := file.Close(); err == nil {
		err = cerr
	}
	return n, err
}
