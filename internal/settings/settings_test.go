package settings

import (
	"context"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"golang.org/x/crypto/bcrypt"

	"finledger/internal/audit"
	ferrors "finledger/internal/errors"
	"finledger/internal/models"
	"finledger/internal/schema"
	"finledger/internal/storage"
	"finledger/internal/testutil"
)

func newTestService(t *testing.T) (*Service, *storage.Store) {
	t.Helper()
	s := testutil.OpenStore(t)
	svc := NewService(s, nil)
	svc.cost = bcrypt.MinCost
	svc.now = func() time.Time { return time.Date(2026, 10, 16, 9, 0, 0, 0, time.UTC) }
	return svc, s
}

func intPtr(n int) *int       { return &n }
func strPtr(s string) *string { return &s }

func TestGetCreatesDefaults(t *testing.T) {
	svc, store := newTestService(t)
	ctx := context.Background()

	if rec, _ := store.Get(ctx, schema.Settings, schema.SettingsID); rec != nil {
		t.Fatal("settings row exists before first access")
	}
	got, err := svc.Get(ctx)
	if err != nil {
		t.Fatalf("Get() error = %v", err)
	}
	if got.AutoLockMinutes != 5 || got.MaxFailedAttempts != 5 || got.TaxRegime != models.TaxRegimeNew {
		t.Errorf("defaults = %+v", got)
	}
	if !got.InflationRate.Equal(decimal.NewFromInt(6)) || !got.EducationInflationRate.Equal(decimal.NewFromInt(10)) {
		t.Errorf("inflation defaults = %s / %s", got.InflationRate, got.EducationInflationRate)
	}
	if got.PrivacyMask || got.Currency != "INR" || got.EmergencyContacts == nil {
		t.Errorf("defaults = %+v", got)
	}
	if rec, _ := store.Get(ctx, schema.Settings, schema.SettingsID); rec == nil {
		t.Error("Get() did not persist the settings row")
	}
}

func TestUpdate(t *testing.T) {
	svc, store := newTestService(t)
	ctx := context.Background()

	rate := decimal.RequireFromString("7.5")
	got, err := svc.Update(ctx, Patch{
		AutoLockMinutes: intPtr(10),
		TaxRegime:       strPtr(models.TaxRegimeOld),
		InflationRate:   &rate,
		Dependents:      &[]models.Dependent{{Name: "Asha", Relation: "child", Age: 4}},
	})
	if err != nil {
		t.Fatalf("Update() error = %v", err)
	}
	if got.AutoLockMinutes != 10 || got.TaxRegime != "old" || !got.InflationRate.Equal(rate) || len(got.Dependents) != 1 {
		t.Errorf("Update() = %+v", got)
	}
	if got.MaxFailedAttempts != 5 {
		t.Error("unset field changed")
	}

	again, _ := svc.Get(ctx)
	if again.AutoLockMinutes != 10 || again.Dependents[0].Name != "Asha" {
		t.Errorf("Get() after Update() = %+v", again)
	}

	entries, err := audit.Recent(ctx, store, models.AuditSettingsUpdate, 5)
	if err != nil || len(entries) != 1 {
		t.Fatalf("audit entries = %v, %v", entries, err)
	}
	fields, _ := entries[0].Details["fields"].([]any)
	if len(fields) != 4 {
		t.Errorf("audited fields = %v", entries[0].Details)
	}
}

func TestUpdateRejectsOutOfRange(t *testing.T) {
	negative := decimal.NewFromInt(-1)
	tests := []struct {
		name  string
		patch Patch
	}{
		{"auto lock too low", Patch{AutoLockMinutes: intPtr(0)}},
		{"auto lock too high", Patch{AutoLockMinutes: intPtr(11)}},
		{"failed attempts too high", Patch{MaxFailedAttempts: intPtr(21)}},
		{"unknown regime", Patch{TaxRegime: strPtr("flat")}},
		{"negative inflation", Patch{InflationRate: &negative}},
		{"nameless contact", Patch{EmergencyContacts: &[]models.EmergencyContact{{Phone: "123"}}}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			svc, store := newTestService(t)
			ctx := context.Background()
			before, _ := svc.Get(ctx)

			_, err := svc.Update(ctx, tt.patch)
			if !ferrors.Is(err, ferrors.InvalidSetting) {
				t.Fatalf("Update() error = %v, want INVALID_SETTING", err)
			}
			after, _ := svc.Get(ctx)
			if after.AutoLockMinutes != before.AutoLockMinutes || after.TaxRegime != before.TaxRegime ||
				!after.InflationRate.Equal(before.InflationRate) || len(after.EmergencyContacts) != 0 {
				t.Errorf("rejected update was written: %+v", after)
			}
			if n, _ := store.Count(ctx, storage.From(schema.AuditLogs)); n != 0 {
				t.Errorf("rejected update left %d audit entries", n)
			}
		})
	}
}

func TestPINAndRevealSecret(t *testing.T) {
	svc, store := newTestService(t)
	ctx := context.Background()

	if ok, _ := svc.VerifyPIN(ctx, "1234"); ok {
		t.Error("VerifyPIN() matched with no PIN set")
	}
	for _, bad := range []string{"12", "12345678901", "12a4"} {
		if err := svc.SetPIN(ctx, bad); !ferrors.Is(err, ferrors.InvalidSetting) {
			t.Errorf("SetPIN(%q) error = %v", bad, err)
		}
	}
	if err := svc.SetPIN(ctx, "4821"); err != nil {
		t.Fatalf("SetPIN() error = %v", err)
	}
	if ok, _ := svc.VerifyPIN(ctx, "4821"); !ok {
		t.Error("VerifyPIN() rejected the right PIN")
	}
	if ok, _ := svc.VerifyPIN(ctx, "4822"); ok {
		t.Error("VerifyPIN() accepted a wrong PIN")
	}

	g, _ := svc.Get(ctx)
	if g.PINHash == "" || g.PINHash == "4821" {
		t.Errorf("PINHash = %q", g.PINHash)
	}

	if err := svc.SetRevealSecret(ctx, "short"); !ferrors.Is(err, ferrors.InvalidSetting) {
		t.Errorf("SetRevealSecret(short) error = %v", err)
	}
	if err := svc.SetRevealSecret(ctx, "open sesame"); err != nil {
		t.Fatal(err)
	}
	if ok, _ := svc.VerifyRevealSecret(ctx, "open sesame"); !ok {
		t.Error("VerifyRevealSecret() rejected the right secret")
	}

	entries, _ := audit.Recent(ctx, store, "", 10)
	if len(entries) != 2 {
		t.Errorf("audit entries = %d, want 2", len(entries))
	}
	for _, e := range entries {
		if len(e.Details) != 0 {
			t.Errorf("secret audit entry carries details: %v", e.Details)
		}
	}
}

func TestReset(t *testing.T) {
	svc, _ := newTestService(t)
	ctx := context.Background()

	if _, err := svc.Update(ctx, Patch{AutoLockMinutes: intPtr(2), Profile: &models.Profile{Name: "R"}}); err != nil {
		t.Fatal(err)
	}
	if err := svc.SetPIN(ctx, "0000"); err != nil {
		t.Fatal(err)
	}
	got, err := svc.Reset(ctx)
	if err != nil {
		t.Fatalf("Reset() error = %v", err)
	}
	if got.AutoLockMinutes != 5 || got.PINHash != "" || got.Profile != nil {
		t.Errorf("Reset() = %+v", got)
	}
	if ok, _ := svc.VerifyPIN(ctx, "0000"); ok {
		t.Error("PIN survived Reset()")
	}
}
