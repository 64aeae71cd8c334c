// Package settings owns the GlobalSettings singleton.
//
// The row is created with defaults the first time it is read. Every change is
// validated against the model bounds and committed together with an auditLogs
// entry.
package settings

import (
	"context"
	"log/slog"
	"sort"
	"time"

	"github.com/shopspring/decimal"

	"finledger/internal/audit"
	ferrors "finledger/internal/errors"
	"finledger/internal/models"
	"finledger/internal/schema"
	"finledger/internal/slogutil"
	"finledger/internal/storage"
)

// Patch is a partial settings update. Nil fields are left unchanged.
type Patch struct {
	AutoLockMinutes        *int                       `json:"autoLockMinutes,omitempty"`
	MaxFailedAttempts      *int                       `json:"maxFailedAttempts,omitempty"`
	PrivacyMask            *bool                      `json:"privacyMask,omitempty"`
	TaxRegime              *string                    `json:"taxRegime,omitempty"`
	InflationRate          *decimal.Decimal           `json:"inflationRate,omitempty"`
	EducationInflationRate *decimal.Decimal           `json:"educationInflationRate,omitempty"`
	EmergencyContacts      *[]models.EmergencyContact `json:"emergencyContacts,omitempty"`
	Dependents             *[]models.Dependent        `json:"dependents,omitempty"`
	Profile                *models.Profile            `json:"profile,omitempty"`
}

// apply copies the set fields onto s and returns their names.
func (p Patch) apply(s *models.GlobalSettings) []string {
	var changed []string
	set := func(name string, ok bool) {
		if ok {
			changed = append(changed, name)
		}
	}
	if p.AutoLockMinutes != nil {
		s.AutoLockMinutes = *p.AutoLockMinutes
	}
	set("autoLockMinutes", p.AutoLockMinutes != nil)
	if p.MaxFailedAttempts != nil {
		s.MaxFailedAttempts = *p.MaxFailedAttempts
	}
	set("maxFailedAttempts", p.MaxFailedAttempts != nil)
	if p.PrivacyMask != nil {
		s.PrivacyMask = *p.PrivacyMask
	}
	set("privacyMask", p.PrivacyMask != nil)
	if p.TaxRegime != nil {
		s.TaxRegime = *p.TaxRegime
	}
	set("taxRegime", p.TaxRegime != nil)
	if p.InflationRate != nil {
		s.InflationRate = *p.InflationRate
	}
	set("inflationRate", p.InflationRate != nil)
	if p.EducationInflationRate != nil {
		s.EducationInflationRate = *p.EducationInflationRate
	}
	set("educationInflationRate", p.EducationInflationRate != nil)
	if p.EmergencyContacts != nil {
		s.EmergencyContacts = append([]models.EmergencyContact{}, *p.EmergencyContacts...)
	}
	set("emergencyContacts", p.EmergencyContacts != nil)
	if p.Dependents != nil {
		s.Dependents = append([]models.Dependent{}, *p.Dependents...)
	}
	set("dependents", p.Dependents != nil)
	if p.Profile != nil {
		profile := *p.Profile
		s.Profile = &profile
	}
	set("profile", p.Profile != nil)
	sort.Strings(changed)
	return changed
}

// Service reads and writes the settings row of a store.
type Service struct {
	store  *storage.Store
	now    func() time.Time
	cost   int
	logger *slog.Logger
}

// NewService creates a settings service.
func NewService(store *storage.Store, logger *slog.Logger) *Service {
	return &Service{
		store:  store,
		now:    time.Now,
		cost:   defaultCost,
		logger: slogutil.OrDiscard(logger),
	}
}

var writeScope = []string{schema.Settings, schema.AuditLogs}

// Load returns the settings inside tx, creating the row with defaults when
// it does not exist yet.
func Load(tx *storage.Tx, now time.Time) (models.GlobalSettings, error) {
	rec, err := tx.Get(schema.Settings, schema.SettingsID)
	if err != nil {
		return models.GlobalSettings{}, err
	}
	if rec == nil {
		s := models.DefaultSettings(now)
		return s, Save(tx, s)
	}
	var s models.GlobalSettings
	if err := rec.Decode(&s); err != nil {
		return s, ferrors.New(ferrors.InternalError, "stored settings are unreadable", err)
	}
	if s.EmergencyContacts == nil {
		s.EmergencyContacts = []models.EmergencyContact{}
	}
	if s.Dependents == nil {
		s.Dependents = []models.Dependent{}
	}
	return s, nil
}

// Save writes s as the singleton row inside tx.
func Save(tx *storage.Tx, s models.GlobalSettings) error {
	s.ID = schema.SettingsID
	rec, err := storage.EncodeRecord(s)
	if err != nil {
		return err
	}
	_, err = tx.Put(schema.Settings, rec)
	return err
}

// Get returns the current settings, creating them on first access.
func (s *Service) Get(ctx context.Context) (models.GlobalSettings, error) {
	var out models.GlobalSettings
	err := s.store.RunTransaction(ctx, []string{schema.Settings}, func(tx *storage.Tx) error {
		var err error
		out, err = Load(tx, s.now())
		return err
	})
	return out, err
}

// Update applies p. Values outside their allowed range fail with
// INVALID_SETTING and nothing is written.
func (s *Service) Update(ctx context.Context, p Patch) (models.GlobalSettings, error) {
	var out models.GlobalSettings
	err := s.store.RunTransaction(ctx, writeScope, func(tx *storage.Tx) error {
		now := s.now()
		cur, err := Load(tx, now)
		if err != nil {
			return err
		}
		changed := p.apply(&cur)
		if len(changed) == 0 {
			out = cur
			return nil
		}
		if issues := models.Check("", cur); len(issues) > 0 {
			return ferrors.New(ferrors.InvalidSetting, "settings out of range", nil).WithDetails(issues)
		}
		cur.UpdatedAt = now.UTC().Format(time.RFC3339)
		if err := Save(tx, cur); err != nil {
			return err
		}
		out = cur
		return audit.Log(tx, now, models.AuditSettingsUpdate, schema.Settings, schema.SettingsID,
			map[string]any{"fields": changed})
	})
	if err != nil {
		return models.GlobalSettings{}, err
	}
	s.logger.Info("Settings updated")
	return out, nil
}

// Reset restores every setting to its default. Secrets are cleared.
func (s *Service) Reset(ctx context.Context) (models.GlobalSettings, error) {
	var out models.GlobalSettings
	err := s.store.RunTransaction(ctx, writeScope, func(tx *storage.Tx) error {
		now := s.now()
		out = models.DefaultSettings(now)
		if err := Save(tx, out); err != nil {
			return err
		}
		return audit.Log(tx, now, models.AuditSettingsReset, schema.Settings, schema.SettingsID, nil)
	})
	if err != nil {
		return models.GlobalSettings{}, err
	}
	s.logger.Warn("Settings reset to defaults")
	return out, nil
}
