package models

import (
	"time"

	"github.com/shopspring/decimal"

	"finledger/internal/schema"
)

// Tax regimes
const (
	TaxRegimeOld = "old"
	TaxRegimeNew = "new"
)

// Settings bounds and defaults
const (
	DefaultAutoLockMinutes   = 5
	MinAutoLockMinutes       = 1
	MaxAutoLockMinutes       = 10
	DefaultMaxFailedAttempts = 5
	MinMaxFailedAttempts     = 1
	MaxMaxFailedAttempts     = 20
)

var (
	// DefaultInflationRate is the general inflation assumption in percent
	DefaultInflationRate = decimal.NewFromInt(6)
	// DefaultEducationInflationRate is the education inflation assumption in percent
	DefaultEducationInflationRate = decimal.NewFromInt(10)
)

// EmergencyContact is someone to reach in an emergency.
type EmergencyContact struct {
	Name     string `json:"name" validate:"required"`
	Relation string `json:"relation,omitempty"`
	Phone    string `json:"phone,omitempty"`
}

// Dependent is a person financially dependent on the user.
type Dependent struct {
	Name     string `json:"name" validate:"required"`
	Relation string `json:"relation,omitempty"`
	Age      int    `json:"age,omitempty" validate:"gte=0"`
}

// Profile is the user's personal profile, filled by preload.
type Profile struct {
	Name        string `json:"name,omitempty"`
	Age         int    `json:"age,omitempty"`
	City        string `json:"city,omitempty"`
	Occupation  string `json:"occupation,omitempty"`
	RiskProfile string `json:"riskProfile,omitempty"`
}

// GlobalSettings is the settings singleton.
type GlobalSettings struct {
	ID string `json:"id"`

	PINHash           string `json:"pinHash,omitempty"`
	AutoLockMinutes   int    `json:"autoLockMinutes" validate:"gte=1,lte=10"`
	MaxFailedAttempts int    `json:"maxFailedAttempts" validate:"gte=1,lte=20"`
	PrivacyMask       bool   `json:"privacyMask"`
	RevealSecretHash  string `json:"revealSecretHash,omitempty"`

	TaxRegime              string          `json:"taxRegime" validate:"oneof=old new"`
	InflationRate          decimal.Decimal `json:"inflationRate" validate:"gte=0,lte=100"`
	EducationInflationRate decimal.Decimal `json:"educationInflationRate" validate:"gte=0,lte=100"`
	Currency               string          `json:"currency"`

	EmergencyContacts []EmergencyContact `json:"emergencyContacts" validate:"dive"`
	Dependents        []Dependent        `json:"dependents" validate:"dive"`
	Profile           *Profile           `json:"profile,omitempty"`

	UpdatedAt string `json:"updatedAt,omitempty"`
}

// DefaultSettings returns the settings row created on first access.
func DefaultSettings(now time.Time) GlobalSettings {
	return GlobalSettings{
		ID:                     schema.SettingsID,
		AutoLockMinutes:        DefaultAutoLockMinutes,
		MaxFailedAttempts:      DefaultMaxFailedAttempts,
		TaxRegime:              TaxRegimeNew,
		InflationRate:          DefaultInflationRate,
		EducationInflationRate: DefaultEducationInflationRate,
		Currency:               schema.DefaultCurrency,
		EmergencyContacts:      []EmergencyContact{},
		Dependents:             []Dependent{},
		UpdatedAt:              now.UTC().Format(time.RFC3339),
	}
}

// Audit actions
const (
	AuditSettingsUpdate = "settings.update"
	AuditSettingsReset  = "settings.reset"
	AuditPINSet         = "settings.pin"
	AuditSecretSet      = "settings.reveal_secret"
	AuditImport         = "backup.import"
	AuditPreload        = "preload.apply"
	AuditAutoFix        = "integrity.autofix"
	AuditRetention      = "retention.execute"
)

// AuditLog records a change made through a service.
type AuditLog struct {
	ID       string         `json:"id"`
	Action   string         `json:"action"`
	Table    string         `json:"table,omitempty"`
	RecordID string         `json:"recordId,omitempty"`
	At       string         `json:"at"`
	Details  map[string]any `json:"details,omitempty"`
}

// NewAuditLog builds an entry stamped with now.
func NewAuditLog(action, table, recordID string, now time.Time, details map[string]any) AuditLog {
	return AuditLog{
		Action:   action,
		Table:    table,
		RecordID: recordID,
		At:       now.UTC().Format(time.RFC3339),
		Details:  details,
	}
}
