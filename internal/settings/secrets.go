package settings

import (
	"context"
	"fmt"
	"time"

	"golang.org/x/crypto/bcrypt"

	"finledger/internal/audit"
	ferrors "finledger/internal/errors"
	"finledger/internal/models"
	"finledger/internal/schema"
	"finledger/internal/storage"
)

const defaultCost = bcrypt.DefaultCost

// PIN length bounds
const (
	MinPINLength    = 4
	MaxPINLength    = 8
	MinSecretLength = 6
)

func validPIN(pin string) bool {
	if len(pin) < MinPINLength || len(pin) > MaxPINLength {
		return false
	}
	for _, r := range pin {
		if r < '0' || r > '9' {
			return false
		}
	}
	return true
}

func (s *Service) hash(secret string) (string, error) {
	hash, err := bcrypt.GenerateFromPassword([]byte(secret), s.cost)
	if err != nil {
		return "", fmt.Errorf("hash secret: %w", err)
	}
	return string(hash), nil
}

// SetPIN stores the bcrypt hash of pin. The PIN must be all digits.
func (s *Service) SetPIN(ctx context.Context, pin string) error {
	if !validPIN(pin) {
		return ferrors.Newf(ferrors.InvalidSetting, "PIN must be %d-%d digits", MinPINLength, MaxPINLength)
	}
	hash, err := s.hash(pin)
	if err != nil {
		return err
	}
	return s.setHash(ctx, models.AuditPINSet, func(g *models.GlobalSettings) { g.PINHash = hash })
}

// VerifyPIN reports whether pin matches the stored hash. Without a PIN set
// nothing matches.
func (s *Service) VerifyPIN(ctx context.Context, pin string) (bool, error) {
	g, err := s.Get(ctx)
	if err != nil {
		return false, err
	}
	return verify(g.PINHash, pin), nil
}

// SetRevealSecret stores the bcrypt hash of the secret that lifts the privacy mask.
func (s *Service) SetRevealSecret(ctx context.Context, secret string) error {
	if len(secret) < MinSecretLength {
		return ferrors.Newf(ferrors.InvalidSetting, "reveal secret must be at least %d characters", MinSecretLength)
	}
	hash, err := s.hash(secret)
	if err != nil {
		return err
	}
	return s.setHash(ctx, models.AuditSecretSet, func(g *models.GlobalSettings) { g.RevealSecretHash = hash })
}

// VerifyRevealSecret reports whether secret matches the stored hash.
func (s *Service) VerifyRevealSecret(ctx context.Context, secret string) (bool, error) {
	g, err := s.Get(ctx)
	if err != nil {
		return false, err
	}
	return verify(g.RevealSecretHash, secret), nil
}

func verify(hash, secret string) bool {
	if hash == "" {
		return false
	}
	return bcrypt.CompareHashAndPassword([]byte(hash), []byte(secret)) == nil
}

func (s *Service) setHash(ctx context.Context, action string, set func(*models.GlobalSettings)) error {
	return s.store.RunTransaction(ctx, writeScope, func(tx *storage.Tx) error {
		now := s.now()
		g, err := Load(tx, now)
		if err != nil {
			return err
		}
		set(&g)
		g.UpdatedAt = now.UTC().Format(time.RFC3339)
		if err := Save(tx, g); err != nil {
			return err
		}
		// the hash itself never goes into the audit trail
		return audit.Log(tx, now, action, schema.Settings, schema.SettingsID, nil)
	})
}
