package retention

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/BurntSushi/toml"

	"finledger/internal/config"
	"finledger/internal/schema"
)

// Policy is one table's retention window.
type Policy struct {
	Table           string `toml:"table" json:"table"`
	RetentionMonths int    `toml:"retention_months" json:"retentionMonths"`
	Enabled         bool   `toml:"enabled" json:"enabled"`
}

// DefaultPolicies returns the built-in policy list. Only audit logs are
// pruned unless the user opts in.
func DefaultPolicies() []Policy {
	return FromConfig(config.DefaultConfig().Retention)
}

// FromConfig converts the config section into policies.
func FromConfig(cfg config.RetentionConfig) []Policy {
	out := make([]Policy, 0, len(cfg.Policies))
	for _, p := range cfg.Policies {
		out = append(out, Policy{Table: p.Table, RetentionMonths: p.RetentionMonths, Enabled: p.Enabled})
	}
	return out
}

type policyFile struct {
	Policies []Policy `toml:"policy"`
}

// LoadPolicies reads a retention.toml file of [[policy]] entries.
//
//	[[policy]]
//	table = "auditLogs"
//	retention_months = 12
//	enabled = true
func LoadPolicies(path string) ([]Policy, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	var f policyFile
	md, err := toml.Decode(string(data), &f)
	if err != nil {
		return nil, fmt.Errorf("parse %s: %w", path, err)
	}
	if undecoded := md.Undecoded(); len(undecoded) > 0 {
		return nil, fmt.Errorf("parse %s: unknown key %s", path, undecoded[0])
	}
	return f.Policies, nil
}

// WritePolicies saves policies in the LoadPolicies format.
func WritePolicies(path string, policies []Policy) error {
	file, err := os.Create(path)
	if err != nil {
		return err
	}
	if err := toml.NewEncoder(file).Encode(policyFile{Policies: policies}); err != nil {
		file.Close()
		return err
	}
	return file.Close()
}

// Resolve picks the policy source: the configured TOML file when set,
// otherwise the config's own list.
func Resolve(cfg config.RetentionConfig, dataDir string) ([]Policy, error) {
	if cfg.PoliciesFile == "" {
		return FromConfig(cfg), nil
	}
	path := cfg.PoliciesFile
	if !filepath.IsAbs(path) {
		path = filepath.Join(dataDir, path)
	}
	return LoadPolicies(path)
}

// Validate checks every policy against the schema: the table must exist,
// have a date field and a positive window.
func Validate(policies []Policy, registry *schema.Registry) error {
	seen := make(map[string]bool, len(policies))
	for _, p := range policies {
		def, ok := registry.Table(p.Table)
		if !ok {
			return fmt.Errorf("retention policy for unknown table %q", p.Table)
		}
		if def.DateKind == schema.DateNone {
			return fmt.Errorf("table %q has no date field to retain by", p.Table)
		}
		if p.RetentionMonths <= 0 {
			return fmt.Errorf("retention for %q must be at least one month", p.Table)
		}
		if seen[p.Table] {
			return fmt.Errorf("table %q has more than one retention policy", p.Table)
		}
		seen[p.Table] = true
	}
	return nil
}
