// Package schema declares the versioned table set of the finledger store.
//
// Every table holds JSON documents keyed by a string id. A table definition
// lists the fields indexed for equality/range queries and the metadata the
// integrity checker and retention engine rely on (required fields, collection
// and boolean fields, weak foreign keys, the date field). Rows written under an
// older version simply lack newer fields; readers treat those as absent.
package schema

import (
	"context"
	"fmt"
	"regexp"
)

// DateKind describes how a table's date field is encoded.
type DateKind string

const (
	// DateNone means the table has no date field and is never retained by age
	DateNone DateKind = ""
	// DateISO is a YYYY-MM-DD string
	DateISO DateKind = "date"
	// DateTimestamp is an RFC3339 timestamp string
	DateTimestamp DateKind = "timestamp"
	// DateYear is a numeric calendar year
	DateYear DateKind = "year"
)

// ForeignKey is a weak reference: Field holds an id of a row in Table.
// Nothing enforces it at write time.
type ForeignKey struct {
	Field string `json:"field" yaml:"field" toml:"field"`
	Table string `json:"table" yaml:"table" toml:"table"`
}

// TableDef declares one table.
type TableDef struct {
	Name        string       `json:"name" yaml:"name" toml:"name"`
	Indexes     []string     `json:"indexes,omitempty" yaml:"indexes,omitempty" toml:"indexes,omitempty"`
	Required    []string     `json:"required,omitempty" yaml:"required,omitempty" toml:"required,omitempty"`
	DateField   string       `json:"dateField,omitempty" yaml:"dateField,omitempty" toml:"dateField,omitempty"`
	DateKind    DateKind     `json:"dateKind,omitempty" yaml:"dateKind,omitempty" toml:"dateKind,omitempty"`
	Collections []string     `json:"collections,omitempty" yaml:"collections,omitempty" toml:"collections,omitempty"`
	Booleans    []string     `json:"booleans,omitempty" yaml:"booleans,omitempty" toml:"booleans,omitempty"`
	ForeignKeys []ForeignKey `json:"foreignKeys,omitempty" yaml:"foreignKeys,omitempty" toml:"foreignKeys,omitempty"`
}

// Migrator is the write surface a version's upgrade hook runs against.
// Both operations must be safe to repeat.
type Migrator interface {
	// Rewrite calls fn for every document in table and stores the ones fn reports as changed.
	Rewrite(ctx context.Context, table string, fn func(doc map[string]any) (bool, error)) (int, error)
	// CopyTable upserts every row of from into to. A missing source table copies nothing.
	CopyTable(ctx context.Context, from, to string) (int, error)
}

// Version is the complete table set at one schema version.
type Version struct {
	Number  int
	Tables  []TableDef
	Dropped []string
	// Upgrade runs after the version's tables exist and before Dropped tables are removed.
	Upgrade func(ctx context.Context, m Migrator) error
}

// Table returns the named table of this version.
func (v Version) Table(name string) (TableDef, bool) {
	for _, t := range v.Tables {
		if t.Name == name {
			return t, true
		}
	}
	return TableDef{}, false
}

var (
	identPattern = regexp.MustCompile(`^[A-Za-z_][A-Za-z0-9_]*$`)
	fieldPattern = regexp.MustCompile(`^[A-Za-z_][A-Za-z0-9_]*(\.[A-Za-z_][A-Za-z0-9_]*)*$`)
)

// ValidTableName reports whether name can be used as a table identifier.
func ValidTableName(name string) bool {
	return identPattern.MatchString(name)
}

// ValidField reports whether name is a (possibly dotted) document field path.
func ValidField(name string) bool {
	return fieldPattern.MatchString(name)
}

// Registry holds the ordered list of declared versions.
type Registry struct {
	versions []Version
}

// NewRegistry creates an empty registry.
func NewRegistry() *Registry {
	return &Registry{}
}

// Declare appends version v. Numbers must strictly increase.
func (r *Registry) Declare(v Version) error {
	if v.Number <= 0 {
		return fmt.Errorf("schema version must be positive, got %d", v.Number)
	}
	if n := len(r.versions); n > 0 && v.Number <= r.versions[n-1].Number {
		return fmt.Errorf("schema version %d must be greater than %d", v.Number, r.versions[n-1].Number)
	}

	seen := make(map[string]bool, len(v.Tables))
	for _, t := range v.Tables {
		if !ValidTableName(t.Name) {
			return fmt.Errorf("version %d: invalid table name %q", v.Number, t.Name)
		}
		if seen[t.Name] {
			return fmt.Errorf("version %d: table %q declared twice", v.Number, t.Name)
		}
		seen[t.Name] = true
		if err := validateTable(t); err != nil {
			return fmt.Errorf("version %d: %w", v.Number, err)
		}
	}
	for _, d := range v.Dropped {
		if seen[d] {
			return fmt.Errorf("version %d: table %q is both declared and dropped", v.Number, d)
		}
		if !ValidTableName(d) {
			return fmt.Errorf("version %d: invalid dropped table name %q", v.Number, d)
		}
	}

	r.versions = append(r.versions, v)
	return nil
}

// MustDeclare is Declare that panics on error, for static registries.
func (r *Registry) MustDeclare(v Version) *Registry {
	if err := r.Declare(v); err != nil {
		panic(err)
	}
	return r
}

func validateTable(t TableDef) error {
	fields := make([]string, 0, len(t.Indexes)+len(t.Required)+len(t.Collections)+len(t.Booleans)+1)
	fields = append(fields, t.Indexes...)
	fields = append(fields, t.Required...)
	fields = append(fields, t.Collections...)
	fields = append(fields, t.Booleans...)
	if t.DateField != "" {
		fields = append(fields, t.DateField)
	}
	for _, fk := range t.ForeignKeys {
		fields = append(fields, fk.Field)
	}
	for _, f := range fields {
		if !ValidField(f) {
			return fmt.Errorf("table %q: invalid field %q", t.Name, f)
		}
	}
	if (t.DateField == "") != (t.DateKind == DateNone) {
		return fmt.Errorf("table %q: dateField and dateKind must be set together", t.Name)
	}
	return nil
}

// Versions returns the declared versions in order.
func (r *Registry) Versions() []Version {
	out := make([]Version, len(r.versions))
	copy(out, r.versions)
	return out
}

// Latest returns the highest declared version, or the zero Version if none.
func (r *Registry) Latest() Version {
	if len(r.versions) == 0 {
		return Version{}
	}
	return r.versions[len(r.versions)-1]
}

// Table returns the latest definition of the named table.
func (r *Registry) Table(name string) (TableDef, bool) {
	return r.Latest().Table(name)
}

// TableNames returns the latest table names in declaration order.
func (r *Registry) TableNames() []string {
	latest := r.Latest()
	names := make([]string, len(latest.Tables))
	for i, t := range latest.Tables {
		names[i] = t.Name
	}
	return names
}

// Referrers returns the foreign keys of every latest table that point at table.
func (r *Registry) Referrers(table string) map[string][]ForeignKey {
	out := make(map[string][]ForeignKey)
	for _, t := range r.Latest().Tables {
		for _, fk := range t.ForeignKeys {
			if fk.Table == table {
				out[t.Name] = append(out[t.Name], fk)
			}
		}
	}
	return out
}
