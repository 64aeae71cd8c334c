package schema

import (
	"encoding/json"
	"fmt"
	"strings"

	toml "github.com/pelletier/go-toml/v2"
	"gopkg.in/yaml.v3"
)

// Description is the serializable view of the latest schema.
type Description struct {
	Version int        `json:"version" yaml:"version" toml:"version"`
	Tables  []TableDef `json:"tables" yaml:"tables" toml:"tables"`
}

// Describe returns the latest version's table set.
func (r *Registry) Describe() Description {
	latest := r.Latest()
	tables := make([]TableDef, len(latest.Tables))
	copy(tables, latest.Tables)
	return Description{Version: latest.Number, Tables: tables}
}

// Render encodes the description as json, yaml or toml.
func (d Description) Render(format string) ([]byte, error) {
	switch strings.ToLower(format) {
	case "", "json":
		return json.MarshalIndent(d, "", "  ")
	case "yaml", "yml":
		return yaml.Marshal(d)
	case "toml":
		return toml.Marshal(d)
	default:
		return nil, fmt.Errorf("unsupported schema format %q (json, yaml, toml)", format)
	}
}
