package testutil

import (
	"encoding/json"
	"regexp"
	"testing"
)

var uuidPattern = regexp.MustCompile(`^[0-9a-f]{8}-[0-9a-f]{4}-[0-9a-f]{4}-[0-9a-f]{4}-[0-9a-f]{12}$`)

// volatileFields are dropped before comparison.
var volatileFields = map[string]bool{
	"createdAt":  true,
	"updatedAt":  true,
	"exportedAt": true,
	"at":         true,
	"duration":   true,
}

// Normalize converts v to plain JSON values, drops volatile timestamp fields
// and replaces generated uuids with "<id>".
func Normalize(t *testing.T, v any) any {
	t.Helper()

	data, err := json.Marshal(v)
	if err != nil {
		t.Fatalf("Failed to marshal data for normalization: %v", err)
	}
	var out any
	if err := json.Unmarshal(data, &out); err != nil {
		t.Fatalf("Failed to unmarshal data for normalization: %v", err)
	}
	return normalizeValue(out)
}

func normalizeValue(v any) any {
	switch val := v.(type) {
	case map[string]any:
		result := make(map[string]any, len(val))
		for k, item := range val {
			if volatileFields[k] {
				continue
			}
			result[k] = normalizeValue(item)
		}
		return result
	case []any:
		result := make([]any, len(val))
		for i, item := range val {
			result[i] = normalizeValue(item)
		}
		return result
	case string:
		if uuidPattern.MatchString(val) {
			return "<id>"
		}
		return val
	default:
		return v
	}
}

// MarshalNormalized normalizes data and marshals it to stable JSON bytes:
// sorted keys, 2-space indentation and a trailing newline.
func MarshalNormalized(t *testing.T, data any) []byte {
	t.Helper()

	// encoding/json writes map keys sorted
	out, err := json.MarshalIndent(Normalize(t, data), "", "  ")
	if err != nil {
		t.Fatalf("Failed to marshal normalized data: %v", err)
	}
	return append(out, '\n')
}
