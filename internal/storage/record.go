package storage

import (
	"bytes"
	"encoding/json"
	"fmt"
	"strings"
)

// Record is one stored document. Numbers decode as json.Number so amounts
// survive a read-modify-write without float rounding.
type Record map[string]any

// ID returns the record's id field, or "" when it is missing or not a string.
func (r Record) ID() string {
	id, _ := r["id"].(string)
	return id
}

// Field returns the value at a dotted path such as "personal.dependents".
func (r Record) Field(path string) (any, bool) {
	var cur any = map[string]any(r)
	for _, part := range strings.Split(path, ".") {
		m, ok := cur.(map[string]any)
		if !ok {
			if rec, isRec := cur.(Record); isRec {
				m = rec
			} else {
				return nil, false
			}
		}
		cur, ok = m[part]
		if !ok {
			return nil, false
		}
	}
	return cur, true
}

// Clone returns a deep copy of r.
func (r Record) Clone() Record {
	if r == nil {
		return nil
	}
	data, err := json.Marshal(r)
	if err != nil {
		out := make(Record, len(r))
		for k, v := range r {
			out[k] = v
		}
		return out
	}
	out, _ := DecodeRecord(data)
	return out
}

// Decode unmarshals the record into a typed value.
func (r Record) Decode(v any) error {
	data, err := json.Marshal(r)
	if err != nil {
		return err
	}
	return json.Unmarshal(data, v)
}

// EncodeRecord converts a typed value (struct or map) into a Record.
func EncodeRecord(v any) (Record, error) {
	if rec, ok := v.(Record); ok {
		return rec, nil
	}
	data, err := json.Marshal(v)
	if err != nil {
		return nil, fmt.Errorf("failed to encode record: %w", err)
	}
	rec, err := DecodeRecord(data)
	if err != nil {
		return nil, err
	}
	if rec == nil {
		return nil, fmt.Errorf("record must be a JSON object")
	}
	return rec, nil
}

// DecodeRecord parses a JSON object.
func DecodeRecord(data []byte) (Record, error) {
	dec := json.NewDecoder(bytes.NewReader(data))
	dec.UseNumber()
	var rec Record
	if err := dec.Decode(&rec); err != nil {
		return nil, fmt.Errorf("failed to decode record: %w", err)
	}
	return rec, nil
}

func marshalDoc(rec Record) (string, error) {
	data, err := json.Marshal(rec)
	if err != nil {
		return "", fmt.Errorf("failed to encode record %q: %w", rec.ID(), err)
	}
	return string(data), nil
}

// Merge applies an update patch to rec in place. A nil value removes the
// field and the id is never changed.
func Merge(rec Record, fields map[string]any) error {
	patch, err := EncodeRecord(fields)
	if err != nil {
		return err
	}
	for k, v := range patch {
		if k == "id" {
			continue
		}
		if v == nil {
			delete(rec, k)
			continue
		}
		rec[k] = v
	}
	return nil
}
