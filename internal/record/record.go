// Package record provides a schema-flexible view over the nested JSON
// documents returned by the Conta Azul API. Accessors never panic: a missing
// or mistyped field resolves to the zero value (or nil for pointers), so
// flattening stays total over partially-populated documents.
package record

import (
	"encoding/json"
	"time"
)

// CivilTZ is the fixed civil timezone all timestamps are normalized to before
// comparison. Naive values coming from the API are assumed to be in this zone.
var CivilTZ = loadCivilTZ()

func loadCivilTZ() *time.Location {
	loc, err := time.LoadLocation("America/Sao_Paulo")
	if err != nil {
		return time.FixedZone("-03", -3*60*60)
	}
	return loc
}

// Record is one source document (or sub-document).
type Record map[string]interface{}

// Decode parses a JSON object into a Record.
func Decode(data []byte) (Record, error) {
	var rec Record
	if err := json.Unmarshal(data, &rec); err != nil {
		return nil, err
	}
	return rec, nil
}

// Has reports whether the key is present, regardless of its value.
func (r Record) Has(key string) bool {
	if r == nil {
		return false
	}
	_, ok := r[key]
	return ok
}

// Get returns the raw value for key, or nil.
func (r Record) Get(key string) interface{} {
	if r == nil {
		return nil
	}
	return r[key]
}

// Str returns the string value for key, or nil when absent or not a string.
func (r Record) Str(key string) *string {
	if r == nil {
		return nil
	}
	if s, ok := r[key].(string); ok {
		return &s
	}
	return nil
}

// Float returns the numeric value for key, or nil. JSON numbers decode as
// float64; integer values stored as float64 are accepted too.
func (r Record) Float(key string) *float64 {
	if r == nil {
		return nil
	}
	switch v := r[key].(type) {
	case float64:
		return &v
	case int:
		f := float64(v)
		return &f
	case int64:
		f := float64(v)
		return &f
	case json.Number:
		if f, err := v.Float64(); err == nil {
			return &f
		}
	}
	return nil
}

// Int returns the value for key as an int64, or nil.
func (r Record) Int(key string) *int64 {
	f := r.Float(key)
	if f == nil {
		return nil
	}
	n := int64(*f)
	return &n
}

// Bool returns the boolean value for key, or nil.
func (r Record) Bool(key string) *bool {
	if r == nil {
		return nil
	}
	if b, ok := r[key].(bool); ok {
		return &b
	}
	return nil
}

// Child returns the nested object under key. Absent, null or non-object
// values yield a nil Record, which is itself safe to traverse further.
func (r Record) Child(key string) Record {
	if r == nil {
		return nil
	}
	switch v := r[key].(type) {
	case map[string]interface{}:
		return Record(v)
	case Record:
		return v
	}
	return nil
}

// Slice returns the list of nested objects under key. Non-object elements
// are skipped.
func (r Record) Slice(key string) []Record {
	if r == nil {
		return nil
	}
	raw, ok := r[key].([]interface{})
	if !ok {
		return nil
	}
	out := make([]Record, 0, len(raw))
	for _, el := range raw {
		if m, ok := el.(map[string]interface{}); ok {
			out = append(out, Record(m))
		}
	}
	return out
}

// Composition resolves a field that arrives either as a structured object or
// as a JSON-encoded string containing one (the settlement value-composition
// case). An undecodable string yields nil, never an error: the caller emits
// null composition fields and keeps the row.
func (r Record) Composition(key string) Record {
	if r == nil {
		return nil
	}
	switch v := r[key].(type) {
	case map[string]interface{}:
		return Record(v)
	case string:
		var m map[string]interface{}
		if err := json.Unmarshal([]byte(v), &m); err != nil {
			return nil
		}
		return Record(m)
	}
	return nil
}

// DateOnly truncates a timestamp string to its leading YYYY-MM-DD portion.
// Values of 10 characters or fewer pass through untouched. Calendar-day
// normalization used by several transformers.
func DateOnly(s *string) *string {
	if s == nil {
		return nil
	}
	if len(*s) <= 10 {
		return s
	}
	d := (*s)[:10]
	return &d
}

// timestampLayouts are tried in order by ParseTimestamp. Layouts without a
// zone are interpreted in CivilTZ.
var timestampLayouts = []struct {
	layout string
	naive  bool
}{
	{time.RFC3339Nano, false},
	{time.RFC3339, false},
	{"2006-01-02T15:04:05", true},
	{"2006-01-02 15:04:05", true},
	{"2006-01-02", true},
}

// ParseTimestamp parses the timestamp formats observed in API payloads:
// ISO-8601 with Z or explicit offset, bare date-time, bare date. The second
// return is false when no layout matches. Zone-aware values are converted to
// CivilTZ so comparisons are stable across runs mixing naive and aware input.
func ParseTimestamp(s string) (time.Time, bool) {
	for _, l := range timestampLayouts {
		if l.naive {
			if t, err := time.ParseInLocation(l.layout, s, CivilTZ); err == nil {
				return t, true
			}
			continue
		}
		if t, err := time.Parse(l.layout, s); err == nil {
			return t.In(CivilTZ), true
		}
	}
	return time.Time{}, false
}
