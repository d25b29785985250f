package miner

import (
	"strconv"
	"strings"

	"github.com/hashfleet/hashfleet/pkg/models"
)

// Lookup helpers over raw vendor payloads. Every accessor is total: a
// missing key, wrong type, or nil container resolves to the zero value so
// one malformed record cannot abort batch processing.

// rawMap returns a nested object, or nil if absent or not an object.
func rawMap(m map[string]any, key string) map[string]any {
	if m == nil {
		return nil
	}
	sub, _ := m[key].(map[string]any)
	return sub
}

// rawSlice returns a nested array, or nil if absent or not an array.
func rawSlice(m map[string]any, key string) []any {
	if m == nil {
		return nil
	}
	s, _ := m[key].([]any)
	return s
}

// rawString returns the first present key as a string. Numbers and booleans
// are stringified; other types resolve to "".
func rawString(m map[string]any, keys ...string) string {
	if m == nil {
		return ""
	}
	for _, k := range keys {
		v, ok := m[k]
		if !ok || v == nil {
			continue
		}
		switch t := v.(type) {
		case string:
			return t
		case float64:
			return strconv.FormatFloat(t, 'f', -1, 64)
		case bool:
			return strconv.FormatBool(t)
		}
	}
	return ""
}

// rawFloat returns the first present key as a float64. Strings holding
// numbers are parsed; vendors are inconsistent about quoting numerics.
func rawFloat(m map[string]any, keys ...string) (float64, bool) {
	if m == nil {
		return 0, false
	}
	for _, k := range keys {
		v, ok := m[k]
		if !ok || v == nil {
			continue
		}
		switch t := v.(type) {
		case float64:
			return t, true
		case string:
			f, err := strconv.ParseFloat(strings.TrimSpace(t), 64)
			if err == nil {
				return f, true
			}
		case bool:
			if t {
				return 1, true
			}
			return 0, true
		}
	}
	return 0, false
}

// rawInt64 is rawFloat truncated to int64.
func rawInt64(m map[string]any, keys ...string) (int64, bool) {
	f, ok := rawFloat(m, keys...)
	if !ok {
		return 0, false
	}
	return int64(f), true
}

// rawBool returns the first present key as a boolean. Accepts true/false,
// nonzero numbers, and the usual string spellings.
func rawBool(m map[string]any, keys ...string) bool {
	if m == nil {
		return false
	}
	for _, k := range keys {
		v, ok := m[k]
		if !ok || v == nil {
			continue
		}
		switch t := v.(type) {
		case bool:
			return t
		case float64:
			return t != 0
		case string:
			s := strings.ToLower(strings.TrimSpace(t))
			return s == "true" || s == "1" || s == "yes" || s == "on"
		}
	}
	return false
}

// firstRecord returns the first element of a cgminer-style section, e.g.
// summ.SUMMARY[0]. Returns nil when the section or array is missing.
func firstRecord(raw models.RawTelemetry, section, list string) map[string]any {
	items := rawSlice(rawMap(raw, section), list)
	if len(items) == 0 {
		return nil
	}
	rec, _ := items[0].(map[string]any)
	return rec
}

// sectionRecords returns all object elements of a cgminer-style section.
func sectionRecords(raw models.RawTelemetry, section, list string) []map[string]any {
	items := rawSlice(rawMap(raw, section), list)
	out := make([]map[string]any, 0, len(items))
	for _, it := range items {
		if rec, ok := it.(map[string]any); ok {
			out = append(out, rec)
		}
	}
	return out
}

// floatList coerces an array of mixed-type readings into floats, dropping
// entries that are not numeric.
func floatList(items []any) []float64 {
	out := make([]float64, 0, len(items))
	for _, it := range items {
		switch t := it.(type) {
		case float64:
			out = append(out, t)
		case string:
			if f, err := strconv.ParseFloat(strings.TrimSpace(t), 64); err == nil {
				out = append(out, f)
			}
		}
	}
	return out
}

// validTemps filters a reading list down to usable sensor values.
func validTemps(items []any) []float64 {
	out := make([]float64, 0, len(items))
	for _, v := range floatList(items) {
		if ValidTemp(v) {
			out = append(out, v)
		}
	}
	return out
}
