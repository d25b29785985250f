// Package miner normalizes heterogeneous vendor telemetry payloads into the
// canonical Device record and derives the display rows and fleet KPIs the
// dashboard is built from. All functions are pure and total: malformed input
// resolves to documented defaults, never to a panic or an error.
package miner

import (
	"fmt"
	"math"
	"strconv"
	"strings"

	"github.com/hashfleet/hashfleet/pkg/models"
)

// HashrateUnits is the fixed ordered unit scale. Scaling advances through it
// by repeated division by 1000.
var HashrateUnits = []string{"H/s", "KH/s", "MH/s", "GH/s", "TH/s", "PH/s", "EH/s", "ZH/s"}

// Placeholder is the display value for fields that could not be parsed.
const Placeholder = "-"

// Uptime values above this are milliseconds, not seconds. Seconds-based
// uptime cannot plausibly exceed ~30 years; anything larger has already been
// multiplied by 1000 by the firmware.
const elapsedMillisThreshold = 1e9

// invalidTempSentinel marks a disconnected temperature sensor.
const invalidTempSentinel = -273

// UnitIndex returns the position of unit in the hashrate scale, or -1 if the
// unit is not recognized. Accepts vendor spellings like "GHS" and "ghs".
func UnitIndex(unit string) int {
	c := CanonicalUnit(unit)
	for i, u := range HashrateUnits {
		if u == c {
			return i
		}
	}
	return -1
}

// CanonicalUnit maps vendor unit spellings ("GHS", "ghs", "GH") onto the
// canonical scale ("GH/s"). Unrecognized strings are returned unchanged.
func CanonicalUnit(unit string) string {
	s := strings.ToUpper(strings.TrimSpace(unit))
	s = strings.TrimSuffix(s, "/S")
	if len(s) > 1 {
		s = strings.TrimSuffix(s, "S")
	}
	switch s {
	case "H", "KH", "MH", "GH", "TH", "PH", "EH", "ZH":
		return s + "/s"
	}
	return unit
}

// ScaleHashrate repeatedly divides value by 1000 while it is >= 1000 and a
// larger unit exists, returning the scaled value and its unit. An unknown
// unit is passed through untouched so value and unit never separate.
func ScaleHashrate(value float64, unit string) (float64, string) {
	idx := UnitIndex(unit)
	if idx < 0 {
		return value, unit
	}
	for value >= 1000 && idx < len(HashrateUnits)-1 {
		value /= 1000
		idx++
	}
	return value, HashrateUnits[idx]
}

// FormatHashrate renders a (value, unit) pair for display. Zero values or a
// missing unit yield the placeholder dash. Whole numbers are formatted with
// no decimals, fractional ones with two.
func FormatHashrate(value float64, unit string) string {
	if unit == "" || value == 0 || math.IsNaN(value) {
		return Placeholder
	}
	v, u := ScaleHashrate(value, unit)
	if v == math.Trunc(v) {
		return fmt.Sprintf("%.0f %s", v, u)
	}
	return fmt.Sprintf("%.2f %s", v, u)
}

// ToGHS converts a (value, unit) pair to GH/s. Unknown units yield 0 because
// a magnitude without a scale cannot be summed meaningfully.
func ToGHS(value float64, unit string) float64 {
	idx := UnitIndex(unit)
	if idx < 0 {
		return 0
	}
	ghs := UnitIndex("GH/s")
	for idx < ghs {
		value /= 1000
		idx++
	}
	for idx > ghs {
		value *= 1000
		idx--
	}
	return value
}

// NormalizeElapsed converts an uptime reading of unknown magnitude to
// seconds. Values above the millisecond threshold get exactly one division
// by 1000; the guard is one-shot so a value can never be scaled twice.
func NormalizeElapsed(v float64) int64 {
	if v <= 0 || math.IsNaN(v) {
		return 0
	}
	if v > elapsedMillisThreshold {
		v /= 1000
	}
	return int64(v)
}

// FormatElapsed renders an uptime in seconds as HH:MM:SS. Hours are not
// wrapped at 24 so multi-day uptimes stay readable.
func FormatElapsed(seconds int64) string {
	if seconds <= 0 {
		return Placeholder
	}
	h := seconds / 3600
	m := (seconds % 3600) / 60
	s := seconds % 60
	return fmt.Sprintf("%02d:%02d:%02d", h, m, s)
}

// FormatTempChip groups chip temperature readings into consecutive quads
// (one board's four sensors, inlet pair then outlet pair), reports
// max(max(a,b), max(c,d)) per quad, and joins the maxima with "/". Fewer
// than four readings yield the placeholder; a trailing partial quad is
// ignored, never an error.
func FormatTempChip(temps []float64) string {
	if len(temps) < 4 {
		return Placeholder
	}
	groups := make([]string, 0, len(temps)/4)
	for i := 0; i+4 <= len(temps); i += 4 {
		inlet := math.Max(temps[i], temps[i+1])
		outlet := math.Max(temps[i+2], temps[i+3])
		groups = append(groups, strconv.FormatFloat(math.Max(inlet, outlet), 'f', -1, 64))
	}
	return strings.Join(groups, "/")
}

// FormatFans joins fan readings with "/". An empty list yields the placeholder.
func FormatFans(fans []float64) string {
	if len(fans) == 0 {
		return Placeholder
	}
	parts := make([]string, len(fans))
	for i, f := range fans {
		parts[i] = strconv.FormatFloat(f, 'f', -1, 64)
	}
	return strings.Join(parts, "/")
}

// ValidTemp reports whether a sensor reading is usable. Disconnected sensors
// report -273 or below.
func ValidTemp(v float64) bool {
	return !math.IsNaN(v) && v > invalidTempSentinel
}

// pcbFamilies maps control-board family prefixes to short codes. Checked in
// order against the upper-cased prefix of the stripped PCB string.
var pcbFamilies = []struct {
	prefix string
	code   string
}{
	{"BEAGLE", "BB"},
	{"XILINX", "XIL"},
	{"AML", "AML"},
	{"CVITEK", "CVC"},
}

// NormalizePCB strips everything after the first underscore and classifies
// the remaining prefix into a known control-board family short code.
// Unknown families pass through as the stripped prefix.
func NormalizePCB(raw string) string {
	s := raw
	if i := strings.Index(s, "_"); i >= 0 {
		s = s[:i]
	}
	up := strings.ToUpper(s)
	for _, f := range pcbFamilies {
		if strings.HasPrefix(up, f.prefix) {
			return f.code
		}
	}
	return s
}

// StripPoolScheme removes the stratum scheme prefix from a pool URL for
// compact display. The raw value is kept separately for clipboard copy.
func StripPoolScheme(url string) string {
	for _, scheme := range []string{"stratum+tcp://", "stratum+ssl://", "stratum2+tcp://"} {
		if strings.HasPrefix(url, scheme) {
			return url[len(scheme):]
		}
	}
	return url
}

// Vocabularies for pool alive classification. Matched case-insensitively;
// anything outside both sets is unknown, never assumed dead.
var (
	aliveTokens = map[string]bool{
		"alive": true, "active": true, "true": true, "1": true,
		"y": true, "yes": true, "ok": true, "connected": true,
	}
	deadTokens = map[string]bool{
		"dead": true, "inactive": true, "false": true, "0": true,
		"n": true, "no": true, "disconnected": true, "rejecting": true,
	}
)

// ClassifyAlive maps a vendor alive indicator (string, bool, or number) onto
// the three-state alive classification.
func ClassifyAlive(v any) models.AliveState {
	var token string
	switch t := v.(type) {
	case nil:
		return models.AliveStateUnknown
	case bool:
		token = strconv.FormatBool(t)
	case float64:
		token = strconv.FormatFloat(t, 'f', -1, 64)
	case string:
		token = t
	default:
		return models.AliveStateUnknown
	}
	token = strings.ToLower(strings.TrimSpace(token))
	switch {
	case aliveTokens[token]:
		return models.AliveStateAlive
	case deadTokens[token]:
		return models.AliveStateDead
	default:
		return models.AliveStateUnknown
	}
}

// CompareIP orders two dotted-quad addresses numerically octet by octet.
// Malformed addresses fall back to lexicographic order after any valid ones.
func CompareIP(a, b string) int {
	ao, aok := splitOctets(a)
	bo, bok := splitOctets(b)
	if aok && bok {
		for i := 0; i < 4; i++ {
			if ao[i] != bo[i] {
				if ao[i] < bo[i] {
					return -1
				}
				return 1
			}
		}
		return 0
	}
	if aok {
		return -1
	}
	if bok {
		return 1
	}
	return strings.Compare(a, b)
}

func splitOctets(ip string) ([4]int, bool) {
	var out [4]int
	parts := strings.Split(ip, ".")
	if len(parts) != 4 {
		return out, false
	}
	for i, p := range parts {
		n, err := strconv.Atoi(p)
		if err != nil || n < 0 || n > 255 {
			return out, false
		}
		out[i] = n
	}
	return out, true
}
