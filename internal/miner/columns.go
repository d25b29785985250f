package miner

import (
	"strings"

	"github.com/hashfleet/hashfleet/pkg/models"
)

// ColumnGroup buckets table columns by origin.
type ColumnGroup string

const (
	GroupCore          ColumnGroup = "core"
	GroupAPI           ColumnGroup = "api"
	GroupConfiguration ColumnGroup = "configuration"
	GroupFirmware      ColumnGroup = "firmware"
	GroupSerial        ColumnGroup = "serial"
)

// ColumnSpec describes one table column.
type ColumnSpec struct {
	Key   string      `json:"key"`
	Label string      `json:"label"`
	Group ColumnGroup `json:"group"`
}

// Columns is the static field registry. Core columns are always visible;
// the other groups are toggled through DisplayPreferences.
var Columns = []ColumnSpec{
	{ColIP, "IP", GroupCore},
	{ColBrand, "Brand", GroupCore},
	{ColStatus, "Status", GroupCore},

	{ColDeviceType, "Device Type", GroupAPI},
	{ColSubtype, "Subtype", GroupAPI},
	{ColPCBClass, "PCB", GroupAPI},
	{ColHashrate5s, "Hashrate (5s)", GroupAPI},
	{ColHashrate30m, "Hashrate (30m)", GroupAPI},
	{ColHashrateAvg, "Hashrate (avg)", GroupAPI},
	{ColTempChip, "Chip Temp", GroupAPI},
	{ColFan, "Fan", GroupAPI},
	{ColElapsed, "Uptime", GroupAPI},
	{ColAccepted, "Accepted", GroupAPI},
	{ColRejected, "Rejected", GroupAPI},
	{"pool1_url", "Pool 1 URL", GroupAPI},
	{"pool1_user", "Pool 1 User", GroupAPI},
	{"pool1_alive", "Pool 1 Alive", GroupAPI},
	{"pool2_url", "Pool 2 URL", GroupAPI},
	{"pool2_user", "Pool 2 User", GroupAPI},
	{"pool2_alive", "Pool 2 Alive", GroupAPI},
	{"pool3_url", "Pool 3 URL", GroupAPI},
	{"pool3_user", "Pool 3 User", GroupAPI},
	{"pool3_alive", "Pool 3 Alive", GroupAPI},

	{ColWorkMode, "Work Mode", GroupConfiguration},
	{ColFreqMode, "Freq Mode", GroupConfiguration},
	{ColFreqLevel, "Freq Level", GroupConfiguration},
	{ColVoltage, "Voltage", GroupConfiguration},
	{ColTargetTemp, "Target Temp", GroupConfiguration},
	{ColFanMode, "Fan Mode", GroupConfiguration},
	{ColSchedules, "Schedules", GroupConfiguration},

	{ColFirmwareVer, "Firmware", GroupFirmware},
	{ColBaseVer, "Base Version", GroupFirmware},

	{ColSerialNo, "Serial No", GroupSerial},
	{ColMAC, "MAC", GroupSerial},
}

// labelOverrides wins over the generic humanizer for known abbreviations.
var labelOverrides = map[string]string{
	"url":      "URL",
	"ip":       "IP",
	"mac":      "MAC",
	"pcb":      "PCB",
	"hashrate": "Hashrate",
	"temp":     "Temp",
	"fan":      "Fan",
	"user":     "User",
	"freq":     "Freq",
}

// pairedKeys couples columns that must toggle together. Built bidirectional
// so the toggle operation never needs to know which side it was handed.
var pairedKeys = map[string]string{}

func init() {
	for slot := 1; slot <= 3; slot++ {
		u := poolKey(slot, "url")
		a := poolKey(slot, "alive")
		pairedKeys[u] = a
		pairedKeys[a] = u
	}
}

// registryKey reports whether key belongs to any registry group.
func registryKey(key string) (ColumnSpec, bool) {
	for _, c := range Columns {
		if c.Key == key {
			return c, true
		}
	}
	return ColumnSpec{}, false
}

// GroupKeys returns the full ordered key list of a group.
func GroupKeys(group ColumnGroup) []string {
	var keys []string
	for _, c := range Columns {
		if c.Group == group {
			keys = append(keys, c.Key)
		}
	}
	return keys
}

// Humanize derives a display label for a key the registry does not know:
// underscores become spaces and each word is capitalized, with the override
// table taking precedence per word.
func Humanize(key string) string {
	words := strings.Split(key, "_")
	for i, w := range words {
		if w == "" {
			continue
		}
		if o, ok := labelOverrides[strings.ToLower(w)]; ok {
			words[i] = o
			continue
		}
		words[i] = strings.ToUpper(w[:1]) + w[1:]
	}
	return strings.Join(words, " ")
}

// GroupPrefs is one group's visibility setting: the master toggle plus the
// individually-enabled field keys.
type GroupPrefs struct {
	Enabled bool     `json:"enabled"`
	Fields  []string `json:"fields"`
}

// DisplayPreferences holds per-group column visibility. A value object:
// persistence is the caller's concern.
type DisplayPreferences map[ColumnGroup]GroupPrefs

// DefaultPreferences enables the api group with all its fields and leaves
// the optional groups collapsed.
func DefaultPreferences() DisplayPreferences {
	return DisplayPreferences{
		GroupAPI:           {Enabled: true, Fields: GroupKeys(GroupAPI)},
		GroupConfiguration: {Enabled: false, Fields: nil},
		GroupFirmware:      {Enabled: false, Fields: nil},
		GroupSerial:        {Enabled: false, Fields: nil},
	}
}

// SetGroupEnabled bulk-toggles a section: enabling selects the group's full
// field list, disabling clears it.
func (p DisplayPreferences) SetGroupEnabled(group ColumnGroup, enabled bool) {
	prefs := p[group]
	prefs.Enabled = enabled
	if enabled {
		prefs.Fields = GroupKeys(group)
	} else {
		prefs.Fields = nil
	}
	p[group] = prefs
}

// ToggleField flips one field's visibility within a group. A key with a
// coupled pair (pool URL and its aliveness indicator) toggles both sides in
// the same direction.
func (p DisplayPreferences) ToggleField(group ColumnGroup, key string) {
	prefs := p[group]
	enabled := !contains(prefs.Fields, key)
	prefs.Fields = setMembership(prefs.Fields, key, enabled)
	if pair, ok := pairedKeys[key]; ok {
		prefs.Fields = setMembership(prefs.Fields, pair, enabled)
	}
	p[group] = prefs
}

func contains(keys []string, key string) bool {
	for _, k := range keys {
		if k == key {
			return true
		}
	}
	return false
}

func setMembership(keys []string, key string, member bool) []string {
	has := contains(keys, key)
	switch {
	case member && !has:
		return append(keys, key)
	case !member && has:
		out := keys[:0]
		for _, k := range keys {
			if k != key {
				out = append(out, k)
			}
		}
		return out
	default:
		return keys
	}
}

// VisibleColumns computes the column set for a row: core columns, then any
// dynamic keys present on the row that no group claims (labeled via
// Humanize), then each optional group's enabled fields in registry order.
// Raw clipboard companions are never columns.
func VisibleColumns(row models.DisplayRow, prefs DisplayPreferences) []ColumnSpec {
	cols := make([]ColumnSpec, 0, len(Columns))
	for _, c := range Columns {
		if c.Group == GroupCore {
			cols = append(cols, c)
		}
	}

	dynamic := make([]ColumnSpec, 0)
	for key := range row {
		if strings.HasSuffix(key, rawSuffix) {
			continue
		}
		if _, claimed := registryKey(key); claimed {
			continue
		}
		dynamic = append(dynamic, ColumnSpec{Key: key, Label: Humanize(key), Group: GroupAPI})
	}
	sortColumns(dynamic)
	cols = append(cols, dynamic...)

	for _, group := range []ColumnGroup{GroupAPI, GroupConfiguration, GroupFirmware, GroupSerial} {
		gp, ok := prefs[group]
		if !ok || !gp.Enabled {
			continue
		}
		for _, c := range Columns {
			if c.Group == group && contains(gp.Fields, c.Key) {
				cols = append(cols, c)
			}
		}
	}
	return cols
}

// sortColumns orders dynamic columns by key for a stable layout; map
// iteration order would reshuffle the table every render.
func sortColumns(cols []ColumnSpec) {
	for i := 1; i < len(cols); i++ {
		for j := i; j > 0 && cols[j].Key < cols[j-1].Key; j-- {
			cols[j], cols[j-1] = cols[j-1], cols[j]
		}
	}
}
