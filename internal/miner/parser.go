package miner

import (
	"strings"

	"github.com/hashfleet/hashfleet/pkg/models"
	"go.uber.org/zap"
)

// Device type tags accepted in the "dtype" discriminant.
const (
	TagStandard    = "std"
	TagAntminer    = "antminer"
	TagWhatsminer  = "whatsminer"
	TagAvalon      = "avalon"
	TagInnosilicon = "innosilicon"
	TagGoldshell   = "goldshell"
)

// Extractor converts one vendor's payload shape into canonical Device
// fields. Each method fills its slice of the record and tolerates any
// missing or malformed input.
type Extractor interface {
	Brand() string
	ExtractStatus(raw models.RawTelemetry, d *models.Device)
	ExtractHashrate(raw models.RawTelemetry, d *models.Device)
	ExtractTemps(raw models.RawTelemetry, d *models.Device)
	ExtractFans(raw models.RawTelemetry, d *models.Device)
	ExtractPools(raw models.RawTelemetry, d *models.Device)
	ExtractMisc(raw models.RawTelemetry, d *models.Device)
}

// extractors dispatches the dtype discriminant to a vendor strategy.
// Adding a vendor means adding one entry here, not a new conditional chain.
var extractors = map[string]Extractor{
	TagStandard:    stdExtractor{},
	TagAntminer:    antminerExtractor{},
	TagWhatsminer:  whatsminerExtractor{},
	TagAvalon:      avalonExtractor{},
	TagInnosilicon: innosiliconExtractor{},
	TagGoldshell:   goldshellExtractor{},
}

// Parser normalizes raw telemetry into canonical devices.
type Parser struct {
	logger *zap.Logger
}

// NewParser creates a Parser. A nil logger is replaced with a no-op one.
func NewParser(logger *zap.Logger) *Parser {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Parser{logger: logger}
}

// Parse converts one raw payload into a canonical Device. It never fails:
// payloads with no usable data produce a "No Data" stub, unrecognized
// discriminants a degraded but renderable record.
func (p *Parser) Parse(raw models.RawTelemetry) models.Device {
	d := models.Device{
		IP:  strings.TrimSpace(rawString(raw, "ip")),
		MAC: rawString(raw, "mac"),
	}
	d.Status = DeriveStatus(raw)
	d.Blink = rawBool(raw, "blink")

	tag := strings.TrimSpace(rawString(raw, "dtype"))
	if tag == "" && !hasPayload(raw) {
		// Device did not respond usefully. Short-circuit before any
		// vendor logic so the row still renders with fleet counts intact.
		d.Brand = "No Data"
		return d
	}

	ext, ok := extractors[tag]
	if !ok {
		p.logger.Warn("unrecognized device type tag",
			zap.String("dtype", tag),
			zap.String("ip", d.IP),
		)
		d.DeviceType = "Unknown Device"
		return d
	}

	d.Brand = ext.Brand()
	ext.ExtractStatus(raw, &d)
	ext.ExtractHashrate(raw, &d)
	ext.ExtractTemps(raw, &d)
	ext.ExtractFans(raw, &d)
	ext.ExtractPools(raw, &d)
	ext.ExtractMisc(raw, &d)

	if d.ElapsedSeconds > 0 {
		d.Elapsed = FormatElapsed(d.ElapsedSeconds)
	}
	return d
}

// ParseAll maps Parse over a batch.
func (p *Parser) ParseAll(raws []models.RawTelemetry) []models.Device {
	out := make([]models.Device, 0, len(raws))
	for _, raw := range raws {
		out = append(out, p.Parse(raw))
	}
	return out
}

// hasPayload reports whether the envelope carries any vendor statistics
// section at all.
func hasPayload(raw models.RawTelemetry) bool {
	for _, key := range []string{"summ", "stats", "devs", "pools", "data", "conf"} {
		if rawMap(raw, key) != nil {
			return true
		}
	}
	return false
}

// DeriveStatus maps the envelope status indicator onto the status
// enumeration. An explicit error field overrides the numeric code; unknown
// codes are conservatively offline, never healthy.
func DeriveStatus(raw models.RawTelemetry) models.Status {
	if rawString(raw, "err") != "" {
		return models.StatusOffline
	}
	st := strings.TrimSpace(rawString(raw, "st"))
	switch st {
	case "200":
		return models.StatusOnline
	case "401":
		return models.StatusDegraded
	case "404", "4":
		// "4" is a legacy shorthand some collectors emit for unreachable
		// devices; kept as-is, not generalized to other prefixes.
		return models.StatusOffline
	default:
		return models.StatusOffline
	}
}

// sumPoolShares aggregates accepted/rejected counters across pool slots.
// Used by vendors with no device-level total. When a firmware reports both
// a device-level total and a pools breakdown, the device-level value wins.
func sumPoolShares(pools []models.Pool) (accepted, rejected int64) {
	for _, p := range pools {
		accepted += p.Accepted
		rejected += p.Rejected
	}
	return accepted, rejected
}

// extractPoolSlots reads up to three pool slots positionally. Vendors
// disagree on field casing, so each logical field is looked up under both.
func extractPoolSlots(records []map[string]any) []models.Pool {
	if len(records) > 3 {
		records = records[:3]
	}
	pools := make([]models.Pool, 0, len(records))
	for _, rec := range records {
		pool := models.Pool{
			URL:   rawString(rec, "url", "URL"),
			User:  rawString(rec, "user", "User"),
			Alive: ClassifyAlive(firstPresent(rec, "status", "Status", "active", "alive")),
		}
		pool.Accepted, _ = rawInt64(rec, "accepted", "Accepted")
		pool.Rejected, _ = rawInt64(rec, "rejected", "Rejected")
		pools = append(pools, pool)
	}
	return pools
}

// firstPresent returns the first non-nil value among keys, or nil.
func firstPresent(m map[string]any, keys ...string) any {
	for _, k := range keys {
		if v, ok := m[k]; ok && v != nil {
			return v
		}
	}
	return nil
}
