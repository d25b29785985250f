package miner

import "github.com/hashfleet/hashfleet/pkg/models"

// goldshellExtractor handles the flat lower-case "data" payload shape. The
// rate unit is carried explicitly, uptime arrives pre-multiplied by 1000,
// and pools use an "active" boolean instead of a status string.
type goldshellExtractor struct{}

func (goldshellExtractor) Brand() string { return "Goldshell" }

func (goldshellExtractor) ExtractStatus(raw models.RawTelemetry, d *models.Device) {
	data := rawMap(raw, "data")
	if data == nil {
		return
	}
	if rawString(data, "error") != "" {
		d.Status = models.StatusOffline
	}
}

func (goldshellExtractor) ExtractHashrate(raw models.RawTelemetry, d *models.Device) {
	data := rawMap(raw, "data")
	if data == nil {
		return
	}
	unit := CanonicalUnit(rawString(data, "unit"))
	if unit == "" {
		unit = "MH/s"
	}
	if v, ok := rawFloat(data, "hash_5s"); ok {
		d.Hashrate5s = models.Hashrate{Value: v, Unit: unit}
	}
	if v, ok := rawFloat(data, "hash_30m"); ok {
		d.Hashrate30m = models.Hashrate{Value: v, Unit: unit}
	}
	if v, ok := rawFloat(data, "hash_avg"); ok {
		d.HashrateAvg = models.Hashrate{Value: v, Unit: unit}
	}
}

func (goldshellExtractor) ExtractTemps(raw models.RawTelemetry, d *models.Device) {
	data := rawMap(raw, "data")
	if data == nil {
		return
	}
	d.Temps = validTemps(rawSlice(data, "temp"))
}

func (goldshellExtractor) ExtractFans(raw models.RawTelemetry, d *models.Device) {
	data := rawMap(raw, "data")
	if data == nil {
		return
	}
	d.Fans = floatList(rawSlice(data, "fan"))
}

func (goldshellExtractor) ExtractPools(raw models.RawTelemetry, d *models.Device) {
	data := rawMap(raw, "data")
	if data == nil {
		return
	}
	records := make([]map[string]any, 0, 3)
	for _, it := range rawSlice(data, "pools") {
		if rec, ok := it.(map[string]any); ok {
			records = append(records, rec)
		}
	}
	d.Pools = extractPoolSlots(records)
	d.Accepted, d.Rejected = sumPoolShares(d.Pools)
}

func (goldshellExtractor) ExtractMisc(raw models.RawTelemetry, d *models.Device) {
	data := rawMap(raw, "data")
	if data != nil {
		// Uptime units vary by firmware build; NormalizeElapsed
		// scales implausibly large values down to seconds.
		if v, ok := rawFloat(data, "uptime"); ok {
			d.ElapsedSeconds = NormalizeElapsed(v)
		}
		d.DeviceType = rawString(data, "model")
	}
	if ver := rawMap(raw, "version"); ver != nil {
		d.Firmware = models.Firmware{
			SerialNo:        rawString(ver, "sn"),
			FirmwareVersion: rawString(ver, "fw"),
			BaseVersion:     rawString(ver, "platform"),
		}
	}
	if sub := rawString(raw, "subtype"); sub != "" {
		d.Subtype = sub
		d.PCBClass = NormalizePCB(sub)
	}
}
