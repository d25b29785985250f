package miner

import "github.com/hashfleet/hashfleet/pkg/models"

// whatsminerExtractor handles summary-style payloads reporting in MH/s.
// Device-level share totals coexist with a per-pool breakdown; the
// device-level values win. Fans are a fixed in/out pair.
type whatsminerExtractor struct{}

func (whatsminerExtractor) Brand() string { return "Whatsminer" }

func (whatsminerExtractor) ExtractStatus(raw models.RawTelemetry, d *models.Device) {
	rec := firstRecord(raw, "summ", "SUMMARY")
	if rec == nil {
		return
	}
	// A zero average with an online envelope means hashboards are up but
	// not hashing, which operators need to see as degraded.
	if v, ok := rawFloat(rec, "MHS av"); ok && v == 0 && d.Status == models.StatusOnline {
		d.Status = models.StatusDegraded
	}
}

func (whatsminerExtractor) ExtractHashrate(raw models.RawTelemetry, d *models.Device) {
	rec := firstRecord(raw, "summ", "SUMMARY")
	if rec == nil {
		return
	}
	const unit = "MH/s"
	if v, ok := rawFloat(rec, "MHS 5s"); ok {
		d.Hashrate5s = models.Hashrate{Value: v, Unit: unit}
	}
	if v, ok := rawFloat(rec, "MHS 30m"); ok {
		d.Hashrate30m = models.Hashrate{Value: v, Unit: unit}
	}
	if v, ok := rawFloat(rec, "MHS av"); ok {
		d.HashrateAvg = models.Hashrate{Value: v, Unit: unit}
	}
}

func (whatsminerExtractor) ExtractTemps(raw models.RawTelemetry, d *models.Device) {
	for _, board := range sectionRecords(raw, "devs", "DEVS") {
		d.Temps = append(d.Temps, validTemps(rawSlice(board, "Chip Temps"))...)
	}
}

func (whatsminerExtractor) ExtractFans(raw models.RawTelemetry, d *models.Device) {
	rec := firstRecord(raw, "summ", "SUMMARY")
	if rec == nil {
		return
	}
	if v, ok := rawFloat(rec, "Fan Speed In"); ok {
		d.Fans = append(d.Fans, v)
	}
	if v, ok := rawFloat(rec, "Fan Speed Out"); ok {
		d.Fans = append(d.Fans, v)
	}
}

func (whatsminerExtractor) ExtractPools(raw models.RawTelemetry, d *models.Device) {
	d.Pools = extractPoolSlots(sectionRecords(raw, "pools", "POOLS"))
	d.Accepted, d.Rejected = sumPoolShares(d.Pools)
	if rec := firstRecord(raw, "summ", "SUMMARY"); rec != nil {
		if v, ok := rawInt64(rec, "Accepted"); ok {
			d.Accepted = v
		}
		if v, ok := rawInt64(rec, "Rejected"); ok {
			d.Rejected = v
		}
	}
}

func (whatsminerExtractor) ExtractMisc(raw models.RawTelemetry, d *models.Device) {
	rec := firstRecord(raw, "summ", "SUMMARY")
	if rec != nil {
		if v, ok := rawFloat(rec, "Elapsed"); ok {
			d.ElapsedSeconds = NormalizeElapsed(v)
		}
	}
	if ver := rawMap(raw, "version"); ver != nil {
		d.Firmware = models.Firmware{
			SerialNo:        rawString(ver, "serial"),
			FirmwareVersion: rawString(ver, "fw_ver"),
			BaseVersion:     rawString(ver, "api_ver"),
		}
	}
	d.DeviceType = rawString(raw, "model")
	if sub := rawString(raw, "subtype"); sub != "" {
		d.Subtype = sub
		d.PCBClass = NormalizePCB(sub)
	}
}
