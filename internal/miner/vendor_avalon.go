package miner

import (
	"fmt"

	"github.com/hashfleet/hashfleet/pkg/models"
)

// avalonExtractor handles MM-controller payloads. Rates arrive in GH/s
// under GHSmm/GHS30m/GHSavg, temperatures as a per-module MTmax array, and
// fans in numbered FanN fields.
type avalonExtractor struct{}

func (avalonExtractor) Brand() string { return "Avalon" }

func (avalonExtractor) ExtractStatus(raw models.RawTelemetry, d *models.Device) {
	rec := firstRecord(raw, "stats", "STATS")
	if rec == nil {
		return
	}
	// The controller reports a per-module error bitmask; any nonzero bit
	// downgrades an otherwise-online device.
	if v, ok := rawInt64(rec, "ECMM"); ok && v != 0 && d.Status == models.StatusOnline {
		d.Status = models.StatusDegraded
	}
}

func (avalonExtractor) ExtractHashrate(raw models.RawTelemetry, d *models.Device) {
	rec := firstRecord(raw, "stats", "STATS")
	if rec == nil {
		return
	}
	const unit = "GH/s"
	if v, ok := rawFloat(rec, "GHSmm"); ok {
		d.Hashrate5s = models.Hashrate{Value: v, Unit: unit}
	}
	if v, ok := rawFloat(rec, "GHS30m"); ok {
		d.Hashrate30m = models.Hashrate{Value: v, Unit: unit}
	}
	if v, ok := rawFloat(rec, "GHSavg"); ok {
		d.HashrateAvg = models.Hashrate{Value: v, Unit: unit}
	}
}

func (avalonExtractor) ExtractTemps(raw models.RawTelemetry, d *models.Device) {
	rec := firstRecord(raw, "stats", "STATS")
	if rec == nil {
		return
	}
	d.Temps = validTemps(rawSlice(rec, "MTmax"))
}

func (avalonExtractor) ExtractFans(raw models.RawTelemetry, d *models.Device) {
	rec := firstRecord(raw, "stats", "STATS")
	if rec == nil {
		return
	}
	for i := 1; i <= 4; i++ {
		if v, ok := rawFloat(rec, fmt.Sprintf("Fan%d", i)); ok && v > 0 {
			d.Fans = append(d.Fans, v)
		}
	}
}

func (avalonExtractor) ExtractPools(raw models.RawTelemetry, d *models.Device) {
	d.Pools = extractPoolSlots(sectionRecords(raw, "pools", "POOLS"))
	d.Accepted, d.Rejected = sumPoolShares(d.Pools)
}

func (avalonExtractor) ExtractMisc(raw models.RawTelemetry, d *models.Device) {
	rec := firstRecord(raw, "stats", "STATS")
	if rec != nil {
		if v, ok := rawFloat(rec, "Elapsed"); ok {
			d.ElapsedSeconds = NormalizeElapsed(v)
		}
		d.Firmware.FirmwareVersion = rawString(rec, "Ver")
		d.Firmware.SerialNo = rawString(rec, "DNA")
	}
	d.DeviceType = rawString(raw, "model")
	if sub := rawString(raw, "subtype"); sub != "" {
		d.Subtype = sub
		d.PCBClass = NormalizePCB(sub)
	}
}
