package miner

import (
	"fmt"

	"github.com/hashfleet/hashfleet/pkg/models"
)

// antminerExtractor handles cgminer stats-style payloads. Rates are already
// scaled to GH/s (though "GHS 5s" arrives as a quoted string), chip
// temperatures live in numbered temp2_N fields, fans in numbered fanN
// fields, and pool fields use upper-case casing.
type antminerExtractor struct{}

func (antminerExtractor) Brand() string { return "Antminer" }

func (antminerExtractor) ExtractStatus(raw models.RawTelemetry, d *models.Device) {
	// Envelope status is authoritative; stats carry no health indicator.
}

func (antminerExtractor) ExtractHashrate(raw models.RawTelemetry, d *models.Device) {
	rec := antminerStats(raw)
	if rec == nil {
		return
	}
	const unit = "GH/s"
	if v, ok := rawFloat(rec, "GHS 5s"); ok {
		d.Hashrate5s = models.Hashrate{Value: v, Unit: unit}
	}
	if v, ok := rawFloat(rec, "GHS 30m"); ok {
		d.Hashrate30m = models.Hashrate{Value: v, Unit: unit}
	}
	if v, ok := rawFloat(rec, "GHS av"); ok {
		d.HashrateAvg = models.Hashrate{Value: v, Unit: unit}
	}
}

func (antminerExtractor) ExtractTemps(raw models.RawTelemetry, d *models.Device) {
	rec := antminerStats(raw)
	if rec == nil {
		return
	}
	// temp2_N are per-chain chip sensors; zero means the chain slot is
	// unpopulated, -273 a dead sensor.
	for i := 1; i <= 16; i++ {
		v, ok := rawFloat(rec, fmt.Sprintf("temp2_%d", i))
		if ok && v != 0 && ValidTemp(v) {
			d.Temps = append(d.Temps, v)
		}
	}
}

func (antminerExtractor) ExtractFans(raw models.RawTelemetry, d *models.Device) {
	rec := antminerStats(raw)
	if rec == nil {
		return
	}
	for i := 1; i <= 8; i++ {
		if v, ok := rawFloat(rec, fmt.Sprintf("fan%d", i)); ok && v > 0 {
			d.Fans = append(d.Fans, v)
		}
	}
}

func (antminerExtractor) ExtractPools(raw models.RawTelemetry, d *models.Device) {
	d.Pools = extractPoolSlots(sectionRecords(raw, "pools", "POOLS"))
	d.Accepted, d.Rejected = sumPoolShares(d.Pools)
}

func (antminerExtractor) ExtractMisc(raw models.RawTelemetry, d *models.Device) {
	rec := antminerStats(raw)
	if rec != nil {
		if v, ok := rawFloat(rec, "Elapsed"); ok {
			d.ElapsedSeconds = NormalizeElapsed(v)
		}
	}
	// STATS[0] is the version record in cgminer output.
	if ver := firstRecord(raw, "stats", "STATS"); ver != nil {
		d.DeviceType = rawString(ver, "Type")
		d.Firmware.FirmwareVersion = rawString(ver, "Miner")
		d.Firmware.BaseVersion = rawString(ver, "CompileTime")
	}
	if sub := rawString(raw, "subtype"); sub != "" {
		d.Subtype = sub
		d.PCBClass = NormalizePCB(sub)
	}
}

// antminerStats returns the data record, which cgminer places second in
// STATS after the version record.
func antminerStats(raw models.RawTelemetry) map[string]any {
	records := sectionRecords(raw, "stats", "STATS")
	if len(records) < 2 {
		return nil
	}
	return records[1]
}
