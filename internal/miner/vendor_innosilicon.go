package miner

import "github.com/hashfleet/hashfleet/pkg/models"

// innosiliconExtractor handles raw-unit payloads. Rates arrive in plain H/s
// and must be divided by 1e6 into MH/s; uptime arrives in milliseconds and
// relies on the shared magnitude guard; pool fields are lower-cased.
type innosiliconExtractor struct{}

// innosiliconScale converts the firmware's raw H/s readings to MH/s.
const innosiliconScale = 1e-6

func (innosiliconExtractor) Brand() string { return "Innosilicon" }

func (innosiliconExtractor) ExtractStatus(raw models.RawTelemetry, d *models.Device) {
	// Envelope status is authoritative for this firmware.
}

func (innosiliconExtractor) ExtractHashrate(raw models.RawTelemetry, d *models.Device) {
	rec := firstRecord(raw, "summ", "SUMMARY")
	if rec == nil {
		return
	}
	const unit = "MH/s"
	if v, ok := rawFloat(rec, "Hash Rate 5s"); ok {
		d.Hashrate5s = models.Hashrate{Value: v * innosiliconScale, Unit: unit}
	}
	if v, ok := rawFloat(rec, "Hash Rate 30m"); ok {
		d.Hashrate30m = models.Hashrate{Value: v * innosiliconScale, Unit: unit}
	}
	if v, ok := rawFloat(rec, "Hash Rate H"); ok {
		d.HashrateAvg = models.Hashrate{Value: v * innosiliconScale, Unit: unit}
	}
}

func (innosiliconExtractor) ExtractTemps(raw models.RawTelemetry, d *models.Device) {
	for _, chain := range sectionRecords(raw, "devs", "DEVS") {
		d.Temps = append(d.Temps, validTemps(rawSlice(chain, "chip_temps"))...)
	}
}

func (innosiliconExtractor) ExtractFans(raw models.RawTelemetry, d *models.Device) {
	for _, chain := range sectionRecords(raw, "devs", "DEVS") {
		if v, ok := rawFloat(chain, "Fan Duty"); ok && v > 0 {
			d.Fans = append(d.Fans, v)
		}
	}
}

func (innosiliconExtractor) ExtractPools(raw models.RawTelemetry, d *models.Device) {
	d.Pools = extractPoolSlots(sectionRecords(raw, "pools", "POOLS"))
	d.Accepted, d.Rejected = sumPoolShares(d.Pools)
}

func (innosiliconExtractor) ExtractMisc(raw models.RawTelemetry, d *models.Device) {
	rec := firstRecord(raw, "summ", "SUMMARY")
	if rec != nil {
		// Some firmware builds report Elapsed in milliseconds;
		// NormalizeElapsed scales implausibly large values down.
		if v, ok := rawFloat(rec, "Elapsed"); ok {
			d.ElapsedSeconds = NormalizeElapsed(v)
		}
	}
	if ver := rawMap(raw, "version"); ver != nil {
		d.Firmware = models.Firmware{
			SerialNo:        rawString(ver, "serial"),
			FirmwareVersion: rawString(ver, "version"),
			BaseVersion:     rawString(ver, "build"),
		}
	}
	d.DeviceType = rawString(raw, "model")
	if sub := rawString(raw, "subtype"); sub != "" {
		d.Subtype = sub
		d.PCBClass = NormalizePCB(sub)
	}
}
