package miner

import (
	"fmt"

	"github.com/hashfleet/hashfleet/pkg/models"
)

// stdExtractor handles standard-firmware payloads. This is the richest
// shape: explicit rate units in the summary, per-board chip temperature
// arrays under devs.DEVS, a conf block with mining-profile settings and up
// to five schedule slots, and a version block with firmware identifiers.
type stdExtractor struct{}

func (stdExtractor) Brand() string { return "Standard" }

func (stdExtractor) ExtractStatus(raw models.RawTelemetry, d *models.Device) {
	// Standard firmware reports an in-payload error code when a board is
	// failing even though the HTTP exchange succeeded.
	if summ := rawMap(raw, "summ"); summ != nil {
		if code, ok := rawInt64(summ, "err_code"); ok && code != 0 {
			d.Status = models.StatusDegraded
		}
	}
}

func (stdExtractor) ExtractHashrate(raw models.RawTelemetry, d *models.Device) {
	rec := firstRecord(raw, "summ", "SUMMARY")
	if rec == nil {
		return
	}
	unit := CanonicalUnit(rawString(rec, "rate_unit"))
	if unit == "" {
		unit = "MH/s"
	}
	if v, ok := rawFloat(rec, "rate_5s"); ok {
		d.Hashrate5s = models.Hashrate{Value: v, Unit: unit}
	}
	if v, ok := rawFloat(rec, "rate_30m"); ok {
		d.Hashrate30m = models.Hashrate{Value: v, Unit: unit}
	}
	if v, ok := rawFloat(rec, "rate_avg"); ok {
		d.HashrateAvg = models.Hashrate{Value: v, Unit: unit}
	}
}

func (stdExtractor) ExtractTemps(raw models.RawTelemetry, d *models.Device) {
	for _, board := range sectionRecords(raw, "devs", "DEVS") {
		d.Temps = append(d.Temps, validTemps(rawSlice(board, "chip_temp"))...)
	}
}

func (stdExtractor) ExtractFans(raw models.RawTelemetry, d *models.Device) {
	rec := firstRecord(raw, "summ", "SUMMARY")
	if rec == nil {
		return
	}
	d.Fans = floatList(rawSlice(rec, "fan"))
}

func (stdExtractor) ExtractPools(raw models.RawTelemetry, d *models.Device) {
	d.Pools = extractPoolSlots(sectionRecords(raw, "pools", "POOLS"))
	d.Accepted, d.Rejected = sumPoolShares(d.Pools)
	// Newer firmware also carries device-level totals in the summary. Those
	// win over the per-pool sum when both are present.
	if rec := firstRecord(raw, "summ", "SUMMARY"); rec != nil {
		if v, ok := rawInt64(rec, "accepted"); ok {
			d.Accepted = v
		}
		if v, ok := rawInt64(rec, "rejected"); ok {
			d.Rejected = v
		}
	}
}

func (stdExtractor) ExtractMisc(raw models.RawTelemetry, d *models.Device) {
	if rec := firstRecord(raw, "summ", "SUMMARY"); rec != nil {
		if v, ok := rawFloat(rec, "elapsed"); ok {
			d.ElapsedSeconds = NormalizeElapsed(v)
		}
	}

	if ver := rawMap(raw, "version"); ver != nil {
		d.Firmware = models.Firmware{
			SerialNo:        rawString(ver, "serial_no"),
			FirmwareVersion: rawString(ver, "fw_ver"),
			BaseVersion:     rawString(ver, "base_ver"),
		}
	}

	d.DeviceType = rawString(raw, "model")
	if sub := rawString(raw, "subtype"); sub != "" {
		d.Subtype = sub
		d.PCBClass = NormalizePCB(sub)
	}

	if conf := rawMap(raw, "conf"); conf != nil {
		d.Config = extractConfig(conf)
	}
}

// extractConfig reads the mining-profile block. Schedule slots are included
// only when at least one of start, stop, or weekday mask is present --
// absent slots must not appear as empty placeholder entries.
func extractConfig(conf map[string]any) *models.MinerConfig {
	cfg := &models.MinerConfig{
		WorkMode:   rawString(conf, "mode"),
		FreqMode:   rawString(conf, "freq_mode"),
		FreqLevel:  rawString(conf, "freq_level"),
		Voltage:    rawString(conf, "volt"),
		TargetTemp: rawString(conf, "target_temp"),
		FanMode:    rawString(conf, "fan_mode"),
	}
	for i := 1; i <= 5; i++ {
		name := fmt.Sprintf("timer%d", i)
		slot := rawMap(conf, name)
		if slot == nil {
			continue
		}
		start := rawString(slot, "start")
		stop := rawString(slot, "stop")
		week := rawString(slot, "week")
		if start == "" && stop == "" && week == "" {
			continue
		}
		cfg.Schedules = append(cfg.Schedules, models.ScheduleSlot{
			Name:   name,
			Start:  start,
			Stop:   stop,
			Week:   week,
			Enable: rawBool(slot, "enable"),
		})
	}
	return cfg
}
