package miner

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/hashfleet/hashfleet/pkg/models"
)

// Column keys shared by the formatter and the column registry.
const (
	ColIP          = "ip"
	ColBrand       = "brand"
	ColStatus      = "status"
	ColDeviceType  = "device_type"
	ColSubtype     = "subtype"
	ColPCBClass    = "pcb_class"
	ColHashrate5s  = "hashrate_5s"
	ColHashrate30m = "hashrate_30m"
	ColHashrateAvg = "hashrate_avg"
	ColTempChip    = "temp_chip"
	ColFan         = "fan"
	ColElapsed     = "elapsed"
	ColAccepted    = "accepted"
	ColRejected    = "rejected"
	ColBlink       = "blink"
	ColWorkMode    = "work_mode"
	ColFreqMode    = "freq_mode"
	ColFreqLevel   = "freq_level"
	ColVoltage     = "voltage"
	ColTargetTemp  = "target_temp"
	ColFanMode     = "fan_mode"
	ColSchedules   = "schedules"
	ColFirmwareVer = "firmware_version"
	ColBaseVer     = "base_version"
	ColSerialNo    = "serial_no"
	ColMAC         = "mac"
)

// rawSuffix marks the clipboard-copy companion of a display-stripped value.
const rawSuffix = "_raw"

// poolKey builds the column key for a pool slot field, e.g. "pool1_url".
func poolKey(slot int, field string) string {
	return fmt.Sprintf("pool%d_%s", slot, field)
}

// Format projects a canonical Device onto its flat, display-ready row.
// Pure and total: every missing field becomes the placeholder dash, never
// an absent key for the fixed columns.
func Format(d models.Device) models.DisplayRow {
	row := models.DisplayRow{
		ColIP:          orPlaceholder(d.IP),
		ColBrand:       orPlaceholder(d.Brand),
		ColStatus:      string(d.Status),
		ColDeviceType:  orPlaceholder(d.DeviceType),
		ColSubtype:     orPlaceholder(d.Subtype),
		ColPCBClass:    orPlaceholder(d.PCBClass),
		ColHashrate5s:  FormatHashrate(d.Hashrate5s.Value, d.Hashrate5s.Unit),
		ColHashrate30m: FormatHashrate(d.Hashrate30m.Value, d.Hashrate30m.Unit),
		ColHashrateAvg: FormatHashrate(d.HashrateAvg.Value, d.HashrateAvg.Unit),
		ColTempChip:    FormatTempChip(d.Temps),
		ColFan:         FormatFans(d.Fans),
		ColElapsed:     orPlaceholder(d.Elapsed),
		ColAccepted:    formatCount(d.Accepted),
		ColRejected:    formatCount(d.Rejected),
		ColBlink:       strconv.FormatBool(d.Blink),
		ColFirmwareVer: orPlaceholder(d.Firmware.FirmwareVersion),
		ColBaseVer:     orPlaceholder(d.Firmware.BaseVersion),
		ColSerialNo:    orPlaceholder(d.Firmware.SerialNo),
		ColMAC:         orPlaceholder(d.MAC),
	}

	for i := 0; i < 3; i++ {
		slot := i + 1
		if i < len(d.Pools) {
			p := d.Pools[i]
			row[poolKey(slot, "url")] = orPlaceholder(StripPoolScheme(p.URL))
			row[poolKey(slot, "url")+rawSuffix] = p.URL
			row[poolKey(slot, "user")] = orPlaceholder(p.User)
			row[poolKey(slot, "alive")] = string(p.Alive)
		} else {
			row[poolKey(slot, "url")] = Placeholder
			row[poolKey(slot, "user")] = Placeholder
			row[poolKey(slot, "alive")] = string(models.AliveStateUnknown)
		}
	}

	if d.Config != nil {
		row[ColWorkMode] = orPlaceholder(d.Config.WorkMode)
		row[ColFreqMode] = orPlaceholder(d.Config.FreqMode)
		row[ColFreqLevel] = orPlaceholder(d.Config.FreqLevel)
		row[ColVoltage] = orPlaceholder(d.Config.Voltage)
		row[ColTargetTemp] = orPlaceholder(d.Config.TargetTemp)
		row[ColFanMode] = orPlaceholder(d.Config.FanMode)
		row[ColSchedules] = formatSchedules(d.Config.Schedules)
	}

	return row
}

// FormatAll maps Format over a device collection.
func FormatAll(devices []models.Device) []models.DisplayRow {
	rows := make([]models.DisplayRow, 0, len(devices))
	for _, d := range devices {
		rows = append(rows, Format(d))
	}
	return rows
}

func orPlaceholder(s string) string {
	if strings.TrimSpace(s) == "" {
		return Placeholder
	}
	return s
}

func formatCount(n int64) string {
	if n == 0 {
		return Placeholder
	}
	return strconv.FormatInt(n, 10)
}

// formatSchedules renders schedule slots as "start-stop" windows joined by
// commas, prefixing disabled slots with "off:".
func formatSchedules(slots []models.ScheduleSlot) string {
	if len(slots) == 0 {
		return Placeholder
	}
	parts := make([]string, 0, len(slots))
	for _, s := range slots {
		w := fmt.Sprintf("%s-%s", orPlaceholder(s.Start), orPlaceholder(s.Stop))
		if !s.Enable {
			w = "off:" + w
		}
		parts = append(parts, w)
	}
	return strings.Join(parts, ",")
}
