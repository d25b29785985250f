package models

// Status represents the derived health of a miner.
type Status string

const (
	StatusOnline   Status = "online"
	StatusDegraded Status = "degraded"
	StatusOffline  Status = "offline"
	StatusUnknown  Status = "unknown"
)

// AliveState classifies a pool's connectivity indicator.
type AliveState string

const (
	AliveStateAlive   AliveState = "alive"
	AliveStateDead    AliveState = "dead"
	AliveStateUnknown AliveState = "unknown"
)

// RawTelemetry is a vendor-specific payload exactly as posted by a collector.
// Its shape is determined by the "dtype" discriminant; no other field may be
// trusted before the discriminant has been read.
type RawTelemetry map[string]any

// Hashrate is a mining throughput sample. Value and Unit travel together;
// a value without its unit is meaningless and must not be displayed.
type Hashrate struct {
	Value float64 `json:"value"`
	Unit  string  `json:"unit" example:"TH/s"`
}

// Pool is one upstream mining-pool slot. Index 0 is the primary pool,
// 1 the secondary, 2 the tertiary.
type Pool struct {
	URL      string     `json:"url" example:"stratum+tcp://btc.example.org:3333"`
	User     string     `json:"user,omitempty" example:"worker.01"`
	Alive    AliveState `json:"alive" example:"alive"`
	Accepted int64      `json:"accepted,omitempty"`
	Rejected int64      `json:"rejected,omitempty"`
}

// ScheduleSlot is one named on/off window in a miner's configuration.
// A slot is only present if at least one of Start, Stop, or Week was set.
type ScheduleSlot struct {
	Name   string `json:"name" example:"timer1"`
	Start  string `json:"start,omitempty" example:"22:00"`
	Stop   string `json:"stop,omitempty" example:"06:00"`
	Week   string `json:"week,omitempty" example:"1111100"`
	Enable bool   `json:"enable"`
}

// MinerConfig holds the mining-profile settings reported by standard firmware.
type MinerConfig struct {
	WorkMode   string         `json:"work_mode,omitempty" example:"balanced"`
	FreqMode   string         `json:"freq_mode,omitempty" example:"auto"`
	FreqLevel  string         `json:"freq_level,omitempty" example:"80"`
	Voltage    string         `json:"voltage,omitempty" example:"1250"`
	TargetTemp string         `json:"target_temp,omitempty" example:"75"`
	FanMode    string         `json:"fan_mode,omitempty" example:"auto"`
	Schedules  []ScheduleSlot `json:"schedules,omitempty"`
}

// Firmware identifies the software running on a miner.
type Firmware struct {
	SerialNo        string `json:"serial_no,omitempty" example:"BTM21S00012345"`
	FirmwareVersion string `json:"firmware_version,omitempty" example:"2.3.1"`
	BaseVersion     string `json:"base_version,omitempty" example:"4.11.1"`
}

// Device is the canonical, vendor-agnostic miner record produced by the
// telemetry parser. Missing numeric fields are zero, missing strings empty;
// display defaults are applied by the formatter, not here.
type Device struct {
	IP         string `json:"ip" example:"10.0.0.5"`
	MAC        string `json:"mac,omitempty" example:"00:1a:2b:3c:4d:5e"`
	Brand      string `json:"brand,omitempty" example:"Antminer"`
	DeviceType string `json:"device_type,omitempty" example:"S19 Pro"`
	Subtype    string `json:"subtype,omitempty" example:"BHB42"`
	PCBClass   string `json:"pcb_class,omitempty" example:"BHB"`

	Status Status `json:"status" example:"online"`

	Hashrate5s  Hashrate `json:"hashrate_5s"`
	Hashrate30m Hashrate `json:"hashrate_30m"`
	HashrateAvg Hashrate `json:"hashrate_avg"`

	Temps []float64 `json:"temps,omitempty"`
	Fans  []float64 `json:"fans,omitempty"`
	Pools []Pool    `json:"pools,omitempty"`

	Config   *MinerConfig `json:"config,omitempty"`
	Firmware Firmware     `json:"firmware"`

	Blink          bool   `json:"blink"`
	ElapsedSeconds int64  `json:"elapsed_seconds,omitempty"`
	Elapsed        string `json:"elapsed,omitempty" example:"01:01:01"`

	Accepted int64 `json:"accepted,omitempty"`
	Rejected int64 `json:"rejected,omitempty"`
}

// DisplayRow is the flat, display-ready projection of a Device consumed by
// table components. Keys are column keys from the column registry; values
// are already formatted (units attached, placeholders applied).
type DisplayRow map[string]string

// FleetMetrics is the fleet-level KPI summary over a device collection.
// Defined for the empty collection: all fields zero, never NaN.
type FleetMetrics struct {
	TotalDevices  int     `json:"total_devices"`
	OnlineCount   int     `json:"online_count"`
	TotalHashrate string  `json:"total_hashrate" example:"1.25 PH/s"`
	TotalGHS      float64 `json:"total_ghs"`
	AvgTemp       float64 `json:"avg_temp"`
	AvgFan        float64 `json:"avg_fan"`
	UptimePercent float64 `json:"uptime_percent"`
	ActivePools   int     `json:"active_pools"`
}
