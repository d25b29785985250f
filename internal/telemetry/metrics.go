package telemetry

import (
	"github.com/prometheus/client_golang/prometheus"

	"github.com/hashfleet/hashfleet/pkg/models"
)

// Prometheus fleet metrics, refreshed on every accepted batch.
var (
	batchesTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "hashfleet_telemetry_batches_total",
			Help: "Total number of accepted telemetry batches.",
		},
	)
	devicesGauge = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "hashfleet_fleet_devices",
			Help: "Devices in the most recent fleet view.",
		},
	)
	onlineGauge = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "hashfleet_fleet_online_devices",
			Help: "Online devices in the most recent fleet view.",
		},
	)
	hashrateGauge = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "hashfleet_fleet_hashrate_ghs",
			Help: "Total fleet hashrate in GH/s.",
		},
	)
	avgTempGauge = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "hashfleet_fleet_avg_temp_celsius",
			Help: "Mean of per-device peak board temperatures.",
		},
	)
)

func init() {
	prometheus.MustRegister(batchesTotal)
	prometheus.MustRegister(devicesGauge)
	prometheus.MustRegister(onlineGauge)
	prometheus.MustRegister(hashrateGauge)
	prometheus.MustRegister(avgTempGauge)
}

func recordFleetMetrics(m models.FleetMetrics) {
	devicesGauge.Set(float64(m.TotalDevices))
	onlineGauge.Set(float64(m.OnlineCount))
	hashrateGauge.Set(m.TotalGHS)
	avgTempGauge.Set(m.AvgTemp)
}
