package miner

import (
	"math"
	"testing"

	"github.com/hashfleet/hashfleet/pkg/models"
)

func TestAggregate_EmptyCollection(t *testing.T) {
	m := Aggregate(nil)

	if m.TotalDevices != 0 || m.OnlineCount != 0 || m.ActivePools != 0 {
		t.Errorf("counts = %+v, want all zero", m)
	}
	if m.TotalGHS != 0 || m.AvgTemp != 0 || m.AvgFan != 0 || m.UptimePercent != 0 {
		t.Errorf("metrics = %+v, want all zero", m)
	}
	for _, v := range []float64{m.TotalGHS, m.AvgTemp, m.AvgFan, m.UptimePercent} {
		if math.IsNaN(v) {
			t.Fatalf("NaN in empty aggregate: %+v", m)
		}
	}
	if m.TotalHashrate != Placeholder {
		t.Errorf("TotalHashrate = %q, want placeholder", m.TotalHashrate)
	}
}

func TestAggregate_Fleet(t *testing.T) {
	devices := []models.Device{
		{
			Status:      models.StatusOnline,
			HashrateAvg: models.Hashrate{Value: 100000, Unit: "GH/s"}, // 100 TH/s
			Temps:       []float64{70, 75},
			Fans:        []float64{5000, 5200},
			Pools:       []models.Pool{{URL: "stratum+tcp://btc.pool.example:3333"}},
		},
		{
			Status:      models.StatusOnline,
			HashrateAvg: models.Hashrate{Value: 100, Unit: "TH/s"},
			Temps:       []float64{80},
			Pools:       []models.Pool{{URL: "stratum+tcp://btc.pool.example:9999"}}, // same host, different port
		},
		{
			Status: models.StatusOffline,
			// No readings: excluded from means, still counted in totals.
			Pools: []models.Pool{{URL: "stratum+tcp://kda.other.example:4444"}},
		},
	}

	m := Aggregate(devices)

	if m.TotalDevices != 3 || m.OnlineCount != 2 {
		t.Errorf("counts = %d/%d, want 3 total 2 online", m.TotalDevices, m.OnlineCount)
	}
	if m.TotalGHS != 200000 {
		t.Errorf("TotalGHS = %v, want 200000", m.TotalGHS)
	}
	if m.TotalHashrate != "200 TH/s" {
		t.Errorf("TotalHashrate = %q, want %q", m.TotalHashrate, "200 TH/s")
	}
	// Mean of per-device max temps: (75 + 80) / 2.
	if m.AvgTemp != 77.5 {
		t.Errorf("AvgTemp = %v, want 77.5", m.AvgTemp)
	}
	// Only one device reports fans: mean of (5100).
	if m.AvgFan != 5100 {
		t.Errorf("AvgFan = %v, want 5100", m.AvgFan)
	}
	if m.UptimePercent != 66.67 {
		t.Errorf("UptimePercent = %v, want 66.67", m.UptimePercent)
	}
	// Two distinct primary-pool hosts.
	if m.ActivePools != 2 {
		t.Errorf("ActivePools = %d, want 2", m.ActivePools)
	}
}

func TestAggregate_UnknownUnitsExcludedFromTotal(t *testing.T) {
	devices := []models.Device{
		{HashrateAvg: models.Hashrate{Value: 50, Unit: "TH/s"}},
		{HashrateAvg: models.Hashrate{Value: 9999, Unit: "Sol/s"}}, // unscalable: contributes 0
	}
	if m := Aggregate(devices); m.TotalGHS != 50000 {
		t.Errorf("TotalGHS = %v, want 50000", m.TotalGHS)
	}
}

func TestAggregate_PlaceholderPoolsNotCounted(t *testing.T) {
	devices := []models.Device{
		{Pools: []models.Pool{{URL: "-"}}},
		{Pools: []models.Pool{{URL: ""}}},
		{},
	}
	if m := Aggregate(devices); m.ActivePools != 0 {
		t.Errorf("ActivePools = %d, want 0", m.ActivePools)
	}
}
