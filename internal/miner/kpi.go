package miner

import (
	"math"
	"strings"

	"github.com/hashfleet/hashfleet/pkg/models"
)

// Aggregate reduces a canonical device collection into fleet-level KPIs.
// Defined for the empty collection: all-zero metrics, never NaN.
func Aggregate(devices []models.Device) models.FleetMetrics {
	m := models.FleetMetrics{
		TotalDevices:  len(devices),
		TotalHashrate: Placeholder,
	}

	var (
		tempSum  float64
		tempN    int
		fanSum   float64
		fanN     int
		poolSeen = map[string]struct{}{}
	)

	for _, d := range devices {
		if d.Status == models.StatusOnline {
			m.OnlineCount++
		}

		m.TotalGHS += ToGHS(d.HashrateAvg.Value, d.HashrateAvg.Unit)

		// Zero or absent readings are excluded from means, not counted
		// as 0 degC / 0 RPM.
		if t := maxReading(d.Temps); t > 0 {
			tempSum += t
			tempN++
		}
		if f := meanReading(d.Fans); f > 0 {
			fanSum += f
			fanN++
		}

		if len(d.Pools) > 0 {
			if host := poolHost(d.Pools[0].URL); host != "" {
				poolSeen[host] = struct{}{}
			}
		}
	}

	if m.TotalGHS > 0 {
		// Totals are summed in GH/s and displayed one unit up.
		m.TotalHashrate = FormatHashrate(m.TotalGHS/1000, "TH/s")
	}
	if tempN > 0 {
		m.AvgTemp = round2(tempSum / float64(tempN))
	}
	if fanN > 0 {
		m.AvgFan = round2(fanSum / float64(fanN))
	}
	if m.TotalDevices > 0 {
		m.UptimePercent = round2(float64(m.OnlineCount) / float64(m.TotalDevices) * 100)
	}
	m.ActivePools = len(poolSeen)

	return m
}

func maxReading(vals []float64) float64 {
	var max float64
	for _, v := range vals {
		if v > max {
			max = v
		}
	}
	return max
}

func meanReading(vals []float64) float64 {
	if len(vals) == 0 {
		return 0
	}
	var sum float64
	for _, v := range vals {
		sum += v
	}
	return sum / float64(len(vals))
}

func round2(v float64) float64 {
	return math.Round(v*100) / 100
}

// poolHost extracts the hostname from a pool URL for distinct-pool
// counting. Placeholder and empty values yield "".
func poolHost(url string) string {
	s := StripPoolScheme(strings.TrimSpace(url))
	if s == "" || s == Placeholder {
		return ""
	}
	if i := strings.IndexAny(s, ":/"); i >= 0 {
		s = s[:i]
	}
	return s
}
