package telemetry

import (
	"context"
	"runtime"
	"time"

	probing "github.com/prometheus-community/pro-bing"
	"go.uber.org/zap"
)

// Prober checks whether a miner answers ICMP. It distinguishes "host down"
// from "host up, API unresponsive" when a device stops reporting.
type Prober struct {
	timeout time.Duration
	count   int
	logger  *zap.Logger
}

// NewProber creates a prober with the module's probe settings.
func NewProber(cfg Config, logger *zap.Logger) *Prober {
	return &Prober{
		timeout: cfg.ProbeTimeout,
		count:   cfg.ProbeCount,
		logger:  logger,
	}
}

// ProbeResult is the outcome of pinging one device.
type ProbeResult struct {
	IP        string        `json:"ip"`
	Reachable bool          `json:"reachable"`
	RTT       time.Duration `json:"rtt_ns"`
	Sent      int           `json:"sent"`
	Received  int           `json:"received"`
}

// Probe pings a single device address and reports reachability.
func (p *Prober) Probe(ctx context.Context, ip string) (ProbeResult, error) {
	result := ProbeResult{IP: ip}

	pinger, err := probing.NewPinger(ip)
	if err != nil {
		return result, err
	}

	pinger.Count = p.count
	pinger.Timeout = p.timeout
	pinger.SetPrivileged(runtime.GOOS == "windows")

	done := make(chan struct{})
	go func() {
		defer close(done)
		if runErr := pinger.Run(); runErr != nil {
			p.logger.Debug("ping failed", zap.String("ip", ip), zap.Error(runErr))
		}
	}()

	select {
	case <-done:
	case <-ctx.Done():
		pinger.Stop()
		return result, ctx.Err()
	}

	stats := pinger.Statistics()
	result.Sent = stats.PacketsSent
	result.Received = stats.PacketsRecv
	if stats.PacketsRecv > 0 {
		result.Reachable = true
		result.RTT = stats.AvgRtt
	}
	return result, nil
}
