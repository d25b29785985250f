// Package telemetry receives raw vendor payloads from collector agents,
// normalizes them through the miner parser, and serves the fleet dashboard
// API: formatted device rows, fleet KPIs, per-device history, and
// reachability probes.
package telemetry

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/hashfleet/hashfleet/internal/miner"
	"github.com/hashfleet/hashfleet/pkg/models"
	"github.com/hashfleet/hashfleet/pkg/plugin"
)

// Compile-time interface guards.
var (
	_ plugin.Plugin       = (*Module)(nil)
	_ plugin.HTTPProvider = (*Module)(nil)
)

// PreferenceSource supplies the operator's column display preferences.
// Implemented by the settings plugin; resolved at Start so module init
// order does not matter.
type PreferenceSource interface {
	ColumnPreferences(ctx context.Context) miner.DisplayPreferences
}

// Module implements the telemetry plugin.
type Module struct {
	cfg     Config
	logger  *zap.Logger
	cache   *SnapshotCache
	parser  *miner.Parser
	prober  *Prober
	history *HistoryStore
	bus     plugin.EventBus
	plugins plugin.PluginResolver

	prefsMu sync.RWMutex
	prefs   PreferenceSource

	stopCh chan struct{}
	wg     sync.WaitGroup
}

// New creates a new telemetry plugin instance.
func New() *Module {
	return &Module{}
}

func (m *Module) Info() plugin.PluginInfo {
	return plugin.PluginInfo{
		Name:        "telemetry",
		Version:     "0.1.0",
		Description: "Miner telemetry ingestion and fleet dashboard API",
		Roles:       []string{"monitoring"},
		APIVersion:  plugin.APIVersionCurrent,
	}
}

func (m *Module) Init(ctx context.Context, deps plugin.Dependencies) error {
	m.logger = deps.Logger
	m.bus = deps.Bus
	m.plugins = deps.Plugins
	m.cfg = configFrom(deps.Config)
	m.cache = NewSnapshotCache(m.cfg.SnapshotCap)
	m.parser = miner.NewParser(m.logger)
	m.prober = NewProber(m.cfg, m.logger)

	if deps.Store != nil {
		if err := deps.Store.Migrate(ctx, "telemetry", migrations()); err != nil {
			return fmt.Errorf("telemetry migrations: %w", err)
		}
		m.history = NewHistoryStore(deps.Store.DB())
	}

	m.logger.Info("telemetry module initialized",
		zap.Int("snapshot_cap", m.cfg.SnapshotCap),
		zap.Bool("history", m.history != nil),
	)
	return nil
}

func (m *Module) Start(ctx context.Context) error {
	if m.plugins != nil {
		if p, ok := m.plugins.Resolve("settings"); ok {
			if src, ok := p.(PreferenceSource); ok {
				m.prefsMu.Lock()
				m.prefs = src
				m.prefsMu.Unlock()
			}
		}
	}

	m.stopCh = make(chan struct{})
	if m.history != nil && m.cfg.Retention > 0 {
		m.wg.Add(1)
		go m.maintenanceLoop()
	}

	m.logger.Info("telemetry module started")
	return nil
}

func (m *Module) Stop(ctx context.Context) error {
	if m.stopCh != nil {
		close(m.stopCh)
	}
	m.wg.Wait()
	m.logger.Info("telemetry module stopped")
	return nil
}

// maintenanceLoop prunes history rows past the retention window.
func (m *Module) maintenanceLoop() {
	defer m.wg.Done()

	ticker := time.NewTicker(m.cfg.MaintenanceInterval)
	defer ticker.Stop()

	for {
		select {
		case <-m.stopCh:
			return
		case <-ticker.C:
			cutoff := time.Now().Add(-m.cfg.Retention)
			ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
			removed, err := m.history.Prune(ctx, cutoff)
			cancel()
			if err != nil {
				m.logger.Warn("history prune failed", zap.Error(err))
				continue
			}
			if removed > 0 {
				m.logger.Debug("pruned telemetry history", zap.Int64("rows", removed))
			}
		}
	}
}

// preferences returns the operator's column preferences, or the defaults
// when the settings plugin is absent.
func (m *Module) preferences(ctx context.Context) miner.DisplayPreferences {
	m.prefsMu.RLock()
	src := m.prefs
	m.prefsMu.RUnlock()
	if src == nil {
		return miner.DefaultPreferences()
	}
	return src.ColumnPreferences(ctx)
}

// Ingest feeds a decoded batch into the module directly, bypassing HTTP.
// The MQTT bridge uses this path. Returns the assigned batch ID.
func (m *Module) Ingest(ctx context.Context, batch []models.RawTelemetry, receivedAt time.Time) string {
	return m.accept(ctx, batch, receivedAt)
}

// accept records a batch: cache it, persist history, refresh fleet metrics,
// and announce it on the bus.
func (m *Module) accept(ctx context.Context, batch []models.RawTelemetry, receivedAt time.Time) string {
	batchID := uuid.NewString()
	m.cache.Put(batch, receivedAt)

	if m.history != nil {
		if err := m.history.AppendBatch(ctx, batch, receivedAt); err != nil {
			m.logger.Warn("failed to persist telemetry history", zap.Error(err))
		}
	}

	fleet := m.currentFleet(ctx)
	batchesTotal.Inc()
	recordFleetMetrics(fleet.Metrics)

	if m.bus != nil {
		m.bus.PublishAsync(ctx, plugin.Event{
			Topic:  TopicBatchReceived,
			Source: "telemetry",
			Payload: BatchEvent{
				BatchID:    batchID,
				Devices:    len(batch),
				ReceivedAt: receivedAt,
			},
		})
	}
	return batchID
}
