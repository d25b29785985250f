// Package settings persists operator preferences: which column groups and
// fields the dashboard table shows, and which network interface collectors
// bind to.
package settings

import (
	"context"
	"encoding/json"
	"fmt"

	"go.uber.org/zap"

	"github.com/hashfleet/hashfleet/internal/miner"
	"github.com/hashfleet/hashfleet/internal/services"
	"github.com/hashfleet/hashfleet/pkg/plugin"
)

// columnPrefsKey is the settings row holding the serialized preferences.
const columnPrefsKey = "columns:preferences"

// Compile-time interface guards.
var (
	_ plugin.Plugin       = (*Module)(nil)
	_ plugin.HTTPProvider = (*Module)(nil)
)

// Module implements the settings plugin.
type Module struct {
	logger     *zap.Logger
	repo       services.SettingsRepository
	interfaces *services.InterfaceService
}

// New creates a new settings plugin instance.
func New() *Module {
	return &Module{}
}

func (m *Module) Info() plugin.PluginInfo {
	return plugin.PluginInfo{
		Name:        "settings",
		Version:     "0.1.0",
		Description: "Operator preferences for the fleet dashboard",
		APIVersion:  plugin.APIVersionCurrent,
	}
}

func (m *Module) Init(ctx context.Context, deps plugin.Dependencies) error {
	m.logger = deps.Logger
	m.interfaces = services.NewInterfaceService()

	if deps.Store != nil {
		repo, err := services.NewSQLiteSettingsRepository(ctx, deps.Store.DB())
		if err != nil {
			return fmt.Errorf("settings repository: %w", err)
		}
		m.repo = repo
	}

	m.logger.Info("settings module initialized", zap.Bool("persistent", m.repo != nil))
	return nil
}

func (m *Module) Start(_ context.Context) error {
	m.logger.Info("settings module started")
	return nil
}

func (m *Module) Stop(_ context.Context) error {
	m.logger.Info("settings module stopped")
	return nil
}

// ColumnPreferences returns the stored display preferences, falling back to
// the defaults when nothing is stored or the stored blob does not parse.
// The telemetry module reads these when computing the fleet view.
func (m *Module) ColumnPreferences(ctx context.Context) miner.DisplayPreferences {
	if m.repo == nil {
		return miner.DefaultPreferences()
	}
	setting, err := m.repo.Get(ctx, columnPrefsKey)
	if err != nil {
		if err != services.ErrNotFound {
			m.logger.Warn("failed to load column preferences", zap.Error(err))
		}
		return miner.DefaultPreferences()
	}
	var prefs miner.DisplayPreferences
	if err := json.Unmarshal([]byte(setting.Value), &prefs); err != nil {
		m.logger.Warn("stored column preferences unparsable, using defaults", zap.Error(err))
		return miner.DefaultPreferences()
	}
	return prefs
}

// savePreferences serializes and persists the preferences.
func (m *Module) savePreferences(ctx context.Context, prefs miner.DisplayPreferences) error {
	data, err := json.Marshal(prefs)
	if err != nil {
		return fmt.Errorf("marshal preferences: %w", err)
	}
	return m.repo.Set(ctx, columnPrefsKey, string(data))
}
