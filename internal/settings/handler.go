package settings

import (
	"encoding/json"
	"net/http"

	"go.uber.org/zap"

	"github.com/hashfleet/hashfleet/internal/miner"
	"github.com/hashfleet/hashfleet/pkg/plugin"
)

// validGroups are the column groups operators may toggle. Core columns have
// no preference entry; they are always shown.
var validGroups = map[miner.ColumnGroup]bool{
	miner.GroupAPI:           true,
	miner.GroupConfiguration: true,
	miner.GroupFirmware:      true,
	miner.GroupSerial:        true,
}

// Routes implements plugin.HTTPProvider. Routes mount under /api/v1/settings.
func (m *Module) Routes() []plugin.Route {
	return []plugin.Route{
		{Method: "GET", Path: "/columns", Handler: m.handleGetColumns},
		{Method: "PUT", Path: "/columns", Handler: m.handlePutColumns},
		{Method: "PUT", Path: "/columns/{group}", Handler: m.handleSetGroup},
		{Method: "POST", Path: "/columns/{group}/toggle", Handler: m.handleToggleField},
		{Method: "GET", Path: "/interfaces", Handler: m.handleListInterfaces},
	}
}

// handleGetColumns returns the stored column display preferences.
//
//	@Summary		Get column preferences
//	@Description	Returns per-group column visibility preferences.
//	@Tags			settings
//	@Produce		json
//	@Security		BearerAuth
//	@Success		200 {object} miner.DisplayPreferences
//	@Router			/settings/columns [get]
func (m *Module) handleGetColumns(w http.ResponseWriter, r *http.Request) {
	settingsWriteJSON(w, http.StatusOK, m.ColumnPreferences(r.Context()))
}

// handlePutColumns replaces the column display preferences wholesale.
//
//	@Summary		Replace column preferences
//	@Description	Replaces per-group column visibility preferences.
//	@Tags			settings
//	@Accept			json
//	@Produce		json
//	@Security		BearerAuth
//	@Success		200 {object} miner.DisplayPreferences
//	@Failure		400 {object} map[string]any
//	@Router			/settings/columns [put]
func (m *Module) handlePutColumns(w http.ResponseWriter, r *http.Request) {
	if m.repo == nil {
		settingsWriteError(w, http.StatusServiceUnavailable, "settings store not available")
		return
	}
	var prefs miner.DisplayPreferences
	if err := json.NewDecoder(r.Body).Decode(&prefs); err != nil {
		settingsWriteError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	for group := range prefs {
		if !validGroups[group] {
			settingsWriteError(w, http.StatusBadRequest, "unknown column group: "+string(group))
			return
		}
	}

	if err := m.savePreferences(r.Context(), prefs); err != nil {
		m.logger.Error("failed to save column preferences", zap.Error(err))
		settingsWriteError(w, http.StatusInternalServerError, "failed to save preferences")
		return
	}
	settingsWriteJSON(w, http.StatusOK, prefs)
}

// handleSetGroup bulk-enables or disables a whole column group.
//
//	@Summary		Toggle column group
//	@Description	Enables a group with its full field list, or disables it entirely.
//	@Tags			settings
//	@Accept			json
//	@Produce		json
//	@Security		BearerAuth
//	@Param			group path string true "Column group"
//	@Success		200 {object} miner.GroupPrefs
//	@Failure		400 {object} map[string]any
//	@Router			/settings/columns/{group} [put]
func (m *Module) handleSetGroup(w http.ResponseWriter, r *http.Request) {
	if m.repo == nil {
		settingsWriteError(w, http.StatusServiceUnavailable, "settings store not available")
		return
	}
	group := miner.ColumnGroup(r.PathValue("group"))
	if !validGroups[group] {
		settingsWriteError(w, http.StatusBadRequest, "unknown column group: "+string(group))
		return
	}
	var req struct {
		Enabled bool `json:"enabled"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		settingsWriteError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	prefs := m.ColumnPreferences(r.Context())
	prefs.SetGroupEnabled(group, req.Enabled)
	if err := m.savePreferences(r.Context(), prefs); err != nil {
		m.logger.Error("failed to save column preferences", zap.Error(err))
		settingsWriteError(w, http.StatusInternalServerError, "failed to save preferences")
		return
	}
	settingsWriteJSON(w, http.StatusOK, prefs[group])
}

// handleToggleField flips one field's visibility within a group. Paired
// columns (a pool URL and its aliveness flag) move together.
//
//	@Summary		Toggle column field
//	@Description	Flips a single field's visibility; coupled fields follow.
//	@Tags			settings
//	@Accept			json
//	@Produce		json
//	@Security		BearerAuth
//	@Param			group path string true "Column group"
//	@Success		200 {object} miner.GroupPrefs
//	@Failure		400 {object} map[string]any
//	@Router			/settings/columns/{group}/toggle [post]
func (m *Module) handleToggleField(w http.ResponseWriter, r *http.Request) {
	if m.repo == nil {
		settingsWriteError(w, http.StatusServiceUnavailable, "settings store not available")
		return
	}
	group := miner.ColumnGroup(r.PathValue("group"))
	if !validGroups[group] {
		settingsWriteError(w, http.StatusBadRequest, "unknown column group: "+string(group))
		return
	}
	var req struct {
		Field string `json:"field"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil || req.Field == "" {
		settingsWriteError(w, http.StatusBadRequest, "field is required")
		return
	}

	prefs := m.ColumnPreferences(r.Context())
	prefs.ToggleField(group, req.Field)
	if err := m.savePreferences(r.Context(), prefs); err != nil {
		m.logger.Error("failed to save column preferences", zap.Error(err))
		settingsWriteError(w, http.StatusInternalServerError, "failed to save preferences")
		return
	}
	settingsWriteJSON(w, http.StatusOK, prefs[group])
}

// handleListInterfaces returns the server's network interfaces, for picking
// the collector bind address.
//
//	@Summary		List network interfaces
//	@Description	Returns interfaces with an IPv4 address, excluding loopback.
//	@Tags			settings
//	@Produce		json
//	@Security		BearerAuth
//	@Success		200 {array} services.HostInterface
//	@Failure		500 {object} map[string]any
//	@Router			/settings/interfaces [get]
func (m *Module) handleListInterfaces(w http.ResponseWriter, _ *http.Request) {
	interfaces, err := m.interfaces.ListNetworkInterfaces()
	if err != nil {
		m.logger.Error("failed to list interfaces", zap.Error(err))
		settingsWriteError(w, http.StatusInternalServerError, "failed to list network interfaces")
		return
	}
	settingsWriteJSON(w, http.StatusOK, interfaces)
}

// -- helpers --

func settingsWriteJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func settingsWriteError(w http.ResponseWriter, status int, detail string) {
	w.Header().Set("Content-Type", "application/problem+json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(map[string]any{
		"type":   "https://hashfleet.io/problems/settings-error",
		"title":  http.StatusText(status),
		"status": status,
		"detail": detail,
	})
}
