package telemetry

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"sort"
	"strconv"
	"time"

	"go.uber.org/zap"

	"github.com/hashfleet/hashfleet/internal/miner"
	"github.com/hashfleet/hashfleet/pkg/models"
	"github.com/hashfleet/hashfleet/pkg/plugin"
)

// Routes implements plugin.HTTPProvider. Routes mount under /api/v1/telemetry.
func (m *Module) Routes() []plugin.Route {
	return []plugin.Route{
		{Method: "POST", Path: "", Handler: m.handleIngest},
		{Method: "DELETE", Path: "", Handler: m.handleClear},
		{Method: "GET", Path: "/devices", Handler: m.handleDevices},
		{Method: "GET", Path: "/raw", Handler: m.handleRaw},
		{Method: "GET", Path: "/columns", Handler: m.handleColumns},
		{Method: "GET", Path: "/history/{ip}", Handler: m.handleHistory},
		{Method: "POST", Path: "/devices/{ip}/probe", Handler: m.handleProbe},
	}
}

// handleIngest accepts one telemetry batch from a collector agent.
//
//	@Summary		Ingest telemetry
//	@Description	Accepts a batch of raw vendor payloads (JSON array, single object, or NDJSON).
//	@Tags			telemetry
//	@Accept			json
//	@Produce		json
//	@Param			X-API-Key header string true "Collector API key"
//	@Success		202 {object} map[string]any
//	@Failure		400 {object} map[string]any
//	@Failure		401 {object} map[string]any
//	@Router			/telemetry [post]
func (m *Module) handleIngest(w http.ResponseWriter, r *http.Request) {
	if m.cfg.APIKey != "" && r.Header.Get("X-API-Key") != m.cfg.APIKey {
		telemetryWriteError(w, http.StatusUnauthorized, "invalid or missing API key")
		return
	}

	body, err := io.ReadAll(io.LimitReader(r.Body, maxBatchBytes))
	if err != nil {
		telemetryWriteError(w, http.StatusBadRequest, "failed to read request body")
		return
	}
	batch, err := DecodeBatch(body)
	if err != nil {
		m.logger.Warn("rejected telemetry batch", zap.Error(err))
		telemetryWriteError(w, http.StatusBadRequest, err.Error())
		return
	}

	batchID := m.accept(r.Context(), batch, time.Now().UTC())
	m.logger.Info("telemetry batch accepted",
		zap.String("batch_id", batchID),
		zap.Int("devices", len(batch)),
	)
	telemetryWriteJSON(w, http.StatusAccepted, map[string]any{
		"batch_id": batchID,
		"devices":  len(batch),
	})
}

// FleetView is the dashboard payload: one formatted row per device plus
// fleet-wide aggregates and the columns the client should render.
type FleetView struct {
	Rows      []models.DisplayRow `json:"rows"`
	Columns   []miner.ColumnSpec  `json:"columns"`
	Metrics   models.FleetMetrics `json:"metrics"`
	UpdatedAt time.Time           `json:"updated_at"`
}

// handleDevices returns the deduplicated, parsed, formatted fleet view.
//
//	@Summary		Fleet view
//	@Description	Returns formatted device rows, visible columns, and fleet KPIs from the latest telemetry.
//	@Tags			telemetry
//	@Produce		json
//	@Security		BearerAuth
//	@Success		200 {object} FleetView
//	@Router			/telemetry/devices [get]
func (m *Module) handleDevices(w http.ResponseWriter, r *http.Request) {
	telemetryWriteJSON(w, http.StatusOK, m.currentFleet(r.Context()))
}

// handleRaw returns the most recent raw batch untouched, for debugging
// vendor payloads.
//
//	@Summary		Raw telemetry
//	@Description	Returns the most recently received batch without normalization.
//	@Tags			telemetry
//	@Produce		json
//	@Security		BearerAuth
//	@Success		200 {array} models.RawTelemetry
//	@Router			/telemetry/raw [get]
func (m *Module) handleRaw(w http.ResponseWriter, r *http.Request) {
	batch := m.cache.Last()
	if batch == nil {
		batch = []models.RawTelemetry{}
	}
	telemetryWriteJSON(w, http.StatusOK, batch)
}

// handleColumns returns the column set the dashboard should render for the
// current fleet and preferences.
//
//	@Summary		Visible columns
//	@Description	Returns render-order column keys and their display labels.
//	@Tags			telemetry
//	@Produce		json
//	@Security		BearerAuth
//	@Success		200 {object} map[string]any
//	@Router			/telemetry/columns [get]
func (m *Module) handleColumns(w http.ResponseWriter, r *http.Request) {
	fleet := m.currentFleet(r.Context())
	telemetryWriteJSON(w, http.StatusOK, map[string]any{
		"columns": fleet.Columns,
	})
}

// handleHistory returns stored payloads for one device, newest first.
//
//	@Summary		Device history
//	@Description	Returns raw payloads previously received for a device IP.
//	@Tags			telemetry
//	@Produce		json
//	@Security		BearerAuth
//	@Param			ip path string true "Device IP"
//	@Param			limit query int false "Maximum entries" default(100)
//	@Param			since query string false "RFC 3339 lower bound"
//	@Success		200 {array} HistoryEntry
//	@Failure		500 {object} map[string]any
//	@Router			/telemetry/history/{ip} [get]
func (m *Module) handleHistory(w http.ResponseWriter, r *http.Request) {
	if m.history == nil {
		telemetryWriteError(w, http.StatusServiceUnavailable, "history store not available")
		return
	}
	ip := r.PathValue("ip")
	if ip == "" {
		telemetryWriteError(w, http.StatusBadRequest, "ip is required")
		return
	}

	since := time.Time{}
	if s := r.URL.Query().Get("since"); s != "" {
		t, err := time.Parse(time.RFC3339, s)
		if err != nil {
			telemetryWriteError(w, http.StatusBadRequest, "since must be RFC 3339")
			return
		}
		since = t
	}
	limit := telemetryParseLimit(r, 100)

	entries, err := m.history.ListByIP(r.Context(), ip, since, limit)
	if err != nil {
		m.logger.Warn("failed to list history", zap.String("ip", ip), zap.Error(err))
		telemetryWriteError(w, http.StatusInternalServerError, "failed to list history")
		return
	}
	if entries == nil {
		entries = []HistoryEntry{}
	}
	telemetryWriteJSON(w, http.StatusOK, entries)
}

// handleClear drops all cached batches so stale devices disappear from the
// dashboard immediately.
//
//	@Summary		Clear telemetry
//	@Description	Drops the in-memory snapshot window.
//	@Tags			telemetry
//	@Produce		json
//	@Security		BearerAuth
//	@Success		200 {object} map[string]any
//	@Router			/telemetry [delete]
func (m *Module) handleClear(w http.ResponseWriter, r *http.Request) {
	m.cache.Clear()
	recordFleetMetrics(models.FleetMetrics{TotalHashrate: miner.Placeholder})

	if m.bus != nil {
		m.bus.PublishAsync(r.Context(), plugin.Event{
			Topic:   TopicStoreCleared,
			Source:  "telemetry",
			Payload: ClearedEvent{ClearedAt: time.Now().UTC()},
		})
	}

	m.logger.Info("telemetry snapshot cleared")
	telemetryWriteJSON(w, http.StatusOK, map[string]any{"cleared": true})
}

// handleProbe pings a device to check network reachability.
//
//	@Summary		Probe device
//	@Description	Sends ICMP echo requests to a device IP and reports reachability.
//	@Tags			telemetry
//	@Produce		json
//	@Security		BearerAuth
//	@Param			ip path string true "Device IP"
//	@Success		200 {object} ProbeResult
//	@Failure		500 {object} map[string]any
//	@Router			/telemetry/devices/{ip}/probe [post]
func (m *Module) handleProbe(w http.ResponseWriter, r *http.Request) {
	ip := r.PathValue("ip")
	if ip == "" {
		telemetryWriteError(w, http.StatusBadRequest, "ip is required")
		return
	}
	result, err := m.prober.Probe(r.Context(), ip)
	if err != nil {
		m.logger.Warn("probe failed", zap.String("ip", ip), zap.Error(err))
		telemetryWriteError(w, http.StatusInternalServerError, "probe failed")
		return
	}
	telemetryWriteJSON(w, http.StatusOK, result)
}

// currentFleet builds the full dashboard view from the cached snapshots:
// flatten, dedupe by IP, parse, sort by address, format, aggregate.
func (m *Module) currentFleet(ctx context.Context) FleetView {
	raw := miner.Dedupe(m.cache.Flatten())
	devices := m.parser.ParseAll(raw)
	sort.SliceStable(devices, func(i, j int) bool {
		return miner.CompareIP(devices[i].IP, devices[j].IP) < 0
	})

	rows := miner.FormatAll(devices)

	// Column layout is computed over the union of row keys so a field
	// reported by only one vendor still gets a column.
	merged := models.DisplayRow{}
	for _, row := range rows {
		for k, v := range row {
			merged[k] = v
		}
	}

	return FleetView{
		Rows:      rows,
		Columns:   miner.VisibleColumns(merged, m.preferences(ctx)),
		Metrics:   miner.Aggregate(devices),
		UpdatedAt: m.cache.UpdatedAt(),
	}
}

// -- helpers --

func telemetryWriteJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(data)
}

func telemetryWriteError(w http.ResponseWriter, status int, detail string) {
	w.Header().Set("Content-Type", "application/problem+json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(map[string]any{
		"type":   "https://hashfleet.io/problems/" + http.StatusText(status),
		"title":  http.StatusText(status),
		"status": status,
		"detail": detail,
	})
}

func telemetryParseLimit(r *http.Request, defaultLimit int) int {
	if s := r.URL.Query().Get("limit"); s != "" {
		if n, err := strconv.Atoi(s); err == nil && n > 0 && n <= 1000 {
			return n
		}
	}
	return defaultLimit
}
