package telemetry

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"go.uber.org/zap"

	"github.com/hashfleet/hashfleet/internal/miner"
	"github.com/hashfleet/hashfleet/pkg/plugin"
	"github.com/hashfleet/hashfleet/pkg/plugin/plugintest"
)

func TestContract(t *testing.T) {
	plugintest.TestPluginContract(t, func() plugin.Plugin { return New() })
}

func testModule(t *testing.T) *Module {
	t.Helper()
	cfg := DefaultConfig()
	cfg.APIKey = "test-key"
	return &Module{
		cfg:    cfg,
		logger: zap.NewNop(),
		cache:  NewSnapshotCache(cfg.SnapshotCap),
		parser: miner.NewParser(nil),
		prober: NewProber(cfg, zap.NewNop()),
	}
}

func postBatch(t *testing.T, m *Module, body, apiKey string) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(http.MethodPost, "/api/v1/telemetry", strings.NewReader(body))
	if apiKey != "" {
		req.Header.Set("X-API-Key", apiKey)
	}
	rec := httptest.NewRecorder()
	m.handleIngest(rec, req)
	return rec
}

func TestHandleIngest_AcceptsBatch(t *testing.T) {
	m := testModule(t)
	body := `[{"ip":"10.0.0.1","st":200,"dtype":"std","summ":{"SUMMARY":[{"rate_avg":110515.64,"rate_unit":"MH/s","elapsed":3661}]}}]`

	rec := postBatch(t, m, body, "test-key")
	if rec.Code != http.StatusAccepted {
		t.Fatalf("status = %d, want %d; body %s", rec.Code, http.StatusAccepted, rec.Body)
	}

	var resp map[string]any
	if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	if resp["devices"] != float64(1) {
		t.Errorf("devices = %v, want 1", resp["devices"])
	}
	if resp["batch_id"] == "" {
		t.Error("batch_id missing from response")
	}
}

func TestHandleIngest_RejectsBadAPIKey(t *testing.T) {
	m := testModule(t)

	rec := postBatch(t, m, `[{"ip":"10.0.0.1"}]`, "wrong")
	if rec.Code != http.StatusUnauthorized {
		t.Errorf("status = %d, want %d", rec.Code, http.StatusUnauthorized)
	}
	if m.cache.Len() != 0 {
		t.Error("rejected batch must not reach the cache")
	}
}

func TestHandleIngest_RejectsMalformedBody(t *testing.T) {
	m := testModule(t)

	rec := postBatch(t, m, `{broken`, "test-key")
	if rec.Code != http.StatusBadRequest {
		t.Errorf("status = %d, want %d", rec.Code, http.StatusBadRequest)
	}
	if ct := rec.Header().Get("Content-Type"); ct != "application/problem+json" {
		t.Errorf("Content-Type = %q, want problem+json", ct)
	}
}

func TestHandleDevices_FullFlow(t *testing.T) {
	m := testModule(t)

	// Two snapshots of the same device; the dashboard must show only the
	// newer reading.
	postBatch(t, m, `[{"ip":"10.0.0.1","st":200,"dtype":"std","summ":{"SUMMARY":[{"rate_avg":50000,"rate_unit":"MH/s"}]}}]`, "test-key")
	postBatch(t, m, `[
		{"ip":"10.0.0.1","st":200,"dtype":"std","summ":{"SUMMARY":[{"rate_avg":110515.64,"rate_unit":"MH/s"}]}},
		{"ip":"10.0.0.2","st":404,"dtype":"std"}
	]`, "test-key")

	req := httptest.NewRequest(http.MethodGet, "/api/v1/telemetry/devices", nil)
	rec := httptest.NewRecorder()
	m.handleDevices(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want %d", rec.Code, http.StatusOK)
	}
	var view FleetView
	if err := json.Unmarshal(rec.Body.Bytes(), &view); err != nil {
		t.Fatalf("decode fleet view: %v", err)
	}

	if len(view.Rows) != 2 {
		t.Fatalf("rows = %d, want 2 (deduplicated)", len(view.Rows))
	}
	if got := view.Rows[0][miner.ColHashrateAvg]; got != "110.52 TH/s" {
		t.Errorf("row 0 avg hashrate = %q, want 110.52 TH/s (newest reading wins)", got)
	}
	if got := view.Rows[1][miner.ColStatus]; got != "offline" {
		t.Errorf("row 1 status = %q, want offline", got)
	}
	if view.Metrics.TotalDevices != 2 || view.Metrics.OnlineCount != 1 {
		t.Errorf("metrics = %+v, want 2 devices / 1 online", view.Metrics)
	}
	if len(view.Columns) == 0 || view.Columns[0].Key != miner.ColIP {
		t.Errorf("columns = %v, want ip first", view.Columns)
	}
}

func TestHandleRaw_ReturnsLatestBatchVerbatim(t *testing.T) {
	m := testModule(t)
	postBatch(t, m, `[{"ip":"10.0.0.7","vendor_junk":{"weird":[1,2]}}]`, "test-key")

	req := httptest.NewRequest(http.MethodGet, "/api/v1/telemetry/raw", nil)
	rec := httptest.NewRecorder()
	m.handleRaw(rec, req)

	var batch []map[string]any
	if err := json.Unmarshal(rec.Body.Bytes(), &batch); err != nil {
		t.Fatalf("decode raw batch: %v", err)
	}
	if len(batch) != 1 {
		t.Fatalf("raw batch length = %d, want 1", len(batch))
	}
	if _, ok := batch[0]["vendor_junk"]; !ok {
		t.Error("raw endpoint must not strip unknown fields")
	}
}

func TestHandleClear_EmptiesCache(t *testing.T) {
	m := testModule(t)
	postBatch(t, m, `[{"ip":"10.0.0.1"}]`, "test-key")

	req := httptest.NewRequest(http.MethodDelete, "/api/v1/telemetry", nil)
	rec := httptest.NewRecorder()
	m.handleClear(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want %d", rec.Code, http.StatusOK)
	}
	if m.cache.Len() != 0 {
		t.Errorf("cache still holds %d batches after clear", m.cache.Len())
	}
}

func TestHandleColumns_LabelsVisibleKeys(t *testing.T) {
	m := testModule(t)
	postBatch(t, m, `[{"ip":"10.0.0.1","st":200,"dtype":"std","summ":{"SUMMARY":[{"rate_avg":100,"rate_unit":"GH/s"}]}}]`, "test-key")

	req := httptest.NewRequest(http.MethodGet, "/api/v1/telemetry/columns", nil)
	rec := httptest.NewRecorder()
	m.handleColumns(rec, req)

	var resp struct {
		Columns []miner.ColumnSpec `json:"columns"`
	}
	if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
		t.Fatalf("decode columns: %v", err)
	}
	if len(resp.Columns) == 0 {
		t.Fatal("no columns returned")
	}
	if resp.Columns[0].Key != miner.ColIP || resp.Columns[0].Label != "IP" {
		t.Errorf("first column = %+v, want ip / IP", resp.Columns[0])
	}
}

func TestHandleHistory_WithoutStore(t *testing.T) {
	m := testModule(t)

	req := httptest.NewRequest(http.MethodGet, "/api/v1/telemetry/history/10.0.0.1", nil)
	req.SetPathValue("ip", "10.0.0.1")
	rec := httptest.NewRecorder()
	m.handleHistory(rec, req)

	if rec.Code != http.StatusServiceUnavailable {
		t.Errorf("status = %d, want %d", rec.Code, http.StatusServiceUnavailable)
	}
}
