package telemetry

import (
	"bufio"
	"bytes"
	"encoding/json"
	"fmt"

	"github.com/hashfleet/hashfleet/pkg/models"
)

// maxLineBytes bounds a single NDJSON line. Miner payloads are a few KB;
// one megabyte leaves generous headroom.
const maxLineBytes = 1 << 20

// maxBatchBytes bounds a whole request body at the ingest endpoint.
const maxBatchBytes = 16 << 20

// DecodeBatch normalizes the three collector wire shapes -- a JSON array, a
// single JSON object, or newline-delimited JSON objects -- into one record
// slice. This is the ingestion boundary: invalid JSON is rejected here so
// the parser downstream never sees it.
func DecodeBatch(body []byte) ([]models.RawTelemetry, error) {
	trimmed := bytes.TrimSpace(body)
	if len(trimmed) == 0 {
		return nil, fmt.Errorf("empty payload")
	}

	if trimmed[0] == '[' {
		var batch []models.RawTelemetry
		if err := json.Unmarshal(trimmed, &batch); err != nil {
			return nil, fmt.Errorf("decode JSON array: %w", err)
		}
		return batch, nil
	}

	// A lone object and single-line NDJSON are the same bytes; try the
	// whole-document parse first and fall back to line scanning.
	var single models.RawTelemetry
	if err := json.Unmarshal(trimmed, &single); err == nil {
		return []models.RawTelemetry{single}, nil
	}

	var batch []models.RawTelemetry
	scanner := bufio.NewScanner(bytes.NewReader(trimmed))
	scanner.Buffer(make([]byte, 0, 64*1024), maxLineBytes)
	line := 0
	for scanner.Scan() {
		line++
		raw := bytes.TrimSpace(scanner.Bytes())
		if len(raw) == 0 {
			continue
		}
		var rec models.RawTelemetry
		if err := json.Unmarshal(raw, &rec); err != nil {
			return nil, fmt.Errorf("decode NDJSON line %d: %w", line, err)
		}
		batch = append(batch, rec)
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("scan NDJSON: %w", err)
	}
	if len(batch) == 0 {
		return nil, fmt.Errorf("no records in payload")
	}
	return batch, nil
}
