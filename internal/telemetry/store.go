package telemetry

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	"github.com/hashfleet/hashfleet/pkg/models"
)

// HistoryStore persists raw vendor payloads per device identity for trend
// queries. Blobs are stored as received; the canonical record is always
// recomputed from them, never persisted.
type HistoryStore struct {
	db *sql.DB
}

// NewHistoryStore wraps an already-migrated database handle.
func NewHistoryStore(db *sql.DB) *HistoryStore {
	return &HistoryStore{db: db}
}

// HistoryEntry is one stored payload with its arrival time.
type HistoryEntry struct {
	IP         string              `json:"ip"`
	DType      string              `json:"dtype,omitempty"`
	Payload    models.RawTelemetry `json:"payload"`
	ReceivedAt time.Time           `json:"received_at"`
}

// Append stores one raw payload under its IP identity. Records without an
// IP carry no long-term identity and are skipped, not failed.
func (s *HistoryStore) Append(ctx context.Context, raw models.RawTelemetry, receivedAt time.Time) error {
	ip, _ := raw["ip"].(string)
	if ip == "" {
		return nil
	}
	dtype, _ := raw["dtype"].(string)
	blob, err := json.Marshal(raw)
	if err != nil {
		return fmt.Errorf("marshal payload: %w", err)
	}
	_, err = s.db.ExecContext(ctx,
		`INSERT INTO telemetry_history (ip, dtype, payload, received_at) VALUES (?, ?, ?, ?)`,
		ip, dtype, string(blob), receivedAt.UTC(),
	)
	if err != nil {
		return fmt.Errorf("append history: %w", err)
	}
	return nil
}

// AppendBatch stores every identifiable record of a batch.
func (s *HistoryStore) AppendBatch(ctx context.Context, batch []models.RawTelemetry, receivedAt time.Time) error {
	for _, raw := range batch {
		if err := s.Append(ctx, raw, receivedAt); err != nil {
			return err
		}
	}
	return nil
}

// ListByIP returns up to limit stored payloads for one device, newest first,
// optionally bounded to entries at or after since.
func (s *HistoryStore) ListByIP(ctx context.Context, ip string, since time.Time, limit int) ([]HistoryEntry, error) {
	if limit <= 0 {
		limit = 100
	}
	rows, err := s.db.QueryContext(ctx, `
		SELECT ip, dtype, payload, received_at
		FROM telemetry_history
		WHERE ip = ? AND received_at >= ?
		ORDER BY received_at DESC
		LIMIT ?`, ip, since.UTC(), limit)
	if err != nil {
		return nil, fmt.Errorf("list history: %w", err)
	}
	defer rows.Close()

	var out []HistoryEntry
	for rows.Next() {
		var e HistoryEntry
		var blob string
		if err := rows.Scan(&e.IP, &e.DType, &blob, &e.ReceivedAt); err != nil {
			return nil, fmt.Errorf("scan history row: %w", err)
		}
		if err := json.Unmarshal([]byte(blob), &e.Payload); err != nil {
			return nil, fmt.Errorf("unmarshal stored payload: %w", err)
		}
		out = append(out, e)
	}
	return out, rows.Err()
}

// Prune deletes history older than the cutoff. Returns rows removed.
func (s *HistoryStore) Prune(ctx context.Context, olderThan time.Time) (int64, error) {
	res, err := s.db.ExecContext(ctx,
		`DELETE FROM telemetry_history WHERE received_at < ?`, olderThan.UTC())
	if err != nil {
		return 0, fmt.Errorf("prune history: %w", err)
	}
	n, _ := res.RowsAffected()
	return n, nil
}

// Count returns the number of stored history rows.
func (s *HistoryStore) Count(ctx context.Context) (int64, error) {
	var n int64
	err := s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM telemetry_history`).Scan(&n)
	if err != nil {
		return 0, fmt.Errorf("count history: %w", err)
	}
	return n, nil
}
