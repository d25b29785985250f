package telemetry

import (
	"database/sql"

	"github.com/hashfleet/hashfleet/pkg/plugin"
)

func migrations() []plugin.Migration {
	return []plugin.Migration{
		{
			Version:     1,
			Description: "create telemetry history table",
			Up: func(tx *sql.Tx) error {
				stmts := []string{
					`CREATE TABLE IF NOT EXISTS telemetry_history (
						id INTEGER PRIMARY KEY AUTOINCREMENT,
						ip TEXT NOT NULL,
						dtype TEXT NOT NULL DEFAULT '',
						payload TEXT NOT NULL,
						received_at DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP
					)`,
					`CREATE INDEX IF NOT EXISTS idx_telemetry_history_ip_time ON telemetry_history(ip, received_at)`,
					`CREATE INDEX IF NOT EXISTS idx_telemetry_history_time ON telemetry_history(received_at)`,
				}
				for _, stmt := range stmts {
					if _, err := tx.Exec(stmt); err != nil {
						return err
					}
				}
				return nil
			},
		},
	}
}
