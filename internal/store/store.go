// Package store provides the shared SQLite database every HashFleet
// module persists through, including per-module schema migrations.
package store

import (
	"context"
	"database/sql"
	"fmt"
	"sync"

	"golang.org/x/mod/semver"
	_ "modernc.org/sqlite" // pure-Go SQLite driver, no cgo

	"github.com/hashfleet/hashfleet/pkg/plugin"
)

// ErrNewerSchema means the database on disk was written by a newer
// HashFleet binary. Opening it with an older one risks data loss, so
// startup refuses.
var ErrNewerSchema = fmt.Errorf("database was created by a newer version of HashFleet")

var _ plugin.Store = (*SQLiteStore)(nil)

// startupPragmas tune the connection for a single-writer server.
// modernc.org/sqlite takes these as statements, not DSN parameters.
var startupPragmas = []string{
	"PRAGMA journal_mode=WAL",
	"PRAGMA busy_timeout=5000",
	"PRAGMA synchronous=NORMAL",
	"PRAGMA foreign_keys=ON",
	"PRAGMA cache_size=-20000",
}

// SQLiteStore is the plugin.Store implementation handed to every module.
type SQLiteStore struct {
	db        *sql.DB
	mu        sync.Mutex // one module migrates at a time
	ledgerOne sync.Once  // _migrations table is created at most once
}

// New opens or creates the database at path, pings it, and applies the
// startup pragmas. Use ":memory:" for tests.
func New(path string) (*SQLiteStore, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("open sqlite %q: %w", path, err)
	}

	// A single write connection avoids SQLITE_BUSY churn; WAL still
	// lets readers proceed alongside it.
	db.SetMaxOpenConns(1)

	if err := db.PingContext(context.Background()); err != nil {
		db.Close()
		return nil, fmt.Errorf("ping sqlite %q: %w", path, err)
	}

	for _, pragma := range startupPragmas {
		if _, err := db.Exec(pragma); err != nil {
			db.Close()
			return nil, fmt.Errorf("exec %q: %w", pragma, err)
		}
	}

	return &SQLiteStore{db: db}, nil
}

// DB exposes the underlying handle for direct queries.
func (s *SQLiteStore) DB() *sql.DB {
	return s.db
}

// Tx runs fn inside a transaction, committing on nil and rolling back
// on error.
func (s *SQLiteStore) Tx(ctx context.Context, fn func(tx *sql.Tx) error) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}

	if err := fn(tx); err != nil {
		if rbErr := tx.Rollback(); rbErr != nil {
			return fmt.Errorf("rollback failed: %v (original: %w)", rbErr, err)
		}
		return err
	}

	return tx.Commit()
}

// Migrate applies the module's pending migrations in the order given,
// skipping versions already recorded in the shared _migrations ledger.
func (s *SQLiteStore) Migrate(ctx context.Context, moduleName string, migrations []plugin.Migration) error {
	if err := s.ensureLedger(ctx); err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	applied, err := s.appliedVersions(ctx, moduleName)
	if err != nil {
		return err
	}

	for _, m := range migrations {
		if applied[m.Version] {
			continue
		}
		if err := s.applyMigration(ctx, moduleName, m); err != nil {
			return fmt.Errorf("migration %s/%d (%s): %w", moduleName, m.Version, m.Description, err)
		}
	}

	return nil
}

// Close closes the database.
func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

// CheckVersion guards against opening a database written by a newer
// binary. The first run records the binary version; later runs compare
// semver and bump the stored value when the binary is newer. The
// version "dev" bypasses the check in either direction.
func (s *SQLiteStore) CheckVersion(ctx context.Context, currentVersion string) error {
	if err := s.ensureSchemaMeta(ctx); err != nil {
		return fmt.Errorf("ensure schema meta table: %w", err)
	}

	var stored string
	err := s.db.QueryRowContext(ctx,
		"SELECT app_version FROM _schema_meta WHERE id = 1",
	).Scan(&stored)

	if err == sql.ErrNoRows {
		_, err = s.db.ExecContext(ctx,
			"INSERT INTO _schema_meta (id, app_version, updated_at) VALUES (1, ?, CURRENT_TIMESTAMP)",
			currentVersion,
		)
		if err != nil {
			return fmt.Errorf("insert schema version: %w", err)
		}
		return nil
	}
	if err != nil {
		return fmt.Errorf("query schema version: %w", err)
	}

	if stored == "dev" || currentVersion == "dev" {
		return s.recordVersion(ctx, currentVersion)
	}

	switch semver.Compare(vPrefix(currentVersion), vPrefix(stored)) {
	case -1:
		return fmt.Errorf("%w: database=%s, binary=%s", ErrNewerSchema, stored, currentVersion)
	case 1:
		return s.recordVersion(ctx, currentVersion)
	}
	return nil
}

func (s *SQLiteStore) recordVersion(ctx context.Context, version string) error {
	_, err := s.db.ExecContext(ctx,
		"UPDATE _schema_meta SET app_version = ?, updated_at = CURRENT_TIMESTAMP WHERE id = 1",
		version,
	)
	if err != nil {
		return fmt.Errorf("update schema version: %w", err)
	}
	return nil
}

func (s *SQLiteStore) ensureSchemaMeta(ctx context.Context) error {
	_, err := s.db.ExecContext(ctx, `
		CREATE TABLE IF NOT EXISTS _schema_meta (
			id           INTEGER  PRIMARY KEY CHECK (id = 1),
			app_version  TEXT     NOT NULL,
			updated_at   DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP
		)
	`)
	return err
}

// vPrefix makes a bare version comparable by the semver package.
func vPrefix(v string) string {
	if v != "" && v[0] != 'v' {
		return "v" + v
	}
	return v
}

func (s *SQLiteStore) ensureLedger(ctx context.Context) error {
	var err error
	s.ledgerOne.Do(func() {
		_, err = s.db.ExecContext(ctx, `
			CREATE TABLE IF NOT EXISTS _migrations (
				plugin_name TEXT    NOT NULL,
				version     INTEGER NOT NULL,
				description TEXT    NOT NULL,
				applied_at  DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP,
				PRIMARY KEY (plugin_name, version)
			)
		`)
	})
	return err
}

// appliedVersions reads the ledger once per Migrate call instead of
// querying per migration.
func (s *SQLiteStore) appliedVersions(ctx context.Context, moduleName string) (map[int]bool, error) {
	rows, err := s.db.QueryContext(ctx,
		"SELECT version FROM _migrations WHERE plugin_name = ?", moduleName,
	)
	if err != nil {
		return nil, fmt.Errorf("read migration ledger for %s: %w", moduleName, err)
	}
	defer rows.Close()

	applied := make(map[int]bool)
	for rows.Next() {
		var v int
		if err := rows.Scan(&v); err != nil {
			return nil, fmt.Errorf("scan migration version: %w", err)
		}
		applied[v] = true
	}
	return applied, rows.Err()
}

// applyMigration runs the Up function and records the version in the
// same transaction so a failed migration leaves no ledger entry.
func (s *SQLiteStore) applyMigration(ctx context.Context, moduleName string, m plugin.Migration) error {
	return s.Tx(ctx, func(tx *sql.Tx) error {
		if err := m.Up(tx); err != nil {
			return err
		}

		_, err := tx.ExecContext(ctx,
			"INSERT INTO _migrations (plugin_name, version, description) VALUES (?, ?, ?)",
			moduleName, m.Version, m.Description,
		)
		return err
	})
}
