package backup_test

import (
	"archive/tar"
	"compress/gzip"
	"context"
	"database/sql"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/hashfleet/hashfleet/internal/backup"
	_ "modernc.org/sqlite"
)

// seedDB creates a sqlite database holding a couple of miner rows and
// returns its path.
func seedDB(t *testing.T, dir string) string {
	t.Helper()

	dbPath := filepath.Join(dir, "hashfleet.db")
	db, err := sql.Open("sqlite", dbPath)
	if err != nil {
		t.Fatalf("open seed db: %v", err)
	}
	defer db.Close()

	_, err = db.Exec(`
		CREATE TABLE miners (ip TEXT PRIMARY KEY, brand TEXT);
		INSERT INTO miners (ip, brand) VALUES ('10.0.0.1', 'Antminer'), ('10.0.0.2', 'Whatsminer');
	`)
	if err != nil {
		t.Fatalf("seed miners: %v", err)
	}
	return dbPath
}

// seedConfig writes a minimal config file and returns its path.
func seedConfig(t *testing.T, dir string) string {
	t.Helper()

	cfgPath := filepath.Join(dir, "hashfleet.yaml")
	if err := os.WriteFile(cfgPath, []byte("server:\n  port: 8080\n"), 0o644); err != nil {
		t.Fatalf("write config: %v", err)
	}
	return cfgPath
}

// archiveOf backs up the given paths into a fresh tar.gz and returns it.
func archiveOf(t *testing.T, dbPath, cfgPath string) string {
	t.Helper()

	archivePath := filepath.Join(t.TempDir(), "backup.tar.gz")
	if err := backup.Backup(context.Background(), dbPath, cfgPath, archivePath); err != nil {
		t.Fatalf("Backup: %v", err)
	}
	return archivePath
}

// checkRestoredDB verifies the miner rows survived the round trip.
func checkRestoredDB(t *testing.T, dbPath string) {
	t.Helper()

	db, err := sql.Open("sqlite", dbPath)
	if err != nil {
		t.Fatalf("open restored db: %v", err)
	}
	defer db.Close()

	var count int
	if err := db.QueryRow("SELECT COUNT(*) FROM miners").Scan(&count); err != nil {
		t.Fatalf("count restored miners: %v", err)
	}
	if count != 2 {
		t.Fatalf("restored miner count = %d, want 2", count)
	}

	var brand string
	if err := db.QueryRow("SELECT brand FROM miners WHERE ip = '10.0.0.1'").Scan(&brand); err != nil {
		t.Fatalf("read restored row: %v", err)
	}
	if brand != "Antminer" {
		t.Fatalf("brand = %q, want Antminer", brand)
	}
}

func TestRoundTrip_DatabaseAndConfig(t *testing.T) {
	srcDir := t.TempDir()
	archivePath := archiveOf(t, seedDB(t, srcDir), seedConfig(t, srcDir))

	restoreDir := t.TempDir()
	if err := backup.Restore(context.Background(), archivePath, restoreDir, false); err != nil {
		t.Fatalf("Restore: %v", err)
	}

	checkRestoredDB(t, filepath.Join(restoreDir, "hashfleet.db"))
	data, err := os.ReadFile(filepath.Join(restoreDir, "hashfleet.yaml"))
	if err != nil {
		t.Fatalf("config did not come back: %v", err)
	}
	if len(data) == 0 {
		t.Fatal("restored config is empty")
	}
}

func TestRoundTrip_DatabaseOnly(t *testing.T) {
	archivePath := archiveOf(t, seedDB(t, t.TempDir()), "")

	restoreDir := t.TempDir()
	if err := backup.Restore(context.Background(), archivePath, restoreDir, false); err != nil {
		t.Fatalf("Restore: %v", err)
	}
	checkRestoredDB(t, filepath.Join(restoreDir, "hashfleet.db"))
}

func TestBackup_MissingDatabase(t *testing.T) {
	missing := filepath.Join(t.TempDir(), "nonexistent.db")
	archivePath := filepath.Join(t.TempDir(), "backup.tar.gz")

	err := backup.Backup(context.Background(), missing, "", archivePath)
	if err == nil || !strings.Contains(err.Error(), "database file not found") {
		t.Fatalf("Backup err = %v, want a database-not-found error", err)
	}
}

func TestRestore_RefusesToClobber(t *testing.T) {
	archivePath := archiveOf(t, seedDB(t, t.TempDir()), "")

	restoreDir := t.TempDir()
	seedDB(t, restoreDir) // destination path is already occupied

	err := backup.Restore(context.Background(), archivePath, restoreDir, false)
	if err == nil || !strings.Contains(err.Error(), "file already exists") {
		t.Fatalf("Restore err = %v, want an already-exists refusal", err)
	}
}

func TestRestore_ForceOverwrites(t *testing.T) {
	archivePath := archiveOf(t, seedDB(t, t.TempDir()), "")

	restoreDir := t.TempDir()
	seedDB(t, restoreDir)

	if err := backup.Restore(context.Background(), archivePath, restoreDir, true); err != nil {
		t.Fatalf("forced Restore: %v", err)
	}
	checkRestoredDB(t, filepath.Join(restoreDir, "hashfleet.db"))
}

func TestRestore_CorruptArchive(t *testing.T) {
	corruptPath := filepath.Join(t.TempDir(), "corrupt.tar.gz")
	if err := os.WriteFile(corruptPath, []byte("not a gzip stream"), 0o644); err != nil {
		t.Fatalf("write corrupt archive: %v", err)
	}

	if err := backup.Restore(context.Background(), corruptPath, t.TempDir(), false); err == nil {
		t.Fatal("a non-gzip archive restored without error")
	}
}

// writeArchive builds a tar.gz holding exactly one entry.
func writeArchive(t *testing.T, path, entryName string, content []byte) {
	t.Helper()

	f, err := os.Create(path)
	if err != nil {
		t.Fatalf("create archive: %v", err)
	}
	gw := gzip.NewWriter(f)
	tw := tar.NewWriter(gw)

	hdr := &tar.Header{Name: entryName, Size: int64(len(content)), Mode: 0o644}
	if err := tw.WriteHeader(hdr); err != nil {
		t.Fatalf("write header: %v", err)
	}
	if _, err := tw.Write(content); err != nil {
		t.Fatalf("write entry: %v", err)
	}

	tw.Close()
	gw.Close()
	f.Close()
}

func TestRestore_RejectsEscapingPaths(t *testing.T) {
	archivePath := filepath.Join(t.TempDir(), "evil.tar.gz")
	writeArchive(t, archivePath, "../../../etc/evil.db", []byte("evil"))

	err := backup.Restore(context.Background(), archivePath, t.TempDir(), false)
	if err == nil || !strings.Contains(err.Error(), "path traversal") {
		t.Fatalf("Restore err = %v, want a path traversal refusal", err)
	}
}

func TestRestore_ArchiveWithoutDatabase(t *testing.T) {
	archivePath := filepath.Join(t.TempDir(), "nodb.tar.gz")
	writeArchive(t, archivePath, "config.yaml", []byte("hello"))

	err := backup.Restore(context.Background(), archivePath, t.TempDir(), false)
	if err == nil || !strings.Contains(err.Error(), "does not contain a .db file") {
		t.Fatalf("Restore err = %v, want a missing-database complaint", err)
	}
}
