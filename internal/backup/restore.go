package backup

import (
	"archive/tar"
	"compress/gzip"
	"context"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
)

// entrySizeCap bounds a single extracted file so a crafted archive cannot
// act as a decompression bomb.
const entrySizeCap = 10 << 30 // 10 GiB

// Restore unpacks a HashFleet backup archive into targetDir. An existing
// file at any destination aborts the restore unless force is set. The
// archive must carry a .db entry; an archive without one is rejected as
// not being a HashFleet backup.
func Restore(_ context.Context, archivePath, targetDir string, force bool) error {
	src, err := os.Open(archivePath)
	if err != nil {
		return fmt.Errorf("opening archive: %w", err)
	}
	defer src.Close()

	gz, err := gzip.NewReader(src)
	if err != nil {
		return fmt.Errorf("decompressing archive: %w", err)
	}
	defer gz.Close()

	if err := os.MkdirAll(targetDir, 0o755); err != nil {
		return fmt.Errorf("creating target directory: %w", err)
	}

	var sawDatabase bool
	rd := tar.NewReader(gz)
	for {
		hdr, err := rd.Next()
		if err == io.EOF {
			break
		}
		if err != nil {
			return fmt.Errorf("reading archive entry: %w", err)
		}

		dest, err := resolveEntry(targetDir, hdr.Name)
		if err != nil {
			return err
		}
		if strings.HasSuffix(hdr.Name, ".db") {
			sawDatabase = true
		}

		if !force {
			if _, err := os.Stat(dest); err == nil {
				return fmt.Errorf("file already exists (use --force to overwrite): %s", dest)
			}
		}

		if err := writeEntry(rd, hdr, dest); err != nil {
			return fmt.Errorf("extracting %s: %w", hdr.Name, err)
		}
	}

	if !sawDatabase {
		return fmt.Errorf("invalid backup: archive does not contain a .db file")
	}
	return nil
}

// resolveEntry maps an archive entry name onto targetDir and rejects any
// name that would land outside it.
func resolveEntry(targetDir, name string) (string, error) {
	if filepath.IsAbs(name) {
		return "", fmt.Errorf("path traversal detected: absolute path %q", name)
	}

	cleaned := filepath.Clean(name)
	if cleaned == ".." || strings.HasPrefix(cleaned, ".."+string(filepath.Separator)) {
		return "", fmt.Errorf("path traversal detected: %q", name)
	}

	absTarget, err := filepath.Abs(targetDir)
	if err != nil {
		return "", fmt.Errorf("resolving target directory: %w", err)
	}
	dest := filepath.Join(absTarget, cleaned)
	if dest != absTarget && !strings.HasPrefix(dest, absTarget+string(filepath.Separator)) {
		return "", fmt.Errorf("path traversal detected: %q resolves outside target", name)
	}
	return dest, nil
}

// writeEntry materializes one archive entry. Entry types other than
// directories and regular files (symlinks and such) are skipped.
func writeEntry(rd *tar.Reader, hdr *tar.Header, dest string) error {
	mode := os.FileMode(hdr.Mode & 0o777) //nolint:gosec // G115: masked to permission bits

	switch hdr.Typeflag {
	case tar.TypeDir:
		return os.MkdirAll(dest, mode)
	case tar.TypeReg:
		if err := os.MkdirAll(filepath.Dir(dest), 0o755); err != nil {
			return err
		}
		out, err := os.OpenFile(dest, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, mode)
		if err != nil {
			return err
		}
		defer out.Close()
		_, err = io.Copy(out, io.LimitReader(rd, entrySizeCap))
		return err
	default:
		return nil
	}
}
