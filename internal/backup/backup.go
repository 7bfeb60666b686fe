// Package backup creates and restores gzipped tar archives of the
// FleetBridge database and config file.
package backup

import (
	"archive/tar"
	"compress/gzip"
	"context"
	"database/sql"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	_ "modernc.org/sqlite"
)

// Backup writes a consistent snapshot of the database, plus the config
// file when one is given, into a gzipped tar archive at archivePath.
// The snapshot is taken with VACUUM INTO, which is safe while the
// server holds the database open in WAL mode.
func Backup(ctx context.Context, dbPath, cfgPath, archivePath string) error {
	if _, err := os.Stat(dbPath); err != nil {
		if os.IsNotExist(err) {
			return fmt.Errorf("database file not found: %s", dbPath)
		}
		return fmt.Errorf("checking database file: %w", err)
	}

	snapDir, err := os.MkdirTemp("", "fleetbridge-backup-*")
	if err != nil {
		return fmt.Errorf("creating snapshot directory: %w", err)
	}
	defer os.RemoveAll(snapDir)

	snapPath := filepath.Join(snapDir, filepath.Base(dbPath))
	if err := snapshotDB(ctx, dbPath, snapPath); err != nil {
		return err
	}

	if dir := filepath.Dir(archivePath); dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("creating archive directory: %w", err)
		}
	}

	entries := []archiveEntry{{src: snapPath, name: filepath.Base(dbPath)}}
	if cfgPath != "" {
		entries = append(entries, archiveEntry{src: cfgPath, name: filepath.Base(cfgPath)})
	}
	return writeArchive(archivePath, entries)
}

// snapshotDB copies the database into snapPath via VACUUM INTO.
func snapshotDB(ctx context.Context, dbPath, snapPath string) error {
	db, err := sql.Open("sqlite", dbPath)
	if err != nil {
		return fmt.Errorf("opening database: %w", err)
	}
	defer db.Close()

	// VACUUM INTO takes no placeholder; single quotes in the path are
	// doubled per SQL string literal rules.
	quoted := strings.ReplaceAll(snapPath, "'", "''")
	if _, err := db.ExecContext(ctx, fmt.Sprintf("VACUUM INTO '%s'", quoted)); err != nil {
		return fmt.Errorf("snapshotting database: %w", err)
	}
	return nil
}

type archiveEntry struct {
	src  string
	name string
}

func writeArchive(archivePath string, entries []archiveEntry) error {
	out, err := os.Create(archivePath)
	if err != nil {
		return fmt.Errorf("creating archive: %w", err)
	}

	gw := gzip.NewWriter(out)
	tw := tar.NewWriter(gw)

	for _, e := range entries {
		if err := addFile(tw, e.src, e.name); err != nil {
			out.Close()
			return fmt.Errorf("archiving %s: %w", e.name, err)
		}
	}

	if err := tw.Close(); err != nil {
		out.Close()
		return fmt.Errorf("finalizing archive: %w", err)
	}
	if err := gw.Close(); err != nil {
		out.Close()
		return fmt.Errorf("finalizing compression: %w", err)
	}
	return out.Close()
}

// addFile writes one file into the archive under the given entry name.
func addFile(tw *tar.Writer, src, name string) error {
	f, err := os.Open(src)
	if err != nil {
		return err
	}
	defer f.Close()

	info, err := f.Stat()
	if err != nil {
		return err
	}
	hdr, err := tar.FileInfoHeader(info, "")
	if err != nil {
		return err
	}
	hdr.Name = name

	if err := tw.WriteHeader(hdr); err != nil {
		return err
	}
	_, err = io.Copy(tw, f)
	return err
}
