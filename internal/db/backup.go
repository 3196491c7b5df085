package db

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"
)

const backupPrefix = "atelier_"

// Backup writes a consistent snapshot of the database into dir and returns its path.
func (db *DB) Backup(ctx context.Context, dir string) (string, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return "", fmt.Errorf("create backup directory: %w", err)
	}

	dest := filepath.Join(dir, backupPrefix+time.Now().Format("20060102_150405")+".db")
	if _, err := os.Stat(dest); err == nil {
		return "", fmt.Errorf("backup %s already exists", dest)
	}

	if _, err := db.ExecContext(ctx, "VACUUM INTO ?", dest); err != nil {
		return "", fmt.Errorf("vacuum into %s: %w", dest, err)
	}

	db.logger.Info().Str("path", dest).Msg("database backup created")
	return dest, nil
}

// CleanupBackups removes snapshots in dir older than retention and returns how many were deleted.
func CleanupBackups(dir string, retention time.Duration) (int, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		if os.IsNotExist(err) {
			return 0, nil
		}
		return 0, err
	}

	cutoff := time.Now().Add(-retention)
	removed := 0
	for _, e := range entries {
		if e.IsDir() || !strings.HasPrefix(e.Name(), backupPrefix) || filepath.Ext(e.Name()) != ".db" {
			continue
		}
		info, err := e.Info()
		if err != nil {
			continue
		}
		if info.ModTime().Before(cutoff) {
			if err := os.Remove(filepath.Join(dir, e.Name())); err != nil {
				return removed, err
			}
			removed++
		}
	}
	return removed, nil
}
