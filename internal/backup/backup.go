// Package backup provides point-in-time backups of a Boswell instance: the
// relational claim store via SQLite's VACUUM INTO (consistent under WAL)
// and the vector sidecar as a plain file snapshot. The sidecar is a derived
// projection, so a restore without it simply forces a reindex.
package backup

import (
	"context"
	"crypto/sha256"
	"database/sql"
	"fmt"
	"io"
	"log"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	_ "modernc.org/sqlite" // SQLite driver
)

// Info describes one backup on disk.
type Info struct {
	Path      string
	Timestamp time.Time
	Size      int64
}

// Result reports one completed backup.
type Result struct {
	DatabasePath string
	VectorPath   string
	Checksum     string
	Size         int64
	Elapsed      time.Duration
}

// RetentionPolicy is the tiered keep count per age bucket.
type RetentionPolicy struct {
	Hourly  int // backups younger than a day
	Daily   int // younger than a week
	Weekly  int // younger than a month
	Monthly int // younger than a year; older is always pruned
}

// DefaultRetention keeps 24 hourly, 7 daily, 4 weekly, and 12 monthly
// backups.
func DefaultRetention() RetentionPolicy {
	return RetentionPolicy{Hourly: 24, Daily: 7, Weekly: 4, Monthly: 12}
}

// Service creates, verifies, restores, and prunes backups.
type Service struct {
	databasePath string
	vectorPath   string
	backupDir    string
	retention    RetentionPolicy
	verify       bool
}

// NewService builds a backup service. vectorPath may be empty when the
// instance runs without a sidecar file.
func NewService(databasePath, vectorPath, backupDir string, retention RetentionPolicy, verify bool) (*Service, error) {
	if databasePath == "" {
		return nil, fmt.Errorf("backup: database path is required")
	}
	if err := os.MkdirAll(backupDir, 0o755); err != nil {
		return nil, fmt.Errorf("backup: failed to create backup directory: %w", err)
	}
	return &Service{
		databasePath: databasePath,
		vectorPath:   vectorPath,
		backupDir:    backupDir,
		retention:    retention,
		verify:       verify,
	}, nil
}

// BackupNow creates one backup, verifies it when configured, and applies
// retention.
func (s *Service) BackupNow(ctx context.Context) (*Result, error) {
	start := time.Now()
	stamp := start.UTC().Format("20060102T150405Z")
	dbDest := filepath.Join(s.backupDir, fmt.Sprintf("boswell-%s.db", stamp))

	if err := backupSQLite(ctx, s.databasePath, dbDest); err != nil {
		return nil, err
	}

	if s.verify {
		if err := verifySQLite(ctx, dbDest); err != nil {
			_ = os.Remove(dbDest)
			return nil, err
		}
	}

	result := &Result{DatabasePath: dbDest, Elapsed: time.Since(start)}

	if info, err := os.Stat(dbDest); err == nil {
		result.Size = info.Size()
	}
	checksum, err := fileChecksum(dbDest)
	if err != nil {
		return nil, err
	}
	result.Checksum = checksum

	if s.vectorPath != "" {
		vecDest := filepath.Join(s.backupDir, fmt.Sprintf("boswell-%s.vec", stamp))
		if err := copyFile(s.vectorPath, vecDest); err != nil {
			if !os.IsNotExist(err) {
				return nil, fmt.Errorf("backup: failed to snapshot vector index: %w", err)
			}
			// No sidecar yet; a restore will rebuild it.
		} else {
			result.VectorPath = vecDest
		}
	}

	if err := s.applyRetention(); err != nil {
		log.Printf("backup: retention: %v", err)
	}

	result.Elapsed = time.Since(start)
	return result, nil
}

// Restore replaces the live database (and sidecar snapshot, when present)
// with the named backup. The instance must not be serving. A safety copy of
// the current database is written next to it first.
func (s *Service) Restore(ctx context.Context, backupPath string) error {
	if err := verifySQLite(ctx, backupPath); err != nil {
		return fmt.Errorf("backup: refusing to restore unverified backup: %w", err)
	}

	if _, err := os.Stat(s.databasePath); err == nil {
		safety := s.databasePath + ".pre-restore"
		if err := copyFile(s.databasePath, safety); err != nil {
			return fmt.Errorf("backup: failed to write safety copy: %w", err)
		}
		log.Printf("backup: wrote safety copy %s", safety)
	}

	if err := copyFile(backupPath, s.databasePath); err != nil {
		return fmt.Errorf("backup: restore copy failed: %w", err)
	}
	if err := verifySQLite(ctx, s.databasePath); err != nil {
		return fmt.Errorf("backup: restored database failed verification: %w", err)
	}

	// Restore the matching sidecar snapshot when one exists; otherwise
	// remove the stale sidecar so startup forces a rebuild.
	if s.vectorPath != "" {
		vecBackup := strings.TrimSuffix(backupPath, ".db") + ".vec"
		if _, err := os.Stat(vecBackup); err == nil {
			if err := copyFile(vecBackup, s.vectorPath); err != nil {
				return fmt.Errorf("backup: failed to restore vector index: %w", err)
			}
		} else if err := os.Remove(s.vectorPath); err != nil && !os.IsNotExist(err) {
			return fmt.Errorf("backup: failed to drop stale vector index: %w", err)
		}
	}
	return nil
}

// List returns the backups on disk, newest first.
func (s *Service) List() ([]Info, error) {
	entries, err := os.ReadDir(s.backupDir)
	if err != nil {
		return nil, fmt.Errorf("backup: failed to read backup directory: %w", err)
	}

	var backups []Info
	for _, entry := range entries {
		if entry.IsDir() || !strings.HasSuffix(entry.Name(), ".db") {
			continue
		}
		info, err := entry.Info()
		if err != nil {
			continue
		}
		backups = append(backups, Info{
			Path:      filepath.Join(s.backupDir, entry.Name()),
			Timestamp: info.ModTime(),
			Size:      info.Size(),
		})
	}

	sort.Slice(backups, func(i, j int) bool {
		return backups[i].Timestamp.After(backups[j].Timestamp)
	})
	return backups, nil
}

// applyRetention prunes backups by the tiered policy. The matching .vec
// snapshot goes with each pruned .db.
func (s *Service) applyRetention() error {
	backups, err := s.List()
	if err != nil {
		return err
	}
	if len(backups) == 0 {
		return nil
	}

	now := time.Now()
	var hourly, daily, weekly, monthly []Info
	var toDelete []string
	for _, b := range backups {
		age := now.Sub(b.Timestamp)
		switch {
		case age < 24*time.Hour:
			hourly = append(hourly, b)
		case age < 7*24*time.Hour:
			daily = append(daily, b)
		case age < 30*24*time.Hour:
			weekly = append(weekly, b)
		case age < 365*24*time.Hour:
			monthly = append(monthly, b)
		default:
			toDelete = append(toDelete, b.Path)
		}
	}

	prune := func(tier []Info, keep int) {
		if len(tier) > keep {
			for _, b := range tier[keep:] {
				toDelete = append(toDelete, b.Path)
			}
		}
	}
	prune(hourly, s.retention.Hourly)
	prune(daily, s.retention.Daily)
	prune(weekly, s.retention.Weekly)
	prune(monthly, s.retention.Monthly)

	var lastErr error
	for _, path := range toDelete {
		if err := os.Remove(path); err != nil {
			lastErr = err
		}
		if err := os.Remove(strings.TrimSuffix(path, ".db") + ".vec"); err != nil && !os.IsNotExist(err) {
			lastErr = err
		}
	}
	if lastErr != nil {
		return fmt.Errorf("backup: failed to delete some backups: %w", lastErr)
	}
	return nil
}

// backupSQLite creates a consistent point-in-time copy via VACUUM INTO,
// which handles WAL mode correctly.
func backupSQLite(ctx context.Context, sourcePath, destPath string) error {
	db, err := sql.Open("sqlite", fmt.Sprintf("file:%s?mode=ro", sourcePath))
	if err != nil {
		return fmt.Errorf("backup: failed to open source database: %w", err)
	}
	defer db.Close()

	if err := db.PingContext(ctx); err != nil {
		return fmt.Errorf("backup: failed to ping source database: %w", err)
	}
	if _, err := db.ExecContext(ctx, fmt.Sprintf("VACUUM INTO '%s'", destPath)); err != nil {
		return fmt.Errorf("backup: vacuum into failed: %w", err)
	}
	return nil
}

// verifySQLite runs PRAGMA integrity_check against a backup.
func verifySQLite(ctx context.Context, path string) error {
	db, err := sql.Open("sqlite", fmt.Sprintf("file:%s?mode=ro", path))
	if err != nil {
		return fmt.Errorf("backup: failed to open %s: %w", path, err)
	}
	defer db.Close()

	var result string
	if err := db.QueryRowContext(ctx, "PRAGMA integrity_check").Scan(&result); err != nil {
		return fmt.Errorf("backup: integrity check failed to run: %w", err)
	}
	if result != "ok" {
		return fmt.Errorf("backup: integrity check failed: %s", result)
	}
	return nil
}

func fileChecksum(path string) (string, error) {
	f, err := os.Open(path)
	if err != nil {
		return "", fmt.Errorf("backup: checksum: %w", err)
	}
	defer f.Close()

	h := sha256.New()
	if _, err := io.Copy(h, f); err != nil {
		return "", fmt.Errorf("backup: checksum: %w", err)
	}
	return fmt.Sprintf("%x", h.Sum(nil)), nil
}

func copyFile(src, dst string) error {
	in, err := os.Open(src)
	if err != nil {
		return err
	}
	defer in.Close()

	out, err := os.Create(dst)
	if err != nil {
		return err
	}
	defer out.Close()

	if _, err := io.Copy(out, in); err != nil {
		return err
	}
	return out.Sync()
}
