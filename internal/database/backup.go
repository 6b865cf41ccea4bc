package database

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"
)

// BackupInfo describes a backup file
type BackupInfo struct {
	Filename  string    `json:"filename"`
	Size      int64     `json:"size"`
	SizeHuman string    `json:"size_human"`
	CreatedAt time.Time `json:"created_at"`
	Path      string    `json:"-"`
}

const backupTimeLayout = "2006-01-02_150405"

// Backup writes a consistent snapshot of the database into dir using
// VACUUM INTO. prefix distinguishes manual from scheduled backups.
func (db *DB) Backup(ctx context.Context, dir, prefix string, now time.Time) (*BackupInfo, error) {
	if err := os.MkdirAll(dir, 0o750); err != nil {
		return nil, fmt.Errorf("failed to create backup directory: %w", err)
	}

	filename := fmt.Sprintf("%s_%s.db", prefix, now.UTC().Format(backupTimeLayout))
	path := filepath.Join(dir, filename)

	if _, err := db.ExecContext(ctx, "VACUUM INTO ?", path); err != nil {
		return nil, fmt.Errorf("failed to create backup: %w", err)
	}

	info, err := os.Stat(path)
	if err != nil {
		return nil, fmt.Errorf("backup created but failed to get info: %w", err)
	}
	return newBackupInfo(dir, info), nil
}

// ListBackups returns the backups in dir, newest first. A missing directory
// has no backups.
func ListBackups(dir string) ([]*BackupInfo, error) {
	entries, err := os.ReadDir(dir)
	if os.IsNotExist(err) {
		return []*BackupInfo{}, nil
	}
	if err != nil {
		return nil, err
	}

	backups := []*BackupInfo{}
	for _, entry := range entries {
		if entry.IsDir() || !strings.HasSuffix(entry.Name(), ".db") {
			continue
		}
		info, err := entry.Info()
		if err != nil {
			continue
		}
		backups = append(backups, newBackupInfo(dir, info))
	}

	sort.Slice(backups, func(i, j int) bool {
		if backups[i].CreatedAt.Equal(backups[j].CreatedAt) {
			return backups[i].Filename > backups[j].Filename
		}
		return backups[i].CreatedAt.After(backups[j].CreatedAt)
	})
	return backups, nil
}

// PruneBackups keeps the newest keep backups with the given prefix and
// deletes the rest. keep <= 0 disables pruning.
func PruneBackups(dir, prefix string, keep int) (int, error) {
	if keep <= 0 {
		return 0, nil
	}
	backups, err := ListBackups(dir)
	if err != nil {
		return 0, err
	}

	removed := 0
	kept := 0
	for _, b := range backups {
		if !strings.HasPrefix(b.Filename, prefix+"_") {
			continue
		}
		if kept < keep {
			kept++
			continue
		}
		if err := os.Remove(b.Path); err != nil {
			return removed, fmt.Errorf("failed to remove %s: %w", b.Filename, err)
		}
		removed++
	}
	return removed, nil
}

func newBackupInfo(dir string, info os.FileInfo) *BackupInfo {
	return &BackupInfo{
		Filename:  info.Name(),
		Size:      info.Size(),
		SizeHuman: formatSize(info.Size()),
		CreatedAt: backupTime(info),
		Path:      filepath.Join(dir, info.Name()),
	}
}

// backupTime prefers the timestamp in the filename over the file mtime
func backupTime(info os.FileInfo) time.Time {
	name := strings.TrimSuffix(info.Name(), ".db")
	if i := strings.Index(name, "_"); i >= 0 {
		if t, err := time.Parse(backupTimeLayout, name[i+1:]); err == nil {
			return t
		}
	}
	return info.ModTime().UTC()
}

// formatSize converts bytes to human-readable size
func formatSize(bytes int64) string {
	const unit = 1024
	if bytes < unit {
		return fmt.Sprintf("%d B", bytes)
	}
	div, exp := int64(unit), 0
	for n := bytes / unit; n >= unit; n /= unit {
		div *= unit
		exp++
	}
	return fmt.Sprintf("%.1f %cB", float64(bytes)/float64(div), "KMGTPE"[exp])
}
