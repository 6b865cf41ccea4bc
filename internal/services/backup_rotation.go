package services

import (
	"context"
	"time"

	"pharmacy-inventory/internal/database"

	"go.uber.org/zap"
)

// ScheduledBackupPrefix names backups taken by the rotation job
const ScheduledBackupPrefix = "auto"

type backupWriter interface {
	Backup(ctx context.Context, dir, prefix string, now time.Time) (*database.BackupInfo, error)
}

// BackupRotation takes a scheduled backup and keeps only the newest ones.
// It is meant to be run from cron through the backup command.
type BackupRotation struct {
	db     backupWriter
	dir    string
	keep   int
	now    func() time.Time
	logger *zap.Logger
}

func NewBackupRotation(db backupWriter, dir string, keep int, logger *zap.Logger) *BackupRotation {
	return &BackupRotation{db: db, dir: dir, keep: keep, now: time.Now, logger: logger}
}

// WithClock replaces the time source, for tests
func (r *BackupRotation) WithClock(now func() time.Time) *BackupRotation {
	r.now = now
	return r
}

// Rotate writes one scheduled backup and prunes older scheduled backups.
// A pruning failure is logged; the new backup is still returned.
func (r *BackupRotation) Rotate(ctx context.Context) (*database.BackupInfo, error) {
	info, err := r.db.Backup(ctx, r.dir, ScheduledBackupPrefix, r.now())
	if err != nil {
		return nil, err
	}
	r.logger.Info("Scheduled backup created", zap.String("file", info.Filename), zap.Int64("size", info.Size))

	removed, err := database.PruneBackups(r.dir, ScheduledBackupPrefix, r.keep)
	if err != nil {
		r.logger.Warn("Failed to prune backups", zap.Error(err))
	} else if removed > 0 {
		r.logger.Info("Pruned old backups", zap.Int("count", removed))
	}
	return info, nil
}
