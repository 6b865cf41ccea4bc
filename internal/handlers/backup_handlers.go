package handlers

import (
	"context"
	"net/http"
	"time"

	"pharmacy-inventory/internal/database"
	"pharmacy-inventory/internal/middleware"

	"go.uber.org/zap"
)

// ManualBackupPrefix names backups requested through the API
const ManualBackupPrefix = "manual"

// BackupCreator snapshots the database
type BackupCreator interface {
	Backup(ctx context.Context, dir, prefix string, now time.Time) (*database.BackupInfo, error)
}

// HandleListBackups returns the backups in dir, newest first
func HandleListBackups(dir string, logger *zap.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		backups, err := database.ListBackups(dir)
		if err != nil {
			respondServiceError(w, r, logger, err)
			return
		}
		respondJSON(w, http.StatusOK, map[string]interface{}{"data": backups})
	}
}

// HandleCreateBackup takes a manual backup. Manual backups are never pruned.
func HandleCreateBackup(db BackupCreator, dir string, logger *zap.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		backup, err := db.Backup(r.Context(), dir, ManualBackupPrefix, time.Now())
		if err != nil {
			respondServiceError(w, r, logger, err)
			return
		}

		actor := middleware.ActorFromRequest(r)
		logger.Info("Manual backup created",
			zap.String("file", backup.Filename),
			zap.Int64("user_id", actor.UserID),
			zap.String("ip", actor.IPAddress),
		)
		respondJSON(w, http.StatusCreated, backup)
	}
}
