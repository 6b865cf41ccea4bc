package services

import (
	"context"
	"database/sql"
	"time"

	"pharmacy-inventory/internal/models"
	"pharmacy-inventory/internal/repository"

	"go.uber.org/zap"
)

// ActivityEntry describes one audited action before the actor is attached
type ActivityEntry struct {
	Action      models.ActivityAction
	EntityType  models.EntityType
	EntityID    int64
	Description string
	Before      interface{}
	After       interface{}
}

// RecordResult is the outcome of a best-effort activity write
type RecordResult struct {
	ID  int64
	Err error
}

// OK reports whether the entry was stored
func (r RecordResult) OK() bool {
	return r.Err == nil
}

type activityStore interface {
	Log(ctx context.Context, entry *models.ActivityLog) error
}

// ActivityRecorder appends audit entries. A failed write never fails the
// operation being audited.
type ActivityRecorder struct {
	repo   activityStore
	logger *zap.Logger
}

func NewActivityRecorder(repo activityStore, logger *zap.Logger) *ActivityRecorder {
	return &ActivityRecorder{repo: repo, logger: logger}
}

// Record stores entry on behalf of actor at now
func (r *ActivityRecorder) Record(ctx context.Context, actor models.Actor, entry ActivityEntry, now time.Time) RecordResult {
	before, err := repository.MarshalState(entry.Before)
	if err != nil {
		return r.failed(entry, err)
	}
	after, err := repository.MarshalState(entry.After)
	if err != nil {
		return r.failed(entry, err)
	}

	log := &models.ActivityLog{
		Action:      entry.Action,
		EntityType:  entry.EntityType,
		EntityID:    sql.NullInt64{Int64: entry.EntityID, Valid: entry.EntityID != 0},
		UserID:      actor.NullUserID(),
		Description: entry.Description,
		BeforeState: before,
		AfterState:  after,
		IPAddress:   sql.NullString{String: actor.IPAddress, Valid: actor.IPAddress != ""},
		UserAgent:   sql.NullString{String: actor.UserAgent, Valid: actor.UserAgent != ""},
		CreatedAt:   now,
	}

	if err := r.repo.Log(ctx, log); err != nil {
		return r.failed(entry, err)
	}
	return RecordResult{ID: log.ID}
}

func (r *ActivityRecorder) failed(entry ActivityEntry, err error) RecordResult {
	r.logger.Warn("Failed to record activity",
		zap.String("action", string(entry.Action)),
		zap.String("entity_type", string(entry.EntityType)),
		zap.Int64("entity_id", entry.EntityID),
		zap.Error(err),
	)
	return RecordResult{Err: err}
}
