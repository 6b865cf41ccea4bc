package repository

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"pharmacy-inventory/internal/database"
	"pharmacy-inventory/internal/models"
)

// ActivityFilter narrows an activity log listing
type ActivityFilter struct {
	Action     models.ActivityAction
	EntityType models.EntityType
	EntityID   int64
	UserID     int64
	From       time.Time
	To         time.Time
	Pagination
}

type ActivityRepository struct {
	db *database.DB
}

func NewActivityRepository(db *database.DB) *ActivityRepository {
	return &ActivityRepository{db: db}
}

// Log appends an activity log entry
func (r *ActivityRepository) Log(ctx context.Context, entry *models.ActivityLog) error {
	query := `
		INSERT INTO activity_logs (action, entity_type, entity_id, user_id, description,
			before_state, after_state, ip_address, user_agent, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`
	result, err := r.db.ExecContext(ctx, query,
		entry.Action,
		entry.EntityType,
		entry.EntityID,
		entry.UserID,
		entry.Description,
		entry.BeforeState,
		entry.AfterState,
		entry.IPAddress,
		entry.UserAgent,
		utc(entry.CreatedAt),
	)
	if err != nil {
		return fmt.Errorf("failed to create activity log: %w", err)
	}

	id, err := result.LastInsertId()
	if err != nil {
		return fmt.Errorf("failed to get last insert id: %w", err)
	}

	entry.ID = id
	return nil
}

// MarshalState encodes a before/after snapshot for an activity entry
func MarshalState(v interface{}) (sql.NullString, error) {
	if v == nil {
		return sql.NullString{}, nil
	}
	b, err := json.Marshal(v)
	if err != nil {
		return sql.NullString{}, fmt.Errorf("failed to marshal state: %w", err)
	}
	return sql.NullString{String: string(b), Valid: true}, nil
}

// List retrieves activity entries newest first
func (r *ActivityRepository) List(ctx context.Context, filter ActivityFilter) ([]*models.ActivityLog, error) {
	where, args := filter.where()
	query := `
		SELECT id, action, entity_type, entity_id, user_id, description,
			before_state, after_state, ip_address, user_agent, created_at
		FROM activity_logs
		WHERE ` + where + `
		ORDER BY created_at DESC, id DESC
		LIMIT ? OFFSET ?
	`
	args = append(args, filter.limit(), filter.Offset)

	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to list activity logs: %w", err)
	}
	defer rows.Close()

	return scanActivityLogs(rows)
}

// Count counts activity entries matching the filter
func (r *ActivityRepository) Count(ctx context.Context, filter ActivityFilter) (int64, error) {
	where, args := filter.where()
	var count int64
	if err := r.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM activity_logs WHERE `+where, args...).Scan(&count); err != nil {
		return 0, fmt.Errorf("failed to count activity logs: %w", err)
	}
	return count, nil
}

// GetByEntity retrieves the history of one entity, oldest first
func (r *ActivityRepository) GetByEntity(ctx context.Context, entityType models.EntityType, entityID int64) ([]*models.ActivityLog, error) {
	query := `
		SELECT id, action, entity_type, entity_id, user_id, description,
			before_state, after_state, ip_address, user_agent, created_at
		FROM activity_logs
		WHERE entity_type = ? AND entity_id = ?
		ORDER BY created_at ASC, id ASC
	`
	rows, err := r.db.QueryContext(ctx, query, entityType, entityID)
	if err != nil {
		return nil, fmt.Errorf("failed to get activity logs: %w", err)
	}
	defer rows.Close()

	return scanActivityLogs(rows)
}

func (f ActivityFilter) where() (string, []interface{}) {
	conditions := []string{"1 = 1"}
	var args []interface{}

	if f.Action != "" {
		conditions = append(conditions, "action = ?")
		args = append(args, f.Action)
	}
	if f.EntityType != "" {
		conditions = append(conditions, "entity_type = ?")
		args = append(args, f.EntityType)
	}
	if f.EntityID != 0 {
		conditions = append(conditions, "entity_id = ?")
		args = append(args, f.EntityID)
	}
	if f.UserID != 0 {
		conditions = append(conditions, "user_id = ?")
		args = append(args, f.UserID)
	}
	if !f.From.IsZero() {
		conditions = append(conditions, "created_at >= ?")
		args = append(args, utc(f.From))
	}
	if !f.To.IsZero() {
		conditions = append(conditions, "created_at < ?")
		args = append(args, utc(f.To))
	}

	return strings.Join(conditions, " AND "), args
}

func scanActivityLogs(rows *sql.Rows) ([]*models.ActivityLog, error) {
	var logs []*models.ActivityLog
	for rows.Next() {
		var l models.ActivityLog
		err := rows.Scan(
			&l.ID,
			&l.Action,
			&l.EntityType,
			&l.EntityID,
			&l.UserID,
			&l.Description,
			&l.BeforeState,
			&l.AfterState,
			&l.IPAddress,
			&l.UserAgent,
			&l.CreatedAt,
		)
		if err != nil {
			return nil, fmt.Errorf("failed to scan activity log: %w", err)
		}
		logs = append(logs, &l)
	}

	return logs, rows.Err()
}
