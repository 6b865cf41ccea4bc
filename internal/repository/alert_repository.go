package repository

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"time"

	"pharmacy-inventory/internal/database"
	"pharmacy-inventory/internal/models"
)

// AlertFilter narrows an alert listing. Only active, unexpired alerts are
// ever returned.
type AlertFilter struct {
	UnreadOnly bool
	Type       models.AlertType
	Pagination
}

type AlertRepository struct {
	db *database.DB
}

func NewAlertRepository(db *database.DB) *AlertRepository {
	return &AlertRepository{db: db}
}

// Create stores a new alert
func (r *AlertRepository) Create(ctx context.Context, alert *models.Alert) error {
	query := `
		INSERT INTO alerts (type, title, message, severity, entity_type, entity_id, triggered_by,
			is_read, is_active, created_at, expires_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`
	result, err := r.db.ExecContext(ctx, query,
		alert.Type,
		alert.Title,
		alert.Message,
		alert.Severity,
		alert.EntityType,
		alert.EntityID,
		alert.TriggeredBy,
		alert.IsRead,
		alert.IsActive,
		utc(alert.CreatedAt),
		utc(alert.ExpiresAt),
	)
	if err != nil {
		return fmt.Errorf("failed to create alert: %w", err)
	}

	id, err := result.LastInsertId()
	if err != nil {
		return fmt.Errorf("failed to get last insert id: %w", err)
	}

	alert.ID = id
	return nil
}

// GetActiveByID retrieves an alert that is active and not expired at now
func (r *AlertRepository) GetActiveByID(ctx context.Context, id int64, now time.Time) (*models.Alert, error) {
	query := `
		SELECT id, type, title, message, severity, entity_type, entity_id, triggered_by,
			is_read, is_active, created_at, expires_at
		FROM alerts
		WHERE id = ? AND is_active = 1 AND expires_at > ?
	`
	alert, err := scanAlert(r.db.QueryRowContext(ctx, query, id, utc(now)))
	if err == sql.ErrNoRows {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get alert: %w", err)
	}
	return alert, nil
}

// ListActive retrieves reachable alerts, newest first
func (r *AlertRepository) ListActive(ctx context.Context, filter AlertFilter, now time.Time) ([]*models.Alert, error) {
	where, args := filter.where(now)
	query := `
		SELECT id, type, title, message, severity, entity_type, entity_id, triggered_by,
			is_read, is_active, created_at, expires_at
		FROM alerts
		WHERE ` + where + `
		ORDER BY created_at DESC, id DESC
		LIMIT ? OFFSET ?
	`
	args = append(args, filter.limit(), filter.Offset)

	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to list alerts: %w", err)
	}
	defer rows.Close()

	var alerts []*models.Alert
	for rows.Next() {
		alert, err := scanAlert(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan alert: %w", err)
		}
		alerts = append(alerts, alert)
	}

	return alerts, rows.Err()
}

// CountActive counts reachable alerts matching the filter
func (r *AlertRepository) CountActive(ctx context.Context, filter AlertFilter, now time.Time) (int64, error) {
	where, args := filter.where(now)
	var count int64
	if err := r.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM alerts WHERE `+where, args...).Scan(&count); err != nil {
		return 0, fmt.Errorf("failed to count alerts: %w", err)
	}
	return count, nil
}

// CountUnread returns the number of reachable unread alerts
func (r *AlertRepository) CountUnread(ctx context.Context, now time.Time) (int64, error) {
	return r.CountActive(ctx, AlertFilter{UnreadOnly: true}, now)
}

// MarkAsRead marks a reachable alert as read
func (r *AlertRepository) MarkAsRead(ctx context.Context, id int64, now time.Time) error {
	query := `UPDATE alerts SET is_read = 1 WHERE id = ? AND is_active = 1 AND expires_at > ?`
	result, err := r.db.ExecContext(ctx, query, id, utc(now))
	if err != nil {
		return fmt.Errorf("failed to mark alert as read: %w", err)
	}
	return checkRowsAffected(result, ErrNotFound)
}

// MarkAllAsRead marks every reachable alert as read and returns how many changed
func (r *AlertRepository) MarkAllAsRead(ctx context.Context, now time.Time) (int64, error) {
	query := `UPDATE alerts SET is_read = 1 WHERE is_read = 0 AND is_active = 1 AND expires_at > ?`
	result, err := r.db.ExecContext(ctx, query, utc(now))
	if err != nil {
		return 0, fmt.Errorf("failed to mark all alerts as read: %w", err)
	}
	return result.RowsAffected()
}

// SoftDelete hides a reachable alert
func (r *AlertRepository) SoftDelete(ctx context.Context, id int64, now time.Time) error {
	query := `UPDATE alerts SET is_active = 0 WHERE id = ? AND is_active = 1 AND expires_at > ?`
	result, err := r.db.ExecContext(ctx, query, id, utc(now))
	if err != nil {
		return fmt.Errorf("failed to delete alert: %w", err)
	}
	return checkRowsAffected(result, ErrNotFound)
}

// DeleteExpired physically removes alerts whose retention window has passed
func (r *AlertRepository) DeleteExpired(ctx context.Context, now time.Time) (int64, error) {
	result, err := r.db.ExecContext(ctx, `DELETE FROM alerts WHERE expires_at <= ?`, utc(now))
	if err != nil {
		return 0, fmt.Errorf("failed to delete expired alerts: %w", err)
	}
	return result.RowsAffected()
}

func (f AlertFilter) where(now time.Time) (string, []interface{}) {
	conditions := []string{"is_active = 1", "expires_at > ?"}
	args := []interface{}{utc(now)}

	if f.UnreadOnly {
		conditions = append(conditions, "is_read = 0")
	}
	if f.Type != "" {
		conditions = append(conditions, "type = ?")
		args = append(args, f.Type)
	}

	return strings.Join(conditions, " AND "), args
}

func scanAlert(row scanner) (*models.Alert, error) {
	var a models.Alert
	err := row.Scan(
		&a.ID,
		&a.Type,
		&a.Title,
		&a.Message,
		&a.Severity,
		&a.EntityType,
		&a.EntityID,
		&a.TriggeredBy,
		&a.IsRead,
		&a.IsActive,
		&a.CreatedAt,
		&a.ExpiresAt,
	)
	if err != nil {
		return nil, err
	}
	return &a, nil
}
