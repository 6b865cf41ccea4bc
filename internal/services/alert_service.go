package services

import (
	"context"
	"errors"
	"time"

	"pharmacy-inventory/internal/alerts"
	"pharmacy-inventory/internal/models"
	"pharmacy-inventory/internal/repository"

	"go.uber.org/zap"
)

// AlertPublisher fans stored alerts out to live listeners
type AlertPublisher interface {
	Publish(ctx context.Context, alert *models.Alert) error
}

// EmitResult is the outcome of a best-effort alert emission
type EmitResult struct {
	Stored    []*models.Alert
	Failed    int
	Published int
	Errors    []error
}

// OK reports whether every alert was stored
func (r EmitResult) OK() bool {
	return r.Failed == 0
}

type alertStore interface {
	Create(ctx context.Context, alert *models.Alert) error
	GetActiveByID(ctx context.Context, id int64, now time.Time) (*models.Alert, error)
	ListActive(ctx context.Context, filter repository.AlertFilter, now time.Time) ([]*models.Alert, error)
	CountActive(ctx context.Context, filter repository.AlertFilter, now time.Time) (int64, error)
	CountUnread(ctx context.Context, now time.Time) (int64, error)
	MarkAsRead(ctx context.Context, id int64, now time.Time) error
	MarkAllAsRead(ctx context.Context, now time.Time) (int64, error)
	SoftDelete(ctx context.Context, id int64, now time.Time) error
	DeleteExpired(ctx context.Context, now time.Time) (int64, error)
}

// AlertService stores alerts raised by mutations and serves the alert feed
type AlertService struct {
	repo      alertStore
	publisher AlertPublisher
	ttl       time.Duration
	now       func() time.Time
	logger    *zap.Logger
}

// NewAlertService creates an alert service. publisher may be nil.
func NewAlertService(repo alertStore, publisher AlertPublisher, ttl time.Duration, logger *zap.Logger) *AlertService {
	if ttl <= 0 {
		ttl = alerts.DefaultTTL
	}
	return &AlertService{
		repo:      repo,
		publisher: publisher,
		ttl:       ttl,
		now:       time.Now,
		logger:    logger,
	}
}

// WithClock replaces the time source, for tests
func (s *AlertService) WithClock(now func() time.Time) *AlertService {
	s.now = now
	return s
}

// Emit stores one alert per cause, in order. Failures are logged and reported
// in the result; they never abort the remaining causes.
func (s *AlertService) Emit(ctx context.Context, actor models.Actor, causes []alerts.Cause, now time.Time) EmitResult {
	var result EmitResult
	for _, cause := range causes {
		alert := alerts.Build(cause, actor.NullUserID(), now, s.ttl)
		if err := s.repo.Create(ctx, alert); err != nil {
			result.Failed++
			result.Errors = append(result.Errors, err)
			s.logger.Warn("Failed to store alert",
				zap.String("type", string(alert.Type)),
				zap.Int64("entity_id", alert.EntityID.Int64),
				zap.Error(err),
			)
			continue
		}
		result.Stored = append(result.Stored, alert)

		if s.publisher == nil {
			continue
		}
		if err := s.publisher.Publish(ctx, alert); err != nil {
			s.logger.Warn("Failed to publish alert",
				zap.Int64("alert_id", alert.ID),
				zap.Error(err),
			)
			continue
		}
		result.Published++
	}
	return result
}

// List returns reachable alerts and the total matching count
func (s *AlertService) List(ctx context.Context, filter repository.AlertFilter) ([]*models.Alert, int64, error) {
	now := s.now()
	list, err := s.repo.ListActive(ctx, filter, now)
	if err != nil {
		return nil, 0, err
	}
	total, err := s.repo.CountActive(ctx, filter, now)
	if err != nil {
		return nil, 0, err
	}
	return list, total, nil
}

func (s *AlertService) Get(ctx context.Context, id int64) (*models.Alert, error) {
	alert, err := s.repo.GetActiveByID(ctx, id, s.now())
	if errors.Is(err, repository.ErrNotFound) {
		return nil, ErrAlertNotFound
	}
	return alert, err
}

func (s *AlertService) UnreadCount(ctx context.Context) (int64, error) {
	return s.repo.CountUnread(ctx, s.now())
}

func (s *AlertService) MarkRead(ctx context.Context, id int64) error {
	err := s.repo.MarkAsRead(ctx, id, s.now())
	if errors.Is(err, repository.ErrNotFound) {
		return ErrAlertNotFound
	}
	return err
}

func (s *AlertService) MarkAllRead(ctx context.Context) (int64, error) {
	return s.repo.MarkAllAsRead(ctx, s.now())
}

func (s *AlertService) Delete(ctx context.Context, id int64) error {
	err := s.repo.SoftDelete(ctx, id, s.now())
	if errors.Is(err, repository.ErrNotFound) {
		return ErrAlertNotFound
	}
	return err
}

// PurgeExpired physically removes alerts past their retention window
func (s *AlertService) PurgeExpired(ctx context.Context) (int64, error) {
	return s.repo.DeleteExpired(ctx, s.now())
}
