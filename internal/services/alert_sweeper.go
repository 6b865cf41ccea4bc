package services

import (
	"context"
	"time"

	"go.uber.org/zap"
)

type expiredAlertPurger interface {
	PurgeExpired(ctx context.Context) (int64, error)
}

// AlertSweeper periodically deletes expired alerts. Expired alerts are already
// invisible to every query; the sweep only reclaims space.
type AlertSweeper struct {
	alerts   expiredAlertPurger
	interval time.Duration
	logger   *zap.Logger
}

func NewAlertSweeper(alerts expiredAlertPurger, interval time.Duration, logger *zap.Logger) *AlertSweeper {
	if interval <= 0 {
		interval = time.Hour
	}
	return &AlertSweeper{alerts: alerts, interval: interval, logger: logger}
}

// Run sweeps once immediately and then on every tick until ctx is cancelled
func (s *AlertSweeper) Run(ctx context.Context) {
	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	s.logger.Info("Alert sweeper started", zap.Duration("interval", s.interval))
	s.SweepOnce(ctx)

	for {
		select {
		case <-ctx.Done():
			s.logger.Info("Alert sweeper stopped")
			return
		case <-ticker.C:
			s.SweepOnce(ctx)
		}
	}
}

// SweepOnce runs a single purge and returns the number of deleted alerts
func (s *AlertSweeper) SweepOnce(ctx context.Context) int64 {
	deleted, err := s.alerts.PurgeExpired(ctx)
	if err != nil {
		s.logger.Error("Failed to purge expired alerts", zap.Error(err))
		return 0
	}
	if deleted > 0 {
		s.logger.Info("Purged expired alerts", zap.Int64("count", deleted))
	}
	return deleted
}
