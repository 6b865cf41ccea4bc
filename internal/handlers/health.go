package handlers

import (
	"context"
	"net/http"
	"time"

	"go.uber.org/zap"
)

// Pinger reports whether a backing service is reachable
type Pinger interface {
	PingContext(ctx context.Context) error
}

// PingFunc adapts a function to Pinger
type PingFunc func(ctx context.Context) error

func (f PingFunc) PingContext(ctx context.Context) error { return f(ctx) }

// HandleHealth checks the database and, when configured, redis. Redis being
// down degrades live alerts only, so it never fails the check.
func HandleHealth(db Pinger, redis Pinger, logger *zap.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
		defer cancel()

		resp := map[string]string{"status": "ok", "database": "ok"}
		status := http.StatusOK

		if err := db.PingContext(ctx); err != nil {
			logger.Error("Health check: database unreachable", zap.Error(err))
			resp["status"] = "unavailable"
			resp["database"] = "unreachable"
			status = http.StatusServiceUnavailable
		}

		if redis != nil {
			resp["redis"] = "ok"
			if err := redis.PingContext(ctx); err != nil {
				logger.Warn("Health check: redis unreachable", zap.Error(err))
				resp["redis"] = "unreachable"
				if status == http.StatusOK {
					resp["status"] = "degraded"
				}
			}
		}

		respondJSON(w, status, resp)
	}
}
