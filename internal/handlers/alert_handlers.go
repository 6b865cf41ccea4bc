package handlers

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strconv"
	"time"

	"pharmacy-inventory/internal/broadcast"
	"pharmacy-inventory/internal/middleware"
	"pharmacy-inventory/internal/models"
	"pharmacy-inventory/internal/repository"
	"pharmacy-inventory/internal/services"

	"go.uber.org/zap"
)

// streamHeartbeat keeps idle event streams open through proxies
const streamHeartbeat = 25 * time.Second

// AlertSubscriber delivers alerts as they are published
type AlertSubscriber interface {
	Subscribe(ctx context.Context) (<-chan broadcast.AlertMessage, error)
}

// HandleListAlerts returns one page of reachable alerts, newest first
func HandleListAlerts(alertService *services.AlertService, logger *zap.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		q := r.URL.Query()
		page, pageNum := parsePage(r)
		filter := repository.AlertFilter{Pagination: page}

		if v := q.Get("unread"); v != "" {
			unread, err := strconv.ParseBool(v)
			if err != nil {
				respondError(w, http.StatusBadRequest, "invalid_query", "unread must be true or false")
				return
			}
			filter.UnreadOnly = unread
		}
		if v := q.Get("type"); v != "" {
			filter.Type = models.AlertType(v)
			if !filter.Type.Valid() {
				respondError(w, http.StatusBadRequest, "invalid_query", "Unknown alert type")
				return
			}
		}

		list, total, err := alertService.List(r.Context(), filter)
		if err != nil {
			respondServiceError(w, r, logger, err)
			return
		}

		data := make([]AlertResponse, 0, len(list))
		for _, a := range list {
			data = append(data, newAlertResponse(a))
		}
		respondJSON(w, http.StatusOK, pageResponse(data, total, page, pageNum))
	}
}

// HandleUnreadAlertCount returns the number of unread reachable alerts
func HandleUnreadAlertCount(alertService *services.AlertService, logger *zap.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		count, err := alertService.UnreadCount(r.Context())
		if err != nil {
			respondServiceError(w, r, logger, err)
			return
		}
		respondJSON(w, http.StatusOK, map[string]int64{"count": count})
	}
}

// HandleMarkAlertRead marks one alert as read
func HandleMarkAlertRead(alertService *services.AlertService, logger *zap.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id, ok := parseID(w, r, "id")
		if !ok {
			return
		}
		if err := alertService.MarkRead(r.Context(), id); err != nil {
			respondServiceError(w, r, logger, err)
			return
		}
		w.WriteHeader(http.StatusNoContent)
	}
}

// HandleMarkAllAlertsRead marks every reachable alert as read
func HandleMarkAllAlertsRead(alertService *services.AlertService, logger *zap.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		updated, err := alertService.MarkAllRead(r.Context())
		if err != nil {
			respondServiceError(w, r, logger, err)
			return
		}
		respondJSON(w, http.StatusOK, map[string]int64{"updated": updated})
	}
}

// HandleDeleteAlert hides one alert
func HandleDeleteAlert(alertService *services.AlertService, logger *zap.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id, ok := parseID(w, r, "id")
		if !ok {
			return
		}
		if err := alertService.Delete(r.Context(), id); err != nil {
			respondServiceError(w, r, logger, err)
			return
		}
		w.WriteHeader(http.StatusNoContent)
	}
}

// HandleStockScan re-runs the stock check over every active medicine
func HandleStockScan(inventory *services.InventoryService, logger *zap.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		result, err := inventory.RunStockScan(r.Context(), middleware.ActorFromRequest(r))
		if err != nil {
			respondServiceError(w, r, logger, err)
			return
		}
		respondJSON(w, http.StatusOK, result)
	}
}

// HandleAlertStream pushes newly emitted alerts as server-sent events. A nil
// subscriber means live delivery is not configured.
func HandleAlertStream(subscriber AlertSubscriber, logger *zap.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if subscriber == nil {
			respondError(w, http.StatusServiceUnavailable, "stream_unavailable", "Live alerts are not enabled")
			return
		}

		rc := http.NewResponseController(w)
		ctx, cancel := context.WithCancel(r.Context())
		defer cancel()

		messages, err := subscriber.Subscribe(ctx)
		if err != nil {
			logger.Error("Failed to subscribe to alerts", zap.Error(err))
			respondError(w, http.StatusServiceUnavailable, "stream_unavailable", "Live alerts are temporarily unavailable")
			return
		}

		// Streams outlive the server write timeout
		_ = rc.SetWriteDeadline(time.Time{})

		w.Header().Set("Content-Type", "text/event-stream")
		w.Header().Set("Cache-Control", "no-cache")
		w.Header().Set("Connection", "keep-alive")
		w.Header().Set("X-Accel-Buffering", "no")
		w.WriteHeader(http.StatusOK)

		fmt.Fprint(w, ": connected\n\n")
		if err := rc.Flush(); err != nil {
			logger.Warn("Event stream flushing unsupported", zap.Error(err))
			return
		}

		heartbeat := time.NewTicker(streamHeartbeat)
		defer heartbeat.Stop()

		for {
			select {
			case <-ctx.Done():
				return
			case <-heartbeat.C:
				fmt.Fprint(w, ": ping\n\n")
			case msg, ok := <-messages:
				if !ok {
					return
				}
				data, err := json.Marshal(msg)
				if err != nil {
					logger.Warn("Failed to encode alert event", zap.Error(err))
					continue
				}
				fmt.Fprintf(w, "id: %s\nevent: alert\ndata: %s\n\n", msg.MessageID, data)
			}
			if err := rc.Flush(); err != nil {
				return
			}
		}
	}
}
