package handlers

import (
	"net/http"
	"strconv"
	"time"

	"pharmacy-inventory/internal/middleware"
	"pharmacy-inventory/internal/models"
	"pharmacy-inventory/internal/repository"
	"pharmacy-inventory/internal/services"

	"go.uber.org/zap"
)

// HandleIssueMedicine dispenses stock to a recipient
func HandleIssueMedicine(inventory *services.InventoryService, logger *zap.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req services.IssueInput
		if !decodeJSON(w, r, &req) {
			return
		}

		issuance, err := inventory.IssueMedicine(r.Context(), middleware.ActorFromRequest(r), req)
		if err != nil {
			respondServiceError(w, r, logger, err)
			return
		}
		respondJSON(w, http.StatusCreated, newIssuanceResponse(issuance))
	}
}

// HandleListIssuances returns one page of the issuance ledger, newest first.
// Supports medicine_id, recipient_type, from and to (YYYY-MM-DD) filters.
func HandleListIssuances(inventory *services.InventoryService, logger *zap.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		q := r.URL.Query()
		page, pageNum := parsePage(r)
		filter := repository.IssuanceFilter{
			RecipientType: models.RecipientType(q.Get("recipient_type")),
			Pagination:    page,
		}

		if v := q.Get("medicine_id"); v != "" {
			id, err := strconv.ParseInt(v, 10, 64)
			if err != nil || id <= 0 {
				respondError(w, http.StatusBadRequest, "invalid_query", "Invalid medicine_id")
				return
			}
			filter.MedicineID = id
		}

		var ok bool
		if filter.From, filter.To, ok = parseDateRange(w, r); !ok {
			return
		}

		list, total, err := inventory.ListIssuances(r.Context(), filter)
		if err != nil {
			respondServiceError(w, r, logger, err)
			return
		}
		respondJSON(w, http.StatusOK, pageResponse(issuanceResponses(list), total, page, pageNum))
	}
}

// HandleGetIssuance returns a single issuance
func HandleGetIssuance(inventory *services.InventoryService, logger *zap.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id, ok := parseID(w, r, "id")
		if !ok {
			return
		}

		issuance, err := inventory.GetIssuance(r.Context(), id)
		if err != nil {
			respondServiceError(w, r, logger, err)
			return
		}
		respondJSON(w, http.StatusOK, newIssuanceResponse(issuance))
	}
}

func issuanceResponses(list []*models.Issuance) []IssuanceResponse {
	data := make([]IssuanceResponse, 0, len(list))
	for _, i := range list {
		data = append(data, newIssuanceResponse(i))
	}
	return data
}

// parseDateRange reads the optional from/to query dates. The to date is
// inclusive, so the returned upper bound is the following midnight.
func parseDateRange(w http.ResponseWriter, r *http.Request) (time.Time, time.Time, bool) {
	var from, to time.Time
	q := r.URL.Query()

	if v := q.Get("from"); v != "" {
		t, err := time.ParseInLocation(dateLayout, v, time.UTC)
		if err != nil {
			respondError(w, http.StatusBadRequest, "invalid_query", "from must be a date in YYYY-MM-DD format")
			return from, to, false
		}
		from = t
	}
	if v := q.Get("to"); v != "" {
		t, err := time.ParseInLocation(dateLayout, v, time.UTC)
		if err != nil {
			respondError(w, http.StatusBadRequest, "invalid_query", "to must be a date in YYYY-MM-DD format")
			return from, to, false
		}
		to = t.AddDate(0, 0, 1)
	}
	return from, to, true
}
