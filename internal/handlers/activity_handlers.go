package handlers

import (
	"net/http"
	"strconv"

	"pharmacy-inventory/internal/models"
	"pharmacy-inventory/internal/repository"
	"pharmacy-inventory/internal/services"

	"go.uber.org/zap"
)

// HandleListActivity returns one page of the audit trail. Supports action,
// entity_type, entity_id, user_id, from and to filters.
func HandleListActivity(activity *services.ActivityService, logger *zap.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		q := r.URL.Query()
		page, pageNum := parsePage(r)
		filter := repository.ActivityFilter{
			Action:     models.ActivityAction(q.Get("action")),
			EntityType: models.EntityType(q.Get("entity_type")),
			Pagination: page,
		}

		for name, dst := range map[string]*int64{"entity_id": &filter.EntityID, "user_id": &filter.UserID} {
			v := q.Get(name)
			if v == "" {
				continue
			}
			id, err := strconv.ParseInt(v, 10, 64)
			if err != nil || id <= 0 {
				respondError(w, http.StatusBadRequest, "invalid_query", "Invalid "+name)
				return
			}
			*dst = id
		}

		var ok bool
		if filter.From, filter.To, ok = parseDateRange(w, r); !ok {
			return
		}

		list, total, err := activity.List(r.Context(), filter)
		if err != nil {
			respondServiceError(w, r, logger, err)
			return
		}

		data := make([]ActivityResponse, 0, len(list))
		for _, l := range list {
			data = append(data, newActivityResponse(l))
		}
		respondJSON(w, http.StatusOK, pageResponse(data, total, page, pageNum))
	}
}

// HandleGetMedicineHistory returns the audit trail of one medicine, oldest
// first. Entries outlive soft deletion.
func HandleGetMedicineHistory(activity *services.ActivityService, logger *zap.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id, ok := parseID(w, r, "id")
		if !ok {
			return
		}
		list, err := activity.History(r.Context(), models.EntityMedicine, id)
		if err != nil {
			respondServiceError(w, r, logger, err)
			return
		}
		data := make([]ActivityResponse, 0, len(list))
		for _, l := range list {
			data = append(data, newActivityResponse(l))
		}
		respondJSON(w, http.StatusOK, map[string]interface{}{"data": data})
	}
}
