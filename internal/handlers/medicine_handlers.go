package handlers

import (
	"net/http"
	"strings"
	"time"

	"pharmacy-inventory/internal/middleware"
	"pharmacy-inventory/internal/models"
	"pharmacy-inventory/internal/repository"
	"pharmacy-inventory/internal/services"

	"go.uber.org/zap"
)

// HandleListMedicines returns one page of active medicines
func HandleListMedicines(inventory *services.InventoryService, logger *zap.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		q := r.URL.Query()
		page, pageNum := parsePage(r)
		filter := repository.MedicineFilter{
			Search:     strings.TrimSpace(q.Get("search")),
			Category:   models.Category(q.Get("category")),
			Status:     q.Get("status"),
			Pagination: page,
		}

		list, total, err := inventory.ListMedicines(r.Context(), filter)
		if err != nil {
			respondServiceError(w, r, logger, err)
			return
		}

		now := time.Now()
		data := make([]MedicineResponse, 0, len(list))
		for _, m := range list {
			data = append(data, newMedicineResponse(m, now))
		}
		respondJSON(w, http.StatusOK, pageResponse(data, total, page, pageNum))
	}
}

// HandleGetMedicine returns a single active medicine
func HandleGetMedicine(inventory *services.InventoryService, logger *zap.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id, ok := parseID(w, r, "id")
		if !ok {
			return
		}

		m, err := inventory.GetMedicine(r.Context(), id)
		if err != nil {
			respondServiceError(w, r, logger, err)
			return
		}
		respondJSON(w, http.StatusOK, newMedicineResponse(m, time.Now()))
	}
}

// HandleCreateMedicine adds a medicine
func HandleCreateMedicine(inventory *services.InventoryService, logger *zap.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req services.MedicineInput
		if !decodeJSON(w, r, &req) {
			return
		}

		m, err := inventory.CreateMedicine(r.Context(), middleware.ActorFromRequest(r), req)
		if err != nil {
			respondServiceError(w, r, logger, err)
			return
		}
		respondJSON(w, http.StatusCreated, newMedicineResponse(m, time.Now()))
	}
}

// HandleUpdateMedicine edits a medicine and optionally restocks it
func HandleUpdateMedicine(inventory *services.InventoryService, logger *zap.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id, ok := parseID(w, r, "id")
		if !ok {
			return
		}

		var req services.MedicineUpdate
		if !decodeJSON(w, r, &req) {
			return
		}

		m, err := inventory.UpdateMedicine(r.Context(), middleware.ActorFromRequest(r), id, req)
		if err != nil {
			respondServiceError(w, r, logger, err)
			return
		}
		respondJSON(w, http.StatusOK, newMedicineResponse(m, time.Now()))
	}
}

// HandleDeleteMedicine soft-deletes a medicine
func HandleDeleteMedicine(inventory *services.InventoryService, logger *zap.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id, ok := parseID(w, r, "id")
		if !ok {
			return
		}

		if err := inventory.DeleteMedicine(r.Context(), middleware.ActorFromRequest(r), id); err != nil {
			respondServiceError(w, r, logger, err)
			return
		}
		w.WriteHeader(http.StatusNoContent)
	}
}

// HandleGetMedicineIssuances returns the issuance history of one medicine,
// including medicines that were deleted
func HandleGetMedicineIssuances(inventory *services.InventoryService, logger *zap.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id, ok := parseID(w, r, "id")
		if !ok {
			return
		}

		page, pageNum := parsePage(r)
		list, total, err := inventory.ListIssuances(r.Context(), repository.IssuanceFilter{MedicineID: id, Pagination: page})
		if err != nil {
			respondServiceError(w, r, logger, err)
			return
		}
		respondJSON(w, http.StatusOK, pageResponse(issuanceResponses(list), total, page, pageNum))
	}
}
