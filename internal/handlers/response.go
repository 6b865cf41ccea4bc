package handlers

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strconv"

	"pharmacy-inventory/internal/repository"
	"pharmacy-inventory/internal/services"

	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"
)

const (
	defaultPageSize = 20
	maxPageSize     = 100
	maxBodyBytes    = 1 << 20
)

// ErrorResponse is the body of every failed request
type ErrorResponse struct {
	Error ErrorDetail `json:"error"`
}

type ErrorDetail struct {
	Code    string `json:"code"`
	Message string `json:"message"`
	Field   string `json:"field,omitempty"`
}

// PageResponse wraps one page of a listing
type PageResponse struct {
	Data  interface{} `json:"data"`
	Total int64       `json:"total"`
	Page  int         `json:"page"`
	Limit int         `json:"limit"`
}

// respondJSON sends a JSON response
func respondJSON(w http.ResponseWriter, statusCode int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)
	_ = json.NewEncoder(w).Encode(data)
}

// respondError sends an error response
func respondError(w http.ResponseWriter, statusCode int, code, message string) {
	respondJSON(w, statusCode, ErrorResponse{Error: ErrorDetail{Code: code, Message: message}})
}

// respondServiceError maps service errors onto HTTP statuses. Anything
// unrecognised is logged and reported as a 500 without detail.
func respondServiceError(w http.ResponseWriter, r *http.Request, logger *zap.Logger, err error) {
	var validationErr *services.ValidationError
	var stockErr *services.InsufficientStockError

	switch {
	case errors.As(err, &validationErr):
		respondJSON(w, http.StatusBadRequest, ErrorResponse{Error: ErrorDetail{
			Code:    "validation_error",
			Message: validationErr.Error(),
			Field:   validationErr.Field,
		}})
	case errors.As(err, &stockErr):
		respondError(w, http.StatusUnprocessableEntity, "insufficient_stock",
			fmt.Sprintf("Only %d units available, %d requested", stockErr.Available, stockErr.Requested))
	case errors.Is(err, services.ErrMedicineExpired):
		respondError(w, http.StatusUnprocessableEntity, "medicine_expired", "Expired medicine cannot be issued")
	case errors.Is(err, services.ErrDuplicateBarcode):
		respondError(w, http.StatusConflict, "duplicate_barcode", "Barcode is already used by another medicine")
	case errors.Is(err, services.ErrDuplicateUsername):
		respondError(w, http.StatusConflict, "duplicate_username", "Username already exists")
	case errors.Is(err, services.ErrLastAdmin):
		respondError(w, http.StatusConflict, "last_admin", "The last active admin cannot be removed or demoted")
	case errors.Is(err, services.ErrSelfDeletion):
		respondError(w, http.StatusConflict, "self_deletion", "You cannot delete your own account")
	case errors.Is(err, services.ErrForbidden):
		respondError(w, http.StatusForbidden, "forbidden", "Insufficient permissions")
	case errors.Is(err, services.ErrInvalidCredentials):
		respondError(w, http.StatusUnauthorized, "invalid_credentials", "Invalid username or password")
	case errors.Is(err, services.ErrAccountLocked):
		respondError(w, http.StatusForbidden, "account_locked",
			fmt.Sprintf("Account locked due to too many failed login attempts. Please try again in %d minutes.", int(services.LockoutDuration.Minutes())))
	case errors.Is(err, services.ErrMedicineNotFound):
		respondError(w, http.StatusNotFound, "not_found", "Medicine not found")
	case errors.Is(err, services.ErrIssuanceNotFound):
		respondError(w, http.StatusNotFound, "not_found", "Issuance not found")
	case errors.Is(err, services.ErrUserNotFound):
		respondError(w, http.StatusNotFound, "not_found", "User not found")
	case errors.Is(err, services.ErrAlertNotFound):
		respondError(w, http.StatusNotFound, "not_found", "Alert not found")
	default:
		logger.Error("Request failed",
			zap.String("method", r.Method),
			zap.String("path", r.URL.Path),
			zap.Error(err),
		)
		respondError(w, http.StatusInternalServerError, "internal_error", "An error occurred")
	}
}

// decodeJSON reads a single JSON object, rejecting unknown fields
func decodeJSON(w http.ResponseWriter, r *http.Request, v interface{}) bool {
	dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxBodyBytes))
	dec.DisallowUnknownFields()
	if err := dec.Decode(v); err != nil {
		msg := "Invalid request body"
		if errors.Is(err, io.EOF) {
			msg = "Request body is required"
		}
		respondError(w, http.StatusBadRequest, "invalid_body", msg)
		return false
	}
	return true
}

// parseID reads a positive integer URL parameter
func parseID(w http.ResponseWriter, r *http.Request, name string) (int64, bool) {
	id, err := strconv.ParseInt(chi.URLParam(r, name), 10, 64)
	if err != nil || id <= 0 {
		respondError(w, http.StatusBadRequest, "invalid_id", "Invalid "+name)
		return 0, false
	}
	return id, true
}

// parsePage reads page and limit query parameters. Pages start at 1.
func parsePage(r *http.Request) (repository.Pagination, int) {
	q := r.URL.Query()

	page, err := strconv.Atoi(q.Get("page"))
	if err != nil || page < 1 {
		page = 1
	}
	limit, err := strconv.Atoi(q.Get("limit"))
	if err != nil || limit < 1 {
		limit = defaultPageSize
	}
	if limit > maxPageSize {
		limit = maxPageSize
	}

	return repository.Pagination{Limit: limit, Offset: (page - 1) * limit}, page
}

func pageResponse(data interface{}, total int64, p repository.Pagination, page int) PageResponse {
	return PageResponse{Data: data, Total: total, Page: page, Limit: p.Limit}
}
