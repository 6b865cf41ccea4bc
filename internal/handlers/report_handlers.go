package handlers

import (
	"net/http"
	"strconv"
	"time"

	"pharmacy-inventory/internal/models"
	"pharmacy-inventory/internal/services"

	"go.uber.org/zap"
)

// InventoryReportResponse is the inventory summary report
type InventoryReportResponse struct {
	GeneratedAt       time.Time                          `json:"generated_at"`
	PeriodDays        int                                `json:"period_days"`
	TotalMedicines    int64                              `json:"total_medicines"`
	TotalUnits        int64                              `json:"total_units"`
	TotalStockOut     int64                              `json:"total_stock_out"`
	StockValue        float64                            `json:"stock_value"`
	LowStockCount     int64                              `json:"low_stock_count"`
	ExpiringSoonCount int64                              `json:"expiring_soon_count"`
	ExpiredCount      int64                              `json:"expired_count"`
	IssuedByRecipient map[string]RecipientTotalsResponse `json:"issued_by_recipient"`
}

type RecipientTotalsResponse struct {
	Issuances int64 `json:"issuances"`
	Units     int64 `json:"units"`
}

// HandleInventoryReport summarises stock and recent issuances. period_days
// sets the issuance window (default 30, max 365).
func HandleInventoryReport(reports *services.ReportService, logger *zap.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		days := int(services.DefaultReportPeriod.Hours() / 24)
		if v := r.URL.Query().Get("period_days"); v != "" {
			n, err := strconv.Atoi(v)
			if err != nil || n < 1 || n > 365 {
				respondError(w, http.StatusBadRequest, "invalid_query", "period_days must be between 1 and 365")
				return
			}
			days = n
		}

		summary, err := reports.InventorySummary(r.Context(), time.Duration(days)*24*time.Hour)
		if err != nil {
			respondServiceError(w, r, logger, err)
			return
		}

		resp := InventoryReportResponse{
			GeneratedAt:       summary.GeneratedAt,
			PeriodDays:        days,
			TotalMedicines:    summary.TotalMedicines,
			TotalUnits:        summary.TotalUnits,
			TotalStockOut:     summary.TotalStockOut,
			StockValue:        summary.StockValue,
			LowStockCount:     summary.LowStockCount,
			ExpiringSoonCount: summary.ExpiringSoonCount,
			ExpiredCount:      summary.ExpiredCount,
			IssuedByRecipient: make(map[string]RecipientTotalsResponse, len(models.RecipientTypes)),
		}
		for _, rt := range models.RecipientTypes {
			t := summary.IssuedByRecipient[rt]
			resp.IssuedByRecipient[string(rt)] = RecipientTotalsResponse{Issuances: t.Issuances, Units: t.Units}
		}
		respondJSON(w, http.StatusOK, resp)
	}
}
