package handlers

import (
	"bytes"
	"encoding/csv"
	"fmt"
	"net/http"
	"strconv"
	"time"

	"pharmacy-inventory/internal/models"
	"pharmacy-inventory/internal/repository"
	"pharmacy-inventory/internal/services"

	"go.uber.org/zap"
)

// HandleExportMedicinesCSV downloads the active inventory as CSV. Accepts the
// same search, category and status filters as the medicine listing.
func HandleExportMedicinesCSV(inventory *services.InventoryService, logger *zap.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		q := r.URL.Query()
		list, _, err := inventory.ListMedicines(r.Context(), repository.MedicineFilter{
			Search:   q.Get("search"),
			Category: models.Category(q.Get("category")),
			Status:   q.Get("status"),
		})
		if err != nil {
			respondServiceError(w, r, logger, err)
			return
		}

		now := time.Now()
		var buf bytes.Buffer
		csvWriter := csv.NewWriter(&buf)
		if err := writeMedicinesCSV(csvWriter, list, now); err != nil {
			respondServiceError(w, r, logger, fmt.Errorf("failed to generate CSV: %w", err))
			return
		}

		writeCSV(w, fmt.Sprintf("medicines-%s.csv", now.UTC().Format(dateLayout)), buf.Bytes())
	}
}

// HandleExportIssuancesCSV downloads the issuance ledger as CSV. Accepts the
// medicine_id, recipient_type, from and to filters.
func HandleExportIssuancesCSV(inventory *services.InventoryService, logger *zap.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		q := r.URL.Query()
		filter := repository.IssuanceFilter{RecipientType: models.RecipientType(q.Get("recipient_type"))}
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

		list, _, err := inventory.ListIssuances(r.Context(), filter)
		if err != nil {
			respondServiceError(w, r, logger, err)
			return
		}

		var buf bytes.Buffer
		csvWriter := csv.NewWriter(&buf)
		if err := writeIssuancesCSV(csvWriter, list); err != nil {
			respondServiceError(w, r, logger, fmt.Errorf("failed to generate CSV: %w", err))
			return
		}

		writeCSV(w, fmt.Sprintf("issuances-%s.csv", time.Now().UTC().Format(dateLayout)), buf.Bytes())
	}
}

func writeCSV(w http.ResponseWriter, filename string, data []byte) {
	w.Header().Set("Content-Type", "text/csv")
	w.Header().Set("Content-Disposition", fmt.Sprintf("attachment; filename=%q", filename))
	w.Header().Set("Content-Length", strconv.Itoa(len(data)))
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write(data)
}

func writeMedicinesCSV(writer *csv.Writer, medicines []*models.Medicine, now time.Time) error {
	header := []string{"ID", "Name", "Category", "Quantity", "Initial Stock", "Stock Out", "Min Quantity",
		"Price", "Expiry Date", "Status", "Barcode", "Supplier", "Batch Number"}
	if err := writer.Write(header); err != nil {
		return err
	}

	for _, m := range medicines {
		row := []string{
			strconv.FormatInt(m.ID, 10),
			m.Name,
			string(m.Category),
			strconv.Itoa(m.Quantity),
			strconv.Itoa(m.InitialStock),
			strconv.Itoa(m.StockOut()),
			strconv.Itoa(m.MinQuantity),
			strconv.FormatFloat(m.Price, 'f', 2, 64),
			m.ExpiryDate.Format(dateLayout),
			medicineStatus(m, now),
			m.Barcode.String,
			m.Supplier.String,
			m.BatchNumber.String,
		}
		if err := writer.Write(row); err != nil {
			return err
		}
	}

	writer.Flush()
	return writer.Error()
}

func writeIssuancesCSV(writer *csv.Writer, issuances []*models.Issuance) error {
	header := []string{"ID", "Date", "Time", "Medicine", "Quantity", "Recipient Type", "Recipient",
		"Recipient ID", "Prescribed By", "Notes"}
	if err := writer.Write(header); err != nil {
		return err
	}

	for _, i := range issuances {
		row := []string{
			strconv.FormatInt(i.ID, 10),
			i.IssuedAt.Format(dateLayout),
			i.IssuedAt.Format("15:04:05"),
			i.MedicineName,
			strconv.Itoa(i.Quantity),
			string(i.RecipientType),
			i.RecipientName,
			i.RecipientID.String,
			i.PrescribedBy,
			i.Notes.String,
		}
		if err := writer.Write(row); err != nil {
			return err
		}
	}

	writer.Flush()
	return writer.Error()
}

// medicineStatus is the most urgent condition of a medicine
func medicineStatus(m *models.Medicine, now time.Time) string {
	switch {
	case m.IsExpired(now):
		return "expired"
	case m.IsExpiringSoon(now):
		return "expiring"
	case m.IsLowStock():
		return "low_stock"
	default:
		return "ok"
	}
}
