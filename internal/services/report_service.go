package services

import (
	"context"
	"time"

	"pharmacy-inventory/internal/models"
	"pharmacy-inventory/internal/repository"
)

// DefaultReportPeriod is the issuance window used when none is given
const DefaultReportPeriod = 30 * 24 * time.Hour

// ReportService builds read-only inventory reports
type ReportService struct {
	medicines *repository.MedicineRepository
	issuances *repository.IssuanceRepository
	now       func() time.Time
}

func NewReportService(medicines *repository.MedicineRepository, issuances *repository.IssuanceRepository) *ReportService {
	return &ReportService{medicines: medicines, issuances: issuances, now: time.Now}
}

// WithClock replaces the time source, for tests
func (s *ReportService) WithClock(now func() time.Time) *ReportService {
	s.now = now
	return s
}

// InventorySummary aggregates the active inventory and the units issued per
// recipient type over the trailing period
func (s *ReportService) InventorySummary(ctx context.Context, period time.Duration) (*models.InventorySummary, error) {
	if period <= 0 {
		period = DefaultReportPeriod
	}
	now := s.now().UTC()

	summary, err := s.medicines.Summary(ctx, now)
	if err != nil {
		return nil, err
	}

	totals, err := s.issuances.TotalsByRecipientType(ctx, now.Add(-period), now.Add(time.Nanosecond))
	if err != nil {
		return nil, err
	}
	summary.IssuedByRecipient = totals

	return summary, nil
}
