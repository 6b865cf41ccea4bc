package services

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"pharmacy-inventory/internal/alerts"
	"pharmacy-inventory/internal/models"
	"pharmacy-inventory/internal/repository"

	"go.uber.org/zap"
)

// MedicineInput is the payload for adding a medicine
type MedicineInput struct {
	Name        string  `json:"name" validate:"required,max=200"`
	Category    string  `json:"category" validate:"required,category"`
	Quantity    int     `json:"quantity" validate:"gte=0,lte=1000000"`
	MinQuantity int     `json:"min_quantity" validate:"gte=1,lte=1000000"`
	Price       float64 `json:"price" validate:"gte=0"`
	ExpiryDate  string  `json:"expiry_date" validate:"required,datetime=2006-01-02"`
	Barcode     string  `json:"barcode" validate:"max=64"`
	Supplier    string  `json:"supplier" validate:"max=200"`
	BatchNumber string  `json:"batch_number" validate:"max=100"`
	Description string  `json:"description" validate:"max=2000"`
}

// MedicineUpdate edits a medicine. Nil fields are left unchanged and AddStock
// is a restock delta applied to both quantity and initial stock.
type MedicineUpdate struct {
	Name        *string  `json:"name" validate:"omitempty,min=1,max=200"`
	Category    *string  `json:"category" validate:"omitempty,category"`
	MinQuantity *int     `json:"min_quantity" validate:"omitempty,gte=1,lte=1000000"`
	Price       *float64 `json:"price" validate:"omitempty,gte=0"`
	ExpiryDate  *string  `json:"expiry_date" validate:"omitempty,datetime=2006-01-02"`
	Barcode     *string  `json:"barcode" validate:"omitempty,max=64"`
	Supplier    *string  `json:"supplier" validate:"omitempty,max=200"`
	BatchNumber *string  `json:"batch_number" validate:"omitempty,max=100"`
	Description *string  `json:"description" validate:"omitempty,max=2000"`
	AddStock    int      `json:"add_stock" validate:"gte=0,lte=1000000"`
}

// IssueInput is the payload for dispensing a medicine
type IssueInput struct {
	MedicineID    int64  `json:"medicine_id" validate:"gt=0"`
	RecipientType string `json:"recipient_type" validate:"required,recipient"`
	RecipientName string `json:"recipient_name" validate:"required,max=100"`
	RecipientID   string `json:"recipient_id" validate:"max=50"`
	Quantity      int    `json:"quantity" validate:"gte=1,lte=1000000"`
	PrescribedBy  string `json:"prescribed_by" validate:"required,max=200"`
	Notes         string `json:"notes" validate:"max=500"`
}

// ScanResult summarises a full stock scan
type ScanResult struct {
	Checked  int `json:"checked"`
	LowStock int `json:"low_stock"`
	Expiring int `json:"expiring"`
	Expired  int `json:"expired"`
	Alerts   int `json:"alerts"`
}

// medicineSnapshot is the before/after payload stored in the activity log
type medicineSnapshot struct {
	Name         string  `json:"name"`
	Category     string  `json:"category"`
	Quantity     int     `json:"quantity"`
	InitialStock int     `json:"initial_stock"`
	MinQuantity  int     `json:"min_quantity"`
	Price        float64 `json:"price"`
	ExpiryDate   string  `json:"expiry_date"`
	Barcode      string  `json:"barcode,omitempty"`
	BatchNumber  string  `json:"batch_number,omitempty"`
	IsActive     bool    `json:"is_active"`
}

type issuanceSnapshot struct {
	MedicineID    int64  `json:"medicine_id"`
	RecipientType string `json:"recipient_type"`
	RecipientName string `json:"recipient_name"`
	RecipientID   string `json:"recipient_id,omitempty"`
	Quantity      int    `json:"quantity"`
	PrescribedBy  string `json:"prescribed_by"`
}

func snapshotMedicine(m *models.Medicine) medicineSnapshot {
	return medicineSnapshot{
		Name:         m.Name,
		Category:     string(m.Category),
		Quantity:     m.Quantity,
		InitialStock: m.InitialStock,
		MinQuantity:  m.MinQuantity,
		Price:        m.Price,
		ExpiryDate:   m.ExpiryDate.Format(dateLayout),
		Barcode:      m.Barcode.String,
		BatchNumber:  m.BatchNumber.String,
		IsActive:     m.IsActive,
	}
}

// InventoryService owns every mutation of medicine stock
type InventoryService struct {
	medicines *repository.MedicineRepository
	issuances *repository.IssuanceRepository
	activity  *ActivityRecorder
	alerts    *AlertService
	now       func() time.Time
	logger    *zap.Logger
}

func NewInventoryService(
	medicines *repository.MedicineRepository,
	issuances *repository.IssuanceRepository,
	activity *ActivityRecorder,
	alertService *AlertService,
	logger *zap.Logger,
) *InventoryService {
	return &InventoryService{
		medicines: medicines,
		issuances: issuances,
		activity:  activity,
		alerts:    alertService,
		now:       time.Now,
		logger:    logger,
	}
}

// WithClock replaces the time source, for tests
func (s *InventoryService) WithClock(now func() time.Time) *InventoryService {
	s.now = now
	return s
}

// CreateMedicine adds a medicine with quantity and initial stock both set to
// the supplied starting quantity
func (s *InventoryService) CreateMedicine(ctx context.Context, actor models.Actor, input MedicineInput) (*models.Medicine, error) {
	input.Name = strings.TrimSpace(input.Name)
	input.Barcode = strings.TrimSpace(input.Barcode)
	if err := validateInput(input); err != nil {
		return nil, err
	}
	expiry, err := parseDate("expiry_date", input.ExpiryDate)
	if err != nil {
		return nil, err
	}

	if input.Barcode != "" {
		if err := s.checkBarcode(ctx, input.Barcode, 0); err != nil {
			return nil, err
		}
	}

	now := s.now().UTC()
	m := &models.Medicine{
		Name:         input.Name,
		Category:     models.Category(input.Category),
		Quantity:     input.Quantity,
		InitialStock: input.Quantity,
		MinQuantity:  input.MinQuantity,
		Price:        input.Price,
		ExpiryDate:   expiry,
		Barcode:      nullString(input.Barcode),
		Supplier:     nullString(input.Supplier),
		BatchNumber:  nullString(input.BatchNumber),
		Description:  nullString(input.Description),
		CreatedBy:    actor.NullUserID(),
		CreatedAt:    now,
		UpdatedAt:    now,
	}

	if err := s.medicines.Create(ctx, m); err != nil {
		if errors.Is(err, repository.ErrDuplicate) {
			return nil, ErrDuplicateBarcode
		}
		return nil, err
	}

	s.activity.Record(ctx, actor, ActivityEntry{
		Action:      models.ActionAdd,
		EntityType:  models.EntityMedicine,
		EntityID:    m.ID,
		Description: fmt.Sprintf("Added medicine %s with %d units", m.Name, m.Quantity),
		After:       snapshotMedicine(m),
	}, now)
	s.emit(ctx, actor, alerts.ForMedicineAdded(m, now), now)

	return m, nil
}

// UpdateMedicine edits an active medicine. A positive AddStock is applied to
// quantity and initial stock before the field edits, in one transaction. The
// audit trail and alerts use the states read inside that transaction.
func (s *InventoryService) UpdateMedicine(ctx context.Context, actor models.Actor, id int64, input MedicineUpdate) (*models.Medicine, error) {
	current, err := s.medicines.GetActiveByID(ctx, id)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return nil, ErrMedicineNotFound
		}
		return nil, err
	}

	if input.Name != nil {
		trimmed := strings.TrimSpace(*input.Name)
		input.Name = &trimmed
	}
	if input.Barcode != nil {
		trimmed := strings.TrimSpace(*input.Barcode)
		input.Barcode = &trimmed
	}
	if err := validateInput(input); err != nil {
		return nil, err
	}

	edited := *current
	if err := applyMedicineUpdate(&edited, input); err != nil {
		return nil, err
	}

	if edited.Barcode.Valid && edited.Barcode.String != current.Barcode.String {
		if err := s.checkBarcode(ctx, edited.Barcode.String, id); err != nil {
			return nil, err
		}
	}

	now := s.now().UTC()
	before, after, err := s.medicines.Update(ctx, &edited, input.AddStock, now)
	if err != nil {
		switch {
		case errors.Is(err, repository.ErrDuplicate):
			return nil, ErrDuplicateBarcode
		case errors.Is(err, repository.ErrNotFound):
			return nil, ErrMedicineNotFound
		}
		return nil, err
	}

	s.activity.Record(ctx, actor, ActivityEntry{
		Action:      models.ActionUpdate,
		EntityType:  models.EntityMedicine,
		EntityID:    id,
		Description: fmt.Sprintf("Updated medicine %s", after.Name),
		Before:      snapshotMedicine(before),
		After:       snapshotMedicine(after),
	}, now)
	if input.AddStock > 0 {
		s.activity.Record(ctx, actor, ActivityEntry{
			Action:      models.ActionStockIn,
			EntityType:  models.EntityMedicine,
			EntityID:    id,
			Description: fmt.Sprintf("Added %d units of %s", input.AddStock, after.Name),
			Before:      map[string]int{"quantity": before.Quantity, "initial_stock": before.InitialStock},
			After:       map[string]int{"quantity": after.Quantity, "initial_stock": after.InitialStock},
		}, now)
	}
	s.emit(ctx, actor, alerts.ForStockUpdate(before, after, now), now)

	return after, nil
}

func applyMedicineUpdate(m *models.Medicine, input MedicineUpdate) error {
	if input.Name != nil {
		m.Name = *input.Name
	}
	if input.Category != nil {
		m.Category = models.Category(*input.Category)
	}
	if input.MinQuantity != nil {
		m.MinQuantity = *input.MinQuantity
	}
	if input.Price != nil {
		m.Price = *input.Price
	}
	if input.ExpiryDate != nil {
		expiry, err := parseDate("expiry_date", *input.ExpiryDate)
		if err != nil {
			return err
		}
		m.ExpiryDate = expiry
	}
	if input.Barcode != nil {
		m.Barcode = nullString(*input.Barcode)
	}
	if input.Supplier != nil {
		m.Supplier = nullString(*input.Supplier)
	}
	if input.BatchNumber != nil {
		m.BatchNumber = nullString(*input.BatchNumber)
	}
	if input.Description != nil {
		m.Description = nullString(*input.Description)
	}
	return nil
}

// IssueMedicine dispenses stock with a single conditional decrement. The
// issuance is written only after the decrement succeeded, and the audit trail
// and stock check use the record exactly as this decrement left it.
func (s *InventoryService) IssueMedicine(ctx context.Context, actor models.Actor, input IssueInput) (*models.Issuance, error) {
	input.RecipientName = strings.TrimSpace(input.RecipientName)
	input.PrescribedBy = strings.TrimSpace(input.PrescribedBy)
	if err := validateInput(input); err != nil {
		return nil, err
	}

	now := s.now().UTC()
	m, err := s.medicines.DecrementIfAvailable(ctx, input.MedicineID, input.Quantity, now)
	if errors.Is(err, repository.ErrConditionFailed) {
		return nil, s.classifyIssueFailure(ctx, input, now)
	}
	if err != nil {
		return nil, err
	}

	issuance := &models.Issuance{
		MedicineID:    input.MedicineID,
		MedicineName:  m.Name,
		RecipientType: models.RecipientType(input.RecipientType),
		RecipientName: input.RecipientName,
		RecipientID:   nullString(input.RecipientID),
		Quantity:      input.Quantity,
		PrescribedBy:  input.PrescribedBy,
		Notes:         nullString(input.Notes),
		IssuedBy:      actor.NullUserID(),
		IssuedAt:      now,
	}
	if err := s.issuances.Create(ctx, issuance); err != nil {
		s.logger.Error("Stock decremented but issuance was not recorded",
			zap.Int64("medicine_id", input.MedicineID),
			zap.Int("quantity", input.Quantity),
			zap.Error(err),
		)
		return nil, err
	}

	s.activity.Record(ctx, actor, ActivityEntry{
		Action:      models.ActionIssue,
		EntityType:  models.EntityIssuance,
		EntityID:    issuance.ID,
		Description: fmt.Sprintf("Issued %d units of %s to %s", issuance.Quantity, m.Name, issuance.RecipientName),
		After: issuanceSnapshot{
			MedicineID:    issuance.MedicineID,
			RecipientType: string(issuance.RecipientType),
			RecipientName: issuance.RecipientName,
			RecipientID:   issuance.RecipientID.String,
			Quantity:      issuance.Quantity,
			PrescribedBy:  issuance.PrescribedBy,
		},
	}, now)
	s.activity.Record(ctx, actor, ActivityEntry{
		Action:      models.ActionStockOut,
		EntityType:  models.EntityMedicine,
		EntityID:    m.ID,
		Description: fmt.Sprintf("Removed %d units of %s from stock", issuance.Quantity, m.Name),
		Before:      map[string]int{"quantity": m.Quantity + issuance.Quantity},
		After:       map[string]int{"quantity": m.Quantity},
	}, now)
	s.emit(ctx, actor, alerts.ForIssuance(m, issuance, now), now)

	return issuance, nil
}

// classifyIssueFailure re-reads the medicine to explain a rejected decrement
func (s *InventoryService) classifyIssueFailure(ctx context.Context, input IssueInput, now time.Time) error {
	m, err := s.medicines.GetActiveByID(ctx, input.MedicineID)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return ErrMedicineNotFound
		}
		return err
	}
	if m.IsExpired(now) {
		return ErrMedicineExpired
	}
	return &InsufficientStockError{Available: m.Quantity, Requested: input.Quantity}
}

// DeleteMedicine soft-deletes an active medicine. Stock and history are kept.
func (s *InventoryService) DeleteMedicine(ctx context.Context, actor models.Actor, id int64) error {
	m, err := s.medicines.GetActiveByID(ctx, id)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return ErrMedicineNotFound
		}
		return err
	}

	now := s.now().UTC()
	if err := s.medicines.SoftDelete(ctx, id, now); err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return ErrMedicineNotFound
		}
		return err
	}

	s.activity.Record(ctx, actor, ActivityEntry{
		Action:      models.ActionDelete,
		EntityType:  models.EntityMedicine,
		EntityID:    id,
		Description: fmt.Sprintf("Deleted medicine %s", m.Name),
		Before:      snapshotMedicine(m),
	}, now)

	return nil
}

// GetMedicine returns an active medicine
func (s *InventoryService) GetMedicine(ctx context.Context, id int64) (*models.Medicine, error) {
	m, err := s.medicines.GetActiveByID(ctx, id)
	if errors.Is(err, repository.ErrNotFound) {
		return nil, ErrMedicineNotFound
	}
	return m, err
}

// ListMedicines returns one page of active medicines and the total match count
func (s *InventoryService) ListMedicines(ctx context.Context, filter repository.MedicineFilter) ([]*models.Medicine, int64, error) {
	if filter.Category != "" && !filter.Category.Valid() {
		return nil, 0, &ValidationError{Field: "category", Message: "is not a recognised category"}
	}
	switch filter.Status {
	case "", repository.StatusLowStock, repository.StatusExpiring, repository.StatusExpired:
	default:
		return nil, 0, &ValidationError{Field: "status", Message: "must be one of low_stock, expiring, expired"}
	}

	now := s.now().UTC()
	list, err := s.medicines.List(ctx, filter, now)
	if err != nil {
		return nil, 0, err
	}
	total, err := s.medicines.Count(ctx, filter, now)
	if err != nil {
		return nil, 0, err
	}
	return list, total, nil
}

// ListIssuances returns one page of the ledger, including issuances of
// deleted medicines
func (s *InventoryService) ListIssuances(ctx context.Context, filter repository.IssuanceFilter) ([]*models.Issuance, int64, error) {
	if filter.RecipientType != "" && !filter.RecipientType.Valid() {
		return nil, 0, &ValidationError{Field: "recipient_type", Message: "must be one of outpatient, visitor, employee"}
	}
	if filter.MedicineID != 0 {
		if _, err := s.medicines.GetByID(ctx, filter.MedicineID); err != nil {
			if errors.Is(err, repository.ErrNotFound) {
				return nil, 0, ErrMedicineNotFound
			}
			return nil, 0, err
		}
	}

	list, err := s.issuances.List(ctx, filter)
	if err != nil {
		return nil, 0, err
	}
	total, err := s.issuances.Count(ctx, filter)
	if err != nil {
		return nil, 0, err
	}
	return list, total, nil
}

func (s *InventoryService) GetIssuance(ctx context.Context, id int64) (*models.Issuance, error) {
	issuance, err := s.issuances.GetByID(ctx, id)
	if errors.Is(err, repository.ErrNotFound) {
		return nil, ErrIssuanceNotFound
	}
	return issuance, err
}

// RunStockScan applies the stock check to every active medicine and closes
// with a system summary alert. Earlier alerts are not consulted.
func (s *InventoryService) RunStockScan(ctx context.Context, actor models.Actor) (*ScanResult, error) {
	now := s.now().UTC()
	medicines, err := s.medicines.List(ctx, repository.MedicineFilter{}, now)
	if err != nil {
		return nil, err
	}

	result := &ScanResult{Checked: len(medicines)}
	for _, m := range medicines {
		causes := alerts.StockCheck(m, now)
		for _, c := range causes {
			switch c.(type) {
			case alerts.StockLow:
				result.LowStock++
			case alerts.MedicineExpiring:
				result.Expiring++
			case alerts.MedicineExpired:
				result.Expired++
			}
		}
		result.Alerts += len(s.emit(ctx, actor, causes, now).Stored)
	}

	summary := alerts.SystemNotice{
		Title: "Stock Scan Completed",
		Message: fmt.Sprintf("Checked %d medicines: %d low stock, %d expiring soon, %d expired.",
			result.Checked, result.LowStock, result.Expiring, result.Expired),
	}
	if result.LowStock+result.Expiring+result.Expired > 0 {
		summary.Severity = models.SeverityWarning
	}
	result.Alerts += len(s.emit(ctx, actor, []alerts.Cause{summary}, now).Stored)

	s.logger.Info("Stock scan completed",
		zap.Int("checked", result.Checked),
		zap.Int("low_stock", result.LowStock),
		zap.Int("expiring", result.Expiring),
		zap.Int("expired", result.Expired),
	)
	return result, nil
}

func (s *InventoryService) checkBarcode(ctx context.Context, barcode string, excludeID int64) error {
	exists, err := s.medicines.BarcodeExists(ctx, barcode, excludeID)
	if err != nil {
		return err
	}
	if exists {
		return ErrDuplicateBarcode
	}
	return nil
}

func (s *InventoryService) emit(ctx context.Context, actor models.Actor, causes []alerts.Cause, now time.Time) EmitResult {
	result := s.alerts.Emit(ctx, actor, causes, now)
	if !result.OK() {
		s.logger.Debug("Alert emission incomplete",
			zap.Int("stored", len(result.Stored)),
			zap.Int("failed", result.Failed),
		)
	}
	return result
}
