package repository

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"time"

	"pharmacy-inventory/internal/database"
	"pharmacy-inventory/internal/models"
)

const medicineColumns = `id, name, category, quantity, initial_stock, min_quantity, price, expiry_date,
	barcode, supplier, batch_number, description, is_active, created_by, created_at, updated_at`

// Medicine list status filters
const (
	StatusLowStock = "low_stock"
	StatusExpiring = "expiring"
	StatusExpired  = "expired"
)

// MedicineFilter narrows an active-medicine listing
type MedicineFilter struct {
	Search   string // matches name, barcode or batch number
	Category models.Category
	Status   string
	Pagination
}

type MedicineRepository struct {
	db *database.DB
}

func NewMedicineRepository(db *database.DB) *MedicineRepository {
	return &MedicineRepository{db: db}
}

// Create inserts a new medicine
func (r *MedicineRepository) Create(ctx context.Context, m *models.Medicine) error {
	query := `
		INSERT INTO medicines (name, category, quantity, initial_stock, min_quantity, price, expiry_date,
			barcode, supplier, batch_number, description, is_active, created_by, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, 1, ?, ?, ?)
	`
	result, err := r.db.ExecContext(ctx, query,
		m.Name,
		m.Category,
		m.Quantity,
		m.InitialStock,
		m.MinQuantity,
		m.Price,
		utc(m.ExpiryDate),
		m.Barcode,
		m.Supplier,
		m.BatchNumber,
		m.Description,
		m.CreatedBy,
		utc(m.CreatedAt),
		utc(m.UpdatedAt),
	)
	if err != nil {
		if isUniqueViolation(err) {
			return ErrDuplicate
		}
		return fmt.Errorf("failed to create medicine: %w", err)
	}

	id, err := result.LastInsertId()
	if err != nil {
		return fmt.Errorf("failed to get last insert id: %w", err)
	}

	m.ID = id
	m.IsActive = true
	return nil
}

// GetByID retrieves a medicine by ID, including soft-deleted ones
func (r *MedicineRepository) GetByID(ctx context.Context, id int64) (*models.Medicine, error) {
	return getMedicine(ctx, r.db, id, false)
}

// GetActiveByID retrieves an active medicine by ID
func (r *MedicineRepository) GetActiveByID(ctx context.Context, id int64) (*models.Medicine, error) {
	return getMedicine(ctx, r.db, id, true)
}

// BarcodeExists reports whether an active medicine other than excludeID uses the barcode
func (r *MedicineRepository) BarcodeExists(ctx context.Context, barcode string, excludeID int64) (bool, error) {
	query := `
		SELECT EXISTS(
			SELECT 1 FROM medicines
			WHERE barcode = ? AND is_active = 1 AND id != ?
		)
	`
	var exists bool
	if err := r.db.QueryRowContext(ctx, query, barcode, excludeID).Scan(&exists); err != nil {
		return false, fmt.Errorf("failed to check barcode: %w", err)
	}
	return exists, nil
}

// List retrieves active medicines matching the filter
func (r *MedicineRepository) List(ctx context.Context, filter MedicineFilter, now time.Time) ([]*models.Medicine, error) {
	where, args := filter.where(now)
	query := `SELECT ` + medicineColumns + ` FROM medicines WHERE ` + where + ` ORDER BY name ASC, id ASC LIMIT ? OFFSET ?`
	args = append(args, filter.limit(), filter.Offset)

	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to list medicines: %w", err)
	}
	defer rows.Close()

	return scanMedicines(rows)
}

// Count counts active medicines matching the filter, ignoring pagination
func (r *MedicineRepository) Count(ctx context.Context, filter MedicineFilter, now time.Time) (int64, error) {
	where, args := filter.where(now)
	var count int64
	if err := r.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM medicines WHERE `+where, args...).Scan(&count); err != nil {
		return 0, fmt.Errorf("failed to count medicines: %w", err)
	}
	return count, nil
}

func (f MedicineFilter) where(now time.Time) (string, []interface{}) {
	conditions := []string{"is_active = 1"}
	var args []interface{}

	if s := strings.TrimSpace(f.Search); s != "" {
		like := "%" + s + "%"
		conditions = append(conditions, "(name LIKE ? OR barcode LIKE ? OR batch_number LIKE ?)")
		args = append(args, like, like, like)
	}
	if f.Category != "" {
		conditions = append(conditions, "category = ?")
		args = append(args, f.Category)
	}

	switch f.Status {
	case StatusLowStock:
		conditions = append(conditions, "quantity <= min_quantity")
	case StatusExpiring:
		conditions = append(conditions, "expiry_date > ? AND expiry_date <= ?")
		args = append(args, utc(now), utc(now.Add(models.ExpiryWarningWindow)))
	case StatusExpired:
		conditions = append(conditions, "expiry_date <= ?")
		args = append(args, utc(now))
	}

	return strings.Join(conditions, " AND "), args
}

// Update saves the editable fields of an active medicine. When addStock is
// positive, quantity and initial_stock are both raised by it before the other
// edits, in the same transaction. The returned records are read inside that
// transaction, so their difference is exactly this update.
func (r *MedicineRepository) Update(ctx context.Context, m *models.Medicine, addStock int, now time.Time) (before, after *models.Medicine, err error) {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	before, err = getMedicine(ctx, tx, m.ID, true)
	if err != nil {
		return nil, nil, err
	}

	if addStock > 0 {
		restock := `
			UPDATE medicines
			SET quantity = quantity + ?, initial_stock = initial_stock + ?, updated_at = ?
			WHERE id = ? AND is_active = 1
		`
		if _, err := tx.ExecContext(ctx, restock, addStock, addStock, utc(now), m.ID); err != nil {
			return nil, nil, fmt.Errorf("failed to restock medicine: %w", err)
		}
	}

	query := `
		UPDATE medicines
		SET name = ?, category = ?, min_quantity = ?, price = ?, expiry_date = ?,
			barcode = ?, supplier = ?, batch_number = ?, description = ?, updated_at = ?
		WHERE id = ? AND is_active = 1
	`
	result, err := tx.ExecContext(ctx, query,
		m.Name,
		m.Category,
		m.MinQuantity,
		m.Price,
		utc(m.ExpiryDate),
		m.Barcode,
		m.Supplier,
		m.BatchNumber,
		m.Description,
		utc(now),
		m.ID,
	)
	if err != nil {
		if isUniqueViolation(err) {
			return nil, nil, ErrDuplicate
		}
		return nil, nil, fmt.Errorf("failed to update medicine: %w", err)
	}
	if err := checkRowsAffected(result, ErrNotFound); err != nil {
		return nil, nil, err
	}

	after, err = getMedicine(ctx, tx, m.ID, false)
	if err != nil {
		return nil, nil, err
	}

	if err := tx.Commit(); err != nil {
		return nil, nil, fmt.Errorf("failed to commit transaction: %w", err)
	}

	return before, after, nil
}

// DecrementIfAvailable removes quantity units in a single conditional update.
// The row only changes if the medicine is active, unexpired at now and holds
// at least quantity units; otherwise ErrConditionFailed is returned and
// nothing is written. On success the record is returned as this decrement
// left it, read under the same write lock.
func (r *MedicineRepository) DecrementIfAvailable(ctx context.Context, id int64, quantity int, now time.Time) (*models.Medicine, error) {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	if err := decrementStock(ctx, tx, id, quantity, now); err != nil {
		return nil, err
	}
	m, err := getMedicine(ctx, tx, id, false)
	if err != nil {
		return nil, fmt.Errorf("failed to read medicine after decrement: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("failed to commit transaction: %w", err)
	}
	return m, nil
}

func decrementStock(ctx context.Context, exec Executor, id int64, quantity int, now time.Time) error {
	query := `
		UPDATE medicines
		SET quantity = quantity - ?, updated_at = ?
		WHERE id = ? AND is_active = 1 AND expiry_date > ? AND quantity >= ?
	`
	result, err := exec.ExecContext(ctx, query, quantity, utc(now), id, utc(now), quantity)
	if err != nil {
		return fmt.Errorf("failed to decrement medicine stock: %w", err)
	}
	rows, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to check rows affected: %w", err)
	}
	if rows == 0 {
		return ErrConditionFailed
	}
	return nil
}

// getMedicine reads one medicine through exec, optionally only if active
func getMedicine(ctx context.Context, exec Executor, id int64, activeOnly bool) (*models.Medicine, error) {
	query := `SELECT ` + medicineColumns + ` FROM medicines WHERE id = ?`
	if activeOnly {
		query += ` AND is_active = 1`
	}
	m, err := scanMedicine(exec.QueryRowContext(ctx, query, id))
	if err == sql.ErrNoRows {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get medicine: %w", err)
	}
	return m, nil
}

// SoftDelete marks an active medicine inactive. Quantity is left untouched.
func (r *MedicineRepository) SoftDelete(ctx context.Context, id int64, now time.Time) error {
	query := `UPDATE medicines SET is_active = 0, updated_at = ? WHERE id = ? AND is_active = 1`
	result, err := r.db.ExecContext(ctx, query, utc(now), id)
	if err != nil {
		return fmt.Errorf("failed to delete medicine: %w", err)
	}
	return checkRowsAffected(result, ErrNotFound)
}

// Summary aggregates the active inventory at now
func (r *MedicineRepository) Summary(ctx context.Context, now time.Time) (*models.InventorySummary, error) {
	query := `
		SELECT
			COUNT(*),
			COALESCE(SUM(quantity), 0),
			COALESCE(SUM(initial_stock - quantity), 0),
			COALESCE(SUM(quantity * price), 0),
			COALESCE(SUM(CASE WHEN quantity <= min_quantity THEN 1 ELSE 0 END), 0),
			COALESCE(SUM(CASE WHEN expiry_date > ? AND expiry_date <= ? THEN 1 ELSE 0 END), 0),
			COALESCE(SUM(CASE WHEN expiry_date <= ? THEN 1 ELSE 0 END), 0)
		FROM medicines
		WHERE is_active = 1
	`
	s := &models.InventorySummary{GeneratedAt: now}
	err := r.db.QueryRowContext(ctx, query, utc(now), utc(now.Add(models.ExpiryWarningWindow)), utc(now)).Scan(
		&s.TotalMedicines,
		&s.TotalUnits,
		&s.TotalStockOut,
		&s.StockValue,
		&s.LowStockCount,
		&s.ExpiringSoonCount,
		&s.ExpiredCount,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to summarise inventory: %w", err)
	}

	return s, nil
}

func scanMedicine(row scanner) (*models.Medicine, error) {
	var m models.Medicine
	err := row.Scan(
		&m.ID,
		&m.Name,
		&m.Category,
		&m.Quantity,
		&m.InitialStock,
		&m.MinQuantity,
		&m.Price,
		&m.ExpiryDate,
		&m.Barcode,
		&m.Supplier,
		&m.BatchNumber,
		&m.Description,
		&m.IsActive,
		&m.CreatedBy,
		&m.CreatedAt,
		&m.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	return &m, nil
}

// scanMedicines is a helper to scan multiple medicine rows
func scanMedicines(rows *sql.Rows) ([]*models.Medicine, error) {
	var medicines []*models.Medicine
	for rows.Next() {
		m, err := scanMedicine(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan medicine: %w", err)
		}
		medicines = append(medicines, m)
	}

	return medicines, rows.Err()
}
