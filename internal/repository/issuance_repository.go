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

// IssuanceFilter narrows an issuance listing. Issuances of soft-deleted
// medicines are always included.
type IssuanceFilter struct {
	MedicineID    int64
	RecipientType models.RecipientType
	From          time.Time
	To            time.Time
	Pagination
}

type IssuanceRepository struct {
	db *database.DB
}

func NewIssuanceRepository(db *database.DB) *IssuanceRepository {
	return &IssuanceRepository{db: db}
}

// Create appends an issuance to the ledger
func (r *IssuanceRepository) Create(ctx context.Context, issuance *models.Issuance) error {
	query := `
		INSERT INTO issuances (medicine_id, recipient_type, recipient_name, recipient_id, quantity,
			prescribed_by, notes, issued_by, issued_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)
	`
	result, err := r.db.ExecContext(ctx, query,
		issuance.MedicineID,
		issuance.RecipientType,
		issuance.RecipientName,
		issuance.RecipientID,
		issuance.Quantity,
		issuance.PrescribedBy,
		issuance.Notes,
		issuance.IssuedBy,
		utc(issuance.IssuedAt),
	)
	if err != nil {
		return fmt.Errorf("failed to create issuance: %w", err)
	}

	id, err := result.LastInsertId()
	if err != nil {
		return fmt.Errorf("failed to get last insert id: %w", err)
	}

	issuance.ID = id
	return nil
}

// GetByID retrieves an issuance by ID
func (r *IssuanceRepository) GetByID(ctx context.Context, id int64) (*models.Issuance, error) {
	query := `
		SELECT i.id, i.medicine_id, i.recipient_type, i.recipient_name, i.recipient_id, i.quantity,
			i.prescribed_by, i.notes, i.issued_by, i.issued_at, m.name
		FROM issuances i
		JOIN medicines m ON m.id = i.medicine_id
		WHERE i.id = ?
	`
	issuance, err := scanIssuance(r.db.QueryRowContext(ctx, query, id))
	if err == sql.ErrNoRows {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get issuance: %w", err)
	}
	return issuance, nil
}

// List retrieves issuances newest first
func (r *IssuanceRepository) List(ctx context.Context, filter IssuanceFilter) ([]*models.Issuance, error) {
	where, args := filter.where()
	query := `
		SELECT i.id, i.medicine_id, i.recipient_type, i.recipient_name, i.recipient_id, i.quantity,
			i.prescribed_by, i.notes, i.issued_by, i.issued_at, m.name
		FROM issuances i
		JOIN medicines m ON m.id = i.medicine_id
		WHERE ` + where + `
		ORDER BY i.issued_at DESC, i.id DESC
		LIMIT ? OFFSET ?
	`
	args = append(args, filter.limit(), filter.Offset)

	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to list issuances: %w", err)
	}
	defer rows.Close()

	var issuances []*models.Issuance
	for rows.Next() {
		issuance, err := scanIssuance(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan issuance: %w", err)
		}
		issuances = append(issuances, issuance)
	}

	return issuances, rows.Err()
}

// Count counts issuances matching the filter, ignoring pagination
func (r *IssuanceRepository) Count(ctx context.Context, filter IssuanceFilter) (int64, error) {
	where, args := filter.where()
	var count int64
	if err := r.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM issuances i WHERE `+where, args...).Scan(&count); err != nil {
		return 0, fmt.Errorf("failed to count issuances: %w", err)
	}
	return count, nil
}

// TotalsByRecipientType sums issuances and units per recipient type within [from, to)
func (r *IssuanceRepository) TotalsByRecipientType(ctx context.Context, from, to time.Time) (map[models.RecipientType]models.RecipientTotals, error) {
	query := `
		SELECT recipient_type, COUNT(*), COALESCE(SUM(quantity), 0)
		FROM issuances
		WHERE issued_at >= ? AND issued_at < ?
		GROUP BY recipient_type
	`
	rows, err := r.db.QueryContext(ctx, query, utc(from), utc(to))
	if err != nil {
		return nil, fmt.Errorf("failed to total issuances: %w", err)
	}
	defer rows.Close()

	totals := make(map[models.RecipientType]models.RecipientTotals)
	for rows.Next() {
		var recipientType models.RecipientType
		var t models.RecipientTotals
		if err := rows.Scan(&recipientType, &t.Issuances, &t.Units); err != nil {
			return nil, fmt.Errorf("failed to scan issuance totals: %w", err)
		}
		totals[recipientType] = t
	}

	return totals, rows.Err()
}

func (f IssuanceFilter) where() (string, []interface{}) {
	conditions := []string{"1 = 1"}
	var args []interface{}

	if f.MedicineID != 0 {
		conditions = append(conditions, "i.medicine_id = ?")
		args = append(args, f.MedicineID)
	}
	if f.RecipientType != "" {
		conditions = append(conditions, "i.recipient_type = ?")
		args = append(args, f.RecipientType)
	}
	if !f.From.IsZero() {
		conditions = append(conditions, "i.issued_at >= ?")
		args = append(args, utc(f.From))
	}
	if !f.To.IsZero() {
		conditions = append(conditions, "i.issued_at < ?")
		args = append(args, utc(f.To))
	}

	return strings.Join(conditions, " AND "), args
}

func scanIssuance(row scanner) (*models.Issuance, error) {
	var i models.Issuance
	err := row.Scan(
		&i.ID,
		&i.MedicineID,
		&i.RecipientType,
		&i.RecipientName,
		&i.RecipientID,
		&i.Quantity,
		&i.PrescribedBy,
		&i.Notes,
		&i.IssuedBy,
		&i.IssuedAt,
		&i.MedicineName,
	)
	if err != nil {
		return nil, err
	}
	return &i, nil
}
