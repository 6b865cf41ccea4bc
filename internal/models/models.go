package models

import (
	"database/sql"
	"time"
)

// ExpiryWarningWindow is how far ahead a medicine counts as expiring soon.
// Stock checks, list filters and reports all use this value.
const ExpiryWarningWindow = 30 * 24 * time.Hour

// Actor identifies the authenticated caller of a mutation together with the
// request origin recorded in the activity log.
type Actor struct {
	UserID    int64
	Username  string
	Role      Role
	IPAddress string
	UserAgent string
}

// NullUserID returns the actor's user id, invalid for system actions
func (a Actor) NullUserID() sql.NullInt64 {
	return sql.NullInt64{Int64: a.UserID, Valid: a.UserID != 0}
}

// IsAdmin reports whether the actor has the admin role
func (a Actor) IsAdmin() bool {
	return a.Role == RoleAdmin
}

// SystemActor is used for mutations not triggered by a user, such as CLI jobs
var SystemActor = Actor{Username: "system"}

// User represents a system user
type User struct {
	ID                  int64
	Username            string
	FullName            string
	PasswordHash        string
	Email               sql.NullString
	Role                Role
	IsActive            bool
	FailedLoginAttempts int
	LockedUntil         sql.NullTime
	CreatedAt           time.Time
	UpdatedAt           time.Time
	LastLogin           sql.NullTime
}

// DisplayName returns the full name, falling back to the username
func (u *User) DisplayName() string {
	if u.FullName != "" {
		return u.FullName
	}
	return u.Username
}

// Medicine represents a stocked medicine or medical supply
type Medicine struct {
	ID           int64
	Name         string
	Category     Category
	Quantity     int
	InitialStock int
	MinQuantity  int
	Price        float64
	ExpiryDate   time.Time
	Barcode      sql.NullString
	Supplier     sql.NullString
	BatchNumber  sql.NullString
	Description  sql.NullString
	IsActive     bool
	CreatedBy    sql.NullInt64
	CreatedAt    time.Time
	UpdatedAt    time.Time
}

// IsLowStock reports whether quantity is at or below the minimum threshold
func (m *Medicine) IsLowStock() bool {
	return m.Quantity <= m.MinQuantity
}

// IsExpired reports whether the expiry date is at or before now
func (m *Medicine) IsExpired(now time.Time) bool {
	return !m.ExpiryDate.After(now)
}

// IsExpiringSoon reports whether the medicine expires within the warning window.
// An expired medicine is never expiring soon.
func (m *Medicine) IsExpiringSoon(now time.Time) bool {
	return m.ExpiryDate.After(now) && !m.ExpiryDate.After(now.Add(ExpiryWarningWindow))
}

// StockOut returns the quantity dispensed since initial stocking
func (m *Medicine) StockOut() int {
	return m.InitialStock - m.Quantity
}

// Issuance is one dispensing event. Issuances are never updated or deleted.
type Issuance struct {
	ID            int64
	MedicineID    int64
	RecipientType RecipientType
	RecipientName string
	RecipientID   sql.NullString
	Quantity      int
	PrescribedBy  string
	Notes         sql.NullString
	IssuedBy      sql.NullInt64
	IssuedAt      time.Time

	// Joined fields (set by repository)
	MedicineName string
}

// ActivityLog represents an audit trail entry
type ActivityLog struct {
	ID          int64
	Action      ActivityAction
	EntityType  EntityType
	EntityID    sql.NullInt64
	UserID      sql.NullInt64
	Description string
	BeforeState sql.NullString // JSON
	AfterState  sql.NullString // JSON
	IPAddress   sql.NullString
	UserAgent   sql.NullString
	CreatedAt   time.Time
}

// Alert represents an operational alert shown to staff
type Alert struct {
	ID          int64
	Type        AlertType
	Title       string
	Message     string
	Severity    Severity
	EntityType  EntityType
	EntityID    sql.NullInt64
	TriggeredBy sql.NullInt64
	IsRead      bool
	IsActive    bool
	CreatedAt   time.Time
	ExpiresAt   time.Time
}

// IsExpired reports whether the alert is past its retention window
func (a *Alert) IsExpired(now time.Time) bool {
	return !a.ExpiresAt.After(now)
}

// InventorySummary aggregates the active inventory at a point in time
type InventorySummary struct {
	GeneratedAt       time.Time
	TotalMedicines    int64
	TotalUnits        int64
	TotalStockOut     int64
	StockValue        float64
	LowStockCount     int64
	ExpiringSoonCount int64
	ExpiredCount      int64
	IssuedByRecipient map[RecipientType]RecipientTotals
}

// RecipientTotals counts issuances and units for one recipient type
type RecipientTotals struct {
	Issuances int64
	Units     int64
}
