package handlers

import (
	"database/sql"
	"encoding/json"
	"time"

	"pharmacy-inventory/internal/models"
)

const dateLayout = "2006-01-02"

// MedicineResponse represents the API response for a medicine
type MedicineResponse struct {
	ID           int64     `json:"id"`
	Name         string    `json:"name"`
	Category     string    `json:"category"`
	Quantity     int       `json:"quantity"`
	InitialStock int       `json:"initial_stock"`
	StockOut     int       `json:"stock_out"`
	MinQuantity  int       `json:"min_quantity"`
	Price        float64   `json:"price"`
	ExpiryDate   string    `json:"expiry_date"`
	Barcode      *string   `json:"barcode,omitempty"`
	Supplier     *string   `json:"supplier,omitempty"`
	BatchNumber  *string   `json:"batch_number,omitempty"`
	Description  *string   `json:"description,omitempty"`
	IsLowStock   bool      `json:"is_low_stock"`
	IsExpiring   bool      `json:"is_expiring_soon"`
	IsExpired    bool      `json:"is_expired"`
	CreatedBy    *int64    `json:"created_by,omitempty"`
	CreatedAt    time.Time `json:"created_at"`
	UpdatedAt    time.Time `json:"updated_at"`
}

func newMedicineResponse(m *models.Medicine, now time.Time) MedicineResponse {
	return MedicineResponse{
		ID:           m.ID,
		Name:         m.Name,
		Category:     string(m.Category),
		Quantity:     m.Quantity,
		InitialStock: m.InitialStock,
		StockOut:     m.StockOut(),
		MinQuantity:  m.MinQuantity,
		Price:        m.Price,
		ExpiryDate:   m.ExpiryDate.Format(dateLayout),
		Barcode:      stringPtr(m.Barcode),
		Supplier:     stringPtr(m.Supplier),
		BatchNumber:  stringPtr(m.BatchNumber),
		Description:  stringPtr(m.Description),
		IsLowStock:   m.IsLowStock(),
		IsExpiring:   m.IsExpiringSoon(now),
		IsExpired:    m.IsExpired(now),
		CreatedBy:    int64Ptr(m.CreatedBy),
		CreatedAt:    m.CreatedAt,
		UpdatedAt:    m.UpdatedAt,
	}
}

// IssuanceResponse represents the API response for an issuance
type IssuanceResponse struct {
	ID            int64     `json:"id"`
	MedicineID    int64     `json:"medicine_id"`
	MedicineName  string    `json:"medicine_name,omitempty"`
	RecipientType string    `json:"recipient_type"`
	RecipientName string    `json:"recipient_name"`
	RecipientID   *string   `json:"recipient_id,omitempty"`
	Quantity      int       `json:"quantity"`
	PrescribedBy  string    `json:"prescribed_by"`
	Notes         *string   `json:"notes,omitempty"`
	IssuedBy      *int64    `json:"issued_by,omitempty"`
	IssuedAt      time.Time `json:"issued_at"`
}

func newIssuanceResponse(i *models.Issuance) IssuanceResponse {
	return IssuanceResponse{
		ID:            i.ID,
		MedicineID:    i.MedicineID,
		MedicineName:  i.MedicineName,
		RecipientType: string(i.RecipientType),
		RecipientName: i.RecipientName,
		RecipientID:   stringPtr(i.RecipientID),
		Quantity:      i.Quantity,
		PrescribedBy:  i.PrescribedBy,
		Notes:         stringPtr(i.Notes),
		IssuedBy:      int64Ptr(i.IssuedBy),
		IssuedAt:      i.IssuedAt,
	}
}

// AlertResponse represents the API response for an alert
type AlertResponse struct {
	ID          int64     `json:"id"`
	Type        string    `json:"type"`
	Title       string    `json:"title"`
	Message     string    `json:"message"`
	Severity    string    `json:"severity"`
	EntityType  string    `json:"entity_type"`
	EntityID    *int64    `json:"entity_id,omitempty"`
	TriggeredBy *int64    `json:"triggered_by,omitempty"`
	IsRead      bool      `json:"is_read"`
	CreatedAt   time.Time `json:"created_at"`
	ExpiresAt   time.Time `json:"expires_at"`
}

func newAlertResponse(a *models.Alert) AlertResponse {
	return AlertResponse{
		ID:          a.ID,
		Type:        string(a.Type),
		Title:       a.Title,
		Message:     a.Message,
		Severity:    string(a.Severity),
		EntityType:  string(a.EntityType),
		EntityID:    int64Ptr(a.EntityID),
		TriggeredBy: int64Ptr(a.TriggeredBy),
		IsRead:      a.IsRead,
		CreatedAt:   a.CreatedAt,
		ExpiresAt:   a.ExpiresAt,
	}
}

// ActivityResponse represents an audit log entry
type ActivityResponse struct {
	ID          int64           `json:"id"`
	Action      string          `json:"action"`
	EntityType  string          `json:"entity_type"`
	EntityID    *int64          `json:"entity_id,omitempty"`
	UserID      *int64          `json:"user_id,omitempty"`
	Description string          `json:"description"`
	Before      json.RawMessage `json:"before,omitempty"`
	After       json.RawMessage `json:"after,omitempty"`
	IPAddress   *string         `json:"ip_address,omitempty"`
	UserAgent   *string         `json:"user_agent,omitempty"`
	CreatedAt   time.Time       `json:"created_at"`
}

func newActivityResponse(l *models.ActivityLog) ActivityResponse {
	return ActivityResponse{
		ID:          l.ID,
		Action:      string(l.Action),
		EntityType:  string(l.EntityType),
		EntityID:    int64Ptr(l.EntityID),
		UserID:      int64Ptr(l.UserID),
		Description: l.Description,
		Before:      rawJSON(l.BeforeState),
		After:       rawJSON(l.AfterState),
		IPAddress:   stringPtr(l.IPAddress),
		UserAgent:   stringPtr(l.UserAgent),
		CreatedAt:   l.CreatedAt,
	}
}

// UserResponse represents user data in responses
type UserResponse struct {
	ID        int64      `json:"id"`
	Username  string     `json:"username"`
	FullName  string     `json:"full_name"`
	Email     *string    `json:"email,omitempty"`
	Role      string     `json:"role"`
	CreatedAt time.Time  `json:"created_at"`
	LastLogin *time.Time `json:"last_login,omitempty"`
}

func newUserResponse(u *models.User) UserResponse {
	resp := UserResponse{
		ID:        u.ID,
		Username:  u.Username,
		FullName:  u.FullName,
		Email:     stringPtr(u.Email),
		Role:      string(u.Role),
		CreatedAt: u.CreatedAt,
	}
	if u.LastLogin.Valid {
		t := u.LastLogin.Time
		resp.LastLogin = &t
	}
	return resp
}

func stringPtr(s sql.NullString) *string {
	if !s.Valid {
		return nil
	}
	return &s.String
}

func int64Ptr(n sql.NullInt64) *int64 {
	if !n.Valid {
		return nil
	}
	return &n.Int64
}

func rawJSON(s sql.NullString) json.RawMessage {
	if !s.Valid || s.String == "" {
		return nil
	}
	return json.RawMessage(s.String)
}
