package alerts

import (
	"database/sql"
	"time"

	"pharmacy-inventory/internal/models"
)

// DefaultTTL is how long an alert stays reachable after it is created
const DefaultTTL = 7 * 24 * time.Hour

// StockCheck evaluates the low-stock, expiring and expired conditions against
// the current record. The conditions are independent and each true one yields
// its own cause. Previously raised alerts are not consulted.
func StockCheck(m *models.Medicine, now time.Time) []Cause {
	var causes []Cause

	if m.IsLowStock() {
		causes = append(causes, StockLow{
			MedicineID:  m.ID,
			Name:        m.Name,
			Quantity:    m.Quantity,
			MinQuantity: m.MinQuantity,
		})
	}

	if m.IsExpiringSoon(now) {
		causes = append(causes, MedicineExpiring{
			MedicineID: m.ID,
			Name:       m.Name,
			ExpiryDate: m.ExpiryDate,
			DaysLeft:   daysUntil(now, m.ExpiryDate),
		})
	}

	if m.IsExpired(now) {
		causes = append(causes, MedicineExpired{
			MedicineID: m.ID,
			Name:       m.Name,
			ExpiryDate: m.ExpiryDate,
		})
	}

	return causes
}

// ForMedicineAdded returns the causes for a newly created medicine
func ForMedicineAdded(m *models.Medicine, now time.Time) []Cause {
	causes := []Cause{MedicineAdded{MedicineID: m.ID, Name: m.Name, Quantity: m.Quantity}}
	return append(causes, StockCheck(m, now)...)
}

// ForStockUpdate returns the causes for an edit of a medicine. A stock entry
// is reported only when on-hand quantity went up, and always before the stock
// check so a restock that stays below threshold surfaces both.
func ForStockUpdate(before, after *models.Medicine, now time.Time) []Cause {
	var causes []Cause
	if after.Quantity > before.Quantity {
		causes = append(causes, StockEntry{
			MedicineID: after.ID,
			Name:       after.Name,
			Added:      after.Quantity - before.Quantity,
			Quantity:   after.Quantity,
		})
	}
	return append(causes, StockCheck(after, now)...)
}

// ForIssuance returns the causes for an issuance. m must be the record after
// the decrement.
func ForIssuance(m *models.Medicine, issuance *models.Issuance, now time.Time) []Cause {
	causes := []Cause{MedicineIssued{
		MedicineID: m.ID,
		Name:       m.Name,
		Quantity:   issuance.Quantity,
		Recipient:  issuance.RecipientName,
	}}
	return append(causes, StockCheck(m, now)...)
}

func ForUserAdded(u *models.User) []Cause {
	return []Cause{UserAdded{UserID: u.ID, Name: u.DisplayName()}}
}

func ForUserUpdated(u *models.User) []Cause {
	return []Cause{UserUpdated{UserID: u.ID, Name: u.DisplayName()}}
}

func ForUserDeleted(u *models.User) []Cause {
	return []Cause{UserDeleted{UserID: u.ID, Name: u.DisplayName()}}
}

// Build turns a cause into an unsaved alert record
func Build(c Cause, triggeredBy sql.NullInt64, now time.Time, ttl time.Duration) *models.Alert {
	if ttl <= 0 {
		ttl = DefaultTTL
	}

	d := c.Describe()
	alert := &models.Alert{
		Type:        d.Type,
		Title:       d.Title,
		Message:     d.Message,
		Severity:    d.Severity,
		EntityType:  d.EntityType,
		TriggeredBy: triggeredBy,
		IsRead:      false,
		IsActive:    true,
		CreatedAt:   now,
		ExpiresAt:   now.Add(ttl),
	}
	if d.EntityID != 0 {
		alert.EntityID = sql.NullInt64{Int64: d.EntityID, Valid: true}
	}

	return alert
}

// daysUntil rounds partial days up so "expires tomorrow" reads as 1 day
func daysUntil(now, t time.Time) int {
	d := t.Sub(now)
	days := int(d / (24 * time.Hour))
	if d%(24*time.Hour) != 0 {
		days++
	}
	return days
}
