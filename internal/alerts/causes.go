// Package alerts derives alert records from inventory and user state changes.
//
// Derivation is pure: functions take the post-mutation state and the current
// time and return the causes to raise. Persisting them is the caller's job.
package alerts

import (
	"fmt"
	"time"

	"pharmacy-inventory/internal/models"
)

const dateLayout = "Jan 2, 2006"

// Descriptor is the rendered form of a cause
type Descriptor struct {
	Type       models.AlertType
	Title      string
	Message    string
	Severity   models.Severity
	EntityType models.EntityType
	EntityID   int64
}

// Cause is a reason to raise one alert. The set of causes is closed: every
// variant lives in this file and must render itself through Describe.
type Cause interface {
	Describe() Descriptor
	sealed()
}

type UserAdded struct {
	UserID int64
	Name   string
}

type UserUpdated struct {
	UserID int64
	Name   string
}

type UserDeleted struct {
	UserID int64
	Name   string
}

type MedicineAdded struct {
	MedicineID int64
	Name       string
	Quantity   int
}

// StockEntry is raised when a restock raised on-hand quantity
type StockEntry struct {
	MedicineID int64
	Name       string
	Added      int
	Quantity   int
}

type StockLow struct {
	MedicineID  int64
	Name        string
	Quantity    int
	MinQuantity int
}

type MedicineExpiring struct {
	MedicineID int64
	Name       string
	ExpiryDate time.Time
	DaysLeft   int
}

type MedicineExpired struct {
	MedicineID int64
	Name       string
	ExpiryDate time.Time
}

type MedicineIssued struct {
	MedicineID int64
	Name       string
	Quantity   int
	Recipient  string
}

// SystemNotice carries a free-form operational message
type SystemNotice struct {
	Title    string
	Message  string
	Severity models.Severity
}

func (c UserAdded) Describe() Descriptor {
	return Descriptor{
		Type:       models.AlertUserAdded,
		Title:      "New User Added",
		Message:    fmt.Sprintf("%s has been added as a new user", c.Name),
		Severity:   models.SeveritySuccess,
		EntityType: models.EntityUser,
		EntityID:   c.UserID,
	}
}

func (c UserUpdated) Describe() Descriptor {
	return Descriptor{
		Type:       models.AlertSystem,
		Title:      "User Updated",
		Message:    fmt.Sprintf("Account details for %s were updated", c.Name),
		Severity:   models.SeverityInfo,
		EntityType: models.EntityUser,
		EntityID:   c.UserID,
	}
}

func (c UserDeleted) Describe() Descriptor {
	return Descriptor{
		Type:       models.AlertUserDeleted,
		Title:      "User Deleted",
		Message:    fmt.Sprintf("%s has been removed from the system", c.Name),
		Severity:   models.SeverityWarning,
		EntityType: models.EntityUser,
		EntityID:   c.UserID,
	}
}

func (c MedicineAdded) Describe() Descriptor {
	return Descriptor{
		Type:       models.AlertMedicineAdded,
		Title:      "New Medicine Added",
		Message:    fmt.Sprintf("%s has been added to inventory with %d units", c.Name, c.Quantity),
		Severity:   models.SeveritySuccess,
		EntityType: models.EntityMedicine,
		EntityID:   c.MedicineID,
	}
}

func (c StockEntry) Describe() Descriptor {
	return Descriptor{
		Type:       models.AlertStockEntry,
		Title:      "Stock Entry",
		Message:    fmt.Sprintf("%d units of %s added to stock. New quantity: %d", c.Added, c.Name, c.Quantity),
		Severity:   models.SeverityInfo,
		EntityType: models.EntityMedicine,
		EntityID:   c.MedicineID,
	}
}

func (c StockLow) Describe() Descriptor {
	return Descriptor{
		Type:       models.AlertStockLow,
		Title:      "Low Stock Warning",
		Message:    fmt.Sprintf("%s is running low. Current quantity: %d (minimum: %d)", c.Name, c.Quantity, c.MinQuantity),
		Severity:   models.SeverityWarning,
		EntityType: models.EntityMedicine,
		EntityID:   c.MedicineID,
	}
}

func (c MedicineExpiring) Describe() Descriptor {
	return Descriptor{
		Type:       models.AlertMedicineExpiring,
		Title:      "Medicine Expiring Soon",
		Message:    fmt.Sprintf("%s will expire on %s (%d days left)", c.Name, c.ExpiryDate.Format(dateLayout), c.DaysLeft),
		Severity:   models.SeverityWarning,
		EntityType: models.EntityMedicine,
		EntityID:   c.MedicineID,
	}
}

func (c MedicineExpired) Describe() Descriptor {
	return Descriptor{
		Type:       models.AlertMedicineExpired,
		Title:      "Medicine Expired",
		Message:    fmt.Sprintf("%s expired on %s. Removal from stock is advised", c.Name, c.ExpiryDate.Format(dateLayout)),
		Severity:   models.SeverityDanger,
		EntityType: models.EntityMedicine,
		EntityID:   c.MedicineID,
	}
}

func (c MedicineIssued) Describe() Descriptor {
	return Descriptor{
		Type:       models.AlertMedicineIssued,
		Title:      "Medicine Issued",
		Message:    fmt.Sprintf("%d units of %s issued to %s", c.Quantity, c.Name, c.Recipient),
		Severity:   models.SeverityInfo,
		EntityType: models.EntityMedicine,
		EntityID:   c.MedicineID,
	}
}

func (c SystemNotice) Describe() Descriptor {
	severity := c.Severity
	if severity == "" {
		severity = models.SeverityInfo
	}
	return Descriptor{
		Type:       models.AlertSystem,
		Title:      c.Title,
		Message:    c.Message,
		Severity:   severity,
		EntityType: models.EntitySystem,
	}
}

func (UserAdded) sealed()        {}
func (UserUpdated) sealed()      {}
func (UserDeleted) sealed()      {}
func (MedicineAdded) sealed()    {}
func (StockEntry) sealed()       {}
func (StockLow) sealed()         {}
func (MedicineExpiring) sealed() {}
func (MedicineExpired) sealed()  {}
func (MedicineIssued) sealed()   {}
func (SystemNotice) sealed()     {}
