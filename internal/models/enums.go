package models

// Category is the closed set of medicine categories
type Category string

const (
	CategoryTablet        Category = "tablet"
	CategoryCapsule       Category = "capsule"
	CategorySyrup         Category = "syrup"
	CategoryInjection     Category = "injection"
	CategoryOintment      Category = "ointment"
	CategoryDrops         Category = "drops"
	CategoryInhaler       Category = "inhaler"
	CategoryMedicalSupply Category = "medical_supply"
	CategoryOther         Category = "other"
)

// Categories lists every valid medicine category
var Categories = []Category{
	CategoryTablet,
	CategoryCapsule,
	CategorySyrup,
	CategoryInjection,
	CategoryOintment,
	CategoryDrops,
	CategoryInhaler,
	CategoryMedicalSupply,
	CategoryOther,
}

func (c Category) Valid() bool {
	for _, v := range Categories {
		if c == v {
			return true
		}
	}
	return false
}

// RecipientType is who received an issuance
type RecipientType string

const (
	RecipientOutpatient RecipientType = "outpatient"
	RecipientVisitor    RecipientType = "visitor"
	RecipientEmployee   RecipientType = "employee"
)

var RecipientTypes = []RecipientType{RecipientOutpatient, RecipientVisitor, RecipientEmployee}

func (r RecipientType) Valid() bool {
	switch r {
	case RecipientOutpatient, RecipientVisitor, RecipientEmployee:
		return true
	}
	return false
}

// AlertType is the closed set of alert kinds
type AlertType string

const (
	AlertUserAdded        AlertType = "user_added"
	AlertUserDeleted      AlertType = "user_deleted"
	AlertMedicineAdded    AlertType = "medicine_added"
	AlertStockEntry       AlertType = "stock_entry"
	AlertStockLow         AlertType = "stock_low"
	AlertMedicineExpiring AlertType = "medicine_expiring"
	AlertMedicineExpired  AlertType = "medicine_expired"
	AlertMedicineIssued   AlertType = "medicine_issued"
	AlertSystem           AlertType = "system"
)

func (t AlertType) Valid() bool {
	switch t {
	case AlertUserAdded, AlertUserDeleted, AlertMedicineAdded, AlertStockEntry, AlertStockLow,
		AlertMedicineExpiring, AlertMedicineExpired, AlertMedicineIssued, AlertSystem:
		return true
	}
	return false
}

// Severity of an alert
type Severity string

const (
	SeverityInfo    Severity = "info"
	SeveritySuccess Severity = "success"
	SeverityWarning Severity = "warning"
	SeverityDanger  Severity = "danger"
)

// ActivityAction is the closed set of audited actions
type ActivityAction string

const (
	ActionAdd      ActivityAction = "Add"
	ActionUpdate   ActivityAction = "Update"
	ActionDelete   ActivityAction = "Delete"
	ActionIssue    ActivityAction = "Issue"
	ActionLogin    ActivityAction = "Login"
	ActionLogout   ActivityAction = "Logout"
	ActionStockIn  ActivityAction = "StockIn"
	ActionStockOut ActivityAction = "StockOut"
)

func (a ActivityAction) Valid() bool {
	switch a {
	case ActionAdd, ActionUpdate, ActionDelete, ActionIssue, ActionLogin, ActionLogout, ActionStockIn, ActionStockOut:
		return true
	}
	return false
}

// EntityType names the kind of record an activity or alert refers to
type EntityType string

const (
	EntityMedicine EntityType = "Medicine"
	EntityIssuance EntityType = "Issuance"
	EntityUser     EntityType = "User"
	EntityAlert    EntityType = "Alert"
	EntitySystem   EntityType = "System"
)

func (e EntityType) Valid() bool {
	switch e {
	case EntityMedicine, EntityIssuance, EntityUser, EntityAlert, EntitySystem:
		return true
	}
	return false
}

// Role of a user
type Role string

const (
	RoleAdmin      Role = "admin"
	RolePharmacist Role = "pharmacist"
	RoleStaff      Role = "staff"
)

func (r Role) Valid() bool {
	switch r {
	case RoleAdmin, RolePharmacist, RoleStaff:
		return true
	}
	return false
}
