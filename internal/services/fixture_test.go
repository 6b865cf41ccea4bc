package services

import (
	"context"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"pharmacy-inventory/internal/auth"
	"pharmacy-inventory/internal/database"
	"pharmacy-inventory/internal/models"
	"pharmacy-inventory/internal/repository"

	"go.uber.org/zap/zaptest"
)

var testNow = time.Date(2026, 3, 10, 12, 0, 0, 0, time.UTC)

// testClock is a settable time source shared by every service in a fixture
type testClock struct {
	mu  sync.Mutex
	now time.Time
}

func (c *testClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *testClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
}

// recordingPublisher captures every alert the alert service publishes
type recordingPublisher struct {
	mu     sync.Mutex
	alerts []*models.Alert
}

func (p *recordingPublisher) Publish(ctx context.Context, alert *models.Alert) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.alerts = append(p.alerts, alert)
	return nil
}

// Drain returns the types published since the last call
func (p *recordingPublisher) Drain() []models.AlertType {
	p.mu.Lock()
	defer p.mu.Unlock()
	types := make([]models.AlertType, 0, len(p.alerts))
	for _, a := range p.alerts {
		types = append(types, a.Type)
	}
	p.alerts = nil
	return types
}

type fixture struct {
	db        *database.DB
	clock     *testClock
	published *recordingPublisher

	medicineRepo *repository.MedicineRepository
	issuanceRepo *repository.IssuanceRepository
	activityRepo *repository.ActivityRepository
	alertRepo    *repository.AlertRepository
	userRepo     *repository.UserRepository

	alerts    *AlertService
	inventory *InventoryService
	users     *UserService
	reports   *ReportService

	admin models.Actor
}

func setupTestDB(t *testing.T) *database.DB {
	t.Helper()
	db, err := database.Open(filepath.Join(t.TempDir(), "test.db"))
	if err != nil {
		t.Fatalf("Failed to open test database: %v", err)
	}
	t.Cleanup(func() { db.Close() })

	if _, err := db.RunMigrations(); err != nil {
		t.Fatalf("Failed to run migrations: %v", err)
	}
	return db
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	logger := zaptest.NewLogger(t)
	db := setupTestDB(t)

	f := &fixture{
		db:           db,
		clock:        &testClock{now: testNow},
		published:    &recordingPublisher{},
		medicineRepo: repository.NewMedicineRepository(db),
		issuanceRepo: repository.NewIssuanceRepository(db),
		activityRepo: repository.NewActivityRepository(db),
		alertRepo:    repository.NewAlertRepository(db),
		userRepo:     repository.NewUserRepository(db),
	}

	recorder := NewActivityRecorder(f.activityRepo, logger)
	f.alerts = NewAlertService(f.alertRepo, f.published, 0, logger).WithClock(f.clock.Now)
	f.inventory = NewInventoryService(f.medicineRepo, f.issuanceRepo, recorder, f.alerts, logger).WithClock(f.clock.Now)
	f.users = NewUserService(f.userRepo, auth.NewJWTManager("test-secret-key-for-services", time.Hour), recorder, f.alerts, logger).WithClock(f.clock.Now)
	f.reports = NewReportService(f.medicineRepo, f.issuanceRepo).WithClock(f.clock.Now)

	admin := &models.User{
		Username:     "admin",
		FullName:     "Head Pharmacist",
		PasswordHash: "not-a-real-hash",
		Role:         models.RoleAdmin,
		CreatedAt:    testNow,
		UpdatedAt:    testNow,
	}
	if err := f.userRepo.Create(context.Background(), admin); err != nil {
		t.Fatalf("Failed to create admin: %v", err)
	}
	f.admin = models.Actor{UserID: admin.ID, Username: admin.Username, Role: admin.Role, IPAddress: "10.0.0.1"}

	return f
}

func medicineInput(name string, quantity, minQuantity int, expiry time.Time) MedicineInput {
	return MedicineInput{
		Name:        name,
		Category:    string(models.CategoryTablet),
		Quantity:    quantity,
		MinQuantity: minQuantity,
		Price:       2.5,
		ExpiryDate:  expiry.Format(dateLayout),
	}
}

func (f *fixture) createMedicine(t *testing.T, input MedicineInput) *models.Medicine {
	t.Helper()
	m, err := f.inventory.CreateMedicine(context.Background(), f.admin, input)
	if err != nil {
		t.Fatalf("Failed to create medicine: %v", err)
	}
	return m
}

func issueInput(medicineID int64, quantity int) IssueInput {
	return IssueInput{
		MedicineID:    medicineID,
		RecipientType: string(models.RecipientOutpatient),
		RecipientName: "Juan Dela Cruz",
		Quantity:      quantity,
		PrescribedBy:  "Dr. Santos",
	}
}

// farExpiry is well outside the expiry warning window
var farExpiry = testNow.AddDate(2, 0, 0)
