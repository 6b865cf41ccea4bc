package handlers

import (
	"bytes"
	"context"
	"encoding/csv"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"testing"
	"time"

	"pharmacy-inventory/internal/auth"
	"pharmacy-inventory/internal/database"
	"pharmacy-inventory/internal/middleware"
	"pharmacy-inventory/internal/models"
	"pharmacy-inventory/internal/repository"
	"pharmacy-inventory/internal/services"

	"github.com/go-chi/chi/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"
)

const testPassword = "correct-horse-battery"

type testServer struct {
	t         *testing.T
	db        *database.DB
	jwt       *auth.JWTManager
	inventory *services.InventoryService
	alerts    *services.AlertService
	users     *services.UserService
	router    chi.Router

	adminToken string
	staffToken string
	adminID    int64
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

func newTestServer(t *testing.T) *testServer {
	t.Helper()
	logger := zaptest.NewLogger(t)
	db := setupTestDB(t)

	medicineRepo := repository.NewMedicineRepository(db)
	issuanceRepo := repository.NewIssuanceRepository(db)
	activityRepo := repository.NewActivityRepository(db)

	s := &testServer{t: t, db: db, jwt: auth.NewJWTManager("test-secret-key-for-handlers", time.Hour)}
	recorder := services.NewActivityRecorder(activityRepo, logger)
	s.alerts = services.NewAlertService(repository.NewAlertRepository(db), nil, 0, logger)
	s.inventory = services.NewInventoryService(medicineRepo, issuanceRepo, recorder, s.alerts, logger)
	s.users = services.NewUserService(repository.NewUserRepository(db), s.jwt, recorder, s.alerts, logger)
	activity := services.NewActivityService(activityRepo)
	reports := services.NewReportService(medicineRepo, issuanceRepo)

	admin, err := s.users.BootstrapAdmin(context.Background(), "admin", "Admin", testPassword)
	require.NoError(t, err)
	s.adminID = admin.ID
	staff, err := s.users.CreateUser(context.Background(), models.Actor{UserID: admin.ID, Role: models.RoleAdmin}, services.CreateUserInput{
		Username: "clerk", Password: testPassword, Role: string(models.RoleStaff),
	})
	require.NoError(t, err)

	s.adminToken, err = s.jwt.GenerateToken(admin)
	require.NoError(t, err)
	s.staffToken, err = s.jwt.GenerateToken(staff)
	require.NoError(t, err)

	r := chi.NewRouter()
	r.Post("/login", HandleLogin(s.users, CookieOptions{Duration: time.Hour}, logger))
	r.Group(func(r chi.Router) {
		r.Use(middleware.NewAuthMiddleware(s.jwt).RequireAuth)
		r.Get("/me", HandleGetCurrentUser(s.users, logger))
		r.Post("/logout", HandleLogout(s.users, CookieOptions{}))
		r.Get("/medicines", HandleListMedicines(s.inventory, logger))
		r.Post("/medicines", HandleCreateMedicine(s.inventory, logger))
		r.Get("/medicines/{id}", HandleGetMedicine(s.inventory, logger))
		r.Put("/medicines/{id}", HandleUpdateMedicine(s.inventory, logger))
		r.Delete("/medicines/{id}", HandleDeleteMedicine(s.inventory, logger))
		r.Get("/medicines/{id}/issuances", HandleGetMedicineIssuances(s.inventory, logger))
		r.Post("/issuances", HandleIssueMedicine(s.inventory, logger))
		r.Get("/issuances", HandleListIssuances(s.inventory, logger))
		r.Get("/alerts", HandleListAlerts(s.alerts, logger))
		r.Get("/alerts/unread-count", HandleUnreadAlertCount(s.alerts, logger))
		r.Put("/alerts/read-all", HandleMarkAllAlertsRead(s.alerts, logger))
		r.Put("/alerts/{id}/read", HandleMarkAlertRead(s.alerts, logger))
		r.Delete("/alerts/{id}", HandleDeleteAlert(s.alerts, logger))
		r.Post("/alerts/scan", HandleStockScan(s.inventory, logger))
		r.Get("/activity", HandleListActivity(activity, logger))
		r.Get("/reports/inventory", HandleInventoryReport(reports, logger))
		r.Get("/users", HandleListUsers(s.users, logger))
		r.Post("/users", HandleCreateUser(s.users, logger))
		r.Delete("/users/{id}", HandleDeleteUser(s.users, logger))
	})
	s.router = r
	return s
}

func (s *testServer) do(method, path, token string, body interface{}) *httptest.ResponseRecorder {
	s.t.Helper()
	var buf bytes.Buffer
	if body != nil {
		if raw, ok := body.(string); ok {
			buf.WriteString(raw)
		} else {
			require.NoError(s.t, json.NewEncoder(&buf).Encode(body))
		}
	}
	req := httptest.NewRequest(method, path, &buf)
	req.Header.Set("Content-Type", "application/json")
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	rr := httptest.NewRecorder()
	s.router.ServeHTTP(rr, req)
	return rr
}

func decode[T any](t *testing.T, rr *httptest.ResponseRecorder) T {
	t.Helper()
	var v T
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &v), rr.Body.String())
	return v
}

func (s *testServer) createMedicine(name string, qty, min int, expiry time.Time) MedicineResponse {
	s.t.Helper()
	rr := s.do(http.MethodPost, "/medicines", s.adminToken, map[string]interface{}{
		"name":         name,
		"category":     "tablet",
		"quantity":     qty,
		"min_quantity": min,
		"price":        2.5,
		"expiry_date":  expiry.Format(dateLayout),
	})
	require.Equal(s.t, http.StatusCreated, rr.Code, rr.Body.String())
	return decode[MedicineResponse](s.t, rr)
}

func issueBody(id int64, qty int) map[string]interface{} {
	return map[string]interface{}{
		"medicine_id":    id,
		"recipient_type": "outpatient",
		"recipient_name": "Juan Dela Cruz",
		"quantity":       qty,
		"prescribed_by":  "Dr. Santos",
	}
}

var nextYear = time.Now().UTC().AddDate(1, 0, 0)

func TestCreateMedicine(t *testing.T) {
	s := newTestServer(t)

	m := s.createMedicine("Paracetamol 500mg", 100, 10, nextYear)
	assert.Equal(t, 100, m.Quantity)
	assert.Equal(t, 100, m.InitialStock)
	assert.Equal(t, 0, m.StockOut)
	assert.False(t, m.IsLowStock)
	assert.Equal(t, nextYear.Format(dateLayout), m.ExpiryDate)
}

func TestCreateMedicine_Errors(t *testing.T) {
	s := newTestServer(t)

	tests := []struct {
		name      string
		body      interface{}
		wantCode  string
		wantField string
	}{
		{"missing name", map[string]interface{}{"category": "tablet", "quantity": 1, "min_quantity": 1, "expiry_date": "2030-01-01"}, "validation_error", "name"},
		{"bad category", map[string]interface{}{"name": "X", "category": "potion", "quantity": 1, "min_quantity": 1, "expiry_date": "2030-01-01"}, "validation_error", "category"},
		{"bad date", map[string]interface{}{"name": "X", "category": "tablet", "quantity": 1, "min_quantity": 1, "expiry_date": "01/01/2030"}, "validation_error", "expiry_date"},
		{"unknown field", `{"name":"X","colour":"red"}`, "invalid_body", ""},
		{"empty body", "", "invalid_body", ""},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rr := s.do(http.MethodPost, "/medicines", s.adminToken, tt.body)
			require.Equal(t, http.StatusBadRequest, rr.Code, rr.Body.String())
			resp := decode[ErrorResponse](t, rr)
			assert.Equal(t, tt.wantCode, resp.Error.Code)
			assert.Equal(t, tt.wantField, resp.Error.Field)
		})
	}
}

func TestGetMedicine_NotFound(t *testing.T) {
	s := newTestServer(t)

	rr := s.do(http.MethodGet, "/medicines/999", s.adminToken, nil)
	assert.Equal(t, http.StatusNotFound, rr.Code)

	rr = s.do(http.MethodGet, "/medicines/abc", s.adminToken, nil)
	assert.Equal(t, http.StatusBadRequest, rr.Code)
}

func TestIssueMedicine(t *testing.T) {
	s := newTestServer(t)
	m := s.createMedicine("Amoxicillin", 10, 2, nextYear)

	rr := s.do(http.MethodPost, "/issuances", s.staffToken, issueBody(m.ID, 4))
	require.Equal(t, http.StatusCreated, rr.Code, rr.Body.String())
	issuance := decode[IssuanceResponse](t, rr)
	assert.Equal(t, 4, issuance.Quantity)
	assert.Equal(t, "outpatient", issuance.RecipientType)

	rr = s.do(http.MethodGet, fmt.Sprintf("/medicines/%d", m.ID), s.staffToken, nil)
	require.Equal(t, http.StatusOK, rr.Code)
	got := decode[MedicineResponse](t, rr)
	assert.Equal(t, 6, got.Quantity)
	assert.Equal(t, 4, got.StockOut)

	rr = s.do(http.MethodGet, fmt.Sprintf("/medicines/%d/issuances", m.ID), s.staffToken, nil)
	require.Equal(t, http.StatusOK, rr.Code)
	var history struct {
		Data []IssuanceResponse `json:"data"`
	}
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &history))
	assert.Len(t, history.Data, 1)
}

func TestIssueMedicine_Rejections(t *testing.T) {
	s := newTestServer(t)
	m := s.createMedicine("Ibuprofen", 3, 1, nextYear)
	expired := s.createMedicine("Old Syrup", 5, 1, time.Now().UTC().AddDate(0, 0, -1))

	tests := []struct {
		name       string
		body       map[string]interface{}
		wantStatus int
		wantCode   string
	}{
		{"insufficient stock", issueBody(m.ID, 4), http.StatusUnprocessableEntity, "insufficient_stock"},
		{"expired", issueBody(expired.ID, 1), http.StatusUnprocessableEntity, "medicine_expired"},
		{"unknown medicine", issueBody(9999, 1), http.StatusNotFound, "not_found"},
		{"zero quantity", issueBody(m.ID, 0), http.StatusBadRequest, "validation_error"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rr := s.do(http.MethodPost, "/issuances", s.adminToken, tt.body)
			require.Equal(t, tt.wantStatus, rr.Code, rr.Body.String())
			assert.Equal(t, tt.wantCode, decode[ErrorResponse](t, rr).Error.Code)
		})
	}

	rr := s.do(http.MethodGet, fmt.Sprintf("/medicines/%d", m.ID), s.adminToken, nil)
	assert.Equal(t, 3, decode[MedicineResponse](t, rr).Quantity)
}

func TestListMedicines_Pagination(t *testing.T) {
	s := newTestServer(t)
	for i := 0; i < 3; i++ {
		s.createMedicine(fmt.Sprintf("Med %d", i), 50, 5, nextYear)
	}

	rr := s.do(http.MethodGet, "/medicines?page=2&limit=2", s.staffToken, nil)
	require.Equal(t, http.StatusOK, rr.Code, rr.Body.String())

	var page struct {
		Data  []MedicineResponse `json:"data"`
		Total int64              `json:"total"`
		Page  int                `json:"page"`
		Limit int                `json:"limit"`
	}
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &page))
	assert.Equal(t, int64(3), page.Total)
	assert.Equal(t, 2, page.Page)
	assert.Equal(t, 2, page.Limit)
	assert.Len(t, page.Data, 1)
}

func TestAlerts_Flow(t *testing.T) {
	s := newTestServer(t)
	m := s.createMedicine("Cetirizine", 5, 5, nextYear)

	rr := s.do(http.MethodGet, "/alerts?type=stock_low", s.staffToken, nil)
	require.Equal(t, http.StatusOK, rr.Code, rr.Body.String())
	var list struct {
		Data  []AlertResponse `json:"data"`
		Total int64           `json:"total"`
	}
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &list))
	require.Len(t, list.Data, 1)
	require.NotNil(t, list.Data[0].EntityID)
	assert.Equal(t, m.ID, *list.Data[0].EntityID)

	alertID := list.Data[0].ID
	rr = s.do(http.MethodPut, fmt.Sprintf("/alerts/%d/read", alertID), s.staffToken, nil)
	assert.Equal(t, http.StatusNoContent, rr.Code)

	rr = s.do(http.MethodPut, "/alerts/read-all", s.staffToken, nil)
	require.Equal(t, http.StatusOK, rr.Code)

	rr = s.do(http.MethodGet, "/alerts/unread-count", s.staffToken, nil)
	assert.Equal(t, int64(0), decode[map[string]int64](t, rr)["count"])

	rr = s.do(http.MethodDelete, fmt.Sprintf("/alerts/%d", alertID), s.staffToken, nil)
	assert.Equal(t, http.StatusNoContent, rr.Code)
	rr = s.do(http.MethodDelete, fmt.Sprintf("/alerts/%d", alertID), s.staffToken, nil)
	assert.Equal(t, http.StatusNotFound, rr.Code)

	rr = s.do(http.MethodGet, "/alerts?type=bogus", s.staffToken, nil)
	assert.Equal(t, http.StatusBadRequest, rr.Code)
}

func TestStockScan(t *testing.T) {
	s := newTestServer(t)
	s.createMedicine("Low", 1, 5, nextYear)

	rr := s.do(http.MethodPost, "/alerts/scan", s.adminToken, nil)
	require.Equal(t, http.StatusOK, rr.Code, rr.Body.String())
	result := decode[services.ScanResult](t, rr)
	assert.Equal(t, 1, result.Checked)
	assert.Equal(t, 1, result.LowStock)
}

func TestActivityAndReport(t *testing.T) {
	s := newTestServer(t)
	m := s.createMedicine("Loratadine", 20, 2, nextYear)
	rr := s.do(http.MethodPost, "/issuances", s.adminToken, issueBody(m.ID, 5))
	require.Equal(t, http.StatusCreated, rr.Code)

	rr = s.do(http.MethodGet, fmt.Sprintf("/activity?entity_type=Medicine&entity_id=%d", m.ID), s.adminToken, nil)
	require.Equal(t, http.StatusOK, rr.Code, rr.Body.String())
	var activity struct {
		Data  []ActivityResponse `json:"data"`
		Total int64              `json:"total"`
	}
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &activity))
	assert.NotZero(t, activity.Total)

	s.router.Get("/medicines/{id}/history", HandleGetMedicineHistory(services.NewActivityService(repository.NewActivityRepository(s.db)), zaptest.NewLogger(t)))
	rr = s.do(http.MethodGet, fmt.Sprintf("/medicines/%d/history", m.ID), s.adminToken, nil)
	require.Equal(t, http.StatusOK, rr.Code, rr.Body.String())
	var history struct {
		Data []ActivityResponse `json:"data"`
	}
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &history))
	require.NotEmpty(t, history.Data)
	assert.Equal(t, "Add", history.Data[0].Action)

	rr = s.do(http.MethodGet, "/activity?entity_id=x", s.adminToken, nil)
	assert.Equal(t, http.StatusBadRequest, rr.Code)

	rr = s.do(http.MethodGet, "/reports/inventory?period_days=7", s.staffToken, nil)
	require.Equal(t, http.StatusOK, rr.Code, rr.Body.String())
	report := decode[InventoryReportResponse](t, rr)
	assert.Equal(t, 7, report.PeriodDays)
	assert.Equal(t, int64(15), report.TotalUnits)
	assert.Equal(t, int64(5), report.TotalStockOut)
	assert.Equal(t, RecipientTotalsResponse{Issuances: 1, Units: 5}, report.IssuedByRecipient["outpatient"])
	assert.Contains(t, report.IssuedByRecipient, "visitor")

	rr = s.do(http.MethodGet, "/reports/inventory?period_days=0", s.staffToken, nil)
	assert.Equal(t, http.StatusBadRequest, rr.Code)
}

func TestUsers(t *testing.T) {
	s := newTestServer(t)

	rr := s.do(http.MethodGet, "/users", s.staffToken, nil)
	assert.Equal(t, http.StatusForbidden, rr.Code)

	rr = s.do(http.MethodPost, "/users", s.adminToken, map[string]string{
		"username": "clerk", "password": testPassword, "role": "staff",
	})
	assert.Equal(t, http.StatusConflict, rr.Code)

	rr = s.do(http.MethodDelete, fmt.Sprintf("/users/%d", s.adminID), s.adminToken, nil)
	assert.Equal(t, http.StatusConflict, rr.Code)
	assert.Equal(t, "self_deletion", decode[ErrorResponse](t, rr).Error.Code)

	rr = s.do(http.MethodGet, "/users", s.adminToken, nil)
	require.Equal(t, http.StatusOK, rr.Code)
	var users struct {
		Data []UserResponse `json:"data"`
	}
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &users))
	assert.Len(t, users.Data, 2)
}

func TestLogin(t *testing.T) {
	s := newTestServer(t)

	rr := s.do(http.MethodPost, "/login", "", LoginRequest{Username: "admin", Password: testPassword})
	require.Equal(t, http.StatusOK, rr.Code, rr.Body.String())
	resp := decode[AuthResponse](t, rr)
	assert.Equal(t, "admin", resp.User.Username)
	assert.NotEmpty(t, resp.Token)

	cookies := rr.Result().Cookies()
	require.Len(t, cookies, 1)
	assert.Equal(t, middleware.AuthCookieName, cookies[0].Name)
	assert.True(t, cookies[0].HttpOnly)
	assert.Equal(t, 3600, cookies[0].MaxAge)

	rr = s.do(http.MethodGet, "/me", resp.Token, nil)
	require.Equal(t, http.StatusOK, rr.Code)
	assert.Equal(t, "admin", decode[UserResponse](t, rr).Username)

	rr = s.do(http.MethodPost, "/login", "", LoginRequest{Username: "admin", Password: "wrong-password"})
	assert.Equal(t, http.StatusUnauthorized, rr.Code)

	rr = s.do(http.MethodPost, "/login", "", LoginRequest{Username: "admin"})
	assert.Equal(t, http.StatusBadRequest, rr.Code)

	rr = s.do(http.MethodPost, "/logout", resp.Token, nil)
	assert.Equal(t, http.StatusNoContent, rr.Code)
	assert.Equal(t, -1, rr.Result().Cookies()[0].MaxAge)
}

func TestExportCSV(t *testing.T) {
	s := newTestServer(t)
	logger := zaptest.NewLogger(t)
	s.router.Get("/export/medicines.csv", HandleExportMedicinesCSV(s.inventory, logger))
	s.router.Get("/export/issuances.csv", HandleExportIssuancesCSV(s.inventory, logger))

	m := s.createMedicine("Mefenamic Acid", 10, 10, nextYear)
	rr := s.do(http.MethodPost, "/issuances", s.adminToken, issueBody(m.ID, 2))
	require.Equal(t, http.StatusCreated, rr.Code)

	rr = s.do(http.MethodGet, "/export/medicines.csv", "", nil)
	require.Equal(t, http.StatusOK, rr.Code, rr.Body.String())
	assert.Equal(t, "text/csv", rr.Header().Get("Content-Type"))
	assert.Contains(t, rr.Header().Get("Content-Disposition"), "medicines-")

	records, err := csv.NewReader(rr.Body).ReadAll()
	require.NoError(t, err)
	require.Len(t, records, 2)
	assert.Equal(t, "Name", records[0][1])
	assert.Equal(t, []string{"Mefenamic Acid", "tablet", "8", "10", "2"}, records[1][1:6])
	assert.Equal(t, "low_stock", records[1][9])

	rr = s.do(http.MethodGet, "/export/issuances.csv?recipient_type=outpatient", "", nil)
	require.Equal(t, http.StatusOK, rr.Code, rr.Body.String())
	records, err = csv.NewReader(rr.Body).ReadAll()
	require.NoError(t, err)
	require.Len(t, records, 2)
	assert.Equal(t, "Mefenamic Acid", records[1][3])
	assert.Equal(t, "2", records[1][4])

	rr = s.do(http.MethodGet, "/export/issuances.csv?recipient_type=alien", "", nil)
	assert.Equal(t, http.StatusBadRequest, rr.Code)
}
