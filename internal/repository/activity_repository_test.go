package repository

import (
	"context"
	"database/sql"
	"errors"
	"testing"
	"time"

	"pharmacy-inventory/internal/database"
	"pharmacy-inventory/internal/models"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func logTestActivity(t *testing.T, repo *ActivityRepository, action models.ActivityAction, entity models.EntityType, entityID, userID int64, at time.Time) {
	t.Helper()
	entry := &models.ActivityLog{
		Action:      action,
		EntityType:  entity,
		EntityID:    sql.NullInt64{Int64: entityID, Valid: entityID != 0},
		UserID:      sql.NullInt64{Int64: userID, Valid: userID != 0},
		Description: string(action) + " " + string(entity),
		CreatedAt:   at,
	}
	if err := repo.Log(context.Background(), entry); err != nil {
		t.Fatalf("Failed to log activity: %v", err)
	}
}

func TestActivityRepository_LogWithState(t *testing.T) {
	db := setupTestDB(t)
	repo := NewActivityRepository(db)
	ctx := context.Background()

	before, err := MarshalState(map[string]int{"quantity": 3})
	require.NoError(t, err)
	after, err := MarshalState(map[string]int{"quantity": 23})
	require.NoError(t, err)

	entry := &models.ActivityLog{
		Action:      models.ActionUpdate,
		EntityType:  models.EntityMedicine,
		EntityID:    sql.NullInt64{Int64: 5, Valid: true},
		UserID:      sql.NullInt64{Int64: 2, Valid: true},
		Description: "Updated medicine",
		BeforeState: before,
		AfterState:  after,
		IPAddress:   sql.NullString{String: "10.0.0.4", Valid: true},
		CreatedAt:   testNow,
	}
	require.NoError(t, repo.Log(ctx, entry))
	assert.NotZero(t, entry.ID)

	history, err := repo.GetByEntity(ctx, models.EntityMedicine, 5)
	require.NoError(t, err)
	require.Len(t, history, 1)
	assert.JSONEq(t, `{"quantity":3}`, history[0].BeforeState.String)
	assert.JSONEq(t, `{"quantity":23}`, history[0].AfterState.String)
	assert.Equal(t, "10.0.0.4", history[0].IPAddress.String)

	empty, err := MarshalState(nil)
	require.NoError(t, err)
	assert.False(t, empty.Valid)
}

func TestActivityRepository_ListFilters(t *testing.T) {
	db := setupTestDB(t)
	repo := NewActivityRepository(db)
	ctx := context.Background()

	logTestActivity(t, repo, models.ActionAdd, models.EntityMedicine, 1, 1, testNow.Add(-3*time.Hour))
	logTestActivity(t, repo, models.ActionIssue, models.EntityMedicine, 1, 2, testNow.Add(-2*time.Hour))
	logTestActivity(t, repo, models.ActionLogin, models.EntityUser, 2, 2, testNow.Add(-time.Hour))
	logTestActivity(t, repo, models.ActionAdd, models.EntityMedicine, 2, 1, testNow)

	tests := []struct {
		name     string
		filter   ActivityFilter
		expected int
	}{
		{"All", ActivityFilter{}, 4},
		{"By action", ActivityFilter{Action: models.ActionAdd}, 2},
		{"By entity", ActivityFilter{EntityType: models.EntityMedicine, EntityID: 1}, 2},
		{"By user", ActivityFilter{UserID: 2}, 2},
		{"By date range", ActivityFilter{From: testNow.Add(-2 * time.Hour), To: testNow}, 2},
		{"Paginated", ActivityFilter{Pagination: Pagination{Limit: 3}}, 3},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			logs, err := repo.List(ctx, tt.filter)
			require.NoError(t, err)
			assert.Len(t, logs, tt.expected)
		})
	}

	logs, err := repo.List(ctx, ActivityFilter{})
	require.NoError(t, err)
	assert.Equal(t, models.ActionAdd, logs[0].Action, "newest first")
	assert.Equal(t, int64(2), logs[0].EntityID.Int64)

	count, err := repo.Count(ctx, ActivityFilter{EntityType: models.EntityUser})
	require.NoError(t, err)
	assert.Equal(t, int64(1), count)
}

func TestActivityRepository_LogStoreFailure(t *testing.T) {
	mockDB, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer mockDB.Close()

	repo := NewActivityRepository(&database.DB{DB: mockDB})
	mock.ExpectExec("INSERT INTO activity_logs").WillReturnError(errors.New("disk I/O error"))

	err = repo.Log(context.Background(), &models.ActivityLog{
		Action:      models.ActionDelete,
		EntityType:  models.EntityMedicine,
		Description: "Deleted medicine",
		CreatedAt:   testNow,
	})

	require.Error(t, err)
	assert.Contains(t, err.Error(), "failed to create activity log")
	assert.NoError(t, mock.ExpectationsWereMet())
}
