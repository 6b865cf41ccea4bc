package services

import (
	"context"
	"testing"
	"time"

	"pharmacy-inventory/internal/models"
	"pharmacy-inventory/internal/repository"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const testPassword = "correct-horse-battery"

func (f *fixture) createUser(t *testing.T, username string, role models.Role) *models.User {
	t.Helper()
	u, err := f.users.CreateUser(context.Background(), f.admin, CreateUserInput{
		Username: username,
		FullName: "Test " + username,
		Password: testPassword,
		Role:     string(role),
	})
	if err != nil {
		t.Fatalf("Failed to create user: %v", err)
	}
	return u
}

func TestUserService_CreateUser(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	u := f.createUser(t, "maria", models.RolePharmacist)
	assert.Equal(t, models.RolePharmacist, u.Role)
	assert.NotEqual(t, testPassword, u.PasswordHash)
	assert.Equal(t, []models.AlertType{models.AlertUserAdded}, f.published.Drain())

	tests := []struct {
		name    string
		actor   models.Actor
		input   CreateUserInput
		wantErr error
	}{
		{"duplicate username", f.admin, CreateUserInput{Username: "MARIA", Password: testPassword, Role: "staff"}, ErrDuplicateUsername},
		{"weak password", f.admin, CreateUserInput{Username: "jose", Password: "short", Role: "staff"}, ErrValidation},
		{"unknown role", f.admin, CreateUserInput{Username: "jose", Password: testPassword, Role: "owner"}, ErrValidation},
		{"short username", f.admin, CreateUserInput{Username: "jo", Password: testPassword, Role: "staff"}, ErrValidation},
		{"non admin", models.Actor{UserID: u.ID, Role: models.RolePharmacist}, CreateUserInput{Username: "jose", Password: testPassword, Role: "staff"}, ErrForbidden},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := f.users.CreateUser(ctx, tt.actor, tt.input)
			assert.ErrorIs(t, err, tt.wantErr)
		})
	}
}

func TestUserService_UpdateUser(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	u := f.createUser(t, "pedro", models.RoleStaff)
	f.published.Drain()

	name := "Pedro Reyes"
	role := string(models.RolePharmacist)
	updated, err := f.users.UpdateUser(ctx, f.admin, u.ID, UpdateUserInput{FullName: &name, Role: &role})
	require.NoError(t, err)
	assert.Equal(t, name, updated.FullName)
	assert.Equal(t, models.RolePharmacist, updated.Role)
	assert.Equal(t, []models.AlertType{models.AlertSystem}, f.published.Drain())

	_, err = f.users.UpdateUser(ctx, f.admin, 9999, UpdateUserInput{FullName: &name})
	assert.ErrorIs(t, err, ErrUserNotFound)

	newPassword := "another-long-password"
	_, err = f.users.UpdateUser(ctx, f.admin, u.ID, UpdateUserInput{Password: &newPassword})
	require.NoError(t, err)
	_, err = f.users.Login(ctx, "pedro", newPassword, "", "")
	assert.NoError(t, err)
}

func TestUserService_UpdateUserWeakPasswordWritesNothing(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	u := f.createUser(t, "pedro", models.RoleStaff)
	f.published.Drain()

	name := "Changed Name"
	role := string(models.RolePharmacist)
	weak := "short"
	_, err := f.users.UpdateUser(ctx, f.admin, u.ID, UpdateUserInput{FullName: &name, Role: &role, Password: &weak})

	var verr *ValidationError
	require.ErrorAs(t, err, &verr)
	assert.Equal(t, "password", verr.Field)

	got, err := f.userRepo.GetByID(ctx, u.ID)
	require.NoError(t, err)
	assert.Equal(t, u.FullName, got.FullName)
	assert.Equal(t, models.RoleStaff, got.Role)
	assert.Equal(t, u.PasswordHash, got.PasswordHash)
	assert.Empty(t, f.published.Drain())

	logs, err := f.activityRepo.List(ctx, repository.ActivityFilter{Action: models.ActionUpdate, EntityType: models.EntityUser, EntityID: u.ID})
	require.NoError(t, err)
	assert.Empty(t, logs)
}

func TestUserService_UpdateUserWithPasswordIsAudited(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	u := f.createUser(t, "maria", models.RoleStaff)
	f.published.Drain()

	role := string(models.RolePharmacist)
	password := "a-much-longer-password"
	_, err := f.users.UpdateUser(ctx, f.admin, u.ID, UpdateUserInput{Role: &role, Password: &password})
	require.NoError(t, err)
	assert.Equal(t, []models.AlertType{models.AlertSystem}, f.published.Drain())

	logs, err := f.activityRepo.List(ctx, repository.ActivityFilter{Action: models.ActionUpdate, EntityType: models.EntityUser, EntityID: u.ID})
	require.NoError(t, err)
	require.Len(t, logs, 1)
	assert.Contains(t, logs[0].AfterState.String, `"role":"pharmacist"`)
	assert.Contains(t, logs[0].AfterState.String, `"password":"changed"`)
	assert.NotContains(t, logs[0].AfterState.String, password)
}

func TestUserService_LastAdminProtection(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	staff := string(models.RoleStaff)
	_, err := f.users.UpdateUser(ctx, f.admin, f.admin.UserID, UpdateUserInput{Role: &staff})
	assert.ErrorIs(t, err, ErrLastAdmin)

	other := f.createUser(t, "second_admin", models.RoleAdmin)
	otherActor := models.Actor{UserID: other.ID, Username: other.Username, Role: models.RoleAdmin}

	assert.ErrorIs(t, f.users.DeleteUser(ctx, f.admin, f.admin.UserID), ErrSelfDeletion)

	require.NoError(t, f.users.DeleteUser(ctx, otherActor, f.admin.UserID))
	assert.ErrorIs(t, f.users.DeleteUser(ctx, otherActor, other.ID), ErrSelfDeletion)

	count, err := f.userRepo.CountActiveAdmins(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(1), count)

	staffUser := f.createUser(t, "clerk", models.RoleStaff)
	assert.ErrorIs(t, f.users.DeleteUser(ctx, models.Actor{UserID: staffUser.ID, Role: models.RoleStaff}, other.ID), ErrForbidden)
	assert.ErrorIs(t, f.users.DeleteUser(ctx, otherActor, 9999), ErrUserNotFound)
}

func TestUserService_DeleteUser(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	u := f.createUser(t, "temp_staff", models.RoleStaff)
	f.published.Drain()

	require.NoError(t, f.users.DeleteUser(ctx, f.admin, u.ID))
	assert.Equal(t, []models.AlertType{models.AlertUserDeleted}, f.published.Drain())

	_, err := f.users.GetUser(ctx, u.ID)
	assert.ErrorIs(t, err, ErrUserNotFound)

	_, err = f.users.Login(ctx, "temp_staff", testPassword, "", "")
	assert.ErrorIs(t, err, ErrInvalidCredentials)

	logs, err := f.activityRepo.List(ctx, repository.ActivityFilter{EntityType: models.EntityUser, EntityID: u.ID})
	require.NoError(t, err)
	assert.Len(t, logs, 2)
}

func TestUserService_Login(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	u := f.createUser(t, "nurse_ana", models.RoleStaff)

	result, err := f.users.Login(ctx, "Nurse_Ana", testPassword, "192.168.1.5", "test-agent")
	require.NoError(t, err)
	assert.Equal(t, u.ID, result.User.ID)
	assert.NotEmpty(t, result.Token)

	logins, err := f.activityRepo.List(ctx, repository.ActivityFilter{Action: models.ActionLogin})
	require.NoError(t, err)
	require.Len(t, logins, 1)
	assert.Equal(t, "192.168.1.5", logins[0].IPAddress.String)

	_, err = f.users.Login(ctx, "nobody", testPassword, "", "")
	assert.ErrorIs(t, err, ErrInvalidCredentials)

	f.users.Logout(ctx, models.Actor{UserID: u.ID, Username: u.Username, Role: u.Role})
	logouts, err := f.activityRepo.Count(ctx, repository.ActivityFilter{Action: models.ActionLogout, UserID: u.ID})
	require.NoError(t, err)
	assert.Equal(t, int64(1), logouts)
}

func TestUserService_LoginLockout(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	f.createUser(t, "locked_out", models.RoleStaff)

	for i := 1; i < MaxFailedAttempts; i++ {
		_, err := f.users.Login(ctx, "locked_out", "wrong-password", "", "")
		require.ErrorIs(t, err, ErrInvalidCredentials, "attempt %d", i)
	}

	_, err := f.users.Login(ctx, "locked_out", "wrong-password", "", "")
	assert.ErrorIs(t, err, ErrAccountLocked)

	_, err = f.users.Login(ctx, "locked_out", testPassword, "", "")
	assert.ErrorIs(t, err, ErrAccountLocked, "correct password is refused while locked")

	f.clock.Advance(LockoutDuration + time.Second)
	result, err := f.users.Login(ctx, "locked_out", testPassword, "", "")
	require.NoError(t, err)

	stored, err := f.userRepo.GetByID(ctx, result.User.ID)
	require.NoError(t, err)
	assert.Zero(t, stored.FailedLoginAttempts)
	assert.False(t, stored.LockedUntil.Valid)
}

func TestUserService_ListAndBootstrap(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	boot, err := f.users.BootstrapAdmin(ctx, "root_admin", "Root", testPassword)
	require.NoError(t, err)
	assert.Equal(t, models.RoleAdmin, boot.Role)

	users, err := f.users.ListUsers(ctx, f.admin)
	require.NoError(t, err)
	assert.Len(t, users, 2)

	_, err = f.users.ListUsers(ctx, models.Actor{UserID: boot.ID, Role: models.RoleStaff})
	assert.ErrorIs(t, err, ErrForbidden)

	logs, err := f.activityRepo.List(ctx, repository.ActivityFilter{EntityType: models.EntityUser, EntityID: boot.ID})
	require.NoError(t, err)
	require.Len(t, logs, 1)
	assert.False(t, logs[0].UserID.Valid, "bootstrap runs without a user")
}
