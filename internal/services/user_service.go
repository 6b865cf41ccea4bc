package services

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"pharmacy-inventory/internal/alerts"
	"pharmacy-inventory/internal/auth"
	"pharmacy-inventory/internal/models"
	"pharmacy-inventory/internal/repository"

	"go.uber.org/zap"
)

const (
	MaxFailedAttempts = 5
	LockoutDuration   = 15 * time.Minute
)

// CreateUserInput is the payload for adding a user
type CreateUserInput struct {
	Username string `json:"username" validate:"required,min=3,max=50"`
	FullName string `json:"full_name" validate:"max=100"`
	Email    string `json:"email" validate:"omitempty,email,max=254"`
	Password string `json:"password" validate:"required"`
	Role     string `json:"role" validate:"required,role"`
}

// UpdateUserInput edits a user. Nil fields are left unchanged.
type UpdateUserInput struct {
	FullName *string `json:"full_name" validate:"omitempty,max=100"`
	Email    *string `json:"email" validate:"omitempty,email,max=254"`
	Role     *string `json:"role" validate:"omitempty,role"`
	Password *string `json:"password" validate:"omitempty"`
}

// LoginResult is a successful login
type LoginResult struct {
	User  *models.User
	Token string
}

// UserService manages staff accounts and sessions
type UserService struct {
	users    *repository.UserRepository
	jwt      *auth.JWTManager
	activity *ActivityRecorder
	alerts   *AlertService
	now      func() time.Time
	logger   *zap.Logger
}

func NewUserService(users *repository.UserRepository, jwt *auth.JWTManager, activity *ActivityRecorder, alertService *AlertService, logger *zap.Logger) *UserService {
	return &UserService{
		users:    users,
		jwt:      jwt,
		activity: activity,
		alerts:   alertService,
		now:      time.Now,
		logger:   logger,
	}
}

// WithClock replaces the time source, for tests
func (s *UserService) WithClock(now func() time.Time) *UserService {
	s.now = now
	return s
}

// CreateUser adds an account. Only admins may create users.
func (s *UserService) CreateUser(ctx context.Context, actor models.Actor, input CreateUserInput) (*models.User, error) {
	if !actor.IsAdmin() {
		return nil, ErrForbidden
	}

	input.Username = strings.TrimSpace(input.Username)
	input.FullName = strings.TrimSpace(input.FullName)
	if err := validateInput(input); err != nil {
		return nil, err
	}
	hash, err := hashPassword(input.Password)
	if err != nil {
		return nil, err
	}

	now := s.now().UTC()
	user := &models.User{
		Username:     input.Username,
		FullName:     input.FullName,
		PasswordHash: hash,
		Email:        nullString(input.Email),
		Role:         models.Role(input.Role),
		CreatedAt:    now,
		UpdatedAt:    now,
	}
	if err := s.users.Create(ctx, user); err != nil {
		if errors.Is(err, repository.ErrDuplicate) {
			return nil, ErrDuplicateUsername
		}
		return nil, err
	}

	s.activity.Record(ctx, actor, ActivityEntry{
		Action:      models.ActionAdd,
		EntityType:  models.EntityUser,
		EntityID:    user.ID,
		Description: fmt.Sprintf("Added user %s with role %s", user.Username, user.Role),
		After:       map[string]string{"username": user.Username, "role": string(user.Role)},
	}, now)
	s.alerts.Emit(ctx, actor, alerts.ForUserAdded(user), now)

	return user, nil
}

// UpdateUser edits an account. Demoting the last active admin is rejected.
// Every field, the password included, is validated before the single write.
func (s *UserService) UpdateUser(ctx context.Context, actor models.Actor, id int64, input UpdateUserInput) (*models.User, error) {
	if !actor.IsAdmin() {
		return nil, ErrForbidden
	}

	user, err := s.getUser(ctx, id)
	if err != nil {
		return nil, err
	}
	if err := validateInput(input); err != nil {
		return nil, err
	}

	var newHash string
	if input.Password != nil {
		if newHash, err = hashPassword(*input.Password); err != nil {
			return nil, err
		}
	}

	if input.Role != nil && models.Role(*input.Role) != models.RoleAdmin && user.Role == models.RoleAdmin {
		if err := s.ensureAnotherAdmin(ctx); err != nil {
			return nil, err
		}
	}

	before := map[string]string{"full_name": user.FullName, "role": string(user.Role)}

	if input.FullName != nil {
		user.FullName = strings.TrimSpace(*input.FullName)
	}
	if input.Email != nil {
		user.Email = nullString(*input.Email)
	}
	if input.Role != nil {
		user.Role = models.Role(*input.Role)
	}
	if newHash != "" {
		user.PasswordHash = newHash
	}

	now := s.now().UTC()
	user.UpdatedAt = now
	if err := s.users.Update(ctx, user); err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return nil, ErrUserNotFound
		}
		return nil, err
	}

	after := map[string]string{"full_name": user.FullName, "role": string(user.Role)}
	if newHash != "" {
		after["password"] = "changed"
	}
	s.activity.Record(ctx, actor, ActivityEntry{
		Action:      models.ActionUpdate,
		EntityType:  models.EntityUser,
		EntityID:    user.ID,
		Description: fmt.Sprintf("Updated user %s", user.Username),
		Before:      before,
		After:       after,
	}, now)
	s.alerts.Emit(ctx, actor, alerts.ForUserUpdated(user), now)

	return user, nil
}

// DeleteUser soft-deletes an account. Users cannot delete themselves and the
// last active admin cannot be removed.
func (s *UserService) DeleteUser(ctx context.Context, actor models.Actor, id int64) error {
	if !actor.IsAdmin() {
		return ErrForbidden
	}
	if actor.UserID == id {
		return ErrSelfDeletion
	}

	user, err := s.getUser(ctx, id)
	if err != nil {
		return err
	}
	if user.Role == models.RoleAdmin {
		if err := s.ensureAnotherAdmin(ctx); err != nil {
			return err
		}
	}

	now := s.now().UTC()
	if err := s.users.SoftDelete(ctx, id, now); err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return ErrUserNotFound
		}
		return err
	}

	s.activity.Record(ctx, actor, ActivityEntry{
		Action:      models.ActionDelete,
		EntityType:  models.EntityUser,
		EntityID:    id,
		Description: fmt.Sprintf("Deleted user %s", user.Username),
		Before:      map[string]string{"username": user.Username, "role": string(user.Role)},
	}, now)
	s.alerts.Emit(ctx, actor, alerts.ForUserDeleted(user), now)

	return nil
}

// Login verifies credentials and issues a session token. Repeated failures
// lock the account for LockoutDuration.
func (s *UserService) Login(ctx context.Context, username, password, ipAddress, userAgent string) (*LoginResult, error) {
	now := s.now().UTC()

	user, err := s.users.GetByUsername(ctx, strings.TrimSpace(username))
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			// Hash anyway so unknown usernames take as long as wrong passwords
			_ = auth.VerifyPassword(dummyHash, password)
			return nil, ErrInvalidCredentials
		}
		return nil, err
	}

	actor := models.Actor{UserID: user.ID, Username: user.Username, Role: user.Role, IPAddress: ipAddress, UserAgent: userAgent}
	if user.LockedUntil.Valid && now.Before(user.LockedUntil.Time) {
		return nil, ErrAccountLocked
	}

	if err := auth.VerifyPassword(user.PasswordHash, password); err != nil {
		attempts, incErr := s.users.IncrementFailedLogins(ctx, user.ID)
		if incErr != nil {
			s.logger.Warn("Failed to increment failed logins", zap.Int64("user_id", user.ID), zap.Error(incErr))
		}
		if attempts >= MaxFailedAttempts {
			if err := s.users.LockAccount(ctx, user.ID, now.Add(LockoutDuration)); err != nil {
				s.logger.Warn("Failed to lock account", zap.Int64("user_id", user.ID), zap.Error(err))
			}
			s.logger.Warn("Account locked after failed logins",
				zap.String("username", user.Username),
				zap.Int("attempts", attempts),
				zap.String("ip", ipAddress),
			)
			return nil, ErrAccountLocked
		}
		s.logger.Info("Failed login", zap.String("username", user.Username), zap.String("ip", ipAddress))
		return nil, ErrInvalidCredentials
	}

	if err := s.users.UpdateLastLogin(ctx, user.ID, now); err != nil {
		s.logger.Warn("Failed to update last login", zap.Int64("user_id", user.ID), zap.Error(err))
	}

	token, err := s.jwt.GenerateToken(user)
	if err != nil {
		return nil, fmt.Errorf("failed to generate token: %w", err)
	}

	s.activity.Record(ctx, actor, ActivityEntry{
		Action:      models.ActionLogin,
		EntityType:  models.EntityUser,
		EntityID:    user.ID,
		Description: fmt.Sprintf("User %s logged in", user.Username),
	}, now)

	return &LoginResult{User: user, Token: token}, nil
}

// Logout records the end of a session. Tokens are stateless, so there is
// nothing to revoke.
func (s *UserService) Logout(ctx context.Context, actor models.Actor) {
	s.activity.Record(ctx, actor, ActivityEntry{
		Action:      models.ActionLogout,
		EntityType:  models.EntityUser,
		EntityID:    actor.UserID,
		Description: fmt.Sprintf("User %s logged out", actor.Username),
	}, s.now().UTC())
}

// GetUser returns an active user
func (s *UserService) GetUser(ctx context.Context, id int64) (*models.User, error) {
	return s.getUser(ctx, id)
}

// ListUsers returns all active users. Only admins may list users.
func (s *UserService) ListUsers(ctx context.Context, actor models.Actor) ([]*models.User, error) {
	if !actor.IsAdmin() {
		return nil, ErrForbidden
	}
	return s.users.List(ctx)
}

// BootstrapAdmin creates an admin outside of any session, for the CLI
func (s *UserService) BootstrapAdmin(ctx context.Context, username, fullName, password string) (*models.User, error) {
	system := models.SystemActor
	system.Role = models.RoleAdmin
	return s.CreateUser(ctx, system, CreateUserInput{
		Username: username,
		FullName: fullName,
		Password: password,
		Role:     string(models.RoleAdmin),
	})
}

func (s *UserService) getUser(ctx context.Context, id int64) (*models.User, error) {
	user, err := s.users.GetByID(ctx, id)
	if errors.Is(err, repository.ErrNotFound) {
		return nil, ErrUserNotFound
	}
	return user, err
}

func (s *UserService) ensureAnotherAdmin(ctx context.Context) error {
	admins, err := s.users.CountActiveAdmins(ctx)
	if err != nil {
		return err
	}
	if admins <= 1 {
		return ErrLastAdmin
	}
	return nil
}

func hashPassword(password string) (string, error) {
	hash, err := auth.HashPassword(password)
	switch {
	case errors.Is(err, auth.ErrWeakPassword), errors.Is(err, auth.ErrPasswordTooLong):
		return "", &ValidationError{Field: "password", Message: err.Error()}
	case err != nil:
		return "", fmt.Errorf("failed to hash password: %w", err)
	}
	return hash, nil
}

// dummyHash is a bcrypt hash of a random string, compared against on unknown usernames
const dummyHash = "$2a$12$C6UzMDM.H6dfI/f/IKcEeO9jN9Hq5cF3rWk1oQ8pX9jvjJ4o0x6W6"
