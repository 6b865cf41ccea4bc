package repository

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"pharmacy-inventory/internal/database"
	"pharmacy-inventory/internal/models"
)

const userColumns = `id, username, full_name, password_hash, email, role, is_active,
	failed_login_attempts, locked_until, created_at, updated_at, last_login`

type UserRepository struct {
	db *database.DB
}

func NewUserRepository(db *database.DB) *UserRepository {
	return &UserRepository{db: db}
}

// Create creates a new user
func (r *UserRepository) Create(ctx context.Context, user *models.User) error {
	query := `
		INSERT INTO users (username, full_name, password_hash, email, role, is_active, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, 1, ?, ?)
	`
	result, err := r.db.ExecContext(ctx, query,
		user.Username,
		user.FullName,
		user.PasswordHash,
		user.Email,
		user.Role,
		utc(user.CreatedAt),
		utc(user.UpdatedAt),
	)
	if err != nil {
		if isUniqueViolation(err) {
			return ErrDuplicate
		}
		return fmt.Errorf("failed to create user: %w", err)
	}

	id, err := result.LastInsertId()
	if err != nil {
		return fmt.Errorf("failed to get last insert id: %w", err)
	}

	user.ID = id
	user.IsActive = true
	return nil
}

// GetByID retrieves an active user by ID
func (r *UserRepository) GetByID(ctx context.Context, id int64) (*models.User, error) {
	query := `SELECT ` + userColumns + ` FROM users WHERE id = ? AND is_active = 1`
	user, err := scanUser(r.db.QueryRowContext(ctx, query, id))
	if err == sql.ErrNoRows {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get user: %w", err)
	}
	return user, nil
}

// GetByUsername retrieves an active user by username, case-insensitively
func (r *UserRepository) GetByUsername(ctx context.Context, username string) (*models.User, error) {
	query := `SELECT ` + userColumns + ` FROM users WHERE LOWER(username) = LOWER(?) AND is_active = 1`
	user, err := scanUser(r.db.QueryRowContext(ctx, query, username))
	if err == sql.ErrNoRows {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get user by username: %w", err)
	}
	return user, nil
}

// UpdateLastLogin records a successful login and clears the failure counter
func (r *UserRepository) UpdateLastLogin(ctx context.Context, id int64, at time.Time) error {
	query := `
		UPDATE users
		SET last_login = ?, failed_login_attempts = 0, locked_until = NULL
		WHERE id = ?
	`
	if _, err := r.db.ExecContext(ctx, query, utc(at), id); err != nil {
		return fmt.Errorf("failed to update last login: %w", err)
	}
	return nil
}

// IncrementFailedLogins increments the failed login counter and returns the new value
func (r *UserRepository) IncrementFailedLogins(ctx context.Context, id int64) (int, error) {
	query := `
		UPDATE users
		SET failed_login_attempts = failed_login_attempts + 1
		WHERE id = ?
		RETURNING failed_login_attempts
	`
	var attempts int
	if err := r.db.QueryRowContext(ctx, query, id).Scan(&attempts); err != nil {
		return 0, fmt.Errorf("failed to increment failed logins: %w", err)
	}
	return attempts, nil
}

// LockAccount locks an account until the specified time
func (r *UserRepository) LockAccount(ctx context.Context, id int64, until time.Time) error {
	query := `UPDATE users SET locked_until = ? WHERE id = ?`
	if _, err := r.db.ExecContext(ctx, query, utc(until), id); err != nil {
		return fmt.Errorf("failed to lock account: %w", err)
	}
	return nil
}

// Update saves the editable profile fields of an active user
func (r *UserRepository) Update(ctx context.Context, user *models.User) error {
	query := `
		UPDATE users
		SET username = ?, full_name = ?, email = ?, role = ?, password_hash = ?, updated_at = ?
		WHERE id = ? AND is_active = 1
	`
	result, err := r.db.ExecContext(ctx, query,
		user.Username,
		user.FullName,
		user.Email,
		user.Role,
		user.PasswordHash,
		utc(user.UpdatedAt),
		user.ID,
	)
	if err != nil {
		if isUniqueViolation(err) {
			return ErrDuplicate
		}
		return fmt.Errorf("failed to update user: %w", err)
	}
	return checkRowsAffected(result, ErrNotFound)
}

// SoftDelete deactivates a user. The row is kept so activity history still resolves.
func (r *UserRepository) SoftDelete(ctx context.Context, id int64, at time.Time) error {
	query := `UPDATE users SET is_active = 0, updated_at = ? WHERE id = ? AND is_active = 1`
	result, err := r.db.ExecContext(ctx, query, utc(at), id)
	if err != nil {
		return fmt.Errorf("failed to delete user: %w", err)
	}
	return checkRowsAffected(result, ErrNotFound)
}

// CountActiveAdmins returns the number of active admin accounts
func (r *UserRepository) CountActiveAdmins(ctx context.Context) (int64, error) {
	var count int64
	query := `SELECT COUNT(*) FROM users WHERE role = ? AND is_active = 1`
	if err := r.db.QueryRowContext(ctx, query, models.RoleAdmin).Scan(&count); err != nil {
		return 0, fmt.Errorf("failed to count admins: %w", err)
	}
	return count, nil
}

// List retrieves all active users
func (r *UserRepository) List(ctx context.Context) ([]*models.User, error) {
	query := `SELECT ` + userColumns + ` FROM users WHERE is_active = 1 ORDER BY username ASC`
	rows, err := r.db.QueryContext(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("failed to list users: %w", err)
	}
	defer rows.Close()

	var users []*models.User
	for rows.Next() {
		user, err := scanUser(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan user: %w", err)
		}
		users = append(users, user)
	}

	return users, rows.Err()
}

func scanUser(row scanner) (*models.User, error) {
	var user models.User
	err := row.Scan(
		&user.ID,
		&user.Username,
		&user.FullName,
		&user.PasswordHash,
		&user.Email,
		&user.Role,
		&user.IsActive,
		&user.FailedLoginAttempts,
		&user.LockedUntil,
		&user.CreatedAt,
		&user.UpdatedAt,
		&user.LastLogin,
	)
	if err != nil {
		return nil, err
	}
	return &user, nil
}
