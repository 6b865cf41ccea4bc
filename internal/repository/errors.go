package repository

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"github.com/mattn/go-sqlite3"
)

var (
	// ErrNotFound is returned when a record does not exist or is not active
	ErrNotFound = errors.New("not found")

	// ErrDuplicate is returned when a write violates a unique index
	ErrDuplicate = errors.New("duplicate value violates unique constraint")

	// ErrConditionFailed is returned when a conditional update matched no row
	ErrConditionFailed = errors.New("conditional update matched no rows")
)

// Executor is satisfied by *sql.DB and *sql.Tx so repository helpers can run
// inside or outside a transaction
type Executor interface {
	ExecContext(ctx context.Context, query string, args ...interface{}) (sql.Result, error)
	QueryRowContext(ctx context.Context, query string, args ...interface{}) *sql.Row
	QueryContext(ctx context.Context, query string, args ...interface{}) (*sql.Rows, error)
}

// scanner is satisfied by *sql.Row and *sql.Rows
type scanner interface {
	Scan(dest ...interface{}) error
}

// Pagination bounds a list query
type Pagination struct {
	Limit  int
	Offset int
}

func (p Pagination) limit() int {
	if p.Limit <= 0 {
		return -1 // SQLite: no limit
	}
	return p.Limit
}

func isUniqueViolation(err error) bool {
	var sqliteErr sqlite3.Error
	if errors.As(err, &sqliteErr) {
		return sqliteErr.ExtendedCode == sqlite3.ErrConstraintUnique
	}
	return false
}

// utc normalises timestamps so stored values compare correctly as text
func utc(t time.Time) time.Time {
	return t.UTC()
}

func checkRowsAffected(result sql.Result, notFound error) error {
	rows, err := result.RowsAffected()
	if err != nil {
		return err
	}
	if rows == 0 {
		return notFound
	}
	return nil
}
