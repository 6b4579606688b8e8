// Package postgres stores coupons in PostgreSQL. It is selected with API_COUPON_STORE=postgres
// when coupon counters should live in a relational database next to an existing billing system.
package postgres

import (
	"context"
	"database/sql"
	"database/sql/driver"
	_ "embed"
	"errors"
	"fmt"
	"time"

	"github.com/lib/pq"
)

//go:embed schema.sql
var schema string

const (
	maxOpenConns    = 20
	maxIdleConns    = 10
	connMaxLifetime = time.Hour
	pingTimeout     = 5 * time.Second
)

// Open connects to dsn, applies pool limits and verifies the connection.
func Open(ctx context.Context, dsn string) (*sql.DB, error) {
	db, err := sql.Open("postgres", dsn)
	if err != nil {
		return nil, fmt.Errorf("open db: %w", err)
	}
	db.SetMaxOpenConns(maxOpenConns)
	db.SetMaxIdleConns(maxIdleConns)
	db.SetConnMaxLifetime(connMaxLifetime)

	if err := Ping(ctx, db); err != nil {
		_ = db.Close()
		return nil, err
	}
	return db, nil
}

// Ping checks connectivity with a short timeout. It doubles as the readiness probe.
func Ping(ctx context.Context, db *sql.DB) error {
	ctx, cancel := context.WithTimeout(ctx, pingTimeout)
	defer cancel()
	if err := db.PingContext(ctx); err != nil {
		return fmt.Errorf("db ping failed: %w", err)
	}
	return nil
}

// EnsureSchema creates the coupons table when missing.
func EnsureSchema(ctx context.Context, db *sql.DB) error {
	if _, err := db.ExecContext(ctx, schema); err != nil {
		return wrapError("schema", err)
	}
	return nil
}

// Error classifies database failures for the service layer.
type Error struct {
	op          string
	err         error
	notFound    bool
	conflict    bool
	unavailable bool
}

func (e *Error) Error() string       { return fmt.Sprintf("%s: %v", e.op, e.err) }
func (e *Error) Unwrap() error       { return e.err }
func (e *Error) IsNotFound() bool    { return e != nil && e.notFound }
func (e *Error) IsConflict() bool    { return e != nil && e.conflict }
func (e *Error) IsUnavailable() bool { return e != nil && e.unavailable }

func notFound(op, code string) error {
	return &Error{op: op, err: fmt.Errorf("coupon %s not found", code), notFound: true}
}

// pq error codes
const (
	codeUniqueViolation      = "23505"
	codeCheckViolation       = "23514"
	codeSerializationFailure = "40001"
	codeDeadlockDetected     = "40P01"
)

func wrapError(op string, err error) error {
	if err == nil {
		return nil
	}
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return err
	}
	e := &Error{op: op, err: err}
	var pqErr *pq.Error
	switch {
	case errors.Is(err, sql.ErrNoRows):
		e.notFound = true
	case errors.As(err, &pqErr):
		switch pqErr.Code {
		case codeUniqueViolation, codeCheckViolation, codeSerializationFailure, codeDeadlockDetected:
			e.conflict = true
		default:
			// class 08 is connection exceptions, 53 insufficient resources, 57 operator intervention
			switch pqErr.Code.Class() {
			case "08", "53", "57":
				e.unavailable = true
			}
		}
	case errors.Is(err, sql.ErrConnDone), errors.Is(err, driver.ErrBadConn):
		e.unavailable = true
	}
	return e
}
