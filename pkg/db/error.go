package db

import (
	"context"
	"database/sql/driver"
	"errors"
	"net"
	"strings"

	"github.com/jackc/pgx/v5/pgconn"
	"gorm.io/gorm"
)

// Low-cardinality storage failure reasons used in logs and metrics.
const (
	ReasonTimeout              = "timeout"
	ReasonConnection           = "connection"
	ReasonSerializationFailure = "serialization_failure"
	ReasonLockTimeout          = "lock_timeout"
	ReasonUniqueViolation      = "unique_violation"
	ReasonUnknown              = "unknown"
)

func IsDuplicateKeyErr(err error) bool {
	if err == nil {
		return false
	}

	if errors.Is(err, gorm.ErrDuplicatedKey) {
		return true
	}
	if hasPGCode(err, "23505") {
		return true
	}

	msg := err.Error()
	// PostgreSQL without a typed error, MySQL 1062, SQLite 2067.
	return strings.Contains(msg, "duplicate key value violates unique constraint") ||
		strings.Contains(msg, "Error 1062") ||
		strings.Contains(msg, "UNIQUE constraint failed")
}

func IsSerializationFailure(err error) bool {
	return hasPGCode(err, "40001") || hasPGCode(err, "40P01")
}

func IsLockTimeout(err error) bool {
	return hasPGCode(err, "55P03")
}

func IsConnectionError(err error) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, driver.ErrBadConn) || errors.Is(err, gorm.ErrInvalidDB) {
		return true
	}
	var netErr net.Error
	if errors.As(err, &netErr) {
		return true
	}
	var connErr *pgconn.ConnectError
	if errors.As(err, &connErr) {
		return true
	}
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		// Class 08: connection exception.
		return strings.HasPrefix(pgErr.Code, "08")
	}
	return false
}

// ClassifyError maps a storage error onto one of the Reason* constants.
func ClassifyError(err error) string {
	switch {
	case err == nil:
		return ReasonUnknown
	case errors.Is(err, context.DeadlineExceeded), errors.Is(err, context.Canceled):
		return ReasonTimeout
	case IsSerializationFailure(err):
		return ReasonSerializationFailure
	case IsLockTimeout(err):
		return ReasonLockTimeout
	case IsDuplicateKeyErr(err):
		return ReasonUniqueViolation
	case IsConnectionError(err):
		return ReasonConnection
	default:
		return ReasonUnknown
	}
}

func hasPGCode(err error, code string) bool {
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		return pgErr.Code == code
	}
	return false
}
