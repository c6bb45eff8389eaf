package db

import (
	"context"
	"errors"
	"fmt"
	"net"

	"github.com/jackc/pgerrcode"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/vasiliy-maslov/ecommerce-microservices/admin-service/internal/apperr"
)

// IsUnavailable reports whether err means the database could not serve the
// request at all, as opposed to rejecting it.
func IsUnavailable(err error) bool {
	// The caller gave up; the database was not at fault.
	if err == nil || errors.Is(err, context.Canceled) {
		return false
	}

	if errors.Is(err, context.DeadlineExceeded) || pgconn.Timeout(err) {
		return true
	}

	var connectErr *pgconn.ConnectError
	if errors.As(err, &connectErr) {
		return true
	}

	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		switch pgErr.Code {
		case pgerrcode.AdminShutdown,
			pgerrcode.CrashShutdown,
			pgerrcode.CannotConnectNow,
			pgerrcode.TooManyConnections:
			return true
		}
		return pgerrcode.IsConnectionException(pgErr.Code)
	}

	var netErr net.Error
	return errors.As(err, &netErr)
}

// Wrap annotates err with op and marks it as apperr.ErrStoreUnavailable when
// the database was unreachable.
func Wrap(op string, err error) error {
	if IsUnavailable(err) {
		return apperr.Unavailable("repository: "+op, err)
	}
	return fmt.Errorf("repository: %s: %w", op, err)
}

// ConstraintViolation returns the violated constraint name when err is a
// PostgreSQL error with the given SQLSTATE code.
func ConstraintViolation(err error, code string) (string, bool) {
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) && pgErr.Code == code {
		return pgErr.ConstraintName, true
	}
	return "", false
}
