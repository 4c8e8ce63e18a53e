package db

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"

	"github.com/odyssey-erp/accessdesk/internal/shared"
)

const uniqueViolation = "23505"

// Classify maps driver errors onto the shared sentinels so callers can use
// errors.Is: no rows becomes ErrNotFound, unique violations ErrDuplicate and
// connection or timeout failures ErrUnavailable. Other errors pass through.
func Classify(err error) error {
	if err == nil {
		return nil
	}
	if errors.Is(err, shared.ErrNotFound) || errors.Is(err, shared.ErrDuplicate) || errors.Is(err, shared.ErrUnavailable) {
		return err
	}
	if errors.Is(err, pgx.ErrNoRows) {
		return fmt.Errorf("%w: %v", shared.ErrNotFound, err)
	}
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		switch {
		case pgErr.Code == uniqueViolation:
			return fmt.Errorf("%w: %s", shared.ErrDuplicate, pgErr.ConstraintName)
		case isTransientCode(pgErr.Code):
			return fmt.Errorf("%w: %v", shared.ErrUnavailable, err)
		}
		return err
	}
	if pgconn.Timeout(err) || errors.Is(err, context.DeadlineExceeded) {
		return fmt.Errorf("%w: %v", shared.ErrUnavailable, err)
	}
	var connectErr *pgconn.ConnectError
	if errors.As(err, &connectErr) || pgconn.SafeToRetry(err) {
		return fmt.Errorf("%w: %v", shared.ErrUnavailable, err)
	}
	return err
}

// isTransientCode reports SQLSTATE classes where retrying may succeed:
// connection exceptions, operator intervention and serialization failures.
func isTransientCode(code string) bool {
	switch {
	case strings.HasPrefix(code, "08"), strings.HasPrefix(code, "57P"):
		return true
	case code == "40001", code == "40P01":
		return true
	}
	return false
}
