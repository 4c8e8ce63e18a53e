package db

import (
	"context"
	"errors"
	"fmt"
	"testing"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/stretchr/testify/assert"

	"github.com/odyssey-erp/accessdesk/internal/shared"
)

func TestClassify(t *testing.T) {
	cases := []struct {
		name string
		err  error
		want error
	}{
		{"no rows", pgx.ErrNoRows, shared.ErrNotFound},
		{"wrapped no rows", fmt.Errorf("get role: %w", pgx.ErrNoRows), shared.ErrNotFound},
		{"unique violation", &pgconn.PgError{Code: "23505", ConstraintName: "user_roles_pkey"}, shared.ErrDuplicate},
		{"admin shutdown", &pgconn.PgError{Code: "57P01"}, shared.ErrUnavailable},
		{"connection failure", &pgconn.PgError{Code: "08006"}, shared.ErrUnavailable},
		{"serialization", &pgconn.PgError{Code: "40001"}, shared.ErrUnavailable},
		{"deadline", context.DeadlineExceeded, shared.ErrUnavailable},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			assert.ErrorIs(t, Classify(tc.err), tc.want)
		})
	}
}

func TestClassifyPassThrough(t *testing.T) {
	assert.NoError(t, Classify(nil))

	fk := &pgconn.PgError{Code: "23503"}
	assert.Same(t, fk, Classify(fk))

	plain := errors.New("boom")
	assert.Equal(t, plain, Classify(plain))

	already := fmt.Errorf("%w: x", shared.ErrDuplicate)
	assert.Equal(t, already, Classify(already))
}
