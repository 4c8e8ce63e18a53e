package rbac

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/odyssey-erp/accessdesk/internal/platform/db"
	"github.com/odyssey-erp/accessdesk/internal/shared"
)

// Reader exposes the read-only queries the evaluator needs.
type Reader interface {
	PermissionExists(ctx context.Context, name string) (bool, error)
	FindUserByEmail(ctx context.Context, email string) (User, error)
	CountUserRoles(ctx context.Context, userID int64) (int, error)
	UserPermissions(ctx context.Context, userID int64) ([]string, error)
}

// Store hands out a Reader bound to one short-lived read-only transaction.
type Store interface {
	ReadOnly(ctx context.Context, fn func(Reader) error) error
}

// PGStore implements Store on PostgreSQL.
type PGStore struct {
	pool *pgxpool.Pool
}

// NewPGStore constructs a PGStore.
func NewPGStore(pool *pgxpool.Pool) *PGStore {
	return &PGStore{pool: pool}
}

// ReadOnly runs fn inside a read-only transaction that is released before returning.
func (s *PGStore) ReadOnly(ctx context.Context, fn func(Reader) error) error {
	return db.WithReadOnlyTx(ctx, s.pool, func(tx pgx.Tx) error {
		return fn(txReader{tx: tx})
	})
}

type txReader struct {
	tx pgx.Tx
}

func (r txReader) PermissionExists(ctx context.Context, name string) (bool, error) {
	var exists bool
	err := r.tx.QueryRow(ctx, `SELECT EXISTS (SELECT 1 FROM permissions WHERE name = $1)`, name).Scan(&exists)
	if err != nil {
		return false, db.Classify(fmt.Errorf("rbac: permission exists: %w", err))
	}
	return exists, nil
}

func (r txReader) FindUserByEmail(ctx context.Context, email string) (User, error) {
	var user User
	err := r.tx.QueryRow(ctx, `SELECT id, first_name, last_name, email, birthday, valid_until, created_at, updated_at
FROM users WHERE lower(email) = lower($1)`, shared.NormalizeEmail(email)).
		Scan(&user.ID, &user.FirstName, &user.LastName, &user.Email, &user.Birthday, &user.ValidUntil, &user.CreatedAt, &user.UpdatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return User{}, shared.ErrNotFound
		}
		return User{}, db.Classify(fmt.Errorf("rbac: find user: %w", err))
	}
	return user, nil
}

func (r txReader) CountUserRoles(ctx context.Context, userID int64) (int, error) {
	var count int
	err := r.tx.QueryRow(ctx, `SELECT COUNT(*) FROM user_roles WHERE user_id = $1`, userID).Scan(&count)
	if err != nil {
		return 0, db.Classify(fmt.Errorf("rbac: count user roles: %w", err))
	}
	return count, nil
}

func (r txReader) UserPermissions(ctx context.Context, userID int64) ([]string, error) {
	rows, err := r.tx.Query(ctx, `SELECT DISTINCT p.name
FROM users u
JOIN user_roles ur ON ur.user_id = u.id
JOIN roles r ON r.id = ur.role_id
JOIN role_permissions rp ON rp.role_id = r.id
JOIN permissions p ON p.id = rp.permission_id
WHERE u.id = $1
ORDER BY p.name`, userID)
	if err != nil {
		return nil, db.Classify(fmt.Errorf("rbac: user permissions: %w", err))
	}
	names, err := pgx.CollectRows(rows, pgx.RowTo[string])
	if err != nil {
		return nil, db.Classify(fmt.Errorf("rbac: user permissions: %w", err))
	}
	return names, nil
}
