package permissions

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/odyssey-erp/accessdesk/internal/platform/db"
	"github.com/odyssey-erp/accessdesk/internal/rbac"
	"github.com/odyssey-erp/accessdesk/internal/shared"
)

const columns = `id, name, created_at, updated_at`

// Repository provides PostgreSQL backed persistence.
type Repository struct {
	pool *pgxpool.Pool
}

// NewRepository constructs a repository.
func NewRepository(pool *pgxpool.Pool) *Repository {
	return &Repository{pool: pool}
}

// List returns all permissions ordered by id.
func (r *Repository) List(ctx context.Context) ([]rbac.Permission, error) {
	return r.collect(ctx, `SELECT `+columns+` FROM permissions ORDER BY id`)
}

// ListExcluding returns permissions not in exclude, ordered by name.
func (r *Repository) ListExcluding(ctx context.Context, exclude []int64) ([]rbac.Permission, error) {
	if exclude == nil {
		exclude = []int64{}
	}
	return r.collect(ctx, `SELECT `+columns+` FROM permissions WHERE NOT (id = ANY($1)) ORDER BY name`, exclude)
}

// Get returns the permission with id or shared.ErrNotFound.
func (r *Repository) Get(ctx context.Context, id int64) (rbac.Permission, error) {
	perm, err := one(r.pool.Query(ctx, `SELECT `+columns+` FROM permissions WHERE id = $1`, id))
	if err != nil {
		return rbac.Permission{}, db.Classify(fmt.Errorf("permissions: get %d: %w", id, err))
	}
	return perm, nil
}

// Create inserts a permission.
func (r *Repository) Create(ctx context.Context, name string) (rbac.Permission, error) {
	var perm rbac.Permission
	err := db.WithTx(ctx, r.pool, func(tx pgx.Tx) error {
		var err error
		perm, err = one(tx.Query(ctx, `INSERT INTO permissions (name) VALUES ($1) RETURNING `+columns, name))
		if err != nil {
			return db.Classify(fmt.Errorf("permissions: insert: %w", err))
		}
		return nil
	})
	return perm, err
}

// Rename updates the name of permission id.
func (r *Repository) Rename(ctx context.Context, id int64, name string) (rbac.Permission, error) {
	perm, err := one(r.pool.Query(ctx, `UPDATE permissions SET name = $2, updated_at = NOW() WHERE id = $1 RETURNING `+columns, id, name))
	if err != nil {
		return rbac.Permission{}, db.Classify(fmt.Errorf("permissions: rename %d: %w", id, err))
	}
	return perm, nil
}

// Delete removes permission id. Role grants cascade.
func (r *Repository) Delete(ctx context.Context, id int64) (rbac.Permission, error) {
	var perm rbac.Permission
	err := db.WithTx(ctx, r.pool, func(tx pgx.Tx) error {
		var err error
		perm, err = one(tx.Query(ctx, `DELETE FROM permissions WHERE id = $1 RETURNING `+columns, id))
		if err != nil {
			return db.Classify(fmt.Errorf("permissions: delete %d: %w", id, err))
		}
		return nil
	})
	return perm, err
}

func (r *Repository) collect(ctx context.Context, sql string, args ...any) ([]rbac.Permission, error) {
	rows, err := r.pool.Query(ctx, sql, args...)
	if err != nil {
		return nil, db.Classify(fmt.Errorf("permissions: query: %w", err))
	}
	perms, err := pgx.CollectRows(rows, pgx.RowToStructByPos[rbac.Permission])
	if err != nil {
		return nil, db.Classify(fmt.Errorf("permissions: scan: %w", err))
	}
	return perms, nil
}

func one(rows pgx.Rows, err error) (rbac.Permission, error) {
	if err != nil {
		return rbac.Permission{}, err
	}
	perm, err := pgx.CollectExactlyOneRow(rows, pgx.RowToStructByPos[rbac.Permission])
	if errors.Is(err, pgx.ErrNoRows) {
		return rbac.Permission{}, shared.ErrNotFound
	}
	return perm, err
}
