package roles

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

// Repository provides PostgreSQL backed persistence.
type Repository struct {
	pool *pgxpool.Pool
}

// NewRepository constructs a repository.
func NewRepository(pool *pgxpool.Pool) *Repository {
	return &Repository{pool: pool}
}

// List returns all roles ordered by id.
func (r *Repository) List(ctx context.Context) ([]rbac.Role, error) {
	return r.query(ctx, `SELECT id, name, created_at, updated_at FROM roles ORDER BY id`)
}

// ListExcluding returns roles not in exclude, ordered by name.
func (r *Repository) ListExcluding(ctx context.Context, exclude []int64) ([]rbac.Role, error) {
	if exclude == nil {
		exclude = []int64{}
	}
	return r.query(ctx, `SELECT id, name, created_at, updated_at FROM roles WHERE NOT (id = ANY($1)) ORDER BY name`, exclude)
}

// Get returns the role with id or shared.ErrNotFound.
func (r *Repository) Get(ctx context.Context, id int64) (rbac.Role, error) {
	role, err := scanRole(r.pool.QueryRow(ctx, `SELECT id, name, created_at, updated_at FROM roles WHERE id = $1`, id))
	if err != nil {
		return rbac.Role{}, db.Classify(fmt.Errorf("roles: get %d: %w", id, err))
	}
	return role, nil
}

// Create inserts a role and, when defaultPermissionID > 0, grants it that
// permission in the same transaction.
func (r *Repository) Create(ctx context.Context, name string, defaultPermissionID int64) (rbac.Role, error) {
	var role rbac.Role
	err := db.WithTx(ctx, r.pool, func(tx pgx.Tx) error {
		var err error
		role, err = scanRole(tx.QueryRow(ctx, `INSERT INTO roles (name) VALUES ($1) RETURNING id, name, created_at, updated_at`, name))
		if err != nil {
			return db.Classify(fmt.Errorf("roles: insert: %w", err))
		}
		if defaultPermissionID > 0 {
			if _, err := tx.Exec(ctx, `INSERT INTO role_permissions (role_id, permission_id) VALUES ($1, $2)`, role.ID, defaultPermissionID); err != nil {
				return db.Classify(fmt.Errorf("roles: attach default permission: %w", err))
			}
		}
		return nil
	})
	return role, err
}

// Rename updates the name of role id.
func (r *Repository) Rename(ctx context.Context, id int64, name string) (rbac.Role, error) {
	role, err := scanRole(r.pool.QueryRow(ctx, `UPDATE roles SET name = $2, updated_at = NOW() WHERE id = $1 RETURNING id, name, created_at, updated_at`, id, name))
	if err != nil {
		return rbac.Role{}, db.Classify(fmt.Errorf("roles: rename %d: %w", id, err))
	}
	return role, nil
}

// Delete removes role id and returns the deleted row. Associations cascade.
func (r *Repository) Delete(ctx context.Context, id int64) (rbac.Role, error) {
	var role rbac.Role
	err := db.WithTx(ctx, r.pool, func(tx pgx.Tx) error {
		var err error
		role, err = scanRole(tx.QueryRow(ctx, `DELETE FROM roles WHERE id = $1 RETURNING id, name, created_at, updated_at`, id))
		if err != nil {
			return db.Classify(fmt.Errorf("roles: delete %d: %w", id, err))
		}
		return nil
	})
	return role, err
}

func (r *Repository) query(ctx context.Context, sql string, args ...any) ([]rbac.Role, error) {
	rows, err := r.pool.Query(ctx, sql, args...)
	if err != nil {
		return nil, db.Classify(fmt.Errorf("roles: query: %w", err))
	}
	defer rows.Close()
	var roles []rbac.Role
	for rows.Next() {
		role, err := scanRole(rows)
		if err != nil {
			return nil, err
		}
		roles = append(roles, role)
	}
	return roles, db.Classify(rows.Err())
}

func scanRole(row pgx.Row) (rbac.Role, error) {
	var role rbac.Role
	err := row.Scan(&role.ID, &role.Name, &role.CreatedAt, &role.UpdatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return rbac.Role{}, shared.ErrNotFound
	}
	return role, err
}
