package rolepermissions

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/odyssey-erp/accessdesk/internal/platform/db"
	"github.com/odyssey-erp/accessdesk/internal/rbac"
	"github.com/odyssey-erp/accessdesk/internal/shared"
	"github.com/odyssey-erp/accessdesk/internal/tablemaint"
)

const selectGrants = `SELECT rp.role_id, rp.permission_id, r.name, p.name, rp.created_at
FROM role_permissions rp
JOIN roles r ON r.id = rp.role_id
JOIN permissions p ON p.id = rp.permission_id`

// Repository provides PostgreSQL backed persistence for role_permissions.
type Repository struct {
	pool *pgxpool.Pool
}

// NewRepository constructs a repository.
func NewRepository(pool *pgxpool.Pool) *Repository {
	return &Repository{pool: pool}
}

// List returns every grant with the role and permission names.
func (r *Repository) List(ctx context.Context) ([]rbac.RolePermission, error) {
	rows, err := r.pool.Query(ctx, selectGrants+` ORDER BY rp.role_id, rp.permission_id`)
	if err != nil {
		return nil, db.Classify(fmt.Errorf("role permissions: list: %w", err))
	}
	grants, err := pgx.CollectRows(rows, pgx.RowToStructByPos[rbac.RolePermission])
	if err != nil {
		return nil, db.Classify(fmt.Errorf("role permissions: scan: %w", err))
	}
	return grants, nil
}

// RoleChoices lists roles by name.
func (r *Repository) RoleChoices(ctx context.Context) ([]tablemaint.Choice, error) {
	return r.choices(ctx, `SELECT id, name FROM roles ORDER BY name`)
}

// PermissionChoices lists permissions by name.
func (r *Repository) PermissionChoices(ctx context.Context) ([]tablemaint.Choice, error) {
	return r.choices(ctx, `SELECT id, name FROM permissions ORDER BY name`)
}

// Create grants permissionID to roleID. An existing grant yields
// shared.ErrDuplicate and nothing is written.
func (r *Repository) Create(ctx context.Context, roleID, permissionID int64) (rbac.RolePermission, error) {
	var grant rbac.RolePermission
	err := db.WithTx(ctx, r.pool, func(tx pgx.Tx) error {
		if _, err := tx.Exec(ctx, `INSERT INTO role_permissions (role_id, permission_id) VALUES ($1, $2)`, roleID, permissionID); err != nil {
			return db.Classify(fmt.Errorf("role permissions: insert [%d, %d]: %w", roleID, permissionID, err))
		}
		rows, err := tx.Query(ctx, selectGrants+` WHERE rp.role_id = $1 AND rp.permission_id = $2`, roleID, permissionID)
		if err != nil {
			return db.Classify(err)
		}
		grant, err = pgx.CollectExactlyOneRow(rows, pgx.RowToStructByPos[rbac.RolePermission])
		return db.Classify(err)
	})
	return grant, err
}

// Delete removes the grant or returns shared.ErrNotFound.
func (r *Repository) Delete(ctx context.Context, roleID, permissionID int64) (rbac.RolePermission, error) {
	grant := rbac.RolePermission{RoleID: roleID, PermissionID: permissionID}
	err := db.WithTx(ctx, r.pool, func(tx pgx.Tx) error {
		err := tx.QueryRow(ctx, `DELETE FROM role_permissions WHERE role_id = $1 AND permission_id = $2 RETURNING created_at`, roleID, permissionID).
			Scan(&grant.CreatedAt)
		if errors.Is(err, pgx.ErrNoRows) {
			return shared.ErrNotFound
		}
		if err != nil {
			return db.Classify(fmt.Errorf("role permissions: delete [%d, %d]: %w", roleID, permissionID, err))
		}
		return nil
	})
	return grant, err
}

func (r *Repository) choices(ctx context.Context, sql string) ([]tablemaint.Choice, error) {
	rows, err := r.pool.Query(ctx, sql)
	if err != nil {
		return nil, db.Classify(fmt.Errorf("role permissions: choices: %w", err))
	}
	choices, err := pgx.CollectRows(rows, pgx.RowToStructByPos[tablemaint.Choice])
	return choices, db.Classify(err)
}
