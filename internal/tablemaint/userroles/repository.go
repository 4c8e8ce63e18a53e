package userroles

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

// Repository provides PostgreSQL backed persistence for user_roles.
type Repository struct {
	pool *pgxpool.Pool
}

// NewRepository constructs a repository.
func NewRepository(pool *pgxpool.Pool) *Repository {
	return &Repository{pool: pool}
}

// List returns every assignment with the user and role names.
func (r *Repository) List(ctx context.Context) ([]rbac.UserRole, error) {
	rows, err := r.pool.Query(ctx, `SELECT ur.user_id, ur.role_id, u.first_name || ' ' || u.last_name, r.name, ur.created_at
FROM user_roles ur
JOIN users u ON u.id = ur.user_id
JOIN roles r ON r.id = ur.role_id
ORDER BY ur.user_id, ur.role_id`)
	if err != nil {
		return nil, db.Classify(fmt.Errorf("user roles: list: %w", err))
	}
	defer rows.Close()
	var out []rbac.UserRole
	for rows.Next() {
		var ur rbac.UserRole
		if err := rows.Scan(&ur.UserID, &ur.RoleID, &ur.UserName, &ur.RoleName, &ur.CreatedAt); err != nil {
			return nil, db.Classify(fmt.Errorf("user roles: scan: %w", err))
		}
		out = append(out, ur)
	}
	return out, db.Classify(rows.Err())
}

// UserChoices lists users by email.
func (r *Repository) UserChoices(ctx context.Context) ([]tablemaint.Choice, error) {
	return r.choices(ctx, `SELECT id, email FROM users ORDER BY email`)
}

// RoleChoices lists roles by name.
func (r *Repository) RoleChoices(ctx context.Context) ([]tablemaint.Choice, error) {
	return r.choices(ctx, `SELECT id, name FROM roles ORDER BY name`)
}

// Create assigns role roleID to user userID. An existing assignment yields
// shared.ErrDuplicate and nothing is written.
func (r *Repository) Create(ctx context.Context, userID, roleID int64) (rbac.UserRole, error) {
	ur := rbac.UserRole{UserID: userID, RoleID: roleID}
	err := db.WithTx(ctx, r.pool, func(tx pgx.Tx) error {
		if err := tx.QueryRow(ctx, `INSERT INTO user_roles (user_id, role_id) VALUES ($1, $2) RETURNING created_at`, userID, roleID).
			Scan(&ur.CreatedAt); err != nil {
			return db.Classify(fmt.Errorf("user roles: insert [%d, %d]: %w", userID, roleID, err))
		}
		err := tx.QueryRow(ctx, `SELECT u.first_name || ' ' || u.last_name, r.name FROM users u, roles r WHERE u.id = $1 AND r.id = $2`, userID, roleID).
			Scan(&ur.UserName, &ur.RoleName)
		return db.Classify(err)
	})
	return ur, err
}

// Delete removes the assignment or returns shared.ErrNotFound.
func (r *Repository) Delete(ctx context.Context, userID, roleID int64) (rbac.UserRole, error) {
	ur := rbac.UserRole{UserID: userID, RoleID: roleID}
	err := db.WithTx(ctx, r.pool, func(tx pgx.Tx) error {
		err := tx.QueryRow(ctx, `DELETE FROM user_roles WHERE user_id = $1 AND role_id = $2 RETURNING created_at`, userID, roleID).
			Scan(&ur.CreatedAt)
		if errors.Is(err, pgx.ErrNoRows) {
			return shared.ErrNotFound
		}
		if err != nil {
			return db.Classify(fmt.Errorf("user roles: delete [%d, %d]: %w", userID, roleID, err))
		}
		return nil
	})
	return ur, err
}

func (r *Repository) choices(ctx context.Context, sql string) ([]tablemaint.Choice, error) {
	rows, err := r.pool.Query(ctx, sql)
	if err != nil {
		return nil, db.Classify(fmt.Errorf("user roles: choices: %w", err))
	}
	choices, err := pgx.CollectRows(rows, pgx.RowToStructByPos[tablemaint.Choice])
	return choices, db.Classify(err)
}
