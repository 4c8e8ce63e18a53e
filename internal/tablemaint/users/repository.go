package users

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/odyssey-erp/accessdesk/internal/platform/db"
	"github.com/odyssey-erp/accessdesk/internal/rbac"
	"github.com/odyssey-erp/accessdesk/internal/shared"
)

const userColumns = `id, first_name, last_name, email, birthday, valid_until, created_at, updated_at`

// Repository provides PostgreSQL backed persistence.
type Repository struct {
	pool *pgxpool.Pool
}

// NewRepository constructs a repository.
func NewRepository(pool *pgxpool.Pool) *Repository {
	return &Repository{pool: pool}
}

// List returns all users ordered by id.
func (r *Repository) List(ctx context.Context) ([]rbac.User, error) {
	return r.query(ctx, `SELECT `+userColumns+` FROM users ORDER BY id`)
}

// ListExcluding returns users not in exclude, ordered by email.
func (r *Repository) ListExcluding(ctx context.Context, exclude []int64) ([]rbac.User, error) {
	if exclude == nil {
		// A NULL array would make the predicate NULL for every row.
		exclude = []int64{}
	}
	return r.query(ctx, `SELECT `+userColumns+` FROM users WHERE NOT (id = ANY($1)) ORDER BY email`, exclude)
}

// ListExpired returns users whose valid_until lies before now.
func (r *Repository) ListExpired(ctx context.Context, now time.Time) ([]rbac.User, error) {
	return r.query(ctx, `SELECT `+userColumns+` FROM users WHERE valid_until IS NOT NULL AND valid_until < $1 ORDER BY valid_until, email`, now)
}

// Get returns the user with id or shared.ErrNotFound.
func (r *Repository) Get(ctx context.Context, id int64) (rbac.User, error) {
	row := r.pool.QueryRow(ctx, `SELECT `+userColumns+` FROM users WHERE id = $1`, id)
	user, err := scanUser(row)
	if err != nil {
		return rbac.User{}, db.Classify(fmt.Errorf("users: get %d: %w", id, err))
	}
	return user, nil
}

// Create inserts a user and, when defaultRoleID > 0, links it to that role
// in the same transaction.
func (r *Repository) Create(ctx context.Context, in Record, defaultRoleID int64) (rbac.User, error) {
	var user rbac.User
	err := db.WithTx(ctx, r.pool, func(tx pgx.Tx) error {
		row := tx.QueryRow(ctx, `INSERT INTO users (first_name, last_name, email, birthday, valid_until)
VALUES ($1, $2, $3, $4, $5) RETURNING `+userColumns,
			in.FirstName, in.LastName, in.Email, in.Birthday, in.ValidUntil)
		var err error
		user, err = scanUser(row)
		if err != nil {
			return db.Classify(fmt.Errorf("users: insert: %w", err))
		}
		if defaultRoleID > 0 {
			if _, err := tx.Exec(ctx, `INSERT INTO user_roles (user_id, role_id) VALUES ($1, $2)`, user.ID, defaultRoleID); err != nil {
				return db.Classify(fmt.Errorf("users: attach default role: %w", err))
			}
		}
		return nil
	})
	return user, err
}

// Update overwrites the editable columns of user id.
func (r *Repository) Update(ctx context.Context, id int64, in Record) (rbac.User, error) {
	row := r.pool.QueryRow(ctx, `UPDATE users
SET first_name = $2, last_name = $3, email = $4, birthday = $5, valid_until = $6, updated_at = NOW()
WHERE id = $1 RETURNING `+userColumns,
		id, in.FirstName, in.LastName, in.Email, in.Birthday, in.ValidUntil)
	user, err := scanUser(row)
	if err != nil {
		return rbac.User{}, db.Classify(fmt.Errorf("users: update %d: %w", id, err))
	}
	return user, nil
}

// Delete removes user id and returns the deleted row. Role links cascade.
func (r *Repository) Delete(ctx context.Context, id int64) (rbac.User, error) {
	var user rbac.User
	err := db.WithTx(ctx, r.pool, func(tx pgx.Tx) error {
		var err error
		user, err = scanUser(tx.QueryRow(ctx, `DELETE FROM users WHERE id = $1 RETURNING `+userColumns, id))
		if err != nil {
			return db.Classify(fmt.Errorf("users: delete %d: %w", id, err))
		}
		return nil
	})
	return user, err
}

func (r *Repository) query(ctx context.Context, sql string, args ...any) ([]rbac.User, error) {
	rows, err := r.pool.Query(ctx, sql, args...)
	if err != nil {
		return nil, db.Classify(fmt.Errorf("users: query: %w", err))
	}
	defer rows.Close()
	var users []rbac.User
	for rows.Next() {
		user, err := scanUser(rows)
		if err != nil {
			return nil, err
		}
		users = append(users, user)
	}
	if err := rows.Err(); err != nil {
		return nil, db.Classify(err)
	}
	return users, nil
}

func scanUser(row pgx.Row) (rbac.User, error) {
	var user rbac.User
	err := row.Scan(&user.ID, &user.FirstName, &user.LastName, &user.Email, &user.Birthday, &user.ValidUntil, &user.CreatedAt, &user.UpdatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return rbac.User{}, shared.ErrNotFound
	}
	return user, err
}
