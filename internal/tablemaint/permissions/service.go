package permissions

import (
	"context"
	"fmt"
	"strings"

	"github.com/odyssey-erp/accessdesk/internal/rbac"
	"github.com/odyssey-erp/accessdesk/internal/shared"
)

// RepositoryPort defines data access methods for permissions.
type RepositoryPort interface {
	List(ctx context.Context) ([]rbac.Permission, error)
	ListExcluding(ctx context.Context, exclude []int64) ([]rbac.Permission, error)
	Get(ctx context.Context, id int64) (rbac.Permission, error)
	Create(ctx context.Context, name string) (rbac.Permission, error)
	Rename(ctx context.Context, id int64, name string) (rbac.Permission, error)
	Delete(ctx context.Context, id int64) (rbac.Permission, error)
}

// Input is the submitted permission form.
type Input struct {
	Name string `form:"name" validate:"required,max=100"`
}

// Service handles permission maintenance.
type Service struct {
	repo      RepositoryPort
	protected shared.IDSet
}

// NewService builds Service instance.
func NewService(repo RepositoryPort, protected shared.IDSet) *Service {
	return &Service{repo: repo, protected: protected}
}

// List returns all permissions.
func (s *Service) List(ctx context.Context) ([]rbac.Permission, error) {
	return s.repo.List(ctx)
}

// DeleteChoices returns the permissions that may be deleted.
func (s *Service) DeleteChoices(ctx context.Context) ([]rbac.Permission, error) {
	return s.repo.ListExcluding(ctx, s.protected.IDs())
}

// Get returns one permission.
func (s *Service) Get(ctx context.Context, id int64) (rbac.Permission, error) {
	return s.repo.Get(ctx, id)
}

// Create stores a permission.
func (s *Service) Create(ctx context.Context, in Input) (rbac.Permission, error) {
	return s.repo.Create(ctx, strings.TrimSpace(in.Name))
}

// Rename changes the name of permission id. Guards referencing the old name
// start failing with a configuration error.
func (s *Service) Rename(ctx context.Context, id int64, in Input) (rbac.Permission, error) {
	return s.repo.Rename(ctx, id, strings.TrimSpace(in.Name))
}

// Delete removes permission id unless it is protected.
func (s *Service) Delete(ctx context.Context, id int64) (rbac.Permission, error) {
	if s.protected.Contains(id) {
		return rbac.Permission{}, fmt.Errorf("permissions: delete %d: %w", id, shared.ErrProtected)
	}
	return s.repo.Delete(ctx, id)
}
