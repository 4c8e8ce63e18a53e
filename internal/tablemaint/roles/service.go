package roles

import (
	"context"
	"fmt"
	"strings"

	"github.com/odyssey-erp/accessdesk/internal/rbac"
	"github.com/odyssey-erp/accessdesk/internal/shared"
)

// RepositoryPort defines data access methods for roles.
type RepositoryPort interface {
	List(ctx context.Context) ([]rbac.Role, error)
	ListExcluding(ctx context.Context, exclude []int64) ([]rbac.Role, error)
	Get(ctx context.Context, id int64) (rbac.Role, error)
	Create(ctx context.Context, name string, defaultPermissionID int64) (rbac.Role, error)
	Rename(ctx context.Context, id int64, name string) (rbac.Role, error)
	Delete(ctx context.Context, id int64) (rbac.Role, error)
}

// Input is the submitted role form.
type Input struct {
	Name string `form:"name" validate:"required,max=100"`
}

// Options configures the Service.
type Options struct {
	Protected           shared.IDSet
	DefaultPermissionID int64
}

// Service handles role maintenance.
type Service struct {
	repo RepositoryPort
	opts Options
}

// NewService builds Service instance.
func NewService(repo RepositoryPort, opts Options) *Service {
	return &Service{repo: repo, opts: opts}
}

// List returns all roles.
func (s *Service) List(ctx context.Context) ([]rbac.Role, error) {
	return s.repo.List(ctx)
}

// DeleteChoices returns the roles that may be deleted.
func (s *Service) DeleteChoices(ctx context.Context) ([]rbac.Role, error) {
	return s.repo.ListExcluding(ctx, s.opts.Protected.IDs())
}

// Get returns one role.
func (s *Service) Get(ctx context.Context, id int64) (rbac.Role, error) {
	return s.repo.Get(ctx, id)
}

// Create stores a role together with the default permission.
func (s *Service) Create(ctx context.Context, in Input) (rbac.Role, error) {
	return s.repo.Create(ctx, strings.TrimSpace(in.Name), s.opts.DefaultPermissionID)
}

// Rename changes the name of role id.
func (s *Service) Rename(ctx context.Context, id int64, in Input) (rbac.Role, error) {
	return s.repo.Rename(ctx, id, strings.TrimSpace(in.Name))
}

// Delete removes role id unless it is protected. The protected check runs
// before any query.
func (s *Service) Delete(ctx context.Context, id int64) (rbac.Role, error) {
	if s.opts.Protected.Contains(id) {
		return rbac.Role{}, fmt.Errorf("roles: delete %d: %w", id, shared.ErrProtected)
	}
	return s.repo.Delete(ctx, id)
}
