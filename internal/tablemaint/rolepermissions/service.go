package rolepermissions

import (
	"context"
	"fmt"

	"golang.org/x/sync/errgroup"

	"github.com/odyssey-erp/accessdesk/internal/rbac"
	"github.com/odyssey-erp/accessdesk/internal/shared"
	"github.com/odyssey-erp/accessdesk/internal/tablemaint"
)

// RepositoryPort defines data access methods for role permission grants.
type RepositoryPort interface {
	List(ctx context.Context) ([]rbac.RolePermission, error)
	RoleChoices(ctx context.Context) ([]tablemaint.Choice, error)
	PermissionChoices(ctx context.Context) ([]tablemaint.Choice, error)
	Create(ctx context.Context, roleID, permissionID int64) (rbac.RolePermission, error)
	Delete(ctx context.Context, roleID, permissionID int64) (rbac.RolePermission, error)
}

// Choices holds the select options of the assignment forms.
type Choices struct {
	Roles       []tablemaint.Choice
	Permissions []tablemaint.Choice
}

func hasChoice(choices []tablemaint.Choice, id int64) bool {
	for _, c := range choices {
		if c.ID == id {
			return true
		}
	}
	return false
}

// Service handles role permission maintenance.
type Service struct {
	repo      RepositoryPort
	protected shared.PairSet
}

// NewService builds Service instance.
func NewService(repo RepositoryPort, protected shared.PairSet) *Service {
	return &Service{repo: repo, protected: protected}
}

// List returns all grants.
func (s *Service) List(ctx context.Context) ([]rbac.RolePermission, error) {
	return s.repo.List(ctx)
}

// Choices loads roles and permissions for the forms.
func (s *Service) Choices(ctx context.Context) (Choices, error) {
	var c Choices
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		var err error
		c.Roles, err = s.repo.RoleChoices(gctx)
		return err
	})
	g.Go(func() error {
		var err error
		c.Permissions, err = s.repo.PermissionChoices(gctx)
		return err
	})
	if err := g.Wait(); err != nil {
		return Choices{}, fmt.Errorf("role permissions: choices: %w", err)
	}
	return c, nil
}

// Assign gives role roleID the permission permissionID.
func (s *Service) Assign(ctx context.Context, roleID, permissionID int64) (rbac.RolePermission, error) {
	return s.repo.Create(ctx, roleID, permissionID)
}

// Revoke removes the grant unless the pair is protected. The protected
// check runs before any query.
func (s *Service) Revoke(ctx context.Context, roleID, permissionID int64) (rbac.RolePermission, error) {
	if s.protected.Contains(roleID, permissionID) {
		return rbac.RolePermission{}, fmt.Errorf("role permissions: revoke [%d, %d]: %w", roleID, permissionID, shared.ErrProtected)
	}
	return s.repo.Delete(ctx, roleID, permissionID)
}
