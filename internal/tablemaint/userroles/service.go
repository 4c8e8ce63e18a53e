package userroles

import (
	"context"
	"fmt"

	"golang.org/x/sync/errgroup"

	"github.com/odyssey-erp/accessdesk/internal/rbac"
	"github.com/odyssey-erp/accessdesk/internal/shared"
	"github.com/odyssey-erp/accessdesk/internal/tablemaint"
)

// RepositoryPort defines data access methods for user role assignments.
type RepositoryPort interface {
	List(ctx context.Context) ([]rbac.UserRole, error)
	UserChoices(ctx context.Context) ([]tablemaint.Choice, error)
	RoleChoices(ctx context.Context) ([]tablemaint.Choice, error)
	Create(ctx context.Context, userID, roleID int64) (rbac.UserRole, error)
	Delete(ctx context.Context, userID, roleID int64) (rbac.UserRole, error)
}

// Choices holds the select options of the assignment forms.
type Choices struct {
	Users []tablemaint.Choice
	Roles []tablemaint.Choice
}

func hasChoice(choices []tablemaint.Choice, id int64) bool {
	for _, c := range choices {
		if c.ID == id {
			return true
		}
	}
	return false
}

// Service handles user role maintenance.
type Service struct {
	repo      RepositoryPort
	protected shared.PairSet
}

// NewService builds Service instance.
func NewService(repo RepositoryPort, protected shared.PairSet) *Service {
	return &Service{repo: repo, protected: protected}
}

// List returns all assignments.
func (s *Service) List(ctx context.Context) ([]rbac.UserRole, error) {
	return s.repo.List(ctx)
}

// Choices loads users and roles for the forms.
func (s *Service) Choices(ctx context.Context) (Choices, error) {
	var c Choices
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		var err error
		c.Users, err = s.repo.UserChoices(gctx)
		return err
	})
	g.Go(func() error {
		var err error
		c.Roles, err = s.repo.RoleChoices(gctx)
		return err
	})
	if err := g.Wait(); err != nil {
		return Choices{}, fmt.Errorf("user roles: choices: %w", err)
	}
	return c, nil
}

// Assign gives user userID the role roleID.
func (s *Service) Assign(ctx context.Context, userID, roleID int64) (rbac.UserRole, error) {
	return s.repo.Create(ctx, userID, roleID)
}

// Revoke removes the assignment unless the pair is protected. The protected
// check runs before any query.
func (s *Service) Revoke(ctx context.Context, userID, roleID int64) (rbac.UserRole, error) {
	if s.protected.Contains(userID, roleID) {
		return rbac.UserRole{}, fmt.Errorf("user roles: revoke [%d, %d]: %w", userID, roleID, shared.ErrProtected)
	}
	return s.repo.Delete(ctx, userID, roleID)
}
