package rbac

import (
	"context"
	"errors"
	"log/slog"
	"slices"

	"github.com/odyssey-erp/accessdesk/internal/shared"
)

const unverifiedIdentity = "(unverified)"

// Service evaluates whether an identity holds a permission.
type Service struct {
	store  Store
	logger *slog.Logger
}

// NewService constructs a Service.
func NewService(store Store, logger *slog.Logger) *Service {
	if logger == nil {
		logger = slog.Default()
	}
	return &Service{store: store, logger: logger}
}

// Authorize returns true only when one of the user's roles carries exactly
// permission. A false result comes with a *ConfigError when the access
// tables cannot grant anything to the caller, or with a store error; a plain
// denial returns (false, nil). Nothing is cached between calls.
func (s *Service) Authorize(ctx context.Context, email, permission string) (bool, error) {
	email = shared.NormalizeEmail(email)
	display := email
	if display == "" {
		display = unverifiedIdentity
	}

	var allowed bool
	err := s.store.ReadOnly(ctx, func(r Reader) error {
		exists, err := r.PermissionExists(ctx, permission)
		if err != nil {
			return err
		}
		if !exists {
			return errUnknownPermission(permission)
		}

		if email == "" {
			return errUserNotProvisioned(display)
		}
		user, err := r.FindUserByEmail(ctx, email)
		if err != nil {
			if errors.Is(err, shared.ErrNotFound) {
				return errUserNotProvisioned(display)
			}
			return err
		}

		roles, err := r.CountUserRoles(ctx, user.ID)
		if err != nil {
			return err
		}
		if roles == 0 {
			return errUserWithoutRole(display)
		}

		granted, err := r.UserPermissions(ctx, user.ID)
		if err != nil {
			return err
		}
		if len(granted) == 0 {
			return errRolesWithoutPermissions(display)
		}

		allowed = slices.Contains(granted, permission)
		return nil
	})
	if err != nil {
		return false, err
	}
	return allowed, nil
}

// IsAuthorized is Authorize without the reason. It fails closed.
func (s *Service) IsAuthorized(ctx context.Context, email, permission string) bool {
	allowed, err := s.Authorize(ctx, email, permission)
	if err != nil {
		if IsConfigError(err) {
			s.logger.Warn("authorization configuration error", slog.String("permission", permission), slog.Any("error", err))
		} else {
			s.logger.Error("authorization check failed", slog.String("permission", permission), slog.Any("error", err))
		}
		return false
	}
	return allowed
}
