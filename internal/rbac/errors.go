package rbac

import (
	"errors"
	"fmt"
)

const contactAdmin = "Please contact an administrator."

// ConfigError signals that the access tables cannot grant anything to the
// caller: the permission, the user or the user's roles are missing. It is a
// denial, but one an operator has to fix.
type ConfigError struct {
	Reason string
}

func (e *ConfigError) Error() string {
	return e.Reason + " " + contactAdmin
}

// IsConfigError reports whether err carries a ConfigError.
func IsConfigError(err error) bool {
	var cfgErr *ConfigError
	return errors.As(err, &cfgErr)
}

func errUnknownPermission(permission string) error {
	return &ConfigError{Reason: fmt.Sprintf("The permission '%s' does not exist.", permission)}
}

func errUserNotProvisioned(email string) error {
	return &ConfigError{Reason: fmt.Sprintf("User %s was added to IAP but not to the database.", email)}
}

func errUserWithoutRole(email string) error {
	return &ConfigError{Reason: fmt.Sprintf("User %s has no Role.", email)}
}

func errRolesWithoutPermissions(email string) error {
	return &ConfigError{Reason: fmt.Sprintf("User %s has no Roles with Permissions.", email)}
}
