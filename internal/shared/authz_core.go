package shared

// Table maintenance permissions.
const (
	// PermDefault is attached to every freshly created role.
	PermDefault = "default"
	// PermAdminReadOnly grants the table index pages.
	PermAdminReadOnly = "admin_read_only"
	// PermAdmin grants every create, edit and delete form.
	PermAdmin = "admin"
)

// CoreScopes lists all permissions the table maintenance screens check.
func CoreScopes() []string {
	return []string{
		PermDefault,
		PermAdminReadOnly,
		PermAdmin,
	}
}
