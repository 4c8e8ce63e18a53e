package rolepermissions

import (
	"errors"
	"fmt"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/odyssey-erp/accessdesk/internal/rbac"
	"github.com/odyssey-erp/accessdesk/internal/shared"
	"github.com/odyssey-erp/accessdesk/internal/tablemaint"
	"github.com/odyssey-erp/accessdesk/internal/view"
)

const prefix = tablemaint.BasePath + "/role_permission"

// Handler manages role permission grant endpoints.
type Handler struct {
	kit     *tablemaint.Kit
	service *Service
}

// NewHandler builds Handler instance.
func NewHandler(kit *tablemaint.Kit, service *Service) *Handler {
	return &Handler{kit: kit, service: service}
}

// MountRoutes registers role permission routes.
func (h *Handler) MountRoutes(r chi.Router) {
	guard := h.kit.Guard
	r.Group(func(r chi.Router) {
		r.Use(guard.RequirePermission(shared.PermAdminReadOnly, rbac.HandlerName("role_permission.index")))
		r.Get("/", h.index)
		r.Get("/index", h.index)
	})
	r.Group(func(r chi.Router) {
		r.Use(guard.RequirePermission(shared.PermAdmin, rbac.HandlerName("role_permission.create")))
		r.Get("/create", h.create)
		r.Post("/create", h.create)
	})
	r.Group(func(r chi.Router) {
		r.Use(guard.RequirePermission(shared.PermAdmin, rbac.HandlerName("role_permission.delete")))
		r.Get("/delete", h.delete)
		r.Post("/delete", h.delete)
	})
}

func sidebar() []view.SidebarSection {
	return tablemaint.Sidebar("Role-Permission", prefix, false)
}

func (h *Handler) index(w http.ResponseWriter, r *http.Request) {
	grants, err := h.service.List(r.Context())
	if err != nil {
		h.kit.Logger.Error("list role permissions failed", slog.Any("error", err))
		http.Error(w, http.StatusText(http.StatusInternalServerError), http.StatusInternalServerError)
		return
	}
	table := view.Table{Columns: []string{"Role ID", "Role", "Permission", "Permission ID"}}
	for _, grant := range grants {
		table.Rows = append(table.Rows, view.TableRow{
			Cells: []string{tablemaint.ItoA(grant.RoleID), grant.RoleName, grant.PermissionName, tablemaint.ItoA(grant.PermissionID)},
		})
	}
	h.kit.Render(w, r, "simple_table.html", "RolePermissions", sidebar(), table, http.StatusOK)
}

// pairForm reads and checks the submitted role and permission against the
// offered choices. errs is non-nil when the form must be shown again.
func (h *Handler) pairForm(r *http.Request, choices Choices) (roleID, permissionID int64, errs map[string]string) {
	roleID, _ = tablemaint.FormInt(r, "role_id")
	permissionID, _ = tablemaint.FormInt(r, "permission_id")
	if r.Method != http.MethodPost {
		return roleID, permissionID, nil
	}
	errs = map[string]string{}
	if !hasChoice(choices.Roles, roleID) {
		errs["role_id"] = "Not a valid choice."
	}
	if !hasChoice(choices.Permissions, permissionID) {
		errs["permission_id"] = "Not a valid choice."
	}
	if len(errs) == 0 {
		errs = nil
	}
	return roleID, permissionID, errs
}

func (h *Handler) create(w http.ResponseWriter, r *http.Request) {
	choices, err := h.service.Choices(r.Context())
	if err != nil {
		h.kit.Logger.Error("load role permission choices failed", slog.Any("error", err))
		http.Error(w, http.StatusText(http.StatusInternalServerError), http.StatusInternalServerError)
		return
	}
	roleID, permissionID, errs := h.pairForm(r, choices)
	if r.Method == http.MethodPost && errs == nil {
		grant, err := h.service.Assign(r.Context(), roleID, permissionID)
		if err != nil {
			h.kit.Logger.Warn("create role permission failed", slog.Int64("role_id", roleID), slog.Int64("permission_id", permissionID), slog.Any("error", err))
			h.kit.RedirectWithFlash(w, r, prefix+"/index", shared.FlashError, tablemaint.NotSavedMessage("RolePermission", "created", err))
			return
		}
		h.kit.Record(r, "create", "role_permission", fmt.Sprintf("%d:%d", roleID, permissionID), map[string]any{"role": grant.RoleName, "permission": grant.PermissionName})
		h.kit.RedirectWithFlash(w, r, prefix+"/index", shared.FlashSuccess,
			fmt.Sprintf("Successfully added permission %s to role %s", grant.PermissionName, grant.RoleName))
		return
	}
	h.renderForm(w, r, "Add New RolePermission", "/create", "", choices, roleID, permissionID, errs)
}

func (h *Handler) delete(w http.ResponseWriter, r *http.Request) {
	choices, err := h.service.Choices(r.Context())
	if err != nil {
		h.kit.Logger.Error("load role permission choices failed", slog.Any("error", err))
		http.Error(w, http.StatusText(http.StatusInternalServerError), http.StatusInternalServerError)
		return
	}
	roleID, permissionID, errs := h.pairForm(r, choices)
	if r.Method == http.MethodPost && errs == nil {
		h.revoke(w, r, roleID, permissionID)
		return
	}
	h.renderForm(w, r, "Delete RolePermission", "/delete", "Delete", choices, roleID, permissionID, errs)
}

func (h *Handler) revoke(w http.ResponseWriter, r *http.Request, roleID, permissionID int64) {
	_, err := h.service.Revoke(r.Context(), roleID, permissionID)
	switch {
	case err == nil:
		h.kit.Record(r, "delete", "role_permission", fmt.Sprintf("%d:%d", roleID, permissionID), nil)
		h.kit.RedirectWithFlash(w, r, prefix+"/index", shared.FlashSuccess,
			fmt.Sprintf("Successfully deleted RolePermission with role ID %d and permission ID %d", roleID, permissionID))
	case errors.Is(err, shared.ErrProtected):
		h.kit.RedirectWithFlash(w, r, prefix+"/index", shared.FlashWarning,
			fmt.Sprintf("RolePermission [%d, %d] is protected.", roleID, permissionID))
	case errors.Is(err, shared.ErrNotFound):
		h.kit.RedirectWithFlash(w, r, prefix+"/index", shared.FlashError,
			fmt.Sprintf("The RolePermission with role ID %d and permission ID %d does not exist", roleID, permissionID))
	default:
		h.kit.Logger.Error("delete role permission failed", slog.Int64("role_id", roleID), slog.Int64("permission_id", permissionID), slog.Any("error", err))
		h.kit.RedirectWithFlash(w, r, prefix+"/index", shared.FlashError, tablemaint.DeleteFailedMessage)
	}
}

func (h *Handler) renderForm(w http.ResponseWriter, r *http.Request, title, action, submit string, choices Choices, roleID, permissionID int64, errs map[string]string) {
	status := http.StatusOK
	if errs != nil {
		status = http.StatusUnprocessableEntity
	}
	form := view.Form{
		Action:      prefix + action,
		SubmitLabel: submit,
		Fields: []view.Field{
			{Name: "role_id", Label: "Role", Kind: view.FieldSelect, Options: tablemaint.SelectOptions(choices.Roles, roleID)},
			{Name: "permission_id", Label: "Permission", Kind: view.FieldSelect, Options: tablemaint.SelectOptions(choices.Permissions, permissionID)},
		},
		Errors: errs,
	}
	h.kit.Render(w, r, "simple_form.html", title, sidebar(), form, status)
}
