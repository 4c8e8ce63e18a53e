package userroles

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

const prefix = tablemaint.BasePath + "/user_role"

// Handler manages user role assignment endpoints.
type Handler struct {
	kit     *tablemaint.Kit
	service *Service
}

// NewHandler builds Handler instance.
func NewHandler(kit *tablemaint.Kit, service *Service) *Handler {
	return &Handler{kit: kit, service: service}
}

// MountRoutes registers user role routes.
func (h *Handler) MountRoutes(r chi.Router) {
	guard := h.kit.Guard
	r.Group(func(r chi.Router) {
		r.Use(guard.RequirePermission(shared.PermAdminReadOnly, rbac.HandlerName("user_role.index")))
		r.Get("/", h.index)
		r.Get("/index", h.index)
	})
	r.Group(func(r chi.Router) {
		r.Use(guard.RequirePermission(shared.PermAdmin, rbac.HandlerName("user_role.create")))
		r.Get("/create", h.create)
		r.Post("/create", h.create)
	})
	r.Group(func(r chi.Router) {
		r.Use(guard.RequirePermission(shared.PermAdmin, rbac.HandlerName("user_role.delete")))
		r.Get("/delete", h.delete)
		r.Post("/delete", h.delete)
	})
}

func sidebar() []view.SidebarSection {
	return tablemaint.Sidebar("User-Role", prefix, false)
}

func (h *Handler) index(w http.ResponseWriter, r *http.Request) {
	assignments, err := h.service.List(r.Context())
	if err != nil {
		h.kit.Logger.Error("list user roles failed", slog.Any("error", err))
		http.Error(w, http.StatusText(http.StatusInternalServerError), http.StatusInternalServerError)
		return
	}
	table := view.Table{Columns: []string{"User ID", "User", "Role", "Role ID"}}
	for _, ur := range assignments {
		table.Rows = append(table.Rows, view.TableRow{
			Cells: []string{tablemaint.ItoA(ur.UserID), ur.UserName, ur.RoleName, tablemaint.ItoA(ur.RoleID)},
		})
	}
	h.kit.Render(w, r, "simple_table.html", "UserRoles", sidebar(), table, http.StatusOK)
}

// pairForm reads and checks the submitted user and role against the offered
// choices. errs is non-nil when the form must be shown again.
func (h *Handler) pairForm(r *http.Request, choices Choices) (userID, roleID int64, errs map[string]string) {
	userID, _ = tablemaint.FormInt(r, "user_id")
	roleID, _ = tablemaint.FormInt(r, "role_id")
	if r.Method != http.MethodPost {
		return userID, roleID, nil
	}
	errs = map[string]string{}
	if !hasChoice(choices.Users, userID) {
		errs["user_id"] = "Not a valid choice."
	}
	if !hasChoice(choices.Roles, roleID) {
		errs["role_id"] = "Not a valid choice."
	}
	if len(errs) == 0 {
		errs = nil
	}
	return userID, roleID, errs
}

func (h *Handler) create(w http.ResponseWriter, r *http.Request) {
	choices, err := h.service.Choices(r.Context())
	if err != nil {
		h.kit.Logger.Error("load user role choices failed", slog.Any("error", err))
		http.Error(w, http.StatusText(http.StatusInternalServerError), http.StatusInternalServerError)
		return
	}
	userID, roleID, errs := h.pairForm(r, choices)
	if r.Method == http.MethodPost && errs == nil {
		ur, err := h.service.Assign(r.Context(), userID, roleID)
		if err != nil {
			h.kit.Logger.Warn("create user role failed", slog.Int64("user_id", userID), slog.Int64("role_id", roleID), slog.Any("error", err))
			h.kit.RedirectWithFlash(w, r, prefix+"/index", shared.FlashError, tablemaint.NotSavedMessage("UserRole", "created", err))
			return
		}
		h.kit.Record(r, "create", "user_role", fmt.Sprintf("%d:%d", userID, roleID), map[string]any{"user": ur.UserName, "role": ur.RoleName})
		h.kit.RedirectWithFlash(w, r, prefix+"/index", shared.FlashSuccess,
			fmt.Sprintf("Successfully added role %s to user %s", ur.RoleName, ur.UserName))
		return
	}
	h.renderForm(w, r, "Add New UserRole", "/create", "", choices, userID, roleID, errs)
}

func (h *Handler) delete(w http.ResponseWriter, r *http.Request) {
	choices, err := h.service.Choices(r.Context())
	if err != nil {
		h.kit.Logger.Error("load user role choices failed", slog.Any("error", err))
		http.Error(w, http.StatusText(http.StatusInternalServerError), http.StatusInternalServerError)
		return
	}
	userID, roleID, errs := h.pairForm(r, choices)
	if r.Method == http.MethodPost && errs == nil {
		h.revoke(w, r, userID, roleID)
		return
	}
	h.renderForm(w, r, "Delete UserRole", "/delete", "Delete", choices, userID, roleID, errs)
}

func (h *Handler) revoke(w http.ResponseWriter, r *http.Request, userID, roleID int64) {
	_, err := h.service.Revoke(r.Context(), userID, roleID)
	switch {
	case err == nil:
		h.kit.Record(r, "delete", "user_role", fmt.Sprintf("%d:%d", userID, roleID), nil)
		h.kit.RedirectWithFlash(w, r, prefix+"/index", shared.FlashSuccess,
			fmt.Sprintf("Successfully deleted UserRole with user ID %d and role ID %d", userID, roleID))
	case errors.Is(err, shared.ErrProtected):
		h.kit.RedirectWithFlash(w, r, prefix+"/index", shared.FlashWarning,
			fmt.Sprintf("UserRole [%d, %d] is protected.", userID, roleID))
	case errors.Is(err, shared.ErrNotFound):
		h.kit.RedirectWithFlash(w, r, prefix+"/index", shared.FlashError,
			fmt.Sprintf("The UserRole with user ID %d and role ID %d does not exist", userID, roleID))
	default:
		h.kit.Logger.Error("delete user role failed", slog.Int64("user_id", userID), slog.Int64("role_id", roleID), slog.Any("error", err))
		h.kit.RedirectWithFlash(w, r, prefix+"/index", shared.FlashError, tablemaint.DeleteFailedMessage)
	}
}

func (h *Handler) renderForm(w http.ResponseWriter, r *http.Request, title, action, submit string, choices Choices, userID, roleID int64, errs map[string]string) {
	status := http.StatusOK
	if errs != nil {
		status = http.StatusUnprocessableEntity
	}
	form := view.Form{
		Action:      prefix + action,
		SubmitLabel: submit,
		Fields: []view.Field{
			{Name: "user_id", Label: "User", Kind: view.FieldSelect, Options: tablemaint.SelectOptions(choices.Users, userID)},
			{Name: "role_id", Label: "Role", Kind: view.FieldSelect, Options: tablemaint.SelectOptions(choices.Roles, roleID)},
		},
		Errors: errs,
	}
	h.kit.Render(w, r, "simple_form.html", title, sidebar(), form, status)
}
