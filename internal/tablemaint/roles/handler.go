package roles

import (
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"

	"github.com/odyssey-erp/accessdesk/internal/rbac"
	"github.com/odyssey-erp/accessdesk/internal/shared"
	"github.com/odyssey-erp/accessdesk/internal/tablemaint"
	"github.com/odyssey-erp/accessdesk/internal/view"
)

const prefix = tablemaint.BasePath + "/role"

// Handler manages role maintenance endpoints.
type Handler struct {
	kit     *tablemaint.Kit
	service *Service
}

// NewHandler builds Handler instance.
func NewHandler(kit *tablemaint.Kit, service *Service) *Handler {
	return &Handler{kit: kit, service: service}
}

// MountRoutes registers role routes.
func (h *Handler) MountRoutes(r chi.Router) {
	guard := h.kit.Guard
	r.Group(func(r chi.Router) {
		r.Use(guard.RequirePermission(shared.PermAdminReadOnly, rbac.HandlerName("role.index")))
		r.Get("/", h.index)
		r.Get("/index", h.index)
	})
	r.Group(func(r chi.Router) {
		r.Use(guard.RequirePermission(shared.PermAdmin, rbac.HandlerName("role.create")))
		r.Get("/create", h.create)
		r.Post("/create", h.create)
	})
	r.Group(func(r chi.Router) {
		r.Use(guard.RequirePermission(shared.PermAdmin, rbac.HandlerName("role.edit")))
		r.HandleFunc("/edit", h.editMissingID)
		r.HandleFunc("/edit/", h.editMissingID)
		r.Get("/edit/{id}", h.edit)
		r.Post("/edit/{id}", h.edit)
	})
	r.Group(func(r chi.Router) {
		r.Use(guard.RequirePermission(shared.PermAdmin, rbac.HandlerName("role.delete")))
		r.Get("/delete", h.delete)
		r.Post("/delete", h.delete)
	})
}

func sidebar() []view.SidebarSection {
	return tablemaint.Sidebar("Role", prefix, true)
}

func (h *Handler) index(w http.ResponseWriter, r *http.Request) {
	roles, err := h.service.List(r.Context())
	if err != nil {
		h.kit.Logger.Error("list roles failed", slog.Any("error", err))
		http.Error(w, http.StatusText(http.StatusInternalServerError), http.StatusInternalServerError)
		return
	}
	table := view.Table{Columns: []string{"ID", "Name", ""}}
	for _, role := range roles {
		table.Rows = append(table.Rows, view.TableRow{
			Cells:   []string{tablemaint.ItoA(role.ID), role.Name},
			EditURL: fmt.Sprintf("%s/edit/%d", prefix, role.ID),
		})
	}
	h.kit.Render(w, r, "simple_table.html", "Roles", sidebar(), table, http.StatusOK)
}

func (h *Handler) create(w http.ResponseWriter, r *http.Request) {
	var in Input
	var errs map[string]string
	if r.Method == http.MethodPost {
		in = Input{Name: strings.TrimSpace(r.PostFormValue("name"))}
		if errs = h.kit.Forms.Check(in); errs == nil {
			role, err := h.service.Create(r.Context(), in)
			if err != nil {
				h.kit.Logger.Warn("create role failed", slog.String("name", in.Name), slog.Any("error", err))
				h.kit.RedirectWithFlash(w, r, prefix+"/index", shared.FlashError, tablemaint.NotSavedMessage("Role", "created", err))
				return
			}
			h.kit.Record(r, "create", "role", tablemaint.ItoA(role.ID), map[string]any{"name": role.Name})
			h.kit.RedirectWithFlash(w, r, prefix+"/index", shared.FlashSuccess,
				fmt.Sprintf("Successfully created role %s with ID %d", role.Name, role.ID))
			return
		}
	}
	h.renderForm(w, r, "Add New Role", prefix+"/create", "", in, errs)
}

func (h *Handler) editMissingID(w http.ResponseWriter, r *http.Request) {
	h.kit.RedirectWithFlash(w, r, prefix+"/create", shared.FlashInfo,
		`Please select a role to edit by adding their ID: /role/edit/"role_id"`)
}

func (h *Handler) edit(w http.ResponseWriter, r *http.Request) {
	id, ok := tablemaint.ParseID(r, "id")
	if !ok {
		h.editMissingID(w, r)
		return
	}
	current, err := h.service.Get(r.Context(), id)
	if err != nil {
		if !errors.Is(err, shared.ErrNotFound) {
			h.kit.Logger.Error("load role failed", slog.Int64("id", id), slog.Any("error", err))
		}
		h.kit.RedirectWithFlash(w, r, prefix+"/create", shared.FlashError,
			fmt.Sprintf("The role with ID %d does not exist", id))
		return
	}

	in := Input{Name: current.Name}
	var errs map[string]string
	if r.Method == http.MethodPost {
		in = Input{Name: strings.TrimSpace(r.PostFormValue("name"))}
		if errs = h.kit.Forms.Check(in); errs == nil {
			role, err := h.service.Rename(r.Context(), id, in)
			if err != nil {
				h.kit.Logger.Warn("update role failed", slog.Int64("id", id), slog.Any("error", err))
				h.kit.RedirectWithFlash(w, r, prefix+"/index", shared.FlashError, tablemaint.NotSavedMessage("Role", "updated", err))
				return
			}
			h.kit.Record(r, "update", "role", tablemaint.ItoA(role.ID), map[string]any{"name": role.Name, "previous": current.Name})
			h.kit.RedirectWithFlash(w, r, prefix+"/index", shared.FlashSuccess,
				fmt.Sprintf("Successfully updated role %s with ID %d", role.Name, role.ID))
			return
		}
	}
	h.renderForm(w, r, "Edit Role", fmt.Sprintf("%s/edit/%d", prefix, id), tablemaint.ItoA(id), in, errs)
}

func (h *Handler) delete(w http.ResponseWriter, r *http.Request) {
	if r.Method == http.MethodPost {
		if id, ok := tablemaint.FormInt(r, "role_id"); ok {
			h.deleteRole(w, r, id)
			return
		}
	}
	choices, err := h.service.DeleteChoices(r.Context())
	if err != nil {
		h.kit.Logger.Error("list roles failed", slog.Any("error", err))
		http.Error(w, http.StatusText(http.StatusInternalServerError), http.StatusInternalServerError)
		return
	}
	options := make([]view.Option, 0, len(choices))
	for _, role := range choices {
		options = append(options, view.Option{Value: tablemaint.ItoA(role.ID), Label: role.Name})
	}
	form := view.Form{
		Action:      prefix + "/delete",
		SubmitLabel: "Delete",
		Fields:      []view.Field{{Name: "role_id", Label: "Role", Kind: view.FieldSelect, Options: options}},
	}
	if r.Method == http.MethodPost {
		form.Errors = map[string]string{"role_id": "Not a valid choice."}
	}
	h.kit.Render(w, r, "simple_form.html", "Delete Role", sidebar(), form, http.StatusOK)
}

func (h *Handler) deleteRole(w http.ResponseWriter, r *http.Request, id int64) {
	role, err := h.service.Delete(r.Context(), id)
	switch {
	case err == nil:
		h.kit.Record(r, "delete", "role", tablemaint.ItoA(role.ID), map[string]any{"name": role.Name})
		h.kit.RedirectWithFlash(w, r, prefix+"/index", shared.FlashSuccess,
			fmt.Sprintf("Successfully deleted role %s with ID %d", role.Name, role.ID))
	case errors.Is(err, shared.ErrProtected):
		h.kit.RedirectWithFlash(w, r, prefix+"/index", shared.FlashWarning,
			fmt.Sprintf("Role with ID %d is protected.", id))
	case errors.Is(err, shared.ErrNotFound):
		h.kit.RedirectWithFlash(w, r, prefix+"/index", shared.FlashError,
			fmt.Sprintf("The role with ID %d does not exist", id))
	default:
		h.kit.Logger.Error("delete role failed", slog.Int64("id", id), slog.Any("error", err))
		h.kit.RedirectWithFlash(w, r, prefix+"/index", shared.FlashError, tablemaint.DeleteFailedMessage)
	}
}

func (h *Handler) renderForm(w http.ResponseWriter, r *http.Request, title, action, id string, in Input, errs map[string]string) {
	status := http.StatusOK
	if errs != nil {
		status = http.StatusUnprocessableEntity
	}
	var fields []view.Field
	if id != "" {
		fields = append(fields, view.Field{Name: "id", Label: "ID", Kind: view.FieldText, Value: id, ReadOnly: true})
	}
	fields = append(fields, view.Field{Name: "name", Label: "Name", Kind: view.FieldText, Value: in.Name})
	h.kit.Render(w, r, "simple_form.html", title, sidebar(), view.Form{Action: action, Fields: fields, Errors: errs}, status)
}
