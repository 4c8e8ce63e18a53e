package permissions

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

const prefix = tablemaint.BasePath + "/permission"

// Handler manages permission maintenance endpoints.
type Handler struct {
	kit     *tablemaint.Kit
	service *Service
}

// NewHandler builds Handler instance.
func NewHandler(kit *tablemaint.Kit, service *Service) *Handler {
	return &Handler{kit: kit, service: service}
}

// MountRoutes registers permission routes.
func (h *Handler) MountRoutes(r chi.Router) {
	guard := h.kit.Guard
	r.Group(func(r chi.Router) {
		r.Use(guard.RequirePermission(shared.PermAdminReadOnly, rbac.HandlerName("permission.index")))
		r.Get("/", h.index)
		r.Get("/index", h.index)
	})
	r.Group(func(r chi.Router) {
		r.Use(guard.RequirePermission(shared.PermAdmin, rbac.HandlerName("permission.create")))
		r.Get("/create", h.create)
		r.Post("/create", h.create)
	})
	r.Group(func(r chi.Router) {
		r.Use(guard.RequirePermission(shared.PermAdmin, rbac.HandlerName("permission.edit")))
		r.HandleFunc("/edit", h.editMissingID)
		r.HandleFunc("/edit/", h.editMissingID)
		r.Get("/edit/{id}", h.edit)
		r.Post("/edit/{id}", h.edit)
	})
	r.Group(func(r chi.Router) {
		r.Use(guard.RequirePermission(shared.PermAdmin, rbac.HandlerName("permission.delete")))
		r.Get("/delete", h.delete)
		r.Post("/delete", h.delete)
	})
}

func sidebar() []view.SidebarSection {
	return tablemaint.Sidebar("Permission", prefix, true)
}

func (h *Handler) index(w http.ResponseWriter, r *http.Request) {
	permissions, err := h.service.List(r.Context())
	if err != nil {
		h.kit.Logger.Error("list permissions failed", slog.Any("error", err))
		http.Error(w, http.StatusText(http.StatusInternalServerError), http.StatusInternalServerError)
		return
	}
	table := view.Table{Columns: []string{"ID", "Name", ""}}
	for _, permission := range permissions {
		table.Rows = append(table.Rows, view.TableRow{
			Cells:   []string{tablemaint.ItoA(permission.ID), permission.Name},
			EditURL: fmt.Sprintf("%s/edit/%d", prefix, permission.ID),
		})
	}
	h.kit.Render(w, r, "simple_table.html", "Permissions", sidebar(), table, http.StatusOK)
}

func (h *Handler) create(w http.ResponseWriter, r *http.Request) {
	var in Input
	var errs map[string]string
	if r.Method == http.MethodPost {
		in = Input{Name: strings.TrimSpace(r.PostFormValue("name"))}
		if errs = h.kit.Forms.Check(in); errs == nil {
			permission, err := h.service.Create(r.Context(), in)
			if err != nil {
				h.kit.Logger.Warn("create permission failed", slog.String("name", in.Name), slog.Any("error", err))
				h.kit.RedirectWithFlash(w, r, prefix+"/index", shared.FlashError, tablemaint.NotSavedMessage("Permission", "created", err))
				return
			}
			h.kit.Record(r, "create", "permission", tablemaint.ItoA(permission.ID), map[string]any{"name": permission.Name})
			h.kit.RedirectWithFlash(w, r, prefix+"/index", shared.FlashSuccess,
				fmt.Sprintf("Successfully created permission %s with ID %d", permission.Name, permission.ID))
			return
		}
	}
	h.renderForm(w, r, "Add New Permission", prefix+"/create", "", in, errs)
}

func (h *Handler) editMissingID(w http.ResponseWriter, r *http.Request) {
	h.kit.RedirectWithFlash(w, r, prefix+"/create", shared.FlashInfo,
		`Please select a permission to edit by adding their ID: /permission/edit/"permission_id"`)
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
			h.kit.Logger.Error("load permission failed", slog.Int64("id", id), slog.Any("error", err))
		}
		h.kit.RedirectWithFlash(w, r, prefix+"/create", shared.FlashError,
			fmt.Sprintf("The permission with ID %d does not exist", id))
		return
	}

	in := Input{Name: current.Name}
	var errs map[string]string
	if r.Method == http.MethodPost {
		in = Input{Name: strings.TrimSpace(r.PostFormValue("name"))}
		if errs = h.kit.Forms.Check(in); errs == nil {
			permission, err := h.service.Rename(r.Context(), id, in)
			if err != nil {
				h.kit.Logger.Warn("update permission failed", slog.Int64("id", id), slog.Any("error", err))
				h.kit.RedirectWithFlash(w, r, prefix+"/index", shared.FlashError, tablemaint.NotSavedMessage("Permission", "updated", err))
				return
			}
			h.kit.Record(r, "update", "permission", tablemaint.ItoA(permission.ID), map[string]any{"name": permission.Name, "previous": current.Name})
			h.kit.RedirectWithFlash(w, r, prefix+"/index", shared.FlashSuccess,
				fmt.Sprintf("Successfully updated permission %s with ID %d", permission.Name, permission.ID))
			return
		}
	}
	h.renderForm(w, r, "Edit Permission", fmt.Sprintf("%s/edit/%d", prefix, id), tablemaint.ItoA(id), in, errs)
}

func (h *Handler) delete(w http.ResponseWriter, r *http.Request) {
	if r.Method == http.MethodPost {
		if id, ok := tablemaint.FormInt(r, "permission_id"); ok {
			h.deletePermission(w, r, id)
			return
		}
	}
	choices, err := h.service.DeleteChoices(r.Context())
	if err != nil {
		h.kit.Logger.Error("list permissions failed", slog.Any("error", err))
		http.Error(w, http.StatusText(http.StatusInternalServerError), http.StatusInternalServerError)
		return
	}
	options := make([]view.Option, 0, len(choices))
	for _, permission := range choices {
		options = append(options, view.Option{Value: tablemaint.ItoA(permission.ID), Label: permission.Name})
	}
	form := view.Form{
		Action:      prefix + "/delete",
		SubmitLabel: "Delete",
		Fields:      []view.Field{{Name: "permission_id", Label: "Permission", Kind: view.FieldSelect, Options: options}},
	}
	if r.Method == http.MethodPost {
		form.Errors = map[string]string{"permission_id": "Not a valid choice."}
	}
	h.kit.Render(w, r, "simple_form.html", "Delete Permission", sidebar(), form, http.StatusOK)
}

func (h *Handler) deletePermission(w http.ResponseWriter, r *http.Request, id int64) {
	permission, err := h.service.Delete(r.Context(), id)
	switch {
	case err == nil:
		h.kit.Record(r, "delete", "permission", tablemaint.ItoA(permission.ID), map[string]any{"name": permission.Name})
		h.kit.RedirectWithFlash(w, r, prefix+"/index", shared.FlashSuccess,
			fmt.Sprintf("Successfully deleted permission %s with ID %d", permission.Name, permission.ID))
	case errors.Is(err, shared.ErrProtected):
		h.kit.RedirectWithFlash(w, r, prefix+"/index", shared.FlashWarning,
			fmt.Sprintf("Permission with ID %d is protected.", id))
	case errors.Is(err, shared.ErrNotFound):
		h.kit.RedirectWithFlash(w, r, prefix+"/index", shared.FlashError,
			fmt.Sprintf("The permission with ID %d does not exist", id))
	default:
		h.kit.Logger.Error("delete permission failed", slog.Int64("id", id), slog.Any("error", err))
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
