package users

import (
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/odyssey-erp/accessdesk/internal/platform/httpx"
	"github.com/odyssey-erp/accessdesk/internal/rbac"
	"github.com/odyssey-erp/accessdesk/internal/shared"
	"github.com/odyssey-erp/accessdesk/internal/tablemaint"
	"github.com/odyssey-erp/accessdesk/internal/view"
)

const prefix = tablemaint.BasePath + "/user"

// Handler manages user maintenance endpoints.
type Handler struct {
	kit           *tablemaint.Kit
	service       *Service
	trustedQueues []string
}

// NewHandler builds Handler instance. trustedQueues may call the expired
// users report without an identity.
func NewHandler(kit *tablemaint.Kit, service *Service, trustedQueues []string) *Handler {
	return &Handler{kit: kit, service: service, trustedQueues: trustedQueues}
}

// MountRoutes registers user routes.
func (h *Handler) MountRoutes(r chi.Router) {
	guard := h.kit.Guard
	r.Group(func(r chi.Router) {
		r.Use(guard.RequirePermission(shared.PermAdminReadOnly, rbac.HandlerName("user.index")))
		r.Get("/", h.index)
		r.Get("/index", h.index)
	})
	r.Group(func(r chi.Router) {
		r.Use(guard.RequirePermission(shared.PermAdminReadOnly,
			rbac.HandlerName("user.expired"),
			rbac.AllowCronJob(),
			rbac.AllowTaskQueues(h.trustedQueues...),
			rbac.RespondJSON()))
		r.Get("/expired", h.expired)
	})
	r.Group(func(r chi.Router) {
		r.Use(guard.RequirePermission(shared.PermAdmin, rbac.HandlerName("user.create")))
		r.Get("/create", h.create)
		r.Post("/create", h.create)
	})
	r.Group(func(r chi.Router) {
		r.Use(guard.RequirePermission(shared.PermAdmin, rbac.HandlerName("user.edit")))
		r.HandleFunc("/edit", h.editMissingID)
		r.HandleFunc("/edit/", h.editMissingID)
		r.Get("/edit/{id}", h.edit)
		r.Post("/edit/{id}", h.edit)
	})
	r.Group(func(r chi.Router) {
		r.Use(guard.RequirePermission(shared.PermAdmin, rbac.HandlerName("user.delete")))
		r.Get("/delete", h.delete)
		r.Post("/delete", h.delete)
	})
}

func sidebar() []view.SidebarSection {
	return tablemaint.Sidebar("User", prefix, true)
}

func (h *Handler) index(w http.ResponseWriter, r *http.Request) {
	users, err := h.service.List(r.Context())
	if err != nil {
		h.kit.Logger.Error("list users failed", slog.Any("error", err))
		http.Error(w, http.StatusText(http.StatusInternalServerError), http.StatusInternalServerError)
		return
	}
	table := view.Table{Columns: []string{"User ID", "First name", "Last name", "E-mail", "Birthday", "Valid Until", ""}}
	now := h.service.now()
	for _, u := range users {
		validUntil := formatDate(u.ValidUntil)
		if u.Expired(now) {
			validUntil += " (expired)"
		}
		table.Rows = append(table.Rows, view.TableRow{
			Cells:   []string{tablemaint.ItoA(u.ID), u.FirstName, u.LastName, u.Email, formatDate(&u.Birthday), validUntil},
			EditURL: fmt.Sprintf("%s/edit/%d", prefix, u.ID),
		})
	}
	h.kit.Render(w, r, "simple_table.html", "Users", sidebar(), table, http.StatusOK)
}

type expiredUser struct {
	ID         int64     `json:"id"`
	Email      string    `json:"email"`
	Name       string    `json:"name"`
	ValidUntil time.Time `json:"valid_until"`
}

func (h *Handler) expired(w http.ResponseWriter, r *http.Request) {
	users, err := h.service.ListExpired(r.Context())
	if err != nil {
		h.kit.Logger.Error("list expired users failed", slog.Any("error", err))
		httpx.RespondError(w, err)
		return
	}
	out := make([]expiredUser, 0, len(users))
	for _, u := range users {
		out = append(out, expiredUser{ID: u.ID, Email: u.Email, Name: u.FullName(), ValidUntil: *u.ValidUntil})
	}
	httpx.JSON(w, http.StatusOK, map[string]any{"users": out})
}

func (h *Handler) create(w http.ResponseWriter, r *http.Request) {
	in := Input{ValidUntil: time.Now().Format(dateLayout), Birthday: DefaultBirthday.Format(dateLayout)}
	var errs map[string]string
	if r.Method == http.MethodPost {
		in = readInput(r)
		if errs = h.kit.Forms.Check(in); errs == nil {
			user, err := h.service.Create(r.Context(), in)
			if err != nil {
				h.kit.Logger.Warn("create user failed", slog.String("email", in.Email), slog.Any("error", err))
				h.kit.RedirectWithFlash(w, r, prefix+"/index", shared.FlashError, tablemaint.NotSavedMessage("User", "created", err))
				return
			}
			h.kit.Record(r, "create", "user", tablemaint.ItoA(user.ID), map[string]any{"email": user.Email})
			h.kit.RedirectWithFlash(w, r, prefix+"/index", shared.FlashSuccess,
				fmt.Sprintf("Successfully created user %s with ID %d", user.FirstName, user.ID))
			return
		}
	}
	h.renderForm(w, r, "Add New User", prefix+"/create", "", in, errs)
}

func (h *Handler) editMissingID(w http.ResponseWriter, r *http.Request) {
	h.kit.RedirectWithFlash(w, r, prefix+"/create", shared.FlashInfo,
		`Please select a user to edit by adding their ID: /user/edit/"user_id"`)
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
			h.kit.Logger.Error("load user failed", slog.Int64("id", id), slog.Any("error", err))
		}
		h.kit.RedirectWithFlash(w, r, prefix+"/create", shared.FlashError,
			fmt.Sprintf("The user with ID %d does not exist", id))
		return
	}

	in := InputFromUser(current)
	var errs map[string]string
	if r.Method == http.MethodPost {
		in = readInput(r)
		if errs = h.kit.Forms.Check(in); errs == nil {
			user, err := h.service.Update(r.Context(), id, in)
			if err != nil {
				h.kit.Logger.Warn("update user failed", slog.Int64("id", id), slog.Any("error", err))
				h.kit.RedirectWithFlash(w, r, prefix+"/index", shared.FlashError, tablemaint.NotSavedMessage("User", "updated", err))
				return
			}
			h.kit.Record(r, "update", "user", tablemaint.ItoA(user.ID), map[string]any{"email": user.Email})
			h.kit.RedirectWithFlash(w, r, prefix+"/index", shared.FlashSuccess,
				fmt.Sprintf("Successfully updated user %s with ID %d", user.FirstName, user.ID))
			return
		}
	}
	h.renderForm(w, r, "Edit User", fmt.Sprintf("%s/edit/%d", prefix, id), tablemaint.ItoA(id), in, errs)
}

func (h *Handler) delete(w http.ResponseWriter, r *http.Request) {
	if r.Method == http.MethodPost {
		id, ok := tablemaint.FormInt(r, "user_id")
		if ok {
			h.deleteUser(w, r, id)
			return
		}
	}
	choices, err := h.service.DeleteChoices(r.Context())
	if err != nil {
		h.kit.Logger.Error("list users failed", slog.Any("error", err))
		http.Error(w, http.StatusText(http.StatusInternalServerError), http.StatusInternalServerError)
		return
	}
	options := make([]view.Option, 0, len(choices))
	for _, u := range choices {
		options = append(options, view.Option{Value: tablemaint.ItoA(u.ID), Label: u.Email})
	}
	form := view.Form{
		Action:      prefix + "/delete",
		SubmitLabel: "Delete",
		Fields:      []view.Field{{Name: "user_id", Label: "User", Kind: view.FieldSelect, Options: options}},
	}
	if r.Method == http.MethodPost {
		form.Errors = map[string]string{"user_id": "Not a valid choice."}
	}
	h.kit.Render(w, r, "simple_form.html", "Delete User", sidebar(), form, http.StatusOK)
}

func (h *Handler) deleteUser(w http.ResponseWriter, r *http.Request, id int64) {
	user, err := h.service.Delete(r.Context(), id)
	switch {
	case err == nil:
		h.kit.Record(r, "delete", "user", tablemaint.ItoA(user.ID), map[string]any{"email": user.Email})
		h.kit.RedirectWithFlash(w, r, prefix+"/index", shared.FlashSuccess,
			fmt.Sprintf("Successfully deleted user %s with ID %d", user.FirstName, user.ID))
	case errors.Is(err, shared.ErrProtected):
		h.kit.RedirectWithFlash(w, r, prefix+"/index", shared.FlashWarning,
			fmt.Sprintf("User with ID %d is protected.", id))
	case errors.Is(err, shared.ErrNotFound):
		h.kit.RedirectWithFlash(w, r, prefix+"/index", shared.FlashError,
			fmt.Sprintf("The user with ID %d does not exist", id))
	default:
		h.kit.Logger.Error("delete user failed", slog.Int64("id", id), slog.Any("error", err))
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
	fields = append(fields,
		view.Field{Name: "first_name", Label: "First Name", Kind: view.FieldText, Value: in.FirstName},
		view.Field{Name: "last_name", Label: "Last Name", Kind: view.FieldText, Value: in.LastName},
		view.Field{Name: "email", Label: "Email", Kind: view.FieldEmail, Value: in.Email},
		view.Field{Name: "birthday", Label: "Birthday", Kind: view.FieldDate, Value: in.Birthday},
		view.Field{Name: "valid_until", Label: "Valid Until", Kind: view.FieldDate, Value: in.ValidUntil},
	)
	form := view.Form{Action: action, Fields: fields, Errors: errs}
	h.kit.Render(w, r, "simple_form.html", title, sidebar(), form, status)
}

func readInput(r *http.Request) Input {
	return Input{
		FirstName:  strings.TrimSpace(r.PostFormValue("first_name")),
		LastName:   strings.TrimSpace(r.PostFormValue("last_name")),
		Email:      strings.TrimSpace(r.PostFormValue("email")),
		Birthday:   strings.TrimSpace(r.PostFormValue("birthday")),
		ValidUntil: strings.TrimSpace(r.PostFormValue("valid_until")),
	}
}

func formatDate(t *time.Time) string {
	if t == nil || t.IsZero() {
		return ""
	}
	return t.Format(dateLayout)
}
