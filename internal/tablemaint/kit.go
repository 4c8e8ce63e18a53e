// Package tablemaint holds the table maintenance screens: the landing page
// and the helpers shared by the per-table subpackages.
package tablemaint

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strconv"
	"strings"

	"github.com/go-chi/chi/v5"

	"github.com/odyssey-erp/accessdesk/internal/rbac"
	"github.com/odyssey-erp/accessdesk/internal/shared"
	"github.com/odyssey-erp/accessdesk/internal/view"
)

// BasePath prefixes every table maintenance route.
const BasePath = "/table_maintenance"

// Renderer renders a named page.
type Renderer interface {
	Render(w http.ResponseWriter, name string, data view.TemplateData) error
}

// AuditRecorder persists mutation records.
type AuditRecorder interface {
	Record(ctx context.Context, log shared.AuditLog) error
}

// Kit bundles what every table handler needs.
type Kit struct {
	Logger    *slog.Logger
	Templates Renderer
	CSRF      *shared.CSRFManager
	Guard     rbac.Guard
	Audit     AuditRecorder
	Forms     *Forms
}

// Render writes a page with the session's CSRF token and pending flashes.
func (k *Kit) Render(w http.ResponseWriter, r *http.Request, page, title string, sidebar []view.SidebarSection, data any, status int) {
	sess := shared.SessionFromContext(r.Context())
	var csrfToken string
	var flashes []shared.FlashMessage
	if sess != nil {
		csrfToken, _ = k.CSRF.EnsureToken(r.Context(), sess)
		flashes = sess.PopFlashes()
	}
	viewData := view.TemplateData{
		Title:       title,
		CSRFToken:   csrfToken,
		Flashes:     flashes,
		CurrentPath: r.URL.Path,
		Sidebar:     sidebar,
		Data:        data,
	}
	w.WriteHeader(status)
	if err := k.Templates.Render(w, page, viewData); err != nil {
		k.Logger.Error("render template", slog.String("page", page), slog.Any("error", err))
	}
}

// RedirectWithFlash queues message and redirects with 302.
func (k *Kit) RedirectWithFlash(w http.ResponseWriter, r *http.Request, location, kind, message string) {
	if sess := shared.SessionFromContext(r.Context()); sess != nil {
		sess.AddFlash(shared.FlashMessage{Kind: kind, Message: message})
	}
	http.Redirect(w, r, location, http.StatusFound)
}

// Record writes an audit entry; failures are logged, never surfaced.
func (k *Kit) Record(r *http.Request, action, entity, entityID string, meta map[string]any) {
	if k.Audit == nil {
		return
	}
	entry := shared.AuditLog{
		Actor:    shared.PrincipalFromContext(r.Context()),
		Action:   action,
		Entity:   entity,
		EntityID: entityID,
		Meta:     meta,
	}
	if err := k.Audit.Record(r.Context(), entry); err != nil {
		k.Logger.Warn("audit record failed", slog.String("entity", entity), slog.String("action", action), slog.Any("error", err))
	}
}

// ParseID reads a positive integer URL parameter.
func ParseID(r *http.Request, name string) (int64, bool) {
	raw := strings.TrimSpace(chi.URLParam(r, name))
	if raw == "" {
		return 0, false
	}
	id, err := strconv.ParseInt(raw, 10, 64)
	if err != nil || id <= 0 {
		return 0, false
	}
	return id, true
}

// FormInt reads a positive integer form value.
func FormInt(r *http.Request, name string) (int64, bool) {
	id, err := strconv.ParseInt(strings.TrimSpace(r.PostFormValue(name)), 10, 64)
	if err != nil || id <= 0 {
		return 0, false
	}
	return id, true
}

// ItoA formats an id for templates and messages.
func ItoA(id int64) string {
	return strconv.FormatInt(id, 10)
}

// TableLinks lists the five maintained tables.
func TableLinks() []view.Link {
	return []view.Link{
		{Label: "User", Href: BasePath + "/user", Icon: "fa-user"},
		{Label: "User-Role", Href: BasePath + "/user_role", Icon: "fa-users"},
		{Label: "Role", Href: BasePath + "/role", Icon: "fa-id-badge"},
		{Label: "Role-Permission", Href: BasePath + "/role_permission", Icon: "fa-tags"},
		{Label: "Permission", Href: BasePath + "/permission", Icon: "fa-shield"},
	}
}

// Sidebar returns the table list followed by the actions of one table.
func Sidebar(title, prefix string, withEdit bool) []view.SidebarSection {
	actions := []view.Link{
		{Label: "Index", Href: prefix},
		{Label: "Add", Href: prefix + "/create"},
	}
	if withEdit {
		actions = append(actions, view.Link{Label: "Edit", Href: prefix + "/edit"})
	}
	actions = append(actions, view.Link{Label: "Delete", Href: prefix + "/delete"})
	return []view.SidebarSection{
		{Title: "Table Maintenance", Links: TableLinks()},
		{Title: title, Links: actions},
	}
}

// HomeSidebar lists the actions of every table.
func HomeSidebar() []view.SidebarSection {
	var sections []view.SidebarSection
	for _, link := range TableLinks() {
		withEdit := !strings.Contains(link.Label, "-")
		sections = append(sections, Sidebar(link.Label, link.Href, withEdit)[1])
	}
	return sections
}

// NotSavedMessage explains a failed create or update of entity.
func NotSavedMessage(entity, verb string, err error) string {
	if errors.Is(err, shared.ErrUnavailable) {
		return fmt.Sprintf("%s not %s: Database error, please retry", entity, verb)
	}
	return fmt.Sprintf("%s not %s: It is likely it already exists, otherwise check the logs", entity, verb)
}

// DeleteFailedMessage is flashed when a delete could not be committed.
const DeleteFailedMessage = "Database error when deleting, please retry"

// Choice is one entry of an association select field.
type Choice struct {
	ID    int64
	Label string
}

// SelectOptions converts choices into select options, marking selected.
func SelectOptions(choices []Choice, selected int64) []view.Option {
	options := make([]view.Option, 0, len(choices))
	for _, c := range choices {
		options = append(options, view.Option{Value: ItoA(c.ID), Label: c.Label, Selected: c.ID == selected})
	}
	return options
}
