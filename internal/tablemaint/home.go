package tablemaint

import (
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/odyssey-erp/accessdesk/internal/rbac"
	"github.com/odyssey-erp/accessdesk/internal/shared"
)

// Mounter registers routes on a sub-router.
type Mounter interface {
	MountRoutes(r chi.Router)
}

// Handler serves the table maintenance landing page and mounts the tables.
type Handler struct {
	kit    *Kit
	tables map[string]Mounter
}

// NewHandler builds a Handler. tables maps a path segment, such as "user",
// to the handler serving it.
func NewHandler(kit *Kit, tables map[string]Mounter) *Handler {
	return &Handler{kit: kit, tables: tables}
}

// MountRoutes registers the landing page and every table under r.
func (h *Handler) MountRoutes(r chi.Router) {
	r.With(h.kit.Guard.RequirePermission(shared.PermAdmin, rbac.HandlerName("home"))).Get("/", h.home)
	for segment, table := range h.tables {
		r.Route("/"+segment, table.MountRoutes)
	}
}

func (h *Handler) home(w http.ResponseWriter, r *http.Request) {
	h.kit.Render(w, r, "topic_home.html", "Table Maintenance", HomeSidebar(), TableLinks(), http.StatusOK)
}
