package app

import (
	"io/fs"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"

	"github.com/odyssey-erp/accessdesk/internal/observability"
	"github.com/odyssey-erp/accessdesk/internal/rbac"
	"github.com/odyssey-erp/accessdesk/internal/shared"
	"github.com/odyssey-erp/accessdesk/internal/tablemaint"
	"github.com/odyssey-erp/accessdesk/internal/view"
	"github.com/odyssey-erp/accessdesk/jobs"
	"github.com/odyssey-erp/accessdesk/web"
)

// RouterParams groups dependencies for building the HTTP router.
type RouterParams struct {
	Logger            *slog.Logger
	Config            *Config
	Templates         tablemaint.Renderer
	SessionManager    *shared.SessionManager
	CSRFManager       *shared.CSRFManager
	Guard             rbac.Guard
	TableMaintenance  *tablemaint.Handler
	JobHandler        *jobs.Handler
	Metrics           *observability.Metrics
	DisableRequestLog bool
}

// NewRouter constructs the chi.Router with the application defaults.
func NewRouter(params RouterParams) http.Handler {
	r := chi.NewRouter()

	for _, mw := range MiddlewareStack(MiddlewareConfig{
		Logger:         params.Logger,
		Config:         params.Config,
		SessionManager: params.SessionManager,
		CSRFManager:    params.CSRFManager,
		Metrics:        params.Metrics,
	}) {
		r.Use(mw)
	}

	if !params.DisableRequestLog {
		r.Use(chimw.Logger)
	}

	r.Get("/healthz", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte(`{"status":"ok"}`))
	})

	r.With(params.Guard.RequirePermission(shared.PermDefault, rbac.HandlerName("home"))).
		Get("/", func(w http.ResponseWriter, r *http.Request) {
			sess := shared.SessionFromContext(r.Context())
			var csrfToken string
			var flashes []shared.FlashMessage
			if sess != nil {
				csrfToken, _ = params.CSRFManager.EnsureToken(r.Context(), sess)
				flashes = sess.PopFlashes()
			}
			data := view.TemplateData{
				Title:       "Access Desk",
				CSRFToken:   csrfToken,
				Flashes:     flashes,
				CurrentPath: r.URL.Path,
				Data: map[string]any{
					"Principal": shared.PrincipalFromContext(r.Context()),
					"AppEnv":    params.Config.AppEnv,
				},
			}
			if err := params.Templates.Render(w, "home.html", data); err != nil {
				params.Logger.Error("render home", slog.Any("error", err))
				http.Error(w, http.StatusText(http.StatusInternalServerError), http.StatusInternalServerError)
			}
		})

	if params.TableMaintenance != nil {
		r.Route(tablemaint.BasePath, params.TableMaintenance.MountRoutes)
	}
	if params.JobHandler != nil {
		r.Route("/jobs", params.JobHandler.MountRoutes)
	}
	if params.Metrics != nil {
		r.Method(http.MethodGet, "/metrics", params.Metrics.Handler())
	}

	staticFS, err := fs.Sub(web.Static, "static")
	if err != nil {
		params.Logger.Error("create static sub filesystem", slog.Any("error", err))
	} else {
		fileServer := http.StripPrefix("/static/", http.FileServer(http.FS(staticFS)))
		r.Handle("/static/*", staticCacheHandler(fileServer))
	}

	return r
}

// staticCacheHandler wraps a file server with Cache-Control headers.
func staticCacheHandler(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Cache-Control", "public, max-age=3600")
		next.ServeHTTP(w, r)
	})
}
