package rbac

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"net/url"
	"strings"

	"github.com/odyssey-erp/accessdesk/internal/iap"
	"github.com/odyssey-erp/accessdesk/internal/platform/httpx"
	"github.com/odyssey-erp/accessdesk/internal/shared"
)

// Decision outcomes reported to the DecisionRecorder.
const (
	OutcomeAllowed     = "allowed"
	OutcomeDenied      = "denied"
	OutcomeConfigError = "config_error"
	OutcomeError       = "error"
	OutcomeCronBypass  = "cron_bypass"
	OutcomeQueueBypass = "queue_bypass"
)

// Authorizer decides whether an email holds a permission.
type Authorizer interface {
	Authorize(ctx context.Context, email, permission string) (bool, error)
}

// IdentityResolver extracts the caller identity from a request.
type IdentityResolver interface {
	Resolve(r *http.Request) iap.Identity
}

// DecisionRecorder counts guard outcomes.
type DecisionRecorder interface {
	ObserveAuthorization(permission, outcome string)
}

// Guard builds per-route authorization middleware.
type Guard struct {
	Authorizer  Authorizer
	Identities  IdentityResolver
	Logger      *slog.Logger
	Metrics     DecisionRecorder
	LandingPath string
}

type guardConfig struct {
	allowCron   bool
	queues      map[string]struct{}
	respondJSON bool
	handlerName string
}

// Option tunes a single RequirePermission call.
type Option func(*guardConfig)

// AllowCronJob lets platform cron requests through without an identity.
func AllowCronJob() Option {
	return func(c *guardConfig) { c.allowCron = true }
}

// AllowTaskQueues lets requests dispatched by the named task queues through.
func AllowTaskQueues(queues ...string) Option {
	return func(c *guardConfig) {
		for _, q := range queues {
			if q = strings.TrimSpace(q); q != "" {
				c.queues[q] = struct{}{}
			}
		}
	}
}

// RespondJSON answers denials with 401 and a JSON body instead of a redirect.
func RespondJSON() Option {
	return func(c *guardConfig) { c.respondJSON = true }
}

// HandlerName sets the name shown to users in the denial flash.
func HandlerName(name string) Option {
	return func(c *guardConfig) { c.handlerName = name }
}

// RequirePermission allows the request when the caller holds permission.
// Cron and queue bypasses are evaluated first and only when enabled.
func (g Guard) RequirePermission(permission string, opts ...Option) func(http.Handler) http.Handler {
	cfg := guardConfig{queues: make(map[string]struct{})}
	for _, opt := range opts {
		opt(&cfg)
	}
	logger := g.Logger
	if logger == nil {
		logger = slog.Default()
	}

	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if cfg.allowCron && iap.IsCron(r) {
				g.observe(permission, OutcomeCronBypass)
				next.ServeHTTP(w, r.WithContext(shared.ContextWithPrincipal(r.Context(), iap.CronJobEmail)))
				return
			}
			if queue := iap.QueueName(r); queue != "" {
				if _, ok := cfg.queues[queue]; ok {
					g.observe(permission, OutcomeQueueBypass)
					next.ServeHTTP(w, r.WithContext(shared.ContextWithPrincipal(r.Context(), "queue:"+queue)))
					return
				}
			}

			identity := g.Identities.Resolve(r)
			allowed, err := g.Authorizer.Authorize(r.Context(), identity.Email, permission)
			if err == nil && allowed {
				g.observe(permission, OutcomeAllowed)
				next.ServeHTTP(w, r.WithContext(shared.ContextWithPrincipal(r.Context(), identity.Email)))
				return
			}

			attrs := []any{
				slog.String("permission", permission),
				slog.String("email", identity.Email),
				slog.String("path", r.URL.Path),
				slog.String("forwarded_for", iap.ForwardedFor(r)),
			}
			switch {
			case err == nil:
				g.observe(permission, OutcomeDenied)
				logger.Debug("authorization denied", attrs...)
			case IsConfigError(err):
				g.observe(permission, OutcomeConfigError)
				logger.Warn("authorization configuration error", append(attrs, slog.Any("error", err))...)
			default:
				g.observe(permission, OutcomeError)
				logger.Error("authorization check failed", append(attrs, slog.Any("error", err))...)
			}

			if cfg.respondJSON {
				httpx.Unauthorized(w)
				return
			}
			g.redirectDenied(w, r, permission, cfg.handlerName, err)
		})
	}
}

func (g Guard) redirectDenied(w http.ResponseWriter, r *http.Request, permission, handlerName string, err error) {
	if handlerName == "" {
		handlerName = r.URL.Path
	}
	var flashes []shared.FlashMessage
	if IsConfigError(err) {
		flashes = append(flashes, shared.FlashMessage{Kind: shared.FlashError, Message: err.Error()})
	}
	flashes = append(flashes,
		shared.FlashMessage{Kind: shared.FlashWarning, Message: fmt.Sprintf("You were not authorized to go there; Permission: %q is needed.", permission)},
		shared.FlashMessage{Kind: shared.FlashWarning, Message: fmt.Sprintf("Please contact an admin (IT Team) if you want to access to %q.", handlerName)},
	)

	target := g.redirectTarget(r)
	if target == r.URL.RequestURI() {
		// nowhere else to go; redirecting would loop
		lines := make([]string, 0, len(flashes))
		for _, f := range flashes {
			lines = append(lines, f.Message)
		}
		http.Error(w, strings.Join(lines, "\n"), http.StatusForbidden)
		return
	}
	if sess := shared.SessionFromContext(r.Context()); sess != nil {
		for _, f := range flashes {
			sess.AddFlash(f)
		}
		sess.AddFlash(shared.FlashMessage{Kind: shared.FlashInfo, Message: "For now I have brought you to your previous page."})
	}
	http.Redirect(w, r, target, http.StatusFound)
}

// redirectTarget picks ?next=, then a same-host Referer, then LandingPath.
// Targets pointing back at the denied URL fall through to avoid a loop.
func (g Guard) redirectTarget(r *http.Request) string {
	current := r.URL.RequestURI()
	if next := r.URL.Query().Get("next"); isLocalPath(next) && next != current {
		return next
	}
	if ref := r.Referer(); ref != "" {
		if u, err := url.Parse(ref); err == nil && (u.Host == "" || u.Host == r.Host) {
			if target := u.RequestURI(); isLocalPath(target) && target != current {
				return target
			}
		}
	}
	if g.LandingPath != "" {
		return g.LandingPath
	}
	return "/"
}

func isLocalPath(p string) bool {
	if p == "" || !strings.HasPrefix(p, "/") || strings.HasPrefix(p, "//") || strings.HasPrefix(p, "/\\") {
		return false
	}
	u, err := url.Parse(p)
	return err == nil && u.Scheme == "" && u.Host == ""
}

func (g Guard) observe(permission, outcome string) {
	if g.Metrics != nil {
		g.Metrics.ObserveAuthorization(permission, outcome)
	}
}
