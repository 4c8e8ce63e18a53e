package rbac

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/odyssey-erp/accessdesk/internal/iap"
	"github.com/odyssey-erp/accessdesk/internal/shared"
)

type headerIdentities struct{}

func (headerIdentities) Resolve(r *http.Request) iap.Identity {
	return iap.Identity{Email: r.Header.Get("X-Test-Email")}
}

type stubAuthorizer struct {
	allowed bool
	err     error
	calls   int
}

func (s *stubAuthorizer) Authorize(ctx context.Context, email, permission string) (bool, error) {
	s.calls++
	return s.allowed, s.err
}

type outcomeRecorder map[string]int

func (o outcomeRecorder) ObserveAuthorization(permission, outcome string) {
	o[outcome]++
}

func newSessionRequest(t *testing.T, method, target string) (*http.Request, *shared.Session) {
	t.Helper()
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })
	manager := shared.NewSessionManager(client, "accessdesk_session", time.Hour, false)

	req := httptest.NewRequest(method, target, nil)
	sess, err := manager.Load(req.Context(), req)
	require.NoError(t, err)
	return req.WithContext(shared.ContextWithSession(req.Context(), sess)), sess
}

func okHandler(principal *string) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if principal != nil {
			*principal = shared.PrincipalFromContext(r.Context())
		}
		w.WriteHeader(http.StatusTeapot)
	})
}

func TestGuardAllowsAuthorizedCaller(t *testing.T) {
	auth := &stubAuthorizer{allowed: true}
	metrics := outcomeRecorder{}
	guard := Guard{Authorizer: auth, Identities: headerIdentities{}, Metrics: metrics}

	var principal string
	req := httptest.NewRequest(http.MethodGet, "/table_maintenance/user/", nil)
	req.Header.Set("X-Test-Email", "alice@x.com")
	rec := httptest.NewRecorder()
	guard.RequirePermission("admin_read_only")(okHandler(&principal)).ServeHTTP(rec, req)

	assert.Equal(t, http.StatusTeapot, rec.Code)
	assert.Equal(t, "alice@x.com", principal)
	assert.Equal(t, 1, metrics[OutcomeAllowed])
}

func TestGuardCronBypass(t *testing.T) {
	auth := &stubAuthorizer{}
	guard := Guard{Authorizer: auth, Identities: headerIdentities{}}

	var principal string
	req := httptest.NewRequest(http.MethodGet, "/table_maintenance/user/expired", nil)
	req.Header.Set(iap.HeaderCron, "true")
	rec := httptest.NewRecorder()
	guard.RequirePermission("admin", AllowCronJob(), RespondJSON())(okHandler(&principal)).ServeHTTP(rec, req)

	assert.Equal(t, http.StatusTeapot, rec.Code)
	assert.Equal(t, iap.CronJobEmail, principal)
	assert.Zero(t, auth.calls, "cron bypass must not consult the evaluator")
}

func TestGuardCronHeaderIgnoredWithoutFlag(t *testing.T) {
	auth := &stubAuthorizer{}
	guard := Guard{Authorizer: auth, Identities: headerIdentities{}}

	req := httptest.NewRequest(http.MethodGet, "/table_maintenance/user/expired", nil)
	req.Header.Set(iap.HeaderCron, "true")
	rec := httptest.NewRecorder()
	guard.RequirePermission("admin", RespondJSON())(okHandler(nil)).ServeHTTP(rec, req)

	assert.Equal(t, http.StatusUnauthorized, rec.Code)
	assert.Equal(t, 1, auth.calls)
}

func TestGuardQueueBypass(t *testing.T) {
	auth := &stubAuthorizer{}
	metrics := outcomeRecorder{}
	guard := Guard{Authorizer: auth, Identities: headerIdentities{}, Metrics: metrics}
	mw := guard.RequirePermission("admin", AllowTaskQueues("access-review"), RespondJSON())

	req := httptest.NewRequest(http.MethodGet, "/x", nil)
	req.Header.Set(iap.HeaderQueueName, "access-review")
	rec := httptest.NewRecorder()
	mw(okHandler(nil)).ServeHTTP(rec, req)
	assert.Equal(t, http.StatusTeapot, rec.Code)
	assert.Equal(t, 1, metrics[OutcomeQueueBypass])

	req = httptest.NewRequest(http.MethodGet, "/x", nil)
	req.Header.Set(iap.HeaderQueueName, "untrusted")
	rec = httptest.NewRecorder()
	mw(okHandler(nil)).ServeHTTP(rec, req)
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
}

func TestGuardJSONDenial(t *testing.T) {
	guard := Guard{Authorizer: &stubAuthorizer{}, Identities: headerIdentities{}}

	req := httptest.NewRequest(http.MethodGet, "/api", nil)
	rec := httptest.NewRecorder()
	guard.RequirePermission("admin", RespondJSON())(okHandler(nil)).ServeHTTP(rec, req)

	assert.Equal(t, http.StatusUnauthorized, rec.Code)
	assert.JSONEq(t, `{"error": "Authentication failed."}`, rec.Body.String())
}

func TestGuardRedirectDenialFlashes(t *testing.T) {
	metrics := outcomeRecorder{}
	guard := Guard{Authorizer: &stubAuthorizer{}, Identities: headerIdentities{}, Metrics: metrics, LandingPath: "/"}

	req, sess := newSessionRequest(t, http.MethodGet, "/table_maintenance/role/delete")
	req.Header.Set("Referer", "http://example.com/table_maintenance/role/")
	req.Host = "example.com"
	rec := httptest.NewRecorder()
	guard.RequirePermission("admin", HandlerName("delete"))(okHandler(nil)).ServeHTTP(rec, req)

	assert.Equal(t, http.StatusFound, rec.Code)
	assert.Equal(t, "/table_maintenance/role/", rec.Header().Get("Location"))
	assert.Equal(t, []shared.FlashMessage{
		{Kind: shared.FlashWarning, Message: `You were not authorized to go there; Permission: "admin" is needed.`},
		{Kind: shared.FlashWarning, Message: `Please contact an admin (IT Team) if you want to access to "delete".`},
		{Kind: shared.FlashInfo, Message: "For now I have brought you to your previous page."},
	}, sess.PeekFlashes())
	assert.Equal(t, 1, metrics[OutcomeDenied])
}

func TestGuardConfigErrorIsFlashedAndCounted(t *testing.T) {
	metrics := outcomeRecorder{}
	auth := &stubAuthorizer{err: errUserWithoutRole("carol@x.com")}
	guard := Guard{Authorizer: auth, Identities: headerIdentities{}, Metrics: metrics, LandingPath: "/landing"}

	req, sess := newSessionRequest(t, http.MethodGet, "/table_maintenance/")
	rec := httptest.NewRecorder()
	guard.RequirePermission("admin")(okHandler(nil)).ServeHTTP(rec, req)

	assert.Equal(t, http.StatusFound, rec.Code)
	assert.Equal(t, "/landing", rec.Header().Get("Location"))
	flashes := sess.PeekFlashes()
	require.Len(t, flashes, 4)
	assert.Equal(t, "User carol@x.com has no Role. Please contact an administrator.", flashes[0].Message)
	assert.Equal(t, `Please contact an admin (IT Team) if you want to access to "/table_maintenance/".`, flashes[2].Message)
	assert.Equal(t, 1, metrics[OutcomeConfigError])
}

func TestGuardStoreErrorDenies(t *testing.T) {
	metrics := outcomeRecorder{}
	guard := Guard{Authorizer: &stubAuthorizer{allowed: true, err: errors.New("db down")}, Identities: headerIdentities{}, Metrics: metrics}

	rec := httptest.NewRecorder()
	guard.RequirePermission("admin", RespondJSON())(okHandler(nil)).ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/", nil))

	assert.Equal(t, http.StatusUnauthorized, rec.Code)
	assert.Equal(t, 1, metrics[OutcomeError])
}

func TestRedirectTarget(t *testing.T) {
	guard := Guard{LandingPath: "/home"}
	cases := []struct {
		name    string
		target  string
		referer string
		want    string
	}{
		{"next wins", "/denied?next=/table_maintenance/user/", "http://example.com/other", "/table_maintenance/user/"},
		{"absolute next rejected", "/denied?next=https://evil.example/", "", "/home"},
		{"protocol relative next rejected", "/denied?next=//evil.example/", "", "/home"},
		{"referer used", "/denied", "http://example.com/table_maintenance/role/?x=1", "/table_maintenance/role/?x=1"},
		{"foreign referer ignored", "/denied", "https://evil.example/phish", "/home"},
		{"self referer ignored", "/denied", "http://example.com/denied", "/home"},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodGet, tc.target, nil)
			req.Host = "example.com"
			if tc.referer != "" {
				req.Header.Set("Referer", tc.referer)
			}
			assert.Equal(t, tc.want, guard.redirectTarget(req))
		})
	}
}

func TestGuardDenialOnLandingPageDoesNotLoop(t *testing.T) {
	guard := Guard{Authorizer: &stubAuthorizer{}, Identities: headerIdentities{}, LandingPath: "/"}

	req, sess := newSessionRequest(t, http.MethodGet, "/")
	rec := httptest.NewRecorder()
	guard.RequirePermission("default", HandlerName("home"))(okHandler(nil)).ServeHTTP(rec, req)

	assert.Equal(t, http.StatusForbidden, rec.Code)
	assert.Empty(t, rec.Header().Get("Location"))
	assert.Contains(t, rec.Body.String(), `Permission: "default" is needed.`)
	assert.Empty(t, sess.PeekFlashes())
}
