// Package guard provides route guards and request sessions for handler tests.
// Importing it switches the process into test mode.
package guard

import (
	"context"
	"net/http"
	"net/http/httptest"
	"os"
	"sync"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"

	"github.com/odyssey-erp/accessdesk/internal/iap"
	"github.com/odyssey-erp/accessdesk/internal/rbac"
	"github.com/odyssey-erp/accessdesk/internal/shared"
)

var once sync.Once

func init() {
	once.Do(func() {
		if os.Getenv("ACCESSDESK_TEST_MODE") == "" {
			_ = os.Setenv("ACCESSDESK_TEST_MODE", "1")
		}
	})
}

// TestEmail is the identity every guarded test request carries.
const TestEmail = "tester@example.com"

// Static answers every authorization check with the same result.
type Static struct {
	Allowed bool
	Err     error

	mu          sync.Mutex
	Permissions []string
}

// Authorize implements rbac.Authorizer.
func (s *Static) Authorize(_ context.Context, _ string, permission string) (bool, error) {
	s.mu.Lock()
	s.Permissions = append(s.Permissions, permission)
	s.mu.Unlock()
	return s.Allowed, s.Err
}

type fixedIdentity struct{}

func (fixedIdentity) Resolve(*http.Request) iap.Identity {
	return iap.Identity{Email: TestEmail, Subject: "test"}
}

// Allowing returns a guard that lets every request through.
func Allowing() rbac.Guard {
	return For(&Static{Allowed: true})
}

// Denying returns a guard that refuses every request.
func Denying() rbac.Guard {
	return For(&Static{})
}

// For wraps authorizer in a guard with a fixed identity.
func For(authorizer rbac.Authorizer) rbac.Guard {
	return rbac.Guard{Authorizer: authorizer, Identities: fixedIdentity{}, LandingPath: "/"}
}

// Sessions is a session manager over an in-memory redis.
type Sessions struct {
	Manager *shared.SessionManager
}

// NewSessions starts a miniredis instance bound to t.
func NewSessions(t testing.TB) *Sessions {
	t.Helper()
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })
	return &Sessions{Manager: shared.NewSessionManager(client, "accessdesk_session", time.Hour, false)}
}

// Attach loads a fresh session into req's context.
func (s *Sessions) Attach(t testing.TB, req *http.Request) (*http.Request, *shared.Session) {
	t.Helper()
	sess, err := s.Manager.Load(req.Context(), req)
	if err != nil {
		t.Fatalf("load session: %v", err)
	}
	return req.WithContext(shared.ContextWithSession(req.Context(), sess)), sess
}

// Serve runs req through h with a session attached and returns the
// recorder together with the session after the handler ran.
func (s *Sessions) Serve(t testing.TB, h http.Handler, req *http.Request) (*httptest.ResponseRecorder, *shared.Session) {
	t.Helper()
	req, sess := s.Attach(t, req)
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	return rec, sess
}
