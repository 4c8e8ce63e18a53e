package userroles

import (
	"context"
	"fmt"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"sync"
	"testing"

	"github.com/go-chi/chi/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/odyssey-erp/accessdesk/internal/rbac"
	"github.com/odyssey-erp/accessdesk/internal/shared"
	"github.com/odyssey-erp/accessdesk/internal/tablemaint"
	"github.com/odyssey-erp/accessdesk/internal/testing/guard"
)

type pair struct{ user, role int64 }

// stubRepo mimics the composite primary key of user_roles.
type stubRepo struct {
	mu          sync.Mutex
	rows        map[pair]rbac.UserRole
	inserts     int
	deleteCalls int
	deleteErr   error
}

var (
	users = []tablemaint.Choice{{ID: 1, Label: "ada@example.com"}, {ID: 2, Label: "grace@example.com"}}
	roles = []tablemaint.Choice{{ID: 1, Label: "default"}, {ID: 2, Label: "admin"}, {ID: 4, Label: "editor"}}
)

func newStubRepo() *stubRepo {
	return &stubRepo{rows: map[pair]rbac.UserRole{
		{1, 2}: {UserID: 1, RoleID: 2, UserName: "Ada Lovelace", RoleName: "admin"},
	}}
}

func (s *stubRepo) List(context.Context) ([]rbac.UserRole, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []rbac.UserRole
	for _, ur := range s.rows {
		out = append(out, ur)
	}
	return out, nil
}

func (s *stubRepo) UserChoices(context.Context) ([]tablemaint.Choice, error) { return users, nil }

func (s *stubRepo) RoleChoices(context.Context) ([]tablemaint.Choice, error) { return roles, nil }

func (s *stubRepo) Create(_ context.Context, userID, roleID int64) (rbac.UserRole, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	key := pair{userID, roleID}
	if _, ok := s.rows[key]; ok {
		return rbac.UserRole{}, fmt.Errorf("user roles: insert: %w", shared.ErrDuplicate)
	}
	s.inserts++
	ur := rbac.UserRole{UserID: userID, RoleID: roleID, UserName: "Grace Hopper", RoleName: "editor"}
	s.rows[key] = ur
	return ur, nil
}

func (s *stubRepo) Delete(_ context.Context, userID, roleID int64) (rbac.UserRole, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.deleteCalls++
	if s.deleteErr != nil {
		return rbac.UserRole{}, s.deleteErr
	}
	key := pair{userID, roleID}
	ur, ok := s.rows[key]
	if !ok {
		return rbac.UserRole{}, shared.ErrNotFound
	}
	delete(s.rows, key)
	return ur, nil
}

func setup(t *testing.T, protected shared.PairSet) (*stubRepo, *guard.Sessions, chi.Router) {
	t.Helper()
	repo := newStubRepo()
	r := chi.NewRouter()
	NewHandler(guard.Kit(t, guard.Allowing(), nil), NewService(repo, protected)).MountRoutes(r)
	return repo, guard.NewSessions(t), r
}

func post(t *testing.T, sessions *guard.Sessions, r http.Handler, target string, form url.Values) (*httptest.ResponseRecorder, []shared.FlashMessage) {
	t.Helper()
	req := httptest.NewRequest(http.MethodPost, target, strings.NewReader(form.Encode()))
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	rec, sess := sessions.Serve(t, r, req)
	return rec, sess.PeekFlashes()
}

func TestDuplicateAssignmentIsNotInsertedTwice(t *testing.T) {
	repo, sessions, r := setup(t, nil)
	form := url.Values{"user_id": {"2"}, "role_id": {"4"}}

	rec, flashes := post(t, sessions, r, "/create", form)
	assert.Equal(t, http.StatusFound, rec.Code)
	require.Len(t, flashes, 1)
	assert.Equal(t, "Successfully added role editor to user Grace Hopper", flashes[0].Message)

	rec, flashes = post(t, sessions, r, "/create", form)
	assert.Equal(t, http.StatusFound, rec.Code)
	assert.Equal(t, "/table_maintenance/user_role/index", rec.Header().Get("Location"))
	require.Len(t, flashes, 1)
	assert.Equal(t, "UserRole not created: It is likely it already exists, otherwise check the logs", flashes[0].Message)

	assert.Equal(t, 1, repo.inserts)
	assert.Len(t, repo.rows, 2)
}

func TestCreateRejectsUnknownChoice(t *testing.T) {
	repo, sessions, r := setup(t, nil)

	rec, _ := post(t, sessions, r, "/create", url.Values{"user_id": {"9"}, "role_id": {"4"}})
	assert.Equal(t, http.StatusUnprocessableEntity, rec.Code)
	assert.Contains(t, rec.Body.String(), "Not a valid choice.")
	assert.Zero(t, repo.inserts)
}

func TestCreateFormListsChoices(t *testing.T) {
	_, sessions, r := setup(t, nil)

	rec, _ := sessions.Serve(t, r, httptest.NewRequest(http.MethodGet, "/create", nil))
	require.Equal(t, http.StatusOK, rec.Code)
	body := rec.Body.String()
	assert.Contains(t, body, `<option value="2">grace@example.com</option>`)
	assert.Contains(t, body, `<option value="4">editor</option>`)
}

func TestRevokeAssignment(t *testing.T) {
	tests := []struct {
		name        string
		protected   shared.PairSet
		deleteErr   error
		form        url.Values
		message     string
		deleteCalls int
		remaining   int
	}{
		{
			name:      "protected pair",
			protected: shared.PairSet{{1, 2}: {}},
			form:      url.Values{"user_id": {"1"}, "role_id": {"2"}},
			message:   "UserRole [1, 2] is protected.",
			remaining: 1,
		},
		{
			name:        "missing pair",
			form:        url.Values{"user_id": {"2"}, "role_id": {"1"}},
			message:     "The UserRole with user ID 2 and role ID 1 does not exist",
			deleteCalls: 1,
			remaining:   1,
		},
		{
			name:        "store unavailable",
			deleteErr:   shared.ErrUnavailable,
			form:        url.Values{"user_id": {"1"}, "role_id": {"2"}},
			message:     "Database error when deleting, please retry",
			deleteCalls: 1,
			remaining:   1,
		},
		{
			name:        "deleted",
			form:        url.Values{"user_id": {"1"}, "role_id": {"2"}},
			message:     "Successfully deleted UserRole with user ID 1 and role ID 2",
			deleteCalls: 1,
			remaining:   0,
		},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			repo, sessions, r := setup(t, tc.protected)
			repo.deleteErr = tc.deleteErr

			rec, flashes := post(t, sessions, r, "/delete", tc.form)
			assert.Equal(t, http.StatusFound, rec.Code)
			require.Len(t, flashes, 1)
			assert.Equal(t, tc.message, flashes[0].Message)
			assert.Equal(t, tc.deleteCalls, repo.deleteCalls)
			assert.Len(t, repo.rows, tc.remaining)
		})
	}
}

func TestIndexShowsNames(t *testing.T) {
	_, sessions, r := setup(t, nil)

	rec, _ := sessions.Serve(t, r, httptest.NewRequest(http.MethodGet, "/", nil))
	require.Equal(t, http.StatusOK, rec.Code)
	body := rec.Body.String()
	assert.Contains(t, body, "<th>User ID</th><th>User</th><th>Role</th><th>Role ID</th>")
	assert.Contains(t, body, "Ada Lovelace")
}
