package roles

import (
	"context"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"testing"

	"github.com/go-chi/chi/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/odyssey-erp/accessdesk/internal/rbac"
	"github.com/odyssey-erp/accessdesk/internal/shared"
	"github.com/odyssey-erp/accessdesk/internal/testing/guard"
)

type fakeRepo struct {
	roles       map[int64]rbac.Role
	nextID      int64
	defaultPerm int64
	deleteCalls int
	deleteErr   error
	excluded    []int64
}

func (f *fakeRepo) List(context.Context) ([]rbac.Role, error) {
	var out []rbac.Role
	for _, role := range f.roles {
		out = append(out, role)
	}
	return out, nil
}

func (f *fakeRepo) ListExcluding(_ context.Context, exclude []int64) ([]rbac.Role, error) {
	f.excluded = exclude
	var out []rbac.Role
	for _, role := range f.roles {
		if !containsID(exclude, role.ID) {
			out = append(out, role)
		}
	}
	return out, nil
}

func (f *fakeRepo) Get(_ context.Context, id int64) (rbac.Role, error) {
	role, ok := f.roles[id]
	if !ok {
		return rbac.Role{}, shared.ErrNotFound
	}
	return role, nil
}

func (f *fakeRepo) Create(_ context.Context, name string, defaultPermissionID int64) (rbac.Role, error) {
	for _, role := range f.roles {
		if role.Name == name {
			return rbac.Role{}, shared.ErrDuplicate
		}
	}
	f.nextID++
	role := rbac.Role{ID: f.nextID, Name: name}
	f.roles[role.ID] = role
	f.defaultPerm = defaultPermissionID
	return role, nil
}

func (f *fakeRepo) Rename(_ context.Context, id int64, name string) (rbac.Role, error) {
	role, ok := f.roles[id]
	if !ok {
		return rbac.Role{}, shared.ErrNotFound
	}
	role.Name = name
	f.roles[id] = role
	return role, nil
}

func (f *fakeRepo) Delete(_ context.Context, id int64) (rbac.Role, error) {
	f.deleteCalls++
	if f.deleteErr != nil {
		return rbac.Role{}, f.deleteErr
	}
	role, ok := f.roles[id]
	if !ok {
		return rbac.Role{}, shared.ErrNotFound
	}
	delete(f.roles, id)
	return role, nil
}

func containsID(ids []int64, id int64) bool {
	for _, v := range ids {
		if v == id {
			return true
		}
	}
	return false
}

func setup(t *testing.T, opts Options) (*fakeRepo, *guard.Sessions, chi.Router) {
	t.Helper()
	repo := &fakeRepo{nextID: 10, roles: map[int64]rbac.Role{
		1: {ID: 1, Name: "default"},
		2: {ID: 2, Name: "admin"},
		3: {ID: 3, Name: "editor"},
	}}
	h := NewHandler(guard.Kit(t, guard.Allowing(), nil), NewService(repo, opts))
	r := chi.NewRouter()
	h.MountRoutes(r)
	return repo, guard.NewSessions(t), r
}

func post(t *testing.T, sessions *guard.Sessions, r http.Handler, target string, form url.Values) (*httptest.ResponseRecorder, []shared.FlashMessage) {
	t.Helper()
	req := httptest.NewRequest(http.MethodPost, target, strings.NewReader(form.Encode()))
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	rec, sess := sessions.Serve(t, r, req)
	return rec, sess.PeekFlashes()
}

func TestDeleteProtectedRoleIsRejectedBeforeAnyQuery(t *testing.T) {
	repo, sessions, r := setup(t, Options{Protected: shared.IDSet{1: {}, 2: {}}})

	rec, flashes := post(t, sessions, r, "/delete", url.Values{"role_id": {"2"}})
	assert.Equal(t, http.StatusFound, rec.Code)
	assert.Equal(t, "/table_maintenance/role/index", rec.Header().Get("Location"))
	require.Len(t, flashes, 1)
	assert.Equal(t, "Role with ID 2 is protected.", flashes[0].Message)
	assert.Zero(t, repo.deleteCalls)
	assert.Contains(t, repo.roles, int64(2))
}

func TestDeleteFormHidesProtectedRoles(t *testing.T) {
	repo, sessions, r := setup(t, Options{Protected: shared.IDSet{1: {}, 2: {}}})

	rec, _ := sessions.Serve(t, r, httptest.NewRequest(http.MethodGet, "/delete", nil))
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, []int64{1, 2}, repo.excluded)
	assert.Contains(t, rec.Body.String(), ">editor</option>")
	assert.NotContains(t, rec.Body.String(), ">admin</option>")
}

func TestDeleteRole(t *testing.T) {
	repo, sessions, r := setup(t, Options{})

	_, flashes := post(t, sessions, r, "/delete", url.Values{"role_id": {"3"}})
	assert.Equal(t, "Successfully deleted role editor with ID 3", flashes[0].Message)
	assert.NotContains(t, repo.roles, int64(3))

	_, flashes = post(t, sessions, r, "/delete", url.Values{"role_id": {"3"}})
	assert.Equal(t, "The role with ID 3 does not exist", flashes[0].Message)

	repo.deleteErr = shared.ErrUnavailable
	_, flashes = post(t, sessions, r, "/delete", url.Values{"role_id": {"1"}})
	assert.Equal(t, "Database error when deleting, please retry", flashes[0].Message)
	assert.Contains(t, repo.roles, int64(1))
}

func TestCreateRoleAttachesDefaultPermission(t *testing.T) {
	repo, sessions, r := setup(t, Options{DefaultPermissionID: 1})

	_, flashes := post(t, sessions, r, "/create", url.Values{"name": {"auditor"}})
	assert.Equal(t, "Successfully created role auditor with ID 11", flashes[0].Message)
	assert.Equal(t, int64(1), repo.defaultPerm)

	_, flashes = post(t, sessions, r, "/create", url.Values{"name": {"auditor"}})
	assert.Equal(t, "Role not created: It is likely it already exists, otherwise check the logs", flashes[0].Message)
}

func TestCreateRoleRequiresName(t *testing.T) {
	repo, sessions, r := setup(t, Options{})

	rec, _ := post(t, sessions, r, "/create", url.Values{"name": {"  "}})
	assert.Equal(t, http.StatusUnprocessableEntity, rec.Code)
	assert.Contains(t, rec.Body.String(), "This field is required.")
	assert.Len(t, repo.roles, 3)
}

func TestRenameRole(t *testing.T) {
	repo, sessions, r := setup(t, Options{})

	rec, flashes := post(t, sessions, r, "/edit/3", url.Values{"name": {"writer"}})
	assert.Equal(t, http.StatusFound, rec.Code)
	assert.Equal(t, "Successfully updated role writer with ID 3", flashes[0].Message)
	assert.Equal(t, "writer", repo.roles[3].Name)

	rec, flashes = post(t, sessions, r, "/edit/42", url.Values{"name": {"ghost"}})
	assert.Equal(t, "/table_maintenance/role/create", rec.Header().Get("Location"))
	assert.Equal(t, "The role with ID 42 does not exist", flashes[0].Message)
}
