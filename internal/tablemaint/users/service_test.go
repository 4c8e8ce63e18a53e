package users

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/odyssey-erp/accessdesk/internal/rbac"
	"github.com/odyssey-erp/accessdesk/internal/shared"
)

type fakeRepo struct {
	users       map[int64]rbac.User
	nextID      int64
	defaultRole int64
	deleteCalls int
	deleteErr   error
	excluded    []int64
}

func newFakeRepo(users ...rbac.User) *fakeRepo {
	repo := &fakeRepo{users: make(map[int64]rbac.User), nextID: 100}
	for _, u := range users {
		repo.users[u.ID] = u
	}
	return repo
}

func (f *fakeRepo) List(context.Context) ([]rbac.User, error) {
	var out []rbac.User
	for _, u := range f.users {
		out = append(out, u)
	}
	return out, nil
}

func (f *fakeRepo) ListExcluding(_ context.Context, exclude []int64) ([]rbac.User, error) {
	f.excluded = exclude
	skip := make(map[int64]bool)
	for _, id := range exclude {
		skip[id] = true
	}
	var out []rbac.User
	for _, u := range f.users {
		if !skip[u.ID] {
			out = append(out, u)
		}
	}
	return out, nil
}

func (f *fakeRepo) ListExpired(_ context.Context, now time.Time) ([]rbac.User, error) {
	var out []rbac.User
	for _, u := range f.users {
		if u.Expired(now) {
			out = append(out, u)
		}
	}
	return out, nil
}

func (f *fakeRepo) Get(_ context.Context, id int64) (rbac.User, error) {
	u, ok := f.users[id]
	if !ok {
		return rbac.User{}, shared.ErrNotFound
	}
	return u, nil
}

func (f *fakeRepo) Create(_ context.Context, in Record, defaultRoleID int64) (rbac.User, error) {
	for _, u := range f.users {
		if u.Email == in.Email {
			return rbac.User{}, shared.ErrDuplicate
		}
	}
	f.nextID++
	u := rbac.User{ID: f.nextID, FirstName: in.FirstName, LastName: in.LastName, Email: in.Email, Birthday: in.Birthday, ValidUntil: in.ValidUntil}
	f.users[u.ID] = u
	f.defaultRole = defaultRoleID
	return u, nil
}

func (f *fakeRepo) Update(_ context.Context, id int64, in Record) (rbac.User, error) {
	if _, ok := f.users[id]; !ok {
		return rbac.User{}, shared.ErrNotFound
	}
	u := rbac.User{ID: id, FirstName: in.FirstName, LastName: in.LastName, Email: in.Email, Birthday: in.Birthday, ValidUntil: in.ValidUntil}
	f.users[id] = u
	return u, nil
}

func (f *fakeRepo) Delete(_ context.Context, id int64) (rbac.User, error) {
	f.deleteCalls++
	if f.deleteErr != nil {
		return rbac.User{}, f.deleteErr
	}
	u, ok := f.users[id]
	if !ok {
		return rbac.User{}, shared.ErrNotFound
	}
	delete(f.users, id)
	return u, nil
}

func TestDeleteProtectedUserSkipsRepository(t *testing.T) {
	repo := newFakeRepo(rbac.User{ID: 1, Email: "root@example.com"})
	svc := NewService(repo, Options{Protected: shared.IDSet{1: {}}})

	_, err := svc.Delete(context.Background(), 1)
	assert.ErrorIs(t, err, shared.ErrProtected)
	assert.Zero(t, repo.deleteCalls)
	assert.Contains(t, repo.users, int64(1))
}

func TestDeleteChoicesExcludeProtected(t *testing.T) {
	repo := newFakeRepo(rbac.User{ID: 1}, rbac.User{ID: 2}, rbac.User{ID: 3})
	svc := NewService(repo, Options{Protected: shared.IDSet{3: {}, 1: {}}})

	users, err := svc.DeleteChoices(context.Background())
	require.NoError(t, err)
	require.Len(t, users, 1)
	assert.Equal(t, int64(2), users[0].ID)
	assert.Equal(t, []int64{1, 3}, repo.excluded)
}

func TestCreateNormalizesAndAttachesDefaultRole(t *testing.T) {
	repo := newFakeRepo()
	svc := NewService(repo, Options{DefaultRoleID: 1})

	user, err := svc.Create(context.Background(), Input{FirstName: " Ada ", LastName: "Lovelace", Email: "Ada@Example.com"})
	require.NoError(t, err)
	assert.Equal(t, "Ada", user.FirstName)
	assert.Equal(t, "ada@example.com", user.Email)
	assert.True(t, user.Birthday.Equal(DefaultBirthday))
	assert.Nil(t, user.ValidUntil)
	assert.Equal(t, int64(1), repo.defaultRole)

	_, err = svc.Create(context.Background(), Input{FirstName: "Ada", LastName: "L", Email: "ADA@example.com"})
	assert.ErrorIs(t, err, shared.ErrDuplicate)
}

func TestCreateParsesDates(t *testing.T) {
	svc := NewService(newFakeRepo(), Options{})

	user, err := svc.Create(context.Background(), Input{FirstName: "A", LastName: "B", Email: "a@b.c", Birthday: "1990-05-17", ValidUntil: "2030-01-31"})
	require.NoError(t, err)
	assert.Equal(t, "1990-05-17", user.Birthday.Format(dateLayout))
	require.NotNil(t, user.ValidUntil)
	assert.Equal(t, "2030-01-31", user.ValidUntil.Format(dateLayout))

	_, err = svc.Create(context.Background(), Input{FirstName: "A", LastName: "B", Email: "x@b.c", Birthday: "17/05/1990"})
	assert.ErrorIs(t, err, shared.ErrValidation)
}

func TestListExpired(t *testing.T) {
	past := time.Date(2020, 1, 1, 0, 0, 0, 0, time.UTC)
	future := time.Date(2099, 1, 1, 0, 0, 0, 0, time.UTC)
	repo := newFakeRepo(
		rbac.User{ID: 1, Email: "old@example.com", ValidUntil: &past},
		rbac.User{ID: 2, Email: "new@example.com", ValidUntil: &future},
		rbac.User{ID: 3, Email: "forever@example.com"},
	)
	svc := NewService(repo, Options{})
	svc.now = func() time.Time { return time.Date(2026, 10, 19, 0, 0, 0, 0, time.UTC) }

	users, err := svc.ListExpired(context.Background())
	require.NoError(t, err)
	require.Len(t, users, 1)
	assert.Equal(t, "old@example.com", users[0].Email)
}

func TestDeletePropagatesStoreErrors(t *testing.T) {
	repo := newFakeRepo(rbac.User{ID: 5})
	repo.deleteErr = errors.Join(shared.ErrUnavailable, errors.New("conn reset"))
	svc := NewService(repo, Options{})

	_, err := svc.Delete(context.Background(), 5)
	assert.ErrorIs(t, err, shared.ErrUnavailable)
}
