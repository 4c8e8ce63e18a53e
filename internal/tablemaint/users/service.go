package users

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/odyssey-erp/accessdesk/internal/rbac"
	"github.com/odyssey-erp/accessdesk/internal/shared"
)

const dateLayout = "2006-01-02"

// DefaultBirthday is stored when the form leaves the birthday empty.
var DefaultBirthday = time.Date(1900, time.January, 1, 0, 0, 0, 0, time.UTC)

// RepositoryPort defines data access methods for users.
type RepositoryPort interface {
	List(ctx context.Context) ([]rbac.User, error)
	ListExcluding(ctx context.Context, exclude []int64) ([]rbac.User, error)
	ListExpired(ctx context.Context, now time.Time) ([]rbac.User, error)
	Get(ctx context.Context, id int64) (rbac.User, error)
	Create(ctx context.Context, in Record, defaultRoleID int64) (rbac.User, error)
	Update(ctx context.Context, id int64, in Record) (rbac.User, error)
	Delete(ctx context.Context, id int64) (rbac.User, error)
}

// Input is the submitted user form.
type Input struct {
	FirstName  string `form:"first_name" validate:"required,max=100"`
	LastName   string `form:"last_name" validate:"required,max=100"`
	Email      string `form:"email" validate:"required,email,max=45"`
	Birthday   string `form:"birthday" validate:"omitempty,datetime=2006-01-02"`
	ValidUntil string `form:"valid_until" validate:"omitempty,datetime=2006-01-02"`
}

// Record is a validated Input ready for storage.
type Record struct {
	FirstName  string
	LastName   string
	Email      string
	Birthday   time.Time
	ValidUntil *time.Time
}

// Options configures the Service.
type Options struct {
	Protected     shared.IDSet
	DefaultRoleID int64
}

// Service handles user maintenance.
type Service struct {
	repo RepositoryPort
	opts Options
	now  func() time.Time
}

// NewService builds Service instance.
func NewService(repo RepositoryPort, opts Options) *Service {
	return &Service{repo: repo, opts: opts, now: time.Now}
}

// List returns all users.
func (s *Service) List(ctx context.Context) ([]rbac.User, error) {
	return s.repo.List(ctx)
}

// DeleteChoices returns the users that may be deleted.
func (s *Service) DeleteChoices(ctx context.Context) ([]rbac.User, error) {
	return s.repo.ListExcluding(ctx, s.opts.Protected.IDs())
}

// ListExpired returns users past their valid_until date.
func (s *Service) ListExpired(ctx context.Context) ([]rbac.User, error) {
	return s.repo.ListExpired(ctx, s.now())
}

// Get returns one user.
func (s *Service) Get(ctx context.Context, id int64) (rbac.User, error) {
	return s.repo.Get(ctx, id)
}

// Create stores a new user together with the default role.
func (s *Service) Create(ctx context.Context, in Input) (rbac.User, error) {
	rec, err := toRecord(in)
	if err != nil {
		return rbac.User{}, err
	}
	return s.repo.Create(ctx, rec, s.opts.DefaultRoleID)
}

// Update overwrites user id.
func (s *Service) Update(ctx context.Context, id int64, in Input) (rbac.User, error) {
	rec, err := toRecord(in)
	if err != nil {
		return rbac.User{}, err
	}
	return s.repo.Update(ctx, id, rec)
}

// Delete removes user id unless it is protected. The protected check runs
// before any query.
func (s *Service) Delete(ctx context.Context, id int64) (rbac.User, error) {
	if s.opts.Protected.Contains(id) {
		return rbac.User{}, fmt.Errorf("users: delete %d: %w", id, shared.ErrProtected)
	}
	return s.repo.Delete(ctx, id)
}

// InputFromUser fills the form from a stored user.
func InputFromUser(u rbac.User) Input {
	in := Input{FirstName: u.FirstName, LastName: u.LastName, Email: u.Email}
	if !u.Birthday.IsZero() {
		in.Birthday = u.Birthday.Format(dateLayout)
	}
	if u.ValidUntil != nil {
		in.ValidUntil = u.ValidUntil.Format(dateLayout)
	}
	return in
}

func toRecord(in Input) (Record, error) {
	rec := Record{
		FirstName: strings.TrimSpace(in.FirstName),
		LastName:  strings.TrimSpace(in.LastName),
		Email:     shared.NormalizeEmail(in.Email),
		Birthday:  DefaultBirthday,
	}
	if v := strings.TrimSpace(in.Birthday); v != "" {
		t, err := time.Parse(dateLayout, v)
		if err != nil {
			return Record{}, fmt.Errorf("%w: birthday: %v", shared.ErrValidation, err)
		}
		rec.Birthday = t
	}
	if v := strings.TrimSpace(in.ValidUntil); v != "" {
		t, err := time.Parse(dateLayout, v)
		if err != nil {
			return Record{}, fmt.Errorf("%w: valid until: %v", shared.ErrValidation, err)
		}
		rec.ValidUntil = &t
	}
	return rec, nil
}
