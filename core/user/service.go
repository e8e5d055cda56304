package user

import (
	"context"
	"sort"
	"time"

	"github.com/pkg/errors"

	"github.com/twahidin/project-lumos/core"
)

var (
	// errors
	ErrNotFound     = core.NewNotFoundError("User")
	ErrEmailExists  = errors.New("Email already registered")
	ErrUserIDExists = errors.New("User ID already registered")

	defaultOrdering = []core.DBOrdering{{Field: "createdAt"}}
	studentOrdering = []core.DBOrdering{{Field: "group", Ascending: true}, {Field: "name", Ascending: true}}
)

// OrderingFields are the User fields a query may be ordered by.
var OrderingFields = []string{"createdAt", "updatedAt", "name", "email", "userid", "group", "role"}

type (
	// Repository is the Credential Store.
	// Login key uniqueness is enforced by the implementation: a duplicate
	// email or student ID on create is reported as ErrEmailExists or ErrUserIDExists.
	Repository interface {
		CreateUser(ctx context.Context, usr User) (User, error)
		GetUser(ctx context.Context, filter GetFilter) (User, error)
		// QueryUsers applies AND operation on available QueryFilter fields.
		// orderings use the json field names in OrderingFields.
		QueryUsers(ctx context.Context, filter QueryFilter, orderings ...core.DBOrdering) ([]User, error)
		// UpdateUser saves every mutable field of usr, login keys and CreatedAt excepted.
		UpdateUser(ctx context.Context, usr User) (User, error)
		// SetPasswordHash only changes the password hash and UpdatedAt.
		SetPasswordHash(ctx context.Context, id string, hash []byte, updatedAt time.Time) error
		// DistinctGroups returns the distinct raw group values of the users having role.
		DistinctGroups(ctx context.Context, role Role) ([]string, error)
	}

	Service struct {
		repo Repository
		now  func() time.Time
	}
)

func NewService(repo Repository) *Service {
	return &Service{repo: repo, now: Now}
}

// Now is the store clock: UTC, truncated to what every store keeps.
func Now() time.Time {
	return time.Now().UTC().Truncate(time.Millisecond)
}

// IsConflict reports whether err is a login key uniqueness violation.
func IsConflict(err error) bool {
	cause := errors.Cause(err)
	return cause == ErrEmailExists || cause == ErrUserIDExists
}

// checkUniqueness looks up the login keys of a User about to be created.
func (svc *Service) checkUniqueness(ctx context.Context, email, userID string) error {
	if email != "" {
		if _, err := svc.repo.GetUser(ctx, GetFilter{Email: email}); err == nil {
			return ErrEmailExists
		} else if errors.Cause(err) != ErrNotFound {
			return errors.Wrap(err, "finding user by email")
		}
	}
	if userID != "" {
		if _, err := svc.repo.GetUser(ctx, GetFilter{UserID: userID}); err == nil {
			return ErrUserIDExists
		} else if errors.Cause(err) != ErrNotFound {
			return errors.Wrap(err, "finding user by userid")
		}
	}
	return nil
}

func (svc *Service) create(ctx context.Context, nu NewUser) (User, error) {
	now := svc.now()
	usr := User{
		Email:     nu.Email,
		UserID:    nu.UserID,
		Name:      nu.Name,
		Role:      nu.Role,
		IsTeacher: nu.IsTeacher || nu.Role == RoleTeacher,
		Group:     nu.Group,
		Members:   []string(nu.Members),
		Resources: DefaultResources(),
		CreatedAt: now,
		UpdatedAt: now,
	}
	if usr.Members == nil {
		usr.Members = []string{}
	}
	if err := usr.SetPassword(nu.Password); err != nil {
		return User{}, errors.Wrap(err, "hashing password")
	}
	return svc.repo.CreateUser(ctx, usr)
}

// Create creates a validated NewUser.
// An already registered login key is reported as a core.ValidationError.
func (svc *Service) Create(ctx context.Context, nu NewUser) (User, error) {
	if err := svc.checkUniqueness(ctx, nu.Email, nu.UserID); err != nil {
		if IsConflict(err) {
			return User{}, core.NewValidationError(err)
		}
		return User{}, err
	}
	usr, err := svc.create(ctx, nu)
	if err != nil {
		if IsConflict(err) {
			return User{}, core.NewValidationError(errors.Cause(err))
		}
		return User{}, errors.Wrap(err, "creating user")
	}
	return usr, nil
}

func (svc *Service) GetByID(ctx context.Context, id string) (User, error) {
	return svc.repo.GetUser(ctx, GetFilter{ID: id})
}

func (svc *Service) GetByEmail(ctx context.Context, email string) (User, error) {
	return svc.repo.GetUser(ctx, GetFilter{Email: core.CleanString(email, true /* lower */)})
}

func (svc *Service) GetByUserID(ctx context.Context, userID string) (User, error) {
	return svc.repo.GetUser(ctx, GetFilter{UserID: core.CleanString(userID)})
}

// GetByLoginKey finds the User a login key belongs to, following ClassifyLoginKey.
func (svc *Service) GetByLoginKey(ctx context.Context, key string) (User, error) {
	kind, key := ClassifyLoginKey(key)
	if key == "" {
		return User{}, ErrNotFound
	}
	if kind == KeyEmail {
		return svc.repo.GetUser(ctx, GetFilter{Email: key})
	}
	return svc.repo.GetUser(ctx, GetFilter{UserID: key})
}

// Query lists users, newest first unless orderings say otherwise.
func (svc *Service) Query(ctx context.Context, filter QueryFilter, orderings ...core.DBOrdering) ([]User, error) {
	if len(orderings) == 0 {
		orderings = defaultOrdering
	}
	users, err := svc.repo.QueryUsers(ctx, filter, orderings...)
	if err != nil {
		return nil, errors.Wrap(err, "querying users")
	}
	if users == nil {
		users = []User{}
	}
	return users, nil
}

// Update applies the set fields of uu to the User with the given id.
func (svc *Service) Update(ctx context.Context, id string, uu UpdateUser) (User, error) {
	usr, err := svc.repo.GetUser(ctx, GetFilter{ID: id})
	if err != nil {
		return User{}, err
	}

	if uu.Name != nil {
		usr.Name = core.CleanString(*uu.Name)
	}
	if uu.Group != nil {
		usr.Group = core.CleanString(*uu.Group)
	}
	if uu.Members != nil {
		usr.Members = []string(*uu.Members)
		if usr.Members == nil {
			usr.Members = []string{}
		}
	}
	if uu.Role != nil {
		usr.Role = *uu.Role
	}
	if uu.IsTeacher != nil {
		usr.IsTeacher = *uu.IsTeacher
	}
	if uu.Resources != nil {
		usr.Resources = *uu.Resources
		if usr.Resources.AllowedStages == nil {
			usr.Resources.AllowedStages = []string{}
		}
	}
	if uu.Password != nil && core.CleanString(*uu.Password) != "" {
		if err := usr.SetPassword(*uu.Password); err != nil {
			return User{}, errors.Wrap(err, "hashing password")
		}
	}
	usr.UpdatedAt = svc.now()

	return svc.repo.UpdateUser(ctx, usr)
}

// ResetPassword replaces the password of the User with the given id and nothing else.
func (svc *Service) ResetPassword(ctx context.Context, id, pwd string) error {
	hash, err := HashPassword(pwd)
	if err != nil {
		return errors.Wrap(err, "hashing password")
	}
	return svc.repo.SetPasswordHash(ctx, id, hash, svc.now())
}

// SetTeacherRights grants or revokes teacher rights; the role follows the grant.
func (svc *Service) SetTeacherRights(ctx context.Context, id string, grant bool) (User, error) {
	usr, err := svc.repo.GetUser(ctx, GetFilter{ID: id})
	if err != nil {
		return User{}, err
	}
	usr.IsTeacher = grant
	if grant {
		usr.Role = RoleTeacher
	} else {
		usr.Role = RoleStudent
	}
	usr.UpdatedAt = svc.now()
	return svc.repo.UpdateUser(ctx, usr)
}

// UpdateResources applies the set fields of ur and returns the resulting Resources.
func (svc *Service) UpdateResources(ctx context.Context, id string, ur UpdateResources) (Resources, error) {
	usr, err := svc.repo.GetUser(ctx, GetFilter{ID: id})
	if err != nil {
		return Resources{}, err
	}
	if ur.MaxWeeks != nil {
		usr.Resources.MaxWeeks = *ur.MaxWeeks
	}
	if ur.AllowedStages != nil {
		usr.Resources.AllowedStages = ur.AllowedStages
	}
	if ur.Notes != nil {
		usr.Resources.Notes = *ur.Notes
	}
	if usr.Resources.AllowedStages == nil {
		usr.Resources.AllowedStages = []string{}
	}
	usr.UpdatedAt = svc.now()

	usr, err = svc.repo.UpdateUser(ctx, usr)
	if err != nil {
		return Resources{}, err
	}
	return usr.Resources, nil
}

// ListStudents is the read-only student roster, sorted by group then name.
func (svc *Service) ListStudents(ctx context.Context) ([]Student, error) {
	users, err := svc.repo.QueryUsers(ctx, QueryFilter{Roles: []Role{RoleStudent}}, studentOrdering...)
	if err != nil {
		return nil, errors.Wrap(err, "querying students")
	}
	students := make([]Student, 0, len(users))
	for _, usr := range users {
		students = append(students, usr.AsStudent())
	}
	return students, nil
}

// ListGroups returns the sorted, distinct and non-blank groups of all students.
func (svc *Service) ListGroups(ctx context.Context) ([]string, error) {
	raw, err := svc.repo.DistinctGroups(ctx, RoleStudent)
	if err != nil {
		return nil, errors.Wrap(err, "querying student groups")
	}
	seen := make(map[string]struct{}, len(raw))
	groups := make([]string, 0, len(raw))
	for _, g := range raw {
		g = core.CleanString(g)
		if g == "" {
			continue
		}
		if _, ok := seen[g]; ok {
			continue
		}
		seen[g] = struct{}{}
		groups = append(groups, g)
	}
	sort.Strings(groups)
	return groups, nil
}
