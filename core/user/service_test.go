package user_test

import (
	"context"
	"testing"
	"time"

	"github.com/pkg/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/twahidin/project-lumos/core"
	"github.com/twahidin/project-lumos/core/user"
	"github.com/twahidin/project-lumos/storage/database/inmem"
	"github.com/twahidin/project-lumos/tests"
)

func setup() (*user.Service, user.Repository) {
	repo := inmemdb.NewUserRepository(inmemdb.Open())
	return user.NewService(repo), repo
}

// flakyRepository fails the lookups and creations of the student IDs it is given.
// A creation error stands for a concurrent writer taking the key after the lookup.
type flakyRepository struct {
	user.Repository
	getErrs    map[string]error
	createErrs map[string]error
}

func (repo *flakyRepository) GetUser(ctx context.Context, filter user.GetFilter) (user.User, error) {
	if err, ok := repo.getErrs[filter.UserID]; ok && filter.UserID != "" {
		return user.User{}, errors.Wrap(err, "finding user")
	}
	return repo.Repository.GetUser(ctx, filter)
}

func (repo *flakyRepository) CreateUser(ctx context.Context, usr user.User) (user.User, error) {
	if err, ok := repo.createErrs[usr.UserID]; ok && usr.UserID != "" {
		return user.User{}, err
	}
	return repo.Repository.CreateUser(ctx, usr)
}

func TestUser_Capabilities(t *testing.T) {
	tests := []struct {
		name      string
		role      user.Role
		isTeacher bool
		want      user.Capability
	}{
		{name: "student", role: user.RoleStudent, want: user.CapStudent},
		{name: "flagged student", role: user.RoleStudent, isTeacher: true, want: user.CapStudent | user.CapTeacher},
		{name: "teacher", role: user.RoleTeacher, isTeacher: true, want: user.CapTeacher},
		{name: "teacher without flag", role: user.RoleTeacher, want: user.CapTeacher},
		{name: "admin", role: user.RoleAdmin, want: user.CapAdmin},
		{name: "teaching admin", role: user.RoleAdmin, isTeacher: true, want: user.CapAdmin | user.CapTeacher},
		{name: "unknown role", role: "wizard"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := user.User{Role: tt.role, IsTeacher: tt.isTeacher}.Capabilities()
			assert.Equal(t, tt.want, got)
		})
	}

	assert.False(t, user.CapStudent.Has(0))
	assert.True(t, (user.CapStudent | user.CapTeacher).HasAny(user.CapTeacher|user.CapAdmin))
	assert.Equal(t, "student,teacher", (user.CapStudent | user.CapTeacher).String())
}

func TestClassifyLoginKey(t *testing.T) {
	tests := []struct {
		key      string
		wantKind user.KeyKind
		wantKey  string
	}{
		{key: " S1001 ", wantKind: user.KeyStudentID, wantKey: "S1001"},
		{key: "Ana@Lumos.Test ", wantKind: user.KeyEmail, wantKey: "ana@lumos.test"},
		{key: "weird@id", wantKind: user.KeyEmail, wantKey: "weird@id"},
	}
	for _, tt := range tests {
		t.Run(tt.key, func(t *testing.T) {
			kind, key := user.ClassifyLoginKey(tt.key)
			assert.Equal(t, tt.wantKind, kind)
			assert.Equal(t, tt.wantKey, key)
		})
	}
}

func TestParseRole(t *testing.T) {
	assert.Equal(t, user.RoleAdmin, user.ParseRole(" ADMIN "))
	assert.Equal(t, user.RoleTeacher, user.ParseRole("teacher"))
	assert.Equal(t, user.RoleStudent, user.ParseRole(""))
	assert.Equal(t, user.RoleStudent, user.ParseRole("wizard"))
}

func TestService_Create(t *testing.T) {
	svc, repo := setup()
	ctx := context.Background()

	nu := user.NewUser{Email: "ana@lumos.test", Password: "pwd", Name: "Ana", Role: user.RoleTeacher}
	usr, err := svc.Create(ctx, nu)
	require.NoError(t, err)
	assert.NotEmpty(t, usr.ID)
	assert.True(t, usr.IsTeacher)
	assert.Equal(t, user.DefaultResources(), usr.Resources)
	assert.Equal(t, []string{}, usr.Members)
	assert.Equal(t, usr.CreatedAt, usr.UpdatedAt)
	assert.NoError(t, usr.CheckPassword("pwd"))

	_, err = svc.Create(ctx, nu)
	require.Error(t, err)
	vErr, ok := errors.Cause(err).(*core.ValidationError)
	require.True(t, ok, "want a *core.ValidationError, got %T", err)
	assert.Equal(t, user.ErrEmailExists, vErr.Err)

	testutil.CreateStudent(t, repo, "Bob", "S1001", "")
	_, err = svc.Create(ctx, user.NewUser{UserID: "S1001", Password: "pwd", Name: "Bob 2"})
	require.Error(t, err)
	assert.True(t, user.IsConflict(errors.Cause(err).(*core.ValidationError).Err))
}

func TestService_Create_teacherRights(t *testing.T) {
	tests := []struct {
		name      string
		role      user.Role
		isTeacher bool
		want      bool
	}{
		{name: "student", role: user.RoleStudent},
		{name: "teacher", role: user.RoleTeacher, want: true},
		{name: "admin", role: user.RoleAdmin},
		{name: "teaching admin", role: user.RoleAdmin, isTeacher: true, want: true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			svc, repo := setup()
			usr, err := svc.Create(context.Background(), user.NewUser{
				Email: "x@lumos.test", Password: "pwd", Name: "X", Role: tt.role, IsTeacher: tt.isTeacher,
			})
			require.NoError(t, err)
			assert.Equal(t, tt.want, usr.IsTeacher)

			stored, err := repo.GetUser(context.Background(), user.GetFilter{ID: usr.ID})
			require.NoError(t, err)
			assert.Equal(t, tt.want, stored.IsTeacher)
		})
	}
}

func TestService_GetByLoginKey(t *testing.T) {
	svc, repo := setup()
	ctx := context.Background()
	ana := testutil.CreateUser(t, repo, "Ana", "ana@lumos.test", "", "", user.RoleTeacher, true)
	bob := testutil.CreateStudent(t, repo, "Bob", "S1001", "")

	got, err := svc.GetByLoginKey(ctx, " ANA@lumos.test")
	require.NoError(t, err)
	assert.Equal(t, ana.ID, got.ID)

	got, err = svc.GetByLoginKey(ctx, "S1001 ")
	require.NoError(t, err)
	assert.Equal(t, bob.ID, got.ID)

	// student IDs are case sensitive
	_, err = svc.GetByLoginKey(ctx, "s1001")
	assert.Equal(t, user.ErrNotFound, err)

	_, err = svc.GetByLoginKey(ctx, "  ")
	assert.Equal(t, user.ErrNotFound, err)
}

func TestService_ResetPassword(t *testing.T) {
	svc, repo := setup()
	ctx := context.Background()
	past := time.Now().Add(-time.Hour)
	usr := testutil.CreateUser(t, repo, "Ana", "ana@lumos.test", "", "old", user.RoleStudent, false, past)

	require.NoError(t, svc.ResetPassword(ctx, usr.ID, "new"))
	got, err := repo.GetUser(ctx, user.GetFilter{ID: usr.ID})
	require.NoError(t, err)
	assert.NoError(t, got.CheckPassword("new"))
	assert.True(t, got.UpdatedAt.After(usr.UpdatedAt))
	got.PasswordHash, got.UpdatedAt = usr.PasswordHash, usr.UpdatedAt
	assert.Equal(t, usr, got)

	assert.Equal(t, user.ErrNotFound, svc.ResetPassword(ctx, "nope", "new"))
}

func TestService_SetTeacherRights(t *testing.T) {
	svc, repo := setup()
	ctx := context.Background()
	usr := testutil.CreateStudent(t, repo, "Ana", "S1001", "5A")

	got, err := svc.SetTeacherRights(ctx, usr.ID, true)
	require.NoError(t, err)
	assert.True(t, got.IsTeacher)
	assert.Equal(t, user.RoleTeacher, got.Role)

	got, err = svc.SetTeacherRights(ctx, usr.ID, false)
	require.NoError(t, err)
	assert.False(t, got.IsTeacher)
	assert.Equal(t, user.RoleStudent, got.Role)

	_, err = svc.SetTeacherRights(ctx, "nope", true)
	assert.Equal(t, user.ErrNotFound, err)
}

func TestService_UpdateResources(t *testing.T) {
	svc, repo := setup()
	ctx := context.Background()
	usr := testutil.CreateStudent(t, repo, "Ana", "S1001", "5A")

	weeks := 3
	res, err := svc.UpdateResources(ctx, usr.ID, user.UpdateResources{MaxWeeks: &weeks})
	require.NoError(t, err)
	assert.Equal(t, user.Resources{MaxWeeks: 3, AllowedStages: []string{}}, res)

	notes := "n"
	res, err = svc.UpdateResources(ctx, usr.ID, user.UpdateResources{AllowedStages: []string{"a"}, Notes: &notes})
	require.NoError(t, err)
	assert.Equal(t, user.Resources{MaxWeeks: 3, AllowedStages: []string{"a"}, Notes: "n"}, res)
}

func TestService_rosters(t *testing.T) {
	svc, repo := setup()
	ctx := context.Background()

	cleo := testutil.CreateStudent(t, repo, "Cleo", "S3", "5B")
	ana := testutil.CreateStudent(t, repo, "Ana", "S1", "5B")
	bob := testutil.CreateStudent(t, repo, "Bob", "S2", "5A ")
	zoe := testutil.CreateStudent(t, repo, "Zoe", "S4", "")
	testutil.CreateUser(t, repo, "Teach", "t@lumos.test", "", "", user.RoleTeacher, true)

	students, err := svc.ListStudents(ctx)
	require.NoError(t, err)
	assert.Equal(t, []user.Student{zoe.AsStudent(), bob.AsStudent(), ana.AsStudent(), cleo.AsStudent()}, students)

	groups, err := svc.ListGroups(ctx)
	require.NoError(t, err)
	assert.Equal(t, []string{"5A", "5B"}, groups)
}

func TestService_Import(t *testing.T) {
	ctx := context.Background()

	t.Run("duplicate key in one batch", func(t *testing.T) {
		svc, repo := setup()
		rows := []user.ImportRow{
			{"userid": "s1", "name": "Ana"},
			{"userid": "s1", "name": "Ana2"},
			{"email": "bad"},
		}
		res := svc.Import(ctx, rows, " changeme123 ")

		require.Len(t, res.Created, 1)
		assert.Equal(t, user.ImportedUser{ID: res.Created[0].ID, UserID: "s1", Name: "Ana"}, res.Created[0])
		assert.Equal(t, []user.ImportedUser{{UserID: "s1", Name: "Ana2"}}, res.Skipped)
		assert.Equal(t, []user.ImportError{{Row: rows[2], Message: "Missing userid"}}, res.Errors)

		usr, err := repo.GetUser(ctx, user.GetFilter{UserID: "s1"})
		require.NoError(t, err)
		assert.Equal(t, "Ana", usr.Name)
		assert.Equal(t, user.RoleStudent, usr.Role)
		assert.False(t, usr.IsTeacher)
		assert.NoError(t, usr.CheckPassword("changeme123"))
	})

	t.Run("key already stored", func(t *testing.T) {
		svc, repo := setup()
		testutil.CreateStudent(t, repo, "Ana", "s1", "")

		res := svc.Import(ctx, []user.ImportRow{{"userid": "s1", "name": "Ana"}, {"userid": "s1", "name": "Ana2"}}, "pwd")
		assert.Empty(t, res.Created)
		assert.Equal(t, []user.ImportedUser{{UserID: "s1", Name: "Ana"}, {UserID: "s1", Name: "Ana2"}}, res.Skipped)
		assert.Empty(t, res.Errors)
	})

	t.Run("aliases", func(t *testing.T) {
		svc, repo := setup()
		rows := []user.ImportRow{
			{"UserID": " u1 ", "fullName": "Full", "Group": "5A"},
			{"studentid": 42.0, "class": "5B"},
			{"userid": "", "EMAIL": "Eve@Lumos.Test", "full_name": "Eve"},
			{"userId": nil, "name": "No Key"},
		}
		res := svc.Import(ctx, rows, "pwd")

		require.Len(t, res.Created, 3)
		assert.Equal(t, "u1", res.Created[0].UserID)
		assert.Equal(t, "Full", res.Created[0].Name)
		assert.Equal(t, "42", res.Created[1].UserID)
		assert.Equal(t, "42", res.Created[1].Name)
		assert.Equal(t, "eve@lumos.test", res.Created[2].Email)
		assert.Equal(t, "Eve", res.Created[2].Name)
		require.Len(t, res.Errors, 1)
		assert.Equal(t, rows[3], res.Errors[0].Row)

		usr, err := repo.GetUser(ctx, user.GetFilter{UserID: "42"})
		require.NoError(t, err)
		assert.Equal(t, "5B", usr.Group)
	})

	t.Run("store failures stay on their row", func(t *testing.T) {
		_, inner := setup()
		repo := &flakyRepository{
			Repository: inner,
			getErrs:    map[string]error{"s2": errors.New("store down")},
			createErrs: map[string]error{"s3": user.ErrUserIDExists},
		}
		svc := user.NewService(repo)
		rows := []user.ImportRow{
			{"userid": "s1"},
			{"userid": "s2"},
			{"userid": "s3"},
			{"userid": "s4"},
		}
		res := svc.Import(ctx, rows, "pwd")

		require.Len(t, res.Created, 2)
		assert.Equal(t, "s1", res.Created[0].UserID)
		assert.Equal(t, "s4", res.Created[1].UserID)
		assert.Empty(t, res.Skipped)
		assert.Equal(t, []user.ImportError{
			{Row: rows[1], Message: "store down"},
			{Row: rows[2], Message: "User ID already registered"},
		}, res.Errors)

		_, err := inner.GetUser(ctx, user.GetFilter{UserID: "s4"})
		assert.NoError(t, err)
	})

	t.Run("empty batch", func(t *testing.T) {
		svc, _ := setup()
		res := svc.Import(ctx, nil, "pwd")
		assert.Equal(t, user.ImportResult{Created: []user.ImportedUser{}, Skipped: []user.ImportedUser{}, Errors: []user.ImportError{}}, res)
	})
}
