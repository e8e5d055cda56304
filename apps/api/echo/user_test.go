package echoapi

import (
	"context"
	"encoding/json"
	"net/http"
	"net/url"
	"strings"
	"testing"
	"time"

	"github.com/pkg/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/twahidin/project-lumos/core/auth"
	"github.com/twahidin/project-lumos/core/user"
	"github.com/twahidin/project-lumos/tests"
)

func Test_userApi_guard(t *testing.T) {
	app := setup(t)

	now := time.Now()
	student := testutil.CreateUser(t, app.usrRepo, "Hero", "", "S1001", "", user.RoleStudent, false, now)
	flagged := testutil.CreateUser(t, app.usrRepo, "Flag", "", "S1002", "", user.RoleStudent, true, now.Add(time.Minute))
	teacher := testutil.CreateUser(t, app.usrRepo, "Teach", "teach@lumos.test", "", "", user.RoleTeacher, true, now.Add(2*time.Minute))
	admin := testutil.CreateUser(t, app.usrRepo, "Admin", "admin@lumos.test", "", "", user.RoleAdmin, false, now.Add(3*time.Minute))
	adminRequired := marchallObj(t, httpErr{Error: "Admin access required"})

	tests := []httpTest{
		{name: "student", cookie: app.loginUser(t, student), wantCode: http.StatusForbidden, wantData: adminRequired},
		{name: "flagged student", cookie: app.loginUser(t, flagged), wantCode: http.StatusForbidden, wantData: adminRequired},
		{name: "teacher", cookie: app.loginUser(t, teacher), wantCode: http.StatusForbidden, wantData: adminRequired},
		{name: "admin", cookie: app.loginUser(t, admin), wantCode: http.StatusOK, wantData: marchallList(t, admin, teacher, flagged, student)},
		{
			name: "super-admin", cookie: app.login(t, auth.SuperAdmin{Login: superLogin}),
			wantCode: http.StatusOK, wantData: marchallList(t, admin, teacher, flagged, student),
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			tt.path = "/api/admin/users"
			checkCodeAndData(t, tt, tt.run(t, app))
		})
	}

	t.Run("anonymous", func(t *testing.T) {
		checkRedirect(t, httpTest{path: "/api/admin/users"}.run(t, app), auth.LoginPage)
	})

	t.Run("deleted admin", func(t *testing.T) {
		cookie := app.login(t, auth.StoredIdentity{User: user.User{ID: "gone", Role: user.RoleAdmin}})
		rec := httpTest{path: "/api/admin/users", cookie: cookie}.run(t, app)
		assert.Equal(t, http.StatusForbidden, rec.Code)
	})
}

// downUsers fails every user lookup while down is set.
type downUsers struct {
	user.Repository
	down bool
}

func (repo *downUsers) GetUser(ctx context.Context, filter user.GetFilter) (user.User, error) {
	if repo.down {
		return user.User{}, errors.New("users unavailable")
	}
	return repo.Repository.GetUser(ctx, filter)
}

func Test_userApi_guardStoreFailure(t *testing.T) {
	repo := new(downUsers)
	app := setup(t, func(inner user.Repository) user.Repository {
		repo.Repository = inner
		return repo
	})
	admin := testutil.CreateUser(t, app.usrRepo, "Admin", "admin@lumos.test", "", "", user.RoleAdmin, false)
	cookie := app.loginUser(t, admin)
	repo.down = true

	tests := []httpTest{
		{name: "admin route", path: "/api/admin/users"},
		{name: "teacher route", path: "/api/teacher/groups"},
		{name: "me", path: "/api/auth/me"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			tt.cookie = cookie
			tt.wantCode = http.StatusInternalServerError
			tt.wantData = marchallObj(t, httpErr{Error: "users unavailable"})
			checkCodeAndData(t, tt, tt.run(t, app))
		})
	}

	t.Run("session survives", func(t *testing.T) {
		repo.down = false
		rec := httpTest{path: "/api/auth/me", cookie: cookie}.run(t, app)
		assert.Equal(t, http.StatusOK, rec.Code)
	})
}

func Test_userApi_query(t *testing.T) {
	app := setup(t)

	path := func(search, ordering, group string, roles ...string) string {
		v := make(url.Values)
		if search != "" {
			v.Add("search", search)
		}
		if ordering != "" {
			v.Add("ordering", ordering)
		}
		if group != "" {
			v.Add("group", group)
		}
		for _, r := range roles {
			v.Add("role", r)
		}
		return "/api/admin/users?" + v.Encode()
	}

	now := time.Now()
	admin := testutil.CreateUser(t, app.usrRepo, "Zed Admin", "admin@lumos.test", "", "", user.RoleAdmin, false, now)
	ana := testutil.CreateStudent(t, app.usrRepo, "Ana", "S1001", "5A", now.Add(1*time.Hour))
	bob := testutil.CreateStudent(t, app.usrRepo, "Bob", "S1002", "5B", now.Add(2*time.Hour))
	teacher := testutil.CreateUser(t, app.usrRepo, "Carla", "carla@lumos.test", "", "", user.RoleTeacher, true, now.Add(3*time.Hour))

	cookie := app.loginUser(t, admin)
	empty := marchallList(t)

	tests := []httpTest{
		{name: "all, newest first", path: path("", "", ""), wantData: marchallList(t, teacher, bob, ana, admin)},
		{name: "search (unknown)", path: path("lol", "", ""), wantData: empty},
		{name: "search=s100", path: path("s100", "", ""), wantData: marchallList(t, bob, ana)},
		{name: "search=LUMOS", path: path("LUMOS", "", ""), wantData: marchallList(t, teacher, admin)},
		{name: "role (unknown)", path: path("", "", "", "lol"), wantData: empty},
		{name: "role=Student", path: path("", "", "", " Student "), wantData: marchallList(t, bob, ana)},
		{name: "role=teacher,admin", path: path("", "", "", "teacher", "admin"), wantData: marchallList(t, teacher, admin)},
		{name: "group=5A", path: path("", "", "5A"), wantData: marchallList(t, ana)},
		{name: "ordering=name", path: path("", "name", ""), wantData: marchallList(t, ana, bob, teacher, admin)},
		{name: "ordering=-name", path: path("", "-name", ""), wantData: marchallList(t, admin, teacher, bob, ana)},
		{name: "ordering=role,name", path: path("", "role,name", ""), wantData: marchallList(t, admin, ana, bob, teacher)},
		{name: "ordering (unknown)", path: path("", "password", ""), wantData: marchallList(t, teacher, bob, ana, admin)},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			tt.cookie, tt.wantCode = cookie, http.StatusOK
			checkCodeAndData(t, tt, tt.run(t, app))
		})
	}
}

func Test_userApi_create(t *testing.T) {
	app := setup(t)

	admin := testutil.CreateUser(t, app.usrRepo, "Admin", "admin@lumos.test", "", "", user.RoleAdmin, false)
	cookie := app.loginUser(t, admin)
	loginKeyRequired := "one of email or userid is required"

	tests := []struct {
		httpTest
		wantUser *CreatedUserResponse
	}{
		{
			httpTest: httpTest{
				name: "blank", body: []byte(`{}`), wantCode: http.StatusBadRequest,
				wantData: marchallObj(t, map[string]string{
					"email":    loginKeyRequired,
					"userid":   loginKeyRequired,
					"password": "password is a required field",
					"name":     "name is a required field",
				}),
			},
		},
		{
			httpTest: httpTest{
				name: "invalid email", body: []byte(`{"email": "nope", "password": "pwd", "name": "N"}`),
				wantCode: http.StatusBadRequest, wantData: marchallObj(t, map[string]string{"email": "email must be a valid email address"}),
			},
		},
		{
			httpTest: httpTest{
				name: "email taken", body: []byte(`{"email": " ADMIN@lumos.test", "password": "pwd", "name": "Other"}`),
				wantCode: http.StatusBadRequest, wantData: marchallObj(t, httpErr{Error: "Email already registered"}),
			},
		},
		{
			httpTest: httpTest{
				name: "student", body: []byte(`{"userid": " S1001 ", "password": "pwd", "name": " Ana ", "group": "5A", "members": "a, b,,"}`),
				wantCode: http.StatusCreated,
			},
			wantUser: &CreatedUserResponse{UserID: "S1001", Name: "Ana", Role: user.RoleStudent},
		},
		{
			httpTest: httpTest{
				name: "userid taken", body: []byte(`{"userid": "S1001", "password": "pwd", "name": "Again"}`),
				wantCode: http.StatusBadRequest, wantData: marchallObj(t, httpErr{Error: "User ID already registered"}),
			},
		},
		{
			httpTest: httpTest{
				name: "unknown role is student", body: []byte(`{"email": "t@lumos.test", "password": "pwd", "name": "T", "role": "wizard"}`),
				wantCode: http.StatusCreated,
			},
			wantUser: &CreatedUserResponse{Email: "t@lumos.test", Name: "T", Role: user.RoleStudent},
		},
		{
			httpTest: httpTest{
				name: "teacher", body: []byte(`{"email": "Teach@Lumos.test", "password": "pwd", "name": "Teach", "role": "TEACHER"}`),
				wantCode: http.StatusCreated,
			},
			wantUser: &CreatedUserResponse{Email: "teach@lumos.test", Name: "Teach", Role: user.RoleTeacher},
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			tt.method, tt.path, tt.cookie = http.MethodPost, "/api/admin/users", cookie
			rec := tt.run(t, app)
			if tt.wantUser == nil {
				checkCodeAndData(t, tt.httpTest, rec)
				return
			}

			require.Equal(t, tt.wantCode, rec.Code)
			var got CreatedUserResponse
			require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &got))
			require.NotEmpty(t, got.ID)
			tt.wantUser.ID = got.ID
			assert.Equal(t, *tt.wantUser, got)

			usr, err := app.usrRepo.GetUser(context.Background(), user.GetFilter{ID: got.ID})
			require.NoError(t, err)
			assert.NoError(t, usr.CheckPassword("pwd"))
			assert.Equal(t, tt.wantUser.Role == user.RoleTeacher, usr.IsTeacher)
			assert.Equal(t, user.DefaultResources(), usr.Resources)
		})
	}

	// members accept a comma-separated string
	usr, err := app.usrRepo.GetUser(context.Background(), user.GetFilter{UserID: "S1001"})
	require.NoError(t, err)
	assert.Equal(t, []string{"a", "b"}, usr.Members)
	assert.Equal(t, "5A", usr.Group)
}

func Test_userApi_bulkCreate(t *testing.T) {
	app := setup(t)

	admin := testutil.CreateUser(t, app.usrRepo, "Admin", "admin@lumos.test", "", "", user.RoleAdmin, false)
	existing := testutil.CreateStudent(t, app.usrRepo, "Old", "S0001", "")
	cookie := app.loginUser(t, admin)

	bulk := func(t *testing.T, contentType string, body string) (int, user.ImportResult) {
		req, rec := newAuthRequest(http.MethodPost, "/api/admin/users/bulk", cookie, []byte(body))
		req.Header.Set("Content-Type", contentType)
		app.ServeHTTP(rec, req)

		var res user.ImportResult
		if rec.Code == http.StatusOK {
			require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &res))
		}
		return rec.Code, res
	}

	t.Run("students required", func(t *testing.T) {
		for _, body := range []string{`{}`, `{"students": []}`} {
			tt := httpTest{
				method: http.MethodPost, path: "/api/admin/users/bulk", cookie: cookie, body: []byte(body),
				wantCode: http.StatusBadRequest, wantData: marchallObj(t, httpErr{Error: errStudentsRequired}),
			}
			checkCodeAndData(t, tt, tt.run(t, app))
		}
	})

	t.Run("duplicate in batch and missing key", func(t *testing.T) {
		code, res := bulk(t, "application/json", `{"students": [
			{"userid": "s1", "name": "Ana"},
			{"userid": "s1", "name": "Ana2"},
			{"email": "bad"}
		], "defaultPassword": "changeme123"}`)
		require.Equal(t, http.StatusOK, code)

		require.Len(t, res.Created, 1)
		assert.NotEmpty(t, res.Created[0].ID)
		assert.Equal(t, "s1", res.Created[0].UserID)
		assert.Equal(t, "Ana", res.Created[0].Name)
		assert.Equal(t, []user.ImportedUser{{UserID: "s1", Name: "Ana2"}}, res.Skipped)
		require.Len(t, res.Errors, 1)
		assert.Equal(t, user.ImportRow{"email": "bad"}, res.Errors[0].Row)
		assert.Equal(t, "Missing userid", res.Errors[0].Message)

		usr, err := app.usrRepo.GetUser(context.Background(), user.GetFilter{UserID: "s1"})
		require.NoError(t, err)
		assert.Equal(t, user.RoleStudent, usr.Role)
		assert.NoError(t, usr.CheckPassword("changeme123"))
	})

	t.Run("aliases, existing key and configured password", func(t *testing.T) {
		code, res := bulk(t, "application/json", `{"students": [
			{"StudentID": 2001, "Name": "Cleo", "class": "6A"},
			{"studentId": "S0001", "name": "Not Old"},
			{"Email": "Dan@Lumos.test"}
		]}`)
		require.Equal(t, http.StatusOK, code)

		require.Len(t, res.Created, 2)
		assert.Equal(t, "2001", res.Created[0].UserID)
		assert.Equal(t, "dan@lumos.test", res.Created[1].Email)
		assert.Equal(t, "dan@lumos.test", res.Created[1].Name)
		assert.Equal(t, []user.ImportedUser{{UserID: existing.UserID, Name: "Not Old"}}, res.Skipped)
		assert.Empty(t, res.Errors)

		usr, err := app.usrRepo.GetUser(context.Background(), user.GetFilter{UserID: "2001"})
		require.NoError(t, err)
		assert.Equal(t, "6A", usr.Group)
		assert.NoError(t, usr.CheckPassword(app.conf.Import.DefaultPassword))
	})

	t.Run("csv", func(t *testing.T) {
		csv := strings.Join([]string{
			"userid,name,group",
			"c1,Eve,7A",
			",,",
			"c1,Eve Again,7A",
			",Nobody,7B",
		}, "\n")
		code, res := bulk(t, "text/csv; charset=utf-8", csv)
		require.Equal(t, http.StatusOK, code)

		require.Len(t, res.Created, 1)
		assert.Equal(t, "c1", res.Created[0].UserID)
		assert.Equal(t, []user.ImportedUser{{UserID: "c1", Name: "Eve Again"}}, res.Skipped)
		require.Len(t, res.Errors, 1)
		assert.Equal(t, "Missing userid", res.Errors[0].Message)
	})

	t.Run("empty csv", func(t *testing.T) {
		code, _ := bulk(t, "text/csv", "")
		assert.Equal(t, http.StatusBadRequest, code)
	})
}

func Test_userApi_detail(t *testing.T) {
	app := setup(t)

	admin := testutil.CreateUser(t, app.usrRepo, "Admin", "admin@lumos.test", "", "", user.RoleAdmin, false)
	student := testutil.CreateUser(t, app.usrRepo, "Ana", "", "S1001", "old-pwd", user.RoleStudent, false)
	cookie := app.loginUser(t, admin)
	notFound := marchallObj(t, httpErr{Error: "User not found"})
	ctx := context.Background()

	t.Run("retrieve", func(t *testing.T) {
		tests := []httpTest{
			{name: "unknown", path: "/api/admin/users/nope", wantCode: http.StatusNotFound, wantData: notFound},
			{name: "found", path: "/api/admin/users/" + student.ID, wantCode: http.StatusOK, wantData: marchallObj(t, student)},
		}
		for _, tt := range tests {
			t.Run(tt.name, func(t *testing.T) {
				tt.cookie = cookie
				checkCodeAndData(t, tt, tt.run(t, app))
			})
		}
	})

	t.Run("update", func(t *testing.T) {
		tt := httpTest{method: http.MethodPatch, path: "/api/admin/users/nope", cookie: cookie, body: []byte(`{}`), wantCode: http.StatusNotFound, wantData: notFound}
		checkCodeAndData(t, tt, tt.run(t, app))

		tt = httpTest{method: http.MethodPatch, path: "/api/admin/users/" + student.ID, cookie: cookie, body: []byte(`{"role": "wizard"}`)}
		rec := tt.run(t, app)
		assert.Equal(t, http.StatusBadRequest, rec.Code)

		tt.body = []byte(`{"name": " Ana B ", "group": "5B", "members": ["x"], "isTeacher": true, "password": "new-pwd"}`)
		rec = tt.run(t, app)
		require.Equal(t, http.StatusOK, rec.Code)

		usr, err := app.usrRepo.GetUser(ctx, user.GetFilter{ID: student.ID})
		require.NoError(t, err)
		assert.Equal(t, "Ana B", usr.Name)
		assert.Equal(t, "5B", usr.Group)
		assert.Equal(t, []string{"x"}, usr.Members)
		assert.True(t, usr.IsTeacher)
		assert.Equal(t, user.RoleStudent, usr.Role)
		assert.Equal(t, student.UserID, usr.UserID)
		assert.Equal(t, student.CreatedAt, usr.CreatedAt)
		assert.NoError(t, usr.CheckPassword("new-pwd"))
		checkCodeAndData(t, httpTest{wantCode: http.StatusOK, wantData: marchallObj(t, usr)}, rec)

		// a blank password leaves the hash alone
		tt.body = []byte(`{"password": "  "}`)
		require.Equal(t, http.StatusOK, tt.run(t, app).Code)
		usr, err = app.usrRepo.GetUser(ctx, user.GetFilter{ID: student.ID})
		require.NoError(t, err)
		assert.NoError(t, usr.CheckPassword("new-pwd"))
	})

	t.Run("reset-password", func(t *testing.T) {
		path := "/api/admin/users/" + student.ID + "/reset-password"
		tests := []httpTest{
			{
				name: "blank", path: path, body: []byte(`{"newPassword": " "}`), wantCode: http.StatusBadRequest,
				wantData: marchallObj(t, map[string]string{"newPassword": "newPassword cannot be blank"}),
			},
			{name: "unknown", path: "/api/admin/users/nope/reset-password", body: []byte(`{"newPassword": "pwd"}`), wantCode: http.StatusNotFound, wantData: notFound},
			{name: "ok", path: path, body: []byte(`{"newPassword": "reset-pwd"}`), wantCode: http.StatusOK, wantData: marchallObj(t, OkResponse{Ok: true})},
		}
		for _, tt := range tests {
			t.Run(tt.name, func(t *testing.T) {
				tt.method, tt.cookie = http.MethodPost, cookie
				checkCodeAndData(t, tt, tt.run(t, app))
			})
		}

		before, err := app.usrRepo.GetUser(ctx, user.GetFilter{ID: student.ID})
		require.NoError(t, err)
		assert.NoError(t, before.CheckPassword("reset-pwd"))
		assert.Equal(t, "Ana B", before.Name)
	})

	t.Run("teacher-rights", func(t *testing.T) {
		path := "/api/admin/users/" + student.ID + "/teacher-rights"

		rec := httpTest{method: http.MethodPost, path: path, cookie: cookie, body: []byte(`{"grant": true}`)}.run(t, app)
		require.Equal(t, http.StatusOK, rec.Code)
		usr, err := app.usrRepo.GetUser(ctx, user.GetFilter{ID: student.ID})
		require.NoError(t, err)
		assert.True(t, usr.IsTeacher)
		assert.Equal(t, user.RoleTeacher, usr.Role)

		rec = httpTest{method: http.MethodPost, path: path, cookie: cookie, body: []byte(`{"grant": false}`)}.run(t, app)
		require.Equal(t, http.StatusOK, rec.Code)
		usr, err = app.usrRepo.GetUser(ctx, user.GetFilter{ID: student.ID})
		require.NoError(t, err)
		assert.False(t, usr.IsTeacher)
		assert.Equal(t, user.RoleStudent, usr.Role)
	})

	t.Run("resources", func(t *testing.T) {
		path := "/api/admin/users/" + student.ID + "/resources"
		tests := []httpTest{
			{
				name: "negative weeks", body: []byte(`{"maxWeeks": -1}`), wantCode: http.StatusBadRequest,
				wantData: marchallObj(t, map[string]string{"maxWeeks": "maxWeeks must be 0 or greater"}),
			},
			{
				name: "partial", body: []byte(`{"allowedStages": ["s1", "s2"]}`), wantCode: http.StatusOK,
				wantData: marchallObj(t, user.Resources{MaxWeeks: user.DefaultMaxWeeks, AllowedStages: []string{"s1", "s2"}}),
			},
			{
				name: "notes and weeks", body: []byte(`{"maxWeeks": 4, "notes": "extra"}`), wantCode: http.StatusOK,
				wantData: marchallObj(t, user.Resources{MaxWeeks: 4, AllowedStages: []string{"s1", "s2"}, Notes: "extra"}),
			},
		}
		for _, tt := range tests {
			t.Run(tt.name, func(t *testing.T) {
				tt.method, tt.path, tt.cookie = http.MethodPost, path, cookie
				checkCodeAndData(t, tt, tt.run(t, app))
			})
		}
	})
}
