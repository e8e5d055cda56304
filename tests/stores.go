package testutil

import (
	"context"
	"testing"
	"time"

	"github.com/pkg/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/twahidin/project-lumos/core"
	"github.com/twahidin/project-lumos/core/session"
	"github.com/twahidin/project-lumos/core/user"
	"github.com/twahidin/project-lumos/core/whodoc"
)

// UserRepositoryContract checks the behaviour every user.Repository shares.
// newRepo must return an empty repository.
func UserRepositoryContract(t *testing.T, newRepo func(t *testing.T) user.Repository) {
	ctx := context.Background()
	past := time.Now().Add(-time.Hour)

	t.Run("create and get", func(t *testing.T) {
		repo := newRepo(t)
		ana := CreateUser(t, repo, "Ana", "ana@lumos.test", "", "pwd", user.RoleTeacher, true, past)
		bob := CreateStudent(t, repo, "Bob", "S1001", "5A", past)

		for _, filter := range []user.GetFilter{{ID: ana.ID}, {Email: "ana@lumos.test"}} {
			got, err := repo.GetUser(ctx, filter)
			require.NoError(t, err)
			assert.Equal(t, ana, got)
		}
		got, err := repo.GetUser(ctx, user.GetFilter{UserID: "S1001"})
		require.NoError(t, err)
		assert.Equal(t, bob, got)

		for _, filter := range []user.GetFilter{{}, {ID: "lol"}, {Email: "nobody@lumos.test"}, {UserID: "s1001"}} {
			_, err := repo.GetUser(ctx, filter)
			assert.Equal(t, user.ErrNotFound, errors.Cause(err), "filter %+v", filter)
		}
	})

	t.Run("login keys are unique", func(t *testing.T) {
		repo := newRepo(t)
		CreateUser(t, repo, "Ana", "ana@lumos.test", "S1", "", user.RoleStudent, false)

		_, err := repo.CreateUser(ctx, user.User{Name: "Ana 2", Email: "ana@lumos.test", Role: user.RoleStudent})
		assert.Equal(t, user.ErrEmailExists, errors.Cause(err))
		_, err = repo.CreateUser(ctx, user.User{Name: "Ana 3", UserID: "S1", Role: user.RoleStudent})
		assert.Equal(t, user.ErrUserIDExists, errors.Cause(err))

		// users without an email or a student ID do not collide
		CreateUser(t, repo, "No email 1", "", "S2", "", user.RoleStudent, false)
		CreateUser(t, repo, "No email 2", "", "S3", "", user.RoleStudent, false)
		CreateUser(t, repo, "No userid", "t@lumos.test", "", "", user.RoleTeacher, false)
	})

	t.Run("query", func(t *testing.T) {
		repo := newRepo(t)
		ana := CreateStudent(t, repo, "Ana", "S1", "5A", past)
		bob := CreateStudent(t, repo, "Bob", "S2", "5B", past.Add(time.Minute))
		cleo := CreateUser(t, repo, "Cleo", "cleo@lumos.test", "", "", user.RoleTeacher, true, past.Add(2*time.Minute))
		dan := CreateUser(t, repo, "Dan", "dan@lumos.test", "", "", user.RoleAdmin, false, past.Add(3*time.Minute))

		tests := []struct {
			name      string
			filter    user.QueryFilter
			orderings []core.DBOrdering
			want      []user.User
		}{
			{name: "all, newest first", want: []user.User{dan, cleo, bob, ana}},
			{name: "by role", filter: user.QueryFilter{Roles: []user.Role{user.RoleTeacher, user.RoleAdmin}}, want: []user.User{dan, cleo}},
			{name: "by group", filter: user.QueryFilter{Group: "5B"}, want: []user.User{bob}},
			{name: "search name", filter: user.QueryFilter{Search: "CLE"}, want: []user.User{cleo}},
			{name: "search email", filter: user.QueryFilter{Search: "dan@"}, want: []user.User{dan}},
			{name: "search userid", filter: user.QueryFilter{Search: "s2"}, want: []user.User{bob}},
			{name: "search is literal", filter: user.QueryFilter{Search: "a.*"}, want: []user.User{}},
			{name: "by ids", filter: user.QueryFilter{IDs: []string{ana.ID, dan.ID, "lol"}}, want: []user.User{dan, ana}},
			{
				name: "ordered by role then name", orderings: []core.DBOrdering{{Field: "role", Ascending: true}, {Field: "name"}},
				want: []user.User{dan, bob, ana, cleo},
			},
		}
		for _, tt := range tests {
			t.Run(tt.name, func(t *testing.T) {
				got, err := repo.QueryUsers(ctx, tt.filter, tt.orderings...)
				require.NoError(t, err)
				assert.Equal(t, tt.want, got)
			})
		}
	})

	t.Run("update", func(t *testing.T) {
		repo := newRepo(t)
		ana := CreateUser(t, repo, "Ana", "ana@lumos.test", "", "pwd", user.RoleStudent, false, past)

		changed := ana
		changed.Name = "Ana B"
		changed.Role = user.RoleTeacher
		changed.IsTeacher = true
		changed.Group = "5A"
		changed.Members = []string{"x", "y"}
		changed.Resources = user.Resources{MaxWeeks: 3, AllowedStages: []string{"s1"}, Notes: "n"}
		changed.UpdatedAt = user.Now()
		changed.PasswordHash = nil
		changed.Email = "changed@lumos.test"

		got, err := repo.UpdateUser(ctx, changed)
		require.NoError(t, err)
		want := changed
		want.PasswordHash = ana.PasswordHash
		want.Email = ana.Email
		assert.Equal(t, want, got)
		assert.NoError(t, got.CheckPassword("pwd"))

		_, err = repo.UpdateUser(ctx, user.User{ID: "lol"})
		assert.Equal(t, user.ErrNotFound, errors.Cause(err))
	})

	t.Run("set password hash", func(t *testing.T) {
		repo := newRepo(t)
		ana := CreateUser(t, repo, "Ana", "ana@lumos.test", "", "pwd", user.RoleStudent, false, past)
		hash, err := user.HashPassword("new")
		require.NoError(t, err)

		now := user.Now()
		require.NoError(t, repo.SetPasswordHash(ctx, ana.ID, hash, now))
		got, err := repo.GetUser(ctx, user.GetFilter{ID: ana.ID})
		require.NoError(t, err)
		assert.NoError(t, got.CheckPassword("new"))
		assert.Equal(t, now, got.UpdatedAt)
		assert.Equal(t, ana.Name, got.Name)

		assert.Equal(t, user.ErrNotFound, errors.Cause(repo.SetPasswordHash(ctx, "lol", hash, now)))
	})

	t.Run("distinct groups", func(t *testing.T) {
		repo := newRepo(t)
		CreateStudent(t, repo, "Ana", "S1", "5A")
		CreateStudent(t, repo, "Bob", "S2", "5A")
		CreateStudent(t, repo, "Cleo", "S3", "5B ")
		CreateStudent(t, repo, "Dan", "S4", "")
		teacher := CreateUser(t, repo, "Teach", "t@lumos.test", "", "", user.RoleTeacher, true)
		teacher.Group = "staff"
		_, err := repo.UpdateUser(ctx, teacher)
		require.NoError(t, err)

		got, err := repo.DistinctGroups(ctx, user.RoleStudent)
		require.NoError(t, err)
		assert.ElementsMatch(t, []string{"5A", "5B ", ""}, got)
	})
}

// DocRepositoryContract checks the behaviour every whodoc.Repository shares.
// newRepos must return empty repositories sharing one store.
func DocRepositoryContract(t *testing.T, newRepos func(t *testing.T) (whodoc.Repository, user.Repository)) {
	ctx := context.Background()
	past := time.Now().Add(-time.Hour)

	t.Run("create, get and query", func(t *testing.T) {
		docRepo, usrRepo := newRepos(t)
		ana := CreateStudent(t, usrRepo, "Ana", "S1", "5A")
		bob := CreateStudent(t, usrRepo, "Bob", "S2", "5B")

		old := CreateDoc(t, docRepo, ana, whodoc.StatusPending, past)
		recent := CreateDoc(t, docRepo, bob, whodoc.StatusCompleted, past.Add(time.Minute))
		newest := CreateDoc(t, docRepo, ana, whodoc.StatusInProgress, past.Add(2*time.Minute))

		got, err := docRepo.GetDoc(ctx, old.ID)
		require.NoError(t, err)
		assert.Equal(t, old, got)

		_, err = docRepo.GetDoc(ctx, "lol")
		assert.Equal(t, whodoc.ErrNotFound, errors.Cause(err))

		docs, err := docRepo.QueryDocs(ctx, whodoc.QueryFilter{})
		require.NoError(t, err)
		assert.Equal(t, []whodoc.Doc{newest, recent, old}, docs)

		docs, err = docRepo.QueryDocs(ctx, whodoc.QueryFilter{UserID: ana.ID})
		require.NoError(t, err)
		assert.Equal(t, []whodoc.Doc{newest, old}, docs)

		docs, err = docRepo.QueryDocs(ctx, whodoc.QueryFilter{UserID: "lol"})
		require.NoError(t, err)
		assert.Empty(t, docs)
	})

	t.Run("update", func(t *testing.T) {
		docRepo, usrRepo := newRepos(t)
		ana := CreateStudent(t, usrRepo, "Ana", "S1", "5A")
		doc := CreateDoc(t, docRepo, ana, whodoc.StatusPending, past)

		changed := doc
		changed.Status = whodoc.StatusCompleted
		changed.Notes = "all good"
		changed.Documents = []whodoc.Document{{Name: "id.pdf", Type: "pdf", Location: "/files/id.pdf", UploadedAt: user.Now()}}
		changed.Metadata = map[string]interface{}{"reviewer": "t@lumos.test"}
		changed.UpdatedAt = user.Now()

		got, err := docRepo.UpdateDoc(ctx, changed)
		require.NoError(t, err)
		assert.Equal(t, changed, got)

		_, err = docRepo.UpdateDoc(ctx, whodoc.Doc{ID: "lol"})
		assert.Equal(t, whodoc.ErrNotFound, errors.Cause(err))
	})
}

// SessionStoreContract checks the behaviour every session.Store shares.
func SessionStoreContract(t *testing.T, newStore func(t *testing.T) session.Store) {
	ctx := context.Background()
	now := time.Now().UTC().Truncate(time.Millisecond)

	t.Run("lifecycle", func(t *testing.T) {
		store := newStore(t)
		sess := session.Session{
			ID: "sess-" + now.Format("150405.000"), IdentityID: "u1", Role: user.RoleTeacher, LoginKey: "t@lumos.test",
			CreatedAt: now, ExpiresAt: now.Add(time.Hour),
		}
		require.NoError(t, store.CreateSession(ctx, sess))

		got, err := store.GetSession(ctx, sess.ID)
		require.NoError(t, err)
		assert.Equal(t, sess, got)

		require.NoError(t, store.TouchSession(ctx, sess.ID, now.Add(2*time.Hour)))
		got, err = store.GetSession(ctx, sess.ID)
		require.NoError(t, err)
		assert.Equal(t, now.Add(2*time.Hour), got.ExpiresAt)

		require.NoError(t, store.DeleteSession(ctx, sess.ID))
		_, err = store.GetSession(ctx, sess.ID)
		assert.Equal(t, session.ErrNotFound, errors.Cause(err))

		assert.NoError(t, store.DeleteSession(ctx, sess.ID))
	})

	t.Run("super-admin", func(t *testing.T) {
		store := newStore(t)
		sess := session.Session{ID: "super", Role: user.RoleAdmin, SuperAdmin: true, LoginKey: "root", CreatedAt: now, ExpiresAt: now.Add(time.Hour)}
		require.NoError(t, store.CreateSession(ctx, sess))
		got, err := store.GetSession(ctx, sess.ID)
		require.NoError(t, err)
		assert.Equal(t, sess, got)
	})

	t.Run("expired sessions are not found", func(t *testing.T) {
		store := newStore(t)
		sess := session.Session{ID: "expired", IdentityID: "u1", Role: user.RoleStudent, CreatedAt: now.Add(-2 * time.Hour), ExpiresAt: now.Add(-time.Hour)}
		require.NoError(t, store.CreateSession(ctx, sess))
		_, err := store.GetSession(ctx, sess.ID)
		assert.Equal(t, session.ErrNotFound, errors.Cause(err))
	})

	t.Run("missing", func(t *testing.T) {
		store := newStore(t)
		_, err := store.GetSession(ctx, "missing")
		assert.Equal(t, session.ErrNotFound, errors.Cause(err))
		assert.Equal(t, session.ErrNotFound, errors.Cause(store.TouchSession(ctx, "missing", now.Add(time.Hour))))
	})
}
