package testutil

import (
	"context"
	"testing"
	"time"

	"github.com/twahidin/project-lumos/core"
	"github.com/twahidin/project-lumos/core/user"
	"github.com/twahidin/project-lumos/core/whodoc"
)

// Config loads a TEST configuration backed by the in-memory store.
func Config(t *testing.T) *core.Config {
	t.Setenv("ENV", core.EnvTest)
	t.Setenv("DB_ENGINE", core.EngineMemory)
	t.Setenv("SESSION_STORE", "")
	conf, err := core.NewConfig()
	if err != nil {
		t.Fatalf("Config() failed: %v", err)
	}
	return conf
}

func CreateUser(
	t *testing.T,
	repo user.Repository,
	name, email, userID, pwd string,
	role user.Role,
	isTeacher bool,
	createdAt ...time.Time,
) user.User {
	tstamp := user.Now()
	if len(createdAt) > 0 {
		tstamp = createdAt[0].UTC().Truncate(time.Millisecond)
	}
	usr := user.User{
		Name:      name,
		Email:     email,
		UserID:    userID,
		Role:      role,
		IsTeacher: isTeacher,
		Members:   []string{},
		Resources: user.DefaultResources(),
		CreatedAt: tstamp,
		UpdatedAt: tstamp,
	}
	if pwd != "" {
		if err := usr.SetPassword(pwd); err != nil {
			t.Fatalf("CreateUser() failed: %v", err)
		}
	}
	usr, err := repo.CreateUser(context.Background(), usr)
	if err != nil {
		t.Fatalf("CreateUser() failed: %v", err)
	}
	return usr
}

// CreateStudent creates a student in group.
func CreateStudent(t *testing.T, repo user.Repository, name, userID, group string, createdAt ...time.Time) user.User {
	usr := CreateUser(t, repo, name, "", userID, "", user.RoleStudent, false, createdAt...)
	if group == "" {
		return usr
	}
	usr.Group = group
	usr, err := repo.UpdateUser(context.Background(), usr)
	if err != nil {
		t.Fatalf("CreateStudent() failed: %v", err)
	}
	return usr
}

func CreateDoc(t *testing.T, repo whodoc.Repository, usr user.User, status whodoc.Status, updatedAt ...time.Time) whodoc.Doc {
	tstamp := user.Now()
	if len(updatedAt) > 0 {
		tstamp = updatedAt[0].UTC().Truncate(time.Millisecond)
	}
	doc := whodoc.Doc{
		UserID:       usr.ID,
		StudentEmail: usr.Email,
		StudentName:  usr.Name,
		Group:        usr.Group,
		Status:       status,
		Documents:    []whodoc.Document{},
		Metadata:     map[string]interface{}{},
		CreatedAt:    tstamp,
		UpdatedAt:    tstamp,
	}
	doc, err := repo.CreateDoc(context.Background(), doc)
	if err != nil {
		t.Fatalf("CreateDoc() failed: %v", err)
	}
	return doc
}
