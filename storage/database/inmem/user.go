package inmemdb

import (
	"context"
	"sort"
	"strings"
	"time"

	"go.mongodb.org/mongo-driver/bson/primitive"

	"github.com/twahidin/project-lumos/core"
	"github.com/twahidin/project-lumos/core/user"
)

var userOrderingFields = map[string]string{
	"createdAt": "createdAt",
	"updatedAt": "updatedAt",
	"name":      "name",
	"email":     "email",
	"userid":    "userid",
	"group":     "group",
	"role":      "role",
}

type userRepository struct {
	db *userTable
}

var _ user.Repository = (*userRepository)(nil)

func NewUserRepository(db *DB) user.Repository {
	return &userRepository{db: db.user}
}

// query returns copies of every stored user; callers hold the lock.
func (repo *userRepository) query() []user.User {
	users := make([]user.User, 0, len(repo.db.table))
	for _, u := range repo.db.table {
		users = append(users, copyUser(*u))
	}
	return users
}

func (repo *userRepository) CreateUser(_ context.Context, usr user.User) (user.User, error) {
	repo.db.mutex.Lock()
	defer repo.db.mutex.Unlock()

	for _, u := range repo.db.table {
		if usr.Email != "" && u.Email == usr.Email {
			return user.User{}, user.ErrEmailExists
		}
		if usr.UserID != "" && u.UserID == usr.UserID {
			return user.User{}, user.ErrUserIDExists
		}
	}

	usr.ID = primitive.NewObjectID().Hex()
	stored := copyUser(usr)
	repo.db.table[usr.ID] = &stored
	return copyUser(stored), nil
}

func (repo *userRepository) GetUser(_ context.Context, filter user.GetFilter) (user.User, error) {
	repo.db.mutex.RLock()
	defer repo.db.mutex.RUnlock()

	switch {
	case filter.ID != "":
		if usr, ok := repo.db.table[filter.ID]; ok {
			return copyUser(*usr), nil
		}
	case filter.Email != "":
		for _, usr := range repo.db.table {
			if usr.Email == filter.Email {
				return copyUser(*usr), nil
			}
		}
	case filter.UserID != "":
		for _, usr := range repo.db.table {
			if usr.UserID == filter.UserID {
				return copyUser(*usr), nil
			}
		}
	}
	return user.User{}, user.ErrNotFound
}

func (repo *userRepository) QueryUsers(_ context.Context, filter user.QueryFilter, orderings ...core.DBOrdering) ([]user.User, error) {
	repo.db.mutex.RLock()
	defer repo.db.mutex.RUnlock()

	users := make([]user.User, 0)
	for _, usr := range repo.query() {
		if filter.Match(usr) {
			users = append(users, usr)
		}
	}

	orderings = core.CleanOrderings(orderings, userOrderingFields, core.DBOrdering{Field: "createdAt"})
	sort.SliceStable(users, func(i, j int) bool {
		for _, ord := range orderings {
			c := compareUsers(users[i], users[j], ord.Field)
			if c == 0 {
				continue
			}
			if ord.Ascending {
				return c < 0
			}
			return c > 0
		}
		return false
	})
	return users, nil
}

func (repo *userRepository) UpdateUser(_ context.Context, usr user.User) (user.User, error) {
	repo.db.mutex.Lock()
	defer repo.db.mutex.Unlock()

	origUsr, ok := repo.db.table[usr.ID]
	if !ok {
		return user.User{}, user.ErrNotFound
	}
	origUsr.Name = usr.Name
	origUsr.Role = usr.Role
	origUsr.IsTeacher = usr.IsTeacher
	origUsr.Group = usr.Group
	origUsr.Members = append([]string{}, usr.Members...)
	origUsr.Resources = copyResources(usr.Resources)
	if usr.PasswordHash != nil {
		origUsr.PasswordHash = append([]byte{}, usr.PasswordHash...)
	}
	origUsr.UpdatedAt = usr.UpdatedAt

	return copyUser(*origUsr), nil
}

func (repo *userRepository) SetPasswordHash(_ context.Context, id string, hash []byte, updatedAt time.Time) error {
	repo.db.mutex.Lock()
	defer repo.db.mutex.Unlock()

	usr, ok := repo.db.table[id]
	if !ok {
		return user.ErrNotFound
	}
	usr.PasswordHash = append([]byte{}, hash...)
	usr.UpdatedAt = updatedAt
	return nil
}

func (repo *userRepository) DistinctGroups(_ context.Context, role user.Role) ([]string, error) {
	repo.db.mutex.RLock()
	defer repo.db.mutex.RUnlock()

	seen := make(map[string]struct{})
	groups := make([]string, 0)
	for _, usr := range repo.db.table {
		if usr.Role != role {
			continue
		}
		if _, ok := seen[usr.Group]; !ok {
			seen[usr.Group] = struct{}{}
			groups = append(groups, usr.Group)
		}
	}
	return groups, nil
}

func compareUsers(a, b user.User, field string) int {
	switch field {
	case "createdAt":
		return compareTimes(a.CreatedAt, b.CreatedAt)
	case "updatedAt":
		return compareTimes(a.UpdatedAt, b.UpdatedAt)
	case "name":
		return strings.Compare(a.Name, b.Name)
	case "email":
		return strings.Compare(a.Email, b.Email)
	case "userid":
		return strings.Compare(a.UserID, b.UserID)
	case "group":
		return strings.Compare(a.Group, b.Group)
	case "role":
		return strings.Compare(string(a.Role), string(b.Role))
	}
	return 0
}

func compareTimes(a, b time.Time) int {
	switch {
	case a.Before(b):
		return -1
	case a.After(b):
		return 1
	}
	return 0
}

func copyUser(usr user.User) user.User {
	usr.Members = append([]string{}, usr.Members...)
	usr.Resources = copyResources(usr.Resources)
	if usr.PasswordHash != nil {
		usr.PasswordHash = append([]byte{}, usr.PasswordHash...)
	}
	return usr
}

func copyResources(res user.Resources) user.Resources {
	res.AllowedStages = append([]string{}, res.AllowedStages...)
	return res
}
