package pgrepos

import (
	"context"
	"database/sql"
	"encoding/json"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx/types"
	"github.com/lib/pq"
	"github.com/pkg/errors"
	"github.com/volatiletech/null/v8"

	"github.com/twahidin/project-lumos/core"
	"github.com/twahidin/project-lumos/core/user"
)

const (
	userColumns = `id, email, userid, name, password_hash, role, is_teacher, "group", members, resources, created_at, updated_at`

	emailConstraint  = "users_email_key"
	userIDConstraint = "users_userid_key"
)

var userOrderingFields = map[string]string{
	"createdAt": "created_at",
	"updatedAt": "updated_at",
	"name":      "name",
	"email":     "email",
	"userid":    "userid",
	"group":     `"group"`,
	"role":      "role",
}

type userRow struct {
	ID           string         `db:"id"`
	Email        null.String    `db:"email"`
	UserID       null.String    `db:"userid"`
	Name         string         `db:"name"`
	PasswordHash []byte         `db:"password_hash"`
	Role         string         `db:"role"`
	IsTeacher    bool           `db:"is_teacher"`
	Group        string         `db:"group"`
	Members      types.JSONText `db:"members"`
	Resources    types.JSONText `db:"resources"`
	CreatedAt    time.Time      `db:"created_at"`
	UpdatedAt    time.Time      `db:"updated_at"`
}

func newUserRow(usr user.User) (userRow, error) {
	members := usr.Members
	if members == nil {
		members = []string{}
	}
	membersJSON, err := json.Marshal(members)
	if err != nil {
		return userRow{}, errors.Wrap(err, "encoding members")
	}
	hash := usr.PasswordHash
	if hash == nil {
		hash = []byte{}
	}
	res := usr.Resources
	if res.AllowedStages == nil {
		res.AllowedStages = []string{}
	}
	resJSON, err := json.Marshal(res)
	if err != nil {
		return userRow{}, errors.Wrap(err, "encoding resources")
	}
	return userRow{
		ID:           usr.ID,
		Email:        null.NewString(usr.Email, usr.Email != ""),
		UserID:       null.NewString(usr.UserID, usr.UserID != ""),
		Name:         usr.Name,
		PasswordHash: hash,
		Role:         string(usr.Role),
		IsTeacher:    usr.IsTeacher,
		Group:        usr.Group,
		Members:      types.JSONText(membersJSON),
		Resources:    types.JSONText(resJSON),
		CreatedAt:    usr.CreatedAt,
		UpdatedAt:    usr.UpdatedAt,
	}, nil
}

func (row userRow) toUser() (user.User, error) {
	usr := user.User{
		ID:           row.ID,
		Email:        row.Email.String,
		UserID:       row.UserID.String,
		Name:         row.Name,
		PasswordHash: row.PasswordHash,
		Role:         user.ParseRole(row.Role),
		IsTeacher:    row.IsTeacher,
		Group:        row.Group,
		Members:      []string{},
		Resources:    user.DefaultResources(),
		CreatedAt:    row.CreatedAt.UTC(),
		UpdatedAt:    row.UpdatedAt.UTC(),
	}
	if len(usr.PasswordHash) == 0 {
		usr.PasswordHash = nil
	}
	if len(row.Members) > 0 {
		if err := row.Members.Unmarshal(&usr.Members); err != nil {
			return user.User{}, errors.Wrap(err, "decoding members")
		}
	}
	if len(row.Resources) > 0 {
		if err := row.Resources.Unmarshal(&usr.Resources); err != nil {
			return user.User{}, errors.Wrap(err, "decoding resources")
		}
	}
	if usr.Members == nil {
		usr.Members = []string{}
	}
	if usr.Resources.AllowedStages == nil {
		usr.Resources.AllowedStages = []string{}
	}
	return usr, nil
}

type userRepository struct {
	db *DB
}

var _ user.Repository = (*userRepository)(nil)

func NewUserRepository(db *DB) user.Repository {
	return &userRepository{db: db}
}

func (repo *userRepository) CreateUser(ctx context.Context, usr user.User) (user.User, error) {
	usr.ID = uuid.NewString()
	row, err := newUserRow(usr)
	if err != nil {
		return user.User{}, err
	}

	q := `INSERT INTO users (` + userColumns + `)
		VALUES (:id, :email, :userid, :name, :password_hash, :role, :is_teacher, :group, :members, :resources, :created_at, :updated_at)`
	if _, err := repo.db.NamedExecContext(ctx, q, row); err != nil {
		if constraint, ok := constraintViolation(err); ok {
			if constraint == userIDConstraint {
				return user.User{}, user.ErrUserIDExists
			}
			return user.User{}, user.ErrEmailExists
		}
		return user.User{}, errors.Wrap(err, "inserting user")
	}
	return row.toUser()
}

func (repo *userRepository) GetUser(ctx context.Context, filter user.GetFilter) (user.User, error) {
	w := new(whereClause)
	switch {
	case filter.ID != "":
		if !validID(filter.ID) {
			return user.User{}, user.ErrNotFound
		}
		w.add("id = ?", filter.ID)
	case filter.Email != "":
		w.add("email = ?", filter.Email)
	case filter.UserID != "":
		w.add("userid = ?", filter.UserID)
	default:
		return user.User{}, user.ErrNotFound
	}

	var row userRow
	if err := repo.db.GetContext(ctx, &row, `SELECT `+userColumns+` FROM users`+w.String()+` LIMIT 1`, w.args...); err != nil {
		if err == sql.ErrNoRows {
			return user.User{}, user.ErrNotFound
		}
		return user.User{}, errors.Wrap(err, "finding user")
	}
	return row.toUser()
}

func (repo *userRepository) QueryUsers(ctx context.Context, filter user.QueryFilter, orderings ...core.DBOrdering) ([]user.User, error) {
	w := new(whereClause)
	if len(filter.IDs) > 0 {
		ids := make([]string, 0, len(filter.IDs))
		for _, id := range filter.IDs {
			if validID(id) {
				ids = append(ids, id)
			}
		}
		w.add("id = ANY(?)", pq.Array(ids))
	}
	if len(filter.Roles) > 0 {
		roles := make([]string, 0, len(filter.Roles))
		for _, r := range filter.Roles {
			roles = append(roles, string(r))
		}
		w.add("role = ANY(?)", pq.Array(roles))
	}
	if filter.Group != "" {
		w.add(`"group" = ?`, filter.Group)
	}
	if filter.Search != "" {
		pattern := "%" + escapeLike(filter.Search) + "%"
		w.add("(name ILIKE ? OR email ILIKE ? OR userid ILIKE ?)", pattern, pattern, pattern)
	}

	orders := make([]string, 0, len(orderings))
	for _, ord := range core.CleanOrderings(orderings, userOrderingFields, core.DBOrdering{Field: "created_at"}) {
		orders = append(orders, ord.String())
	}

	q := `SELECT ` + userColumns + ` FROM users` + w.String() + ` ORDER BY ` + strings.Join(orders, ", ")
	var rows []userRow
	if err := repo.db.SelectContext(ctx, &rows, q, w.args...); err != nil {
		return nil, errors.Wrap(err, "querying users")
	}

	users := make([]user.User, 0, len(rows))
	for _, row := range rows {
		usr, err := row.toUser()
		if err != nil {
			return nil, err
		}
		users = append(users, usr)
	}
	return users, nil
}

func (repo *userRepository) UpdateUser(ctx context.Context, usr user.User) (user.User, error) {
	if !validID(usr.ID) {
		return user.User{}, user.ErrNotFound
	}
	row, err := newUserRow(usr)
	if err != nil {
		return user.User{}, err
	}

	q := `UPDATE users SET name = $2, role = $3, is_teacher = $4, "group" = $5, members = $6, resources = $7,
		password_hash = COALESCE($8, password_hash), updated_at = $9
		WHERE id = $1 RETURNING ` + userColumns
	var hash interface{}
	if len(row.PasswordHash) > 0 {
		hash = row.PasswordHash
	}

	var updated userRow
	err = repo.db.GetContext(ctx, &updated, q,
		row.ID, row.Name, row.Role, row.IsTeacher, row.Group, row.Members, row.Resources, hash, row.UpdatedAt)
	if err != nil {
		if err == sql.ErrNoRows {
			return user.User{}, user.ErrNotFound
		}
		return user.User{}, errors.Wrap(err, "updating user")
	}
	return updated.toUser()
}

func (repo *userRepository) SetPasswordHash(ctx context.Context, id string, hash []byte, updatedAt time.Time) error {
	if !validID(id) {
		return user.ErrNotFound
	}
	res, err := repo.db.ExecContext(ctx, `UPDATE users SET password_hash = $2, updated_at = $3 WHERE id = $1`, id, hash, updatedAt)
	if err != nil {
		return errors.Wrap(err, "updating user password")
	}
	n, err := res.RowsAffected()
	if err != nil {
		return errors.Wrap(err, "updating user password")
	}
	if n == 0 {
		return user.ErrNotFound
	}
	return nil
}

func (repo *userRepository) DistinctGroups(ctx context.Context, role user.Role) ([]string, error) {
	groups := make([]string, 0)
	if err := repo.db.SelectContext(ctx, &groups, `SELECT DISTINCT "group" FROM users WHERE role = $1`, string(role)); err != nil {
		return nil, errors.Wrap(err, "querying distinct groups")
	}
	return groups, nil
}

var likeEscaper = strings.NewReplacer(`\`, `\\`, `%`, `\%`, `_`, `\_`)

func escapeLike(s string) string {
	return likeEscaper.Replace(s)
}
