package user

import (
	"context"
	"strings"

	"github.com/pkg/errors"
	"github.com/spf13/cast"

	"github.com/twahidin/project-lumos/core"
)

const errMissingLoginKey = "Missing userid"

var (
	userIDAliases = []string{"userid", "userId", "UserID", "userID", "user_id", "studentId", "StudentID", "studentid"}
	emailAliases  = []string{"email", "Email", "EMAIL"}
	nameAliases   = []string{"name", "Name", "NAME", "fullName", "full_name"}
	groupAliases  = []string{"group", "Group", "GROUP", "class", "Class"}
)

// ImportRow is one loosely typed candidate row of a bulk import.
type ImportRow map[string]interface{}

// ImportedUser describes a created or skipped row.
type ImportedUser struct {
	ID     string `json:"id,omitempty"`
	UserID string `json:"userid,omitempty"`
	Email  string `json:"email,omitempty"`
	Name   string `json:"name"`
}

type ImportError struct {
	Row     ImportRow `json:"row"`
	Message string    `json:"message"`
}

// ImportResult partitions the rows of a bulk import; each list keeps the input order.
type ImportResult struct {
	Created []ImportedUser `json:"created"`
	Skipped []ImportedUser `json:"skipped"`
	Errors  []ImportError  `json:"errors"`
}

// lookup returns the first non-blank value found under one of aliases.
func (row ImportRow) lookup(aliases []string, accept func(string) bool) string {
	for _, alias := range aliases {
		val, ok := row[alias]
		if !ok || val == nil {
			continue
		}
		s := core.CleanString(cast.ToString(val))
		if s != "" && (accept == nil || accept(s)) {
			return s
		}
	}
	return ""
}

// loginKey returns the student ID of the row, falling back to an email.
// Emails must contain an "@" so that the key classifies back to an email lookup at login.
func (row ImportRow) loginKey() (KeyKind, string) {
	if key := row.lookup(userIDAliases, nil); key != "" {
		return KeyStudentID, key
	}
	isEmail := func(s string) bool { return strings.Contains(s, "@") }
	if key := row.lookup(emailAliases, isEmail); key != "" {
		return KeyEmail, strings.ToLower(key)
	}
	return KeyStudentID, ""
}

// Import creates a student for each new row, skips rows whose login key is taken,
// and records row errors without stopping. Rows are processed one after the other,
// so a key repeated in the batch is skipped once its first row is created.
func (svc *Service) Import(ctx context.Context, rows []ImportRow, defaultPassword string) ImportResult {
	res := ImportResult{
		Created: []ImportedUser{},
		Skipped: []ImportedUser{},
		Errors:  []ImportError{},
	}
	defaultPassword = core.CleanString(defaultPassword)

	for _, row := range rows {
		kind, key := row.loginKey()
		if key == "" {
			res.Errors = append(res.Errors, ImportError{Row: row, Message: errMissingLoginKey})
			continue
		}
		name := row.lookup(nameAliases, nil)
		if name == "" {
			name = key
		}

		nu := NewUser{
			Name:     name,
			Password: defaultPassword,
			Role:     RoleStudent,
			Group:    row.lookup(groupAliases, nil),
			Members:  StringList{},
		}
		filter := GetFilter{UserID: key}
		if kind == KeyEmail {
			nu.Email, filter = key, GetFilter{Email: key}
		} else {
			nu.UserID = key
		}
		imported := ImportedUser{UserID: nu.UserID, Email: nu.Email, Name: name}

		if _, err := svc.repo.GetUser(ctx, filter); err == nil {
			res.Skipped = append(res.Skipped, imported)
			continue
		} else if errors.Cause(err) != ErrNotFound {
			res.Errors = append(res.Errors, ImportError{Row: row, Message: errors.Cause(err).Error()})
			continue
		}

		usr, err := svc.create(ctx, nu)
		if err != nil {
			res.Errors = append(res.Errors, ImportError{Row: row, Message: errors.Cause(err).Error()})
			continue
		}
		imported.ID = usr.ID
		res.Created = append(res.Created, imported)
	}
	return res
}
