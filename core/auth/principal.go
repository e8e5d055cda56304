package auth

import (
	"github.com/twahidin/project-lumos/core/session"
	"github.com/twahidin/project-lumos/core/user"
)

// Landing pages
const (
	LoginPage   = "/login.html"
	StudentPage = "/student.html"
	TeacherPage = "/teacher.html"
	AdminPage   = "/admin.html"
)

// Principal is the caller of a request: either a StoredIdentity or the SuperAdmin.
type Principal interface {
	Capabilities() user.Capability
	// Identity is the user view of the principal, for responses and logs.
	Identity() user.User
	IsSuperAdmin() bool

	principal()
}

// StoredIdentity is a user.User read from the Credential Store.
type StoredIdentity struct {
	user.User
}

func (p StoredIdentity) Capabilities() user.Capability { return p.User.Capabilities() }
func (p StoredIdentity) Identity() user.User           { return p.User }
func (StoredIdentity) IsSuperAdmin() bool              { return false }
func (StoredIdentity) principal()                      {}

// SuperAdmin is the configured administrator that never exists in the Credential Store.
type SuperAdmin struct {
	Login string
}

const superAdminName = "Super Admin"

func (SuperAdmin) Capabilities() user.Capability { return user.CapAdmin }

func (p SuperAdmin) Identity() user.User {
	usr := user.User{Name: superAdminName, Role: user.RoleAdmin, Members: []string{}, Resources: user.DefaultResources()}
	if kind, key := user.ClassifyLoginKey(p.Login); kind == user.KeyEmail {
		usr.Email = key
	} else {
		usr.UserID = key
	}
	return usr
}

func (SuperAdmin) IsSuperAdmin() bool { return true }
func (SuperAdmin) principal()         {}

// LandingFor is the page a principal is sent to after login or when it opens another role's page.
func LandingFor(p Principal) string {
	caps := p.Capabilities()
	switch {
	case caps.Has(user.CapAdmin):
		return AdminPage
	case caps.Has(user.CapTeacher):
		return TeacherPage
	default:
		return StudentPage
	}
}

// SubjectOf is the session subject a principal logs in as.
func SubjectOf(p Principal) session.Subject {
	switch p := p.(type) {
	case SuperAdmin:
		return session.Subject{Role: user.RoleAdmin, SuperAdmin: true, LoginKey: p.Login}
	case StoredIdentity:
		return session.Subject{IdentityID: p.ID, Role: p.Role, LoginKey: p.LoginKey()}
	default:
		return session.Subject{}
	}
}
