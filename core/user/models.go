package user

import (
	"encoding/json"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"golang.org/x/crypto/bcrypt"

	"github.com/twahidin/project-lumos/core"
)

// Roles
type Role string

const (
	RoleStudent Role = "student"
	RoleTeacher Role = "teacher"
	RoleAdmin   Role = "admin"
)

var AllRoles = []Role{RoleStudent, RoleTeacher, RoleAdmin}

// ParseRole maps s to a Role; anything other than teacher or admin is a student.
func ParseRole(s string) Role {
	switch r := Role(core.CleanString(s, true /* lower */)); r {
	case RoleTeacher, RoleAdmin:
		return r
	default:
		return RoleStudent
	}
}

func (r Role) Valid() bool {
	for _, role := range AllRoles {
		if r == role {
			return true
		}
	}
	return false
}

// Capability is a set of access grants derived from a User's role and teacher flag.
type Capability uint8

const (
	CapStudent Capability = 1 << iota
	CapTeacher
	CapAdmin
)

// Has reports whether c holds every grant in other.
func (c Capability) Has(other Capability) bool {
	return other != 0 && c&other == other
}

// HasAny reports whether c holds at least one grant in other.
func (c Capability) HasAny(other Capability) bool {
	return c&other != 0
}

func (c Capability) String() string {
	names := make([]string, 0, 3)
	if c.Has(CapStudent) {
		names = append(names, string(RoleStudent))
	}
	if c.Has(CapTeacher) {
		names = append(names, string(RoleTeacher))
	}
	if c.Has(CapAdmin) {
		names = append(names, string(RoleAdmin))
	}
	return strings.Join(names, ",")
}

const (
	DefaultMaxWeeks = 10
	passwordCost    = 10
)

// Resources are the learning entitlements of a User.
type Resources struct {
	MaxWeeks      int      `json:"maxWeeks"`
	AllowedStages []string `json:"allowedStages"`
	Notes         string   `json:"notes"`
}

func DefaultResources() Resources {
	return Resources{MaxWeeks: DefaultMaxWeeks, AllowedStages: []string{}}
}

type User struct {
	ID           string    `json:"id"`
	Email        string    `json:"email,omitempty"`
	UserID       string    `json:"userid,omitempty"` // student ID
	Name         string    `json:"name"`
	PasswordHash []byte    `json:"-"`
	Role         Role      `json:"role"`
	IsTeacher    bool      `json:"isTeacher"`
	Group        string    `json:"group"`
	Members      []string  `json:"members"`
	Resources    Resources `json:"resources"`
	CreatedAt    time.Time `json:"createdAt"` // UTC
	UpdatedAt    time.Time `json:"updatedAt"` // UTC
}

// LoginKey is the identifier the User logs in with: the student ID if any, else the email.
func (u User) LoginKey() string {
	if u.UserID != "" {
		return u.UserID
	}
	return u.Email
}

// Capabilities evaluates the role and the teacher flag independently.
// The flag grants teacher capability whatever the role is.
func (u User) Capabilities() Capability {
	var caps Capability
	switch u.Role {
	case RoleAdmin:
		caps |= CapAdmin
	case RoleTeacher:
		caps |= CapTeacher
	case RoleStudent:
		caps |= CapStudent
	}
	if u.IsTeacher {
		caps |= CapTeacher
	}
	return caps
}

func (u *User) SetPassword(pwd string) error {
	hash, err := HashPassword(pwd)
	if err != nil {
		return err
	}
	u.PasswordHash = hash
	return nil
}

func (u *User) CheckPassword(pwd string) error {
	return bcrypt.CompareHashAndPassword(u.PasswordHash, []byte(pwd))
}

func HashPassword(pwd string) ([]byte, error) {
	return bcrypt.GenerateFromPassword([]byte(pwd), passwordCost)
}

// Student is the roster projection of a student User.
type Student struct {
	ID        string    `json:"id"`
	UserID    string    `json:"userid"`
	Name      string    `json:"name"`
	Group     string    `json:"group"`
	CreatedAt time.Time `json:"createdAt"`
}

func (u User) AsStudent() Student {
	return Student{ID: u.ID, UserID: u.UserID, Name: u.Name, Group: u.Group, CreatedAt: u.CreatedAt}
}

// KeyKind tells which field a login key is looked up by.
type KeyKind int

const (
	KeyStudentID KeyKind = iota
	KeyEmail
)

func (k KeyKind) String() string {
	if k == KeyEmail {
		return "email"
	}
	return "userid"
}

// ClassifyLoginKey picks the lookup field of key: an "@" means email, anything else a student ID.
// The returned key is normalized for that field.
func ClassifyLoginKey(key string) (KeyKind, string) {
	if strings.Contains(key, "@") {
		return KeyEmail, core.CleanString(key, true /* lower */)
	}
	return KeyStudentID, core.CleanString(key)
}

// StringList accepts either a JSON array or a comma-separated string.
type StringList []string

func (sl *StringList) UnmarshalJSON(data []byte) error {
	var list []string
	if err := json.Unmarshal(data, &list); err == nil {
		*sl = core.CleanStrings(list)
		return nil
	}
	var s *string
	if err := json.Unmarshal(data, &s); err != nil {
		return err
	}
	if s == nil {
		*sl = StringList{}
		return nil
	}
	*sl = core.CleanStrings(strings.Split(*s, ","))
	return nil
}

// NewUser contains information needed to create a new User.
type NewUser struct {
	Email    string     `json:"email" validate:"omitempty,email"`
	UserID   string     `json:"userid"`
	Password string     `json:"password" validate:"required,notblank"`
	Name     string     `json:"name" validate:"required,notblank"`
	Role     Role       `json:"role"`
	Group    string     `json:"group"`
	Members  StringList `json:"members"`

	// IsTeacher grants teacher rights on top of the role; teachers always have them.
	IsTeacher bool `json:"-"`
}

func (nu *NewUser) Clean() {
	nu.Email = core.CleanString(nu.Email, true /* lower */)
	nu.UserID = core.CleanString(nu.UserID)
	nu.Name = core.CleanString(nu.Name)
	nu.Role = ParseRole(string(nu.Role))
	nu.Group = core.CleanString(nu.Group)
	if nu.Members == nil {
		nu.Members = StringList{}
	}
}

func (nu *NewUser) Validate(validate *validator.Validate) error {
	nu.Clean()
	return validate.Struct(nu)
}

// UpdateUser defines what information may be provided to modify an existing User.
// nil fields are left untouched.
type UpdateUser struct {
	Name      *string     `json:"name" validate:"omitempty,notblank"`
	Group     *string     `json:"group"`
	Members   *StringList `json:"members"`
	Role      *Role       `json:"role" validate:"omitempty,role"`
	IsTeacher *bool       `json:"isTeacher"`
	Resources *Resources  `json:"resources"`
	Password  *string     `json:"password"`
}

func (uu *UpdateUser) Validate(validate *validator.Validate) error {
	if uu.Role != nil {
		role := Role(core.CleanString(string(*uu.Role), true /* lower */))
		uu.Role = &role
	}
	return validate.Struct(uu)
}

type ResetPassword struct {
	NewPassword string `json:"newPassword" validate:"required,notblank"`
}

func (rp ResetPassword) Validate(validate *validator.Validate) error { return validate.Struct(rp) }

type TeacherRights struct {
	Grant bool `json:"grant"`
}

// UpdateResources is a partial update of a User's Resources.
type UpdateResources struct {
	MaxWeeks      *int     `json:"maxWeeks" validate:"omitempty,min=0"`
	AllowedStages []string `json:"allowedStages"`
	Notes         *string  `json:"notes"`
}

func (ur UpdateResources) Validate(validate *validator.Validate) error { return validate.Struct(ur) }

// GetFilter selects a single User; the first non-empty field wins.
type GetFilter struct {
	ID     string
	Email  string
	UserID string
}

type QueryFilter struct {
	Search string   `query:"search"`
	Roles  []Role   `query:"role"`
	Group  string   `query:"group"`
	IDs    []string `query:"-"`
}

func (qf *QueryFilter) Clean() {
	qf.Search = core.CleanString(qf.Search)
	qf.Group = core.CleanString(qf.Group)
	roles := make([]Role, 0, len(qf.Roles))
	for _, r := range qf.Roles {
		if r = Role(core.CleanString(string(r), true /* lower */)); r != "" {
			roles = append(roles, r)
		}
	}
	qf.Roles = roles
}

// Match applies the filter to usr; stores without a query language use it directly.
// Search is a case-insensitive match on one of User.Name, User.Email or User.UserID.
func (qf QueryFilter) Match(usr User) bool {
	if len(qf.IDs) > 0 && !containsString(qf.IDs, usr.ID) {
		return false
	}
	if len(qf.Roles) > 0 {
		var ok bool
		for _, r := range qf.Roles {
			if usr.Role == r {
				ok = true
				break
			}
		}
		if !ok {
			return false
		}
	}
	if qf.Group != "" && usr.Group != qf.Group {
		return false
	}
	if qf.Search != "" {
		search := strings.ToLower(qf.Search)
		if !strings.Contains(strings.ToLower(usr.Name), search) &&
			!strings.Contains(usr.Email, search) &&
			!strings.Contains(strings.ToLower(usr.UserID), search) {
			return false
		}
	}
	return true
}

func containsString(ss []string, s string) bool {
	for _, v := range ss {
		if v == s {
			return true
		}
	}
	return false
}
