package auth

import (
	"context"
	"crypto/subtle"
	"sync"

	"github.com/pkg/errors"

	"github.com/twahidin/project-lumos/core"
	"github.com/twahidin/project-lumos/core/user"
)

var (
	// errors
	ErrInvalidCredentials = errors.New("Invalid login or password")
	ErrMissingCredentials = core.NewValidationMessage("Login and password required")

	dummyHashOnce sync.Once
	dummyHash     []byte
)

type (
	// LoginKeyFinder reads a user by the key it logs in with.
	LoginKeyFinder interface {
		GetByLoginKey(ctx context.Context, key string) (user.User, error)
	}

	// SuperAdminCredentials is the configured super-admin pair; it is disabled when either part is empty.
	SuperAdminCredentials struct {
		Login    string
		Password string
	}

	// Authenticator resolves a login key and a password to a Principal.
	Authenticator struct {
		users      LoginKeyFinder
		superAdmin SuperAdminCredentials
	}
)

func (c SuperAdminCredentials) enabled() bool {
	return c.Login != "" && c.Password != ""
}

func (c SuperAdminCredentials) match(login, pwd string) bool {
	if !c.enabled() {
		return false
	}
	loginOK := subtle.ConstantTimeCompare([]byte(login), []byte(c.Login)) == 1
	pwdOK := subtle.ConstantTimeCompare([]byte(pwd), []byte(c.Password)) == 1
	return loginOK && pwdOK
}

func NewAuthenticator(users LoginKeyFinder, superAdmin SuperAdminCredentials) *Authenticator {
	return &Authenticator{users: users, superAdmin: superAdmin}
}

// Login checks the super-admin pair first, without touching the store.
// Otherwise the key is looked up as an email or a student ID (see user.ClassifyLoginKey).
// An unknown key and a wrong password both yield ErrInvalidCredentials.
func (a *Authenticator) Login(ctx context.Context, login, pwd string) (Principal, error) {
	login = core.CleanString(login)
	if login == "" || pwd == "" {
		return nil, ErrMissingCredentials
	}

	if a.superAdmin.match(login, pwd) {
		return SuperAdmin{Login: a.superAdmin.Login}, nil
	}

	usr, err := a.users.GetByLoginKey(ctx, login)
	if err != nil {
		if errors.Cause(err) == user.ErrNotFound {
			comparePasswordOfNobody(pwd)
			return nil, ErrInvalidCredentials
		}
		return nil, errors.Wrap(err, "finding user by login key")
	}
	if err := usr.CheckPassword(pwd); err != nil {
		return nil, ErrInvalidCredentials
	}
	return StoredIdentity{User: usr}, nil
}

// comparePasswordOfNobody spends the time of a password check, so that unknown keys answer as slowly as wrong passwords.
func comparePasswordOfNobody(pwd string) {
	dummyHashOnce.Do(func() {
		dummyHash, _ = user.HashPassword("lumos-portal-nobody")
	})
	nobody := user.User{PasswordHash: dummyHash}
	_ = nobody.CheckPassword(pwd)
}
