package auth

import (
	"context"

	"github.com/pkg/errors"

	"github.com/twahidin/project-lumos/core/session"
	"github.com/twahidin/project-lumos/core/user"
)

// Tier is the access level a route requires.
type Tier int

const (
	TierAuthenticated Tier = iota
	TierTeacher
	TierAdmin
)

func (t Tier) String() string {
	switch t {
	case TierAdmin:
		return "admin"
	case TierTeacher:
		return "teacher"
	default:
		return "authenticated"
	}
}

var (
	// errors
	ErrUnauthenticated = errors.New("Not logged in")
	// ErrStaleSession is returned when the user of a session no longer exists.
	ErrStaleSession = errors.New("session user no longer exists")
)

// ForbiddenError rejects an authenticated caller that lacks the Tier.
type ForbiddenError struct {
	Tier Tier
}

func (err ForbiddenError) Error() string {
	if err.Tier == TierTeacher {
		return "Teacher or admin access required"
	}
	return "Admin access required"
}

type (
	// IdentityFinder reads the user a session refers to.
	IdentityFinder interface {
		GetByID(ctx context.Context, id string) (user.User, error)
	}

	// Guard admits or rejects the caller of a request.
	Guard struct {
		users      IdentityFinder
		superAdmin SuperAdminCredentials
	}
)

func NewGuard(users IdentityFinder, superAdmin SuperAdminCredentials) *Guard {
	return &Guard{users: users, superAdmin: superAdmin}
}

// Authorize resolves the principal of sess and checks it against tier.
// The super-admin is admitted without a store lookup; a user session costs exactly one.
func (g *Guard) Authorize(ctx context.Context, sess *session.Session, tier Tier) (Principal, error) {
	if sess == nil || !sess.Authenticated() {
		return nil, ErrUnauthenticated
	}

	if sess.SuperAdmin {
		// a super-admin session dies with the super-admin configuration
		if !g.superAdmin.enabled() {
			return nil, ErrStaleSession
		}
		return SuperAdmin{Login: g.superAdmin.Login}, nil
	}

	usr, err := g.users.GetByID(ctx, sess.IdentityID)
	if err != nil {
		if errors.Cause(err) != user.ErrNotFound {
			return nil, errors.Wrap(err, "finding session user")
		}
		if tier == TierAuthenticated {
			return nil, ErrStaleSession
		}
		return nil, &ForbiddenError{Tier: tier}
	}

	p := StoredIdentity{User: usr}
	if !Admits(p, tier) {
		return nil, &ForbiddenError{Tier: tier}
	}
	return p, nil
}

// Admits reports whether the capabilities of p are enough for tier.
func Admits(p Principal, tier Tier) bool {
	caps := p.Capabilities()
	switch tier {
	case TierAdmin:
		return caps.Has(user.CapAdmin)
	case TierTeacher:
		return caps.HasAny(user.CapTeacher | user.CapAdmin)
	default:
		return true
	}
}
