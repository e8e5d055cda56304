package session

import (
	"context"
	"net/http"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/pkg/errors"
	"github.com/segmentio/ksuid"

	"github.com/twahidin/project-lumos/core/user"
)

var (
	// errors
	ErrNotFound     = errors.New("session not found")
	ErrInvalidToken = errors.New("invalid session token")
)

// touchInterval bounds how often a session's expiry is pushed back.
const touchInterval = time.Minute

// Session is the server-side state bound to a session cookie.
// IdentityID is empty for the super-admin, which is never stored as a user.
type Session struct {
	ID         string    `json:"id"`
	IdentityID string    `json:"identityId,omitempty"`
	Role       user.Role `json:"role"`
	SuperAdmin bool      `json:"superAdmin"`
	LoginKey   string    `json:"login"`
	CreatedAt  time.Time `json:"createdAt"`
	ExpiresAt  time.Time `json:"expiresAt"`
}

// Authenticated reports whether the session holds a user or the super-admin.
func (s Session) Authenticated() bool {
	return s.SuperAdmin || s.IdentityID != ""
}

func (s Session) Expired(now time.Time) bool {
	return !now.Before(s.ExpiresAt)
}

// Subject is who a new session is started for.
type Subject struct {
	IdentityID string
	Role       user.Role
	SuperAdmin bool
	LoginKey   string
}

// Store keeps sessions server-side.
type Store interface {
	CreateSession(ctx context.Context, sess Session) error
	// GetSession returns ErrNotFound for missing and expired sessions.
	GetSession(ctx context.Context, id string) (Session, error)
	TouchSession(ctx context.Context, id string, expiresAt time.Time) error
	DeleteSession(ctx context.Context, id string) error
}

type Options struct {
	Secret     []byte
	TTL        time.Duration
	CookieName string
	Secure     bool
	Issuer     string
}

// Manager starts, loads and ends sessions.
// Clients only hold a signed token carrying the session ID.
type Manager struct {
	store Store
	opts  Options
	now   func() time.Time
}

func NewManager(store Store, opts Options) *Manager {
	return &Manager{
		store: store,
		opts:  opts,
		now:   func() time.Time { return time.Now().UTC().Truncate(time.Millisecond) },
	}
}

func (m *Manager) CookieName() string { return m.opts.CookieName }

// Start stores a new session for sub and returns it with its signed token.
func (m *Manager) Start(ctx context.Context, sub Subject) (Session, string, error) {
	now := m.now()
	sess := Session{
		ID:         ksuid.New().String(),
		IdentityID: sub.IdentityID,
		Role:       sub.Role,
		SuperAdmin: sub.SuperAdmin,
		LoginKey:   sub.LoginKey,
		CreatedAt:  now,
		ExpiresAt:  now.Add(m.opts.TTL),
	}
	if sess.SuperAdmin {
		sess.IdentityID = ""
	}
	if err := m.store.CreateSession(ctx, sess); err != nil {
		return Session{}, "", errors.Wrap(err, "storing session")
	}

	token, err := m.sign(sess, now)
	if err != nil {
		return Session{}, "", err
	}
	return sess, token, nil
}

// Load returns the live session a token refers to and slides its expiry forward.
// Bad tokens yield ErrInvalidToken; unknown or expired sessions yield ErrNotFound.
func (m *Manager) Load(ctx context.Context, token string) (Session, error) {
	id, err := m.parse(token)
	if err != nil {
		return Session{}, err
	}
	sess, err := m.store.GetSession(ctx, id)
	if err != nil {
		return Session{}, err
	}

	now := m.now()
	if sess.Expired(now) {
		_ = m.store.DeleteSession(ctx, id)
		return Session{}, ErrNotFound
	}
	if expiresAt := now.Add(m.opts.TTL); expiresAt.Sub(sess.ExpiresAt) >= touchInterval {
		if err := m.store.TouchSession(ctx, id, expiresAt); err != nil {
			return Session{}, errors.Wrap(err, "touching session")
		}
		sess.ExpiresAt = expiresAt
	}
	return sess, nil
}

// Destroy deletes a session; destroying a missing session is not an error.
func (m *Manager) Destroy(ctx context.Context, id string) error {
	if id == "" {
		return nil
	}
	if err := m.store.DeleteSession(ctx, id); err != nil && errors.Cause(err) != ErrNotFound {
		return errors.Wrap(err, "deleting session")
	}
	return nil
}

// Cookie is the http.Cookie carrying token to the client.
func (m *Manager) Cookie(token string) *http.Cookie {
	return &http.Cookie{
		Name:     m.opts.CookieName,
		Value:    token,
		Path:     "/",
		Expires:  m.now().Add(m.opts.TTL),
		MaxAge:   int(m.opts.TTL.Seconds()),
		Secure:   m.opts.Secure,
		HttpOnly: true,
		SameSite: http.SameSiteLaxMode,
	}
}

// ClearCookie makes the client drop its session cookie.
func (m *Manager) ClearCookie() *http.Cookie {
	return &http.Cookie{
		Name:     m.opts.CookieName,
		Value:    "",
		Path:     "/",
		Expires:  time.Unix(0, 0),
		MaxAge:   -1,
		Secure:   m.opts.Secure,
		HttpOnly: true,
		SameSite: http.SameSiteLaxMode,
	}
}

func (m *Manager) sign(sess Session, now time.Time) (string, error) {
	claims := jwt.RegisteredClaims{
		ID:       sess.ID,
		Issuer:   m.opts.Issuer,
		IssuedAt: jwt.NewNumericDate(now),
	}
	token, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(m.opts.Secret)
	if err != nil {
		return "", errors.Wrap(err, "signing session token")
	}
	return token, nil
}

func (m *Manager) parse(token string) (string, error) {
	if token == "" {
		return "", ErrInvalidToken
	}
	claims := new(jwt.RegisteredClaims)
	_, err := jwt.ParseWithClaims(
		token, claims,
		func(*jwt.Token) (interface{}, error) { return m.opts.Secret, nil },
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
	)
	if err != nil || claims.ID == "" {
		return "", ErrInvalidToken
	}
	return claims.ID, nil
}
