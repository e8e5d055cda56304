package pgrepos

import (
	"context"
	"database/sql"
	"time"

	"github.com/pkg/errors"

	"github.com/twahidin/project-lumos/core/session"
	"github.com/twahidin/project-lumos/core/user"
)

type sessionRow struct {
	ID         string    `db:"id"`
	IdentityID string    `db:"identity_id"`
	Role       string    `db:"role"`
	SuperAdmin bool      `db:"super_admin"`
	LoginKey   string    `db:"login"`
	CreatedAt  time.Time `db:"created_at"`
	ExpiresAt  time.Time `db:"expires_at"`
}

type sessionStore struct {
	db  *DB
	now func() time.Time
}

var _ session.Store = (*sessionStore)(nil)

func NewSessionStore(db *DB) session.Store {
	return &sessionStore{db: db, now: time.Now}
}

func (s *sessionStore) CreateSession(ctx context.Context, sess session.Session) error {
	row := sessionRow{
		ID:         sess.ID,
		IdentityID: sess.IdentityID,
		Role:       string(sess.Role),
		SuperAdmin: sess.SuperAdmin,
		LoginKey:   sess.LoginKey,
		CreatedAt:  sess.CreatedAt,
		ExpiresAt:  sess.ExpiresAt,
	}
	q := `INSERT INTO sessions (id, identity_id, role, super_admin, login, created_at, expires_at)
		VALUES (:id, :identity_id, :role, :super_admin, :login, :created_at, :expires_at)`
	_, err := s.db.NamedExecContext(ctx, q, row)
	return errors.Wrap(err, "inserting session")
}

func (s *sessionStore) GetSession(ctx context.Context, id string) (session.Session, error) {
	var row sessionRow
	q := `SELECT id, identity_id, role, super_admin, login, created_at, expires_at FROM sessions WHERE id = $1 AND expires_at > $2`
	if err := s.db.GetContext(ctx, &row, q, id, s.now()); err != nil {
		if err == sql.ErrNoRows {
			return session.Session{}, session.ErrNotFound
		}
		return session.Session{}, errors.Wrap(err, "finding session")
	}
	return session.Session{
		ID:         row.ID,
		IdentityID: row.IdentityID,
		Role:       user.ParseRole(row.Role),
		SuperAdmin: row.SuperAdmin,
		LoginKey:   row.LoginKey,
		CreatedAt:  row.CreatedAt.UTC(),
		ExpiresAt:  row.ExpiresAt.UTC(),
	}, nil
}

func (s *sessionStore) TouchSession(ctx context.Context, id string, expiresAt time.Time) error {
	res, err := s.db.ExecContext(ctx, `UPDATE sessions SET expires_at = $2 WHERE id = $1`, id, expiresAt)
	if err != nil {
		return errors.Wrap(err, "touching session")
	}
	if n, err := res.RowsAffected(); err == nil && n == 0 {
		return session.ErrNotFound
	}
	return nil
}

// DeleteSession also sweeps the expired sessions.
func (s *sessionStore) DeleteSession(ctx context.Context, id string) error {
	_, err := s.db.ExecContext(ctx, `DELETE FROM sessions WHERE id = $1 OR expires_at <= $2`, id, s.now())
	return errors.Wrap(err, "deleting session")
}
