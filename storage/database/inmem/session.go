package inmemdb

import (
	"context"
	"time"

	"github.com/twahidin/project-lumos/core/session"
)

type sessionStore struct {
	db  *sessionTable
	now func() time.Time
}

var _ session.Store = (*sessionStore)(nil)

func NewSessionStore(db *DB) session.Store {
	return &sessionStore{db: db.session, now: time.Now}
}

func (s *sessionStore) CreateSession(_ context.Context, sess session.Session) error {
	s.db.mutex.Lock()
	defer s.db.mutex.Unlock()

	s.db.table[sess.ID] = sess
	return nil
}

func (s *sessionStore) GetSession(_ context.Context, id string) (session.Session, error) {
	s.db.mutex.RLock()
	defer s.db.mutex.RUnlock()

	sess, ok := s.db.table[id]
	if !ok || sess.Expired(s.now()) {
		return session.Session{}, session.ErrNotFound
	}
	return sess, nil
}

func (s *sessionStore) TouchSession(_ context.Context, id string, expiresAt time.Time) error {
	s.db.mutex.Lock()
	defer s.db.mutex.Unlock()

	sess, ok := s.db.table[id]
	if !ok {
		return session.ErrNotFound
	}
	sess.ExpiresAt = expiresAt
	s.db.table[id] = sess
	return nil
}

// DeleteSession also sweeps the expired sessions.
func (s *sessionStore) DeleteSession(_ context.Context, id string) error {
	s.db.mutex.Lock()
	defer s.db.mutex.Unlock()

	delete(s.db.table, id)
	now := s.now()
	for key, sess := range s.db.table {
		if sess.Expired(now) {
			delete(s.db.table, key)
		}
	}
	return nil
}
