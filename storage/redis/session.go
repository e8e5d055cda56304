package redisrepos

import (
	"context"
	"encoding/json"
	"time"

	"github.com/pkg/errors"
	"github.com/redis/go-redis/v9"

	"github.com/twahidin/project-lumos/core/session"
)

const keyPrefix = "lumos:sess:"

// Open connects to a redis server and pings it once.
func Open(ctx context.Context, addr, password string, db int) (*redis.Client, error) {
	rdb := redis.NewClient(&redis.Options{
		Addr:     addr,
		Password: password,
		DB:       db,
	})
	if err := rdb.Ping(ctx).Err(); err != nil {
		_ = rdb.Close()
		return nil, errors.Wrap(err, "pinging redis")
	}
	return rdb, nil
}

// sessionStore keeps each session as a JSON value expiring with it.
type sessionStore struct {
	rdb *redis.Client
	now func() time.Time
}

var _ session.Store = (*sessionStore)(nil)

func NewSessionStore(rdb *redis.Client) session.Store {
	return &sessionStore{rdb: rdb, now: time.Now}
}

func key(id string) string { return keyPrefix + id }

func (s *sessionStore) ttl(expiresAt time.Time) time.Duration {
	ttl := expiresAt.Sub(s.now())
	if ttl < time.Millisecond {
		ttl = time.Millisecond
	}
	return ttl
}

func (s *sessionStore) CreateSession(ctx context.Context, sess session.Session) error {
	data, err := json.Marshal(sess)
	if err != nil {
		return errors.Wrap(err, "encoding session")
	}
	return errors.Wrap(s.rdb.Set(ctx, key(sess.ID), data, s.ttl(sess.ExpiresAt)).Err(), "storing session")
}

func (s *sessionStore) GetSession(ctx context.Context, id string) (session.Session, error) {
	data, err := s.rdb.Get(ctx, key(id)).Bytes()
	if err != nil {
		if err == redis.Nil {
			return session.Session{}, session.ErrNotFound
		}
		return session.Session{}, errors.Wrap(err, "reading session")
	}
	var sess session.Session
	if err := json.Unmarshal(data, &sess); err != nil {
		return session.Session{}, errors.Wrap(err, "decoding session")
	}
	if sess.Expired(s.now()) {
		return session.Session{}, session.ErrNotFound
	}
	return sess, nil
}

// TouchSession rewrites the stored expiry along with the key TTL.
func (s *sessionStore) TouchSession(ctx context.Context, id string, expiresAt time.Time) error {
	sess, err := s.GetSession(ctx, id)
	if err != nil {
		return err
	}
	sess.ExpiresAt = expiresAt
	data, err := json.Marshal(sess)
	if err != nil {
		return errors.Wrap(err, "encoding session")
	}
	return errors.Wrap(s.rdb.Set(ctx, key(id), data, s.ttl(expiresAt)).Err(), "touching session")
}

func (s *sessionStore) DeleteSession(ctx context.Context, id string) error {
	return errors.Wrap(s.rdb.Del(ctx, key(id)).Err(), "deleting session")
}
