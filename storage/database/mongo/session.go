package mongorepos

import (
	"context"
	"time"

	"github.com/pkg/errors"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"

	"github.com/twahidin/project-lumos/core/session"
	"github.com/twahidin/project-lumos/core/user"
)

// sessionDoc is removed by the server once expiresAt is past (see EnsureIndexes).
type sessionDoc struct {
	ID         string    `bson:"_id"`
	IdentityID string    `bson:"identityId,omitempty"`
	Role       string    `bson:"role"`
	SuperAdmin bool      `bson:"superAdmin"`
	LoginKey   string    `bson:"login"`
	CreatedAt  time.Time `bson:"createdAt"`
	ExpiresAt  time.Time `bson:"expiresAt"`
}

type sessionStore struct {
	coll *mongo.Collection
	now  func() time.Time
}

var _ session.Store = (*sessionStore)(nil)

func NewSessionStore(db *DB) session.Store {
	return &sessionStore{coll: db.db.Collection(sessionsColl), now: time.Now}
}

func (s *sessionStore) CreateSession(ctx context.Context, sess session.Session) error {
	_, err := s.coll.InsertOne(ctx, sessionDoc{
		ID:         sess.ID,
		IdentityID: sess.IdentityID,
		Role:       string(sess.Role),
		SuperAdmin: sess.SuperAdmin,
		LoginKey:   sess.LoginKey,
		CreatedAt:  sess.CreatedAt,
		ExpiresAt:  sess.ExpiresAt,
	})
	return errors.Wrap(err, "inserting session")
}

// GetSession does not trust the TTL monitor, which only runs once a minute.
func (s *sessionStore) GetSession(ctx context.Context, id string) (session.Session, error) {
	var d sessionDoc
	err := s.coll.FindOne(ctx, bson.M{"_id": id, "expiresAt": bson.M{"$gt": s.now()}}).Decode(&d)
	if err != nil {
		if err == mongo.ErrNoDocuments {
			return session.Session{}, session.ErrNotFound
		}
		return session.Session{}, errors.Wrap(err, "finding session")
	}
	return session.Session{
		ID:         d.ID,
		IdentityID: d.IdentityID,
		Role:       user.ParseRole(d.Role),
		SuperAdmin: d.SuperAdmin,
		LoginKey:   d.LoginKey,
		CreatedAt:  d.CreatedAt.UTC(),
		ExpiresAt:  d.ExpiresAt.UTC(),
	}, nil
}

func (s *sessionStore) TouchSession(ctx context.Context, id string, expiresAt time.Time) error {
	res, err := s.coll.UpdateOne(ctx, bson.M{"_id": id}, bson.M{"$set": bson.M{"expiresAt": expiresAt}})
	if err != nil {
		return errors.Wrap(err, "touching session")
	}
	if res.MatchedCount == 0 {
		return session.ErrNotFound
	}
	return nil
}

func (s *sessionStore) DeleteSession(ctx context.Context, id string) error {
	_, err := s.coll.DeleteOne(ctx, bson.M{"_id": id})
	return errors.Wrap(err, "deleting session")
}
