package mongorepos

import (
	"context"
	"time"

	"github.com/pkg/errors"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
)

// Collections
const (
	usersColl    = "users"
	docsColl     = "whodocumentations"
	sessionsColl = "sessions"
)

// Unique index names; duplicate key errors are told apart by them.
const (
	emailIndex  = "email_unique"
	userIDIndex = "userid_unique"
)

// DB is a connected mongo database.
type DB struct {
	client *mongo.Client
	db     *mongo.Database
}

// Open connects to uri and pings the server once.
func Open(ctx context.Context, uri, dbName string) (*DB, error) {
	client, err := mongo.Connect(ctx, options.Client().ApplyURI(uri).SetServerSelectionTimeout(5*time.Second))
	if err != nil {
		return nil, errors.Wrap(err, "connecting to mongo")
	}
	if err := client.Ping(ctx, nil); err != nil {
		_ = client.Disconnect(context.Background())
		return nil, errors.Wrap(err, "pinging mongo")
	}
	return &DB{client: client, db: client.Database(dbName)}, nil
}

func (db *DB) Close(ctx context.Context) error {
	return db.client.Disconnect(ctx)
}

// EnsureIndexes creates the unique login key indexes and the session expiry index.
// Login keys are optional, so uniqueness only applies to documents that have them.
func (db *DB) EnsureIndexes(ctx context.Context) error {
	_, err := db.db.Collection(usersColl).Indexes().CreateMany(ctx, []mongo.IndexModel{
		{
			Keys: bson.D{{Key: "email", Value: 1}},
			Options: options.Index().SetName(emailIndex).SetUnique(true).
				SetPartialFilterExpression(bson.M{"email": bson.M{"$exists": true}}),
		},
		{
			Keys: bson.D{{Key: "userid", Value: 1}},
			Options: options.Index().SetName(userIDIndex).SetUnique(true).
				SetPartialFilterExpression(bson.M{"userid": bson.M{"$exists": true}}),
		},
		{Keys: bson.D{{Key: "role", Value: 1}, {Key: "group", Value: 1}}},
	})
	if err != nil {
		return errors.Wrap(err, "creating user indexes")
	}

	_, err = db.db.Collection(docsColl).Indexes().CreateMany(ctx, []mongo.IndexModel{
		{Keys: bson.D{{Key: "userId", Value: 1}, {Key: "updatedAt", Value: -1}}},
		{Keys: bson.D{{Key: "updatedAt", Value: -1}}},
	})
	if err != nil {
		return errors.Wrap(err, "creating WHO doc indexes")
	}

	_, err = db.db.Collection(sessionsColl).Indexes().CreateOne(ctx, mongo.IndexModel{
		Keys:    bson.D{{Key: "expiresAt", Value: 1}},
		Options: options.Index().SetExpireAfterSeconds(0),
	})
	return errors.Wrap(err, "creating session index")
}

// objectID parses a hex id; ok is false for ids no document can have.
func objectID(id string) (primitive.ObjectID, bool) {
	oid, err := primitive.ObjectIDFromHex(id)
	return oid, err == nil
}

func stringPtr(s string) *string {
	if s == "" {
		return nil
	}
	return &s
}

func stringVal(s *string) string {
	if s == nil {
		return ""
	}
	return *s
}
