package mongorepos

import (
	"context"
	"regexp"
	"strings"
	"time"

	"github.com/pkg/errors"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"

	"github.com/twahidin/project-lumos/core"
	"github.com/twahidin/project-lumos/core/user"
)

var userOrderingFields = map[string]string{
	"createdAt": "createdAt",
	"updatedAt": "updatedAt",
	"name":      "name",
	"email":     "email",
	"userid":    "userid",
	"group":     "group",
	"role":      "role",
}

type resourcesDoc struct {
	MaxWeeks      int      `bson:"maxWeeks"`
	AllowedStages []string `bson:"allowedStages"`
	Notes         string   `bson:"notes"`
}

// userDoc is the stored shape of a user.User.
// Login keys are left out when empty so the partial unique indexes ignore them.
type userDoc struct {
	ID        primitive.ObjectID `bson:"_id,omitempty"`
	Email     *string            `bson:"email,omitempty"`
	UserID    *string            `bson:"userid,omitempty"`
	Name      string             `bson:"name"`
	Password  string             `bson:"password"`
	Role      string             `bson:"role"`
	IsTeacher bool               `bson:"isTeacher"`
	Group     string             `bson:"group"`
	Members   []string           `bson:"members"`
	Resources *resourcesDoc      `bson:"resources,omitempty"`
	CreatedAt time.Time          `bson:"createdAt"`
	UpdatedAt time.Time          `bson:"updatedAt"`
}

func newUserDoc(usr user.User) userDoc {
	members := usr.Members
	if members == nil {
		members = []string{}
	}
	stages := usr.Resources.AllowedStages
	if stages == nil {
		stages = []string{}
	}
	return userDoc{
		Email:     stringPtr(usr.Email),
		UserID:    stringPtr(usr.UserID),
		Name:      usr.Name,
		Password:  string(usr.PasswordHash),
		Role:      string(usr.Role),
		IsTeacher: usr.IsTeacher,
		Group:     usr.Group,
		Members:   members,
		Resources: &resourcesDoc{MaxWeeks: usr.Resources.MaxWeeks, AllowedStages: stages, Notes: usr.Resources.Notes},
		CreatedAt: usr.CreatedAt,
		UpdatedAt: usr.UpdatedAt,
	}
}

// toUser fills in the defaults of records written before they existed.
func (d userDoc) toUser() user.User {
	usr := user.User{
		ID:        d.ID.Hex(),
		Email:     stringVal(d.Email),
		UserID:    stringVal(d.UserID),
		Name:      d.Name,
		Role:      user.ParseRole(d.Role),
		IsTeacher: d.IsTeacher,
		Group:     d.Group,
		Members:   d.Members,
		Resources: user.DefaultResources(),
		CreatedAt: d.CreatedAt.UTC(),
		UpdatedAt: d.UpdatedAt.UTC(),
	}
	if d.Password != "" {
		usr.PasswordHash = []byte(d.Password)
	}
	if usr.Members == nil {
		usr.Members = []string{}
	}
	if d.Resources != nil {
		usr.Resources.MaxWeeks = d.Resources.MaxWeeks
		usr.Resources.Notes = d.Resources.Notes
		if d.Resources.AllowedStages != nil {
			usr.Resources.AllowedStages = d.Resources.AllowedStages
		}
	}
	return usr
}

type userRepository struct {
	coll *mongo.Collection
}

var _ user.Repository = (*userRepository)(nil)

func NewUserRepository(db *DB) user.Repository {
	return &userRepository{coll: db.db.Collection(usersColl)}
}

func (repo *userRepository) CreateUser(ctx context.Context, usr user.User) (user.User, error) {
	d := newUserDoc(usr)
	d.ID = primitive.NewObjectID()
	if _, err := repo.coll.InsertOne(ctx, d); err != nil {
		if conflict := duplicateKeyError(err); conflict != nil {
			return user.User{}, conflict
		}
		return user.User{}, errors.Wrap(err, "inserting user")
	}
	return d.toUser(), nil
}

func (repo *userRepository) GetUser(ctx context.Context, filter user.GetFilter) (user.User, error) {
	var query bson.M
	switch {
	case filter.ID != "":
		oid, ok := objectID(filter.ID)
		if !ok {
			return user.User{}, user.ErrNotFound
		}
		query = bson.M{"_id": oid}
	case filter.Email != "":
		query = bson.M{"email": filter.Email}
	case filter.UserID != "":
		query = bson.M{"userid": filter.UserID}
	default:
		return user.User{}, user.ErrNotFound
	}

	var d userDoc
	if err := repo.coll.FindOne(ctx, query).Decode(&d); err != nil {
		if err == mongo.ErrNoDocuments {
			return user.User{}, user.ErrNotFound
		}
		return user.User{}, errors.Wrap(err, "finding user")
	}
	return d.toUser(), nil
}

func (repo *userRepository) QueryUsers(ctx context.Context, filter user.QueryFilter, orderings ...core.DBOrdering) ([]user.User, error) {
	query := bson.M{}
	if len(filter.IDs) > 0 {
		oids := make([]primitive.ObjectID, 0, len(filter.IDs))
		for _, id := range filter.IDs {
			if oid, ok := objectID(id); ok {
				oids = append(oids, oid)
			}
		}
		query["_id"] = bson.M{"$in": oids}
	}
	if len(filter.Roles) > 0 {
		roles := make([]string, 0, len(filter.Roles))
		for _, r := range filter.Roles {
			roles = append(roles, string(r))
		}
		query["role"] = bson.M{"$in": roles}
	}
	if filter.Group != "" {
		query["group"] = filter.Group
	}
	if filter.Search != "" {
		pattern := primitive.Regex{Pattern: regexp.QuoteMeta(filter.Search), Options: "i"}
		query["$or"] = bson.A{
			bson.M{"name": pattern},
			bson.M{"email": pattern},
			bson.M{"userid": pattern},
		}
	}

	sortDoc := bson.D{}
	for _, ord := range core.CleanOrderings(orderings, userOrderingFields, core.DBOrdering{Field: "createdAt"}) {
		direction := -1
		if ord.Ascending {
			direction = 1
		}
		sortDoc = append(sortDoc, bson.E{Key: ord.Field, Value: direction})
	}

	cur, err := repo.coll.Find(ctx, query, options.Find().SetSort(sortDoc))
	if err != nil {
		return nil, errors.Wrap(err, "querying users")
	}
	var docs []userDoc
	if err := cur.All(ctx, &docs); err != nil {
		return nil, errors.Wrap(err, "decoding users")
	}

	users := make([]user.User, 0, len(docs))
	for _, d := range docs {
		users = append(users, d.toUser())
	}
	return users, nil
}

func (repo *userRepository) UpdateUser(ctx context.Context, usr user.User) (user.User, error) {
	oid, ok := objectID(usr.ID)
	if !ok {
		return user.User{}, user.ErrNotFound
	}
	d := newUserDoc(usr)
	set := bson.M{
		"name":      d.Name,
		"role":      d.Role,
		"isTeacher": d.IsTeacher,
		"group":     d.Group,
		"members":   d.Members,
		"resources": d.Resources,
		"updatedAt": d.UpdatedAt,
	}
	if d.Password != "" {
		set["password"] = d.Password
	}

	var updated userDoc
	err := repo.coll.FindOneAndUpdate(
		ctx, bson.M{"_id": oid}, bson.M{"$set": set},
		options.FindOneAndUpdate().SetReturnDocument(options.After),
	).Decode(&updated)
	if err != nil {
		if err == mongo.ErrNoDocuments {
			return user.User{}, user.ErrNotFound
		}
		return user.User{}, errors.Wrap(err, "updating user")
	}
	return updated.toUser(), nil
}

func (repo *userRepository) SetPasswordHash(ctx context.Context, id string, hash []byte, updatedAt time.Time) error {
	oid, ok := objectID(id)
	if !ok {
		return user.ErrNotFound
	}
	res, err := repo.coll.UpdateOne(ctx, bson.M{"_id": oid}, bson.M{"$set": bson.M{
		"password":  string(hash),
		"updatedAt": updatedAt,
	}})
	if err != nil {
		return errors.Wrap(err, "updating user password")
	}
	if res.MatchedCount == 0 {
		return user.ErrNotFound
	}
	return nil
}

func (repo *userRepository) DistinctGroups(ctx context.Context, role user.Role) ([]string, error) {
	values, err := repo.coll.Distinct(ctx, "group", bson.M{"role": string(role)})
	if err != nil {
		return nil, errors.Wrap(err, "querying distinct groups")
	}
	groups := make([]string, 0, len(values))
	for _, v := range values {
		if s, ok := v.(string); ok {
			groups = append(groups, s)
		}
	}
	return groups, nil
}

// duplicateKeyError maps a unique index violation to the login key it is about.
func duplicateKeyError(err error) error {
	if !mongo.IsDuplicateKeyError(err) {
		return nil
	}
	msg := err.Error()
	switch {
	case strings.Contains(msg, userIDIndex):
		return user.ErrUserIDExists
	case strings.Contains(msg, emailIndex):
		return user.ErrEmailExists
	}
	return user.ErrEmailExists
}
