package mongorepos

import (
	"context"
	"time"

	"github.com/pkg/errors"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"

	"github.com/twahidin/project-lumos/core/whodoc"
)

type documentDoc struct {
	Name       string    `bson:"name"`
	Type       string    `bson:"type"`
	Location   string    `bson:"location"`
	UploadedAt time.Time `bson:"uploadedAt"`
}

// whoDoc is the stored shape of a whodoc.Doc; the user reference is an ObjectID.
type whoDoc struct {
	ID           primitive.ObjectID     `bson:"_id,omitempty"`
	UserID       primitive.ObjectID     `bson:"userId"`
	StudentEmail string                 `bson:"studentEmail"`
	StudentName  string                 `bson:"studentName"`
	Group        string                 `bson:"group"`
	Status       string                 `bson:"status"`
	Documents    []documentDoc          `bson:"documents"`
	Notes        string                 `bson:"notes"`
	Metadata     map[string]interface{} `bson:"metadata"`
	CreatedAt    time.Time              `bson:"createdAt"`
	UpdatedAt    time.Time              `bson:"updatedAt"`
}

func newWhoDoc(doc whodoc.Doc) whoDoc {
	documents := make([]documentDoc, 0, len(doc.Documents))
	for _, d := range doc.Documents {
		documents = append(documents, documentDoc(d))
	}
	metadata := doc.Metadata
	if metadata == nil {
		metadata = map[string]interface{}{}
	}
	return whoDoc{
		StudentEmail: doc.StudentEmail,
		StudentName:  doc.StudentName,
		Group:        doc.Group,
		Status:       string(doc.Status),
		Documents:    documents,
		Notes:        doc.Notes,
		Metadata:     metadata,
		CreatedAt:    doc.CreatedAt,
		UpdatedAt:    doc.UpdatedAt,
	}
}

func (d whoDoc) toDoc() whodoc.Doc {
	doc := whodoc.Doc{
		ID:           d.ID.Hex(),
		UserID:       d.UserID.Hex(),
		StudentEmail: d.StudentEmail,
		StudentName:  d.StudentName,
		Group:        d.Group,
		Status:       whodoc.Status(d.Status),
		Documents:    make([]whodoc.Document, 0, len(d.Documents)),
		Notes:        d.Notes,
		Metadata:     d.Metadata,
		CreatedAt:    d.CreatedAt.UTC(),
		UpdatedAt:    d.UpdatedAt.UTC(),
	}
	for _, document := range d.Documents {
		document.UploadedAt = document.UploadedAt.UTC()
		doc.Documents = append(doc.Documents, whodoc.Document(document))
	}
	if doc.Status == "" {
		doc.Status = whodoc.StatusPending
	}
	if doc.Metadata == nil {
		doc.Metadata = map[string]interface{}{}
	}
	return doc
}

type docRepository struct {
	coll *mongo.Collection
}

var _ whodoc.Repository = (*docRepository)(nil)

func NewDocRepository(db *DB) whodoc.Repository {
	return &docRepository{coll: db.db.Collection(docsColl)}
}

func (repo *docRepository) CreateDoc(ctx context.Context, doc whodoc.Doc) (whodoc.Doc, error) {
	userOID, ok := objectID(doc.UserID)
	if !ok {
		return whodoc.Doc{}, errors.Errorf("invalid user id %q", doc.UserID)
	}
	d := newWhoDoc(doc)
	d.ID = primitive.NewObjectID()
	d.UserID = userOID
	if _, err := repo.coll.InsertOne(ctx, d); err != nil {
		return whodoc.Doc{}, errors.Wrap(err, "inserting WHO doc")
	}
	return d.toDoc(), nil
}

func (repo *docRepository) GetDoc(ctx context.Context, id string) (whodoc.Doc, error) {
	oid, ok := objectID(id)
	if !ok {
		return whodoc.Doc{}, whodoc.ErrNotFound
	}
	var d whoDoc
	if err := repo.coll.FindOne(ctx, bson.M{"_id": oid}).Decode(&d); err != nil {
		if err == mongo.ErrNoDocuments {
			return whodoc.Doc{}, whodoc.ErrNotFound
		}
		return whodoc.Doc{}, errors.Wrap(err, "finding WHO doc")
	}
	return d.toDoc(), nil
}

func (repo *docRepository) QueryDocs(ctx context.Context, filter whodoc.QueryFilter) ([]whodoc.Doc, error) {
	query := bson.M{}
	if filter.UserID != "" {
		oid, ok := objectID(filter.UserID)
		if !ok {
			return []whodoc.Doc{}, nil
		}
		query["userId"] = oid
	}

	opts := options.Find().SetSort(bson.D{{Key: "updatedAt", Value: -1}, {Key: "_id", Value: -1}})
	cur, err := repo.coll.Find(ctx, query, opts)
	if err != nil {
		return nil, errors.Wrap(err, "querying WHO docs")
	}
	var docs []whoDoc
	if err := cur.All(ctx, &docs); err != nil {
		return nil, errors.Wrap(err, "decoding WHO docs")
	}

	res := make([]whodoc.Doc, 0, len(docs))
	for _, d := range docs {
		res = append(res, d.toDoc())
	}
	return res, nil
}

func (repo *docRepository) UpdateDoc(ctx context.Context, doc whodoc.Doc) (whodoc.Doc, error) {
	oid, ok := objectID(doc.ID)
	if !ok {
		return whodoc.Doc{}, whodoc.ErrNotFound
	}
	d := newWhoDoc(doc)
	set := bson.M{
		"studentEmail": d.StudentEmail,
		"studentName":  d.StudentName,
		"group":        d.Group,
		"status":       d.Status,
		"documents":    d.Documents,
		"notes":        d.Notes,
		"metadata":     d.Metadata,
		"updatedAt":    d.UpdatedAt,
	}

	var updated whoDoc
	err := repo.coll.FindOneAndUpdate(
		ctx, bson.M{"_id": oid}, bson.M{"$set": set},
		options.FindOneAndUpdate().SetReturnDocument(options.After),
	).Decode(&updated)
	if err != nil {
		if err == mongo.ErrNoDocuments {
			return whodoc.Doc{}, whodoc.ErrNotFound
		}
		return whodoc.Doc{}, errors.Wrap(err, "updating WHO doc")
	}
	return updated.toDoc(), nil
}
