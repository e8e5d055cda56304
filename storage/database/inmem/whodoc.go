package inmemdb

import (
	"context"
	"sort"

	"go.mongodb.org/mongo-driver/bson/primitive"

	"github.com/twahidin/project-lumos/core/whodoc"
)

type docRepository struct {
	db *docTable
}

var _ whodoc.Repository = (*docRepository)(nil)

func NewDocRepository(db *DB) whodoc.Repository {
	return &docRepository{db: db.doc}
}

func (repo *docRepository) CreateDoc(_ context.Context, doc whodoc.Doc) (whodoc.Doc, error) {
	repo.db.mutex.Lock()
	defer repo.db.mutex.Unlock()

	doc.ID = primitive.NewObjectID().Hex()
	doc.User = nil
	stored := copyDoc(doc)
	repo.db.table[doc.ID] = &stored
	return copyDoc(stored), nil
}

func (repo *docRepository) GetDoc(_ context.Context, id string) (whodoc.Doc, error) {
	repo.db.mutex.RLock()
	defer repo.db.mutex.RUnlock()

	if doc, ok := repo.db.table[id]; ok {
		return copyDoc(*doc), nil
	}
	return whodoc.Doc{}, whodoc.ErrNotFound
}

func (repo *docRepository) QueryDocs(_ context.Context, filter whodoc.QueryFilter) ([]whodoc.Doc, error) {
	repo.db.mutex.RLock()
	defer repo.db.mutex.RUnlock()

	docs := make([]whodoc.Doc, 0)
	for _, doc := range repo.db.table {
		if filter.UserID != "" && doc.UserID != filter.UserID {
			continue
		}
		docs = append(docs, copyDoc(*doc))
	}
	sort.SliceStable(docs, func(i, j int) bool {
		if docs[i].UpdatedAt.Equal(docs[j].UpdatedAt) {
			return docs[i].ID > docs[j].ID
		}
		return docs[i].UpdatedAt.After(docs[j].UpdatedAt)
	})
	return docs, nil
}

func (repo *docRepository) UpdateDoc(_ context.Context, doc whodoc.Doc) (whodoc.Doc, error) {
	repo.db.mutex.Lock()
	defer repo.db.mutex.Unlock()

	orig, ok := repo.db.table[doc.ID]
	if !ok {
		return whodoc.Doc{}, whodoc.ErrNotFound
	}
	orig.StudentEmail = doc.StudentEmail
	orig.StudentName = doc.StudentName
	orig.Group = doc.Group
	orig.Status = doc.Status
	orig.Documents = append([]whodoc.Document{}, doc.Documents...)
	orig.Notes = doc.Notes
	orig.Metadata = copyMetadata(doc.Metadata)
	orig.UpdatedAt = doc.UpdatedAt

	return copyDoc(*orig), nil
}

func copyDoc(doc whodoc.Doc) whodoc.Doc {
	doc.Documents = append([]whodoc.Document{}, doc.Documents...)
	doc.Metadata = copyMetadata(doc.Metadata)
	return doc
}

// copyMetadata is a shallow copy; nested values are shared.
func copyMetadata(md map[string]interface{}) map[string]interface{} {
	cp := make(map[string]interface{}, len(md))
	for k, v := range md {
		cp[k] = v
	}
	return cp
}
