package pgrepos

import (
	"context"
	"database/sql"
	"encoding/json"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx/types"
	"github.com/pkg/errors"

	"github.com/twahidin/project-lumos/core/whodoc"
)

const docColumns = `id, user_id, student_email, student_name, "group", status, documents, notes, metadata, created_at, updated_at`

type docRow struct {
	ID           string         `db:"id"`
	UserID       string         `db:"user_id"`
	StudentEmail string         `db:"student_email"`
	StudentName  string         `db:"student_name"`
	Group        string         `db:"group"`
	Status       string         `db:"status"`
	Documents    types.JSONText `db:"documents"`
	Notes        string         `db:"notes"`
	Metadata     types.JSONText `db:"metadata"`
	CreatedAt    time.Time      `db:"created_at"`
	UpdatedAt    time.Time      `db:"updated_at"`
}

func newDocRow(doc whodoc.Doc) (docRow, error) {
	documents := doc.Documents
	if documents == nil {
		documents = []whodoc.Document{}
	}
	documentsJSON, err := json.Marshal(documents)
	if err != nil {
		return docRow{}, errors.Wrap(err, "encoding documents")
	}
	metadata := doc.Metadata
	if metadata == nil {
		metadata = map[string]interface{}{}
	}
	metadataJSON, err := json.Marshal(metadata)
	if err != nil {
		return docRow{}, errors.Wrap(err, "encoding metadata")
	}
	return docRow{
		ID:           doc.ID,
		UserID:       doc.UserID,
		StudentEmail: doc.StudentEmail,
		StudentName:  doc.StudentName,
		Group:        doc.Group,
		Status:       string(doc.Status),
		Documents:    types.JSONText(documentsJSON),
		Notes:        doc.Notes,
		Metadata:     types.JSONText(metadataJSON),
		CreatedAt:    doc.CreatedAt,
		UpdatedAt:    doc.UpdatedAt,
	}, nil
}

func (row docRow) toDoc() (whodoc.Doc, error) {
	doc := whodoc.Doc{
		ID:           row.ID,
		UserID:       row.UserID,
		StudentEmail: row.StudentEmail,
		StudentName:  row.StudentName,
		Group:        row.Group,
		Status:       whodoc.Status(row.Status),
		Documents:    []whodoc.Document{},
		Notes:        row.Notes,
		Metadata:     map[string]interface{}{},
		CreatedAt:    row.CreatedAt.UTC(),
		UpdatedAt:    row.UpdatedAt.UTC(),
	}
	if len(row.Documents) > 0 {
		if err := row.Documents.Unmarshal(&doc.Documents); err != nil {
			return whodoc.Doc{}, errors.Wrap(err, "decoding documents")
		}
	}
	if len(row.Metadata) > 0 {
		if err := row.Metadata.Unmarshal(&doc.Metadata); err != nil {
			return whodoc.Doc{}, errors.Wrap(err, "decoding metadata")
		}
	}
	if doc.Documents == nil {
		doc.Documents = []whodoc.Document{}
	}
	if doc.Metadata == nil {
		doc.Metadata = map[string]interface{}{}
	}
	for i := range doc.Documents {
		doc.Documents[i].UploadedAt = doc.Documents[i].UploadedAt.UTC()
	}
	return doc, nil
}

type docRepository struct {
	db *DB
}

var _ whodoc.Repository = (*docRepository)(nil)

func NewDocRepository(db *DB) whodoc.Repository {
	return &docRepository{db: db}
}

func (repo *docRepository) CreateDoc(ctx context.Context, doc whodoc.Doc) (whodoc.Doc, error) {
	if !validID(doc.UserID) {
		return whodoc.Doc{}, errors.Errorf("invalid user id %q", doc.UserID)
	}
	doc.ID = uuid.NewString()
	row, err := newDocRow(doc)
	if err != nil {
		return whodoc.Doc{}, err
	}

	q := `INSERT INTO who_docs (` + docColumns + `)
		VALUES (:id, :user_id, :student_email, :student_name, :group, :status, :documents, :notes, :metadata, :created_at, :updated_at)`
	if _, err := repo.db.NamedExecContext(ctx, q, row); err != nil {
		return whodoc.Doc{}, errors.Wrap(err, "inserting WHO doc")
	}
	return row.toDoc()
}

func (repo *docRepository) GetDoc(ctx context.Context, id string) (whodoc.Doc, error) {
	if !validID(id) {
		return whodoc.Doc{}, whodoc.ErrNotFound
	}
	var row docRow
	if err := repo.db.GetContext(ctx, &row, `SELECT `+docColumns+` FROM who_docs WHERE id = $1`, id); err != nil {
		if err == sql.ErrNoRows {
			return whodoc.Doc{}, whodoc.ErrNotFound
		}
		return whodoc.Doc{}, errors.Wrap(err, "finding WHO doc")
	}
	return row.toDoc()
}

func (repo *docRepository) QueryDocs(ctx context.Context, filter whodoc.QueryFilter) ([]whodoc.Doc, error) {
	w := new(whereClause)
	if filter.UserID != "" {
		if !validID(filter.UserID) {
			return []whodoc.Doc{}, nil
		}
		w.add("user_id = ?", filter.UserID)
	}

	var rows []docRow
	q := `SELECT ` + docColumns + ` FROM who_docs` + w.String() + ` ORDER BY updated_at DESC, id DESC`
	if err := repo.db.SelectContext(ctx, &rows, q, w.args...); err != nil {
		return nil, errors.Wrap(err, "querying WHO docs")
	}

	docs := make([]whodoc.Doc, 0, len(rows))
	for _, row := range rows {
		doc, err := row.toDoc()
		if err != nil {
			return nil, err
		}
		docs = append(docs, doc)
	}
	return docs, nil
}

func (repo *docRepository) UpdateDoc(ctx context.Context, doc whodoc.Doc) (whodoc.Doc, error) {
	if !validID(doc.ID) {
		return whodoc.Doc{}, whodoc.ErrNotFound
	}
	row, err := newDocRow(doc)
	if err != nil {
		return whodoc.Doc{}, err
	}

	q := `UPDATE who_docs SET student_email = $2, student_name = $3, "group" = $4, status = $5,
		documents = $6, notes = $7, metadata = $8, updated_at = $9
		WHERE id = $1 RETURNING ` + docColumns
	var updated docRow
	err = repo.db.GetContext(ctx, &updated, q,
		row.ID, row.StudentEmail, row.StudentName, row.Group, row.Status, row.Documents, row.Notes, row.Metadata, row.UpdatedAt)
	if err != nil {
		if err == sql.ErrNoRows {
			return whodoc.Doc{}, whodoc.ErrNotFound
		}
		return whodoc.Doc{}, errors.Wrap(err, "updating WHO doc")
	}
	return updated.toDoc()
}
