package whodoc

import (
	"context"
	"time"

	"github.com/pkg/errors"

	"github.com/twahidin/project-lumos/core"
	"github.com/twahidin/project-lumos/core/user"
)

var ErrNotFound = core.NewNotFoundError("WHO doc")

type (
	Repository interface {
		CreateDoc(ctx context.Context, doc Doc) (Doc, error)
		GetDoc(ctx context.Context, id string) (Doc, error)
		// QueryDocs returns the matching docs, most recently updated first.
		QueryDocs(ctx context.Context, filter QueryFilter) ([]Doc, error)
		// UpdateDoc saves every mutable field of doc, UserID and CreatedAt excepted.
		UpdateDoc(ctx context.Context, doc Doc) (Doc, error)
	}

	// UserRepository is the part of the Credential Store the service reads referenced users from.
	UserRepository interface {
		GetUser(ctx context.Context, filter user.GetFilter) (user.User, error)
		QueryUsers(ctx context.Context, filter user.QueryFilter, orderings ...core.DBOrdering) ([]user.User, error)
	}

	Service struct {
		repo    Repository
		usrRepo UserRepository
		now     func() time.Time
	}
)

func NewService(repo Repository, usrRepo UserRepository) *Service {
	return &Service{repo: repo, usrRepo: usrRepo, now: user.Now}
}

// Create creates a Doc for an existing user.User.
// Blank student fields default to the ones of the referenced user.
func (svc *Service) Create(ctx context.Context, nd NewDoc) (Doc, error) {
	usr, err := svc.usrRepo.GetUser(ctx, user.GetFilter{ID: nd.UserID})
	if err != nil {
		return Doc{}, err
	}

	now := svc.now()
	doc := Doc{
		UserID:       usr.ID,
		StudentEmail: nd.StudentEmail,
		StudentName:  nd.StudentName,
		Group:        nd.Group,
		Status:       nd.Status,
		Documents:    nd.Documents,
		Notes:        nd.Notes,
		Metadata:     nd.Metadata,
		CreatedAt:    now,
		UpdatedAt:    now,
	}
	if doc.StudentEmail == "" {
		doc.StudentEmail = usr.Email
	}
	if doc.StudentName == "" {
		doc.StudentName = usr.Name
	}
	if doc.Group == "" {
		doc.Group = usr.Group
	}
	if doc.Status == "" {
		doc.Status = StatusPending
	}
	doc.Documents = stampDocuments(doc.Documents, now)
	if doc.Metadata == nil {
		doc.Metadata = map[string]interface{}{}
	}

	doc, err = svc.repo.CreateDoc(ctx, doc)
	if err != nil {
		return Doc{}, errors.Wrap(err, "creating WHO doc")
	}
	return doc, nil
}

// QueryAll lists every Doc, most recently updated first, with its user populated.
// A Doc whose user no longer exists is listed without one.
func (svc *Service) QueryAll(ctx context.Context) ([]Doc, error) {
	docs, err := svc.repo.QueryDocs(ctx, QueryFilter{})
	if err != nil {
		return nil, errors.Wrap(err, "querying WHO docs")
	}
	if len(docs) == 0 {
		return []Doc{}, nil
	}

	ids := make([]string, 0, len(docs))
	for _, doc := range docs {
		ids = append(ids, doc.UserID)
	}
	users, err := svc.usrRepo.QueryUsers(ctx, user.QueryFilter{IDs: ids})
	if err != nil {
		return nil, errors.Wrap(err, "querying WHO doc users")
	}
	byID := make(map[string]user.User, len(users))
	for _, usr := range users {
		byID[usr.ID] = usr
	}
	for i := range docs {
		if usr, ok := byID[docs[i].UserID]; ok {
			docs[i].User = summarize(usr)
		}
	}
	return docs, nil
}

// QueryByUser lists the docs of one user, most recently updated first.
func (svc *Service) QueryByUser(ctx context.Context, userID string) ([]Doc, error) {
	docs, err := svc.repo.QueryDocs(ctx, QueryFilter{UserID: core.CleanString(userID)})
	if err != nil {
		return nil, errors.Wrap(err, "querying WHO docs by user")
	}
	if docs == nil {
		docs = []Doc{}
	}
	return docs, nil
}

// Update applies the set fields of ud to the Doc with the given id.
func (svc *Service) Update(ctx context.Context, id string, ud UpdateDoc) (Doc, error) {
	doc, err := svc.repo.GetDoc(ctx, id)
	if err != nil {
		return Doc{}, err
	}

	now := svc.now()
	if ud.StudentName != nil {
		doc.StudentName = core.CleanString(*ud.StudentName)
	}
	if ud.Group != nil {
		doc.Group = core.CleanString(*ud.Group)
	}
	if ud.Status != nil {
		doc.Status = *ud.Status
	}
	if ud.Notes != nil {
		doc.Notes = *ud.Notes
	}
	if ud.Documents != nil {
		doc.Documents = stampDocuments(*ud.Documents, now)
	}
	if ud.Metadata != nil {
		doc.Metadata = *ud.Metadata
		if doc.Metadata == nil {
			doc.Metadata = map[string]interface{}{}
		}
	}
	doc.UpdatedAt = now

	return svc.repo.UpdateDoc(ctx, doc)
}

// stampDocuments sets the upload time of the documents that have none.
func stampDocuments(docs []Document, now time.Time) []Document {
	if docs == nil {
		return []Document{}
	}
	for i := range docs {
		if docs[i].UploadedAt.IsZero() {
			docs[i].UploadedAt = now
		} else {
			docs[i].UploadedAt = docs[i].UploadedAt.UTC()
		}
	}
	return docs
}
