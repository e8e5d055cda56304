package whodoc

import (
	"time"

	"github.com/go-playground/validator/v10"

	"github.com/twahidin/project-lumos/core"
	"github.com/twahidin/project-lumos/core/user"
)

type Status string

const (
	StatusPending    Status = "pending"
	StatusInProgress Status = "in_progress"
	StatusCompleted  Status = "completed"
)

var AllStatuses = []Status{StatusPending, StatusInProgress, StatusCompleted}

func (s Status) Valid() bool {
	for _, status := range AllStatuses {
		if s == status {
			return true
		}
	}
	return false
}

// Document describes one uploaded piece of WHO documentation.
type Document struct {
	Name       string    `json:"name"`
	Type       string    `json:"type"`
	Location   string    `json:"location"`
	UploadedAt time.Time `json:"uploadedAt"`
}

// Doc is the WHO documentation record of a student.
type Doc struct {
	ID           string                 `json:"id"`
	UserID       string                 `json:"userId"`
	StudentEmail string                 `json:"studentEmail"`
	StudentName  string                 `json:"studentName"`
	Group        string                 `json:"group"`
	Status       Status                 `json:"status"`
	Documents    []Document             `json:"documents"`
	Notes        string                 `json:"notes"`
	Metadata     map[string]interface{} `json:"metadata"`
	CreatedAt    time.Time              `json:"createdAt"` // UTC
	UpdatedAt    time.Time              `json:"updatedAt"` // UTC

	// User is only populated when listing every Doc.
	User *UserSummary `json:"user,omitempty"`
}

// UserSummary is the part of the referenced user.User shown next to a Doc.
type UserSummary struct {
	ID     string    `json:"id"`
	Email  string    `json:"email,omitempty"`
	UserID string    `json:"userid,omitempty"`
	Name   string    `json:"name"`
	Role   user.Role `json:"role"`
}

func summarize(usr user.User) *UserSummary {
	return &UserSummary{ID: usr.ID, Email: usr.Email, UserID: usr.UserID, Name: usr.Name, Role: usr.Role}
}

// NewDoc contains information needed to create a new Doc.
type NewDoc struct {
	UserID       string                 `json:"userId" validate:"required,notblank"`
	StudentEmail string                 `json:"studentEmail" validate:"omitempty,email"`
	StudentName  string                 `json:"studentName"`
	Group        string                 `json:"group"`
	Status       Status                 `json:"status" validate:"omitempty,docstatus"`
	Documents    []Document             `json:"documents" validate:"dive"`
	Notes        string                 `json:"notes"`
	Metadata     map[string]interface{} `json:"metadata"`
}

func (nd *NewDoc) Validate(validate *validator.Validate) error {
	nd.UserID = core.CleanString(nd.UserID)
	nd.StudentEmail = core.CleanString(nd.StudentEmail, true /* lower */)
	nd.StudentName = core.CleanString(nd.StudentName)
	nd.Group = core.CleanString(nd.Group)
	return validate.Struct(nd)
}

// UpdateDoc defines what information may be provided to modify an existing Doc.
// nil fields are left untouched.
type UpdateDoc struct {
	StudentName *string                 `json:"studentName"`
	Group       *string                 `json:"group"`
	Status      *Status                 `json:"status" validate:"omitempty,docstatus"`
	Notes       *string                 `json:"notes"`
	Documents   *[]Document             `json:"documents"`
	Metadata    *map[string]interface{} `json:"metadata"`
}

func (ud *UpdateDoc) Validate(validate *validator.Validate) error { return validate.Struct(ud) }

type QueryFilter struct {
	UserID string
}
