package notification

import (
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/volatiletech/null/v8"

	"github.com/trezcool/nyumbani/core"
)

// Types
const (
	TypeInfo    = "info"
	TypeWarning = "warning"
	TypeSuccess = "success"
	TypeError   = "error"
)

// Audience targets. A target is either one of these group names or a specific user ID.
const (
	TargetStudents = "student"
	TargetAdmins   = "admin"
	TargetAll      = "all"
)

// Notification is an append-only feed entry addressed to a user or an audience group.
// Read defaults to false and only ever flips false -> true.
type Notification struct {
	ID        string      `json:"id"`
	Title     string      `json:"title"`
	Message   string      `json:"message"`
	Type      string      `json:"type"`
	Target    string      `json:"target"`
	Read      bool        `json:"read"`
	Sender    null.String `json:"sender"`
	CreatedAt time.Time   `json:"created_at"` // UTC
}

// New is the binding for publishing a notification.
type New struct {
	Title   string `json:"title" validate:"required"`
	Message string `json:"message" validate:"required"`
	Type    string `json:"type" validate:"required,oneof=info warning success error"`
	Target  string `json:"target" validate:"required"`
	Sender  string `json:"sender"`
}

func (n *New) Validate(validate *validator.Validate) error {
	n.Title = core.CleanString(n.Title)
	n.Message = core.CleanString(n.Message)
	return validate.Struct(n)
}

// GroupsFor returns the audience groups a user belongs to, including "all".
func GroupsFor(isStudent, isAdmin bool) []string {
	groups := make([]string, 0, 3)
	if isStudent {
		groups = append(groups, TargetStudents)
	}
	if isAdmin {
		groups = append(groups, TargetAdmins)
	}
	return append(groups, TargetAll)
}
