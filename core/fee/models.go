package fee

import (
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/volatiletech/null/v8"

	"github.com/trezcool/nyumbani/core"
)

// Stored fee statuses. Overdue is never stored: it is a display bucket derived
// from a pending fee whose due date has passed (see ComputeOverdue).
const (
	StatusPending = "pending"
	StatusPaid    = "paid"

	// display only
	StatusOverdue = "overdue"
)

// Fee is a charge against a student. Once paid, the fee is terminal:
// amount and due date no longer change.
type Fee struct {
	ID            string      `json:"id"`
	StudentID     string      `json:"student_id"`
	Description   null.String `json:"description"`
	Amount        int64       `json:"amount"` // minor currency units
	DueDate       time.Time   `json:"due_date"`
	Status        string      `json:"status"`
	PaymentDate   null.Time   `json:"payment_date"`
	PaymentMethod null.String `json:"payment_method"`
	PaymentRef    null.String `json:"payment_ref"`
	CreatedAt     time.Time   `json:"created_at"` // UTC
	UpdatedAt     time.Time   `json:"updated_at"` // UTC
}

// ComputeOverdue reports whether a fee should be displayed as overdue.
// Pure classification: it never mutates the stored status.
func ComputeOverdue(f Fee, now time.Time) bool {
	return f.Status == StatusPending && now.After(f.DueDate)
}

// DisplayStatus returns the status to render: pending fees past their due date
// show as overdue.
func DisplayStatus(f Fee, now time.Time) string {
	if ComputeOverdue(f, now) {
		return StatusOverdue
	}
	return f.Status
}

// Totals aggregates fee amounts per display bucket. Overdue is carved out of
// pending (a fee is counted in exactly one bucket) so the buckets never double
// count against the stored status.
type Totals struct {
	Paid    int64 `json:"paid"`
	Pending int64 `json:"pending"`
	Overdue int64 `json:"overdue"`
}

// StudentRef is the slice of a student record the ledger needs for reminders.
type StudentRef struct {
	ID    string
	Name  string
	Email string
}

// Bindings

type NewFee struct {
	StudentID   string    `json:"student_id" validate:"required"`
	Description string    `json:"description"`
	Amount      int64     `json:"amount" validate:"required,gt=0"`
	DueDate     time.Time `json:"due_date" validate:"required"`
}

func (nf *NewFee) Validate(validate *validator.Validate) error {
	nf.Description = core.CleanString(nf.Description)
	return validate.Struct(nf)
}

// PaymentDetails optionally records how a fee got settled.
type PaymentDetails struct {
	Method string `json:"method"`
	Ref    string `json:"ref"`
}
