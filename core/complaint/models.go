package complaint

import (
	"sort"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/volatiletech/null/v8"

	"github.com/trezcool/nyumbani/core"
)

// Priorities
const (
	PriorityHigh   = "high"
	PriorityMedium = "medium"
	PriorityLow    = "low"
)

// Statuses. Resolved is terminal: nothing moves a complaint back out of it.
const (
	StatusPending    = "pending"
	StatusInProgress = "in-progress"
	StatusResolved   = "resolved"
)

// priorityRanks is a data-model contract other components may rely on for
// sorting: high ranks before medium ranks before low.
var priorityRanks = map[string]int{
	PriorityHigh:   0,
	PriorityMedium: 1,
	PriorityLow:    2,
}

// PriorityRank returns the ordinal rank of a priority (high=0, medium=1, low=2).
// Unknown priorities rank last.
func PriorityRank(priority string) int {
	if rank, ok := priorityRanks[priority]; ok {
		return rank
	}
	return len(priorityRanks)
}

// Complaint is a student-reported issue. RoomNumber is a denormalized snapshot
// of the student's room at filing time. ResolvedAt is set iff status is resolved.
type Complaint struct {
	ID          string      `json:"id"`
	StudentID   string      `json:"student_id"`
	RoomNumber  null.String `json:"room_number"`
	Title       string      `json:"title"`
	Description string      `json:"description"`
	Priority    string      `json:"priority"`
	Status      string      `json:"status"`
	AssignedTo  null.String `json:"assigned_to"`
	Response    null.String `json:"response"`
	CreatedAt   time.Time   `json:"created_at"` // UTC
	UpdatedAt   time.Time   `json:"updated_at"` // UTC
	ResolvedAt  null.Time   `json:"resolved_at"`
}

// SortQueue orders complaints for the administrative queue: priority first
// (high before low), newest first within a priority. Deterministic for a fixed
// input set.
func SortQueue(complaints []Complaint) {
	sort.SliceStable(complaints, func(i, j int) bool {
		ri, rj := PriorityRank(complaints[i].Priority), PriorityRank(complaints[j].Priority)
		if ri != rj {
			return ri < rj
		}
		return complaints[i].CreatedAt.After(complaints[j].CreatedAt)
	})
}

// Bindings

type NewComplaint struct {
	Title       string `json:"title" validate:"required"`
	Description string `json:"description" validate:"required"`
	Priority    string `json:"priority" validate:"required,oneof=low medium high"`
}

func (nc *NewComplaint) Validate(validate *validator.Validate) error {
	nc.Title = core.CleanString(nc.Title)
	nc.Description = core.CleanString(nc.Description)
	return validate.Struct(nc)
}
