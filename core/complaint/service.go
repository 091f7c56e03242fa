package complaint

import (
	"context"
	"fmt"
	"time"

	"github.com/pkg/errors"
	"github.com/volatiletech/null/v8"

	"github.com/trezcool/nyumbani/core"
	"github.com/trezcool/nyumbani/core/notification"
)

var (
	// errors
	ErrNotFound        = errors.New("complaint not found")
	ErrAlreadyResolved = errors.New("complaint has already been resolved")
)

type (
	Repository interface {
		CreateComplaint(ctx context.Context, c Complaint) (Complaint, error)
		GetComplaintByID(ctx context.Context, id string) (Complaint, error)
		QueryAllComplaints(ctx context.Context) ([]Complaint, error)
		QueryComplaintsByStudent(ctx context.Context, studentID string) ([]Complaint, error)
		// The three mutators below are atomic conditional writes guarded on
		// status != resolved; they return ErrAlreadyResolved when the guard fails.
		AssignComplaint(ctx context.Context, id, assignee string, at time.Time) (Complaint, error)
		SetComplaintPriority(ctx context.Context, id, priority string, at time.Time) (Complaint, error)
		ResolveComplaint(ctx context.Context, id string, response null.String, at time.Time) (Complaint, error)

		// GetStudentRoomNumber snapshots the room number a student currently
		// occupies; empty when roomless.
		GetStudentRoomNumber(ctx context.Context, studentID string) (string, error)
	}

	// Notifier publishes feed notifications, best-effort.
	Notifier interface {
		Publish(ctx context.Context, n notification.New) (notification.Notification, error)
	}

	Service struct {
		repo   Repository
		notif  Notifier
		logger core.Logger
	}
)

func NewService(repo Repository, notif Notifier, logger core.Logger) *Service {
	return &Service{repo: repo, notif: notif, logger: logger}
}

// File opens a complaint on behalf of a student; it starts out pending, with
// the student's current room number snapshotted onto it.
func (svc *Service) File(ctx context.Context, studentID string, nc NewComplaint) (Complaint, error) {
	now := time.Now().UTC()
	c := Complaint{
		StudentID:   studentID,
		Title:       nc.Title,
		Description: nc.Description,
		Priority:    nc.Priority,
		Status:      StatusPending,
		CreatedAt:   now,
		UpdatedAt:   now,
	}
	if number, err := svc.repo.GetStudentRoomNumber(ctx, studentID); err == nil && number != "" {
		c.RoomNumber.SetValid(number)
	}

	c, err := svc.repo.CreateComplaint(ctx, c)
	if err != nil {
		return Complaint{}, err
	}

	svc.notify(ctx, notification.New{
		Title:   "New complaint",
		Message: fmt.Sprintf("A %s priority complaint was filed: %s", c.Priority, c.Title),
		Type:    notification.TypeWarning,
		Target:  notification.TargetAdmins,
	})
	return c, nil
}

func (svc *Service) GetByID(ctx context.Context, id string) (Complaint, error) {
	return svc.repo.GetComplaintByID(ctx, id)
}

// Queue returns all complaints ordered for the admin screen: priority first,
// newest first within a priority.
func (svc *Service) Queue(ctx context.Context) ([]Complaint, error) {
	complaints, err := svc.repo.QueryAllComplaints(ctx)
	if err != nil {
		return nil, err
	}
	SortQueue(complaints)
	return complaints, nil
}

func (svc *Service) QueryByStudent(ctx context.Context, studentID string) ([]Complaint, error) {
	return svc.repo.QueryComplaintsByStudent(ctx, studentID)
}

// Assign hands a complaint to a staff member and moves it to in-progress.
// Resolved complaints cannot be assigned.
func (svc *Service) Assign(ctx context.Context, id, assignee string) (Complaint, error) {
	c, err := svc.repo.AssignComplaint(ctx, id, assignee, time.Now().UTC())
	if err != nil {
		return Complaint{}, err
	}

	svc.notify(ctx, notification.New{
		Title:   "Complaint update",
		Message: fmt.Sprintf("Your complaint %q has been assigned to %s.", c.Title, assignee),
		Type:    notification.TypeInfo,
		Target:  c.StudentID,
	})
	return c, nil
}

// SetPriority re-prioritizes a complaint; allowed in any non-resolved state.
func (svc *Service) SetPriority(ctx context.Context, id, priority string) (Complaint, error) {
	if PriorityRank(priority) >= len(priorityRanks) {
		return Complaint{}, core.NewValidationError(
			errors.New("invalid priority"),
			core.FieldError{Field: "priority", Error: "must be one of low, medium, high"},
		)
	}
	return svc.repo.SetComplaintPriority(ctx, id, priority, time.Now().UTC())
}

// Resolve closes a complaint; terminal, so resolving twice fails with
// ErrAlreadyResolved.
func (svc *Service) Resolve(ctx context.Context, id, responseNote string) (Complaint, error) {
	var response null.String
	if responseNote != "" {
		response.SetValid(responseNote)
	}
	c, err := svc.repo.ResolveComplaint(ctx, id, response, time.Now().UTC())
	if err != nil {
		return Complaint{}, err
	}

	svc.notify(ctx, notification.New{
		Title:   "Complaint resolved",
		Message: fmt.Sprintf("Your complaint %q has been resolved.", c.Title),
		Type:    notification.TypeSuccess,
		Target:  c.StudentID,
	})
	return c, nil
}

// notify publishes best-effort: failures are logged and swallowed.
func (svc *Service) notify(ctx context.Context, n notification.New) {
	if svc.notif == nil {
		return
	}
	if _, err := svc.notif.Publish(ctx, n); err != nil && svc.logger != nil {
		svc.logger.Warn("complaint: notification not delivered", err)
	}
}
