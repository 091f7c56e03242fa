package fee

import (
	"context"
	"fmt"
	"net/mail"
	"time"

	"github.com/pkg/errors"

	"github.com/trezcool/nyumbani/core"
	"github.com/trezcool/nyumbani/core/notification"
)

var (
	// errors
	ErrNotFound        = errors.New("fee not found")
	ErrStudentNotFound = errors.New("student not found")
	ErrAlreadyPaid     = errors.New("fee has already been paid")
)

type (
	Repository interface {
		CreateFee(ctx context.Context, f Fee) (Fee, error)
		GetFeeByID(ctx context.Context, id string) (Fee, error)
		QueryAllFees(ctx context.Context) ([]Fee, error)
		QueryFeesByStudent(ctx context.Context, studentID string) ([]Fee, error)
		// MarkFeePaid settles a pending fee in one atomic conditional write;
		// ErrAlreadyPaid is returned when the fee was already settled, leaving
		// amount and payment date untouched.
		MarkFeePaid(ctx context.Context, id string, paymentDate time.Time, details PaymentDetails) (Fee, error)

		GetStudent(ctx context.Context, studentID string) (StudentRef, error)
		// StudentsWithUnpaidFees returns each student owing at least one
		// non-paid fee, once.
		StudentsWithUnpaidFees(ctx context.Context) ([]StudentRef, error)
	}

	// Notifier publishes feed notifications, best-effort.
	Notifier interface {
		Publish(ctx context.Context, n notification.New) (notification.Notification, error)
	}

	Service struct {
		repo    Repository
		notif   Notifier
		mailSvc core.EmailService
		logger  core.Logger
	}
)

func NewService(repo Repository, notif Notifier, mailSvc core.EmailService, logger core.Logger) *Service {
	return &Service{repo: repo, notif: notif, mailSvc: mailSvc, logger: logger}
}

// Create charges a student a new fee and notifies them.
func (svc *Service) Create(ctx context.Context, nf NewFee) (Fee, error) {
	student, err := svc.repo.GetStudent(ctx, nf.StudentID)
	if err != nil {
		return Fee{}, err
	}

	now := time.Now().UTC()
	f := Fee{
		StudentID: student.ID,
		Amount:    nf.Amount,
		DueDate:   nf.DueDate.UTC(),
		Status:    StatusPending,
		CreatedAt: now,
		UpdatedAt: now,
	}
	if nf.Description != "" {
		f.Description.SetValid(nf.Description)
	}

	f, err = svc.repo.CreateFee(ctx, f)
	if err != nil {
		return Fee{}, err
	}

	svc.notify(ctx, notification.New{
		Title:   "New fee",
		Message: fmt.Sprintf("A fee of %d is due by %s.", f.Amount, f.DueDate.Format("02 Jan 2006")),
		Type:    notification.TypeInfo,
		Target:  f.StudentID,
	})
	return f, nil
}

func (svc *Service) GetByID(ctx context.Context, id string) (Fee, error) {
	return svc.repo.GetFeeByID(ctx, id)
}

func (svc *Service) QueryAll(ctx context.Context) ([]Fee, error) {
	return svc.repo.QueryAllFees(ctx)
}

func (svc *Service) QueryByStudent(ctx context.Context, studentID string) ([]Fee, error) {
	return svc.repo.QueryFeesByStudent(ctx, studentID)
}

// MarkPaid settles a fee. Paid is terminal: settling an already-paid fee fails
// with ErrAlreadyPaid and changes nothing.
func (svc *Service) MarkPaid(ctx context.Context, id string, details PaymentDetails) (Fee, error) {
	f, err := svc.repo.GetFeeByID(ctx, id)
	if err != nil {
		return Fee{}, err
	}
	if f.Status == StatusPaid {
		return Fee{}, ErrAlreadyPaid
	}

	f, err = svc.repo.MarkFeePaid(ctx, id, time.Now().UTC(), details)
	if err != nil {
		return Fee{}, err
	}

	svc.notify(ctx, notification.New{
		Title:   "Payment recorded",
		Message: fmt.Sprintf("Your payment of %d has been recorded.", f.Amount),
		Type:    notification.TypeSuccess,
		Target:  f.StudentID,
	})
	return f, nil
}

// TotalsByStatus sums fee amounts per display bucket for one student, or
// system-wide when studentID is empty.
func (svc *Service) TotalsByStatus(ctx context.Context, studentID string) (Totals, error) {
	var fees []Fee
	var err error
	if studentID == "" {
		fees, err = svc.repo.QueryAllFees(ctx)
	} else {
		fees, err = svc.repo.QueryFeesByStudent(ctx, studentID)
	}
	if err != nil {
		return Totals{}, err
	}
	return sumTotals(fees, time.Now().UTC()), nil
}

// sumTotals buckets each fee exactly once; overdue is carved out of pending.
func sumTotals(fees []Fee, now time.Time) Totals {
	var t Totals
	for _, f := range fees {
		switch {
		case f.Status == StatusPaid:
			t.Paid += f.Amount
		case ComputeOverdue(f, now):
			t.Overdue += f.Amount
		default:
			t.Pending += f.Amount
		}
	}
	return t
}

// SendReminder nudges one student about their dues. Fees are not mutated.
func (svc *Service) SendReminder(ctx context.Context, studentID, message string) error {
	student, err := svc.repo.GetStudent(ctx, studentID)
	if err != nil {
		return err
	}
	svc.remind(ctx, student, message)
	return nil
}

// SendMassReminder nudges every student owing a non-paid fee.
func (svc *Service) SendMassReminder(ctx context.Context, message string) (int, error) {
	students, err := svc.repo.StudentsWithUnpaidFees(ctx)
	if err != nil {
		return 0, err
	}
	for _, student := range students {
		svc.remind(ctx, student, message)
	}
	return len(students), nil
}

func (svc *Service) remind(ctx context.Context, student StudentRef, message string) {
	if message == "" {
		message = "You have pending hostel fees. Kindly settle them before the due date."
	}
	svc.notify(ctx, notification.New{
		Title:   "Fee reminder",
		Message: message,
		Type:    notification.TypeWarning,
		Target:  student.ID,
	})
	if svc.mailSvc != nil {
		svc.mailSvc.SendMessages(&core.EmailMessage{
			To:      []mail.Address{{Name: student.Name, Address: student.Email}},
			Subject: "Fee reminder",
			BodyStr: message,
		})
	}
}

// notify publishes best-effort: failures are logged and swallowed.
func (svc *Service) notify(ctx context.Context, n notification.New) {
	if svc.notif == nil {
		return
	}
	if _, err := svc.notif.Publish(ctx, n); err != nil && svc.logger != nil {
		svc.logger.Warn("fee: notification not delivered", err)
	}
}
