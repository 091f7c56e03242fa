package fee_test

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/trezcool/nyumbani/core"
	"github.com/trezcool/nyumbani/core/fee"
	"github.com/trezcool/nyumbani/core/notification"
	"github.com/trezcool/nyumbani/core/user"
	emailsvc "github.com/trezcool/nyumbani/services/email"
	dummydb "github.com/trezcool/nyumbani/storage/database/dummy"
)

type testEnv struct {
	svc      *fee.Service
	notifSvc *notification.Service
	usrRepo  user.Repository
}

func setup(t *testing.T) testEnv {
	t.Helper()

	db, err := dummydb.Open()
	require.NoError(t, err)

	emailsvc.SentMessages = emailsvc.SentMessages[:0]
	notifSvc := notification.NewService(dummydb.NewNotificationRepository(db), nil)
	mailSvc := emailsvc.NewConsoleServiceMock(core.NewConfig())
	return testEnv{
		svc:      fee.NewService(dummydb.NewFeeRepository(db), notifSvc, mailSvc, nil),
		notifSvc: notifSvc,
		usrRepo:  dummydb.NewUserRepository(db),
	}
}

func createStudent(t *testing.T, repo user.Repository, name, email string) user.User {
	t.Helper()

	now := time.Now().UTC()
	usr, err := repo.CreateUser(context.Background(), user.User{
		Name:      name,
		Email:     email,
		Roles:     user.StudentRoles,
		IsActive:  true,
		CreatedAt: now,
		UpdatedAt: now,
	})
	require.NoError(t, err)
	return usr
}

func charge(t *testing.T, svc *fee.Service, studentID string, amount int64, due time.Time) fee.Fee {
	t.Helper()

	f, err := svc.Create(context.Background(), fee.NewFee{StudentID: studentID, Amount: amount, DueDate: due})
	require.NoError(t, err)
	return f
}

func TestComputeOverdue(t *testing.T) {
	now := time.Date(2021, 3, 15, 12, 0, 0, 0, time.UTC)

	tests := []struct {
		name string
		f    fee.Fee
		want bool
	}{
		{name: "pending, due in the future", f: fee.Fee{Status: fee.StatusPending, DueDate: now.Add(time.Hour)}, want: false},
		{name: "pending, past due", f: fee.Fee{Status: fee.StatusPending, DueDate: now.Add(-time.Hour)}, want: true},
		{name: "pending, due right now", f: fee.Fee{Status: fee.StatusPending, DueDate: now}, want: false},
		{name: "paid, past due", f: fee.Fee{Status: fee.StatusPaid, DueDate: now.Add(-time.Hour)}, want: false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, fee.ComputeOverdue(tt.f, now))
			wantStatus := tt.f.Status
			if tt.want {
				wantStatus = fee.StatusOverdue
			}
			assert.Equal(t, wantStatus, fee.DisplayStatus(tt.f, now))
		})
	}
}

func TestService_Create(t *testing.T) {
	env := setup(t)
	ctx := context.Background()

	student := createStudent(t, env.usrRepo, "Ben", "ben@test.cd")
	due := time.Now().UTC().Add(30 * 24 * time.Hour)

	f := charge(t, env.svc, student.ID, 50000, due)
	assert.Equal(t, fee.StatusPending, f.Status)
	assert.False(t, f.PaymentDate.Valid)

	// the student is notified of the charge
	nfs, err := env.notifSvc.VisibleTo(ctx, student.ID, notification.GroupsFor(true, false))
	require.NoError(t, err)
	require.Len(t, nfs, 1)
	assert.Equal(t, "New fee", nfs[0].Title)

	// unknown student
	_, err = env.svc.Create(ctx, fee.NewFee{StudentID: "nope", Amount: 100, DueDate: due})
	assert.Equal(t, fee.ErrStudentNotFound, err)
}

func TestService_MarkPaid(t *testing.T) {
	env := setup(t)
	ctx := context.Background()

	student := createStudent(t, env.usrRepo, "Ben", "ben@test.cd")
	f := charge(t, env.svc, student.ID, 50000, time.Now().UTC().Add(time.Hour))

	paid, err := env.svc.MarkPaid(ctx, f.ID, fee.PaymentDetails{Method: "mpesa", Ref: "TX-1"})
	require.NoError(t, err)
	assert.Equal(t, fee.StatusPaid, paid.Status)
	assert.True(t, paid.PaymentDate.Valid)
	assert.Equal(t, "mpesa", paid.PaymentMethod.String)
	assert.Equal(t, "TX-1", paid.PaymentRef.String)
	assert.Equal(t, f.Amount, paid.Amount)

	// paid is terminal: settling again fails and changes nothing
	_, err = env.svc.MarkPaid(ctx, f.ID, fee.PaymentDetails{Method: "cash"})
	assert.Equal(t, fee.ErrAlreadyPaid, err)

	got, err := env.svc.GetByID(ctx, f.ID)
	require.NoError(t, err)
	assert.Equal(t, "mpesa", got.PaymentMethod.String)
	assert.Equal(t, paid.PaymentDate, got.PaymentDate)

	_, err = env.svc.MarkPaid(ctx, "nope", fee.PaymentDetails{})
	assert.Equal(t, fee.ErrNotFound, err)
}

func TestService_TotalsByStatus(t *testing.T) {
	env := setup(t)
	ctx := context.Background()

	ben := createStudent(t, env.usrRepo, "Ben", "ben@test.cd")
	eli := createStudent(t, env.usrRepo, "Eli", "eli@test.cd")
	now := time.Now().UTC()

	paid := charge(t, env.svc, ben.ID, 100, now.Add(time.Hour))
	_, err := env.svc.MarkPaid(ctx, paid.ID, fee.PaymentDetails{})
	require.NoError(t, err)
	charge(t, env.svc, ben.ID, 200, now.Add(time.Hour))  // pending
	charge(t, env.svc, ben.ID, 400, now.Add(-time.Hour)) // overdue
	charge(t, env.svc, eli.ID, 800, now.Add(time.Hour))  // pending, other student

	// each fee lands in exactly one bucket
	totals, err := env.svc.TotalsByStatus(ctx, ben.ID)
	require.NoError(t, err)
	assert.Equal(t, fee.Totals{Paid: 100, Pending: 200, Overdue: 400}, totals)

	// system-wide
	totals, err = env.svc.TotalsByStatus(ctx, "")
	require.NoError(t, err)
	assert.Equal(t, fee.Totals{Paid: 100, Pending: 1000, Overdue: 400}, totals)
}

func TestService_SendReminder(t *testing.T) {
	env := setup(t)
	ctx := context.Background()

	student := createStudent(t, env.usrRepo, "Ben", "ben@test.cd")
	f := charge(t, env.svc, student.ID, 50000, time.Now().UTC().Add(-time.Hour))

	require.NoError(t, env.svc.SendReminder(ctx, student.ID, "Pay up."))

	// reminders never mutate the fee
	got, err := env.svc.GetByID(ctx, f.ID)
	require.NoError(t, err)
	assert.Equal(t, fee.StatusPending, got.Status)

	nfs, err := env.notifSvc.VisibleTo(ctx, student.ID, notification.GroupsFor(true, false))
	require.NoError(t, err)
	require.Len(t, nfs, 2) // charge + reminder
	var reminder notification.Notification
	for _, nf := range nfs {
		if nf.Title == "Fee reminder" {
			reminder = nf
		}
	}
	assert.Equal(t, "Pay up.", reminder.Message)

	require.Len(t, emailsvc.SentMessages, 1)
	assert.Equal(t, student.Email, emailsvc.SentMessages[0].To[0].Address)

	assert.Equal(t, fee.ErrStudentNotFound, env.svc.SendReminder(ctx, "nope", ""))
}

func TestService_SendMassReminder(t *testing.T) {
	env := setup(t)
	ctx := context.Background()

	now := time.Now().UTC()
	ben := createStudent(t, env.usrRepo, "Ben", "ben@test.cd")
	eli := createStudent(t, env.usrRepo, "Eli", "eli@test.cd")
	ada := createStudent(t, env.usrRepo, "Ada", "ada@test.cd")

	charge(t, env.svc, ben.ID, 100, now.Add(time.Hour))
	charge(t, env.svc, ben.ID, 200, now.Add(-time.Hour)) // owing twice, reminded once
	charge(t, env.svc, eli.ID, 400, now.Add(time.Hour))
	settled := charge(t, env.svc, ada.ID, 800, now.Add(time.Hour))
	_, err := env.svc.MarkPaid(ctx, settled.ID, fee.PaymentDetails{})
	require.NoError(t, err)

	reminded, err := env.svc.SendMassReminder(ctx, "")
	require.NoError(t, err)
	assert.Equal(t, 2, reminded)
	assert.Len(t, emailsvc.SentMessages, 2)

	// students fully settled get no nudge
	nfs, err := env.notifSvc.VisibleTo(ctx, ada.ID, notification.GroupsFor(true, false))
	require.NoError(t, err)
	for _, nf := range nfs {
		assert.NotEqual(t, "Fee reminder", nf.Title)
	}
}
