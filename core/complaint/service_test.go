package complaint_test

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/trezcool/nyumbani/core/complaint"
	"github.com/trezcool/nyumbani/core/notification"
	"github.com/trezcool/nyumbani/core/room"
	"github.com/trezcool/nyumbani/core/user"
	dummydb "github.com/trezcool/nyumbani/storage/database/dummy"
)

type testEnv struct {
	svc      *complaint.Service
	notifSvc *notification.Service
	roomSvc  *room.Service
	usrRepo  user.Repository
}

func setup(t *testing.T) testEnv {
	t.Helper()

	db, err := dummydb.Open()
	require.NoError(t, err)

	notifSvc := notification.NewService(dummydb.NewNotificationRepository(db), nil)
	return testEnv{
		svc:      complaint.NewService(dummydb.NewComplaintRepository(db), notifSvc, nil),
		notifSvc: notifSvc,
		roomSvc:  room.NewService(dummydb.NewRoomRepository(db), nil, nil),
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

func file(t *testing.T, svc *complaint.Service, studentID, title, priority string) complaint.Complaint {
	t.Helper()

	c, err := svc.File(context.Background(), studentID, complaint.NewComplaint{
		Title:       title,
		Description: "something is broken",
		Priority:    priority,
	})
	require.NoError(t, err)
	return c
}

func TestService_File(t *testing.T) {
	env := setup(t)
	ctx := context.Background()

	student := createStudent(t, env.usrRepo, "Ben", "ben@test.cd")
	rm, err := env.roomSvc.Create(ctx, room.NewRoom{Number: "A-101", Type: room.TypeSingle, Capacity: 1})
	require.NoError(t, err)
	require.NoError(t, env.roomSvc.AssignDirect(ctx, student.ID, rm.ID))

	c := file(t, env.svc, student.ID, "Leaking tap", complaint.PriorityMedium)
	assert.Equal(t, complaint.StatusPending, c.Status)
	assert.Equal(t, "A-101", c.RoomNumber.String) // room snapshotted at filing time
	assert.False(t, c.AssignedTo.Valid)
	assert.False(t, c.ResolvedAt.Valid)

	// admins are notified
	nfs, err := env.notifSvc.VisibleTo(ctx, "admin-1", notification.GroupsFor(false, true))
	require.NoError(t, err)
	require.Len(t, nfs, 1)
	assert.Equal(t, "New complaint", nfs[0].Title)

	// a roomless student files without a room number
	homeless := createStudent(t, env.usrRepo, "Eli", "eli@test.cd")
	c = file(t, env.svc, homeless.ID, "Noisy hallway", complaint.PriorityLow)
	assert.False(t, c.RoomNumber.Valid)
}

func TestService_Assign(t *testing.T) {
	env := setup(t)
	ctx := context.Background()

	student := createStudent(t, env.usrRepo, "Ben", "ben@test.cd")
	c := file(t, env.svc, student.ID, "Leaking tap", complaint.PriorityMedium)

	c, err := env.svc.Assign(ctx, c.ID, "Mr. Fixit")
	require.NoError(t, err)
	assert.Equal(t, complaint.StatusInProgress, c.Status)
	assert.Equal(t, "Mr. Fixit", c.AssignedTo.String)

	// reassignment is allowed while unresolved
	c, err = env.svc.Assign(ctx, c.ID, "Ms. Patch")
	require.NoError(t, err)
	assert.Equal(t, "Ms. Patch", c.AssignedTo.String)

	_, err = env.svc.Assign(ctx, "nope", "Mr. Fixit")
	assert.Equal(t, complaint.ErrNotFound, err)
}

func TestService_SetPriority(t *testing.T) {
	env := setup(t)
	ctx := context.Background()

	student := createStudent(t, env.usrRepo, "Ben", "ben@test.cd")
	c := file(t, env.svc, student.ID, "Leaking tap", complaint.PriorityLow)

	c, err := env.svc.SetPriority(ctx, c.ID, complaint.PriorityHigh)
	require.NoError(t, err)
	assert.Equal(t, complaint.PriorityHigh, c.Priority)

	_, err = env.svc.SetPriority(ctx, c.ID, "urgent")
	assert.Error(t, err)
}

func TestService_Resolve(t *testing.T) {
	env := setup(t)
	ctx := context.Background()

	student := createStudent(t, env.usrRepo, "Ben", "ben@test.cd")
	c := file(t, env.svc, student.ID, "Leaking tap", complaint.PriorityMedium)

	c, err := env.svc.Resolve(ctx, c.ID, "Tap replaced.")
	require.NoError(t, err)
	assert.Equal(t, complaint.StatusResolved, c.Status)
	assert.Equal(t, "Tap replaced.", c.Response.String)
	assert.True(t, c.ResolvedAt.Valid)

	// resolved is terminal
	_, err = env.svc.Resolve(ctx, c.ID, "again")
	assert.Equal(t, complaint.ErrAlreadyResolved, err)
	_, err = env.svc.Assign(ctx, c.ID, "Mr. Fixit")
	assert.Equal(t, complaint.ErrAlreadyResolved, err)
	_, err = env.svc.SetPriority(ctx, c.ID, complaint.PriorityHigh)
	assert.Equal(t, complaint.ErrAlreadyResolved, err)

	// the response note stayed as first written
	got, err := env.svc.GetByID(ctx, c.ID)
	require.NoError(t, err)
	assert.Equal(t, "Tap replaced.", got.Response.String)

	// the student is notified of the resolution
	nfs, err := env.notifSvc.VisibleTo(ctx, student.ID, notification.GroupsFor(true, false))
	require.NoError(t, err)
	require.Len(t, nfs, 1)
	assert.Equal(t, "Complaint resolved", nfs[0].Title)
}

func TestService_Queue(t *testing.T) {
	env := setup(t)
	ctx := context.Background()

	student := createStudent(t, env.usrRepo, "Ben", "ben@test.cd")

	lowOld := file(t, env.svc, student.ID, "low old", complaint.PriorityLow)
	highOld := file(t, env.svc, student.ID, "high old", complaint.PriorityHigh)
	medium := file(t, env.svc, student.ID, "medium", complaint.PriorityMedium)
	highNew := file(t, env.svc, student.ID, "high new", complaint.PriorityHigh)

	queue, err := env.svc.Queue(ctx)
	require.NoError(t, err)
	require.Len(t, queue, 4)

	// priority first, newest first within a priority
	wantOrder := []string{highNew.ID, highOld.ID, medium.ID, lowOld.ID}
	for i, c := range queue {
		assert.Equal(t, wantOrder[i], c.ID, "queue[%d]", i)
	}

	// same input set, same order
	again, err := env.svc.Queue(ctx)
	require.NoError(t, err)
	assert.Equal(t, queue, again)
}

func TestSortQueue_unknownPriorityRanksLast(t *testing.T) {
	complaints := []complaint.Complaint{
		{ID: "1", Priority: "bogus"},
		{ID: "2", Priority: complaint.PriorityLow},
	}
	complaint.SortQueue(complaints)
	assert.Equal(t, "2", complaints[0].ID)
	assert.Equal(t, "1", complaints[1].ID)
}
