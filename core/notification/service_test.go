package notification_test

import (
	"context"
	"testing"
	"time"

	"github.com/pkg/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/trezcool/nyumbani/core/notification"
	dummydb "github.com/trezcool/nyumbani/storage/database/dummy"
)

func setup(t *testing.T) (*notification.Service, notification.Repository) {
	t.Helper()

	db, err := dummydb.Open()
	require.NoError(t, err)
	repo := dummydb.NewNotificationRepository(db)
	return notification.NewService(repo, nil), repo
}

func publish(t *testing.T, svc *notification.Service, title, target string) notification.Notification {
	t.Helper()

	nf, err := svc.Publish(context.Background(), notification.New{
		Title:   title,
		Message: "hello",
		Type:    notification.TypeInfo,
		Target:  target,
	})
	require.NoError(t, err)
	return nf
}

func titles(nfs []notification.Notification) []string {
	out := make([]string, 0, len(nfs))
	for _, nf := range nfs {
		out = append(out, nf.Title)
	}
	return out
}

func TestService_VisibleTo(t *testing.T) {
	svc, _ := setup(t)
	ctx := context.Background()

	publish(t, svc, "direct", "student-1")
	publish(t, svc, "students", notification.TargetStudents)
	publish(t, svc, "admins", notification.TargetAdmins)
	publish(t, svc, "everyone", notification.TargetAll)
	publish(t, svc, "someone else", "student-2")

	studentFeed, err := svc.VisibleTo(ctx, "student-1", notification.GroupsFor(true, false))
	require.NoError(t, err)
	assert.ElementsMatch(t, []string{"direct", "students", "everyone"}, titles(studentFeed))

	adminFeed, err := svc.VisibleTo(ctx, "admin-1", notification.GroupsFor(false, true))
	require.NoError(t, err)
	assert.ElementsMatch(t, []string{"admins", "everyone"}, titles(adminFeed))
}

func TestService_VisibleTo_newestFirst(t *testing.T) {
	svc, repo := setup(t)
	ctx := context.Background()

	now := time.Now().UTC()
	for i, title := range []string{"oldest", "middle", "newest"} {
		_, err := repo.CreateNotification(ctx, notification.Notification{
			Title:     title,
			Message:   "hello",
			Type:      notification.TypeInfo,
			Target:    notification.TargetAll,
			CreatedAt: now.Add(time.Duration(i) * time.Minute),
		})
		require.NoError(t, err)
	}

	feed, err := svc.VisibleTo(ctx, "student-1", notification.GroupsFor(true, false))
	require.NoError(t, err)
	assert.Equal(t, []string{"newest", "middle", "oldest"}, titles(feed))
}

func TestService_MarkRead(t *testing.T) {
	svc, _ := setup(t)
	ctx := context.Background()

	nf := publish(t, svc, "direct", "student-1")
	assert.False(t, nf.Read)

	require.NoError(t, svc.MarkRead(ctx, nf.ID))

	got, err := svc.GetByID(ctx, nf.ID)
	require.NoError(t, err)
	assert.True(t, got.Read)

	// idempotent: marking again succeeds and nothing flips back
	require.NoError(t, svc.MarkRead(ctx, nf.ID))
	got, err = svc.GetByID(ctx, nf.ID)
	require.NoError(t, err)
	assert.True(t, got.Read)

	assert.Equal(t, notification.ErrNotFound, svc.MarkRead(ctx, "nope"))
}

func TestService_MarkAllRead(t *testing.T) {
	svc, _ := setup(t)
	ctx := context.Background()
	groups := notification.GroupsFor(true, false)

	publish(t, svc, "direct", "student-1")
	publish(t, svc, "students", notification.TargetStudents)
	publish(t, svc, "someone else", "student-2")

	require.NoError(t, svc.MarkAllRead(ctx, "student-1", groups))

	feed, err := svc.VisibleTo(ctx, "student-1", groups)
	require.NoError(t, err)
	require.Len(t, feed, 2)
	for _, nf := range feed {
		assert.True(t, nf.Read, "%s should be read", nf.Title)
	}

	// other users' notifications are untouched
	otherFeed, err := svc.VisibleTo(ctx, "student-2", groups)
	require.NoError(t, err)
	require.Len(t, otherFeed, 2) // direct + group
	for _, nf := range otherFeed {
		if nf.Title == "someone else" {
			assert.False(t, nf.Read)
		}
	}
}

// flakyRepo fails MarkNotificationRead once for a chosen notification.
type flakyRepo struct {
	notification.Repository
	failID string
	failed bool
}

func (repo *flakyRepo) MarkNotificationRead(ctx context.Context, id string) error {
	if id == repo.failID && !repo.failed {
		repo.failed = true
		return errors.New("store unavailable")
	}
	return repo.Repository.MarkNotificationRead(ctx, id)
}

// A partial MarkAllRead failure reports an error but keeps going; retrying
// converges since MarkRead is idempotent.
func TestService_MarkAllRead_partialFailure(t *testing.T) {
	db, err := dummydb.Open()
	require.NoError(t, err)
	repo := &flakyRepo{Repository: dummydb.NewNotificationRepository(db)}
	svc := notification.NewService(repo, nil)
	ctx := context.Background()
	groups := notification.GroupsFor(true, false)

	first := publish(t, svc, "first", "student-1")
	second := publish(t, svc, "second", "student-1")
	repo.failID = first.ID

	err = svc.MarkAllRead(ctx, "student-1", groups)
	require.Error(t, err)

	// the survivor was still marked
	got, err := svc.GetByID(ctx, second.ID)
	require.NoError(t, err)
	assert.True(t, got.Read)

	// retry converges
	require.NoError(t, svc.MarkAllRead(ctx, "student-1", groups))
	got, err = svc.GetByID(ctx, first.ID)
	require.NoError(t, err)
	assert.True(t, got.Read)
}

func TestService_Watch(t *testing.T) {
	svc, _ := setup(t)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	feed, err := svc.Watch(ctx, "student-1", notification.GroupsFor(true, false))
	require.NoError(t, err)

	publish(t, svc, "for the watcher", "student-1")
	publish(t, svc, "not for the watcher", "student-2")
	publish(t, svc, "for everyone", notification.TargetAll)

	var got []string
	timeout := time.After(2 * time.Second)
	for len(got) < 2 {
		select {
		case nf := <-feed:
			got = append(got, nf.Title)
		case <-timeout:
			t.Fatalf("timed out waiting for notifications; got %v", got)
		}
	}
	assert.Equal(t, []string{"for the watcher", "for everyone"}, got)

	// the feed closes once the watcher goes away
	cancel()
	select {
	case _, open := <-feed:
		assert.False(t, open)
	case <-time.After(2 * time.Second):
		t.Fatal("feed not closed after cancel")
	}
}

type plainRepo struct{ notification.Repository }

func TestService_Watch_unsupportedStore(t *testing.T) {
	db, err := dummydb.Open()
	require.NoError(t, err)
	svc := notification.NewService(&plainRepo{dummydb.NewNotificationRepository(db)}, nil)

	_, err = svc.Watch(context.Background(), "student-1", nil)
	assert.Error(t, err)
}
