package dummydb

import (
	"context"
	"sort"

	"github.com/google/uuid"

	"github.com/trezcool/nyumbani/core/notification"
)

type notificationRepository struct {
	db *notificationTable
}

type watcher struct {
	userID string
	groups []string
	ch     chan notification.Notification
	done   <-chan struct{}
}

var (
	_ notification.Repository = (*notificationRepository)(nil) // interface compliance check
	_ notification.Watcher    = (*notificationRepository)(nil)
)

func NewNotificationRepository(db *DB) notification.Repository {
	return &notificationRepository{db: db.notification}
}

func (repo *notificationRepository) CreateNotification(ctx context.Context, nf notification.Notification) (notification.Notification, error) {
	repo.db.Lock()
	nf.ID = uuid.New().String()
	repo.db.table[nf.ID] = &nf
	watchers := append([]*watcher(nil), repo.db.watchers...)
	repo.db.Unlock()

	for _, w := range watchers {
		if !visibleTo(nf, w.userID, w.groups) {
			continue
		}
		select {
		case w.ch <- nf:
		case <-w.done:
		default: // slow consumer; drop rather than block the write path
		}
	}
	return nf, nil
}

func (repo *notificationRepository) GetNotificationByID(ctx context.Context, id string) (notification.Notification, error) {
	repo.db.RLock()
	defer repo.db.RUnlock()

	if nf, ok := repo.db.table[id]; ok {
		return *nf, nil
	}
	return notification.Notification{}, notification.ErrNotFound
}

func (repo *notificationRepository) QueryVisibleTo(ctx context.Context, userID string, groups []string) ([]notification.Notification, error) {
	repo.db.RLock()
	defer repo.db.RUnlock()

	matched := make([]notification.Notification, 0)
	for _, nf := range repo.db.table {
		if visibleTo(*nf, userID, groups) {
			matched = append(matched, *nf)
		}
	}
	sort.Slice(matched, func(i, j int) bool { return matched[i].CreatedAt.After(matched[j].CreatedAt) })
	return matched, nil
}

func (repo *notificationRepository) MarkNotificationRead(ctx context.Context, id string) error {
	repo.db.Lock()
	defer repo.db.Unlock()

	nf, ok := repo.db.table[id]
	if !ok {
		return notification.ErrNotFound
	}
	nf.Read = true // already-read is a no-op
	return nil
}

func (repo *notificationRepository) UnreadIDsFor(ctx context.Context, userID string, groups []string) ([]string, error) {
	repo.db.RLock()
	defer repo.db.RUnlock()

	ids := make([]string, 0)
	for _, nf := range repo.db.table {
		if !nf.Read && visibleTo(*nf, userID, groups) {
			ids = append(ids, nf.ID)
		}
	}
	sort.Strings(ids)
	return ids, nil
}

func (repo *notificationRepository) WatchNotifications(ctx context.Context, userID string, groups []string) (<-chan notification.Notification, error) {
	w := &watcher{
		userID: userID,
		groups: groups,
		ch:     make(chan notification.Notification, 16),
		done:   ctx.Done(),
	}

	repo.db.Lock()
	repo.db.watchers = append(repo.db.watchers, w)
	repo.db.Unlock()

	go func() {
		<-ctx.Done()
		repo.db.Lock()
		for i, curr := range repo.db.watchers {
			if curr == w {
				repo.db.watchers = append(repo.db.watchers[:i], repo.db.watchers[i+1:]...)
				break
			}
		}
		repo.db.Unlock()
		close(w.ch)
	}()

	return w.ch, nil
}

func visibleTo(nf notification.Notification, userID string, groups []string) bool {
	if nf.Target == userID {
		return true
	}
	for _, g := range groups {
		if nf.Target == g {
			return true
		}
	}
	return false
}
