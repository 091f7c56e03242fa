package notification

import (
	"context"
	"time"

	"github.com/pkg/errors"

	"github.com/trezcool/nyumbani/core"
)

var (
	// errors
	ErrNotFound = errors.New("notification not found")
)

type (
	Repository interface {
		CreateNotification(ctx context.Context, nf Notification) (Notification, error)
		GetNotificationByID(ctx context.Context, id string) (Notification, error)
		// QueryVisibleTo returns notifications whose target is the user's ID,
		// one of the user's audience groups or "all"; newest first.
		QueryVisibleTo(ctx context.Context, userID string, groups []string) ([]Notification, error)
		// MarkNotificationRead flips read to true; flipping an already-read
		// notification is a no-op, not an error.
		MarkNotificationRead(ctx context.Context, id string) error
		UnreadIDsFor(ctx context.Context, userID string, groups []string) ([]string, error)
	}

	// Watcher is an optional live-feed extension of Repository.
	Watcher interface {
		// WatchNotifications streams notifications visible to the user as they are
		// published, until ctx is done.
		WatchNotifications(ctx context.Context, userID string, groups []string) (<-chan Notification, error)
	}

	Service struct {
		repo   Repository
		logger core.Logger
	}
)

func NewService(repo Repository, logger core.Logger) *Service {
	return &Service{repo: repo, logger: logger}
}

// Publish appends a notification to the feed.
func (svc *Service) Publish(ctx context.Context, n New) (Notification, error) {
	nf := Notification{
		Title:     n.Title,
		Message:   n.Message,
		Type:      n.Type,
		Target:    n.Target,
		CreatedAt: time.Now().UTC(),
	}
	if n.Sender != "" {
		nf.Sender.SetValid(n.Sender)
	}
	return svc.repo.CreateNotification(ctx, nf)
}

func (svc *Service) GetByID(ctx context.Context, id string) (Notification, error) {
	return svc.repo.GetNotificationByID(ctx, id)
}

// VisibleTo returns the user's notification feed, newest first.
func (svc *Service) VisibleTo(ctx context.Context, userID string, groups []string) ([]Notification, error) {
	return svc.repo.QueryVisibleTo(ctx, userID, groups)
}

// MarkRead is idempotent: marking an already-read notification succeeds.
func (svc *Service) MarkRead(ctx context.Context, id string) error {
	return svc.repo.MarkNotificationRead(ctx, id)
}

// MarkAllRead marks every currently-unread notification addressed to the user.
// The batch is not atomic: it keeps going on individual failures and returns the
// first error encountered; retrying converges since MarkRead is idempotent.
func (svc *Service) MarkAllRead(ctx context.Context, userID string, groups []string) error {
	ids, err := svc.repo.UnreadIDsFor(ctx, userID, groups)
	if err != nil {
		return err
	}

	var firstErr error
	for _, id := range ids {
		if err := svc.repo.MarkNotificationRead(ctx, id); err != nil {
			if firstErr == nil {
				firstErr = errors.Wrap(err, "marking notification read")
			}
			if svc.logger != nil {
				svc.logger.Warn("MarkAllRead: skipping notification", err)
			}
		}
	}
	return firstErr
}

// Watch streams the user's live feed if the repository supports it.
func (svc *Service) Watch(ctx context.Context, userID string, groups []string) (<-chan Notification, error) {
	watcher, ok := svc.repo.(Watcher)
	if !ok {
		return nil, errors.New("live notification feed not supported by this store")
	}
	return watcher.WatchNotifications(ctx, userID, groups)
}
