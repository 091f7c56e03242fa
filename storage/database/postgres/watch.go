package pgrepos

import (
	"context"
	"encoding/json"
	"time"

	"github.com/lib/pq"
	"github.com/pkg/errors"

	"github.com/trezcool/nyumbani/core/notification"
)

const notificationChannel = "notification_created"

// WatchNotifications streams notifications visible to the user as they are
// inserted. Delivery rides the notification table's NOTIFY trigger; the
// returned channel closes when ctx is done.
func (repo notificationRepository) WatchNotifications(ctx context.Context, userID string, groups []string) (<-chan notification.Notification, error) {
	listener := pq.NewListener(repo.dsn, 10*time.Second, time.Minute, func(event pq.ListenerEventType, err error) {
		if err != nil {
			repo.logger.Warn("notification listener event", "event", event, "error", err)
		}
	})
	if err := listener.Listen(notificationChannel); err != nil {
		_ = listener.Close()
		return nil, errors.Wrap(err, "listening for notifications")
	}

	out := make(chan notification.Notification, 16)
	go func() {
		defer close(out)
		defer func() { _ = listener.Close() }()

		for {
			select {
			case <-ctx.Done():
				return
			case event := <-listener.Notify:
				if event == nil { // connection loss; pq reconnects on its own
					continue
				}
				var nf notification.Notification
				if err := json.Unmarshal([]byte(event.Extra), &nf); err != nil {
					repo.logger.Warn("decoding notification payload", "error", err)
					continue
				}
				if !watchVisible(nf, userID, groups) {
					continue
				}
				select {
				case out <- nf:
				case <-ctx.Done():
					return
				}
			case <-time.After(90 * time.Second):
				go func() { _ = listener.Ping() }()
			}
		}
	}()
	return out, nil
}

func watchVisible(nf notification.Notification, userID string, groups []string) bool {
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
