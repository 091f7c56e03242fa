package dummydb

import (
	"sync"

	"github.com/trezcool/nyumbani/core/complaint"
	"github.com/trezcool/nyumbani/core/fee"
	"github.com/trezcool/nyumbani/core/notification"
	"github.com/trezcool/nyumbani/core/room"
	"github.com/trezcool/nyumbani/core/user"
)

// DB is an in-memory store for tests and local hacking. Each table write is
// atomic under its table lock. There are no cross-table transactions.
type (
	DB struct {
		user         *userTable
		room         *roomTable
		request      *requestTable
		fee          *feeTable
		complaint    *complaintTable
		notification *notificationTable
	}

	userTable struct {
		sync.RWMutex
		table map[string]*user.User
	}

	roomTable struct {
		sync.RWMutex
		table map[string]*room.Room
	}

	requestTable struct {
		sync.RWMutex
		table map[string]*room.RoomRequest
	}

	feeTable struct {
		sync.RWMutex
		table map[string]*fee.Fee
	}

	complaintTable struct {
		sync.RWMutex
		table map[string]*complaint.Complaint
	}

	notificationTable struct {
		sync.RWMutex
		table    map[string]*notification.Notification
		watchers []*watcher
	}
)

func Open() (*DB, error) {
	db := &DB{
		user:         &userTable{table: make(map[string]*user.User)},
		room:         &roomTable{table: make(map[string]*room.Room)},
		request:      &requestTable{table: make(map[string]*room.RoomRequest)},
		fee:          &feeTable{table: make(map[string]*fee.Fee)},
		complaint:    &complaintTable{table: make(map[string]*complaint.Complaint)},
		notification: &notificationTable{table: make(map[string]*notification.Notification)},
	}
	return db, nil
}
