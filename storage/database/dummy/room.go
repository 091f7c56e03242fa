package dummydb

import (
	"context"
	"sort"
	"time"

	"github.com/google/uuid"
	"github.com/volatiletech/null/v8"

	"github.com/trezcool/nyumbani/core/room"
)

type roomRepository struct {
	rooms    *roomTable
	requests *requestTable
	users    *userTable
}

var _ room.Repository = (*roomRepository)(nil) // interface compliance check

func NewRoomRepository(db *DB) room.Repository {
	return &roomRepository{rooms: db.room, requests: db.request, users: db.user}
}

func (repo *roomRepository) CheckNumberUniqueness(ctx context.Context, number string, excludedRooms ...room.Room) error {
	repo.rooms.RLock()
	defer repo.rooms.RUnlock()

	for _, rm := range repo.rooms.table {
		if rm.Number != number {
			continue
		}
		excluded := false
		for _, ex := range excludedRooms {
			if rm.ID == ex.ID {
				excluded = true
				break
			}
		}
		if !excluded {
			return room.ErrNumberExists
		}
	}
	return nil
}

func (repo *roomRepository) CreateRoom(ctx context.Context, rm room.Room) (room.Room, error) {
	repo.rooms.Lock()
	defer repo.rooms.Unlock()

	rm.ID = uuid.New().String()
	repo.rooms.table[rm.ID] = &rm
	return rm, nil
}

func (repo *roomRepository) GetRoomByID(ctx context.Context, id string) (room.Room, error) {
	repo.rooms.RLock()
	defer repo.rooms.RUnlock()

	if rm, ok := repo.rooms.table[id]; ok {
		return *rm, nil
	}
	return room.Room{}, room.ErrNotFound
}

func (repo *roomRepository) QueryAllRooms(ctx context.Context) ([]room.Room, error) {
	repo.rooms.RLock()
	defer repo.rooms.RUnlock()

	rooms := make([]room.Room, 0, len(repo.rooms.table))
	for _, rm := range repo.rooms.table {
		rooms = append(rooms, *rm)
	}
	sortRooms(rooms)
	return rooms, nil
}

func (repo *roomRepository) FilterRooms(ctx context.Context, filter room.QueryFilter) ([]room.Room, error) {
	repo.rooms.RLock()
	defer repo.rooms.RUnlock()

	matched := make([]room.Room, 0)
	for _, rm := range repo.rooms.table {
		if filter.Status != "" && rm.Status != filter.Status {
			continue
		}
		if filter.Type != "" && rm.Type != filter.Type {
			continue
		}
		if filter.Floor != nil && rm.Floor != *filter.Floor {
			continue
		}
		if filter.Block != "" && rm.Block.String != filter.Block {
			continue
		}
		matched = append(matched, *rm)
	}
	sortRooms(matched)
	return matched, nil
}

func (repo *roomRepository) UpdateRoom(ctx context.Context, rm room.Room) (room.Room, error) {
	repo.rooms.Lock()
	defer repo.rooms.Unlock()

	if _, ok := repo.rooms.table[rm.ID]; !ok {
		return room.Room{}, room.ErrNotFound
	}
	repo.rooms.table[rm.ID] = &rm
	return rm, nil
}

// MarkRoomOccupied is the conditional write racing assignments serialize on:
// the flip only applies while the room is still available.
func (repo *roomRepository) MarkRoomOccupied(ctx context.Context, id string, assignedDate time.Time) error {
	repo.rooms.Lock()
	defer repo.rooms.Unlock()

	rm, ok := repo.rooms.table[id]
	if !ok {
		return room.ErrNotFound
	}
	if rm.Status != room.StatusAvailable {
		return room.ErrRoomNotAvailable
	}
	rm.Status = room.StatusOccupied
	rm.AssignedDate = null.TimeFrom(assignedDate)
	rm.UpdatedAt = assignedDate
	return nil
}

func (repo *roomRepository) MarkRoomAvailable(ctx context.Context, id string) error {
	repo.rooms.Lock()
	defer repo.rooms.Unlock()

	rm, ok := repo.rooms.table[id]
	if !ok {
		return room.ErrNotFound
	}
	rm.Status = room.StatusAvailable
	rm.AssignedDate = null.Time{}
	rm.UpdatedAt = time.Now().UTC()
	return nil
}

func (repo *roomRepository) SetRoomStatus(ctx context.Context, id, status string) error {
	repo.rooms.Lock()
	defer repo.rooms.Unlock()

	rm, ok := repo.rooms.table[id]
	if !ok {
		return room.ErrNotFound
	}
	rm.Status = status
	rm.UpdatedAt = time.Now().UTC()
	return nil
}

func (repo *roomRepository) DeleteRoom(ctx context.Context, id string) error {
	repo.rooms.Lock()
	defer repo.rooms.Unlock()

	if _, ok := repo.rooms.table[id]; !ok {
		return room.ErrNotFound
	}
	delete(repo.rooms.table, id)
	return nil
}

func (repo *roomRepository) CountOccupants(ctx context.Context, roomID string) (int, error) {
	repo.users.RLock()
	defer repo.users.RUnlock()

	var count int
	for _, usr := range repo.users.table {
		if usr.RoomID.String == roomID && usr.RoomID.Valid {
			count++
		}
	}
	return count, nil
}

func (repo *roomRepository) GetStudentRoomID(ctx context.Context, studentID string) (null.String, error) {
	repo.users.RLock()
	defer repo.users.RUnlock()

	usr, ok := repo.users.table[studentID]
	if !ok {
		return null.String{}, room.ErrStudentNotFound
	}
	return usr.RoomID, nil
}

func (repo *roomRepository) SetStudentRoom(ctx context.Context, studentID string, roomID null.String) error {
	repo.users.Lock()
	defer repo.users.Unlock()

	usr, ok := repo.users.table[studentID]
	if !ok {
		return room.ErrStudentNotFound
	}
	usr.RoomID = roomID
	return nil
}

func (repo *roomRepository) CreateRequest(ctx context.Context, req room.RoomRequest) (room.RoomRequest, error) {
	repo.requests.Lock()
	defer repo.requests.Unlock()

	req.ID = uuid.New().String()
	repo.requests.table[req.ID] = &req
	return req, nil
}

func (repo *roomRepository) GetRequestByID(ctx context.Context, id string) (room.RoomRequest, error) {
	repo.requests.RLock()
	defer repo.requests.RUnlock()

	if req, ok := repo.requests.table[id]; ok {
		return *req, nil
	}
	return room.RoomRequest{}, room.ErrRequestNotFound
}

func (repo *roomRepository) GetPendingRequestForStudent(ctx context.Context, studentID string) (room.RoomRequest, error) {
	repo.requests.RLock()
	defer repo.requests.RUnlock()

	for _, req := range repo.requests.table {
		if req.UserID == studentID && req.Status == room.RequestPending {
			return *req, nil
		}
	}
	return room.RoomRequest{}, room.ErrRequestNotFound
}

func (repo *roomRepository) QueryRequests(ctx context.Context, statuses ...string) ([]room.RoomRequest, error) {
	repo.requests.RLock()
	defer repo.requests.RUnlock()

	matched := make([]room.RoomRequest, 0)
	for _, req := range repo.requests.table {
		if len(statuses) > 0 && !containsString(statuses, req.Status) {
			continue
		}
		matched = append(matched, *req)
	}
	sort.Slice(matched, func(i, j int) bool { return matched[i].CreatedAt.Before(matched[j].CreatedAt) })
	return matched, nil
}

func (repo *roomRepository) UpdateRequestStatus(ctx context.Context, id, status, decidedBy string, decidedAt time.Time) (room.RoomRequest, error) {
	repo.requests.Lock()
	defer repo.requests.Unlock()

	req, ok := repo.requests.table[id]
	if !ok {
		return room.RoomRequest{}, room.ErrRequestNotFound
	}
	req.Status = status
	req.DecidedBy = null.StringFrom(decidedBy)
	req.DecidedAt = null.TimeFrom(decidedAt)
	return *req, nil
}

func sortRooms(rooms []room.Room) {
	sort.Slice(rooms, func(i, j int) bool { return rooms[i].Number < rooms[j].Number })
}

func containsString(haystack []string, needle string) bool {
	for _, s := range haystack {
		if s == needle {
			return true
		}
	}
	return false
}
