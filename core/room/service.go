package room

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
	ErrNotFound        = errors.New("room not found")
	ErrRequestNotFound = errors.New("room request not found")
	ErrStudentNotFound = errors.New("student not found")
	ErrNumberExists    = errors.New("a room with this number already exists")

	// precondition conflicts
	ErrRoomNotAvailable      = errors.New("room is no longer available")
	ErrRoomOccupied          = errors.New("room still has occupants")
	ErrAlreadyAssigned       = errors.New("student already has a room assigned")
	ErrNoRoomAssigned        = errors.New("student has no room assigned")
	ErrPendingRequestExists  = errors.New("student already has a pending room request")
	ErrRequestAlreadyDecided = errors.New("room request has already been decided")
	ErrCapacityExceeded      = errors.New("room capacity exceeded")
)

type (
	Repository interface {
		CheckNumberUniqueness(ctx context.Context, number string, excludedRooms ...Room) error
		CreateRoom(ctx context.Context, rm Room) (Room, error)
		GetRoomByID(ctx context.Context, id string) (Room, error)
		QueryAllRooms(ctx context.Context) ([]Room, error)
		// FilterRooms applies AND operation on available QueryFilter fields.
		FilterRooms(ctx context.Context, filter QueryFilter) ([]Room, error)
		UpdateRoom(ctx context.Context, rm Room) (Room, error)
		// MarkRoomOccupied atomically flips an available room to occupied and
		// stamps its assigned date. It is the serialization point for racing
		// assignments: the write only applies while status is still available,
		// and ErrRoomNotAvailable is returned when another writer won.
		MarkRoomOccupied(ctx context.Context, id string, assignedDate time.Time) error
		// MarkRoomAvailable reverts a room to available and clears its assigned date.
		MarkRoomAvailable(ctx context.Context, id string) error
		SetRoomStatus(ctx context.Context, id, status string) error
		DeleteRoom(ctx context.Context, id string) error

		// Occupancy lives on the student records (users.room_id).
		CountOccupants(ctx context.Context, roomID string) (int, error)
		GetStudentRoomID(ctx context.Context, studentID string) (null.String, error)
		SetStudentRoom(ctx context.Context, studentID string, roomID null.String) error

		CreateRequest(ctx context.Context, req RoomRequest) (RoomRequest, error)
		GetRequestByID(ctx context.Context, id string) (RoomRequest, error)
		GetPendingRequestForStudent(ctx context.Context, studentID string) (RoomRequest, error)
		QueryRequests(ctx context.Context, statuses ...string) ([]RoomRequest, error)
		UpdateRequestStatus(ctx context.Context, id, status, decidedBy string, decidedAt time.Time) (RoomRequest, error)
	}

	// Notifier publishes feed notifications. Notification writes are best-effort
	// side effects: their loss never unwinds the state transition that produced them.
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

func (svc *Service) CheckNumberUniqueness(number string, exclRooms ...Room) error {
	if err := svc.repo.CheckNumberUniqueness(context.Background(), number, exclRooms...); err != nil {
		if errors.Cause(err) == ErrNumberExists {
			return core.NewValidationError(err, core.FieldError{Field: "number", Error: err.Error()})
		}
		return err
	}
	return nil
}

// Create registers a new room; it starts out available.
func (svc *Service) Create(ctx context.Context, nr NewRoom) (Room, error) {
	now := time.Now().UTC()
	rm := Room{
		Number:    nr.Number,
		Floor:     nr.Floor,
		Type:      nr.Type,
		Capacity:  nr.Capacity,
		Status:    StatusAvailable,
		Amenities: nr.Amenities,
		CreatedAt: now,
		UpdatedAt: now,
	}
	if nr.Block != "" {
		rm.Block.SetValid(nr.Block)
	}
	return svc.repo.CreateRoom(ctx, rm)
}

func (svc *Service) QueryAll(ctx context.Context) ([]Room, error) {
	return svc.repo.QueryAllRooms(ctx)
}

func (svc *Service) GetByID(ctx context.Context, id string) (Room, error) {
	return svc.repo.GetRoomByID(ctx, id)
}

func (svc *Service) Filter(ctx context.Context, filter QueryFilter) ([]Room, error) {
	return svc.repo.FilterRooms(ctx, filter)
}

// Available lists rooms currently open for booking.
func (svc *Service) Available(ctx context.Context) ([]Room, error) {
	return svc.repo.FilterRooms(ctx, QueryFilter{Status: StatusAvailable})
}

// Update edits room details. Status changes are restricted: a room with
// occupants cannot be forced out of occupied.
func (svc *Service) Update(ctx context.Context, id string, ur UpdateRoom) (Room, error) {
	rm, err := svc.repo.GetRoomByID(ctx, id)
	if err != nil {
		return Room{}, err
	}

	if ur.Status != "" && ur.Status != rm.Status {
		count, err := svc.repo.CountOccupants(ctx, id)
		if err != nil {
			return Room{}, err
		}
		if count > 0 {
			return Room{}, ErrRoomOccupied
		}
		rm.Status = ur.Status
	}

	if ur.Number != "" {
		rm.Number = ur.Number
	}
	if ur.Floor > 0 {
		rm.Floor = ur.Floor
	}
	if ur.Block != "" {
		rm.Block.SetValid(ur.Block)
	}
	if ur.Type != "" {
		rm.Type = ur.Type
	}
	if ur.Capacity > 0 {
		rm.Capacity = ur.Capacity
	}
	if ur.Amenities != nil {
		rm.Amenities = ur.Amenities
	}
	rm.UpdatedAt = time.Now().UTC()

	return svc.repo.UpdateRoom(ctx, rm)
}

// Delete removes a room; only an empty room can be deleted.
func (svc *Service) Delete(ctx context.Context, id string) error {
	if _, err := svc.repo.GetRoomByID(ctx, id); err != nil {
		return err
	}
	count, err := svc.repo.CountOccupants(ctx, id)
	if err != nil {
		return err
	}
	if count > 0 {
		return ErrRoomOccupied
	}
	return svc.repo.DeleteRoom(ctx, id)
}

// Request files a booking request for a student. The student must be roomless,
// without a pending request, and the room must currently be available.
func (svc *Service) Request(ctx context.Context, studentID, roomID string) (RoomRequest, error) {
	currRoomID, err := svc.repo.GetStudentRoomID(ctx, studentID)
	if err != nil {
		return RoomRequest{}, err
	}
	if currRoomID.Valid {
		return RoomRequest{}, ErrAlreadyAssigned
	}

	if _, err := svc.repo.GetPendingRequestForStudent(ctx, studentID); err == nil {
		return RoomRequest{}, ErrPendingRequestExists
	} else if errors.Cause(err) != ErrRequestNotFound {
		return RoomRequest{}, err
	}

	rm, err := svc.repo.GetRoomByID(ctx, roomID)
	if err != nil {
		return RoomRequest{}, err
	}
	if rm.Status != StatusAvailable {
		return RoomRequest{}, ErrRoomNotAvailable
	}

	req, err := svc.repo.CreateRequest(ctx, RoomRequest{
		UserID:    studentID,
		RoomID:    roomID,
		Status:    RequestPending,
		CreatedAt: time.Now().UTC(),
	})
	if err != nil {
		return RoomRequest{}, err
	}

	svc.notify(ctx, notification.New{
		Title:   "New room request",
		Message: fmt.Sprintf("A student requested room %s.", rm.Number),
		Type:    notification.TypeInfo,
		Target:  notification.TargetAdmins,
	})
	return req, nil
}

// Approve grants a pending request. The room's availability is re-checked as
// the write itself: of two racing approvals, exactly one flips the room to
// occupied and the loser fails with ErrRoomNotAvailable, its student and
// request writes never proceeding.
func (svc *Service) Approve(ctx context.Context, requestID, adminID string) (RoomRequest, error) {
	req, err := svc.repo.GetRequestByID(ctx, requestID)
	if err != nil {
		return RoomRequest{}, err
	}
	if req.Status != RequestPending {
		return RoomRequest{}, ErrRequestAlreadyDecided
	}

	if err := svc.assign(ctx, req.UserID, req.RoomID); err != nil {
		return RoomRequest{}, err
	}

	req, err = svc.repo.UpdateRequestStatus(ctx, requestID, RequestApproved, adminID, time.Now().UTC())
	if err != nil {
		return RoomRequest{}, err
	}

	svc.notifyAssignment(ctx, req.UserID, req.RoomID)
	return req, nil
}

// Reject declines a pending request; no room or student state changes.
func (svc *Service) Reject(ctx context.Context, requestID, adminID string) (RoomRequest, error) {
	req, err := svc.repo.GetRequestByID(ctx, requestID)
	if err != nil {
		return RoomRequest{}, err
	}
	if req.Status != RequestPending {
		return RoomRequest{}, ErrRequestAlreadyDecided
	}

	req, err = svc.repo.UpdateRequestStatus(ctx, requestID, RequestRejected, adminID, time.Now().UTC())
	if err != nil {
		return RoomRequest{}, err
	}

	svc.notify(ctx, notification.New{
		Title:   "Room request rejected",
		Message: "Your room request was rejected. You may request another room.",
		Type:    notification.TypeWarning,
		Target:  req.UserID,
	})
	return req, nil
}

// AssignDirect bypasses the request flow; same availability re-check and the
// same side effects as an approval.
func (svc *Service) AssignDirect(ctx context.Context, studentID, roomID string) error {
	if err := svc.assign(ctx, studentID, roomID); err != nil {
		return err
	}
	svc.notifyAssignment(ctx, studentID, roomID)
	return nil
}

// assign performs the critical transition: the conditional occupied flip comes
// first and serializes concurrent writers; the student write follows it.
func (svc *Service) assign(ctx context.Context, studentID, roomID string) error {
	currRoomID, err := svc.repo.GetStudentRoomID(ctx, studentID)
	if err != nil {
		return err
	}
	if currRoomID.Valid {
		return ErrAlreadyAssigned
	}

	rm, err := svc.repo.GetRoomByID(ctx, roomID)
	if err != nil {
		return err
	}
	count, err := svc.repo.CountOccupants(ctx, roomID)
	if err != nil {
		return err
	}
	if count >= rm.Capacity {
		return ErrCapacityExceeded
	}

	if err := svc.repo.MarkRoomOccupied(ctx, roomID, time.Now().UTC()); err != nil {
		return err
	}
	if err := svc.repo.SetStudentRoom(ctx, studentID, null.StringFrom(roomID)); err != nil {
		return errors.Wrap(err, "linking student to room")
	}
	return nil
}

// Release clears a student's room; the room reverts to available once its
// occupant count drops to zero.
func (svc *Service) Release(ctx context.Context, studentID string) error {
	currRoomID, err := svc.repo.GetStudentRoomID(ctx, studentID)
	if err != nil {
		return err
	}
	if !currRoomID.Valid {
		return ErrNoRoomAssigned
	}

	if err := svc.repo.SetStudentRoom(ctx, studentID, null.String{}); err != nil {
		return err
	}

	count, err := svc.repo.CountOccupants(ctx, currRoomID.String)
	if err != nil {
		return err
	}
	if count == 0 {
		if err := svc.repo.MarkRoomAvailable(ctx, currRoomID.String); err != nil {
			return err
		}
	}

	svc.notify(ctx, notification.New{
		Title:   "Room released",
		Message: "Your room assignment has been released.",
		Type:    notification.TypeInfo,
		Target:  studentID,
	})
	return nil
}

// PendingRequests lists the admin approval queue, oldest first.
func (svc *Service) PendingRequests(ctx context.Context) ([]RoomRequest, error) {
	return svc.repo.QueryRequests(ctx, RequestPending)
}

func (svc *Service) notifyAssignment(ctx context.Context, studentID, roomID string) {
	msg := "A room has been assigned to you."
	if rm, err := svc.repo.GetRoomByID(ctx, roomID); err == nil {
		msg = fmt.Sprintf("Room %s has been assigned to you.", rm.Number)
	}
	svc.notify(ctx, notification.New{
		Title:   "Room assigned",
		Message: msg,
		Type:    notification.TypeSuccess,
		Target:  studentID,
	})
}

// notify publishes best-effort: failures are logged and swallowed.
func (svc *Service) notify(ctx context.Context, n notification.New) {
	if svc.notif == nil {
		return
	}
	if _, err := svc.notif.Publish(ctx, n); err != nil && svc.logger != nil {
		svc.logger.Warn("room: notification not delivered", err)
	}
}
