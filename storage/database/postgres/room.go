package pgrepos

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"time"

	"github.com/jmoiron/sqlx"
	"github.com/lib/pq"
	"github.com/pkg/errors"
	"github.com/volatiletech/null/v8"

	"github.com/trezcool/nyumbani/core/room"
)

type roomRepository struct {
	db *sqlx.DB
}

var _ room.Repository = (*roomRepository)(nil) // interface compliance check

func NewRoomRepository(db *sqlx.DB) *roomRepository {
	return &roomRepository{db: db}
}

type roomRow struct {
	ID           string         `db:"id"`
	Number       string         `db:"number"`
	Floor        int            `db:"floor"`
	Block        null.String    `db:"block"`
	Type         string         `db:"type"`
	Capacity     int            `db:"capacity"`
	Status       string         `db:"status"`
	Amenities    pq.StringArray `db:"amenities"`
	AssignedDate null.Time      `db:"assigned_date"`
	CreatedAt    time.Time      `db:"created_at"`
	UpdatedAt    time.Time      `db:"updated_at"`
}

func (r roomRow) room() room.Room {
	return room.Room{
		ID:           r.ID,
		Number:       r.Number,
		Floor:        r.Floor,
		Block:        r.Block,
		Type:         r.Type,
		Capacity:     r.Capacity,
		Status:       r.Status,
		Amenities:    r.Amenities,
		AssignedDate: r.AssignedDate,
		CreatedAt:    r.CreatedAt,
		UpdatedAt:    r.UpdatedAt,
	}
}

func rooms(rows []roomRow) []room.Room {
	all := make([]room.Room, 0, len(rows))
	for _, r := range rows {
		all = append(all, r.room())
	}
	return all
}

type requestRow struct {
	ID        string      `db:"id"`
	UserID    string      `db:"user_id"`
	RoomID    string      `db:"room_id"`
	Status    string      `db:"status"`
	DecidedBy null.String `db:"decided_by"`
	CreatedAt time.Time   `db:"created_at"`
	DecidedAt null.Time   `db:"decided_at"`
}

func (r requestRow) request() room.RoomRequest {
	return room.RoomRequest{
		ID:        r.ID,
		UserID:    r.UserID,
		RoomID:    r.RoomID,
		Status:    r.Status,
		DecidedBy: r.DecidedBy,
		CreatedAt: r.CreatedAt,
		DecidedAt: r.DecidedAt,
	}
}

const (
	roomColumns    = `id, number, floor, block, type, capacity, status, amenities, assigned_date, created_at, updated_at`
	requestColumns = `id, user_id, room_id, status, decided_by, created_at, decided_at`
)

func (repo roomRepository) CheckNumberUniqueness(ctx context.Context, number string, excludedRooms ...room.Room) error {
	excludedIDs := make([]string, 0, len(excludedRooms))
	for _, rm := range excludedRooms {
		excludedIDs = append(excludedIDs, rm.ID)
	}

	var exists bool
	q := `SELECT EXISTS(SELECT 1 FROM room WHERE number = $1 AND NOT (id = ANY($2)))`
	if err := repo.db.GetContext(ctx, &exists, q, number, pq.Array(excludedIDs)); err != nil {
		return errors.Wrap(err, "checking room number uniqueness")
	}
	if exists {
		return room.ErrNumberExists
	}
	return nil
}

func (repo roomRepository) CreateRoom(ctx context.Context, rm room.Room) (room.Room, error) {
	q := `
INSERT INTO room (number, floor, block, type, capacity, status, amenities, created_at, updated_at)
VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
RETURNING ` + roomColumns

	var row roomRow
	err := repo.db.GetContext(
		ctx, &row, q,
		rm.Number, rm.Floor, rm.Block, rm.Type, rm.Capacity, rm.Status, pq.Array(rm.Amenities), rm.CreatedAt, rm.UpdatedAt,
	)
	if err != nil {
		return room.Room{}, errors.Wrap(err, "creating room")
	}
	return row.room(), nil
}

func (repo roomRepository) GetRoomByID(ctx context.Context, id string) (room.Room, error) {
	var row roomRow
	q := `SELECT ` + roomColumns + ` FROM room WHERE id = $1`
	if err := repo.db.GetContext(ctx, &row, q, id); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return room.Room{}, room.ErrNotFound
		}
		return room.Room{}, errors.Wrap(err, "getting room")
	}
	return row.room(), nil
}

func (repo roomRepository) QueryAllRooms(ctx context.Context) ([]room.Room, error) {
	var rows []roomRow
	q := `SELECT ` + roomColumns + ` FROM room ORDER BY number`
	if err := repo.db.SelectContext(ctx, &rows, q); err != nil {
		return nil, errors.Wrap(err, "querying rooms")
	}
	return rooms(rows), nil
}

func (repo roomRepository) FilterRooms(ctx context.Context, filter room.QueryFilter) ([]room.Room, error) {
	clauses := make([]string, 0, 4)
	args := make([]interface{}, 0, 4)
	arg := func(v interface{}) string {
		args = append(args, v)
		return fmt.Sprintf("$%d", len(args))
	}

	if filter.Status != "" {
		clauses = append(clauses, "status = "+arg(filter.Status))
	}
	if filter.Type != "" {
		clauses = append(clauses, "type = "+arg(filter.Type))
	}
	if filter.Block != "" {
		clauses = append(clauses, "block = "+arg(filter.Block))
	}
	if filter.Floor != nil {
		clauses = append(clauses, "floor = "+arg(*filter.Floor))
	}

	q := `SELECT ` + roomColumns + ` FROM room`
	if len(clauses) > 0 {
		q += " WHERE " + strings.Join(clauses, " AND ")
	}
	q += " ORDER BY number"

	var rows []roomRow
	if err := repo.db.SelectContext(ctx, &rows, q, args...); err != nil {
		return nil, errors.Wrap(err, "filtering rooms")
	}
	return rooms(rows), nil
}

func (repo roomRepository) UpdateRoom(ctx context.Context, rm room.Room) (room.Room, error) {
	q := `
UPDATE room
SET number     = COALESCE(NULLIF($2, ''), number),
    floor      = $3,
    block      = COALESCE($4, block),
    type       = COALESCE(NULLIF($5, ''), type),
    capacity   = COALESCE(NULLIF($6, 0), capacity),
    status     = COALESCE(NULLIF($7, ''), status),
    amenities  = COALESCE($8, amenities),
    updated_at = $9
WHERE id = $1
RETURNING ` + roomColumns

	var amenities interface{}
	if rm.Amenities != nil {
		amenities = pq.Array(rm.Amenities)
	}

	var row roomRow
	err := repo.db.GetContext(
		ctx, &row, q,
		rm.ID, rm.Number, rm.Floor, rm.Block, rm.Type, rm.Capacity, rm.Status, amenities, rm.UpdatedAt,
	)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return room.Room{}, room.ErrNotFound
		}
		return room.Room{}, errors.Wrap(err, "updating room")
	}
	return row.room(), nil
}

// MarkRoomOccupied only applies while the room is still available; racing
// assignments are serialized here by the conditional write.
func (repo roomRepository) MarkRoomOccupied(ctx context.Context, id string, assignedDate time.Time) error {
	q := `UPDATE room SET status = $2, assigned_date = $3, updated_at = $3 WHERE id = $1 AND status = $4`
	res, err := repo.db.ExecContext(ctx, q, id, room.StatusOccupied, assignedDate, room.StatusAvailable)
	if err != nil {
		return errors.Wrap(err, "marking room occupied")
	}
	if n, _ := res.RowsAffected(); n == 0 {
		if _, err = repo.GetRoomByID(ctx, id); err != nil {
			return err
		}
		return room.ErrRoomNotAvailable
	}
	return nil
}

func (repo roomRepository) MarkRoomAvailable(ctx context.Context, id string) error {
	q := `UPDATE room SET status = $2, assigned_date = NULL, updated_at = now() WHERE id = $1`
	res, err := repo.db.ExecContext(ctx, q, id, room.StatusAvailable)
	if err != nil {
		return errors.Wrap(err, "marking room available")
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return room.ErrNotFound
	}
	return nil
}

func (repo roomRepository) SetRoomStatus(ctx context.Context, id, status string) error {
	res, err := repo.db.ExecContext(ctx, `UPDATE room SET status = $2, updated_at = now() WHERE id = $1`, id, status)
	if err != nil {
		return errors.Wrap(err, "setting room status")
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return room.ErrNotFound
	}
	return nil
}

func (repo roomRepository) DeleteRoom(ctx context.Context, id string) error {
	_, err := repo.db.ExecContext(ctx, `DELETE FROM room WHERE id = $1`, id)
	return errors.Wrap(err, "deleting room")
}

func (repo roomRepository) CountOccupants(ctx context.Context, roomID string) (int, error) {
	var count int
	q := `SELECT COUNT(*) FROM "user" WHERE room_id = $1`
	if err := repo.db.GetContext(ctx, &count, q, roomID); err != nil {
		return 0, errors.Wrap(err, "counting occupants")
	}
	return count, nil
}

func (repo roomRepository) GetStudentRoomID(ctx context.Context, studentID string) (null.String, error) {
	var roomID null.String
	q := `SELECT room_id FROM "user" WHERE id = $1`
	if err := repo.db.GetContext(ctx, &roomID, q, studentID); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return null.String{}, room.ErrStudentNotFound
		}
		return null.String{}, errors.Wrap(err, "getting student room")
	}
	return roomID, nil
}

func (repo roomRepository) SetStudentRoom(ctx context.Context, studentID string, roomID null.String) error {
	res, err := repo.db.ExecContext(ctx, `UPDATE "user" SET room_id = $2, updated_at = now() WHERE id = $1`, studentID, roomID)
	if err != nil {
		return errors.Wrap(err, "setting student room")
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return room.ErrStudentNotFound
	}
	return nil
}

func (repo roomRepository) CreateRequest(ctx context.Context, req room.RoomRequest) (room.RoomRequest, error) {
	q := `
INSERT INTO room_request (user_id, room_id, status, created_at)
VALUES ($1, $2, $3, $4)
RETURNING ` + requestColumns

	var row requestRow
	if err := repo.db.GetContext(ctx, &row, q, req.UserID, req.RoomID, req.Status, req.CreatedAt); err != nil {
		return room.RoomRequest{}, errors.Wrap(err, "creating room request")
	}
	return row.request(), nil
}

func (repo roomRepository) GetRequestByID(ctx context.Context, id string) (room.RoomRequest, error) {
	var row requestRow
	q := `SELECT ` + requestColumns + ` FROM room_request WHERE id = $1`
	if err := repo.db.GetContext(ctx, &row, q, id); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return room.RoomRequest{}, room.ErrRequestNotFound
		}
		return room.RoomRequest{}, errors.Wrap(err, "getting room request")
	}
	return row.request(), nil
}

func (repo roomRepository) GetPendingRequestForStudent(ctx context.Context, studentID string) (room.RoomRequest, error) {
	var row requestRow
	q := `SELECT ` + requestColumns + ` FROM room_request WHERE user_id = $1 AND status = $2`
	if err := repo.db.GetContext(ctx, &row, q, studentID, room.RequestPending); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return room.RoomRequest{}, room.ErrRequestNotFound
		}
		return room.RoomRequest{}, errors.Wrap(err, "getting pending request")
	}
	return row.request(), nil
}

func (repo roomRepository) QueryRequests(ctx context.Context, statuses ...string) ([]room.RoomRequest, error) {
	q := `SELECT ` + requestColumns + ` FROM room_request`
	args := make([]interface{}, 0, 1)
	if len(statuses) > 0 {
		q += ` WHERE status = ANY($1)`
		args = append(args, pq.Array(statuses))
	}
	q += ` ORDER BY created_at`

	var rows []requestRow
	if err := repo.db.SelectContext(ctx, &rows, q, args...); err != nil {
		return nil, errors.Wrap(err, "querying room requests")
	}
	reqs := make([]room.RoomRequest, 0, len(rows))
	for _, r := range rows {
		reqs = append(reqs, r.request())
	}
	return reqs, nil
}

func (repo roomRepository) UpdateRequestStatus(ctx context.Context, id, status, decidedBy string, decidedAt time.Time) (room.RoomRequest, error) {
	q := `
UPDATE room_request
SET status = $2, decided_by = $3, decided_at = $4
WHERE id = $1
RETURNING ` + requestColumns

	var row requestRow
	if err := repo.db.GetContext(ctx, &row, q, id, status, decidedBy, decidedAt); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return room.RoomRequest{}, room.ErrRequestNotFound
		}
		return room.RoomRequest{}, errors.Wrap(err, "updating room request")
	}
	return row.request(), nil
}
