package room

import (
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/volatiletech/null/v8"

	"github.com/trezcool/nyumbani/core"
)

// Room types
const (
	TypeSingle = "single"
	TypeDouble = "double"
	TypeTriple = "triple"
	TypeQuad   = "quad"
)

// Room statuses
const (
	StatusAvailable   = "available"
	StatusOccupied    = "occupied"
	StatusMaintenance = "maintenance"
	StatusReserved    = "reserved"
)

// RoomRequest statuses
const (
	RequestPending  = "pending"
	RequestApproved = "approved"
	RequestRejected = "rejected"
)

// Room is a hostel room. Status is occupied iff at least one student references
// it; available iff none does. Number is unique among all rooms.
type Room struct {
	ID           string      `json:"id"`
	Number       string      `json:"number"`
	Floor        int         `json:"floor"`
	Block        null.String `json:"block"`
	Type         string      `json:"type"`
	Capacity     int         `json:"capacity"`
	Status       string      `json:"status"`
	Amenities    []string    `json:"amenities"`
	AssignedDate null.Time   `json:"assigned_date"`
	CreatedAt    time.Time   `json:"created_at"` // UTC
	UpdatedAt    time.Time   `json:"updated_at"` // UTC
}

// RoomRequest is a student's booking request; a student holds at most one
// pending request at a time.
type RoomRequest struct {
	ID        string      `json:"id"`
	UserID    string      `json:"user_id"`
	RoomID    string      `json:"room_id"`
	Status    string      `json:"status"`
	DecidedBy null.String `json:"decided_by"`
	CreatedAt time.Time   `json:"created_at"` // UTC
	DecidedAt null.Time   `json:"decided_at"`
}

// Bindings

type NewRoom struct {
	Number    string   `json:"number" validate:"required"`
	Floor     int      `json:"floor" validate:"min=0"`
	Block     string   `json:"block"`
	Type      string   `json:"type" validate:"required,oneof=single double triple quad"`
	Capacity  int      `json:"capacity" validate:"required,gt=0"`
	Amenities []string `json:"amenities"`
}

func (nr *NewRoom) Validate(validate *validator.Validate, svc *Service) error {
	nr.Number = core.CleanString(nr.Number)
	nr.Block = core.CleanString(nr.Block)
	if err := validate.Struct(nr); err != nil {
		return err
	}
	return svc.CheckNumberUniqueness(nr.Number)
}

type UpdateRoom struct {
	Number    string   `json:"number"`
	Floor     int      `json:"floor" validate:"min=0"`
	Block     string   `json:"block"`
	Type      string   `json:"type" validate:"omitempty,oneof=single double triple quad"`
	Capacity  int      `json:"capacity" validate:"omitempty,gt=0"`
	Amenities []string `json:"amenities"`
	// Status may move a room in or out of maintenance/reserved;
	// occupied is never set by hand.
	Status string `json:"status" validate:"omitempty,oneof=available maintenance reserved"`
}

func (ur *UpdateRoom) Validate(validate *validator.Validate, svc *Service, target Room) error {
	ur.Number = core.CleanString(ur.Number)
	ur.Block = core.CleanString(ur.Block)
	if err := validate.Struct(ur); err != nil {
		return err
	}
	if ur.Number != "" && ur.Number != target.Number {
		return svc.CheckNumberUniqueness(ur.Number, target)
	}
	return nil
}

// QueryFilter applies an AND operation on its set fields.
type QueryFilter struct {
	Status string
	Type   string
	Floor  *int
	Block  string
}
