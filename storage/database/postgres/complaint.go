package pgrepos

import (
	"context"
	"database/sql"
	"time"

	"github.com/jmoiron/sqlx"
	"github.com/pkg/errors"
	"github.com/volatiletech/null/v8"

	"github.com/trezcool/nyumbani/core/complaint"
)

type complaintRepository struct {
	db *sqlx.DB
}

var _ complaint.Repository = (*complaintRepository)(nil) // interface compliance check

func NewComplaintRepository(db *sqlx.DB) *complaintRepository {
	return &complaintRepository{db: db}
}

type complaintRow struct {
	ID          string      `db:"id"`
	StudentID   string      `db:"student_id"`
	RoomNumber  null.String `db:"room_number"`
	Title       string      `db:"title"`
	Description string      `db:"description"`
	Priority    string      `db:"priority"`
	Status      string      `db:"status"`
	AssignedTo  null.String `db:"assigned_to"`
	Response    null.String `db:"response"`
	CreatedAt   time.Time   `db:"created_at"`
	UpdatedAt   time.Time   `db:"updated_at"`
	ResolvedAt  null.Time   `db:"resolved_at"`
}

func (r complaintRow) complaint() complaint.Complaint {
	return complaint.Complaint{
		ID:          r.ID,
		StudentID:   r.StudentID,
		RoomNumber:  r.RoomNumber,
		Title:       r.Title,
		Description: r.Description,
		Priority:    r.Priority,
		Status:      r.Status,
		AssignedTo:  r.AssignedTo,
		Response:    r.Response,
		CreatedAt:   r.CreatedAt,
		UpdatedAt:   r.UpdatedAt,
		ResolvedAt:  r.ResolvedAt,
	}
}

func complaints(rows []complaintRow) []complaint.Complaint {
	all := make([]complaint.Complaint, 0, len(rows))
	for _, r := range rows {
		all = append(all, r.complaint())
	}
	return all
}

const complaintColumns = `id, student_id, room_number, title, description, priority, status, assigned_to, response, created_at, updated_at, resolved_at`

func (repo complaintRepository) CreateComplaint(ctx context.Context, c complaint.Complaint) (complaint.Complaint, error) {
	q := `
INSERT INTO complaint (student_id, room_number, title, description, priority, status, created_at, updated_at)
VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
RETURNING ` + complaintColumns

	var row complaintRow
	err := repo.db.GetContext(
		ctx, &row, q,
		c.StudentID, c.RoomNumber, c.Title, c.Description, c.Priority, c.Status, c.CreatedAt, c.UpdatedAt,
	)
	if err != nil {
		return complaint.Complaint{}, errors.Wrap(err, "creating complaint")
	}
	return row.complaint(), nil
}

func (repo complaintRepository) GetComplaintByID(ctx context.Context, id string) (complaint.Complaint, error) {
	var row complaintRow
	q := `SELECT ` + complaintColumns + ` FROM complaint WHERE id = $1`
	if err := repo.db.GetContext(ctx, &row, q, id); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return complaint.Complaint{}, complaint.ErrNotFound
		}
		return complaint.Complaint{}, errors.Wrap(err, "getting complaint")
	}
	return row.complaint(), nil
}

func (repo complaintRepository) QueryAllComplaints(ctx context.Context) ([]complaint.Complaint, error) {
	var rows []complaintRow
	q := `SELECT ` + complaintColumns + ` FROM complaint ORDER BY created_at DESC`
	if err := repo.db.SelectContext(ctx, &rows, q); err != nil {
		return nil, errors.Wrap(err, "querying complaints")
	}
	return complaints(rows), nil
}

func (repo complaintRepository) QueryComplaintsByStudent(ctx context.Context, studentID string) ([]complaint.Complaint, error) {
	var rows []complaintRow
	q := `SELECT ` + complaintColumns + ` FROM complaint WHERE student_id = $1 ORDER BY created_at DESC`
	if err := repo.db.SelectContext(ctx, &rows, q, studentID); err != nil {
		return nil, errors.Wrap(err, "querying student complaints")
	}
	return complaints(rows), nil
}

// conditionalUpdate runs a mutation guarded on status != resolved and maps
// a missed write to the right sentinel.
func (repo complaintRepository) conditionalUpdate(ctx context.Context, q, id string, args ...interface{}) (complaint.Complaint, error) {
	var row complaintRow
	err := repo.db.GetContext(ctx, &row, q, append([]interface{}{id}, args...)...)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			if _, err = repo.GetComplaintByID(ctx, id); err != nil {
				return complaint.Complaint{}, err
			}
			return complaint.Complaint{}, complaint.ErrAlreadyResolved
		}
		return complaint.Complaint{}, errors.Wrap(err, "updating complaint")
	}
	return row.complaint(), nil
}

func (repo complaintRepository) AssignComplaint(ctx context.Context, id, assignee string, at time.Time) (complaint.Complaint, error) {
	q := `
UPDATE complaint
SET assigned_to = $2, status = $3, updated_at = $4
WHERE id = $1 AND status <> $5
RETURNING ` + complaintColumns
	return repo.conditionalUpdate(ctx, q, id, assignee, complaint.StatusInProgress, at, complaint.StatusResolved)
}

func (repo complaintRepository) SetComplaintPriority(ctx context.Context, id, priority string, at time.Time) (complaint.Complaint, error) {
	q := `
UPDATE complaint
SET priority = $2, updated_at = $3
WHERE id = $1 AND status <> $4
RETURNING ` + complaintColumns
	return repo.conditionalUpdate(ctx, q, id, priority, at, complaint.StatusResolved)
}

func (repo complaintRepository) ResolveComplaint(ctx context.Context, id string, response null.String, at time.Time) (complaint.Complaint, error) {
	q := `
UPDATE complaint
SET status = $2, response = COALESCE($3, response), resolved_at = $4, updated_at = $4
WHERE id = $1 AND status <> $2
RETURNING ` + complaintColumns
	return repo.conditionalUpdate(ctx, q, id, complaint.StatusResolved, response, at)
}

func (repo complaintRepository) GetStudentRoomNumber(ctx context.Context, studentID string) (string, error) {
	var number null.String
	q := `
SELECT r.number
FROM "user" u
         LEFT JOIN room r ON r.id = u.room_id
WHERE u.id = $1`
	if err := repo.db.GetContext(ctx, &number, q, studentID); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return "", complaint.ErrNotFound
		}
		return "", errors.Wrap(err, "getting student room number")
	}
	return number.String, nil
}
