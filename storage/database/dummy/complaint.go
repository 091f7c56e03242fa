package dummydb

import (
	"context"
	"sort"
	"time"

	"github.com/google/uuid"
	"github.com/volatiletech/null/v8"

	"github.com/trezcool/nyumbani/core/complaint"
)

type complaintRepository struct {
	complaints *complaintTable
	users      *userTable
	rooms      *roomTable
}

var _ complaint.Repository = (*complaintRepository)(nil) // interface compliance check

func NewComplaintRepository(db *DB) complaint.Repository {
	return &complaintRepository{complaints: db.complaint, users: db.user, rooms: db.room}
}

func (repo *complaintRepository) CreateComplaint(ctx context.Context, c complaint.Complaint) (complaint.Complaint, error) {
	repo.complaints.Lock()
	defer repo.complaints.Unlock()

	c.ID = uuid.New().String()
	repo.complaints.table[c.ID] = &c
	return c, nil
}

func (repo *complaintRepository) GetComplaintByID(ctx context.Context, id string) (complaint.Complaint, error) {
	repo.complaints.RLock()
	defer repo.complaints.RUnlock()

	if c, ok := repo.complaints.table[id]; ok {
		return *c, nil
	}
	return complaint.Complaint{}, complaint.ErrNotFound
}

func (repo *complaintRepository) QueryAllComplaints(ctx context.Context) ([]complaint.Complaint, error) {
	repo.complaints.RLock()
	defer repo.complaints.RUnlock()

	complaints := make([]complaint.Complaint, 0, len(repo.complaints.table))
	for _, c := range repo.complaints.table {
		complaints = append(complaints, *c)
	}
	sortComplaints(complaints)
	return complaints, nil
}

func (repo *complaintRepository) QueryComplaintsByStudent(ctx context.Context, studentID string) ([]complaint.Complaint, error) {
	repo.complaints.RLock()
	defer repo.complaints.RUnlock()

	complaints := make([]complaint.Complaint, 0)
	for _, c := range repo.complaints.table {
		if c.StudentID == studentID {
			complaints = append(complaints, *c)
		}
	}
	sortComplaints(complaints)
	return complaints, nil
}

func (repo *complaintRepository) AssignComplaint(ctx context.Context, id, assignee string, at time.Time) (complaint.Complaint, error) {
	repo.complaints.Lock()
	defer repo.complaints.Unlock()

	c, ok := repo.complaints.table[id]
	if !ok {
		return complaint.Complaint{}, complaint.ErrNotFound
	}
	if c.Status == complaint.StatusResolved {
		return complaint.Complaint{}, complaint.ErrAlreadyResolved
	}

	c.Status = complaint.StatusInProgress
	c.AssignedTo = null.StringFrom(assignee)
	c.UpdatedAt = at
	return *c, nil
}

func (repo *complaintRepository) SetComplaintPriority(ctx context.Context, id, priority string, at time.Time) (complaint.Complaint, error) {
	repo.complaints.Lock()
	defer repo.complaints.Unlock()

	c, ok := repo.complaints.table[id]
	if !ok {
		return complaint.Complaint{}, complaint.ErrNotFound
	}
	if c.Status == complaint.StatusResolved {
		return complaint.Complaint{}, complaint.ErrAlreadyResolved
	}

	c.Priority = priority
	c.UpdatedAt = at
	return *c, nil
}

func (repo *complaintRepository) ResolveComplaint(ctx context.Context, id string, response null.String, at time.Time) (complaint.Complaint, error) {
	repo.complaints.Lock()
	defer repo.complaints.Unlock()

	c, ok := repo.complaints.table[id]
	if !ok {
		return complaint.Complaint{}, complaint.ErrNotFound
	}
	if c.Status == complaint.StatusResolved {
		return complaint.Complaint{}, complaint.ErrAlreadyResolved
	}

	c.Status = complaint.StatusResolved
	c.Response = response
	c.ResolvedAt = null.TimeFrom(at)
	c.UpdatedAt = at
	return *c, nil
}

func (repo *complaintRepository) GetStudentRoomNumber(ctx context.Context, studentID string) (string, error) {
	repo.users.RLock()
	usr, ok := repo.users.table[studentID]
	if !ok {
		repo.users.RUnlock()
		return "", complaint.ErrNotFound
	}
	roomID := usr.RoomID
	repo.users.RUnlock()

	if !roomID.Valid {
		return "", nil
	}

	repo.rooms.RLock()
	defer repo.rooms.RUnlock()
	if rm, ok := repo.rooms.table[roomID.String]; ok {
		return rm.Number, nil
	}
	return "", nil
}

func sortComplaints(complaints []complaint.Complaint) {
	sort.Slice(complaints, func(i, j int) bool { return complaints[i].CreatedAt.After(complaints[j].CreatedAt) })
}
