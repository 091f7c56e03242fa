package dummydb

import (
	"context"
	"sort"
	"time"

	"github.com/google/uuid"
	"github.com/volatiletech/null/v8"

	"github.com/trezcool/nyumbani/core/fee"
)

type feeRepository struct {
	fees  *feeTable
	users *userTable
}

var _ fee.Repository = (*feeRepository)(nil) // interface compliance check

func NewFeeRepository(db *DB) fee.Repository {
	return &feeRepository{fees: db.fee, users: db.user}
}

func (repo *feeRepository) CreateFee(ctx context.Context, f fee.Fee) (fee.Fee, error) {
	repo.fees.Lock()
	defer repo.fees.Unlock()

	f.ID = uuid.New().String()
	repo.fees.table[f.ID] = &f
	return f, nil
}

func (repo *feeRepository) GetFeeByID(ctx context.Context, id string) (fee.Fee, error) {
	repo.fees.RLock()
	defer repo.fees.RUnlock()

	if f, ok := repo.fees.table[id]; ok {
		return *f, nil
	}
	return fee.Fee{}, fee.ErrNotFound
}

func (repo *feeRepository) QueryAllFees(ctx context.Context) ([]fee.Fee, error) {
	repo.fees.RLock()
	defer repo.fees.RUnlock()

	fees := make([]fee.Fee, 0, len(repo.fees.table))
	for _, f := range repo.fees.table {
		fees = append(fees, *f)
	}
	sortFees(fees)
	return fees, nil
}

func (repo *feeRepository) QueryFeesByStudent(ctx context.Context, studentID string) ([]fee.Fee, error) {
	repo.fees.RLock()
	defer repo.fees.RUnlock()

	fees := make([]fee.Fee, 0)
	for _, f := range repo.fees.table {
		if f.StudentID == studentID {
			fees = append(fees, *f)
		}
	}
	sortFees(fees)
	return fees, nil
}

// MarkFeePaid settles a fee under the table lock; paid is terminal so an
// already-settled fee is left untouched.
func (repo *feeRepository) MarkFeePaid(ctx context.Context, id string, paymentDate time.Time, details fee.PaymentDetails) (fee.Fee, error) {
	repo.fees.Lock()
	defer repo.fees.Unlock()

	f, ok := repo.fees.table[id]
	if !ok {
		return fee.Fee{}, fee.ErrNotFound
	}
	if f.Status == fee.StatusPaid {
		return fee.Fee{}, fee.ErrAlreadyPaid
	}

	f.Status = fee.StatusPaid
	f.PaymentDate = null.TimeFrom(paymentDate)
	if details.Method != "" {
		f.PaymentMethod = null.StringFrom(details.Method)
	}
	if details.Ref != "" {
		f.PaymentRef = null.StringFrom(details.Ref)
	}
	f.UpdatedAt = paymentDate
	return *f, nil
}

func (repo *feeRepository) GetStudent(ctx context.Context, studentID string) (fee.StudentRef, error) {
	repo.users.RLock()
	defer repo.users.RUnlock()

	usr, ok := repo.users.table[studentID]
	if !ok {
		return fee.StudentRef{}, fee.ErrStudentNotFound
	}
	return fee.StudentRef{ID: usr.ID, Name: usr.Name, Email: usr.Email}, nil
}

func (repo *feeRepository) StudentsWithUnpaidFees(ctx context.Context) ([]fee.StudentRef, error) {
	repo.fees.RLock()
	owing := make(map[string]bool)
	for _, f := range repo.fees.table {
		if f.Status != fee.StatusPaid {
			owing[f.StudentID] = true
		}
	}
	repo.fees.RUnlock()

	repo.users.RLock()
	defer repo.users.RUnlock()

	students := make([]fee.StudentRef, 0, len(owing))
	for id := range owing {
		if usr, ok := repo.users.table[id]; ok {
			students = append(students, fee.StudentRef{ID: usr.ID, Name: usr.Name, Email: usr.Email})
		}
	}
	sort.Slice(students, func(i, j int) bool { return students[i].ID < students[j].ID })
	return students, nil
}

func sortFees(fees []fee.Fee) {
	sort.Slice(fees, func(i, j int) bool { return fees[i].DueDate.Before(fees[j].DueDate) })
}
