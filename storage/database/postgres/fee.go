package pgrepos

import (
	"context"
	"database/sql"
	"time"

	"github.com/jmoiron/sqlx"
	"github.com/pkg/errors"
	"github.com/volatiletech/null/v8"

	"github.com/trezcool/nyumbani/core/fee"
)

type feeRepository struct {
	db *sqlx.DB
}

var _ fee.Repository = (*feeRepository)(nil) // interface compliance check

func NewFeeRepository(db *sqlx.DB) *feeRepository {
	return &feeRepository{db: db}
}

type feeRow struct {
	ID            string      `db:"id"`
	StudentID     string      `db:"student_id"`
	Description   null.String `db:"description"`
	Amount        int64       `db:"amount"`
	DueDate       time.Time   `db:"due_date"`
	Status        string      `db:"status"`
	PaymentDate   null.Time   `db:"payment_date"`
	PaymentMethod null.String `db:"payment_method"`
	PaymentRef    null.String `db:"payment_ref"`
	CreatedAt     time.Time   `db:"created_at"`
	UpdatedAt     time.Time   `db:"updated_at"`
}

func (r feeRow) fee() fee.Fee {
	return fee.Fee{
		ID:            r.ID,
		StudentID:     r.StudentID,
		Description:   r.Description,
		Amount:        r.Amount,
		DueDate:       r.DueDate,
		Status:        r.Status,
		PaymentDate:   r.PaymentDate,
		PaymentMethod: r.PaymentMethod,
		PaymentRef:    r.PaymentRef,
		CreatedAt:     r.CreatedAt,
		UpdatedAt:     r.UpdatedAt,
	}
}

func fees(rows []feeRow) []fee.Fee {
	all := make([]fee.Fee, 0, len(rows))
	for _, r := range rows {
		all = append(all, r.fee())
	}
	return all
}

const feeColumns = `id, student_id, description, amount, due_date, status, payment_date, payment_method, payment_ref, created_at, updated_at`

func (repo feeRepository) CreateFee(ctx context.Context, f fee.Fee) (fee.Fee, error) {
	q := `
INSERT INTO fee (student_id, description, amount, due_date, status, created_at, updated_at)
VALUES ($1, $2, $3, $4, $5, $6, $7)
RETURNING ` + feeColumns

	var row feeRow
	err := repo.db.GetContext(ctx, &row, q, f.StudentID, f.Description, f.Amount, f.DueDate, f.Status, f.CreatedAt, f.UpdatedAt)
	if err != nil {
		return fee.Fee{}, errors.Wrap(err, "creating fee")
	}
	return row.fee(), nil
}

func (repo feeRepository) GetFeeByID(ctx context.Context, id string) (fee.Fee, error) {
	var row feeRow
	q := `SELECT ` + feeColumns + ` FROM fee WHERE id = $1`
	if err := repo.db.GetContext(ctx, &row, q, id); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return fee.Fee{}, fee.ErrNotFound
		}
		return fee.Fee{}, errors.Wrap(err, "getting fee")
	}
	return row.fee(), nil
}

func (repo feeRepository) QueryAllFees(ctx context.Context) ([]fee.Fee, error) {
	var rows []feeRow
	q := `SELECT ` + feeColumns + ` FROM fee ORDER BY due_date`
	if err := repo.db.SelectContext(ctx, &rows, q); err != nil {
		return nil, errors.Wrap(err, "querying fees")
	}
	return fees(rows), nil
}

func (repo feeRepository) QueryFeesByStudent(ctx context.Context, studentID string) ([]fee.Fee, error) {
	var rows []feeRow
	q := `SELECT ` + feeColumns + ` FROM fee WHERE student_id = $1 ORDER BY due_date`
	if err := repo.db.SelectContext(ctx, &rows, q, studentID); err != nil {
		return nil, errors.Wrap(err, "querying student fees")
	}
	return fees(rows), nil
}

// MarkFeePaid settles in one conditional write; a fee that is no longer
// pending is left untouched and reported as already paid.
func (repo feeRepository) MarkFeePaid(ctx context.Context, id string, paymentDate time.Time, details fee.PaymentDetails) (fee.Fee, error) {
	q := `
UPDATE fee
SET status         = $2,
    payment_date   = $3,
    payment_method = NULLIF($4, ''),
    payment_ref    = NULLIF($5, ''),
    updated_at     = $3
WHERE id = $1 AND status = $6
RETURNING ` + feeColumns

	var row feeRow
	err := repo.db.GetContext(ctx, &row, q, id, fee.StatusPaid, paymentDate, details.Method, details.Ref, fee.StatusPending)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			if _, err = repo.GetFeeByID(ctx, id); err != nil {
				return fee.Fee{}, err
			}
			return fee.Fee{}, fee.ErrAlreadyPaid
		}
		return fee.Fee{}, errors.Wrap(err, "marking fee paid")
	}
	return row.fee(), nil
}

func (repo feeRepository) GetStudent(ctx context.Context, studentID string) (fee.StudentRef, error) {
	var ref fee.StudentRef
	q := `SELECT id, name, email FROM "user" WHERE id = $1`
	err := repo.db.QueryRowxContext(ctx, q, studentID).Scan(&ref.ID, &ref.Name, &ref.Email)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return fee.StudentRef{}, fee.ErrStudentNotFound
		}
		return fee.StudentRef{}, errors.Wrap(err, "getting student")
	}
	return ref, nil
}

func (repo feeRepository) StudentsWithUnpaidFees(ctx context.Context) ([]fee.StudentRef, error) {
	q := `
SELECT DISTINCT u.id, u.name, u.email
FROM "user" u
         JOIN fee f ON f.student_id = u.id
WHERE f.status <> $1
ORDER BY u.id`

	rows, err := repo.db.QueryxContext(ctx, q, fee.StatusPaid)
	if err != nil {
		return nil, errors.Wrap(err, "querying students with unpaid fees")
	}
	defer func() { _ = rows.Close() }()

	refs := make([]fee.StudentRef, 0)
	for rows.Next() {
		var ref fee.StudentRef
		if err = rows.Scan(&ref.ID, &ref.Name, &ref.Email); err != nil {
			return nil, errors.Wrap(err, "scanning student")
		}
		refs = append(refs, ref)
	}
	return refs, errors.Wrap(rows.Err(), "querying students with unpaid fees")
}
