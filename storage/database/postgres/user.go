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

	"github.com/trezcool/nyumbani/core/user"
)

type userRepository struct {
	db *sqlx.DB
}

var _ user.Repository = (*userRepository)(nil) // interface compliance check

func NewUserRepository(db *sqlx.DB) *userRepository {
	return &userRepository{db: db}
}

type userRow struct {
	ID            string         `db:"id"`
	Name          string         `db:"name"`
	Email         string         `db:"email"`
	IsActive      bool           `db:"is_active"`
	Roles         pq.StringArray `db:"roles"`
	RoomID        null.String    `db:"room_id"`
	Course        null.String    `db:"course"`
	Year          null.Int       `db:"year"`
	Phone         null.String    `db:"phone"`
	GuardianName  null.String    `db:"guardian_name"`
	GuardianPhone null.String    `db:"guardian_phone"`
	PasswordHash  []byte         `db:"password_hash"`
	CreatedAt     time.Time      `db:"created_at"`
	UpdatedAt     time.Time      `db:"updated_at"`
	LastLogin     null.Time      `db:"last_login"`
}

func (r userRow) user() user.User {
	return user.User{
		ID:            r.ID,
		Name:          r.Name,
		Email:         r.Email,
		IsActive:      r.IsActive,
		Roles:         r.Roles,
		RoomID:        r.RoomID,
		Course:        r.Course,
		Year:          r.Year,
		Phone:         r.Phone,
		GuardianName:  r.GuardianName,
		GuardianPhone: r.GuardianPhone,
		PasswordHash:  r.PasswordHash,
		CreatedAt:     r.CreatedAt,
		UpdatedAt:     r.UpdatedAt,
		LastLogin:     r.LastLogin.Time,
	}
}

func users(rows []userRow) []user.User {
	all := make([]user.User, 0, len(rows))
	for _, r := range rows {
		all = append(all, r.user())
	}
	return all
}

const userColumns = `id, name, email, is_active, roles, room_id, course, year, phone, guardian_name, guardian_phone, password_hash, created_at, updated_at, last_login`

func (repo userRepository) CheckEmailUniqueness(ctx context.Context, email string, excludedUsers ...user.User) error {
	excludedIDs := make([]string, 0, len(excludedUsers))
	for _, usr := range excludedUsers {
		excludedIDs = append(excludedIDs, usr.ID)
	}

	var exists bool
	q := `SELECT EXISTS(SELECT 1 FROM "user" WHERE lower(email) = lower($1) AND NOT (id = ANY($2)))`
	if err := repo.db.GetContext(ctx, &exists, q, email, pq.Array(excludedIDs)); err != nil {
		return errors.Wrap(err, "checking email uniqueness")
	}
	if exists {
		return user.ErrEmailExists
	}
	return nil
}

func (repo userRepository) CreateUser(ctx context.Context, usr user.User) (user.User, error) {
	q := `
INSERT INTO "user" (name, email, is_active, roles, course, year, phone, guardian_name, guardian_phone, password_hash, created_at, updated_at)
VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12)
RETURNING ` + userColumns

	var row userRow
	err := repo.db.GetContext(
		ctx, &row, q,
		usr.Name, usr.Email, usr.IsActive, pq.Array(usr.Roles), usr.Course, usr.Year,
		usr.Phone, usr.GuardianName, usr.GuardianPhone, usr.PasswordHash, usr.CreatedAt, usr.UpdatedAt,
	)
	if err != nil {
		return user.User{}, errors.Wrap(err, "creating user")
	}
	return row.user(), nil
}

func (repo userRepository) QueryAllUsers(ctx context.Context) ([]user.User, error) {
	var rows []userRow
	q := `SELECT ` + userColumns + ` FROM "user" ORDER BY created_at`
	if err := repo.db.SelectContext(ctx, &rows, q); err != nil {
		return nil, errors.Wrap(err, "querying users")
	}
	return users(rows), nil
}

func (repo userRepository) GetUserByID(ctx context.Context, id string) (user.User, error) {
	var row userRow
	q := `SELECT ` + userColumns + ` FROM "user" WHERE id = $1`
	if err := repo.db.GetContext(ctx, &row, q, id); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return user.User{}, user.ErrNotFound
		}
		return user.User{}, errors.Wrap(err, "getting user")
	}
	return row.user(), nil
}

func (repo userRepository) GetUserByEmail(ctx context.Context, email string) (user.User, error) {
	var row userRow
	q := `SELECT ` + userColumns + ` FROM "user" WHERE lower(email) = lower($1)`
	if err := repo.db.GetContext(ctx, &row, q, email); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return user.User{}, user.ErrNotFound
		}
		return user.User{}, errors.Wrap(err, "getting user")
	}
	return row.user(), nil
}

func (repo userRepository) FilterUsers(ctx context.Context, filter user.QueryFilter) ([]user.User, error) {
	clauses := make([]string, 0, 4)
	args := make([]interface{}, 0, 4)
	arg := func(v interface{}) string {
		args = append(args, v)
		return fmt.Sprintf("$%d", len(args))
	}

	if filter.Search != "" {
		n := arg("%" + filter.Search + "%")
		clauses = append(clauses, fmt.Sprintf("(name ILIKE %s OR email ILIKE %s)", n, n))
	}
	if filter.Role != "" {
		clauses = append(clauses, fmt.Sprintf("EXISTS (SELECT 1 FROM unnest(roles) AS r WHERE r LIKE %s || '%%')", arg(filter.Role)))
	}
	if filter.IsActive != nil {
		clauses = append(clauses, "is_active = "+arg(*filter.IsActive))
	}
	if filter.RoomID != "" {
		clauses = append(clauses, "room_id = "+arg(filter.RoomID))
	}

	q := `SELECT ` + userColumns + ` FROM "user"`
	if len(clauses) > 0 {
		q += " WHERE " + strings.Join(clauses, " AND ")
	}
	q += " ORDER BY created_at"

	var rows []userRow
	if err := repo.db.SelectContext(ctx, &rows, q, args...); err != nil {
		return nil, errors.Wrap(err, "filtering users")
	}
	return users(rows), nil
}

func (repo userRepository) UpdateUser(ctx context.Context, usr user.User, isActive *bool) (user.User, error) {
	q := `
UPDATE "user"
SET name           = COALESCE(NULLIF($2, ''), name),
    email          = COALESCE(NULLIF($3, ''), email),
    roles          = COALESCE($4, roles),
    password_hash  = COALESCE($5, password_hash),
    course         = COALESCE($6, course),
    year           = COALESCE($7, year),
    phone          = COALESCE($8, phone),
    guardian_name  = COALESCE($9, guardian_name),
    guardian_phone = COALESCE($10, guardian_phone),
    is_active      = COALESCE($11, is_active),
    updated_at     = $12
WHERE id = $1
RETURNING ` + userColumns

	var roles interface{}
	if usr.Roles != nil {
		roles = pq.Array(usr.Roles)
	}

	var row userRow
	err := repo.db.GetContext(
		ctx, &row, q,
		usr.ID, usr.Name, usr.Email, roles, usr.PasswordHash, usr.Course, usr.Year,
		usr.Phone, usr.GuardianName, usr.GuardianPhone, isActive, usr.UpdatedAt,
	)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return user.User{}, user.ErrNotFound
		}
		return user.User{}, errors.Wrap(err, "updating user")
	}
	return row.user(), nil
}

func (repo userRepository) UpdateLastLogin(ctx context.Context, id string, t time.Time) error {
	res, err := repo.db.ExecContext(ctx, `UPDATE "user" SET last_login = $2 WHERE id = $1`, id, t)
	if err != nil {
		return errors.Wrap(err, "updating last login")
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return user.ErrNotFound
	}
	return nil
}

func (repo userRepository) DeleteUsersByID(ctx context.Context, ids ...string) error {
	if len(ids) == 0 {
		return nil
	}
	_, err := repo.db.ExecContext(ctx, `DELETE FROM "user" WHERE id = ANY($1)`, pq.Array(ids))
	return errors.Wrap(err, "deleting users")
}
