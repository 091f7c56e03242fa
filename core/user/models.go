package user

import (
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/volatiletech/null/v8"
	"golang.org/x/crypto/bcrypt"

	"github.com/trezcool/nyumbani/core"
)

// Roles
const (
	// Admin
	RoleAdmin      = "admin:"
	RoleAdminOwner = "admin:owner"

	// Student
	RoleStudent = "student:"
)

var (
	AdminRoles   = []string{RoleAdmin, RoleAdminOwner}
	StudentRoles = []string{RoleStudent}
	AllRoles     = getAllRoles()

	rolePriorities = map[string]int{
		// Admins: 20 - 11
		RoleAdminOwner: 20,
		RoleAdmin:      11,

		// Students: 10 - 1
		RoleStudent: 1,
	}

	Roles = []Role{
		{Name: "Student", Value: RoleStudent},
		{Name: "Admin", Value: RoleAdmin},
		{Name: "Admin Owner", Value: RoleAdminOwner},
	}
)

func getAllRoles() []string {
	all := make([]string, 0, 3)
	all = append(all, AdminRoles...)
	all = append(all, StudentRoles...)
	return all
}

func RolePriority(role string) int {
	return rolePriorities[role]
}

func MaxRolePriority(roles []string) int {
	var max int
	for _, role := range roles {
		if RolePriority(role) > max {
			max = RolePriority(role)
		}
	}
	return max
}

type Role struct {
	Name  string `json:"name"`
	Value string `json:"value"`
}

// User is a hostel resident (student) or a staff member (admin).
// RoomID is only ever set/cleared by the room allocation service;
// when set, the referenced room exists and is occupied.
type User struct {
	ID            string      `json:"id"`
	Name          string      `json:"name"`
	Email         string      `json:"email"`
	IsActive      bool        `json:"is_active"`
	Roles         []string    `json:"roles"`
	RoomID        null.String `json:"room_id"`
	Course        null.String `json:"course"`
	Year          null.Int    `json:"year"`
	Phone         null.String `json:"phone"`
	GuardianName  null.String `json:"guardian_name"`
	GuardianPhone null.String `json:"guardian_phone"`
	PasswordHash  []byte      `json:"-"`
	CreatedAt     time.Time   `json:"created_at"` // UTC
	UpdatedAt     time.Time   `json:"updated_at"` // UTC
	LastLogin     time.Time   `json:"last_login"` // UTC
}

func (u *User) SetPassword(pwd string) error {
	hash, err := bcrypt.GenerateFromPassword([]byte(pwd), bcrypt.DefaultCost)
	if err != nil {
		return err
	}
	u.PasswordHash = hash
	return nil
}

func (u *User) CheckPassword(pwd string) error {
	return bcrypt.CompareHashAndPassword(u.PasswordHash, []byte(pwd))
}

func (u *User) RoleStartsWith(prefix string) bool {
	for _, role := range u.Roles {
		if strings.HasPrefix(role, prefix) {
			return true
		}
	}
	return false
}

func (u *User) IsAdmin() bool   { return u.RoleStartsWith(RoleAdmin) }
func (u *User) IsStudent() bool { return u.RoleStartsWith(RoleStudent) }

// Bindings

type NewUser struct {
	Name          string   `json:"name" validate:"required"`
	Email         string   `json:"email" validate:"required,email"`
	Password      string   `json:"password" validate:"required"`
	Roles         []string `json:"roles" validate:"allroles"`
	Course        string   `json:"course"`
	Year          int      `json:"year" validate:"omitempty,min=1,max=6"`
	Phone         string   `json:"phone"`
	GuardianName  string   `json:"guardian_name"`
	GuardianPhone string   `json:"guardian_phone"`
}

func (nu *NewUser) Validate(validate *validator.Validate, svc Service) error {
	nu.Name = core.CleanString(nu.Name)
	nu.Email = core.CleanString(nu.Email, true /* lower */)
	if err := validate.Struct(nu); err != nil {
		return err
	}
	return svc.CheckUniqueness(nu.Email)
}

type UpdateUser struct {
	Name          string   `json:"name"`
	Email         string   `json:"email" validate:"omitempty,email"`
	Password      string   `json:"password"`
	Roles         []string `json:"roles" validate:"omitempty,allroles"`
	IsActive      *bool    `json:"is_active"`
	Course        string   `json:"course"`
	Year          int      `json:"year" validate:"omitempty,min=1,max=6"`
	Phone         string   `json:"phone"`
	GuardianName  string   `json:"guardian_name"`
	GuardianPhone string   `json:"guardian_phone"`
}

func (uu *UpdateUser) Validate(validate *validator.Validate, svc Service, target User) error {
	uu.Name = core.CleanString(uu.Name)
	uu.Email = core.CleanString(uu.Email, true /* lower */)
	if err := validate.Struct(uu); err != nil {
		return err
	}
	if uu.Email != "" && uu.Email != target.Email {
		return svc.CheckUniqueness(uu.Email, target)
	}
	return nil
}

type ResetUserPassword struct {
	UID             string `json:"uid" validate:"required"`
	Token           string `json:"token" validate:"required"`
	Password        string `json:"password" validate:"required"`
	PasswordConfirm string `json:"password_confirm" validate:"required,eqfield=Password"`
}

func (rp *ResetUserPassword) Validate(validate *validator.Validate) error {
	return validate.Struct(rp)
}

// QueryFilter applies an AND operation on its set fields.
// Search does a case-insensitive match on one of User.Name or User.Email.
type QueryFilter struct {
	Search   string
	Role     string
	IsActive *bool
	RoomID   string
}
