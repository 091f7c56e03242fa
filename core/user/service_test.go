package user_test

import (
	"context"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/volatiletech/null/v8"

	"github.com/trezcool/nyumbani/core"
	"github.com/trezcool/nyumbani/core/user"
	emailsvc "github.com/trezcool/nyumbani/services/email"
	dummydb "github.com/trezcool/nyumbani/storage/database/dummy"
)

func setup(t *testing.T) (user.Service, user.Repository) {
	t.Helper()

	db, err := dummydb.Open()
	require.NoError(t, err)

	emailsvc.SentMessages = emailsvc.SentMessages[:0]
	conf := core.NewConfig()
	repo := dummydb.NewUserRepository(db)
	return user.NewServiceMock(repo, emailsvc.NewConsoleServiceMock(conf), conf), repo
}

func TestService_Register(t *testing.T) {
	svc, _ := setup(t)
	ctx := context.Background()

	usr, err := svc.Register(ctx, user.NewUser{
		Name:     "Ben Kab",
		Email:    "ben@test.cd",
		Password: "LeBron@2021",
		Roles:    []string{"admin:"}, // self-registration never grants roles
	})
	require.NoError(t, err)
	assert.Equal(t, user.StudentRoles, usr.Roles)
	assert.True(t, usr.IsActive)
	assert.False(t, usr.RoomID.Valid)
	require.NoError(t, usr.CheckPassword("LeBron@2021"))

	// welcome email goes out
	require.Len(t, emailsvc.SentMessages, 1)
	assert.Contains(t, emailsvc.SentMessages[0].Subject, "Welcome")
	assert.Equal(t, "ben@test.cd", emailsvc.SentMessages[0].To[0].Address)
}

func TestService_Create(t *testing.T) {
	svc, _ := setup(t)
	ctx := context.Background()

	usr, err := svc.Create(ctx, user.NewUser{
		Name:     "Warden",
		Email:    "warden@test.cd",
		Password: "Secret@2021",
		Roles:    user.AllRoles,
	})
	require.NoError(t, err)
	assert.True(t, usr.IsAdmin())

	// roles default to student when omitted
	usr, err = svc.Create(ctx, user.NewUser{Name: "Eli", Email: "eli@test.cd", Password: "Secret@2021"})
	require.NoError(t, err)
	assert.Equal(t, user.StudentRoles, usr.Roles)
}

func TestService_CheckUniqueness(t *testing.T) {
	svc, _ := setup(t)
	ctx := context.Background()

	usr, err := svc.Register(ctx, user.NewUser{Name: "Ben", Email: "ben@test.cd", Password: "Secret@2021"})
	require.NoError(t, err)

	err = svc.CheckUniqueness("ben@test.cd")
	var vErr *core.ValidationError
	require.ErrorAs(t, err, &vErr)

	assert.NoError(t, svc.CheckUniqueness("ben@test.cd", usr)) // excluded
	assert.NoError(t, svc.CheckUniqueness("new@test.cd"))
}

func TestService_Update(t *testing.T) {
	svc, _ := setup(t)
	ctx := context.Background()

	usr, err := svc.Register(ctx, user.NewUser{Name: "Ben", Email: "ben@test.cd", Password: "Secret@2021"})
	require.NoError(t, err)

	inactive := false
	got, err := svc.Update(ctx, usr.ID, user.UpdateUser{
		Name:     "Ben Kab",
		Course:   "CS",
		Year:     2,
		IsActive: &inactive,
	})
	require.NoError(t, err)
	assert.Equal(t, "Ben Kab", got.Name)
	assert.Equal(t, "CS", got.Course.String)
	assert.Equal(t, 2, got.Year.Int)
	assert.False(t, got.IsActive)
	assert.Equal(t, "ben@test.cd", got.Email) // untouched

	_, err = svc.Update(ctx, "nope", user.UpdateUser{Name: "X"})
	assert.Equal(t, user.ErrNotFound, err)
}

func TestService_Delete(t *testing.T) {
	db, err := dummydb.Open()
	require.NoError(t, err)
	conf := core.NewConfig()
	repo := dummydb.NewUserRepository(db)
	roomRepo := dummydb.NewRoomRepository(db)
	svc := user.NewServiceMock(repo, emailsvc.NewConsoleServiceMock(conf), conf)
	ctx := context.Background()

	housed, err := svc.Register(ctx, user.NewUser{Name: "Ben", Email: "ben@test.cd", Password: "Secret@2021"})
	require.NoError(t, err)
	roomless, err := svc.Register(ctx, user.NewUser{Name: "Eli", Email: "eli@test.cd", Password: "Secret@2021"})
	require.NoError(t, err)

	require.NoError(t, roomRepo.SetStudentRoom(ctx, housed.ID, null.StringFrom("room-1")))

	// a student still holding a room cannot be deleted
	assert.Equal(t, user.ErrRoomStillHeld, svc.Delete(ctx, housed.ID))
	_, err = repo.GetUserByID(ctx, housed.ID)
	require.NoError(t, err)

	assert.NoError(t, svc.Delete(ctx, roomless.ID))
	_, err = repo.GetUserByID(ctx, roomless.ID)
	assert.Equal(t, user.ErrNotFound, err)

	// unknown ids are skipped, not an error
	assert.NoError(t, svc.Delete(ctx, "nope"))
}

func TestService_PasswordResetFlow(t *testing.T) {
	svc, _ := setup(t)
	ctx := context.Background()

	usr, err := svc.Register(ctx, user.NewUser{Name: "Ben", Email: "ben@test.cd", Password: "Secret@2021"})
	require.NoError(t, err)
	emailsvc.SentMessages = emailsvc.SentMessages[:0]

	assert.Equal(t, user.ErrNotFound, svc.RequestPasswordReset(ctx, "nope@test.cd"))
	require.NoError(t, svc.RequestPasswordReset(ctx, "Ben@Test.cd")) // email lookup is case-insensitive

	require.Len(t, emailsvc.SentMessages, 1)
	body := emailsvc.SentMessages[0].TextContent
	var uid, token string
	for _, field := range strings.Fields(body) {
		if strings.HasPrefix(field, "uid=") {
			uid = strings.TrimPrefix(field, "uid=")
		}
		if strings.HasPrefix(field, "token=") {
			token = strings.TrimPrefix(field, "token=")
		}
	}
	require.NotEmpty(t, uid)
	require.NotEmpty(t, token)

	require.NoError(t, svc.ResetPassword(ctx, user.ResetUserPassword{UID: uid, Token: token, Password: "NewSecret@2021"}))

	got, err := svc.GetByID(ctx, usr.ID)
	require.NoError(t, err)
	assert.NoError(t, got.CheckPassword("NewSecret@2021"))
	assert.Error(t, got.CheckPassword("Secret@2021"))

	// a used token is dead: the hash change invalidates it
	err = svc.ResetPassword(ctx, user.ResetUserPassword{UID: uid, Token: token, Password: "Another@2021"})
	assert.Error(t, err)
}
