package echoapi_test

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/go-playground/locales/en"
	ut "github.com/go-playground/universal-translator"
	"github.com/go-playground/validator/v10"
	"github.com/labstack/echo/v4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	. "github.com/trezcool/nyumbani/apps/api/echo"
	"github.com/trezcool/nyumbani/core"
	"github.com/trezcool/nyumbani/core/complaint"
	"github.com/trezcool/nyumbani/core/fee"
	"github.com/trezcool/nyumbani/core/notification"
	"github.com/trezcool/nyumbani/core/room"
	"github.com/trezcool/nyumbani/core/user"
	emailsvc "github.com/trezcool/nyumbani/services/email"
	dummydb "github.com/trezcool/nyumbani/storage/database/dummy"
)

type noopLogger struct{}

func (noopLogger) Debug(msg string, args ...interface{}) {}
func (noopLogger) Info(msg string, args ...interface{})  {}
func (noopLogger) Warn(msg string, args ...interface{})  {}
func (noopLogger) Error(msg string, args ...interface{}) {}
func (noopLogger) Fatal(msg string, args ...interface{}) {}

type testApp struct {
	server  Server
	usrSvc  user.Service
	roomSvc *room.Service
}

func setup(t *testing.T) testApp {
	t.Helper()

	db, err := dummydb.Open()
	require.NoError(t, err)

	conf := core.NewConfig()
	conf.Debug = false
	conf.TestMode = true

	mailSvc := emailsvc.NewConsoleServiceMock(conf)
	usrSvc := user.NewServiceMock(dummydb.NewUserRepository(db), mailSvc, conf)
	notifSvc := notification.NewService(dummydb.NewNotificationRepository(db), nil)
	roomSvc := room.NewService(dummydb.NewRoomRepository(db), notifSvc, nil)
	feeSvc := fee.NewService(dummydb.NewFeeRepository(db), notifSvc, mailSvc, nil)
	complaintSvc := complaint.NewService(dummydb.NewComplaintRepository(db), notifSvc, nil)

	validate := validator.New()
	translator := newTranslator()
	core.InitValidators(validate, translator)
	user.InitValidators(validate, translator)

	server := NewServer(ServerDeps{
		Conf:            conf,
		Logger:          noopLogger{},
		UserSvc:         usrSvc,
		RoomSvc:         roomSvc,
		FeeSvc:          feeSvc,
		ComplaintSvc:    complaintSvc,
		NotificationSvc: notifSvc,
		Validate:        validate,
		Translator:      translator,
		DisableReqLogs:  true,
	})
	return testApp{server: server, usrSvc: usrSvc, roomSvc: roomSvc}
}

func newTranslator() ut.Translator {
	_en := en.New()
	uni := ut.New(_en, _en)
	translator, _ := uni.GetTranslator("en")
	return translator
}

func (app testApp) do(t *testing.T, method, path, token string, body interface{}) *httptest.ResponseRecorder {
	t.Helper()

	var buff bytes.Buffer
	if body != nil {
		require.NoError(t, json.NewEncoder(&buff).Encode(body))
	}
	req := httptest.NewRequest(method, path, &buff)
	req.Header.Set("Content-Type", "application/json")
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	rec := httptest.NewRecorder()
	app.server.ServeHTTP(rec, req)
	return rec
}

func (app testApp) createUser(t *testing.T, name, email string, roles []string) (user.User, string) {
	t.Helper()

	usr, err := app.usrSvc.Create(context.Background(), user.NewUser{
		Name:     name,
		Email:    email,
		Password: "Secret@2021",
		Roles:    roles,
	})
	require.NoError(t, err)
	token, err := GenerateToken(GetUserClaims(usr))
	require.NoError(t, err)
	return usr, token
}

func decode(t *testing.T, rec *httptest.ResponseRecorder, v interface{}) {
	t.Helper()
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), v))
}

func TestAPI_home(t *testing.T) {
	app := setup(t)
	rec := app.do(t, http.MethodGet, "/", "", nil)
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "Karibu Nyumbani API!", rec.Body.String())
}

func TestAPI_auth(t *testing.T) {
	app := setup(t)
	_, _ = app.createUser(t, "Ben", "ben@test.cd", nil)

	// unauthenticated access is rejected
	rec := app.do(t, http.MethodGet, "/v1/rooms/available", "", nil)
	assert.Equal(t, http.StatusUnauthorized, rec.Code)

	// bad credentials
	rec = app.do(t, http.MethodPost, "/v1/users/login", "", echo.Map{"email": "ben@test.cd", "password": "nope"})
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	// good credentials yield a working token
	rec = app.do(t, http.MethodPost, "/v1/users/login", "", echo.Map{"email": "ben@test.cd", "password": "Secret@2021"})
	require.Equal(t, http.StatusOK, rec.Code)
	var login LoginResponse
	decode(t, rec, &login)
	require.NotEmpty(t, login.Token)

	rec = app.do(t, http.MethodGet, "/v1/rooms/available", login.Token, nil)
	assert.Equal(t, http.StatusOK, rec.Code)
}

func TestAPI_adminOnly(t *testing.T) {
	app := setup(t)
	_, studentToken := app.createUser(t, "Ben", "ben@test.cd", nil)

	for _, path := range []string{"/v1/rooms", "/v1/room-requests", "/v1/users"} {
		rec := app.do(t, http.MethodGet, path, studentToken, nil)
		assert.Equal(t, http.StatusForbidden, rec.Code, path)
	}
}

func TestAPI_roomRequestFlow(t *testing.T) {
	app := setup(t)
	ctx := context.Background()

	_, adminToken := app.createUser(t, "Warden", "warden@test.cd", user.AdminRoles)
	student, studentToken := app.createUser(t, "Ben", "ben@test.cd", nil)

	// admin registers a room
	rec := app.do(t, http.MethodPost, "/v1/rooms", adminToken, echo.Map{
		"number": "A-101", "type": "single", "capacity": 1, "floor": 1,
	})
	require.Equal(t, http.StatusCreated, rec.Code)
	var rm room.Room
	decode(t, rec, &rm)

	// duplicate number is a validation error
	rec = app.do(t, http.MethodPost, "/v1/rooms", adminToken, echo.Map{
		"number": "A-101", "type": "single", "capacity": 1,
	})
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	// student requests the room
	rec = app.do(t, http.MethodPost, "/v1/room-requests", studentToken, echo.Map{"room_id": rm.ID})
	require.Equal(t, http.StatusCreated, rec.Code)
	var req room.RoomRequest
	decode(t, rec, &req)
	assert.Equal(t, room.RequestPending, req.Status)

	// a second request conflicts
	rec = app.do(t, http.MethodPost, "/v1/room-requests", studentToken, echo.Map{"room_id": rm.ID})
	assert.Equal(t, http.StatusConflict, rec.Code)

	// admin approves
	rec = app.do(t, http.MethodPost, "/v1/room-requests/"+req.ID+"/approve", adminToken, nil)
	require.Equal(t, http.StatusOK, rec.Code)

	// approving again conflicts
	rec = app.do(t, http.MethodPost, "/v1/room-requests/"+req.ID+"/approve", adminToken, nil)
	assert.Equal(t, http.StatusConflict, rec.Code)

	// the student's feed carries the assignment notification
	rec = app.do(t, http.MethodGet, "/v1/notifications", studentToken, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	var feed []notification.Notification
	decode(t, rec, &feed)
	require.NotEmpty(t, feed)
	assert.Equal(t, "Room assigned", feed[0].Title)

	// release through the admin endpoint
	rec = app.do(t, http.MethodPost, "/v1/rooms/release", adminToken, echo.Map{"student_id": student.ID})
	assert.Equal(t, http.StatusNoContent, rec.Code)
	rm2, err := app.roomSvc.GetByID(ctx, rm.ID)
	require.NoError(t, err)
	assert.Equal(t, room.StatusAvailable, rm2.Status)
}

func TestAPI_feeFlow(t *testing.T) {
	app := setup(t)

	_, adminToken := app.createUser(t, "Warden", "warden@test.cd", user.AdminRoles)
	student, studentToken := app.createUser(t, "Ben", "ben@test.cd", nil)

	due := time.Now().UTC().Add(-24 * time.Hour)
	rec := app.do(t, http.MethodPost, "/v1/fees", adminToken, echo.Map{
		"student_id": student.ID, "amount": 50000, "due_date": due.Format(time.RFC3339),
	})
	require.Equal(t, http.StatusCreated, rec.Code)
	var f fee.Fee
	decode(t, rec, &f)

	// students see their own fees, flagged overdue past the due date
	rec = app.do(t, http.MethodGet, "/v1/fees", studentToken, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	var fees []struct {
		fee.Fee
		DisplayStatus string `json:"display_status"`
	}
	decode(t, rec, &fees)
	require.Len(t, fees, 1)
	assert.Equal(t, fee.StatusOverdue, fees[0].DisplayStatus)

	// students cannot settle fees
	rec = app.do(t, http.MethodPost, "/v1/fees/"+f.ID+"/pay", studentToken, nil)
	assert.Equal(t, http.StatusForbidden, rec.Code)

	rec = app.do(t, http.MethodPost, "/v1/fees/"+f.ID+"/pay", adminToken, echo.Map{"method": "mpesa"})
	require.Equal(t, http.StatusOK, rec.Code)

	// settling twice conflicts
	rec = app.do(t, http.MethodPost, "/v1/fees/"+f.ID+"/pay", adminToken, nil)
	assert.Equal(t, http.StatusConflict, rec.Code)

	// totals moved to the paid bucket
	rec = app.do(t, http.MethodGet, "/v1/fees/totals", studentToken, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	var totals fee.Totals
	decode(t, rec, &totals)
	assert.Equal(t, fee.Totals{Paid: 50000}, totals)

	// unknown fee
	rec = app.do(t, http.MethodGet, "/v1/fees/nope", adminToken, nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestAPI_complaintFlow(t *testing.T) {
	app := setup(t)

	_, adminToken := app.createUser(t, "Warden", "warden@test.cd", user.AdminRoles)
	_, studentToken := app.createUser(t, "Ben", "ben@test.cd", nil)

	rec := app.do(t, http.MethodPost, "/v1/complaints", studentToken, echo.Map{
		"title": "Leaking tap", "description": "Water everywhere.", "priority": "medium",
	})
	require.Equal(t, http.StatusCreated, rec.Code)
	var c complaint.Complaint
	decode(t, rec, &c)

	// only students file complaints
	rec = app.do(t, http.MethodPost, "/v1/complaints", adminToken, echo.Map{
		"title": "x", "description": "y", "priority": "low",
	})
	assert.Equal(t, http.StatusForbidden, rec.Code)

	rec = app.do(t, http.MethodPost, "/v1/complaints/"+c.ID+"/assign", adminToken, echo.Map{"assignee": "Mr. Fixit"})
	require.Equal(t, http.StatusOK, rec.Code)

	rec = app.do(t, http.MethodPost, "/v1/complaints/"+c.ID+"/resolve", adminToken, echo.Map{"response": "Fixed."})
	require.Equal(t, http.StatusOK, rec.Code)

	// resolved is terminal
	rec = app.do(t, http.MethodPost, "/v1/complaints/"+c.ID+"/resolve", adminToken, nil)
	assert.Equal(t, http.StatusConflict, rec.Code)
	rec = app.do(t, http.MethodPut, "/v1/complaints/"+c.ID+"/priority", adminToken, echo.Map{"priority": "high"})
	assert.Equal(t, http.StatusConflict, rec.Code)
}

func TestAPI_notifications(t *testing.T) {
	app := setup(t)

	_, adminToken := app.createUser(t, "Warden", "warden@test.cd", user.AdminRoles)
	_, studentToken := app.createUser(t, "Ben", "ben@test.cd", nil)

	rec := app.do(t, http.MethodPost, "/v1/notifications", adminToken, echo.Map{
		"title": "Water outage", "message": "No water on Friday.", "type": "warning", "target": "all",
	})
	require.Equal(t, http.StatusCreated, rec.Code)

	rec = app.do(t, http.MethodGet, "/v1/notifications", studentToken, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	var feed []notification.Notification
	decode(t, rec, &feed)
	require.Len(t, feed, 1)
	assert.False(t, feed[0].Read)

	rec = app.do(t, http.MethodPost, "/v1/notifications/read-all", studentToken, nil)
	require.Equal(t, http.StatusNoContent, rec.Code)

	rec = app.do(t, http.MethodGet, "/v1/notifications", studentToken, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	decode(t, rec, &feed)
	require.Len(t, feed, 1)
	assert.True(t, feed[0].Read)

	// students cannot publish
	rec = app.do(t, http.MethodPost, "/v1/notifications", studentToken, echo.Map{
		"title": "x", "message": "y", "type": "info", "target": "all",
	})
	assert.Equal(t, http.StatusForbidden, rec.Code)
}
