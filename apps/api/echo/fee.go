package echoapi

import (
	"net/http"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/labstack/echo/v4"
	"github.com/pkg/errors"

	"github.com/trezcool/nyumbani/core"
	"github.com/trezcool/nyumbani/core/fee"
	"github.com/trezcool/nyumbani/core/user"
)

type feeApi struct {
	svc      *fee.Service
	usrSvc   user.Service
	validate *validator.Validate
}

func registerFeeAPI(g *echo.Group, jwt echo.MiddlewareFunc, svc *fee.Service, usrSvc user.Service, validate *validator.Validate) {
	api := feeApi{svc: svc, usrSvc: usrSvc, validate: validate}

	fg := g.Group("/fees", jwt)
	fg.POST("", api.create, adminMiddleware())
	fg.GET("", api.query)
	fg.GET("/totals", api.totals)
	fg.POST("/reminders", api.remind, adminMiddleware())
	fg.GET("/:id", api.retrieve)
	fg.POST("/:id/pay", api.markPaid, adminMiddleware())
}

// Handlers

func (api *feeApi) create(ctx echo.Context) error {
	var data fee.NewFee
	if err := ctx.Bind(&data); err != nil {
		return errors.Wrap(err, "binding to NewFee")
	}
	if err := data.Validate(api.validate); err != nil {
		return err
	}

	f, err := api.svc.Create(ctx.Request().Context(), data)
	if err != nil {
		return err
	}
	return ctx.JSON(http.StatusCreated, f)
}

// query lists all fees for admins and the caller's own fees for students.
// Each fee is rendered with its display status so overdue shows through.
func (api *feeApi) query(ctx echo.Context) error {
	ctxUsr, err := getContextUser(ctx, api.usrSvc)
	if err != nil {
		return errors.Wrap(err, "getting context user")
	}

	var fees []fee.Fee
	if ctxUsr.IsAdmin() {
		if studentID := ctx.QueryParam("student_id"); studentID != "" {
			fees, err = api.svc.QueryByStudent(ctx.Request().Context(), studentID)
		} else {
			fees, err = api.svc.QueryAll(ctx.Request().Context())
		}
	} else {
		fees, err = api.svc.QueryByStudent(ctx.Request().Context(), ctxUsr.ID)
	}
	if err != nil {
		return errors.Wrap(err, "querying fees")
	}

	res := make([]FeeResponse, 0, len(fees))
	for _, f := range fees {
		res = append(res, newFeeResponse(f))
	}
	return ctx.JSON(http.StatusOK, res)
}

func (api *feeApi) retrieve(ctx echo.Context) error {
	f, err := api.svc.GetByID(ctx.Request().Context(), ctx.Param("id"))
	if err != nil {
		return err
	}

	ctxUsr, err := getContextUser(ctx, api.usrSvc)
	if err != nil {
		return errors.Wrap(err, "getting context user")
	}
	if !ctxUsr.IsAdmin() && f.StudentID != ctxUsr.ID {
		return errHttpNotFound
	}
	return ctx.JSON(http.StatusOK, newFeeResponse(f))
}

func (api *feeApi) totals(ctx echo.Context) error {
	ctxUsr, err := getContextUser(ctx, api.usrSvc)
	if err != nil {
		return errors.Wrap(err, "getting context user")
	}

	studentID := ctxUsr.ID
	if ctxUsr.IsAdmin() {
		studentID = ctx.QueryParam("student_id") // empty means system-wide
	}

	totals, err := api.svc.TotalsByStatus(ctx.Request().Context(), studentID)
	if err != nil {
		return err
	}
	return ctx.JSON(http.StatusOK, totals)
}

func (api *feeApi) markPaid(ctx echo.Context) error {
	var data fee.PaymentDetails
	if err := ctx.Bind(&data); err != nil {
		return errors.Wrap(err, "binding to PaymentDetails")
	}

	f, err := api.svc.MarkPaid(ctx.Request().Context(), ctx.Param("id"), data)
	if err != nil {
		return err
	}
	return ctx.JSON(http.StatusOK, newFeeResponse(f))
}

func (api *feeApi) remind(ctx echo.Context) error {
	var data ReminderRequest
	if err := ctx.Bind(&data); err != nil {
		return errors.Wrap(err, "binding to ReminderRequest")
	}
	if err := data.Validate(api.validate); err != nil {
		return err
	}

	if data.StudentID != "" {
		if err := api.svc.SendReminder(ctx.Request().Context(), data.StudentID, data.Message); err != nil {
			return err
		}
		return ctx.JSON(http.StatusOK, ReminderResponse{Reminded: 1})
	}

	count, err := api.svc.SendMassReminder(ctx.Request().Context(), data.Message)
	if err != nil {
		return err
	}
	return ctx.JSON(http.StatusOK, ReminderResponse{Reminded: count})
}

type (
	// FeeResponse decorates a fee with its derived display status.
	FeeResponse struct {
		fee.Fee
		DisplayStatus string `json:"display_status"`
	}

	ReminderRequest struct {
		StudentID string `json:"student_id"`
		Message   string `json:"message" validate:"required"`
	}

	ReminderResponse struct {
		Reminded int `json:"reminded"`
	}
)

func newFeeResponse(f fee.Fee) FeeResponse {
	return FeeResponse{Fee: f, DisplayStatus: fee.DisplayStatus(f, time.Now())}
}

func (rr *ReminderRequest) Validate(validate *validator.Validate) error {
	rr.StudentID = core.CleanString(rr.StudentID)
	rr.Message = core.CleanString(rr.Message)
	return validate.Struct(rr)
}
