package echoapi

import (
	"net/http"

	"github.com/go-playground/validator/v10"
	"github.com/labstack/echo/v4"
	"github.com/pkg/errors"

	"github.com/trezcool/nyumbani/core"
	"github.com/trezcool/nyumbani/core/complaint"
	"github.com/trezcool/nyumbani/core/user"
)

type complaintApi struct {
	svc      *complaint.Service
	usrSvc   user.Service
	validate *validator.Validate
}

func registerComplaintAPI(g *echo.Group, jwt echo.MiddlewareFunc, svc *complaint.Service, usrSvc user.Service, validate *validator.Validate) {
	api := complaintApi{svc: svc, usrSvc: usrSvc, validate: validate}

	cg := g.Group("/complaints", jwt)
	cg.POST("", api.file)
	cg.GET("", api.query)
	cg.GET("/:id", api.retrieve)
	cg.POST("/:id/assign", api.assign, adminMiddleware())
	cg.PUT("/:id/priority", api.setPriority, adminMiddleware())
	cg.POST("/:id/resolve", api.resolve, adminMiddleware())
}

// Handlers

func (api *complaintApi) file(ctx echo.Context) error {
	ctxUsr, err := getContextUser(ctx, api.usrSvc)
	if err != nil {
		return errors.Wrap(err, "getting context user")
	}
	if !ctxUsr.IsStudent() {
		return errHttpForbidden
	}

	var data complaint.NewComplaint
	if err = ctx.Bind(&data); err != nil {
		return errors.Wrap(err, "binding to NewComplaint")
	}
	if err = data.Validate(api.validate); err != nil {
		return err
	}

	c, err := api.svc.File(ctx.Request().Context(), ctxUsr.ID, data)
	if err != nil {
		return err
	}
	return ctx.JSON(http.StatusCreated, c)
}

// query returns the triage queue for admins (high priority first, newest
// first within a rank) and the caller's own complaints for students.
func (api *complaintApi) query(ctx echo.Context) error {
	ctxUsr, err := getContextUser(ctx, api.usrSvc)
	if err != nil {
		return errors.Wrap(err, "getting context user")
	}

	var complaints []complaint.Complaint
	if ctxUsr.IsAdmin() {
		complaints, err = api.svc.Queue(ctx.Request().Context())
	} else {
		complaints, err = api.svc.QueryByStudent(ctx.Request().Context(), ctxUsr.ID)
	}
	if err != nil {
		return errors.Wrap(err, "querying complaints")
	}
	if complaints == nil {
		complaints = []complaint.Complaint{}
	}
	return ctx.JSON(http.StatusOK, complaints)
}

func (api *complaintApi) retrieve(ctx echo.Context) error {
	c, err := api.svc.GetByID(ctx.Request().Context(), ctx.Param("id"))
	if err != nil {
		return err
	}

	ctxUsr, err := getContextUser(ctx, api.usrSvc)
	if err != nil {
		return errors.Wrap(err, "getting context user")
	}
	if !ctxUsr.IsAdmin() && c.StudentID != ctxUsr.ID {
		return errHttpNotFound
	}
	return ctx.JSON(http.StatusOK, c)
}

func (api *complaintApi) assign(ctx echo.Context) error {
	var data AssignComplaintRequest
	if err := ctx.Bind(&data); err != nil {
		return errors.Wrap(err, "binding to AssignComplaintRequest")
	}
	if err := data.Validate(api.validate); err != nil {
		return err
	}

	c, err := api.svc.Assign(ctx.Request().Context(), ctx.Param("id"), data.Assignee)
	if err != nil {
		return err
	}
	return ctx.JSON(http.StatusOK, c)
}

func (api *complaintApi) setPriority(ctx echo.Context) error {
	var data SetPriorityRequest
	if err := ctx.Bind(&data); err != nil {
		return errors.Wrap(err, "binding to SetPriorityRequest")
	}
	if err := data.Validate(api.validate); err != nil {
		return err
	}

	c, err := api.svc.SetPriority(ctx.Request().Context(), ctx.Param("id"), data.Priority)
	if err != nil {
		return err
	}
	return ctx.JSON(http.StatusOK, c)
}

func (api *complaintApi) resolve(ctx echo.Context) error {
	var data ResolveRequest
	if err := ctx.Bind(&data); err != nil {
		return errors.Wrap(err, "binding to ResolveRequest")
	}

	c, err := api.svc.Resolve(ctx.Request().Context(), ctx.Param("id"), core.CleanString(data.Response))
	if err != nil {
		return err
	}
	return ctx.JSON(http.StatusOK, c)
}

type (
	AssignComplaintRequest struct {
		Assignee string `json:"assignee" validate:"required"`
	}

	SetPriorityRequest struct {
		Priority string `json:"priority" validate:"required,oneof=low medium high"`
	}

	ResolveRequest struct {
		Response string `json:"response"`
	}
)

func (ar *AssignComplaintRequest) Validate(validate *validator.Validate) error {
	ar.Assignee = core.CleanString(ar.Assignee)
	return validate.Struct(ar)
}

func (sp *SetPriorityRequest) Validate(validate *validator.Validate) error {
	sp.Priority = core.CleanString(sp.Priority, true /* lower */)
	return validate.Struct(sp)
}
