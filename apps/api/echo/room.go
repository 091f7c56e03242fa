package echoapi

import (
	"net/http"
	"strconv"

	"github.com/go-playground/validator/v10"
	"github.com/labstack/echo/v4"
	"github.com/pkg/errors"

	"github.com/trezcool/nyumbani/core"
	"github.com/trezcool/nyumbani/core/room"
	"github.com/trezcool/nyumbani/core/user"
)

type roomApi struct {
	svc      *room.Service
	usrSvc   user.Service
	validate *validator.Validate
}

func registerRoomAPI(g *echo.Group, jwt echo.MiddlewareFunc, svc *room.Service, usrSvc user.Service, validate *validator.Validate) {
	api := roomApi{svc: svc, usrSvc: usrSvc, validate: validate}

	rg := g.Group("/rooms", jwt)
	rg.GET("", api.query, adminMiddleware())
	rg.POST("", api.create, adminMiddleware())
	rg.GET("/available", api.queryAvailable)
	rg.POST("/release", api.release, adminMiddleware())
	rg.GET("/:id", api.retrieve)
	rg.PUT("/:id", api.update, adminMiddleware())
	rg.DELETE("/:id", api.destroy, adminMiddleware())
	rg.POST("/:id/assign", api.assign, adminMiddleware())

	qg := g.Group("/room-requests", jwt)
	qg.POST("", api.request)
	qg.GET("", api.queryRequests, adminMiddleware())
	qg.POST("/:id/approve", api.approveRequest, adminMiddleware())
	qg.POST("/:id/reject", api.rejectRequest, adminMiddleware())
}

// Handlers

func (api *roomApi) create(ctx echo.Context) error {
	var data room.NewRoom
	if err := ctx.Bind(&data); err != nil {
		return errors.Wrap(err, "binding to NewRoom")
	}
	if err := data.Validate(api.validate, api.svc); err != nil {
		return err
	}

	rm, err := api.svc.Create(ctx.Request().Context(), data)
	if err != nil {
		return errors.Wrap(err, "creating room")
	}
	return ctx.JSON(http.StatusCreated, rm)
}

func (api *roomApi) query(ctx echo.Context) error {
	filter := room.QueryFilter{
		Status: core.CleanString(ctx.QueryParam("status"), true /* lower */),
		Type:   core.CleanString(ctx.QueryParam("type"), true /* lower */),
		Block:  core.CleanString(ctx.QueryParam("block")),
	}
	if val := ctx.QueryParam("floor"); val != "" {
		floor, err := strconv.Atoi(val)
		if err != nil {
			return core.NewValidationError(nil, core.FieldError{Field: "floor", Error: "invalid value"})
		}
		filter.Floor = &floor
	}

	rooms, err := api.svc.Filter(ctx.Request().Context(), filter)
	if err != nil {
		return errors.Wrap(err, "querying rooms")
	}
	if rooms == nil {
		rooms = []room.Room{}
	}
	return ctx.JSON(http.StatusOK, rooms)
}

func (api *roomApi) queryAvailable(ctx echo.Context) error {
	rooms, err := api.svc.Available(ctx.Request().Context())
	if err != nil {
		return errors.Wrap(err, "querying available rooms")
	}
	if rooms == nil {
		rooms = []room.Room{}
	}
	return ctx.JSON(http.StatusOK, rooms)
}

func (api *roomApi) retrieve(ctx echo.Context) error {
	rm, err := api.svc.GetByID(ctx.Request().Context(), ctx.Param("id"))
	if err != nil {
		return err
	}
	return ctx.JSON(http.StatusOK, rm)
}

func (api *roomApi) update(ctx echo.Context) error {
	rm, err := api.svc.GetByID(ctx.Request().Context(), ctx.Param("id"))
	if err != nil {
		return err
	}

	var data room.UpdateRoom
	if err = ctx.Bind(&data); err != nil {
		return errors.Wrap(err, "binding to UpdateRoom")
	}
	if err = data.Validate(api.validate, api.svc, rm); err != nil {
		return err
	}

	rm, err = api.svc.Update(ctx.Request().Context(), rm.ID, data)
	if err != nil {
		return err
	}
	return ctx.JSON(http.StatusOK, rm)
}

func (api *roomApi) destroy(ctx echo.Context) error {
	if err := api.svc.Delete(ctx.Request().Context(), ctx.Param("id")); err != nil {
		return err
	}
	return ctx.NoContent(http.StatusNoContent)
}

func (api *roomApi) assign(ctx echo.Context) error {
	var data StudentRequest
	if err := ctx.Bind(&data); err != nil {
		return errors.Wrap(err, "binding to StudentRequest")
	}
	if err := data.Validate(api.validate); err != nil {
		return err
	}

	if err := api.svc.AssignDirect(ctx.Request().Context(), data.StudentID, ctx.Param("id")); err != nil {
		return err
	}
	return ctx.NoContent(http.StatusNoContent)
}

func (api *roomApi) release(ctx echo.Context) error {
	var data StudentRequest
	if err := ctx.Bind(&data); err != nil {
		return errors.Wrap(err, "binding to StudentRequest")
	}
	if err := data.Validate(api.validate); err != nil {
		return err
	}

	if err := api.svc.Release(ctx.Request().Context(), data.StudentID); err != nil {
		return err
	}
	return ctx.NoContent(http.StatusNoContent)
}

func (api *roomApi) request(ctx echo.Context) error {
	ctxUsr, err := getContextUser(ctx, api.usrSvc)
	if err != nil {
		return errors.Wrap(err, "getting context user")
	}
	if !ctxUsr.IsStudent() {
		return errHttpForbidden
	}

	var data RoomRequestRequest
	if err = ctx.Bind(&data); err != nil {
		return errors.Wrap(err, "binding to RoomRequestRequest")
	}
	if err = data.Validate(api.validate); err != nil {
		return err
	}

	req, err := api.svc.Request(ctx.Request().Context(), ctxUsr.ID, data.RoomID)
	if err != nil {
		return err
	}
	return ctx.JSON(http.StatusCreated, req)
}

func (api *roomApi) queryRequests(ctx echo.Context) error {
	reqs, err := api.svc.PendingRequests(ctx.Request().Context())
	if err != nil {
		return errors.Wrap(err, "querying room requests")
	}
	if reqs == nil {
		reqs = []room.RoomRequest{}
	}
	return ctx.JSON(http.StatusOK, reqs)
}

func (api *roomApi) approveRequest(ctx echo.Context) error {
	ctxUsr, err := getContextUser(ctx, api.usrSvc)
	if err != nil {
		return errors.Wrap(err, "getting context user")
	}

	req, err := api.svc.Approve(ctx.Request().Context(), ctx.Param("id"), ctxUsr.ID)
	if err != nil {
		return err
	}
	return ctx.JSON(http.StatusOK, req)
}

func (api *roomApi) rejectRequest(ctx echo.Context) error {
	ctxUsr, err := getContextUser(ctx, api.usrSvc)
	if err != nil {
		return errors.Wrap(err, "getting context user")
	}

	req, err := api.svc.Reject(ctx.Request().Context(), ctx.Param("id"), ctxUsr.ID)
	if err != nil {
		return err
	}
	return ctx.JSON(http.StatusOK, req)
}

type (
	StudentRequest struct {
		StudentID string `json:"student_id" validate:"required"`
	}

	RoomRequestRequest struct {
		RoomID string `json:"room_id" validate:"required"`
	}
)

func (sr *StudentRequest) Validate(validate *validator.Validate) error {
	sr.StudentID = core.CleanString(sr.StudentID)
	return validate.Struct(sr)
}

func (rr *RoomRequestRequest) Validate(validate *validator.Validate) error {
	rr.RoomID = core.CleanString(rr.RoomID)
	return validate.Struct(rr)
}
