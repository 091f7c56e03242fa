package echoapi

import (
	"encoding/json"
	"fmt"
	"net/http"

	"github.com/go-playground/validator/v10"
	"github.com/labstack/echo/v4"
	"github.com/pkg/errors"

	"github.com/trezcool/nyumbani/core/notification"
	"github.com/trezcool/nyumbani/core/user"
)

type notificationApi struct {
	svc      *notification.Service
	usrSvc   user.Service
	validate *validator.Validate
}

func registerNotificationAPI(g *echo.Group, jwt echo.MiddlewareFunc, svc *notification.Service, usrSvc user.Service, validate *validator.Validate) {
	api := notificationApi{svc: svc, usrSvc: usrSvc, validate: validate}

	ng := g.Group("/notifications", jwt)
	ng.GET("", api.query)
	ng.POST("", api.publish, adminMiddleware())
	ng.GET("/watch", api.watch)
	ng.POST("/read-all", api.readAll)
	ng.POST("/:id/read", api.read)
}

// Handlers

func (api *notificationApi) publish(ctx echo.Context) error {
	var data notification.New
	if err := ctx.Bind(&data); err != nil {
		return errors.Wrap(err, "binding to New")
	}

	ctxUsr, err := getContextUser(ctx, api.usrSvc)
	if err != nil {
		return errors.Wrap(err, "getting context user")
	}
	data.Sender = ctxUsr.Name

	if err = data.Validate(api.validate); err != nil {
		return err
	}

	nf, err := api.svc.Publish(ctx.Request().Context(), data)
	if err != nil {
		return err
	}
	return ctx.JSON(http.StatusCreated, nf)
}

func (api *notificationApi) query(ctx echo.Context) error {
	ctxUsr, err := getContextUser(ctx, api.usrSvc)
	if err != nil {
		return errors.Wrap(err, "getting context user")
	}

	nfs, err := api.svc.VisibleTo(ctx.Request().Context(), ctxUsr.ID, notification.GroupsFor(ctxUsr.IsStudent(), ctxUsr.IsAdmin()))
	if err != nil {
		return errors.Wrap(err, "querying notifications")
	}
	if nfs == nil {
		nfs = []notification.Notification{}
	}
	return ctx.JSON(http.StatusOK, nfs)
}

func (api *notificationApi) read(ctx echo.Context) error {
	if err := api.svc.MarkRead(ctx.Request().Context(), ctx.Param("id")); err != nil {
		return err
	}
	return ctx.NoContent(http.StatusNoContent)
}

func (api *notificationApi) readAll(ctx echo.Context) error {
	ctxUsr, err := getContextUser(ctx, api.usrSvc)
	if err != nil {
		return errors.Wrap(err, "getting context user")
	}

	if err = api.svc.MarkAllRead(ctx.Request().Context(), ctxUsr.ID, notification.GroupsFor(ctxUsr.IsStudent(), ctxUsr.IsAdmin())); err != nil {
		return err
	}
	return ctx.NoContent(http.StatusNoContent)
}

// watch streams newly published notifications to the caller as server-sent events.
func (api *notificationApi) watch(ctx echo.Context) error {
	ctxUsr, err := getContextUser(ctx, api.usrSvc)
	if err != nil {
		return errors.Wrap(err, "getting context user")
	}

	reqCtx := ctx.Request().Context()
	stream, err := api.svc.Watch(reqCtx, ctxUsr.ID, notification.GroupsFor(ctxUsr.IsStudent(), ctxUsr.IsAdmin()))
	if err != nil {
		return errors.Wrap(err, "watching notifications")
	}

	res := ctx.Response()
	res.Header().Set(echo.HeaderContentType, "text/event-stream")
	res.Header().Set("Cache-Control", "no-cache")
	res.Header().Set("Connection", "keep-alive")
	res.WriteHeader(http.StatusOK)
	res.Flush()

	for {
		select {
		case <-reqCtx.Done():
			return nil
		case nf, ok := <-stream:
			if !ok {
				return nil
			}
			payload, err := json.Marshal(nf)
			if err != nil {
				return errors.Wrap(err, "encoding notification")
			}
			if _, err = fmt.Fprintf(res, "data: %s\n\n", payload); err != nil {
				return errors.Wrap(err, "writing event")
			}
			res.Flush()
		}
	}
}
