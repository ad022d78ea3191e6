package echoapi

import (
	"net/http"

	"github.com/labstack/echo/v4"
	"github.com/pkg/errors"

	"github.com/pixelforegllc/quantummftools-dash/core"
	"github.com/pixelforegllc/quantummftools-dash/core/sms"
)

var errSchNotFoundInCtx = errors.New("schedule object not found in echo.Context")

type scheduleApi struct {
	svc sms.ScheduleService
}

func registerScheduleAPI(g *echo.Group, auth echo.MiddlewareFunc, opts *Options) {
	api := scheduleApi{svc: opts.ScheduleSvc}

	sg := g.Group("/sms/schedule", auth)
	sg.GET("", api.query)
	sg.POST("", api.create)
	sg.GET("/stats", api.stats)

	dg := sg.Group("/:id", objectMiddleware(func(ctx echo.Context, id string) (interface{}, error) {
		return api.svc.GetByID(ctx.Request().Context(), id)
	}))
	dg.GET("", api.retrieve)
	dg.PUT("", api.update)
	dg.DELETE("", api.destroy)
	dg.POST("/cancel", api.cancel)
}

type ScheduleListResponse struct {
	Schedules  []sms.Schedule  `json:"schedules"`
	Pagination core.Pagination `json:"pagination"`
}

func (api *scheduleApi) query(ctx echo.Context) error {
	var filter sms.ScheduleFilter
	if err := ctx.Bind(&filter); err != nil {
		return errors.Wrap(err, "binding to ScheduleFilter")
	}
	if err := filter.ParseDateBounds(ctx.QueryParam("startDate"), ctx.QueryParam("endDate")); err != nil {
		return err
	}

	schedules, pagination, err := api.svc.Query(ctx.Request().Context(), filter)
	if err != nil {
		return errors.Wrap(err, "querying schedules")
	}
	return ctx.JSON(http.StatusOK, ScheduleListResponse{Schedules: schedules, Pagination: pagination})
}

func (api *scheduleApi) stats(ctx echo.Context) error {
	stats, err := api.svc.Stats(ctx.Request().Context())
	if err != nil {
		return errors.Wrap(err, "computing schedule stats")
	}
	return ctx.JSON(http.StatusOK, stats)
}

func (api *scheduleApi) retrieve(ctx echo.Context) error {
	sch, ok := ctx.Get("object").(sms.Schedule)
	if !ok {
		return errors.Wrap(errSchNotFoundInCtx, "retrieving object from context")
	}
	return ctx.JSON(http.StatusOK, sch)
}

func (api *scheduleApi) create(ctx echo.Context) error {
	by, err := getContextUserRef(ctx)
	if err != nil {
		return err
	}

	var data sms.ScheduleData
	if err = ctx.Bind(&data); err != nil {
		return errors.Wrap(err, "binding to ScheduleData")
	}

	sch, err := api.svc.Create(ctx.Request().Context(), data, by)
	if err != nil {
		return errors.Wrap(err, "creating schedule")
	}
	return ctx.JSON(http.StatusCreated, sch)
}

func (api *scheduleApi) update(ctx echo.Context) error {
	sch, ok := ctx.Get("object").(sms.Schedule)
	if !ok {
		return errors.Wrap(errSchNotFoundInCtx, "retrieving object from context")
	}
	by, err := getContextUserRef(ctx)
	if err != nil {
		return err
	}

	var data sms.ScheduleData
	if err = ctx.Bind(&data); err != nil {
		return errors.Wrap(err, "binding to ScheduleData")
	}

	sch, err = api.svc.Update(ctx.Request().Context(), sch, data, by)
	if err != nil {
		return errors.Wrap(err, "updating schedule")
	}
	return ctx.JSON(http.StatusOK, sch)
}

func (api *scheduleApi) destroy(ctx echo.Context) error {
	sch, ok := ctx.Get("object").(sms.Schedule)
	if !ok {
		return errors.Wrap(errSchNotFoundInCtx, "retrieving object from context")
	}
	if err := api.svc.Delete(ctx.Request().Context(), sch); err != nil {
		return errors.Wrap(err, "deleting schedule")
	}
	return ctx.JSON(http.StatusOK, MessageResponse{Message: "Schedule deleted successfully"})
}

func (api *scheduleApi) cancel(ctx echo.Context) error {
	sch, ok := ctx.Get("object").(sms.Schedule)
	if !ok {
		return errors.Wrap(errSchNotFoundInCtx, "retrieving object from context")
	}
	by, err := getContextUserRef(ctx)
	if err != nil {
		return err
	}

	sch, err = api.svc.Cancel(ctx.Request().Context(), sch, by)
	if err != nil {
		return errors.Wrap(err, "cancelling schedule")
	}
	return ctx.JSON(http.StatusOK, sch)
}
