package echoapi

import (
	"net/http"

	"github.com/labstack/echo/v4"
	"github.com/pkg/errors"

	"github.com/pixelforegllc/quantummftools-dash/core"
	"github.com/pixelforegllc/quantummftools-dash/core/sms"
)

var errTplNotFoundInCtx = errors.New("template object not found in echo.Context")

type templateApi struct {
	svc sms.TemplateService
}

func registerTemplateAPI(g *echo.Group, auth echo.MiddlewareFunc, opts *Options) {
	api := templateApi{svc: opts.TemplateSvc}

	tg := g.Group("/sms/templates", auth)
	tg.GET("", api.query)
	tg.POST("", api.create)
	tg.GET("/stats", api.stats)
	tg.POST("/preview", api.preview)

	dg := tg.Group("/:id", objectMiddleware(func(ctx echo.Context, id string) (interface{}, error) {
		return api.svc.GetByID(ctx.Request().Context(), id)
	}))
	dg.GET("", api.retrieve)
	dg.PUT("", api.update)
	dg.DELETE("", api.destroy)
	dg.POST("/clone", api.clone)
}

type (
	TemplateListResponse struct {
		Templates  []sms.Template  `json:"templates"`
		Pagination core.Pagination `json:"pagination"`
	}

	PreviewResponse struct {
		Preview string `json:"preview"`
	}
)

func (api *templateApi) query(ctx echo.Context) error {
	var filter sms.TemplateFilter
	if err := ctx.Bind(&filter); err != nil {
		return errors.Wrap(err, "binding to TemplateFilter")
	}

	tpls, pagination, err := api.svc.Query(ctx.Request().Context(), filter)
	if err != nil {
		return errors.Wrap(err, "querying templates")
	}
	return ctx.JSON(http.StatusOK, TemplateListResponse{Templates: tpls, Pagination: pagination})
}

func (api *templateApi) stats(ctx echo.Context) error {
	stats, err := api.svc.Stats(ctx.Request().Context())
	if err != nil {
		return errors.Wrap(err, "computing template stats")
	}
	return ctx.JSON(http.StatusOK, stats)
}

func (api *templateApi) retrieve(ctx echo.Context) error {
	tpl, ok := ctx.Get("object").(sms.Template)
	if !ok {
		return errors.Wrap(errTplNotFoundInCtx, "retrieving object from context")
	}
	return ctx.JSON(http.StatusOK, tpl)
}

func (api *templateApi) create(ctx echo.Context) error {
	by, err := getContextUserRef(ctx)
	if err != nil {
		return err
	}

	var data sms.TemplateData
	if err = ctx.Bind(&data); err != nil {
		return errors.Wrap(err, "binding to TemplateData")
	}

	tpl, err := api.svc.Create(ctx.Request().Context(), data, by)
	if err != nil {
		return errors.Wrap(err, "creating template")
	}
	return ctx.JSON(http.StatusCreated, tpl)
}

func (api *templateApi) update(ctx echo.Context) error {
	tpl, ok := ctx.Get("object").(sms.Template)
	if !ok {
		return errors.Wrap(errTplNotFoundInCtx, "retrieving object from context")
	}
	by, err := getContextUserRef(ctx)
	if err != nil {
		return err
	}

	var data sms.TemplateData
	if err = ctx.Bind(&data); err != nil {
		return errors.Wrap(err, "binding to TemplateData")
	}

	tpl, err = api.svc.Update(ctx.Request().Context(), tpl, data, by)
	if err != nil {
		return errors.Wrap(err, "updating template")
	}
	return ctx.JSON(http.StatusOK, tpl)
}

func (api *templateApi) destroy(ctx echo.Context) error {
	tpl, ok := ctx.Get("object").(sms.Template)
	if !ok {
		return errors.Wrap(errTplNotFoundInCtx, "retrieving object from context")
	}
	if err := api.svc.Delete(ctx.Request().Context(), tpl); err != nil {
		return errors.Wrap(err, "deleting template")
	}
	return ctx.JSON(http.StatusOK, MessageResponse{Message: "Template deleted successfully"})
}

func (api *templateApi) clone(ctx echo.Context) error {
	tpl, ok := ctx.Get("object").(sms.Template)
	if !ok {
		return errors.Wrap(errTplNotFoundInCtx, "retrieving object from context")
	}
	by, err := getContextUserRef(ctx)
	if err != nil {
		return err
	}

	clone, err := api.svc.Clone(ctx.Request().Context(), tpl, by)
	if err != nil {
		return errors.Wrap(err, "cloning template")
	}
	return ctx.JSON(http.StatusCreated, clone)
}

func (api *templateApi) preview(ctx echo.Context) error {
	var data sms.PreviewData
	if err := ctx.Bind(&data); err != nil {
		return errors.Wrap(err, "binding to PreviewData")
	}

	preview, err := api.svc.Preview(data)
	if err != nil {
		return errors.Wrap(err, "compiling preview")
	}
	return ctx.JSON(http.StatusOK, PreviewResponse{Preview: preview})
}
