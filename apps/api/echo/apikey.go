package echoapi

import (
	"net/http"

	"github.com/go-playground/validator/v10"
	"github.com/labstack/echo/v4"
	"github.com/pkg/errors"

	"github.com/pixelforegllc/quantummftools-dash/core/apikey"
	"github.com/pixelforegllc/quantummftools-dash/core/user"
)

var errKeyNotFoundInCtx = errors.New("API key object not found in echo.Context")

type apiKeyApi struct {
	svc      apikey.Service
	validate *validator.Validate
}

func registerAPIKeyAPI(g *echo.Group, auth echo.MiddlewareFunc, opts *Options) {
	api := apiKeyApi{
		svc:      opts.APIKeySvc,
		validate: opts.Validate,
	}

	kg := g.Group("/api-keys", auth, checkRole(user.RoleAdmin, user.RoleManager))
	kg.GET("", api.query)
	kg.POST("", api.create)
	kg.GET("/active/:service", api.active, checkRole(user.RoleAdmin))

	dg := kg.Group("/:id", objectMiddleware(func(ctx echo.Context, id string) (interface{}, error) {
		return api.svc.GetByID(ctx.Request().Context(), id)
	}))
	dg.PATCH("", api.update)
	dg.DELETE("", api.destroy)
	dg.GET("/usage", api.usage, checkPermission(apikey.PermissionViewUsage))
}

func (api *apiKeyApi) query(ctx echo.Context) error {
	keys, err := api.svc.List(ctx.Request().Context())
	if err != nil {
		return errors.Wrap(err, "querying API keys")
	}
	if keys == nil {
		keys = []apikey.APIKey{}
	}
	return ctx.JSON(http.StatusOK, keys)
}

func (api *apiKeyApi) create(ctx echo.Context) error {
	var data apikey.NewAPIKey
	if err := ctx.Bind(&data); err != nil {
		return errors.Wrap(err, "binding to NewAPIKey")
	}
	if err := data.Validate(api.validate); err != nil {
		return err
	}

	key, err := api.svc.Create(ctx.Request().Context(), data)
	if err != nil {
		return errors.Wrap(err, "creating API key")
	}
	return ctx.JSON(http.StatusCreated, key)
}

func (api *apiKeyApi) update(ctx echo.Context) error {
	key, ok := ctx.Get("object").(apikey.APIKey)
	if !ok {
		return errors.Wrap(errKeyNotFoundInCtx, "retrieving object from context")
	}

	var data apikey.UpdateAPIKey
	if err := ctx.Bind(&data); err != nil {
		return errors.Wrap(err, "binding to UpdateAPIKey")
	}
	if err := data.Validate(api.validate); err != nil {
		return err
	}

	key, err := api.svc.Update(ctx.Request().Context(), key, data)
	if err != nil {
		return errors.Wrap(err, "updating API key")
	}
	return ctx.JSON(http.StatusOK, key)
}

func (api *apiKeyApi) destroy(ctx echo.Context) error {
	key, ok := ctx.Get("object").(apikey.APIKey)
	if !ok {
		return errors.Wrap(errKeyNotFoundInCtx, "retrieving object from context")
	}
	if err := api.svc.Delete(ctx.Request().Context(), key.ID); err != nil {
		return errors.Wrap(err, "deleting API key")
	}
	return ctx.JSON(http.StatusOK, MessageResponse{Message: "API key deleted"})
}

func (api *apiKeyApi) active(ctx echo.Context) error {
	key, err := api.svc.GetActive(ctx.Request().Context(), ctx.Param("service"))
	if err != nil {
		return errors.Wrap(err, "getting active API key")
	}
	return ctx.JSON(http.StatusOK, key)
}

func (api *apiKeyApi) usage(ctx echo.Context) error {
	key, ok := ctx.Get("object").(apikey.APIKey)
	if !ok {
		return errors.Wrap(errKeyNotFoundInCtx, "retrieving object from context")
	}
	usage, err := api.svc.Usage(ctx.Request().Context(), key, ctx.QueryParam("timeRange"))
	if err != nil {
		return errors.Wrap(err, "getting API key usage")
	}
	return ctx.JSON(http.StatusOK, usage)
}
