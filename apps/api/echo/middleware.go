package echoapi

import (
	"github.com/labstack/echo/v4"
)

// checkRole lets the context User through if they hold one of roles.
func checkRole(roles ...string) echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(ctx echo.Context) error {
			usr, err := getContextUser(ctx)
			if err != nil {
				return err
			}
			if !usr.HasAnyRole(roles...) {
				return errAccessDenied
			}
			return next(ctx)
		}
	}
}

func checkPermission(perm string) echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(ctx echo.Context) error {
			usr, err := getContextUser(ctx)
			if err != nil {
				return err
			}
			if !usr.HasPermission(perm) {
				return errInsufficientPerms
			}
			return next(ctx)
		}
	}
}

// objectMiddleware loads the object named by the `:id` param and stores it as "object".
func objectMiddleware(get func(ctx echo.Context, id string) (interface{}, error)) echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(ctx echo.Context) error {
			obj, err := get(ctx, ctx.Param("id"))
			if err != nil {
				return err
			}
			ctx.Set("object", obj)
			return next(ctx)
		}
	}
}
