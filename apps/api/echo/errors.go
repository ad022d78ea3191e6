package echoapi

import (
	"net/http"

	ut "github.com/go-playground/universal-translator"
	"github.com/go-playground/validator/v10"
	"github.com/labstack/echo/v4"
	"github.com/pkg/errors"

	"github.com/pixelforegllc/quantummftools-dash/core"
	"github.com/pixelforegllc/quantummftools-dash/core/apikey"
	"github.com/pixelforegllc/quantummftools-dash/core/sms"
	"github.com/pixelforegllc/quantummftools-dash/core/user"
)

var (
	errPleaseAuthenticate = echo.NewHTTPError(http.StatusUnauthorized, "Please authenticate.")
	errInvalidCredentials = echo.NewHTTPError(http.StatusUnauthorized, "Invalid credentials")
	errAccountDisabled    = echo.NewHTTPError(http.StatusForbidden, "Account is disabled")
	errRefreshExpired     = echo.NewHTTPError(http.StatusForbidden, "Refresh has expired")
	errAccessDenied       = echo.NewHTTPError(http.StatusForbidden, "Access denied.")
	errInsufficientPerms  = echo.NewHTTPError(http.StatusForbidden, "Insufficient permissions.")
	errTooManyRequests    = echo.NewHTTPError(http.StatusTooManyRequests, "Too many requests from this IP, please try again later.")

	// domain errors reported with their own message
	sentinelErrors = []struct {
		err  error
		code int
	}{
		{user.ErrNotFound, http.StatusNotFound},
		{user.ErrADUser, http.StatusBadRequest},
		{user.ErrWrongPassword, http.StatusUnauthorized},
		{apikey.ErrNotFound, http.StatusNotFound},
		{apikey.ErrNoActiveKey, http.StatusNotFound},
		{apikey.ErrInvalidService, http.StatusBadRequest},
		{apikey.ErrInvalidTimeRange, http.StatusBadRequest},
		{sms.ErrTemplateNotFound, http.StatusNotFound},
		{sms.ErrScheduleNotFound, http.StatusNotFound},
	}
)

// newAppHTTPErrorHandler returns a custom echo.HTTPErrorHandler that knows how to handle our errors.
// signalShutdown is called in order to gracefully shutdown the Server whenever a core.shutdown error is caught.
func newAppHTTPErrorHandler(logger core.Logger, translator ut.Translator, signalShutdown func()) echo.HTTPErrorHandler {
	return func(err error, ctx echo.Context) {
		var code int
		var message interface{}

		switch origErr := errors.Cause(err).(type) {
		case *echo.HTTPError:
			if origErr.Internal != nil {
				if herr, ok := origErr.Internal.(*echo.HTTPError); ok {
					origErr = herr
				}
			}
			code = origErr.Code
			message = origErr.Message
		case validator.ValidationErrors:
			fldErrs := make(map[string]string, len(origErr))
			for _, vErr := range origErr {
				fldErrs[vErr.Field()] = vErr.Translate(translator)
			}
			code = http.StatusBadRequest
			message = fldErrs
		case *core.ValidationError:
			if origErr.Fields != nil {
				fldErrs := make(map[string]string, len(origErr.Fields))
				for _, fErr := range origErr.Fields {
					fldErrs[fErr.Field] = fErr.Error
				}
				message = fldErrs
			} else {
				message = origErr.Error()
			}
			code = http.StatusBadRequest
		default:
			if c, ok := sentinelCode(origErr); ok {
				code = c
				message = origErr.Error()
				break
			}

			// any other error is a server error
			code = http.StatusInternalServerError
			msg := http.StatusText(http.StatusInternalServerError)
			message = msg
			if ctx.Echo().Debug {
				message = err.Error()
			}

			args := []interface{}{errors.Wrap(err, msg)}
			if usr, uErr := getContextUser(ctx); uErr == nil {
				args = append(args, usr)
			}
			logger.Error(msg, args...)

			// shutting down...
			if core.IsShutdown(err) && signalShutdown != nil {
				signalShutdown()
			}
		}

		if m, ok := message.(string); ok {
			message = echo.Map{"error": m}
		}

		// Send response
		if !ctx.Response().Committed {
			if ctx.Request().Method == http.MethodHead { // Issue #608
				err = ctx.NoContent(code)
			} else {
				err = ctx.JSON(code, message)
			}
			if err != nil {
				logger.Error("sending error response", err)
			}
		}
	}
}

func sentinelCode(err error) (int, bool) {
	for _, s := range sentinelErrors {
		if err == s.err {
			return s.code, true
		}
	}
	return 0, false
}
