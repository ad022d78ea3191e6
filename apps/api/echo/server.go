package echoapi

import (
	"context"
	"net/http"

	ut "github.com/go-playground/universal-translator"
	"github.com/go-playground/validator/v10"
	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"
	"github.com/labstack/gommon/log"
	"golang.org/x/time/rate"

	"github.com/pixelforegllc/quantummftools-dash/core"
	"github.com/pixelforegllc/quantummftools-dash/core/apikey"
	"github.com/pixelforegllc/quantummftools-dash/core/sms"
	"github.com/pixelforegllc/quantummftools-dash/core/user"
)

type (
	Options struct {
		Conf           *core.Config
		Logger         core.Logger
		DisableReqLogs bool
		SignalShutdown func()
		Validate       *validator.Validate
		Translator     ut.Translator
		UserSvc        user.Service
		APIKeySvc      apikey.Service
		TemplateSvc    sms.TemplateService
		ScheduleSvc    sms.ScheduleService
	}

	Server interface {
		http.Handler
		Start() error
		Stop(context.Context) error
	}

	server struct {
		opts *Options
		app  *echo.Echo
	}
)

var _ Server = (*server)(nil)

func NewServer(opts *Options) Server {
	s := &server{
		opts: opts,
		app:  echo.New(),
	}
	s.setup()
	return s
}

func (s *server) setup() {
	conf := s.opts.Conf

	s.app.HideBanner = true
	s.app.Pre(middleware.RemoveTrailingSlash())
	if !s.opts.DisableReqLogs {
		s.app.Use(middleware.Logger())
	}
	// do not recover in DEV|TEST mode
	if !(conf.Debug || conf.TestMode) {
		s.app.Use(middleware.RecoverWithConfig(middleware.RecoverConfig{LogLevel: log.ERROR}))
	}
	s.app.Use(middleware.Secure())
	s.app.Use(middleware.CORSWithConfig(middleware.CORSConfig{
		AllowOrigins: conf.Server.CORSOrigins,
		AllowHeaders: []string{echo.HeaderOrigin, echo.HeaderContentType, echo.HeaderAccept, echo.HeaderAuthorization},
	}))

	s.app.HTTPErrorHandler = newAppHTTPErrorHandler(s.opts.Logger, s.opts.Translator, s.opts.SignalShutdown)
	s.app.Debug = conf.Debug

	s.app.GET("/", home)

	api := s.app.Group("/api")
	if conf.Server.RateLimit > 0 && conf.Server.RateLimitWindow > 0 {
		api.Use(newRateLimiter(conf.Server))
	}
	api.GET("/health", health)

	jwt := newJWTMiddleware(conf)
	auth := newAuthMiddleware(conf, s.opts.UserSvc)

	registerUserAPI(api, jwt, auth, s.opts)
	registerAPIKeyAPI(api, auth, s.opts)
	registerTemplateAPI(api, auth, s.opts)
	registerScheduleAPI(api, auth, s.opts)
}

// newRateLimiter allows conf.RateLimit requests per IP every conf.RateLimitWindow.
func newRateLimiter(conf core.ServerConfig) echo.MiddlewareFunc {
	store := middleware.NewRateLimiterMemoryStoreWithConfig(middleware.RateLimiterMemoryStoreConfig{
		Rate:      rate.Limit(float64(conf.RateLimit) / conf.RateLimitWindow.Seconds()),
		Burst:     conf.RateLimit,
		ExpiresIn: conf.RateLimitWindow,
	})
	return middleware.RateLimiterWithConfig(middleware.RateLimiterConfig{
		Store: store,
		DenyHandler: func(echo.Context, string, error) error {
			return errTooManyRequests
		},
	})
}

func (s *server) Start() error {
	return s.app.Start(s.opts.Conf.Server.Address())
}

func (s *server) Stop(ctx context.Context) error {
	return s.app.Shutdown(ctx)
}

func (s *server) ServeHTTP(w http.ResponseWriter, r *http.Request) { // for tests
	s.app.ServeHTTP(w, r)
}

func home(ctx echo.Context) error {
	return ctx.String(http.StatusOK, "Welcome to QuantumMF Tools API!")
}

func health(ctx echo.Context) error {
	return ctx.JSON(http.StatusOK, echo.Map{"status": "ok"})
}
