package main

import (
	"context"
	"expvar"
	"fmt"
	"log"
	"net/http"
	_ "net/http/pprof"
	"os"
	"os/signal"
	"syscall"

	"github.com/jmoiron/sqlx"
	"go.uber.org/zap"

	echoapi "github.com/pixelforegllc/quantummftools-dash/apps/api/echo"
	"github.com/pixelforegllc/quantummftools-dash/assets"
	"github.com/pixelforegllc/quantummftools-dash/core"
	"github.com/pixelforegllc/quantummftools-dash/core/apikey"
	"github.com/pixelforegllc/quantummftools-dash/core/sms"
	"github.com/pixelforegllc/quantummftools-dash/core/user"
	emailsvc "github.com/pixelforegllc/quantummftools-dash/services/email"
	logsvc "github.com/pixelforegllc/quantummftools-dash/services/logger"
	"github.com/pixelforegllc/quantummftools-dash/storage/database"
	sqlxrepos "github.com/pixelforegllc/quantummftools-dash/storage/database/sqlx"
)

type waiter interface {
	core.EmailService
	Wait()
}

func main() {
	// =========================================================================
	// Set up Dependencies

	conf := core.NewConfig()
	if err := conf.Validate(); err != nil {
		log.Fatalf("invalid configuration: %v", err)
	}

	// set up loggers
	zl, err := logsvc.NewZapLogger(conf)
	if err != nil {
		log.Fatalf("setting up logger: %v", err)
	}
	logger := logsvc.NewRollbarLogger(zl.Named("api"), conf)
	logger.Enable(!conf.Debug && conf.RollbarToken != "")
	defer logger.Close()

	dbLogger := logsvc.NewRollbarLogger(zl.Named("db"), conf)
	dbLogger.Enable(!conf.Debug && conf.RollbarToken != "")
	database.SetMigrationsLogger(zap.NewStdLog(zl.Named("migrations")))

	// set up DB
	db, err := setUpDB(conf)
	if err != nil {
		logger.Fatal("setting up database", err)
	}
	defer func() {
		if err = db.Close(); err != nil {
			dbLogger.Error("Failed to close", err)
		}
	}()

	// set up services
	var mailSvc waiter
	if conf.Debug || conf.SendgridAPIKey == "" {
		mailSvc = emailsvc.NewConsoleService(conf, logger)
	} else {
		mailSvc = emailsvc.NewSendgridService(conf, logger)
	}
	defer mailSvc.Wait()

	cipher, err := apikey.NewCipher(conf.SecretKey)
	if err != nil {
		logger.Fatal("setting up API key cipher", err)
	}
	usrSvc := user.NewService(sqlxrepos.NewUserRepository(db), mailSvc, conf)
	keySvc := apikey.NewService(sqlxrepos.NewAPIKeyRepository(db), cipher)
	tplRepo := sqlxrepos.NewTemplateRepository(db)
	schRepo := sqlxrepos.NewScheduleRepository(db)

	// =========================================================================
	// Initialize App

	logger.Info(fmt.Sprintf("Application initializing : version %q", conf.Build), map[string]interface{}{"env": conf.Env})
	defer logger.Info("Application stopped")

	validate, translator := core.NewValidator()
	user.InitValidators(validate, translator)

	if err = core.ParseEmailTemplates(assets.FS, conf); err != nil {
		logger.Fatal("parsing email templates", err)
	}
	if err = user.LoadCommonPasswords(assets.FS, assets.CommonPasswordsFile); err != nil {
		logger.Fatal("loading common passwords", err)
	}

	// =========================================================================
	// Start Debug Service
	//
	// /debug/pprof - Added to the default mux by importing the net/http/pprof package.
	// /debug/vars - Added to the default mux by importing the expvar package.

	// Expose important info under /debug/vars.
	expvar.NewString("build").Set(conf.Build)
	expvar.NewString("env").Set(conf.Env)

	if conf.Server.DebugHost != "" {
		go func() {
			if err := http.ListenAndServe(conf.Server.DebugHost, http.DefaultServeMux); err != nil {
				logger.Error("debug server closed", err)
			}
		}()
	}

	// =========================================================================
	// Start API Service

	shutdown := make(chan os.Signal, 1)
	signal.Notify(shutdown, os.Interrupt, syscall.SIGTERM)

	server := echoapi.NewServer(&echoapi.Options{
		Conf:   conf,
		Logger: logger,
		SignalShutdown: func() {
			shutdown <- syscall.SIGTERM
		},
		Validate:    validate,
		Translator:  translator,
		UserSvc:     usrSvc,
		APIKeySvc:   keySvc,
		TemplateSvc: sms.NewTemplateService(tplRepo, schRepo),
		ScheduleSvc: sms.NewScheduleService(schRepo, tplRepo),
	})

	serverErrors := make(chan error, 1)
	go func() {
		logger.Info("API listening on " + conf.Server.Address())
		serverErrors <- server.Start()
	}()

	// =========================================================================
	// Shutdown

	select {
	case err = <-serverErrors:
		if err != http.ErrServerClosed {
			logger.Error("server error", err)
		}

	case sig := <-shutdown:
		logger.Info(fmt.Sprintf("%v: Start shutdown...", sig))

		// give outstanding requests a deadline for completion
		ctx, cancel := context.WithTimeout(context.Background(), conf.Server.ShutdownTimeout)
		defer cancel()

		if err = server.Stop(ctx); err != nil {
			logger.Error("could not stop server gracefully", err)
		}
	}
}

func setUpDB(conf *core.Config) (*sqlx.DB, error) {
	if err := database.CreateIfNotExist(conf); err != nil {
		return nil, err
	}

	db, err := database.Open(conf)
	if err != nil {
		return nil, err
	}

	if err = database.Migrate(context.Background(), db, conf.Database.Engine); err != nil {
		_ = db.Close()
		return nil, err
	}
	return db, nil
}
