package main

import (
	"fmt"
	"log"
	"os"

	"github.com/fatih/color"
	"go.uber.org/zap"

	"github.com/pixelforegllc/quantummftools-dash/assets"
	"github.com/pixelforegllc/quantummftools-dash/core"
	"github.com/pixelforegllc/quantummftools-dash/core/user"
	logsvc "github.com/pixelforegllc/quantummftools-dash/services/logger"
	"github.com/pixelforegllc/quantummftools-dash/storage/database"
)

func main() {
	os.Exit(run())
}

func run() int {
	conf := core.NewConfig()

	zl, err := logsvc.NewZapLogger(conf)
	if err != nil {
		log.Printf("setting up logger: %v", err)
		return 1
	}
	defer func() { _ = zl.Sync() }()
	logger := zl.Named("admin")
	database.SetMigrationsLogger(zap.NewStdLog(zl.Named("migrations")))

	if err = user.LoadCommonPasswords(assets.FS, assets.CommonPasswordsFile); err != nil {
		logger.Error("loading common passwords", zap.Error(err))
		return 1
	}

	// set up DB
	db, err := database.Open(conf)
	if err != nil {
		logger.Error("opening database", zap.Error(err))
		return 1
	}
	defer db.Close()

	// start CLI
	cli, err := newCommandLine(conf, db, os.Stdout)
	if err != nil {
		logger.Error("setting up command line", zap.Error(err))
		return 1
	}
	if err = cli.run(os.Args[1:]); err != nil {
		if err != errHelp {
			fmt.Fprintln(os.Stderr, color.RedString("error: %s", err))
		}
		return 1
	}
	return 0
}
