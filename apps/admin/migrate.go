package main

import (
	"fmt"

	"github.com/gofrs/flock"
	"github.com/spf13/cobra"

	"github.com/pixelforegllc/quantummftools-dash/storage/database"
)

var runMigrationsFunc = database.RunMigrations // mockable

func (cli *commandLine) migrateCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "migrate COMMAND [ARGS...]",
		Short: "Run a database migration command",
		Long: `Run a database migration command:
  up, up-by-one, up-to VERSION, down, down-to VERSION, redo, reset, status, version, fix, create NAME`,
		Args: cobra.ArbitraryArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			if len(args) == 0 {
				_ = cmd.Usage()
				return errHelp
			}

			lock := flock.New(cli.lockPath)
			locked, err := lock.TryLock()
			if err != nil {
				return fmt.Errorf("acquiring migration lock: %w", err)
			}
			if !locked {
				return fmt.Errorf("another migration is running (lock %s)", cli.lockPath)
			}
			defer func() { _ = lock.Unlock() }()

			return runMigrationsFunc(cmd.Context(), cli.db, cli.conf.Database.Engine, args[0], args[1:]...)
		},
	}
}
