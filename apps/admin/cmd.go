package main

import (
	"context"
	"fmt"
	"io"
	"os"
	"path/filepath"

	"github.com/go-playground/validator/v10"
	"github.com/jmoiron/sqlx"
	"github.com/pkg/errors"
	"github.com/spf13/cobra"
	"golang.org/x/term"

	"github.com/pixelforegllc/quantummftools-dash/core"
	"github.com/pixelforegllc/quantummftools-dash/core/apikey"
	"github.com/pixelforegllc/quantummftools-dash/core/sms"
	"github.com/pixelforegllc/quantummftools-dash/core/user"
	sqlxrepos "github.com/pixelforegllc/quantummftools-dash/storage/database/sqlx"
)

var (
	readPasswordFunc = term.ReadPassword // mockable

	errHelp = errors.New("help provided")
)

type commandLine struct {
	conf     *core.Config
	db       *sqlx.DB
	out      io.Writer
	validate *validator.Validate
	lockPath string

	usrRepo user.Repository
	keyRepo apikey.Repository
	keySvc  apikey.Service
	tplRepo sms.TemplateRepository
	tplSvc  sms.TemplateService
}

func newCommandLine(conf *core.Config, db *sqlx.DB, out io.Writer) (*commandLine, error) {
	cipher, err := apikey.NewCipher(conf.SecretKey)
	if err != nil {
		return nil, err
	}
	validate, _ := core.NewValidator()
	keyRepo := sqlxrepos.NewAPIKeyRepository(db)
	tplRepo := sqlxrepos.NewTemplateRepository(db)

	return &commandLine{
		conf:     conf,
		db:       db,
		out:      out,
		validate: validate,
		lockPath: filepath.Join(os.TempDir(), "quantummftools-migrate.lock"),
		usrRepo:  sqlxrepos.NewUserRepository(db),
		keyRepo:  keyRepo,
		keySvc:   apikey.NewService(keyRepo, cipher),
		tplRepo:  tplRepo,
		tplSvc:   sms.NewTemplateService(tplRepo, sqlxrepos.NewScheduleRepository(db)),
	}, nil
}

func (cli *commandLine) rootCommand() *cobra.Command {
	root := &cobra.Command{
		Use:           "admin",
		Short:         "QuantumMF Tools administration",
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			_ = cmd.Help()
			return errHelp
		},
	}
	root.SetOut(cli.out)
	root.SetErr(cli.out)

	root.AddCommand(
		cli.createUserCommand(),
		cli.resetPasswordCommand(),
		cli.usersCommand(),
		cli.apiKeysCommand(),
		cli.migrateCommand(),
		cli.seedCommand(),
	)
	return root
}

// run executes the command line args, without the program name.
func (cli *commandLine) run(args []string) error {
	if args == nil {
		args = []string{} // cobra falls back to os.Args on nil
	}
	root := cli.rootCommand()
	root.SetArgs(args)
	return root.ExecuteContext(context.Background())
}

// promptPassword reads a password from the terminal without echoing it.
func (cli *commandLine) promptPassword(cmd *cobra.Command) (string, error) {
	fmt.Fprint(cli.out, "Enter password:")
	pwd, err := readPasswordFunc(int(os.Stdin.Fd()))
	fmt.Fprintln(cli.out)
	if err != nil {
		return "", err
	}
	if len(pwd) == 0 {
		_ = cmd.Usage()
		return "", errHelp
	}
	return string(pwd), nil
}
