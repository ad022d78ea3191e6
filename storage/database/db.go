package database

import (
	"context"
	"database/sql"
	"fmt"
	"net/url"
	"path/filepath"
	"time"

	"github.com/jmoiron/sqlx"
	"github.com/lib/pq"
	"github.com/pkg/errors"
	"github.com/pressly/goose/v3"
	_ "modernc.org/sqlite"

	"github.com/pixelforegllc/quantummftools-dash/assets"
	"github.com/pixelforegllc/quantummftools-dash/core"
)

func init() {
	// queries are written with `?` and rebound per driver
	sqlx.BindDriver(core.EngineSQLite, sqlx.QUESTION)
}

// gooseDialects maps DB engines to goose dialects.
var gooseDialects = map[string]string{
	core.EnginePostgres: "postgres",
	core.EngineSQLite:   "sqlite3",
}

func postgresDSN(dbName string, admin bool, conf *core.Config) string {
	user := url.UserPassword(conf.Database.User, conf.Database.Password)
	if admin && conf.Database.AdminUser != "" {
		user = url.UserPassword(conf.Database.AdminUser, conf.Database.AdminPassword)
	}

	sslMode := "require"
	if conf.Database.DisableTLS {
		sslMode = "disable"
	}
	q := make(url.Values)
	q.Set("sslmode", sslMode)
	q.Set("timezone", "utc")

	u := url.URL{
		Scheme:   "postgres",
		User:     user,
		Host:     conf.Database.Address(),
		Path:     dbName,
		RawQuery: q.Encode(),
	}
	return u.String()
}

// SQLiteDSN returns the modernc DSN of the database file at path (":memory:" works too).
func SQLiteDSN(path string) string {
	return fmt.Sprintf("file:%s?_time_format=sqlite&_pragma=foreign_keys(1)&_pragma=busy_timeout(5000)", path)
}

func open(dbName string, admin bool, conf *core.Config) (*sqlx.DB, error) {
	switch conf.Database.Engine {
	case core.EnginePostgres:
		dsn := conf.Database.URL
		if dsn == "" || admin {
			dsn = postgresDSN(dbName, admin, conf)
		}
		return sqlx.Open("postgres", dsn)
	case core.EngineSQLite:
		dsn := conf.Database.URL
		if dsn == "" {
			dsn = SQLiteDSN(conf.Database.Path)
		}
		db, err := sqlx.Open(core.EngineSQLite, dsn)
		if err != nil {
			return nil, err
		}
		// sqlite allows a single writer
		db.SetMaxOpenConns(1)
		return db, nil
	default:
		return nil, errors.Errorf("unsupported database engine %q", conf.Database.Engine)
	}
}

func Open(conf *core.Config) (*sqlx.DB, error) {
	db, err := open(conf.Database.Name, false, conf)
	if err != nil {
		return nil, errors.Wrap(err, "opening database")
	}
	if err = ping(db.DB); err != nil {
		_ = db.Close()
		return nil, err
	}
	return db, nil
}

// ping waits for the database to be ready. Waits 100ms longer between each attempt.
func ping(db *sql.DB) error {
	var err error
	maxAttempts := 30
	for attempts := 1; attempts <= maxAttempts; attempts++ {
		err = db.Ping()
		if err == nil {
			break
		}
		time.Sleep(time.Duration(attempts) * 100 * time.Millisecond)
	}

	if err != nil {
		return errors.Wrap(err, "DB ping timeout")
	}
	return nil
}

func exists(db *sqlx.DB, query, name string) (bool, error) {
	var found bool
	err := db.Get(&found, query, name)
	if err == sql.ErrNoRows {
		return false, nil
	}
	return found, err
}

func createAppUser(db *sqlx.DB, conf *core.Config) error {
	if conf.Database.User == "" {
		return nil
	}

	found, err := exists(db, "SELECT true FROM pg_roles WHERE rolname = $1", conf.Database.User)
	if err != nil {
		return errors.Wrap(err, "checking app user")
	}
	if !found {
		if _, err = db.Exec(createUserQuery(conf.Database.User, conf.Database.Password)); err != nil {
			return errors.Wrap(err, "creating app user")
		}
	}
	return nil
}

// createUserQuery quotes the role and password; neither can be bound as a parameter here.
func createUserQuery(user, pwd string) string {
	return "CREATE USER " + pq.QuoteIdentifier(user) + " CREATEDB ENCRYPTED PASSWORD " + pq.QuoteLiteral(pwd)
}

func createDB(db *sqlx.DB, conf *core.Config) error {
	found, err := exists(db, "SELECT true FROM pg_database WHERE datname = $1", conf.Database.Name)
	if err != nil {
		return errors.Wrap(err, "checking DB")
	}
	if !found {
		if _, err = db.Exec("CREATE DATABASE " + pq.QuoteIdentifier(conf.Database.Name)); err != nil {
			return errors.Wrap(err, "creating database")
		}
	}
	return nil
}

// CreateIfNotExist creates the app role and database on postgres. SQLite files are created on open.
func CreateIfNotExist(conf *core.Config) error {
	if conf.Database.Engine != core.EnginePostgres || conf.Database.URL != "" {
		return nil
	}

	// connect as admin
	db, err := open("postgres", true, conf)
	if err != nil {
		return errors.Wrap(err, "opening database")
	}
	defer func() { _ = db.Close() }()
	if err = ping(db.DB); err != nil {
		return errors.Wrap(err, "pinging database")
	}
	if err = createAppUser(db, conf); err != nil {
		return err
	}

	// create DB as app user
	appDB, err := open("postgres", false, conf)
	if err != nil {
		return errors.Wrap(err, "opening database")
	}
	defer func() { _ = appDB.Close() }()
	return createDB(appDB, conf)
}

func setupGoose(engine string) error {
	dialect, ok := gooseDialects[engine]
	if !ok {
		return errors.Errorf("unsupported database engine %q", engine)
	}
	goose.SetBaseFS(assets.FS)
	bindType = engineBindType(engine)
	return goose.SetDialect(dialect)
}

// Migrate applies every pending migration.
func Migrate(ctx context.Context, db *sqlx.DB, engine string) error {
	if err := setupGoose(engine); err != nil {
		return err
	}
	if err := goose.UpContext(ctx, db.DB, assets.MigrationsDir); err != nil {
		return errors.Wrap(err, "migrating database")
	}
	return nil
}

// RunMigrations runs a goose command (up, down, status, version, redo, reset, up-to, down-to, create).
func RunMigrations(ctx context.Context, db *sqlx.DB, engine, command string, args ...string) error {
	if err := setupGoose(engine); err != nil {
		return err
	}
	dir := assets.MigrationsDir
	if command == "create" {
		// new migration files go to the source tree, not the embedded FS
		goose.SetBaseFS(nil)
		dir = filepath.Join("assets", assets.MigrationsDir)
		args = append(args, "sql")
	}
	if err := goose.RunContext(ctx, command, db.DB, dir, args...); err != nil {
		return errors.Wrapf(err, "running migration command %q", command)
	}
	return nil
}

// SetMigrationsLogger routes goose output to logger.
func SetMigrationsLogger(logger goose.Logger) {
	goose.SetLogger(logger)
}
