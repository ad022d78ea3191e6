package testutil

import (
	"context"
	"net/mail"
	"testing"
	"time"

	"github.com/jmoiron/sqlx"
	"github.com/pressly/goose/v3"

	"github.com/pixelforegllc/quantummftools-dash/core"
	"github.com/pixelforegllc/quantummftools-dash/core/user"
	"github.com/pixelforegllc/quantummftools-dash/storage/database"
)

// NewConfig returns the configuration tests run with, on an in-memory SQLite database.
func NewConfig() *core.Config {
	return &core.Config{
		Env:              "test",
		Build:            "test",
		AppName:          "QuantumMF Tools",
		TestMode:         true,
		SecretKey:        "test-secret-key",
		FrontendBaseURL:  "http://localhost:3001",
		DefaultFromEmail: mail.Address{Name: "QuantumMF Tools", Address: "noreply@localhost"},
		Server: core.ServerConfig{
			Host:                      "localhost",
			Port:                      3000,
			ShutdownTimeout:           time.Second,
			JWTExpirationDelta:        24 * time.Hour,
			JWTRefreshExpirationDelta: 7 * 24 * time.Hour,
			PasswordResetTimeoutDelta: 3 * 24 * time.Hour,
			CORSOrigins:               []string{"*"},
			RateLimit:                 100,
			RateLimitWindow:           15 * time.Minute,
		},
		Database: core.DatabaseConfig{
			Engine: core.EngineSQLite,
			URL:    database.SQLiteDSN(":memory:"),
		},
	}
}

// PrepareDB opens a fresh, migrated in-memory database, closed when t ends.
func PrepareDB(t *testing.T) *sqlx.DB {
	t.Helper()
	conf := NewConfig()

	db, err := database.Open(conf)
	if err != nil {
		t.Fatalf("PrepareDB() failed: %v", err)
	}
	t.Cleanup(func() { _ = db.Close() })

	database.SetMigrationsLogger(goose.NopLogger())
	if err = database.Migrate(context.Background(), db, conf.Database.Engine); err != nil {
		t.Fatalf("PrepareDB() failed: %v", err)
	}
	return db
}

func CreateUser(
	t *testing.T,
	repo user.Repository,
	uname, email, pwd, role string,
	isActive bool,
	createdAt ...time.Time,
) user.User {
	t.Helper()
	tstamp := time.Now().UTC()
	if len(createdAt) > 0 {
		tstamp = createdAt[0].UTC()
	}
	usr := user.User{
		Username:    uname,
		Email:       email,
		Role:        role,
		IsActive:    isActive,
		Permissions: []string{},
		CreatedAt:   tstamp,
		UpdatedAt:   tstamp,
	}
	if pwd != "" {
		if err := usr.SetPassword(pwd); err != nil {
			t.Fatalf("CreateUser() failed: %v", err)
		}
	}
	usr, err := repo.CreateUser(context.Background(), usr)
	if err != nil {
		t.Fatalf("CreateUser() failed: %v", err)
	}
	return usr
}
