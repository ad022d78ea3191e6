package core

import (
	"fmt"
	"log"
	"net"
	"net/mail"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/kat-co/vala"
	"github.com/spf13/viper"
)

// Database engines
const (
	EngineSQLite   = "sqlite"
	EnginePostgres = "postgres"
)

type (
	Config struct {
		Env              string
		Build            string
		AppName          string
		Debug            bool
		TestMode         bool
		SecretKey        string
		FrontendBaseURL  string
		DefaultFromEmail mail.Address
		SendgridAPIKey   string
		RollbarToken     string
		Server           ServerConfig
		Database         DatabaseConfig
	}

	ServerConfig struct {
		Host                      string
		Port                      int
		DebugHost                 string
		ShutdownTimeout           time.Duration
		JWTExpirationDelta        time.Duration
		JWTRefreshExpirationDelta time.Duration
		PasswordResetTimeoutDelta time.Duration
		CORSOrigins               []string
		RateLimit                 int
		RateLimitWindow           time.Duration
	}

	DatabaseConfig struct {
		Engine        string
		URL           string // overrides every other connection field when set
		Path          string // sqlite only
		Host          string
		Port          int
		Name          string
		User          string
		Password      string
		AdminUser     string
		AdminPassword string
		DisableTLS    bool
	}
)

func (c ServerConfig) Address() string {
	return net.JoinHostPort(c.Host, strconv.Itoa(c.Port))
}

func (c DatabaseConfig) Address() string {
	return net.JoinHostPort(c.Host, strconv.Itoa(c.Port))
}

func setDefaults(v *viper.Viper, env string) {
	v.SetTypeByDefaultValue(true)
	v.SetDefault("build", "develop")
	v.SetDefault("appName", "QuantumMF Tools")
	v.SetDefault("debug", env == "dev")
	v.SetDefault("testMode", env == "test")
	v.SetDefault("secretKey", "x4m$+e2w!q9)uiu0#c6o7@p3z*dk^h1s(yfv%b8n5r=jgl_ta")
	v.SetDefault("frontendBaseURL", "http://localhost:3001")
	v.SetDefault("defaultFromEmail", "QuantumMF Tools <noreply@localhost>")
	v.SetDefault("sendgridApiKey", "")
	v.SetDefault("rollbarToken", "")

	v.SetDefault("server.host", "0.0.0.0")
	v.SetDefault("server.port", 3000)
	v.SetDefault("server.debugHost", "0.0.0.0:4000")
	v.SetDefault("server.shutdownTimeout", 5*time.Second)
	v.SetDefault("server.jwtExpirationDelta", 24*time.Hour)
	v.SetDefault("server.jwtRefreshExpirationDelta", 7*24*time.Hour)
	v.SetDefault("server.passwordResetTimeoutDelta", 3*24*time.Hour)
	v.SetDefault("server.corsOrigins", []string{"*"})
	v.SetDefault("server.rateLimit", 100)
	v.SetDefault("server.rateLimitWindow", 15*time.Minute)

	v.SetDefault("database.engine", EngineSQLite)
	v.SetDefault("database.url", "")
	v.SetDefault("database.path", "quantummf.db")
	v.SetDefault("database.host", "localhost")
	v.SetDefault("database.port", 5432)
	v.SetDefault("database.name", "quantummftools")
	v.SetDefault("database.user", "")
	v.SetDefault("database.password", "")
	v.SetDefault("database.adminUser", "")
	v.SetDefault("database.adminPassword", "")
	v.SetDefault("database.disableTLS", env == "dev" || env == "test")
}

// NewConfig reads the configuration from defaults, `config/.env.<env>` and the environment.
// ENV selects the environment (dev, test, qa, prod) and is used as the env vars prefix:
// `server.port` is read from DEV_SERVER_PORT in dev.
func NewConfig() *Config {
	env := strings.ToLower(CleanString(os.Getenv("ENV")))
	if env == "" {
		env = "dev"
	}

	v := viper.New()
	setDefaults(v, env)

	// load .env if it exists (ignore if it does not)
	dotEnvPath := filepath.Join("config", ".env."+env)
	if wd, err := os.Getwd(); err == nil {
		dotEnvPath = filepath.Join(wd, dotEnvPath)
	}
	if _, err := os.Stat(dotEnvPath); err == nil {
		if err := godotenv.Load(dotEnvPath); err != nil {
			log.Fatalf("config.godotenv(%s): %v", dotEnvPath, err)
		}
	} else if !os.IsNotExist(err) {
		log.Fatalf("config.os.Stat(%s): %v", dotEnvPath, err)
	}

	prefix := strings.ToUpper(env)
	v.SetEnvPrefix(prefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	// legacy names
	_ = v.BindEnv("server.port", prefix+"_SERVER_PORT", "PORT")
	_ = v.BindEnv("secretKey", prefix+"_SECRETKEY", "JWT_SECRET")
	_ = v.BindEnv("server.jwtExpirationDelta", prefix+"_SERVER_JWTEXPIRATIONDELTA", "JWT_EXPIRATION")
	_ = v.BindEnv("database.url", prefix+"_DATABASE_URL", "DATABASE_URL")

	from, err := mail.ParseAddress(v.GetString("defaultFromEmail"))
	if err != nil {
		log.Fatalf("config.defaultFromEmail: %v", err)
	}

	return &Config{
		Env:              env,
		Build:            v.GetString("build"),
		AppName:          v.GetString("appName"),
		Debug:            v.GetBool("debug"),
		TestMode:         v.GetBool("testMode"),
		SecretKey:        v.GetString("secretKey"),
		FrontendBaseURL:  strings.TrimRight(v.GetString("frontendBaseURL"), "/"),
		DefaultFromEmail: *from,
		SendgridAPIKey:   v.GetString("sendgridApiKey"),
		RollbarToken:     v.GetString("rollbarToken"),
		Server: ServerConfig{
			Host:                      v.GetString("server.host"),
			Port:                      v.GetInt("server.port"),
			DebugHost:                 v.GetString("server.debugHost"),
			ShutdownTimeout:           v.GetDuration("server.shutdownTimeout"),
			JWTExpirationDelta:        v.GetDuration("server.jwtExpirationDelta"),
			JWTRefreshExpirationDelta: v.GetDuration("server.jwtRefreshExpirationDelta"),
			PasswordResetTimeoutDelta: v.GetDuration("server.passwordResetTimeoutDelta"),
			CORSOrigins:               v.GetStringSlice("server.corsOrigins"),
			RateLimit:                 v.GetInt("server.rateLimit"),
			RateLimitWindow:           v.GetDuration("server.rateLimitWindow"),
		},
		Database: DatabaseConfig{
			Engine:        strings.ToLower(v.GetString("database.engine")),
			URL:           v.GetString("database.url"),
			Path:          v.GetString("database.path"),
			Host:          v.GetString("database.host"),
			Port:          v.GetInt("database.port"),
			Name:          v.GetString("database.name"),
			User:          v.GetString("database.user"),
			Password:      v.GetString("database.password"),
			AdminUser:     v.GetString("database.adminUser"),
			AdminPassword: v.GetString("database.adminPassword"),
			DisableTLS:    v.GetBool("database.disableTLS"),
		},
	}
}

// Validate checks the settings the app cannot start without.
func (c *Config) Validate() error {
	return vala.BeginValidation().Validate(
		vala.StringNotEmpty(c.SecretKey, "secretKey"),
		vala.StringNotEmpty(c.AppName, "appName"),
		vala.GreaterThan(c.Server.Port, 0, "server.port"),
		oneOf(c.Database.Engine, "database.engine", EngineSQLite, EnginePostgres),
	).Check()
}

func oneOf(val, paramName string, choices ...string) vala.Checker {
	return func() (bool, string) {
		for _, c := range choices {
			if val == c {
				return true, ""
			}
		}
		return false, fmt.Sprintf("parameter %s must be one of %s; got %q", paramName, strings.Join(choices, ", "), val)
	}
}
