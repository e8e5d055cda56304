package core

import (
	"net/url"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/pkg/errors"
	"github.com/spf13/viper"
)

// Environments
const (
	EnvDev  = "DEV"
	EnvTest = "TEST"
	EnvQA   = "QA"
	EnvProd = "PROD"
)

// Database engines
const (
	EngineMongo    = "mongo"
	EnginePostgres = "postgres"
	EngineMemory   = "memory"
)

const (
	defaultDBName        = "lumos-portal"
	defaultSessionSecret = "lumos-portal-secret-change-in-production"
)

type Config struct {
	AppName  string
	Build    string
	Env      string
	Debug    bool
	TestMode bool

	Server struct {
		Addr            string
		DebugAddr       string
		PublicDir       string
		BodyLimit       string
		ShutdownTimeout time.Duration
	}

	Database struct {
		Engine        string
		URI           string
		Name          string
		RetryInterval time.Duration
	}

	Session struct {
		Store      string
		Secret     string
		TTL        time.Duration
		CookieName string
		Secure     bool
	}

	Redis struct {
		Addr     string
		Password string
		DB       int
	}

	SuperAdmin struct {
		Login    string
		Password string
	}

	Import struct {
		DefaultPassword string
	}

	Seed struct {
		Email    string
		Password string
		Name     string
	}

	Log struct {
		Level string
		File  string
	}

	RollbarToken string
}

// IsProd reports whether the app runs in production.
func (c *Config) IsProd() bool { return c.Env == EnvProd }

// UsesDefaultSecret reports whether the session secret was left to its development default.
func (c *Config) UsesDefaultSecret() bool { return c.Session.Secret == defaultSessionSecret }

// NewConfig loads the app configuration from the environment.
// `config/.env.<env>` is loaded first when it exists.
func NewConfig() (*Config, error) {
	env := strings.ToUpper(os.Getenv("ENV")) // DEV (local; default), TEST, QA, PROD
	if env == "" {
		if strings.EqualFold(os.Getenv("NODE_ENV"), "production") {
			env = EnvProd
		} else {
			env = EnvDev
		}
	}

	// load .env if it exists (ignore if it does not)
	wd, err := os.Getwd()
	if err != nil {
		return nil, errors.Wrap(err, "getting working directory")
	}
	dotEnvPath := filepath.Join(wd, "config", ".env."+strings.ToLower(env))
	if _, err := os.Stat(dotEnvPath); err == nil {
		if err := godotenv.Load(dotEnvPath); err != nil {
			return nil, errors.Wrapf(err, "loading %s", dotEnvPath)
		}
	} else if !os.IsNotExist(err) {
		return nil, errors.Wrapf(err, "checking %s", dotEnvPath)
	}

	return newConfig(env, viper.New())
}

func newConfig(env string, v *viper.Viper) (*Config, error) {
	// defaults
	v.SetTypeByDefaultValue(true)
	v.SetDefault("appName", "Lumos Portal")
	v.SetDefault("build", "dev")
	v.SetDefault("debug", env != EnvProd)
	v.SetDefault("server.addr", "")
	v.SetDefault("server.port", "3000")
	v.SetDefault("server.debugAddr", "localhost:4000")
	v.SetDefault("server.publicDir", "public")
	v.SetDefault("server.bodyLimit", "10M")
	v.SetDefault("server.shutdownTimeout", 5*time.Second)
	v.SetDefault("database.engine", EngineMongo)
	v.SetDefault("database.uri", "mongodb://localhost:27017/"+defaultDBName)
	v.SetDefault("database.name", "")
	v.SetDefault("database.retryInterval", 5*time.Second)
	v.SetDefault("session.store", "")
	v.SetDefault("session.secret", defaultSessionSecret)
	v.SetDefault("session.ttl", 7*24*time.Hour)
	v.SetDefault("session.cookieName", "lumos.sid")
	v.SetDefault("redis.addr", "localhost:6379")
	v.SetDefault("redis.password", "")
	v.SetDefault("redis.db", 0)
	v.SetDefault("superAdmin.login", "")
	v.SetDefault("superAdmin.password", "")
	v.SetDefault("import.defaultPassword", "changeme123")
	v.SetDefault("seed.email", "admin@lumos.edu")
	v.SetDefault("seed.password", "admin123")
	v.SetDefault("seed.name", "Admin")
	v.SetDefault("log.level", "info")
	v.SetDefault("log.file", "")
	v.SetDefault("rollbarToken", "")

	binds := map[string][]string{
		"appName":                {"APP_NAME"},
		"build":                  {"BUILD"},
		"debug":                  {"DEBUG"},
		"server.addr":            {"SERVER_ADDR"},
		"server.port":            {"PORT"},
		"server.debugAddr":       {"SERVER_DEBUG_ADDR"},
		"server.publicDir":       {"SERVER_PUBLIC_DIR"},
		"server.bodyLimit":       {"SERVER_BODY_LIMIT"},
		"server.shutdownTimeout": {"SERVER_SHUTDOWN_TIMEOUT"},
		"database.engine":        {"DB_ENGINE"},
		"database.uri":           {"MONGODB_URI", "MONGO_URI", "MONGO_URL", "DATABASE_URL"},
		"database.name":          {"DB_NAME"},
		"database.retryInterval": {"DB_RETRY_INTERVAL"},
		"session.store":          {"SESSION_STORE"},
		"session.secret":         {"SESSION_SECRET"},
		"session.ttl":            {"SESSION_TTL"},
		"session.cookieName":     {"SESSION_COOKIE"},
		"redis.addr":             {"REDIS_ADDR"},
		"redis.password":         {"REDIS_PASSWORD"},
		"redis.db":               {"REDIS_DB"},
		"superAdmin.login":       {"SUPER_ADMIN_LOGIN"},
		"superAdmin.password":    {"SUPER_ADMIN_PASSWORD"},
		"import.defaultPassword": {"IMPORT_DEFAULT_PASSWORD"},
		"seed.email":             {"ADMIN_EMAIL"},
		"seed.password":          {"ADMIN_PASSWORD"},
		"seed.name":              {"ADMIN_NAME"},
		"log.level":              {"LOG_LEVEL"},
		"log.file":               {"LOG_FILE"},
		"rollbarToken":           {"ROLLBAR_TOKEN"},
	}
	for key, envs := range binds {
		if err := v.BindEnv(append([]string{key}, envs...)...); err != nil {
			return nil, errors.Wrapf(err, "binding %s", key)
		}
	}

	conf := new(Config)
	conf.Env = env
	conf.TestMode = env == EnvTest
	conf.AppName = v.GetString("appName")
	conf.Build = v.GetString("build")
	conf.Debug = v.GetBool("debug")

	conf.Server.Addr = v.GetString("server.addr")
	if conf.Server.Addr == "" {
		conf.Server.Addr = ":" + v.GetString("server.port")
	}
	conf.Server.DebugAddr = v.GetString("server.debugAddr")
	conf.Server.PublicDir = v.GetString("server.publicDir")
	conf.Server.BodyLimit = v.GetString("server.bodyLimit")
	conf.Server.ShutdownTimeout = v.GetDuration("server.shutdownTimeout")

	conf.Database.Engine = strings.ToLower(CleanString(v.GetString("database.engine")))
	switch conf.Database.Engine {
	case EngineMongo, EnginePostgres, EngineMemory:
	default:
		return nil, errors.Errorf("unknown database engine %q", conf.Database.Engine)
	}
	conf.Database.URI = CleanString(v.GetString("database.uri"))
	conf.Database.Name = CleanString(v.GetString("database.name"))
	if conf.Database.Name == "" {
		conf.Database.Name = dbNameFromURI(conf.Database.URI)
	}
	conf.Database.RetryInterval = v.GetDuration("database.retryInterval")

	conf.Session.Store = strings.ToLower(CleanString(v.GetString("session.store")))
	if conf.Session.Store == "" {
		conf.Session.Store = conf.Database.Engine
	}
	conf.Session.Secret = v.GetString("session.secret")
	conf.Session.TTL = v.GetDuration("session.ttl")
	conf.Session.CookieName = v.GetString("session.cookieName")
	conf.Session.Secure = conf.IsProd()

	conf.Redis.Addr = v.GetString("redis.addr")
	conf.Redis.Password = v.GetString("redis.password")
	conf.Redis.DB = v.GetInt("redis.db")

	conf.SuperAdmin.Login = CleanString(v.GetString("superAdmin.login"))
	conf.SuperAdmin.Password = v.GetString("superAdmin.password")

	conf.Import.DefaultPassword = CleanString(v.GetString("import.defaultPassword"))

	conf.Seed.Email = CleanString(v.GetString("seed.email"), true /* lower */)
	conf.Seed.Password = v.GetString("seed.password")
	conf.Seed.Name = CleanString(v.GetString("seed.name"))

	conf.Log.Level = v.GetString("log.level")
	conf.Log.File = v.GetString("log.file")
	conf.RollbarToken = v.GetString("rollbarToken")

	return conf, nil
}

// dbNameFromURI returns the database named in the URI path, if any.
func dbNameFromURI(uri string) string {
	u, err := url.Parse(uri)
	if err != nil {
		return defaultDBName
	}
	if name := strings.Trim(u.Path, "/"); name != "" {
		return name
	}
	return defaultDBName
}
