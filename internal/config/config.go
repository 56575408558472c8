// Package config loads runtime settings.
package config

import (
	"errors"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"time"

	"github.com/BurntSushi/toml"

	"sharedtodo/internal/util"
)

// MemoryDB selects the in-memory gateway instead of SQLite.
const MemoryDB = ":memory:"

// Config keeps runtime settings for the server.
type Config struct {
	Addr              string        `toml:"addr"`
	DBPath            string        `toml:"db_path"`
	StaticDir         string        `toml:"static_dir"`
	JWTSecret         string        `toml:"jwt_secret"`
	DefaultCategory   string        `toml:"default_category"`
	ReconcileInterval time.Duration `toml:"reconcile_interval"`
	LogLevel          string        `toml:"log_level"`

	// PrintToken, when set, prints a development token for that user id and exits.
	PrintToken string `toml:"-"`
}

func defaults() Config {
	return Config{
		Addr:              ":8080",
		DBPath:            "data/todo.db",
		StaticDir:         "web/dist",
		DefaultCategory:   "My Tasks",
		ReconcileInterval: 15 * time.Minute,
		LogLevel:          "info",
	}
}

// Load resolves configuration in priority order:
// 1. Defaults
// 2. TOML file named by -config or TODO_CONFIG
// 3. Environment variables
// 4. CLI flags that were set explicitly
func Load(fs *flag.FlagSet, args []string) (Config, error) {
	cfg := defaults()

	var fromFlags Config
	configPath := fs.String("config", os.Getenv("TODO_CONFIG"), "Path to a TOML config file")
	fs.StringVar(&fromFlags.Addr, "addr", cfg.Addr, "HTTP listen address")
	fs.StringVar(&fromFlags.DBPath, "db", cfg.DBPath, "Path to sqlite database file, or :memory:")
	fs.StringVar(&fromFlags.StaticDir, "static", cfg.StaticDir, "Directory with built frontend")
	fs.StringVar(&fromFlags.JWTSecret, "jwt-secret", "", "HS256 secret for identity tokens")
	fs.StringVar(&fromFlags.DefaultCategory, "default-category", cfg.DefaultCategory, "Name of the category created for new users")
	fs.DurationVar(&fromFlags.ReconcileInterval, "reconcile-interval", cfg.ReconcileInterval, "Interval of the maintenance sweep, 0 disables it")
	fs.StringVar(&fromFlags.LogLevel, "log-level", cfg.LogLevel, "Log level: debug, info, warn, error")
	fs.StringVar(&fromFlags.PrintToken, "print-token", "", "Print a development token for the given user id and exit")
	if err := fs.Parse(args); err != nil {
		return Config{}, fmt.Errorf("parsing flags: %w", err)
	}

	if *configPath != "" {
		if _, err := toml.DecodeFile(*configPath, &cfg); err != nil {
			return Config{}, fmt.Errorf("loading config file %s: %w", *configPath, err)
		}
	}

	loadFromEnv(&cfg)

	fs.Visit(func(f *flag.Flag) {
		switch f.Name {
		case "addr":
			cfg.Addr = fromFlags.Addr
		case "db":
			cfg.DBPath = fromFlags.DBPath
		case "static":
			cfg.StaticDir = fromFlags.StaticDir
		case "jwt-secret":
			cfg.JWTSecret = fromFlags.JWTSecret
		case "default-category":
			cfg.DefaultCategory = fromFlags.DefaultCategory
		case "reconcile-interval":
			cfg.ReconcileInterval = fromFlags.ReconcileInterval
		case "log-level":
			cfg.LogLevel = fromFlags.LogLevel
		}
	})
	cfg.PrintToken = fromFlags.PrintToken

	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

func loadFromEnv(cfg *Config) {
	cfg.Addr = util.EnvOrDefault("TODO_ADDR", cfg.Addr)
	cfg.DBPath = util.EnvOrDefault("TODO_DB_PATH", cfg.DBPath)
	cfg.StaticDir = util.EnvOrDefault("TODO_STATIC_DIR", cfg.StaticDir)
	cfg.JWTSecret = util.EnvOrDefault("TODO_JWT_SECRET", cfg.JWTSecret)
	cfg.DefaultCategory = util.EnvOrDefault("TODO_DEFAULT_CATEGORY", cfg.DefaultCategory)
	cfg.ReconcileInterval = util.EnvDuration("TODO_RECONCILE_INTERVAL", cfg.ReconcileInterval)
	cfg.LogLevel = util.EnvOrDefault("TODO_LOG_LEVEL", cfg.LogLevel)
}

// Validate checks required settings.
func (c Config) Validate() error {
	var errs []error
	if c.Addr == "" {
		errs = append(errs, errors.New("addr is required"))
	}
	if c.DBPath == "" {
		errs = append(errs, errors.New("db path is required"))
	}
	if c.JWTSecret == "" {
		errs = append(errs, errors.New("jwt secret is required (TODO_JWT_SECRET)"))
	}
	if c.ReconcileInterval < 0 {
		errs = append(errs, errors.New("reconcile interval must not be negative"))
	}
	if _, err := c.Level(); err != nil {
		errs = append(errs, err)
	}
	return errors.Join(errs...)
}

// Level parses LogLevel.
func (c Config) Level() (slog.Level, error) {
	var level slog.Level
	if err := level.UnmarshalText([]byte(c.LogLevel)); err != nil {
		return slog.LevelInfo, fmt.Errorf("invalid log level %q", c.LogLevel)
	}
	return level, nil
}

// InMemory reports whether the in-memory gateway is selected.
func (c Config) InMemory() bool {
	return c.DBPath == MemoryDB
}
