// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 HoloMUSH Contributors

// Package config loads todochat configuration from defaults, an optional
// YAML file, the environment and command-line flags, in that order.
package config

import (
	"errors"
	"io/fs"
	"net/url"
	"os"
	"slices"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/knadh/koanf/parsers/yaml"
	"github.com/knadh/koanf/providers/file"
	"github.com/knadh/koanf/providers/posflag"
	"github.com/knadh/koanf/v2"
	"github.com/samber/oops"
	"github.com/spf13/pflag"

	"github.com/holomush/todochat/internal/xdg"
)

// Store drivers.
const (
	DriverPostgres = "postgres"
	DriverRedis    = "redis"
	DriverMemory   = "memory"
)

// Environment variables read after .env files are loaded.
const (
	EnvDatabaseURL  = "DATABASE_URL"
	EnvRedisURL     = "REDIS_URL"
	EnvTriggerToken = "TODOCHAT_TRIGGER_TOKEN"
)

// Config is the complete todochat configuration.
type Config struct {
	Server    ServerConfig    `koanf:"server"`
	Log       LogConfig       `koanf:"log"`
	Store     StoreConfig     `koanf:"store"`
	Chat      ChatConfig      `koanf:"chat"`
	Auth      AuthConfig      `koanf:"auth"`
	Websocket WebsocketConfig `koanf:"websocket"`
}

// ServerConfig configures the HTTP listeners.
type ServerConfig struct {
	Addr            string        `koanf:"addr"`
	MetricsAddr     string        `koanf:"metrics_addr"`
	ShutdownTimeout time.Duration `koanf:"shutdown_timeout"`
}

// LogConfig configures logging.
type LogConfig struct {
	Format string `koanf:"format"`
	Level  string `koanf:"level"`
}

// StoreConfig selects and configures the message store.
type StoreConfig struct {
	Driver         string        `koanf:"driver"`
	DatabaseURL    string        `koanf:"database_url"`
	RedisURL       string        `koanf:"redis_url"`
	RedisMaxLen    int64         `koanf:"redis_max_len"`
	ConnectRetries int           `koanf:"connect_retries"`
	ConnectBackoff time.Duration `koanf:"connect_backoff"`
	AutoMigrate    bool          `koanf:"auto_migrate"`
}

// ChatConfig configures the room hubs.
type ChatConfig struct {
	StoreTimeout  time.Duration `koanf:"store_timeout"`
	QueueSize     int           `koanf:"queue_size"`
	AvatarBaseURL string        `koanf:"avatar_base_url"`
	TriggerToken  string        `koanf:"trigger_token"`
	RateBurst     int           `koanf:"rate_burst"`
	// RatePerSecond enables per-session post rate limiting when positive.
	RatePerSecond float64 `koanf:"rate_per_second"`
}

// AuthConfig configures session authorization.
type AuthConfig struct {
	CookieName  string   `koanf:"cookie_name"`
	AdminEmails []string `koanf:"admin_emails"`
}

// WebsocketConfig configures websocket connections.
type WebsocketConfig struct {
	WriteTimeout    time.Duration `koanf:"write_timeout"`
	PongTimeout     time.Duration `koanf:"pong_timeout"`
	PingInterval    time.Duration `koanf:"ping_interval"`
	MaxMessageBytes int64         `koanf:"max_message_bytes"`
	SendBuffer      int           `koanf:"send_buffer"`
	AllowedOrigins  []string      `koanf:"allowed_origins"`
}

// Defaults returns the built-in configuration values keyed by path.
func Defaults() map[string]any {
	return map[string]any{
		"server.addr":                 ":8080",
		"server.metrics_addr":         "127.0.0.1:9100",
		"server.shutdown_timeout":     10 * time.Second,
		"log.format":                  "json",
		"log.level":                   "info",
		"store.driver":                DriverPostgres,
		"store.database_url":          "",
		"store.redis_url":             "",
		"store.redis_max_len":         int64(1000),
		"store.connect_retries":       5,
		"store.connect_backoff":       500 * time.Millisecond,
		"store.auto_migrate":          false,
		"chat.store_timeout":          5 * time.Second,
		"chat.queue_size":             256,
		"chat.avatar_base_url":        "",
		"chat.trigger_token":          "",
		"chat.rate_burst":             10,
		"chat.rate_per_second":        0.0,
		"auth.cookie_name":            "todochat_session",
		"auth.admin_emails":           []string{},
		"websocket.write_timeout":     10 * time.Second,
		"websocket.pong_timeout":      60 * time.Second,
		"websocket.ping_interval":     54 * time.Second,
		"websocket.max_message_bytes": int64(64 * 1024),
		"websocket.send_buffer":       64,
		"websocket.allowed_origins":   []string{},
	}
}

// flagKeys maps command-line flag names to config keys.
var flagKeys = map[string]string{
	"addr":            "server.addr",
	"metrics-addr":    "server.metrics_addr",
	"log-format":      "log.format",
	"log-level":       "log.level",
	"store-driver":    "store.driver",
	"auto-migrate":    "store.auto_migrate",
	"avatar-base-url": "chat.avatar_base_url",
	"admin-email":     "auth.admin_emails",
	"allowed-origin":  "websocket.allowed_origins",
}

// RegisterFlags adds the serve flags to fs. Flag defaults are empty;
// only flags the user sets override lower layers.
func RegisterFlags(fs *pflag.FlagSet) {
	fs.String("addr", "", "HTTP listen address (default :8080)")
	fs.String("metrics-addr", "", "metrics/health HTTP address (default 127.0.0.1:9100)")
	fs.String("log-format", "", "log format (json or text)")
	fs.String("log-level", "", "log level (debug, info, warn, error)")
	fs.String("store-driver", "", "message store driver (postgres, redis or memory)")
	fs.Bool("auto-migrate", false, "apply pending database migrations at startup")
	fs.String("avatar-base-url", "", "public base URL for avatar storage keys")
	fs.StringSlice("admin-email", nil, "email glob granted admin access (repeatable)")
	fs.StringSlice("allowed-origin", nil, "allowed websocket Origin host (repeatable)")
}

// Options controls where Load reads from.
type Options struct {
	// ConfigFile is an explicit YAML path. When empty, the XDG config file
	// is used if it exists.
	ConfigFile string
	// EnvFiles are dotenv files to load. Missing files are ignored. When
	// nil, ".env" is tried.
	EnvFiles []string
	// Flags, if set, supplies command-line overrides.
	Flags *pflag.FlagSet
}

// Load builds a Config from all layers and validates it.
func Load(opts Options) (*Config, error) {
	if err := loadEnvFiles(opts.EnvFiles); err != nil {
		return nil, err
	}

	k := koanf.New(".")
	for key, value := range Defaults() {
		if err := k.Set(key, value); err != nil {
			return nil, oops.Code("CONFIG_DEFAULTS_FAILED").With("key", key).Wrap(err)
		}
	}

	path, explicit, err := configPath(opts.ConfigFile)
	if err != nil {
		return nil, err
	}
	if path != "" {
		if err := k.Load(file.Provider(path), yaml.Parser()); err != nil {
			if explicit || !errors.Is(err, fs.ErrNotExist) {
				return nil, oops.Code("CONFIG_FILE_INVALID").With("path", path).Wrap(err)
			}
		}
	}

	if err := applyEnv(k); err != nil {
		return nil, err
	}

	if opts.Flags != nil {
		provider := posflag.ProviderWithFlag(opts.Flags, ".", k, func(f *pflag.Flag) (string, any) {
			key, ok := flagKeys[f.Name]
			if !ok {
				return "", nil
			}
			return key, posflag.FlagVal(opts.Flags, f)
		})
		if err := k.Load(provider, nil); err != nil {
			return nil, oops.Code("CONFIG_FLAGS_INVALID").Wrap(err)
		}
	}

	var cfg Config
	if err := k.UnmarshalWithConf("", &cfg, koanf.UnmarshalConf{Tag: "koanf"}); err != nil {
		return nil, oops.Code("CONFIG_DECODE_FAILED").Wrap(err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

func loadEnvFiles(files []string) error {
	if files == nil {
		files = []string{".env"}
	}
	for _, f := range files {
		if err := godotenv.Load(f); err != nil && !errors.Is(err, fs.ErrNotExist) {
			return oops.Code("CONFIG_ENV_FILE_INVALID").With("path", f).Wrap(err)
		}
	}
	return nil
}

func configPath(explicit string) (string, bool, error) {
	if explicit != "" {
		return explicit, true, nil
	}
	path, err := xdg.ConfigFile()
	if err != nil {
		// No home directory means no default file.
		return "", false, nil //nolint:nilerr // optional file
	}
	return path, false, nil
}

func applyEnv(k *koanf.Koanf) error {
	env := map[string]string{
		EnvDatabaseURL:  "store.database_url",
		EnvRedisURL:     "store.redis_url",
		EnvTriggerToken: "chat.trigger_token",
	}
	for name, key := range env {
		if v, ok := os.LookupEnv(name); ok && v != "" {
			if err := k.Set(key, v); err != nil {
				return oops.Code("CONFIG_ENV_INVALID").With("env", name).Wrap(err)
			}
		}
	}
	return nil
}

// Validate checks that the configuration is usable.
func (c *Config) Validate() error {
	if c.Server.Addr == "" {
		return oops.Code("CONFIG_INVALID").Errorf("server.addr is required")
	}
	if c.Log.Format != "json" && c.Log.Format != "text" {
		return oops.Code("CONFIG_INVALID").Errorf("log.format must be 'json' or 'text', got %q", c.Log.Format)
	}
	switch c.Store.Driver {
	case DriverPostgres:
		if c.Store.DatabaseURL == "" {
			return oops.Code("CONFIG_INVALID").Errorf("%s is required for the postgres store", EnvDatabaseURL)
		}
	case DriverRedis:
		if c.Store.RedisURL == "" {
			return oops.Code("CONFIG_INVALID").Errorf("%s is required for the redis store", EnvRedisURL)
		}
		if c.Store.RedisMaxLen <= 0 {
			return oops.Code("CONFIG_INVALID").Errorf("store.redis_max_len must be positive")
		}
	case DriverMemory:
	default:
		return oops.Code("CONFIG_INVALID").Errorf("store.driver must be one of %s, got %q",
			strings.Join([]string{DriverPostgres, DriverRedis, DriverMemory}, ", "), c.Store.Driver)
	}
	if c.Chat.StoreTimeout <= 0 {
		return oops.Code("CONFIG_INVALID").Errorf("chat.store_timeout must be positive")
	}
	if c.Chat.QueueSize <= 0 {
		return oops.Code("CONFIG_INVALID").Errorf("chat.queue_size must be positive")
	}
	if c.Chat.RatePerSecond < 0 {
		return oops.Code("CONFIG_INVALID").Errorf("chat.rate_per_second must not be negative")
	}
	if c.RateLimited() && c.Chat.RateBurst <= 0 {
		return oops.Code("CONFIG_INVALID").Errorf("chat.rate_burst must be positive when rate limiting is enabled")
	}
	if c.Chat.AvatarBaseURL != "" {
		u, err := url.Parse(c.Chat.AvatarBaseURL)
		if err != nil || u.Scheme == "" || u.Host == "" {
			return oops.Code("CONFIG_INVALID").Errorf("chat.avatar_base_url must be an absolute URL, got %q", c.Chat.AvatarBaseURL)
		}
	}
	if c.Websocket.PingInterval >= c.Websocket.PongTimeout {
		return oops.Code("CONFIG_INVALID").Errorf("websocket.ping_interval must be shorter than websocket.pong_timeout")
	}
	if c.Websocket.WriteTimeout <= 0 || c.Websocket.MaxMessageBytes <= 0 || c.Websocket.SendBuffer <= 0 {
		return oops.Code("CONFIG_INVALID").Errorf("websocket limits must be positive")
	}
	if slices.Contains(c.Auth.AdminEmails, "") {
		return oops.Code("CONFIG_INVALID").Errorf("auth.admin_emails must not contain empty patterns")
	}
	return nil
}

// RateLimited reports whether per-session post rate limiting is enabled.
func (c *Config) RateLimited() bool {
	return c.Chat.RatePerSecond > 0
}

// HasDatabase reports whether a Postgres database is configured. The auth
// repositories need one regardless of the message store driver.
func (c *Config) HasDatabase() bool {
	return c.Store.DatabaseURL != ""
}
