// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 HoloMUSH Contributors

package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/spf13/pflag"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/holomush/todochat/pkg/errutil"
)

// isolate clears the environment variables Load reads and points the XDG
// config directory at an empty temp dir.
func isolate(t *testing.T) string {
	t.Helper()
	dir := t.TempDir()
	t.Setenv("XDG_CONFIG_HOME", dir)
	for _, name := range []string{EnvDatabaseURL, EnvRedisURL, EnvTriggerToken} {
		t.Setenv(name, "")
	}
	return dir
}

func writeFile(t *testing.T, path, content string) {
	t.Helper()
	require.NoError(t, os.MkdirAll(filepath.Dir(path), 0o700))
	require.NoError(t, os.WriteFile(path, []byte(content), 0o600))
}

func TestLoad_Defaults(t *testing.T) {
	isolate(t)
	t.Setenv(EnvDatabaseURL, "postgres://localhost/todochat")

	cfg, err := Load(Options{EnvFiles: []string{}})
	require.NoError(t, err)

	assert.Equal(t, ":8080", cfg.Server.Addr)
	assert.Equal(t, "json", cfg.Log.Format)
	assert.Equal(t, DriverPostgres, cfg.Store.Driver)
	assert.Equal(t, "postgres://localhost/todochat", cfg.Store.DatabaseURL)
	assert.Equal(t, 5*time.Second, cfg.Chat.StoreTimeout)
	assert.Equal(t, 256, cfg.Chat.QueueSize)
	assert.Equal(t, "todochat_session", cfg.Auth.CookieName)
	assert.Equal(t, 54*time.Second, cfg.Websocket.PingInterval)
	assert.Equal(t, int64(64*1024), cfg.Websocket.MaxMessageBytes)
	assert.False(t, cfg.RateLimited(), "rate limiting is opt-in")
	assert.True(t, cfg.HasDatabase())
}

func TestLoad_PostgresRequiresDatabaseURL(t *testing.T) {
	isolate(t)

	_, err := Load(Options{EnvFiles: []string{}})
	errutil.AssertErrorCode(t, err, "CONFIG_INVALID")
}

func TestLoad_XDGFile(t *testing.T) {
	dir := isolate(t)
	writeFile(t, filepath.Join(dir, "todochat", "config.yaml"), `
store:
  driver: memory
chat:
  store_timeout: 2s
  avatar_base_url: https://pub-abc.r2.dev
auth:
  admin_emails:
    - "*@example.com"
`)

	cfg, err := Load(Options{EnvFiles: []string{}})
	require.NoError(t, err)

	assert.Equal(t, DriverMemory, cfg.Store.Driver)
	assert.Equal(t, 2*time.Second, cfg.Chat.StoreTimeout)
	assert.Equal(t, "https://pub-abc.r2.dev", cfg.Chat.AvatarBaseURL)
	assert.Equal(t, []string{"*@example.com"}, cfg.Auth.AdminEmails)
	assert.False(t, cfg.HasDatabase())
}

func TestLoad_ExplicitFileMustExist(t *testing.T) {
	isolate(t)

	_, err := Load(Options{ConfigFile: filepath.Join(t.TempDir(), "missing.yaml"), EnvFiles: []string{}})
	errutil.AssertErrorCode(t, err, "CONFIG_FILE_INVALID")
}

func TestLoad_EnvFileOverridesFile(t *testing.T) {
	isolate(t)
	dir := t.TempDir()
	cfgPath := filepath.Join(dir, "todochat.yaml")
	writeFile(t, cfgPath, "store:\n  driver: redis\n  redis_url: redis://file:6379\n")
	envPath := filepath.Join(dir, ".env")
	writeFile(t, envPath, "REDIS_URL=redis://env:6379\nTODOCHAT_TRIGGER_TOKEN=secret\n")
	t.Cleanup(func() {
		_ = os.Unsetenv(EnvRedisURL)
		_ = os.Unsetenv(EnvTriggerToken)
	})
	// godotenv does not override variables that are already set.
	require.NoError(t, os.Unsetenv(EnvRedisURL))
	require.NoError(t, os.Unsetenv(EnvTriggerToken))

	cfg, err := Load(Options{ConfigFile: cfgPath, EnvFiles: []string{envPath}})
	require.NoError(t, err)

	assert.Equal(t, DriverRedis, cfg.Store.Driver)
	assert.Equal(t, "redis://env:6379", cfg.Store.RedisURL)
	assert.Equal(t, "secret", cfg.Chat.TriggerToken)
}

func TestLoad_FlagsOverrideFile(t *testing.T) {
	isolate(t)
	cfgPath := filepath.Join(t.TempDir(), "todochat.yaml")
	writeFile(t, cfgPath, "server:\n  addr: :9000\nstore:\n  driver: memory\nlog:\n  format: text\n")

	fs := pflag.NewFlagSet("serve", pflag.ContinueOnError)
	RegisterFlags(fs)
	require.NoError(t, fs.Parse([]string{"--addr", ":7000", "--admin-email", "*@ops.example.com", "--auto-migrate"}))

	cfg, err := Load(Options{ConfigFile: cfgPath, EnvFiles: []string{}, Flags: fs})
	require.NoError(t, err)

	assert.Equal(t, ":7000", cfg.Server.Addr)
	assert.Equal(t, "text", cfg.Log.Format, "unset flags keep file values")
	assert.Equal(t, []string{"*@ops.example.com"}, cfg.Auth.AdminEmails)
	assert.True(t, cfg.Store.AutoMigrate)
}

func TestValidate(t *testing.T) {
	valid := func() Config {
		return Config{
			Server: ServerConfig{Addr: ":8080"},
			Log:    LogConfig{Format: "json"},
			Store:  StoreConfig{Driver: DriverMemory, RedisMaxLen: 10},
			Chat:   ChatConfig{StoreTimeout: time.Second, QueueSize: 1, RateBurst: 1, RatePerSecond: 1},
			Websocket: WebsocketConfig{
				WriteTimeout: time.Second, PongTimeout: time.Minute, PingInterval: time.Second,
				MaxMessageBytes: 1024, SendBuffer: 1,
			},
		}
	}

	tests := []struct {
		name   string
		mutate func(c *Config)
	}{
		{"missing addr", func(c *Config) { c.Server.Addr = "" }},
		{"bad log format", func(c *Config) { c.Log.Format = "xml" }},
		{"unknown driver", func(c *Config) { c.Store.Driver = "sqlite" }},
		{"redis without url", func(c *Config) { c.Store.Driver = DriverRedis }},
		{"zero store timeout", func(c *Config) { c.Chat.StoreTimeout = 0 }},
		{"zero queue", func(c *Config) { c.Chat.QueueSize = 0 }},
		{"negative rate", func(c *Config) { c.Chat.RatePerSecond = -1 }},
		{"rate without burst", func(c *Config) { c.Chat.RateBurst = 0 }},
		{"relative avatar url", func(c *Config) { c.Chat.AvatarBaseURL = "avatars/" }},
		{"ping not shorter than pong", func(c *Config) { c.Websocket.PingInterval = time.Minute }},
		{"zero send buffer", func(c *Config) { c.Websocket.SendBuffer = 0 }},
		{"empty admin pattern", func(c *Config) { c.Auth.AdminEmails = []string{""} }},
	}

	base := valid()
	require.NoError(t, base.Validate())

	unlimited := valid()
	unlimited.Chat.RatePerSecond = 0
	unlimited.Chat.RateBurst = 0
	require.NoError(t, unlimited.Validate(), "a zero rate disables limiting")

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c := valid()
			tt.mutate(&c)
			errutil.AssertErrorCode(t, c.Validate(), "CONFIG_INVALID")
		})
	}
}
