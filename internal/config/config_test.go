package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewConfig(t *testing.T) {
	var (
		addr = "localhost:8080"
		dsn  = "host=localhost user=postgres password=postgres dbname=bookings sslmode=disable"
		key  = "c29tZV9zZWNyZXQ="
		orig = []string{"http://localhost:3000"}
	)

	tcases := []struct {
		name string
		addr string
		dsn  string
		key  string
		orig []string
		err  bool
	}{
		{
			name: "valid config",
			addr: addr,
			dsn:  dsn,
			key:  key,
			orig: orig,
			err:  false,
		},
		{
			name: "empty address",
			addr: "",
			dsn:  dsn,
			key:  key,
			orig: orig,
			err:  true,
		},
		{
			name: "empty DSN",
			addr: addr,
			dsn:  "",
			key:  key,
			orig: orig,
			err:  true,
		},
		{
			name: "empty signing key",
			addr: addr,
			dsn:  dsn,
			key:  "",
			orig: orig,
			err:  true,
		},
		{
			name: "undecodable signing key",
			addr: addr,
			dsn:  dsn,
			key:  "invalid_base64",
			orig: orig,
			err:  true,
		},
	}

	for _, tc := range tcases {
		t.Run(tc.name, func(t *testing.T) {
			config, err := NewConfig(tc.addr, tc.dsn, tc.key, tc.orig)
			if tc.err {
				assert.Error(t, err, "expected error for config: %s", tc.name)
				return
			}
			assert.NoError(t, err, "expected no error for config: %s", tc.name)

			assert.Equal(t, tc.addr, config.Server.Addr, "expected server address to match")
			assert.Equal(t, tc.dsn, config.Store.DSN, "expected database DSN to match")
			assert.Equal(t, tc.orig, config.Server.AllowedOrigins, "expected allowed origins to match")
			assert.Equal(t, []byte("some_secret"), config.SigningKey, "expected signing key to be decoded")
			assert.Equal(t, "Asia/Kolkata", config.Location.String())
			assert.Equal(t, zerolog.InfoLevel, config.LogLevel)
			assert.Equal(t, 24*time.Hour, config.RejectedDisplayWindow())
		})
	}
}

func Test_decodeSigningKey(t *testing.T) {
	tcases := []struct {
		name         string
		base64Secret string
		expectedKey  []byte
		expectError  bool
	}{
		{
			name:         "valid base64 secret",
			base64Secret: "c29tZV9zZWNyZXQ=",
			expectedKey:  []byte("some_secret"),
			expectError:  false,
		},
		{
			name:         "invalid base64 secret",
			base64Secret: "invalid_base64",
			expectedKey:  nil,
			expectError:  true,
		},
		{
			name:         "empty base64 secret",
			base64Secret: "",
			expectedKey:  nil,
			expectError:  true,
		},
	}

	for _, tc := range tcases {
		t.Run(tc.name, func(t *testing.T) {
			key, err := decodeSigningSecret(tc.base64Secret)
			if tc.expectError {
				assert.Error(t, err, "expected error for base64 secret: %s", tc.base64Secret)
			} else {
				assert.NoError(t, err, "expected no error for base64 secret: %s", tc.base64Secret)
				assert.Equal(t, tc.expectedKey, key)
			}
		})
	}
}

func TestLoad(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.yaml")
	yamlConfig := `
server:
  addr: ":9000"
  signing_secret: "${TEST_SIGNING_SECRET}"
  allowed_origins:
    - "https://temple.example"
store:
  driver: memory
booking:
  grace_minutes: 10
log:
  level: debug
`
	require.NoError(t, os.WriteFile(path, []byte(yamlConfig), 0o600))

	t.Setenv("TEST_SIGNING_SECRET", "c29tZV9zZWNyZXQ=")
	t.Setenv("BOOKING_REDIS_ADDR", "localhost:6379")
	t.Setenv("BOOKING_BOOKING_GRACE_MINUTES", "7")

	cfg, err := Load(path)
	require.NoError(t, err)
	require.NoError(t, cfg.Resolve())

	assert.Equal(t, ":9000", cfg.Server.Addr)
	assert.Equal(t, []string{"https://temple.example"}, cfg.Server.AllowedOrigins)
	assert.Equal(t, StoreMemory, cfg.Store.Driver)
	assert.Equal(t, "localhost:6379", cfg.Redis.Addr, "expected environment to fill unset values")
	assert.Equal(t, 7, cfg.Booking.GraceMinutes, "expected environment to override the file")
	assert.Equal(t, 24, cfg.Booking.RejectedDisplayHours, "expected defaults for values in neither")
	assert.True(t, cfg.Server.BroadcastAll)
	assert.Equal(t, zerolog.DebugLevel, cfg.LogLevel)
	assert.Equal(t, []byte("some_secret"), cfg.SigningKey)
}

func TestLoad_Errors(t *testing.T) {
	t.Run("missing file", func(t *testing.T) {
		_, err := Load(filepath.Join(t.TempDir(), "missing.yaml"))
		assert.Error(t, err)
	})

	t.Run("malformed yaml", func(t *testing.T) {
		path := filepath.Join(t.TempDir(), "bad.yaml")
		require.NoError(t, os.WriteFile(path, []byte("server: [unclosed"), 0o600))
		_, err := Load(path)
		assert.Error(t, err)
	})
}

func TestResolve_Errors(t *testing.T) {
	tcases := []struct {
		name   string
		mutate func(c *Config)
	}{
		{name: "unknown store driver", mutate: func(c *Config) { c.Store.Driver = "sqlite" }},
		{name: "unknown timezone", mutate: func(c *Config) { c.Booking.Timezone = "Mars/Olympus" }},
		{name: "unknown log level", mutate: func(c *Config) { c.Log.Level = "loud" }},
	}

	for _, tc := range tcases {
		t.Run(tc.name, func(t *testing.T) {
			cfg := Default()
			cfg.Store.Driver = StoreMemory
			cfg.Server.SigningSecret = "c29tZV9zZWNyZXQ="
			tc.mutate(cfg)
			assert.Error(t, cfg.Resolve())
		})
	}
}
