package config

import (
	"encoding/base64"
	"errors"
	"fmt"
	"os"
	"time"
	_ "time/tzdata"

	"github.com/kelseyhightower/envconfig"
	"github.com/rs/zerolog"
	"gopkg.in/yaml.v3"
)

const (
	EnvPrefix = "BOOKING"

	StoreMemory   = "memory"
	StorePostgres = "postgres"
)

type Config struct {
	Server  ServerConfig  `yaml:"server"`
	Store   StoreConfig   `yaml:"store"`
	Redis   RedisConfig   `yaml:"redis"`
	AMQP    AMQPConfig    `yaml:"amqp"`
	Booking BookingConfig `yaml:"booking"`
	Log     LogConfig     `yaml:"log"`

	// Resolved by Resolve.
	SigningKey []byte         `yaml:"-" ignored:"true"`
	Location   *time.Location `yaml:"-" ignored:"true"`
	LogLevel   zerolog.Level  `yaml:"-" ignored:"true"`
}

type ServerConfig struct {
	Addr           string   `yaml:"addr" envconfig:"ADDR"`
	AllowedOrigins []string `yaml:"allowed_origins" envconfig:"ALLOWED_ORIGINS"`
	// SigningSecret is the base64 encoded HS256 key for identity tokens.
	SigningSecret string  `yaml:"signing_secret" envconfig:"SIGNING_SECRET"`
	SendQueueSize int     `yaml:"send_queue_size" envconfig:"SEND_QUEUE_SIZE"`
	CommandRate   float64 `yaml:"command_rate" envconfig:"COMMAND_RATE"`
	CommandBurst  int     `yaml:"command_burst" envconfig:"COMMAND_BURST"`
	// BroadcastAll sends status events to every connection in addition to
	// the booking and owner rooms.
	BroadcastAll bool `yaml:"broadcast_all" envconfig:"BROADCAST_ALL"`
}

type StoreConfig struct {
	Driver string `yaml:"driver" envconfig:"DRIVER"`
	DSN    string `yaml:"dsn" envconfig:"DSN"`
}

type RedisConfig struct {
	Addr     string `yaml:"addr" envconfig:"ADDR"`
	Password string `yaml:"password" envconfig:"PASSWORD"`
	DB       int    `yaml:"db" envconfig:"DB"`
	Channel  string `yaml:"channel" envconfig:"CHANNEL"`
}

type AMQPConfig struct {
	URL      string `yaml:"url" envconfig:"URL"`
	Exchange string `yaml:"exchange" envconfig:"EXCHANGE"`
}

type BookingConfig struct {
	Timezone             string `yaml:"timezone" envconfig:"TIMEZONE"`
	GraceMinutes         int    `yaml:"grace_minutes" envconfig:"GRACE_MINUTES"`
	RejectedDisplayHours int    `yaml:"rejected_display_hours" envconfig:"REJECTED_DISPLAY_HOURS"`
}

type LogConfig struct {
	Level  string `yaml:"level" envconfig:"LEVEL"`
	Pretty bool   `yaml:"pretty" envconfig:"PRETTY"`
}

func Default() *Config {
	return &Config{
		Server: ServerConfig{
			Addr:         ":8000",
			CommandRate:  5,
			CommandBurst: 10,
			BroadcastAll: true,
		},
		Store: StoreConfig{Driver: StorePostgres},
		AMQP:  AMQPConfig{Exchange: "booking.events"},
		Booking: BookingConfig{
			Timezone:             "Asia/Kolkata",
			GraceMinutes:         5,
			RejectedDisplayHours: 24,
		},
		Log: LogConfig{Level: "info"},
	}
}

// Load reads the YAML file at path, if any, over the defaults and then
// applies BOOKING_* environment overrides. ${VAR} placeholders in the file
// are expanded. The result still needs Resolve.
func Load(path string) (*Config, error) {
	cfg := Default()

	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("read config: %w", err)
		}

		data = []byte(os.ExpandEnv(string(data)))
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("parse config: %w", err)
		}
	}

	if err := envconfig.Process(EnvPrefix, cfg); err != nil {
		return nil, fmt.Errorf("environment overrides: %w", err)
	}

	return cfg, nil
}

// Resolve validates the configuration and derives the signing key, time
// zone and log level.
func (c *Config) Resolve() error {
	if c.Server.Addr == "" {
		return errors.New("server address cannot be empty")
	}

	switch c.Store.Driver {
	case StorePostgres:
		if c.Store.DSN == "" {
			return errors.New("database DSN cannot be empty")
		}
	case StoreMemory:
	default:
		return fmt.Errorf("unknown store driver %q", c.Store.Driver)
	}

	if c.Server.SigningSecret == "" {
		return errors.New("signing secret cannot be empty")
	}
	signingKey, err := decodeSigningSecret(c.Server.SigningSecret)
	if err != nil {
		return fmt.Errorf("decode signing secret: %w", err)
	}
	c.SigningKey = signingKey

	loc, err := time.LoadLocation(c.Booking.Timezone)
	if err != nil {
		return fmt.Errorf("load booking timezone: %w", err)
	}
	c.Location = loc

	if c.Booking.GraceMinutes <= 0 {
		c.Booking.GraceMinutes = 5
	}
	if c.Booking.RejectedDisplayHours <= 0 {
		c.Booking.RejectedDisplayHours = 24
	}

	level, err := zerolog.ParseLevel(c.Log.Level)
	if err != nil {
		return fmt.Errorf("parse log level: %w", err)
	}
	c.LogLevel = level

	return nil
}

func (c *Config) RejectedDisplayWindow() time.Duration {
	return time.Duration(c.Booking.RejectedDisplayHours) * time.Hour
}

func decodeSigningSecret(base64Secret string) ([]byte, error) {
	key, err := base64.StdEncoding.DecodeString(base64Secret)
	if err != nil {
		return nil, err
	}
	if len(key) == 0 {
		return nil, errors.New("empty signing secret")
	}
	return key, nil
}

// NewConfig builds a resolved configuration from the core server settings,
// using defaults for everything else.
func NewConfig(serverAddr, databaseDSN, base64Secret string, allowedOrigins []string) (*Config, error) {
	cfg := Default()
	cfg.Server.Addr = serverAddr
	cfg.Server.SigningSecret = base64Secret
	cfg.Server.AllowedOrigins = allowedOrigins
	cfg.Store.DSN = databaseDSN

	if err := cfg.Resolve(); err != nil {
		return nil, err
	}
	return cfg, nil
}
