package config

import (
	"errors"
	"fmt"
	"os"
	"time"

	"github.com/joho/godotenv"
	"github.com/kelseyhightower/envconfig"
	"gopkg.in/yaml.v3"
)

// EnvPrefix prefixes every environment override, e.g. EPHEMERAL_HTTP_ADDR.
const EnvPrefix = "EPHEMERAL"

type HTTP struct {
	Addr           string        `yaml:"addr"`
	ReadTimeout    time.Duration `yaml:"readTimeout" split_words:"true"`
	WriteTimeout   time.Duration `yaml:"writeTimeout" split_words:"true"`
	IdleTimeout    time.Duration `yaml:"idleTimeout" split_words:"true"`
	RequestTimeout time.Duration `yaml:"requestTimeout" split_words:"true"`
	AllowedOrigins []string      `yaml:"allowedOrigins" split_words:"true"`
}

type GRPC struct {
	Addr string `yaml:"addr"`
}

type WS struct {
	PingEvery  time.Duration `yaml:"pingEvery" split_words:"true"`
	MaxRooms   int           `yaml:"maxRooms" split_words:"true"`
	SendBuffer int           `yaml:"sendBuffer" split_words:"true"`
}

type Room struct {
	TTL          time.Duration `yaml:"ttl"`
	TombstoneTTL time.Duration `yaml:"tombstoneTTL" split_words:"true"`
}

type Expiry struct {
	SweepInterval  time.Duration `yaml:"sweepInterval" split_words:"true"`
	KeyspaceEvents bool          `yaml:"keyspaceEvents" split_words:"true"`
}

type Redis struct {
	Addr     string `yaml:"addr"`
	Password string `yaml:"password"`
	DB       int    `yaml:"db"`
}

type Badger struct {
	Path     string `yaml:"path"`
	InMemory bool   `yaml:"inMemory" split_words:"true"`
}

type Store struct {
	Driver string `yaml:"driver"` // redis|badger
	Redis  Redis  `yaml:"redis"`
	Badger Badger `yaml:"badger"`
}

type Bus struct {
	Driver string `yaml:"driver"` // redis|local
	Buffer int    `yaml:"buffer"`
}

type Logging struct {
	Env        string `yaml:"env"`     // dev|stage|prod
	Service    string `yaml:"service"` // ephemeral-chat
	Version    string `yaml:"version"` // v0.1.0
	Backend    string `yaml:"backend"` // std|zap
	Level      string `yaml:"level"`   // debug|info|warn|error; empty follows Debug
	InstanceID string `yaml:"instanceId" split_words:"true"`
	AddSource  bool   `yaml:"addSource" split_words:"true"`
	Debug      bool   `yaml:"debug"`
}

type Tracing struct {
	Enabled bool `yaml:"enabled"`
}

type Config struct {
	HTTP            HTTP          `yaml:"http"`
	GRPC            GRPC          `yaml:"grpc"`
	WS              WS            `yaml:"ws"`
	Room            Room          `yaml:"room"`
	Expiry          Expiry        `yaml:"expiry"`
	Store           Store         `yaml:"store"`
	Bus             Bus           `yaml:"bus"`
	Logging         Logging       `yaml:"logging"`
	Tracing         Tracing       `yaml:"tracing"`
	ShutdownTimeout time.Duration `yaml:"shutdownTimeout" split_words:"true"`
}

// LoadConfig reads the YAML file at path (CONFIG_PATH when empty), then
// applies EPHEMERAL_* overrides from the environment and an optional .env.
func LoadConfig(path string) (*Config, error) {
	if err := godotenv.Load(); err != nil && !errors.Is(err, os.ErrNotExist) {
		return nil, fmt.Errorf("load .env: %w", err)
	}

	if path == "" {
		path = os.Getenv("CONFIG_PATH")
	}
	if path == "" {
		path = "./config/config.yaml"
	}

	var cfg Config
	data, err := os.ReadFile(path)
	switch {
	case err == nil:
		if err := yaml.Unmarshal(data, &cfg); err != nil {
			return nil, fmt.Errorf("parse %s: %w", path, err)
		}
	case errors.Is(err, os.ErrNotExist):
		// env-only deployments run without a file
	default:
		return nil, err
	}

	if err := envconfig.Process(EnvPrefix, &cfg); err != nil {
		return nil, fmt.Errorf("env overrides: %w", err)
	}
	if err := cfg.validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

func (c *Config) validate() error {
	c.setDefaults()

	if c.HTTP.Addr == "" {
		return errors.New("http.addr is required")
	}
	if c.GRPC.Addr == "" {
		return errors.New("grpc.addr is required")
	}
	if c.Room.TTL <= 0 {
		return errors.New("room.ttl must be positive")
	}
	switch c.Store.Driver {
	case "redis":
		if c.Store.Redis.Addr == "" {
			return errors.New("store.redis.addr is required")
		}
	case "badger":
		if c.Store.Badger.Path == "" && !c.Store.Badger.InMemory {
			return errors.New("store.badger.path is required unless inMemory")
		}
	default:
		return fmt.Errorf("store.driver %q: want redis or badger", c.Store.Driver)
	}
	switch c.Bus.Driver {
	case "local":
	case "redis":
		if c.Store.Driver != "redis" {
			return errors.New("bus.driver redis needs store.driver redis")
		}
	default:
		return fmt.Errorf("bus.driver %q: want redis or local", c.Bus.Driver)
	}
	return nil
}

func (c *Config) setDefaults() {
	if c.HTTP.ReadTimeout <= 0 {
		c.HTTP.ReadTimeout = 10 * time.Second
	}
	if c.HTTP.WriteTimeout <= 0 {
		c.HTTP.WriteTimeout = 15 * time.Second
	}
	if c.HTTP.IdleTimeout <= 0 {
		c.HTTP.IdleTimeout = 60 * time.Second
	}
	if c.HTTP.RequestTimeout <= 0 {
		c.HTTP.RequestTimeout = 10 * time.Second
	}
	if c.Room.TTL == 0 {
		c.Room.TTL = 10 * time.Minute
	}
	if c.Room.TombstoneTTL <= 0 {
		c.Room.TombstoneTTL = time.Hour
	}
	if c.Expiry.SweepInterval <= 0 {
		c.Expiry.SweepInterval = 5 * time.Second
	}
	if c.Store.Driver == "" {
		c.Store.Driver = "redis"
	}
	if c.Bus.Driver == "" {
		c.Bus.Driver = c.Store.Driver
		if c.Bus.Driver != "redis" {
			c.Bus.Driver = "local"
		}
	}
	if c.Bus.Buffer <= 0 {
		c.Bus.Buffer = 64
	}
	if c.ShutdownTimeout <= 0 {
		c.ShutdownTimeout = 10 * time.Second
	}

	if c.Logging.Service == "" {
		c.Logging.Service = "ephemeral-chat"
	}
	if c.Logging.Env == "" {
		c.Logging.Env = "dev"
	}
	if c.Logging.Version == "" {
		c.Logging.Version = "v0.1.0"
	}
	if c.Logging.Backend == "" {
		c.Logging.Backend = "std"
	}
}
