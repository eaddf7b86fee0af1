package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func writeConfig(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte(body), 0o600))
	return path
}

func TestLoadConfig_FileWithDefaults(t *testing.T) {
	req := require.New(t)
	path := writeConfig(t, `
http:
  addr: ":8080"
grpc:
  addr: ":9090"
room:
  ttl: 2m
store:
  redis:
    addr: "localhost:6379"
`)

	cfg, err := LoadConfig(path)
	req.NoError(err)
	req.Equal(":8080", cfg.HTTP.Addr)
	req.Equal(2*time.Minute, cfg.Room.TTL)
	req.Equal(time.Hour, cfg.Room.TombstoneTTL)
	req.Equal("redis", cfg.Store.Driver)
	req.Equal("redis", cfg.Bus.Driver)
	req.Equal(5*time.Second, cfg.Expiry.SweepInterval)
	req.Equal("ephemeral-chat", cfg.Logging.Service)
	req.Empty(cfg.Logging.Level, "an unset level leaves the debug flag in charge")
}

func TestLoadConfig_EnvOverrides(t *testing.T) {
	req := require.New(t)
	path := writeConfig(t, `
http:
  addr: ":8080"
grpc:
  addr: ":9090"
store:
  driver: redis
  redis:
    addr: "localhost:6379"
`)
	t.Setenv("EPHEMERAL_HTTP_ADDR", ":18080")
	t.Setenv("EPHEMERAL_ROOM_TTL", "30s")
	t.Setenv("EPHEMERAL_HTTP_ALLOWED_ORIGINS", "http://a.example,http://b.example")
	t.Setenv("EPHEMERAL_STORE_DRIVER", "badger")
	t.Setenv("EPHEMERAL_STORE_BADGER_IN_MEMORY", "true")

	cfg, err := LoadConfig(path)
	req.NoError(err)
	req.Equal(":18080", cfg.HTTP.Addr)
	req.Equal(30*time.Second, cfg.Room.TTL)
	req.Equal([]string{"http://a.example", "http://b.example"}, cfg.HTTP.AllowedOrigins)
	req.Equal("badger", cfg.Store.Driver)
	req.Equal("local", cfg.Bus.Driver)
}

func TestLoadConfig_EnvOnly(t *testing.T) {
	t.Setenv("EPHEMERAL_HTTP_ADDR", ":8080")
	t.Setenv("EPHEMERAL_GRPC_ADDR", ":9090")
	t.Setenv("EPHEMERAL_STORE_DRIVER", "badger")
	t.Setenv("EPHEMERAL_STORE_BADGER_PATH", t.TempDir())

	cfg, err := LoadConfig(filepath.Join(t.TempDir(), "missing.yaml"))
	require.NoError(t, err)
	require.Equal(t, 10*time.Minute, cfg.Room.TTL)
}

func TestLoadConfig_Invalid(t *testing.T) {
	cases := []struct {
		name string
		body string
	}{
		{name: "no http addr", body: "grpc:\n  addr: \":9090\"\n"},
		{name: "unknown store", body: "http:\n  addr: \":8080\"\ngrpc:\n  addr: \":9090\"\nstore:\n  driver: etcd\n"},
		{name: "redis bus over badger", body: "http:\n  addr: \":8080\"\ngrpc:\n  addr: \":9090\"\nstore:\n  driver: badger\n  badger:\n    inMemory: true\nbus:\n  driver: redis\n"},
		{name: "negative ttl", body: "http:\n  addr: \":8080\"\ngrpc:\n  addr: \":9090\"\nroom:\n  ttl: -1s\nstore:\n  redis:\n    addr: \"x:1\"\n"},
		{name: "broken yaml", body: "http: [\n"},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			_, err := LoadConfig(writeConfig(t, tc.body))
			require.Error(t, err)
		})
	}
}
