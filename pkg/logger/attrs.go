package logger

import (
	"log/slog"
	"os"
	"strings"
	"time"

	"github.com/google/uuid"
)

// InstanceIDEnv is read when Config.InstanceID is empty, so every replica of
// a deployment can be told apart in aggregated logs.
const InstanceIDEnv = "INSTANCE_ID"

// ensureInstanceID resolves the instance id: explicit value, then
// INSTANCE_ID, then "<hostname>-<random suffix>".
func ensureInstanceID(v string) string {
	if v = strings.TrimSpace(v); v != "" {
		return v
	}
	if v = strings.TrimSpace(os.Getenv(InstanceIDEnv)); v != "" {
		return v
	}

	host, err := os.Hostname()
	if err != nil || host == "" {
		host = "ephemeral-chat"
	}
	id := uuid.NewString()
	return host + "-" + id[len(id)-8:]
}

func commonAttr(cfg Config) []slog.Attr {
	attrs := []slog.Attr{
		slog.String("service", cfg.Service),
		slog.String("env", string(cfg.Env)),
		slog.String("instance_id", cfg.InstanceID),
	}
	if cfg.Version != "" {
		attrs = append(attrs, slog.String("version", cfg.Version))
	}
	return append(attrs, slog.Time("started_at", time.Now().UTC()))
}
