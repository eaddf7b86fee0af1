package logger

import (
	"io"
	"log/slog"
)

type Backend string

const (
	BackendStd Backend = "std" // text in dev, JSON elsewhere
	BackendZap Backend = "zap" // zap core behind slog
)

type Config struct {
	Service    string
	Version    string
	InstanceID string

	// Level wins over Debug when set; nil means info, or debug with Debug.
	Level   slog.Leveler
	Env     Env
	Backend Backend // default: std in dev, zap in stage/prod
	Debug   bool

	// Zap sampling: per tick (seconds) the first SampleInitial entries with
	// the same message pass, then every SampleThereafter-th.
	SampleInitial    int
	SampleThereafter int
	SampleTick       int

	AddSource bool

	// Output defaults to os.Stdout.
	Output io.Writer
}
