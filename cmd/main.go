package main

import (
	"log/slog"
	"os"

	"github.com/urfave/cli/v2"
)

var version = "v0.1.0"

func main() {
	app := &cli.App{
		Name:    "ephemeral-chat",
		Usage:   "self-destructing chat rooms",
		Version: version,
		Commands: []*cli.Command{
			serveCommand(),
			roomCommand(),
		},
	}

	if err := app.Run(os.Args); err != nil {
		slog.Error("unhandled error", slog.Any("err", err))
		os.Exit(1)
	}
}
