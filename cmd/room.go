package main

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"time"

	grpcx "github.com/cwrk-planet/ephemeral-chat/internal/transport/grpc"

	"github.com/urfave/cli/v2"
)

func roomCommand() *cli.Command {
	return &cli.Command{
		Name:  "room",
		Usage: "manage rooms over gRPC",
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:    "target",
				Value:   "localhost:9090",
				Usage:   "gRPC address of a running server",
				EnvVars: []string{"EPHEMERAL_GRPC_TARGET"},
			},
			&cli.DurationFlag{
				Name:  "timeout",
				Value: 5 * time.Second,
			},
		},
		Subcommands: []*cli.Command{
			{
				Name:  "create",
				Usage: "create a room and print it",
				Action: withClient(func(cctx *cli.Context, c *grpcx.Client) error {
					room, err := c.CreateRoom(cctx.Context)
					if err != nil {
						return err
					}
					return printJSON(cctx.App.Writer, room)
				}),
			},
			{
				Name:      "ttl",
				Usage:     "print the remaining lifetime in seconds",
				ArgsUsage: "<roomId>",
				Action: withClient(func(cctx *cli.Context, c *grpcx.Client) error {
					ttl, err := c.GetRemainingTTL(cctx.Context, cctx.Args().First())
					if err != nil {
						return err
					}
					_, err = fmt.Fprintln(cctx.App.Writer, int64(ttl/time.Second))
					return err
				}),
			},
			{
				Name:      "destroy",
				Usage:     "destroy a room now",
				ArgsUsage: "<roomId>",
				Action: withClient(func(cctx *cli.Context, c *grpcx.Client) error {
					return c.DestroyRoom(cctx.Context, cctx.Args().First())
				}),
			},
			{
				Name:      "watch",
				Usage:     "stream room events until the rooms are gone",
				ArgsUsage: "<roomId>...",
				Action: withClient(func(cctx *cli.Context, c *grpcx.Client) error {
					stream, err := c.Subscribe(cctx.Context, cctx.Args().Slice()...)
					if err != nil {
						return err
					}
					for {
						evt, err := stream.Recv()
						if errors.Is(err, io.EOF) {
							return nil
						}
						if err != nil {
							return err
						}
						if err := printJSON(cctx.App.Writer, evt); err != nil {
							return err
						}
					}
				}),
			},
		},
	}
}

func withClient(fn func(*cli.Context, *grpcx.Client) error) cli.ActionFunc {
	return func(cctx *cli.Context) error {
		c, err := grpcx.NewClient(grpcx.Options{
			Target:  cctx.String("target"),
			Timeout: cctx.Duration("timeout"),
		})
		if err != nil {
			return err
		}
		defer func() { _ = c.Close() }()
		return fn(cctx, c)
	}
}

func printJSON(w io.Writer, v any) error {
	if w == nil {
		w = os.Stdout
	}
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}
