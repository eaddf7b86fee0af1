package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"os"
	"syscall"

	"github.com/cwrk-planet/ephemeral-chat/config"
	"github.com/cwrk-planet/ephemeral-chat/internal/eventbus"
	"github.com/cwrk-planet/ephemeral-chat/internal/eventbus/redisbus"
	"github.com/cwrk-planet/ephemeral-chat/internal/service"
	"github.com/cwrk-planet/ephemeral-chat/internal/store"
	"github.com/cwrk-planet/ephemeral-chat/internal/store/badgerstore"
	"github.com/cwrk-planet/ephemeral-chat/internal/store/redisstore"
	grpcx "github.com/cwrk-planet/ephemeral-chat/internal/transport/grpc"
	httpx "github.com/cwrk-planet/ephemeral-chat/internal/transport/http"
	"github.com/cwrk-planet/ephemeral-chat/internal/transport/ws"
	"github.com/cwrk-planet/ephemeral-chat/pkg/logger"

	gfshutdown "github.com/gelmium/graceful-shutdown"
	"github.com/redis/go-redis/v9"
	"github.com/urfave/cli/v2"
	"go.opentelemetry.io/otel"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"google.golang.org/grpc"
)

func serveCommand() *cli.Command {
	return &cli.Command{
		Name:  "serve",
		Usage: "run the HTTP, websocket and gRPC servers",
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:    "config",
				Usage:   "path to config.yaml",
				EnvVars: []string{"CONFIG_PATH"},
			},
		},
		Action: serve,
	}
}

func serve(cctx *cli.Context) error {
	cfg, err := config.LoadConfig(cctx.String("config"))
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}

	logCfg := logger.Config{
		Env:        logger.ParseEnv(cfg.Logging.Env),
		Service:    cfg.Logging.Service,
		Version:    cfg.Logging.Version,
		InstanceID: cfg.Logging.InstanceID,
		Backend:    logger.Backend(cfg.Logging.Backend),
		AddSource:  cfg.Logging.AddSource,
		Debug:      cfg.Logging.Debug,
	}
	if cfg.Logging.Level != "" {
		level, err := logger.ParseLevel(cfg.Logging.Level)
		if err != nil {
			return err
		}
		logCfg.Level = level
	}
	log := logger.Init(logCfg)
	log.Info("starting ephemeral-chat",
		slog.String("env", cfg.Logging.Env),
		slog.String("store", cfg.Store.Driver),
		slog.String("bus", cfg.Bus.Driver))

	if cfg.Tracing.Enabled {
		tp := sdktrace.NewTracerProvider()
		otel.SetTracerProvider(tp)
		defer func() { _ = tp.Shutdown(context.Background()) }()
	}

	ctx := cctx.Context

	// --- store & bus ---
	var (
		st  store.Store
		bus eventbus.Bus
		rdb *redis.Client
	)
	switch cfg.Store.Driver {
	case "badger":
		db, err := badgerstore.Open(badgerstore.Config{Path: cfg.Store.Badger.Path, InMemory: cfg.Store.Badger.InMemory})
		if err != nil {
			return err
		}
		st = badgerstore.New(db, log)
	default:
		rdb, err = redisstore.NewClient(ctx, redisstore.Config{
			Addr:     cfg.Store.Redis.Addr,
			Password: cfg.Store.Redis.Password,
			DB:       cfg.Store.Redis.DB,
		})
		if err != nil {
			return err
		}
		st = redisstore.New(rdb, log)
	}
	defer func() { _ = st.Close() }()

	if cfg.Bus.Driver == "redis" {
		bus = redisbus.New(rdb, cfg.Bus.Buffer, log)
	} else {
		bus = eventbus.NewLocal(cfg.Bus.Buffer, log)
	}

	// --- services ---
	guard := service.NewGuard(st)
	rooms, err := service.NewRoomService(st, bus, guard, service.RoomConfig{
		TTL:          cfg.Room.TTL,
		TombstoneTTL: cfg.Room.TombstoneTTL,
	}, log)
	if err != nil {
		return err
	}
	messages := service.NewMessageService(st, bus, guard, log)

	// --- websocket gateway ---
	hub := ws.NewHub()
	wsServer := ws.NewServer(hub, bus, guard, ws.Config{
		AllowedOrigins: cfg.HTTP.AllowedOrigins,
		PingEvery:      cfg.WS.PingEvery,
		MaxRooms:       cfg.WS.MaxRooms,
		SendBuffer:     cfg.WS.SendBuffer,
	}, log)

	rpc := grpcx.NewServer(rooms, messages, guard, bus, log)

	reaper := service.NewReaper(rooms, st, service.WatchedRooms{hub, rpc}, service.ReaperConfig{
		SweepInterval:  cfg.Expiry.SweepInterval,
		KeyspaceEvents: cfg.Expiry.KeyspaceEvents,
	}, log)
	reaperCtx, stopReaper := context.WithCancel(ctx)
	reaperDone := make(chan struct{})
	go func() {
		defer close(reaperDone)
		if err := reaper.Run(reaperCtx); err != nil {
			log.Error("reaper stopped", slog.Any("err", err))
		}
	}()

	// --- HTTP ---
	router := httpx.NewRouter(httpx.NewHandler(rooms, messages, st), wsServer.HandleWS, httpx.RouterConfig{
		AllowedOrigins: cfg.HTTP.AllowedOrigins,
		RequestTimeout: cfg.HTTP.RequestTimeout,
	}, log)
	httpSrv := httpx.NewServer(httpx.ServerConfig{
		Addr:         cfg.HTTP.Addr,
		ReadTimeout:  cfg.HTTP.ReadTimeout,
		WriteTimeout: cfg.HTTP.WriteTimeout,
		IdleTimeout:  cfg.HTTP.IdleTimeout,
	}, router)

	// --- gRPC ---
	grpcServer := grpc.NewServer(
		grpcx.ServerCodec(),
		grpc.ChainUnaryInterceptor(grpcx.UnaryServerInterceptor(log)),
		grpc.ChainStreamInterceptor(grpcx.StreamServerInterceptor(log)),
	)
	grpcx.Register(grpcServer, rpc)

	httpLis, err := net.Listen("tcp", cfg.HTTP.Addr)
	if err != nil {
		return fmt.Errorf("http listen: %w", err)
	}
	grpcLis, err := net.Listen("tcp", cfg.GRPC.Addr)
	if err != nil {
		_ = httpLis.Close()
		return fmt.Errorf("grpc listen: %w", err)
	}

	go func() {
		log.Info("http listen", slog.String("addr", httpLis.Addr().String()))
		if err := httpSrv.Serve(httpLis); err != nil {
			log.Error("http server failed", slog.Any("err", err))
			requestShutdown()
		}
	}()
	go func() {
		log.Info("grpc listen", slog.String("addr", grpcLis.Addr().String()))
		if err := grpcServer.Serve(grpcLis); err != nil && !errors.Is(err, grpc.ErrServerStopped) {
			log.Error("grpc server failed", slog.Any("err", err))
			requestShutdown()
		}
	}()

	// --- graceful shutdown ---
	wait := gfshutdown.GracefulShutdown(context.Background(), cfg.ShutdownTimeout, map[string]gfshutdown.Operation{
		"http": func(ctx context.Context) error {
			return httpSrv.Shutdown(ctx)
		},
		"grpc": func(context.Context) error {
			grpcServer.GracefulStop()
			return nil
		},
		"websocket": func(context.Context) error {
			hub.CloseAll()
			return nil
		},
		"reaper": func(ctx context.Context) error {
			stopReaper()
			select {
			case <-reaperDone:
				return nil
			case <-ctx.Done():
				return ctx.Err()
			}
		},
	})

	code := <-wait
	log.Info("stopped", slog.Int("code", code))
	if code != 0 {
		return cli.Exit("shutdown did not complete cleanly", code)
	}
	return nil
}

// requestShutdown routes a fatal server error through the same signal path
// as an operator stop.
func requestShutdown() {
	if p, err := os.FindProcess(os.Getpid()); err == nil {
		_ = p.Signal(syscall.SIGTERM)
	}
}
