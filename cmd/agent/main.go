package main

import (
	"context"
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"

	"github.com/duyngulam/fubabus-mobile/internal/api"
	"github.com/duyngulam/fubabus-mobile/internal/auth"
	"github.com/duyngulam/fubabus-mobile/internal/config"
	"github.com/duyngulam/fubabus-mobile/internal/coordinator"
	"github.com/duyngulam/fubabus-mobile/internal/db"
	"github.com/duyngulam/fubabus-mobile/internal/gps"
	"github.com/duyngulam/fubabus-mobile/internal/location"
	"github.com/duyngulam/fubabus-mobile/internal/status"
	"github.com/duyngulam/fubabus-mobile/internal/transport"
	"github.com/duyngulam/fubabus-mobile/internal/trip"
)

var mainDepsProvider = defaultDeps
var mainRunner = realMain

func main() {
	mainRunner(mainDepsProvider())
}

type mainDeps struct {
	loadConfig   func() config.Config
	connectRedis func(config.Config) *redis.Client
	notify       func(chan<- os.Signal, ...os.Signal)
	run          func(context.Context, config.Config, *redis.Client, <-chan os.Signal, ListenFunc) error
}

func defaultDeps() mainDeps {
	return mainDeps{
		loadConfig:   config.Load,
		connectRedis: db.ConnectRedis,
		notify:       signal.Notify,
		run:          Run,
	}
}

func realMain(deps mainDeps) {
	cfg := deps.loadConfig()

	rdb := deps.connectRedis(cfg)

	signals := make(chan os.Signal, 1)
	deps.notify(signals, syscall.SIGINT, syscall.SIGTERM)

	if err := deps.run(context.Background(), cfg, rdb, signals, nil); err != nil {
		log.Printf("agent exited with error: %v", err)
	}
}

type ListenFunc func(app *fiber.App, addr string) error

var defaultListen ListenFunc = func(app *fiber.App, addr string) error {
	return app.Listen(addr)
}

var shutdownFn = func(app *fiber.App, ctx context.Context) error {
	return app.ShutdownWithContext(ctx)
}

func newLogger(level string) zerolog.Logger {
	lvl, err := zerolog.ParseLevel(level)
	if err != nil {
		lvl = zerolog.InfoLevel
	}
	return zerolog.New(os.Stderr).Level(lvl).With().Timestamp().Logger()
}

// Run wires the agent together and serves the control API until a
// termination signal arrives.
func Run(ctx context.Context, cfg config.Config, rdb *redis.Client, signals <-chan os.Signal, listen ListenFunc) error {
	logger := newLogger(cfg.LogLevel)

	client := api.NewClient(cfg.APIBaseURL, logger)
	manager := auth.NewManager(client, auth.NewCache(rdb), logger)

	store := trip.NewStore(client, logger)
	conn := transport.NewConn(cfg.WebSocketURL(), logger)
	reporter := gps.NewReporter(conn, location.NewSimProvider(location.DefaultRoute()), logger, cfg.GPSInterval())
	defer reporter.Close()

	// A sign-out must stop the active trip, which in turn stops tracking.
	manager.OnSignOut = store.StopTrip

	hub := status.NewHub(rdb, logger)
	coord := coordinator.New(reporter, store, hub, logger, 0)
	coord.Bind()
	coord.Start()
	defer coord.Stop()

	if _, ok, err := manager.Restore(ctx); err != nil {
		logger.Warn().Err(err).Msg("session restore failed")
	} else if ok {
		logger.Info().Msg("resumed cached session")
	}

	app := status.NewServer(store, reporter.Snapshot, hub)

	if listen == nil {
		listen = defaultListen
	}

	errCh := make(chan error, 1)
	go func() {
		errCh <- listen(app, cfg.ControlPort)
	}()

	select {
	case <-signals:
	case <-ctx.Done():
	case err := <-errCh:
		if err != nil {
			return err
		}
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := shutdownFn(app, shutdownCtx); err != nil {
		return err
	}
	if rdb != nil {
		_ = rdb.Close()
	}
	return nil
}
