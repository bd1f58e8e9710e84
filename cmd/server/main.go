package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"github.com/labstack/echo/v4"
	"github.com/rs/zerolog"

	"github.com/iliyamo/clubdesk/internal/broadcast"
	"github.com/iliyamo/clubdesk/internal/config"
	"github.com/iliyamo/clubdesk/internal/database"
	"github.com/iliyamo/clubdesk/internal/handler"
	"github.com/iliyamo/clubdesk/internal/logging"
	"github.com/iliyamo/clubdesk/internal/pricing"
	"github.com/iliyamo/clubdesk/internal/queue"
	"github.com/iliyamo/clubdesk/internal/repository"
	"github.com/iliyamo/clubdesk/internal/router"
	"github.com/iliyamo/clubdesk/internal/service"
	"github.com/iliyamo/clubdesk/internal/store"
	"github.com/iliyamo/clubdesk/internal/store/memstore"
	"github.com/iliyamo/clubdesk/internal/telemetry"
)

const serviceName = "clubdesk"

func main() {
	// .env is optional; real deployments set the environment directly
	_ = godotenv.Load()

	cfg := config.Load()
	log := logging.New(cfg.LogLevel, cfg.LogFormat, serviceName, os.Stdout)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	shutdownTracing := telemetry.Setup(serviceName, log)
	defer func() {
		sctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := shutdownTracing(sctx); err != nil {
			log.Warn().Err(err).Msg("tracer shutdown")
		}
	}()

	st, closeStore := openStore(ctx, cfg, log)
	defer closeStore()

	rdb, err := config.NewRedisClient(config.LoadRedisConfig())
	switch {
	case err != nil:
		log.Warn().Err(err).Msg("redis unavailable: rate limiting, caching and cross-instance fan-out disabled")
	case rdb == nil:
		log.Info().Msg("redis disabled")
	default:
		defer func() { _ = rdb.Close() }()
	}

	hub := broadcast.NewHub(log)
	var bc broadcast.Broadcaster = hub
	if rdb != nil {
		relay := broadcast.NewRedisRelay(rdb, os.Getenv("EVENTS_CHANNEL"), hub, log)
		bc = relay
		go func() {
			if err := relay.Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
				log.Error().Err(err).Msg("event relay stopped")
			}
		}()
	}

	broker := config.LoadBrokerConfig()
	var pub service.OccupancyPublisher
	if broker.Enabled {
		pub = queue.NewPublisher(broker, log)
		go func() {
			if err := queue.StartOccupancyConsumer(ctx, broker, log); err != nil && !errors.Is(err, context.Canceled) {
				log.Error().Err(err).Msg("occupancy consumer stopped")
			}
		}()
	}

	svc := service.New(service.Deps{
		Store:       st,
		Broadcaster: bc,
		Publisher:   pub,
		Pricing:     pricing.New(cfg.Checkin.TaxRate, cfg.Location()),
		Config:      cfg.Checkin,
		Log:         log,
	})

	e := echo.New()
	e.HideBanner = true
	e.HidePort = true

	guards := router.NewGuards(cfg.JWTSecret, config.LoadRateLimitConfig(), config.LoadCacheConfig(), rdb, log)
	router.RegisterRoutes(e, log)
	router.RegisterLane(e, handler.NewLaneHandler(svc, log), guards)
	router.RegisterCheckout(e, handler.NewCheckoutHandler(svc, log), guards)
	router.RegisterInventory(e, handler.NewInventoryHandler(svc, log), guards)
	router.RegisterObservers(e, handler.NewObserverHandler(hub, log))

	addr := ":" + cfg.Port
	go func() {
		log.Info().Str("addr", addr).Str("env", cfg.Env).Str("store", cfg.StoreDriver).Msg("listening")
		if err := e.Start(addr); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Fatal().Err(err).Msg("server failed")
		}
	}()

	<-ctx.Done()
	log.Info().Msg("shutting down")
	sctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := e.Shutdown(sctx); err != nil {
		log.Error().Err(err).Msg("graceful shutdown failed")
	}
}

// openStore returns the configured transactional store and its closer.
func openStore(ctx context.Context, cfg config.Config, log zerolog.Logger) (store.Store, func()) {
	if cfg.StoreDriver == config.DriverMemory {
		log.Warn().Msg("using in-memory store; state is lost on restart")
		return memstore.New(), func() {}
	}
	db, err := database.Open(cfg.DBUser, cfg.DBPass, cfg.DBHost, cfg.DBPort, cfg.DBName)
	if err != nil {
		log.Fatal().Err(err).Msg("db connect")
	}
	sctx, cancel := context.WithTimeout(ctx, 30*time.Second)
	defer cancel()
	if err := database.EnsureSchema(sctx, db); err != nil {
		log.Fatal().Err(err).Msg("db schema")
	}
	return repository.NewStore(db), func() { _ = db.Close() }
}
