package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	httpapi "github.com/immxrtalbeast/streamroom/internal/api/http"
	"github.com/immxrtalbeast/streamroom/internal/config"
	"github.com/immxrtalbeast/streamroom/internal/repository"
	"github.com/immxrtalbeast/streamroom/internal/repository/model"
	"github.com/immxrtalbeast/streamroom/internal/service"
	"github.com/immxrtalbeast/streamroom/lib/logger/sl"
	"github.com/immxrtalbeast/streamroom/lib/logger/slogpretty"
	"github.com/joho/godotenv"
	"golang.org/x/sync/errgroup"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

func main() {
	_ = godotenv.Load(".env")

	cfg := config.MustLoad()
	log := setupLogger(cfg.Env)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	err := run(ctx, cfg, log)
	stop()

	if err != nil {
		log.Error("application stopped", sl.Err(err))
		os.Exit(1)
	}
	log.Info("application stopped")
}

// run serves until ctx is done or the server fails. Storage and room actors
// are released before it returns.
func run(ctx context.Context, cfg *config.Config, log *slog.Logger) error {
	store, closeStore, err := setupStore(cfg.Storage)
	if err != nil {
		return fmt.Errorf("set up %s storage: %w", cfg.Storage.Driver, err)
	}
	defer closeStore()

	registry := service.NewRegistry(store, log, service.RegistryOptions{InboxSize: cfg.Rooms.InboxSize})
	defer registry.Close()

	signaling := service.NewSignalingService(registry, log, service.SignalingOptions{
		CreateAttempts: cfg.Rooms.CreateAttempts,
	})

	roomController := httpapi.NewRoomController(signaling, log)
	iceController := httpapi.NewICEController(cfg.WebRTC.STUNServers)

	router := httpapi.SetupRouter(roomController, iceController, log, httpapi.RouterOptions{
		AllowOrigins:      cfg.HTTP.AllowOrigins,
		RequestsPerSecond: cfg.RateLimit.RequestsPerSecond,
		Burst:             cfg.RateLimit.Burst,
	})

	srv := &http.Server{
		Addr:         cfg.HTTP.Address,
		Handler:      router,
		ReadTimeout:  cfg.HTTP.ReadTimeout,
		WriteTimeout: cfg.HTTP.WriteTimeout,
	}

	g, gctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		log.Info("starting application",
			slog.String("addr", cfg.HTTP.Address),
			slog.String("env", cfg.Env),
			slog.String("storage", cfg.Storage.Driver),
		)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("http server: %w", err)
		}
		return nil
	})

	g.Go(func() error {
		runJanitor(gctx, log, registry, cfg.Rooms)
		return nil
	})

	g.Go(func() error {
		<-gctx.Done()
		log.Info("shutting down")

		shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.HTTP.ShutdownTimeout)
		defer cancel()
		return srv.Shutdown(shutdownCtx)
	})

	return g.Wait()
}

func runJanitor(ctx context.Context, log *slog.Logger, registry *service.Registry, cfg config.RoomsConfig) {
	if cfg.JanitorInterval <= 0 || (cfg.IdleTTL <= 0 && cfg.RecordTTL <= 0) {
		return
	}
	log = log.With(slog.String("op", "janitor"))

	ticker := time.NewTicker(cfg.JanitorInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			res, err := registry.Sweep(ctx, cfg.IdleTTL, cfg.RecordTTL)
			if err != nil {
				log.Error("sweep failed", sl.Err(err))
				continue
			}
			if res.Evicted > 0 || res.Purged > 0 {
				log.Info("rooms swept",
					slog.Int("evicted", res.Evicted),
					slog.Int("purged", res.Purged),
					slog.Int("resident", registry.Len()),
				)
			}
		}
	}
}

const (
	envLocal = "local"
	envDev   = "dev"
	envProd  = "prod"
)

func setupLogger(env string) *slog.Logger {
	var log *slog.Logger

	switch env {
	case envLocal:
		log = setupPrettySlog()
	case envDev:
		log = slog.New(
			slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{Level: slog.LevelDebug}),
		)
	case envProd:
		log = slog.New(
			slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{Level: slog.LevelInfo}),
		)
	default:
		log = setupPrettySlog()
	}

	return log
}

func setupPrettySlog() *slog.Logger {
	opts := slogpretty.PrettyHandlerOptions{
		SlogOpts: &slog.HandlerOptions{
			Level: slog.LevelDebug,
		},
	}

	handler := opts.NewPrettyHandler(os.Stdout)

	return slog.New(handler)
}

func setupStore(cfg config.StorageConfig) (repository.RecordStore, func(), error) {
	switch cfg.Driver {
	case config.StoragePostgres:
		db, err := connectDatabase(cfg)
		if err != nil {
			return nil, nil, err
		}
		closeDB := func() {
			if sqlDB, err := db.DB(); err == nil {
				_ = sqlDB.Close()
			}
		}
		return repository.NewPostgresRecordStore(db), closeDB, nil
	default:
		return repository.NewInMemoryRecordStore(), func() {}, nil
	}
}

func connectDatabase(cfg config.StorageConfig) (*gorm.DB, error) {
	if cfg.DSN == "" {
		return nil, errors.New("database dsn is empty")
	}

	db, err := gorm.Open(postgres.Open(cfg.DSN), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Warn),
	})
	if err != nil {
		return nil, err
	}

	if err := db.AutoMigrate(&model.RoomRecord{}); err != nil {
		return nil, fmt.Errorf("migrate: %w", err)
	}

	sqlDB, err := db.DB()
	if err != nil {
		return nil, err
	}

	sqlDB.SetMaxIdleConns(cfg.MaxIdleConns)
	sqlDB.SetMaxOpenConns(cfg.MaxOpenConns)
	sqlDB.SetConnMaxLifetime(cfg.ConnMaxLifetime)

	return db, nil
}
