package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"go.uber.org/zap"

	"github.com/hemolink/bloodbank/internal/api"
	"github.com/hemolink/bloodbank/internal/blood"
	"github.com/hemolink/bloodbank/internal/config"
	"github.com/hemolink/bloodbank/internal/db"
	"github.com/hemolink/bloodbank/internal/directory"
	"github.com/hemolink/bloodbank/internal/logging"
	"github.com/hemolink/bloodbank/internal/notify"
	redisclient "github.com/hemolink/bloodbank/internal/redis"
	"github.com/hemolink/bloodbank/internal/slot"
	"github.com/hemolink/bloodbank/internal/transit"
)

const version = "1.0.0"

func main() {
	cfg, err := config.Load()
	if err != nil {
		os.Stderr.WriteString("config load error: " + err.Error() + "\n")
		os.Exit(1)
	}

	log, err := logging.New(cfg.Env)
	if err != nil {
		os.Stderr.WriteString("logger init error: " + err.Error() + "\n")
		os.Exit(1)
	}
	defer log.Sync()

	log.Info("api-server starting up", zap.String("env", cfg.Env), zap.String("http_port", cfg.HTTPPort))

	rootCtx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	pgCtx, cancelPg := context.WithTimeout(rootCtx, 10*time.Second)
	pgPool, err := db.ConnectPostgres(pgCtx, cfg.PostgresDSN)
	cancelPg()
	if err != nil {
		log.Fatal("postgres connection error", zap.Error(err))
	}
	defer pgPool.Close()
	log.Info("connected to Postgres")

	schemaCtx, cancelSchema := context.WithTimeout(rootCtx, 30*time.Second)
	err = db.EnsureSchema(schemaCtx, pgPool)
	cancelSchema()
	if err != nil {
		log.Fatal("schema bootstrap error", zap.Error(err))
	}

	rdb, err := redisclient.NewRedisClient(cfg.RedisAddr, cfg.RedisUsername, cfg.RedisPassword)
	if err != nil {
		log.Fatal("redis connection error", zap.Error(err))
	}
	defer func() {
		if err := rdb.Close(); err != nil {
			log.Warn("error closing redis", zap.Error(err))
		}
	}()
	log.Info("connected to Redis")

	sink := notify.Fanout{notify.NewRecorder(pgPool, log)}
	if cfg.ActivityWebhookURL != "" {
		sink = append(sink, notify.NewWebhook(cfg.ActivityWebhookURL, log))
	}

	locker := redisclient.NewRedisLocker(rdb, cfg.LockTTL)
	dir := directory.NewPgDirectory(pgPool)

	bloodRepo := blood.NewPgRepository(pgPool)
	bloodSvc := blood.NewService(bloodRepo, dir, sink, log)
	inventory := blood.NewInventory(bloodRepo, cfg.NearingExpiryWindow)

	slotSvc := slot.NewService(slot.NewPgRepository(pgPool), dir, locker, sink, log)
	transitSvc := transit.NewService(transit.NewPgRepository(pgPool), bloodSvc, dir, locker, sink, log)

	router := api.NewRouter(api.RouterConfig{
		Slots:     slotSvc,
		Blood:     bloodSvc,
		Inventory: inventory,
		Transits:  transitSvc,
		PgPool:    pgPool,
		Redis:     rdb,
		Logger:    log,
		Env:       cfg.Env,
		Version:   version,
	})

	server := &http.Server{
		Addr:         ":" + cfg.HTTPPort,
		Handler:      router,
		ReadTimeout:  10 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	go func() {
		log.Info("listening", zap.String("addr", server.Addr))
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Fatal("http server error", zap.Error(err))
		}
	}()

	<-rootCtx.Done()
	log.Info("shutting down api-server")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.ShutdownTimeout)
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		log.Warn("graceful shutdown failed", zap.Error(err))
	}
}
