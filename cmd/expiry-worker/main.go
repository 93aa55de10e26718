package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"
	"time"

	"go.uber.org/zap"

	"github.com/hemolink/bloodbank/internal/blood"
	"github.com/hemolink/bloodbank/internal/config"
	"github.com/hemolink/bloodbank/internal/db"
	"github.com/hemolink/bloodbank/internal/directory"
	"github.com/hemolink/bloodbank/internal/logging"
	"github.com/hemolink/bloodbank/internal/notify"
)

// The expiry worker disposes every expired, non-terminal unit on a fixed
// interval. The sweep is idempotent, so overlapping deployments are safe.
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

	log.Info("expiry-worker starting up",
		zap.String("env", cfg.Env),
		zap.Duration("interval", cfg.SweepInterval))

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

	sink := notify.NewRecorder(pgPool, log)
	dir := directory.NewPgDirectory(pgPool)
	svc := blood.NewService(blood.NewPgRepository(pgPool), dir, sink, log)

	// Run once at startup
	runOnce(rootCtx, svc, log)

	ticker := time.NewTicker(cfg.SweepInterval)
	defer ticker.Stop()

	for {
		select {
		case <-rootCtx.Done():
			log.Info("shutdown signal received, stopping expiry worker")
			return
		case <-ticker.C:
			runOnce(rootCtx, svc, log)
		}
	}
}

func runOnce(ctx context.Context, svc *blood.Service, log *zap.Logger) {
	runCtx, cancel := context.WithTimeout(ctx, 20*time.Second)
	defer cancel()

	start := time.Now()
	disposed, err := svc.SweepExpired(runCtx)
	if err != nil {
		log.Error("sweep run error", zap.Error(err))
		return
	}
	log.Info("sweep run complete",
		zap.Int("disposed", disposed),
		zap.Duration("took", time.Since(start)))
}
