// BlueSender standalone worker: runs the send queue drainer and the
// validation reconciler without the HTTP API. Deploy it when the queue
// load should scale independently of the API servers.
package main

import (
	"context"
	"database/sql"
	"flag"
	"os"
	"os/signal"
	"syscall"
	"time"

	_ "github.com/lib/pq"
	"github.com/redis/go-redis/v9"

	"github.com/bluelime/bluesender/internal/config"
	"github.com/bluelime/bluesender/internal/pkg/distlock"
	"github.com/bluelime/bluesender/internal/pkg/logger"
	"github.com/bluelime/bluesender/internal/repository/postgres"
	"github.com/bluelime/bluesender/internal/smtprelay"
	"github.com/bluelime/bluesender/internal/truelist"
	"github.com/bluelime/bluesender/internal/validation"
	"github.com/bluelime/bluesender/internal/worker"
)

func main() {
	configPath := flag.String("config", "config/config.yaml", "path to config file")
	flag.Parse()

	cfg, err := config.LoadFromEnv(*configPath)
	if err != nil {
		logger.Error("config load failed", "error", err.Error())
		os.Exit(1)
	}
	if os.Getenv("LOG_DEBUG") == "true" {
		logger.SetLevel(logger.DEBUG)
	}

	if cfg.Database.URL == "" {
		logger.Error("DATABASE_URL is required")
		os.Exit(1)
	}
	db, err := sql.Open("postgres", cfg.Database.URL)
	if err != nil {
		logger.Error("database open failed", "error", err.Error())
		os.Exit(1)
	}
	defer db.Close()
	db.SetMaxOpenConns(cfg.Database.MaxOpenConns)
	db.SetMaxIdleConns(cfg.Database.MaxIdleConns)
	db.SetConnMaxLifetime(time.Duration(cfg.Database.ConnMaxLifeMins) * time.Minute)
	if err := db.Ping(); err != nil {
		logger.Error("database ping failed", "error", err.Error())
		os.Exit(1)
	}

	listRepo := postgres.NewListRepo(db)
	mailboxRepo := postgres.NewMailboxRepo(db)
	queueRepo := postgres.NewQueueRepo(db)

	provider := truelist.NewClient(cfg.Truelist)

	// Multiple worker instances share the reconcile lock through Redis.
	var locker validation.Locker
	if cfg.Redis.Enabled {
		rdb := redis.NewClient(&redis.Options{
			Addr:     cfg.Redis.Addr,
			Password: cfg.Redis.Password,
			DB:       cfg.Redis.DB,
		})
		if err := rdb.Ping(context.Background()).Err(); err != nil {
			logger.Warn("redis unavailable, reconciling without lock", "error", err.Error())
		} else {
			locker = distlock.NewRedisLock(rdb, "bluesender:reconcile", 30*time.Second)
		}
	}

	reconciler := validation.NewReconciler(listRepo, provider, locker, cfg.Worker.ReconcileInterval())
	relay := smtprelay.New(cfg.Mail.AllowSelfSigned, cfg.Worker.SMTPTimeout())
	sendWorker := worker.NewSendWorker(queueRepo, mailboxRepo, relay,
		cfg.Database.URL, cfg.Worker.QueueBatchSize, cfg.Worker.PollInterval())

	reconciler.Start()
	sendWorker.Start()
	logger.Info("worker started")

	done := make(chan os.Signal, 1)
	signal.Notify(done, os.Interrupt, syscall.SIGINT, syscall.SIGTERM)
	<-done

	logger.Info("shutting down")
	sendWorker.Stop()
	reconciler.Stop()
	logger.Info("worker stopped")
}
