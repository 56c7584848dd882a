// BlueSender API server: validation lists, mailbox provisioning, the
// outbound send queue and webmail, behind bearer-token auth.
package main

import (
	"context"
	"database/sql"
	"flag"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	_ "github.com/lib/pq"
	"github.com/redis/go-redis/v9"

	"github.com/bluelime/bluesender/internal/api"
	"github.com/bluelime/bluesender/internal/auth"
	"github.com/bluelime/bluesender/internal/config"
	"github.com/bluelime/bluesender/internal/mailcow"
	"github.com/bluelime/bluesender/internal/pkg/distlock"
	"github.com/bluelime/bluesender/internal/pkg/logger"
	"github.com/bluelime/bluesender/internal/provision"
	"github.com/bluelime/bluesender/internal/repository/postgres"
	"github.com/bluelime/bluesender/internal/smtprelay"
	"github.com/bluelime/bluesender/internal/truelist"
	"github.com/bluelime/bluesender/internal/validation"
	"github.com/bluelime/bluesender/internal/webmail"
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
	logger.Info("database connected")

	// Repositories
	listRepo := postgres.NewListRepo(db)
	contactRepo := postgres.NewContactRepo(db)
	resultRepo := postgres.NewResultRepo(db)
	mailboxRepo := postgres.NewMailboxRepo(db)
	queueRepo := postgres.NewQueueRepo(db)

	// Validation provider and services
	provider := truelist.NewClient(cfg.Truelist)
	validationSvc := validation.NewService(listRepo, contactRepo, provider)

	// Reconciler lock is optional: without Redis a single instance
	// reconciles unguarded.
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
			logger.Info("redis connected", "addr", cfg.Redis.Addr)
		}
	}
	reconciler := validation.NewReconciler(listRepo, provider, locker, cfg.Worker.ReconcileInterval())

	// Provisioning
	gateway := mailcow.NewClient(cfg.Mailcow)
	provisionSvc := provision.NewService(gateway, mailboxRepo, cfg.Mail, cfg.Mailcow.DefaultDomain)

	// Send worker
	relay := smtprelay.New(cfg.Mail.AllowSelfSigned, cfg.Worker.SMTPTimeout())
	sendWorker := worker.NewSendWorker(queueRepo, mailboxRepo, relay,
		cfg.Database.URL, cfg.Worker.QueueBatchSize, cfg.Worker.PollInterval())

	reconciler.Start()
	defer reconciler.Stop()
	sendWorker.Start()
	defer sendWorker.Stop()

	handlers := &api.Handlers{
		Validation: validationSvc,
		Lists:      listRepo,
		Results:    resultRepo,
		Contacts:   contactRepo,
		Reconciler: reconciler,
		Provision:  provisionSvc,
		Queue:      queueRepo,
		Worker:     sendWorker,
		Webmail:    webmail.New(webmail.DefaultTimeout),
		Mail:       cfg.Mail,
	}
	router := api.SetupRoutes(handlers, auth.NewVerifier(cfg.Auth.JWTSecret))

	addr := fmt.Sprintf("%s:%d", cfg.Server.GetHost(), cfg.Server.Port)
	server := &http.Server{
		Addr:         addr,
		Handler:      router,
		ReadTimeout:  30 * time.Second,
		WriteTimeout: 60 * time.Second,
	}

	done := make(chan os.Signal, 1)
	signal.Notify(done, os.Interrupt, syscall.SIGINT, syscall.SIGTERM)

	go func() {
		logger.Info("server listening", "addr", addr)
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Error("server error", "error", err.Error())
			os.Exit(1)
		}
	}()

	<-done
	logger.Info("shutting down")

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shutdownCancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		logger.Error("server shutdown error", "error", err.Error())
	}
	logger.Info("server stopped")
}
