package main

import (
	"context"
	"database/sql"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/ignite/outreach-core/internal/api"
	"github.com/ignite/outreach-core/internal/config"
	"github.com/ignite/outreach-core/internal/mailbox"
	"github.com/ignite/outreach-core/internal/schedule"
	"github.com/ignite/outreach-core/internal/scheduler"
	"github.com/ignite/outreach-core/internal/throttle"
	"github.com/ignite/outreach-core/internal/transport"
	"github.com/ignite/outreach-core/internal/warmup"

	_ "github.com/lib/pq" // PostgreSQL driver
)

func main() {
	log.Println("Starting Outreach Admin API...")

	cfg, err := config.LoadFromEnv(os.Getenv("CONFIG_PATH"))
	if err != nil {
		log.Fatalf("Failed to load config: %v", err)
	}
	if cfg.Database.URL == "" {
		log.Fatal("DATABASE_URL is required")
	}

	db, err := sql.Open("postgres", cfg.Database.URL)
	if err != nil {
		log.Fatalf("Failed to connect to database: %v", err)
	}
	defer db.Close()

	db.SetMaxOpenConns(cfg.Database.MaxOpenConns)
	db.SetMaxIdleConns(cfg.Database.MaxIdleConns)

	pingCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := db.PingContext(pingCtx); err != nil {
		log.Fatalf("Failed to ping database: %v", err)
	}
	log.Println("Connected to database")

	counters, err := throttle.NewCounterStoreFromURL(cfg.Redis.URL)
	if err != nil {
		log.Fatalf("Failed to connect to Redis: %v", err)
	}
	defer counters.Close()

	jobs := scheduler.NewJobStore(db)
	mailboxes := mailbox.NewStore(db)
	policies := schedule.NewStore(db)
	sessions := warmup.NewStore(db)
	orchestrator := warmup.NewOrchestrator(sessions, mailboxes, counters)

	// The admin API's on-demand processor pass uses the log transport so a
	// manual trigger from a staging shell can never send real mail. Real
	// delivery belongs to the worker.
	processor := scheduler.NewProcessor(jobs, mailboxes, policies, counters,
		orchestrator, transport.NewLogSender(), scheduler.Options{
			BatchSize:       cfg.Processor.BatchSize,
			SendTimeout:     cfg.Processor.SendTimeout(),
			DefaultThrottle: cfg.Throttle.Domain(),
		})

	handlers := &api.Handlers{
		Jobs:      jobs,
		Warmup:    orchestrator,
		Throttle:  mailboxes,
		Usage:     counters,
		Processor: processor,
	}

	srv := &http.Server{
		Addr:         cfg.Server.Addr(),
		Handler:      api.SetupRoutes(handlers),
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 30 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	go func() {
		log.Printf("[Server] Listening on %s", cfg.Server.Addr())
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatalf("Server failed: %v", err)
		}
	}()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()
	<-ctx.Done()
	log.Println("[Server] Shutdown signal received")

	shutdownCtx, cancelShutdown := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancelShutdown()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Printf("[Server] Graceful shutdown failed: %v", err)
	}
	log.Println("[Server] Stopped")
}
