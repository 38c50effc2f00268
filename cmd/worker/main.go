package main

import (
	"context"
	"database/sql"
	"fmt"
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/robfig/cron/v3"

	"github.com/ignite/outreach-core/internal/config"
	"github.com/ignite/outreach-core/internal/mailbox"
	"github.com/ignite/outreach-core/internal/pkg/distlock"
	"github.com/ignite/outreach-core/internal/schedule"
	"github.com/ignite/outreach-core/internal/scheduler"
	"github.com/ignite/outreach-core/internal/throttle"
	"github.com/ignite/outreach-core/internal/transport"
	"github.com/ignite/outreach-core/internal/warmup"

	_ "github.com/lib/pq" // PostgreSQL driver
)

func main() {
	log.Println("Starting Outreach Delivery Worker...")

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
	db.SetConnMaxLifetime(5 * time.Minute)

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

	var sender transport.Sender
	if cfg.SES.AccessKey != "" && cfg.SES.SecretKey != "" {
		sender = transport.NewSESSender(cfg.SES.AccessKey, cfg.SES.SecretKey, cfg.SES.Region)
		log.Printf("[Worker] Using SES transport (region %s)", cfg.SES.Region)
	} else {
		sender = transport.NewLogSender()
		log.Println("[Worker] No SES credentials; using log transport")
	}

	processor := scheduler.NewProcessor(jobs, mailboxes, policies, counters,
		orchestrator, sender, scheduler.Options{
			BatchSize:       cfg.Processor.BatchSize,
			SendTimeout:     cfg.Processor.SendTimeout(),
			DefaultThrottle: cfg.Throttle.Domain(),
		})

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	c := cron.New()

	_, err = c.AddFunc(fmt.Sprintf("@every %ds", cfg.Processor.PollIntervalSeconds), func() {
		report, err := processor.RunOnce(ctx)
		if err != nil {
			log.Printf("[Worker] Processing pass failed: %v", err)
			return
		}
		if report.Claimed > 0 {
			log.Printf("[Worker] Pass complete: claimed=%d sent=%d deferred=%d cancelled=%d failed=%d errors=%d",
				report.Claimed, report.Sent, report.Deferred, report.Cancelled, report.Failed, report.Errors)
		}
	})
	if err != nil {
		log.Fatalf("Failed to schedule processor tick: %v", err)
	}

	_, err = c.AddFunc(fmt.Sprintf("@every %dm", cfg.Processor.StuckReclaimMinutes), func() {
		n, err := jobs.ReclaimStuck(ctx, cfg.Processor.StuckThreshold(), time.Now())
		if err != nil {
			log.Printf("[Worker] Stuck reclaim failed: %v", err)
			return
		}
		if n > 0 {
			log.Printf("[Worker] Reclaimed %d stuck jobs", n)
		}
	})
	if err != nil {
		log.Fatalf("Failed to schedule stuck reclaim: %v", err)
	}

	// Counter mirror and daily maintenance are singleton sweeps: the lock
	// keeps multi-instance deployments from running them twice per tick.
	mirrorLock := distlock.New(counters.Client(), db, "counter-mirror",
		time.Duration(cfg.Processor.MirrorIntervalMinute)*time.Minute)
	_, err = c.AddFunc(fmt.Sprintf("@every %dm", cfg.Processor.MirrorIntervalMinute), func() {
		runMirror(ctx, mirrorLock, mailboxes, counters)
	})
	if err != nil {
		log.Fatalf("Failed to schedule counter mirror: %v", err)
	}

	maintenanceLock := distlock.New(counters.Client(), db, "warmup-maintenance", time.Hour)
	_, err = c.AddFunc(fmt.Sprintf("0 %d * * *", cfg.Warmup.MaintenanceHourUTC), func() {
		runMaintenance(ctx, maintenanceLock, orchestrator)
	})
	if err != nil {
		log.Fatalf("Failed to schedule warmup maintenance: %v", err)
	}

	c.Start()
	log.Printf("[Worker] Running: poll=%ds batch=%d maintenance_hour=%02d:00 UTC",
		cfg.Processor.PollIntervalSeconds, cfg.Processor.BatchSize, cfg.Warmup.MaintenanceHourUTC)

	<-ctx.Done()
	log.Println("[Worker] Shutdown signal received")

	stopCtx := c.Stop()
	select {
	case <-stopCtx.Done():
	case <-time.After(30 * time.Second):
		log.Println("[Worker] Timed out waiting for running jobs")
	}
	log.Println("[Worker] Stopped")
}

// runMirror copies the live Redis counters into the mailbox rows so that
// pool listings and selection see approximately current usage.
func runMirror(ctx context.Context, lock distlock.Lock, mailboxes *mailbox.Store, counters *throttle.CounterStore) {
	ok, err := lock.Acquire(ctx)
	if err != nil {
		log.Printf("[Worker] Mirror lock error: %v", err)
		return
	}
	if !ok {
		return
	}
	defer lock.Release(ctx)

	ids, err := mailboxes.ListActiveIDs(ctx)
	if err != nil {
		log.Printf("[Worker] Mirror sweep failed: %v", err)
		return
	}

	now := time.Now()
	for _, id := range ids {
		sentToday, sentThisHour, lastSentAt, err := counters.Usage(ctx, id, now)
		if err != nil {
			log.Printf("[Worker] Mirror read failed for %s: %v", id, err)
			continue
		}
		if err := mailboxes.MirrorCounters(ctx, id, sentToday, sentThisHour, lastSentAt); err != nil {
			log.Printf("[Worker] Mirror write failed for %s: %v", id, err)
		}
	}
}

func runMaintenance(ctx context.Context, lock distlock.Lock, orchestrator *warmup.Orchestrator) {
	ok, err := lock.Acquire(ctx)
	if err != nil {
		log.Printf("[Worker] Maintenance lock error: %v", err)
		return
	}
	if !ok {
		log.Println("[Worker] Maintenance already running elsewhere; skipping")
		return
	}
	defer lock.Release(ctx)

	report, err := orchestrator.RunDailyMaintenance(ctx)
	if err != nil {
		log.Printf("[Worker] Warmup maintenance failed: %v", err)
		return
	}
	log.Printf("[Worker] Warmup maintenance: advanced=%d paused=%d completed=%d",
		report.Advanced, report.Paused, report.Completed)
}
