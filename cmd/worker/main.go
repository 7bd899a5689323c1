package main

import (
	"context"
	"fmt"
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	"attendledger/internal/activity"
	"attendledger/internal/config"
	"attendledger/internal/ledger"
	"attendledger/internal/queue"
	"attendledger/internal/report"
	"attendledger/internal/store"
)

// Worker consumes queue messages, writes the activity log, and scans
// today's sign-ins for anomalies.
func main() {
	cfg := config.Load()
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// Graceful shutdown
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		<-sigCh
		log.Println("shutdown signal received")
		cancel()
	}()

	var st store.Store
	if cfg.StorageBackend == "postgres" {
		pg, err := store.NewPostgres(cfg.DatabaseURL)
		if err != nil {
			log.Fatalf("postgres connect failed: %v", err)
		}
		defer pg.Close()
		st = pg
	} else {
		fs, err := store.NewFileStore(cfg.DataDir)
		if err != nil {
			log.Fatalf("open data dir failed: %v", err)
		}
		st = fs
	}

	redisClient := store.NewRedis(cfg.RedisAddr)
	defer redisClient.Close()

	var q queue.Queue
	if cfg.QueueBackend == "memory" {
		q = queue.NewInMemory(64)
	} else {
		q = queue.NewRedisQueue(redisClient.Client, "attendledger:events")
	}

	led := ledger.New(st, ledger.DefaultCollection)
	activityLog := activity.NewLogger(st)

	messages, err := q.Consume(ctx)
	if err != nil {
		log.Fatalf("queue consume init failed: %v", err)
	}

	log.Println("worker started, waiting for messages...")
	for msg := range messages {
		if msg.Type != queue.TypeEventRecorded {
			continue
		}

		evt, err := led.Get(ctx, msg.EventID)
		if err != nil {
			log.Printf("fetch event %d failed: %v", msg.EventID, err)
			continue
		}
		if evt == nil {
			log.Printf("event %d not found, skipping", msg.EventID)
			continue
		}

		entry := activity.Entry{
			EventID: evt.ID,
			Kind:    "recorded",
			Detail:  fmt.Sprintf("%s %s at %s", evt.Username, evt.Action, evt.Location),
		}
		if err := activityLog.Append(ctx, entry); err != nil {
			log.Printf("activity append failed for %d: %v", evt.ID, err)
		}

		scanAnomalies(ctx, led, cfg.AnomalyThreshold)
	}

	log.Println("worker stopped")
}

// scanAnomalies runs the outlier heuristic over today's events and logs
// any flags. Purely advisory; failures never stop the worker.
func scanAnomalies(ctx context.Context, led *ledger.Ledger, threshold float64) {
	events, err := led.FetchAll(ctx)
	if err != nil {
		log.Printf("anomaly scan fetch failed: %v", err)
		return
	}
	today, _, err := report.FilterWindow(events, report.WindowDaily, time.Now(), nil)
	if err != nil {
		log.Printf("anomaly scan filter failed: %v", err)
		return
	}
	anomalies, _ := report.DetectAnomalies(today, threshold)
	for _, a := range anomalies {
		log.Printf("anomaly: %s", a.Message)
	}
}
