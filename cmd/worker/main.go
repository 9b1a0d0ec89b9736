package main

import (
	"context"
	"log"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"makerspace/internal/config"
	"makerspace/internal/directory"
	"makerspace/internal/queue"
	"makerspace/internal/session"
	"makerspace/internal/store"
)

// Worker consumes session events and backfills IEDC member profile fields
// (department, year) from the external membership directory.
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

	db, err := store.NewDB(cfg.DatabaseURL)
	if err != nil {
		log.Fatalf("db connect failed: %v", err)
	}
	defer db.Close()

	redisClient := store.NewRedis(cfg.RedisAddr)

	var q queue.Queue
	if cfg.QueueBackend == "memory" {
		q = queue.NewInMemory(64)
	} else {
		q = queue.NewRedisQueue(redisClient.Client, "makerspace:sessions")
	}

	repo := session.NewRepository(db.Client)
	members := directory.New(cfg.DirectoryURL, cfg.DirectorySkip)

	if !cfg.DirectorySkip {
		if err := members.Health(ctx); err != nil {
			log.Printf("WARNING: membership directory not available: %v", err)
			log.Println("worker will retry lookups when sessions arrive")
		} else {
			log.Println("membership directory reachable")
		}
	}

	messages, err := q.Consume(ctx)
	if err != nil {
		log.Fatalf("queue consume init failed: %v", err)
	}

	log.Println("worker started, waiting for messages...")
	for msg := range messages {
		if msg.Type != queue.TypeCheckin {
			continue
		}

		id := string(msg.Body)
		sess, err := repo.Get(ctx, id)
		if err != nil {
			log.Printf("fetch session %s failed: %v", id, err)
			continue
		}

		if sess.RegNo == nil || !strings.HasPrefix(*sess.RegNo, "IEDC") {
			continue
		}
		if sess.Department != nil && sess.Year != nil {
			continue
		}

		member, err := members.Lookup(ctx, *sess.RegNo)
		if err != nil {
			log.Printf("directory lookup for %s failed: %v", *sess.RegNo, err)
			continue
		}

		var dept, year *string
		if sess.Department == nil && member.Department != "" {
			dept = &member.Department
		}
		if sess.Year == nil && member.Year != "" {
			year = &member.Year
		}
		if dept == nil && year == nil {
			continue
		}

		if err := repo.UpdateProfile(ctx, id, dept, year); err != nil {
			log.Printf("profile backfill for session %s failed: %v", id, err)
			continue
		}
		log.Printf("session %s profile backfilled from directory", id)

		time.Sleep(10 * time.Millisecond) // Small delay between lookups
	}

	log.Println("worker stopped")
}
