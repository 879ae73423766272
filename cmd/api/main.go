package main

import (
	"context"
	"log"
	"net/http"
	"os"
	"os/signal"
	"time"

	"github.com/redis/go-redis/v9"

	"whisper-backend/internal/api"
	"whisper-backend/internal/archive"
	"whisper-backend/internal/config"
	"whisper-backend/internal/jobstore"
	"whisper-backend/internal/queue"
	"whisper-backend/internal/ratelimit"
)

func main() {
	cfg := config.Load()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go func() {
		ch := make(chan os.Signal, 1)
		signal.Notify(ch, os.Interrupt)
		<-ch
		cancel()
	}()

	client := redis.NewClient(&redis.Options{
		Addr:     cfg.RedisAddr,
		Password: cfg.RedisPassword,
		DB:       cfg.RedisDB,
	})
	if err := client.Ping(ctx).Err(); err != nil {
		log.Fatalf("connect redis: %v", err)
	}

	st := jobstore.New(client, cfg.JobTTL)
	q := queue.NewRedisQueue(client)
	limiter := ratelimit.NewTokenBucket(client, cfg.RateLimitCapacity, cfg.RateLimitRefill, time.Hour)

	var arc *archive.Archive
	if cfg.PostgresDSN != "" {
		var err error
		arc, err = archive.New(ctx, cfg.PostgresDSN)
		if err != nil {
			log.Fatalf("connect postgres: %v", err)
		}
		defer arc.Close()
		if err := arc.RunMigrations(ctx); err != nil {
			log.Fatalf("migrations: %v", err)
		}
	}

	server := api.New(cfg, st, q, limiter, arc)
	httpServer := &http.Server{
		Addr:    ":" + cfg.HTTPPort,
		Handler: server.Router(),
	}

	log.Printf("api listening on :%s", cfg.HTTPPort)
	go func() {
		if err := httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatalf("listen: %v", err)
		}
	}()

	<-ctx.Done()
	shutdownCtx, cancelShutdown := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancelShutdown()
	_ = httpServer.Shutdown(shutdownCtx)
}
