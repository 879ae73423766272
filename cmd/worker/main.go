package main

import (
	"context"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/redis/go-redis/v9"

	"whisper-backend/internal/archive"
	"whisper-backend/internal/config"
	"whisper-backend/internal/jobstore"
	"whisper-backend/internal/queue"
	"whisper-backend/internal/telemetry"
	"whisper-backend/internal/transcribe"
	workerproc "whisper-backend/internal/worker"
)

func main() {
	cfg := config.Load()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go func() {
		ch := make(chan os.Signal, 1)
		signal.Notify(ch, syscall.SIGINT, syscall.SIGTERM)
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

	engine, err := newEngine(cfg)
	if err != nil {
		log.Fatalf("init engine: %v", err)
	}
	converter := transcribe.NewFFmpegConverter(cfg.FFmpegBin)

	exporter, err := workerproc.NewExporter(ctx, cfg)
	if err != nil {
		log.Fatalf("init exporter: %v", err)
	}

	var arc *archive.Archive
	if cfg.PostgresDSN != "" {
		arc, err = archive.New(ctx, cfg.PostgresDSN)
		if err != nil {
			log.Fatalf("connect postgres: %v", err)
		}
		defer arc.Close()
		if err := arc.RunMigrations(ctx); err != nil {
			log.Fatalf("migrations: %v", err)
		}
	}

	workerID := os.Getenv("WORKER_ID")
	if workerID == "" {
		hostname, _ := os.Hostname()
		if hostname != "" {
			workerID = hostname
		} else {
			workerID = fmt.Sprintf("worker-%d", os.Getpid())
		}
	}

	handler := workerproc.NewTranscribeHandler(st, engine, converter, exporter, arc)
	processor := workerproc.NewProcessor(cfg, q, handler, workerID)

	go func() {
		if err := http.ListenAndServe(cfg.MetricsAddr, telemetry.Handler()); err != nil {
			log.Printf("metrics server stopped: %v", err)
		}
	}()

	log.Printf("worker %s started with engine=%s concurrency=%d", workerID, cfg.Engine, cfg.WorkerConcurrency)
	if err := processor.Run(ctx); err != nil {
		log.Printf("worker stopped: %v", err)
	}
}

func newEngine(cfg config.Config) (transcribe.Engine, error) {
	switch cfg.Engine {
	case "", "whisper":
		return transcribe.NewWhisperCLI(cfg.WhisperBin, cfg.WhisperModel), nil
	case "openai":
		return transcribe.NewOpenAIEngine(cfg.OpenAIAPIKey)
	default:
		return nil, fmt.Errorf("unknown TRANSCRIBE_ENGINE %q", cfg.Engine)
	}
}
