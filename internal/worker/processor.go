package worker

import (
	"context"
	"log"
	"time"

	"golang.org/x/sync/errgroup"

	"whisper-backend/internal/config"
	"whisper-backend/internal/queue"
	"whisper-backend/internal/telemetry"
)

// Processor drives the worker poll loops. Concurrency is a fixed pool of
// loops sharing one queue; each dequeued task is handled by exactly one
// loop and acked once a terminal job state has been written.
type Processor struct {
	cfg      config.Config
	queue    *queue.RedisQueue
	handler  *TranscribeHandler
	workerID string
}

// NewProcessor builds a processor with a worker ID used for logging.
func NewProcessor(cfg config.Config, q *queue.RedisQueue, handler *TranscribeHandler, workerID string) *Processor {
	return &Processor{
		cfg:      cfg,
		queue:    q,
		handler:  handler,
		workerID: workerID,
	}
}

// Run starts the configured number of poll loops and blocks until the
// context is cancelled.
func (p *Processor) Run(ctx context.Context) error {
	concurrency := p.cfg.WorkerConcurrency
	if concurrency <= 0 {
		concurrency = 1
	}
	g, ctx := errgroup.WithContext(ctx)
	for i := 0; i < concurrency; i++ {
		g.Go(func() error {
			return p.runLoop(ctx)
		})
	}
	return g.Wait()
}

func (p *Processor) runLoop(ctx context.Context) error {
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		default:
		}

		if depth, err := p.queue.Depth(ctx); err == nil {
			telemetry.QueueDepthGauge.Set(float64(depth))
		}

		task, ok, err := p.queue.Dequeue(ctx)
		if err != nil {
			log.Printf("worker %s: dequeue: %v", p.workerID, err)
			p.sleep(ctx)
			continue
		}
		if !ok {
			p.sleep(ctx)
			continue
		}

		telemetry.InFlightGauge.Inc()
		if err := p.handler.Handle(ctx, task); err != nil {
			// Store failures leave the record to age out via TTL; the task
			// is still acked so the loop never wedges on one job.
			log.Printf("worker %s: job %s: %v", p.workerID, task.JobID, err)
		}
		if err := p.queue.Ack(ctx, task.JobID); err != nil {
			log.Printf("worker %s: ack %s: %v", p.workerID, task.JobID, err)
		}
		telemetry.InFlightGauge.Dec()
	}
}

func (p *Processor) sleep(ctx context.Context) {
	interval := p.cfg.WorkerPollInterval
	if interval <= 0 {
		interval = time.Second
	}
	select {
	case <-ctx.Done():
	case <-time.After(interval):
	}
}
