package worker

import (
	"context"
	"testing"
	"time"

	miniredis "github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"

	"whisper-backend/internal/config"
	"whisper-backend/internal/jobstore"
	"whisper-backend/internal/models"
	"whisper-backend/internal/queue"
)

func TestProcessorRunsTaskToCompletion(t *testing.T) {
	ctx := context.Background()
	mr, err := miniredis.Run()
	if err != nil {
		t.Fatalf("miniredis: %v", err)
	}
	t.Cleanup(mr.Close)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})

	st := jobstore.New(client, time.Hour)
	q := queue.NewRedisQueue(client)
	engine := &fakeEngine{result: models.TranscriptionResult{
		Text: "done", Language: "en", Duration: 1.5, LanguageProbability: 0.99,
	}}
	handler := NewTranscribeHandler(st, engine, &fakeConverter{}, nil, nil)

	cfg := config.Config{WorkerConcurrency: 2, WorkerPollInterval: 10 * time.Millisecond}
	processor := NewProcessor(cfg, q, handler, "test-worker")

	path := writeUpload(t, "job-1.wav")
	if _, err := st.Create(ctx, "job-1"); err != nil {
		t.Fatalf("create: %v", err)
	}
	if err := q.Enqueue(ctx, models.Task{JobID: "job-1", Path: path, ContentType: "audio/wav"}); err != nil {
		t.Fatalf("enqueue: %v", err)
	}

	runCtx, cancel := context.WithCancel(ctx)
	done := make(chan struct{})
	go func() {
		_ = processor.Run(runCtx)
		close(done)
	}()

	deadline := time.Now().Add(2 * time.Second)
	var job models.Job
	for {
		job, err = st.Get(ctx, "job-1")
		if err == nil && models.Terminal(job.Status) {
			break
		}
		if time.Now().After(deadline) {
			cancel()
			t.Fatalf("job never reached a terminal state: %+v err=%v", job, err)
		}
		time.Sleep(10 * time.Millisecond)
	}
	cancel()
	<-done

	if job.Status != models.StatusCompleted || job.Result == nil || job.Result.Text != "done" {
		t.Fatalf("unexpected terminal record: %+v", job)
	}

	// The task was acked out of the in-flight set.
	if members, _ := mr.ZMembers("transcribe:inflight"); len(members) != 0 {
		t.Fatalf("expected empty in-flight set, got %v", members)
	}
}
