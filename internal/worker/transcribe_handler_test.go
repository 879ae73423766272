package worker

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	miniredis "github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"

	"whisper-backend/internal/jobstore"
	"whisper-backend/internal/models"
)

type fakeEngine struct {
	result  models.TranscriptionResult
	err     error
	gotPath string
}

func (f *fakeEngine) Transcribe(_ context.Context, audioPath string) (models.TranscriptionResult, error) {
	f.gotPath = audioPath
	if f.err != nil {
		return models.TranscriptionResult{}, f.err
	}
	return f.result, nil
}

type fakeConverter struct {
	err    error
	called bool
}

func (f *fakeConverter) Convert(_ context.Context, _, outputPath string) error {
	f.called = true
	if f.err != nil {
		return f.err
	}
	return os.WriteFile(outputPath, []byte("RIFF"), 0o644)
}

func newTestHandler(t *testing.T, engine *fakeEngine, conv *fakeConverter) (*TranscribeHandler, *jobstore.Store) {
	t.Helper()
	mr, err := miniredis.Run()
	if err != nil {
		t.Fatalf("miniredis: %v", err)
	}
	t.Cleanup(mr.Close)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	st := jobstore.New(client, time.Hour)
	return NewTranscribeHandler(st, engine, conv, nil, nil), st
}

func writeUpload(t *testing.T, name string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), name)
	if err := os.WriteFile(path, []byte("audio bytes"), 0o644); err != nil {
		t.Fatalf("write upload: %v", err)
	}
	return path
}

func TestHandleWavSuccess(t *testing.T) {
	ctx := context.Background()
	engine := &fakeEngine{result: models.TranscriptionResult{
		Text:                "hello world",
		Language:            "en",
		Duration:            5.0,
		LanguageProbability: 0.93,
	}}
	conv := &fakeConverter{}
	h, st := newTestHandler(t, engine, conv)

	path := writeUpload(t, "job-1.wav")
	if _, err := st.Create(ctx, "job-1"); err != nil {
		t.Fatalf("create: %v", err)
	}

	if err := h.Handle(ctx, models.Task{JobID: "job-1", Path: path, ContentType: "audio/wav"}); err != nil {
		t.Fatalf("handle: %v", err)
	}

	if conv.called {
		t.Fatal("wav input must not be converted")
	}
	if engine.gotPath != path {
		t.Fatalf("engine ran on %q, want %q", engine.gotPath, path)
	}

	job, err := st.Get(ctx, "job-1")
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if job.Status != models.StatusCompleted || job.Result == nil {
		t.Fatalf("expected completed job with result, got %+v", job)
	}
	if job.Result.Text != "hello world" || job.Result.Language != "en" {
		t.Fatalf("unexpected result: %+v", job.Result)
	}

	if _, err := os.Stat(path); !errors.Is(err, os.ErrNotExist) {
		t.Fatal("upload file must be removed after success")
	}
}

func TestHandleConvertsNonWav(t *testing.T) {
	ctx := context.Background()
	engine := &fakeEngine{result: models.TranscriptionResult{Text: "ok", Language: "en"}}
	conv := &fakeConverter{}
	h, st := newTestHandler(t, engine, conv)

	path := writeUpload(t, "job-1.mp3")
	if _, err := st.Create(ctx, "job-1"); err != nil {
		t.Fatalf("create: %v", err)
	}

	if err := h.Handle(ctx, models.Task{JobID: "job-1", Path: path, ContentType: "audio/mpeg"}); err != nil {
		t.Fatalf("handle: %v", err)
	}

	if !conv.called {
		t.Fatal("mp3 input must be converted")
	}
	if engine.gotPath != path+".norm.wav" {
		t.Fatalf("engine must run on the converted file, got %q", engine.gotPath)
	}

	// Upload and intermediate are both gone.
	if _, err := os.Stat(path); !errors.Is(err, os.ErrNotExist) {
		t.Fatal("upload file must be removed")
	}
	if _, err := os.Stat(path + ".norm.wav"); !errors.Is(err, os.ErrNotExist) {
		t.Fatal("converted file must be removed")
	}
}

func TestHandleConversionFailure(t *testing.T) {
	ctx := context.Background()
	engine := &fakeEngine{}
	conv := &fakeConverter{err: errors.New("audio conversion failed: invalid data")}
	h, st := newTestHandler(t, engine, conv)

	path := writeUpload(t, "job-1.ogg")
	if _, err := st.Create(ctx, "job-1"); err != nil {
		t.Fatalf("create: %v", err)
	}

	if err := h.Handle(ctx, models.Task{JobID: "job-1", Path: path, ContentType: "audio/ogg"}); err != nil {
		t.Fatalf("handle: %v", err)
	}

	job, err := st.Get(ctx, "job-1")
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if job.Status != models.StatusFailed || job.Error == "" {
		t.Fatalf("expected failed job with error, got %+v", job)
	}
	if !strings.Contains(job.Error, "conversion") {
		t.Fatalf("error should mention conversion, got %q", job.Error)
	}
	if job.Result != nil {
		t.Fatal("failed job must not carry a partial result")
	}
	if engine.gotPath != "" {
		t.Fatal("engine must not run after conversion failure")
	}
	if _, err := os.Stat(path); !errors.Is(err, os.ErrNotExist) {
		t.Fatal("upload file must be removed on failure")
	}
}

func TestHandleEngineFailure(t *testing.T) {
	ctx := context.Background()
	engine := &fakeEngine{err: errors.New("model ran out of memory")}
	h, st := newTestHandler(t, engine, &fakeConverter{})

	path := writeUpload(t, "job-1.wav")
	if _, err := st.Create(ctx, "job-1"); err != nil {
		t.Fatalf("create: %v", err)
	}

	if err := h.Handle(ctx, models.Task{JobID: "job-1", Path: path, ContentType: "audio/wav"}); err != nil {
		t.Fatalf("handle: %v", err)
	}

	job, err := st.Get(ctx, "job-1")
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if job.Status != models.StatusFailed {
		t.Fatalf("expected failed, got %s", job.Status)
	}
	if !strings.Contains(job.Error, "model ran out of memory") {
		t.Fatalf("error should carry the engine message, got %q", job.Error)
	}
	if _, err := os.Stat(path); !errors.Is(err, os.ErrNotExist) {
		t.Fatal("upload file must be removed on failure")
	}
}

func TestHandleExpiredRecordDropsTask(t *testing.T) {
	ctx := context.Background()
	engine := &fakeEngine{}
	h, _ := newTestHandler(t, engine, &fakeConverter{})

	path := writeUpload(t, "job-gone.wav")
	if err := h.Handle(ctx, models.Task{JobID: "job-gone", Path: path, ContentType: "audio/wav"}); err != nil {
		t.Fatalf("expected dropped task, got %v", err)
	}
	if engine.gotPath != "" {
		t.Fatal("engine must not run for an expired job")
	}
	if _, err := os.Stat(path); !errors.Is(err, os.ErrNotExist) {
		t.Fatal("upload file must still be cleaned up")
	}
}
