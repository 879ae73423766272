package jobstore

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"whisper-backend/internal/models"
)

var (
	// ErrNotFound is returned for unknown or expired job identifiers.
	ErrNotFound = errors.New("job not found")
	// ErrInvalidTransition is returned when a status update would violate
	// the job state machine.
	ErrInvalidTransition = errors.New("invalid status transition")
)

// Store persists job records in Redis, one JSON value per job. Records are
// created with the retention TTL and updated with KEEPTTL so the retention
// window is anchored at submission time.
type Store struct {
	client *redis.Client
	ttl    time.Duration
}

// New builds a store around an existing Redis client.
func New(client *redis.Client, ttl time.Duration) *Store {
	if ttl <= 0 {
		ttl = 24 * time.Hour
	}
	return &Store{client: client, ttl: ttl}
}

func jobKey(id string) string {
	return "job:" + id
}

// Create writes the initial queued record for a job and starts its
// retention clock.
func (s *Store) Create(ctx context.Context, id string) (models.Job, error) {
	now := time.Now().UTC()
	job := models.Job{
		ID:        id,
		Status:    models.StatusQueued,
		CreatedAt: now,
		UpdatedAt: now,
	}
	raw, err := json.Marshal(job)
	if err != nil {
		return models.Job{}, fmt.Errorf("marshal job: %w", err)
	}
	if err := s.client.Set(ctx, jobKey(id), raw, s.ttl).Err(); err != nil {
		return models.Job{}, fmt.Errorf("create job: %w", err)
	}
	return job, nil
}

// Get fetches a job by id. Expired records are indistinguishable from ones
// that never existed.
func (s *Store) Get(ctx context.Context, id string) (models.Job, error) {
	raw, err := s.client.Get(ctx, jobKey(id)).Bytes()
	if errors.Is(err, redis.Nil) {
		return models.Job{}, ErrNotFound
	}
	if err != nil {
		return models.Job{}, fmt.Errorf("get job: %w", err)
	}
	var job models.Job
	if err := json.Unmarshal(raw, &job); err != nil {
		return models.Job{}, fmt.Errorf("unmarshal job: %w", err)
	}
	return job, nil
}

// MarkProcessing transitions a job from queued to processing.
func (s *Store) MarkProcessing(ctx context.Context, id string) error {
	return s.update(ctx, id, models.StatusProcessing, nil, "")
}

// Complete transitions a job to completed with its full result. Partial
// results are never written.
func (s *Store) Complete(ctx context.Context, id string, result models.TranscriptionResult) error {
	return s.update(ctx, id, models.StatusCompleted, &result, "")
}

// Fail transitions a job to failed with the captured error message.
func (s *Store) Fail(ctx context.Context, id string, message string) error {
	return s.update(ctx, id, models.StatusFailed, nil, message)
}

// update performs a read-modify-write of the job record. Each job has a
// single writer (the worker holding its task), so no cross-process locking
// is needed beyond Redis's atomic SET.
func (s *Store) update(ctx context.Context, id, status string, result *models.TranscriptionResult, message string) error {
	job, err := s.Get(ctx, id)
	if err != nil {
		return err
	}
	if !models.CanTransition(job.Status, status) {
		return fmt.Errorf("%w: %s -> %s", ErrInvalidTransition, job.Status, status)
	}

	job.Status = status
	job.Result = result
	job.Error = message
	job.UpdatedAt = time.Now().UTC()

	raw, err := json.Marshal(job)
	if err != nil {
		return fmt.Errorf("marshal job: %w", err)
	}
	// KEEPTTL preserves the retention window set at creation.
	err = s.client.SetArgs(ctx, jobKey(id), raw, redis.SetArgs{KeepTTL: true}).Err()
	if err != nil {
		return fmt.Errorf("update job: %w", err)
	}
	return nil
}
