package queue

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"whisper-backend/internal/models"
)

const (
	readyKey    = "transcribe:ready"
	inflightKey = "transcribe:inflight"
)

// RedisQueue carries transcription tasks from the API to worker processes.
// Messages are JSON task payloads in a Redis list; dequeue atomically moves
// the popped message into an in-flight set so operators can see what is
// running. There is no lease reclaim: a job orphaned by a crashed worker
// stays at processing until its record expires.
type RedisQueue struct {
	client *redis.Client
}

// NewRedisQueue builds a queue around an existing Redis client.
func NewRedisQueue(client *redis.Client) *RedisQueue {
	return &RedisQueue{client: client}
}

// Enqueue pushes a task onto the ready queue.
func (q *RedisQueue) Enqueue(ctx context.Context, task models.Task) error {
	raw, err := json.Marshal(task)
	if err != nil {
		return fmt.Errorf("marshal task: %w", err)
	}
	if err := q.client.RPush(ctx, readyKey, raw).Err(); err != nil {
		return fmt.Errorf("enqueue task: %w", err)
	}
	return nil
}

// Dequeue pops the next ready task, marking it in-flight in the same Redis
// round trip. It returns ok=false when the queue is empty. Exactly one
// worker receives a given message.
func (q *RedisQueue) Dequeue(ctx context.Context) (models.Task, bool, error) {
	res, err := dequeueScript.Run(ctx, q.client,
		[]string{readyKey, inflightKey}, time.Now().UnixMilli()).Result()
	if err == redis.Nil {
		return models.Task{}, false, nil
	}
	if err != nil {
		return models.Task{}, false, err
	}
	raw, ok := res.(string)
	if !ok {
		return models.Task{}, false, fmt.Errorf("unexpected type from dequeue script: %T", res)
	}
	var task models.Task
	if err := json.Unmarshal([]byte(raw), &task); err != nil {
		return models.Task{}, false, fmt.Errorf("unmarshal task: %w", err)
	}
	return task, true, nil
}

// Ack removes a finished task from in-flight tracking.
func (q *RedisQueue) Ack(ctx context.Context, jobID string) error {
	return q.client.ZRem(ctx, inflightKey, jobID).Err()
}

// Depth returns the number of tasks waiting in the ready queue.
func (q *RedisQueue) Depth(ctx context.Context) (int64, error) {
	return q.client.LLen(ctx, readyKey).Result()
}

var dequeueScript = redis.NewScript(`
local msg = redis.call('LPOP', KEYS[1])
if not msg then
  return nil
end
local job = cjson.decode(msg)['job_id']
redis.call('ZADD', KEYS[2], ARGV[1], job)
return msg
`)
