package archive

import (
	"context"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"

	"whisper-backend/internal/models"
)

// Archive keeps completed transcripts in Postgres past the Redis retention
// window. It is an operational side channel: the polling API never reads it
// for job status, so expiry semantics stay with the job store.
type Archive struct {
	pool *pgxpool.Pool
}

// New creates a pooled connection to Postgres.
func New(ctx context.Context, dsn string) (*Archive, error) {
	cfg, err := pgxpool.ParseConfig(dsn)
	if err != nil {
		return nil, fmt.Errorf("parse postgres dsn: %w", err)
	}
	pool, err := pgxpool.NewWithConfig(ctx, cfg)
	if err != nil {
		return nil, fmt.Errorf("connect postgres: %w", err)
	}
	return &Archive{pool: pool}, nil
}

func (a *Archive) Close() {
	if a.pool != nil {
		a.pool.Close()
	}
}

// Transcript is one archived row.
type Transcript struct {
	JobID               string    `json:"job_id"`
	Text                string    `json:"text"`
	Language            string    `json:"language"`
	Duration            float64   `json:"duration"`
	LanguageProbability float64   `json:"language_probability"`
	CreatedAt           time.Time `json:"created_at"`
}

// Insert stores a completed transcript. Re-inserting the same job id is a
// no-op so a replayed task cannot duplicate rows.
func (a *Archive) Insert(ctx context.Context, jobID string, result models.TranscriptionResult) error {
	_, err := a.pool.Exec(ctx, `
		INSERT INTO transcripts (job_id, text, language, duration_seconds, language_probability, created_at)
		VALUES ($1, $2, $3, $4, $5, NOW())
		ON CONFLICT (job_id) DO NOTHING
	`, jobID, result.Text, result.Language, result.Duration, result.LanguageProbability)
	if err != nil {
		return fmt.Errorf("insert transcript: %w", err)
	}
	return nil
}

// Recent returns the newest archived transcripts, most recent first.
func (a *Archive) Recent(ctx context.Context, limit int) ([]Transcript, error) {
	if limit <= 0 {
		limit = 20
	}
	rows, err := a.pool.Query(ctx, `
		SELECT job_id, text, language, duration_seconds, language_probability, created_at
		FROM transcripts ORDER BY created_at DESC LIMIT $1
	`, limit)
	if err != nil {
		return nil, fmt.Errorf("query transcripts: %w", err)
	}
	defer rows.Close()

	out := make([]Transcript, 0, limit)
	for rows.Next() {
		var t Transcript
		if err := rows.Scan(&t.JobID, &t.Text, &t.Language, &t.Duration, &t.LanguageProbability, &t.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan transcript: %w", err)
		}
		out = append(out, t)
	}
	return out, rows.Err()
}
