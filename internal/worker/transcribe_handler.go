package worker

import (
	"context"
	"errors"
	"fmt"
	"log"
	"os"

	"whisper-backend/internal/archive"
	"whisper-backend/internal/jobstore"
	"whisper-backend/internal/models"
	"whisper-backend/internal/telemetry"
	"whisper-backend/internal/transcribe"
)

// TranscribeHandler executes a single transcription task: convert if
// needed, run the engine, write the terminal job state. Every failure is
// captured into the job record; the handler only returns an error when the
// store itself is unreachable.
type TranscribeHandler struct {
	store     *jobstore.Store
	engine    transcribe.Engine
	converter transcribe.Converter
	exporter  Exporter         // optional
	archive   *archive.Archive // optional
}

// NewTranscribeHandler wires the handler's collaborators. exporter and arc
// may be nil.
func NewTranscribeHandler(store *jobstore.Store, engine transcribe.Engine, converter transcribe.Converter, exporter Exporter, arc *archive.Archive) *TranscribeHandler {
	return &TranscribeHandler{
		store:     store,
		engine:    engine,
		converter: converter,
		exporter:  exporter,
		archive:   arc,
	}
}

// Handle processes one dequeued task. The uploaded file and any converted
// intermediate are removed on every exit path.
func (h *TranscribeHandler) Handle(ctx context.Context, task models.Task) error {
	defer removeFile(task.Path)

	if err := h.store.MarkProcessing(ctx, task.JobID); err != nil {
		if errors.Is(err, jobstore.ErrNotFound) {
			// Record expired before pickup; drop the task.
			log.Printf("job %s: record gone before pickup, dropping task", task.JobID)
			return nil
		}
		return err
	}

	audioPath := task.Path
	if transcribe.NeedsConversion(task.Path) {
		converted := task.Path + ".norm.wav"
		defer removeFile(converted)
		if err := h.converter.Convert(ctx, task.Path, converted); err != nil {
			return h.fail(ctx, task.JobID, err)
		}
		audioPath = converted
	}

	result, err := h.engine.Transcribe(ctx, audioPath)
	if err != nil {
		return h.fail(ctx, task.JobID, fmt.Errorf("transcription failed: %w", err))
	}

	if err := h.store.Complete(ctx, task.JobID, result); err != nil {
		return err
	}
	telemetry.JobsCompleted.Inc()
	telemetry.AudioSeconds.Add(result.Duration)
	log.Printf("job %s: completed, duration=%.2fs language=%s", task.JobID, result.Duration, result.Language)

	// Export and archive are best-effort side channels; the job is already
	// terminal, so their failures are only logged.
	if h.exporter != nil {
		if loc, err := h.exporter.Export(ctx, task.JobID, result); err != nil {
			log.Printf("job %s: export transcript: %v", task.JobID, err)
		} else {
			log.Printf("job %s: transcript exported to %s", task.JobID, loc)
		}
	}
	if h.archive != nil {
		if err := h.archive.Insert(ctx, task.JobID, result); err != nil {
			log.Printf("job %s: archive transcript: %v", task.JobID, err)
		}
	}
	return nil
}

func (h *TranscribeHandler) fail(ctx context.Context, jobID string, cause error) error {
	log.Printf("job %s: %v", jobID, cause)
	if err := h.store.Fail(ctx, jobID, cause.Error()); err != nil {
		return err
	}
	telemetry.JobsFailed.Inc()
	return nil
}

func removeFile(path string) {
	if err := os.Remove(path); err != nil && !errors.Is(err, os.ErrNotExist) {
		log.Printf("cleanup %s: %v", path, err)
	}
}
