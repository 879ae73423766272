package transcribe

import (
	"context"
	"path/filepath"
	"strings"

	"whisper-backend/internal/models"
)

// Engine converts an audio file to text. Implementations wrap external
// speech-to-text tools; the job lifecycle never depends on which one runs.
type Engine interface {
	Transcribe(ctx context.Context, audioPath string) (models.TranscriptionResult, error)
}

// NeedsConversion reports whether a file must be normalized before the
// engine can read it. Whisper consumes wav and flac directly; everything
// else goes through ffmpeg first.
func NeedsConversion(path string) bool {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".wav", ".flac":
		return false
	}
	return true
}
