package transcribe

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os/exec"
	"strings"

	"whisper-backend/internal/models"
)

// WhisperCLI runs a local faster-whisper wrapper binary. The protocol is a
// single JSON request on stdin and a single JSON response on stdout, so the
// model process stays a black box to the worker.
type WhisperCLI struct {
	bin   string
	model string
}

// NewWhisperCLI builds an engine around the given binary and model size.
func NewWhisperCLI(bin, model string) *WhisperCLI {
	if model == "" {
		model = "base"
	}
	return &WhisperCLI{bin: bin, model: model}
}

type whisperRequest struct {
	AudioPath string `json:"audio_path"`
	Model     string `json:"model"`
}

type whisperResponse struct {
	Text                string  `json:"text"`
	Language            string  `json:"language"`
	Duration            float64 `json:"duration"`
	LanguageProbability float64 `json:"language_probability"`
	Error               string  `json:"error,omitempty"`
}

// Transcribe invokes the wrapper binary on the given audio file.
func (w *WhisperCLI) Transcribe(ctx context.Context, audioPath string) (models.TranscriptionResult, error) {
	req, err := json.Marshal(whisperRequest{AudioPath: audioPath, Model: w.model})
	if err != nil {
		return models.TranscriptionResult{}, fmt.Errorf("marshal request: %w", err)
	}

	cmd := exec.CommandContext(ctx, w.bin)
	cmd.Stdin = bytes.NewReader(req)
	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	if err := cmd.Run(); err != nil {
		if msg := strings.TrimSpace(stderr.String()); msg != "" {
			return models.TranscriptionResult{}, fmt.Errorf("whisper: %s", msg)
		}
		return models.TranscriptionResult{}, fmt.Errorf("whisper: %w", err)
	}

	return parseWhisperOutput(stdout.Bytes())
}

func parseWhisperOutput(raw []byte) (models.TranscriptionResult, error) {
	var resp whisperResponse
	if err := json.Unmarshal(raw, &resp); err != nil {
		return models.TranscriptionResult{}, fmt.Errorf("decode whisper output: %w", err)
	}
	if resp.Error != "" {
		return models.TranscriptionResult{}, errors.New(resp.Error)
	}
	return models.TranscriptionResult{
		Text:                strings.TrimSpace(resp.Text),
		Language:            resp.Language,
		Duration:            resp.Duration,
		LanguageProbability: resp.LanguageProbability,
	}, nil
}
