package transcribe

import (
	"context"
	"errors"
	"fmt"
	"strings"

	openai "github.com/sashabaranov/go-openai"

	"whisper-backend/internal/models"
)

// OpenAIEngine transcribes through the hosted Whisper API instead of a
// local model. Useful when worker hosts have no GPU or model weights.
type OpenAIEngine struct {
	client *openai.Client
}

// NewOpenAIEngine builds an engine from an API key.
func NewOpenAIEngine(apiKey string) (*OpenAIEngine, error) {
	if apiKey == "" {
		return nil, errors.New("openai engine requires OPENAI_API_KEY")
	}
	return &OpenAIEngine{client: openai.NewClient(apiKey)}, nil
}

// Transcribe uploads the audio file and returns the verbose transcription.
func (e *OpenAIEngine) Transcribe(ctx context.Context, audioPath string) (models.TranscriptionResult, error) {
	resp, err := e.client.CreateTranscription(ctx, openai.AudioRequest{
		Model:    openai.Whisper1,
		FilePath: audioPath,
		Format:   openai.AudioResponseFormatVerboseJSON,
	})
	if err != nil {
		return models.TranscriptionResult{}, fmt.Errorf("openai transcription: %w", err)
	}

	// The API reports no language-confidence field; a returned language
	// code is treated as certain.
	probability := 0.0
	if resp.Language != "" {
		probability = 1.0
	}
	return models.TranscriptionResult{
		Text:                strings.TrimSpace(resp.Text),
		Language:            resp.Language,
		Duration:            resp.Duration,
		LanguageProbability: probability,
	}, nil
}
