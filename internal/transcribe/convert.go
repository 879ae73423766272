package transcribe

import (
	"bytes"
	"context"
	"fmt"
	"os/exec"
	"strings"
)

// Converter normalizes uploaded audio into a waveform the engine accepts.
type Converter interface {
	Convert(ctx context.Context, inputPath, outputPath string) error
}

// FFmpegConverter shells out to ffmpeg to produce 16-bit PCM mono wav at
// 16 kHz, the sample rate Whisper expects.
type FFmpegConverter struct {
	bin string
}

// NewFFmpegConverter builds a converter around the given ffmpeg binary.
func NewFFmpegConverter(bin string) *FFmpegConverter {
	if bin == "" {
		bin = "ffmpeg"
	}
	return &FFmpegConverter{bin: bin}
}

// Convert transcodes inputPath into a normalized wav at outputPath.
func (c *FFmpegConverter) Convert(ctx context.Context, inputPath, outputPath string) error {
	cmd := exec.CommandContext(ctx, c.bin, convertArgs(inputPath, outputPath)...)
	var stderr bytes.Buffer
	cmd.Stderr = &stderr

	if err := cmd.Run(); err != nil {
		if msg := lastLine(stderr.String()); msg != "" {
			return fmt.Errorf("audio conversion failed: %s", msg)
		}
		return fmt.Errorf("audio conversion failed: %w", err)
	}
	return nil
}

func convertArgs(inputPath, outputPath string) []string {
	return []string{
		"-hide_banner", "-loglevel", "error",
		"-y",
		"-i", inputPath,
		"-acodec", "pcm_s16le",
		"-ac", "1",
		"-ar", "16000",
		outputPath,
	}
}

// lastLine extracts the final non-empty stderr line, which is where ffmpeg
// puts the actual failure reason.
func lastLine(s string) string {
	lines := strings.Split(strings.TrimSpace(s), "\n")
	for i := len(lines) - 1; i >= 0; i-- {
		if line := strings.TrimSpace(lines[i]); line != "" {
			return line
		}
	}
	return ""
}
