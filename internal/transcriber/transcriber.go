// Package transcriber sends finalized recordings to a speech-to-text service.
package transcriber

import (
	"bytes"
	"context"
	"log/slog"
	"strings"

	openai "github.com/sashabaranov/go-openai"

	"voicespese/internal/core"
	"voicespese/internal/log"
	"voicespese/internal/upstream"
)

const (
	DefaultModel    = openai.Whisper1
	DefaultLanguage = "en"
)

type Config struct {
	APIKey   string
	Model    string
	Language string
}

// Client performs exactly one upstream call per Transcribe; retries are
// left to the caller.
type Client struct {
	api      *openai.Client
	apiKey   string
	model    string
	language string
	logger   *slog.Logger
}

func New(api *openai.Client, cfg Config) *Client {
	if cfg.Model == "" {
		cfg.Model = DefaultModel
	}
	if cfg.Language == "" {
		cfg.Language = DefaultLanguage
	}
	return &Client{
		api:      api,
		apiKey:   cfg.APIKey,
		model:    cfg.Model,
		language: cfg.Language,
		logger:   log.WithComponent(log.ComponentTranscriber),
	}
}

// Transcribe uploads the payload as multipart form data. An empty transcript
// is reported as NoSpeechDetected, distinct from transport failures.
func (c *Client) Transcribe(ctx context.Context, payload core.AudioPayload) (core.TranscriptionResult, error) {
	if c.apiKey == "" {
		return core.TranscriptionResult{}, upstream.MissingCredential("transcription")
	}
	if len(payload.Data) == 0 {
		return core.TranscriptionResult{}, core.New(core.KindRecordingTooShort, "empty audio payload")
	}

	resp, err := c.api.CreateTranscription(ctx, openai.AudioRequest{
		Model:    c.model,
		FilePath: "audio." + payload.Extension(),
		Reader:   bytes.NewReader(payload.Data),
		Language: c.language,
		Format:   openai.AudioResponseFormatJSON,
	})
	if err != nil {
		c.logger.WarnContext(ctx, "Transcription request failed", log.FieldError, err, log.FieldBytes, payload.SizeBytes())
		return core.TranscriptionResult{}, upstream.Classify("transcription", err)
	}

	result := core.TranscriptionResult{Text: strings.TrimSpace(resp.Text)}
	if !result.HasSpeech() {
		return result, core.New(core.KindNoSpeechDetected, "transcription returned no text")
	}
	c.logger.DebugContext(ctx, "Transcription complete", "chars", len(result.Text))
	return result, nil
}
