// Package extractor turns a transcript into structured expenses through a
// chat-completion model.
package extractor

import (
	"context"
	"log/slog"
	"math"

	openai "github.com/sashabaranov/go-openai"

	"voicespese/internal/core"
	"voicespese/internal/log"
	"voicespese/internal/metrics"
	"voicespese/internal/upstream"
)

const DefaultModel = openai.GPT4oMini

// zeroTemperature stands in for 0: go-openai drops a zero temperature from
// the request body.
const zeroTemperature = math.SmallestNonzeroFloat32

// Limiter caps outbound calls. Allow must not block.
type Limiter interface {
	Allow(ctx context.Context) (bool, error)
}

type Config struct {
	APIKey string
	Model  string
}

type Extractor struct {
	api     *openai.Client
	apiKey  string
	model   string
	limiter Limiter
	logger  *slog.Logger
}

// New builds an extractor. A nil limiter disables local rate limiting.
func New(api *openai.Client, limiter Limiter, cfg Config) *Extractor {
	if cfg.Model == "" {
		cfg.Model = DefaultModel
	}
	return &Extractor{
		api:     api,
		apiKey:  cfg.APIKey,
		model:   cfg.Model,
		limiter: limiter,
		logger:  log.WithComponent(log.ComponentExtractor),
	}
}

// Extract returns the expenses found in text. An empty result is not an
// error here; the caller decides what zero expenses means.
func (x *Extractor) Extract(ctx context.Context, text string) ([]core.ExtractedExpense, error) {
	if x.apiKey == "" {
		return nil, upstream.MissingCredential("extraction")
	}
	if x.limiter != nil {
		ok, err := x.limiter.Allow(ctx)
		if err != nil {
			x.logger.WarnContext(ctx, "Rate limiter unavailable, allowing call", log.FieldError, err)
		} else if !ok {
			metrics.ExtractionRateLimited()
			return nil, core.New(core.KindRateLimited, "extraction rate limit exceeded")
		}
	}

	resp, err := x.api.CreateChatCompletion(ctx, openai.ChatCompletionRequest{
		Model: x.model,
		Messages: []openai.ChatCompletionMessage{
			{Role: openai.ChatMessageRoleSystem, Content: systemPrompt()},
			{Role: openai.ChatMessageRoleUser, Content: userPrompt(text)},
		},
		Temperature: zeroTemperature,
	})
	if err != nil {
		x.logger.WarnContext(ctx, "Extraction request failed", log.FieldError, err)
		return nil, upstream.Classify("extraction", err)
	}
	if len(resp.Choices) == 0 {
		return nil, core.New(core.KindMalformedExtraction, "model returned no choices")
	}

	expenses, err := parseResponse(resp.Choices[0].Message.Content)
	if err != nil {
		x.logger.WarnContext(ctx, "Unparseable extraction", log.FieldError, err, "content", resp.Choices[0].Message.Content)
		return nil, err
	}
	x.logger.DebugContext(ctx, "Extraction complete", "count", len(expenses), "descriptions", descriptions(expenses))
	return expenses, nil
}
