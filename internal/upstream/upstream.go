// Package upstream builds the OpenAI-compatible client shared by the
// transcription and extraction stages and maps its failures onto the core
// error taxonomy.
package upstream

import (
	"context"
	"errors"
	"net/http"
	"strings"

	openai "github.com/sashabaranov/go-openai"

	"voicespese/internal/core"
)

type Config struct {
	APIKey  string
	BaseURL string
	// HTTPClient lets a deployment add a transport-level timeout.
	HTTPClient *http.Client
}

// NewClient returns a go-openai client. An empty BaseURL keeps the public endpoint.
func NewClient(cfg Config) *openai.Client {
	c := openai.DefaultConfig(cfg.APIKey)
	if cfg.BaseURL != "" {
		c.BaseURL = strings.TrimRight(cfg.BaseURL, "/")
	}
	if cfg.HTTPClient != nil {
		c.HTTPClient = cfg.HTTPClient
	}
	return openai.NewClientWithConfig(c)
}

// MissingCredential is returned before any network call when no API key is configured.
func MissingCredential(service string) error {
	return core.New(core.KindServiceUnauthorized, service+": missing API credential")
}

// Classify maps a go-openai error: 401/403 are ServiceUnauthorized, 429 is
// ServiceRateLimited and everything else is ServiceError carrying the raw
// upstream message.
func Classify(service string, err error) error {
	if err == nil {
		return nil
	}
	var ce *core.Error
	if errors.As(err, &ce) {
		return err
	}
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return core.Upstream(core.KindServiceError, service+" request aborted", err.Error(), err)
	}

	status, message := 0, err.Error()
	var apiErr *openai.APIError
	var reqErr *openai.RequestError
	switch {
	case errors.As(err, &apiErr):
		status = apiErr.HTTPStatusCode
		if apiErr.Message != "" {
			message = apiErr.Message
		}
	case errors.As(err, &reqErr):
		status = reqErr.HTTPStatusCode
	}

	switch status {
	case http.StatusUnauthorized, http.StatusForbidden:
		return core.Upstream(core.KindServiceUnauthorized, service+" rejected credentials", message, err)
	case http.StatusTooManyRequests:
		return core.Upstream(core.KindServiceRateLimited, service+" rate limited", message, err)
	default:
		return core.Upstream(core.KindServiceError, service+" failed", message, err)
	}
}
