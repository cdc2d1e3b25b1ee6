package upstream

import (
	"context"
	"errors"
	"fmt"
	"testing"

	openai "github.com/sashabaranov/go-openai"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"voicespese/internal/core"
)

func TestClassify(t *testing.T) {
	tests := []struct {
		name     string
		err      error
		kind     core.Kind
		upstream string
	}{
		{"api 401", &openai.APIError{HTTPStatusCode: 401, Message: "bad key"}, core.KindServiceUnauthorized, "bad key"},
		{"api 403", &openai.APIError{HTTPStatusCode: 403, Message: "forbidden"}, core.KindServiceUnauthorized, "forbidden"},
		{"api 429", &openai.APIError{HTTPStatusCode: 429, Message: "slow down"}, core.KindServiceRateLimited, "slow down"},
		{"api 500", &openai.APIError{HTTPStatusCode: 500, Message: "overloaded"}, core.KindServiceError, "overloaded"},
		{"request 429", &openai.RequestError{HTTPStatusCode: 429, Err: errors.New("too many")}, core.KindServiceRateLimited, ""},
		{"wrapped", fmt.Errorf("call: %w", &openai.APIError{HTTPStatusCode: 401, Message: "nope"}), core.KindServiceUnauthorized, "nope"},
		{"transport", errors.New("connection refused"), core.KindServiceError, "connection refused"},
		{"cancelled", context.Canceled, core.KindServiceError, ""},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := Classify("transcription", tt.err)
			require.Error(t, err)
			assert.Equal(t, tt.kind, core.KindOf(err))
			var ce *core.Error
			require.True(t, errors.As(err, &ce))
			if tt.upstream != "" {
				assert.Equal(t, tt.upstream, ce.Upstream)
			}
			assert.NotEmpty(t, ce.Upstream, "raw upstream message must be kept")
		})
	}
}

func TestClassifyPassesThroughTaxonomy(t *testing.T) {
	orig := core.New(core.KindNoSpeechDetected, "empty")
	assert.Same(t, orig, Classify("x", orig))
	assert.NoError(t, Classify("x", nil))
}

func TestMissingCredential(t *testing.T) {
	assert.True(t, errors.Is(MissingCredential("extraction"), core.ErrServiceUnauthorized))
}
