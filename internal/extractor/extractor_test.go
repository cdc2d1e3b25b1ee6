package extractor

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	openai "github.com/sashabaranov/go-openai"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"voicespese/internal/core"
	"voicespese/internal/ratelimit"
	"voicespese/internal/upstream"
)

func completion(content string) string {
	body, _ := json.Marshal(map[string]any{
		"id":      "chatcmpl-1",
		"object":  "chat.completion",
		"choices": []map[string]any{{"index": 0, "message": map[string]string{"role": "assistant", "content": content}, "finish_reason": "stop"}},
	})
	return string(body)
}

func newServer(t *testing.T, handler http.HandlerFunc) (*openai.Client, *int32) {
	t.Helper()
	var calls int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&calls, 1)
		handler(w, r)
	}))
	t.Cleanup(srv.Close)
	return upstream.NewClient(upstream.Config{APIKey: "k", BaseURL: srv.URL + "/v1"}), &calls
}

func reply(content string) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(completion(content)))
	}
}

func TestExtractLunchScenario(t *testing.T) {
	var req openai.ChatCompletionRequest
	api, _ := newServer(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/v1/chat/completions", r.URL.Path)
		require.NoError(t, json.NewDecoder(r.Body).Decode(&req))
		reply(`{"amount": 25, "description": "lunch at the cafe", "category": "essentials"}`)(w, r)
	})
	x := New(api, nil, Config{APIKey: "k"})

	got, err := x.Extract(context.Background(), "I spent $25 on lunch at the cafe yesterday")
	require.NoError(t, err)
	require.Len(t, got, 1)
	assert.Equal(t, int64(2500), got[0].Amount.Cents)
	assert.Equal(t, "lunch at the cafe", got[0].Description)
	assert.Equal(t, core.CategoryEssentials, got[0].Category)

	assert.Equal(t, "gpt-4o-mini", req.Model)
	require.Len(t, req.Messages, 2)
	assert.Equal(t, openai.ChatMessageRoleSystem, req.Messages[0].Role)
	assert.Contains(t, req.Messages[1].Content, "lunch at the cafe yesterday")
	assert.Less(t, req.Temperature, float32(1e-6))
}

func TestExtractPromptIsDeterministic(t *testing.T) {
	assert.Equal(t, systemPrompt(), systemPrompt())
	assert.Contains(t, systemPrompt(), "essentials, leisure, recurring_payments")
}

func TestParseResponse(t *testing.T) {
	tests := []struct {
		name    string
		content string
		want    []core.ExtractedExpense
	}{
		{
			name:    "fenced array",
			content: "```json\n[{\"amount\": 4.5, \"description\": \"coffee\", \"category\": \"leisure\"}]\n```",
			want:    []core.ExtractedExpense{{Amount: core.Money{Cents: 450}, Description: "coffee", Category: core.CategoryLeisure}},
		},
		{
			name:    "bare fence",
			content: "```\n{\"amount\": \"12,30\", \"description\": \"bus ticket\", \"category\": \"transport\"}\n```",
			want:    []core.ExtractedExpense{{Amount: core.Money{Cents: 1230}, Description: "bus ticket", Category: core.CategoryEssentials}},
		},
		{
			name:    "unknown category coerced",
			content: `{"amount": 30, "description": "groceries", "category": "groceries"}`,
			want:    []core.ExtractedExpense{{Amount: core.Money{Cents: 3000}, Description: "groceries", Category: core.DefaultCategory}},
		},
		{
			name:    "wrapped list",
			content: `{"expenses": [{"amount": 9.99, "description": "netflix", "category": "subscriptions"}, {"amount": "$3", "description": "snack", "category": "food"}]}`,
			want: []core.ExtractedExpense{
				{Amount: core.Money{Cents: 999}, Description: "netflix", Category: core.CategoryRecurringPayments},
				{Amount: core.Money{Cents: 300}, Description: "snack", Category: core.CategoryEssentials},
			},
		},
		{
			name:    "empty array",
			content: `[]`,
			want:    []core.ExtractedExpense{},
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := parseResponse(tt.content)
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestParseResponseMalformed(t *testing.T) {
	cases := map[string]string{
		"prose":               "Sure! You spent 25 dollars.",
		"empty":               "   ",
		"broken json":         `{"amount": 25, "description": `,
		"missing amount":      `{"description": "lunch", "category": "essentials"}`,
		"missing description": `{"amount": 25, "category": "essentials"}`,
		"missing category":    `{"amount": 25, "description": "lunch"}`,
		"null amount":         `{"amount": null, "description": "lunch", "category": "essentials"}`,
		"negative amount":     `{"amount": -4, "description": "lunch", "category": "essentials"}`,
		"blank description":   `{"amount": 4, "description": "  ", "category": "essentials"}`,
		"one bad in list":     `[{"amount": 4, "description": "a", "category": "leisure"}, {"amount": 4}]`,
	}
	for name, content := range cases {
		t.Run(name, func(t *testing.T) {
			_, err := parseResponse(content)
			assert.True(t, errors.Is(err, core.ErrMalformedExtraction), "got %v", err)
		})
	}
}

func TestExtractRateLimitedFailsFast(t *testing.T) {
	api, calls := newServer(t, reply(`[]`))
	x := New(api, ratelimit.NewWindow(2, time.Minute), Config{APIKey: "k"})

	for i := 0; i < 2; i++ {
		_, err := x.Extract(context.Background(), "coffee 3 euro")
		require.NoError(t, err)
	}
	_, err := x.Extract(context.Background(), "coffee 3 euro")
	assert.Equal(t, core.KindRateLimited, core.KindOf(err))
	assert.EqualValues(t, 2, atomic.LoadInt32(calls), "rejected call must not reach upstream")
}

type brokenLimiter struct{}

func (brokenLimiter) Allow(context.Context) (bool, error) { return false, errors.New("redis down") }

func TestExtractLimiterErrorAllows(t *testing.T) {
	api, calls := newServer(t, reply(`[]`))
	x := New(api, brokenLimiter{}, Config{APIKey: "k"})
	_, err := x.Extract(context.Background(), "x")
	require.NoError(t, err)
	assert.EqualValues(t, 1, atomic.LoadInt32(calls))
}

func TestExtractUpstreamErrors(t *testing.T) {
	for status, kind := range map[int]core.Kind{
		401: core.KindServiceUnauthorized,
		429: core.KindServiceRateLimited,
		503: core.KindServiceError,
	} {
		t.Run(fmt.Sprint(status), func(t *testing.T) {
			api, _ := newServer(t, func(w http.ResponseWriter, r *http.Request) {
				w.Header().Set("Content-Type", "application/json")
				w.WriteHeader(status)
				_, _ = w.Write([]byte(`{"error":{"message":"upstream says no","type":"x"}}`))
			})
			_, err := New(api, nil, Config{APIKey: "k"}).Extract(context.Background(), "x")
			assert.Equal(t, kind, core.KindOf(err))
			assert.Contains(t, err.Error(), "upstream says no")
		})
	}
}

func TestExtractMissingKey(t *testing.T) {
	api, calls := newServer(t, reply(`[]`))
	_, err := New(api, nil, Config{}).Extract(context.Background(), "x")
	assert.Equal(t, core.KindServiceUnauthorized, core.KindOf(err))
	assert.Zero(t, atomic.LoadInt32(calls))
}
