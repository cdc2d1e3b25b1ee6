package transcriber

import (
	"bytes"
	"context"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"

	openai "github.com/sashabaranov/go-openai"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"voicespese/internal/core"
	"voicespese/internal/upstream"
)

func testPayload(t *testing.T) core.AudioPayload {
	t.Helper()
	p, err := core.NewAudioPayload(bytes.Repeat([]byte{7}, 2048), "audio/webm;codecs=opus", 0)
	require.NoError(t, err)
	return p
}

func newTestClient(t *testing.T, handler http.HandlerFunc) (*Client, *int32) {
	t.Helper()
	var calls int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&calls, 1)
		handler(w, r)
	}))
	t.Cleanup(srv.Close)
	api := upstream.NewClient(upstream.Config{APIKey: "test-key", BaseURL: srv.URL + "/v1"})
	return New(api, Config{APIKey: "test-key"}), &calls
}

func TestTranscribeSendsMultipartForm(t *testing.T) {
	c, calls := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/v1/audio/transcriptions", r.URL.Path)
		assert.Equal(t, "Bearer test-key", r.Header.Get("Authorization"))
		require.NoError(t, r.ParseMultipartForm(10<<20))
		assert.Equal(t, "whisper-1", r.FormValue("model"))
		assert.Equal(t, "en", r.FormValue("language"))
		assert.Equal(t, "json", r.FormValue("response_format"))

		f, header, err := r.FormFile("file")
		require.NoError(t, err)
		defer f.Close()
		assert.Equal(t, "audio.webm", header.Filename)
		body, _ := io.ReadAll(f)
		assert.Len(t, body, 2048)

		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"text":"  I spent 25 dollars on lunch  "}`))
	})

	res, err := c.Transcribe(context.Background(), testPayload(t))
	require.NoError(t, err)
	assert.Equal(t, "I spent 25 dollars on lunch", res.Text)
	assert.EqualValues(t, 1, atomic.LoadInt32(calls))
}

func TestTranscribeEmptyTextIsNoSpeech(t *testing.T) {
	c, _ := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"text":"   "}`))
	})
	_, err := c.Transcribe(context.Background(), testPayload(t))
	assert.True(t, errors.Is(err, core.ErrNoSpeechDetected), "got %v", err)
}

func TestTranscribeUpstreamFailures(t *testing.T) {
	tests := []struct {
		name   string
		status int
		body   string
		kind   core.Kind
	}{
		{"unauthorized", 401, `{"error":{"message":"Incorrect API key provided","type":"invalid_request_error"}}`, core.KindServiceUnauthorized},
		{"rate limited", 429, `{"error":{"message":"Rate limit reached","type":"requests"}}`, core.KindServiceRateLimited},
		{"server error", 500, `{"error":{"message":"The server had an error","type":"server_error"}}`, core.KindServiceError},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c, calls := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
				w.Header().Set("Content-Type", "application/json")
				w.WriteHeader(tt.status)
				_, _ = w.Write([]byte(tt.body))
			})
			_, err := c.Transcribe(context.Background(), testPayload(t))
			require.Error(t, err)
			assert.Equal(t, tt.kind, core.KindOf(err))
			assert.EqualValues(t, 1, atomic.LoadInt32(calls), "no internal retry")
		})
	}
}

func TestTranscribeServiceErrorCarriesUpstreamMessage(t *testing.T) {
	c, _ := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(400)
		_, _ = w.Write([]byte(`{"error":{"message":"Invalid file format","type":"invalid_request_error"}}`))
	})
	_, err := c.Transcribe(context.Background(), testPayload(t))
	assert.Contains(t, core.UserMessage(err), "Invalid file format")
}

func TestTranscribeWithoutKeySkipsNetwork(t *testing.T) {
	var calls int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&calls, 1)
	}))
	defer srv.Close()
	cfg := openai.DefaultConfig("")
	cfg.BaseURL = srv.URL + "/v1"
	c := New(openai.NewClientWithConfig(cfg), Config{})

	_, err := c.Transcribe(context.Background(), testPayload(t))
	assert.Equal(t, core.KindServiceUnauthorized, core.KindOf(err))
	assert.Zero(t, atomic.LoadInt32(&calls))
}
