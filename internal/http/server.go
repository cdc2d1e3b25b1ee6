// Package http serves the voice endpoint and the expense archive API.
package http

import (
	"context"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"voicespese/internal/core"
	vlog "voicespese/internal/log"
	"voicespese/internal/metrics"
	"voicespese/internal/middleware/security"
	"voicespese/internal/middleware/trace"
	"voicespese/internal/pipeline"
	"voicespese/internal/ratelimit"
)

type VoiceProcessor interface {
	Process(ctx context.Context, userID string, payload core.AudioPayload, onStage pipeline.StageFunc) (pipeline.Result, error)
}

type ExpenseStore interface {
	List(ctx context.Context, userID string, archived bool, limit int) ([]core.PersistedExpense, error)
	Archive(ctx context.Context, userID string, id int64, archived bool) (core.PersistedExpense, error)
}

type Authenticator interface {
	Authenticate(ctx context.Context, token string) (string, error)
}

// Deps wires the server to the rest of the application.
type Deps struct {
	Processor     VoiceProcessor
	Expenses      ExpenseStore
	Auth          Authenticator
	Ready         func(ctx context.Context) error
	CORSOrigins   []string
	MinAudioBytes int
	MaxAudioBytes int
	RateLimit     ratelimit.ClientConfig
}

type Server struct {
	http.Server
	deps     Deps
	limiter  *ratelimit.ClientLimiter
	detector *security.Detector
	logger   *slog.Logger

	shutdownOnce sync.Once
}

const defaultMaxAudioBytes = 25 << 20

// NewServer builds the routes and middleware chain and returns a server
// ready for ListenAndServe.
func NewServer(addr string, deps Deps) *Server {
	if deps.MaxAudioBytes <= 0 {
		deps.MaxAudioBytes = defaultMaxAudioBytes
	}
	if deps.MinAudioBytes <= 0 {
		deps.MinAudioBytes = core.MinPayloadBytes
	}
	if len(deps.CORSOrigins) == 0 {
		deps.CORSOrigins = []string{"*"}
	}

	s := &Server{
		deps:     deps,
		limiter:  ratelimit.NewClientLimiter(deps.RateLimit),
		detector: security.NewDetector(),
		logger:   vlog.WithComponent(vlog.ComponentHTTP),
	}

	limited := s.limiter.Middleware(s.detector.ClientIP, s.handleRateLimited)

	mux := http.NewServeMux()
	mux.HandleFunc("GET /healthz", handleHealth)
	mux.HandleFunc("GET /readyz", s.handleReady)
	mux.Handle("GET /metrics", metrics.Handler())
	mux.Handle("POST /voice-to-text", limited(s.requireUser(s.handleVoiceToText)))
	mux.Handle("GET /expenses", s.requireUser(s.handleListExpenses))
	mux.Handle("POST /expenses/{id}/archive", limited(s.requireUser(s.handleArchive(true))))
	mux.Handle("POST /expenses/{id}/restore", limited(s.requireUser(s.handleArchive(false))))

	var handler http.Handler = mux
	handler = s.cors(handler)
	handler = s.flagSuspicious(handler)
	handler = security.NewHeadersMiddleware(security.DefaultHeadersConfig()).Middleware(handler)
	handler = trace.NewMiddleware(s.detector.ClientIP).Middleware(handler)

	s.Server = http.Server{
		Addr:              addr,
		Handler:           handler,
		ReadHeaderTimeout: 10 * time.Second,
		IdleTimeout:       120 * time.Second,
	}
	return s
}

func (s *Server) flagSuspicious(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if s.detector.Suspicious(r) {
			vlog.FromContext(r.Context()).WarnContext(r.Context(), "Suspicious request",
				vlog.FieldClientIP, s.detector.ClientIP(r),
				vlog.FieldUserAgent, r.Header.Get("User-Agent"))
		}
		next.ServeHTTP(w, r)
	})
}

// Shutdown stops the limiter sweep and drains the HTTP server.
func (s *Server) Shutdown(ctx context.Context) error {
	var err error
	s.shutdownOnce.Do(func() {
		s.limiter.Stop()
		err = s.Server.Shutdown(ctx)
	})
	return err
}

func handleHealth(w http.ResponseWriter, r *http.Request) {
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte("ok"))
}

func (s *Server) handleReady(w http.ResponseWriter, r *http.Request) {
	if s.deps.Ready != nil {
		ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
		defer cancel()
		if err := s.deps.Ready(ctx); err != nil {
			s.logger.WarnContext(r.Context(), "Readiness check failed", vlog.FieldError, err)
			http.Error(w, "not ready", http.StatusServiceUnavailable)
			return
		}
	}
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte("ready"))
}
