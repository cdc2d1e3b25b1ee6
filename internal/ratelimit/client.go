package ratelimit

import (
	"net/http"
	"sync"
	"time"
)

// ClientLimiter admits a fixed number of requests per client per minute.
// Idle clients are dropped by a background sweep.
type ClientLimiter struct {
	mu      sync.Mutex
	clients map[string]*clientWindow
	now     func() time.Time

	perMinute    int
	idleAfter    time.Duration
	stopSweep    chan struct{}
	shutdownOnce sync.Once
}

type clientWindow struct {
	start    time.Time
	requests int
	lastSeen time.Time
}

type ClientConfig struct {
	RequestsPerMinute int
	SweepInterval     time.Duration
}

func DefaultClientConfig() ClientConfig {
	return ClientConfig{RequestsPerMinute: 60, SweepInterval: 5 * time.Minute}
}

func NewClientLimiter(cfg ClientConfig) *ClientLimiter {
	def := DefaultClientConfig()
	if cfg.RequestsPerMinute <= 0 {
		cfg.RequestsPerMinute = def.RequestsPerMinute
	}
	if cfg.SweepInterval <= 0 {
		cfg.SweepInterval = def.SweepInterval
	}
	l := &ClientLimiter{
		clients:   make(map[string]*clientWindow),
		now:       time.Now,
		perMinute: cfg.RequestsPerMinute,
		idleAfter: 10 * time.Minute,
		stopSweep: make(chan struct{}),
	}
	go l.sweepLoop(cfg.SweepInterval)
	return l
}

func (l *ClientLimiter) Allow(client string) bool {
	l.mu.Lock()
	defer l.mu.Unlock()

	now := l.now()
	cw, ok := l.clients[client]
	if !ok || now.Sub(cw.start) >= time.Minute {
		l.clients[client] = &clientWindow{start: now, requests: 1, lastSeen: now}
		return true
	}
	cw.lastSeen = now
	if cw.requests >= l.perMinute {
		return false
	}
	cw.requests++
	return true
}

func (l *ClientLimiter) ActiveClients() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.clients)
}

func (l *ClientLimiter) sweepLoop(every time.Duration) {
	t := time.NewTicker(every)
	defer t.Stop()
	for {
		select {
		case <-t.C:
			l.sweep()
		case <-l.stopSweep:
			return
		}
	}
}

func (l *ClientLimiter) sweep() {
	l.mu.Lock()
	defer l.mu.Unlock()
	cutoff := l.now().Add(-l.idleAfter)
	for k, cw := range l.clients {
		if cw.lastSeen.Before(cutoff) {
			delete(l.clients, k)
		}
	}
}

// Stop ends the sweep goroutine.
func (l *ClientLimiter) Stop() {
	l.shutdownOnce.Do(func() { close(l.stopSweep) })
}

// Middleware rejects requests over the per-client budget. onLimit writes the
// rejection; nil falls back to a plain 429.
func (l *ClientLimiter) Middleware(key func(*http.Request) string, onLimit func(http.ResponseWriter, *http.Request)) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if l.Allow(key(r)) {
				next.ServeHTTP(w, r)
				return
			}
			w.Header().Set("Retry-After", "60")
			if onLimit != nil {
				onLimit(w, r)
				return
			}
			http.Error(w, "Rate limit exceeded. Please try again later.", http.StatusTooManyRequests)
		})
	}
}
