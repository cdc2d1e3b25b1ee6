package ratelimit

import (
	"context"
	"net/http"
	"net/http/httptest"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
)

type fakeClock struct {
	mu sync.Mutex
	t  time.Time
}

func (c *fakeClock) now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.t
}

func (c *fakeClock) advance(d time.Duration) {
	c.mu.Lock()
	c.t = c.t.Add(d)
	c.mu.Unlock()
}

func TestWindowSlides(t *testing.T) {
	clock := &fakeClock{t: time.Unix(1700000000, 0)}
	w := NewWindow(3, time.Minute)
	w.now = clock.now
	ctx := context.Background()

	for i := 0; i < 3; i++ {
		if ok, _ := w.Allow(ctx); !ok {
			t.Fatalf("call %d should be admitted", i)
		}
		clock.advance(10 * time.Second)
	}
	if ok, _ := w.Allow(ctx); ok {
		t.Fatalf("fourth call inside the window must be rejected")
	}

	// First stamp was 30s ago; 30s more and it drops out.
	clock.advance(30 * time.Second)
	if ok, _ := w.Allow(ctx); !ok {
		t.Fatalf("expected a slot once the oldest call left the window")
	}
	if w.Remaining() != 0 {
		t.Fatalf("expected window full, remaining %d", w.Remaining())
	}
}

func TestWindowRejectionsAreNotRecorded(t *testing.T) {
	clock := &fakeClock{t: time.Unix(1700000000, 0)}
	w := NewWindow(1, time.Minute)
	w.now = clock.now
	ctx := context.Background()

	w.Allow(ctx)
	for i := 0; i < 5; i++ {
		clock.advance(5 * time.Second)
		if ok, _ := w.Allow(ctx); ok {
			t.Fatalf("expected rejection")
		}
	}
	clock.advance(35 * time.Second)
	if ok, _ := w.Allow(ctx); !ok {
		t.Fatalf("rejected calls must not extend the window")
	}
}

func TestWindowConcurrent(t *testing.T) {
	w := NewWindow(50, time.Minute)
	var wg sync.WaitGroup
	var mu sync.Mutex
	admitted := 0
	for i := 0; i < 200; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if ok, _ := w.Allow(context.Background()); ok {
				mu.Lock()
				admitted++
				mu.Unlock()
			}
		}()
	}
	wg.Wait()
	if admitted != 50 {
		t.Fatalf("expected exactly 50 admitted, got %d", admitted)
	}
}

func TestClientLimiter(t *testing.T) {
	clock := &fakeClock{t: time.Unix(1700000000, 0)}
	l := NewClientLimiter(ClientConfig{RequestsPerMinute: 2})
	defer l.Stop()
	l.now = clock.now

	if !l.Allow("a") || !l.Allow("a") {
		t.Fatalf("first two requests allowed")
	}
	if l.Allow("a") {
		t.Fatalf("third request rejected")
	}
	if !l.Allow("b") {
		t.Fatalf("clients are independent")
	}
	clock.advance(time.Minute)
	if !l.Allow("a") {
		t.Fatalf("budget resets after a minute")
	}

	clock.advance(11 * time.Minute)
	l.sweep()
	if l.ActiveClients() != 0 {
		t.Fatalf("idle clients should be swept, have %d", l.ActiveClients())
	}
}

func TestClientLimiterMiddleware(t *testing.T) {
	l := NewClientLimiter(ClientConfig{RequestsPerMinute: 1})
	defer l.Stop()
	h := l.Middleware(func(r *http.Request) string { return r.RemoteAddr }, nil)(
		http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) { w.WriteHeader(http.StatusNoContent) }))

	req := httptest.NewRequest(http.MethodPost, "/voice-to-text", nil)
	rr := httptest.NewRecorder()
	h.ServeHTTP(rr, req)
	if rr.Code != http.StatusNoContent {
		t.Fatalf("expected 204, got %d", rr.Code)
	}
	rr = httptest.NewRecorder()
	h.ServeHTTP(rr, req)
	if rr.Code != http.StatusTooManyRequests {
		t.Fatalf("expected 429, got %d", rr.Code)
	}
	if rr.Header().Get("Retry-After") == "" {
		t.Fatalf("expected Retry-After header")
	}
}

func newMiniredisClient(t *testing.T, mr *miniredis.Miniredis) *redis.Client {
	t.Helper()
	client, err := NewRedisClient("redis://" + mr.Addr())
	if err != nil {
		t.Fatalf("client: %v", err)
	}
	t.Cleanup(func() { _ = client.Close() })
	return client
}

func TestRedisWindow(t *testing.T) {
	mr := miniredis.RunT(t)
	ctx := context.Background()

	w := NewRedisWindow(newMiniredisClient(t, mr), "voicespese:test", 2, time.Minute)
	now := time.Now()
	w.now = func() time.Time { return now }

	for i := 0; i < 2; i++ {
		ok, err := w.Allow(ctx)
		if err != nil || !ok {
			t.Fatalf("call %d: ok=%v err=%v", i, ok, err)
		}
	}
	if ok, _ := w.Allow(ctx); ok {
		t.Fatalf("third call must be rejected")
	}

	now = now.Add(time.Minute + time.Second)
	if ok, err := w.Allow(ctx); err != nil || !ok {
		t.Fatalf("window should have slid: ok=%v err=%v", ok, err)
	}
}

func TestRedisWindowSharedAcrossClients(t *testing.T) {
	mr := miniredis.RunT(t)
	const limit, callers = 5, 20

	var admitted atomic.Int32
	var wg sync.WaitGroup
	start := make(chan struct{})
	for i := 0; i < callers; i++ {
		w := NewRedisWindow(newMiniredisClient(t, mr), "voicespese:shared", limit, time.Minute)
		wg.Add(1)
		go func() {
			defer wg.Done()
			<-start
			ok, err := w.Allow(context.Background())
			if err != nil {
				t.Errorf("allow: %v", err)
				return
			}
			if ok {
				admitted.Add(1)
			}
		}()
	}
	close(start)
	wg.Wait()

	if got := admitted.Load(); got != limit {
		t.Fatalf("admitted %d callers, want %d", got, limit)
	}
}
