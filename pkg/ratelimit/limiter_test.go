package ratelimit

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/rs/zerolog"
)

type fakeClock struct {
	mu  sync.Mutex
	now time.Time
}

func newFakeClock() *fakeClock {
	return &fakeClock{now: time.Date(2026, 1, 1, 12, 0, 0, 0, time.UTC)}
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
}

func newTestLimiter(clock *fakeClock) (*Limiter, *MemoryStore) {
	store := NewMemoryStore()
	store.now = clock.Now
	return NewLimiter(store, zerolog.New(io.Discard)), store
}

func TestLimiter_FixedWindow(t *testing.T) {
	clock := newFakeClock()
	limiter, _ := newTestLimiter(clock)
	ctx := context.Background()

	const limit = 3
	window := time.Minute

	for i := 1; i <= limit; i++ {
		d := limiter.Allow(ctx, "203.0.113.7", limit, window)
		if !d.Allowed {
			t.Fatalf("call %d denied, want allowed", i)
		}
		if d.Remaining != limit-i {
			t.Errorf("call %d Remaining = %d, want %d", i, d.Remaining, limit-i)
		}
	}

	d := limiter.Allow(ctx, "203.0.113.7", limit, window)
	if d.Allowed {
		t.Fatal("call 4 allowed, want denied")
	}
	if d.Remaining != 0 {
		t.Errorf("denied Remaining = %d, want 0", d.Remaining)
	}
	if d.RetryAfter != window {
		t.Errorf("RetryAfter = %v, want %v", d.RetryAfter, window)
	}

	// Other clients keep their own window.
	if d := limiter.Allow(ctx, "198.51.100.1", limit, window); !d.Allowed {
		t.Error("second client denied, want allowed")
	}

	clock.Advance(window)
	d = limiter.Allow(ctx, "203.0.113.7", limit, window)
	if !d.Allowed {
		t.Fatal("call after window denied, want allowed")
	}
	if d.Remaining != limit-1 {
		t.Errorf("Remaining after reset = %d, want %d", d.Remaining, limit-1)
	}
}

func TestLimiter_DeniedCallsDoNotExtendWindow(t *testing.T) {
	clock := newFakeClock()
	limiter, _ := newTestLimiter(clock)
	ctx := context.Background()

	start := clock.Now()
	limiter.Allow(ctx, "10.0.0.1", 1, time.Minute)

	for range 5 {
		clock.Advance(10 * time.Second)
		d := limiter.Allow(ctx, "10.0.0.1", 1, time.Minute)
		if d.Allowed {
			t.Fatal("allowed inside exhausted window")
		}
		if !d.ResetAt.Equal(start.Add(time.Minute)) {
			t.Errorf("ResetAt = %v, want %v", d.ResetAt, start.Add(time.Minute))
		}
	}

	clock.Advance(10 * time.Second)
	if d := limiter.Allow(ctx, "10.0.0.1", 1, time.Minute); !d.Allowed {
		t.Error("denied at window boundary, want allowed")
	}
}

func TestLimiter_ConcurrentHitsAreCounted(t *testing.T) {
	clock := newFakeClock()
	limiter, _ := newTestLimiter(clock)
	ctx := context.Background()

	const limit = 50
	var (
		wg      sync.WaitGroup
		mu      sync.Mutex
		allowed int
	)
	for range 200 {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if limiter.Allow(ctx, "10.0.0.9", limit, time.Minute).Allowed {
				mu.Lock()
				allowed++
				mu.Unlock()
			}
		}()
	}
	wg.Wait()

	if allowed != limit {
		t.Errorf("allowed = %d, want %d", allowed, limit)
	}
}

type brokenStore struct{}

func (brokenStore) Hit(context.Context, string, int, time.Duration) (Decision, error) {
	return Decision{}, errors.New("connection refused")
}

func TestLimiter_StoreFailureAdmits(t *testing.T) {
	limiter := NewLimiter(brokenStore{}, zerolog.Nop())

	d := limiter.Allow(context.Background(), "10.0.0.1", 5, time.Minute)
	if !d.Allowed {
		t.Error("Allow() denied on store failure, want allowed")
	}
}

func TestLimiter_InvalidLimitAdmits(t *testing.T) {
	limiter, _ := newTestLimiter(newFakeClock())

	if d := limiter.Allow(context.Background(), "10.0.0.1", 0, time.Minute); !d.Allowed {
		t.Error("Allow() with limit 0 denied, want allowed")
	}
}

func TestClientKey(t *testing.T) {
	key := ClientKey("127.0.0.1")
	want := KeyPrefix + "f528764d624db129b32c21fbca0cb8d6"
	if key != want {
		t.Errorf("ClientKey() = %q, want %q", key, want)
	}
}

func TestMemoryStore_Sweep(t *testing.T) {
	clock := newFakeClock()
	store := NewMemoryStore()
	store.now = clock.Now
	ctx := context.Background()

	for i := range sweepEvery - 1 {
		store.Hit(ctx, ClientKey(fmt.Sprintf("10.0.%d.%d", i/256, i%256)), 10, time.Second)
	}
	if store.Len() == 0 {
		t.Fatal("no windows tracked")
	}

	clock.Advance(2 * time.Second)
	store.Hit(ctx, "fresh", 10, time.Second)

	if store.Len() != 1 {
		t.Errorf("Len() after sweep = %d, want 1", store.Len())
	}
}

func TestClientIP(t *testing.T) {
	tests := []struct {
		name       string
		headers    map[string]string
		remoteAddr string
		want       string
	}{
		{
			name:       "cdn header wins",
			headers:    map[string]string{"CF-Connecting-IP": "203.0.113.1", "X-Forwarded-For": "198.51.100.2"},
			remoteAddr: "10.0.0.1:1234",
			want:       "203.0.113.1",
		},
		{
			name:       "first forwarded address",
			headers:    map[string]string{"X-Forwarded-For": "198.51.100.2, 10.0.0.3"},
			remoteAddr: "10.0.0.1:1234",
			want:       "198.51.100.2",
		},
		{
			name:       "invalid header skipped",
			headers:    map[string]string{"CF-Connecting-IP": "garbage", "X-Real-IP": "192.0.2.5"},
			remoteAddr: "10.0.0.1:1234",
			want:       "192.0.2.5",
		},
		{
			name:       "remote address",
			remoteAddr: "10.0.0.1:1234",
			want:       "10.0.0.1",
		},
		{
			name:       "ipv6 remote address",
			remoteAddr: "[2001:db8::1]:443",
			want:       "2001:db8::1",
		},
		{
			name:       "loopback fallback",
			remoteAddr: "",
			want:       LoopbackIP,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			r := httptest.NewRequest("GET", "/", nil)
			r.RemoteAddr = tt.remoteAddr
			for k, v := range tt.headers {
				r.Header.Set(k, v)
			}
			if got := ClientIP(r, DefaultIPHeaders); got != tt.want {
				t.Errorf("ClientIP() = %q, want %q", got, tt.want)
			}
		})
	}
}

func TestClientIP_CustomHeaders(t *testing.T) {
	r := httptest.NewRequest("GET", "/", nil)
	r.RemoteAddr = "10.0.0.1:1234"
	r.Header.Set("CF-Connecting-IP", "203.0.113.1")
	r.Header.Set("True-Client-IP", "192.0.2.9")

	if got := ClientIP(r, []string{"True-Client-IP"}); got != "192.0.2.9" {
		t.Errorf("ClientIP() = %q, want 192.0.2.9", got)
	}
}
