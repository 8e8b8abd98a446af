package dispatch

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/Sternrassler/markdown-negotiation/internal/testutil"
	"github.com/Sternrassler/markdown-negotiation/pkg/cache"
	"github.com/Sternrassler/markdown-negotiation/pkg/content"
	"github.com/Sternrassler/markdown-negotiation/pkg/ratelimit"
	"github.com/Sternrassler/markdown-negotiation/pkg/service"
	"github.com/Sternrassler/markdown-negotiation/pkg/settings"
	"github.com/rs/zerolog"
)

type harness struct {
	dispatcher *Dispatcher
	conv       *testutil.MockConverter
	store      *cache.MemoryStore
	settings   *settings.Store
	items      map[int64]content.Item
}

func newHarness(t *testing.T, mutate func(*settings.Settings), hooks ...HeaderHook) *harness {
	t.Helper()

	s := settings.Default()
	if mutate != nil {
		mutate(&s)
	}
	st, err := settings.NewStore(s)
	if err != nil {
		t.Fatalf("NewStore() error = %v", err)
	}

	repo := testutil.NewFixtureRepository()
	conv := testutil.NewMockConverter()
	store := cache.NewMemoryStore(0)
	svc := service.New(service.Config{
		Repository: repo,
		Converter:  conv,
		Cache:      cache.NewManager(store, cache.DefaultTTL, zerolog.Nop()),
		Settings:   st,
		Extract:    content.DefaultExtractOptions(),
	}, zerolog.Nop())

	d := New(Config{
		Settings: st,
		Limiter:  ratelimit.NewLimiter(ratelimit.NewMemoryStore(), zerolog.Nop()),
		Source:   svc,
		Version:  "1.2.3",
		Hooks:    hooks,
	}, zerolog.Nop())

	items := make(map[int64]content.Item)
	for _, it := range testutil.FixtureItems() {
		items[it.ID] = it
	}
	return &harness{dispatcher: d, conv: conv, store: store, settings: st, items: items}
}

func (h *harness) handle(id int64, accept string, mods ...func(*Request)) Result {
	req := Request{Item: h.items[id], Accept: accept, ClientIP: "203.0.113.9"}
	for _, m := range mods {
		m(&req)
	}
	return h.dispatcher.Handle(context.Background(), req)
}

func TestDispatcher_ServesAndCaches(t *testing.T) {
	h := newHarness(t, nil)

	first := h.handle(1, "text/markdown")
	if first.Passthrough {
		t.Fatal("Handle() passed through, want Markdown")
	}
	if first.Status != http.StatusOK {
		t.Fatalf("Status = %d, want 200", first.Status)
	}
	if h.conv.CallCount() != 1 {
		t.Errorf("converter calls = %d, want 1", h.conv.CallCount())
	}
	if h.store.Len() != 1 {
		t.Errorf("cache entries = %d, want 1", h.store.Len())
	}

	checks := map[string]string{
		"Content-Type":  "text/markdown; charset=utf-8",
		"Vary":          "Accept",
		HeaderSource:    SourceName,
		HeaderVersion:   "1.2.3",
		"Cache-Control": CacheControl,
		"Last-Modified": testutil.FixtureTime.Format(http.TimeFormat),
	}
	for name, want := range checks {
		if got := first.Header.Get(name); got != want {
			t.Errorf("%s = %q, want %q", name, got, want)
		}
	}

	etag := first.Header.Get("ETag")
	if !strings.HasPrefix(etag, `W/"1-`) {
		t.Errorf("ETag = %q, want weak tag for id 1", etag)
	}
	if got := first.Header.Get("Content-Length"); got != itoa(len(first.Body)) {
		t.Errorf("Content-Length = %q, want %d", got, len(first.Body))
	}
	if first.Header.Get(HeaderTokens) == "" {
		t.Error("token header missing")
	}

	second := h.handle(1, "text/markdown")
	if h.conv.CallCount() != 1 {
		t.Errorf("converter calls after repeat = %d, want 1", h.conv.CallCount())
	}
	if string(second.Body) != string(first.Body) {
		t.Error("repeat body differs")
	}
	if second.Header.Get("ETag") != etag {
		t.Errorf("repeat ETag = %q, want %q", second.Header.Get("ETag"), etag)
	}

	third := h.handle(1, "text/markdown", func(r *Request) { r.IfNoneMatch = etag })
	if third.Status != http.StatusNotModified {
		t.Fatalf("conditional Status = %d, want 304", third.Status)
	}
	if len(third.Body) != 0 {
		t.Errorf("304 body length = %d, want 0", len(third.Body))
	}
	if third.Header.Get("ETag") != etag {
		t.Error("304 must repeat the ETag")
	}
}

func TestDispatcher_IfModifiedSince(t *testing.T) {
	h := newHarness(t, nil)

	tests := []struct {
		name  string
		since time.Time
		want  int
	}{
		{"equal", testutil.FixtureTime, http.StatusNotModified},
		{"later", testutil.FixtureTime.Add(time.Hour), http.StatusNotModified},
		{"earlier", testutil.FixtureTime.Add(-time.Second), http.StatusOK},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			res := h.handle(1, "text/markdown", func(r *Request) {
				r.IfModifiedSince = tt.since.Format(http.TimeFormat)
			})
			if res.Status != tt.want {
				t.Errorf("Status = %d, want %d", res.Status, tt.want)
			}
		})
	}
}

func TestDispatcher_StaleETagFreshDate(t *testing.T) {
	h := newHarness(t, nil)

	tests := []struct {
		name  string
		since time.Time
		want  int
	}{
		{"date after modified", testutil.FixtureTime.Add(time.Hour), http.StatusNotModified},
		{"date before modified", testutil.FixtureTime.Add(-time.Hour), http.StatusOK},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			res := h.handle(1, "text/markdown", func(r *Request) {
				r.IfNoneMatch = `W/"1-stale"`
				r.IfModifiedSince = tt.since.Format(http.TimeFormat)
			})
			if res.Status != tt.want {
				t.Errorf("Status = %d, want %d", res.Status, tt.want)
			}
		})
	}
}

func TestDispatcher_OversizedAccept(t *testing.T) {
	h := newHarness(t, nil)

	res := h.handle(1, "text/markdown,"+strings.Repeat("a", 1100))
	if res.Status != http.StatusBadRequest {
		t.Fatalf("Status = %d, want 400", res.Status)
	}
	if string(res.Body) != MessageBadAccept {
		t.Errorf("Body = %q, want %q", res.Body, MessageBadAccept)
	}
	if res.Header.Get("Content-Type") != "text/plain; charset=utf-8" {
		t.Errorf("Content-Type = %q", res.Header.Get("Content-Type"))
	}
	if h.conv.CallCount() != 0 || h.store.Len() != 0 {
		t.Error("validation failure touched converter or cache")
	}
	if !IsClass(res.Err, ErrorClassValidation) {
		t.Errorf("Err = %v, want validation error", res.Err)
	}
}

func TestDispatcher_Passthrough(t *testing.T) {
	tests := []struct {
		name   string
		id     int64
		accept string
		mutate func(*settings.Settings)
	}{
		{name: "browser", id: 1, accept: "text/html,application/xhtml+xml,*/*;q=0.8"},
		{name: "html preferred", id: 1, accept: "text/html, text/markdown;q=0.5"},
		{name: "wildcard", id: 1, accept: "*/*"},
		{name: "empty", id: 1, accept: ""},
		{name: "type not enabled", id: 7, accept: "text/markdown"},
		{name: "disabled", id: 1, accept: "text/markdown", mutate: func(s *settings.Settings) { s.Enabled = false }},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			h := newHarness(t, tt.mutate)
			res := h.handle(tt.id, tt.accept)
			if !res.Passthrough {
				t.Errorf("Handle() = status %d, want passthrough", res.Status)
			}
			if h.conv.CallCount() != 0 {
				t.Error("passthrough invoked converter")
			}
		})
	}
}

func TestDispatcher_AccessDenied(t *testing.T) {
	tests := []struct {
		name     string
		id       int64
		password string
	}{
		{"draft", 3, ""},
		{"protected", 4, ""},
		{"protected wrong password", 4, "nope"},
		{"opted out", 5, ""},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			h := newHarness(t, nil)
			res := h.handle(tt.id, "text/markdown", func(r *Request) { r.Password = tt.password })
			if res.Status != http.StatusForbidden {
				t.Fatalf("Status = %d, want 403", res.Status)
			}
			if string(res.Body) != MessageAccessDenied {
				t.Errorf("Body = %q", res.Body)
			}
		})
	}

	h := newHarness(t, nil)
	if res := h.handle(4, "text/markdown", func(r *Request) { r.Password = "secret" }); res.Status != http.StatusOK {
		t.Errorf("protected with password: Status = %d, want 200", res.Status)
	}
}

func TestDispatcher_NegotiatedMediaType(t *testing.T) {
	h := newHarness(t, nil)

	res := h.handle(1, "text/x-markdown, text/html;q=0.1")
	if got := res.Header.Get("Content-Type"); got != "text/x-markdown; charset=utf-8" {
		t.Errorf("Content-Type = %q, want text/x-markdown", got)
	}
}

func TestDispatcher_RateLimit(t *testing.T) {
	h := newHarness(t, func(s *settings.Settings) {
		s.RateLimitEnabled = true
		s.RateLimitRequests = 2
		s.RateLimitWindow = 30
	})

	for i := range 2 {
		if res := h.handle(1, "text/markdown"); res.Status != http.StatusOK {
			t.Fatalf("request %d Status = %d, want 200", i+1, res.Status)
		}
	}

	res := h.handle(1, "text/markdown")
	if res.Status != http.StatusTooManyRequests {
		t.Fatalf("Status = %d, want 429", res.Status)
	}
	if got := res.Header.Get("Retry-After"); got != "30" {
		t.Errorf("Retry-After = %q, want 30", got)
	}
	if got := res.Header.Get("X-RateLimit-Limit"); got != "2" {
		t.Errorf("X-RateLimit-Limit = %q, want 2", got)
	}
	if got := res.Header.Get("X-RateLimit-Remaining"); got != "0" {
		t.Errorf("X-RateLimit-Remaining = %q, want 0", got)
	}

	// Forced triggers are limited too.
	if res := h.handle(1, "", func(r *Request) { r.Trigger = TriggerSuffix }); res.Status != http.StatusTooManyRequests {
		t.Errorf("suffix Status = %d, want 429", res.Status)
	}

	// Another client is unaffected.
	if res := h.handle(1, "text/markdown", func(r *Request) { r.ClientIP = "198.51.100.1" }); res.Status != http.StatusOK {
		t.Errorf("other client Status = %d, want 200", res.Status)
	}
}

func TestDispatcher_ForcedTriggers(t *testing.T) {
	for _, trigger := range []Trigger{TriggerSuffix, TriggerQuery} {
		h := newHarness(t, nil)

		res := h.handle(1, "text/html", func(r *Request) { r.Trigger = trigger })
		if res.Status != http.StatusOK {
			t.Fatalf("trigger %d: Status = %d, want 200", trigger, res.Status)
		}
		if got := res.Header.Get("Content-Type"); got != "text/markdown; charset=utf-8" {
			t.Errorf("trigger %d: Content-Type = %q", trigger, got)
		}

		// Forced triggers still run access control, including type checks.
		if res := h.handle(7, "", func(r *Request) { r.Trigger = trigger }); res.Status != http.StatusForbidden {
			t.Errorf("trigger %d attachment: Status = %d, want 403", trigger, res.Status)
		}
	}
}

func TestDispatcher_ConversionFailure(t *testing.T) {
	h := newHarness(t, nil)
	h.conv.SetFail(true)

	res := h.handle(1, "text/markdown")
	if res.Status != http.StatusInternalServerError {
		t.Fatalf("Status = %d, want 500", res.Status)
	}
	if string(res.Body) != MessageConversionError {
		t.Errorf("Body = %q", res.Body)
	}
	if h.store.Len() != 0 {
		t.Error("failed conversion was cached")
	}
}

func TestDispatcher_TokenHeaderDisabled(t *testing.T) {
	h := newHarness(t, func(s *settings.Settings) { s.TokenHeader = false })

	if res := h.handle(1, "text/markdown"); res.Header.Get(HeaderTokens) != "" {
		t.Error("token header set while disabled")
	}
}

func TestDispatcher_VaryMerged(t *testing.T) {
	h := newHarness(t, nil)

	res := h.handle(1, "text/markdown", func(r *Request) { r.Vary = "Accept-Encoding" })
	if got := res.Header.Get("Vary"); got != "Accept-Encoding, Accept" {
		t.Errorf("Vary = %q, want %q", got, "Accept-Encoding, Accept")
	}
}

func TestDispatcher_HeaderHooks(t *testing.T) {
	h := newHarness(t, nil, func(hdr http.Header, item content.Item) {
		hdr.Set("X-Content-Id", itoa(int(item.ID)))
	})

	if got := h.handle(1, "text/markdown").Header.Get("X-Content-Id"); got != "1" {
		t.Errorf("hook header = %q, want 1", got)
	}
}

func TestNewRequest(t *testing.T) {
	r := httptest.NewRequest(http.MethodGet, "/hello-world/", nil)
	r.RemoteAddr = "10.0.0.1:5555"
	r.Header.Set("Accept", "text/markdown")
	r.Header.Set("If-None-Match", `W/"1-abc"`)
	r.Header.Set("X-WP-Post-Password", "secret")
	r.Header.Set("X-Forwarded-For", "198.51.100.7, 10.0.0.1")

	req := NewRequest(r, content.Item{ID: 1}, TriggerAccept, ratelimit.DefaultIPHeaders)
	if req.Accept != "text/markdown" || req.IfNoneMatch != `W/"1-abc"` || req.Password != "secret" {
		t.Errorf("NewRequest() = %+v", req)
	}
	if req.ClientIP != "198.51.100.7" {
		t.Errorf("ClientIP = %q, want 198.51.100.7", req.ClientIP)
	}
}
