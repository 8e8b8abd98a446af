// Package server exposes content pages, alternate Markdown routes and the
// Markdown REST API over HTTP.
package server

import (
	"net/http"
	"sync/atomic"
	"time"

	"github.com/Sternrassler/markdown-negotiation/pkg/access"
	"github.com/Sternrassler/markdown-negotiation/pkg/dispatch"
	"github.com/Sternrassler/markdown-negotiation/pkg/metrics"
	"github.com/Sternrassler/markdown-negotiation/pkg/ratelimit"
	"github.com/Sternrassler/markdown-negotiation/pkg/service"
	"github.com/Sternrassler/markdown-negotiation/pkg/settings"
	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/hlog"
)

// API namespaces.
const (
	MarkdownAPI = "/api/markdown/v1"
	ContentAPI  = "/api/content/v1"
)

// Options holds the server collaborators.
type Options struct {
	Service    *service.Service
	Dispatcher *dispatch.Dispatcher
	Settings   *settings.Store
	Version    string

	// BaseURL prefixes permalinks in discovery links and API payloads.
	BaseURL string

	// OpsToken guards cache flush; empty disables the endpoint.
	OpsToken string

	// IPHeaders are the proxy headers trusted for the client address.
	IPHeaders []string

	// MetricsPath mounts the Prometheus handler when non-empty.
	MetricsPath string

	Logger zerolog.Logger
}

// Server routes requests. Create with New.
type Server struct {
	router     *chi.Mux
	svc        *service.Service
	dispatcher *dispatch.Dispatcher
	settings   *settings.Store
	checker    *access.Checker
	version    string
	baseURL    string
	opsToken   string
	ipHeaders  []string
	logger     zerolog.Logger

	// suffixRoute mirrors settings.EndpointMD so the .md route follows the
	// toggle without rebuilding the router.
	suffixRoute atomic.Bool
}

// New builds the router.
func New(opts Options) *Server {
	if opts.IPHeaders == nil {
		opts.IPHeaders = ratelimit.DefaultIPHeaders
	}

	s := &Server{
		router:     chi.NewRouter(),
		svc:        opts.Service,
		dispatcher: opts.Dispatcher,
		settings:   opts.Settings,
		checker:    access.NewChecker(),
		version:    opts.Version,
		baseURL:    opts.BaseURL,
		opsToken:   opts.OpsToken,
		ipHeaders:  opts.IPHeaders,
		logger:     opts.Logger,
	}

	s.suffixRoute.Store(opts.Settings.Load().EndpointMD)
	opts.Settings.Subscribe(func(old, updated settings.Settings) {
		if old.EndpointMD != updated.EndpointMD {
			s.suffixRoute.Store(updated.EndpointMD)
			s.logger.Info().Bool("endpoint_md", updated.EndpointMD).Msg("Markdown suffix route toggled")
		}
	})

	r := s.router
	r.Use(hlog.NewHandler(opts.Logger))
	r.Use(hlog.RequestIDHandler("req_id", "X-Request-Id"))
	r.Use(hlog.RemoteAddrHandler("remote_addr"))
	r.Use(hlog.AccessHandler(func(r *http.Request, status, size int, duration time.Duration) {
		hlog.FromRequest(r).Info().
			Str("method", r.Method).
			Str("path", r.URL.Path).
			Int("status", status).
			Int("size", size).
			Dur("duration", duration).
			Msg("Request")
	}))
	r.Use(chimw.Recoverer)

	r.Get("/healthz", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/plain; charset=utf-8")
		if _, err := w.Write([]byte("OK")); err != nil {
			hlog.FromRequest(r).Warn().Err(err).Msg("Write health response failed")
		}
	})
	if opts.MetricsPath != "" {
		r.Method(http.MethodGet, opts.MetricsPath, metrics.Handler())
	}

	r.Route(MarkdownAPI, func(api chi.Router) {
		api.Get("/markdown", s.handleList)
		api.Get("/markdown/{id}", s.handleMarkdown)
		api.Get("/status", s.handleStatus)
		api.With(s.requireOpsToken).Post("/cache/flush", s.handleFlush)
	})
	r.Get(ContentAPI+"/items/{id}", s.handleContentItem)

	r.Get("/*", s.handlePage)
	r.Head("/*", s.handlePage)

	return s
}

// ServeHTTP implements http.Handler.
func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.router.ServeHTTP(w, r)
}

// SuffixRouteEnabled reports whether <permalink>.md is served.
func (s *Server) SuffixRouteEnabled() bool {
	return s.suffixRoute.Load()
}

func (s *Server) absolute(path string) string {
	return s.baseURL + path
}
