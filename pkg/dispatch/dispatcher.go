// Package dispatch decides, per request, whether a content item is answered
// with Markdown and builds that answer. It never writes to the network: the
// HTTP layer receives a Result and acts on it.
package dispatch

import (
	"context"
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/Sternrassler/markdown-negotiation/pkg/access"
	"github.com/Sternrassler/markdown-negotiation/pkg/cache"
	"github.com/Sternrassler/markdown-negotiation/pkg/content"
	"github.com/Sternrassler/markdown-negotiation/pkg/converter"
	"github.com/Sternrassler/markdown-negotiation/pkg/negotiation"
	"github.com/Sternrassler/markdown-negotiation/pkg/ratelimit"
	"github.com/Sternrassler/markdown-negotiation/pkg/settings"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/rs/zerolog"
)

// Response outcomes, used as the metric label.
const (
	OutcomeMarkdown        = "markdown"
	OutcomeNotModified     = "not_modified"
	OutcomePassthrough     = "passthrough"
	OutcomeBadRequest      = "bad_request"
	OutcomeForbidden       = "forbidden"
	OutcomeRateLimited     = "rate_limited"
	OutcomeNotFound        = "not_found"
	OutcomeConversionError = "conversion_error"
)

var responsesTotal = promauto.NewCounterVec(prometheus.CounterOpts{
	Name: "mna_responses_total",
	Help: "Total dispatcher results by outcome",
}, []string{"outcome"})

// Trigger is what asked for Markdown.
type Trigger int

const (
	// TriggerAccept negotiates on the Accept header.
	TriggerAccept Trigger = iota

	// TriggerSuffix is a request for the item path plus ".md".
	TriggerSuffix

	// TriggerQuery is a request carrying format=markdown.
	TriggerQuery
)

// Forced reports whether the trigger skips Accept negotiation.
func (t Trigger) Forced() bool {
	return t != TriggerAccept
}

// Request carries everything the dispatcher reads from one HTTP request.
type Request struct {
	Item    content.Item
	Trigger Trigger

	Accept          string
	IfNoneMatch     string
	IfModifiedSince string
	Password        string
	ClientIP        string

	// Vary is the Vary value already set on the response, if any.
	Vary string
}

// NewRequest reads the relevant headers of r for item.
func NewRequest(r *http.Request, item content.Item, trigger Trigger, ipHeaders []string) Request {
	return Request{
		Item:            item,
		Trigger:         trigger,
		Accept:          r.Header.Get("Accept"),
		IfNoneMatch:     r.Header.Get("If-None-Match"),
		IfModifiedSince: r.Header.Get("If-Modified-Since"),
		Password:        r.Header.Get(access.PasswordHeader),
		ClientIP:        ratelimit.ClientIP(r, ipHeaders),
	}
}

// Result is the terminal state of one dispatch. A Passthrough result means
// the caller renders the page as usual; otherwise Status, Header and Body
// form the complete response.
type Result struct {
	Passthrough bool
	Status      int
	Header      http.Header
	Body        []byte

	// Err is set for error responses.
	Err *Error
}

// Source returns the Markdown for an item, from cache or by conversion.
type Source interface {
	Markdown(ctx context.Context, item content.Item, variant string) (string, error)
}

// SettingsSource yields the current settings snapshot.
type SettingsSource interface {
	Load() settings.Settings
}

// HeaderHook may adjust the headers of a Markdown response before it is
// returned.
type HeaderHook func(h http.Header, item content.Item)

// Dispatcher runs the validate, negotiate, authorize, limit, serve sequence.
type Dispatcher struct {
	settings SettingsSource
	checker  *access.Checker
	limiter  *ratelimit.Limiter
	source   Source
	version  string
	hooks    []HeaderHook
	logger   zerolog.Logger
}

// Config holds the dispatcher collaborators.
type Config struct {
	Settings SettingsSource
	Checker  *access.Checker
	Limiter  *ratelimit.Limiter
	Source   Source
	Version  string
	Hooks    []HeaderHook
}

// New creates a dispatcher.
func New(cfg Config, logger zerolog.Logger) *Dispatcher {
	if cfg.Settings == nil || cfg.Source == nil {
		panic("dispatch: settings and source are required")
	}
	if cfg.Checker == nil {
		cfg.Checker = access.NewChecker()
	}
	return &Dispatcher{
		settings: cfg.Settings,
		checker:  cfg.Checker,
		limiter:  cfg.Limiter,
		source:   cfg.Source,
		version:  cfg.Version,
		hooks:    cfg.Hooks,
		logger:   logger,
	}
}

// Handle dispatches one request.
func (d *Dispatcher) Handle(ctx context.Context, req Request) Result {
	s := d.settings.Load()
	if !s.Enabled {
		return d.passthrough()
	}

	logger := d.logger.With().Int64("content_id", req.Item.ID).Logger()

	mediaType := negotiation.MediaTypeMarkdown
	if !req.Trigger.Forced() {
		if !negotiation.ValidateAccept(req.Accept) {
			logger.Debug().Int("accept_length", len(req.Accept)).Msg("Rejected malformed Accept header")
			return d.fail(NewError(ErrorClassValidation, nil))
		}

		neg := negotiation.NewNegotiator(req.Accept)
		if !neg.WantsMarkdown() {
			return d.passthrough()
		}
		if !s.AllowsType(req.Item.Type) {
			return d.passthrough()
		}
		mediaType = neg.MediaType()
	}

	if err := d.checker.Check(req.Item, req.Password, s); err != nil {
		logger.Debug().Err(err).Msg("Markdown access denied")
		return d.fail(NewError(ErrorClassAccess, err))
	}

	if s.RateLimitEnabled && d.limiter != nil && (req.Trigger.Forced() || negotiation.MentionsMarkdown(req.Accept)) {
		window := time.Duration(s.RateLimitWindow) * time.Second
		decision := d.limiter.Allow(ctx, req.ClientIP, s.RateLimitRequests, window)
		if !decision.Allowed {
			return d.rateLimited(decision)
		}
	}

	markdown, err := d.source.Markdown(ctx, req.Item, cache.VariantPage)
	if err != nil {
		logger.Error().Err(err).Msg("Markdown conversion failed")
		return d.fail(NewError(ErrorClassConversion, err))
	}

	return d.serve(req, mediaType, markdown, s)
}

func (d *Dispatcher) serve(req Request, mediaType, markdown string, s settings.Settings) Result {
	etag := ETag(req.Item.ID, markdown)
	h := markdownHeaders(mediaType, req.Vary, d.version, etag, req.Item.Modified)

	if NotModified(req.IfNoneMatch, req.IfModifiedSince, etag, req.Item.Modified) {
		h.Del("Content-Type")
		d.applyHooks(h, req.Item)
		responsesTotal.WithLabelValues(OutcomeNotModified).Inc()
		return Result{Status: http.StatusNotModified, Header: h}
	}

	h.Set("Content-Length", strconv.Itoa(len(markdown)))
	if tokens := converter.EstimateTokens(markdown); s.TokenHeader && tokens > 0 {
		h.Set(HeaderTokens, strconv.Itoa(tokens))
	}
	d.applyHooks(h, req.Item)

	responsesTotal.WithLabelValues(OutcomeMarkdown).Inc()
	return Result{Status: http.StatusOK, Header: h, Body: []byte(markdown)}
}

func (d *Dispatcher) applyHooks(h http.Header, item content.Item) {
	for _, hook := range d.hooks {
		hook(h, item)
	}
}

func (d *Dispatcher) passthrough() Result {
	responsesTotal.WithLabelValues(OutcomePassthrough).Inc()
	return Result{Passthrough: true}
}

func (d *Dispatcher) rateLimited(decision ratelimit.Decision) Result {
	e := NewError(ErrorClassRateLimit, nil)
	h := errorHeaders(e.Message)
	h.Set("Retry-After", strconv.Itoa(int(decision.RetryAfter/time.Second)))
	h.Set("X-RateLimit-Limit", strconv.Itoa(decision.Limit))
	h.Set("X-RateLimit-Remaining", "0")

	responsesTotal.WithLabelValues(OutcomeRateLimited).Inc()
	return Result{Status: e.Status, Header: h, Body: []byte(e.Message), Err: e}
}

func (d *Dispatcher) fail(e *Error) Result {
	responsesTotal.WithLabelValues(outcomeFor(e)).Inc()
	return Result{Status: e.Status, Header: errorHeaders(e.Message), Body: []byte(e.Message), Err: e}
}

func outcomeFor(e *Error) string {
	switch e.Class {
	case ErrorClassValidation:
		return OutcomeBadRequest
	case ErrorClassAccess:
		return OutcomeForbidden
	case ErrorClassRateLimit:
		return OutcomeRateLimited
	case ErrorClassNotFound:
		return OutcomeNotFound
	default:
		return OutcomeConversionError
	}
}

// IsClass reports whether err is a dispatch Error of class.
func IsClass(err error, class ErrorClass) bool {
	var e *Error
	return errors.As(err, &e) && e.Class == class
}
