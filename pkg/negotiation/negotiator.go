package negotiation

import (
	"regexp"
	"sort"
	"strconv"
	"strings"
	"sync"
)

// Media types recognised by the negotiator.
const (
	MediaTypeMarkdown  = "text/markdown"
	MediaTypeXMarkdown = "text/x-markdown"
	MediaTypeHTML      = "text/html"
	MediaTypeAny       = "*/*"
)

// SupportedTypes lists the Markdown-family media types that can be served.
var SupportedTypes = []string{MediaTypeMarkdown, MediaTypeXMarkdown}

var (
	mediaTypePattern = regexp.MustCompile(`^[a-z*]+/[a-z0-9.*+-]+$`)
	qualityPattern   = regexp.MustCompile(`^q\s*=\s*([01](?:\.\d{0,3})?)$`)
)

// Candidate is one media range from an Accept header with its quality.
type Candidate struct {
	Type    string
	Quality float64
}

// Parse splits an Accept header into candidates ordered by descending quality.
// Candidates with equal quality keep their header order. Malformed segments
// are dropped.
func Parse(raw string) []Candidate {
	if strings.TrimSpace(raw) == "" {
		return nil
	}

	var candidates []Candidate
	for _, segment := range strings.Split(raw, ",") {
		segment = strings.TrimSpace(segment)
		if segment == "" {
			continue
		}

		parts := strings.Split(segment, ";")
		mediaType := strings.ToLower(strings.TrimSpace(parts[0]))
		if !mediaTypePattern.MatchString(mediaType) {
			continue
		}

		candidates = append(candidates, Candidate{
			Type:    mediaType,
			Quality: parseQuality(parts[1:]),
		})
	}

	sort.SliceStable(candidates, func(i, j int) bool {
		return candidates[i].Quality > candidates[j].Quality
	})

	return candidates
}

// parseQuality returns the first well-formed q parameter, or 1.0.
func parseQuality(params []string) float64 {
	for _, p := range params {
		m := qualityPattern.FindStringSubmatch(strings.TrimSpace(p))
		if m == nil {
			continue
		}
		q, err := strconv.ParseFloat(m[1], 64)
		if err != nil {
			continue
		}
		return min(q, 1.0)
	}
	return 1.0
}

// IsMarkdownType reports whether mediaType belongs to the Markdown family.
func IsMarkdownType(mediaType string) bool {
	return mediaType == MediaTypeMarkdown || mediaType == MediaTypeXMarkdown
}

// MentionsMarkdown is the cheap substring check used before full negotiation.
func MentionsMarkdown(raw string) bool {
	lower := strings.ToLower(raw)
	return strings.Contains(lower, MediaTypeMarkdown) || strings.Contains(lower, MediaTypeXMarkdown)
}

// Decide walks ranked candidates and returns the Markdown type the client
// prefers. text/html or */* ranked ahead of any Markdown type ends the walk.
func Decide(candidates []Candidate) (string, bool) {
	for _, c := range candidates {
		if IsMarkdownType(c.Type) {
			return c.Type, true
		}
		if c.Type == MediaTypeHTML || c.Type == MediaTypeAny {
			return "", false
		}
	}
	return "", false
}

// Negotiator evaluates one request's Accept header once and memoizes the
// outcome until Reset is called.
type Negotiator struct {
	accept string

	mu        sync.Mutex
	evaluated bool
	wants     bool
	mediaType string
}

// NewNegotiator returns a negotiator for the given raw Accept header.
func NewNegotiator(accept string) *Negotiator {
	return &Negotiator{accept: accept}
}

// WantsMarkdown reports whether the client prefers Markdown.
func (n *Negotiator) WantsMarkdown() bool {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.evaluate()
	return n.wants
}

// MediaType returns the negotiated Markdown type, or text/markdown when the
// header did not select one.
func (n *Negotiator) MediaType() string {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.evaluate()
	if n.mediaType == "" {
		return MediaTypeMarkdown
	}
	return n.mediaType
}

// Reset clears the memoized result so the header is evaluated again.
func (n *Negotiator) Reset() {
	n.mu.Lock()
	n.evaluated = false
	n.wants = false
	n.mediaType = ""
	n.mu.Unlock()
}

func (n *Negotiator) evaluate() {
	if n.evaluated {
		return
	}
	n.mediaType, n.wants = Decide(Parse(n.accept))
	n.evaluated = true
}
