package server

import (
	"crypto/subtle"
	"errors"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/Sternrassler/markdown-negotiation/pkg/access"
	"github.com/Sternrassler/markdown-negotiation/pkg/cache"
	"github.com/Sternrassler/markdown-negotiation/pkg/content"
	"github.com/Sternrassler/markdown-negotiation/pkg/dispatch"
	"github.com/Sternrassler/markdown-negotiation/pkg/negotiation"
	"github.com/go-chi/chi/v5"
	"github.com/rs/zerolog/hlog"
)

// List paging bounds.
const (
	defaultPerPage = 10
	maxPerPage     = 100
)

type markdownItem struct {
	ID        int64  `json:"id"`
	Title     string `json:"title"`
	Slug      string `json:"slug"`
	Permalink string `json:"permalink"`
	Markdown  string `json:"markdown"`
	Tokens    int    `json:"tokens"`
	Modified  string `json:"modified"`
}

type listItem struct {
	ID        int64  `json:"id"`
	Title     string `json:"title"`
	Slug      string `json:"slug"`
	Permalink string `json:"permalink"`
	Modified  string `json:"modified"`
}

type statusResponse struct {
	Version        string   `json:"version"`
	Enabled        bool     `json:"enabled"`
	Converter      string   `json:"converter"`
	CacheDriver    string   `json:"cache_driver"`
	PostTypes      []string `json:"post_types"`
	SupportedTypes []string `json:"supported_types"`
}

type markdownField struct {
	Content string `json:"content"`
	Tokens  int    `json:"tokens"`
}

type contentResponse struct {
	ID         int64          `json:"id"`
	Type       string         `json:"type"`
	Slug       string         `json:"slug"`
	Link       string         `json:"link"`
	Title      string         `json:"title"`
	Content    string         `json:"content"`
	Excerpt    string         `json:"excerpt"`
	Author     string         `json:"author,omitempty"`
	Date       string         `json:"date"`
	Modified   string         `json:"modified"`
	Categories []string       `json:"categories,omitempty"`
	Tags       []string       `json:"tags,omitempty"`
	Markdown   *markdownField `json:"markdown,omitempty"`
}

// formatTime renders times the way the CMS API does: UTC without zone.
func formatTime(t time.Time) string {
	if t.IsZero() {
		return ""
	}
	return t.UTC().Format("2006-01-02T15:04:05")
}

// loadItem resolves the {id} URL parameter, answering 404 itself on failure.
func (s *Server) loadItem(w http.ResponseWriter, r *http.Request) (content.Item, bool) {
	id, err := strconv.ParseInt(chi.URLParam(r, "id"), 10, 64)
	if err != nil || id <= 0 {
		writeAPIError(w, http.StatusNotFound, "not_found", "Invalid content ID.")
		return content.Item{}, false
	}

	item, err := s.svc.Repository().Get(r.Context(), id)
	if err != nil {
		if !errors.Is(err, content.ErrNotFound) {
			hlog.FromRequest(r).Error().Err(err).Int64("content_id", id).Msg("Content lookup failed")
		}
		writeAPIError(w, http.StatusNotFound, "not_found", "Invalid content ID.")
		return content.Item{}, false
	}
	return item, true
}

// handleMarkdown serves GET /markdown/{id}.
func (s *Server) handleMarkdown(w http.ResponseWriter, r *http.Request) {
	current := s.settings.Load()
	if !current.RESTMarkdown {
		writeAPIError(w, http.StatusNotFound, "rest_no_route", "No route was found matching the URL and request method.")
		return
	}

	item, ok := s.loadItem(w, r)
	if !ok {
		return
	}

	if err := s.checker.Check(item, r.Header.Get(access.PasswordHeader), current); err != nil {
		writeAPIError(w, http.StatusForbidden, "forbidden", "You do not have permission to access this content.")
		return
	}

	markdown, err := s.svc.Markdown(r.Context(), item, cache.VariantREST)
	if err != nil {
		hlog.FromRequest(r).Error().Err(err).Int64("content_id", item.ID).Msg("Markdown conversion failed")
		writeAPIError(w, http.StatusInternalServerError, "conversion_failed", dispatch.MessageConversionError)
		return
	}

	tokens := s.svc.EstimateTokens(markdown)
	w.Header().Set(dispatch.HeaderSource, dispatch.SourceName)
	w.Header().Set(dispatch.HeaderTokens, strconv.Itoa(tokens))
	writeJSON(w, http.StatusOK, markdownItem{
		ID:        item.ID,
		Title:     item.Title,
		Slug:      item.Slug,
		Permalink: s.absolute(item.Permalink()),
		Markdown:  markdown,
		Tokens:    tokens,
		Modified:  formatTime(item.Modified),
	})
}

// handleList serves GET /markdown?post_type=&per_page=&page=.
func (s *Server) handleList(w http.ResponseWriter, r *http.Request) {
	current := s.settings.Load()
	if !current.RESTMarkdown {
		writeAPIError(w, http.StatusNotFound, "rest_no_route", "No route was found matching the URL and request method.")
		return
	}

	q := r.URL.Query()
	postType := q.Get("post_type")
	if postType == "" {
		postType = "post"
	}
	if !current.AllowsType(postType) {
		writeJSON(w, http.StatusBadRequest, map[string]string{"message": "Post type not enabled for Markdown."})
		return
	}

	perPage := clamp(intParam(q.Get("per_page"), defaultPerPage), 1, maxPerPage)
	page := max(intParam(q.Get("page"), 1), 1)

	res, err := s.svc.Repository().List(r.Context(), content.ListQuery{
		Type:    postType,
		Status:  content.StatusPublish,
		PerPage: perPage,
		Page:    page,
	})
	if err != nil {
		hlog.FromRequest(r).Error().Err(err).Str("post_type", postType).Msg("List content failed")
		writeAPIError(w, http.StatusInternalServerError, "list_failed", "Listing content failed.")
		return
	}

	items := make([]listItem, 0, len(res.Items))
	for _, it := range res.Items {
		items = append(items, listItem{
			ID:        it.ID,
			Title:     it.Title,
			Slug:      it.Slug,
			Permalink: s.absolute(it.Permalink()),
			Modified:  formatTime(it.Modified),
		})
	}

	w.Header().Set("X-WP-Total", strconv.Itoa(res.Total))
	w.Header().Set("X-WP-TotalPages", strconv.Itoa(res.TotalPages))
	writeJSON(w, http.StatusOK, items)
}

// handleStatus serves GET /status.
func (s *Server) handleStatus(w http.ResponseWriter, r *http.Request) {
	stats := s.svc.Stats(r.Context())
	writeJSON(w, http.StatusOK, statusResponse{
		Version:        s.version,
		Enabled:        stats.Enabled,
		Converter:      stats.Converter,
		CacheDriver:    stats.CacheDriver,
		PostTypes:      s.settings.Load().PostTypes,
		SupportedTypes: negotiation.SupportedTypes,
	})
}

// handleContentItem serves the content JSON, adding a markdown field when
// _format=markdown or include_markdown is set and the item may be exposed.
func (s *Server) handleContentItem(w http.ResponseWriter, r *http.Request) {
	item, ok := s.loadItem(w, r)
	if !ok {
		return
	}
	if !item.IsPublished() {
		writeAPIError(w, http.StatusNotFound, "not_found", "Invalid content ID.")
		return
	}

	resp := contentResponse{
		ID:         item.ID,
		Type:       item.Type,
		Slug:       item.Slug,
		Link:       s.absolute(item.Permalink()),
		Title:      item.Title,
		Content:    item.HTML,
		Excerpt:    item.Excerpt,
		Author:     item.Author,
		Date:       formatTime(item.Published),
		Modified:   formatTime(item.Modified),
		Categories: item.Categories,
		Tags:       item.Tags,
	}

	q := r.URL.Query()
	wantMarkdown := q.Get("_format") == "markdown" || q.Get("include_markdown") != ""
	current := s.settings.Load()
	if wantMarkdown && current.Enabled && s.checker.Check(item, r.Header.Get(access.PasswordHeader), current) == nil {
		markdown, err := s.svc.Markdown(r.Context(), item, cache.VariantREST)
		if err != nil {
			hlog.FromRequest(r).Warn().Err(err).Int64("content_id", item.ID).Msg("Markdown field omitted")
		} else {
			resp.Markdown = &markdownField{Content: markdown, Tokens: s.svc.EstimateTokens(markdown)}
		}
	}

	writeJSON(w, http.StatusOK, resp)
}

// handleFlush serves POST /cache/flush.
func (s *Server) handleFlush(w http.ResponseWriter, r *http.Request) {
	if err := s.svc.FlushAll(r.Context()); err != nil {
		hlog.FromRequest(r).Error().Err(err).Msg("Cache flush failed")
		writeAPIError(w, http.StatusInternalServerError, "flush_failed", "Cache flush failed.")
		return
	}
	hlog.FromRequest(r).Info().Msg("Markdown cache flushed")
	writeJSON(w, http.StatusOK, map[string]bool{"flushed": true})
}

// requireOpsToken admits requests carrying the configured bearer token.
func (s *Server) requireOpsToken(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if s.opsToken == "" {
			writeAPIError(w, http.StatusNotFound, "rest_no_route", "No route was found matching the URL and request method.")
			return
		}
		token, ok := strings.CutPrefix(r.Header.Get("Authorization"), "Bearer ")
		if !ok || subtle.ConstantTimeCompare([]byte(token), []byte(s.opsToken)) != 1 {
			writeAPIError(w, http.StatusUnauthorized, "unauthorized", "Missing or invalid bearer token.")
			return
		}
		next.ServeHTTP(w, r)
	})
}

func intParam(raw string, def int) int {
	if raw == "" {
		return def
	}
	n, err := strconv.Atoi(raw)
	if err != nil {
		return def
	}
	return n
}

func clamp(n, lo, hi int) int {
	return min(max(n, lo), hi)
}
