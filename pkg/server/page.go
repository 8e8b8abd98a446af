package server

import (
	"errors"
	"fmt"
	"html/template"
	"net/http"
	"strings"

	"github.com/Sternrassler/markdown-negotiation/pkg/content"
	"github.com/Sternrassler/markdown-negotiation/pkg/dispatch"
	"github.com/rs/zerolog/hlog"
)

// markdownSuffix is appended to a permalink to request Markdown.
const markdownSuffix = ".md"

var pageTemplate = template.Must(template.New("page").Parse(`<!DOCTYPE html>
<html lang="en">
<head>
<meta charset="utf-8">
<title>{{.Item.Title}}</title>
{{- if .Alternate}}
<link rel="alternate" type="text/markdown" href="{{.Alternate}}" title="{{.Item.Title}}" />
{{- end}}
</head>
<body>
<article>
<h1>{{.Item.Title}}</h1>
{{if .Protected}}<p>This content is password protected.</p>{{else}}{{.Body}}{{end}}
</article>
</body>
</html>
`))

type pageData struct {
	Item      content.Item
	Body      template.HTML
	Alternate string
	Protected bool
}

// handlePage serves content pages, negotiating Markdown on the Accept
// header or answering the .md suffix and format=markdown triggers.
func (s *Server) handlePage(w http.ResponseWriter, r *http.Request) {
	current := s.settings.Load()
	path, trigger := s.resolveTrigger(r, current.QueryFormat)

	item, err := s.svc.Repository().FindByPath(r.Context(), path)
	if err != nil {
		if !errors.Is(err, content.ErrNotFound) {
			hlog.FromRequest(r).Error().Err(err).Str("path", path).Msg("Content lookup failed")
		}
		writeText(w, http.StatusNotFound, dispatch.MessageNotFound)
		return
	}

	req := dispatch.NewRequest(r, item, trigger, s.ipHeaders)
	req.Vary = w.Header().Get("Vary")

	res := s.dispatcher.Handle(r.Context(), req)
	if !res.Passthrough {
		writeResult(w, r, res)
		return
	}

	// A forced trigger only passes through when Markdown is switched off.
	if trigger.Forced() || !item.IsPublished() {
		writeText(w, http.StatusNotFound, dispatch.MessageNotFound)
		return
	}
	s.renderPage(w, r, item)
}

// resolveTrigger strips the .md suffix when that route is on and detects
// format=markdown when allowed. It returns the content path to look up.
func (s *Server) resolveTrigger(r *http.Request, queryFormat bool) (string, dispatch.Trigger) {
	path := r.URL.Path
	if s.suffixRoute.Load() {
		trimmed := strings.TrimSuffix(path, "/")
		if strings.HasSuffix(trimmed, markdownSuffix) && len(trimmed) > len(markdownSuffix)+1 {
			return strings.TrimSuffix(trimmed, markdownSuffix) + "/", dispatch.TriggerSuffix
		}
	}
	if queryFormat && r.URL.Query().Get("format") == "markdown" {
		return path, dispatch.TriggerQuery
	}
	return path, dispatch.TriggerAccept
}

func (s *Server) renderPage(w http.ResponseWriter, r *http.Request, item content.Item) {
	data := pageData{
		Item:      item,
		Body:      template.HTML(item.HTML),
		Protected: item.Password != "",
	}

	current := s.settings.Load()
	h := w.Header()
	h.Set("Vary", dispatch.MergeVary(h.Get("Vary"), "Accept"))
	if current.Enabled && current.AllowsType(item.Type) {
		data.Alternate = s.absolute(item.Permalink())
		h.Add("Link", fmt.Sprintf(`<%s>; rel="alternate"; type="text/markdown"`, data.Alternate))
	}
	h.Set("Content-Type", "text/html; charset=utf-8")

	if r.Method == http.MethodHead {
		w.WriteHeader(http.StatusOK)
		return
	}
	if err := pageTemplate.Execute(w, data); err != nil {
		hlog.FromRequest(r).Error().Err(err).Int64("content_id", item.ID).Msg("Render page failed")
	}
}
