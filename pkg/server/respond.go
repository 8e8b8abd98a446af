package server

import (
	"encoding/json"
	"net/http"
	"strconv"

	"github.com/Sternrassler/markdown-negotiation/pkg/dispatch"
	"github.com/rs/zerolog/hlog"
)

// writeResult sends a dispatcher result. HEAD requests get headers only.
func writeResult(w http.ResponseWriter, r *http.Request, res dispatch.Result) {
	h := w.Header()
	for name, values := range res.Header {
		if name == "Vary" {
			continue
		}
		h[name] = values
	}
	if vary := res.Header.Get("Vary"); vary != "" {
		h.Set("Vary", dispatch.MergeVary(h.Get("Vary"), vary))
	}

	w.WriteHeader(res.Status)
	if r.Method == http.MethodHead || len(res.Body) == 0 {
		return
	}
	if _, err := w.Write(res.Body); err != nil {
		hlog.FromRequest(r).Warn().Err(err).Msg("Write response failed")
	}
}

func writeText(w http.ResponseWriter, status int, body string) {
	w.Header().Set("Content-Type", "text/plain; charset=utf-8")
	w.Header().Set("Content-Length", strconv.Itoa(len(body)))
	w.WriteHeader(status)
	_, _ = w.Write([]byte(body))
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

// apiError is the error body of the JSON endpoints.
type apiError struct {
	Code    string `json:"code"`
	Message string `json:"message"`
	Status  int    `json:"status"`
}

func writeAPIError(w http.ResponseWriter, status int, code, message string) {
	writeJSON(w, status, apiError{Code: code, Message: message, Status: status})
}
