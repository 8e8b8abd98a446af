package dispatch

import (
	"crypto/md5"
	"encoding/hex"
	"fmt"
	"net/http"
	"strconv"
	"strings"
	"time"
)

// Header names and fixed values of Markdown responses.
const (
	HeaderSource  = "X-Markdown-Source"
	HeaderVersion = "X-Markdown-Plugin-Version"
	HeaderTokens  = "X-Markdown-Tokens"

	SourceName   = "markdown-negotiation"
	CacheControl = "public, max-age=300, s-maxage=3600"
)

// ETag returns the weak entity tag for a rendering of one content item.
func ETag(contentID int64, markdown string) string {
	sum := md5.Sum([]byte(markdown))
	return fmt.Sprintf(`W/"%d-%s"`, contentID, hex.EncodeToString(sum[:]))
}

// MergeVary adds values to an existing Vary header value, skipping
// duplicates case-insensitively and keeping the existing order.
func MergeVary(existing string, values ...string) string {
	var out []string
	seen := make(map[string]bool)
	add := func(v string) {
		v = strings.TrimSpace(v)
		if v == "" || seen[strings.ToLower(v)] {
			return
		}
		seen[strings.ToLower(v)] = true
		out = append(out, v)
	}
	for _, v := range strings.Split(existing, ",") {
		add(v)
	}
	for _, v := range values {
		add(v)
	}
	return strings.Join(out, ", ")
}

// NotModified reports whether the conditional request headers match the
// current representation: a tag in If-None-Match equals etag (or is "*"),
// or If-Modified-Since is at or after modified. Either condition suffices.
func NotModified(ifNoneMatch, ifModifiedSince, etag string, modified time.Time) bool {
	for _, tag := range strings.Split(ifNoneMatch, ",") {
		tag = strings.TrimSpace(tag)
		if tag != "" && (tag == "*" || tag == etag) {
			return true
		}
	}

	if ifModifiedSince == "" || modified.IsZero() {
		return false
	}
	since, err := http.ParseTime(ifModifiedSince)
	if err != nil {
		return false
	}
	return !since.Before(modified.Truncate(time.Second))
}

// markdownHeaders builds the headers shared by 200 and 304 responses.
func markdownHeaders(mediaType, vary, version, etag string, modified time.Time) http.Header {
	h := make(http.Header)
	h.Set("Content-Type", mediaType+"; charset=utf-8")
	h.Set("Vary", MergeVary(vary, "Accept"))
	h.Set(HeaderSource, SourceName)
	h.Set(HeaderVersion, version)
	if !modified.IsZero() {
		h.Set("Last-Modified", modified.UTC().Format(http.TimeFormat))
	}
	h.Set("ETag", etag)
	h.Set("Cache-Control", CacheControl)
	return h
}

// errorHeaders builds the headers of a plain-text error response.
func errorHeaders(body string) http.Header {
	h := make(http.Header)
	h.Set("Content-Type", "text/plain; charset=utf-8")
	h.Set("Content-Length", strconv.Itoa(len(body)))
	return h
}
