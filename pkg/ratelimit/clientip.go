package ratelimit

import (
	"net"
	"net/http"
	"strings"
)

// LoopbackIP is used when no client address can be determined.
const LoopbackIP = "127.0.0.1"

// DefaultIPHeaders are consulted in order before the connection address.
var DefaultIPHeaders = []string{
	"CF-Connecting-IP",
	"X-Forwarded-For",
	"X-Real-IP",
}

// ClientIP returns the first valid IP found in headers, taking the first
// element of comma-separated values, then the connection address.
func ClientIP(r *http.Request, headers []string) string {
	for _, name := range headers {
		value := r.Header.Get(name)
		if value == "" {
			continue
		}
		first, _, _ := strings.Cut(value, ",")
		first = strings.TrimSpace(first)
		if ip := net.ParseIP(first); ip != nil {
			return ip.String()
		}
	}

	if r.RemoteAddr != "" {
		host := r.RemoteAddr
		if h, _, err := net.SplitHostPort(r.RemoteAddr); err == nil {
			host = h
		}
		if ip := net.ParseIP(host); ip != nil {
			return ip.String()
		}
	}

	return LoopbackIP
}
