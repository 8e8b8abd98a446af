// Package access decides whether a content item may be exposed as Markdown.
package access

import (
	"crypto/subtle"
	"errors"

	"github.com/Sternrassler/markdown-negotiation/pkg/content"
	"github.com/Sternrassler/markdown-negotiation/pkg/settings"
)

// PasswordHeader carries the password for protected items.
const PasswordHeader = "X-WP-Post-Password"

// Reasons an item is refused. All map to 403.
var (
	ErrNotPublished     = errors.New("content is not published")
	ErrPasswordRequired = errors.New("content is password protected")
	ErrMarkdownDisabled = errors.New("markdown disabled for content")
	ErrTypeNotAllowed   = errors.New("content type not enabled for markdown")
)

// Checker applies the access rules in a fixed order: status, password,
// per-item opt-out, content type.
type Checker struct{}

// NewChecker returns a Checker.
func NewChecker() *Checker {
	return &Checker{}
}

// Check returns nil when item may be served. password is the value supplied
// by the client, empty when none was sent.
func (c *Checker) Check(item content.Item, password string, s settings.Settings) error {
	if !item.IsPublished() {
		return ErrNotPublished
	}
	if item.Password != "" && subtle.ConstantTimeCompare([]byte(item.Password), []byte(password)) != 1 {
		return ErrPasswordRequired
	}
	if item.MarkdownDisabled {
		return ErrMarkdownDisabled
	}
	if !s.AllowsType(item.Type) {
		return ErrTypeNotAllowed
	}
	return nil
}

// IsDenied reports whether err is one of the access refusals.
func IsDenied(err error) bool {
	return errors.Is(err, ErrNotPublished) ||
		errors.Is(err, ErrPasswordRequired) ||
		errors.Is(err, ErrMarkdownDisabled) ||
		errors.Is(err, ErrTypeNotAllowed)
}
