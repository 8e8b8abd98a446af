// Package content models the CMS items that are served as Markdown and the
// repositories they are read from. Items are read-only to the delivery
// pipeline.
package content

import (
	"context"
	"errors"
	"time"
)

// StatusPublish is the only status whose items are served externally.
const StatusPublish = "publish"

// ErrNotFound is returned when no item matches the lookup.
var ErrNotFound = errors.New("content not found")

// Item is one piece of CMS content.
type Item struct {
	ID               int64
	Title            string
	Slug             string
	Type             string
	Status           string
	Password         string
	MarkdownDisabled bool

	// HTML is the rendered body.
	HTML    string
	Excerpt string
	Author  string

	Published time.Time
	Modified  time.Time

	Categories []string
	Tags       []string

	// Attributes carries type-specific fields such as price or sku.
	Attributes map[string]string
}

// IsPublished reports whether the item has the publish status.
func (i Item) IsPublished() bool {
	return i.Status == StatusPublish
}

// Permalink returns the canonical path of the item.
func (i Item) Permalink() string {
	switch i.Type {
	case "", "post", "page":
		return "/" + i.Slug + "/"
	default:
		return "/" + i.Type + "/" + i.Slug + "/"
	}
}

// ListQuery selects a page of items.
type ListQuery struct {
	Type    string
	Status  string
	PerPage int
	Page    int
}

// ListResult is one page of items plus totals for paging headers.
type ListResult struct {
	Items      []Item
	Total      int
	TotalPages int
}

// Repository is the read side of the CMS.
type Repository interface {
	Get(ctx context.Context, id int64) (Item, error)
	FindByPath(ctx context.Context, path string) (Item, error)
	List(ctx context.Context, q ListQuery) (ListResult, error)
}
