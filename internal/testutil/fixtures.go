package testutil

import (
	"time"

	"github.com/Sternrassler/markdown-negotiation/pkg/content"
)

// FixtureTime is the modification time of the fixture items.
var FixtureTime = time.Date(2026, 3, 14, 9, 26, 53, 0, time.UTC)

// FixtureItems returns a published post, a page, a draft, a protected post,
// an opted-out post, a product and an attachment.
func FixtureItems() []content.Item {
	base := content.Item{
		Type:      "post",
		Status:    content.StatusPublish,
		Author:    "Ada",
		Published: FixtureTime.Add(-24 * time.Hour),
		Modified:  FixtureTime,
	}

	with := func(id int64, slug string, fn func(*content.Item)) content.Item {
		item := base
		item.ID = id
		item.Slug = slug
		item.Title = "Item " + slug
		item.HTML = "<p>Body of " + slug + "</p>"
		if fn != nil {
			fn(&item)
		}
		return item
	}

	return []content.Item{
		with(1, "hello-world", func(i *content.Item) {
			i.Title = "Hello World"
			i.HTML = "<p>Hello <strong>Markdown</strong>.</p>"
			i.Categories = []string{"News"}
		}),
		with(2, "about", func(i *content.Item) { i.Type = "page" }),
		with(3, "draft", func(i *content.Item) { i.Status = "draft" }),
		with(4, "protected", func(i *content.Item) { i.Password = "secret" }),
		with(5, "opted-out", func(i *content.Item) { i.MarkdownDisabled = true }),
		with(6, "widget", func(i *content.Item) {
			i.Type = "product"
			i.Attributes = map[string]string{"price": "9.99", "sku": "W-1"}
		}),
		with(7, "logo", func(i *content.Item) { i.Type = "attachment" }),
	}
}

// NewFixtureRepository returns a memory repository with FixtureItems.
func NewFixtureRepository() *content.MemoryRepository {
	return content.NewMemoryRepository(FixtureItems()...)
}
