package content

import (
	"fmt"
	"html"
	"sort"
	"strings"
)

// ExtractOptions controls which parts of an item are assembled for conversion.
type ExtractOptions struct {
	IncludeTitle   bool
	IncludeMeta    bool
	IncludeExcerpt bool
}

// DefaultExtractOptions includes the title and the meta block, not the excerpt.
func DefaultExtractOptions() ExtractOptions {
	return ExtractOptions{IncludeTitle: true, IncludeMeta: true}
}

// productFields are rendered, in this order, in the product details block.
var productFields = []struct{ key, label string }{
	{"price", "Price"},
	{"sku", "SKU"},
	{"availability", "Availability"},
}

// Extract assembles the HTML document handed to the converter.
func Extract(item Item, opts ExtractOptions) string {
	var b strings.Builder

	if opts.IncludeTitle {
		fmt.Fprintf(&b, "<h1>%s</h1>", html.EscapeString(item.Title))
	}
	if opts.IncludeMeta {
		b.WriteString(metaHTML(item))
	}
	if opts.IncludeExcerpt && item.Excerpt != "" {
		fmt.Fprintf(&b, "<blockquote>%s</blockquote>", html.EscapeString(item.Excerpt))
	}

	b.WriteString(item.HTML)

	if item.Type == "product" {
		b.WriteString(productHTML(item))
	}

	return b.String()
}

func metaHTML(item Item) string {
	lines := make([]string, 0, 5)
	if item.Author != "" {
		lines = append(lines, "Author: "+html.EscapeString(item.Author))
	}

	published := item.Published.Format("2006-01-02")
	if !item.Published.IsZero() {
		lines = append(lines, "Published: "+published)
	}
	if modified := item.Modified.Format("2006-01-02"); !item.Modified.IsZero() && modified != published {
		lines = append(lines, "Modified: "+modified)
	}
	if len(item.Categories) > 0 {
		lines = append(lines, "Categories: "+html.EscapeString(strings.Join(item.Categories, ", ")))
	}
	if len(item.Tags) > 0 {
		lines = append(lines, "Tags: "+html.EscapeString(strings.Join(item.Tags, ", ")))
	}

	if len(lines) == 0 {
		return ""
	}
	return "<p>" + strings.Join(lines, "<br>") + "</p>"
}

func productHTML(item Item) string {
	if len(item.Attributes) == 0 {
		return ""
	}

	var b strings.Builder
	b.WriteString("<hr><h2>Product Details</h2>")

	seen := map[string]bool{}
	for _, f := range productFields {
		if v := item.Attributes[f.key]; v != "" {
			fmt.Fprintf(&b, "<p><strong>%s:</strong> %s</p>", f.label, html.EscapeString(v))
		}
		seen[f.key] = true
	}

	// Remaining attributes in stable order.
	var rest []string
	for k := range item.Attributes {
		if !seen[k] {
			rest = append(rest, k)
		}
	}
	sort.Strings(rest)
	for _, k := range rest {
		fmt.Fprintf(&b, "<p><strong>%s:</strong> %s</p>", html.EscapeString(k), html.EscapeString(item.Attributes[k]))
	}

	return b.String()
}
