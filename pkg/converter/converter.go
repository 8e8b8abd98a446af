// Package converter turns extracted HTML into Markdown text.
package converter

import (
	"context"
	"errors"
	"fmt"
	"html"
	"math"
	"regexp"
	"strings"
	"unicode/utf8"

	md "github.com/JohannesKaufmann/html-to-markdown"
)

// ErrUnavailable is returned by converters that cannot run.
var ErrUnavailable = errors.New("converter unavailable")

// Name reported by HTMLConverter.
const Name = "html-to-markdown"

// Converter is the conversion boundary used by the delivery pipeline.
type Converter interface {
	Convert(ctx context.Context, html string) (string, error)
	Available() bool
	Name() string
}

// removedElements are dropped together with their content before conversion.
var removedElements = []string{"script", "style", "nav", "footer", "header", "aside", "form"}

var (
	commentPattern    = regexp.MustCompile(`(?s)<!--.*?-->`)
	emptyLinkPattern  = regexp.MustCompile(`\[([^\]]*)\]\(\s*\)`)
	extraBlankPattern = regexp.MustCompile(`\n{3,}`)
)

// HTMLConverter converts with ATX headings and "-" list markers.
type HTMLConverter struct {
	conv *md.Converter
}

// NewHTMLConverter returns a ready converter.
func NewHTMLConverter() *HTMLConverter {
	conv := md.NewConverter("", true, &md.Options{
		HeadingStyle:     "atx",
		BulletListMarker: "-",
		CodeBlockStyle:   "fenced",
	})
	conv.Remove(removedElements...)
	return &HTMLConverter{conv: conv}
}

// Convert returns normalised Markdown for the given HTML fragment.
func (c *HTMLConverter) Convert(ctx context.Context, input string) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}
	out, err := c.conv.ConvertString(input)
	if err != nil {
		return "", fmt.Errorf("convert html: %w", err)
	}
	return PostProcess(out), nil
}

func (c *HTMLConverter) Available() bool { return c.conv != nil }

func (c *HTMLConverter) Name() string { return Name }

// PostProcess cleans converter output: HTML comments and leftover entities
// are removed, empty links unwrapped and runs of blank lines collapsed. The
// result ends with exactly one newline, or is empty.
func PostProcess(markdown string) string {
	markdown = commentPattern.ReplaceAllString(markdown, "")
	markdown = html.UnescapeString(markdown)
	markdown = emptyLinkPattern.ReplaceAllString(markdown, "$1")
	markdown = strings.ReplaceAll(markdown, "\r\n", "\n")
	markdown = extraBlankPattern.ReplaceAllString(markdown, "\n\n")
	markdown = strings.TrimSpace(markdown)
	if markdown == "" {
		return ""
	}
	return markdown + "\n"
}

// EstimateTokens approximates the LLM token count as one token per four
// characters, rounded up.
func EstimateTokens(text string) int {
	n := utf8.RuneCountInString(text)
	if n == 0 {
		return 0
	}
	return int(math.Ceil(float64(n) / 4))
}
