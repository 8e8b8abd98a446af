// Package testutil provides fakes and fixtures for markdown-negotiation tests.
package testutil

import (
	"context"
	"errors"
	"strings"
	"sync"

	"github.com/Sternrassler/markdown-negotiation/pkg/converter"
)

// ErrConversion is returned by a MockConverter set to fail.
var ErrConversion = errors.New("mock conversion failed")

// MockConverter is a configurable converter that records its calls.
type MockConverter struct {
	mu sync.Mutex

	// Fail makes Convert return ErrConversion.
	Fail bool
	// Unavailable makes Available report false.
	Unavailable bool
	// Transform replaces the default conversion.
	Transform func(html string) string

	// Tracking
	Calls    int
	LastHTML string
}

// NewMockConverter returns a converter that strips tags and prefixes "# ".
func NewMockConverter() *MockConverter {
	return &MockConverter{}
}

func (m *MockConverter) Convert(ctx context.Context, html string) (string, error) {
	m.mu.Lock()
	m.Calls++
	m.LastHTML = html
	fail, transform := m.Fail, m.Transform
	m.mu.Unlock()

	if err := ctx.Err(); err != nil {
		return "", err
	}
	if fail {
		return "", ErrConversion
	}
	if transform != nil {
		return transform(html), nil
	}
	return converter.PostProcess(stripTags(html)), nil
}

func (m *MockConverter) Available() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return !m.Unavailable
}

func (m *MockConverter) Name() string { return "mock" }

// CallCount returns the number of Convert calls.
func (m *MockConverter) CallCount() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.Calls
}

// SetFail toggles failure.
func (m *MockConverter) SetFail(fail bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.Fail = fail
}

func stripTags(html string) string {
	var b strings.Builder
	inTag := false
	for _, r := range html {
		switch {
		case r == '<':
			inTag = true
		case r == '>':
			inTag = false
			b.WriteByte('\n')
		case !inTag:
			b.WriteRune(r)
		}
	}
	return b.String()
}
