package access

import (
	"errors"
	"testing"
	"time"

	"github.com/Sternrassler/markdown-negotiation/pkg/content"
	"github.com/Sternrassler/markdown-negotiation/pkg/settings"
)

func TestChecker_Check(t *testing.T) {
	published := content.Item{
		ID:       1,
		Title:    "Hello",
		Slug:     "hello",
		Type:     "post",
		Status:   content.StatusPublish,
		Modified: time.Now(),
	}

	with := func(fn func(*content.Item)) content.Item {
		item := published
		fn(&item)
		return item
	}

	tests := []struct {
		name     string
		item     content.Item
		password string
		settings func(*settings.Settings)
		wantErr  error
	}{
		{
			name: "published post",
			item: published,
		},
		{
			name:    "draft",
			item:    with(func(i *content.Item) { i.Status = "draft" }),
			wantErr: ErrNotPublished,
		},
		{
			name:    "password without header",
			item:    with(func(i *content.Item) { i.Password = "secret" }),
			wantErr: ErrPasswordRequired,
		},
		{
			name:     "password wrong",
			item:     with(func(i *content.Item) { i.Password = "secret" }),
			password: "guess",
			wantErr:  ErrPasswordRequired,
		},
		{
			name:     "password matches",
			item:     with(func(i *content.Item) { i.Password = "secret" }),
			password: "secret",
		},
		{
			name:    "opted out",
			item:    with(func(i *content.Item) { i.MarkdownDisabled = true }),
			wantErr: ErrMarkdownDisabled,
		},
		{
			name:    "type not enabled",
			item:    with(func(i *content.Item) { i.Type = "attachment" }),
			wantErr: ErrTypeNotAllowed,
		},
		{
			name: "product with woocommerce",
			item: with(func(i *content.Item) { i.Type = settings.ProductType }),
		},
		{
			name:     "product without woocommerce",
			item:     with(func(i *content.Item) { i.Type = settings.ProductType }),
			settings: func(s *settings.Settings) { s.WooCommerce = false },
			wantErr:  ErrTypeNotAllowed,
		},
		{
			name:    "status checked before opt out",
			item:    with(func(i *content.Item) { i.Status = "private"; i.MarkdownDisabled = true }),
			wantErr: ErrNotPublished,
		},
	}

	checker := NewChecker()
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			s := settings.Default()
			if tt.settings != nil {
				tt.settings(&s)
			}

			err := checker.Check(tt.item, tt.password, s)
			if !errors.Is(err, tt.wantErr) {
				t.Errorf("Check() error = %v, want %v", err, tt.wantErr)
			}
			if tt.wantErr != nil && !IsDenied(err) {
				t.Errorf("IsDenied(%v) = false, want true", err)
			}
		})
	}
}

func TestIsDenied_OtherErrors(t *testing.T) {
	if IsDenied(errors.New("boom")) {
		t.Error("IsDenied() = true for unrelated error")
	}
	if IsDenied(nil) {
		t.Error("IsDenied(nil) = true")
	}
}
