// Package settings holds the runtime switches that govern Markdown delivery.
// Consumers read immutable snapshots; writers publish a new snapshot.
package settings

import (
	"slices"

	validation "github.com/go-ozzo/ozzo-validation/v4"
)

// Cache driver names accepted by Settings.CacheDriver.
const (
	DriverAuto      = "auto"
	DriverObject    = "object"
	DriverTransient = "transient"
	DriverFile      = "file"
	DriverMemory    = "memory"
)

// ProductType is the content type gated by the WooCommerce switch.
const ProductType = "product"

// Settings is one snapshot of the runtime configuration.
type Settings struct {
	Enabled      bool     `yaml:"enabled" json:"enabled"`
	EndpointMD   bool     `yaml:"endpoint_md" json:"endpoint_md"`
	QueryFormat  bool     `yaml:"query_format" json:"query_format"`
	PostTypes    []string `yaml:"post_types" json:"post_types"`
	WooCommerce  bool     `yaml:"woocommerce" json:"woocommerce"`
	RESTMarkdown bool     `yaml:"rest_markdown" json:"rest_markdown"`
	TokenHeader  bool     `yaml:"token_header" json:"token_header"`

	CacheEnabled bool   `yaml:"cache_enabled" json:"cache_enabled"`
	CacheDriver  string `yaml:"cache_driver" json:"cache_driver"`
	// CacheTTL is in seconds; 0 disables time-based expiry.
	CacheTTL int `yaml:"cache_ttl" json:"cache_ttl"`

	RateLimitEnabled  bool `yaml:"rate_limit_enabled" json:"rate_limit_enabled"`
	RateLimitRequests int  `yaml:"rate_limit_requests" json:"rate_limit_requests"`
	// RateLimitWindow is in seconds.
	RateLimitWindow int `yaml:"rate_limit_window" json:"rate_limit_window"`
}

// Default returns the settings used when nothing is configured.
func Default() Settings {
	return Settings{
		Enabled:           true,
		EndpointMD:        false,
		QueryFormat:       true,
		PostTypes:         []string{"post", "page"},
		WooCommerce:       true,
		RESTMarkdown:      true,
		TokenHeader:       true,
		CacheEnabled:      true,
		CacheDriver:       DriverAuto,
		CacheTTL:          3600,
		RateLimitEnabled:  false,
		RateLimitRequests: 60,
		RateLimitWindow:   60,
	}
}

// Validate checks value ranges and the driver name.
func (s Settings) Validate() error {
	return validation.ValidateStruct(&s,
		validation.Field(&s.PostTypes, validation.Required, validation.Each(validation.Required)),
		validation.Field(&s.CacheDriver, validation.Required,
			validation.In(DriverAuto, DriverObject, DriverTransient, DriverFile, DriverMemory)),
		validation.Field(&s.CacheTTL, validation.Min(0)),
		validation.Field(&s.RateLimitRequests, validation.Required, validation.Min(1)),
		validation.Field(&s.RateLimitWindow, validation.Required, validation.Min(1)),
	)
}

// AllowsType reports whether content of the given type may be served as
// Markdown. Products are only served while the WooCommerce switch is on.
func (s Settings) AllowsType(contentType string) bool {
	if contentType == ProductType {
		return s.WooCommerce
	}
	return slices.Contains(s.PostTypes, contentType)
}

// EnabledTypes returns PostTypes plus product when the WooCommerce switch is on.
func (s Settings) EnabledTypes() []string {
	types := slices.Clone(s.PostTypes)
	if s.WooCommerce && !slices.Contains(types, ProductType) {
		types = append(types, ProductType)
	}
	return types
}

// Clone returns a deep copy.
func (s Settings) Clone() Settings {
	s.PostTypes = slices.Clone(s.PostTypes)
	return s
}
