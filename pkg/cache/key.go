package cache

import (
	"strconv"
)

// KeyPrefix starts every Markdown cache key.
const KeyPrefix = "md_"

// Variant suffixes used by the delivery surfaces.
const (
	// VariantPage is the negotiated and alternate-route rendering.
	VariantPage = ""
	// VariantREST is the rendering embedded in JSON API responses.
	VariantREST = "rest"
)

// Variants lists every suffix that invalidation must clear.
var Variants = []string{VariantPage, VariantREST}

// BuildKey returns "md_<id>" or "md_<id>_<suffix>".
func BuildKey(contentID int64, suffix string) string {
	key := KeyPrefix + strconv.FormatInt(contentID, 10)
	if suffix != "" {
		key += "_" + suffix
	}
	return key
}
