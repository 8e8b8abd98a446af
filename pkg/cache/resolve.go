package cache

import (
	"context"

	"github.com/rs/zerolog"
)

// Drivers holds the constructed backends. Object and Transient are nil when
// their servers are not configured; File is always set.
type Drivers struct {
	Object    Store
	Transient Store
	File      Store
	Memory    Store
}

// Resolve picks the store for the configured driver name once at startup.
// "auto" prefers the object cache, then the durable store, then files. An
// explicitly named driver that is missing or unreachable falls back to auto.
func Resolve(ctx context.Context, driver string, d Drivers, logger zerolog.Logger) Store {
	if d.File == nil {
		panic("file cache driver is required")
	}

	var chosen Store
	switch driver {
	case "object":
		chosen = d.Object
	case "transient":
		chosen = d.Transient
	case "file":
		chosen = d.File
	case "memory":
		chosen = d.Memory
	}
	if chosen != nil && chosen.Available(ctx) {
		logger.Info().Str("driver", chosen.Name()).Msg("Cache driver selected")
		return chosen
	}
	if driver != "auto" && driver != "" {
		logger.Warn().Str("requested", driver).Msg("Requested cache driver unavailable, using auto selection")
	}

	for _, candidate := range []Store{d.Object, d.Transient} {
		if candidate != nil && candidate.Available(ctx) {
			logger.Info().Str("driver", candidate.Name()).Msg("Cache driver selected")
			return candidate
		}
	}

	logger.Info().Str("driver", d.File.Name()).Msg("Cache driver selected")
	return d.File
}
