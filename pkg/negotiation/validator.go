// Package negotiation parses and ranks HTTP Accept headers and decides whether
// a client prefers a Markdown representation over HTML.
package negotiation

// MaxAcceptLength is the longest Accept header that is processed at all.
const MaxAcceptLength = 1024

// ValidateAccept reports whether raw is safe to hand to the negotiator.
// Empty headers are valid; absence is not an error at this layer.
func ValidateAccept(raw string) bool {
	if len(raw) > MaxAcceptLength {
		return false
	}

	for i := 0; i < len(raw); i++ {
		c := raw[i]
		// NUL is outside the printable range, so this also rejects null bytes.
		if c < 0x20 || c > 0x7E {
			return false
		}
	}

	return true
}
