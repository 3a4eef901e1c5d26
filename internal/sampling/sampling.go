// Package sampling implements the deterministic admission predicate of
// spec.md §4.3.
package sampling

import (
	"encoding/hex"

	"github.com/eventplatform/epc/internal/eventmodel"
)

// InSample decides whether an event anchored to token should be admitted.
// It is a pure function of (token, cfg): same inputs, same output, always.
//
// If cfg is nil or specifies neither OneInEvery nor Rate, every event is
// admitted. Otherwise the first 8 hex characters of token are parsed as an
// unsigned 32-bit integer t:
//   - OneInEvery (if set) takes precedence: admit iff t mod OneInEvery == 0.
//   - Rate (in [0,1]) admits iff t / 2^32 < Rate.
//
// A token shorter than 8 hex characters, or one that fails to parse, is
// treated as never in-sample rather than panicking — malformed identifiers
// should fail closed.
func InSample(token string, cfg *eventmodel.SampleConfig) bool {
	if cfg == nil || (cfg.OneInEvery == nil && cfg.Rate == nil) {
		return true
	}

	t, ok := first32Bits(token)
	if !ok {
		return false
	}

	if cfg.OneInEvery != nil {
		n := *cfg.OneInEvery
		if n == 0 {
			return false
		}
		return uint64(t)%n == 0
	}

	return float64(t)/4294967296.0 < *cfg.Rate
}

// first32Bits parses the first 8 hex characters of token as a uint32.
func first32Bits(token string) (uint32, bool) {
	if len(token) < 8 {
		return 0, false
	}
	b, err := hex.DecodeString(token[:8])
	if err != nil || len(b) != 4 {
		return 0, false
	}
	return uint32(b[0])<<24 | uint32(b[1])<<16 | uint32(b[2])<<8 | uint32(b[3]), true
}
