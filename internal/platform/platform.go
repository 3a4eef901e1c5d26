// Package platform holds the small host collaborators the core consumes
// that aren't persistence or transport: the clock, the random identifier
// source, and the do-not-track signal (spec.md §6).
package platform

import (
	"crypto/rand"
	"encoding/hex"
	"fmt"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
)

// Clock supplies the current instant. Tests substitute a fixed clock so
// meta.dt assertions are deterministic.
type Clock interface {
	Now() time.Time
}

// SystemClock is the default Clock, backed by time.Now.
type SystemClock struct{}

func (SystemClock) Now() time.Time { return time.Now().UTC() }

// NowISO8601 formats t the way spec.md §6's now_iso_8601 collaborator must:
// an ISO-8601 UTC timestamp.
func NowISO8601(c Clock) string {
	return c.Now().UTC().Format(time.RFC3339Nano)
}

// IDGenerator produces the two identifier shapes spec.md §6 requires:
// 20-hex-digit random ids (pageview/session) and RFC 4122 v4 UUIDs
// (meta.id).
type IDGenerator interface {
	// GenerateID returns 20 lowercase hex characters from 80 random bits.
	GenerateID() (string, error)
	// GenerateUUIDV4 returns a canonical UUID v4 string.
	GenerateUUIDV4() (string, error)
}

// SystemIDGenerator is the default IDGenerator, backed by crypto/rand and
// google/uuid.
type SystemIDGenerator struct{}

func (SystemIDGenerator) GenerateID() (string, error) {
	var buf [10]byte // 80 bits
	if _, err := rand.Read(buf[:]); err != nil {
		return "", fmt.Errorf("generate id: %w", err)
	}
	return hex.EncodeToString(buf[:]), nil
}

func (SystemIDGenerator) GenerateUUIDV4() (string, error) {
	id, err := uuid.NewRandom()
	if err != nil {
		return "", fmt.Errorf("generate uuid: %w", err)
	}
	return id.String(), nil
}

// DNTSignal reports the platform's do-not-track state.
// (client_cannot_be_tracked in spec.md §4.1 step 5 / §6).
type DNTSignal interface {
	ClientCannotBeTracked() bool
}

// StaticDNT is a DNTSignal with a fixed value, useful for tests and for
// hosts with no live signal.
type StaticDNT bool

func (s StaticDNT) ClientCannotBeTracked() bool { return bool(s) }

// ToggleDNT is a concurrency-safe DNTSignal a host can flip at runtime
// (e.g. from a settings screen). The demo host sets it once from
// --default-dnt and never flips it afterwards.
type ToggleDNT struct {
	v atomic.Bool
}

// NewToggleDNT creates a ToggleDNT with the given initial state.
func NewToggleDNT(initial bool) *ToggleDNT {
	t := &ToggleDNT{}
	t.v.Store(initial)
	return t
}

func (t *ToggleDNT) ClientCannotBeTracked() bool { return t.v.Load() }

// Set updates the signal.
func (t *ToggleDNT) Set(v bool) { t.v.Store(v) }
