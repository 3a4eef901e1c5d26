// Package eventmodel holds the data shapes of spec.md §3: events, stream
// configs, and the sampling sub-config.
package eventmodel

import "encoding/json"

// Event is the unordered key/value map of application-supplied fields plus
// the reserved "meta" sub-map and "$schema". It is mutated in place by the
// dispatcher during enrichment (spec.md §4.1) and is never touched again
// once serialised.
type Event map[string]any

// Meta returns the event's "meta" sub-map, creating it if absent.
func (e Event) Meta() map[string]any {
	m, ok := e["meta"].(map[string]any)
	if !ok {
		m = make(map[string]any)
		e["meta"] = m
	}
	return m
}

// HasMeta reports whether the event already carries a "meta" field,
// regardless of shape. The dispatcher only stamps dt when this is false
// (spec.md §4.1 step 1).
func (e Event) HasMeta() bool {
	_, ok := e["meta"]
	return ok
}

// Clone returns a shallow duplicate of e, sufficient to stop a cascade
// child's mutations leaking back into the parent's event object (spec.md
// §4.1 step 3). "meta" is deep-copied one level so dt assigned on the
// original is preserved but not aliased.
func (e Event) Clone() Event {
	out := make(Event, len(e))
	for k, v := range e {
		if k == "meta" {
			if m, ok := v.(map[string]any); ok {
				mc := make(map[string]any, len(m))
				for mk, mv := range m {
					mc[mk] = mv
				}
				out[k] = mc
				continue
			}
		}
		out[k] = v
	}
	return out
}

// MarshalCanonical serialises the event to its wire-format JSON string
// (spec.md §6). Errors here are the SerialisationError of spec.md §7:
// fatal for this one event only.
func (e Event) MarshalCanonical() (string, error) {
	b, err := json.Marshal(map[string]any(e))
	if err != nil {
		return "", err
	}
	return string(b), nil
}

// SampleConfig is the "sample" sub-object of a stream config (spec.md §4.3).
// The prototype this module replaces is inconsistent about using "rate" (a
// float in [0,1]) or "one_in_every" (an integer); this module accepts both,
// with OneInEvery taking precedence when both are set (decided in
// SPEC_FULL.md §5.1).
type SampleConfig struct {
	Rate        *float64 `json:"rate,omitempty"`
	OneInEvery  *uint64  `json:"one_in_every,omitempty"`
}

// StreamScope is the identity lifetime a stream is anchored against.
type StreamScope string

const (
	ScopeSession  StreamScope = "session"
	ScopePageview StreamScope = "pageview"
)

// StreamConfig is a single stream's configuration (spec.md §3). Zero values
// match the documented defaults: Scope defaults to pageview, IsAvailable
// defaults to true, IsPrivate and Active default to false/true respectively
// — see ResolvedScope/ResolvedIsAvailable below, since Go zero values for
// bool can't distinguish "unset" from "false".
type StreamConfig struct {
	Destination string        `json:"destination"`
	Schema      string        `json:"$schema"`
	Scope       StreamScope   `json:"scope,omitempty"`
	Sample      *SampleConfig `json:"sample,omitempty"`
	IsAvailable *bool         `json:"is_available,omitempty"`
	IsPrivate   *bool         `json:"is_private,omitempty"`
	Active      *bool         `json:"active,omitempty"`
}

// ResolvedScope returns cfg.Scope, defaulting to pageview when unset
// (spec.md §3, §4.1 step 6).
func (cfg StreamConfig) ResolvedScope() StreamScope {
	if cfg.Scope == "" {
		return ScopePageview
	}
	return cfg.Scope
}

// ResolvedIsAvailable returns cfg.IsAvailable, defaulting to true.
func (cfg StreamConfig) ResolvedIsAvailable() bool {
	if cfg.IsAvailable == nil {
		return true
	}
	return *cfg.IsAvailable
}

// ResolvedIsPrivate returns cfg.IsPrivate, defaulting to false.
func (cfg StreamConfig) ResolvedIsPrivate() bool {
	return cfg.IsPrivate != nil && *cfg.IsPrivate
}

// ResolvedActive returns cfg.Active, defaulting to true.
func (cfg StreamConfig) ResolvedActive() bool {
	if cfg.Active == nil {
		return true
	}
	return *cfg.Active
}
