// Package registry implements the Stream Config Registry and Cascade Graph
// of spec.md §4.5, plus the deferred input buffer of spec.md §4.1 step 2.
package registry

import (
	"sort"
	"strings"
	"sync"

	"github.com/eventplatform/epc/internal/eventmodel"
)

// Registry is write-once per key: a second Configure call for an
// already-known name does not overwrite it. The cascade graph is recomputed
// from scratch after every Configure.
type Registry struct {
	mu      sync.RWMutex
	streams map[string]eventmodel.StreamConfig
	cascade map[string][]string
}

// New returns an empty Registry.
func New() *Registry {
	return &Registry{
		streams: make(map[string]eventmodel.StreamConfig),
		cascade: make(map[string][]string),
	}
}

// Configure merges cfg into the registry, skipping any name already
// present, then fully recomputes the cascade graph.
func (r *Registry) Configure(cfg map[string]eventmodel.StreamConfig) {
	r.mu.Lock()
	defer r.mu.Unlock()

	for name, sc := range cfg {
		if _, exists := r.streams[name]; exists {
			continue
		}
		r.streams[name] = sc
	}

	r.recomputeCascadeLocked()
}

// recomputeCascadeLocked rebuilds cascade[x] = {y | y starts_with x+"."}
// by a single nested pass over the registry keys, per spec.md §4.5.
func (r *Registry) recomputeCascadeLocked() {
	names := make([]string, 0, len(r.streams))
	for name := range r.streams {
		names = append(names, name)
	}
	sort.Strings(names)

	cascade := make(map[string][]string, len(names))
	for _, x := range names {
		prefix := x + "."
		var children []string
		for _, y := range names {
			if strings.HasPrefix(y, prefix) {
				children = append(children, y)
			}
		}
		if children != nil {
			cascade[x] = children
		}
	}
	r.cascade = cascade
}

// Lookup returns the config for name and whether it is registered.
func (r *Registry) Lookup(name string) (eventmodel.StreamConfig, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	sc, ok := r.streams[name]
	return sc, ok
}

// Children returns the cascade of name: every registered stream whose name
// starts with name+".", nested descendants included, in sorted order.
func (r *Registry) Children(name string) []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return append([]string(nil), r.cascade[name]...)
}
