// Package dispatcher implements the Stream Dispatcher of spec.md §4.1: the
// log/configure contract that gates, enriches, and hands events to the
// output buffer.
package dispatcher

import (
	"sync"

	"github.com/eventplatform/epc/internal/association"
	"github.com/eventplatform/epc/internal/eventmodel"
	"github.com/eventplatform/epc/internal/outputqueue"
	"github.com/eventplatform/epc/internal/platform"
	"github.com/eventplatform/epc/internal/registry"
	"github.com/eventplatform/epc/internal/sampling"
)

// SerialisationErrorHandler receives events that fail to marshal to JSON
// (spec.md §7 SerialisationError). The default is a no-op; a host wires
// its own error-reporting channel through this hook.
type SerialisationErrorHandler func(stream string, err error)

// OrphanedEventFilter is the extension point spec.md §9 leaves
// unspecified: a predicate a host can supply to drop events whose stream
// is in an "orphaned" state tied to unfinished start-state tracking. Left
// nil by default, meaning no event is ever treated as orphaned.
type OrphanedEventFilter func(stream string, data eventmodel.Event) bool

// Dispatcher wires the registry, association controller, sampling
// predicate, and output buffer together. All exported methods are safe to
// call concurrently, though spec.md §5 only requires the single
// confinement the owning Client already provides.
type Dispatcher struct {
	registry  *registry.Registry
	assoc     *association.Controller
	output    *outputqueue.Queue
	dnt       platform.DNTSignal
	clock     platform.Clock
	ids       platform.IDGenerator
	deferredQ registry.DeferredQueue

	mu sync.Mutex

	OnSerialisationError SerialisationErrorHandler
	OrphanFilter         OrphanedEventFilter
}

// New builds a Dispatcher from its collaborators. deferredQ may be nil, in
// which case a FIFODeferredQueue is created.
func New(reg *registry.Registry, assoc *association.Controller, output *outputqueue.Queue, dnt platform.DNTSignal, clock platform.Clock, ids platform.IDGenerator, deferredQ registry.DeferredQueue) *Dispatcher {
	if deferredQ == nil {
		deferredQ = registry.NewFIFODeferredQueue()
	}
	return &Dispatcher{
		registry:  reg,
		assoc:     assoc,
		output:    output,
		dnt:       dnt,
		clock:     clock,
		ids:       ids,
		deferredQ: deferredQ,
	}
}

// Configure merges cfg into the registry, recomputes the cascade graph,
// then attempts to drain the deferred input buffer by re-invoking Log on
// each entry (spec.md §4.1, §4.5).
func (d *Dispatcher) Configure(cfg map[string]eventmodel.StreamConfig) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.registry.Configure(cfg)
	d.drainDeferredLocked()
}

// drainDeferredLocked re-plays every buffered entry through logLocked.
// Entries whose stream is still unconfigured land back in the buffer via
// logLocked's own deferral step, so this pass must only run the queue's
// current length once (the best-effort re-drain of spec.md §4.1).
func (d *Dispatcher) drainDeferredLocked() {
	pending := d.deferredQ.Len()
	for i := 0; i < pending; i++ {
		entry, ok := d.deferredQ.Dequeue()
		if !ok {
			return
		}
		d.logLocked(entry.Stream, entry.Data, true)
	}
}

// Log is the public entry point implementing the 9-step contract of
// spec.md §4.1.
func (d *Dispatcher) Log(stream string, data eventmodel.Event) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.logLocked(stream, data, true)
}

// logLocked runs the contract for one stream. cascade is false for a
// cascade child: Children already lists every descendant, so a child must
// not cascade again or nested descendants would receive duplicate copies.
func (d *Dispatcher) logLocked(stream string, data eventmodel.Event, cascade bool) {
	// Step 1: timestamp capture, once per event object.
	if !data.HasMeta() {
		data["meta"] = map[string]any{"dt": platform.NowISO8601(d.clock)}
	}

	// Step 2: deferral.
	cfg, known := d.registry.Lookup(stream)
	if !known {
		d.deferredQ.Enqueue(registry.DeferredEntry{Stream: stream, Data: map[string]any(data)})
		return
	}

	// Step 3: cascade, parent-then-child, before this stream's own gates.
	if cascade {
		for _, child := range d.registry.Children(stream) {
			d.logLocked(child, data.Clone(), false)
		}
	}

	if d.OrphanFilter != nil && d.OrphanFilter(stream, data) {
		return
	}

	// Step 4: availability gate. A stream that is unavailable or marked
	// inactive never reaches output.schedule.
	if !cfg.ResolvedIsAvailable() || !cfg.ResolvedActive() {
		return
	}

	// Step 5: do-not-track gate.
	if d.dnt != nil && d.dnt.ClientCannotBeTracked() && !cfg.ResolvedIsPrivate() {
		return
	}

	// Step 6: scope resolution.
	scope := cfg.ResolvedScope()
	scopeID, err := d.assoc.ScopeID(string(scope))
	if err != nil {
		return
	}

	// Step 7: sampling gate.
	if !sampling.InSample(scopeID, cfg.Sample) {
		return
	}

	// Step 8: enrichment.
	id, err := d.ids.GenerateUUIDV4()
	if err != nil {
		return
	}
	meta := data.Meta()
	meta["id"] = id
	meta["stream"] = stream
	data["$schema"] = cfg.Schema

	if !cfg.ResolvedIsPrivate() {
		pageviewID, err := d.assoc.PageviewID()
		if err != nil {
			return
		}
		sessionID, err := d.assoc.SessionID()
		if err != nil {
			return
		}
		activityID, err := d.assoc.ActivityID(stream, scopeID)
		if err != nil {
			return
		}
		data["pageview_id"] = pageviewID
		data["session_id"] = sessionID
		data["activity_id"] = activityID
	}

	// Step 9: dispatch.
	body, err := data.MarshalCanonical()
	if err != nil {
		if d.OnSerialisationError != nil {
			d.OnSerialisationError(stream, err)
		}
		return
	}
	d.output.Schedule(cfg.Destination, body)
}
