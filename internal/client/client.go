// Package client exposes the public surface of the event platform client:
// a single owning object holding the dispatcher, association controller,
// output buffer, and stream registry (spec.md §9 Design Note "global
// controllers as singletons").
package client

import (
	"time"

	"github.com/eventplatform/epc/internal/association"
	"github.com/eventplatform/epc/internal/dispatcher"
	"github.com/eventplatform/epc/internal/eventmodel"
	"github.com/eventplatform/epc/internal/outputqueue"
	"github.com/eventplatform/epc/internal/platform"
	"github.com/eventplatform/epc/internal/registry"
	"github.com/eventplatform/epc/internal/store"
	"github.com/eventplatform/epc/internal/transport"
)

// Client is the single entry point an embedding application talks to. It
// owns every sub-component and exposes the public API of spec.md §6. Tests
// and alternate hosts substitute collaborators via Options rather than
// reaching into the struct.
type Client struct {
	assoc      *association.Controller
	output     *outputqueue.Queue
	registry   *registry.Registry
	dispatcher *dispatcher.Dispatcher
}

// Options configures the collaborators a Client is built from. Every field
// has a production-grade default; tests override individual fields (e.g. a
// fixed Clock or an in-memory Store) through New(WithX(...)).
type Options struct {
	Store     store.KVStore
	IDs       platform.IDGenerator
	Clock     platform.Clock
	DNT       platform.DNTSignal
	Poster    transport.Poster
	DeferredQ registry.DeferredQueue
	WaitItems int
	WaitDelay time.Duration
}

// Option mutates Options during construction.
type Option func(*Options)

// WithStore overrides the persistent key/value store (default: an
// in-process MemStore, which does not survive restart — production hosts
// should supply a SQLiteStore).
func WithStore(s store.KVStore) Option { return func(o *Options) { o.Store = s } }

// WithIDGenerator overrides the identifier generator.
func WithIDGenerator(g platform.IDGenerator) Option { return func(o *Options) { o.IDs = g } }

// WithClock overrides the clock used for meta.dt.
func WithClock(c platform.Clock) Option { return func(o *Options) { o.Clock = c } }

// WithDNT overrides the do-not-track signal.
func WithDNT(d platform.DNTSignal) Option { return func(o *Options) { o.DNT = d } }

// WithPoster overrides the HTTP transport.
func WithPoster(p transport.Poster) Option { return func(o *Options) { o.Poster = p } }

// WithDeferredQueue overrides the deferred input buffer.
func WithDeferredQueue(q registry.DeferredQueue) Option {
	return func(o *Options) { o.DeferredQ = q }
}

// WithBurstParams overrides WAIT_ITEMS/WAIT_MS (spec.md §4.4).
func WithBurstParams(waitItems int, waitDelay time.Duration) Option {
	return func(o *Options) { o.WaitItems, o.WaitDelay = waitItems, waitDelay }
}

// New builds a Client with production defaults, overridden by opts.
func New(opts ...Option) *Client {
	o := &Options{
		Store:     store.NewMemStore(),
		IDs:       platform.SystemIDGenerator{},
		Clock:     platform.SystemClock{},
		DNT:       platform.StaticDNT(false),
		Poster:    transport.NewHTTPPoster(),
		WaitItems: outputqueue.DefaultWaitItems,
		WaitDelay: outputqueue.DefaultWaitMS * time.Millisecond,
	}
	for _, opt := range opts {
		opt(o)
	}

	assoc := association.New(o.Store, o.IDs)
	output := outputqueue.New(o.Poster).WithParams(o.WaitItems, o.WaitDelay)
	reg := registry.New()
	d := dispatcher.New(reg, assoc, output, o.DNT, o.Clock, o.IDs, o.DeferredQ)

	return &Client{assoc: assoc, output: output, registry: reg, dispatcher: d}
}

// Log submits an application event to stream (spec.md §4.1, §6).
func (c *Client) Log(stream string, data map[string]any) {
	c.dispatcher.Log(stream, eventmodel.Event(data))
}

// Configure registers stream configs (write-once per name) and drains the
// deferred input buffer (spec.md §4.1, §4.5, §6).
func (c *Client) Configure(config map[string]eventmodel.StreamConfig) {
	c.dispatcher.Configure(config)
}

// BeginNewSession resets session, pageview, and activity-table state
// (spec.md §4.2, §6).
func (c *Client) BeginNewSession() error {
	return c.assoc.BeginNewSession()
}

// BeginNewActivity clears stream's activity entry only (spec.md §4.2, §6).
func (c *Client) BeginNewActivity(stream string) error {
	return c.assoc.BeginNewActivity(stream)
}

// EnableSending resumes the output buffer, flushing anything queued while
// disabled (spec.md §4.4, §6).
func (c *Client) EnableSending() { c.output.EnableSending() }

// DisableSending suspends the output buffer (spec.md §4.4, §6).
func (c *Client) DisableSending() { c.output.DisableSending() }

// SetOrphanedEventFilter installs the extension-point hook of spec.md §9
// ("unfinished orphaned event predicate"). Pass nil to clear it.
func (c *Client) SetOrphanedEventFilter(f dispatcher.OrphanedEventFilter) {
	c.dispatcher.OrphanFilter = f
}

// SetSerialisationErrorHandler installs the error-reporting hook invoked
// when an event cannot be serialised to JSON (spec.md §7).
func (c *Client) SetSerialisationErrorHandler(h dispatcher.SerialisationErrorHandler) {
	c.dispatcher.OnSerialisationError = h
}

// QueueDepth reports the output buffer's current length. Used by the
// status dashboard.
func (c *Client) QueueDepth() int { return c.output.Len() }
