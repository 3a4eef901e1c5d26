// Package outputqueue implements the burst-shaped send scheduler of
// spec.md §4.4: a FIFO queue of (url, body) pairs drained either when it
// fills up or after a debounce window elapses.
package outputqueue

import (
	"context"
	"sync"
	"time"

	"github.com/eventplatform/epc/internal/transport"
)

// DefaultWaitItems and DefaultWaitMS are the parameters named in spec.md
// §4.4.
const (
	DefaultWaitItems = 10
	DefaultWaitMS    = 2000
)

type item struct {
	url  string
	body string
}

// Queue is the Output Buffer. All state is guarded by mu; the single
// pending timer handle mirrors the single-confinement model of spec.md §5.
type Queue struct {
	poster transport.Poster

	waitItems int
	waitDelay time.Duration

	mu      sync.Mutex
	items   []item
	enabled bool
	timer   *time.Timer
}

// New creates a Queue that posts through poster, with the default
// WAIT_ITEMS/WAIT_MS parameters. It starts enabled.
func New(poster transport.Poster) *Queue {
	return &Queue{
		poster:    poster,
		waitItems: DefaultWaitItems,
		waitDelay: DefaultWaitMS * time.Millisecond,
		enabled:   true,
	}
}

// WithParams overrides WAIT_ITEMS/WAIT_MS. Intended for tests and for hosts
// that tune burst shaping.
func (q *Queue) WithParams(waitItems int, waitDelay time.Duration) *Queue {
	q.mu.Lock()
	defer q.mu.Unlock()
	q.waitItems = waitItems
	q.waitDelay = waitDelay
	return q
}

// Schedule appends (url, body) to the queue. If the queue is enabled and at
// or beyond WAIT_ITEMS it drains synchronously; otherwise it (re)arms the
// debounce timer. If disabled, the item just sits in the queue.
func (q *Queue) Schedule(url, body string) {
	q.mu.Lock()
	defer q.mu.Unlock()

	q.items = append(q.items, item{url: url, body: body})

	if !q.enabled {
		return
	}

	if len(q.items) >= q.waitItems {
		q.sendAllScheduledLocked()
		return
	}

	q.cancelTimerLocked()
	q.timer = time.AfterFunc(q.waitDelay, func() {
		q.mu.Lock()
		defer q.mu.Unlock()
		q.timer = nil
		q.sendAllScheduledLocked()
	})
}

// Send performs the HTTP POST immediately when enabled (fire-and-forget,
// success and failure are not distinguished by the caller) and then
// opportunistically drains the rest of the queue. When disabled it appends
// the item instead of dropping it (spec.md §4.4: the alternative, silent
// drop, is documented as rejected).
func (q *Queue) Send(url, body string) {
	q.mu.Lock()
	enabled := q.enabled
	q.mu.Unlock()

	if !enabled {
		q.mu.Lock()
		q.items = append(q.items, item{url: url, body: body})
		q.mu.Unlock()
		return
	}

	q.post(url, body)

	q.mu.Lock()
	defer q.mu.Unlock()
	q.sendAllScheduledLocked()
}

// SendAllScheduled cancels any pending timer and, if enabled, drains the
// whole queue in FIFO order, posting each item. If disabled, the queue is
// left intact.
func (q *Queue) SendAllScheduled() {
	q.mu.Lock()
	defer q.mu.Unlock()
	q.sendAllScheduledLocked()
}

func (q *Queue) sendAllScheduledLocked() {
	q.cancelTimerLocked()
	if !q.enabled {
		return
	}

	for len(q.items) > 0 {
		next := q.items[0]
		q.items = q.items[1:]
		q.post(next.url, next.body)
	}
}

// EnableSending sets enabled and immediately flushes anything accumulated
// while disabled.
func (q *Queue) EnableSending() {
	q.mu.Lock()
	q.enabled = true
	defer q.mu.Unlock()
	q.sendAllScheduledLocked()
}

// DisableSending clears enabled and cancels any pending timer. Items
// already queued stay queued.
func (q *Queue) DisableSending() {
	q.mu.Lock()
	defer q.mu.Unlock()
	q.enabled = false
	q.cancelTimerLocked()
}

func (q *Queue) cancelTimerLocked() {
	if q.timer != nil {
		q.timer.Stop()
		q.timer = nil
	}
}

// post is the fire-and-forget HTTP POST. It spins a goroutine per send so
// a slow or unreachable destination never blocks the caller that reached
// here through Log/Schedule/EnableSending — spec.md §5 requires the core
// to have no suspension points, and a synchronous POST inside the single
// confinement would stall every other core operation behind the network.
// A failed send simply discards the item (spec.md §4.4: no retry, by
// design — retries would spoil the burst shape).
func (q *Queue) post(url, body string) {
	go func() {
		ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		_ = q.poster.Post(ctx, url, body)
	}()
}

// Len reports the current queue depth. Used by the dashboard status view.
func (q *Queue) Len() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.items)
}
