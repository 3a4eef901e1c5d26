// Package dashboard is the status/control surface of the demo host: a
// JSON status endpoint, an SSE feed of burst activity, and control routes
// for enable/disable-sending. It is not part of the spec'd core — the core
// never surfaces HTTP itself — but every production host needs a way to
// observe and drive it (spec.md §1 "out of scope... the thin
// platform-specific main entry point").
package dashboard

import "sync"

const defaultBufferCap = 256

// BurstHub fans out burst-send notifications to SSE subscribers, buffering
// recent ones for late joiners.
type BurstHub struct {
	mu      sync.Mutex
	buf     []string
	pos     int
	clients map[chan string]struct{}
}

// NewBurstHub creates an empty BurstHub.
func NewBurstHub() *BurstHub {
	return &BurstHub{
		buf:     make([]string, 0, defaultBufferCap),
		clients: make(map[chan string]struct{}),
	}
}

func (h *BurstHub) append(line string) {
	if len(h.buf) < cap(h.buf) {
		h.buf = append(h.buf, line)
	} else {
		h.buf[h.pos] = line
	}
	h.pos = (h.pos + 1) % cap(h.buf)
}

func (h *BurstHub) lines() []string {
	n := len(h.buf)
	if n == 0 || h.pos == 0 {
		return h.buf
	}
	out := make([]string, n)
	copy(out, h.buf[h.pos:])
	copy(out[n-h.pos:], h.buf[:h.pos])
	return out
}

// Publish records a burst line and fans it out to current subscribers.
// Non-blocking: a slow subscriber never stalls publishing.
func (h *BurstHub) Publish(line string) {
	h.mu.Lock()
	defer h.mu.Unlock()

	h.append(line)
	for ch := range h.clients {
		select {
		case ch <- line:
		default:
		}
	}
}

// Subscribe returns a channel that first replays buffered history and then
// receives future burst lines, plus an unsubscribe function.
func (h *BurstHub) Subscribe() (<-chan string, func()) {
	h.mu.Lock()
	defer h.mu.Unlock()

	ch := make(chan string, defaultBufferCap+64)
	for _, line := range h.lines() {
		ch <- line
	}
	h.clients[ch] = struct{}{}

	unsubscribe := func() {
		h.mu.Lock()
		defer h.mu.Unlock()
		delete(h.clients, ch)
	}
	return ch, unsubscribe
}
