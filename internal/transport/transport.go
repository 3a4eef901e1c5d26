// Package transport provides the fire-and-forget HTTP POST collaborator
// the output buffer hands bursts to (spec.md §6's http_post). The transport
// layer itself is explicitly out of scope for the core (spec.md §1); this
// package is the demo host's default implementation of that interface.
package transport

import (
	"bytes"
	"context"
	"fmt"
	"net/http"
	"time"
)

// Poster sends a single already-serialised event body to url. The output
// buffer always invokes Post from inside a goroutine it spins up per send
// (outputqueue.Queue.post), so implementations are free to block on
// network completion — ctx carries the bounded timeout that keeps a single
// stuck destination from leaking goroutines forever. This keeps the core's
// single confinement (spec.md §5) from ever blocking on HTTP I/O: "HTTP
// POST is initiated non-blockingly (fire-and-forget); its completion does
// not re-enter the core."
type Poster interface {
	Post(ctx context.Context, url string, body string) error
}

// HTTPPoster posts JSON bodies with a bounded timeout, modeled on the
// request/client construction the teacher uses for outbound LLM calls
// (internal/web/busy.go): http.NewRequestWithContext + a timeout-scoped
// http.Client, Content-Type set explicitly.
type HTTPPoster struct {
	Client  *http.Client
	Timeout time.Duration
}

// NewHTTPPoster returns an HTTPPoster with sane defaults.
func NewHTTPPoster() *HTTPPoster {
	return &HTTPPoster{
		Client:  &http.Client{},
		Timeout: 10 * time.Second,
	}
}

func (p *HTTPPoster) Post(ctx context.Context, url string, body string) error {
	timeout := p.Timeout
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader([]byte(body)))
	if err != nil {
		return fmt.Errorf("build request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	client := p.Client
	if client == nil {
		client = http.DefaultClient
	}
	resp, err := client.Do(req)
	if err != nil {
		return fmt.Errorf("post %s: %w", url, err)
	}
	defer resp.Body.Close() //nolint:errcheck

	if resp.StatusCode >= 400 {
		return fmt.Errorf("post %s: status %d", url, resp.StatusCode)
	}
	return nil
}
