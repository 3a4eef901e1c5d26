package dispatcher

import (
	"context"
	"encoding/json"
	"sync"
	"testing"
	"time"

	"github.com/eventplatform/epc/internal/association"
	"github.com/eventplatform/epc/internal/eventmodel"
	"github.com/eventplatform/epc/internal/outputqueue"
	"github.com/eventplatform/epc/internal/platform"
	"github.com/eventplatform/epc/internal/registry"
	"github.com/eventplatform/epc/internal/store"
)

type fixedClock struct{ t time.Time }

func (c fixedClock) Now() time.Time { return c.t }

// capturePoster implements transport.Poster, recording every POST it
// receives instead of performing one. Safe for concurrent use since
// outputqueue.Queue.post invokes it from a goroutine it spins per send.
type capturePoster struct {
	mu    sync.Mutex
	calls []struct{ url, body string }
}

func (p *capturePoster) Post(_ context.Context, url, body string) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.calls = append(p.calls, struct{ url, body string }{url, body})
	return nil
}

func (p *capturePoster) snapshot() []struct{ url, body string } {
	p.mu.Lock()
	defer p.mu.Unlock()
	out := make([]struct{ url, body string }, len(p.calls))
	copy(out, p.calls)
	return out
}

// waitForCalls polls until poster has recorded n calls or a deadline
// passes, then returns a snapshot. Needed because outputqueue.Queue.post
// fires each send from its own goroutine, so a call triggered by
// Configure/Log is not necessarily recorded the instant it returns.
func waitForCalls(t *testing.T, p *capturePoster, n int) []struct{ url, body string } {
	t.Helper()
	deadline := time.Now().Add(time.Second)
	for time.Now().Before(deadline) {
		if calls := p.snapshot(); len(calls) == n {
			return calls
		}
		time.Sleep(2 * time.Millisecond)
	}
	t.Fatalf("timed out waiting for %d posts, got %d", n, len(p.snapshot()))
	return nil
}

func newHarness() (*Dispatcher, *registry.Registry, *capturePoster) {
	reg := registry.New()
	memStore := store.NewMemStore()
	assoc := association.New(memStore, platform.SystemIDGenerator{})
	poster := &capturePoster{}
	out := outputqueue.New(poster).WithParams(1, time.Hour)
	clock := fixedClock{t: time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)}
	d := New(reg, assoc, out, platform.StaticDNT(false), clock, platform.SystemIDGenerator{}, nil)
	return d, reg, poster
}

func TestDeferralThenDrain(t *testing.T) {
	d, _, poster := newHarness()

	d.Log("edit", eventmodel.Event{"a": 1})
	if len(poster.snapshot()) != 0 {
		t.Fatalf("expected no post before configure, got %d", len(poster.snapshot()))
	}

	d.Configure(map[string]eventmodel.StreamConfig{
		"edit": {Destination: "/l", Schema: "/s", Scope: eventmodel.ScopeSession},
	})

	calls := waitForCalls(t, poster, 1)
	call := calls[0]
	if call.url != "/l" {
		t.Fatalf("expected destination /l, got %q", call.url)
	}

	var body map[string]any
	if err := json.Unmarshal([]byte(call.body), &body); err != nil {
		t.Fatalf("body not valid json: %v", err)
	}
	if body["a"].(float64) != 1 {
		t.Fatalf("expected a:1 preserved, got %v", body["a"])
	}
	if body["$schema"] != "/s" {
		t.Fatalf("expected $schema /s, got %v", body["$schema"])
	}
	for _, field := range []string{"pageview_id", "session_id", "activity_id"} {
		if _, ok := body[field]; !ok {
			t.Fatalf("expected field %q in body %v", field, body)
		}
	}
	meta, ok := body["meta"].(map[string]any)
	if !ok {
		t.Fatalf("expected meta map, got %v", body["meta"])
	}
	if meta["stream"] != "edit" {
		t.Fatalf("expected meta.stream=edit, got %v", meta["stream"])
	}
	if _, ok := meta["id"]; !ok {
		t.Fatal("expected meta.id to be set")
	}
}

func TestCascadeDeliversToParentAndChildWithSameTimestamp(t *testing.T) {
	d, _, poster := newHarness()

	d.Configure(map[string]eventmodel.StreamConfig{
		"edit":        {Destination: "/e"},
		"edit.growth": {Destination: "/g"},
	})

	d.Log("edit", eventmodel.Event{"x": 1})

	calls := waitForCalls(t, poster, 2)

	var parentBody, childBody map[string]any
	for _, call := range calls {
		var body map[string]any
		if err := json.Unmarshal([]byte(call.body), &body); err != nil {
			t.Fatalf("invalid json: %v", err)
		}
		switch call.url {
		case "/e":
			parentBody = body
		case "/g":
			childBody = body
		default:
			t.Fatalf("unexpected destination %q", call.url)
		}
	}
	if parentBody == nil || childBody == nil {
		t.Fatalf("expected both /e and /g to receive a post, calls=%v", calls)
	}

	parentMeta := parentBody["meta"].(map[string]any)
	childMeta := childBody["meta"].(map[string]any)
	if parentMeta["dt"] != childMeta["dt"] {
		t.Fatalf("expected identical meta.dt across cascade, got %v vs %v", parentMeta["dt"], childMeta["dt"])
	}
	if parentMeta["id"] == childMeta["id"] {
		t.Fatal("expected distinct meta.id across cascade copies")
	}
	if childBody["x"].(float64) != 1 {
		t.Fatalf("expected cascade child to carry original field, got %v", childBody["x"])
	}
}

func TestDoNotTrackBlocksNonPrivateStream(t *testing.T) {
	reg := registry.New()
	memStore := store.NewMemStore()
	assoc := association.New(memStore, platform.SystemIDGenerator{})
	poster := &capturePoster{}
	out := outputqueue.New(poster).WithParams(1, time.Hour)
	clock := fixedClock{t: time.Now()}
	d := New(reg, assoc, out, platform.StaticDNT(true), clock, platform.SystemIDGenerator{}, nil)

	d.Configure(map[string]eventmodel.StreamConfig{
		"edit": {Destination: "/e"},
	})
	d.Log("edit", eventmodel.Event{"a": 1})

	if len(poster.snapshot()) != 0 {
		t.Fatalf("expected DNT to block delivery, got %d posts", len(poster.snapshot()))
	}
}

func TestPrivateStreamUnderDNTOmitsIdentityFields(t *testing.T) {
	reg := registry.New()
	memStore := store.NewMemStore()
	assoc := association.New(memStore, platform.SystemIDGenerator{})
	poster := &capturePoster{}
	out := outputqueue.New(poster).WithParams(1, time.Hour)
	clock := fixedClock{t: time.Now()}
	d := New(reg, assoc, out, platform.StaticDNT(true), clock, platform.SystemIDGenerator{}, nil)

	isPrivate := true
	d.Configure(map[string]eventmodel.StreamConfig{
		"edit": {Destination: "/e", IsPrivate: &isPrivate},
	})
	d.Log("edit", eventmodel.Event{"a": 1})

	calls := waitForCalls(t, poster, 1)

	var body map[string]any
	if err := json.Unmarshal([]byte(calls[0].body), &body); err != nil {
		t.Fatalf("invalid json: %v", err)
	}
	for _, field := range []string{"pageview_id", "session_id", "activity_id"} {
		if _, ok := body[field]; ok {
			t.Fatalf("private stream must not carry %q, body=%v", field, body)
		}
	}
}

func TestUnknownStreamNeverSchedules(t *testing.T) {
	d, _, poster := newHarness()
	d.Log("ghost", eventmodel.Event{"a": 1})
	if len(poster.snapshot()) != 0 {
		t.Fatalf("unknown stream must never reach output.schedule, got %d", len(poster.snapshot()))
	}
}
