package dashboard

import (
	"bufio"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/eventplatform/epc/internal/eventmodel"
)

type fakeClient struct {
	depth     int
	enabled   bool
	sessionID int
}

func (f *fakeClient) Log(stream string, data map[string]any)              {}
func (f *fakeClient) Configure(config map[string]eventmodel.StreamConfig) {}
func (f *fakeClient) BeginNewSession() error                              { f.sessionID++; return nil }
func (f *fakeClient) BeginNewActivity(stream string) error                { return nil }
func (f *fakeClient) EnableSending()                                      { f.enabled = true }
func (f *fakeClient) DisableSending()                                     { f.enabled = false }
func (f *fakeClient) QueueDepth() int                                     { return f.depth }

func TestHandleStatusReportsQueueDepth(t *testing.T) {
	c := &fakeClient{depth: 7}
	s := New(":0", c, NewBurstHub(), nil)

	rec := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet, "/status", nil)
	s.mux.ServeHTTP(rec, req)

	if !strings.Contains(rec.Body.String(), `"queue_depth":7`) {
		t.Fatalf("expected queue_depth 7 in body, got %s", rec.Body.String())
	}
}

func TestHandleEnableDisable(t *testing.T) {
	c := &fakeClient{}
	s := New(":0", c, NewBurstHub(), nil)

	rec := httptest.NewRecorder()
	s.mux.ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/control/enable", nil))
	if !c.enabled {
		t.Fatal("expected enable route to call EnableSending")
	}

	rec = httptest.NewRecorder()
	s.mux.ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/control/disable", nil))
	if c.enabled {
		t.Fatal("expected disable route to call DisableSending")
	}
}

func TestHandleBurstsEmptyWithoutHistory(t *testing.T) {
	c := &fakeClient{}
	s := New(":0", c, NewBurstHub(), nil)

	rec := httptest.NewRecorder()
	s.mux.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/bursts", nil))
	if strings.TrimSpace(rec.Body.String()) != "[]" {
		t.Fatalf("expected empty array with no history backend, got %q", rec.Body.String())
	}
}

func TestHandleStreamReplaysBufferedBursts(t *testing.T) {
	hub := NewBurstHub()
	hub.Publish(`{"url":"/a","body":"1"}`)

	c := &fakeClient{}
	s := New(":0", c, hub, nil)

	srv := httptest.NewServer(s.mux)
	defer srv.Close()

	resp, err := http.Get(srv.URL + "/stream")
	if err != nil {
		t.Fatalf("GET /stream: %v", err)
	}
	defer resp.Body.Close()

	if ct := resp.Header.Get("Content-Type"); ct != "text/event-stream" {
		t.Fatalf("expected text/event-stream, got %q", ct)
	}

	lineCh := make(chan string, 1)
	go func() {
		scanner := bufio.NewScanner(resp.Body)
		for scanner.Scan() {
			line := scanner.Text()
			if strings.HasPrefix(line, "data: ") {
				lineCh <- line
				return
			}
		}
	}()

	select {
	case line := <-lineCh:
		if !strings.Contains(line, `"url":"/a"`) {
			t.Fatalf("expected replayed burst in stream, got %q", line)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for buffered burst replay")
	}
}
