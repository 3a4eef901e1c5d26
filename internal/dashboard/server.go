package dashboard

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"net/http"
	"time"

	"github.com/eventplatform/epc/internal/eventmodel"
)

// ClientControl is the subset of *client.Client the dashboard drives and
// inspects. Kept as an interface so tests substitute a fake without
// depending on the full client package.
type ClientControl interface {
	Log(stream string, data map[string]any)
	Configure(config map[string]eventmodel.StreamConfig)
	BeginNewSession() error
	BeginNewActivity(stream string) error
	EnableSending()
	DisableSending()
	QueueDepth() int
}

// BurstHistory reports recently sent bursts, newest first. The demo host
// backs it with store.SQLiteStore.RecentBursts through RecentBurstsFunc;
// it may be nil, in which case /bursts returns an empty list.
type BurstHistory interface {
	RecentBursts(limit int) ([]BurstRecord, error)
}

// BurstRecord mirrors store.BurstRecord without importing the store
// package, keeping dashboard decoupled from the persistence layer.
type BurstRecord struct {
	ID     int64  `json:"id"`
	URL    string `json:"url"`
	Body   string `json:"body"`
	SentAt string `json:"sent_at"`
}

// RecentBurstsFunc adapts a plain function to BurstHistory, so the demo
// host can convert store.BurstRecord to dashboard.BurstRecord inline
// instead of store and dashboard sharing a type.
type RecentBurstsFunc func(limit int) ([]BurstRecord, error)

func (f RecentBurstsFunc) RecentBursts(limit int) ([]BurstRecord, error) { return f(limit) }

// Server is the status/control HTTP surface for the demo host.
type Server struct {
	client  ClientControl
	hub     *BurstHub
	history BurstHistory
	mux     *http.ServeMux
	server  *http.Server
}

// New builds a Server bound to addr (e.g. ":8080"). history may be nil.
func New(addr string, c ClientControl, hub *BurstHub, history BurstHistory) *Server {
	s := &Server{client: c, hub: hub, history: history, mux: http.NewServeMux()}
	s.registerRoutes()
	s.server = &http.Server{
		Addr:         addr,
		Handler:      s.mux,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 0, // SSE needs no write timeout
		IdleTimeout:  60 * time.Second,
	}
	return s
}

func (s *Server) registerRoutes() {
	s.mux.HandleFunc("GET /status", s.handleStatus)
	s.mux.HandleFunc("GET /bursts", s.handleBursts)
	s.mux.HandleFunc("GET /stream", s.handleStream)
	s.mux.HandleFunc("POST /control/enable", s.handleEnable)
	s.mux.HandleFunc("POST /control/disable", s.handleDisable)
	s.mux.HandleFunc("POST /control/new-session", s.handleNewSession)
}

type statusResponse struct {
	QueueDepth int `json:"queue_depth"`
}

func (s *Server) handleStatus(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(statusResponse{QueueDepth: s.client.QueueDepth()})
}

func (s *Server) handleBursts(w http.ResponseWriter, r *http.Request) {
	if s.history == nil {
		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode([]BurstRecord{})
		return
	}
	records, err := s.history.RecentBursts(50)
	if err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}
	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(records)
}

// handleStream opens an SSE connection streaming burst activity as it
// happens, replaying recent history to late joiners first.
func (s *Server) handleStream(w http.ResponseWriter, r *http.Request) {
	flusher, ok := w.(http.Flusher)
	if !ok {
		http.Error(w, "streaming not supported", http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.Header().Set("X-Accel-Buffering", "no")

	ch, unsubscribe := s.hub.Subscribe()
	defer unsubscribe()

	ctx := r.Context()
	for {
		select {
		case <-ctx.Done():
			return
		case line, ok := <-ch:
			if !ok {
				return
			}
			_, _ = fmt.Fprintf(w, "data: %s\n\n", line)
			flusher.Flush()
		}
	}
}

func (s *Server) handleEnable(w http.ResponseWriter, r *http.Request) {
	s.client.EnableSending()
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) handleDisable(w http.ResponseWriter, r *http.Request) {
	s.client.DisableSending()
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) handleNewSession(w http.ResponseWriter, r *http.Request) {
	if err := s.client.BeginNewSession(); err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// Start begins serving HTTP requests. It blocks until the server is shut
// down.
func (s *Server) Start() error {
	log.Printf("dashboard listening on %s", s.server.Addr)
	if err := s.server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		return err
	}
	return nil
}

// Shutdown gracefully stops the server.
func (s *Server) Shutdown(ctx context.Context) error {
	return s.server.Shutdown(ctx)
}
