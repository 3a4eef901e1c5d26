// Command epcd is a demo host embedding the event platform client: it
// boots a Client, serves a status/control dashboard, and reacts to
// SIGUSR1/SIGUSR2 as stand-ins for a host's online/offline lifecycle hooks
// (spec.md §4.4 "external flush triggers").
package main

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/eventplatform/epc/internal/client"
	"github.com/eventplatform/epc/internal/config"
	"github.com/eventplatform/epc/internal/dashboard"
	"github.com/eventplatform/epc/internal/eventmodel"
	"github.com/eventplatform/epc/internal/platform"
	"github.com/eventplatform/epc/internal/store"
	"github.com/eventplatform/epc/internal/transport"
)

func main() {
	rootCmd := &cobra.Command{
		Use:   "epcd",
		Short: "Demo host for the event platform client",
		RunE:  run,
	}

	f := rootCmd.Flags()
	f.String("state-dir", "/var/lib/epcd", "directory for the persistent SQLite store")
	f.Int("dashboard-port", 8080, "HTTP port for the status/control dashboard")
	f.Int("wait-items", 10, "burst threshold: items queued before a synchronous drain")
	f.Int("wait-ms", 2000, "debounce window in milliseconds before a timer-driven drain")
	f.Bool("default-dnt", false, "start with the do-not-track signal set")
	f.String("default-destination", "https://intake.example.com/v1/events", "destination URL of the built-in pageview and edit streams")
	f.Bool("verbose", false, "verbose flag (loaded into config; no output depends on it)")

	bindFlag := func(viperKey, flagName string) {
		_ = viper.BindPFlag(viperKey, f.Lookup(flagName))
	}
	bindFlag("state_dir", "state-dir")
	bindFlag("dashboard_port", "dashboard-port")
	bindFlag("wait_items", "wait-items")
	bindFlag("wait_ms", "wait-ms")
	bindFlag("default_dnt", "default-dnt")
	bindFlag("default_destination", "default-destination")
	bindFlag("verbose", "verbose")

	viper.SetEnvPrefix("EPC")
	viper.AutomaticEnv()
	viper.SetEnvKeyReplacer(strings.NewReplacer("-", "_"))

	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

// burstPublishingPoster wraps the real HTTP transport so every burst is
// also recorded durably and fanned out to the dashboard's SSE stream.
type burstPublishingPoster struct {
	inner transport.Poster
	db    *store.SQLiteStore
	hub   *dashboard.BurstHub
	clock platform.Clock
}

func (p *burstPublishingPoster) Post(ctx context.Context, url, body string) error {
	err := p.inner.Post(ctx, url, body)

	sentAt := p.clock.Now()
	if recErr := p.db.RecordBurst(url, body, sentAt); recErr != nil {
		log.Printf("record burst: %v", recErr)
	}

	line, _ := json.Marshal(map[string]any{
		"url":     url,
		"body":    body,
		"sent_at": sentAt.UTC().Format(time.RFC3339Nano),
		"ok":      err == nil,
	})
	p.hub.Publish(string(line))

	return err
}

func run(cmd *cobra.Command, args []string) error {
	cfg := config.Load()

	fmt.Printf("epcd starting\n")
	fmt.Printf("  state dir: %s\n", cfg.StateDir)
	fmt.Printf("  dashboard: :%d\n", cfg.DashboardPort)
	fmt.Printf("  wait items/ms: %d/%d\n", cfg.WaitItems, cfg.WaitMS)
	fmt.Println()

	if err := os.MkdirAll(cfg.StateDir, 0o755); err != nil {
		return fmt.Errorf("create state dir: %w", err)
	}

	db, err := store.OpenSQLite(filepath.Join(cfg.StateDir, "epc.db"))
	if err != nil {
		return fmt.Errorf("open store: %w", err)
	}
	defer db.Close() //nolint:errcheck

	hub := dashboard.NewBurstHub()
	dnt := platform.NewToggleDNT(cfg.DefaultDNT)

	poster := &burstPublishingPoster{
		inner: transport.NewHTTPPoster(),
		db:    db,
		hub:   hub,
		clock: platform.SystemClock{},
	}

	c := client.New(
		client.WithStore(db),
		client.WithPoster(poster),
		client.WithDNT(dnt),
		client.WithBurstParams(cfg.WaitItems, time.Duration(cfg.WaitMS)*time.Millisecond),
	)

	c.Configure(defaultStreamConfig(cfg.DefaultDestination))

	history := dashboard.RecentBurstsFunc(func(limit int) ([]dashboard.BurstRecord, error) {
		recs, err := db.RecentBursts(limit)
		if err != nil {
			return nil, err
		}
		out := make([]dashboard.BurstRecord, len(recs))
		for i, r := range recs {
			out[i] = dashboard.BurstRecord{ID: r.ID, URL: r.URL, Body: r.Body, SentAt: r.SentAt}
		}
		return out, nil
	})

	dash := dashboard.New(fmt.Sprintf(":%d", cfg.DashboardPort), c, hub, history)
	go func() {
		if err := dash.Start(); err != nil {
			log.Printf("dashboard server error: %v", err)
		}
	}()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGTERM, syscall.SIGINT, syscall.SIGUSR1, syscall.SIGUSR2)
	go func() {
		for sig := range sigCh {
			switch sig {
			case syscall.SIGUSR1:
				log.Printf("received SIGUSR1: simulating host going online")
				c.EnableSending()
			case syscall.SIGUSR2:
				log.Printf("received SIGUSR2: simulating host going offline")
				c.DisableSending()
			default:
				log.Printf("received %s, shutting down...", sig)
				cancel()
				return
			}
		}
	}()

	<-ctx.Done()

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer shutdownCancel()
	if err := dash.Shutdown(shutdownCtx); err != nil {
		log.Printf("dashboard shutdown: %v", err)
	}

	return nil
}

// defaultStreamConfig registers a small starter set of streams so the demo
// host has something to log against out of the box. pageview and edit both
// use defaultDestination (cfg's --default-destination) as their
// destination; edit.growth names its own since growth events route
// somewhere else entirely.
func defaultStreamConfig(defaultDestination string) map[string]eventmodel.StreamConfig {
	return map[string]eventmodel.StreamConfig{
		"pageview": {
			Destination: defaultDestination,
			Schema:      "https://schema.example.com/pageview.json",
			Scope:       eventmodel.ScopePageview,
		},
		"edit": {
			Destination: defaultDestination,
			Schema:      "https://schema.example.com/edit.json",
			Scope:       eventmodel.ScopeSession,
		},
		"edit.growth": {
			Destination: "https://intake.example.com/v1/growth-events",
			Schema:      "https://schema.example.com/edit-growth.json",
			Scope:       eventmodel.ScopeSession,
		},
	}
}
