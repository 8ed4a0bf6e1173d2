package gateway

import (
	"context"
	"log"
	"sync"
	"time"

	rcron "github.com/robfig/cron/v3"
	"github.com/stellarlinkco/readsync/internal/bus"
	"github.com/stellarlinkco/readsync/internal/marker"
	"github.com/stellarlinkco/readsync/internal/planner"
	"github.com/stellarlinkco/readsync/internal/tracker"
)

const (
	// originals older than this are purged by the cleanup tick
	cleanupMaxAge = 30 * 24 * time.Hour

	saveSchedule    = "@every 5m"
	cleanupSchedule = "@every 24h"
)

// Gateway runs the update-processing loop. It owns both shared resources:
// the tracker behind trackerMu and the marker behind markerMu. The two
// locks are never held at the same time; planning happens under the
// tracker lock only and execution under the marker lock only, so a slow
// rate-limited API call never blocks planning or a background save.
type Gateway struct {
	statePath string
	events    <-chan bus.Event

	trackerMu sync.Mutex
	tracker   *tracker.Tracker

	markerMu sync.Mutex
	marker   *marker.Marker
}

func New(tr *tracker.Tracker, m *marker.Marker, events <-chan bus.Event, statePath string) *Gateway {
	return &Gateway{
		statePath: statePath,
		events:    events,
		tracker:   tr,
		marker:    m,
	}
}

// Run processes events until ctx is cancelled or the event channel closes,
// with periodic save and cleanup ticks running alongside. It performs a
// final best-effort save before returning.
func (g *Gateway) Run(ctx context.Context) error {
	c := rcron.New()
	if _, err := c.AddFunc(saveSchedule, g.saveState); err != nil {
		return err
	}
	if _, err := c.AddFunc(cleanupSchedule, g.runCleanup); err != nil {
		return err
	}
	c.Start()
	defer func() {
		<-c.Stop().Done()
	}()

	log.Printf("[gateway] listening for updates")

	for {
		select {
		case <-ctx.Done():
			log.Printf("[gateway] shutting down...")
			g.saveState()
			return nil
		case ev, ok := <-g.events:
			if !ok {
				log.Printf("[gateway] update stream closed")
				g.saveState()
				return nil
			}
			g.process(ctx, ev)
		}
	}
}

// process is the two-phase pipeline for one event.
func (g *Gateway) process(ctx context.Context, ev bus.Event) {
	// Phase 1: plan, tracker lock only. In-memory, never suspends.
	g.trackerMu.Lock()
	action := planner.Plan(ev, g.tracker)
	g.trackerMu.Unlock()

	if action.IsZero() {
		return
	}

	// Phase 2: execute, marker lock only. May sleep on flood-control
	// delays, but the tracker stays available throughout.
	g.markerMu.Lock()
	defer g.markerMu.Unlock()
	if p := action.CachePeer; p != nil {
		g.marker.CachePeer(p.ChatID, p.Ref, p.Name)
	}
	if len(action.Forwards) > 0 {
		g.marker.MarkForwardsRead(ctx, action.Forwards)
	}
}

// saveState serializes under the tracker lock and writes the file outside
// it. Failures are logged; the in-memory state stays intact either way.
func (g *Gateway) saveState() {
	g.trackerMu.Lock()
	data, err := g.tracker.Encode()
	stats := g.tracker.Stats()
	g.trackerMu.Unlock()

	if err != nil {
		log.Printf("[gateway] failed to serialize state: %v", err)
		return
	}
	if err := tracker.WriteFileAtomic(g.statePath, data); err != nil {
		log.Printf("[gateway] failed to save state: %v", err)
		return
	}
	log.Printf("[gateway] state saved (%d originals, %d forwards, %d read)",
		stats.Originals, stats.Forwards, stats.Read)
}

func (g *Gateway) runCleanup() {
	g.trackerMu.Lock()
	defer g.trackerMu.Unlock()
	g.tracker.Cleanup(cleanupMaxAge)
}
