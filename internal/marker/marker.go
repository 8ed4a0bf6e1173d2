package marker

import (
	"context"
	"fmt"
	"log"
	"time"

	"github.com/stellarlinkco/readsync/internal/peers"
	"github.com/stellarlinkco/readsync/internal/tracker"
)

// Delay between consecutive mark-as-read API calls to avoid flood limits.
const markReadDelay = 500 * time.Millisecond

// Dialog is one chat visible to the account, as enumerated at startup.
type Dialog struct {
	ChatID int64
	Ref    peers.Ref
	Name   string
}

// Transport is the outbound surface the marker needs. Implemented by the
// telegram adapter; tests use a fake.
type Transport interface {
	// ReadHistory marks messages up to maxID as read in an ordinary chat.
	ReadHistory(ctx context.Context, ref peers.Ref, maxID int) error
	// ReadChannelHistory is the broadcast-channel variant of the call.
	ReadChannelHistory(ctx context.Context, ref peers.Ref, maxID int) error
	// Dialogs enumerates every chat the account can see.
	Dialogs(ctx context.Context) ([]Dialog, error)
}

type peerEntry struct {
	ref  peers.Ref
	name string
}

// Marker owns the peer-reference cache and the outbound transport. It is
// not internally synchronized; the gateway owns the lock.
type Marker struct {
	transport Transport
	peerCache map[int64]peerEntry
	delay     time.Duration
}

func New(transport Transport) *Marker {
	return &Marker{
		transport: transport,
		peerCache: make(map[int64]peerEntry),
		delay:     markReadDelay,
	}
}

// SetDelay overrides the inter-call delay (for testing).
func (m *Marker) SetDelay(d time.Duration) {
	m.delay = d
}

// BuildPeerCache seeds the cache by enumerating all dialogs. Called once
// at startup, outside the per-event hot path.
func (m *Marker) BuildPeerCache(ctx context.Context) error {
	dialogs, err := m.transport.Dialogs(ctx)
	if err != nil {
		return fmt.Errorf("enumerate dialogs: %w", err)
	}
	for _, d := range dialogs {
		m.peerCache[d.ChatID] = peerEntry{d.Ref, d.Name}
	}
	log.Printf("[marker] peer cache built with %d entries", len(m.peerCache))
	return nil
}

// CachePeer records a peer reference learned from an incoming update.
// First writer wins: a reference already obtained is authoritative.
func (m *Marker) CachePeer(chatID int64, ref peers.Ref, name string) {
	if _, ok := m.peerCache[chatID]; ok {
		return
	}
	m.peerCache[chatID] = peerEntry{ref, name}
}

// ChatName returns the cached display name for a chat, for diagnostics.
func (m *Marker) ChatName(chatID int64) string {
	if e, ok := m.peerCache[chatID]; ok {
		return e.name
	}
	return "unknown"
}

// MarkRead marks messages up to maxID as read in the given chat, picking
// the channel or plain-chat API call based on the cached peer kind.
func (m *Marker) MarkRead(ctx context.Context, chatID int64, maxID int) error {
	e, ok := m.peerCache[chatID]
	if !ok {
		return fmt.Errorf("no cached peer for chat %d, cannot mark as read", chatID)
	}

	if e.ref.Kind == peers.KindChannel {
		return m.transport.ReadChannelHistory(ctx, e.ref, maxID)
	}
	return m.transport.ReadHistory(ctx, e.ref, maxID)
}

// MarkForwardsRead marks a batch of forward locations as read, with delays
// between calls to respect flood limits. Best effort: each failure is
// logged and the rest of the batch continues.
func (m *Marker) MarkForwardsRead(ctx context.Context, forwards []tracker.ForwardLocation) {
	for i, fwd := range forwards {
		if i > 0 {
			time.Sleep(m.delay)
		}
		if err := m.MarkRead(ctx, fwd.ChatID, fwd.MessageID); err != nil {
			log.Printf("[marker] failed to mark forward as read (chat=%d %q, msg=%d): %v",
				fwd.ChatID, m.ChatName(fwd.ChatID), fwd.MessageID, err)
		}
	}
}
