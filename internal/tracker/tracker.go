package tracker

import (
	"log"
	"time"
)

// OriginalMessageID identifies an authored original inside the chat it was
// posted in (for channel posts, the channel itself).
type OriginalMessageID struct {
	PeerID    int64 `json:"peer_id"`
	MessageID int   `json:"message_id"`
}

// ForwardLocation identifies one observed copy of an original.
type ForwardLocation struct {
	ChatID    int64 `json:"chat_id"`
	MessageID int   `json:"message_id"`
}

type chatEntry struct {
	MessageID int
	Original  OriginalMessageID
}

// Tracker is the duplicate index: which forwards belong to which original,
// which originals the account has read, and when each original was first
// seen. It is not internally synchronized; the gateway owns the lock.
type Tracker struct {
	// original -> all known forwards, insertion order
	originals map[OriginalMessageID][]ForwardLocation
	// forward location -> its original (inverse of originals)
	forwardIndex map[ForwardLocation]OriginalMessageID
	// originals the account has read
	readOriginals map[OriginalMessageID]struct{}
	// unix seconds when each original was first registered
	firstSeen map[OriginalMessageID]int64
	// chat_id -> (message_id, original), derived from forwardIndex for
	// per-chat read-event lookups; rebuilt on load, never persisted
	chatIndex map[int64][]chatEntry

	now func() time.Time
}

func New() *Tracker {
	return &Tracker{
		originals:     make(map[OriginalMessageID][]ForwardLocation),
		forwardIndex:  make(map[ForwardLocation]OriginalMessageID),
		readOriginals: make(map[OriginalMessageID]struct{}),
		firstSeen:     make(map[OriginalMessageID]int64),
		chatIndex:     make(map[int64][]chatEntry),
		now:           time.Now,
	}
}

// SetClock overrides the time source (for testing).
func (t *Tracker) SetClock(now func() time.Time) {
	t.now = now
}

// RegisterForward records that forward is a copy of original. Idempotent:
// registering the same pair twice leaves exactly one entry. Returns whether
// the original was already marked read, meaning the caller should mark this
// forward as read right away.
func (t *Tracker) RegisterForward(original OriginalMessageID, forward ForwardLocation) bool {
	if _, ok := t.firstSeen[original]; !ok {
		t.firstSeen[original] = t.now().Unix()
	}

	forwards := t.originals[original]
	known := false
	for _, f := range forwards {
		if f == forward {
			known = true
			break
		}
	}
	if !known {
		t.originals[original] = append(forwards, forward)
	}

	entries := t.chatIndex[forward.ChatID]
	present := false
	for _, e := range entries {
		if e.MessageID == forward.MessageID {
			present = true
			break
		}
	}
	if !present {
		t.chatIndex[forward.ChatID] = append(entries, chatEntry{forward.MessageID, original})
	}

	t.forwardIndex[forward] = original

	_, read := t.readOriginals[original]
	return read
}

// MarkOriginalRead marks an original as read and returns every forward
// known for it, so the caller can propagate read status to all copies.
func (t *Tracker) MarkOriginalRead(original OriginalMessageID) []ForwardLocation {
	t.readOriginals[original] = struct{}{}
	forwards := t.originals[original]
	out := make([]ForwardLocation, len(forwards))
	copy(out, forwards)
	return out
}

// LookupForward resolves a forward back to its original.
func (t *Tracker) LookupForward(forward ForwardLocation) (OriginalMessageID, bool) {
	orig, ok := t.forwardIndex[forward]
	return orig, ok
}

func (t *Tracker) IsOriginalRead(original OriginalMessageID) bool {
	_, ok := t.readOriginals[original]
	return ok
}

// FindReadOriginalsInChat returns the originals whose forward in the given
// chat has message_id <= maxID and that are not yet marked read. Uses the
// chat index, so cost is proportional to forwards in that chat only.
func (t *Tracker) FindReadOriginalsInChat(chatID int64, maxID int) []OriginalMessageID {
	entries, ok := t.chatIndex[chatID]
	if !ok {
		return nil
	}

	var originals []OriginalMessageID
	for _, e := range entries {
		if e.MessageID > maxID {
			continue
		}
		if _, read := t.readOriginals[e.Original]; read {
			continue
		}
		originals = append(originals, e.Original)
	}
	return originals
}

// Cleanup purges every original first seen before now-maxAge, removing it
// and all its forwards from every index structure.
func (t *Tracker) Cleanup(maxAge time.Duration) {
	cutoff := t.now().Unix() - int64(maxAge.Seconds())

	var stale []OriginalMessageID
	for orig, ts := range t.firstSeen {
		if ts < cutoff {
			stale = append(stale, orig)
		}
	}

	for _, orig := range stale {
		for _, fwd := range t.originals[orig] {
			delete(t.forwardIndex, fwd)
			entries := t.chatIndex[fwd.ChatID]
			kept := entries[:0]
			for _, e := range entries {
				if e.MessageID != fwd.MessageID {
					kept = append(kept, e)
				}
			}
			if len(kept) == 0 {
				delete(t.chatIndex, fwd.ChatID)
			} else {
				t.chatIndex[fwd.ChatID] = kept
			}
		}
		delete(t.originals, orig)
		delete(t.readOriginals, orig)
		delete(t.firstSeen, orig)
	}

	if len(stale) > 0 {
		log.Printf("[tracker] cleaned up %d old entries", len(stale))
	}
}

// Stats for the status command and save logging.
type Stats struct {
	Originals int
	Forwards  int
	Read      int
}

func (t *Tracker) Stats() Stats {
	return Stats{
		Originals: len(t.originals),
		Forwards:  len(t.forwardIndex),
		Read:      len(t.readOriginals),
	}
}

func (t *Tracker) rebuildChatIndex() {
	t.chatIndex = make(map[int64][]chatEntry)
	for fwd, orig := range t.forwardIndex {
		t.chatIndex[fwd.ChatID] = append(t.chatIndex[fwd.ChatID], chatEntry{fwd.MessageID, orig})
	}
}
