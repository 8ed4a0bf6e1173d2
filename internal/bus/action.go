package bus

import "github.com/stellarlinkco/readsync/internal/tracker"

// Action is what the planner decided must happen for one event, computed
// while holding only the tracker lock and executed afterward while holding
// only the marker lock. It is produced once and consumed once.
//
// The zero value means "nothing to do". A message event may set both parts
// at once: cache the observed peer and immediately mark a late-arriving
// duplicate of an already-read original.
type Action struct {
	CachePeer *PeerSeen
	Forwards  []tracker.ForwardLocation
}

func (a Action) IsZero() bool {
	return a.CachePeer == nil && len(a.Forwards) == 0
}
