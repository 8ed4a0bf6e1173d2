package planner

import (
	"log"

	"github.com/stellarlinkco/readsync/internal/bus"
	"github.com/stellarlinkco/readsync/internal/tracker"
)

// Plan is phase one of update processing: inspect one inbound event and
// decide what follow-up the marker must perform. It mutates only the
// tracker and does no network I/O, so the caller can hold the tracker lock
// for the whole call without ever stalling on the wire.
func Plan(ev bus.Event, t *tracker.Tracker) bus.Action {
	switch {
	case ev.Message != nil:
		return planMessage(ev.Message, t)
	case ev.Read != nil:
		return planRead(ev.Read, t)
	default:
		return bus.Action{}
	}
}

func planMessage(msg *bus.MessageEvent, t *tracker.Tracker) bus.Action {
	// not a trackable forward
	if msg.Origin == nil {
		return bus.Action{}
	}

	original := tracker.OriginalMessageID{
		PeerID:    msg.Origin.PeerID,
		MessageID: msg.Origin.MessageID,
	}
	forward := tracker.ForwardLocation{
		ChatID:    msg.ChatID,
		MessageID: msg.MessageID,
	}

	alreadyRead := t.RegisterForward(original, forward)

	action := bus.Action{CachePeer: msg.Peer}
	if alreadyRead {
		// A duplicate arriving after its original was consumed: mark this
		// copy right away instead of waiting for a future read event.
		log.Printf("[planner] original already read, marking forward: chat=%d, msg=%d",
			forward.ChatID, forward.MessageID)
		action.Forwards = []tracker.ForwardLocation{forward}
	}
	return action
}

func planRead(ev *bus.ReadEvent, t *tracker.Tracker) bus.Action {
	originals := t.FindReadOriginalsInChat(ev.ChatID, ev.MaxID)
	if len(originals) == 0 {
		return bus.Action{}
	}

	log.Printf("[planner] read event in chat %d: %d originals newly read", ev.ChatID, len(originals))

	var all []tracker.ForwardLocation
	for _, orig := range originals {
		for _, fwd := range t.MarkOriginalRead(orig) {
			// the copy the user just read natively needs no remote call
			if fwd.ChatID == ev.ChatID && fwd.MessageID <= ev.MaxID {
				continue
			}
			all = append(all, fwd)
		}
	}

	if len(all) == 0 {
		return bus.Action{}
	}
	return bus.Action{Forwards: all}
}
