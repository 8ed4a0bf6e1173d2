package bus

import "github.com/stellarlinkco/readsync/internal/peers"

// ForwardOrigin is the forward-header linkage carried by a message event:
// the chat the original was posted in and its message id there. Both fields
// are required for a forward to be trackable.
type ForwardOrigin struct {
	PeerID    int64
	MessageID int
}

// PeerSeen is a peer reference observed alongside an incoming message, so
// the marker can issue API calls against chats it never saw at cache-build
// time.
type PeerSeen struct {
	ChatID int64
	Ref    peers.Ref
	Name   string
}

// MessageEvent is a new message observed in any chat the account can see.
type MessageEvent struct {
	ChatID    int64
	MessageID int
	Origin    *ForwardOrigin // nil when the message is not a forward
	Peer      *PeerSeen      // nil when the peer could not be resolved
}

// ReadEvent reports that the account read messages up to MaxID in a chat.
// Both protocol variants (plain chats and broadcast channels) are
// normalized to this shape by the transport adapter.
type ReadEvent struct {
	ChatID int64
	MaxID  int
}

// Event is one inbound update. Exactly one field is set.
type Event struct {
	Message *MessageEvent
	Read    *ReadEvent
}
