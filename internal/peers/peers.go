package peers

import "fmt"

// Kind distinguishes the three Telegram peer families. Broadcast channels
// and ordinary chats use different read-history API calls, so the kind has
// to survive caching.
type Kind int

const (
	KindUser Kind = iota
	KindChat
	KindChannel
)

func (k Kind) String() string {
	switch k {
	case KindUser:
		return "user"
	case KindChat:
		return "chat"
	case KindChannel:
		return "channel"
	default:
		return fmt.Sprintf("kind(%d)", int(k))
	}
}

// channelIDOffset is the Bot API dialog id convention: channel N maps to
// -1000000000000-N, basic group N to -N, user N to N.
const channelIDOffset = 1000000000000

// Ref is everything needed to address a peer in an API call later, without
// the entity being in the session cache anymore.
type Ref struct {
	Kind       Kind  `json:"kind"`
	ID         int64 `json:"id"`
	AccessHash int64 `json:"access_hash,omitempty"`
}

// DialogID returns the Bot-API-style dialog id for this peer, the uniform
// chat identifier used across message and read events.
func (r Ref) DialogID() int64 {
	switch r.Kind {
	case KindChat:
		return -r.ID
	case KindChannel:
		return -channelIDOffset - r.ID
	default:
		return r.ID
	}
}

// UserDialogID, ChatDialogID and ChannelDialogID map raw peer ids from
// update payloads to dialog ids without a full Ref in hand.
func UserDialogID(id int64) int64 { return id }

func ChatDialogID(id int64) int64 { return -id }

func ChannelDialogID(id int64) int64 { return -channelIDOffset - id }
