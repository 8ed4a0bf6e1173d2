package telegram

import (
	"context"
	"fmt"
	"log"
	"strings"

	"github.com/gotd/td/tg"

	"github.com/stellarlinkco/readsync/internal/bus"
	"github.com/stellarlinkco/readsync/internal/peers"
)

func (c *Client) registerHandlers(d tg.UpdateDispatcher) {
	d.OnNewMessage(func(ctx context.Context, e tg.Entities, u *tg.UpdateNewMessage) error {
		return c.onMessage(ctx, e, u.Message)
	})
	d.OnNewChannelMessage(func(ctx context.Context, e tg.Entities, u *tg.UpdateNewChannelMessage) error {
		return c.onMessage(ctx, e, u.Message)
	})
	// Two read-history variants: plain chats and broadcast channels.
	d.OnReadHistoryInbox(func(ctx context.Context, _ tg.Entities, u *tg.UpdateReadHistoryInbox) error {
		return c.emit(ctx, bus.Event{Read: &bus.ReadEvent{
			ChatID: dialogID(u.Peer),
			MaxID:  u.MaxID,
		}})
	})
	d.OnReadChannelInbox(func(ctx context.Context, _ tg.Entities, u *tg.UpdateReadChannelInbox) error {
		return c.emit(ctx, bus.Event{Read: &bus.ReadEvent{
			ChatID: peers.ChannelDialogID(u.ChannelID),
			MaxID:  u.MaxID,
		}})
	})
}

func (c *Client) onMessage(ctx context.Context, e tg.Entities, m tg.MessageClass) error {
	msg, ok := m.(*tg.Message)
	if !ok {
		return nil
	}
	fwd, ok := msg.GetFwdFrom()
	if !ok {
		return nil
	}
	origin := extractOrigin(fwd)
	if origin == nil {
		// header lacks the source chat or source message id: not trackable
		return nil
	}

	ev := &bus.MessageEvent{
		ChatID:    dialogID(msg.PeerID),
		MessageID: msg.ID,
		Origin:    origin,
	}
	if ref, name, ok := resolvePeer(msg.PeerID, e); ok {
		ev.Peer = &bus.PeerSeen{ChatID: ev.ChatID, Ref: ref, Name: name}
	}

	log.Printf("[telegram] forward detected: original=(%d, %d) -> forward=(%d, %d)",
		origin.PeerID, origin.MessageID, ev.ChatID, ev.MessageID)
	return c.emit(ctx, bus.Event{Message: ev})
}

func (c *Client) emit(ctx context.Context, ev bus.Event) error {
	select {
	case c.events <- ev:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// extractOrigin pulls the original message identity out of a forward
// header. Only headers carrying both the source peer and the channel post
// id identify a concrete original.
func extractOrigin(fwd tg.MessageFwdHeader) *bus.ForwardOrigin {
	fromID, ok := fwd.GetFromID()
	if !ok {
		return nil
	}
	post, ok := fwd.GetChannelPost()
	if !ok {
		return nil
	}
	return &bus.ForwardOrigin{PeerID: dialogID(fromID), MessageID: post}
}

// dialogID maps a raw update peer to the uniform Bot-API-style dialog id.
func dialogID(peer tg.PeerClass) int64 {
	switch p := peer.(type) {
	case *tg.PeerUser:
		return peers.UserDialogID(p.UserID)
	case *tg.PeerChat:
		return peers.ChatDialogID(p.ChatID)
	case *tg.PeerChannel:
		return peers.ChannelDialogID(p.ChannelID)
	default:
		return 0
	}
}

// resolvePeer builds a reusable peer reference (and display name) from the
// entities delivered with an update. Channels and users need their access
// hash, so they resolve only when the entity is present.
func resolvePeer(peer tg.PeerClass, e tg.Entities) (peers.Ref, string, bool) {
	switch p := peer.(type) {
	case *tg.PeerUser:
		u, ok := e.Users[p.UserID]
		if !ok {
			return peers.Ref{}, "", false
		}
		return peers.Ref{Kind: peers.KindUser, ID: p.UserID, AccessHash: u.AccessHash}, userName(u), true
	case *tg.PeerChat:
		name := fmt.Sprintf("%d", p.ChatID)
		if chat, ok := e.Chats[p.ChatID]; ok && chat.Title != "" {
			name = chat.Title
		}
		return peers.Ref{Kind: peers.KindChat, ID: p.ChatID}, name, true
	case *tg.PeerChannel:
		ch, ok := e.Channels[p.ChannelID]
		if !ok {
			return peers.Ref{}, "", false
		}
		name := strings.TrimSpace(ch.Title)
		if name == "" {
			name = fmt.Sprintf("%d", p.ChannelID)
		}
		return peers.Ref{Kind: peers.KindChannel, ID: p.ChannelID, AccessHash: ch.AccessHash}, name, true
	default:
		return peers.Ref{}, "", false
	}
}
