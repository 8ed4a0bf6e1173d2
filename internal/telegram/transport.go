package telegram

import (
	"context"
	"fmt"
	"strings"

	"github.com/gotd/td/tg"

	"github.com/stellarlinkco/readsync/internal/marker"
	"github.com/stellarlinkco/readsync/internal/peers"
)

const dialogPageSize = 100

// Transport issues the raw mark-read calls and enumerates dialogs for the
// peer-cache bootstrap. It implements marker.Transport.
type Transport struct {
	api *tg.Client
}

func (t *Transport) ReadHistory(ctx context.Context, ref peers.Ref, maxID int) error {
	_, err := t.api.MessagesReadHistory(ctx, &tg.MessagesReadHistoryRequest{
		Peer:  inputPeer(ref),
		MaxID: maxID,
	})
	if err != nil {
		return fmt.Errorf("messages.readHistory: %w", err)
	}
	return nil
}

func (t *Transport) ReadChannelHistory(ctx context.Context, ref peers.Ref, maxID int) error {
	_, err := t.api.ChannelsReadHistory(ctx, &tg.ChannelsReadHistoryRequest{
		Channel: &tg.InputChannel{ChannelID: ref.ID, AccessHash: ref.AccessHash},
		MaxID:   maxID,
	})
	if err != nil {
		return fmt.Errorf("channels.readHistory: %w", err)
	}
	return nil
}

// Dialogs pages through messages.getDialogs and returns every peer the
// account can see.
func (t *Transport) Dialogs(ctx context.Context) ([]marker.Dialog, error) {
	var out []marker.Dialog
	offsetDate, offsetID := 0, 0
	var offsetPeer tg.InputPeerClass = &tg.InputPeerEmpty{}

	for {
		res, err := t.api.MessagesGetDialogs(ctx, &tg.MessagesGetDialogsRequest{
			OffsetDate: offsetDate,
			OffsetID:   offsetID,
			OffsetPeer: offsetPeer,
			Limit:      dialogPageSize,
		})
		if err != nil {
			return nil, fmt.Errorf("messages.getDialogs: %w", err)
		}

		var dlgs []tg.DialogClass
		var msgs []tg.MessageClass
		var chats []tg.ChatClass
		var users []tg.UserClass
		switch d := res.(type) {
		case *tg.MessagesDialogs:
			dlgs, msgs, chats, users = d.Dialogs, d.Messages, d.Chats, d.Users
		case *tg.MessagesDialogsSlice:
			dlgs, msgs, chats, users = d.Dialogs, d.Messages, d.Chats, d.Users
		default:
			return out, nil
		}

		out = append(out, collectPeers(chats, users)...)

		if len(dlgs) < dialogPageSize {
			return out, nil
		}

		last, ok := dlgs[len(dlgs)-1].(*tg.Dialog)
		if !ok {
			return out, nil
		}
		nextPeer, ok := entityInputPeer(last.Peer, chats, users)
		if !ok {
			return out, nil
		}
		nextDate := topMessageDate(msgs, last.Peer, last.TopMessage)
		if nextDate == 0 {
			return out, nil
		}
		offsetID, offsetDate, offsetPeer = last.TopMessage, nextDate, nextPeer
	}
}

func collectPeers(chats []tg.ChatClass, users []tg.UserClass) []marker.Dialog {
	var out []marker.Dialog
	for _, u := range users {
		user, ok := u.(*tg.User)
		if !ok {
			continue
		}
		out = append(out, marker.Dialog{
			ChatID: peers.UserDialogID(user.ID),
			Ref:    peers.Ref{Kind: peers.KindUser, ID: user.ID, AccessHash: user.AccessHash},
			Name:   userName(user),
		})
	}
	for _, c := range chats {
		switch chat := c.(type) {
		case *tg.Chat:
			name := chat.Title
			if name == "" {
				name = fmt.Sprintf("%d", chat.ID)
			}
			out = append(out, marker.Dialog{
				ChatID: peers.ChatDialogID(chat.ID),
				Ref:    peers.Ref{Kind: peers.KindChat, ID: chat.ID},
				Name:   name,
			})
		case *tg.Channel:
			name := strings.TrimSpace(chat.Title)
			if name == "" {
				name = fmt.Sprintf("%d", chat.ID)
			}
			out = append(out, marker.Dialog{
				ChatID: peers.ChannelDialogID(chat.ID),
				Ref:    peers.Ref{Kind: peers.KindChannel, ID: chat.ID, AccessHash: chat.AccessHash},
				Name:   name,
			})
		}
	}
	return out
}

func entityInputPeer(peer tg.PeerClass, chats []tg.ChatClass, users []tg.UserClass) (tg.InputPeerClass, bool) {
	switch p := peer.(type) {
	case *tg.PeerUser:
		for _, u := range users {
			if user, ok := u.(*tg.User); ok && user.ID == p.UserID {
				return &tg.InputPeerUser{UserID: user.ID, AccessHash: user.AccessHash}, true
			}
		}
	case *tg.PeerChat:
		return &tg.InputPeerChat{ChatID: p.ChatID}, true
	case *tg.PeerChannel:
		for _, c := range chats {
			if ch, ok := c.(*tg.Channel); ok && ch.ID == p.ChannelID {
				return &tg.InputPeerChannel{ChannelID: ch.ID, AccessHash: ch.AccessHash}, true
			}
		}
	}
	return nil, false
}

func topMessageDate(msgs []tg.MessageClass, peer tg.PeerClass, topID int) int {
	want := dialogID(peer)
	for _, m := range msgs {
		switch msg := m.(type) {
		case *tg.Message:
			if msg.ID == topID && dialogID(msg.PeerID) == want {
				return msg.Date
			}
		case *tg.MessageService:
			if msg.ID == topID && dialogID(msg.PeerID) == want {
				return msg.Date
			}
		}
	}
	return 0
}

func inputPeer(ref peers.Ref) tg.InputPeerClass {
	switch ref.Kind {
	case peers.KindChat:
		return &tg.InputPeerChat{ChatID: ref.ID}
	case peers.KindChannel:
		return &tg.InputPeerChannel{ChannelID: ref.ID, AccessHash: ref.AccessHash}
	default:
		return &tg.InputPeerUser{UserID: ref.ID, AccessHash: ref.AccessHash}
	}
}
