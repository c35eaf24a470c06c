package chat

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"

	"go.uber.org/zap"

	"chatsync/internal/models"
	"chatsync/internal/pubsub"
)

// ReadAPI is the read-marker surface of the REST API. Implemented by
// api.Client.
type ReadAPI interface {
	MarkRead(ctx context.Context, chatID, messageID string) error
	LastReadMarker(ctx context.Context, chatID string) (string, error)
}

// UnreadClearer zeroes a conversation's local unread counter. Implemented by
// ChatListSync.
type UnreadClearer interface {
	ClearUnread(chatID string)
}

// ReadReceipts exchanges last-read markers between the two participants of a
// direct conversation. The counterparty's marker drives the read/unread
// ticks rendered on the local user's own messages.
type ReadReceipts struct {
	api         ReadAPI
	bus         EventBus
	unread      UnreadClearer
	localUserID string
	log         *zap.Logger

	mu             sync.Mutex
	openChatID     string
	counterpartyID string
	markers        map[string]string

	unregister []func()

	pubsub.Notifier
}

// NewReadReceipts builds the tracker and subscribes it to peer read events.
func NewReadReceipts(localUserID string, api ReadAPI, bus EventBus, unread UnreadClearer, log *zap.Logger) *ReadReceipts {
	r := &ReadReceipts{
		api:         api,
		bus:         bus,
		unread:      unread,
		localUserID: localUserID,
		log:         log,
		markers:     make(map[string]string),
	}

	r.unregister = append(r.unregister,
		bus.Register(models.EventPeerRead, func(data json.RawMessage) {
			var p models.PeerReadPayload
			if err := json.Unmarshal(data, &p); err != nil {
				return
			}
			r.OnPeerRead(p)
		}),
	)

	return r
}

// MarkRead records messageID as the local user's last-read message for the
// conversation. The local unread counter is zeroed optimistically; the
// channel announcement is best-effort.
func (r *ReadReceipts) MarkRead(ctx context.Context, chatID, messageID string) error {
	r.unread.ClearUnread(chatID)
	_ = r.bus.Emit(models.EventMessageRead, models.ReadPayload{
		ChatID:    chatID,
		MessageID: messageID,
		SenderID:  r.localUserID,
	})
	if err := r.api.MarkRead(ctx, chatID, messageID); err != nil {
		return fmt.Errorf("mark read: %w", err)
	}
	return nil
}

// OnPeerRead updates the cached counterparty marker when the event concerns
// the conversation currently open and was sent by its counterparty.
func (r *ReadReceipts) OnPeerRead(p models.PeerReadPayload) {
	r.mu.Lock()
	if p.ChatID != r.openChatID || p.SenderID != r.counterpartyID || p.LastReadMessageID == "" {
		r.mu.Unlock()
		return
	}
	r.markers[p.ChatID] = p.LastReadMessageID
	r.mu.Unlock()
	r.Notify()
}

// FetchMarker pulls the counterparty's stored marker, typically on opening
// the conversation.
func (r *ReadReceipts) FetchMarker(ctx context.Context, chatID string) error {
	id, err := r.api.LastReadMarker(ctx, chatID)
	if err != nil {
		return fmt.Errorf("fetch read marker: %w", err)
	}
	r.mu.Lock()
	if id != "" {
		r.markers[chatID] = id
	}
	r.mu.Unlock()
	r.Notify()
	return nil
}

// PeerMarker returns the counterparty's last-read message id for a
// conversation, if known.
func (r *ReadReceipts) PeerMarker(chatID string) (string, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	id, ok := r.markers[chatID]
	return id, ok
}

// SetOpenConversation scopes incoming peer read events to one direct
// conversation and its counterparty.
func (r *ReadReceipts) SetOpenConversation(chatID, counterpartyID string) {
	r.mu.Lock()
	r.openChatID = chatID
	r.counterpartyID = counterpartyID
	r.mu.Unlock()
}

// ClearOpenConversation drops the open-conversation scope and the transient
// marker cached for it.
func (r *ReadReceipts) ClearOpenConversation() {
	r.mu.Lock()
	if r.openChatID != "" {
		delete(r.markers, r.openChatID)
	}
	r.openChatID = ""
	r.counterpartyID = ""
	r.mu.Unlock()
	r.Notify()
}

// Close detaches the tracker from the event bus.
func (r *ReadReceipts) Close() {
	r.mu.Lock()
	unregister := r.unregister
	r.unregister = nil
	r.mu.Unlock()
	for _, u := range unregister {
		u()
	}
}
