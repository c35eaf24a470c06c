// Package chat holds the synchronizers that reconcile paginated REST
// responses with live push events: the per-conversation message list, the
// cross-conversation summary list and the read-receipt exchange.
package chat

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"slices"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"chatsync/internal/models"
	"chatsync/internal/pubsub"
)

// PinLimit caps the pinned set per conversation.
const PinLimit = 5

var (
	// ErrPinLimit is returned when pinning a sixth message. Non-fatal; the
	// caller shows a notice and nothing is mutated.
	ErrPinLimit = errors.New("chat: pin limit reached")
	// ErrUnknownMessage is returned for operations on an id not in the list.
	ErrUnknownMessage = errors.New("chat: unknown message id")
)

// MessageAPI is the request/response surface the message synchronizer pulls
// from. Implemented by api.Client.
type MessageAPI interface {
	MessageHistory(ctx context.Context, chatID string, skip, limit int) ([]models.Message, bool, error)
	SendMessage(ctx context.Context, msg models.Message) (models.Message, error)
	EditMessage(ctx context.Context, msg models.Message) (models.Message, error)
	DeleteMessage(ctx context.Context, chatID, messageID string) error
	PinMessage(ctx context.Context, chatID, messageID string) error
	UnpinMessage(ctx context.Context, chatID, messageID string) error
	PinnedMessages(ctx context.Context, chatID string) ([]models.Message, error)
}

// EventBus is the realtime side the synchronizers subscribe to and emit on.
// Implemented by chathub.Hub.
type EventBus interface {
	Register(event string, fn func(data json.RawMessage)) func()
	Emit(event string, payload any) error
}

// MessageSync keeps one conversation's message list consistent across
// paginated history and live push events. All merge operations are idempotent
// by message id, so pull and push may interleave in any order.
type MessageSync struct {
	chatID      string
	localUserID string
	pageSize    int
	api         MessageAPI
	bus         EventBus
	log         *zap.Logger

	mu      sync.Mutex
	msgs    []models.Message
	pins    []models.Message
	hasMore bool
	closed  bool

	// reqSeq tags every history request; responses that are no longer the
	// most recent for this conversation are discarded.
	reqSeq atomic.Uint64

	unregister []func()

	pubsub.Notifier
}

// NewMessageSync builds a synchronizer for one conversation and subscribes
// it to the message-scoped realtime events. Events for other conversations
// are filtered out by chat id.
func NewMessageSync(chatID, localUserID string, pageSize int, api MessageAPI, bus EventBus, log *zap.Logger) *MessageSync {
	s := &MessageSync{
		chatID:      chatID,
		localUserID: localUserID,
		pageSize:    pageSize,
		api:         api,
		bus:         bus,
		log:         log,
	}

	s.unregister = append(s.unregister,
		bus.Register(models.EventNewMessage, func(data json.RawMessage) {
			msg, ok := models.DecodeIncomingMessage(data)
			if !ok || msg.ChatID != s.chatID {
				return
			}
			s.AppendLive(msg)
		}),
		bus.Register(models.EventMessageDeleted, func(data json.RawMessage) {
			var p models.DeletedPayload
			if err := json.Unmarshal(data, &p); err != nil || p.ChatID != s.chatID {
				return
			}
			s.ApplyDelete(p.MessageID)
		}),
		bus.Register(models.EventEditedMessage, func(data json.RawMessage) {
			var msg models.Message
			if err := json.Unmarshal(data, &msg); err != nil || msg.ChatID != s.chatID {
				return
			}
			s.ApplyEdit(msg)
		}),
	)

	return s
}

// ChatID returns the conversation this synchronizer is bound to.
func (s *MessageSync) ChatID() string { return s.chatID }

// Messages returns a copy of the current list, oldest first.
func (s *MessageSync) Messages() []models.Message {
	s.mu.Lock()
	defer s.mu.Unlock()
	return slices.Clone(s.msgs)
}

// Pins returns a copy of the pinned set.
func (s *MessageSync) Pins() []models.Message {
	s.mu.Lock()
	defer s.mu.Unlock()
	return slices.Clone(s.pins)
}

// HasMore reports whether older history pages are believed to exist. This is
// the full-page heuristic: a short page means the history is exhausted.
func (s *MessageSync) HasMore() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.hasMore
}

// LoadPage fetches one history page. skip=0 replaces the list wholesale,
// correcting any stale view on screen (re)entry; skip>0 prepends only
// messages not already present, keeping existing order and live appends.
// On error the current list stays untouched.
func (s *MessageSync) LoadPage(ctx context.Context, skip int) error {
	reqID := s.reqSeq.Add(1)

	page, more, err := s.api.MessageHistory(ctx, s.chatID, skip, s.pageSize)
	if err != nil {
		s.log.Warn("history page load failed", zap.String("chat", s.chatID), zap.Int("skip", skip), zap.Error(err))
		return fmt.Errorf("load history page: %w", err)
	}

	s.mu.Lock()
	if s.closed || s.reqSeq.Load() != reqID {
		// A newer request for this conversation superseded us.
		s.mu.Unlock()
		return nil
	}
	if skip == 0 {
		s.msgs = page
	} else {
		known := s.idSetLocked()
		fresh := make([]models.Message, 0, len(page))
		for _, m := range page {
			if _, dup := known[m.ID]; !dup {
				fresh = append(fresh, m)
			}
		}
		s.msgs = append(fresh, s.msgs...)
	}
	s.hasMore = more
	s.resyncPinsLocked()
	s.mu.Unlock()
	s.Notify()
	return nil
}

// AppendLive merges a pushed message into the list. Duplicate ids are
// ignored, which also absorbs replays and optimistic-send echoes.
func (s *MessageSync) AppendLive(msg models.Message) {
	s.mu.Lock()
	if s.closed || s.indexLocked(msg.ID) >= 0 {
		s.mu.Unlock()
		return
	}
	s.msgs = append(s.msgs, msg)
	s.resyncPinsLocked()
	s.mu.Unlock()
	s.Notify()
}

// Send appends an optimistic message, performs the network send, and on
// success swaps in the server-confirmed record. On failure the list reverts
// to the pre-send snapshot and the error is returned; there is no retry.
func (s *MessageSync) Send(ctx context.Context, content, replyToID string, attachments []models.Attachment) error {
	optimistic := models.Message{
		ID:          uuid.New().String(),
		ChatID:      s.chatID,
		SenderID:    s.localUserID,
		Content:     content,
		ReplyToID:   replyToID,
		Attachments: attachments,
		Status:      models.StatusSent,
		CreatedAt:   time.Now(),
		Delivery:    models.DeliveryPending,
	}

	s.mu.Lock()
	snapshot := slices.Clone(s.msgs)
	s.msgs = append(s.msgs, optimistic)
	s.mu.Unlock()
	s.Notify()

	confirmed, err := s.api.SendMessage(ctx, optimistic)
	if err != nil {
		s.mu.Lock()
		s.msgs = snapshot
		s.resyncPinsLocked()
		s.mu.Unlock()
		s.Notify()
		return fmt.Errorf("send message: %w", err)
	}
	confirmed.Delivery = models.DeliveryConfirmed

	s.mu.Lock()
	idx := s.indexLocked(optimistic.ID)
	switch {
	case idx < 0:
		// Rolled away by a concurrent reload; treat the confirmation as live.
		if s.indexLocked(confirmed.ID) < 0 {
			s.msgs = append(s.msgs, confirmed)
		}
	case s.indexLocked(confirmed.ID) >= 0:
		// The push echo beat the response; drop the optimistic entry.
		s.msgs = slices.Delete(s.msgs, idx, idx+1)
	default:
		s.msgs[idx] = confirmed
	}
	s.mu.Unlock()
	s.Notify()
	return nil
}

// Edit submits an edit for a message and applies the confirmed result
// locally, then announces it on the channel.
func (s *MessageSync) Edit(ctx context.Context, messageID, content string) error {
	s.mu.Lock()
	idx := s.indexLocked(messageID)
	if idx < 0 {
		s.mu.Unlock()
		return ErrUnknownMessage
	}
	edited := s.msgs[idx]
	s.mu.Unlock()

	edited.Content = content
	updated, err := s.api.EditMessage(ctx, edited)
	if err != nil {
		return fmt.Errorf("edit message: %w", err)
	}
	if updated.ID == "" {
		updated = edited
	}
	now := time.Now()
	updated.Status = models.StatusEdited
	if updated.EditedAt == nil {
		updated.EditedAt = &now
	}

	s.ApplyEdit(updated)
	_ = s.bus.Emit(models.EventEditedMessage, updated)
	return nil
}

// ApplyEdit patches a message in place from an edit event or confirmation.
func (s *MessageSync) ApplyEdit(msg models.Message) {
	s.mu.Lock()
	idx := s.indexLocked(msg.ID)
	if idx < 0 || s.msgs[idx].Deleted() {
		s.mu.Unlock()
		return
	}
	cur := &s.msgs[idx]
	cur.Content = msg.Content
	cur.Attachments = msg.Attachments
	cur.Status = models.StatusEdited
	cur.EditedAt = msg.EditedAt
	s.resyncPinsLocked()
	s.mu.Unlock()
	s.Notify()
}

// Delete asks the server to delete a message and tombstones it locally.
func (s *MessageSync) Delete(ctx context.Context, messageID string) error {
	if err := s.api.DeleteMessage(ctx, s.chatID, messageID); err != nil {
		return fmt.Errorf("delete message: %w", err)
	}
	s.ApplyDelete(messageID)
	return nil
}

// ApplyDelete tombstones a message: the entry stays in the list with its
// content and attachments cleared. Applying it twice is a no-op. Replies to
// the deleted message pick the tombstone up through ReplyPreview.
func (s *MessageSync) ApplyDelete(messageID string) {
	s.mu.Lock()
	idx := s.indexLocked(messageID)
	if idx < 0 || s.msgs[idx].Deleted() {
		s.mu.Unlock()
		return
	}
	s.msgs[idx].Tombstone()
	s.resyncPinsLocked()
	s.mu.Unlock()
	s.Notify()
}

// ReplyPreview resolves the message msg replies to by id lookup at read
// time, so a tombstoned original is reflected everywhere it is quoted.
func (s *MessageSync) ReplyPreview(msg models.Message) (models.Message, bool) {
	if msg.ReplyToID == "" {
		return models.Message{}, false
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	idx := s.indexLocked(msg.ReplyToID)
	if idx < 0 {
		return models.Message{}, false
	}
	return s.msgs[idx], true
}

// Pin adds a message to the pinned set, rejecting the operation once the
// cap is reached.
func (s *MessageSync) Pin(ctx context.Context, messageID string) error {
	s.mu.Lock()
	if len(s.pins) >= PinLimit {
		s.mu.Unlock()
		return ErrPinLimit
	}
	idx := s.indexLocked(messageID)
	if idx < 0 {
		s.mu.Unlock()
		return ErrUnknownMessage
	}
	for _, p := range s.pins {
		if p.ID == messageID {
			s.mu.Unlock()
			return nil
		}
	}
	msg := s.msgs[idx]
	s.mu.Unlock()

	if err := s.api.PinMessage(ctx, s.chatID, messageID); err != nil {
		return fmt.Errorf("pin message: %w", err)
	}

	s.mu.Lock()
	if len(s.pins) < PinLimit {
		s.pins = append(s.pins, msg)
	}
	s.mu.Unlock()
	s.Notify()
	return nil
}

// Unpin removes a message from the pinned set.
func (s *MessageSync) Unpin(ctx context.Context, messageID string) error {
	if err := s.api.UnpinMessage(ctx, s.chatID, messageID); err != nil {
		return fmt.Errorf("unpin message: %w", err)
	}
	s.mu.Lock()
	s.pins = slices.DeleteFunc(s.pins, func(m models.Message) bool { return m.ID == messageID })
	s.mu.Unlock()
	s.Notify()
	return nil
}

// LoadPins fetches the server-side pinned set for the conversation.
func (s *MessageSync) LoadPins(ctx context.Context) error {
	pins, err := s.api.PinnedMessages(ctx, s.chatID)
	if err != nil {
		return fmt.Errorf("load pins: %w", err)
	}
	if len(pins) > PinLimit {
		pins = pins[:PinLimit]
	}
	s.mu.Lock()
	s.pins = pins
	s.resyncPinsLocked()
	s.mu.Unlock()
	s.Notify()
	return nil
}

// Close detaches the synchronizer from the event bus and clears its state.
// The hub and join queue are session-wide and stay untouched.
func (s *MessageSync) Close() {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return
	}
	s.closed = true
	s.msgs = nil
	s.pins = nil
	unregister := s.unregister
	s.unregister = nil
	s.mu.Unlock()

	for _, u := range unregister {
		u()
	}
	s.Notify()
}

func (s *MessageSync) indexLocked(id string) int {
	for i := range s.msgs {
		if s.msgs[i].ID == id {
			return i
		}
	}
	return -1
}

func (s *MessageSync) idSetLocked() map[string]struct{} {
	known := make(map[string]struct{}, len(s.msgs))
	for i := range s.msgs {
		known[s.msgs[i].ID] = struct{}{}
	}
	return known
}

// resyncPinsLocked refreshes pinned entries from the live list so they
// reflect the message's current, possibly tombstoned, state.
func (s *MessageSync) resyncPinsLocked() {
	for i := range s.pins {
		if idx := s.indexLocked(s.pins[i].ID); idx >= 0 {
			s.pins[i] = s.msgs[idx]
		}
	}
}
