package chat

import (
	"context"
	"encoding/json"
	"fmt"
	"slices"
	"sync"
	"sync/atomic"

	"go.uber.org/zap"

	"chatsync/internal/models"
	"chatsync/internal/pubsub"
)

// ChatListAPI is the paginated chat list endpoint. Implemented by api.Client.
type ChatListAPI interface {
	ChatPage(ctx context.Context, category models.Category, page, pageSize int, search string) ([]models.ChatSummary, bool, error)
}

// ChatListSync maintains the cross-conversation summary list: paginated
// load, live reordering on new activity and unread counters. Category views
// are filters over the one list, so a single merge path keeps direct, group
// and bot screens consistent.
type ChatListSync struct {
	api         ChatListAPI
	localUserID string
	pageSize    int
	log         *zap.Logger

	mu            sync.Mutex
	chats         []models.ChatSummary
	hasMore       bool
	activeChatID  string
	badges        map[models.Category]int
	notifications int

	reqSeq atomic.Uint64

	unregister []func()

	pubsub.Notifier
}

// NewChatListSync builds the list synchronizer and subscribes it to chat
// update and badge events. It lives for the whole session.
func NewChatListSync(localUserID string, pageSize int, api ChatListAPI, bus EventBus, log *zap.Logger) *ChatListSync {
	s := &ChatListSync{
		api:         api,
		localUserID: localUserID,
		pageSize:    pageSize,
		log:         log,
		badges:      make(map[models.Category]int),
	}

	s.unregister = append(s.unregister,
		bus.Register(models.EventChatUpdated, func(data json.RawMessage) {
			var summary models.ChatSummary
			if err := json.Unmarshal(data, &summary); err != nil || summary.ID == "" {
				log.Warn("malformed chat update", zap.Error(err))
				return
			}
			s.ApplyLiveUpdate(summary)
		}),
		bus.Register(models.EventCategoryBadge, func(data json.RawMessage) {
			var p models.BadgePayload
			if err := json.Unmarshal(data, &p); err != nil || p.Category == "" {
				return
			}
			s.mu.Lock()
			s.badges[p.Category]++
			s.mu.Unlock()
			s.Notify()
		}),
		bus.Register(models.EventNewNotification, func(json.RawMessage) {
			s.mu.Lock()
			s.notifications++
			s.mu.Unlock()
			s.Notify()
		}),
	)

	return s
}

// Chats returns a copy of the current summary list, most recent first.
func (s *ChatListSync) Chats() []models.ChatSummary {
	s.mu.Lock()
	defer s.mu.Unlock()
	return slices.Clone(s.chats)
}

// ByCategory returns the summaries of one category, preserving list order.
func (s *ChatListSync) ByCategory(category models.Category) []models.ChatSummary {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []models.ChatSummary
	for _, c := range s.chats {
		if c.Category == category {
			out = append(out, c)
		}
	}
	return out
}

// HasMore reports whether more list pages are believed to exist.
func (s *ChatListSync) HasMore() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.hasMore
}

// LoadPage fetches one chat list page. Page 1 replaces the list after
// de-duplicating by id (first occurrence wins, source order is
// authoritative). Later pages merge: known entries update in place, keeping
// their current relative order so an in-flight scroll is not reshuffled; new
// entries append. On error nothing is mutated.
func (s *ChatListSync) LoadPage(ctx context.Context, page int, category models.Category, search string) error {
	reqID := s.reqSeq.Add(1)

	items, more, err := s.api.ChatPage(ctx, category, page, s.pageSize, search)
	if err != nil {
		s.log.Warn("chat list page load failed", zap.Int("page", page), zap.Error(err))
		return fmt.Errorf("load chat page: %w", err)
	}

	s.mu.Lock()
	if s.reqSeq.Load() != reqID {
		s.mu.Unlock()
		return nil
	}
	if page <= 1 {
		seen := make(map[string]struct{}, len(items))
		deduped := make([]models.ChatSummary, 0, len(items))
		for _, c := range items {
			if _, dup := seen[c.ID]; dup {
				continue
			}
			seen[c.ID] = struct{}{}
			deduped = append(deduped, c)
		}
		s.chats = deduped
	} else {
		for _, c := range items {
			if idx := s.indexLocked(c.ID); idx >= 0 {
				s.chats[idx] = c
			} else {
				s.chats = append(s.chats, c)
			}
		}
	}
	s.hasMore = more
	s.mu.Unlock()
	s.Notify()
	return nil
}

// ApplyLiveUpdate merges a pushed summary into the list and moves it to the
// front; recency always wins visually, whatever page the entry came from.
// The attached unread counter is applied only when addressed to the local
// user, and is cleared outright when that conversation is currently open.
func (s *ChatListSync) ApplyLiveUpdate(update models.ChatSummary) {
	s.mu.Lock()
	merged := update
	if idx := s.indexLocked(update.ID); idx >= 0 {
		merged = s.chats[idx]
		if update.Latest != nil {
			merged.Latest = update.Latest
		}
		if !update.UpdatedAt.IsZero() {
			merged.UpdatedAt = update.UpdatedAt
		}
		if update.Name != "" {
			merged.Name = update.Name
		}
		if update.Category != "" {
			merged.Category = update.Category
		}
		if update.Unread.ForUserID == s.localUserID {
			merged.Unread = update.Unread
		}
		s.chats = slices.Delete(s.chats, idx, idx+1)
	} else if update.Unread.ForUserID != s.localUserID {
		merged.Unread = models.Unread{}
	}
	if s.activeChatID == merged.ID {
		merged.Unread.Count = 0
	}
	s.chats = slices.Insert(s.chats, 0, merged)
	s.mu.Unlock()
	s.Notify()
}

// ClearUnread zeroes the unread counter of one conversation, used when the
// local user reads it.
func (s *ChatListSync) ClearUnread(chatID string) {
	s.mu.Lock()
	idx := s.indexLocked(chatID)
	if idx < 0 || s.chats[idx].Unread.Count == 0 {
		s.mu.Unlock()
		return
	}
	s.chats[idx].Unread.Count = 0
	s.mu.Unlock()
	s.Notify()
}

// SetActiveChat marks a conversation as open on screen; its unread counter
// is cleared and stays cleared while it is active.
func (s *ChatListSync) SetActiveChat(chatID string) {
	s.mu.Lock()
	s.activeChatID = chatID
	s.mu.Unlock()
	s.ClearUnread(chatID)
}

// ClearActiveChat marks no conversation as open.
func (s *ChatListSync) ClearActiveChat() {
	s.mu.Lock()
	s.activeChatID = ""
	s.mu.Unlock()
}

// Badge returns the cross-screen unread badge for one category.
func (s *ChatListSync) Badge(category models.Category) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.badges[category]
}

// ClearBadge resets a category badge, typically on visiting that screen.
func (s *ChatListSync) ClearBadge(category models.Category) {
	s.mu.Lock()
	delete(s.badges, category)
	s.mu.Unlock()
	s.Notify()
}

// Notifications returns how many opaque notification signals arrived.
func (s *ChatListSync) Notifications() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.notifications
}

// Close detaches the synchronizer from the event bus.
func (s *ChatListSync) Close() {
	s.mu.Lock()
	unregister := s.unregister
	s.unregister = nil
	s.mu.Unlock()
	for _, u := range unregister {
		u()
	}
}

func (s *ChatListSync) indexLocked(id string) int {
	for i := range s.chats {
		if s.chats[i].ID == id {
			return i
		}
	}
	return -1
}
