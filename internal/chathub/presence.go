package chathub

import (
	"sort"
	"sync"

	"chatsync/internal/models"
	"chatsync/internal/pubsub"
)

// TypingEntry is one user currently typing in a room.
type TypingEntry struct {
	UserID   string
	UserName string
	Room     string
}

// Presence maintains the set of online users and the per-room typing
// indicators. The online set is replaced wholesale on every snapshot from
// the server; typing entries are pruned when their user drops offline.
type Presence struct {
	mu     sync.RWMutex
	online map[string]bool
	typing map[string]TypingEntry

	pubsub.Notifier
}

// NewPresence returns an empty tracker.
func NewPresence() *Presence {
	return &Presence{
		online: make(map[string]bool),
		typing: make(map[string]TypingEntry),
	}
}

// ApplySnapshot replaces the online set with the server's authoritative list
// and removes typing entries for users no longer online.
func (p *Presence) ApplySnapshot(users []models.OnlineUser) {
	p.mu.Lock()
	online := make(map[string]bool, len(users))
	for _, u := range users {
		if u.UserID != "" {
			online[u.UserID] = u.Online
		}
	}
	p.online = online
	for id := range p.typing {
		if !online[id] {
			delete(p.typing, id)
		}
	}
	p.mu.Unlock()
	p.Notify()
}

// OnTyping upserts a typing entry; at most one entry exists per user.
func (p *Presence) OnTyping(ev models.TypingPayload) {
	if ev.UserID == "" {
		return
	}
	p.mu.Lock()
	p.typing[ev.UserID] = TypingEntry{UserID: ev.UserID, UserName: ev.UserName, Room: ev.Room}
	p.mu.Unlock()
	p.Notify()
}

// OnStopTyping removes the user's typing entry, if any.
func (p *Presence) OnStopTyping(userID string) {
	p.mu.Lock()
	_, ok := p.typing[userID]
	delete(p.typing, userID)
	p.mu.Unlock()
	if ok {
		p.Notify()
	}
}

// IsOnline reports whether the given user is currently online.
func (p *Presence) IsOnline(userID string) bool {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return p.online[userID]
}

// Typing returns the typing entries for one room, ordered by user id.
func (p *Presence) Typing(room string) []TypingEntry {
	p.mu.RLock()
	var entries []TypingEntry
	for _, e := range p.typing {
		if e.Room == room {
			entries = append(entries, e)
		}
	}
	p.mu.RUnlock()
	sort.Slice(entries, func(i, j int) bool { return entries[i].UserID < entries[j].UserID })
	return entries
}

// Clear drops all presence state. Called when the transport disconnects;
// whoever is online will be re-announced by the next snapshot.
func (p *Presence) Clear() {
	p.mu.Lock()
	p.online = make(map[string]bool)
	p.typing = make(map[string]TypingEntry)
	p.mu.Unlock()
	p.Notify()
}
