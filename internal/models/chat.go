package models

import "time"

// Category classifies a conversation for list filtering and unread badges.
type Category string

const (
	CategoryDirect Category = "direct"
	CategoryGroup  Category = "group"
	CategoryBot    Category = "bot"
)

// LatestMessage is the snapshot of a conversation's most recent message as
// carried inside a ChatSummary.
type LatestMessage struct {
	ID        string    `json:"id"`
	SenderID  string    `json:"senderId"`
	Content   string    `json:"content"`
	CreatedAt time.Time `json:"createdAt"`
}

// Unread describes the unread counter attached to a chat summary. ForUserID
// says whom the counter is addressed to; counters addressed to other
// participants must not overwrite the local one.
type Unread struct {
	Count     int    `json:"count"`
	ForUserID string `json:"forUserId,omitempty"`
}

// ChatSummary is one row of the cross-conversation list. It is owned by the
// chat list synchronizer and mutated only through its merge operations.
type ChatSummary struct {
	ID        string         `json:"id"`
	Category  Category       `json:"category"`
	Name      string         `json:"name,omitempty"`
	Latest    *LatestMessage `json:"latestMessage,omitempty"`
	Unread    Unread         `json:"unread"`
	UpdatedAt time.Time      `json:"updatedAt"`
}

// Before reports whether s sorts after o by latest activity, tie-broken by id
// so ordering stays deterministic for equal timestamps.
func (s *ChatSummary) Before(o *ChatSummary) bool {
	if s.UpdatedAt.Equal(o.UpdatedAt) {
		return s.ID < o.ID
	}
	return s.UpdatedAt.After(o.UpdatedAt)
}
