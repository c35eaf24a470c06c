package models

import "time"

// MessageStatus indicates the lifecycle stage of a message on the server.
type MessageStatus string

const (
	StatusSent    MessageStatus = "sent"
	StatusEdited  MessageStatus = "edited"
	StatusDeleted MessageStatus = "deleted"
)

// DeliveryState tracks the local two-phase lifecycle of an optimistically
// sent message: it starts Pending, and ends either Confirmed (server accepted
// it) or Failed (the send was rolled back).
type DeliveryState int

const (
	DeliveryConfirmed DeliveryState = iota
	DeliveryPending
	DeliveryFailed
)

// DeletedPlaceholder is the content shown for a tombstoned message.
const DeletedPlaceholder = "This message was deleted"

// Attachment describes a file attached to a message. Only the fields the
// sync engine consumes are modeled; upload and compression live elsewhere.
type Attachment struct {
	ID       string `json:"id"`
	URL      string `json:"url"`
	Name     string `json:"name,omitempty"`
	MimeType string `json:"mimeType,omitempty"`
	Size     int64  `json:"size,omitempty"`
}

// Message is a single chat message as held in the per-conversation list.
//
// ReplyToID is a weak reference: it is resolved by id lookup at read time,
// never stored as a nested copy, so a tombstoned original is reflected in
// every reply preview automatically.
type Message struct {
	ID          string        `json:"id"`
	ChatID      string        `json:"chatId"`
	SenderID    string        `json:"senderId"`
	Content     string        `json:"content"`
	Attachments []Attachment  `json:"attachments,omitempty"`
	ReplyToID   string        `json:"replyToId,omitempty"`
	Status      MessageStatus `json:"status"`
	CreatedAt   time.Time     `json:"createdAt"`
	EditedAt    *time.Time    `json:"editedAt,omitempty"`

	// Delivery is local-only state, never sent over the wire.
	Delivery DeliveryState `json:"-"`
}

// Tombstone clears the message in place. The entry keeps its id and position
// so the UI and reply references stay stable after deletion.
func (m *Message) Tombstone() {
	m.Content = ""
	m.Attachments = nil
	m.Status = StatusDeleted
}

// Deleted reports whether the message has been tombstoned.
func (m *Message) Deleted() bool {
	return m.Status == StatusDeleted
}
