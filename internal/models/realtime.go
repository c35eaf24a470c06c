package models

import "encoding/json"

// Realtime event names. The strings are the wire contract with the chat
// server and must match it exactly, including the space in "stop typing".
const (
	// Outgoing.
	EventOnline        = "online"
	EventHeartbeat     = "heartbeat"
	EventJoinChats     = "joinChats"
	EventTyping        = "typing"
	EventStopTyping    = "stop typing"
	EventMessageRead   = "message:read"
	EventEditedMessage = "editedMessage"

	// Incoming.
	EventGetUsers        = "get-users"
	EventNewMessage      = "server-message:new"
	EventPeerRead        = "server-message:read"
	EventMessageDeleted  = "server-message:deleted"
	EventCategoryBadge   = "server-message:newMessage"
	EventChatUpdated     = "newMessageFromChats"
	EventNewNotification = "server-message:newNotification"
)

// OnlineUser is one entry of the wholesale presence snapshot delivered by
// the get-users event.
type OnlineUser struct {
	UserID string `json:"userId"`
	Online bool   `json:"online"`
}

// TypingPayload travels with typing / stop typing in both directions.
type TypingPayload struct {
	Room     string `json:"room"`
	UserID   string `json:"userId"`
	UserName string `json:"userName,omitempty"`
}

// ReadPayload is the outgoing message:read marker.
type ReadPayload struct {
	ChatID    string `json:"chatId"`
	MessageID string `json:"messageId"`
	SenderID  string `json:"senderId"`
}

// PeerReadPayload is the incoming server-message:read marker. The field name
// lastReadedMessageId is the server's spelling.
type PeerReadPayload struct {
	SenderID          string `json:"senderId"`
	ChatID            string `json:"chatId"`
	LastReadMessageID string `json:"lastReadedMessageId"`
}

// DeletedPayload is the incoming server-message:deleted notification.
type DeletedPayload struct {
	ChatID    string `json:"chatId"`
	MessageID string `json:"messageId"`
	Status    string `json:"status,omitempty"`
	DeletedBy string `json:"deletedBy,omitempty"`
}

// BadgePayload carries the category tag of server-message:newMessage, used
// only for cross-screen unread badges.
type BadgePayload struct {
	Category Category `json:"category"`
}

// DecodeIncomingMessage unpacks a server-message:new payload, which the
// server sends either as {"latestMessage": {...}} or as a bare message.
func DecodeIncomingMessage(raw json.RawMessage) (Message, bool) {
	var envelope struct {
		LatestMessage *Message `json:"latestMessage"`
	}
	if err := json.Unmarshal(raw, &envelope); err == nil && envelope.LatestMessage != nil {
		return *envelope.LatestMessage, envelope.LatestMessage.ID != ""
	}
	var msg Message
	if err := json.Unmarshal(raw, &msg); err != nil {
		return Message{}, false
	}
	return msg, msg.ID != ""
}
