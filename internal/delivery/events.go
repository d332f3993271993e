// ABOUTME: Wire types for the real-time channel: the {event, data} envelope and its payloads
// ABOUTME: Field names are camelCase to match existing web clients

package delivery

import (
	"time"

	"github.com/2389/dm-gateway/internal/store"
)

// Event names, client to server.
const (
	EventSendMessage = "sendMessage"
	EventMarkAsRead  = "markAsRead"
)

// Event names, server to client.
const (
	EventReceiveMessage       = "receiveMessage"
	EventMessageSent          = "messageSent"
	EventMessagesMarkedAsRead = "messagesMarkedAsRead"
	EventMessagesRead         = "messagesRead"
	EventError                = "error"
)

// Event is the envelope of every frame on the real-time channel.
type Event struct {
	Name string `json:"event"`
	Data any    `json:"data"`
}

// SenderRef identifies who sent a pushed message.
type SenderRef struct {
	ID       int64  `json:"id"`
	Username string `json:"username,omitempty"`
	Avatar   string `json:"avatar,omitempty"`
}

// MessagePayload is the client-facing form of a message.
type MessagePayload struct {
	ID         int64      `json:"id"`
	SenderID   int64      `json:"senderId"`
	ReceiverID int64      `json:"receiverId"`
	Content    string     `json:"content"`
	IsRead     bool       `json:"isRead"`
	CreatedAt  time.Time  `json:"createdAt"`
	Sender     *SenderRef `json:"sender,omitempty"`
}

// NewMessagePayload converts a stored message. sender may be nil.
func NewMessagePayload(msg *store.Message, sender *store.UserProfile) *MessagePayload {
	p := &MessagePayload{
		ID:         msg.ID,
		SenderID:   msg.SenderID,
		ReceiverID: msg.ReceiverID,
		Content:    msg.Content,
		IsRead:     msg.Read,
		CreatedAt:  msg.CreatedAt,
	}
	if sender != nil {
		p.Sender = &SenderRef{ID: sender.ID, Username: sender.Username, Avatar: sender.Avatar}
	}
	return p
}

// MessageSentPayload acknowledges a sendMessage request to its sender.
type MessageSentPayload struct {
	Success   bool            `json:"success"`
	MessageID int64           `json:"messageId,omitempty"`
	Message   *MessagePayload `json:"message,omitempty"`
	Error     string          `json:"error,omitempty"`
}

// MarkedAsReadPayload acknowledges a markAsRead request.
type MarkedAsReadPayload struct {
	Success bool   `json:"success"`
	Error   string `json:"error,omitempty"`
}

// MessagesReadPayload tells OtherUserID that UserID has read their conversation.
type MessagesReadPayload struct {
	UserID      int64 `json:"userId"`
	OtherUserID int64 `json:"otherUserId"`
}

// ErrorPayload reports a malformed frame or unknown event.
type ErrorPayload struct {
	Error string `json:"error"`
}
