// ABOUTME: Store interfaces and data types for dm-gateway persistence
// ABOUTME: Defines User, Message, Conversation and the narrow read/write operations on them

package store

import (
	"context"
	"errors"
	"time"
)

// ErrNotFound is returned when a requested entity does not exist
var ErrNotFound = errors.New("not found")

// ErrDuplicateConversation is returned when a conversation for the same user pair already exists
var ErrDuplicateConversation = errors.New("conversation already exists")

// User is a registered platform account. Accounts are owned by the platform;
// this service only reads them (plus dev seeding).
type User struct {
	ID        int64
	Username  string
	Avatar    string
	CreatedAt time.Time
}

// UserProfile is the public subset of a User shown to other participants.
type UserProfile struct {
	ID       int64
	Username string
	Avatar   string
}

// Profile returns the public fields of the user.
func (u *User) Profile() *UserProfile {
	return &UserProfile{ID: u.ID, Username: u.Username, Avatar: u.Avatar}
}

// Message is a single direct message. ID is assigned by the store on insert
// and increases monotonically. Read only ever flips from false to true.
type Message struct {
	ID         int64
	SenderID   int64
	ReceiverID int64
	Content    string
	Read       bool
	CreatedAt  time.Time
}

// UnreadSlot selects one of the two per-participant unread counters.
type UnreadSlot int

const (
	SlotLow  UnreadSlot = iota // counter for Conversation.UserLow
	SlotHigh                   // counter for Conversation.UserHigh
)

func (s UnreadSlot) String() string {
	if s == SlotHigh {
		return "high"
	}
	return "low"
}

// Conversation is the single row describing the pair (UserLow, UserHigh),
// with UserLow < UserHigh always.
type Conversation struct {
	ID            int64
	UserLow       int64
	UserHigh      int64
	LastMessageID *int64 // nil until the first message is recorded
	UnreadLow     int
	UnreadHigh    int
	CreatedAt     time.Time
	UpdatedAt     time.Time
}

// Unread returns the counter held in the given slot.
func (c *Conversation) Unread(slot UnreadSlot) int {
	if slot == SlotHigh {
		return c.UnreadHigh
	}
	return c.UnreadLow
}

// UserStore reads platform accounts.
type UserStore interface {
	GetUser(ctx context.Context, id int64) (*User, error)
	CreateUser(ctx context.Context, user *User) error
}

// MessageStore persists direct messages.
type MessageStore interface {
	// CreateMessage inserts the message and sets msg.ID.
	CreateMessage(ctx context.Context, msg *Message) error
	GetMessage(ctx context.Context, id int64) (*Message, error)
	// ListMessagesBetween returns messages exchanged by a and b in either
	// direction, newest first, skipping offset rows and returning at most limit.
	ListMessagesBetween(ctx context.Context, a, b int64, offset, limit int) ([]*Message, error)
	// MarkMessagesRead flips read=true on the given messages addressed to
	// receiverID that are still unread. Returns how many rows changed.
	MarkMessagesRead(ctx context.Context, receiverID int64, ids []int64) (int, error)
}

// ConversationStore persists per-pair conversation rows and their counters.
type ConversationStore interface {
	// CreateConversation inserts the row and sets conv.ID. Returns
	// ErrDuplicateConversation if the pair already has a row.
	CreateConversation(ctx context.Context, conv *Conversation) error
	GetConversationByPair(ctx context.Context, low, high int64) (*Conversation, error)
	// ListConversationsForUser returns every conversation involving userID,
	// most recently updated first.
	ListConversationsForUser(ctx context.Context, userID int64) ([]*Conversation, error)
	// RecordConversationMessage atomically advances last_message_id, adds one
	// to the counter in slot, and bumps updated_at.
	RecordConversationMessage(ctx context.Context, id, messageID int64, slot UnreadSlot, at time.Time) error
	// ResetConversationUnread sets the counter in slot to zero. Returns false
	// without touching the row when the counter was already zero.
	ResetConversationUnread(ctx context.Context, id int64, slot UnreadSlot, at time.Time) (bool, error)
}

// Store is everything the gateway needs from durable storage.
type Store interface {
	UserStore
	MessageStore
	ConversationStore

	// Close releases any resources held by the store
	Close() error
}
