// ABOUTME: Mock Store implementation for testing
// ABOUTME: Allows tests to run without SQLite while honouring the same uniqueness and counter rules

package store

import (
	"context"
	"sort"
	"sync"
	"time"
)

type pairKey struct {
	low, high int64
}

// MockStore is an in-memory Store implementation for testing.
type MockStore struct {
	mu            sync.RWMutex
	users         map[int64]*User
	messages      []*Message // in insertion (id) order
	conversations map[int64]*Conversation
	convByPair    map[pairKey]int64
	nextUserID    int64
	nextMessageID int64
	nextConvID    int64

	// Hooks let tests inject failures. Nil means no failure.
	FailCreateMessage     error
	FailRecordMessage     error
	FailListConversations error
}

// NewMockStore creates a new MockStore.
func NewMockStore() *MockStore {
	return &MockStore{
		users:         make(map[int64]*User),
		conversations: make(map[int64]*Conversation),
		convByPair:    make(map[pairKey]int64),
	}
}

// Close is a no-op.
func (m *MockStore) Close() error { return nil }

// GetUser retrieves a user by ID.
func (m *MockStore) GetUser(ctx context.Context, id int64) (*User, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	u, ok := m.users[id]
	if !ok {
		return nil, ErrNotFound
	}
	result := *u
	return &result, nil
}

// CreateUser stores a user, assigning an ID when zero.
func (m *MockStore) CreateUser(ctx context.Context, user *User) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if user.ID == 0 {
		m.nextUserID++
		for m.users[m.nextUserID] != nil {
			m.nextUserID++
		}
		user.ID = m.nextUserID
	}
	if _, exists := m.users[user.ID]; exists {
		return ErrDuplicateUser
	}
	for _, u := range m.users {
		if u.Username == user.Username {
			return ErrDuplicateUser
		}
	}
	if user.CreatedAt.IsZero() {
		user.CreatedAt = time.Now().UTC()
	}

	u := *user
	m.users[u.ID] = &u
	return nil
}

// CreateMessage stores a message and assigns the next ID.
func (m *MockStore) CreateMessage(ctx context.Context, msg *Message) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.FailCreateMessage != nil {
		return m.FailCreateMessage
	}
	if msg.CreatedAt.IsZero() {
		msg.CreatedAt = time.Now().UTC()
	}

	m.nextMessageID++
	msg.ID = m.nextMessageID

	stored := *msg
	m.messages = append(m.messages, &stored)
	return nil
}

// GetMessage retrieves a message by ID.
func (m *MockStore) GetMessage(ctx context.Context, id int64) (*Message, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	for _, msg := range m.messages {
		if msg.ID == id {
			result := *msg
			return &result, nil
		}
	}
	return nil, ErrNotFound
}

// ListMessagesBetween returns a page of the history between a and b, newest first.
func (m *MockStore) ListMessagesBetween(ctx context.Context, a, b int64, offset, limit int) ([]*Message, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	var matched []*Message
	for i := len(m.messages) - 1; i >= 0; i-- {
		msg := m.messages[i]
		if (msg.SenderID == a && msg.ReceiverID == b) || (msg.SenderID == b && msg.ReceiverID == a) {
			matched = append(matched, msg)
		}
	}

	if offset < 0 {
		offset = 0
	}
	if limit <= 0 || offset >= len(matched) {
		return nil, nil
	}
	end := min(offset+limit, len(matched))

	result := make([]*Message, 0, end-offset)
	for _, msg := range matched[offset:end] {
		cp := *msg
		result = append(result, &cp)
	}
	return result, nil
}

// MarkMessagesRead flips unread messages addressed to receiverID.
func (m *MockStore) MarkMessagesRead(ctx context.Context, receiverID int64, ids []int64) (int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	want := make(map[int64]bool, len(ids))
	for _, id := range ids {
		want[id] = true
	}

	changed := 0
	for _, msg := range m.messages {
		if want[msg.ID] && msg.ReceiverID == receiverID && !msg.Read {
			msg.Read = true
			changed++
		}
	}
	return changed, nil
}

// CreateConversation stores a conversation, enforcing one row per pair.
func (m *MockStore) CreateConversation(ctx context.Context, conv *Conversation) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	key := pairKey{conv.UserLow, conv.UserHigh}
	if _, exists := m.convByPair[key]; exists {
		return ErrDuplicateConversation
	}

	now := time.Now().UTC()
	if conv.CreatedAt.IsZero() {
		conv.CreatedAt = now
	}
	if conv.UpdatedAt.IsZero() {
		conv.UpdatedAt = conv.CreatedAt
	}

	m.nextConvID++
	conv.ID = m.nextConvID

	c := copyConversation(conv)
	m.conversations[c.ID] = c
	m.convByPair[key] = c.ID
	return nil
}

func copyConversation(c *Conversation) *Conversation {
	cp := *c
	if c.LastMessageID != nil {
		id := *c.LastMessageID
		cp.LastMessageID = &id
	}
	return &cp
}

// GetConversationByPair retrieves the conversation for (low, high).
func (m *MockStore) GetConversationByPair(ctx context.Context, low, high int64) (*Conversation, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	id, ok := m.convByPair[pairKey{low, high}]
	if !ok {
		return nil, ErrNotFound
	}
	return copyConversation(m.conversations[id]), nil
}

// ListConversationsForUser returns the user's conversations, most recently updated first.
func (m *MockStore) ListConversationsForUser(ctx context.Context, userID int64) ([]*Conversation, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	if m.FailListConversations != nil {
		return nil, m.FailListConversations
	}

	var result []*Conversation
	for _, c := range m.conversations {
		if c.UserLow == userID || c.UserHigh == userID {
			result = append(result, copyConversation(c))
		}
	}

	sort.Slice(result, func(i, j int) bool {
		if result[i].UpdatedAt.Equal(result[j].UpdatedAt) {
			return result[i].ID > result[j].ID
		}
		return result[i].UpdatedAt.After(result[j].UpdatedAt)
	})
	return result, nil
}

// RecordConversationMessage applies a message to the conversation counters.
func (m *MockStore) RecordConversationMessage(ctx context.Context, id, messageID int64, slot UnreadSlot, at time.Time) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.FailRecordMessage != nil {
		return m.FailRecordMessage
	}

	c, ok := m.conversations[id]
	if !ok {
		return ErrNotFound
	}

	if c.LastMessageID == nil || *c.LastMessageID < messageID {
		c.LastMessageID = &messageID
	}
	if slot == SlotHigh {
		c.UnreadHigh++
	} else {
		c.UnreadLow++
	}
	if at.After(c.UpdatedAt) {
		c.UpdatedAt = at
	}
	return nil
}

// ResetConversationUnread zeroes one counter if it is non-zero.
func (m *MockStore) ResetConversationUnread(ctx context.Context, id int64, slot UnreadSlot, at time.Time) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	c, ok := m.conversations[id]
	if !ok {
		return false, nil
	}

	counter := &c.UnreadLow
	if slot == SlotHigh {
		counter = &c.UnreadHigh
	}
	if *counter == 0 {
		return false, nil
	}
	*counter = 0
	if at.After(c.UpdatedAt) {
		c.UpdatedAt = at
	}
	return true, nil
}

// MessageCount returns the number of stored messages. Test helper.
func (m *MockStore) MessageCount() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.messages)
}

// ConversationCount returns the number of stored conversations. Test helper.
func (m *MockStore) ConversationCount() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.conversations)
}
