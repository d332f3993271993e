// ABOUTME: Ledger keeps one conversation row per user pair with per-participant unread counters
// ABOUTME: Creation races resolve by re-reading the surviving row; counter updates are single SQL statements

package conversation

//go:generate go run go.uber.org/mock/mockgen -source=ledger.go -destination=mocks/mock_ledger_store.go -package=mocks

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/2389/dm-gateway/internal/store"
)

// LedgerStore defines what the ledger needs from storage
type LedgerStore interface {
	CreateConversation(ctx context.Context, conv *store.Conversation) error
	GetConversationByPair(ctx context.Context, low, high int64) (*store.Conversation, error)
	ListConversationsForUser(ctx context.Context, userID int64) ([]*store.Conversation, error)
	RecordConversationMessage(ctx context.Context, id, messageID int64, slot store.UnreadSlot, at time.Time) error
	ResetConversationUnread(ctx context.Context, id int64, slot store.UnreadSlot, at time.Time) (bool, error)
}

// Ledger maintains conversation rows and their unread counters.
type Ledger struct {
	store  LedgerStore
	logger *slog.Logger
	now    func() time.Time
}

// NewLedger creates a Ledger backed by s
func NewLedger(s LedgerStore, logger *slog.Logger) *Ledger {
	if logger == nil {
		logger = slog.Default()
	}
	return &Ledger{
		store:  s,
		logger: logger.With("component", "ledger"),
		now:    func() time.Time { return time.Now().UTC() },
	}
}

// Find returns the conversation between a and b without creating it.
// Returns ErrNotFound when the pair has never exchanged a message.
func (l *Ledger) Find(ctx context.Context, a, b int64) (*store.Conversation, error) {
	pair, err := CanonicalPair(a, b)
	if err != nil {
		return nil, err
	}

	conv, err := l.store.GetConversationByPair(ctx, pair.Low, pair.High)
	if errors.Is(err, store.ErrNotFound) {
		return nil, fmt.Errorf("%w: no conversation %s", ErrNotFound, pair)
	}
	if err != nil {
		return nil, fmt.Errorf("looking up conversation %s: %w", pair, err)
	}
	return conv, nil
}

// GetOrCreate returns the conversation between a and b, inserting it with
// zero counters if it does not exist yet. Concurrent callers for the same
// pair all receive the same row.
func (l *Ledger) GetOrCreate(ctx context.Context, a, b int64) (*store.Conversation, error) {
	pair, err := CanonicalPair(a, b)
	if err != nil {
		return nil, err
	}

	conv, err := l.store.GetConversationByPair(ctx, pair.Low, pair.High)
	if err == nil {
		return conv, nil
	}
	if !errors.Is(err, store.ErrNotFound) {
		return nil, fmt.Errorf("looking up conversation %s: %w", pair, err)
	}

	now := l.now()
	conv = &store.Conversation{
		UserLow:   pair.Low,
		UserHigh:  pair.High,
		CreatedAt: now,
		UpdatedAt: now,
	}
	err = l.store.CreateConversation(ctx, conv)
	if err == nil {
		l.logger.Debug("conversation created", "conversation_id", conv.ID, "pair", pair.String())
		return conv, nil
	}
	if !errors.Is(err, store.ErrDuplicateConversation) {
		return nil, fmt.Errorf("creating conversation %s: %w", pair, err)
	}

	// Another request inserted the row between our lookup and insert.
	conv, lookupErr := l.store.GetConversationByPair(ctx, pair.Low, pair.High)
	if lookupErr != nil {
		l.logger.Error("retry lookup failed after duplicate error", "pair", pair.String(), "lookup_error", lookupErr)
		return nil, fmt.Errorf("re-reading conversation %s: %w", pair, lookupErr)
	}
	l.logger.Debug("found existing conversation after race", "conversation_id", conv.ID)
	return conv, nil
}

// RecordMessage applies a message sent by senderID: last_message_id advances,
// the receiver's counter goes up by one and updated_at is bumped. The
// sender's own counter is never touched.
func (l *Ledger) RecordMessage(ctx context.Context, conv *store.Conversation, senderID, messageID int64) error {
	pair := PairOf(conv)
	receiverSlot, ok := pair.SlotOf(pair.Other(senderID))
	if !ok || !pair.Contains(senderID) {
		return fmt.Errorf("%w: user %d is not part of conversation %d", ErrInvalidArgument, senderID, conv.ID)
	}

	if err := l.store.RecordConversationMessage(ctx, conv.ID, messageID, receiverSlot, l.now()); err != nil {
		return fmt.Errorf("recording message %d on conversation %d: %w", messageID, conv.ID, err)
	}
	return nil
}

// ResetUnread zeroes readerID's counter. It skips the write when conv
// already shows zero for the reader, and the store guards the UPDATE the
// same way, so repeated reads never move updated_at.
func (l *Ledger) ResetUnread(ctx context.Context, conv *store.Conversation, readerID int64) error {
	slot, ok := PairOf(conv).SlotOf(readerID)
	if !ok {
		return fmt.Errorf("%w: user %d is not part of conversation %d", ErrInvalidArgument, readerID, conv.ID)
	}
	if conv.Unread(slot) == 0 {
		return nil
	}

	changed, err := l.store.ResetConversationUnread(ctx, conv.ID, slot, l.now())
	if err != nil {
		return fmt.Errorf("resetting unread on conversation %d: %w", conv.ID, err)
	}
	if changed {
		l.logger.Debug("unread reset", "conversation_id", conv.ID, "reader", readerID, "slot", slot.String())
	}
	return nil
}

// UnreadFor returns userID's unread count in conv, 0 if they are not a participant.
func (l *Ledger) UnreadFor(conv *store.Conversation, userID int64) int {
	slot, ok := PairOf(conv).SlotOf(userID)
	if !ok {
		return 0
	}
	return conv.Unread(slot)
}

// ListFor returns every conversation userID takes part in, most recently
// updated first.
func (l *Ledger) ListFor(ctx context.Context, userID int64) ([]*store.Conversation, error) {
	convs, err := l.store.ListConversationsForUser(ctx, userID)
	if err != nil {
		return nil, fmt.Errorf("listing conversations for %d: %w", userID, err)
	}
	return convs, nil
}
