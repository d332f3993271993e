// ABOUTME: Service is the message layer: send, paged history with read-marking, unread totals, summaries
// ABOUTME: Messages are persisted first; ledger bookkeeping failures after that are logged, never surfaced

package conversation

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"slices"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/samber/lo"
	"golang.org/x/sync/errgroup"

	"github.com/2389/dm-gateway/internal/metrics"
	"github.com/2389/dm-gateway/internal/store"
)

// summaryFanOut bounds concurrent profile/last-message lookups in ConversationsFor.
const summaryFanOut = 8

// Options tunes paging and content limits.
type Options struct {
	DefaultPageSize  int
	MaxPageSize      int
	MaxContentLength int
}

// DefaultOptions returns the limits used when no configuration is supplied.
func DefaultOptions() Options {
	return Options{
		DefaultPageSize:  20,
		MaxPageSize:      100,
		MaxContentLength: 5000,
	}
}

// HistoryPage is one page of a two-user history, oldest message first.
type HistoryPage struct {
	Messages []*store.Message
	// HasMore is true when the page came back full. A history whose length
	// is an exact multiple of the page size reports one extra empty page.
	HasMore bool
	// MarkedRead counts messages this call flipped from unread to read.
	MarkedRead int
}

// Summary describes one conversation from the point of view of a participant.
type Summary struct {
	ID          int64
	OtherUser   *store.UserProfile
	LastMessage *store.Message
	UnreadCount int
	UpdatedAt   time.Time
}

// Service implements the direct-message operations. It knows nothing about
// live delivery; see the delivery package for that.
type Service struct {
	users    store.UserStore
	messages store.MessageStore
	ledger   *Ledger
	opts     Options
	logger   *slog.Logger
	now      func() time.Time
}

// NewService creates a message Service. Zero-valued options fall back to DefaultOptions.
func NewService(users store.UserStore, messages store.MessageStore, ledger *Ledger, opts Options, logger *slog.Logger) *Service {
	if logger == nil {
		logger = slog.Default()
	}
	defaults := DefaultOptions()
	if opts.DefaultPageSize <= 0 {
		opts.DefaultPageSize = defaults.DefaultPageSize
	}
	if opts.MaxPageSize <= 0 {
		opts.MaxPageSize = defaults.MaxPageSize
	}
	if opts.MaxContentLength <= 0 {
		opts.MaxContentLength = defaults.MaxContentLength
	}
	return &Service{
		users:    users,
		messages: messages,
		ledger:   ledger,
		opts:     opts,
		logger:   logger.With("component", "messages"),
		now:      func() time.Time { return time.Now().UTC() },
	}
}

// Options returns the effective limits.
func (s *Service) Options() Options {
	return s.opts
}

// GetUser returns a user's record, mapping a missing row to ErrNotFound.
func (s *Service) GetUser(ctx context.Context, userID int64) (*store.User, error) {
	user, err := s.users.GetUser(ctx, userID)
	if errors.Is(err, store.ErrNotFound) {
		return nil, fmt.Errorf("%w: user %d", ErrNotFound, userID)
	}
	if err != nil {
		return nil, fmt.Errorf("looking up user %d: %w", userID, err)
	}
	return user, nil
}

// Send validates and persists a message from senderID to receiverID, then
// records it on the pair's conversation.
//
// Every validation happens before the insert, so a rejected send leaves no
// rows behind. Once the message is stored the call succeeds even if the
// conversation bookkeeping fails.
func (s *Service) Send(ctx context.Context, senderID, receiverID int64, content string) (*store.Message, error) {
	if strings.TrimSpace(content) == "" {
		return nil, fmt.Errorf("%w: content is empty", ErrInvalidArgument)
	}
	if n := utf8.RuneCountInString(content); n > s.opts.MaxContentLength {
		return nil, fmt.Errorf("%w: content is %d characters, limit is %d", ErrInvalidArgument, n, s.opts.MaxContentLength)
	}
	if senderID == receiverID {
		return nil, fmt.Errorf("%w: cannot message yourself", ErrInvalidArgument)
	}
	if _, err := s.GetUser(ctx, senderID); err != nil {
		return nil, err
	}
	if _, err := s.GetUser(ctx, receiverID); err != nil {
		return nil, err
	}

	msg := &store.Message{
		SenderID:   senderID,
		ReceiverID: receiverID,
		Content:    content,
		CreatedAt:  s.now(),
	}
	if err := s.messages.CreateMessage(ctx, msg); err != nil {
		return nil, fmt.Errorf("failed to record message: %w", err)
	}
	metrics.MessagesSent.Inc()

	s.logger.Debug("message recorded",
		"message_id", msg.ID,
		"sender_id", senderID,
		"receiver_id", receiverID)

	s.recordOnLedger(ctx, msg)
	return msg, nil
}

func (s *Service) recordOnLedger(ctx context.Context, msg *store.Message) {
	conv, err := s.ledger.GetOrCreate(ctx, msg.SenderID, msg.ReceiverID)
	if err != nil {
		metrics.LedgerFailures.Inc()
		s.logger.Error("conversation lookup failed after message was stored",
			"message_id", msg.ID,
			"error", err)
		return
	}
	if err := s.ledger.RecordMessage(ctx, conv, msg.SenderID, msg.ID); err != nil {
		metrics.LedgerFailures.Inc()
		s.logger.Error("conversation update failed after message was stored",
			"message_id", msg.ID,
			"conversation_id", conv.ID,
			"error", err)
	}
}

// History returns page `page` (1-based) of the messages between userID and
// otherUserID, oldest first within the page.
//
// Reading is the acknowledgement: returned messages addressed to userID that
// were unread are marked read in one batch, and userID's unread counter on
// the conversation is reset.
func (s *Service) History(ctx context.Context, userID, otherUserID int64, page, pageSize int) (*HistoryPage, error) {
	if page < 1 {
		return nil, fmt.Errorf("%w: page must be >= 1", ErrInvalidArgument)
	}
	if pageSize < 1 || pageSize > s.opts.MaxPageSize {
		return nil, fmt.Errorf("%w: page size must be between 1 and %d", ErrInvalidArgument, s.opts.MaxPageSize)
	}
	if _, err := CanonicalPair(userID, otherUserID); err != nil {
		return nil, err
	}

	messages, err := s.messages.ListMessagesBetween(ctx, userID, otherUserID, (page-1)*pageSize, pageSize)
	if err != nil {
		return nil, fmt.Errorf("listing messages: %w", err)
	}

	unread := lo.Filter(messages, func(m *store.Message, _ int) bool {
		return m.ReceiverID == userID && !m.Read
	})

	marked := 0
	if len(unread) > 0 {
		ids := lo.Map(unread, func(m *store.Message, _ int) int64 { return m.ID })
		marked, err = s.messages.MarkMessagesRead(ctx, userID, ids)
		if err != nil {
			return nil, fmt.Errorf("marking messages read: %w", err)
		}
		for _, m := range unread {
			m.Read = true
		}
	}

	// Page 1 also resets a stale counter left by a send whose ledger update
	// landed after its message had already been read.
	if marked > 0 || page == 1 {
		s.resetUnread(ctx, userID, otherUserID)
	}

	hasMore := len(messages) == pageSize
	slices.Reverse(messages)

	return &HistoryPage{
		Messages:   messages,
		HasMore:    hasMore,
		MarkedRead: marked,
	}, nil
}

func (s *Service) resetUnread(ctx context.Context, userID, otherUserID int64) {
	conv, err := s.ledger.Find(ctx, userID, otherUserID)
	if errors.Is(err, ErrNotFound) {
		return
	}
	if err == nil {
		err = s.ledger.ResetUnread(ctx, conv, userID)
	}
	if err != nil {
		metrics.LedgerFailures.Inc()
		s.logger.Error("unread reset failed", "user_id", userID, "other_user_id", otherUserID, "error", err)
	}
}

// MarkRead reads the newest page of the history between userID and
// otherUserID and returns how many messages that flipped to read.
func (s *Service) MarkRead(ctx context.Context, userID, otherUserID int64) (int, error) {
	page, err := s.History(ctx, userID, otherUserID, 1, s.opts.DefaultPageSize)
	if err != nil {
		return 0, err
	}
	return page.MarkedRead, nil
}

// UnreadTotal sums userID's unread counters over all their conversations.
func (s *Service) UnreadTotal(ctx context.Context, userID int64) (int, error) {
	convs, err := s.ledger.ListFor(ctx, userID)
	if err != nil {
		return 0, err
	}
	return lo.SumBy(convs, func(c *store.Conversation) int {
		return s.ledger.UnreadFor(c, userID)
	}), nil
}

// ConversationsFor lists userID's conversations, most recently updated first,
// with the other participant's profile and the last message filled in.
func (s *Service) ConversationsFor(ctx context.Context, userID int64) ([]*Summary, error) {
	convs, err := s.ledger.ListFor(ctx, userID)
	if err != nil {
		return nil, err
	}

	summaries := make([]*Summary, len(convs))
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(summaryFanOut)

	for i, conv := range convs {
		g.Go(func() error {
			summary, err := s.summarize(gctx, conv, userID)
			if err != nil {
				return err
			}
			summaries[i] = summary
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	return summaries, nil
}

func (s *Service) summarize(ctx context.Context, conv *store.Conversation, userID int64) (*Summary, error) {
	otherID := PairOf(conv).Other(userID)

	summary := &Summary{
		ID:          conv.ID,
		UnreadCount: s.ledger.UnreadFor(conv, userID),
		UpdatedAt:   conv.UpdatedAt,
	}

	other, err := s.users.GetUser(ctx, otherID)
	switch {
	case err == nil:
		summary.OtherUser = other.Profile()
	case errors.Is(err, store.ErrNotFound):
		// Account removed on the platform side; keep the id.
		summary.OtherUser = &store.UserProfile{ID: otherID}
	default:
		return nil, fmt.Errorf("loading user %d: %w", otherID, err)
	}

	if conv.LastMessageID != nil {
		last, err := s.messages.GetMessage(ctx, *conv.LastMessageID)
		if err != nil && !errors.Is(err, store.ErrNotFound) {
			return nil, fmt.Errorf("loading message %d: %w", *conv.LastMessageID, err)
		}
		summary.LastMessage = last
	}
	return summary, nil
}
