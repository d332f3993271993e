// ABOUTME: Tests for the message service
// ABOUTME: Send validation, unread bookkeeping, read-on-history, paging, summaries

package conversation

import (
	"errors"
	"strings"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/mock/gomock"

	"github.com/2389/dm-gateway/internal/conversation/mocks"
	"github.com/2389/dm-gateway/internal/store"
)

func newTestService(t *testing.T) (*Service, *store.MockStore) {
	t.Helper()
	s := store.NewMockStore()
	seedUsers(t, s, defaultUsers()...)
	return NewService(s, s, NewLedger(s, nil), DefaultOptions(), nil), s
}

func unreadOf(t *testing.T, svc *Service, userID, otherID int64) int {
	t.Helper()
	conv, err := svc.ledger.Find(t.Context(), userID, otherID)
	require.NoError(t, err)
	return svc.ledger.UnreadFor(conv, userID)
}

func TestSend_RecordsAndCountsForReceiver(t *testing.T) {
	svc, _ := newTestService(t)

	msg, err := svc.Send(t.Context(), 5, 9, "hi")
	require.NoError(t, err)
	assert.NotZero(t, msg.ID)
	assert.Equal(t, int64(5), msg.SenderID)
	assert.Equal(t, int64(9), msg.ReceiverID)
	assert.Equal(t, "hi", msg.Content)
	assert.False(t, msg.Read)
	assert.False(t, msg.CreatedAt.IsZero())

	assert.Equal(t, 1, unreadOf(t, svc, 9, 5))
	assert.Equal(t, 0, unreadOf(t, svc, 5, 9), "sender's counter must not move")

	conv, err := svc.ledger.Find(t.Context(), 9, 5)
	require.NoError(t, err)
	require.NotNil(t, conv.LastMessageID)
	assert.Equal(t, msg.ID, *conv.LastMessageID)
}

func TestSend_Validation(t *testing.T) {
	tests := []struct {
		name     string
		sender   int64
		receiver int64
		content  string
		wantErr  error
	}{
		{"empty content", 5, 9, "", ErrInvalidArgument},
		{"whitespace content", 5, 9, " \t\n ", ErrInvalidArgument},
		{"too long", 5, 9, strings.Repeat("x", 5001), ErrInvalidArgument},
		{"self addressed", 5, 5, "hello me", ErrInvalidArgument},
		{"unknown receiver", 5, 9999, "hello", ErrNotFound},
		{"unknown sender", 4242, 9, "hello", ErrNotFound},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			svc, s := newTestService(t)

			_, err := svc.Send(t.Context(), tt.sender, tt.receiver, tt.content)
			assert.ErrorIs(t, err, tt.wantErr)
			assert.Zero(t, s.MessageCount(), "no message row may be created")
			assert.Zero(t, s.ConversationCount(), "no conversation row may be created")
		})
	}
}

func TestSend_ContentLimitCountsCharacters(t *testing.T) {
	svc, _ := newTestService(t)

	// 5000 multi-byte characters is within the limit.
	_, err := svc.Send(t.Context(), 5, 9, strings.Repeat("é", 5000))
	assert.NoError(t, err)
}

func TestSend_LedgerFailureIsSwallowed(t *testing.T) {
	svc, s := newTestService(t)
	s.FailRecordMessage = errors.New("database is locked")

	msg, err := svc.Send(t.Context(), 5, 9, "still delivered")
	require.NoError(t, err)
	assert.NotZero(t, msg.ID)
	assert.Equal(t, 1, s.MessageCount())
}

func TestSend_LedgerLookupFailureIsSwallowed(t *testing.T) {
	ctrl := gomock.NewController(t)
	ledgerStore := mocks.NewMockLedgerStore(ctrl)

	s := store.NewMockStore()
	seedUsers(t, s, defaultUsers()...)
	svc := NewService(s, s, NewLedger(ledgerStore, nil), DefaultOptions(), nil)

	ledgerStore.EXPECT().
		GetConversationByPair(gomock.Any(), int64(5), int64(9)).
		Return(nil, errors.New("disk I/O error"))

	msg, err := svc.Send(t.Context(), 9, 5, "hello")
	require.NoError(t, err)
	assert.Equal(t, "hello", msg.Content)
	assert.Equal(t, 1, s.MessageCount())
}

func TestHistory_MarksReadAndResetsUnread(t *testing.T) {
	svc, _ := newTestService(t)
	ctx := t.Context()

	for _, text := range []string{"one", "two", "three"} {
		_, err := svc.Send(ctx, 5, 9, text)
		require.NoError(t, err)
	}
	_, err := svc.Send(ctx, 9, 5, "reply")
	require.NoError(t, err)

	require.Equal(t, 3, unreadOf(t, svc, 9, 5))
	require.Equal(t, 1, unreadOf(t, svc, 5, 9))

	page, err := svc.History(ctx, 9, 5, 1, 20)
	require.NoError(t, err)
	require.Len(t, page.Messages, 4)
	assert.Equal(t, 3, page.MarkedRead)
	assert.False(t, page.HasMore)

	contents := make([]string, len(page.Messages))
	for i, m := range page.Messages {
		contents[i] = m.Content
	}
	assert.Equal(t, []string{"one", "two", "three", "reply"}, contents)

	for _, m := range page.Messages {
		if m.ReceiverID == 9 {
			assert.True(t, m.Read, "message %d addressed to reader should be read", m.ID)
		} else {
			assert.False(t, m.Read, "reader's own message must stay unread")
		}
	}

	assert.Equal(t, 0, unreadOf(t, svc, 9, 5))
	assert.Equal(t, 1, unreadOf(t, svc, 5, 9), "other side's counter untouched")
}

func TestHistory_ReadIsIdempotent(t *testing.T) {
	svc, s := newTestService(t)
	ctx := t.Context()

	_, err := svc.Send(ctx, 5, 9, "hi")
	require.NoError(t, err)

	first, err := svc.History(ctx, 9, 5, 1, 20)
	require.NoError(t, err)
	assert.Equal(t, 1, first.MarkedRead)

	before, err := s.GetConversationByPair(ctx, 5, 9)
	require.NoError(t, err)

	second, err := svc.History(ctx, 9, 5, 1, 20)
	require.NoError(t, err)
	assert.Zero(t, second.MarkedRead)
	require.Len(t, second.Messages, 1)
	assert.True(t, second.Messages[0].Read)

	after, err := s.GetConversationByPair(ctx, 5, 9)
	require.NoError(t, err)
	assert.Equal(t, before.UnreadHigh, after.UnreadHigh)
	assert.True(t, before.UpdatedAt.Equal(after.UpdatedAt))
}

func TestHistory_PagesAreDisjointAndChronological(t *testing.T) {
	svc, _ := newTestService(t)
	ctx := t.Context()

	var sent []int64
	for i := range 25 {
		from, to := int64(5), int64(9)
		if i%3 == 0 {
			from, to = 9, 5
		}
		msg, err := svc.Send(ctx, from, to, "msg")
		require.NoError(t, err)
		sent = append(sent, msg.ID)
	}

	page1, err := svc.History(ctx, 5, 9, 1, 10)
	require.NoError(t, err)
	page2, err := svc.History(ctx, 5, 9, 2, 10)
	require.NoError(t, err)
	page3, err := svc.History(ctx, 5, 9, 3, 10)
	require.NoError(t, err)

	assert.True(t, page1.HasMore)
	assert.True(t, page2.HasMore)
	assert.False(t, page3.HasMore)
	require.Len(t, page3.Messages, 5)

	var got []int64
	for _, p := range []*HistoryPage{page3, page2, page1} {
		for _, m := range p.Messages {
			got = append(got, m.ID)
		}
	}
	assert.Equal(t, sent, got)
}

func TestHistory_FullLastPageReportsHasMore(t *testing.T) {
	svc, _ := newTestService(t)
	ctx := t.Context()

	for range 20 {
		_, err := svc.Send(ctx, 5, 9, "x")
		require.NoError(t, err)
	}

	page1, err := svc.History(ctx, 9, 5, 1, 20)
	require.NoError(t, err)
	assert.True(t, page1.HasMore)

	page2, err := svc.History(ctx, 9, 5, 2, 20)
	require.NoError(t, err)
	assert.Empty(t, page2.Messages)
	assert.False(t, page2.HasMore)
}

func TestHistory_InvalidArguments(t *testing.T) {
	svc, _ := newTestService(t)

	tests := []struct {
		name     string
		other    int64
		page     int
		pageSize int
	}{
		{"page zero", 9, 0, 20},
		{"page size zero", 9, 1, 0},
		{"page size over max", 9, 1, 101},
		{"self", 5, 1, 20},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := svc.History(t.Context(), 5, tt.other, tt.page, tt.pageSize)
			assert.ErrorIs(t, err, ErrInvalidArgument)
		})
	}
}

func TestHistory_NoConversationIsEmpty(t *testing.T) {
	svc, _ := newTestService(t)

	page, err := svc.History(t.Context(), 5, 7, 1, 20)
	require.NoError(t, err)
	assert.Empty(t, page.Messages)
	assert.False(t, page.HasMore)
}

func TestHistory_HealsCounterRecordedAfterRead(t *testing.T) {
	svc, s := newTestService(t)
	ctx := t.Context()

	msg, err := svc.Send(ctx, 5, 9, "hi")
	require.NoError(t, err)
	_, err = svc.History(ctx, 9, 5, 1, 20)
	require.NoError(t, err)

	// A late ledger update for an already-read message.
	conv, err := svc.ledger.Find(ctx, 5, 9)
	require.NoError(t, err)
	require.NoError(t, svc.ledger.RecordMessage(ctx, conv, 5, msg.ID))
	require.Equal(t, 1, unreadOf(t, svc, 9, 5))

	page, err := svc.History(ctx, 9, 5, 1, 20)
	require.NoError(t, err)
	assert.Zero(t, page.MarkedRead)
	assert.Equal(t, 0, unreadOf(t, svc, 9, 5))

	stored, err := s.GetMessage(ctx, msg.ID)
	require.NoError(t, err)
	assert.True(t, stored.Read)
}

func TestMarkRead(t *testing.T) {
	svc, _ := newTestService(t)
	ctx := t.Context()

	for range 3 {
		_, err := svc.Send(ctx, 5, 9, "ping")
		require.NoError(t, err)
	}

	n, err := svc.MarkRead(ctx, 9, 5)
	require.NoError(t, err)
	assert.Equal(t, 3, n)

	n, err = svc.MarkRead(ctx, 9, 5)
	require.NoError(t, err)
	assert.Zero(t, n)
	assert.Equal(t, 0, unreadOf(t, svc, 9, 5))
}

func TestUnreadTotal(t *testing.T) {
	svc, _ := newTestService(t)
	ctx := t.Context()

	_, err := svc.Send(ctx, 5, 9, "a")
	require.NoError(t, err)
	_, err = svc.Send(ctx, 5, 9, "b")
	require.NoError(t, err)
	_, err = svc.Send(ctx, 7, 9, "c")
	require.NoError(t, err)

	total, err := svc.UnreadTotal(ctx, 9)
	require.NoError(t, err)
	assert.Equal(t, 3, total)

	total, err = svc.UnreadTotal(ctx, 5)
	require.NoError(t, err)
	assert.Zero(t, total)

	total, err = svc.UnreadTotal(ctx, 4242)
	require.NoError(t, err)
	assert.Zero(t, total)
}

func TestConversationsFor(t *testing.T) {
	svc, _ := newTestService(t)
	ctx := t.Context()

	_, err := svc.Send(ctx, 5, 9, "from alice")
	require.NoError(t, err)
	last, err := svc.Send(ctx, 7, 9, "from carol")
	require.NoError(t, err)

	summaries, err := svc.ConversationsFor(ctx, 9)
	require.NoError(t, err)
	require.Len(t, summaries, 2)

	newest := summaries[0]
	assert.Equal(t, &store.UserProfile{ID: 7, Username: "carol"}, newest.OtherUser)
	require.NotNil(t, newest.LastMessage)
	assert.Equal(t, last.ID, newest.LastMessage.ID)
	assert.Equal(t, "from carol", newest.LastMessage.Content)
	assert.Equal(t, 1, newest.UnreadCount)

	older := summaries[1]
	assert.Equal(t, &store.UserProfile{ID: 5, Username: "alice", Avatar: "/avatars/alice.png"}, older.OtherUser)
	assert.Equal(t, "from alice", older.LastMessage.Content)
	assert.False(t, newest.UpdatedAt.Before(older.UpdatedAt))

	mine, err := svc.ConversationsFor(ctx, 5)
	require.NoError(t, err)
	require.Len(t, mine, 1)
	assert.Zero(t, mine[0].UnreadCount)
	assert.Equal(t, int64(9), mine[0].OtherUser.ID)
}

func TestConversationsFor_StoreError(t *testing.T) {
	svc, s := newTestService(t)
	s.FailListConversations = errors.New("boom")

	_, err := svc.ConversationsFor(t.Context(), 9)
	assert.Error(t, err)
}

func TestService_SQLiteConcurrentSends(t *testing.T) {
	s := newSQLiteStore(t)
	seedUsers(t, s, defaultUsers()...)
	svc := NewService(s, s, NewLedger(s, nil), DefaultOptions(), nil)
	ctx := t.Context()

	const senders = 12
	var wg sync.WaitGroup
	for i := range senders {
		wg.Go(func() {
			from := int64(5)
			if i%2 == 1 {
				from = 7
			}
			_, err := svc.Send(ctx, from, 9, "concurrent")
			assert.NoError(t, err)
		})
	}
	wg.Wait()

	total, err := svc.UnreadTotal(ctx, 9)
	require.NoError(t, err)
	assert.Equal(t, senders, total)

	n, err := svc.MarkRead(ctx, 9, 5)
	require.NoError(t, err)
	assert.Equal(t, senders/2, n)

	total, err = svc.UnreadTotal(ctx, 9)
	require.NoError(t, err)
	assert.Equal(t, senders/2, total)
}

func TestService_SQLiteScenario(t *testing.T) {
	s := newSQLiteStore(t)
	seedUsers(t, s, defaultUsers()...)
	svc := NewService(s, s, NewLedger(s, nil), DefaultOptions(), nil)
	ctx := t.Context()

	_, err := svc.Send(ctx, 5, 9999, "nobody")
	assert.ErrorIs(t, err, ErrNotFound)

	msg, err := svc.Send(ctx, 5, 9, "hi")
	require.NoError(t, err)

	page, err := svc.History(ctx, 9, 5, 1, 20)
	require.NoError(t, err)
	require.Len(t, page.Messages, 1)
	assert.Equal(t, msg.ID, page.Messages[0].ID)
	assert.True(t, page.Messages[0].Read)
	assert.Equal(t, 1, page.MarkedRead)

	total, err := svc.UnreadTotal(ctx, 9)
	require.NoError(t, err)
	assert.Zero(t, total)
}
