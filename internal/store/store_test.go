// ABOUTME: Behavioural tests shared by SQLiteStore and MockStore
// ABOUTME: Covers users, paged history, batch read-marking, pair uniqueness and counter updates

package store

import (
	"context"
	"errors"
	"path/filepath"
	"strconv"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type storeFactory func(t *testing.T) Store

func storeImplementations() map[string]storeFactory {
	return map[string]storeFactory{
		"sqlite": func(t *testing.T) Store {
			return newTestStore(t)
		},
		"mock": func(t *testing.T) Store {
			return NewMockStore()
		},
	}
}

func newTestStore(t *testing.T) *SQLiteStore {
	t.Helper()
	s, err := NewSQLiteStore(filepath.Join(t.TempDir(), "test.db"))
	require.NoError(t, err)
	t.Cleanup(func() { s.Close() })
	return s
}

func seedUsers(t *testing.T, s Store, ids ...int64) {
	t.Helper()
	for _, id := range ids {
		require.NoError(t, s.CreateUser(context.Background(), &User{
			ID:       id,
			Username: "user-" + strconv.FormatInt(id, 10),
		}))
	}
}

func TestStore_Users(t *testing.T) {
	for name, factory := range storeImplementations() {
		t.Run(name, func(t *testing.T) {
			s := factory(t)
			ctx := context.Background()

			u := &User{ID: 5, Username: "alice", Avatar: "/a.png"}
			require.NoError(t, s.CreateUser(ctx, u))

			got, err := s.GetUser(ctx, 5)
			require.NoError(t, err)
			assert.Equal(t, "alice", got.Username)
			assert.Equal(t, "/a.png", got.Avatar)
			assert.Equal(t, &UserProfile{ID: 5, Username: "alice", Avatar: "/a.png"}, got.Profile())

			_, err = s.GetUser(ctx, 9999)
			assert.ErrorIs(t, err, ErrNotFound)

			err = s.CreateUser(ctx, &User{ID: 5, Username: "other"})
			assert.ErrorIs(t, err, ErrDuplicateUser)

			auto := &User{Username: "bob"}
			require.NoError(t, s.CreateUser(ctx, auto))
			assert.NotZero(t, auto.ID)
		})
	}
}

func TestStore_MessagesPagedNewestFirst(t *testing.T) {
	for name, factory := range storeImplementations() {
		t.Run(name, func(t *testing.T) {
			s := factory(t)
			ctx := context.Background()
			seedUsers(t, s, 1, 2, 3)

			base := time.Now().UTC().Truncate(time.Millisecond)
			var ids []int64
			for i := range 5 {
				from, to := int64(1), int64(2)
				if i%2 == 1 {
					from, to = 2, 1
				}
				msg := &Message{SenderID: from, ReceiverID: to, Content: "m", CreatedAt: base.Add(time.Duration(i) * time.Second)}
				require.NoError(t, s.CreateMessage(ctx, msg))
				ids = append(ids, msg.ID)
			}
			// Unrelated pair must not leak into the history.
			require.NoError(t, s.CreateMessage(ctx, &Message{SenderID: 1, ReceiverID: 3, Content: "x", CreatedAt: base}))

			for i := 1; i < len(ids); i++ {
				assert.Greater(t, ids[i], ids[i-1], "ids must increase")
			}

			page1, err := s.ListMessagesBetween(ctx, 2, 1, 0, 3)
			require.NoError(t, err)
			require.Len(t, page1, 3)
			assert.Equal(t, []int64{ids[4], ids[3], ids[2]}, messageIDs(page1))

			page2, err := s.ListMessagesBetween(ctx, 1, 2, 3, 3)
			require.NoError(t, err)
			assert.Equal(t, []int64{ids[1], ids[0]}, messageIDs(page2))

			page3, err := s.ListMessagesBetween(ctx, 1, 2, 6, 3)
			require.NoError(t, err)
			assert.Empty(t, page3)

			got, err := s.GetMessage(ctx, ids[0])
			require.NoError(t, err)
			assert.False(t, got.Read)
			assert.True(t, got.CreatedAt.Equal(base), "created_at round trip: %v vs %v", got.CreatedAt, base)

			_, err = s.GetMessage(ctx, 424242)
			assert.ErrorIs(t, err, ErrNotFound)
		})
	}
}

func messageIDs(msgs []*Message) []int64 {
	ids := make([]int64, len(msgs))
	for i, m := range msgs {
		ids[i] = m.ID
	}
	return ids
}

func TestStore_MarkMessagesRead(t *testing.T) {
	for name, factory := range storeImplementations() {
		t.Run(name, func(t *testing.T) {
			s := factory(t)
			ctx := context.Background()
			seedUsers(t, s, 1, 2)

			toTwo := &Message{SenderID: 1, ReceiverID: 2, Content: "a"}
			toOne := &Message{SenderID: 2, ReceiverID: 1, Content: "b"}
			require.NoError(t, s.CreateMessage(ctx, toTwo))
			require.NoError(t, s.CreateMessage(ctx, toOne))

			// Only messages addressed to the reader flip.
			n, err := s.MarkMessagesRead(ctx, 2, []int64{toTwo.ID, toOne.ID})
			require.NoError(t, err)
			assert.Equal(t, 1, n)

			got, err := s.GetMessage(ctx, toTwo.ID)
			require.NoError(t, err)
			assert.True(t, got.Read)

			got, err = s.GetMessage(ctx, toOne.ID)
			require.NoError(t, err)
			assert.False(t, got.Read)

			n, err = s.MarkMessagesRead(ctx, 2, []int64{toTwo.ID})
			require.NoError(t, err)
			assert.Zero(t, n, "second mark is a no-op")

			n, err = s.MarkMessagesRead(ctx, 2, nil)
			require.NoError(t, err)
			assert.Zero(t, n)
		})
	}
}

func TestStore_ConversationUniquePerPair(t *testing.T) {
	for name, factory := range storeImplementations() {
		t.Run(name, func(t *testing.T) {
			s := factory(t)
			ctx := context.Background()
			seedUsers(t, s, 5, 9)

			conv := &Conversation{UserLow: 5, UserHigh: 9}
			require.NoError(t, s.CreateConversation(ctx, conv))
			assert.NotZero(t, conv.ID)
			assert.Nil(t, conv.LastMessageID)

			err := s.CreateConversation(ctx, &Conversation{UserLow: 5, UserHigh: 9})
			assert.ErrorIs(t, err, ErrDuplicateConversation)

			got, err := s.GetConversationByPair(ctx, 5, 9)
			require.NoError(t, err)
			assert.Equal(t, conv.ID, got.ID)
			assert.Zero(t, got.UnreadLow)
			assert.Zero(t, got.UnreadHigh)

			_, err = s.GetConversationByPair(ctx, 9, 5)
			assert.ErrorIs(t, err, ErrNotFound)
		})
	}
}

func TestStore_RecordAndResetCounters(t *testing.T) {
	for name, factory := range storeImplementations() {
		t.Run(name, func(t *testing.T) {
			s := factory(t)
			ctx := context.Background()
			seedUsers(t, s, 5, 9)

			conv := &Conversation{UserLow: 5, UserHigh: 9}
			require.NoError(t, s.CreateConversation(ctx, conv))

			m1 := &Message{SenderID: 5, ReceiverID: 9, Content: "hi"}
			m2 := &Message{SenderID: 5, ReceiverID: 9, Content: "there"}
			require.NoError(t, s.CreateMessage(ctx, m1))
			require.NoError(t, s.CreateMessage(ctx, m2))

			later := time.Now().UTC().Add(time.Minute)
			require.NoError(t, s.RecordConversationMessage(ctx, conv.ID, m2.ID, SlotHigh, later))
			// Older message recorded late must not move last_message_id backwards.
			require.NoError(t, s.RecordConversationMessage(ctx, conv.ID, m1.ID, SlotHigh, later.Add(-time.Second)))

			got, err := s.GetConversationByPair(ctx, 5, 9)
			require.NoError(t, err)
			require.NotNil(t, got.LastMessageID)
			assert.Equal(t, m2.ID, *got.LastMessageID)
			assert.Equal(t, 2, got.UnreadHigh)
			assert.Equal(t, 0, got.UnreadLow)
			assert.Equal(t, 2, got.Unread(SlotHigh))
			assert.True(t, got.UpdatedAt.Equal(later), "updated_at should not regress")

			changed, err := s.ResetConversationUnread(ctx, conv.ID, SlotHigh, later)
			require.NoError(t, err)
			assert.True(t, changed)

			changed, err = s.ResetConversationUnread(ctx, conv.ID, SlotHigh, later)
			require.NoError(t, err)
			assert.False(t, changed, "reset of a zero counter is a no-op")

			got, err = s.GetConversationByPair(ctx, 5, 9)
			require.NoError(t, err)
			assert.Zero(t, got.UnreadHigh)

			err = s.RecordConversationMessage(ctx, 999, m1.ID, SlotLow, later)
			assert.ErrorIs(t, err, ErrNotFound)
		})
	}
}

func TestStore_ConcurrentIncrementsAreNotLost(t *testing.T) {
	for name, factory := range storeImplementations() {
		t.Run(name, func(t *testing.T) {
			s := factory(t)
			ctx := context.Background()
			seedUsers(t, s, 1, 2)

			conv := &Conversation{UserLow: 1, UserHigh: 2}
			require.NoError(t, s.CreateConversation(ctx, conv))
			msg := &Message{SenderID: 1, ReceiverID: 2, Content: "x"}
			require.NoError(t, s.CreateMessage(ctx, msg))

			const writers = 20
			var wg sync.WaitGroup
			errs := make(chan error, writers)
			for range writers {
				wg.Go(func() {
					if err := s.RecordConversationMessage(ctx, conv.ID, msg.ID, SlotHigh, time.Now()); err != nil {
						errs <- err
					}
				})
			}
			wg.Wait()
			close(errs)
			for err := range errs {
				t.Errorf("record failed: %v", err)
			}

			got, err := s.GetConversationByPair(ctx, 1, 2)
			require.NoError(t, err)
			assert.Equal(t, writers, got.UnreadHigh)
		})
	}
}

func TestStore_ListConversationsForUserOrdering(t *testing.T) {
	for name, factory := range storeImplementations() {
		t.Run(name, func(t *testing.T) {
			s := factory(t)
			ctx := context.Background()
			seedUsers(t, s, 1, 2, 3, 4)

			base := time.Now().UTC()
			older := &Conversation{UserLow: 1, UserHigh: 2, CreatedAt: base, UpdatedAt: base}
			newer := &Conversation{UserLow: 1, UserHigh: 3, CreatedAt: base, UpdatedAt: base.Add(time.Hour)}
			other := &Conversation{UserLow: 2, UserHigh: 4, CreatedAt: base, UpdatedAt: base.Add(2 * time.Hour)}
			for _, c := range []*Conversation{older, newer, other} {
				require.NoError(t, s.CreateConversation(ctx, c))
			}

			convs, err := s.ListConversationsForUser(ctx, 1)
			require.NoError(t, err)
			require.Len(t, convs, 2)
			assert.Equal(t, newer.ID, convs[0].ID)
			assert.Equal(t, older.ID, convs[1].ID)

			convs, err = s.ListConversationsForUser(ctx, 99)
			require.NoError(t, err)
			assert.Empty(t, convs)
		})
	}
}

func TestMockStore_FailureHooks(t *testing.T) {
	s := NewMockStore()
	ctx := context.Background()
	boom := errors.New("boom")

	s.FailCreateMessage = boom
	err := s.CreateMessage(ctx, &Message{SenderID: 1, ReceiverID: 2, Content: "x"})
	assert.ErrorIs(t, err, boom)
	assert.Zero(t, s.MessageCount())

	s.FailRecordMessage = boom
	err = s.RecordConversationMessage(ctx, 1, 1, SlotLow, time.Now())
	assert.ErrorIs(t, err, boom)
}
