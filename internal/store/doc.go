// Package store provides persistent storage for dm-gateway using SQLite.
//
// # Architecture
//
// Three narrow interfaces describe what the messaging core needs:
//
//   - UserStore: lookup of platform accounts (existence checks, public profile)
//   - MessageStore: insert, paged range query between two users, batch read-marking
//   - ConversationStore: one row per unordered user pair plus its unread counters
//
// SQLiteStore implements all of them in one struct; MockStore is the
// in-memory equivalent used by unit tests.
//
// # Conversations
//
// A conversation is keyed by (user_low, user_high) with user_low < user_high,
// enforced by a UNIQUE index and a CHECK constraint. Counter updates are single
// UPDATE statements (unread_x = unread_x + 1), so concurrent sends to the same
// pair never lose an increment. Creating a row that already exists returns
// ErrDuplicateConversation; callers re-read rather than fail.
//
// # SQLite Configuration
//
// Two drivers are supported, selected by database.driver:
//
//   - "sqlite": modernc.org/sqlite (pure Go, default)
//   - "sqlite3": github.com/mattn/go-sqlite3 (cgo)
//
// The pool is limited to a single connection so that ":memory:" databases are
// shared and writers never see SQLITE_BUSY. WAL mode and foreign keys are on.
//
// # Errors
//
//   - ErrNotFound: requested entity does not exist
//   - ErrDuplicateConversation: the user pair already has a conversation
//
// All methods accept context.Context for cancellation support.
package store
