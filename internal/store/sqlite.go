// ABOUTME: SQLite implementation of the Store interfaces (modernc.org/sqlite or mattn/go-sqlite3)
// ABOUTME: Provides user lookup, message history and conversation counters with automatic schema creation

package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"time"

	_ "github.com/mattn/go-sqlite3"
	_ "modernc.org/sqlite"
)

// Driver names accepted by NewSQLiteStoreWithDriver.
const (
	DriverModernc = "sqlite"  // modernc.org/sqlite, pure Go
	DriverCGO     = "sqlite3" // github.com/mattn/go-sqlite3
)

// timeLayout is fixed-width so that text columns sort chronologically.
const timeLayout = "2006-01-02T15:04:05.000000000Z"

// ErrDuplicateUser is returned when creating a user whose id or username is taken
var ErrDuplicateUser = errors.New("user already exists")

// SQLiteStore implements Store using SQLite
type SQLiteStore struct {
	db     *sql.DB
	logger *slog.Logger
}

// NewSQLiteStore creates a new SQLite store at the given path using the pure-Go driver.
// The schema is automatically created if it doesn't exist.
// Parent directories are created if needed.
func NewSQLiteStore(path string) (*SQLiteStore, error) {
	return NewSQLiteStoreWithDriver(DriverModernc, path)
}

// NewSQLiteStoreWithDriver is NewSQLiteStore with an explicit database/sql driver name.
func NewSQLiteStoreWithDriver(driver, path string) (*SQLiteStore, error) {
	logger := slog.Default().With("component", "store")

	switch driver {
	case "":
		driver = DriverModernc
	case DriverModernc, DriverCGO:
	default:
		return nil, fmt.Errorf("unsupported database driver %q", driver)
	}

	if path != ":memory:" {
		if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
			return nil, fmt.Errorf("creating database directory: %w", err)
		}
	}

	db, err := sql.Open(driver, path)
	if err != nil {
		return nil, fmt.Errorf("opening database: %w", err)
	}

	// One connection: keeps :memory: databases shared and serialises writers.
	db.SetMaxOpenConns(1)

	pragmas := []string{
		"PRAGMA journal_mode=WAL",
		"PRAGMA foreign_keys=ON",
		"PRAGMA busy_timeout=5000",
	}
	for _, p := range pragmas {
		if _, err := db.Exec(p); err != nil {
			db.Close()
			return nil, fmt.Errorf("applying %q: %w", p, err)
		}
	}

	s := &SQLiteStore{
		db:     db,
		logger: logger,
	}

	if err := s.createSchema(); err != nil {
		db.Close()
		return nil, fmt.Errorf("creating schema: %w", err)
	}

	logger.Info("SQLite store initialized", "path", path, "driver", driver)
	return s, nil
}

// createSchema creates the database tables if they don't exist
func (s *SQLiteStore) createSchema() error {
	schema := `
		CREATE TABLE IF NOT EXISTS users (
			id         INTEGER PRIMARY KEY AUTOINCREMENT,
			username   TEXT NOT NULL UNIQUE,
			avatar     TEXT,
			created_at TEXT NOT NULL
		);

		CREATE TABLE IF NOT EXISTS messages (
			id          INTEGER PRIMARY KEY AUTOINCREMENT,
			sender_id   INTEGER NOT NULL REFERENCES users(id),
			receiver_id INTEGER NOT NULL REFERENCES users(id),
			content     TEXT NOT NULL,
			is_read     INTEGER NOT NULL DEFAULT 0,
			created_at  TEXT NOT NULL,

			CHECK (sender_id <> receiver_id),
			CHECK (length(content) > 0)
		);

		CREATE INDEX IF NOT EXISTS idx_messages_pair
			ON messages(sender_id, receiver_id, created_at);

		CREATE INDEX IF NOT EXISTS idx_messages_unread
			ON messages(receiver_id, is_read);

		CREATE TABLE IF NOT EXISTS conversations (
			id              INTEGER PRIMARY KEY AUTOINCREMENT,
			user_low        INTEGER NOT NULL REFERENCES users(id),
			user_high       INTEGER NOT NULL REFERENCES users(id),
			last_message_id INTEGER REFERENCES messages(id),
			unread_low      INTEGER NOT NULL DEFAULT 0,
			unread_high     INTEGER NOT NULL DEFAULT 0,
			created_at      TEXT NOT NULL,
			updated_at      TEXT NOT NULL,

			UNIQUE (user_low, user_high),
			CHECK (user_low < user_high),
			CHECK (unread_low >= 0 AND unread_high >= 0)
		);

		CREATE INDEX IF NOT EXISTS idx_conversations_low ON conversations(user_low, updated_at);
		CREATE INDEX IF NOT EXISTS idx_conversations_high ON conversations(user_high, updated_at);
	`

	_, err := s.db.Exec(schema)
	return err
}

// Close closes the database connection
func (s *SQLiteStore) Close() error {
	s.logger.Info("closing SQLite store")
	return s.db.Close()
}

// isConstraintViolation checks if the error is a SQLite UNIQUE constraint violation.
// Both drivers report the SQLite message text.
func isConstraintViolation(err error) bool {
	if err == nil {
		return false
	}
	errStr := err.Error()
	return strings.Contains(errStr, "UNIQUE constraint failed") ||
		strings.Contains(errStr, "PRIMARY KEY")
}

func formatTime(t time.Time) string {
	return t.UTC().Format(timeLayout)
}

func parseTime(s string) (time.Time, error) {
	return time.Parse(timeLayout, s)
}

// rowScanner is satisfied by *sql.Row and *sql.Rows.
type rowScanner interface {
	Scan(dest ...any) error
}

// GetUser retrieves a user by ID.
// Returns ErrNotFound if the user doesn't exist.
func (s *SQLiteStore) GetUser(ctx context.Context, id int64) (*User, error) {
	query := `SELECT id, username, avatar, created_at FROM users WHERE id = ?`

	var user User
	var avatar sql.NullString
	var createdAtStr string

	err := s.db.QueryRowContext(ctx, query, id).Scan(&user.ID, &user.Username, &avatar, &createdAtStr)
	if err == sql.ErrNoRows {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("querying user: %w", err)
	}

	user.Avatar = avatar.String
	user.CreatedAt, err = parseTime(createdAtStr)
	if err != nil {
		return nil, fmt.Errorf("parsing created_at: %w", err)
	}
	return &user, nil
}

// CreateUser inserts a user. A zero ID lets SQLite assign one, which is
// written back to user.ID.
func (s *SQLiteStore) CreateUser(ctx context.Context, user *User) error {
	if user.CreatedAt.IsZero() {
		user.CreatedAt = time.Now().UTC()
	}

	var id any
	if user.ID != 0 {
		id = user.ID
	}

	result, err := s.db.ExecContext(ctx,
		`INSERT INTO users (id, username, avatar, created_at) VALUES (?, ?, ?, ?)`,
		id, user.Username, nullString(user.Avatar), formatTime(user.CreatedAt),
	)
	if err != nil {
		if isConstraintViolation(err) {
			return ErrDuplicateUser
		}
		return fmt.Errorf("inserting user: %w", err)
	}

	if user.ID == 0 {
		user.ID, err = result.LastInsertId()
		if err != nil {
			return fmt.Errorf("reading user id: %w", err)
		}
	}

	s.logger.Debug("created user", "id", user.ID, "username", user.Username)
	return nil
}

// nullString returns nil for empty strings, otherwise the string
func nullString(s string) any {
	if s == "" {
		return nil
	}
	return s
}

// CreateMessage saves a message to the database and sets its ID.
func (s *SQLiteStore) CreateMessage(ctx context.Context, msg *Message) error {
	if msg.CreatedAt.IsZero() {
		msg.CreatedAt = time.Now().UTC()
	}

	query := `
		INSERT INTO messages (sender_id, receiver_id, content, is_read, created_at)
		VALUES (?, ?, ?, ?, ?)
	`

	result, err := s.db.ExecContext(ctx, query,
		msg.SenderID,
		msg.ReceiverID,
		msg.Content,
		msg.Read,
		formatTime(msg.CreatedAt),
	)
	if err != nil {
		return fmt.Errorf("inserting message: %w", err)
	}

	msg.ID, err = result.LastInsertId()
	if err != nil {
		return fmt.Errorf("reading message id: %w", err)
	}

	s.logger.Debug("saved message", "id", msg.ID, "sender_id", msg.SenderID, "receiver_id", msg.ReceiverID)
	return nil
}

func scanMessage(row rowScanner) (*Message, error) {
	var msg Message
	var createdAtStr string

	if err := row.Scan(&msg.ID, &msg.SenderID, &msg.ReceiverID, &msg.Content, &msg.Read, &createdAtStr); err != nil {
		return nil, err
	}

	createdAt, err := parseTime(createdAtStr)
	if err != nil {
		return nil, fmt.Errorf("parsing created_at: %w", err)
	}
	msg.CreatedAt = createdAt
	return &msg, nil
}

// GetMessage retrieves a message by ID.
// Returns ErrNotFound if the message doesn't exist.
func (s *SQLiteStore) GetMessage(ctx context.Context, id int64) (*Message, error) {
	query := `
		SELECT id, sender_id, receiver_id, content, is_read, created_at
		FROM messages
		WHERE id = ?
	`

	msg, err := scanMessage(s.db.QueryRowContext(ctx, query, id))
	if err == sql.ErrNoRows {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("querying message: %w", err)
	}
	return msg, nil
}

// ListMessagesBetween retrieves one page of the history between a and b, newest first.
func (s *SQLiteStore) ListMessagesBetween(ctx context.Context, a, b int64, offset, limit int) ([]*Message, error) {
	if limit <= 0 {
		return nil, nil
	}
	if offset < 0 {
		offset = 0
	}

	query := `
		SELECT id, sender_id, receiver_id, content, is_read, created_at
		FROM messages
		WHERE (sender_id = ? AND receiver_id = ?) OR (sender_id = ? AND receiver_id = ?)
		ORDER BY created_at DESC, id DESC
		LIMIT ? OFFSET ?
	`

	rows, err := s.db.QueryContext(ctx, query, a, b, b, a, limit, offset)
	if err != nil {
		return nil, fmt.Errorf("querying messages: %w", err)
	}
	defer rows.Close()

	var messages []*Message
	for rows.Next() {
		msg, err := scanMessage(rows)
		if err != nil {
			return nil, fmt.Errorf("scanning message row: %w", err)
		}
		messages = append(messages, msg)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating message rows: %w", err)
	}

	return messages, nil
}

// MarkMessagesRead flips the read flag in a single statement.
func (s *SQLiteStore) MarkMessagesRead(ctx context.Context, receiverID int64, ids []int64) (int, error) {
	if len(ids) == 0 {
		return 0, nil
	}

	placeholders := strings.TrimSuffix(strings.Repeat("?,", len(ids)), ",")
	query := `UPDATE messages SET is_read = 1 WHERE receiver_id = ? AND is_read = 0 AND id IN (` + placeholders + `)`

	args := make([]any, 0, len(ids)+1)
	args = append(args, receiverID)
	for _, id := range ids {
		args = append(args, id)
	}

	result, err := s.db.ExecContext(ctx, query, args...)
	if err != nil {
		return 0, fmt.Errorf("marking messages read: %w", err)
	}

	n, err := result.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("getting rows affected: %w", err)
	}
	return int(n), nil
}

// CreateConversation inserts a conversation row for (UserLow, UserHigh).
// If the pair already has a row it returns ErrDuplicateConversation.
func (s *SQLiteStore) CreateConversation(ctx context.Context, conv *Conversation) error {
	now := time.Now().UTC()
	if conv.CreatedAt.IsZero() {
		conv.CreatedAt = now
	}
	if conv.UpdatedAt.IsZero() {
		conv.UpdatedAt = conv.CreatedAt
	}

	query := `
		INSERT INTO conversations (user_low, user_high, last_message_id, unread_low, unread_high, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?)
	`

	var lastMessageID any
	if conv.LastMessageID != nil {
		lastMessageID = *conv.LastMessageID
	}

	result, err := s.db.ExecContext(ctx, query,
		conv.UserLow,
		conv.UserHigh,
		lastMessageID,
		conv.UnreadLow,
		conv.UnreadHigh,
		formatTime(conv.CreatedAt),
		formatTime(conv.UpdatedAt),
	)
	if err != nil {
		if isConstraintViolation(err) {
			return ErrDuplicateConversation
		}
		return fmt.Errorf("inserting conversation: %w", err)
	}

	conv.ID, err = result.LastInsertId()
	if err != nil {
		return fmt.Errorf("reading conversation id: %w", err)
	}

	s.logger.Debug("created conversation", "id", conv.ID, "user_low", conv.UserLow, "user_high", conv.UserHigh)
	return nil
}

const conversationColumns = `id, user_low, user_high, last_message_id, unread_low, unread_high, created_at, updated_at`

func scanConversation(row rowScanner) (*Conversation, error) {
	var conv Conversation
	var lastMessageID sql.NullInt64
	var createdAtStr, updatedAtStr string

	if err := row.Scan(
		&conv.ID,
		&conv.UserLow,
		&conv.UserHigh,
		&lastMessageID,
		&conv.UnreadLow,
		&conv.UnreadHigh,
		&createdAtStr,
		&updatedAtStr,
	); err != nil {
		return nil, err
	}

	if lastMessageID.Valid {
		id := lastMessageID.Int64
		conv.LastMessageID = &id
	}

	var err error
	conv.CreatedAt, err = parseTime(createdAtStr)
	if err != nil {
		return nil, fmt.Errorf("parsing created_at: %w", err)
	}
	conv.UpdatedAt, err = parseTime(updatedAtStr)
	if err != nil {
		return nil, fmt.Errorf("parsing updated_at: %w", err)
	}
	return &conv, nil
}

// GetConversationByPair retrieves the conversation for a canonical pair.
// Returns ErrNotFound if the pair has no conversation yet.
func (s *SQLiteStore) GetConversationByPair(ctx context.Context, low, high int64) (*Conversation, error) {
	query := `SELECT ` + conversationColumns + ` FROM conversations WHERE user_low = ? AND user_high = ?`

	conv, err := scanConversation(s.db.QueryRowContext(ctx, query, low, high))
	if err == sql.ErrNoRows {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("querying conversation: %w", err)
	}
	return conv, nil
}

// ListConversationsForUser retrieves every conversation involving userID ordered by updated_at DESC.
func (s *SQLiteStore) ListConversationsForUser(ctx context.Context, userID int64) ([]*Conversation, error) {
	query := `
		SELECT ` + conversationColumns + `
		FROM conversations
		WHERE user_low = ? OR user_high = ?
		ORDER BY updated_at DESC, id DESC
	`

	rows, err := s.db.QueryContext(ctx, query, userID, userID)
	if err != nil {
		return nil, fmt.Errorf("querying conversations: %w", err)
	}
	defer rows.Close()

	var convs []*Conversation
	for rows.Next() {
		conv, err := scanConversation(rows)
		if err != nil {
			return nil, fmt.Errorf("scanning conversation row: %w", err)
		}
		convs = append(convs, conv)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating conversation rows: %w", err)
	}

	return convs, nil
}

// unreadColumn maps a slot to its column name. Never built from user input.
func unreadColumn(slot UnreadSlot) string {
	if slot == SlotHigh {
		return "unread_high"
	}
	return "unread_low"
}

// RecordConversationMessage applies a new message to the conversation in one UPDATE.
// last_message_id and updated_at only move forward, so out-of-order writers
// from concurrent sends cannot regress them.
func (s *SQLiteStore) RecordConversationMessage(ctx context.Context, id, messageID int64, slot UnreadSlot, at time.Time) error {
	col := unreadColumn(slot)
	query := `
		UPDATE conversations
		SET last_message_id = MAX(COALESCE(last_message_id, 0), ?),
		    ` + col + ` = ` + col + ` + 1,
		    updated_at = MAX(updated_at, ?)
		WHERE id = ?
	`

	result, err := s.db.ExecContext(ctx, query, messageID, formatTime(at), id)
	if err != nil {
		return fmt.Errorf("recording conversation message: %w", err)
	}

	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("getting rows affected: %w", err)
	}
	if rowsAffected == 0 {
		return ErrNotFound
	}

	s.logger.Debug("recorded conversation message", "id", id, "message_id", messageID, "slot", slot)
	return nil
}

// ResetConversationUnread zeroes one counter. The WHERE clause makes a
// repeated reset a no-op that also leaves updated_at alone.
func (s *SQLiteStore) ResetConversationUnread(ctx context.Context, id int64, slot UnreadSlot, at time.Time) (bool, error) {
	col := unreadColumn(slot)
	query := `
		UPDATE conversations
		SET ` + col + ` = 0, updated_at = MAX(updated_at, ?)
		WHERE id = ? AND ` + col + ` <> 0
	`

	result, err := s.db.ExecContext(ctx, query, formatTime(at), id)
	if err != nil {
		return false, fmt.Errorf("resetting unread count: %w", err)
	}

	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("getting rows affected: %w", err)
	}
	return rowsAffected > 0, nil
}
