// ABOUTME: SQLite implementation of the Store interface using modernc.org/sqlite
// ABOUTME: Provides conversation/message persistence with server-assigned monotonic timestamps

package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/google/uuid"
	_ "modernc.org/sqlite"
)

// SQLiteStore implements the Store interface using SQLite
type SQLiteStore struct {
	db     *sql.DB
	hub    *hub
	logger *slog.Logger

	// clockMu guards lastTS so timestamps assigned by this store are
	// strictly monotonic even when the wall clock stalls.
	clockMu sync.Mutex
	lastTS  time.Time
}

// NewSQLiteStore creates a new SQLite store at the given path.
// The schema is automatically created if it doesn't exist.
// Parent directories are created if needed.
func NewSQLiteStore(path string) (*SQLiteStore, error) {
	logger := slog.Default().With("component", "store")

	if path != ":memory:" {
		dir := filepath.Dir(path)
		if err := os.MkdirAll(dir, 0755); err != nil {
			return nil, fmt.Errorf("creating database directory: %w", err)
		}
	}

	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("opening database: %w", err)
	}

	// Enable WAL mode for better concurrent performance
	if _, err := db.Exec("PRAGMA journal_mode=WAL"); err != nil {
		db.Close()
		return nil, fmt.Errorf("enabling WAL mode: %w", err)
	}

	s := &SQLiteStore{
		db:     db,
		logger: logger,
	}
	s.hub = newHub(s, logger)

	if err := s.createSchema(); err != nil {
		db.Close()
		return nil, fmt.Errorf("creating schema: %w", err)
	}

	logger.Info("SQLite store initialized", "path", path)
	return s, nil
}

// createSchema creates the database tables if they don't exist
func (s *SQLiteStore) createSchema() error {
	schema := `
		CREATE TABLE IF NOT EXISTS conversations (
			id TEXT PRIMARY KEY,
			participant_a TEXT NOT NULL,
			participant_b TEXT NOT NULL,
			participant_names TEXT NOT NULL DEFAULT '{}',
			last_message TEXT NOT NULL DEFAULT '',
			last_message_at DATETIME,
			created_at DATETIME NOT NULL
		);

		CREATE INDEX IF NOT EXISTS idx_conversations_participant_a
			ON conversations(participant_a);

		CREATE INDEX IF NOT EXISTS idx_conversations_participant_b
			ON conversations(participant_b);

		CREATE TABLE IF NOT EXISTS messages (
			id TEXT PRIMARY KEY,
			conversation_id TEXT NOT NULL,
			sender_id TEXT NOT NULL,
			sender_name TEXT NOT NULL,
			text TEXT NOT NULL,
			timestamp DATETIME NOT NULL
		);

		CREATE INDEX IF NOT EXISTS idx_messages_conversation_ts
			ON messages(conversation_id, timestamp);
	`

	_, err := s.db.Exec(schema)
	return err
}

// DB exposes the underlying handle so sibling read-only stores (profiles)
// can share the same database file.
func (s *SQLiteStore) DB() *sql.DB {
	return s.db
}

// now returns a store-assigned timestamp, strictly greater than any
// timestamp this store handed out before.
func (s *SQLiteStore) now() time.Time {
	s.clockMu.Lock()
	defer s.clockMu.Unlock()

	t := time.Now().UTC()
	if !t.After(s.lastTS) {
		t = s.lastTS.Add(time.Microsecond)
	}
	s.lastTS = t
	return t
}

// CreateConversation inserts a new conversation record. The store assigns
// CreatedAt; an empty ID is filled with a fresh UUID.
func (s *SQLiteStore) CreateConversation(ctx context.Context, conv *Conversation) error {
	if len(conv.Participants) != 2 {
		return fmt.Errorf("conversation requires exactly two participants, got %d", len(conv.Participants))
	}
	if conv.ID == "" {
		conv.ID = uuid.New().String()
	}
	conv.CreatedAt = s.now()

	names, err := json.Marshal(conv.ParticipantNames)
	if err != nil {
		return fmt.Errorf("encoding participant names: %w", err)
	}

	query := `
		INSERT INTO conversations (id, participant_a, participant_b, participant_names, last_message, last_message_at, created_at)
		VALUES (?, ?, ?, ?, ?, NULL, ?)
	`
	_, err = s.db.ExecContext(ctx, query,
		conv.ID, conv.Participants[0], conv.Participants[1], string(names), conv.LastMessage, conv.CreatedAt)
	if err != nil {
		return fmt.Errorf("inserting conversation: %w", err)
	}

	s.logger.Debug("conversation created", "conversation_id", conv.ID)
	s.hub.notify()
	return nil
}

// GetConversation retrieves a conversation by id
func (s *SQLiteStore) GetConversation(ctx context.Context, id string) (*Conversation, error) {
	query := `
		SELECT id, participant_a, participant_b, participant_names, last_message, last_message_at, created_at
		FROM conversations WHERE id = ?
	`
	conv, err := scanConversation(s.db.QueryRowContext(ctx, query, id))
	if err == sql.ErrNoRows {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("querying conversation: %w", err)
	}
	return conv, nil
}

// ListConversationsByParticipant returns every conversation whose
// participants include userID.
func (s *SQLiteStore) ListConversationsByParticipant(ctx context.Context, userID string) ([]*Conversation, error) {
	query := `
		SELECT id, participant_a, participant_b, participant_names, last_message, last_message_at, created_at
		FROM conversations
		WHERE participant_a = ? OR participant_b = ?
		ORDER BY created_at
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
			return nil, fmt.Errorf("scanning conversation: %w", err)
		}
		convs = append(convs, conv)
	}
	return convs, rows.Err()
}

// UpdateConversationSummary sets the denormalized summary cache. The store
// assigns a fresh LastMessageAt timestamp.
func (s *SQLiteStore) UpdateConversationSummary(ctx context.Context, id, lastMessage string) error {
	ts := s.now()
	res, err := s.db.ExecContext(ctx,
		`UPDATE conversations SET last_message = ?, last_message_at = ? WHERE id = ?`,
		lastMessage, ts, id)
	if err != nil {
		return fmt.Errorf("updating summary: %w", err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("checking update result: %w", err)
	}
	if affected == 0 {
		return ErrNotFound
	}

	s.hub.notify()
	return nil
}

// DeleteConversation removes a conversation record. Deleting an id that is
// already gone is a no-op.
func (s *SQLiteStore) DeleteConversation(ctx context.Context, id string) error {
	res, err := s.db.ExecContext(ctx, `DELETE FROM conversations WHERE id = ?`, id)
	if err != nil {
		return fmt.Errorf("deleting conversation: %w", err)
	}
	if affected, err := res.RowsAffected(); err == nil && affected > 0 {
		s.logger.Debug("conversation deleted", "conversation_id", id)
		s.hub.notify()
	}
	return nil
}

// CreateMessage inserts a message. The store assigns the timestamp; an
// empty ID is filled with a fresh UUID.
func (s *SQLiteStore) CreateMessage(ctx context.Context, msg *Message) error {
	if msg.ConversationID == "" {
		return fmt.Errorf("message requires a conversation id")
	}
	if msg.ID == "" {
		msg.ID = uuid.New().String()
	}
	msg.Timestamp = s.now()

	query := `
		INSERT INTO messages (id, conversation_id, sender_id, sender_name, text, timestamp)
		VALUES (?, ?, ?, ?, ?, ?)
	`
	_, err := s.db.ExecContext(ctx, query,
		msg.ID, msg.ConversationID, msg.SenderID, msg.SenderName, msg.Text, msg.Timestamp)
	if err != nil {
		return fmt.Errorf("inserting message: %w", err)
	}

	s.hub.notify()
	return nil
}

// ListMessages returns the conversation's messages ascending by timestamp.
func (s *SQLiteStore) ListMessages(ctx context.Context, conversationID string) ([]*Message, error) {
	query := `
		SELECT id, conversation_id, sender_id, sender_name, text, timestamp
		FROM messages
		WHERE conversation_id = ?
		ORDER BY timestamp ASC, id ASC
	`
	rows, err := s.db.QueryContext(ctx, query, conversationID)
	if err != nil {
		return nil, fmt.Errorf("querying messages: %w", err)
	}
	defer rows.Close()

	var msgs []*Message
	for rows.Next() {
		var m Message
		if err := rows.Scan(&m.ID, &m.ConversationID, &m.SenderID, &m.SenderName, &m.Text, &m.Timestamp); err != nil {
			return nil, fmt.Errorf("scanning message: %w", err)
		}
		m.Timestamp = m.Timestamp.UTC()
		msgs = append(msgs, &m)
	}
	return msgs, rows.Err()
}

// ListMessageIDs returns the ids of every message under the conversation.
func (s *SQLiteStore) ListMessageIDs(ctx context.Context, conversationID string) ([]string, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT id FROM messages WHERE conversation_id = ? ORDER BY timestamp ASC, id ASC`, conversationID)
	if err != nil {
		return nil, fmt.Errorf("querying message ids: %w", err)
	}
	defer rows.Close()

	var ids []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, fmt.Errorf("scanning message id: %w", err)
		}
		ids = append(ids, id)
	}
	return ids, rows.Err()
}

// DeleteMessage removes one message. Idempotent.
func (s *SQLiteStore) DeleteMessage(ctx context.Context, conversationID, messageID string) error {
	res, err := s.db.ExecContext(ctx,
		`DELETE FROM messages WHERE conversation_id = ? AND id = ?`, conversationID, messageID)
	if err != nil {
		return fmt.Errorf("deleting message: %w", err)
	}
	if affected, err := res.RowsAffected(); err == nil && affected > 0 {
		s.hub.notify()
	}
	return nil
}

// WatchConversations opens a live snapshot stream filtered by participant.
func (s *SQLiteStore) WatchConversations(userID string) (*ConversationSub, error) {
	return s.hub.subscribeConversations(userID)
}

// WatchMessages opens a live ordered message stream for one conversation.
func (s *SQLiteStore) WatchMessages(conversationID string) (*MessageSub, error) {
	return s.hub.subscribeMessages(conversationID)
}

// Close terminates all subscriptions and closes the database.
func (s *SQLiteStore) Close() error {
	s.hub.close()
	return s.db.Close()
}

// rowScanner abstracts sql.Row and sql.Rows for scanConversation
type rowScanner interface {
	Scan(dest ...any) error
}

func scanConversation(row rowScanner) (*Conversation, error) {
	var (
		conv     Conversation
		a, b     string
		names    string
		lastAt   sql.NullTime
		lastText string
	)
	if err := row.Scan(&conv.ID, &a, &b, &names, &lastText, &lastAt, &conv.CreatedAt); err != nil {
		return nil, err
	}
	conv.Participants = []string{a, b}
	conv.LastMessage = lastText
	conv.CreatedAt = conv.CreatedAt.UTC()
	if lastAt.Valid {
		t := lastAt.Time.UTC()
		conv.LastMessageAt = &t
	}
	if names != "" {
		if err := json.Unmarshal([]byte(names), &conv.ParticipantNames); err != nil {
			return nil, fmt.Errorf("decoding participant names: %w", err)
		}
	}
	return &conv, nil
}
