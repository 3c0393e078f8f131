package memory

import (
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
	_ "github.com/mattn/go-sqlite3"
)

// SQLiteStore is a SQLite-backed conversation store.
type SQLiteStore struct {
	db          *sql.DB
	maxMessages int
}

// NewSQLiteStore creates a new SQLite-backed store.
func NewSQLiteStore(dbPath string, maxMessages int) (*SQLiteStore, error) {
	if maxMessages <= 0 {
		maxMessages = 200
	}

	db, err := sql.Open("sqlite3", dbPath+"?_journal_mode=WAL&_busy_timeout=5000")
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}

	store := &SQLiteStore{
		db:          db,
		maxMessages: maxMessages,
	}

	if err := store.migrate(); err != nil {
		db.Close()
		return nil, fmt.Errorf("migrate: %w", err)
	}

	return store, nil
}

// NewSQLiteStoreWithDB wraps an existing database handle. The caller
// retains ownership of the handle; Close is still safe to call.
func NewSQLiteStoreWithDB(db *sql.DB, maxMessages int) (*SQLiteStore, error) {
	if maxMessages <= 0 {
		maxMessages = 200
	}

	store := &SQLiteStore{
		db:          db,
		maxMessages: maxMessages,
	}

	if err := store.migrate(); err != nil {
		return nil, fmt.Errorf("migrate: %w", err)
	}

	return store, nil
}

// migrate creates the database schema.
func (s *SQLiteStore) migrate() error {
	schema := `
	-- Conversations
	CREATE TABLE IF NOT EXISTS conversations (
		id TEXT PRIMARY KEY,
		title TEXT,
		owner_id TEXT,
		metadata TEXT,
		created_at TIMESTAMP NOT NULL,
		updated_at TIMESTAMP NOT NULL
	);
	CREATE INDEX IF NOT EXISTS idx_conversations_owner ON conversations(owner_id);

	-- Messages
	CREATE TABLE IF NOT EXISTS messages (
		id TEXT PRIMARY KEY,
		conversation_id TEXT NOT NULL,
		role TEXT NOT NULL,
		content TEXT NOT NULL,
		timestamp TIMESTAMP NOT NULL,
		FOREIGN KEY (conversation_id) REFERENCES conversations(id) ON DELETE CASCADE
	);
	CREATE INDEX IF NOT EXISTS idx_messages_conversation ON messages(conversation_id, timestamp);
	`

	_, err := s.db.Exec(schema)
	return err
}

// Close closes the database connection.
func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

// CreateConversation creates a new conversation and returns its ID.
// Metadata is stored as JSON; nil is fine.
func (s *SQLiteStore) CreateConversation(title, ownerID string, metadata map[string]string) (string, error) {
	id, err := uuid.NewV7()
	if err != nil {
		return "", fmt.Errorf("generate conversation id: %w", err)
	}

	var meta any
	if len(metadata) > 0 {
		raw, err := json.Marshal(metadata)
		if err != nil {
			return "", fmt.Errorf("marshal metadata: %w", err)
		}
		meta = string(raw)
	}

	now := time.Now()
	_, err = s.db.Exec(`
		INSERT INTO conversations (id, title, owner_id, metadata, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?)
	`, id.String(), title, ownerID, meta, now, now)
	if err != nil {
		return "", fmt.Errorf("create conversation: %w", err)
	}

	return id.String(), nil
}

// GetConversation retrieves a conversation by ID, messages included.
// Returns nil if the conversation does not exist.
func (s *SQLiteStore) GetConversation(id string) *Conversation {
	row := s.db.QueryRow(`
		SELECT id, title, owner_id, metadata, created_at, updated_at
		FROM conversations WHERE id = ?
	`, id)

	var conv Conversation
	var title, ownerID, metadata sql.NullString
	if err := row.Scan(&conv.ID, &title, &ownerID, &metadata, &conv.CreatedAt, &conv.UpdatedAt); err != nil {
		return nil
	}
	conv.Title = title.String
	conv.OwnerID = ownerID.String
	if metadata.Valid && metadata.String != "" {
		_ = json.Unmarshal([]byte(metadata.String), &conv.Metadata)
	}

	conv.Messages = s.GetMessages(id)
	return &conv
}

// AddMessage adds a message to a conversation.
func (s *SQLiteStore) AddMessage(conversationID, role, content string) error {
	now := time.Now()
	msgID, _ := uuid.NewV7()

	_, err := s.db.Exec(`
		INSERT INTO messages (id, conversation_id, role, content, timestamp)
		VALUES (?, ?, ?, ?, ?)
	`, msgID.String(), conversationID, role, content, now)
	if err != nil {
		return fmt.Errorf("insert message: %w", err)
	}

	_, err = s.db.Exec(`
		UPDATE conversations SET updated_at = ? WHERE id = ?
	`, now, conversationID)
	if err != nil {
		return fmt.Errorf("update conversation: %w", err)
	}

	return nil
}

// GetMessages retrieves messages for a conversation in chronological order.
func (s *SQLiteStore) GetMessages(conversationID string) []Message {
	rows, err := s.db.Query(`
		SELECT role, content, timestamp
		FROM messages
		WHERE conversation_id = ?
		ORDER BY timestamp ASC
		LIMIT ?
	`, conversationID, s.maxMessages)
	if err != nil {
		return []Message{}
	}
	defer rows.Close()

	var messages []Message
	for rows.Next() {
		var m Message
		if err := rows.Scan(&m.Role, &m.Content, &m.Timestamp); err != nil {
			continue
		}
		messages = append(messages, m)
	}

	return messages
}

// Clear removes a conversation and its messages.
func (s *SQLiteStore) Clear(conversationID string) error {
	tx, err := s.db.Begin()
	if err != nil {
		return err
	}
	defer func() { _ = tx.Rollback() }()

	_, err = tx.Exec(`DELETE FROM messages WHERE conversation_id = ?`, conversationID)
	if err != nil {
		return err
	}

	_, err = tx.Exec(`DELETE FROM conversations WHERE id = ?`, conversationID)
	if err != nil {
		return err
	}

	return tx.Commit()
}

// Stats returns storage statistics.
func (s *SQLiteStore) Stats() map[string]any {
	var convCount, msgCount int

	_ = s.db.QueryRow(`SELECT COUNT(*) FROM conversations`).Scan(&convCount)
	_ = s.db.QueryRow(`SELECT COUNT(*) FROM messages`).Scan(&msgCount)

	return map[string]any{
		"conversations": convCount,
		"messages":      msgCount,
		"max_per_conv":  s.maxMessages,
		"storage":       "sqlite",
	}
}
