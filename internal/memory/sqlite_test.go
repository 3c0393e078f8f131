package memory

import (
	"database/sql"
	"testing"

	_ "modernc.org/sqlite"
)

func setupTestStore(t *testing.T) *SQLiteStore {
	db, err := sql.Open("sqlite", ":memory:")
	if err != nil {
		t.Fatalf("open db: %v", err)
	}
	t.Cleanup(func() { db.Close() })

	store, err := NewSQLiteStoreWithDB(db, 50)
	if err != nil {
		t.Fatalf("new store: %v", err)
	}
	return store
}

func TestCreateConversation(t *testing.T) {
	store := setupTestStore(t)

	id, err := store.CreateConversation("Flight lookup", "agent-travel", map[string]string{
		"purpose": "delegation",
	})
	if err != nil {
		t.Fatalf("create conversation: %v", err)
	}
	if id == "" {
		t.Fatal("expected non-empty conversation id")
	}

	conv := store.GetConversation(id)
	if conv == nil {
		t.Fatal("expected conversation to exist")
	}
	if conv.Title != "Flight lookup" {
		t.Errorf("title = %q, want 'Flight lookup'", conv.Title)
	}
	if conv.OwnerID != "agent-travel" {
		t.Errorf("owner = %q, want 'agent-travel'", conv.OwnerID)
	}
	if conv.Metadata["purpose"] != "delegation" {
		t.Errorf("metadata purpose = %q, want 'delegation'", conv.Metadata["purpose"])
	}
}

func TestGetConversationMissing(t *testing.T) {
	store := setupTestStore(t)

	if conv := store.GetConversation("no-such-id"); conv != nil {
		t.Errorf("expected nil for missing conversation, got %+v", conv)
	}
}

func TestAddAndGetMessages(t *testing.T) {
	store := setupTestStore(t)

	id, err := store.CreateConversation("", "", nil)
	if err != nil {
		t.Fatalf("create conversation: %v", err)
	}

	if err := store.AddMessage(id, "user", "book a table for two"); err != nil {
		t.Fatalf("add message: %v", err)
	}
	if err := store.AddMessage(id, "assistant", "Done, 7pm at Luigi's."); err != nil {
		t.Fatalf("add message: %v", err)
	}

	messages := store.GetMessages(id)
	if len(messages) != 2 {
		t.Fatalf("got %d messages, want 2", len(messages))
	}
	if messages[0].Role != "user" || messages[1].Role != "assistant" {
		t.Errorf("unexpected role order: %s, %s", messages[0].Role, messages[1].Role)
	}
	if messages[1].Content != "Done, 7pm at Luigi's." {
		t.Errorf("content = %q", messages[1].Content)
	}
}

func TestClear(t *testing.T) {
	store := setupTestStore(t)

	id, _ := store.CreateConversation("scratch", "", nil)
	_ = store.AddMessage(id, "user", "hello")

	if err := store.Clear(id); err != nil {
		t.Fatalf("clear: %v", err)
	}
	if conv := store.GetConversation(id); conv != nil {
		t.Error("expected conversation gone after clear")
	}
	if msgs := store.GetMessages(id); len(msgs) != 0 {
		t.Errorf("expected no messages after clear, got %d", len(msgs))
	}
}

func TestStats(t *testing.T) {
	store := setupTestStore(t)

	id, _ := store.CreateConversation("", "", nil)
	_ = store.AddMessage(id, "user", "one")
	_ = store.AddMessage(id, "assistant", "two")

	stats := store.Stats()
	if stats["conversations"] != 1 {
		t.Errorf("conversations = %v, want 1", stats["conversations"])
	}
	if stats["messages"] != 2 {
		t.Errorf("messages = %v, want 2", stats["messages"])
	}
}
