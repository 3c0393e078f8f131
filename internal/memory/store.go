// Package memory provides conversation and message storage.
package memory

import "time"

// Store is the interface for conversation storage. The delegation
// subsystem consumes it read-mostly: it creates a conversation per
// delegation and polls messages; the chat-completion endpoint owns the
// writes that matter.
type Store interface {
	CreateConversation(title, ownerID string, metadata map[string]string) (string, error)
	GetConversation(id string) *Conversation
	AddMessage(conversationID, role, content string) error
	GetMessages(conversationID string) []Message
	Clear(conversationID string) error
	Stats() map[string]any
}

// Message represents a conversation message.
type Message struct {
	Role      string    `json:"role"` // system, user, assistant, tool
	Content   string    `json:"content"`
	Timestamp time.Time `json:"timestamp"`
}

// Conversation holds the state of a single conversation.
type Conversation struct {
	ID        string            `json:"id"`
	Title     string            `json:"title,omitempty"`
	OwnerID   string            `json:"owner_id,omitempty"`
	Metadata  map[string]string `json:"metadata,omitempty"`
	Messages  []Message         `json:"messages"`
	CreatedAt time.Time         `json:"created_at"`
	UpdatedAt time.Time         `json:"updated_at"`
}
