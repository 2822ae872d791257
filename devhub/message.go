// Package devhub provides the core types shared by the DevHub orchestrator,
// its simulated backends, and the completion adapters.
package devhub

import (
	"fmt"
	"time"
)

// Message roles understood by the completion adapters.
const (
	RoleSystem    = "system"
	RoleUser      = "user"
	RoleAssistant = "assistant"
)

// Message represents one role-tagged entry of a completion request or response.
type Message struct {
	Role      string                 `json:"role"`
	Content   string                 `json:"content"`
	Metadata  map[string]interface{} `json:"metadata"`
	Timestamp time.Time              `json:"timestamp"`
}

// NewMessage creates a new message with the given role and content.
func NewMessage(role, content string) *Message {
	return &Message{
		Role:      role,
		Content:   content,
		Metadata:  make(map[string]interface{}),
		Timestamp: time.Now().UTC(),
	}
}

// WithMetadata adds metadata to the message and returns the message for chaining.
func (m *Message) WithMetadata(key string, value interface{}) *Message {
	if m.Metadata == nil {
		m.Metadata = make(map[string]interface{})
	}
	m.Metadata[key] = value
	return m
}

// Validate checks the role and content size of the message.
func (m *Message) Validate() error {
	switch m.Role {
	case RoleSystem, RoleUser, RoleAssistant:
	case "":
		return fmt.Errorf("message role cannot be empty")
	default:
		return fmt.Errorf("invalid message role: %s. Must be one of: system, user, assistant", m.Role)
	}

	// Content validation - max 1MB
	maxContentSize := 1024 * 1024
	if len(m.Content) > maxContentSize {
		return fmt.Errorf("message content exceeds maximum size of %d bytes (got %d bytes)", maxContentSize, len(m.Content))
	}
	return nil
}
