// Package memory keeps the conversation history of interactive DevHub
// sessions.
//
// Implementations:
//   - InMemoryMemory: per-process storage with a per-session cap
//   - RedisMemory: Redis-backed, shared between processes, with TTL
package memory

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/devhub/devhub-go/devhub"
)

// DefaultLimit is the number of messages Retrieve returns when no limit is
// given.
const DefaultLimit = 10

// Memory stores and retrieves session messages.
//
// Example:
//
//	mem := NewInMemoryMemory(200)
//	err := mem.Store(ctx, sessionID, devhub.NewMessage(devhub.RoleUser, "Is staging up?"))
//	recent, err := mem.Retrieve(ctx, sessionID, RetrieveOptions{Limit: 10})
type Memory interface {
	// Store appends a message to the session.
	Store(ctx context.Context, sessionID string, message *devhub.Message) error

	// Retrieve returns session messages, most recent first.
	Retrieve(ctx context.Context, sessionID string, opts RetrieveOptions) ([]*devhub.Message, error)

	// Clear removes every message of the session.
	Clear(ctx context.Context, sessionID string) error

	// Close releases the backing store.
	Close() error
}

// RetrieveOptions filters Retrieve.
type RetrieveOptions struct {
	// Limit caps the result; zero means DefaultLimit.
	Limit int

	// Since drops messages older than this instant when set.
	Since time.Time
}

func (o RetrieveOptions) limit() int {
	if o.Limit <= 0 {
		return DefaultLimit
	}
	return o.Limit
}

// StoreExchange records one answered query: the user message followed by
// the assistant answer carrying the tools it called.
func StoreExchange(ctx context.Context, mem Memory, sessionID, query string, result *devhub.QueryResult) error {
	if err := mem.Store(ctx, sessionID, devhub.NewMessage(devhub.RoleUser, query)); err != nil {
		return err
	}
	names := make([]string, len(result.ToolsCalled))
	for i, name := range result.ToolsCalled {
		names[i] = string(name)
	}
	answer := devhub.NewMessage(devhub.RoleAssistant, result.Response).
		WithMetadata("tools_called", names)
	return mem.Store(ctx, sessionID, answer)
}

// Summarize renders up to limit of the most recent messages, oldest first,
// one line each with long content truncated.
func Summarize(ctx context.Context, mem Memory, sessionID string, limit int) (string, error) {
	messages, err := mem.Retrieve(ctx, sessionID, RetrieveOptions{Limit: limit})
	if err != nil {
		return "", err
	}
	return FormatHistory(messages), nil
}

// FormatHistory renders messages given most recent first, as Retrieve
// returns them.
func FormatHistory(messages []*devhub.Message) string {
	if len(messages) == 0 {
		return "No messages in session."
	}

	lines := make([]string, 0, len(messages))
	for i := len(messages) - 1; i >= 0; i-- {
		msg := messages[i]
		preview := strings.ReplaceAll(msg.Content, "\n", " ")
		if len(preview) > 100 {
			preview = preview[:100] + "..."
		}
		lines = append(lines, fmt.Sprintf("%d. [%s] %s", len(lines)+1, msg.Role, preview))
	}
	return fmt.Sprintf("Session history (%d messages):\n%s", len(messages), strings.Join(lines, "\n"))
}
