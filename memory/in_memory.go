package memory

import (
	"context"
	"sync"

	"github.com/devhub/devhub-go/devhub"
)

// InMemoryMemory keeps sessions in process memory. Each session holds at
// most maxSize messages; the oldest is evicted first.
type InMemoryMemory struct {
	maxSize int
	mu      sync.RWMutex
	storage map[string][]*devhub.Message
}

// NewInMemoryMemory creates an in-memory store. A maxSize <= 0 means 1000.
func NewInMemoryMemory(maxSize int) *InMemoryMemory {
	if maxSize <= 0 {
		maxSize = 1000
	}
	return &InMemoryMemory{
		maxSize: maxSize,
		storage: make(map[string][]*devhub.Message),
	}
}

// Store appends message to the session.
func (m *InMemoryMemory) Store(ctx context.Context, sessionID string, message *devhub.Message) error {
	if err := message.Validate(); err != nil {
		return err
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	stored := *message
	m.storage[sessionID] = append(m.storage[sessionID], &stored)
	if over := len(m.storage[sessionID]) - m.maxSize; over > 0 {
		m.storage[sessionID] = m.storage[sessionID][over:]
	}
	return nil
}

// Retrieve returns the session messages, most recent first.
func (m *InMemoryMemory) Retrieve(ctx context.Context, sessionID string, opts RetrieveOptions) ([]*devhub.Message, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	stored := m.storage[sessionID]
	limit := opts.limit()
	out := make([]*devhub.Message, 0, min(limit, len(stored)))
	for i := len(stored) - 1; i >= 0 && len(out) < limit; i-- {
		msg := stored[i]
		if !opts.Since.IsZero() && msg.Timestamp.Before(opts.Since) {
			continue
		}
		copied := *msg
		out = append(out, &copied)
	}
	return out, nil
}

// Clear removes the session.
func (m *InMemoryMemory) Clear(ctx context.Context, sessionID string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.storage, sessionID)
	return nil
}

// SessionCount returns the number of sessions with stored messages.
func (m *InMemoryMemory) SessionCount() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.storage)
}

// Close is a no-op.
func (m *InMemoryMemory) Close() error {
	return nil
}
