package conversation

import (
	"context"
	"sync"
	"time"

	"github.com/polaris-wellness/polaris/backend/internal/model/conversation"
)

// MemoryStore keeps conversation logs in process memory. Suitable for
// development and tests; the Firestore store is the production backend.
type MemoryStore struct {
	mu       sync.RWMutex
	users    map[string]time.Time
	messages map[string][]conversation.Message
}

// NewMemoryStore bootstraps an empty in-memory store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		users:    make(map[string]time.Time),
		messages: make(map[string][]conversation.Message),
	}
}

// EnsureUser registers the user on first sight.
func (s *MemoryStore) EnsureUser(_ context.Context, userID string) error {
	if userID == "" {
		return ErrUserRequired
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.users[userID]; !ok {
		s.users[userID] = time.Now().UTC()
	}
	return nil
}

// Append adds a message to the user's log, assigning identity and
// timestamp when missing. Insertion order is chronological order.
func (s *MemoryStore) Append(_ context.Context, userID string, msg conversation.Message) error {
	if userID == "" {
		return ErrUserRequired
	}

	if msg.CreatedAt.IsZero() {
		msg.CreatedAt = time.Now().UTC()
	}
	if msg.ID == "" {
		msg.ID = conversation.NewID(msg.Sender, msg.CreatedAt)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.users[userID]; !ok {
		s.users[userID] = time.Now().UTC()
	}
	s.messages[userID] = append(s.messages[userID], msg)
	return nil
}

// Recent returns the last limit messages in ascending order.
func (s *MemoryStore) Recent(_ context.Context, userID string, limit int) ([]conversation.Message, error) {
	if userID == "" {
		return nil, ErrUserRequired
	}
	if limit <= 0 {
		return nil, nil
	}

	s.mu.RLock()
	defer s.mu.RUnlock()

	messages := s.messages[userID]
	start := 0
	if len(messages) > limit {
		start = len(messages) - limit
	}

	copied := make([]conversation.Message, len(messages)-start)
	copy(copied, messages[start:])
	return copied, nil
}
