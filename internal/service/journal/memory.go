package journal

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
)

// MemoryStore keeps journal entries in process memory.
type MemoryStore struct {
	mu      sync.RWMutex
	entries map[string][]Entry
}

// NewMemoryStore bootstraps an empty in-memory journal store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{entries: make(map[string][]Entry)}
}

// Save appends one entry under its user.
func (s *MemoryStore) Save(_ context.Context, entry Entry) error {
	if entry.UserID == "" {
		return ErrUserRequired
	}
	if entry.Timestamp.IsZero() {
		entry.Timestamp = time.Now().UTC()
	}
	if entry.ID == "" {
		entry.ID = uuid.NewString()
	}

	s.mu.Lock()
	s.entries[entry.UserID] = append(s.entries[entry.UserID], entry)
	s.mu.Unlock()
	return nil
}

// ListByUser returns the user's entries, newest first.
func (s *MemoryStore) ListByUser(_ context.Context, userID string) ([]Entry, error) {
	if userID == "" {
		return nil, ErrUserRequired
	}

	s.mu.RLock()
	defer s.mu.RUnlock()

	copied := make([]Entry, len(s.entries[userID]))
	copy(copied, s.entries[userID])
	sortNewestFirst(copied)
	return copied, nil
}

// ListPublic returns public entries across all users, newest first.
func (s *MemoryStore) ListPublic(_ context.Context) ([]Entry, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var public []Entry
	for _, entries := range s.entries {
		for _, entry := range entries {
			if entry.Visibility == VisibilityPublic {
				public = append(public, entry)
			}
		}
	}
	sortNewestFirst(public)
	return public, nil
}

func sortNewestFirst(entries []Entry) {
	sort.SliceStable(entries, func(i, j int) bool {
		return entries[i].Timestamp.After(entries[j].Timestamp)
	})
}
