package journal

import (
	"context"
	"errors"
	"time"
)

// Visibility values for an entry.
const (
	VisibilityPublic  = "public"
	VisibilityPrivate = "private"
)

var ErrUserRequired = errors.New("user id is required")

// Entry is one journal document owned by a user.
type Entry struct {
	ID         string    `json:"id,omitempty" firestore:"-"`
	UserID     string    `json:"user_id" firestore:"-"`
	Title      string    `json:"title" firestore:"title"`
	Content    string    `json:"content" firestore:"content"`
	Visibility string    `json:"visibility" firestore:"visibility"`
	Timestamp  time.Time `json:"timestamp" firestore:"timestamp"`
}

// Store persists journal entries. Listings are newest first.
type Store interface {
	Save(ctx context.Context, entry Entry) error
	ListByUser(ctx context.Context, userID string) ([]Entry, error)
	ListPublic(ctx context.Context) ([]Entry, error)
}
