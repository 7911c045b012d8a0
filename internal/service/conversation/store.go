package conversation

import (
	"context"
	"errors"

	"github.com/polaris-wellness/polaris/backend/internal/model/conversation"
)

var ErrUserRequired = errors.New("user id is required")

// Store is the append-only, per-user conversation log the turn pipeline
// writes to. Implementations must be safe for concurrent use across users
// and treat Append as at-least-once: message identity makes duplicates
// harmless.
type Store interface {
	// EnsureUser creates the user record if absent; a no-op otherwise.
	EnsureUser(ctx context.Context, userID string) error
	// Append adds a message to the user's log. The message ID is assigned
	// by the store when empty.
	Append(ctx context.Context, userID string, msg conversation.Message) error
	// Recent returns up to limit messages in ascending chronological order.
	Recent(ctx context.Context, userID string, limit int) ([]conversation.Message, error)
}
