package conversation

import (
	"context"
	"fmt"
	"time"

	"cloud.google.com/go/firestore"
	"google.golang.org/api/iterator"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"

	"github.com/polaris-wellness/polaris/backend/internal/model/conversation"
)

const (
	userCollection         = "users"
	conversationCollection = "conversations"
)

// FirestoreStore persists conversation logs under
// users/{userID}/conversations/{messageID}. Document IDs carry
// sender + millisecond timestamp + random suffix so concurrent appends
// never collide, and ordering is delegated to the timestamp field.
type FirestoreStore struct {
	client *firestore.Client
}

// NewFirestoreStore wraps an existing Firestore client.
func NewFirestoreStore(client *firestore.Client) *FirestoreStore {
	return &FirestoreStore{client: client}
}

// EnsureUser creates the user document if it does not exist.
func (s *FirestoreStore) EnsureUser(ctx context.Context, userID string) error {
	if userID == "" {
		return ErrUserRequired
	}

	ref := s.client.Collection(userCollection).Doc(userID)
	_, err := ref.Get(ctx)
	if err == nil {
		return nil
	}
	if status.Code(err) != codes.NotFound {
		return fmt.Errorf("lookup user %s: %w", userID, err)
	}

	_, err = ref.Set(ctx, map[string]any{
		"user_id":    userID,
		"created_at": time.Now().UTC(),
	})
	if err != nil {
		return fmt.Errorf("create user %s: %w", userID, err)
	}
	return nil
}

// Append writes one message document.
func (s *FirestoreStore) Append(ctx context.Context, userID string, msg conversation.Message) error {
	if userID == "" {
		return ErrUserRequired
	}

	if msg.CreatedAt.IsZero() {
		msg.CreatedAt = time.Now().UTC()
	}
	if msg.ID == "" {
		msg.ID = conversation.NewID(msg.Sender, msg.CreatedAt)
	}

	ref := s.client.Collection(userCollection).Doc(userID).Collection(conversationCollection).Doc(msg.ID)
	_, err := ref.Set(ctx, map[string]any{
		"sender":    msg.Sender,
		"text":      msg.Text,
		"timestamp": msg.CreatedAt,
	})
	if err != nil {
		return fmt.Errorf("append message for %s: %w", userID, err)
	}
	return nil
}

// Recent fetches the newest limit messages and reverses them into
// ascending chronological order.
func (s *FirestoreStore) Recent(ctx context.Context, userID string, limit int) ([]conversation.Message, error) {
	if userID == "" {
		return nil, ErrUserRequired
	}
	if limit <= 0 {
		return nil, nil
	}

	iter := s.client.Collection(userCollection).Doc(userID).Collection(conversationCollection).
		OrderBy("timestamp", firestore.Desc).
		Limit(limit).
		Documents(ctx)
	defer iter.Stop()

	var newestFirst []conversation.Message
	for {
		doc, err := iter.Next()
		if err == iterator.Done {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("read messages for %s: %w", userID, err)
		}

		var msg conversation.Message
		if err := doc.DataTo(&msg); err != nil {
			return nil, fmt.Errorf("decode message %s: %w", doc.Ref.ID, err)
		}
		msg.ID = doc.Ref.ID
		newestFirst = append(newestFirst, msg)
	}

	messages := make([]conversation.Message, len(newestFirst))
	for i, msg := range newestFirst {
		messages[len(newestFirst)-1-i] = msg
	}
	return messages, nil
}
