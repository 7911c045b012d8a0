package journal

import (
	"context"
	"fmt"
	"time"

	"cloud.google.com/go/firestore"
	"google.golang.org/api/iterator"
)

const (
	userCollection    = "users"
	journalCollection = "journals"
)

// FirestoreStore persists journals under users/{userID}/journals.
type FirestoreStore struct {
	client *firestore.Client
}

// NewFirestoreStore wraps an existing Firestore client.
func NewFirestoreStore(client *firestore.Client) *FirestoreStore {
	return &FirestoreStore{client: client}
}

// Save writes one journal document with an auto-generated ID.
func (s *FirestoreStore) Save(ctx context.Context, entry Entry) error {
	if entry.UserID == "" {
		return ErrUserRequired
	}
	if entry.Timestamp.IsZero() {
		entry.Timestamp = time.Now().UTC()
	}

	ref := s.client.Collection(userCollection).Doc(entry.UserID).Collection(journalCollection).NewDoc()
	_, err := ref.Set(ctx, map[string]any{
		"title":      entry.Title,
		"content":    entry.Content,
		"visibility": entry.Visibility,
		"timestamp":  entry.Timestamp,
	})
	if err != nil {
		return fmt.Errorf("save journal for %s: %w", entry.UserID, err)
	}
	return nil
}

// ListByUser returns the user's journals, newest first.
func (s *FirestoreStore) ListByUser(ctx context.Context, userID string) ([]Entry, error) {
	if userID == "" {
		return nil, ErrUserRequired
	}

	iter := s.client.Collection(userCollection).Doc(userID).Collection(journalCollection).
		OrderBy("timestamp", firestore.Desc).
		Documents(ctx)
	defer iter.Stop()

	return s.collect(iter, userID)
}

// ListPublic queries the journals collection group for public entries
// across every user, newest first. The owning user is recovered from the
// document path.
func (s *FirestoreStore) ListPublic(ctx context.Context) ([]Entry, error) {
	iter := s.client.CollectionGroup(journalCollection).
		Where("visibility", "==", VisibilityPublic).
		OrderBy("timestamp", firestore.Desc).
		Documents(ctx)
	defer iter.Stop()

	return s.collect(iter, "")
}

func (s *FirestoreStore) collect(iter *firestore.DocumentIterator, userID string) ([]Entry, error) {
	var entries []Entry
	for {
		doc, err := iter.Next()
		if err == iterator.Done {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("read journals: %w", err)
		}

		var entry Entry
		if err := doc.DataTo(&entry); err != nil {
			return nil, fmt.Errorf("decode journal %s: %w", doc.Ref.ID, err)
		}
		entry.ID = doc.Ref.ID
		entry.UserID = userID
		if entry.UserID == "" && doc.Ref.Parent != nil && doc.Ref.Parent.Parent != nil {
			entry.UserID = doc.Ref.Parent.Parent.ID
		}
		entries = append(entries, entry)
	}
	return entries, nil
}
