package conversation

import (
	"fmt"
	"time"

	"github.com/google/uuid"
)

// Sender values for Message.
const (
	SenderUser = "user"
	SenderAI   = "ai"
)

// Message is one immutable entry in a user's conversation log.
type Message struct {
	ID        string    `json:"id" firestore:"-"`
	Sender    string    `json:"sender" firestore:"sender"`
	Text      string    `json:"text" firestore:"text"`
	CreatedAt time.Time `json:"createdAt" firestore:"timestamp"`
}

// NewID builds a collision-free message identity without a central
// sequence: sender, millisecond timestamp, and a short random suffix.
func NewID(sender string, at time.Time) string {
	return fmt.Sprintf("%s_%d_%s", sender, at.UnixMilli(), uuid.NewString()[:8])
}
