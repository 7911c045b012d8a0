package journal

import (
	"context"
	"fmt"
	"strings"

	"github.com/sirupsen/logrus"

	model "github.com/polaris-wellness/polaris/backend/internal/model/conversation"
	"github.com/polaris-wellness/polaris/backend/internal/service/conversation"
)

// FallbackSuggestion is used whenever the reasoning service cannot
// produce a journal prompt.
const FallbackSuggestion = "Take a moment to reflect on what's bringing you joy today."

const suggestionHistoryLimit = 10

// ToxicityGate decides whether content is too toxic for public posting.
type ToxicityGate interface {
	Exceeds(ctx context.Context, text string) bool
}

// Suggester produces one short journal prompt; ok is false when the
// model is unavailable.
type Suggester interface {
	GenerateShort(ctx context.Context, prompt string) (text string, ok bool)
}

// Service implements journal saves with the public-toxicity gate and
// conversation-aware prompt suggestions.
type Service struct {
	store         Store
	conversations conversation.Store
	gate          ToxicityGate
	suggester     Suggester
}

// NewService wires the journal service. gate and suggester may be nil:
// saves then skip the toxicity check and suggestions use the fallback.
func NewService(store Store, conversations conversation.Store, gate ToxicityGate, suggester Suggester) *Service {
	return &Service{
		store:         store,
		conversations: conversations,
		gate:          gate,
		suggester:     suggester,
	}
}

// Save persists the entry, demoting public entries that exceed the
// toxicity threshold to private first. It returns the visibility
// actually stored.
func (s *Service) Save(ctx context.Context, entry Entry) (string, error) {
	if entry.Visibility == VisibilityPublic && s.gate != nil && s.gate.Exceeds(ctx, entry.Content) {
		logrus.WithField("user", entry.UserID).Info("[journal] public entry demoted to private")
		entry.Visibility = VisibilityPrivate
	}

	if err := s.store.Save(ctx, entry); err != nil {
		return "", err
	}
	return entry.Visibility, nil
}

// ListByUser returns the user's journals, newest first.
func (s *Service) ListByUser(ctx context.Context, userID string) ([]Entry, error) {
	return s.store.ListByUser(ctx, userID)
}

// ListPublic returns public journals across users, newest first.
func (s *Service) ListPublic(ctx context.Context) ([]Entry, error) {
	return s.store.ListPublic(ctx)
}

// Suggestion produces one journal prompt for the user, seeded by their
// recent conversation when available.
func (s *Service) Suggestion(ctx context.Context, userID string) string {
	if s.suggester == nil {
		return FallbackSuggestion
	}

	prompt := "Write a therapeutic journal prompt. Start with 'Write about' or 'Reflect on'. One sentence only."
	if seed := s.conversationContext(ctx, userID); seed != "" {
		prompt = fmt.Sprintf("Context: %s\n\nWrite a journal prompt based on the above context. Start with \"Write about\" or \"Reflect on\". One sentence only.", seed)
	}

	if text, ok := s.suggester.GenerateShort(ctx, prompt); ok && strings.TrimSpace(text) != "" {
		return strings.TrimSpace(text)
	}
	return FallbackSuggestion
}

// conversationContext condenses the user's recent messages into a short
// seed: the last few user topics and what the AI focused on.
func (s *Service) conversationContext(ctx context.Context, userID string) string {
	if s.conversations == nil {
		return ""
	}

	messages, err := s.conversations.Recent(ctx, userID, suggestionHistoryLimit)
	if err != nil {
		logrus.Warnf("[journal] conversation fetch failed: %v", err)
		return ""
	}

	var userTexts, aiTexts []string
	for _, msg := range messages {
		text := strings.TrimSpace(msg.Text)
		if text == "" {
			continue
		}
		switch msg.Sender {
		case model.SenderUser:
			userTexts = append(userTexts, text)
		case model.SenderAI:
			aiTexts = append(aiTexts, text)
		}
	}

	var parts []string
	if len(userTexts) > 0 {
		parts = append(parts, "Recent topics discussed: "+strings.Join(tail(userTexts, 3), " | "))
	}
	if len(aiTexts) > 0 {
		parts = append(parts, "AI responses focused on: "+strings.Join(tail(aiTexts, 2), " | "))
	}
	return strings.Join(parts, " ")
}

func tail(items []string, n int) []string {
	if len(items) > n {
		return items[len(items)-n:]
	}
	return items
}
