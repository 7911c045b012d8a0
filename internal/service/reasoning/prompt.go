package reasoning

import (
	"fmt"
	"strings"

	"github.com/polaris-wellness/polaris/backend/internal/analysis/emotion"
	"github.com/polaris-wellness/polaris/backend/internal/model/conversation"
)

// PromptContext carries everything one turn contributes to the prompt.
// Emotion labels may still be provider-qualified; BuildPrompt normalizes
// them. Empty labels mean the signal was absent.
type PromptContext struct {
	Transcript   string
	AudioEmotion string
	VideoEmotion string
	History      []conversation.Message
}

// RenderHistory formats persisted messages as a compact transcript block,
// one "SENDER: text" line per message, oldest first.
func RenderHistory(messages []conversation.Message) string {
	if len(messages) == 0 {
		return ""
	}

	lines := make([]string, 0, len(messages))
	for _, msg := range messages {
		lines = append(lines, fmt.Sprintf("%s: %s", strings.ToUpper(msg.Sender), msg.Text))
	}
	return strings.Join(lines, "\n")
}

// BuildPrompt composes the single Polaris prompt for a turn.
func BuildPrompt(pc PromptContext) string {
	audioEmotion := emotion.Normalize(pc.AudioEmotion)
	videoEmotion := emotion.Normalize(pc.VideoEmotion)

	historyContext := ""
	if history := RenderHistory(pc.History); history != "" {
		historyContext = fmt.Sprintf("\nRECENT CONVERSATION CONTEXT:\n%s\n\n", history)
	}

	return fmt.Sprintf(`You are Polaris, an empathetic conversational agent and wellness companion. You blend the qualities of a therapist and close friend.
%sCORE GUIDELINES:
- Always prioritize the emotion expressed in the text
- Be warm, understanding, and naturally conversational
- Intelligently decide when conversation history is relevant to the current question - use it when it helps provide better context, ignore it when it doesn't relate to the current input
- If video and audio emotions differ from text, blend them subtly without mentioning the mismatch
- Adjust response length proportionally to user input - keep it short for basic questions and expand only when the topic truly demands more comprehensive coverage
- Paraphrase rather than repeat the user's exact words
- No emojis

CURRENT INPUT ANALYSIS:
- Text: "%s"
- Video emotion detected: %s
- Audio emotion detected: %s

Respond naturally as Polaris, keeping your response conversational and supportive.`,
		historyContext, pc.Transcript, orNone(videoEmotion), orNone(audioEmotion))
}

func orNone(label string) string {
	if label == "" {
		return "none"
	}
	return label
}
