package turn

import (
	"context"
	"errors"
)

// Phase is the lifecycle state of one conversational turn.
type Phase int

const (
	PhaseAwaitingInit Phase = iota
	PhaseCollectingInput
	PhaseTranscribing
	PhaseAnalyzing
	PhaseReasoning
	PhasePersisting
	PhaseSynthesizing
	PhaseCompleted
	PhaseErrored
)

func (p Phase) String() string {
	switch p {
	case PhaseAwaitingInit:
		return "awaiting_init"
	case PhaseCollectingInput:
		return "collecting_input"
	case PhaseTranscribing:
		return "transcribing"
	case PhaseAnalyzing:
		return "analyzing"
	case PhaseReasoning:
		return "reasoning"
	case PhasePersisting:
		return "persisting"
	case PhaseSynthesizing:
		return "synthesizing"
	case PhaseCompleted:
		return "completed"
	case PhaseErrored:
		return "errored"
	default:
		return "unknown"
	}
}

var (
	// ErrMissingIdentity aborts a turn whose init event carried no user id.
	ErrMissingIdentity = errors.New("user id is required")
	// ErrIncompleteTurn aborts a turn whose connection ended before the
	// terminal audio event. No side effects have happened by then.
	ErrIncompleteTurn = errors.New("turn ended before audio was received")
	// ErrInvalidPhase rejects events arriving outside their legal phase.
	ErrInvalidPhase = errors.New("event not valid in current phase")
)

// Result is the final payload of a successful turn.
type Result struct {
	Text  string
	Audio []byte
}

// Sink receives advisory progress events. Implementations must not block:
// events are observational and never required for correctness.
type Sink interface {
	Status(message string)
	InterimTranscript(text string)
}

// NopSink discards all progress events.
type NopSink struct{}

func (NopSink) Status(string)            {}
func (NopSink) InterimTranscript(string) {}

// Decoder converts a recorded clip into normalized linear PCM.
type Decoder interface {
	DecodePCM(ctx context.Context, data []byte) ([]byte, error)
}

// Transcriber returns transcript candidates for a PCM clip, best first.
type Transcriber interface {
	Transcribe(ctx context.Context, pcm []byte) ([]string, error)
}

// Scorer maps an opaque payload (PCM clip or video frame) to emotion
// label scores.
type Scorer interface {
	Score(ctx context.Context, data []byte) (map[string]float64, error)
}

// Reasoner produces a reply for a composed prompt. It never fails; total
// exhaustion yields a fixed fallback string.
type Reasoner interface {
	Generate(ctx context.Context, prompt string) string
}

// Synthesizer converts reply text to audio bytes.
type Synthesizer interface {
	Synthesize(ctx context.Context, text string) ([]byte, error)
}
