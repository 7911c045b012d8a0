package turn_test

import (
	"context"
	"errors"
	"strings"
	"sync"
	"testing"

	model "github.com/polaris-wellness/polaris/backend/internal/model/conversation"
	"github.com/polaris-wellness/polaris/backend/internal/service/conversation"
	"github.com/polaris-wellness/polaris/backend/internal/service/reasoning"
	"github.com/polaris-wellness/polaris/backend/internal/service/turn"
)

type fakeDecoder struct {
	pcm []byte
	err error
}

func (f *fakeDecoder) DecodePCM(_ context.Context, _ []byte) ([]byte, error) {
	return f.pcm, f.err
}

type fakeTranscriber struct {
	candidates []string
	err        error
}

func (f *fakeTranscriber) Transcribe(_ context.Context, _ []byte) ([]string, error) {
	return f.candidates, f.err
}

// queueScorer serves queued results; safe for the concurrent per-frame
// fan-out.
type queueScorer struct {
	mu      sync.Mutex
	results []map[string]float64
	errs    []error
	calls   int
}

func (f *queueScorer) Score(_ context.Context, _ []byte) (map[string]float64, error) {
	f.mu.Lock()
	idx := f.calls
	f.calls++
	f.mu.Unlock()
	var err error
	if idx < len(f.errs) {
		err = f.errs[idx]
	}
	if err != nil {
		return nil, err
	}
	if idx < len(f.results) {
		return f.results[idx], nil
	}
	return nil, nil
}

type fakeReasoner struct {
	reply   string
	prompts []string
}

func (f *fakeReasoner) Generate(_ context.Context, prompt string) string {
	f.prompts = append(f.prompts, prompt)
	return f.reply
}

type fakeSynthesizer struct {
	audio []byte
	err   error
	calls int
}

func (f *fakeSynthesizer) Synthesize(_ context.Context, _ string) ([]byte, error) {
	f.calls++
	return f.audio, f.err
}

type recordingSink struct {
	statuses    []string
	transcripts []string
}

func (s *recordingSink) Status(message string)        { s.statuses = append(s.statuses, message) }
func (s *recordingSink) InterimTranscript(text string) { s.transcripts = append(s.transcripts, text) }

func newOrchestrator(store conversation.Store, deps turn.Deps) *turn.Orchestrator {
	deps.Store = store
	if deps.Decoder == nil {
		deps.Decoder = &fakeDecoder{pcm: []byte("pcm")}
	}
	return turn.New(deps)
}

func TestFullTurnScenario(t *testing.T) {
	store := conversation.NewMemoryStore()
	reasoner := &fakeReasoner{reply: "That sounds like a steady day."}
	synth := &fakeSynthesizer{audio: []byte("wav-bytes")}
	videoScorer := &queueScorer{results: []map[string]float64{
		{"happy": 0.8},
		{"happy": 0.4, "sad": 0.2},
	}}

	o := newOrchestrator(store, turn.Deps{
		Transcriber: &fakeTranscriber{candidates: []string{"I'm okay"}},
		AudioScorer: &queueScorer{results: []map[string]float64{{"neutral": 0.9}}},
		VideoScorer: videoScorer,
		Reasoner:    reasoner,
		Synthesizer: synth,
	})

	ctx := context.Background()
	if err := o.Init(ctx, "u1"); err != nil {
		t.Fatalf("Init err: %v", err)
	}
	if err := o.AddFrame([]byte("frame1")); err != nil {
		t.Fatalf("AddFrame err: %v", err)
	}
	if err := o.AddFrame([]byte("frame2")); err != nil {
		t.Fatalf("AddFrame err: %v", err)
	}

	sink := &recordingSink{}
	result, err := o.Finish(ctx, []byte("webm"), sink)
	if err != nil {
		t.Fatalf("Finish err: %v", err)
	}

	if result.Text == "" || len(result.Audio) == 0 {
		t.Fatalf("expected non-empty text and audio, got %+v", result)
	}
	if o.Phase() != turn.PhaseCompleted {
		t.Fatalf("expected completed phase, got %s", o.Phase())
	}

	if len(reasoner.prompts) != 1 {
		t.Fatalf("expected one reasoning call, got %d", len(reasoner.prompts))
	}
	prompt := reasoner.prompts[0]
	if !strings.Contains(prompt, "Video emotion detected: happy") {
		t.Fatalf("expected aggregated video emotion happy in prompt: %s", prompt)
	}
	if !strings.Contains(prompt, "Audio emotion detected: neutral") {
		t.Fatalf("expected audio emotion neutral in prompt: %s", prompt)
	}

	messages, err := store.Recent(ctx, "u1", 10)
	if err != nil {
		t.Fatalf("Recent err: %v", err)
	}
	if len(messages) != 2 {
		t.Fatalf("expected user+ai messages persisted, got %d", len(messages))
	}
	if messages[0].Sender != model.SenderUser || messages[0].Text != "I'm okay" {
		t.Fatalf("unexpected user message: %+v", messages[0])
	}
	if messages[1].Sender != model.SenderAI || messages[1].Text != reasoner.reply {
		t.Fatalf("unexpected ai message: %+v", messages[1])
	}

	if len(sink.statuses) != 2 || sink.statuses[0] != "transcribing" || sink.statuses[1] != "thinking" {
		t.Fatalf("unexpected status events: %v", sink.statuses)
	}
	if len(sink.transcripts) != 1 || sink.transcripts[0] != "I'm okay" {
		t.Fatalf("unexpected interim transcript events: %v", sink.transcripts)
	}
}

func TestInitRequiresIdentity(t *testing.T) {
	o := newOrchestrator(conversation.NewMemoryStore(), turn.Deps{})

	err := o.Init(context.Background(), "  ")
	if !errors.Is(err, turn.ErrMissingIdentity) {
		t.Fatalf("expected ErrMissingIdentity, got %v", err)
	}
	if o.Phase() != turn.PhaseErrored {
		t.Fatalf("expected errored phase, got %s", o.Phase())
	}
}

func TestAbortBeforeAudioLeavesNoSideEffects(t *testing.T) {
	store := conversation.NewMemoryStore()
	o := newOrchestrator(store, turn.Deps{})

	ctx := context.Background()
	if err := o.Init(ctx, "u1"); err != nil {
		t.Fatalf("Init err: %v", err)
	}
	if err := o.AddFrame([]byte("frame")); err != nil {
		t.Fatalf("AddFrame err: %v", err)
	}

	if err := o.Abort(); !errors.Is(err, turn.ErrIncompleteTurn) {
		t.Fatalf("expected ErrIncompleteTurn, got %v", err)
	}
	if o.Phase() != turn.PhaseErrored {
		t.Fatalf("expected errored phase, got %s", o.Phase())
	}

	messages, err := store.Recent(ctx, "u1", 10)
	if err != nil {
		t.Fatalf("Recent err: %v", err)
	}
	if len(messages) != 0 {
		t.Fatalf("aborted turn must not persist messages, got %d", len(messages))
	}

	if _, err := o.Finish(ctx, []byte("late"), nil); !errors.Is(err, turn.ErrInvalidPhase) {
		t.Fatalf("expected ErrInvalidPhase after abort, got %v", err)
	}
}

func TestEmptyTranscriptStillCompletesAndPersists(t *testing.T) {
	store := conversation.NewMemoryStore()
	reasoner := &fakeReasoner{reply: "I'm here whenever you want to talk."}

	o := newOrchestrator(store, turn.Deps{
		Decoder:     &fakeDecoder{err: errors.New("ffmpeg exploded")},
		Transcriber: &fakeTranscriber{},
		AudioScorer: &queueScorer{},
		Reasoner:    reasoner,
		Synthesizer: &fakeSynthesizer{audio: []byte("a")},
	})

	ctx := context.Background()
	if err := o.Init(ctx, "u1"); err != nil {
		t.Fatalf("Init err: %v", err)
	}

	result, err := o.Finish(ctx, []byte("noise"), nil)
	if err != nil {
		t.Fatalf("Finish err: %v", err)
	}
	if result.Text != reasoner.reply {
		t.Fatalf("expected reply despite silent input, got %q", result.Text)
	}

	messages, err := store.Recent(ctx, "u1", 10)
	if err != nil {
		t.Fatalf("Recent err: %v", err)
	}
	if len(messages) != 2 {
		t.Fatalf("expected both messages persisted, got %d", len(messages))
	}
	if messages[0].Text != "" {
		t.Fatalf("user message must carry the raw empty transcript, got %q", messages[0].Text)
	}
}

func TestExtractorFailuresDegradeToNeutralSignals(t *testing.T) {
	store := conversation.NewMemoryStore()
	reasoner := &fakeReasoner{reply: "ok"}

	o := newOrchestrator(store, turn.Deps{
		Transcriber: &fakeTranscriber{err: errors.New("stt down")},
		AudioScorer: &queueScorer{errs: []error{errors.New("audio scorer down")}},
		VideoScorer: &queueScorer{errs: []error{errors.New("video scorer down"), nil}, results: []map[string]float64{nil, {}}},
		Reasoner:    reasoner,
	})

	ctx := context.Background()
	if err := o.Init(ctx, "u1"); err != nil {
		t.Fatalf("Init err: %v", err)
	}
	if err := o.AddFrame([]byte("f1")); err != nil {
		t.Fatalf("AddFrame err: %v", err)
	}
	if err := o.AddFrame([]byte("f2")); err != nil {
		t.Fatalf("AddFrame err: %v", err)
	}

	result, err := o.Finish(ctx, []byte("webm"), nil)
	if err != nil {
		t.Fatalf("Finish err: %v", err)
	}
	if result.Text != "ok" {
		t.Fatalf("expected reply, got %q", result.Text)
	}
	if len(result.Audio) != 0 {
		t.Fatalf("no synthesizer means empty audio, got %d bytes", len(result.Audio))
	}

	prompt := reasoner.prompts[0]
	if !strings.Contains(prompt, "Video emotion detected: none") {
		t.Fatalf("failed scorers must yield no video emotion: %s", prompt)
	}
	if !strings.Contains(prompt, "Audio emotion detected: none") {
		t.Fatalf("failed scorers must yield no audio emotion: %s", prompt)
	}
}

func TestPersistenceFailureDoesNotBlockReply(t *testing.T) {
	store := &failingStore{}
	o := turn.New(turn.Deps{
		Store:       store,
		Decoder:     &fakeDecoder{pcm: []byte("pcm")},
		Transcriber: &fakeTranscriber{candidates: []string{"hello"}},
		Reasoner:    &fakeReasoner{reply: "still here"},
	})

	ctx := context.Background()
	if err := o.Init(ctx, "u1"); err != nil {
		t.Fatalf("Init err: %v", err)
	}

	result, err := o.Finish(ctx, []byte("webm"), nil)
	if err != nil {
		t.Fatalf("Finish err: %v", err)
	}
	if result.Text != "still here" {
		t.Fatalf("reply must survive persistence failure, got %q", result.Text)
	}
	if o.Phase() != turn.PhaseCompleted {
		t.Fatalf("expected completed phase, got %s", o.Phase())
	}
}

func TestNilReasonerFallsBackToApology(t *testing.T) {
	store := conversation.NewMemoryStore()
	o := newOrchestrator(store, turn.Deps{
		Transcriber: &fakeTranscriber{candidates: []string{"hi"}},
	})

	ctx := context.Background()
	if err := o.Init(ctx, "u1"); err != nil {
		t.Fatalf("Init err: %v", err)
	}

	result, err := o.Finish(ctx, []byte("webm"), nil)
	if err != nil {
		t.Fatalf("Finish err: %v", err)
	}
	if result.Text != reasoning.Fallback {
		t.Fatalf("expected fallback apology, got %q", result.Text)
	}
}

// failingStore accepts users but rejects every append.
type failingStore struct{}

func (s *failingStore) EnsureUser(context.Context, string) error {
	return nil
}

func (s *failingStore) Append(context.Context, string, model.Message) error {
	return errors.New("store unavailable")
}

func (s *failingStore) Recent(context.Context, string, int) ([]model.Message, error) {
	return nil, nil
}
