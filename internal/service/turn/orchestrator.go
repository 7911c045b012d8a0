package turn

import (
	"context"
	"strings"
	"sync"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/polaris-wellness/polaris/backend/internal/analysis/emotion"
	model "github.com/polaris-wellness/polaris/backend/internal/model/conversation"
	"github.com/polaris-wellness/polaris/backend/internal/service/conversation"
	"github.com/polaris-wellness/polaris/backend/internal/service/reasoning"
)

// Deps wires the orchestrator's collaborators. Store and Decoder are
// required; every other collaborator may be nil, in which case its signal
// degrades to the empty value.
type Deps struct {
	Store       conversation.Store
	Decoder     Decoder
	Transcriber Transcriber
	AudioScorer Scorer
	VideoScorer Scorer
	Reasoner    Reasoner
	Synthesizer Synthesizer

	HistoryLimit   int
	ExtractTimeout time.Duration
}

// Orchestrator owns the state machine for exactly one connection's turn.
// It is not safe for concurrent use: the connection read loop is the only
// caller, and concurrent work inside a turn happens on private snapshots.
type Orchestrator struct {
	deps   Deps
	phase  Phase
	userID string
	frames [][]byte
	log    *logrus.Entry
}

// New builds an orchestrator in the AwaitingInit phase.
func New(deps Deps) *Orchestrator {
	if deps.HistoryLimit <= 0 {
		deps.HistoryLimit = 8
	}
	if deps.ExtractTimeout <= 0 {
		deps.ExtractTimeout = 30 * time.Second
	}
	return &Orchestrator{
		deps:  deps,
		phase: PhaseAwaitingInit,
		log:   logrus.WithField("component", "turn"),
	}
}

// Phase exposes the current lifecycle state.
func (o *Orchestrator) Phase() Phase {
	return o.phase
}

// Init consumes the single init event. An empty user id is fatal to the
// turn; a valid one upserts the user record and opens input collection.
func (o *Orchestrator) Init(ctx context.Context, userID string) error {
	if o.phase != PhaseAwaitingInit {
		return ErrInvalidPhase
	}
	if strings.TrimSpace(userID) == "" {
		o.phase = PhaseErrored
		return ErrMissingIdentity
	}

	if err := o.deps.Store.EnsureUser(ctx, userID); err != nil {
		o.phase = PhaseErrored
		return err
	}

	o.userID = userID
	o.phase = PhaseCollectingInput
	o.log = o.log.WithField("user", userID)
	return nil
}

// AddFrame appends one video frame to the turn.
func (o *Orchestrator) AddFrame(frame []byte) error {
	if o.phase != PhaseCollectingInput {
		return ErrInvalidPhase
	}
	o.frames = append(o.frames, frame)
	return nil
}

// Abort moves the turn to Errored when the connection ends before the
// audio event. Nothing has been persisted at that point.
func (o *Orchestrator) Abort() error {
	if o.phase == PhaseCompleted || o.phase == PhaseErrored {
		return nil
	}
	o.phase = PhaseErrored
	return ErrIncompleteTurn
}

// Finish consumes the terminal audio event and runs the rest of the
// pipeline: extraction fan-out, aggregation, reasoning, persistence,
// synthesis. Every failure past this point degrades rather than aborts,
// so a caller that got past input collection always receives a reply.
func (o *Orchestrator) Finish(ctx context.Context, audio []byte, sink Sink) (*Result, error) {
	if o.phase != PhaseCollectingInput {
		return nil, ErrInvalidPhase
	}
	if sink == nil {
		sink = NopSink{}
	}

	o.phase = PhaseTranscribing
	sink.Status("transcribing")

	pcm := o.decode(ctx, audio)

	o.phase = PhaseAnalyzing
	ext := o.extract(ctx, pcm)

	transcript := ""
	if len(ext.transcripts) > 0 {
		transcript = ext.transcripts[0]
	}
	sink.InterimTranscript(transcript)
	sink.Status("thinking")

	videoAgg := emotion.AggregateVideo(ext.videoObservations)
	audioDominant := emotion.SelectDominant(ext.audioScores)
	o.log.WithFields(logrus.Fields{
		"video_emotion": videoAgg.Dominant,
		"audio_emotion": emotion.Normalize(audioDominant),
	}).Info("[turn] signals aggregated")

	o.phase = PhaseReasoning
	reply := o.reason(ctx, transcript, audioDominant, videoAgg.Dominant)

	o.phase = PhasePersisting
	o.persist(ctx, transcript, reply)

	o.phase = PhaseSynthesizing
	replyAudio := o.synthesize(ctx, reply)

	o.phase = PhaseCompleted
	return &Result{Text: reply, Audio: replyAudio}, nil
}

func (o *Orchestrator) decode(ctx context.Context, audio []byte) []byte {
	cctx, cancel := context.WithTimeout(ctx, o.deps.ExtractTimeout)
	defer cancel()

	pcm, err := o.deps.Decoder.DecodePCM(cctx, audio)
	if err != nil {
		o.log.Warnf("[turn] audio decode failed, continuing with empty waveform: %v", err)
		return nil
	}
	return pcm
}

// extraction holds the settled results of the concurrent analysis tasks.
type extraction struct {
	transcripts       []string
	audioScores       map[string]float64
	videoObservations []emotion.Observation
}

// extract fans out transcription, audio-emotion scoring, and one
// video-emotion task per frame, then blocks at a single join point until
// every task has settled. Tasks write to private slots, are never
// canceled on a sibling's failure, and individually degrade to empty
// results.
func (o *Orchestrator) extract(ctx context.Context, pcm []byte) extraction {
	ext := extraction{videoObservations: make([]emotion.Observation, len(o.frames))}

	var wg sync.WaitGroup

	wg.Add(1)
	go func() {
		defer wg.Done()
		cctx, cancel := context.WithTimeout(ctx, o.deps.ExtractTimeout)
		defer cancel()
		if o.deps.Transcriber == nil {
			return
		}
		transcripts, err := o.deps.Transcriber.Transcribe(cctx, pcm)
		if err != nil {
			o.log.Warnf("[turn] transcription failed: %v", err)
			return
		}
		ext.transcripts = transcripts
	}()

	wg.Add(1)
	go func() {
		defer wg.Done()
		cctx, cancel := context.WithTimeout(ctx, o.deps.ExtractTimeout)
		defer cancel()
		if o.deps.AudioScorer == nil {
			return
		}
		scores, err := o.deps.AudioScorer.Score(cctx, pcm)
		if err != nil {
			o.log.Warnf("[turn] audio emotion scoring failed: %v", err)
			return
		}
		ext.audioScores = scores
	}()

	for i, frame := range o.frames {
		wg.Add(1)
		go func(slot int, frame []byte) {
			defer wg.Done()
			cctx, cancel := context.WithTimeout(ctx, o.deps.ExtractTimeout)
			defer cancel()
			if o.deps.VideoScorer == nil {
				return
			}
			scores, err := o.deps.VideoScorer.Score(cctx, frame)
			if err != nil {
				o.log.Warnf("[turn] video emotion scoring failed for frame %d: %v", slot, err)
				return
			}
			ext.videoObservations[slot] = scores
		}(i, frame)
	}

	wg.Wait()
	return ext
}

func (o *Orchestrator) reason(ctx context.Context, transcript, audioEmotion, videoEmotion string) string {
	if o.deps.Reasoner == nil {
		return reasoning.Fallback
	}

	history, err := o.deps.Store.Recent(ctx, o.userID, o.deps.HistoryLimit)
	if err != nil {
		o.log.Warnf("[turn] history load failed, prompting without context: %v", err)
		history = nil
	}

	prompt := reasoning.BuildPrompt(reasoning.PromptContext{
		Transcript:   transcript,
		AudioEmotion: audioEmotion,
		VideoEmotion: videoEmotion,
		History:      history,
	})
	return o.deps.Reasoner.Generate(ctx, prompt)
}

// persist appends the user message (raw transcript, empty string allowed)
// and then the AI reply. Failures are logged, never rolled back: the
// reply still reaches the caller.
func (o *Orchestrator) persist(ctx context.Context, transcript, reply string) {
	userMsg := model.Message{Sender: model.SenderUser, Text: transcript}
	if err := o.deps.Store.Append(ctx, o.userID, userMsg); err != nil {
		o.log.Errorf("[turn] persisting user message failed: %v", err)
	}

	aiMsg := model.Message{Sender: model.SenderAI, Text: reply}
	if err := o.deps.Store.Append(ctx, o.userID, aiMsg); err != nil {
		o.log.Errorf("[turn] persisting ai message failed: %v", err)
	}
}

func (o *Orchestrator) synthesize(ctx context.Context, reply string) []byte {
	if o.deps.Synthesizer == nil || strings.TrimSpace(reply) == "" {
		return nil
	}

	cctx, cancel := context.WithTimeout(ctx, o.deps.ExtractTimeout)
	defer cancel()

	audio, err := o.deps.Synthesizer.Synthesize(cctx, reply)
	if err != nil {
		o.log.Warnf("[turn] synthesis failed, replying without audio: %v", err)
		return nil
	}
	return audio
}
