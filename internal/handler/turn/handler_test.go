package turn_test

import (
	"context"
	"encoding/base64"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/gorilla/websocket"

	turnhandler "github.com/polaris-wellness/polaris/backend/internal/handler/turn"
	"github.com/polaris-wellness/polaris/backend/internal/service/conversation"
	"github.com/polaris-wellness/polaris/backend/internal/service/turn"
)

type fakeDecoder struct{}

func (fakeDecoder) DecodePCM(_ context.Context, data []byte) ([]byte, error) { return data, nil }

type fakeTranscriber struct{ text string }

func (f fakeTranscriber) Transcribe(context.Context, []byte) ([]string, error) {
	return []string{f.text}, nil
}

type fakeScorer struct{ scores map[string]float64 }

func (f fakeScorer) Score(context.Context, []byte) (map[string]float64, error) {
	return f.scores, nil
}

type fakeReasoner struct{ reply string }

func (f fakeReasoner) Generate(context.Context, string) string { return f.reply }

type fakeSynthesizer struct{ audio []byte }

func (f fakeSynthesizer) Synthesize(context.Context, string) ([]byte, error) {
	return f.audio, nil
}

type wireMessage struct {
	Type    string `json:"type"`
	Message string `json:"message,omitempty"`
	Text    string `json:"text,omitempty"`
	Data    string `json:"data,omitempty"`
	UserID  string `json:"user_id,omitempty"`
}

func dialTurn(t *testing.T, deps turn.Deps) (*websocket.Conn, func()) {
	t.Helper()

	r := chi.NewRouter()
	turnhandler.New(deps).RegisterRoutes(r)
	srv := httptest.NewServer(r)

	url := "ws" + strings.TrimPrefix(srv.URL, "http") + "/process"
	conn, _, err := websocket.DefaultDialer.Dial(url, nil)
	if err != nil {
		srv.Close()
		t.Fatalf("dial: %v", err)
	}

	return conn, func() {
		conn.Close()
		srv.Close()
	}
}

func TestFullTurnOverWebsocket(t *testing.T) {
	store := conversation.NewMemoryStore()
	deps := turn.Deps{
		Store:       store,
		Decoder:     fakeDecoder{},
		Transcriber: fakeTranscriber{text: "hello there"},
		AudioScorer: fakeScorer{scores: map[string]float64{"neutral": 0.9}},
		VideoScorer: fakeScorer{scores: map[string]float64{"happy": 0.8}},
		Reasoner:    fakeReasoner{reply: "hi, good to see you"},
		Synthesizer: fakeSynthesizer{audio: []byte("pcm-bytes")},
	}

	conn, cleanup := dialTurn(t, deps)
	defer cleanup()

	send := func(msg wireMessage) {
		if err := conn.WriteJSON(msg); err != nil {
			t.Fatalf("write %s: %v", msg.Type, err)
		}
	}
	send(wireMessage{Type: "init", UserID: "u1"})
	send(wireMessage{Type: "video", Data: base64.StdEncoding.EncodeToString([]byte("frame"))})
	send(wireMessage{Type: "audio_file", Data: base64.StdEncoding.EncodeToString([]byte("clip"))})

	conn.SetReadDeadline(time.Now().Add(5 * time.Second))
	var received []wireMessage
	for {
		var msg wireMessage
		if err := conn.ReadJSON(&msg); err != nil {
			t.Fatalf("read: %v (got so far: %+v)", err, received)
		}
		received = append(received, msg)
		if msg.Type == "final_response" {
			break
		}
	}

	wantTypes := []string{"status", "interim_transcript", "status", "final_response"}
	if len(received) != len(wantTypes) {
		t.Fatalf("expected %d frames, got %+v", len(wantTypes), received)
	}
	for i, want := range wantTypes {
		if received[i].Type != want {
			t.Fatalf("frame %d = %s, want %s", i, received[i].Type, want)
		}
	}
	if received[0].Message != "transcribing" || received[2].Message != "thinking" {
		t.Fatalf("unexpected status sequence: %+v", received)
	}
	if received[1].Text != "hello there" {
		t.Fatalf("interim transcript = %q", received[1].Text)
	}

	final := received[3]
	if final.Text != "hi, good to see you" {
		t.Fatalf("final text = %q", final.Text)
	}
	audio, err := base64.StdEncoding.DecodeString(final.Data)
	if err != nil || string(audio) != "pcm-bytes" {
		t.Fatalf("final audio = %q err=%v", audio, err)
	}

	msgs, err := store.Recent(context.Background(), "u1", 8)
	if err != nil {
		t.Fatalf("Recent: %v", err)
	}
	if len(msgs) != 2 || msgs[0].Text != "hello there" || msgs[1].Text != "hi, good to see you" {
		t.Fatalf("persisted conversation = %+v", msgs)
	}
}

func TestInitWithoutUserIDGetsError(t *testing.T) {
	conn, cleanup := dialTurn(t, turn.Deps{Store: conversation.NewMemoryStore()})
	defer cleanup()

	if err := conn.WriteJSON(wireMessage{Type: "init"}); err != nil {
		t.Fatalf("write init: %v", err)
	}

	conn.SetReadDeadline(time.Now().Add(5 * time.Second))
	var msg wireMessage
	if err := conn.ReadJSON(&msg); err != nil {
		t.Fatalf("read: %v", err)
	}
	if msg.Type != "error" {
		t.Fatalf("expected error frame, got %+v", msg)
	}
}

func TestDisconnectBeforeAudioPersistsNothing(t *testing.T) {
	store := conversation.NewMemoryStore()
	deps := turn.Deps{Store: store}

	conn, cleanup := dialTurn(t, deps)
	defer cleanup()

	if err := conn.WriteJSON(wireMessage{Type: "init", UserID: "u1"}); err != nil {
		t.Fatalf("write init: %v", err)
	}
	if err := conn.WriteJSON(wireMessage{Type: "video", Data: base64.StdEncoding.EncodeToString([]byte("frame"))}); err != nil {
		t.Fatalf("write video: %v", err)
	}
	conn.Close()

	// Give the server loop a moment to observe the close.
	time.Sleep(100 * time.Millisecond)

	msgs, err := store.Recent(context.Background(), "u1", 8)
	if err != nil {
		t.Fatalf("Recent: %v", err)
	}
	if len(msgs) != 0 {
		t.Fatalf("expected no persisted messages after premature disconnect, got %+v", msgs)
	}
}
