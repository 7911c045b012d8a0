package turn

import (
	"context"
	"encoding/base64"
	"net/http"
	"sync"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/gorilla/websocket"
	"github.com/sirupsen/logrus"

	"github.com/polaris-wellness/polaris/backend/internal/service/turn"
)

// Handler serves the single-turn voice endpoint. Each websocket
// connection carries exactly one turn: an init event, optional video
// frames, one audio payload, then one final response.
type Handler struct {
	deps     turn.Deps
	upgrader websocket.Upgrader
}

// New creates the turn handler around a set of orchestrator collaborators.
func New(deps turn.Deps) *Handler {
	return &Handler{
		deps: deps,
		upgrader: websocket.Upgrader{
			CheckOrigin: func(r *http.Request) bool {
				return true
			},
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
		},
	}
}

// RegisterRoutes mounts the websocket endpoint.
func (h *Handler) RegisterRoutes(r chi.Router) {
	r.Get("/process", h.handleProcess)
}

type inboundMessage struct {
	Type   string `json:"type"`
	UserID string `json:"user_id,omitempty"`
	Data   string `json:"data,omitempty"`
}

// session wraps a connection with a write lock so the ping loop and the
// turn pipeline never interleave frames on the wire.
type session struct {
	conn *websocket.Conn
	mu   sync.Mutex
	log  *logrus.Entry
}

func (s *session) writeJSON(v any) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.conn.WriteJSON(v); err != nil {
		s.log.Warnf("[turn] write failed: %v", err)
	}
}

func (s *session) ping() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.conn.WriteMessage(websocket.PingMessage, nil)
}

// Status and InterimTranscript implement turn.Sink.
func (s *session) Status(message string) {
	s.writeJSON(map[string]string{"type": "status", "message": message})
}

func (s *session) InterimTranscript(text string) {
	s.writeJSON(map[string]string{"type": "interim_transcript", "text": text})
}

func (s *session) sendError(message string) {
	s.writeJSON(map[string]string{"type": "error", "message": message})
}

func (h *Handler) handleProcess(w http.ResponseWriter, r *http.Request) {
	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		logrus.Errorf("[turn] upgrade failed: %v", err)
		return
	}
	defer conn.Close()

	log := logrus.WithField("remote", conn.RemoteAddr().String())
	log.Info("[turn] client connected for a single turn")

	ctx, cancel := context.WithCancel(r.Context())
	defer cancel()

	conn.SetReadDeadline(time.Now().Add(60 * time.Second))
	conn.SetPongHandler(func(string) error {
		conn.SetReadDeadline(time.Now().Add(60 * time.Second))
		return nil
	})

	sess := &session{conn: conn, log: log}
	go h.pingLoop(ctx, sess)

	orch := turn.New(h.deps)

	audio, ok := h.collectInput(ctx, sess, orch)
	if !ok {
		return
	}

	result, err := orch.Finish(ctx, audio, sess)
	if err != nil {
		log.Errorf("[turn] turn failed: %v", err)
		sess.sendError("turn failed")
		return
	}

	sess.writeJSON(map[string]string{
		"type": "final_response",
		"text": result.Text,
		"data": base64.StdEncoding.EncodeToString(result.Audio),
	})
	log.Info("[turn] response sent, turn complete")
}

// collectInput runs the read loop until the terminal audio event. A
// read error before then means the client dropped mid-turn; the
// orchestrator is aborted and nothing has been persisted.
func (h *Handler) collectInput(ctx context.Context, sess *session, orch *turn.Orchestrator) ([]byte, bool) {
	for {
		var msg inboundMessage
		if err := sess.conn.ReadJSON(&msg); err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure, websocket.CloseAbnormalClosure) {
				sess.log.Warnf("[turn] read error: %v", err)
			} else {
				sess.log.Info("[turn] client disconnected prematurely")
			}
			orch.Abort()
			return nil, false
		}
		sess.conn.SetReadDeadline(time.Now().Add(60 * time.Second))

		switch msg.Type {
		case "init":
			if err := orch.Init(ctx, msg.UserID); err != nil {
				sess.log.Errorf("[turn] init failed: %v", err)
				sess.sendError("user id is required")
				return nil, false
			}
		case "video":
			frame, err := base64.StdEncoding.DecodeString(msg.Data)
			if err != nil {
				sess.log.Warnf("[turn] dropping undecodable video frame: %v", err)
				continue
			}
			if err := orch.AddFrame(frame); err != nil {
				sess.sendError("video frame before init")
				return nil, false
			}
		case "audio_file":
			audio, err := base64.StdEncoding.DecodeString(msg.Data)
			if err != nil {
				sess.log.Errorf("[turn] undecodable audio payload: %v", err)
				sess.sendError("invalid audio payload")
				orch.Abort()
				return nil, false
			}
			return audio, true
		default:
			sess.log.Warnf("[turn] ignoring message type %q", msg.Type)
		}
	}
}

func (h *Handler) pingLoop(ctx context.Context, sess *session) {
	ticker := time.NewTicker(30 * time.Second)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if err := sess.ping(); err != nil {
				return
			}
		}
	}
}
