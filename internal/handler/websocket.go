package handler

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"sync"

	"github.com/coder/websocket"
	"github.com/go-chi/chi/v5"

	"github.com/pavelanni/interviewer/internal/event"
	"github.com/pavelanni/interviewer/internal/interview"
	"github.com/pavelanni/interviewer/internal/session"
)

// clientMessage is the inbound websocket/stream message envelope.
type clientMessage struct {
	Type          string `json:"type"`
	SessionID     string `json:"session_id,omitempty"`
	CandidateName string `json:"candidate_name,omitempty"`
	Message       string `json:"message,omitempty"`
}

const (
	msgPing         = "ping"
	msgStartSession = "start_session"
	msgUserMessage  = "user_message"
)

// WebSocket is the push transport. Events travel to the client as JSON text
// frames in the order the dispatcher produces them.
type WebSocket struct {
	svc *Service
}

// NewWebSocket creates the websocket transport.
func NewWebSocket(svc *Service) *WebSocket {
	return &WebSocket{svc: svc}
}

// Routes registers the websocket endpoint.
func (ws *WebSocket) Routes(r chi.Router) {
	r.Get("/ws/{connectionID}", ws.handleConnect)
}

// wsSink serializes events onto one websocket connection. Writes are
// mutex-guarded so the keepalive path and the turn path never interleave
// frames.
type wsSink struct {
	mu   sync.Mutex
	conn *websocket.Conn
	ctx  context.Context
}

func (s *wsSink) Send(ev event.Event) error {
	data, err := json.Marshal(ev)
	if err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.conn.Write(s.ctx, websocket.MessageText, data)
}

func (ws *WebSocket) handleConnect(w http.ResponseWriter, r *http.Request) {
	connectionID := chi.URLParam(r, "connectionID")

	conn, err := websocket.Accept(w, r, &websocket.AcceptOptions{
		OriginPatterns: []string{"*"},
	})
	if err != nil {
		slog.Warn("websocket accept", "connection_id", connectionID, "error", err)
		return
	}
	defer conn.Close(websocket.StatusNormalClosure, "")

	ctx := r.Context()
	sink := &wsSink{conn: conn, ctx: ctx}

	slog.Info("websocket connected", "connection_id", connectionID)
	if err := sink.Send(event.Connected(connectionID)); err != nil {
		return
	}

	// One session per connection; fixed after start_session.
	sessionID := ""

	for {
		_, data, err := conn.Read(ctx)
		if err != nil {
			status := websocket.CloseStatus(err)
			if status == websocket.StatusNormalClosure || status == websocket.StatusGoingAway || ctx.Err() != nil {
				slog.Info("websocket closed", "connection_id", connectionID)
			} else {
				slog.Warn("websocket read", "connection_id", connectionID, "error", err)
			}
			return
		}

		var msg clientMessage
		if err := json.Unmarshal(data, &msg); err != nil {
			_ = sink.Send(event.Errorf(sessionID, "invalid message"))
			continue
		}

		switch msg.Type {
		case msgPing:
			_ = sink.Send(event.Pong(sessionID))

		case msgStartSession:
			id := msg.SessionID
			if id == "" {
				id = connectionID
			}
			newID, result, err := ws.svc.StartSession(id, msg.CandidateName)
			if err != nil {
				_ = sink.Send(event.Errorf(id, err.Error()))
				continue
			}
			sessionID = newID
			_ = sink.Send(event.SessionStarted(sessionID, result.Reply, result.NextQuestion))

		case msgUserMessage:
			if sessionID == "" {
				_ = sink.Send(event.Errorf("", "no session started"))
				continue
			}
			_ = sink.Send(event.Typing(sessionID))
			result, err := ws.svc.Submit(ctx, sessionID, msg.Message)
			if err != nil {
				_ = sink.Send(event.Errorf(sessionID, turnErrorMessage(err)))
				continue
			}
			if err := ws.svc.Dispatcher().Dispatch(ctx, sink, sessionID, result); err != nil {
				slog.Warn("websocket dispatch", "session_id", sessionID, "error", err)
				return
			}

		default:
			_ = sink.Send(event.Errorf(sessionID, "unknown message type: "+msg.Type))
		}
	}
}

// turnErrorMessage keeps client-facing error text stable for the errors a
// candidate can trigger, while hiding internal detail for the rest.
func turnErrorMessage(err error) string {
	switch {
	case errors.Is(err, interview.ErrEmptyAnswer):
		return "please enter an answer"
	case errors.Is(err, interview.ErrSessionCompleted):
		return "the interview is already complete"
	case errors.Is(err, session.ErrSessionNotFound):
		return "session not found"
	default:
		return "internal error"
	}
}
