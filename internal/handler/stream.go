package handler

import (
	"bufio"
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net"
	"sync"

	"github.com/google/uuid"

	"github.com/pavelanni/interviewer/internal/event"
)

// StreamServer is the raw stream transport: newline-delimited JSON over a
// plain TCP connection, one message or event per line. It speaks the same
// envelope and event contract as the websocket transport.
type StreamServer struct {
	svc *Service

	mu    sync.Mutex
	conns map[net.Conn]struct{}
}

// NewStreamServer creates the stream transport.
func NewStreamServer(svc *Service) *StreamServer {
	return &StreamServer{svc: svc, conns: make(map[net.Conn]struct{})}
}

// Serve accepts connections on ln until the context is canceled or the
// listener fails. It blocks; run it in its own goroutine.
func (s *StreamServer) Serve(ctx context.Context, ln net.Listener) error {
	go func() {
		<-ctx.Done()
		ln.Close()
		s.closeAll()
	}()

	for {
		conn, err := ln.Accept()
		if err != nil {
			if ctx.Err() != nil {
				return nil
			}
			if errors.Is(err, net.ErrClosed) {
				return nil
			}
			return err
		}
		s.track(conn)
		go s.serveConn(ctx, conn)
	}
}

func (s *StreamServer) track(conn net.Conn) {
	s.mu.Lock()
	s.conns[conn] = struct{}{}
	s.mu.Unlock()
}

func (s *StreamServer) untrack(conn net.Conn) {
	s.mu.Lock()
	delete(s.conns, conn)
	s.mu.Unlock()
}

func (s *StreamServer) closeAll() {
	s.mu.Lock()
	defer s.mu.Unlock()
	for conn := range s.conns {
		conn.Close()
	}
}

// streamSink writes one JSON event per line. The encoder is not safe for
// concurrent use, so writes are mutex-guarded.
type streamSink struct {
	mu  sync.Mutex
	enc *json.Encoder
}

func (s *streamSink) Send(ev event.Event) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.enc.Encode(ev)
}

func (s *StreamServer) serveConn(ctx context.Context, conn net.Conn) {
	defer s.untrack(conn)
	defer conn.Close()

	connectionID := uuid.NewString()
	sink := &streamSink{enc: json.NewEncoder(conn)}

	slog.Info("stream connected", "connection_id", connectionID, "remote", conn.RemoteAddr())
	if err := sink.Send(event.Connected(connectionID)); err != nil {
		return
	}

	sessionID := ""

	scanner := bufio.NewScanner(conn)
	scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)
	for scanner.Scan() {
		line := scanner.Bytes()
		if len(line) == 0 {
			continue
		}

		var msg clientMessage
		if err := json.Unmarshal(line, &msg); err != nil {
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
			newID, result, err := s.svc.StartSession(id, msg.CandidateName)
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
			result, err := s.svc.Submit(ctx, sessionID, msg.Message)
			if err != nil {
				_ = sink.Send(event.Errorf(sessionID, turnErrorMessage(err)))
				continue
			}
			if err := s.svc.Dispatcher().Dispatch(ctx, sink, sessionID, result); err != nil {
				slog.Warn("stream dispatch", "session_id", sessionID, "error", err)
				return
			}

		default:
			_ = sink.Send(event.Errorf(sessionID, "unknown message type: "+msg.Type))
		}
	}
	if err := scanner.Err(); err != nil && ctx.Err() == nil {
		slog.Warn("stream read", "connection_id", connectionID, "error", err)
	}
	slog.Info("stream closed", "connection_id", connectionID)
}
