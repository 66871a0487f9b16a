package handler

import (
	"bufio"
	"context"
	"encoding/json"
	"net"
	"testing"
	"time"

	"github.com/pavelanni/interviewer/internal/bank"
	"github.com/pavelanni/interviewer/internal/event"
	"github.com/pavelanni/interviewer/internal/model"
	"github.com/pavelanni/interviewer/internal/session"
)

func newTestService(t *testing.T, eval *scriptedEvaluator) *Service {
	t.Helper()
	questions := []model.Question{
		{ID: 1, Prompt: "first question", ExpectedConcepts: []string{"a"}},
		{ID: 2, Prompt: "second question", ExpectedConcepts: []string{"b"}},
	}
	sessions := session.NewManager(&memStore{snaps: make(map[string]*model.SessionState)})
	return NewService(sessions, bank.New(questions), eval, event.NewDispatcher(0), 2)
}

func dialStream(t *testing.T, svc *Service) (net.Conn, *bufio.Scanner) {
	t.Helper()
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatalf("listen: %v", err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	t.Cleanup(cancel)
	go func() {
		_ = NewStreamServer(svc).Serve(ctx, ln)
	}()

	conn, err := net.DialTimeout("tcp", ln.Addr().String(), time.Second)
	if err != nil {
		t.Fatalf("dial: %v", err)
	}
	t.Cleanup(func() { conn.Close() })

	scanner := bufio.NewScanner(conn)
	scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)
	return conn, scanner
}

func readEvent(t *testing.T, scanner *bufio.Scanner) event.Event {
	t.Helper()
	if !scanner.Scan() {
		t.Fatalf("stream closed: %v", scanner.Err())
	}
	var ev event.Event
	if err := json.Unmarshal(scanner.Bytes(), &ev); err != nil {
		t.Fatalf("decode event: %v (line %q)", err, scanner.Text())
	}
	return ev
}

func sendLine(t *testing.T, conn net.Conn, msg clientMessage) {
	t.Helper()
	data, err := json.Marshal(msg)
	if err != nil {
		t.Fatalf("marshal message: %v", err)
	}
	if _, err := conn.Write(append(data, '\n')); err != nil {
		t.Fatalf("write: %v", err)
	}
}

func TestStreamInterviewFlow(t *testing.T) {
	svc := newTestService(t, &scriptedEvaluator{score: 8})
	conn, scanner := dialStream(t, svc)

	if ev := readEvent(t, scanner); ev.Type != event.TypeConnected {
		t.Fatalf("first event = %q, want connected", ev.Type)
	}

	sendLine(t, conn, clientMessage{Type: msgStartSession, CandidateName: "Sam"})
	if ev := readEvent(t, scanner); ev.Type != event.TypeSessionStarted {
		t.Fatalf("event = %q, want session_started", ev.Type)
	}

	sendLine(t, conn, clientMessage{Type: msgUserMessage, Message: "my answer"})
	want := []event.Type{
		event.TypeBotTyping,
		event.TypeAnalysisReady,
		event.TypeFeedbackReady,
		event.TypeNextQuestion,
	}
	for _, wt := range want {
		if ev := readEvent(t, scanner); ev.Type != wt {
			t.Fatalf("event = %q, want %q", ev.Type, wt)
		}
	}
}

func TestStreamPingAndErrors(t *testing.T) {
	svc := newTestService(t, &scriptedEvaluator{score: 8})
	conn, scanner := dialStream(t, svc)

	readEvent(t, scanner) // connected

	sendLine(t, conn, clientMessage{Type: msgPing})
	if ev := readEvent(t, scanner); ev.Type != event.TypePong {
		t.Fatalf("event = %q, want pong", ev.Type)
	}

	// Messages before start_session are rejected.
	sendLine(t, conn, clientMessage{Type: msgUserMessage, Message: "hello"})
	if ev := readEvent(t, scanner); ev.Type != event.TypeError {
		t.Fatalf("event = %q, want error", ev.Type)
	}

	sendLine(t, conn, clientMessage{Type: "bogus"})
	if ev := readEvent(t, scanner); ev.Type != event.TypeError {
		t.Fatalf("event = %q, want error for unknown type", ev.Type)
	}

	// Malformed JSON does not kill the connection.
	if _, err := conn.Write([]byte("{nope\n")); err != nil {
		t.Fatalf("write: %v", err)
	}
	if ev := readEvent(t, scanner); ev.Type != event.TypeError {
		t.Fatalf("event = %q, want error for invalid json", ev.Type)
	}
	sendLine(t, conn, clientMessage{Type: msgPing})
	if ev := readEvent(t, scanner); ev.Type != event.TypePong {
		t.Fatalf("event = %q, want pong after recovery", ev.Type)
	}
}
