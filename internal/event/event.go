// Package event defines the transport-agnostic event contract used to
// report interview progress, and the dispatcher that maps turn results
// onto it.
package event

import (
	"time"

	"github.com/pavelanni/interviewer/internal/model"
)

// Type names one kind of progress event on the wire.
type Type string

const (
	TypeConnected        Type = "connected"
	TypeBotTyping        Type = "bot_typing"
	TypePong             Type = "pong"
	TypeSessionStarted   Type = "session_started"
	TypeNextQuestion     Type = "next_question"
	TypeAnalysisReady    Type = "analysis_ready"
	TypeFeedbackReady    Type = "feedback_ready"
	TypeFollowUpQuestion Type = "followup_question"
	TypeInterviewSummary Type = "interview_summary"
	TypeError            Type = "error"
)

// Event is one wire-format progress notification. Transports serialize it
// as-is; they never add session semantics of their own.
type Event struct {
	Type      Type   `json:"type"`
	SessionID string `json:"sessionId"`
	Data      any    `json:"data"`
}

// QuestionPayload is the question shape carried by next_question and
// followup_question events.
type QuestionPayload struct {
	ID               int64            `json:"id"`
	Prompt           string           `json:"prompt"`
	Difficulty       model.Difficulty `json:"difficulty,omitempty"`
	ExpectedConcepts []string         `json:"expectedConcepts,omitempty"`
}

// SummaryMetrics is the numeric portion of an interview_summary event.
type SummaryMetrics struct {
	MainCount     int     `json:"mainCount"`
	FollowUpCount int     `json:"followUpCount"`
	AverageScore  float64 `json:"averageScore"`
}

// Connected is the connection-established greeting event.
func Connected(sessionID string) Event {
	return Event{Type: TypeConnected, SessionID: sessionID, Data: map[string]string{
		"message": "Connected to the interviewer",
	}}
}

// Typing signals that a turn has been accepted and is being evaluated.
func Typing(sessionID string) Event {
	return Event{Type: TypeBotTyping, SessionID: sessionID, Data: map[string]any{}}
}

// Pong answers a keepalive ping.
func Pong(sessionID string) Event {
	return Event{Type: TypePong, SessionID: sessionID, Data: map[string]string{
		"timestamp": time.Now().Format(time.RFC3339),
	}}
}

// Errorf builds an error event for the given session.
func Errorf(sessionID, message string) Event {
	return Event{Type: TypeError, SessionID: sessionID, Data: map[string]string{
		"message": message,
	}}
}

// SessionStarted announces a freshly created session with its welcome text
// and first question.
func SessionStarted(sessionID, welcome string, first *model.Question) Event {
	data := map[string]any{
		"session_id": sessionID,
		"welcome":    welcome,
	}
	if first != nil {
		data["first_question"] = questionPayload(first, true)
	}
	return Event{Type: TypeSessionStarted, SessionID: sessionID, Data: data}
}

func questionPayload(q *model.Question, full bool) QuestionPayload {
	p := QuestionPayload{ID: q.ID, Prompt: q.Prompt}
	if full {
		p.Difficulty = q.Difficulty
		p.ExpectedConcepts = q.ExpectedConcepts
	}
	return p
}
