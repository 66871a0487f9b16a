package event

import (
	"context"
	"time"

	"github.com/pavelanni/interviewer/internal/model"
)

// Sink receives dispatched events in order. Implementations belong to the
// transports: a websocket writer, a stream encoder, or a response buffer.
type Sink interface {
	Send(ev Event) error
}

// SinkFunc adapts a function to the Sink interface.
type SinkFunc func(ev Event) error

func (f SinkFunc) Send(ev Event) error { return f(ev) }

// Dispatcher converts turn results into ordered event sequences. The
// mapping is deterministic and stateless; the configured post-feedback
// delay is a presentation affordance applied only in Dispatch, so tests and
// automated clients set it to zero.
type Dispatcher struct {
	postFeedbackDelay time.Duration
}

// NewDispatcher creates a dispatcher with the given post-feedback delay.
func NewDispatcher(postFeedbackDelay time.Duration) *Dispatcher {
	return &Dispatcher{postFeedbackDelay: postFeedbackDelay}
}

// Events maps a turn result to its ordered event sequence. Pure function:
// no delays, no side effects.
func (d *Dispatcher) Events(sessionID string, r *model.TurnResult) []Event {
	var events []Event

	if r.Assessment != nil {
		events = append(events, Event{
			Type:      TypeAnalysisReady,
			SessionID: sessionID,
			Data:      map[string]any{"assessment": r.Assessment},
		})
	}
	if r.Feedback != "" {
		events = append(events, Event{
			Type:      TypeFeedbackReady,
			SessionID: sessionID,
			Data:      map[string]any{"feedback": r.Feedback},
		})
	}

	switch r.Kind {
	case model.TurnFollowUp:
		events = append(events, Event{
			Type:      TypeFollowUpQuestion,
			SessionID: sessionID,
			Data: map[string]any{
				"question": QuestionPayload{ID: r.QuestionID, Prompt: r.FollowUpQuestion},
			},
		})
	case model.TurnGreeting, model.TurnNextQuestion:
		if r.NextQuestion != nil {
			events = append(events, Event{
				Type:      TypeNextQuestion,
				SessionID: sessionID,
				Data: map[string]any{
					"question": questionPayload(r.NextQuestion, true),
				},
			})
		}
	case model.TurnSummary:
		if r.Summary != nil {
			events = append(events, Event{
				Type:      TypeInterviewSummary,
				SessionID: sessionID,
				Data: map[string]any{
					"summaryText": r.Summary.Text,
					"metrics": SummaryMetrics{
						MainCount:     r.Summary.MainCount,
						FollowUpCount: r.Summary.FollowUpCount,
						AverageScore:  r.Summary.AverageScore,
					},
				},
			})
		}
	}

	return events
}

// Dispatch sends the turn's events to the sink in order, pausing for the
// post-feedback delay before a next_question or interview_summary event
// that follows feedback, so a human reader can absorb the feedback first.
func (d *Dispatcher) Dispatch(ctx context.Context, sink Sink, sessionID string, r *model.TurnResult) error {
	sawFeedback := false
	for _, ev := range d.Events(sessionID, r) {
		if sawFeedback && (ev.Type == TypeNextQuestion || ev.Type == TypeInterviewSummary) {
			if err := d.pause(ctx); err != nil {
				return err
			}
		}
		if ev.Type == TypeFeedbackReady {
			sawFeedback = true
		}
		if err := sink.Send(ev); err != nil {
			return err
		}
	}
	return nil
}

func (d *Dispatcher) pause(ctx context.Context) error {
	if d.postFeedbackDelay <= 0 {
		return nil
	}
	t := time.NewTimer(d.postFeedbackDelay)
	defer t.Stop()
	select {
	case <-t.C:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
