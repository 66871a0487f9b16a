package handler

import (
	"context"

	"github.com/pavelanni/interviewer/internal/bank"
	"github.com/pavelanni/interviewer/internal/event"
	"github.com/pavelanni/interviewer/internal/interview"
	"github.com/pavelanni/interviewer/internal/model"
	"github.com/pavelanni/interviewer/internal/session"
)

// Service runs interview turns on behalf of the transports. All three front
// ends (REST, websocket, stream) go through it, so none of them carries
// session logic of its own.
type Service struct {
	sessions     *session.Manager
	bank         *bank.Bank
	eval         interview.Evaluator
	dispatcher   *event.Dispatcher
	maxFollowUps int
}

// NewService wires the turn service.
func NewService(sessions *session.Manager, b *bank.Bank, eval interview.Evaluator, d *event.Dispatcher, maxFollowUps int) *Service {
	return &Service{
		sessions:     sessions,
		bank:         b,
		eval:         eval,
		dispatcher:   d,
		maxFollowUps: maxFollowUps,
	}
}

// Dispatcher exposes the event dispatcher for push transports.
func (s *Service) Dispatcher() *event.Dispatcher { return s.dispatcher }

// Sessions exposes the registry for read-only endpoints.
func (s *Service) Sessions() *session.Manager { return s.sessions }

// StartSession creates (or resumes) a session and returns its opening turn:
// the welcome text plus the question the candidate should answer next.
func (s *Service) StartSession(id, candidateName string) (string, *model.TurnResult, error) {
	id, _, err := s.sessions.Create(id, candidateName)
	if err != nil {
		return "", nil, err
	}

	var result *model.TurnResult
	err = s.sessions.WithSession(id, func(state *model.SessionState) error {
		m := interview.New(state, s.bank, s.eval, s.maxFollowUps)
		if state.Stage == model.StageGreeting {
			r, err := m.Start()
			if err != nil {
				return err
			}
			result = r
			return nil
		}
		// Restored snapshot: hand back the question the candidate left off on.
		result = resumeResult(state, s.bank)
		return nil
	})
	if err != nil {
		return "", nil, err
	}
	return id, result, nil
}

// Submit runs one candidate message through the session's state machine
// under the registry's exclusive lock.
func (s *Service) Submit(ctx context.Context, id, text string) (*model.TurnResult, error) {
	var result *model.TurnResult
	err := s.sessions.WithSession(id, func(state *model.SessionState) error {
		m := interview.New(state, s.bank, s.eval, s.maxFollowUps)
		r, err := m.Submit(ctx, text)
		if err != nil {
			return err
		}
		result = r
		return nil
	})
	if err != nil {
		return nil, err
	}
	return result, nil
}

// resumeResult rebuilds the pending prompt for a session restored from a
// snapshot, without touching its logs.
func resumeResult(state *model.SessionState, b *bank.Bank) *model.TurnResult {
	if state.Stage == model.StageCompleted {
		return &model.TurnResult{
			Kind:    model.TurnSummary,
			Summary: interview.Summarize(state.PerformanceLog),
		}
	}
	if state.Stage == model.StageFollowingUp && state.CurrentFollowUpPrompt != "" {
		return &model.TurnResult{
			Kind:             model.TurnFollowUp,
			FollowUpQuestion: state.CurrentFollowUpPrompt,
			FollowUpNumber:   state.FollowUpCount,
			QuestionID:       state.CurrentQuestionID,
		}
	}
	q, ok := b.At(state.QuestionIndex)
	if !ok {
		return &model.TurnResult{
			Kind:    model.TurnSummary,
			Summary: interview.Summarize(state.PerformanceLog),
		}
	}
	return &model.TurnResult{
		Kind:           model.TurnGreeting,
		Reply:          "Welcome back! Let's pick up where we left off.",
		NextQuestion:   &q,
		QuestionNumber: state.QuestionsAsked,
	}
}
