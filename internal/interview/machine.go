// Package interview implements the per-session interview state machine:
// stage transitions, follow-up bookkeeping, question advancement, and
// summary computation.
package interview

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/pavelanni/interviewer/internal/bank"
	"github.com/pavelanni/interviewer/internal/model"
)

// Evaluator is the external collaborator that scores answers and drafts
// natural-language text. Every method may fail with an
// evaluation-unavailable error; the state machine recovers with
// deterministic fallbacks so a turn never stalls.
type Evaluator interface {
	Analyze(ctx context.Context, promptText, answerText string, expectedConcepts []string) (model.Assessment, error)
	DraftFeedback(ctx context.Context, promptText, answerText string, a model.Assessment) (string, error)
	DecideFollowUp(ctx context.Context, a model.Assessment) (bool, error)
	DraftFollowUp(ctx context.Context, promptText, answerText string, expectedConcepts []string, a model.Assessment) (string, error)
	Converse(ctx context.Context, promptContext, userInput string) (string, error)
}

var (
	// ErrEmptyAnswer is returned before any state mutation when the
	// submitted text is empty after trimming.
	ErrEmptyAnswer = errors.New("answer cannot be empty")
	// ErrSessionCompleted is returned when input arrives for a session
	// whose interview already finished.
	ErrSessionCompleted = errors.New("interview already completed")
)

// fallbackFollowUpThreshold is the score at or above which the local
// fallback decision probes deeper when the evaluator's own decision call
// fails. Policy parameter, not interview logic: the evaluator normally
// owns this decision.
const fallbackFollowUpThreshold = 3

// historyWindow bounds how many recent conversation turns are included in
// conversational prompts. Persistence keeps the full log.
const historyWindow = 10

// Machine drives one session's interview. It exclusively owns its
// SessionState; callers serialize access through the session registry.
type Machine struct {
	state        *model.SessionState
	bank         *bank.Bank
	eval         Evaluator
	maxFollowUps int
	now          func() time.Time
}

// New creates a state machine over the given session state.
func New(state *model.SessionState, b *bank.Bank, eval Evaluator, maxFollowUps int) *Machine {
	return &Machine{
		state:        state,
		bank:         b,
		eval:         eval,
		maxFollowUps: maxFollowUps,
		now:          time.Now,
	}
}

// State returns the session state the machine operates on.
func (m *Machine) State() *model.SessionState {
	return m.state
}

// Start moves a greeting-stage session straight into questioning with a
// canned welcome, for transports that open the interview without a first
// candidate message.
func (m *Machine) Start() (*model.TurnResult, error) {
	if m.state.Stage != model.StageGreeting {
		return nil, fmt.Errorf("session %s already started", m.state.SessionID)
	}
	q, ok := m.bank.At(0)
	if !ok {
		return nil, errors.New("question bank is empty")
	}

	welcome := welcomeText(m.bank.Len(), m.maxFollowUps)
	m.state.Stage = model.StageQuestioning
	m.state.CurrentQuestionID = q.ID
	m.state.QuestionsAsked = 1
	m.appendTurn(model.RoleAssistant, welcome)
	m.appendTurn(model.RoleAssistant, q.Prompt)

	return &model.TurnResult{
		Kind:           model.TurnGreeting,
		Reply:          welcome,
		NextQuestion:   &q,
		QuestionNumber: 1,
	}, nil
}

// Submit processes one candidate message and returns the structured turn
// result. Validation failures surface before any mutation; evaluator
// failures are absorbed via fallbacks so the turn always completes.
func (m *Machine) Submit(ctx context.Context, answerText string) (*model.TurnResult, error) {
	answerText = strings.TrimSpace(answerText)
	if answerText == "" {
		return nil, ErrEmptyAnswer
	}

	switch m.state.Stage {
	case model.StageGreeting:
		return m.greet(ctx, answerText)
	case model.StageQuestioning:
		return m.answer(ctx, answerText, false)
	case model.StageFollowingUp:
		return m.answer(ctx, answerText, true)
	case model.StageCompleted:
		return nil, ErrSessionCompleted
	default:
		return nil, fmt.Errorf("unknown stage %q", m.state.Stage)
	}
}

// greet handles the first candidate message: a conversational welcome, then
// the first question.
func (m *Machine) greet(ctx context.Context, userInput string) (*model.TurnResult, error) {
	q, ok := m.bank.At(0)
	if !ok {
		return nil, errors.New("question bank is empty")
	}

	promptContext := fmt.Sprintf(
		"This is the start of a technical interview. The candidate just greeted you. "+
			"Welcome them warmly and explain that they will be asked %d questions with "+
			"feedback and possible follow-ups. Don't ask them if they are ready, just start.",
		m.bank.Len())
	reply, err := m.eval.Converse(ctx, promptContext, userInput)
	if err != nil {
		slog.Warn("greeting reply unavailable, using fallback", "session_id", m.state.SessionID, "error", err)
		reply = fallbackAck
	}

	m.state.Stage = model.StageQuestioning
	m.state.CurrentQuestionID = q.ID
	m.state.QuestionsAsked = 1
	m.appendTurn(model.RoleUser, userInput)
	m.appendTurn(model.RoleAssistant, reply)
	m.appendTurn(model.RoleAssistant, q.Prompt)

	return &model.TurnResult{
		Kind:           model.TurnGreeting,
		Reply:          reply,
		NextQuestion:   &q,
		QuestionNumber: 1,
	}, nil
}

// answer evaluates a main-question or follow-up answer and decides the
// continuation. All evaluator calls happen before the logs are touched, so
// the turn's appends and stage transition land together.
func (m *Machine) answer(ctx context.Context, answerText string, isFollowUp bool) (*model.TurnResult, error) {
	q, ok := m.bank.At(m.state.QuestionIndex)
	if !ok {
		return nil, fmt.Errorf("question index %d out of range", m.state.QuestionIndex)
	}

	promptText := q.Prompt
	if isFollowUp {
		promptText = m.state.CurrentFollowUpPrompt
	}

	assessment, err := m.eval.Analyze(ctx, promptText, answerText, q.ExpectedConcepts)
	if err != nil {
		slog.Warn("analysis unavailable, using fallback scoring",
			"session_id", m.state.SessionID, "question_id", q.ID, "error", err)
		assessment = fallbackAssessment(answerText, q.ExpectedConcepts)
	}

	feedback, err := m.eval.DraftFeedback(ctx, promptText, answerText, assessment)
	if err != nil {
		slog.Warn("feedback unavailable, using fallback",
			"session_id", m.state.SessionID, "question_id", q.ID, "error", err)
		feedback = fallbackFeedback(assessment.Score)
	}

	probe, err := m.eval.DecideFollowUp(ctx, assessment)
	if err != nil {
		slog.Warn("follow-up decision unavailable, using score threshold",
			"session_id", m.state.SessionID, "error", err)
		probe = assessment.Score >= fallbackFollowUpThreshold
	}

	var followUpQ string
	wantFollowUp := probe && m.state.FollowUpCount < m.maxFollowUps
	if wantFollowUp {
		followUpQ, err = m.eval.DraftFollowUp(ctx, q.Prompt, answerText, q.ExpectedConcepts, assessment)
		if err != nil {
			slog.Warn("follow-up drafting unavailable, using canned prompt",
				"session_id", m.state.SessionID, "question_id", q.ID, "error", err)
			followUpQ = fallbackFollowUp(q, m.state.FollowUpCount)
		}
	}

	m.state.PerformanceLog = append(m.state.PerformanceLog, model.PerformanceEntry{
		QuestionID:   q.ID,
		PromptText:   promptText,
		AnswerText:   answerText,
		Assessment:   assessment,
		FeedbackText: feedback,
		IsFollowUp:   isFollowUp,
		Timestamp:    m.now(),
	})
	m.appendTurn(model.RoleUser, answerText)
	m.appendTurn(model.RoleAssistant, feedback)

	if wantFollowUp {
		m.state.Stage = model.StageFollowingUp
		m.state.FollowUpCount++
		m.state.CurrentFollowUpPrompt = followUpQ
		m.appendTurn(model.RoleAssistant, followUpQ)
		return &model.TurnResult{
			Kind:             model.TurnFollowUp,
			Assessment:       &assessment,
			Feedback:         feedback,
			FollowUpQuestion: followUpQ,
			FollowUpNumber:   m.state.FollowUpCount,
			QuestionID:       q.ID,
		}, nil
	}

	return m.advance(ctx, &assessment, feedback)
}

// advance moves past the current question: either the next main question or
// interview completion with a summary.
func (m *Machine) advance(ctx context.Context, assessment *model.Assessment, feedback string) (*model.TurnResult, error) {
	m.state.FollowUpCount = 0
	m.state.CurrentFollowUpPrompt = ""
	m.state.QuestionIndex++

	if m.state.QuestionIndex >= m.bank.Len() {
		m.state.Stage = model.StageCompleted
		summary := m.buildSummary(ctx)
		m.appendTurn(model.RoleAssistant, summary.Text)
		return &model.TurnResult{
			Kind:       model.TurnSummary,
			Assessment: assessment,
			Feedback:   feedback,
			Summary:    summary,
		}, nil
	}

	q, _ := m.bank.At(m.state.QuestionIndex)
	m.state.Stage = model.StageQuestioning
	m.state.CurrentQuestionID = q.ID
	m.state.QuestionsAsked++
	m.appendTurn(model.RoleAssistant, q.Prompt)

	return &model.TurnResult{
		Kind:           model.TurnNextQuestion,
		Assessment:     assessment,
		Feedback:       feedback,
		NextQuestion:   &q,
		QuestionNumber: m.state.QuestionsAsked,
	}, nil
}

func (m *Machine) appendTurn(role model.Role, content string) {
	m.state.ConversationLog = append(m.state.ConversationLog, model.ConversationTurn{
		Role:    role,
		Content: content,
	})
}

// recentHistory renders the last few conversation turns for prompting.
func (m *Machine) recentHistory() string {
	log := m.state.ConversationLog
	if len(log) > historyWindow {
		log = log[len(log)-historyWindow:]
	}
	var sb strings.Builder
	for _, turn := range log {
		sb.WriteString(string(turn.Role) + ": " + turn.Content + "\n")
	}
	return sb.String()
}

func welcomeText(questionCount, maxFollowUps int) string {
	return fmt.Sprintf(
		"Welcome to your technical interview!\n\n"+
			"Interview format:\n"+
			"- %d questions covering core concepts\n"+
			"- Each answer is analyzed for technical accuracy and depth\n"+
			"- Personalized feedback with improvement suggestions\n"+
			"- Up to %d follow-up questions per topic to deepen understanding\n"+
			"- A comprehensive performance summary at the end\n\n"+
			"Let's begin!",
		questionCount, maxFollowUps)
}
