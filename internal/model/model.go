package model

import (
	"slices"
	"time"
)

// Stage represents where a session is in the interview flow.
type Stage string

const (
	// StageGreeting is the initial stage before the first candidate message.
	StageGreeting Stage = "greeting"
	// StageQuestioning means the candidate is answering a main question.
	StageQuestioning Stage = "questioning"
	// StageFollowingUp means the candidate is answering a follow-up probe.
	StageFollowingUp Stage = "following_up"
	// StageCompleted is terminal; further input starts a new session.
	StageCompleted Stage = "completed"
)

// SessionStatus represents the manager-side status of a session.
type SessionStatus string

const (
	StatusActive  SessionStatus = "active"
	StatusExpired SessionStatus = "expired"
	StatusDeleted SessionStatus = "deleted"
)

// Difficulty represents question difficulty level.
type Difficulty string

const (
	DifficultyEasy   Difficulty = "easy"
	DifficultyMedium Difficulty = "medium"
	DifficultyHard   Difficulty = "hard"
)

// Quality is the evaluator's qualitative label for an answer.
type Quality string

const (
	QualityPoor      Quality = "poor"
	QualityFair      Quality = "fair"
	QualityGood      Quality = "good"
	QualityExcellent Quality = "excellent"
)

// Depth is the evaluator's judgment of how deep an answer goes.
type Depth string

const (
	DepthShallow  Depth = "shallow"
	DepthAdequate Depth = "adequate"
	DepthDeep     Depth = "deep"
)

// Role represents a conversation turn role.
type Role string

const (
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
)

// Question is one entry of the question bank. Loaded once at startup and
// never mutated.
type Question struct {
	ID               int64      `json:"id"`
	Prompt           string     `json:"prompt"`
	ExpectedConcepts []string   `json:"expected_concepts"`
	Difficulty       Difficulty `json:"difficulty"`
	FollowUpPrompts  []string   `json:"follow_up_prompts"`
}

// Assessment is the evaluator's structured verdict on a single answer.
// Immutable once produced.
type Assessment struct {
	Score           int      `json:"score"`
	NormalizedScore float64  `json:"normalized_score"`
	ConceptsCovered []string `json:"concepts_covered"`
	MissingConcepts []string `json:"missing_concepts"`
	Quality         Quality  `json:"quality"`
	Depth           Depth    `json:"depth"`
	Rationale       string   `json:"rationale"`
}

// PerformanceEntry records one evaluated turn. Entries are append-only and
// never edited once added to a session's log.
type PerformanceEntry struct {
	QuestionID   int64      `json:"question_id"`
	PromptText   string     `json:"prompt_text"`
	AnswerText   string     `json:"answer_text"`
	Assessment   Assessment `json:"assessment"`
	FeedbackText string     `json:"feedback_text"`
	IsFollowUp   bool       `json:"is_follow_up"`
	Timestamp    time.Time  `json:"timestamp"`
}

// ConversationTurn is one message of the session transcript, used to give
// the evaluator recent context for conversational replies.
type ConversationTurn struct {
	Role    Role   `json:"role"`
	Content string `json:"content"`
}

// SessionState is the aggregate root owned by one interview state machine.
//
// Invariants: FollowUpCount stays within the configured follow-up cap and
// resets to 0 whenever QuestionIndex advances; Stage is StageCompleted
// exactly when QuestionIndex has run past the question bank; PerformanceLog
// entries are immutable once appended, one per answered turn, in submission
// order.
type SessionState struct {
	SessionID         string `json:"session_id"`
	Stage             Stage  `json:"stage"`
	QuestionIndex     int    `json:"question_index"`
	QuestionsAsked    int    `json:"questions_asked"`
	FollowUpCount     int    `json:"follow_up_count"`
	CurrentQuestionID int64  `json:"current_question_id"`

	// CurrentFollowUpPrompt is the exact follow-up text the candidate is
	// answering while Stage is StageFollowingUp.
	CurrentFollowUpPrompt string             `json:"current_follow_up_prompt,omitempty"`
	PerformanceLog        []PerformanceEntry `json:"performance_log"`
	ConversationLog       []ConversationTurn `json:"conversation_log"`
}

// Clone returns a copy of the state that shares no mutable memory with the
// original, so readers can hold it while the session keeps advancing.
func (s *SessionState) Clone() *SessionState {
	c := *s
	c.PerformanceLog = slices.Clone(s.PerformanceLog)
	for i := range c.PerformanceLog {
		a := &c.PerformanceLog[i].Assessment
		a.ConceptsCovered = slices.Clone(a.ConceptsCovered)
		a.MissingConcepts = slices.Clone(a.MissingConcepts)
	}
	c.ConversationLog = slices.Clone(s.ConversationLog)
	return &c
}

// NewSessionState returns a fresh session at the greeting stage.
func NewSessionState(id string) *SessionState {
	return &SessionState{
		SessionID: id,
		Stage:     StageGreeting,
	}
}

// SessionMetadata is manager-owned bookkeeping, kept separate from
// SessionState. It drives expiry and statistics only and never influences
// interview logic.
type SessionMetadata struct {
	CreatedAt      time.Time     `json:"created_at"`
	LastActivityAt time.Time     `json:"last_activity_at"`
	Status         SessionStatus `json:"status"`
	CandidateName  string        `json:"candidate_name,omitempty"`
}

// TurnKind tags which continuation a turn produced.
type TurnKind string

const (
	// TurnGreeting is the welcome reply plus the first question.
	TurnGreeting TurnKind = "greeting"
	// TurnFollowUp means the interview probes deeper on the same question.
	TurnFollowUp TurnKind = "follow_up"
	// TurnNextQuestion means the interview advanced to the next main question.
	TurnNextQuestion TurnKind = "next_question"
	// TurnSummary means the interview completed and produced a summary.
	TurnSummary TurnKind = "summary"
)

// TurnResult is the structured outcome of one processed candidate message.
// Assessment and Feedback are set for every evaluated turn; exactly one of
// FollowUpQuestion, NextQuestion, or Summary is set according to Kind.
type TurnResult struct {
	Kind             TurnKind          `json:"kind"`
	Reply            string            `json:"reply,omitempty"`
	Assessment       *Assessment       `json:"assessment,omitempty"`
	Feedback         string            `json:"feedback,omitempty"`
	FollowUpQuestion string            `json:"follow_up_question,omitempty"`
	FollowUpNumber   int               `json:"follow_up_number,omitempty"`
	QuestionID       int64             `json:"question_id,omitempty"`
	NextQuestion     *Question         `json:"next_question,omitempty"`
	QuestionNumber   int               `json:"question_number,omitempty"`
	Summary          *InterviewSummary `json:"summary,omitempty"`
}

// InterviewSummary aggregates a completed session's performance. The
// numeric metrics are computed locally so a summary is always available;
// only the narrative text comes from the evaluator.
type InterviewSummary struct {
	Text            string   `json:"text"`
	MainCount       int      `json:"main_count"`
	FollowUpCount   int      `json:"follow_up_count"`
	AverageScore    float64  `json:"average_score"`
	Strengths       []string `json:"strengths"`
	Weaknesses      []string `json:"weaknesses"`
	Recommendations []string `json:"recommendations"`
}

// Config holds runtime interview parameters set via CLI flags.
type Config struct {
	MaxFollowUps        int           // cap on follow-up probes per question
	QuestionsPerSession int           // 0 means the whole bank
	Difficulty          string        // empty means all difficulties
	Shuffle             bool          // randomize question order at startup
	SessionTimeout      time.Duration // idle time before a session is swept
	PostFeedbackDelay   time.Duration // pause before the next prompt; 0 for tests
}
