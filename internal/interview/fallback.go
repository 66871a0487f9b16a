package interview

import (
	"fmt"
	"math/rand/v2"
	"strings"

	"github.com/pavelanni/interviewer/internal/model"
)

// fallbackAck replaces a conversational reply when the evaluator is
// unreachable.
const fallbackAck = "Thank you for your response! Let's continue with our interview."

// fallbackAssessment produces a deterministic assessment from the answer
// text alone: the score grows with answer length, clamped to [2,8]. The
// same text always yields the same score.
func fallbackAssessment(answerText string, expectedConcepts []string) model.Assessment {
	wordCount := len(strings.Fields(answerText))
	score := wordCount / 10
	if score < 2 {
		score = 2
	}
	if score > 8 {
		score = 8
	}
	return model.Assessment{
		Score:           score,
		NormalizedScore: float64(score) / 10.0,
		MissingConcepts: expectedConcepts,
		Quality:         model.QualityFair,
		Depth:           model.DepthShallow,
		Rationale:       fmt.Sprintf("Analysis temporarily unavailable. Based on answer length (%d words), more detail is needed.", wordCount),
	}
}

// fallbackFeedback picks a canned feedback line by score band.
func fallbackFeedback(score int) string {
	switch {
	case score >= 7:
		return fmt.Sprintf("Great answer! You demonstrated good understanding. Score: %d/10. Try to include more specific concepts.", score)
	case score >= 5:
		return fmt.Sprintf("Good response with room for improvement. Score: %d/10. Focus on addressing all key concepts.", score)
	default:
		return fmt.Sprintf("Your answer needs improvement. Score: %d/10. Please provide more detailed explanations and cover the key concepts.", score)
	}
}

// fallbackFollowUp picks from the question's fixed follow-up prompts when
// the evaluator cannot draft one. Prompts already used this round are
// avoided when possible.
func fallbackFollowUp(q model.Question, used int) string {
	if len(q.FollowUpPrompts) == 0 {
		return "Can you elaborate on your answer?"
	}
	remaining := len(q.FollowUpPrompts) - used
	if remaining <= 0 {
		remaining = len(q.FollowUpPrompts)
		used = 0
	}
	return q.FollowUpPrompts[used+rand.IntN(remaining)]
}
