package interview

import (
	"context"
	"fmt"
	"log/slog"
	"math"
	"strings"

	"github.com/pavelanni/interviewer/internal/model"
)

// recommendationThreshold splits the rule-based recommendations: below it
// the candidate is pointed at fundamentals, at or above it at advanced
// practice.
const recommendationThreshold = 6.0

// buildSummary computes the closing summary. The numeric metrics and the
// strengths/weaknesses/recommendations lists are derived locally so they
// survive an unreachable evaluator; only the narrative text is drafted by
// the model, with a metrics-only fallback.
func (m *Machine) buildSummary(ctx context.Context) *model.InterviewSummary {
	s := Summarize(m.state.PerformanceLog)

	promptContext := fmt.Sprintf(
		"Generate a technical interview summary.\n"+
			"Questions answered: %d\n"+
			"Follow-ups answered: %d\n"+
			"Average score (main questions): %.1f/10\n"+
			"Recent conversation:\n%s\n"+
			"Provide an encouraging summary with an overall performance assessment, "+
			"specific strengths, areas for improvement, and actionable recommendations.",
		s.MainCount, s.FollowUpCount, s.AverageScore, m.recentHistory())

	text, err := m.eval.Converse(ctx, promptContext, "Please provide a comprehensive interview summary.")
	if err != nil {
		slog.Warn("summary narrative unavailable, using metrics only",
			"session_id", m.state.SessionID, "error", err)
		text = fmt.Sprintf(
			"Interview complete! You answered %d main questions and %d follow-ups with an average score of %.1f/10.",
			s.MainCount, s.FollowUpCount, s.AverageScore)
	}
	s.Text = text
	return s
}

// Summarize derives the numeric summary from a performance log. Follow-up
// entries are counted but excluded from the average.
func Summarize(log []model.PerformanceEntry) *model.InterviewSummary {
	s := &model.InterviewSummary{}

	var mainTotal int
	for _, entry := range log {
		if entry.IsFollowUp {
			s.FollowUpCount++
			continue
		}
		s.MainCount++
		mainTotal += entry.Assessment.Score

		if entry.Assessment.Score >= 7 {
			s.Strengths = append(s.Strengths, "Good understanding of "+entry.PromptText)
		} else if len(entry.Assessment.MissingConcepts) > 0 {
			s.Weaknesses = append(s.Weaknesses, "Needs improvement in "+strings.Join(entry.Assessment.MissingConcepts, ", "))
		}
	}

	if s.MainCount > 0 {
		avg := float64(mainTotal) / float64(s.MainCount)
		s.AverageScore = math.Round(avg*10) / 10
	}

	if s.AverageScore < recommendationThreshold {
		s.Recommendations = append(s.Recommendations,
			"Review fundamental concepts",
			"Practice more coding problems")
	} else {
		s.Recommendations = append(s.Recommendations,
			"Continue practicing advanced problems")
	}

	s.Strengths = truncate(s.Strengths, 3)
	s.Weaknesses = truncate(s.Weaknesses, 3)
	s.Recommendations = truncate(s.Recommendations, 3)
	return s
}

func truncate(items []string, n int) []string {
	if len(items) > n {
		return items[:n]
	}
	return items
}
