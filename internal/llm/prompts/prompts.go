// Package prompts builds the system prompts sent to the evaluation model.
package prompts

import (
	"fmt"
	"strings"

	"github.com/pavelanni/interviewer/internal/model"
)

// Analysis builds the prompt asking the model to score an answer.
// The model must respond with a JSON object matching the analysis schema.
func Analysis(promptText, answerText string, expectedConcepts []string) string {
	var sb strings.Builder
	sb.WriteString("You are a senior software engineer evaluating a technical interview answer. ")
	sb.WriteString("Analyze the response for technical accuracy, depth, and coverage of key concepts.\n\n")
	sb.WriteString("QUESTION: " + promptText + "\n\n")
	sb.WriteString("EXPECTED KEY CONCEPTS: " + strings.Join(expectedConcepts, ", ") + "\n\n")
	sb.WriteString("CANDIDATE'S ANSWER: " + answerText + "\n\n")
	sb.WriteString("INSTRUCTIONS:\n")
	sb.WriteString("- Score the answer from 0 to 10: 0-3 for poor answers missing key concepts or with major inaccuracies, ")
	sb.WriteString("4-7 for fair answers that cover some concepts but lack depth or clarity, 8-10 for better answers.\n")
	sb.WriteString("- Identify which expected concepts the answer covered and which it missed.\n")
	sb.WriteString("- Quality follows the score: 0-3 poor, 4-7 fair, 8 good, 9-10 excellent.\n")
	sb.WriteString("- Depth is one of: shallow, adequate, deep.\n\n")
	sb.WriteString("Respond ONLY with a JSON object with these fields:\n")
	sb.WriteString(`{"score": <0-10>, "concepts_covered": [...], "missing_concepts": [...], "quality": "<poor|fair|good|excellent>", "depth": "<shallow|adequate|deep>", "rationale": "<detailed explanation of strengths and weaknesses>"}`)
	sb.WriteString("\n")
	return sb.String()
}

// Feedback builds the prompt asking the model to draft candidate-facing
// feedback for an assessed answer.
func Feedback(promptText, answerText string, a model.Assessment) string {
	var sb strings.Builder
	sb.WriteString("You are providing constructive feedback for a technical interview candidate. ")
	sb.WriteString("Be encouraging, specific, and technical.\n\n")
	sb.WriteString("QUESTION: " + promptText + "\n\n")
	sb.WriteString("CANDIDATE'S ANSWER: " + answerText + "\n\n")
	sb.WriteString("ANALYSIS: " + a.Rationale + "\n\n")
	sb.WriteString(fmt.Sprintf("SCORE: %d/10\n\n", a.Score))
	sb.WriteString("Provide feedback that acknowledges strengths, highlights areas for improvement ")
	sb.WriteString("with specific concepts, and offers actionable, supportive advice in a professional tone. ")
	sb.WriteString("Be concise and focus solely on the technical content. ")
	sb.WriteString("Do not use or ask for the candidate's name, and do not add salutations.\n\n")
	sb.WriteString("Respond ONLY with a JSON object:\n")
	sb.WriteString(`{"feedback": "<your feedback>"}`)
	sb.WriteString("\n")
	return sb.String()
}

// FollowUp builds the prompt asking the model for a follow-up question
// targeting the weak areas of an assessed answer.
func FollowUp(promptText, answerText string, expectedConcepts []string, a model.Assessment) string {
	var sb strings.Builder
	sb.WriteString("Generate a follow-up question for a technical interview based on the candidate's response.\n\n")
	sb.WriteString("ORIGINAL QUESTION: " + promptText + "\n\n")
	sb.WriteString("CANDIDATE'S ANSWER: " + answerText + "\n\n")
	sb.WriteString("KEY CONCEPTS: " + strings.Join(expectedConcepts, ", ") + "\n\n")
	sb.WriteString("ANALYSIS: " + a.Rationale + "\n\n")
	sb.WriteString("The follow-up must target a missing concept or weak area, stay relevant to the ")
	sb.WriteString("original question, test deeper understanding or implementation details, and match ")
	sb.WriteString("the original question's difficulty.\n\n")
	sb.WriteString("Respond ONLY with a JSON object:\n")
	sb.WriteString(`{"follow_up": "<your follow-up question>"}`)
	sb.WriteString("\n")
	return sb.String()
}

// Decision builds the prompt asking the model whether to probe deeper or
// advance, given an assessment.
func Decision(a model.Assessment) string {
	var sb strings.Builder
	sb.WriteString("You are conducting a technical interview and must decide whether to ask a ")
	sb.WriteString("follow-up question on the current topic or advance to the next one.\n\n")
	sb.WriteString(fmt.Sprintf("SCORE: %d/10\n", a.Score))
	sb.WriteString(fmt.Sprintf("QUALITY: %s\n", a.Quality))
	sb.WriteString(fmt.Sprintf("DEPTH: %s\n", a.Depth))
	if len(a.MissingConcepts) > 0 {
		sb.WriteString("MISSING CONCEPTS: " + strings.Join(a.MissingConcepts, ", ") + "\n")
	}
	sb.WriteString("\nProbe deeper when the answer shows partial understanding worth exploring; ")
	sb.WriteString("advance when it is clearly complete or clearly hopeless.\n\n")
	sb.WriteString("Respond ONLY with a JSON object:\n")
	sb.WriteString(`{"follow_up": <true|false>}`)
	sb.WriteString("\n")
	return sb.String()
}

// Converse builds the prompt for free-form conversational replies such as
// the greeting and the closing summary narrative.
func Converse(context, userInput string) string {
	var sb strings.Builder
	sb.WriteString("You are a friendly technical interviewer. Respond naturally and professionally, ")
	sb.WriteString("staying focused on the interview context.\n\n")
	sb.WriteString("CONTEXT: " + context + "\n\n")
	sb.WriteString("USER INPUT: " + userInput + "\n\n")
	sb.WriteString("Respond ONLY with a JSON object:\n")
	sb.WriteString(`{"response": "<your response>"}`)
	sb.WriteString("\n")
	return sb.String()
}
