// Package llm implements the evaluator collaborator over an
// OpenAI-compatible chat completion API.
package llm

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"

	"github.com/pavelanni/interviewer/internal/llm/prompts"
	"github.com/pavelanni/interviewer/internal/model"

	openai "github.com/sashabaranov/go-openai"
)

// ErrEvaluationUnavailable marks an evaluator call that failed in transport
// or returned an unparsable structure. Callers fall back rather than abort.
var ErrEvaluationUnavailable = errors.New("evaluation unavailable")

// Client wraps an OpenAI-compatible API client.
type Client struct {
	api   *openai.Client
	model string
}

// New creates a new LLM client.
func New(baseURL, apiKey, modelName string) *Client {
	config := openai.DefaultConfig(apiKey)
	if baseURL != "" {
		config.BaseURL = baseURL
	}
	return &Client{
		api:   openai.NewClientWithConfig(config),
		model: modelName,
	}
}

// Ping verifies the endpoint is reachable.
func (c *Client) Ping(ctx context.Context) error {
	if _, err := c.api.ListModels(ctx); err != nil {
		return fmt.Errorf("LLM endpoint check: %w", err)
	}
	return nil
}

// analysisResponse mirrors the JSON schema requested by prompts.Analysis.
type analysisResponse struct {
	Score           int      `json:"score"`
	ConceptsCovered []string `json:"concepts_covered"`
	MissingConcepts []string `json:"missing_concepts"`
	Quality         string   `json:"quality"`
	Depth           string   `json:"depth"`
	Rationale       string   `json:"rationale"`
}

// Analyze scores an answer against the question's expected concepts.
func (c *Client) Analyze(ctx context.Context, promptText, answerText string, expectedConcepts []string) (model.Assessment, error) {
	raw, err := c.complete(ctx, prompts.Analysis(promptText, answerText, expectedConcepts), 0.3)
	if err != nil {
		return model.Assessment{}, err
	}

	var resp analysisResponse
	if err := json.Unmarshal([]byte(raw), &resp); err != nil {
		return model.Assessment{}, fmt.Errorf("%w: parse analysis: %v (raw: %s)", ErrEvaluationUnavailable, err, raw)
	}

	score := resp.Score
	if score < 0 {
		score = 0
	}
	if score > 10 {
		score = 10
	}
	return model.Assessment{
		Score:           score,
		NormalizedScore: float64(score) / 10.0,
		ConceptsCovered: resp.ConceptsCovered,
		MissingConcepts: resp.MissingConcepts,
		Quality:         model.Quality(resp.Quality),
		Depth:           model.Depth(resp.Depth),
		Rationale:       resp.Rationale,
	}, nil
}

// DraftFeedback produces candidate-facing feedback text for an assessment.
func (c *Client) DraftFeedback(ctx context.Context, promptText, answerText string, a model.Assessment) (string, error) {
	raw, err := c.complete(ctx, prompts.Feedback(promptText, answerText, a), 0.4)
	if err != nil {
		return "", err
	}
	var resp struct {
		Feedback string `json:"feedback"`
	}
	if err := json.Unmarshal([]byte(raw), &resp); err != nil || resp.Feedback == "" {
		return "", fmt.Errorf("%w: parse feedback (raw: %s)", ErrEvaluationUnavailable, raw)
	}
	return resp.Feedback, nil
}

// DecideFollowUp asks the model whether to probe deeper on the same topic.
func (c *Client) DecideFollowUp(ctx context.Context, a model.Assessment) (bool, error) {
	raw, err := c.complete(ctx, prompts.Decision(a), 0.1)
	if err != nil {
		return false, err
	}
	var resp struct {
		FollowUp *bool `json:"follow_up"`
	}
	if err := json.Unmarshal([]byte(raw), &resp); err != nil || resp.FollowUp == nil {
		return false, fmt.Errorf("%w: parse decision (raw: %s)", ErrEvaluationUnavailable, raw)
	}
	return *resp.FollowUp, nil
}

// DraftFollowUp generates a follow-up question targeting the weak areas of
// the assessed answer.
func (c *Client) DraftFollowUp(ctx context.Context, promptText, answerText string, expectedConcepts []string, a model.Assessment) (string, error) {
	raw, err := c.complete(ctx, prompts.FollowUp(promptText, answerText, expectedConcepts, a), 0.4)
	if err != nil {
		return "", err
	}
	var resp struct {
		FollowUp string `json:"follow_up"`
	}
	if err := json.Unmarshal([]byte(raw), &resp); err != nil || resp.FollowUp == "" {
		return "", fmt.Errorf("%w: parse follow-up (raw: %s)", ErrEvaluationUnavailable, raw)
	}
	return resp.FollowUp, nil
}

// Converse produces a free-form conversational reply, used for the greeting
// and the closing summary narrative.
func (c *Client) Converse(ctx context.Context, promptContext, userInput string) (string, error) {
	raw, err := c.complete(ctx, prompts.Converse(promptContext, userInput), 0.4)
	if err != nil {
		return "", err
	}
	var resp struct {
		Response string `json:"response"`
	}
	if err := json.Unmarshal([]byte(raw), &resp); err != nil || resp.Response == "" {
		return "", fmt.Errorf("%w: parse reply (raw: %s)", ErrEvaluationUnavailable, raw)
	}
	return resp.Response, nil
}

func (c *Client) complete(ctx context.Context, systemPrompt string, temperature float32) (string, error) {
	resp, err := c.api.CreateChatCompletion(ctx, openai.ChatCompletionRequest{
		Model: c.model,
		Messages: []openai.ChatCompletionMessage{
			{Role: openai.ChatMessageRoleSystem, Content: systemPrompt},
		},
		ResponseFormat: &openai.ChatCompletionResponseFormat{
			Type: openai.ChatCompletionResponseFormatTypeJSONObject,
		},
		Temperature: temperature,
	})
	if err != nil {
		return "", fmt.Errorf("%w: %v", ErrEvaluationUnavailable, err)
	}
	if len(resp.Choices) == 0 {
		return "", fmt.Errorf("%w: LLM returned no choices", ErrEvaluationUnavailable)
	}
	raw := resp.Choices[0].Message.Content
	slog.Debug("LLM response", "raw", raw)
	return raw, nil
}
