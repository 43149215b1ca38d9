// Package genai provides GenAI-backed completion and rubric scoring using the OpenAI API.
package genai

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"strings"

	"github.com/openai/openai-go"
	"github.com/openai/openai-go/option"
)

// DefaultModel is used when no model is configured.
const DefaultModel = openai.ChatModelGPT4oMini

// chatService defines the minimal interface for chat completions, so tests
// can substitute a mock for the OpenAI client.
type chatService interface {
	New(ctx context.Context, body openai.ChatCompletionNewParams, opts ...option.RequestOption) (*openai.ChatCompletion, error)
}

// Opts holds configuration for the GenAI client.
type Opts struct {
	APIKey string
	Model  openai.ChatModel
}

// Option configures the GenAI client.
type Option func(*Opts)

// WithAPIKey sets the OpenAI API key explicitly instead of reading the environment.
func WithAPIKey(key string) Option {
	return func(o *Opts) { o.APIKey = key }
}

// WithModel overrides the default chat model.
func WithModel(model string) Option {
	return func(o *Opts) { o.Model = openai.ChatModel(model) }
}

// Client wraps the OpenAI chat completion service for prompt generation and
// rubric scoring.
type Client struct {
	chat  chatService
	model openai.ChatModel
}

// NewClient initializes a GenAI client. The API key comes from options or the
// OPENAI_API_KEY environment variable.
func NewClient(opts ...Option) (*Client, error) {
	var cfg Opts
	for _, opt := range opts {
		opt(&cfg)
	}

	apiKey := cfg.APIKey
	if apiKey == "" {
		apiKey = os.Getenv("OPENAI_API_KEY")
	}
	if apiKey == "" {
		return nil, fmt.Errorf("OPENAI_API_KEY not set")
	}

	model := cfg.Model
	if model == "" {
		model = DefaultModel
	}

	cli := openai.NewClient(option.WithAPIKey(apiKey))
	slog.Debug("GenAI client created", "model", model)
	return &Client{chat: &cli.Chat.Completions, model: model}, nil
}

// GeneratePrompt generates an assistant response for the given system and
// user prompts.
func (c *Client) GeneratePrompt(ctx context.Context, systemPrompt, userPrompt string) (string, error) {
	var messages []openai.ChatCompletionMessageParamUnion
	if systemPrompt != "" {
		messages = append(messages, openai.SystemMessage(systemPrompt))
	}
	messages = append(messages, openai.UserMessage(userPrompt))

	resp, err := c.chat.New(ctx, openai.ChatCompletionNewParams{
		Model:    c.model,
		Messages: messages,
	})
	if err != nil {
		return "", fmt.Errorf("chat completion failed: %w", err)
	}
	if resp == nil || len(resp.Choices) == 0 {
		return "", fmt.Errorf("no choices returned")
	}
	return resp.Choices[0].Message.Content, nil
}

// scoringSystemPrompt instructs the model to grade a submission and answer in
// a fixed JSON shape.
const scoringSystemPrompt = `You are a strict grader. Evaluate the submission against the rubric and assign a numeric score. Respond with a JSON object of the form {"score": <number>, "reasoning": "<one or two sentences>"} and nothing else.`

// rubricResult is the JSON shape the scoring prompt requests.
type rubricResult struct {
	Score     float64 `json:"score"`
	Reasoning string  `json:"reasoning,omitempty"`
}

// ScoreRubric grades a transcript against a free-form rubric and returns the
// numeric score plus the model's reasoning. The rubric text is opaque to
// FormFlow; only the number is interpreted upstream.
func (c *Client) ScoreRubric(ctx context.Context, rubric, transcript string) (float64, string, error) {
	user := fmt.Sprintf("Rubric:\n%s\n\nSubmission:\n%s", rubric, transcript)

	content, err := c.GeneratePrompt(ctx, scoringSystemPrompt, user)
	if err != nil {
		return 0, "", err
	}

	var result rubricResult
	if err := json.Unmarshal([]byte(stripCodeFence(content)), &result); err != nil {
		slog.Warn("ScoreRubric: response was not valid JSON", "error", err, "content", content)
		return 0, "", fmt.Errorf("failed to parse score response: %w", err)
	}

	slog.Debug("ScoreRubric: scored transcript", "score", result.Score)
	return result.Score, result.Reasoning, nil
}

// stripCodeFence removes a surrounding markdown code fence, which models
// sometimes wrap around JSON despite instructions.
func stripCodeFence(s string) string {
	s = strings.TrimSpace(s)
	if !strings.HasPrefix(s, "```") {
		return s
	}
	s = strings.TrimPrefix(s, "```json")
	s = strings.TrimPrefix(s, "```")
	s = strings.TrimSuffix(strings.TrimSpace(s), "```")
	return strings.TrimSpace(s)
}
