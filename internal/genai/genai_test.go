package genai

import (
	"context"
	"errors"
	"strings"
	"testing"

	"github.com/openai/openai-go"
	"github.com/openai/openai-go/option"
)

// mockChatService implements chatService for testing.
type mockChatService struct {
	resp   *openai.ChatCompletion
	err    error
	lastIn openai.ChatCompletionNewParams
}

func (m *mockChatService) New(ctx context.Context, body openai.ChatCompletionNewParams, opts ...option.RequestOption) (*openai.ChatCompletion, error) {
	m.lastIn = body
	return m.resp, m.err
}

func completionWith(content string) *openai.ChatCompletion {
	return &openai.ChatCompletion{
		Choices: []openai.ChatCompletionChoice{
			{Message: openai.ChatCompletionMessage{Content: content}},
		},
	}
}

func TestGeneratePrompt_Success(t *testing.T) {
	mock := &mockChatService{resp: completionWith("Hello World")}
	client := &Client{chat: mock, model: DefaultModel}
	out, err := client.GeneratePrompt(context.Background(), "system prompt", "user prompt")
	if err != nil {
		t.Fatalf("expected no error, got %v", err)
	}
	if out != "Hello World" {
		t.Errorf("expected 'Hello World', got '%s'", out)
	}
	if len(mock.lastIn.Messages) != 2 {
		t.Errorf("expected system and user messages, got %d", len(mock.lastIn.Messages))
	}
}

func TestGeneratePrompt_NoSystemPrompt(t *testing.T) {
	mock := &mockChatService{resp: completionWith("ok")}
	client := &Client{chat: mock, model: DefaultModel}
	if _, err := client.GeneratePrompt(context.Background(), "", "user prompt"); err != nil {
		t.Fatalf("expected no error, got %v", err)
	}
	if len(mock.lastIn.Messages) != 1 {
		t.Errorf("expected only the user message, got %d", len(mock.lastIn.Messages))
	}
}

func TestGeneratePrompt_ServiceError(t *testing.T) {
	client := &Client{chat: &mockChatService{err: errors.New("service failure")}, model: DefaultModel}
	_, err := client.GeneratePrompt(context.Background(), "sys", "usr")
	if err == nil || !strings.Contains(err.Error(), "service failure") {
		t.Errorf("expected service failure error, got %v", err)
	}
}

func TestGeneratePrompt_NoChoices(t *testing.T) {
	client := &Client{chat: &mockChatService{resp: &openai.ChatCompletion{}}, model: DefaultModel}
	_, err := client.GeneratePrompt(context.Background(), "sys", "usr")
	if err == nil || !strings.Contains(err.Error(), "no choices") {
		t.Errorf("expected no choices returned error, got %v", err)
	}
}

func TestScoreRubric_Success(t *testing.T) {
	client := &Client{chat: &mockChatService{resp: completionWith(`{"score": 4.5, "reasoning": "solid answer"}`)}, model: DefaultModel}
	score, reasoning, err := client.ScoreRubric(context.Background(), "rubric text", "transcript text")
	if err != nil {
		t.Fatalf("expected no error, got %v", err)
	}
	if score != 4.5 {
		t.Errorf("expected score 4.5, got %v", score)
	}
	if reasoning != "solid answer" {
		t.Errorf("expected reasoning, got '%s'", reasoning)
	}
}

func TestScoreRubric_CodeFencedJSON(t *testing.T) {
	content := "```json\n{\"score\": 3}\n```"
	client := &Client{chat: &mockChatService{resp: completionWith(content)}, model: DefaultModel}
	score, _, err := client.ScoreRubric(context.Background(), "rubric", "transcript")
	if err != nil {
		t.Fatalf("expected no error, got %v", err)
	}
	if score != 3 {
		t.Errorf("expected score 3, got %v", score)
	}
}

func TestScoreRubric_InvalidJSON(t *testing.T) {
	client := &Client{chat: &mockChatService{resp: completionWith("definitely not json")}, model: DefaultModel}
	_, _, err := client.ScoreRubric(context.Background(), "rubric", "transcript")
	if err == nil || !strings.Contains(err.Error(), "failed to parse score response") {
		t.Errorf("expected parse error, got %v", err)
	}
}

func TestNewClient_NoKey(t *testing.T) {
	t.Setenv("OPENAI_API_KEY", "")
	_, err := NewClient()
	if err == nil {
		t.Error("expected error when API key not provided, got nil")
	}
}

func TestNewClient_WithKey(t *testing.T) {
	cli, err := NewClient(WithAPIKey("test-key"), WithModel("gpt-4o"))
	if err != nil {
		t.Fatalf("expected no error with API key, got %v", err)
	}
	if cli == nil {
		t.Error("expected client instance, got nil")
	}
}
