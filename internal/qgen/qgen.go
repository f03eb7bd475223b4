// Package qgen generates follow-up verification questions from
// submission content through an OpenAI-compatible API.
package qgen

import (
	"context"
	"fmt"
	"strings"

	openai "github.com/sashabaranov/go-openai"
)

// FallbackQuestion is served when no LLM endpoint is configured or the
// generation call fails. Verification still works with it, just without
// content-specific probing.
const FallbackQuestion = "In one or two sentences, explain the main point of your submission in your own words."

// DefaultSystemPrompt is used until a teacher stores a custom one.
const DefaultSystemPrompt = "You are helping a teacher verify that a student personally wrote " +
	"the submission below. Ask exactly one short, specific question about the submission's " +
	"content that the author could answer easily from memory but a copy-paster could not. " +
	"Reply with the question only."

// maxContentChars caps how much submission text goes into the prompt.
const maxContentChars = 6000

// Client wraps an OpenAI-compatible API client.
type Client struct {
	api   *openai.Client
	model string
}

// New creates a question-generation client.
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
		return fmt.Errorf("LLM endpoint unreachable: %w", err)
	}
	return nil
}

// GenerateQuestion asks the model for one follow-up question about the
// submission content. systemPrompt may be empty, in which case the
// default is used.
func (c *Client) GenerateQuestion(ctx context.Context, systemPrompt, content string) (string, error) {
	if systemPrompt == "" {
		systemPrompt = DefaultSystemPrompt
	}

	resp, err := c.api.CreateChatCompletion(ctx, openai.ChatCompletionRequest{
		Model: c.model,
		Messages: []openai.ChatCompletionMessage{
			{Role: openai.ChatMessageRoleSystem, Content: systemPrompt},
			{Role: openai.ChatMessageRoleUser, Content: buildUserPrompt(content)},
		},
		Temperature: 0.7,
	})
	if err != nil {
		return "", fmt.Errorf("LLM API call: %w", err)
	}
	if len(resp.Choices) == 0 {
		return "", fmt.Errorf("LLM returned no choices")
	}

	question := strings.TrimSpace(resp.Choices[0].Message.Content)
	if question == "" {
		return "", fmt.Errorf("LLM returned an empty question")
	}
	return question, nil
}

func buildUserPrompt(content string) string {
	content = truncate(content, maxContentChars)
	var sb strings.Builder
	sb.WriteString("STUDENT SUBMISSION:\n")
	sb.WriteString(content)
	sb.WriteString("\n\nAsk your verification question now.")
	return sb.String()
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n] + "\n[...truncated]"
}
