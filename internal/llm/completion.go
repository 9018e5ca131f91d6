// Package llm wraps the completion-service collaborator (spec.md §6) used
// by the entity extractor (C4), briefing generator (C7) and period report
// builder (C8). The core never talks to a specific vendor SDK directly;
// everything downstream depends on the narrow Completer interface so it can
// be faked in tests the way the teacher fakes its repository interfaces.
package llm

import (
	"context"
	"fmt"
	"time"

	openai "github.com/sashabaranov/go-openai"
)

// Completer is the single collaborator surface spec.md §6 names:
// completion(systemPrompt, userPrompt, jsonMode, maxTokens, temperature=0.3).
type Completer interface {
	Complete(ctx context.Context, req Request) (string, error)
}

// Request bundles the parameters spec.md's completion contract takes.
type Request struct {
	SystemPrompt string
	UserPrompt   string
	JSONMode     bool
	MaxTokens    int
	Temperature  float32 // 0 means "use the default of 0.3"
}

// Client implements Completer against the OpenAI chat-completions API.
type Client struct {
	api   *openai.Client
	model string
}

// NewClient constructs a Client. apiKey empty means the completion
// capability is absent for the process; callers must check before wiring
// this in (spec.md §6 "the core tolerates their absence by skipping the
// corresponding capability").
func NewClient(apiKey, model string) *Client {
	if model == "" {
		model = "gpt-4o-mini"
	}
	return &Client{api: openai.NewClient(apiKey), model: model}
}

// Complete issues one chat-completion call, optionally constrained to
// JSON-object response mode (C4 and C7 always set JSONMode; C8's period
// summaries do not).
func (c *Client) Complete(ctx context.Context, req Request) (string, error) {
	if _, ok := ctx.Deadline(); !ok {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, 60*time.Second)
		defer cancel()
	}

	temperature := req.Temperature
	if temperature == 0 {
		temperature = 0.3
	}

	chatReq := openai.ChatCompletionRequest{
		Model: c.model,
		Messages: []openai.ChatCompletionMessage{
			{Role: openai.ChatMessageRoleSystem, Content: req.SystemPrompt},
			{Role: openai.ChatMessageRoleUser, Content: req.UserPrompt},
		},
		MaxTokens:   req.MaxTokens,
		Temperature: temperature,
	}
	if req.JSONMode {
		chatReq.ResponseFormat = &openai.ChatCompletionResponseFormat{
			Type: openai.ChatCompletionResponseFormatTypeJSONObject,
		}
	}

	resp, err := c.api.CreateChatCompletion(ctx, chatReq)
	if err != nil {
		return "", fmt.Errorf("completion request failed: %w", err)
	}
	if len(resp.Choices) == 0 {
		return "", fmt.Errorf("completion response had no choices")
	}
	return resp.Choices[0].Message.Content, nil
}
