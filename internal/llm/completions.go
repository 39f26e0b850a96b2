package llm

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"github.com/openai/openai-go"
	"github.com/openai/openai-go/option"
	"github.com/tmc/langchaingo/llms"
)

// CompletionsLLM talks to any OpenAI compatible chat completions endpoint,
// which is how Groq is reached.
type CompletionsLLM struct {
	client openai.Client
	model  string
}

var _ llms.Model = (*CompletionsLLM)(nil)

func NewCompletionsLLM(model, apiKey, baseURL string) *CompletionsLLM {
	var opts []option.RequestOption
	if apiKey != "" {
		opts = append(opts, option.WithAPIKey(apiKey))
	}
	if baseURL != "" {
		opts = append(opts, option.WithBaseURL(baseURL))
	}
	return &CompletionsLLM{
		client: openai.NewClient(opts...),
		model:  model,
	}
}

func (c *CompletionsLLM) GenerateContent(ctx context.Context, messages []llms.MessageContent, options ...llms.CallOption) (*llms.ContentResponse, error) {
	opts := llms.CallOptions{Model: c.model}
	for _, opt := range options {
		opt(&opts)
	}

	params := openai.ChatCompletionNewParams{
		Messages:    make([]openai.ChatCompletionMessageParamUnion, 0, len(messages)),
		Model:       opts.Model,
		Temperature: openai.Float(opts.Temperature),
	}
	if opts.MaxTokens > 0 {
		params.MaxTokens = openai.Int(int64(opts.MaxTokens))
	}

	for _, msg := range messages {
		text := textOf(msg)
		switch msg.Role {
		case llms.ChatMessageTypeSystem:
			params.Messages = append(params.Messages, openai.SystemMessage(text))
		case llms.ChatMessageTypeAI:
			params.Messages = append(params.Messages, openai.AssistantMessage(text))
		case llms.ChatMessageTypeHuman, llms.ChatMessageTypeGeneric:
			params.Messages = append(params.Messages, openai.UserMessage(text))
		default:
			return nil, fmt.Errorf("unsupported message role %q", msg.Role)
		}
	}

	res, err := c.client.Chat.Completions.New(ctx, params)
	if err != nil {
		slog.Error("chat completions failed", "model", opts.Model, "error", err)
		return nil, fmt.Errorf("chat completion failed: %w", err)
	}
	if len(res.Choices) == 0 {
		return nil, errors.New("chat completion returned no choices")
	}

	choices := make([]*llms.ContentChoice, 0, len(res.Choices))
	for _, choice := range res.Choices {
		choices = append(choices, &llms.ContentChoice{
			Content:    choice.Message.Content,
			StopReason: string(choice.FinishReason),
			GenerationInfo: map[string]any{
				"PromptTokens":     res.Usage.PromptTokens,
				"CompletionTokens": res.Usage.CompletionTokens,
			},
		})
	}
	return &llms.ContentResponse{Choices: choices}, nil
}

func (c *CompletionsLLM) Call(ctx context.Context, prompt string, options ...llms.CallOption) (string, error) {
	return llms.GenerateFromSinglePrompt(ctx, c, prompt, options...)
}

func textOf(msg llms.MessageContent) string {
	var b strings.Builder
	for _, part := range msg.Parts {
		if text, ok := part.(llms.TextContent); ok {
			b.WriteString(text.Text)
		}
	}
	return b.String()
}
