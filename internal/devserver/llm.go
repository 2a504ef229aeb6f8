package devserver

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/openai/openai-go"
	"github.com/openai/openai-go/option"

	"parlor.chat/widget/core/config"
	"parlor.chat/widget/internal/model"
)

const responderPrompt = "You are the support agent behind an embeddable chat widget. " +
	"Answer briefly and conversationally."

type openaiResponder struct {
	client openai.Client
	model  string
}

// NewOpenAIResponder backs the dev agent with a real LLM. Used when an
// OpenAI API key is configured; the echo responder covers everything else.
func NewOpenAIResponder(cfg config.OpenAIConfig) Responder {
	opts := []option.RequestOption{
		option.WithAPIKey(cfg.APIKey),
	}
	if cfg.BaseURL != "" {
		opts = append(opts, option.WithBaseURL(cfg.BaseURL))
	}

	chatModel := cfg.Model
	if chatModel == "" {
		chatModel = "gpt-4o-mini"
	}

	return &openaiResponder{
		client: openai.NewClient(opts...),
		model:  chatModel,
	}
}

func (r *openaiResponder) Reply(ctx context.Context, history []model.Message, userText string) (string, error) {
	messages := []openai.ChatCompletionMessageParamUnion{
		openai.SystemMessage(responderPrompt),
	}
	for _, msg := range history {
		if msg.Text == userText && msg.Source == model.SourceCustomer {
			continue
		}
		switch msg.Source {
		case model.SourceCustomer:
			messages = append(messages, openai.UserMessage(msg.Text))
		default:
			messages = append(messages, openai.AssistantMessage(msg.Text))
		}
	}
	messages = append(messages, openai.UserMessage(userText))

	params := openai.ChatCompletionNewParams{
		Model:               r.model,
		Messages:            messages,
		MaxCompletionTokens: openai.Int(1024),
	}

	start := time.Now()
	resp, err := r.client.Chat.Completions.New(ctx, params)
	if err != nil {
		return "", fmt.Errorf("openai chat: %w", err)
	}
	if len(resp.Choices) == 0 {
		return "", fmt.Errorf("no choices in response")
	}

	slog.DebugContext(ctx, "agent chat completed",
		"model", r.model,
		"duration_ms", time.Since(start).Milliseconds(),
		"prompt_tokens", resp.Usage.PromptTokens,
		"completion_tokens", resp.Usage.CompletionTokens)

	return resp.Choices[0].Message.Content, nil
}
