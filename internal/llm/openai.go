package llm

import (
	"context"
	"errors"
	"fmt"

	"github.com/openai/openai-go/v3"
	"github.com/openai/openai-go/v3/option"
)

// OpenAICompleter implements Completer against the OpenAI chat completions
// API. Models are tried in order until one succeeds, mirroring how flaky
// model availability is handled upstream.
type OpenAICompleter struct {
	client      openai.Client
	models      []string
	maxTokens   int64
	temperature float64
}

// NewOpenAI builds a completer. At least one model is required.
func NewOpenAI(apiKey string, models []string, maxTokens int) (*OpenAICompleter, error) {
	if apiKey == "" {
		return nil, errors.New("openai api key not configured")
	}
	if len(models) == 0 {
		return nil, errors.New("no openai models configured")
	}
	return &OpenAICompleter{
		client:      openai.NewClient(option.WithAPIKey(apiKey)),
		models:      models,
		maxTokens:   int64(maxTokens),
		temperature: 0.3,
	}, nil
}

// Complete sends the conversation to each configured model in turn and
// returns the first successful completion.
func (c *OpenAICompleter) Complete(ctx context.Context, messages []Message) (string, error) {
	params := openai.ChatCompletionNewParams{
		Messages: toOpenAIMessages(messages),
	}
	if c.maxTokens > 0 {
		params.MaxTokens = openai.Int(c.maxTokens)
	}
	params.Temperature = openai.Float(c.temperature)

	var lastErr error
	for _, model := range c.models {
		params.Model = openai.ChatModel(model)

		resp, err := c.client.Chat.Completions.New(ctx, params)
		if err != nil {
			lastErr = fmt.Errorf("model %s: %w", model, err)
			if ctx.Err() != nil {
				break
			}
			continue
		}
		if len(resp.Choices) == 0 {
			lastErr = fmt.Errorf("model %s: no choices returned", model)
			continue
		}
		return resp.Choices[0].Message.Content, nil
	}
	return "", lastErr
}

func toOpenAIMessages(messages []Message) []openai.ChatCompletionMessageParamUnion {
	out := make([]openai.ChatCompletionMessageParamUnion, 0, len(messages))
	for _, m := range messages {
		switch m.Role {
		case "system":
			out = append(out, openai.SystemMessage(m.Content))
		case "assistant":
			out = append(out, openai.AssistantMessage(m.Content))
		default:
			out = append(out, openai.UserMessage(m.Content))
		}
	}
	return out
}
