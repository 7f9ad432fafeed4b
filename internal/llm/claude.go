package llm

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"time"
)

const defaultClaudeBaseURL = "https://api.anthropic.com/v1/messages"

// ClaudeCompleter implements VisionCompleter against the Anthropic messages
// API. The analysis pipeline uses it for both text and frame-based requests.
type ClaudeCompleter struct {
	apiKey    string
	model     string
	baseURL   string
	maxTokens int
	http      *http.Client
}

// NewClaude builds a completer for the given model. baseURL overrides the
// production endpoint, which the tests use.
func NewClaude(apiKey, model, baseURL string) (*ClaudeCompleter, error) {
	if apiKey == "" {
		return nil, errors.New("anthropic api key not configured")
	}
	if baseURL == "" {
		baseURL = defaultClaudeBaseURL
	}
	return &ClaudeCompleter{
		apiKey:    apiKey,
		model:     model,
		baseURL:   baseURL,
		maxTokens: 1024,
		http:      &http.Client{Timeout: 60 * time.Second},
	}, nil
}

type claudeRequest struct {
	Model     string          `json:"model"`
	Messages  []claudeMessage `json:"messages"`
	System    string          `json:"system,omitempty"`
	MaxTokens int             `json:"max_tokens"`
}

type claudeMessage struct {
	Role    string `json:"role"`
	Content any    `json:"content"`
}

type claudeContentBlock struct {
	Type   string             `json:"type"`
	Text   string             `json:"text,omitempty"`
	Source *claudeImageSource `json:"source,omitempty"`
}

type claudeImageSource struct {
	Type      string `json:"type"`
	MediaType string `json:"media_type"`
	Data      string `json:"data"`
}

type claudeResponse struct {
	Content []struct {
		Type string `json:"type"`
		Text string `json:"text"`
	} `json:"content"`
	Error *struct {
		Type    string `json:"type"`
		Message string `json:"message"`
	} `json:"error,omitempty"`
}

// Complete sends a plain text conversation.
func (c *ClaudeCompleter) Complete(ctx context.Context, messages []Message) (string, error) {
	var system string
	msgs := make([]claudeMessage, 0, len(messages))
	for _, m := range messages {
		if m.Role == "system" {
			system += m.Content
			continue
		}
		msgs = append(msgs, claudeMessage{Role: m.Role, Content: m.Content})
	}
	return c.send(ctx, claudeRequest{
		Model:     c.model,
		Messages:  msgs,
		System:    system,
		MaxTokens: c.maxTokens,
	})
}

// CompleteVision sends a prompt plus base64 JPEG frames as one user turn.
func (c *ClaudeCompleter) CompleteVision(ctx context.Context, prompt string, frames [][]byte) (string, error) {
	blocks := []claudeContentBlock{{Type: "text", Text: prompt}}
	for _, frame := range frames {
		blocks = append(blocks, claudeContentBlock{
			Type: "image",
			Source: &claudeImageSource{
				Type:      "base64",
				MediaType: "image/jpeg",
				Data:      base64.StdEncoding.EncodeToString(frame),
			},
		})
	}
	return c.send(ctx, claudeRequest{
		Model:     c.model,
		Messages:  []claudeMessage{{Role: "user", Content: blocks}},
		MaxTokens: c.maxTokens,
	})
}

func (c *ClaudeCompleter) send(ctx context.Context, reqBody claudeRequest) (string, error) {
	jsonBody, err := json.Marshal(reqBody)
	if err != nil {
		return "", fmt.Errorf("marshal request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL, bytes.NewReader(jsonBody))
	if err != nil {
		return "", fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("x-api-key", c.apiKey)
	req.Header.Set("anthropic-version", "2023-06-01")
	req.Header.Set("content-type", "application/json")

	resp, err := c.http.Do(req)
	if err != nil {
		return "", fmt.Errorf("do request: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return "", fmt.Errorf("read response: %w", err)
	}

	var parsed claudeResponse
	if err := json.Unmarshal(body, &parsed); err != nil {
		return "", fmt.Errorf("unmarshal response: %w", err)
	}
	if parsed.Error != nil {
		return "", fmt.Errorf("api error: %s - %s", parsed.Error.Type, parsed.Error.Message)
	}
	if len(parsed.Content) == 0 {
		return "", errors.New("no content returned")
	}
	return parsed.Content[0].Text, nil
}
