package llm

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func claudeServer(t *testing.T, status int, body string, capture *[]byte) *httptest.Server {
	t.Helper()
	return httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "secret", r.Header.Get("x-api-key"))
		assert.Equal(t, "2023-06-01", r.Header.Get("anthropic-version"))
		if capture != nil {
			b, err := io.ReadAll(r.Body)
			require.NoError(t, err)
			*capture = b
		}
		w.WriteHeader(status)
		_, _ = w.Write([]byte(body))
	}))
}

func TestClaudeComplete(t *testing.T) {
	var captured []byte
	srv := claudeServer(t, http.StatusOK,
		`{"content": [{"type": "text", "text": "hello there"}]}`, &captured)
	defer srv.Close()

	c, err := NewClaude("secret", "claude-3-haiku", srv.URL)
	require.NoError(t, err)

	got, err := c.Complete(context.Background(), []Message{
		SystemMessage("be brief"),
		UserMessage("say hello"),
	})
	require.NoError(t, err)
	assert.Equal(t, "hello there", got)

	var req claudeRequest
	require.NoError(t, json.Unmarshal(captured, &req))
	assert.Equal(t, "claude-3-haiku", req.Model)
	assert.Equal(t, "be brief", req.System)
	require.Len(t, req.Messages, 1)
	assert.Equal(t, "user", req.Messages[0].Role)
}

func TestClaudeCompleteAPIError(t *testing.T) {
	srv := claudeServer(t, http.StatusBadRequest,
		`{"error": {"type": "invalid_request_error", "message": "bad model"}}`, nil)
	defer srv.Close()

	c, err := NewClaude("secret", "claude-3-haiku", srv.URL)
	require.NoError(t, err)

	_, err = c.Complete(context.Background(), []Message{UserMessage("hi")})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "bad model")
}

func TestClaudeCompleteEmptyContent(t *testing.T) {
	srv := claudeServer(t, http.StatusOK, `{"content": []}`, nil)
	defer srv.Close()

	c, err := NewClaude("secret", "claude-3-haiku", srv.URL)
	require.NoError(t, err)

	_, err = c.Complete(context.Background(), []Message{UserMessage("hi")})
	assert.Error(t, err)
}

func TestClaudeCompleteVisionEncodesFrames(t *testing.T) {
	var captured []byte
	srv := claudeServer(t, http.StatusOK,
		`{"content": [{"type": "text", "text": "a screenshot"}]}`, &captured)
	defer srv.Close()

	c, err := NewClaude("secret", "claude-3-haiku", srv.URL)
	require.NoError(t, err)

	frame := []byte{0xff, 0xd8, 0xff, 0xe0}
	got, err := c.CompleteVision(context.Background(), "what is shown?", [][]byte{frame})
	require.NoError(t, err)
	assert.Equal(t, "a screenshot", got)

	var req struct {
		Messages []struct {
			Role    string               `json:"role"`
			Content []claudeContentBlock `json:"content"`
		} `json:"messages"`
	}
	require.NoError(t, json.Unmarshal(captured, &req))
	require.Len(t, req.Messages, 1)
	require.Len(t, req.Messages[0].Content, 2)
	assert.Equal(t, "text", req.Messages[0].Content[0].Type)
	assert.Equal(t, "image", req.Messages[0].Content[1].Type)
	require.NotNil(t, req.Messages[0].Content[1].Source)
	assert.Equal(t, "image/jpeg", req.Messages[0].Content[1].Source.MediaType)
	assert.Equal(t, base64.StdEncoding.EncodeToString(frame), req.Messages[0].Content[1].Source.Data)
}

func TestNewClaudeRequiresKey(t *testing.T) {
	_, err := NewClaude("", "claude-3-haiku", "")
	assert.Error(t, err)
}
