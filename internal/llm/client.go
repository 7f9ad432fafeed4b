// Package llm wraps the external generation collaborators behind small
// interfaces so the synthesis and analysis pipelines can be tested without
// network access. Only the request/response contract lives here; prompt
// content belongs to the callers.
package llm

import "context"

// Message is one chat turn sent to a completer.
type Message struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

// Completer produces one completion for a conversation. Implementations
// must honor ctx cancellation and deadlines.
type Completer interface {
	Complete(ctx context.Context, messages []Message) (string, error)
}

// VisionCompleter additionally accepts JPEG frames alongside the prompt,
// used by the recording-analysis path.
type VisionCompleter interface {
	Completer
	CompleteVision(ctx context.Context, prompt string, frames [][]byte) (string, error)
}

// SystemMessage builds a system-role message.
func SystemMessage(content string) Message {
	return Message{Role: "system", Content: content}
}

// UserMessage builds a user-role message.
func UserMessage(content string) Message {
	return Message{Role: "user", Content: content}
}
