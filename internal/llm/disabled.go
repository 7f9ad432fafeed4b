package llm

import (
	"context"
	"errors"
)

// disabled fails every request with a fixed reason, used when no API key is
// configured so the owning pipeline degrades instead of crashing.
type disabled struct {
	reason string
}

// Disabled returns a Completer that always fails with reason.
func Disabled(reason string) Completer {
	return disabled{reason: reason}
}

// DisabledVision returns a VisionCompleter that always fails with reason.
func DisabledVision(reason string) VisionCompleter {
	return disabled{reason: reason}
}

func (d disabled) Complete(context.Context, []Message) (string, error) {
	return "", errors.New(d.reason)
}

func (d disabled) CompleteVision(context.Context, string, [][]byte) (string, error) {
	return "", errors.New(d.reason)
}
