package voice

import (
	"strings"
	"sync"
)

// Accumulator joins final transcript segments into one session transcript.
// Consecutive segments from an overlapping recognizer often repeat trailing
// words at the seam; Append removes the longest such overlap before joining.
type Accumulator struct {
	mu   sync.Mutex
	text string
}

// Append merges text into the accumulated transcript and returns the portion
// actually appended after overlap removal. An empty return means the segment
// was a pure repeat.
func (a *Accumulator) Append(text string) string {
	text = strings.TrimSpace(text)
	if text == "" {
		return ""
	}

	a.mu.Lock()
	defer a.mu.Unlock()

	merged := dedupJoin(a.text, text)
	if merged == "" {
		return ""
	}
	if a.text == "" {
		a.text = merged
	} else {
		a.text += " " + merged
	}
	return merged
}

// Text returns the accumulated transcript so far.
func (a *Accumulator) Text() string {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.text
}

// Reset clears the transcript for a new session.
func (a *Accumulator) Reset() {
	a.mu.Lock()
	a.text = ""
	a.mu.Unlock()
}

// dedupJoin returns next with its longest word prefix that duplicates the
// word suffix of existing removed.
func dedupJoin(existing, next string) string {
	prev := strings.Fields(existing)
	cur := strings.Fields(next)

	max := len(prev)
	if len(cur) < max {
		max = len(cur)
	}
	for k := max; k > 0; k-- {
		if wordsEqual(prev[len(prev)-k:], cur[:k]) {
			return strings.Join(cur[k:], " ")
		}
	}
	return strings.Join(cur, " ")
}

func wordsEqual(a, b []string) bool {
	for i := range a {
		if !strings.EqualFold(a[i], b[i]) {
			return false
		}
	}
	return true
}
