// Package workflow turns accumulated transcripts into structured, replayable
// workflow documents. Synthesis is asynchronous: requests queue FIFO behind a
// single worker, progress is broadcast over the event bus, and the finished
// document is persisted as an artifact.
package workflow

import (
	"encoding/json"
	"strings"
)

// Step is one action in a generated workflow.
type Step struct {
	StepNumber            int    `json:"step_number"`
	Action                string `json:"action"`
	Target                string `json:"target"`
	Details               string `json:"details,omitempty"`
	AutomationInstruction string `json:"automation_instruction,omitempty"`
}

// Workflow is the structured document produced by synthesis.
type Workflow struct {
	Title           string   `json:"title"`
	Description     string   `json:"description"`
	Steps           []Step   `json:"steps"`
	EstimatedTime   string   `json:"estimated_time,omitempty"`
	Prerequisites   []string `json:"prerequisites,omitempty"`
	AutomationReady bool     `json:"automation_ready"`
}

// Result is the payload of a workflow_generated event.
type Result struct {
	Transcript   string    `json:"transcript"`
	Workflow     *Workflow `json:"workflow,omitempty"`
	WorkflowFile string    `json:"workflow_file,omitempty"`
	Success      bool      `json:"success"`
	Error        string    `json:"error,omitempty"`
}

// extractJSON pulls a JSON object out of a model response that may wrap it in
// markdown fences or surrounding prose.
func extractJSON(raw string) (string, bool) {
	s := strings.TrimSpace(raw)

	if i := strings.Index(s, "```json"); i >= 0 {
		s = s[i+len("```json"):]
		if j := strings.Index(s, "```"); j >= 0 {
			s = s[:j]
		}
	} else if strings.HasPrefix(s, "```") {
		s = strings.TrimPrefix(s, "```")
		if j := strings.Index(s, "```"); j >= 0 {
			s = s[:j]
		}
	}

	start := strings.Index(s, "{")
	end := strings.LastIndex(s, "}")
	if start < 0 || end <= start {
		return "", false
	}
	return strings.TrimSpace(s[start : end+1]), true
}

// parseWorkflow decodes a model response into a Workflow, filling required
// fields that the model omitted. Reports false when no usable document could
// be recovered.
func parseWorkflow(raw string) (*Workflow, bool) {
	jsonText, ok := extractJSON(raw)
	if !ok {
		return nil, false
	}

	var wf Workflow
	if err := json.Unmarshal([]byte(jsonText), &wf); err != nil {
		return nil, false
	}
	if len(wf.Steps) == 0 {
		return nil, false
	}

	if wf.Title == "" {
		wf.Title = "Generated Workflow"
	}
	if wf.Description == "" {
		wf.Description = "Workflow generated from voice transcript"
	}
	for i := range wf.Steps {
		if wf.Steps[i].StepNumber == 0 {
			wf.Steps[i].StepNumber = i + 1
		}
	}
	return &wf, true
}

// fallbackWorkflow is used when the model response could not be parsed. The
// transcript is preserved as a single manual step so nothing is lost.
func fallbackWorkflow(transcript string) *Workflow {
	return &Workflow{
		Title:       "Voice Transcript Workflow",
		Description: "Automatic structuring failed; the raw instruction is preserved below.",
		Steps: []Step{{
			StepNumber: 1,
			Action:     "execute_instruction",
			Target:     "user_request",
			Details:    transcript,
		}},
		AutomationReady: false,
	}
}
