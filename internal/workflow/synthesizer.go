package workflow

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/jugogpt/tracker-engine/internal/bus"
	"github.com/jugogpt/tracker-engine/internal/llm"
	"github.com/jugogpt/tracker-engine/internal/session"
	"github.com/jugogpt/tracker-engine/internal/store"
)

const systemPrompt = `You are a workflow extraction assistant. Convert the user's spoken instruction into a precise, automatable workflow.

Respond with ONLY a JSON object of this shape:
{
  "title": "short workflow name",
  "description": "one sentence summary",
  "steps": [
    {
      "step_number": 1,
      "action": "verb describing the action",
      "target": "application or object acted on",
      "details": "parameters or free text",
      "automation_instruction": "imperative instruction a robot could follow"
    }
  ],
  "estimated_time": "rough duration",
  "prerequisites": ["anything that must exist first"],
  "automation_ready": true
}

Break compound instructions into discrete steps. Do not include any text outside the JSON object.`

// Stage names and progress points broadcast during one synthesis run.
const (
	StageStarting   = "starting"
	StageProcessing = "processing"
	StageFormatting = "formatting"
	StageCompleted  = "completed"
	StageError      = "error"
)

type request struct {
	transcript string
	enqueued   time.Time
}

// Options configures a Synthesizer.
type Options struct {
	Completer   llm.Completer
	Bus         *bus.Bus
	Artifacts   *store.Artifacts
	Log         *logrus.Logger
	QueueSize   int
	Timeout     time.Duration
	WaitCeiling time.Duration
}

// Synthesizer serializes workflow generation through one worker goroutine.
// Generate never blocks the caller: a full queue fails fast with ErrBusy, and
// requests that sat queued past the wait ceiling are failed without touching
// the upstream model.
type Synthesizer struct {
	completer   llm.Completer
	bus         *bus.Bus
	artifacts   *store.Artifacts
	log         *logrus.Logger
	timeout     time.Duration
	waitCeiling time.Duration
	queue       chan request

	mu    sync.Mutex
	state session.State
	last  *Result
}

// NewSynthesizer builds a synthesizer. Run must be started for queued
// requests to be processed.
func NewSynthesizer(opts Options) *Synthesizer {
	if opts.QueueSize < 1 {
		opts.QueueSize = 16
	}
	if opts.Timeout <= 0 {
		opts.Timeout = 30 * time.Second
	}
	if opts.WaitCeiling <= 0 {
		opts.WaitCeiling = 2 * time.Minute
	}
	return &Synthesizer{
		completer:   opts.Completer,
		bus:         opts.Bus,
		artifacts:   opts.Artifacts,
		log:         opts.Log,
		timeout:     opts.Timeout,
		waitCeiling: opts.WaitCeiling,
		queue:       make(chan request, opts.QueueSize),
		state:       session.Idle,
	}
}

// Generate enqueues a transcript for synthesis. Returns session.ErrValidation
// for an empty transcript and session.ErrBusy when the queue is full.
func (s *Synthesizer) Generate(transcript string) error {
	if strings.TrimSpace(transcript) == "" {
		return fmt.Errorf("%w: empty transcript", session.ErrValidation)
	}
	select {
	case s.queue <- request{transcript: transcript, enqueued: time.Now()}:
		return nil
	default:
		return fmt.Errorf("%w: generation queue full", session.ErrBusy)
	}
}

// State returns the synthesizer's current lifecycle state.
func (s *Synthesizer) State() session.State {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state
}

// LastResult returns the most recent synthesis result, nil before the first
// run completes.
func (s *Synthesizer) LastResult() *Result {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.last
}

// QueueDepth returns the number of pending requests.
func (s *Synthesizer) QueueDepth() int {
	return len(s.queue)
}

// Run processes the queue until the context is cancelled. Requests are taken
// strictly in arrival order; each terminates in exactly one completed or
// error stage.
func (s *Synthesizer) Run(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			return
		case req := <-s.queue:
			s.process(ctx, req)
		}
	}
}

func (s *Synthesizer) process(ctx context.Context, req request) {
	if waited := time.Since(req.enqueued); waited > s.waitCeiling {
		s.log.WithField("waited", waited.Round(time.Second)).Warn("workflow: request expired in queue")
		s.progress(StageError, 100, "request waited too long in queue")
		s.finish(Result{
			Transcript: req.transcript,
			Success:    false,
			Error:      session.ErrBusy.Error(),
		})
		return
	}

	s.setState(session.Active)
	defer s.setState(session.Idle)

	s.progress(StageStarting, 20, "analyzing transcript")

	raw, err := s.complete(ctx, req.transcript)
	if err != nil {
		s.log.WithError(err).Error("workflow: generation failed")
		s.progress(StageError, 100, "upstream generation failed")
		s.finish(Result{
			Transcript: req.transcript,
			Success:    false,
			Error:      fmt.Errorf("%w: %v", session.ErrUpstream, err).Error(),
		})
		return
	}

	s.progress(StageProcessing, 60, "structuring workflow")

	wf, ok := parseWorkflow(raw)
	if !ok {
		s.log.Warn("workflow: unparseable model response, using fallback document")
		wf = fallbackWorkflow(req.transcript)
	}

	s.progress(StageFormatting, 80, "saving workflow")

	path, err := s.artifacts.SaveWorkflow(wf, time.Now())
	if err != nil {
		s.log.WithError(err).Error("workflow: save failed")
		s.progress(StageError, 100, "could not persist workflow")
		s.finish(Result{
			Transcript: req.transcript,
			Workflow:   wf,
			Success:    false,
			Error:      err.Error(),
		})
		return
	}

	s.progress(StageCompleted, 100, wf.Title)
	s.finish(Result{
		Transcript:   req.transcript,
		Workflow:     wf,
		WorkflowFile: path,
		Success:      true,
	})
}

// complete calls the model with a bounded timeout and exactly one retry.
func (s *Synthesizer) complete(ctx context.Context, transcript string) (string, error) {
	msgs := []llm.Message{
		llm.SystemMessage(systemPrompt),
		llm.UserMessage("Instruction: " + transcript),
	}

	var lastErr error
	for attempt := 0; attempt < 2; attempt++ {
		callCtx, cancel := context.WithTimeout(ctx, s.timeout)
		raw, err := s.completer.Complete(callCtx, msgs)
		cancel()
		if err == nil {
			return raw, nil
		}
		lastErr = err
		if ctx.Err() != nil {
			break
		}
	}
	return "", lastErr
}

func (s *Synthesizer) setState(to session.State) {
	s.mu.Lock()
	from := s.state
	s.state = to
	s.mu.Unlock()
	if from == to {
		return
	}
	s.bus.Publish(bus.TypeSessionState, bus.StateChange{
		Component: bus.ComponentWorkflow,
		From:      from.String(),
		To:        to.String(),
	})
}

func (s *Synthesizer) progress(stage string, percent int, message string) {
	s.bus.Publish(bus.TypeWorkflowProgress, bus.WorkflowProgress{
		Stage:   stage,
		Percent: percent,
		Message: message,
	})
}

func (s *Synthesizer) finish(res Result) {
	s.mu.Lock()
	s.last = &res
	s.mu.Unlock()
	s.bus.Publish(bus.TypeWorkflowGenerated, res)
}
