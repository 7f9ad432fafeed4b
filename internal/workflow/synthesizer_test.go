package workflow

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jugogpt/tracker-engine/internal/bus"
	"github.com/jugogpt/tracker-engine/internal/llm"
	"github.com/jugogpt/tracker-engine/internal/session"
	"github.com/jugogpt/tracker-engine/internal/store"
)

const validResponse = "```json\n" +
	`{"title": "Open Chrome", "description": "d", "steps": [{"step_number": 1, "action": "open", "target": "chrome"}]}` +
	"\n```"

func testLogger() *logrus.Logger {
	log := logrus.New()
	log.SetLevel(logrus.PanicLevel)
	return log
}

// scriptedCompleter returns canned responses or errors in order, repeating
// the last entry.
type scriptedCompleter struct {
	mu        sync.Mutex
	calls     int
	responses []string
	errs      []error
}

func (c *scriptedCompleter) Complete(context.Context, []llm.Message) (string, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	i := c.calls
	c.calls++
	if i >= len(c.responses) {
		i = len(c.responses) - 1
	}
	return c.responses[i], c.errs[i]
}

func (c *scriptedCompleter) callCount() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.calls
}

func newTestSynth(t *testing.T, completer llm.Completer, queueSize int) (*Synthesizer, *bus.Bus) {
	t.Helper()
	artifacts, err := store.NewArtifacts(t.TempDir())
	require.NoError(t, err)
	b := bus.New(testLogger())
	return NewSynthesizer(Options{
		Completer:   completer,
		Bus:         b,
		Artifacts:   artifacts,
		Log:         testLogger(),
		QueueSize:   queueSize,
		Timeout:     time.Second,
		WaitCeiling: time.Minute,
	}), b
}

func waitResult(t *testing.T, events <-chan bus.Event) (Result, []string) {
	t.Helper()
	var stages []string
	deadline := time.After(3 * time.Second)
	for {
		select {
		case ev := <-events:
			switch ev.Type {
			case bus.TypeWorkflowProgress:
				stages = append(stages, ev.Data.(bus.WorkflowProgress).Stage)
			case bus.TypeWorkflowGenerated:
				return ev.Data.(Result), stages
			}
		case <-deadline:
			t.Fatal("no workflow_generated event")
		}
	}
}

func TestGenerateProducesWorkflow(t *testing.T) {
	c := &scriptedCompleter{responses: []string{validResponse}, errs: []error{nil}}
	s, b := newTestSynth(t, c, 4)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go s.Run(ctx)

	sub := b.Subscribe()
	defer b.Unsubscribe(sub.ID)

	require.NoError(t, s.Generate("open chrome"))

	res, stages := waitResult(t, sub.Events)
	assert.True(t, res.Success)
	require.NotNil(t, res.Workflow)
	assert.Equal(t, "Open Chrome", res.Workflow.Title)
	assert.NotEmpty(t, res.WorkflowFile)
	assert.FileExists(t, res.WorkflowFile)
	assert.Equal(t, []string{StageStarting, StageProcessing, StageFormatting, StageCompleted}, stages)
	assert.Equal(t, res, *s.LastResult())
}

func TestGenerateRetriesOnceThenSucceeds(t *testing.T) {
	c := &scriptedCompleter{
		responses: []string{"", validResponse},
		errs:      []error{errors.New("rate limited"), nil},
	}
	s, b := newTestSynth(t, c, 4)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go s.Run(ctx)

	sub := b.Subscribe()
	defer b.Unsubscribe(sub.ID)

	require.NoError(t, s.Generate("open chrome"))
	res, _ := waitResult(t, sub.Events)
	assert.True(t, res.Success)
	assert.Equal(t, 2, c.callCount())
}

func TestGenerateFailsAfterSecondError(t *testing.T) {
	boom := errors.New("model down")
	c := &scriptedCompleter{responses: []string{"", ""}, errs: []error{boom, boom}}
	s, b := newTestSynth(t, c, 4)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go s.Run(ctx)

	sub := b.Subscribe()
	defer b.Unsubscribe(sub.ID)

	require.NoError(t, s.Generate("open chrome"))
	res, stages := waitResult(t, sub.Events)
	assert.False(t, res.Success)
	assert.Contains(t, res.Error, session.ErrUpstream.Error())
	assert.Equal(t, 2, c.callCount(), "exactly one retry")
	assert.Equal(t, StageError, stages[len(stages)-1])
}

func TestGenerateFallsBackOnUnparseableResponse(t *testing.T) {
	c := &scriptedCompleter{responses: []string{"I will not produce JSON."}, errs: []error{nil}}
	s, b := newTestSynth(t, c, 4)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go s.Run(ctx)

	sub := b.Subscribe()
	defer b.Unsubscribe(sub.ID)

	require.NoError(t, s.Generate("open chrome and search cats"))
	res, _ := waitResult(t, sub.Events)
	assert.True(t, res.Success)
	require.NotNil(t, res.Workflow)
	assert.Equal(t, "open chrome and search cats", res.Workflow.Steps[0].Details)
}

func TestGenerateQueueFull(t *testing.T) {
	c := &scriptedCompleter{responses: []string{validResponse}, errs: []error{nil}}
	s, _ := newTestSynth(t, c, 1)
	// Run is not started, so the first request occupies the only queue slot.

	require.NoError(t, s.Generate("first"))
	err := s.Generate("second")
	assert.ErrorIs(t, err, session.ErrBusy)
}

func TestQueuedRequestPastWaitCeilingIsDropped(t *testing.T) {
	c := &scriptedCompleter{responses: []string{validResponse}, errs: []error{nil}}
	artifacts, err := store.NewArtifacts(t.TempDir())
	require.NoError(t, err)
	b := bus.New(testLogger())
	s := NewSynthesizer(Options{
		Completer:   c,
		Bus:         b,
		Artifacts:   artifacts,
		Log:         testLogger(),
		QueueSize:   4,
		Timeout:     time.Second,
		WaitCeiling: 10 * time.Millisecond,
	})

	sub := b.Subscribe()
	defer b.Unsubscribe(sub.ID)

	// Queue before Run so the request ages past the ceiling before the
	// worker dequeues it.
	require.NoError(t, s.Generate("stale request"))
	time.Sleep(50 * time.Millisecond)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go s.Run(ctx)

	res, stages := waitResult(t, sub.Events)
	assert.False(t, res.Success)
	assert.Contains(t, res.Error, session.ErrBusy.Error())
	assert.Equal(t, []string{StageError}, stages)
	assert.Equal(t, 0, c.callCount(), "expired request must not reach the model")

	// A fresh request still goes through.
	require.NoError(t, s.Generate("fresh request"))
	res2, _ := waitResult(t, sub.Events)
	assert.True(t, res2.Success)
	assert.Equal(t, "fresh request", res2.Transcript)
}

func TestGenerateRejectsEmptyTranscript(t *testing.T) {
	c := &scriptedCompleter{responses: []string{validResponse}, errs: []error{nil}}
	s, _ := newTestSynth(t, c, 4)

	assert.ErrorIs(t, s.Generate("   "), session.ErrValidation)
}

func TestRequestsProcessFIFO(t *testing.T) {
	c := &scriptedCompleter{responses: []string{validResponse}, errs: []error{nil}}
	s, b := newTestSynth(t, c, 4)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sub := b.Subscribe()
	defer b.Unsubscribe(sub.ID)

	require.NoError(t, s.Generate("first request"))
	require.NoError(t, s.Generate("second request"))
	go s.Run(ctx)

	res1, _ := waitResult(t, sub.Events)
	res2, _ := waitResult(t, sub.Events)
	assert.Equal(t, "first request", res1.Transcript)
	assert.Equal(t, "second request", res2.Transcript)
}
