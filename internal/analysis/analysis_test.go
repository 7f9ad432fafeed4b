package analysis

import (
	"context"
	"errors"
	"os"
	"path/filepath"
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

func testLogger() *logrus.Logger {
	log := logrus.New()
	log.SetLevel(logrus.PanicLevel)
	return log
}

type fakeExtractor struct {
	frames [][]byte
	err    error

	mu    sync.Mutex
	count int
}

func (f *fakeExtractor) ExtractFrames(_ context.Context, _ string, count int) ([][]byte, error) {
	f.mu.Lock()
	f.count = count
	f.mu.Unlock()
	return f.frames, f.err
}

type fakeVision struct {
	text string
	err  error

	mu      sync.Mutex
	prompts []string
	release chan struct{}
}

func (f *fakeVision) Complete(context.Context, []llm.Message) (string, error) {
	return f.text, f.err
}

func (f *fakeVision) CompleteVision(ctx context.Context, prompt string, _ [][]byte) (string, error) {
	f.mu.Lock()
	f.prompts = append(f.prompts, prompt)
	release := f.release
	f.mu.Unlock()
	if release != nil {
		select {
		case <-release:
		case <-ctx.Done():
			return "", ctx.Err()
		}
	}
	return f.text, f.err
}

type generatorStub struct {
	mu         sync.Mutex
	transcript string
	called     bool
}

func (g *generatorStub) Generate(transcript string) error {
	g.mu.Lock()
	g.transcript = transcript
	g.called = true
	g.mu.Unlock()
	return nil
}

func newTestAnalyzer(t *testing.T, vision *fakeVision, frames FrameExtractor, gen Generator) (*Analyzer, *bus.Bus, *store.Artifacts) {
	t.Helper()
	artifacts, err := store.NewArtifacts(t.TempDir())
	require.NoError(t, err)
	b := bus.New(testLogger())
	a := NewAnalyzer(Options{
		Vision:    vision,
		Frames:    frames,
		Bus:       b,
		Artifacts: artifacts,
		Generator: gen,
		Log:       testLogger(),
		Timeout:   2 * time.Second,
	})
	return a, b, artifacts
}

func seedRecording(t *testing.T, artifacts *store.Artifacts) string {
	t.Helper()
	name := "recording_test.mp4"
	path := filepath.Join(artifacts.RecordingsDir(), name)
	require.NoError(t, os.WriteFile(path, []byte("video"), 0o644))
	return name
}

func waitResult(t *testing.T, events <-chan bus.Event) Result {
	t.Helper()
	deadline := time.After(3 * time.Second)
	for {
		select {
		case ev := <-events:
			if ev.Type == bus.TypeAnalysisComplete {
				return ev.Data.(Result)
			}
		case <-deadline:
			t.Fatal("no analysis_complete event")
		}
	}
}

func TestQuickAnalysisPublishesResult(t *testing.T) {
	vision := &fakeVision{text: "The user browsed cat pictures."}
	frames := &fakeExtractor{frames: [][]byte{{1}, {2}, {3}}}
	a, b, artifacts := newTestAnalyzer(t, vision, frames, nil)
	name := seedRecording(t, artifacts)

	sub := b.Subscribe()
	defer b.Unsubscribe(sub.ID)

	require.NoError(t, a.Quick(name))
	res := waitResult(t, sub.Events)

	assert.True(t, res.Success)
	assert.Equal(t, "quick", res.Kind)
	assert.Equal(t, name, res.Filename)
	assert.Equal(t, "The user browsed cat pictures.", res.Analysis)
	assert.Equal(t, quickFrameCount, frames.count)

	vision.mu.Lock()
	assert.Equal(t, []string{quickPrompt}, vision.prompts)
	vision.mu.Unlock()
}

func TestDetailedAnalysisFeedsGenerator(t *testing.T) {
	vision := &fakeVision{text: "Step 1: open chrome. Step 2: search cats."}
	frames := &fakeExtractor{frames: [][]byte{{1}}}
	gen := &generatorStub{}
	a, b, artifacts := newTestAnalyzer(t, vision, frames, gen)
	name := seedRecording(t, artifacts)

	sub := b.Subscribe()
	defer b.Unsubscribe(sub.ID)

	require.NoError(t, a.Detailed(name))
	res := waitResult(t, sub.Events)
	require.True(t, res.Success)
	assert.Equal(t, "detailed", res.Kind)
	assert.Equal(t, detailedFrameCount, frames.count)

	require.Eventually(t, func() bool {
		gen.mu.Lock()
		defer gen.mu.Unlock()
		return gen.called
	}, 2*time.Second, 5*time.Millisecond)
	gen.mu.Lock()
	assert.Equal(t, vision.text, gen.transcript)
	gen.mu.Unlock()
}

func TestAnalysisUnknownRecording(t *testing.T) {
	vision := &fakeVision{text: "x"}
	a, _, _ := newTestAnalyzer(t, vision, &fakeExtractor{}, nil)

	assert.ErrorIs(t, a.Quick("missing.mp4"), session.ErrValidation)
	assert.ErrorIs(t, a.Quick("../escape.mp4"), session.ErrValidation)
}

func TestAnalysisSerializesRuns(t *testing.T) {
	release := make(chan struct{})
	vision := &fakeVision{text: "x", release: release}
	frames := &fakeExtractor{frames: [][]byte{{1}}}
	a, _, artifacts := newTestAnalyzer(t, vision, frames, nil)
	name := seedRecording(t, artifacts)

	require.NoError(t, a.Quick(name))
	require.Eventually(t, a.Running, time.Second, time.Millisecond)

	assert.ErrorIs(t, a.Quick(name), session.ErrBusy)

	close(release)
	require.Eventually(t, func() bool { return !a.Running() },
		2*time.Second, 5*time.Millisecond)
	assert.NoError(t, a.Quick(name))
}

func TestAnalysisUpstreamFailure(t *testing.T) {
	vision := &fakeVision{err: errors.New("model down")}
	frames := &fakeExtractor{frames: [][]byte{{1}}}
	a, b, artifacts := newTestAnalyzer(t, vision, frames, nil)
	name := seedRecording(t, artifacts)

	sub := b.Subscribe()
	defer b.Unsubscribe(sub.ID)

	require.NoError(t, a.Quick(name))
	res := waitResult(t, sub.Events)
	assert.False(t, res.Success)
	assert.Contains(t, res.Error, session.ErrUpstream.Error())
}

func TestAnalysisFrameExtractionFailure(t *testing.T) {
	vision := &fakeVision{text: "x"}
	frames := &fakeExtractor{err: errors.New("ffmpeg exploded")}
	a, b, artifacts := newTestAnalyzer(t, vision, frames, nil)
	name := seedRecording(t, artifacts)

	sub := b.Subscribe()
	defer b.Unsubscribe(sub.ID)

	require.NoError(t, a.Quick(name))
	res := waitResult(t, sub.Events)
	assert.False(t, res.Success)
	assert.Contains(t, res.Error, "extract frames")
}
