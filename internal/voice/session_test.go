package voice

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
	"github.com/jugogpt/tracker-engine/internal/config"
	"github.com/jugogpt/tracker-engine/internal/session"
	"github.com/jugogpt/tracker-engine/internal/store"
)

func testLogger() *logrus.Logger {
	log := logrus.New()
	log.SetLevel(logrus.PanicLevel)
	return log
}

func testVoiceConfig() config.VoiceConfig {
	return config.VoiceConfig{
		SampleRate:      16000,
		FrameSamples:    1600, // 100ms frames
		LevelThrottleMS: 1,
		VADThreshold:    0.02,
		SilenceMS:       150,
		MaxSegmentS:     5,
	}
}

func loudFrame(n int) []int16 {
	f := make([]int16, n)
	for i := range f {
		f[i] = 8000
	}
	return f
}

func silentFrame(n int) []int16 {
	return make([]int16, n)
}

// scriptedSource plays back a fixed frame sequence, then yields empty reads
// so the session loop keeps spinning until cancelled.
type scriptedSource struct {
	mu      sync.Mutex
	frames  [][]int16
	idx     int
	device  string
	nameErr error
}

func (s *scriptedSource) Open(context.Context) error { return nil }

func (s *scriptedSource) Name() (string, error) {
	if s.nameErr != nil {
		return "", s.nameErr
	}
	return s.device, nil
}

func (s *scriptedSource) ReadFrame(buf []int16) (int, error) {
	s.mu.Lock()
	if s.idx >= len(s.frames) {
		s.mu.Unlock()
		time.Sleep(2 * time.Millisecond)
		return 0, nil
	}
	frame := s.frames[s.idx]
	s.idx++
	s.mu.Unlock()
	return copy(buf, frame), nil
}

func (s *scriptedSource) Close() error { return nil }

func (s *scriptedSource) exhausted() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.idx >= len(s.frames)
}

// scriptedEngine emits a fixed result per segment.
type scriptedEngine struct {
	mu      sync.Mutex
	calls   int
	scripts []func(Emitter)
}

func (e *scriptedEngine) Transcribe(_ context.Context, _ []int16, _ int, emit Emitter) error {
	e.mu.Lock()
	call := e.calls
	e.calls++
	e.mu.Unlock()
	if call < len(e.scripts) {
		e.scripts[call](emit)
	}
	return nil
}

func (e *scriptedEngine) callCount() int {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.calls
}

type generatorStub struct {
	mu         sync.Mutex
	transcript string
	calls      int
}

func (g *generatorStub) Generate(transcript string) error {
	g.mu.Lock()
	g.transcript = transcript
	g.calls++
	g.mu.Unlock()
	return nil
}

func (g *generatorStub) callCount() int {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.calls
}

// gatedOpenSource holds Open until the gate is released, so tests can observe
// a session that is still starting.
type gatedOpenSource struct {
	scriptedSource
	gate chan struct{}
}

func (s *gatedOpenSource) Open(ctx context.Context) error {
	select {
	case <-s.gate:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func newTestSession(t *testing.T, src Source, eng Engine, gen Generator) (*Session, *bus.Bus) {
	t.Helper()
	artifacts, err := store.NewArtifacts(t.TempDir())
	require.NoError(t, err)
	b := bus.New(testLogger())
	return NewSession(Options{
		Source:    src,
		Engine:    eng,
		Bus:       b,
		Artifacts: artifacts,
		Generator: gen,
		Log:       testLogger(),
		Config:    testVoiceConfig(),
	}), b
}

func TestSessionTranscribesSegments(t *testing.T) {
	n := 1600
	src := &scriptedSource{
		device: "mic-1",
		frames: [][]int16{
			loudFrame(n), loudFrame(n), silentFrame(n), silentFrame(n),
			loudFrame(n), silentFrame(n), silentFrame(n),
		},
	}
	eng := &scriptedEngine{scripts: []func(Emitter){
		func(e Emitter) {
			e.Partial("open chrome")
			e.Word("open")
			e.Word("chrome")
			e.Final("open chrome and")
		},
		func(e Emitter) {
			e.Final("and search cats")
		},
	}}
	gen := &generatorStub{}
	s, b := newTestSession(t, src, eng, gen)

	sub := b.Subscribe()
	defer b.Unsubscribe(sub.ID)

	st, err := s.Start()
	require.NoError(t, err)
	assert.Equal(t, session.Listening, st.State)
	assert.Equal(t, "mic-1", st.Device)

	require.Eventually(t, func() bool { return eng.callCount() >= 2 },
		3*time.Second, 10*time.Millisecond)

	stopped, err := s.Stop()
	require.NoError(t, err)
	assert.Equal(t, session.Idle, stopped.State)
	assert.Equal(t, "open chrome and search cats", stopped.Transcript)

	gen.mu.Lock()
	assert.Equal(t, "open chrome and search cats", gen.transcript)
	gen.mu.Unlock()

	types := drainTypes(sub.Events, 64)
	assert.Contains(t, types, bus.TypeDeviceInfo)
	assert.Contains(t, types, bus.TypeRecordingStarted)
	assert.Contains(t, types, bus.TypePartialTranscript)
	assert.Contains(t, types, bus.TypeWordDetected)
	assert.Contains(t, types, bus.TypeFinalTranscript)
	assert.Contains(t, types, bus.TypeRecordingStopped)
}

func TestSessionStartWhileActive(t *testing.T) {
	src := &scriptedSource{device: "mic-1"}
	s, _ := newTestSession(t, src, nil, nil)

	_, err := s.Start()
	require.NoError(t, err)

	_, err = s.Start()
	assert.ErrorIs(t, err, session.ErrAlreadyActive)

	_, err = s.Stop()
	require.NoError(t, err)
}

func TestSessionStopWithoutStart(t *testing.T) {
	s, _ := newTestSession(t, &scriptedSource{}, nil, nil)
	_, err := s.Stop()
	assert.ErrorIs(t, err, session.ErrNotActive)
}

func TestStopDuringStartFailsFast(t *testing.T) {
	src := &gatedOpenSource{gate: make(chan struct{})}
	s, _ := newTestSession(t, src, nil, nil)

	started := make(chan error, 1)
	go func() {
		_, err := s.Start()
		started <- err
	}()

	require.Eventually(t, func() bool {
		return s.Status().State == session.Starting
	}, time.Second, time.Millisecond)

	// Stop while the device is still being acquired must not touch the
	// half-built session; it reports the conflict and leaves Start alone.
	st, err := s.Stop()
	assert.ErrorIs(t, err, session.ErrNotActive)
	assert.Equal(t, session.Starting, st.State)

	close(src.gate)
	require.NoError(t, <-started)
	assert.Equal(t, session.Listening, s.Status().State)

	_, err = s.Stop()
	require.NoError(t, err)
	assert.Equal(t, session.Idle, s.Status().State)
}

func TestConcurrentStopOneWinner(t *testing.T) {
	src := &scriptedSource{device: "mic-1"}
	gen := &generatorStub{}
	s, _ := newTestSession(t, src, nil, gen)

	_, err := s.Start()
	require.NoError(t, err)
	require.NoError(t, s.Message("open chrome"))

	const racers = 4
	var wg sync.WaitGroup
	errs := make([]error, racers)
	for i := 0; i < racers; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			_, errs[i] = s.Stop()
		}(i)
	}
	wg.Wait()

	winners := 0
	for _, err := range errs {
		if err == nil {
			winners++
		} else {
			assert.ErrorIs(t, err, session.ErrNotActive)
		}
	}
	assert.Equal(t, 1, winners)
	assert.Equal(t, 1, gen.callCount())
}

func TestSessionDegradesWithoutDeviceName(t *testing.T) {
	src := &scriptedSource{nameErr: errors.New("lookup failed")}
	s, b := newTestSession(t, src, nil, nil)

	sub := b.Subscribe()
	defer b.Unsubscribe(sub.ID)

	st, err := s.Start()
	require.NoError(t, err)
	assert.Empty(t, st.Device)

	types := drainTypes(sub.Events, 16)
	assert.NotContains(t, types, bus.TypeDeviceInfo)
	assert.Contains(t, types, bus.TypeRecordingStarted)

	_, err = s.Stop()
	require.NoError(t, err)
}

func TestStopFlushesInFlightSegment(t *testing.T) {
	n := 1600
	src := &scriptedSource{
		device: "mic-1",
		frames: [][]int16{loudFrame(n), loudFrame(n), loudFrame(n)},
	}
	eng := &scriptedEngine{scripts: []func(Emitter){
		func(e Emitter) { e.Final("quick note") },
	}}
	s, _ := newTestSession(t, src, eng, nil)

	_, err := s.Start()
	require.NoError(t, err)

	// Wait until the open segment holds all scripted speech, then stop
	// mid-segment. The segment must be finalized, not discarded.
	require.Eventually(t, src.exhausted, 3*time.Second, 5*time.Millisecond)

	stopped, err := s.Stop()
	require.NoError(t, err)
	assert.Equal(t, "quick note", stopped.Transcript)
	assert.Equal(t, 1, eng.callCount())
}

func TestMessageRequiresActiveSession(t *testing.T) {
	s, _ := newTestSession(t, &scriptedSource{}, nil, nil)
	assert.ErrorIs(t, s.Message("hello"), session.ErrNotActive)

	_, err := s.Start()
	require.NoError(t, err)
	require.NoError(t, s.Message("open chrome"))

	stopped, err := s.Stop()
	require.NoError(t, err)
	assert.Equal(t, "open chrome", stopped.Transcript)
}

func drainTypes(events <-chan bus.Event, max int) []bus.Type {
	var types []bus.Type
	for i := 0; i < max; i++ {
		select {
		case ev := <-events:
			types = append(types, ev.Type)
		case <-time.After(200 * time.Millisecond):
			return types
		}
	}
	return types
}
