package voice

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"

	"github.com/jugogpt/tracker-engine/internal/bus"
	"github.com/jugogpt/tracker-engine/internal/config"
	"github.com/jugogpt/tracker-engine/internal/session"
	"github.com/jugogpt/tracker-engine/internal/store"
)

// stopGrace bounds how long Stop waits for the read loop to finalize the
// in-flight segment.
const stopGrace = 5 * time.Second

// Generator receives the accumulated transcript when a session ends.
// Satisfied by *workflow.Synthesizer.
type Generator interface {
	Generate(transcript string) error
}

// Status is the externally visible transcription state.
type Status struct {
	State      session.State `json:"state"`
	SessionID  string        `json:"session_id,omitempty"`
	Device     string        `json:"device,omitempty"`
	Transcript string        `json:"transcript,omitempty"`
}

// Options configures a Session.
type Options struct {
	Source    Source
	Engine    Engine
	Bus       *bus.Bus
	Artifacts *store.Artifacts
	Generator Generator
	Log       *logrus.Logger
	Config    config.VoiceConfig
}

// Session is the single voice transcription session. It holds the microphone
// from Start to Stop: frames are read continuously, speech segments are cut
// by an energy VAD, and each completed segment is transcribed while the
// session reports Transcribing. Stop finalizes any in-flight segment before
// releasing the device and hands the accumulated transcript to the workflow
// generator.
type Session struct {
	src       Source
	engine    Engine
	bus       *bus.Bus
	artifacts *store.Artifacts
	gen       Generator
	log       *logrus.Logger
	cfg       config.VoiceConfig

	acc Accumulator

	mu             sync.Mutex
	state          session.State
	sessionID      string
	device         string
	transcriptPath string
	cancel         context.CancelFunc
	done           chan struct{}
	lastLevel      time.Time
}

// NewSession builds a session in the Idle state. A nil Engine disables
// transcription but keeps the level meter and segmenter running.
func NewSession(opts Options) *Session {
	return &Session{
		src:       opts.Source,
		engine:    opts.Engine,
		bus:       opts.Bus,
		artifacts: opts.Artifacts,
		gen:       opts.Generator,
		log:       opts.Log,
		cfg:       opts.Config,
		state:     session.Idle,
	}
}

// Start acquires the microphone and begins listening. Exactly one concurrent
// caller wins; the rest get session.ErrAlreadyActive.
func (s *Session) Start() (Status, error) {
	s.mu.Lock()
	if s.state.Busy() {
		st := s.statusLocked()
		s.mu.Unlock()
		return st, session.ErrAlreadyActive
	}
	s.transitionLocked(session.Starting)
	s.mu.Unlock()

	ctx, cancel := context.WithCancel(context.Background())
	if err := s.src.Open(ctx); err != nil {
		cancel()
		s.mu.Lock()
		s.transitionLocked(session.Errored)
		s.transitionLocked(session.Idle)
		s.mu.Unlock()
		s.bus.Publish(bus.TypeSessionError, bus.SessionError{
			Component: bus.ComponentVoice,
			Message:   fmt.Errorf("%w: %v", session.ErrResourceUnavailable, err).Error(),
		})
		return Status{State: session.Idle}, fmt.Errorf("%w: %v", session.ErrResourceUnavailable, err)
	}

	// Device name is informational only; a failed lookup is not an error.
	device := ""
	if name, err := s.src.Name(); err == nil {
		device = name
	} else {
		s.log.WithError(err).Debug("voice: device name unavailable")
	}

	id := uuid.NewString()
	done := make(chan struct{})
	s.acc.Reset()

	s.mu.Lock()
	s.sessionID = id
	s.device = device
	s.transcriptPath = s.artifacts.NewTranscriptPath(time.Now())
	s.cancel = cancel
	s.done = done
	s.mu.Unlock()

	if device != "" {
		s.bus.Publish(bus.TypeDeviceInfo, bus.DeviceInfo{DeviceName: device})
	}
	s.bus.Publish(bus.TypeRecordingStarted, bus.RecordingInfo{
		Component: bus.ComponentVoice,
		SessionID: id,
		Timestamp: bus.NowTS(),
	})

	s.mu.Lock()
	s.transitionLocked(session.Listening)
	st := s.statusLocked()
	s.mu.Unlock()

	go s.run(ctx, id, done)
	return st, nil
}

// Stop finalizes the in-flight segment, releases the microphone, and hands
// the accumulated transcript to the generator. Returns session.ErrNotActive
// unless the session is listening or transcribing: a Stop racing a Start or
// another Stop fails fast instead of tearing down a half-built session.
func (s *Session) Stop() (Status, error) {
	s.mu.Lock()
	if s.state != session.Listening && s.state != session.Transcribing {
		st := s.statusLocked()
		s.mu.Unlock()
		return st, session.ErrNotActive
	}
	s.transitionLocked(session.Finalizing)
	id := s.sessionID
	cancel, done := s.cancel, s.done
	s.mu.Unlock()

	cancel()
	select {
	case <-done:
	case <-time.After(stopGrace):
		s.log.WithField("session", id).Warn("voice: read loop did not stop in time")
	}

	s.mu.Lock()
	s.transitionLocked(session.Stopping)
	s.mu.Unlock()

	if err := s.src.Close(); err != nil {
		s.log.WithError(err).Warn("voice: source close failed")
	}
	transcript := s.acc.Text()

	s.mu.Lock()
	s.clearLocked()
	s.transitionLocked(session.Idle)
	s.mu.Unlock()

	s.bus.Publish(bus.TypeRecordingStopped, bus.RecordingInfo{
		Component: bus.ComponentVoice,
		SessionID: id,
		Timestamp: bus.NowTS(),
	})

	if transcript != "" && s.gen != nil {
		if err := s.gen.Generate(transcript); err != nil {
			s.log.WithError(err).Warn("voice: workflow generation not queued")
		}
	}

	return Status{State: session.Idle, SessionID: id, Transcript: transcript}, nil
}

// Message injects a typed message into the active session transcript, for
// clients that mix text input with speech.
func (s *Session) Message(text string) error {
	s.mu.Lock()
	active := s.state.Busy()
	path := s.transcriptPath
	s.mu.Unlock()
	if !active {
		return session.ErrNotActive
	}

	merged := s.acc.Append(text)
	if merged == "" {
		return nil
	}
	s.bus.Publish(bus.TypeFinalTranscript, bus.TranscriptText{Text: merged})
	if err := s.artifacts.AppendTranscript(path, "User", merged); err != nil {
		s.log.WithError(err).Warn("voice: transcript log write failed")
	}
	return nil
}

// Status reports the current session without side effects.
func (s *Session) Status() Status {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.statusLocked()
}

func (s *Session) statusLocked() Status {
	return Status{
		State:      s.state,
		SessionID:  s.sessionID,
		Device:     s.device,
		Transcript: s.acc.Text(),
	}
}

func (s *Session) clearLocked() {
	s.sessionID = ""
	s.device = ""
	s.transcriptPath = ""
	s.cancel = nil
	s.done = nil
}

func (s *Session) transitionLocked(to session.State) {
	from := s.state
	s.state = to
	if from == to {
		return
	}
	s.bus.Publish(bus.TypeSessionState, bus.StateChange{
		Component: bus.ComponentVoice,
		From:      from.String(),
		To:        to.String(),
	})
}

// run is the read loop: meter, VAD segmentation, and per-segment
// transcription. It exits when ctx is cancelled, finalizing any open segment
// first.
func (s *Session) run(ctx context.Context, id string, done chan struct{}) {
	defer close(done)

	rate := s.cfg.SampleRate
	buf := make([]int16, s.cfg.FrameSamples)
	throttle := time.Duration(s.cfg.LevelThrottleMS) * time.Millisecond
	silenceLimit := time.Duration(s.cfg.SilenceMS) * time.Millisecond
	maxSegment := time.Duration(s.cfg.MaxSegmentS) * time.Second

	var segment []int16
	inSegment := false
	var silent time.Duration

	for {
		n, err := s.src.ReadFrame(buf)
		if ctx.Err() != nil {
			if inSegment && len(segment) > 0 {
				s.finalizeSegment(segment, rate)
			}
			return
		}
		if err != nil {
			s.fault(id, err)
			return
		}
		if n == 0 {
			continue
		}

		frame := buf[:n]
		frameDur := time.Duration(n) * time.Second / time.Duration(rate)

		level := rmsLevel(frame)
		s.publishLevel(level, throttle)

		if level >= s.cfg.VADThreshold {
			if !inSegment {
				inSegment = true
				segment = segment[:0]
				silent = 0
			}
			silent = 0
			segment = append(segment, frame...)
		} else if inSegment {
			silent += frameDur
			segment = append(segment, frame...)
			if silent >= silenceLimit {
				s.finalizeSegment(segment, rate)
				inSegment = false
				segment = segment[:0]
			}
		}

		if inSegment {
			segDur := time.Duration(len(segment)) * time.Second / time.Duration(rate)
			if segDur >= maxSegment {
				s.finalizeSegment(segment, rate)
				inSegment = false
				segment = segment[:0]
			}
		}
	}
}

// publishLevel emits the audio level, throttled. Level events are advisory
// and may be dropped downstream.
func (s *Session) publishLevel(level float64, throttle time.Duration) {
	s.mu.Lock()
	if time.Since(s.lastLevel) < throttle {
		s.mu.Unlock()
		return
	}
	s.lastLevel = time.Now()
	s.mu.Unlock()
	s.bus.Publish(bus.TypeAudioLevel, bus.AudioLevel{Level: level})
}

// finalizeSegment transcribes one completed speech segment. The session
// reports Transcribing for the duration and returns to Listening afterwards
// unless a stop is in progress.
func (s *Session) finalizeSegment(segment []int16, rate int) {
	if s.engine == nil {
		return
	}

	s.mu.Lock()
	if s.state == session.Listening {
		s.transitionLocked(session.Transcribing)
	}
	s.mu.Unlock()

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	if err := s.engine.Transcribe(ctx, segment, rate, s); err != nil {
		s.log.WithError(err).Warn("voice: segment transcription failed")
	}
	cancel()

	s.mu.Lock()
	if s.state == session.Transcribing {
		s.transitionLocked(session.Listening)
	}
	s.mu.Unlock()
}

// fault handles a device failure while listening. The session broadcasts the
// error and returns to Idle so a retry can start.
func (s *Session) fault(id string, err error) {
	s.log.WithError(err).WithField("session", id).Error("voice: source failed")

	s.src.Close()

	s.mu.Lock()
	if s.sessionID == id {
		if s.cancel != nil {
			s.cancel()
		}
		s.transitionLocked(session.Errored)
		s.clearLocked()
		s.transitionLocked(session.Idle)
	}
	s.mu.Unlock()

	s.bus.Publish(bus.TypeSessionError, bus.SessionError{
		Component: bus.ComponentVoice,
		Message:   fmt.Errorf("%w: %v", session.ErrResourceUnavailable, err).Error(),
		SessionID: id,
	})
}

// Emitter implementation: transcription results flow straight to the bus and
// the accumulated transcript.

// Partial replaces the live hypothesis.
func (s *Session) Partial(text string) {
	s.bus.Publish(bus.TypePartialTranscript, bus.TranscriptText{Text: text})
}

// Word reports a single detected token.
func (s *Session) Word(word string) {
	s.bus.Publish(bus.TypeWordDetected, bus.WordDetected{Word: word})
}

// Final appends the segment text to the session transcript, deduplicating
// seam overlap, and logs it to the transcript file.
func (s *Session) Final(text string) {
	merged := s.acc.Append(text)
	if merged == "" {
		return
	}
	s.bus.Publish(bus.TypeFinalTranscript, bus.TranscriptText{Text: merged})

	s.mu.Lock()
	path := s.transcriptPath
	s.mu.Unlock()
	if path != "" {
		if err := s.artifacts.AppendTranscript(path, "User", merged); err != nil {
			s.log.WithError(err).Warn("voice: transcript log write failed")
		}
	}
}
