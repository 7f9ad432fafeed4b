// Package capture owns the screen recording device. At most one recording
// session exists at a time; concurrent starts fail fast rather than queue.
package capture

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/exec"
	"path/filepath"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"

	"github.com/jugogpt/tracker-engine/internal/bus"
	"github.com/jugogpt/tracker-engine/internal/session"
	"github.com/jugogpt/tracker-engine/internal/store"
)

// stopGrace bounds how long Stop waits for the recorder to wind down before
// the session is forced back to Idle anyway.
const stopGrace = 5 * time.Second

// Recorder writes a recording to path until ctx is cancelled. A nil return or
// context cancellation is a clean stop; any other error is a device fault.
type Recorder interface {
	Record(ctx context.Context, path string) error
}

// Status is the externally visible capture state.
type Status struct {
	State     session.State `json:"state"`
	SessionID string        `json:"session_id,omitempty"`
	Filename  string        `json:"filename,omitempty"`
	Duration  float64       `json:"duration_seconds,omitempty"`
}

// Manager runs the single capture session and publishes its lifecycle over
// the bus.
type Manager struct {
	rec       Recorder
	bus       *bus.Bus
	artifacts *store.Artifacts
	log       *logrus.Logger

	mu        sync.Mutex
	state     session.State
	sessionID string
	path      string
	started   time.Time
	cancel    context.CancelFunc
	done      chan struct{}
}

// NewManager builds a capture manager in the Idle state.
func NewManager(rec Recorder, b *bus.Bus, artifacts *store.Artifacts, log *logrus.Logger) *Manager {
	return &Manager{
		rec:       rec,
		bus:       b,
		artifacts: artifacts,
		log:       log,
		state:     session.Idle,
	}
}

// Start begins a new recording session. Exactly one concurrent caller wins;
// the rest get session.ErrAlreadyActive.
func (m *Manager) Start() (Status, error) {
	m.mu.Lock()
	if m.state.Busy() {
		st := m.statusLocked()
		m.mu.Unlock()
		return st, session.ErrAlreadyActive
	}
	m.transitionLocked(session.Starting)

	id := uuid.NewString()
	path := m.artifacts.NewRecordingPath(time.Now())
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})

	m.sessionID = id
	m.path = path
	m.started = time.Now()
	m.cancel = cancel
	m.done = done
	m.transitionLocked(session.Active)
	st := m.statusLocked()
	m.mu.Unlock()

	m.bus.Publish(bus.TypeRecordingStarted, bus.RecordingInfo{
		Component: bus.ComponentCapture,
		SessionID: id,
		Filename:  filepath.Base(path),
		Timestamp: bus.NowTS(),
	})

	go m.run(ctx, id, path, done)
	return st, nil
}

// run drives the recorder until it stops, then reconciles the session state.
func (m *Manager) run(ctx context.Context, id, path string, done chan struct{}) {
	defer close(done)

	err := m.rec.Record(ctx, path)
	if err != nil && !errors.Is(err, context.Canceled) && ctx.Err() == nil {
		// Device fault while active. Errored is transient: the failure is
		// broadcast and the session returns to Idle so a retry can start.
		m.log.WithError(err).WithField("session", id).Error("capture: recorder failed")

		m.mu.Lock()
		if m.sessionID == id {
			if m.cancel != nil {
				m.cancel()
			}
			m.transitionLocked(session.Errored)
			m.clearLocked()
			m.transitionLocked(session.Idle)
		}
		m.mu.Unlock()

		m.bus.Publish(bus.TypeSessionError, bus.SessionError{
			Component: bus.ComponentCapture,
			Message:   fmt.Errorf("%w: %v", session.ErrResourceUnavailable, err).Error(),
			SessionID: id,
		})
	}
}

// Stop ends the active session. Returns session.ErrNotActive unless a
// recording is Active, so a Stop racing another Stop fails fast rather than
// double-publishing the teardown.
func (m *Manager) Stop() (Status, error) {
	m.mu.Lock()
	if m.state != session.Active {
		st := m.statusLocked()
		m.mu.Unlock()
		return st, session.ErrNotActive
	}
	m.transitionLocked(session.Stopping)
	id, path, started := m.sessionID, m.path, m.started
	cancel, done := m.cancel, m.done
	m.mu.Unlock()

	cancel()
	select {
	case <-done:
	case <-time.After(stopGrace):
		m.log.WithField("session", id).Warn("capture: recorder did not stop in time")
	}

	duration := time.Since(started).Seconds()

	m.mu.Lock()
	m.clearLocked()
	m.transitionLocked(session.Idle)
	m.mu.Unlock()

	m.bus.Publish(bus.TypeRecordingStopped, bus.RecordingInfo{
		Component: bus.ComponentCapture,
		SessionID: id,
		Filename:  filepath.Base(path),
		Timestamp: bus.NowTS(),
	})

	return Status{State: session.Idle, SessionID: id, Filename: filepath.Base(path), Duration: duration}, nil
}

// Status reports the current session without side effects.
func (m *Manager) Status() Status {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.statusLocked()
}

func (m *Manager) statusLocked() Status {
	st := Status{State: m.state, SessionID: m.sessionID}
	if m.path != "" {
		st.Filename = filepath.Base(m.path)
	}
	if m.state.Busy() && !m.started.IsZero() {
		st.Duration = time.Since(m.started).Seconds()
	}
	return st
}

func (m *Manager) clearLocked() {
	m.sessionID = ""
	m.path = ""
	m.started = time.Time{}
	m.cancel = nil
	m.done = nil
}

// transitionLocked updates the state and broadcasts the change. Caller holds
// m.mu; the bus never blocks, so publishing under the lock is safe.
func (m *Manager) transitionLocked(to session.State) {
	from := m.state
	m.state = to
	if from == to {
		return
	}
	m.bus.Publish(bus.TypeSessionState, bus.StateChange{
		Component: bus.ComponentCapture,
		From:      from.String(),
		To:        to.String(),
	})
}

// CommandRecorder shells out to a frame grabber (ffmpeg, wf-recorder) whose
// stdout is the encoded stream.
type CommandRecorder struct {
	Name string
	Args []string
}

// NewCommandRecorder builds a recorder from a command vector, nil when empty.
func NewCommandRecorder(cmd []string) *CommandRecorder {
	if len(cmd) == 0 {
		return nil
	}
	return &CommandRecorder{Name: cmd[0], Args: cmd[1:]}
}

// Record runs the grab command and copies its stdout to path until ctx is
// cancelled.
func (r *CommandRecorder) Record(ctx context.Context, path string) error {
	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("create recording file: %w", err)
	}
	defer f.Close()

	cmd := exec.CommandContext(ctx, r.Name, r.Args...)
	stdout, err := cmd.StdoutPipe()
	if err != nil {
		return fmt.Errorf("stdout pipe: %w", err)
	}
	if err := cmd.Start(); err != nil {
		return fmt.Errorf("start %s: %w", r.Name, err)
	}

	_, copyErr := io.Copy(f, stdout)
	waitErr := cmd.Wait()

	if ctx.Err() != nil {
		return nil
	}
	if copyErr != nil {
		return copyErr
	}
	return waitErr
}

// SyntheticRecorder produces a placeholder stream so the full session
// lifecycle works on machines without a display grabber.
type SyntheticRecorder struct {
	FPS int
}

// Record writes one small chunk per frame interval until ctx is cancelled.
func (r *SyntheticRecorder) Record(ctx context.Context, path string) error {
	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("create recording file: %w", err)
	}
	defer f.Close()

	fps := r.FPS
	if fps < 1 {
		fps = 3
	}
	t := time.NewTicker(time.Second / time.Duration(fps))
	defer t.Stop()

	frame := make([]byte, 256)
	for {
		select {
		case <-ctx.Done():
			return nil
		case <-t.C:
			if _, err := f.Write(frame); err != nil {
				return err
			}
		}
	}
}
