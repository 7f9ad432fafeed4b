// Package session defines the lifecycle states and error taxonomy shared by
// every device-owning session in trackerd (screen capture, voice
// transcription, workflow synthesis). Each session package owns its own
// transition rules; this package only provides the vocabulary.
package session

import "errors"

// State is the lifecycle state of a session.
type State int

const (
	Idle State = iota
	Starting
	Active
	Listening
	Transcribing
	Finalizing
	Stopping
	Errored
)

// String returns the uppercase wire form used in session_state events and
// status responses.
func (s State) String() string {
	switch s {
	case Idle:
		return "IDLE"
	case Starting:
		return "STARTING"
	case Active:
		return "ACTIVE"
	case Listening:
		return "LISTENING"
	case Transcribing:
		return "TRANSCRIBING"
	case Finalizing:
		return "FINALIZING"
	case Stopping:
		return "STOPPING"
	case Errored:
		return "ERROR"
	default:
		return "UNKNOWN"
	}
}

// MarshalJSON encodes the state as its string form.
func (s State) MarshalJSON() ([]byte, error) {
	return []byte(`"` + s.String() + `"`), nil
}

// Busy reports whether the session currently holds (or is acquiring or
// releasing) its device. At most one session per device may be busy.
func (s State) Busy() bool {
	switch s {
	case Starting, Active, Listening, Transcribing, Finalizing, Stopping:
		return true
	}
	return false
}

// Error taxonomy. Lifecycle and validation errors are returned synchronously
// to the command that triggered them; device and upstream errors additionally
// move the owning session to Errored and are broadcast as session events.
var (
	// ErrValidation indicates a malformed command.
	ErrValidation = errors.New("invalid request")

	// ErrAlreadyActive is returned by Start when a session already holds
	// the device.
	ErrAlreadyActive = errors.New("session already active")

	// ErrNotActive is returned by Stop when there is nothing to stop.
	ErrNotActive = errors.New("no active session")

	// ErrResourceUnavailable indicates the device is busy or missing.
	ErrResourceUnavailable = errors.New("resource unavailable")

	// ErrUpstream indicates an AI collaborator timeout or failure.
	ErrUpstream = errors.New("upstream service error")

	// ErrBusy is returned when the workflow queue cannot accept more work.
	ErrBusy = errors.New("busy")

	// ErrInternal indicates an unexpected fault.
	ErrInternal = errors.New("internal error")
)
