// Package bus is the in-process event hub of trackerd. Producers (the
// capture session, the transcription session, the workflow synthesizer, and
// the daemon itself) publish typed events; the bus assigns each one a
// monotonic sequence number, maintains a snapshot of every session's current
// state for late subscribers, and fans events out to per-subscriber bounded
// queues without ever blocking a producer on a slow consumer.
package bus

import "time"

// Type identifies the kind of event on the stream.
type Type string

const (
	TypeSnapshot           Type = "snapshot"
	TypeHeartbeat          Type = "heartbeat"
	TypeSessionState       Type = "session_state"
	TypeSessionError       Type = "session_error"
	TypeRecordingStarted   Type = "recording_started"
	TypeRecordingStopped   Type = "recording_stopped"
	TypeScreenshotCaptured Type = "screenshot_captured"
	TypePartialTranscript  Type = "partial_transcript"
	TypeWordDetected       Type = "word_detected"
	TypeFinalTranscript    Type = "final_transcript"
	TypeAudioLevel         Type = "audio_level"
	TypeDeviceInfo         Type = "device_info"
	TypeWorkflowProgress   Type = "workflow_progress"
	TypeWorkflowGenerated  Type = "workflow_generated"
	TypeAnalysisComplete   Type = "analysis_complete"
	TypeLog                Type = "log"
)

// Advisory reports whether an event carries a best-effort telemetry signal.
// Advisory events may be dropped oldest-first under backpressure; everything
// else is a state transition that must reach the subscriber or kill it.
func (t Type) Advisory() bool {
	return t == TypeAudioLevel || t == TypeHeartbeat || t == TypeLog
}

// Event is the envelope delivered to every subscriber. Seq values are
// assigned by the bus at publish time, strictly increasing, never reused.
type Event struct {
	Type Type   `json:"type"`
	Data any    `json:"data"`
	Seq  uint64 `json:"seq"`
	TS   string `json:"ts"`
}

// NowTS returns the current UTC time as an RFC 3339 nano string, the
// timestamp format used across all events.
func NowTS() string {
	return time.Now().UTC().Format(time.RFC3339Nano)
}

// Component names used in session_state events and snapshots.
const (
	ComponentCapture  = "capture"
	ComponentVoice    = "voice"
	ComponentWorkflow = "workflow"
	ComponentDaemon   = "trackerd"
)

// StateChange is the payload of a session_state event.
type StateChange struct {
	Component string `json:"component"`
	From      string `json:"from"`
	To        string `json:"to"`
}

// SessionError is the payload of a session_error event. It carries enough
// context to unblock a retry from the client side.
type SessionError struct {
	Component string `json:"component"`
	Message   string `json:"message"`
	SessionID string `json:"session_id,omitempty"`
}

// RecordingInfo is the payload of recording_started / recording_stopped.
type RecordingInfo struct {
	Component string `json:"component"`
	SessionID string `json:"session_id"`
	Filename  string `json:"filename,omitempty"`
	Timestamp string `json:"timestamp"`
}

// ScreenshotInfo is the payload of screenshot_captured.
type ScreenshotInfo struct {
	Filename string `json:"filename"`
	Path     string `json:"path"`
}

// TranscriptText is the payload of partial_transcript and final_transcript.
// A partial replaces the currently displayed hypothesis; a final clears it
// and appends to the session's accumulated transcript.
type TranscriptText struct {
	Text string `json:"text"`
}

// WordDetected is the payload of word_detected for engines that yield
// token-by-token output.
type WordDetected struct {
	Word string `json:"word"`
}

// AudioLevel is the normalized input amplitude in [0, 1]. Best-effort.
type AudioLevel struct {
	Level float64 `json:"level"`
}

// DeviceInfo carries the resolved audio input device name.
type DeviceInfo struct {
	DeviceName string `json:"device_name"`
}

// WorkflowProgress reports a coarse stage boundary of a synthesis run.
// Stage is one of starting, processing, formatting, completed, error.
type WorkflowProgress struct {
	Stage   string `json:"stage"`
	Percent int    `json:"percent"`
	Message string `json:"message"`
}

// Heartbeat is sent periodically so clients can detect connectivity.
type Heartbeat struct {
	State         string `json:"state"`
	UptimeSeconds int64  `json:"uptime_seconds"`
}

// LogLine carries a human-readable daemon log message.
type LogLine struct {
	Component string `json:"component"`
	Level     string `json:"level"`
	Message   string `json:"message"`
}
