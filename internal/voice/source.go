// Package voice owns the microphone: it streams PCM frames from an audio
// source, segments speech with a simple energy VAD, hands completed segments
// to a transcription engine, and accumulates the finals into one session
// transcript that feeds workflow synthesis.
package voice

import (
	"context"
	"encoding/binary"
	"errors"
	"fmt"
	"io"
	"math"
	"os/exec"
	"time"
)

// Source yields signed 16-bit mono PCM frames. Open must be called before
// ReadFrame; Close releases the device.
type Source interface {
	Open(ctx context.Context) error

	// Name resolves the human-readable input device name. A failed lookup
	// is non-fatal; callers degrade by omitting device info.
	Name() (string, error)

	// ReadFrame fills buf and returns the number of samples read.
	ReadFrame(buf []int16) (int, error)

	Close() error
}

// CommandSource reads PCM from the stdout of a capture subprocess, arecord
// style: raw S16LE mono at the configured rate.
type CommandSource struct {
	Command    string
	Args       []string
	DeviceName string

	cmd    *exec.Cmd
	stdout io.ReadCloser
	raw    []byte
}

// NewCommandSource builds a source from a command vector, nil when empty.
func NewCommandSource(cmd []string, deviceName string) *CommandSource {
	if len(cmd) == 0 {
		return nil
	}
	return &CommandSource{Command: cmd[0], Args: cmd[1:], DeviceName: deviceName}
}

func (s *CommandSource) Open(ctx context.Context) error {
	cmd := exec.CommandContext(ctx, s.Command, s.Args...)
	stdout, err := cmd.StdoutPipe()
	if err != nil {
		return fmt.Errorf("stdout pipe: %w", err)
	}
	if err := cmd.Start(); err != nil {
		return fmt.Errorf("start %s: %w", s.Command, err)
	}
	s.cmd = cmd
	s.stdout = stdout
	return nil
}

func (s *CommandSource) Name() (string, error) {
	if s.DeviceName == "" {
		return "", errors.New("device name not configured")
	}
	return s.DeviceName, nil
}

func (s *CommandSource) ReadFrame(buf []int16) (int, error) {
	need := len(buf) * 2
	if cap(s.raw) < need {
		s.raw = make([]byte, need)
	}
	raw := s.raw[:need]

	n, err := io.ReadFull(s.stdout, raw)
	samples := n / 2
	for i := 0; i < samples; i++ {
		buf[i] = int16(binary.LittleEndian.Uint16(raw[i*2:]))
	}
	if err != nil && samples == 0 {
		return 0, err
	}
	return samples, nil
}

func (s *CommandSource) Close() error {
	if s.cmd == nil {
		return nil
	}
	s.stdout.Close()
	err := s.cmd.Wait()
	s.cmd = nil
	if err != nil && !errors.Is(err, context.Canceled) {
		// The capture process is killed on close; its exit code is noise.
		return nil
	}
	return nil
}

// SyntheticSource generates alternating tone bursts and silence in real time
// so the full session pipeline runs without audio hardware.
type SyntheticSource struct {
	SampleRate int

	pos     int
	started time.Time
}

func (s *SyntheticSource) Open(_ context.Context) error {
	if s.SampleRate <= 0 {
		s.SampleRate = 16000
	}
	s.started = time.Now()
	return nil
}

func (s *SyntheticSource) Name() (string, error) {
	return "synthetic tone generator", nil
}

// ReadFrame paces output to real time and alternates one second of tone with
// one second of silence, which exercises the VAD segmenter end to end.
func (s *SyntheticSource) ReadFrame(buf []int16) (int, error) {
	// Sleep for the frame duration so downstream throttling behaves.
	time.Sleep(time.Duration(len(buf)) * time.Second / time.Duration(s.SampleRate))

	for i := range buf {
		sec := (s.pos + i) / s.SampleRate
		if sec%2 == 0 {
			phase := float64(s.pos+i) * 2 * math.Pi * 440 / float64(s.SampleRate)
			buf[i] = int16(math.Sin(phase) * 8000)
		} else {
			buf[i] = 0
		}
	}
	s.pos += len(buf)
	return len(buf), nil
}

func (s *SyntheticSource) Close() error { return nil }

// rmsLevel returns the normalized root-mean-square amplitude of a frame in
// [0, 1].
func rmsLevel(samples []int16) float64 {
	if len(samples) == 0 {
		return 0
	}
	var sum float64
	for _, s := range samples {
		v := float64(s)
		sum += v * v
	}
	return math.Sqrt(sum/float64(len(samples))) / 32768
}
