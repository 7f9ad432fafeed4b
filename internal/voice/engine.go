package voice

import (
	"bytes"
	"context"
	"encoding/binary"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"strings"
)

// Emitter receives transcription output as it becomes available. A partial
// replaces the current hypothesis; a word is a single detected token; a final
// closes the segment.
type Emitter interface {
	Partial(text string)
	Word(word string)
	Final(text string)
}

// Engine transcribes one completed speech segment, streaming results through
// the emitter. Implementations must honor ctx.
type Engine interface {
	Transcribe(ctx context.Context, pcm []int16, sampleRate int, emit Emitter) error
}

// CommandEngine shells out to a speech-to-text tool (whisper-cli style): the
// segment is written as a WAV file whose path is appended to the command, and
// stdout is the transcribed text.
type CommandEngine struct {
	Command string
	Args    []string
}

// NewCommandEngine builds an engine from a command vector, nil when empty.
func NewCommandEngine(cmd []string) *CommandEngine {
	if len(cmd) == 0 {
		return nil
	}
	return &CommandEngine{Command: cmd[0], Args: cmd[1:]}
}

func (e *CommandEngine) Transcribe(ctx context.Context, pcm []int16, sampleRate int, emit Emitter) error {
	dir, err := os.MkdirTemp("", "voice-segment-")
	if err != nil {
		return err
	}
	defer os.RemoveAll(dir)

	wavPath := filepath.Join(dir, "segment.wav")
	if err := writeWAV(wavPath, pcm, sampleRate); err != nil {
		return fmt.Errorf("write segment: %w", err)
	}

	args := append(append([]string{}, e.Args...), wavPath)
	out, err := exec.CommandContext(ctx, e.Command, args...).Output()
	if err != nil {
		return fmt.Errorf("%s: %w", e.Command, err)
	}

	text := strings.TrimSpace(string(out))
	if text == "" {
		return nil
	}
	for _, w := range strings.Fields(text) {
		emit.Word(w)
	}
	emit.Final(text)
	return nil
}

// writeWAV writes mono 16-bit PCM as a minimal RIFF/WAVE file.
func writeWAV(path string, pcm []int16, sampleRate int) error {
	dataLen := len(pcm) * 2

	var buf bytes.Buffer
	buf.WriteString("RIFF")
	binary.Write(&buf, binary.LittleEndian, uint32(36+dataLen))
	buf.WriteString("WAVEfmt ")
	binary.Write(&buf, binary.LittleEndian, uint32(16))
	binary.Write(&buf, binary.LittleEndian, uint16(1)) // PCM
	binary.Write(&buf, binary.LittleEndian, uint16(1)) // mono
	binary.Write(&buf, binary.LittleEndian, uint32(sampleRate))
	binary.Write(&buf, binary.LittleEndian, uint32(sampleRate*2))
	binary.Write(&buf, binary.LittleEndian, uint16(2))
	binary.Write(&buf, binary.LittleEndian, uint16(16))
	buf.WriteString("data")
	binary.Write(&buf, binary.LittleEndian, uint32(dataLen))
	for _, s := range pcm {
		binary.Write(&buf, binary.LittleEndian, s)
	}

	return os.WriteFile(path, buf.Bytes(), 0o644)
}
