// Package analysis runs AI review of recorded sessions: a quick summary or a
// detailed pass whose output also seeds workflow synthesis. Analysis is
// asynchronous; the HTTP layer acknowledges the request and the result
// arrives as an analysis_complete event.
package analysis

import (
	"context"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"sort"
	"sync"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/jugogpt/tracker-engine/internal/bus"
	"github.com/jugogpt/tracker-engine/internal/llm"
	"github.com/jugogpt/tracker-engine/internal/session"
	"github.com/jugogpt/tracker-engine/internal/store"
)

const (
	quickFrameCount    = 3
	detailedFrameCount = 8

	quickPrompt = "These frames are sampled from a screen recording. Summarize in a few sentences what the user was doing."

	detailedPrompt = "These frames are sampled from a screen recording of a user performing a task. Describe the task step by step, in order, naming the applications involved and the actions taken in each. Be precise enough that the steps could be replayed."
)

// Result is the payload of an analysis_complete event.
type Result struct {
	Kind     string `json:"kind"`
	Filename string `json:"filename"`
	Analysis string `json:"analysis,omitempty"`
	Success  bool   `json:"success"`
	Error    string `json:"error,omitempty"`
}

// FrameExtractor samples frames from a recording as JPEG bytes.
type FrameExtractor interface {
	ExtractFrames(ctx context.Context, videoPath string, count int) ([][]byte, error)
}

// Generator receives detailed analysis text for workflow synthesis.
// Satisfied by *workflow.Synthesizer.
type Generator interface {
	Generate(transcript string) error
}

// Options configures an Analyzer.
type Options struct {
	Vision    llm.VisionCompleter
	Frames    FrameExtractor
	Bus       *bus.Bus
	Artifacts *store.Artifacts
	Generator Generator
	Log       *logrus.Logger
	Timeout   time.Duration
}

/// Analyzer serializes analysis runs: one at a time, results over the bus.
type Analyzer struct {
	vision    llm.VisionCompleter
	frames    FrameExtractor
	bus       *bus.Bus
	artifacts *store.Artifacts
	gen       Generator
	log       *logrus.Logger
	timeout   time.Duration

	mu      sync.Mutex
	running bool
}

// NewAnalyzer builds an analyzer.
func NewAnalyzer(opts Options) *Analyzer {
	if opts.Timeout <= 0 {
		opts.Timeout = 60 * time.Second
	}
	return &Analyzer{
		vision:    opts.Vision,
		frames:    opts.Frames,
		bus:       opts.Bus,
		artifacts: opts.Artifacts,
		gen:       opts.Generator,
		log:       opts.Log,
		timeout:   opts.Timeout,
	}
}

// Quick starts a short summary of the named recording. Returns immediately;
// session.ErrBusy when an analysis is already running.
func (a *Analyzer) Quick(filename string) error {
	return a.start("quick", filename, quickFrameCount, quickPrompt, false)
}

// Detailed starts an in-depth analysis whose output also feeds workflow
// synthesis.
func (a *Analyzer) Detailed(filename string) error {
	return a.start("detailed", filename, detailedFrameCount, detailedPrompt, true)
}

// Running reports whether an analysis is in flight.
func (a *Analyzer) Running() bool {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.running
}

func (a *Analyzer) start(kind, filename string, frameCount int, prompt string, synthesize bool) error {
	path, err := a.artifacts.ResolveRecording(filename)
	if err != nil {
		return fmt.Errorf("%w: %v", session.ErrValidation, err)
	}

	a.mu.Lock()
	if a.running {
		a.mu.Unlock()
		return fmt.Errorf("%w: analysis already running", session.ErrBusy)
	}
	a.running = true
	a.mu.Unlock()

	go a.analyze(kind, filename, path, frameCount, prompt, synthesize)
	return nil
}

func (a *Analyzer) analyze(kind, filename, path string, frameCount int, prompt string, synthesize bool) {
	defer func() {
		a.mu.Lock()
		a.running = false
		a.mu.Unlock()
	}()

	ctx, cancel := context.WithTimeout(context.Background(), a.timeout)
	defer cancel()

	frames, err := a.frames.ExtractFrames(ctx, path, frameCount)
	if err != nil {
		a.fail(kind, filename, fmt.Errorf("extract frames: %w", err))
		return
	}

	text, err := a.vision.CompleteVision(ctx, prompt, frames)
	if err != nil {
		a.fail(kind, filename, fmt.Errorf("%w: %v", session.ErrUpstream, err))
		return
	}

	a.bus.Publish(bus.TypeAnalysisComplete, Result{
		Kind:     kind,
		Filename: filename,
		Analysis: text,
		Success:  true,
	})

	if synthesize && a.gen != nil {
		if err := a.gen.Generate(text); err != nil {
			a.log.WithError(err).Warn("analysis: workflow generation not queued")
		}
	}
}

func (a *Analyzer) fail(kind, filename string, err error) {
	a.log.WithError(err).WithField("recording", filename).Error("analysis failed")
	a.bus.Publish(bus.TypeAnalysisComplete, Result{
		Kind:     kind,
		Filename: filename,
		Success:  false,
		Error:    err.Error(),
	})
}

// FFmpegExtractor samples frames with an ffmpeg subprocess.
type FFmpegExtractor struct {
	Binary string
}

// NewFFmpegExtractor builds an extractor; binary defaults to "ffmpeg".
func NewFFmpegExtractor(binary string) *FFmpegExtractor {
	if binary == "" {
		binary = "ffmpeg"
	}
	return &FFmpegExtractor{Binary: binary}
}

// ExtractFrames decodes the video and keeps up to count evenly spread frames.
func (e *FFmpegExtractor) ExtractFrames(ctx context.Context, videoPath string, count int) ([][]byte, error) {
	dir, err := os.MkdirTemp("", "analysis-frames-")
	if err != nil {
		return nil, err
	}
	defer os.RemoveAll(dir)

	pattern := filepath.Join(dir, "frame_%04d.jpg")
	cmd := exec.CommandContext(ctx, e.Binary,
		"-hide_banner", "-loglevel", "error",
		"-i", videoPath,
		"-vf", "fps=1",
		"-frames:v", fmt.Sprint(count),
		"-q:v", "4",
		pattern,
	)
	if out, err := cmd.CombinedOutput(); err != nil {
		return nil, fmt.Errorf("%s: %w: %s", e.Binary, err, out)
	}

	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, err
	}
	names := make([]string, 0, len(entries))
	for _, e := range entries {
		if !e.IsDir() {
			names = append(names, e.Name())
		}
	}
	sort.Strings(names)

	frames := make([][]byte, 0, len(names))
	for _, name := range names {
		b, err := os.ReadFile(filepath.Join(dir, name))
		if err != nil {
			return nil, err
		}
		frames = append(frames, b)
	}
	if len(frames) == 0 {
		return nil, fmt.Errorf("no frames extracted from %s", filepath.Base(videoPath))
	}
	return frames, nil
}
