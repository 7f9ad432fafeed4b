// Package app wires together the HTTP server, the event bus, and the device
// sessions (screen capture, voice transcription, workflow synthesis, activity
// sampling). It owns the daemon's lifecycle.
package app

import (
	"context"
	"fmt"
	"net"
	"net/http"
	"os"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/jugogpt/tracker-engine/internal/analysis"
	"github.com/jugogpt/tracker-engine/internal/bus"
	"github.com/jugogpt/tracker-engine/internal/capture"
	"github.com/jugogpt/tracker-engine/internal/config"
	"github.com/jugogpt/tracker-engine/internal/llm"
	"github.com/jugogpt/tracker-engine/internal/sampler"
	"github.com/jugogpt/tracker-engine/internal/store"
	"github.com/jugogpt/tracker-engine/internal/voice"
	"github.com/jugogpt/tracker-engine/internal/workflow"
	"github.com/jugogpt/tracker-engine/internal/ws"
)

// Options holds everything the App needs from the caller.
type Options struct {
	Logger *logrus.Logger
	Cfg    config.Config
	Bind   string
}

// App is the top-level daemon process.
type App struct {
	log    *logrus.Logger
	cfg    config.Config
	bind   string
	server *http.Server

	startedAt time.Time

	bus       *bus.Bus
	hub       *ws.Hub
	artifacts *store.Artifacts
	usage     *store.UsageStore
	capture   *capture.Manager
	shooter   capture.Shooter
	voice     *voice.Session
	synth     *workflow.Synthesizer
	analyzer  *analysis.Analyzer
	sampler   *sampler.Sampler
}

// New builds the full daemon from configuration. API keys come from the
// OPENAI_API_KEY and ANTHROPIC_API_KEY environment variables; missing keys
// degrade the AI features without blocking the rest of the daemon.
func New(opts Options) (*App, error) {
	cfg := opts.Cfg
	log := opts.Logger

	artifacts, err := store.NewArtifacts(cfg.Data.Root)
	if err != nil {
		return nil, fmt.Errorf("artifact store: %w", err)
	}
	usage, err := store.OpenUsage(cfg.Data.Root)
	if err != nil {
		return nil, fmt.Errorf("usage store: %w", err)
	}

	b := bus.New(log)
	b.SetUsageSource(usage)

	a := &App{
		log:       log,
		cfg:       cfg,
		bind:      opts.Bind,
		startedAt: time.Now(),
		bus:       b,
		hub:       ws.NewHub(b, log),
		artifacts: artifacts,
		usage:     usage,
	}

	// Screen capture: configured grabber, or a synthetic stream so the
	// session lifecycle works on headless machines.
	var rec capture.Recorder = &capture.SyntheticRecorder{FPS: cfg.Capture.FPS}
	if cr := capture.NewCommandRecorder(cfg.Capture.GrabCommand); cr != nil {
		rec = cr
	}
	a.capture = capture.NewManager(rec, b, artifacts, log)

	a.shooter = capture.SyntheticShooter{}
	if cs := capture.NewCommandShooter(cfg.Capture.ShotCommand); cs != nil {
		a.shooter = cs
	}

	// Workflow synthesis rides on the OpenAI completer; without a key the
	// queue still accepts work and every run fails fast as upstream error.
	var completer llm.Completer
	if key := os.Getenv("OPENAI_API_KEY"); key != "" {
		completer, err = llm.NewOpenAI(key, cfg.LLM.OpenAIModels, cfg.LLM.OpenAIMaxTokens)
		if err != nil {
			return nil, fmt.Errorf("openai client: %w", err)
		}
	} else {
		log.Warn("OPENAI_API_KEY not set, workflow generation disabled")
		completer = llm.Disabled("OPENAI_API_KEY not set")
	}
	a.synth = workflow.NewSynthesizer(workflow.Options{
		Completer:   completer,
		Bus:         b,
		Artifacts:   artifacts,
		Log:         log,
		QueueSize:   cfg.Workflow.QueueSize,
		Timeout:     cfg.LLMTimeout(),
		WaitCeiling: cfg.WorkflowWaitCeiling(),
	})

	// Recording analysis uses the Claude vision API.
	var vision llm.VisionCompleter
	if key := os.Getenv("ANTHROPIC_API_KEY"); key != "" {
		vision, err = llm.NewClaude(key, cfg.LLM.AnthropicModel, cfg.LLM.AnthropicBaseURL)
		if err != nil {
			return nil, fmt.Errorf("claude client: %w", err)
		}
	} else {
		log.Warn("ANTHROPIC_API_KEY not set, recording analysis disabled")
		vision = llm.DisabledVision("ANTHROPIC_API_KEY not set")
	}
	a.analyzer = analysis.NewAnalyzer(analysis.Options{
		Vision:    vision,
		Frames:    analysis.NewFFmpegExtractor(""),
		Bus:       b,
		Artifacts: artifacts,
		Generator: a.synth,
		Log:       log,
		Timeout:   2 * cfg.LLMTimeout(),
	})

	// Voice: configured PCM source or the synthetic tone generator.
	var src voice.Source = &voice.SyntheticSource{SampleRate: cfg.Voice.SampleRate}
	if cs := voice.NewCommandSource(cfg.Voice.RecordCommand, cfg.Voice.DeviceName); cs != nil {
		src = cs
	}
	var engine voice.Engine
	if ce := voice.NewCommandEngine(cfg.Voice.STTCommand); ce != nil {
		engine = ce
	}
	a.voice = voice.NewSession(voice.Options{
		Source:    src,
		Engine:    engine,
		Bus:       b,
		Artifacts: artifacts,
		Generator: a.synth,
		Log:       log,
		Config:    cfg.Voice,
	})

	if probe := sampler.NewCommandProber(cfg.Sampler.ProbeCommand); probe != nil {
		a.sampler = sampler.New(probe, usage,
			time.Duration(cfg.Sampler.IntervalSeconds)*time.Second, log)
	} else {
		log.Warn("sampler probe command empty, activity tracking disabled")
	}

	return a, nil
}

// Run starts the HTTP server and the background loops. It blocks until the
// context is cancelled or the server returns an error.
func (a *App) Run(ctx context.Context) error {
	bind := a.bind
	if bind == "" {
		bind = a.cfg.Server.Bind
	}

	mux := http.NewServeMux()
	mux.HandleFunc("/healthz", a.handleHealthz)
	mux.HandleFunc("/api/status", a.handleStatus)
	mux.HandleFunc("/api/version", a.handleVersion)

	mux.HandleFunc("/api/recording/start", a.handleRecordingStart)
	mux.HandleFunc("/api/recording/stop", a.handleRecordingStop)
	mux.HandleFunc("/api/recording/status", a.handleRecordingStatus)
	mux.HandleFunc("/api/recordings/list", a.handleRecordingsList)

	mux.HandleFunc("/api/screenshot/capture", a.handleScreenshot)
	mux.HandleFunc("/api/screenshots/list", a.handleScreenshotsList)

	mux.HandleFunc("/api/activity/status", a.handleActivityStatus)
	mux.HandleFunc("/api/activity/usage", a.handleActivityUsage)
	mux.HandleFunc("/api/activity/chart-data", a.handleActivityChart)

	mux.HandleFunc("/api/voice/start", a.handleVoiceStart)
	mux.HandleFunc("/api/voice/stop", a.handleVoiceStop)
	mux.HandleFunc("/api/voice/status", a.handleVoiceStatus)
	mux.HandleFunc("/api/voice/message", a.handleVoiceMessage)
	mux.HandleFunc("/api/voice/transcripts", a.handleTranscriptsList)

	mux.HandleFunc("/api/workflow/generate", a.handleWorkflowGenerate)
	mux.HandleFunc("/api/workflows/list", a.handleWorkflowsList)

	mux.HandleFunc("/api/analysis/quick", a.handleAnalysisQuick)
	mux.HandleFunc("/api/analysis/detailed", a.handleAnalysisDetailed)
	mux.HandleFunc("/api/analysis/upload", a.handleAnalysisUpload)

	mux.HandleFunc("/api/files/recordings/", a.handleRecordingFile)
	mux.HandleFunc("/api/files/screenshots/", a.handleScreenshotFile)

	mux.HandleFunc("/api/system/folders", a.handleFolders)
	mux.HandleFunc("/api/system/open-folder", a.handleOpenFolder)

	mux.Handle("/ws", a.hub.Handler())

	a.server = &http.Server{
		Addr:              bind,
		Handler:           mux,
		ReadHeaderTimeout: 5 * time.Second,
	}

	ln, err := net.Listen("tcp", bind)
	if err != nil {
		return err
	}

	a.log.WithField("bind", bind).Info("listening")

	go a.synth.Run(ctx)
	go a.heartbeatLoop(ctx)
	if a.sampler != nil {
		go a.sampler.Run(ctx)
	}

	go func() {
		<-ctx.Done()
		a.log.Info("shutdown requested")

		// Release devices before the listener goes away.
		if _, err := a.voice.Stop(); err == nil {
			a.log.Info("voice session stopped on shutdown")
		}
		if _, err := a.capture.Stop(); err == nil {
			a.log.Info("capture session stopped on shutdown")
		}
		if err := a.usage.Close(); err != nil {
			a.log.WithError(err).Warn("usage store close failed")
		}

		shutCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = a.server.Shutdown(shutCtx)
	}()

	err = a.server.Serve(ln)
	if err == http.ErrServerClosed {
		return nil
	}
	return err
}

// heartbeatLoop publishes a periodic heartbeat so clients can detect
// connectivity and track uptime without polling.
func (a *App) heartbeatLoop(ctx context.Context) {
	t := time.NewTicker(10 * time.Second)
	defer t.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-t.C:
			a.bus.Publish(bus.TypeHeartbeat, bus.Heartbeat{
				State:         a.daemonState(),
				UptimeSeconds: int64(time.Since(a.startedAt).Seconds()),
			})
		}
	}
}

// daemonState summarizes the busiest session for the heartbeat.
func (a *App) daemonState() string {
	if st := a.voice.Status(); st.State.Busy() {
		return st.State.String()
	}
	if st := a.capture.Status(); st.State.Busy() {
		return "RECORDING"
	}
	if st := a.synth.State(); st.Busy() {
		return "GENERATING"
	}
	return "IDLE"
}
