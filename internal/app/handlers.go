package app

import (
	"encoding/json"
	"errors"
	"net/http"
	"os"
	"os/exec"
	"strings"
	"time"

	"github.com/jugogpt/tracker-engine/internal/capture"
	"github.com/jugogpt/tracker-engine/internal/session"
	"github.com/jugogpt/tracker-engine/internal/store"
)

// ---------------------------------------------------------------------------
// Core handlers
// ---------------------------------------------------------------------------

func (a *App) handleHealthz(w http.ResponseWriter, _ *http.Request) {
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte("ok\n"))
}

func (a *App) handleStatus(w http.ResponseWriter, _ *http.Request) {
	resp := map[string]any{
		"name":           "tracker-engine",
		"version":        Version,
		"state":          a.daemonState(),
		"uptime_seconds": int64(time.Since(a.startedAt).Seconds()),
		"data_root":      a.cfg.Data.Root,
		"subscribers":    a.bus.Subscribers(),
		"sessions": map[string]any{
			"capture":  a.capture.Status(),
			"voice":    a.voice.Status(),
			"workflow": a.synth.State(),
		},
		"workflow_queue_depth": a.synth.QueueDepth(),
	}
	if a.sampler != nil {
		app, since := a.sampler.Current()
		resp["current_app"] = app
		if !since.IsZero() {
			resp["current_app_since"] = since.UTC().Format(time.RFC3339)
		}
	}
	writeJSON(w, resp)
}

func (a *App) handleVersion(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, map[string]any{
		"version":    Version,
		"go_version": GoVersion,
		"built_at":   BuiltAt,
	})
}

// ---------------------------------------------------------------------------
// Screen recording
// ---------------------------------------------------------------------------

func (a *App) handleRecordingStart(w http.ResponseWriter, r *http.Request) {
	if !requirePost(w, r) {
		return
	}
	st, err := a.capture.Start()
	if err != nil {
		sessionError(w, err)
		return
	}
	writeJSON(w, st)
}

func (a *App) handleRecordingStop(w http.ResponseWriter, r *http.Request) {
	if !requirePost(w, r) {
		return
	}
	st, err := a.capture.Stop()
	if err != nil {
		sessionError(w, err)
		return
	}
	writeJSON(w, st)
}

func (a *App) handleRecordingStatus(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, a.capture.Status())
}

func (a *App) handleRecordingsList(w http.ResponseWriter, _ *http.Request) {
	files, err := a.artifacts.ListRecordings()
	if err != nil {
		jsonError(w, err.Error(), http.StatusInternalServerError)
		return
	}
	writeJSON(w, map[string]any{"recordings": files})
}

// ---------------------------------------------------------------------------
// Screenshots
// ---------------------------------------------------------------------------

func (a *App) handleScreenshot(w http.ResponseWriter, r *http.Request) {
	if !requirePost(w, r) {
		return
	}
	info, err := capture.TakeScreenshot(r.Context(), a.shooter, a.bus, a.artifacts)
	if err != nil {
		jsonError(w, err.Error(), http.StatusServiceUnavailable)
		return
	}
	writeJSON(w, info)
}

func (a *App) handleScreenshotsList(w http.ResponseWriter, _ *http.Request) {
	files, err := a.artifacts.ListScreenshots()
	if err != nil {
		jsonError(w, err.Error(), http.StatusInternalServerError)
		return
	}
	writeJSON(w, map[string]any{"screenshots": files})
}

// ---------------------------------------------------------------------------
// Activity tracking
// ---------------------------------------------------------------------------

func (a *App) handleActivityStatus(w http.ResponseWriter, _ *http.Request) {
	resp := map[string]any{"enabled": a.sampler != nil}
	if a.sampler != nil {
		app, since := a.sampler.Current()
		resp["current_app"] = app
		if !since.IsZero() {
			resp["since"] = since.UTC().Format(time.RFC3339)
			resp["elapsed_seconds"] = int64(time.Since(since).Seconds())
		}
	}
	writeJSON(w, resp)
}

func (a *App) handleActivityUsage(w http.ResponseWriter, r *http.Request) {
	day := time.Time{}
	if q := r.URL.Query().Get("day"); q != "" {
		parsed, err := time.Parse("2006-01-02", q)
		if err != nil {
			jsonError(w, "day must be YYYY-MM-DD", http.StatusBadRequest)
			return
		}
		day = parsed
	}
	usage, err := a.usage.UsageForDay(r.Context(), day)
	if err != nil {
		jsonError(w, err.Error(), http.StatusInternalServerError)
		return
	}
	if usage == nil {
		usage = []store.AppUsage{}
	}
	writeJSON(w, map[string]any{"usage": usage})
}

func (a *App) handleActivityChart(w http.ResponseWriter, r *http.Request) {
	chart, err := a.usage.Chart(r.Context())
	if err != nil {
		jsonError(w, err.Error(), http.StatusInternalServerError)
		return
	}
	writeJSON(w, chart)
}

// ---------------------------------------------------------------------------
// Voice transcription
// ---------------------------------------------------------------------------

func (a *App) handleVoiceStart(w http.ResponseWriter, r *http.Request) {
	if !requirePost(w, r) {
		return
	}
	st, err := a.voice.Start()
	if err != nil {
		sessionError(w, err)
		return
	}
	writeJSON(w, st)
}

func (a *App) handleVoiceStop(w http.ResponseWriter, r *http.Request) {
	if !requirePost(w, r) {
		return
	}
	st, err := a.voice.Stop()
	if err != nil {
		sessionError(w, err)
		return
	}
	writeJSON(w, st)
}

func (a *App) handleVoiceStatus(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, a.voice.Status())
}

func (a *App) handleVoiceMessage(w http.ResponseWriter, r *http.Request) {
	if !requirePost(w, r) {
		return
	}
	var req struct {
		Text string `json:"text"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil || req.Text == "" {
		jsonError(w, "text field required", http.StatusBadRequest)
		return
	}
	if err := a.voice.Message(req.Text); err != nil {
		sessionError(w, err)
		return
	}
	writeJSON(w, map[string]any{"ok": true})
}

func (a *App) handleTranscriptsList(w http.ResponseWriter, _ *http.Request) {
	files, err := a.artifacts.ListTranscripts()
	if err != nil {
		jsonError(w, err.Error(), http.StatusInternalServerError)
		return
	}
	writeJSON(w, map[string]any{"transcripts": files})
}

// ---------------------------------------------------------------------------
// Workflow synthesis
// ---------------------------------------------------------------------------

func (a *App) handleWorkflowGenerate(w http.ResponseWriter, r *http.Request) {
	if !requirePost(w, r) {
		return
	}
	var req struct {
		Transcript string `json:"transcript"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		jsonError(w, "bad request: "+err.Error(), http.StatusBadRequest)
		return
	}
	if err := a.synth.Generate(req.Transcript); err != nil {
		sessionError(w, err)
		return
	}
	// Generation is asynchronous; progress and the result arrive as events.
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusAccepted)
	_ = json.NewEncoder(w).Encode(map[string]any{
		"queued":      true,
		"queue_depth": a.synth.QueueDepth(),
	})
}

func (a *App) handleWorkflowsList(w http.ResponseWriter, _ *http.Request) {
	files, err := a.artifacts.ListWorkflows()
	if err != nil {
		jsonError(w, err.Error(), http.StatusInternalServerError)
		return
	}
	writeJSON(w, map[string]any{"workflows": files})
}

// ---------------------------------------------------------------------------
// Recording analysis
// ---------------------------------------------------------------------------

func (a *App) handleAnalysisQuick(w http.ResponseWriter, r *http.Request) {
	a.handleAnalysis(w, r, a.analyzer.Quick)
}

func (a *App) handleAnalysisDetailed(w http.ResponseWriter, r *http.Request) {
	a.handleAnalysis(w, r, a.analyzer.Detailed)
}

func (a *App) handleAnalysis(w http.ResponseWriter, r *http.Request, start func(string) error) {
	if !requirePost(w, r) {
		return
	}
	var req struct {
		Filename string `json:"filename"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil || req.Filename == "" {
		jsonError(w, "filename field required", http.StatusBadRequest)
		return
	}
	if err := start(req.Filename); err != nil {
		sessionError(w, err)
		return
	}
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusAccepted)
	_ = json.NewEncoder(w).Encode(map[string]any{"started": true, "filename": req.Filename})
}

// handleAnalysisUpload accepts a multipart video upload, stores it alongside
// recorded sessions, and starts analysis on it.
func (a *App) handleAnalysisUpload(w http.ResponseWriter, r *http.Request) {
	if !requirePost(w, r) {
		return
	}
	file, _, err := r.FormFile("file")
	if err != nil {
		jsonError(w, "file field required", http.StatusBadRequest)
		return
	}
	defer file.Close()

	info, err := a.artifacts.SaveRecording(file, time.Now())
	if err != nil {
		jsonError(w, err.Error(), http.StatusInternalServerError)
		return
	}

	start := a.analyzer.Quick
	if r.FormValue("kind") == "detailed" {
		start = a.analyzer.Detailed
	}
	if err := start(info.Filename); err != nil {
		sessionError(w, err)
		return
	}
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusAccepted)
	_ = json.NewEncoder(w).Encode(map[string]any{"started": true, "filename": info.Filename})
}

// ---------------------------------------------------------------------------
// Stored files
// ---------------------------------------------------------------------------

func (a *App) handleRecordingFile(w http.ResponseWriter, r *http.Request) {
	a.serveArtifact(w, r, "/api/files/recordings/", a.artifacts.ResolveRecording)
}

func (a *App) handleScreenshotFile(w http.ResponseWriter, r *http.Request) {
	a.serveArtifact(w, r, "/api/files/screenshots/", a.artifacts.ResolveScreenshot)
}

// serveArtifact streams one stored file. Filenames are resolved through the
// artifact store, which rejects path traversal.
func (a *App) serveArtifact(w http.ResponseWriter, r *http.Request, prefix string, resolve func(string) (string, error)) {
	name := strings.TrimPrefix(r.URL.Path, prefix)
	path, err := resolve(name)
	if err != nil {
		if os.IsNotExist(err) {
			jsonError(w, "file not found", http.StatusNotFound)
			return
		}
		jsonError(w, err.Error(), http.StatusBadRequest)
		return
	}
	http.ServeFile(w, r, path)
}

// ---------------------------------------------------------------------------
// System
// ---------------------------------------------------------------------------

func (a *App) handleFolders(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, map[string]any{
		"root":        a.artifacts.Root(),
		"recordings":  a.artifacts.RecordingsDir(),
		"screenshots": a.artifacts.ScreenshotsDir(),
		"transcripts": a.artifacts.TranscriptsDir(),
		"workflows":   a.artifacts.WorkflowsDir(),
	})
}

func (a *App) handleOpenFolder(w http.ResponseWriter, r *http.Request) {
	if !requirePost(w, r) {
		return
	}
	var req struct {
		Folder string `json:"folder"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		jsonError(w, "bad request: "+err.Error(), http.StatusBadRequest)
		return
	}

	var path string
	switch req.Folder {
	case "", "root":
		path = a.artifacts.Root()
	case "recordings":
		path = a.artifacts.RecordingsDir()
	case "screenshots":
		path = a.artifacts.ScreenshotsDir()
	case "transcripts":
		path = a.artifacts.TranscriptsDir()
	case "workflows":
		path = a.artifacts.WorkflowsDir()
	default:
		jsonError(w, "unknown folder "+req.Folder, http.StatusBadRequest)
		return
	}

	if err := exec.Command("xdg-open", path).Start(); err != nil {
		jsonError(w, err.Error(), http.StatusInternalServerError)
		return
	}
	writeJSON(w, map[string]any{"ok": true, "path": path})
}

// ---------------------------------------------------------------------------
// Helpers
// ---------------------------------------------------------------------------

func requirePost(w http.ResponseWriter, r *http.Request) bool {
	if r.Method != http.MethodPost {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return false
	}
	return true
}

func writeJSON(w http.ResponseWriter, v any) {
	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(v)
}

// jsonError writes a JSON error response.
func jsonError(w http.ResponseWriter, msg string, code int) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	_ = json.NewEncoder(w).Encode(map[string]any{
		"ok":    false,
		"error": msg,
	})
}

// sessionError maps the session error taxonomy onto HTTP status codes.
func sessionError(w http.ResponseWriter, err error) {
	code := http.StatusInternalServerError
	switch {
	case errors.Is(err, session.ErrValidation):
		code = http.StatusBadRequest
	case errors.Is(err, session.ErrAlreadyActive), errors.Is(err, session.ErrNotActive):
		code = http.StatusConflict
	case errors.Is(err, session.ErrResourceUnavailable), errors.Is(err, session.ErrBusy):
		code = http.StatusServiceUnavailable
	case errors.Is(err, session.ErrUpstream):
		code = http.StatusBadGateway
	}
	jsonError(w, err.Error(), code)
}
