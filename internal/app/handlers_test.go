package app

import (
	"bytes"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jugogpt/tracker-engine/internal/analysis"
	"github.com/jugogpt/tracker-engine/internal/bus"
	"github.com/jugogpt/tracker-engine/internal/llm"
	"github.com/jugogpt/tracker-engine/internal/store"
)

func testLogger() *logrus.Logger {
	log := logrus.New()
	log.SetLevel(logrus.PanicLevel)
	return log
}

// newTestApp wires just enough of the daemon to exercise the file handlers.
func newTestApp(t *testing.T) *App {
	t.Helper()
	artifacts, err := store.NewArtifacts(t.TempDir())
	require.NoError(t, err)
	log := testLogger()
	b := bus.New(log)
	return &App{
		log:       log,
		bus:       b,
		artifacts: artifacts,
		analyzer: analysis.NewAnalyzer(analysis.Options{
			Vision:    llm.DisabledVision("no key"),
			Frames:    analysis.NewFFmpegExtractor(""),
			Bus:       b,
			Artifacts: artifacts,
			Log:       log,
			Timeout:   time.Second,
		}),
	}
}

func TestAnalysisUploadStoresRecording(t *testing.T) {
	a := newTestApp(t)

	var body bytes.Buffer
	mw := multipart.NewWriter(&body)
	fw, err := mw.CreateFormFile("file", "demo.mp4")
	require.NoError(t, err)
	_, err = fw.Write([]byte("video-bytes"))
	require.NoError(t, err)
	require.NoError(t, mw.Close())

	req := httptest.NewRequest(http.MethodPost, "/api/analysis/upload", &body)
	req.Header.Set("Content-Type", mw.FormDataContentType())
	rec := httptest.NewRecorder()
	a.handleAnalysisUpload(rec, req)

	require.Equal(t, http.StatusAccepted, rec.Code, rec.Body.String())
	assert.Contains(t, rec.Body.String(), "recording_")

	files, err := a.artifacts.ListRecordings()
	require.NoError(t, err)
	require.Len(t, files, 1)
	saved, err := os.ReadFile(files[0].Path)
	require.NoError(t, err)
	assert.Equal(t, "video-bytes", string(saved))
}

func TestAnalysisUploadRequiresFile(t *testing.T) {
	a := newTestApp(t)

	req := httptest.NewRequest(http.MethodPost, "/api/analysis/upload", nil)
	rec := httptest.NewRecorder()
	a.handleAnalysisUpload(rec, req)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestServeRecordingFile(t *testing.T) {
	a := newTestApp(t)
	name := "recording_20260831_120000.mp4"
	require.NoError(t, os.WriteFile(
		filepath.Join(a.artifacts.RecordingsDir(), name), []byte("abc"), 0o644))

	req := httptest.NewRequest(http.MethodGet, "/api/files/recordings/"+name, nil)
	rec := httptest.NewRecorder()
	a.handleRecordingFile(rec, req)
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "abc", rec.Body.String())
}

func TestServeRecordingFileRejectsTraversal(t *testing.T) {
	a := newTestApp(t)

	req := httptest.NewRequest(http.MethodGet, "/api/files/recordings/", nil)
	req.URL.Path = "/api/files/recordings/../usage.db"
	rec := httptest.NewRecorder()
	a.handleRecordingFile(rec, req)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestServeScreenshotFile(t *testing.T) {
	a := newTestApp(t)
	name := "screenshot_20260831_120000.png"
	require.NoError(t, os.WriteFile(
		filepath.Join(a.artifacts.ScreenshotsDir(), name), []byte("png"), 0o644))

	req := httptest.NewRequest(http.MethodGet, "/api/files/screenshots/"+name, nil)
	rec := httptest.NewRecorder()
	a.handleScreenshotFile(rec, req)
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "png", rec.Body.String())

	req = httptest.NewRequest(http.MethodGet, "/api/files/screenshots/missing.png", nil)
	rec = httptest.NewRecorder()
	a.handleScreenshotFile(rec, req)
	assert.Equal(t, http.StatusNotFound, rec.Code)
}
