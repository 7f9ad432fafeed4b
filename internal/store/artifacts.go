package store

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"
)

// FileInfo describes one stored artifact in listing responses.
type FileInfo struct {
	Filename string `json:"filename"`
	Path     string `json:"path"`
	Size     int64  `json:"size"`
	Created  string `json:"created"`
}

// Artifacts manages the on-disk layout under the data root: one directory
// per artifact kind, one file per recording/screenshot/transcript/workflow,
// addressed by generated timestamped names.
type Artifacts struct {
	root string
}

// NewArtifacts creates the artifact store rooted at root and ensures all
// artifact directories exist.
func NewArtifacts(root string) (*Artifacts, error) {
	a := &Artifacts{root: root}
	for _, dir := range []string{
		a.RecordingsDir(), a.ScreenshotsDir(), a.TranscriptsDir(), a.WorkflowsDir(),
	} {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, fmt.Errorf("ensure %s: %w", dir, err)
		}
	}
	return a, nil
}

func (a *Artifacts) Root() string           { return a.root }
func (a *Artifacts) RecordingsDir() string  { return filepath.Join(a.root, "recordings") }
func (a *Artifacts) ScreenshotsDir() string { return filepath.Join(a.root, "screenshots") }
func (a *Artifacts) TranscriptsDir() string { return filepath.Join(a.root, "transcripts") }
func (a *Artifacts) WorkflowsDir() string   { return filepath.Join(a.root, "workflows") }

func stamp(t time.Time) string {
	return t.Format("20060102_150405")
}

// NewRecordingPath returns a fresh timestamped recording path.
func (a *Artifacts) NewRecordingPath(now time.Time) string {
	return filepath.Join(a.RecordingsDir(), "recording_"+stamp(now)+".mp4")
}

// NewScreenshotPath returns a fresh timestamped screenshot path.
func (a *Artifacts) NewScreenshotPath(now time.Time) string {
	return filepath.Join(a.ScreenshotsDir(), "screenshot_"+stamp(now)+".png")
}

// NewTranscriptPath returns a fresh timestamped transcript path.
func (a *Artifacts) NewTranscriptPath(now time.Time) string {
	return filepath.Join(a.TranscriptsDir(), "conversation_"+stamp(now)+".txt")
}

// AppendTranscript appends one line of the running session log. The file is
// created on first write.
func (a *Artifacts) AppendTranscript(path, speaker, text string) error {
	f, err := os.OpenFile(path, os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0o644)
	if err != nil {
		return fmt.Errorf("open transcript: %w", err)
	}
	defer f.Close()

	line := fmt.Sprintf("[%s] %s: %s\n", time.Now().Format("15:04:05"), speaker, text)
	if _, err := f.WriteString(line); err != nil {
		return fmt.Errorf("append transcript: %w", err)
	}
	return nil
}

// SaveWorkflow writes a workflow document as indented JSON and returns its
// path.
func (a *Artifacts) SaveWorkflow(doc any, now time.Time) (string, error) {
	path := filepath.Join(a.WorkflowsDir(), "workflow_"+stamp(now)+".json")
	b, err := json.MarshalIndent(doc, "", "  ")
	if err != nil {
		return "", fmt.Errorf("marshal workflow: %w", err)
	}
	if err := os.WriteFile(path, b, 0o644); err != nil {
		return "", fmt.Errorf("write workflow: %w", err)
	}
	return path, nil
}

// ListRecordings lists recording files, newest first.
func (a *Artifacts) ListRecordings() ([]FileInfo, error) {
	return listDir(a.RecordingsDir(), ".mp4")
}

// ListScreenshots lists screenshot files, newest first.
func (a *Artifacts) ListScreenshots() ([]FileInfo, error) {
	return listDir(a.ScreenshotsDir(), ".png", ".jpg", ".jpeg")
}

// ListTranscripts lists transcript files, newest first.
func (a *Artifacts) ListTranscripts() ([]FileInfo, error) {
	return listDir(a.TranscriptsDir(), ".txt")
}

// ListWorkflows lists workflow documents, newest first.
func (a *Artifacts) ListWorkflows() ([]FileInfo, error) {
	return listDir(a.WorkflowsDir(), ".json")
}

// ResolveRecording maps a bare filename to its path under the recordings
// directory, rejecting traversal.
func (a *Artifacts) ResolveRecording(name string) (string, error) {
	return resolveName(a.RecordingsDir(), name)
}

// ResolveScreenshot maps a bare filename to its path under the screenshots
// directory, rejecting traversal.
func (a *Artifacts) ResolveScreenshot(name string) (string, error) {
	return resolveName(a.ScreenshotsDir(), name)
}

func resolveName(dir, name string) (string, error) {
	if name == "" || strings.ContainsAny(name, "/\\") || strings.Contains(name, "..") {
		return "", fmt.Errorf("invalid filename %q", name)
	}
	path := filepath.Join(dir, name)
	if _, err := os.Stat(path); err != nil {
		return "", err
	}
	return path, nil
}

// SaveRecording streams an uploaded recording into the recordings directory
// under a fresh timestamped name.
func (a *Artifacts) SaveRecording(r io.Reader, now time.Time) (FileInfo, error) {
	path := a.NewRecordingPath(now)
	f, err := os.Create(path)
	if err != nil {
		return FileInfo{}, fmt.Errorf("create recording: %w", err)
	}
	n, err := io.Copy(f, r)
	if cerr := f.Close(); err == nil {
		err = cerr
	}
	if err != nil {
		os.Remove(path)
		return FileInfo{}, fmt.Errorf("write recording: %w", err)
	}
	return FileInfo{
		Filename: filepath.Base(path),
		Path:     path,
		Size:     n,
		Created:  now.UTC().Format(time.RFC3339),
	}, nil
}

func listDir(dir string, exts ...string) ([]FileInfo, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		if os.IsNotExist(err) {
			return []FileInfo{}, nil
		}
		return nil, err
	}

	out := make([]FileInfo, 0, len(entries))
	for _, e := range entries {
		if e.IsDir() || !hasExt(e.Name(), exts) {
			continue
		}
		info, err := e.Info()
		if err != nil {
			continue
		}
		out = append(out, FileInfo{
			Filename: e.Name(),
			Path:     filepath.Join(dir, e.Name()),
			Size:     info.Size(),
			Created:  info.ModTime().Format(time.RFC3339),
		})
	}

	sort.Slice(out, func(i, j int) bool { return out[i].Created > out[j].Created })
	return out, nil
}

func hasExt(name string, exts []string) bool {
	lower := strings.ToLower(name)
	for _, ext := range exts {
		if strings.HasSuffix(lower, ext) {
			return true
		}
	}
	return false
}
