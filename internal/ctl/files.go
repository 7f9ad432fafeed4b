package ctl

import "fmt"

// fileInfo mirrors the artifact listing entries.
type fileInfo struct {
	Filename string `json:"filename"`
	Path     string `json:"path"`
	Size     int64  `json:"size"`
	Created  string `json:"created"`
}

// Recordings lists recorded sessions.
func Recordings(baseURL string, jsonOut bool) error {
	return listFiles(baseURL, "/api/recordings/list", "recordings", "RECORDINGS", jsonOut)
}

// Screenshots lists captured screenshots.
func Screenshots(baseURL string, jsonOut bool) error {
	return listFiles(baseURL, "/api/screenshots/list", "screenshots", "SCREENSHOTS", jsonOut)
}

// Transcripts lists saved conversation logs.
func Transcripts(baseURL string, jsonOut bool) error {
	return listFiles(baseURL, "/api/voice/transcripts", "transcripts", "TRANSCRIPTS", jsonOut)
}

// Workflows lists generated workflow documents.
func Workflows(baseURL string, jsonOut bool) error {
	return listFiles(baseURL, "/api/workflows/list", "workflows", "WORKFLOWS", jsonOut)
}

func listFiles(baseURL, path, key, title string, jsonOut bool) error {
	var resp map[string][]fileInfo
	if err := getJSON(baseURL, path, &resp); err != nil {
		return err
	}
	files := resp[key]

	if jsonOut {
		return printJSON(resp)
	}

	fmt.Println()
	fmt.Println(header("  " + title))
	if len(files) == 0 {
		fmt.Println(colorize(dim, "  ────────────────────────"))
		fmt.Println("  No files found.")
	} else {
		t := newTable("  ", "Created", "Size", "Filename")
		t.alignRight(1)
		for _, f := range files {
			t.row(f.Created, formatBytes(f.Size), f.Filename)
		}
		t.flush()
	}
	fmt.Println()
	return nil
}
