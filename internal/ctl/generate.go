package ctl

import "fmt"

// Generate queues workflow synthesis for a transcript.
func Generate(baseURL, transcript string, jsonOut bool) error {
	if transcript == "" {
		return fmt.Errorf("transcript text required")
	}
	var resp struct {
		Queued     bool `json:"queued"`
		QueueDepth int  `json:"queue_depth"`
	}
	if err := postJSON(baseURL, "/api/workflow/generate",
		map[string]any{"transcript": transcript}, &resp); err != nil {
		return err
	}
	if jsonOut {
		return printJSON(resp)
	}
	fmt.Println()
	fmt.Printf("  %s  %s\n", colorize(green, "QUEUED"),
		colorize(dim, fmt.Sprintf("%d request(s) pending", resp.QueueDepth)))
	fmt.Println(colorize(dim, "  run 'trackctl watch --filter workflow_progress,workflow_generated' to follow"))
	fmt.Println()
	return nil
}

// Analyze starts AI analysis of a recording. Kind is "quick" or "detailed".
func Analyze(baseURL, kind, filename string, jsonOut bool) error {
	if filename == "" {
		return fmt.Errorf("recording filename required")
	}
	if kind != "quick" && kind != "detailed" {
		return fmt.Errorf("analysis kind must be quick or detailed")
	}
	var resp struct {
		Started  bool   `json:"started"`
		Filename string `json:"filename"`
	}
	if err := postJSON(baseURL, "/api/analysis/"+kind,
		map[string]any{"filename": filename}, &resp); err != nil {
		return err
	}
	if jsonOut {
		return printJSON(resp)
	}
	fmt.Println()
	fmt.Printf("  %s  %s %s\n", colorize(green, "STARTED"), kind, resp.Filename)
	fmt.Println(colorize(dim, "  result arrives as an analysis_complete event"))
	fmt.Println()
	return nil
}

// Folders prints the daemon's artifact directories.
func Folders(baseURL string, jsonOut bool) error {
	var resp map[string]string
	if err := getJSON(baseURL, "/api/system/folders", &resp); err != nil {
		return err
	}
	if jsonOut {
		return printJSON(resp)
	}
	fmt.Println()
	fmt.Println(header("  FOLDERS"))
	for _, k := range []string{"root", "recordings", "screenshots", "transcripts", "workflows"} {
		if v, ok := resp[k]; ok {
			fmt.Printf("  %-13s %s\n", colorize(dim, k+":"), v)
		}
	}
	fmt.Println()
	return nil
}

// OpenFolder asks the daemon to open an artifact folder in the file manager.
func OpenFolder(baseURL, folder string, jsonOut bool) error {
	var resp struct {
		OK   bool   `json:"ok"`
		Path string `json:"path"`
	}
	if err := postJSON(baseURL, "/api/system/open-folder",
		map[string]any{"folder": folder}, &resp); err != nil {
		return err
	}
	if jsonOut {
		return printJSON(resp)
	}
	fmt.Println()
	fmt.Printf("  %s  %s\n", colorize(green, "OPENED"), resp.Path)
	fmt.Println()
	return nil
}
