package ctl

import (
	"fmt"
	"strings"
	"time"
)

// StatusResponse mirrors the JSON returned by GET /api/status.
type StatusResponse struct {
	Name          string `json:"name"`
	Version       string `json:"version"`
	State         string `json:"state"`
	UptimeSeconds int64  `json:"uptime_seconds"`
	DataRoot      string `json:"data_root"`
	Subscribers   int    `json:"subscribers"`
	Sessions      struct {
		Capture struct {
			State    string `json:"state"`
			Filename string `json:"filename"`
		} `json:"capture"`
		Voice struct {
			State      string `json:"state"`
			Device     string `json:"device"`
			Transcript string `json:"transcript"`
		} `json:"voice"`
		Workflow string `json:"workflow"`
	} `json:"sessions"`
	WorkflowQueueDepth int    `json:"workflow_queue_depth"`
	CurrentApp         string `json:"current_app"`
}

// Status fetches the daemon status and prints a formatted summary.
func Status(baseURL string, jsonOut bool) error {
	var s StatusResponse
	if err := getJSON(baseURL, "/api/status", &s); err != nil {
		return err
	}
	if jsonOut {
		return printJSON(s)
	}

	uptime := formatDuration(time.Duration(s.UptimeSeconds) * time.Second)

	fmt.Println()
	fmt.Println(header("  TRACKER ENGINE STATUS"))
	fmt.Println(colorize(dim, "  "+strings.Repeat("─", 38)))
	fmt.Printf("  %-14s %s %s\n", colorize(dim, "Daemon:"), s.Name, colorize(dim, s.Version))
	fmt.Printf("  %-14s %s\n", colorize(dim, "State:"), colorize(stateColor(s.State), s.State))
	fmt.Printf("  %-14s %s\n", colorize(dim, "Uptime:"), uptime)
	fmt.Printf("  %-14s %s\n", colorize(dim, "Data:"), s.DataRoot)
	fmt.Printf("  %-14s %d\n", colorize(dim, "Clients:"), s.Subscribers)
	fmt.Println()
	fmt.Printf("  %-14s %s\n", colorize(dim, "Capture:"),
		colorize(stateColor(s.Sessions.Capture.State), s.Sessions.Capture.State))
	voiceLine := colorize(stateColor(s.Sessions.Voice.State), s.Sessions.Voice.State)
	if s.Sessions.Voice.Device != "" {
		voiceLine += colorize(dim, "  ("+s.Sessions.Voice.Device+")")
	}
	fmt.Printf("  %-14s %s\n", colorize(dim, "Voice:"), voiceLine)
	wfLine := colorize(stateColor(s.Sessions.Workflow), s.Sessions.Workflow)
	if s.WorkflowQueueDepth > 0 {
		wfLine += colorize(dim, fmt.Sprintf("  (%d queued)", s.WorkflowQueueDepth))
	}
	fmt.Printf("  %-14s %s\n", colorize(dim, "Workflow:"), wfLine)
	if s.CurrentApp != "" {
		fmt.Printf("  %-14s %s\n", colorize(dim, "Foreground:"), s.CurrentApp)
	}
	fmt.Println()

	return nil
}
