package ctl

import (
	"fmt"
	"time"
)

// sessionStatus mirrors the capture status JSON.
type sessionStatus struct {
	State     string  `json:"state"`
	SessionID string  `json:"session_id"`
	Filename  string  `json:"filename"`
	Duration  float64 `json:"duration_seconds"`
}

// RecordStart begins a screen recording session.
func RecordStart(baseURL string, jsonOut bool) error {
	var st sessionStatus
	if err := postJSON(baseURL, "/api/recording/start", nil, &st); err != nil {
		return err
	}
	if jsonOut {
		return printJSON(st)
	}
	fmt.Println()
	fmt.Printf("  %s  %s %s\n", colorize(green, "RECORDING"),
		st.Filename, colorize(dim, st.SessionID))
	fmt.Println()
	return nil
}

// RecordStop ends the screen recording session.
func RecordStop(baseURL string, jsonOut bool) error {
	var st sessionStatus
	if err := postJSON(baseURL, "/api/recording/stop", nil, &st); err != nil {
		return err
	}
	if jsonOut {
		return printJSON(st)
	}
	fmt.Println()
	fmt.Printf("  %s  %s %s\n", colorize(green, "STOPPED"), st.Filename,
		colorize(dim, formatDuration(time.Duration(st.Duration*float64(time.Second)))))
	fmt.Println()
	return nil
}

// RecordStatus prints the current capture session state.
func RecordStatus(baseURL string, jsonOut bool) error {
	var st sessionStatus
	if err := getJSON(baseURL, "/api/recording/status", &st); err != nil {
		return err
	}
	if jsonOut {
		return printJSON(st)
	}
	fmt.Println()
	fmt.Printf("  %-10s %s\n", colorize(dim, "State:"), colorize(stateColor(st.State), st.State))
	if st.Filename != "" {
		fmt.Printf("  %-10s %s\n", colorize(dim, "File:"), st.Filename)
	}
	if st.Duration > 0 {
		fmt.Printf("  %-10s %s\n", colorize(dim, "Elapsed:"),
			formatDuration(time.Duration(st.Duration*float64(time.Second))))
	}
	fmt.Println()
	return nil
}

// Screenshot captures a single screenshot.
func Screenshot(baseURL string, jsonOut bool) error {
	var info struct {
		Filename string `json:"filename"`
		Path     string `json:"path"`
		Size     int64  `json:"size"`
	}
	if err := postJSON(baseURL, "/api/screenshot/capture", nil, &info); err != nil {
		return err
	}
	if jsonOut {
		return printJSON(info)
	}
	fmt.Println()
	fmt.Printf("  %s  %s %s\n", colorize(green, "CAPTURED"), info.Filename,
		colorize(dim, formatBytes(info.Size)))
	fmt.Println()
	return nil
}
