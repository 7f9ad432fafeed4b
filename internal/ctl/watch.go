package ctl

import (
	"encoding/json"
	"fmt"
	"net/url"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/gorilla/websocket"
)

// WatchOptions controls the watch command behavior.
type WatchOptions struct {
	Filter []string    // event types to show (empty = all)
	JSON   bool        // output raw JSON per event
	Once   bool        // exit instead of reconnecting on disconnect
	Retry  RetryPolicy // delay between reconnect attempts, DefaultRetry when nil
}

// Watch connects to the daemon's WebSocket endpoint and streams events to the
// terminal until interrupted. A dropped connection is retried on a fixed
// delay; every reconnect delivers a fresh snapshot event, so rendered state
// is replaced rather than replayed.
func Watch(baseURL string, opts WatchOptions) error {
	wsURL, err := websocketURL(baseURL)
	if err != nil {
		return err
	}
	if opts.Retry == nil {
		opts.Retry = DefaultRetry
	}

	filterSet := make(map[string]bool, len(opts.Filter))
	for _, f := range opts.Filter {
		filterSet[f] = true
	}

	sig := make(chan os.Signal, 1)
	signal.Notify(sig, os.Interrupt, syscall.SIGTERM)

	attempt := 0
	for {
		attempt++
		err := watchOnce(wsURL, filterSet, opts, sig)
		if err == errInterrupted {
			return nil
		}
		if opts.Once {
			return err
		}

		delay := opts.Retry(attempt)
		if !opts.JSON {
			msg := "disconnected"
			if err != nil {
				msg = err.Error()
			}
			fmt.Printf("  %s %s\n", colorize(red, "connection lost:"),
				colorize(dim, fmt.Sprintf("%s, retrying in %s", msg, delay)))
		}
		select {
		case <-sig:
			return nil
		case <-time.After(delay):
		}
	}
}

var errInterrupted = fmt.Errorf("interrupted")

func watchOnce(wsURL string, filterSet map[string]bool, opts WatchOptions, sig chan os.Signal) error {
	conn, _, err := websocket.DefaultDialer.Dial(wsURL, nil)
	if err != nil {
		return err
	}
	defer conn.Close()

	if !opts.JSON {
		fmt.Println()
		fmt.Printf("  %s %s\n", colorize(green, "connected"), colorize(dim, wsURL))
		if len(opts.Filter) > 0 {
			fmt.Printf("  %s %s\n", colorize(dim, "filter:"), colorize(dim, strings.Join(opts.Filter, ", ")))
		}
		fmt.Println(colorize(dim, "  "+strings.Repeat("─", 50)))
		fmt.Println()
	}

	done := make(chan error, 1)
	go func() {
		for {
			_, msg, err := conn.ReadMessage()
			if err != nil {
				done <- err
				return
			}

			if len(filterSet) > 0 {
				var ev struct {
					Type string `json:"type"`
				}
				if json.Unmarshal(msg, &ev) == nil && !filterSet[ev.Type] {
					// The snapshot always shows so reconnects stay visible.
					if ev.Type != "snapshot" {
						continue
					}
				}
			}

			if opts.JSON {
				fmt.Println(string(msg))
			} else {
				renderEvent(msg)
			}
		}
	}()

	select {
	case <-sig:
		if !opts.JSON {
			fmt.Println()
			fmt.Println(colorize(dim, "  disconnecting..."))
		}
		_ = conn.WriteControl(
			websocket.CloseMessage,
			websocket.FormatCloseMessage(websocket.CloseNormalClosure, "bye"),
			time.Now().Add(1*time.Second),
		)
		return errInterrupted
	case err := <-done:
		return err
	}
}

func websocketURL(baseURL string) (string, error) {
	u, err := url.Parse(strings.TrimRight(baseURL, "/"))
	if err != nil {
		return "", err
	}
	switch u.Scheme {
	case "http":
		u.Scheme = "ws"
	case "https":
		u.Scheme = "wss"
	default:
		return "", fmt.Errorf("unsupported scheme: %s", u.Scheme)
	}
	u.Path = "/ws"
	u.RawQuery = ""
	return u.String(), nil
}

// envelope is the wire shape of every event.
type envelope struct {
	Type string         `json:"type"`
	Data map[string]any `json:"data"`
	Seq  uint64         `json:"seq"`
	TS   string         `json:"ts"`
}

// renderEvent parses a JSON event and prints it in a human-friendly format.
// Falls back to raw JSON for unrecognized event types.
func renderEvent(raw []byte) {
	var ev envelope
	if err := json.Unmarshal(raw, &ev); err != nil {
		fmt.Printf("  %s\n", string(raw))
		return
	}
	ts := formatEventTime(ev.TS)
	d := ev.Data

	switch ev.Type {
	case "snapshot":
		fmt.Printf("  %s %s\n", colorize(dim, ts), header("SNAPSHOT"))
		if sessions, ok := d["sessions"].(map[string]any); ok {
			for comp, st := range sessions {
				state, _ := st.(string)
				fmt.Printf("    %-10s %s\n", colorize(dim, comp+":"), colorize(stateColor(state), state))
			}
		}
		if tr, _ := d["transcript"].(string); tr != "" {
			fmt.Printf("    %-10s %s\n", colorize(dim, "text:"), tr)
		}
		fmt.Println()

	case "heartbeat":
		// Heartbeats are noisy — show them dimmed on a single line.
		state, _ := d["state"].(string)
		uptime, _ := d["uptime_seconds"].(float64)
		fmt.Printf("  %s %s  %s  up %s\n",
			colorize(dim, ts),
			colorize(dim, "heartbeat"),
			colorize(stateColor(state), state),
			colorize(dim, formatDuration(time.Duration(uptime)*time.Second)),
		)

	case "session_state":
		comp, _ := d["component"].(string)
		from, _ := d["from"].(string)
		to, _ := d["to"].(string)
		fmt.Printf("  %s %s  %s %s %s %s\n",
			colorize(dim, ts),
			colorize(bold, "STATE"),
			colorize(dim, "["+comp+"]"),
			colorize(stateColor(from), from),
			colorize(dim, "->"),
			colorize(stateColor(to), to),
		)

	case "session_error":
		comp, _ := d["component"].(string)
		msg, _ := d["message"].(string)
		fmt.Printf("  %s %s  %s %s\n",
			colorize(dim, ts), colorize(red, "ERROR"),
			colorize(dim, "["+comp+"]"), msg)

	case "recording_started", "recording_stopped":
		comp, _ := d["component"].(string)
		file, _ := d["filename"].(string)
		label := "REC START"
		if ev.Type == "recording_stopped" {
			label = "REC STOP "
		}
		fmt.Printf("  %s %s  %s %s\n",
			colorize(dim, ts), colorize(blue, label),
			colorize(dim, "["+comp+"]"), file)

	case "screenshot_captured":
		file, _ := d["filename"].(string)
		fmt.Printf("  %s %s  %s\n", colorize(dim, ts), colorize(blue, "SHOT"), file)

	case "partial_transcript":
		text, _ := d["text"].(string)
		fmt.Printf("  %s %s  %s\n", colorize(dim, ts), colorize(dim, "partial"), colorize(dim, text))

	case "word_detected":
		word, _ := d["word"].(string)
		fmt.Printf("  %s %s  %s\n", colorize(dim, ts), colorize(dim, "word"), word)

	case "final_transcript":
		text, _ := d["text"].(string)
		fmt.Printf("  %s %s  %s\n", colorize(dim, ts), colorize(cyan, "FINAL"), text)

	case "audio_level":
		level, _ := d["level"].(float64)
		fmt.Printf("  %s %s  [%s]\n", colorize(dim, ts), colorize(dim, "level"),
			progressBar(int(level*100), 16))

	case "device_info":
		name, _ := d["device_name"].(string)
		fmt.Printf("  %s %s  %s\n", colorize(dim, ts), colorize(dim, "device"), name)

	case "workflow_progress":
		stage, _ := d["stage"].(string)
		pct, _ := d["percent"].(float64)
		msg, _ := d["message"].(string)
		fmt.Printf("  %s %s  [%s] %3.0f%%  %s\n",
			colorize(dim, ts),
			colorize(cyan, padRight(stage, 10)),
			progressBar(int(pct), 20),
			pct,
			colorize(dim, msg),
		)

	case "workflow_generated":
		success, _ := d["success"].(bool)
		if success {
			title := ""
			if wf, ok := d["workflow"].(map[string]any); ok {
				title, _ = wf["title"].(string)
			}
			file, _ := d["workflow_file"].(string)
			fmt.Println()
			fmt.Printf("  %s %s\n", colorize(dim, ts), header("WORKFLOW GENERATED"))
			fmt.Printf("    %-10s %s\n", colorize(dim, "Title:"), colorize(bold, title))
			fmt.Printf("    %-10s %s\n", colorize(dim, "File:"), file)
			fmt.Println()
		} else {
			errMsg, _ := d["error"].(string)
			fmt.Printf("  %s %s  %s\n", colorize(dim, ts), colorize(red, "WORKFLOW FAILED"), errMsg)
		}

	case "analysis_complete":
		kind, _ := d["kind"].(string)
		file, _ := d["filename"].(string)
		success, _ := d["success"].(bool)
		if success {
			text, _ := d["analysis"].(string)
			fmt.Println()
			fmt.Printf("  %s %s %s\n", colorize(dim, ts), header("ANALYSIS"), colorize(dim, kind+" "+file))
			for _, line := range strings.Split(strings.TrimSpace(text), "\n") {
				fmt.Printf("    %s\n", line)
			}
			fmt.Println()
		} else {
			errMsg, _ := d["error"].(string)
			fmt.Printf("  %s %s  %s %s\n", colorize(dim, ts), colorize(red, "ANALYSIS FAILED"),
				colorize(dim, file), errMsg)
		}

	case "log":
		level, _ := d["level"].(string)
		message, _ := d["message"].(string)
		component, _ := d["component"].(string)
		src := ""
		if component != "" {
			src = colorize(dim, "["+component+"] ")
		}
		fmt.Printf("  %s %s  %s%s\n", colorize(dim, ts), formatLogLevel(level), src, message)

	default:
		pretty, err := json.MarshalIndent(ev, "  ", "  ")
		if err != nil {
			fmt.Printf("  %s\n", string(raw))
			return
		}
		fmt.Printf("  %s\n", string(pretty))
	}
}

// formatEventTime shortens an RFC 3339 timestamp for display.
func formatEventTime(tsRaw string) string {
	if tsRaw == "" {
		return "        "
	}
	t, err := time.Parse(time.RFC3339Nano, tsRaw)
	if err != nil {
		if len(tsRaw) > 10 {
			return tsRaw[:10]
		}
		return tsRaw
	}
	return t.Local().Format("15:04:05")
}

// formatLogLevel returns a colored, fixed-width log level label.
func formatLogLevel(level string) string {
	switch level {
	case "info":
		return colorize(green, "INFO ")
	case "warn", "warning":
		return colorize(yellow, "WARN ")
	case "error":
		return colorize(red, "ERROR")
	default:
		return padRight(level, 5)
	}
}
