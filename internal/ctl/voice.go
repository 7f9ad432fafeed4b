package ctl

import "fmt"

// voiceStatus mirrors the voice status JSON.
type voiceStatus struct {
	State      string `json:"state"`
	SessionID  string `json:"session_id"`
	Device     string `json:"device"`
	Transcript string `json:"transcript"`
}

// VoiceStart begins a voice transcription session.
func VoiceStart(baseURL string, jsonOut bool) error {
	var st voiceStatus
	if err := postJSON(baseURL, "/api/voice/start", nil, &st); err != nil {
		return err
	}
	if jsonOut {
		return printJSON(st)
	}
	fmt.Println()
	line := colorize(green, "LISTENING")
	if st.Device != "" {
		line += "  " + colorize(dim, st.Device)
	}
	fmt.Printf("  %s\n", line)
	fmt.Println()
	return nil
}

// VoiceStop ends the voice session and prints the accumulated transcript.
func VoiceStop(baseURL string, jsonOut bool) error {
	var st voiceStatus
	if err := postJSON(baseURL, "/api/voice/stop", nil, &st); err != nil {
		return err
	}
	if jsonOut {
		return printJSON(st)
	}
	fmt.Println()
	fmt.Printf("  %s\n", colorize(green, "STOPPED"))
	if st.Transcript != "" {
		fmt.Printf("  %s %s\n", colorize(dim, "Transcript:"), st.Transcript)
		fmt.Println(colorize(dim, "  workflow generation queued"))
	} else {
		fmt.Println(colorize(dim, "  no speech captured"))
	}
	fmt.Println()
	return nil
}

// VoiceStatus prints the current voice session state.
func VoiceStatus(baseURL string, jsonOut bool) error {
	var st voiceStatus
	if err := getJSON(baseURL, "/api/voice/status", &st); err != nil {
		return err
	}
	if jsonOut {
		return printJSON(st)
	}
	fmt.Println()
	fmt.Printf("  %-12s %s\n", colorize(dim, "State:"), colorize(stateColor(st.State), st.State))
	if st.Device != "" {
		fmt.Printf("  %-12s %s\n", colorize(dim, "Device:"), st.Device)
	}
	if st.Transcript != "" {
		fmt.Printf("  %-12s %s\n", colorize(dim, "Transcript:"), st.Transcript)
	}
	fmt.Println()
	return nil
}

// VoiceMessage injects a typed message into the active voice session.
func VoiceMessage(baseURL, text string, jsonOut bool) error {
	if text == "" {
		return fmt.Errorf("message text required")
	}
	var resp struct {
		OK bool `json:"ok"`
	}
	if err := postJSON(baseURL, "/api/voice/message", map[string]any{"text": text}, &resp); err != nil {
		return err
	}
	if jsonOut {
		return printJSON(resp)
	}
	fmt.Println()
	fmt.Printf("  %s  %s\n", colorize(green, "SENT"), text)
	fmt.Println()
	return nil
}
