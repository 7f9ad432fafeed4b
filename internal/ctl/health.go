package ctl

import (
	"fmt"
	"io"
	"strings"
)

// Health checks the daemon's /healthz endpoint.
func Health(baseURL string, jsonOut bool) error {
	url := strings.TrimRight(baseURL, "/") + "/healthz"
	resp, err := httpClient.Get(url)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	body, _ := io.ReadAll(resp.Body)

	ok := resp.StatusCode == 200
	if jsonOut {
		return printJSON(map[string]any{"healthy": ok, "status": resp.Status})
	}

	fmt.Println()
	if ok {
		fmt.Printf("  %s  %s\n", colorize(green, "HEALTHY"), colorize(dim, baseURL))
	} else {
		fmt.Printf("  %s  %s %s\n", colorize(red, "UNHEALTHY"), resp.Status, strings.TrimSpace(string(body)))
	}
	fmt.Println()
	return nil
}

// VersionInfo prints the daemon's version endpoint.
func VersionInfo(baseURL string, jsonOut bool) error {
	var v struct {
		Version   string `json:"version"`
		GoVersion string `json:"go_version"`
		BuiltAt   string `json:"built_at"`
	}
	if err := getJSON(baseURL, "/api/version", &v); err != nil {
		return err
	}
	if jsonOut {
		return printJSON(v)
	}

	fmt.Println()
	fmt.Printf("  %-12s %s\n", colorize(dim, "Version:"), v.Version)
	fmt.Printf("  %-12s %s\n", colorize(dim, "Go:"), v.GoVersion)
	fmt.Printf("  %-12s %s\n", colorize(dim, "Built:"), v.BuiltAt)
	fmt.Println()
	return nil
}
