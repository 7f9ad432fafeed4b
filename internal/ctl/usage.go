package ctl

import (
	"fmt"
	"net/url"
	"strings"
)

// UsageOptions configures the usage command.
type UsageOptions struct {
	Day  string // YYYY-MM-DD, empty means today
	JSON bool
}

// Usage prints aggregated app usage for one day.
func Usage(baseURL string, opts UsageOptions) error {
	path := "/api/activity/usage"
	if opts.Day != "" {
		path += "?day=" + url.QueryEscape(opts.Day)
	}

	var resp struct {
		Usage []struct {
			App     string  `json:"app"`
			Seconds float64 `json:"seconds"`
			Minutes float64 `json:"minutes"`
		} `json:"usage"`
	}
	if err := getJSON(baseURL, path, &resp); err != nil {
		return err
	}
	if opts.JSON {
		return printJSON(resp)
	}

	day := opts.Day
	if day == "" {
		day = "today"
	}

	fmt.Println()
	fmt.Println(header("  APP USAGE") + colorize(dim, "  ("+day+")"))
	if len(resp.Usage) == 0 {
		fmt.Println(colorize(dim, "  ────────────────────────"))
		fmt.Println("  No usage recorded.")
	} else {
		t := newTable("  ", "App", "Minutes", "Seconds")
		t.alignRight(1)
		t.alignRight(2)
		for _, u := range resp.Usage {
			t.row(u.App, fmt.Sprintf("%.2f", u.Minutes), fmt.Sprintf("%.0f", u.Seconds))
		}
		t.flush()
	}
	fmt.Println()
	return nil
}

// Chart prints the usage chart data: one bar per app, scaled to the longest.
func Chart(baseURL string, jsonOut bool) error {
	var chart struct {
		Labels []string  `json:"labels"`
		Data   []float64 `json:"data"`
	}
	if err := getJSON(baseURL, "/api/activity/chart-data", &chart); err != nil {
		return err
	}
	if jsonOut {
		return printJSON(chart)
	}

	fmt.Println()
	fmt.Println(header("  USAGE CHART") + colorize(dim, "  (minutes today)"))
	if len(chart.Labels) == 0 {
		fmt.Println(colorize(dim, "  ────────────────────────"))
		fmt.Println("  No usage recorded.")
		fmt.Println()
		return nil
	}

	var maxVal float64
	width := 0
	for i, l := range chart.Labels {
		if i < len(chart.Data) && chart.Data[i] > maxVal {
			maxVal = chart.Data[i]
		}
		if len(l) > width {
			width = len(l)
		}
	}

	for i, l := range chart.Labels {
		if i >= len(chart.Data) {
			break
		}
		pct := 0
		if maxVal > 0 {
			pct = int(chart.Data[i] / maxVal * 100)
		}
		fmt.Printf("  %s [%s] %.2f\n",
			padRight(l, width), progressBar(pct, 24), chart.Data[i])
	}
	fmt.Println()
	return nil
}

// Activity prints the live foreground app state.
func Activity(baseURL string, jsonOut bool) error {
	var resp struct {
		Enabled        bool   `json:"enabled"`
		CurrentApp     string `json:"current_app"`
		Since          string `json:"since"`
		ElapsedSeconds int64  `json:"elapsed_seconds"`
	}
	if err := getJSON(baseURL, "/api/activity/status", &resp); err != nil {
		return err
	}
	if jsonOut {
		return printJSON(resp)
	}

	fmt.Println()
	if !resp.Enabled {
		fmt.Println(colorize(dim, "  activity tracking disabled"))
		fmt.Println()
		return nil
	}
	app := resp.CurrentApp
	if app == "" {
		app = colorize(dim, "(none)")
	}
	fmt.Printf("  %-12s %s\n", colorize(dim, "Foreground:"), app)
	if resp.Since != "" {
		fmt.Printf("  %-12s %s %s\n", colorize(dim, "Since:"),
			strings.TrimSuffix(resp.Since, "Z"),
			colorize(dim, "("+fmt.Sprintf("%ds", resp.ElapsedSeconds)+")"))
	}
	fmt.Println()
	return nil
}
