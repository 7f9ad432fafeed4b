package ctl

import (
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestFormatDuration(t *testing.T) {
	assert.Equal(t, "45s", formatDuration(45*time.Second))
	assert.Equal(t, "2m 5s", formatDuration(125*time.Second))
	assert.Equal(t, "2h 14m 8s", formatDuration(2*time.Hour+14*time.Minute+8*time.Second))
	assert.Equal(t, "0s", formatDuration(0))
}

func TestFormatBytes(t *testing.T) {
	assert.Equal(t, "512 B", formatBytes(512))
	assert.Equal(t, "1.5 KB", formatBytes(1536))
	assert.Equal(t, "2.0 MB", formatBytes(2<<20))
}

func TestPadRight(t *testing.T) {
	assert.Equal(t, "abc  ", padRight("abc", 5))
	assert.Equal(t, "abcdef", padRight("abcdef", 3))
}

func TestProgressBarWidth(t *testing.T) {
	// Count fills rather than compare raw strings; the bar may carry ANSI
	// codes when stdout is a terminal.
	cases := map[int]int{0: 0, 50: 5, 100: 10, 150: 10}
	for pct, filled := range cases {
		bar := progressBar(pct, 10)
		assert.Equal(t, filled, strings.Count(bar, "="), "pct %d", pct)
		assert.Equal(t, 10-filled, strings.Count(bar, " "), "pct %d", pct)
	}
}

func TestRetryPolicies(t *testing.T) {
	p := FixedDelay(500 * time.Millisecond)
	for attempt := 1; attempt <= 3; attempt++ {
		assert.Equal(t, 500*time.Millisecond, p(attempt))
	}
	assert.Equal(t, 3*time.Second, DefaultRetry(1))
}
