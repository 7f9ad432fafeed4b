package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeConfig(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "tracker.toml")
	require.NoError(t, os.WriteFile(path, []byte(body), 0o644))
	return path
}

func TestDefaultIsValid(t *testing.T) {
	assert.NoError(t, validate(Default()))
}

func TestLoadMissingFileUsesDefaults(t *testing.T) {
	cfg, err := Load(filepath.Join(t.TempDir(), "nope.toml"))
	require.NoError(t, err)
	assert.Equal(t, Default(), cfg)
}

func TestLoadOverridesDefaults(t *testing.T) {
	path := writeConfig(t, `
[server]
bind = "0.0.0.0:8080"

[voice]
sample_rate = 48000
silence_ms = 500

[llm]
timeout_seconds = 10

[workflow]
queue_size = 4
`)

	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, "0.0.0.0:8080", cfg.Server.Bind)
	assert.Equal(t, 48000, cfg.Voice.SampleRate)
	assert.Equal(t, 500, cfg.Voice.SilenceMS)
	assert.Equal(t, 10*time.Second, cfg.LLMTimeout())
	assert.Equal(t, 4, cfg.Workflow.QueueSize)

	// Untouched sections keep their defaults.
	assert.Equal(t, Default().Sampler, cfg.Sampler)
	assert.Equal(t, Default().Voice.VADThreshold, cfg.Voice.VADThreshold)
}

func TestLoadRejectsInvalidValues(t *testing.T) {
	cases := map[string]string{
		"vad out of range": "[voice]\nvad_threshold = 2.0\n",
		"zero sample rate": "[voice]\nsample_rate = 0\n",
		"zero queue":       "[workflow]\nqueue_size = 0\n",
		"empty data root":  "[data]\nroot = \"\"\n",
	}
	for name, body := range cases {
		t.Run(name, func(t *testing.T) {
			_, err := Load(writeConfig(t, body))
			assert.Error(t, err)
		})
	}
}

func TestLoadRejectsMalformedTOML(t *testing.T) {
	_, err := Load(writeConfig(t, "[server\nbind ="))
	assert.Error(t, err)
}

func TestWorkflowWaitCeiling(t *testing.T) {
	cfg := Default()
	assert.Equal(t, 2*time.Minute, cfg.WorkflowWaitCeiling())
}
