// Package config handles loading, defaulting, and validation of the trackerd
// TOML configuration file. Every section maps to a typed struct so the rest
// of the codebase gets strong typing without manual key lookups.
package config

import (
	"errors"
	"os"
	"time"

	"github.com/pelletier/go-toml/v2"
)

// Config is the top-level configuration, mirroring the TOML sections.
type Config struct {
	Data     DataConfig     `toml:"data"     json:"data"`
	Logging  LoggingConfig  `toml:"logging"  json:"logging"`
	Server   ServerConfig   `toml:"server"   json:"server"`
	Sampler  SamplerConfig  `toml:"sampler"  json:"sampler"`
	Capture  CaptureConfig  `toml:"capture"  json:"capture"`
	Voice    VoiceConfig    `toml:"voice"    json:"voice"`
	LLM      LLMConfig      `toml:"llm"      json:"llm"`
	Workflow WorkflowConfig `toml:"workflow" json:"workflow"`
}

type DataConfig struct {
	Root string `toml:"root" json:"root"`
}

type LoggingConfig struct {
	Level string `toml:"level" json:"level"`
}

type ServerConfig struct {
	Bind string `toml:"bind" json:"bind"`
}

type SamplerConfig struct {
	IntervalSeconds int `toml:"interval_seconds" json:"interval_seconds"`

	// ProbeCommand resolves the foreground application identity, e.g.
	// ["xdotool", "getactivewindow", "getwindowclassname"]. Empty disables
	// sampling.
	ProbeCommand []string `toml:"probe_command" json:"probe_command"`
}

type CaptureConfig struct {
	FPS int `toml:"fps" json:"fps"`

	// GrabCommand streams raw frames to stdout for the recording session.
	// When empty, a synthetic frame source is used so the full pipeline can
	// run without a display server.
	GrabCommand []string `toml:"grab_command" json:"grab_command"`

	// ShotCommand captures one screenshot; the output path is appended as
	// the final argument. Empty falls back to the synthetic shooter.
	ShotCommand []string `toml:"shot_command" json:"shot_command"`
}

type VoiceConfig struct {
	SampleRate      int     `toml:"sample_rate"       json:"sample_rate"`
	FrameSamples    int     `toml:"frame_samples"     json:"frame_samples"`
	LevelThrottleMS int     `toml:"level_throttle_ms" json:"level_throttle_ms"`
	VADThreshold    float64 `toml:"vad_threshold"     json:"vad_threshold"`
	SilenceMS       int     `toml:"silence_ms"        json:"silence_ms"`
	MaxSegmentS     int     `toml:"max_segment_s"     json:"max_segment_s"`

	// RecordCommand streams raw PCM to stdout (arecord style). Empty uses
	// the synthetic tone source.
	RecordCommand []string `toml:"record_command" json:"record_command"`
	DeviceName    string   `toml:"device_name"    json:"device_name"`

	// STTCommand transcribes a WAV segment (path appended) and prints the
	// text on stdout. Empty disables transcription.
	STTCommand []string `toml:"stt_command" json:"stt_command"`
}

type LLMConfig struct {
	// OpenAIModels are tried in order until one succeeds.
	OpenAIModels     []string `toml:"openai_models"      json:"openai_models"`
	OpenAIMaxTokens  int      `toml:"openai_max_tokens"  json:"openai_max_tokens"`
	AnthropicModel   string   `toml:"anthropic_model"    json:"anthropic_model"`
	AnthropicBaseURL string   `toml:"anthropic_base_url" json:"anthropic_base_url"`
	TimeoutSeconds   int      `toml:"timeout_seconds"    json:"timeout_seconds"`
}

type WorkflowConfig struct {
	QueueSize          int `toml:"queue_size"           json:"queue_size"`
	WaitCeilingSeconds int `toml:"wait_ceiling_seconds" json:"wait_ceiling_seconds"`
}

// Default returns a Config populated with sane defaults. Values here are
// used whenever the TOML file omits a field.
func Default() Config {
	return Config{
		Data: DataConfig{
			Root: "data",
		},
		Logging: LoggingConfig{
			Level: "info",
		},
		Server: ServerConfig{
			Bind: "127.0.0.1:5000",
		},
		Sampler: SamplerConfig{
			IntervalSeconds: 1,
			ProbeCommand:    []string{"xdotool", "getactivewindow", "getwindowclassname"},
		},
		Capture: CaptureConfig{
			FPS: 3,
		},
		Voice: VoiceConfig{
			SampleRate:      16000,
			FrameSamples:    1024,
			LevelThrottleMS: 50,
			VADThreshold:    0.02,
			SilenceMS:       700,
			MaxSegmentS:     10,
		},
		LLM: LLMConfig{
			OpenAIModels:    []string{"gpt-4o", "gpt-4-turbo", "gpt-3.5-turbo"},
			OpenAIMaxTokens: 2000,
			AnthropicModel:  "claude-3-haiku-20240307",
			TimeoutSeconds:  30,
		},
		Workflow: WorkflowConfig{
			QueueSize:          16,
			WaitCeilingSeconds: 120,
		},
	}
}

// Load reads the TOML file at path, layers it on top of the defaults, and
// validates the result. A missing file is not an error; the defaults apply.
func Load(path string) (Config, error) {
	cfg := Default()

	b, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return cfg, nil
		}
		return cfg, err
	}

	if err := toml.Unmarshal(b, &cfg); err != nil {
		return cfg, err
	}

	if err := validate(cfg); err != nil {
		return cfg, err
	}

	return cfg, nil
}

// LLMTimeout returns the bounded timeout applied to every upstream AI call.
func (c Config) LLMTimeout() time.Duration {
	return time.Duration(c.LLM.TimeoutSeconds) * time.Second
}

// WorkflowWaitCeiling returns how long a queued generation request may wait
// before it is failed with Busy.
func (c Config) WorkflowWaitCeiling() time.Duration {
	return time.Duration(c.Workflow.WaitCeilingSeconds) * time.Second
}

func validate(cfg Config) error {
	if cfg.Data.Root == "" {
		return errors.New("data.root must not be empty")
	}
	if cfg.Sampler.IntervalSeconds < 1 {
		return errors.New("sampler.interval_seconds must be >= 1")
	}
	if cfg.Capture.FPS < 1 {
		return errors.New("capture.fps must be >= 1")
	}
	if cfg.Voice.SampleRate <= 0 {
		return errors.New("voice.sample_rate must be > 0")
	}
	if cfg.Voice.FrameSamples <= 0 {
		return errors.New("voice.frame_samples must be > 0")
	}
	if cfg.Voice.VADThreshold < 0 || cfg.Voice.VADThreshold > 1 {
		return errors.New("voice.vad_threshold must be between 0 and 1")
	}
	if cfg.LLM.TimeoutSeconds < 1 {
		return errors.New("llm.timeout_seconds must be >= 1")
	}
	if cfg.Workflow.QueueSize < 1 {
		return errors.New("workflow.queue_size must be >= 1")
	}
	if cfg.Workflow.WaitCeilingSeconds < 1 {
		return errors.New("workflow.wait_ceiling_seconds must be >= 1")
	}
	return nil
}
