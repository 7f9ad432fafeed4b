// Package sampler polls the foreground application identity on a fixed
// interval and turns identity changes into usage records. This is a
// low-frequency, non-interactive data path: records go to the usage store,
// not the live event stream.
package sampler

import (
	"context"
	"os/exec"
	"strings"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/jugogpt/tracker-engine/internal/store"
)

// Prober resolves the currently focused application identity. A failed
// lookup (permission denial, transient OS error) returns an error and is
// treated as "no change observed this tick".
type Prober interface {
	ForegroundApp(ctx context.Context) (string, error)
}

// Recorder receives completed usage intervals. Satisfied by
// *store.UsageStore.
type Recorder interface {
	Append(ctx context.Context, rec store.UsageRecord) error
}

// Sampler tracks (currentApp, sinceTimestamp) and flushes the elapsed
// interval for the previous app whenever the identity changes.
type Sampler struct {
	Probe    Prober
	Store    Recorder
	Interval time.Duration
	Log      *logrus.Logger

	current string
	since   time.Time
}

// New creates a sampler. Interval defaults to one second.
func New(probe Prober, rec Recorder, interval time.Duration, log *logrus.Logger) *Sampler {
	if interval <= 0 {
		interval = time.Second
	}
	return &Sampler{Probe: probe, Store: rec, Interval: interval, Log: log}
}

// Run polls until the context is cancelled. The sampler lives for the
// process lifetime; there is no stop command.
func (s *Sampler) Run(ctx context.Context) {
	t := time.NewTicker(s.Interval)
	defer t.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case now := <-t.C:
			app, err := s.Probe.ForegroundApp(ctx)
			if err != nil {
				// Unresolvable poll: skip silently, keep the open interval.
				continue
			}
			s.observe(ctx, app, now)
		}
	}
}

// observe applies one poll result. Exposed to tests through the package so
// the interval logic can be exercised without a live ticker.
func (s *Sampler) observe(ctx context.Context, app string, now time.Time) {
	if app == s.current {
		return
	}

	if s.current != "" {
		rec := store.UsageRecord{
			AppName:    s.current,
			Seconds:    now.Sub(s.since).Seconds(),
			CapturedAt: now,
		}
		if err := s.Store.Append(ctx, rec); err != nil {
			s.Log.WithError(err).Warn("sampler: usage record not written")
		}
	}

	s.current = app
	s.since = now
}

// Current returns the open (not yet flushed) interval.
func (s *Sampler) Current() (app string, since time.Time) {
	return s.current, s.since
}

// CommandProber resolves the foreground app by running a short-lived
// subprocess (xdotool and friends) and reading its first output line.
type CommandProber struct {
	Name string
	Args []string
}

// NewCommandProber builds a prober from a command vector. Returns nil when
// the vector is empty, which disables sampling.
func NewCommandProber(cmd []string) *CommandProber {
	if len(cmd) == 0 {
		return nil
	}
	return &CommandProber{Name: cmd[0], Args: cmd[1:]}
}

// ForegroundApp runs the probe command and returns the trimmed first line.
func (p *CommandProber) ForegroundApp(ctx context.Context) (string, error) {
	out, err := exec.CommandContext(ctx, p.Name, p.Args...).Output()
	if err != nil {
		return "", err
	}
	line, _, _ := strings.Cut(strings.TrimSpace(string(out)), "\n")
	return strings.TrimSpace(line), nil
}
