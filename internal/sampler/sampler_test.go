package sampler

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jugogpt/tracker-engine/internal/store"
)

type recorderStub struct {
	records []store.UsageRecord
	fail    bool
}

func (r *recorderStub) Append(_ context.Context, rec store.UsageRecord) error {
	if r.fail {
		return errors.New("db closed")
	}
	r.records = append(r.records, rec)
	return nil
}

func TestObserveFlushesOnIdentityChange(t *testing.T) {
	rec := &recorderStub{}
	s := New(nil, rec, time.Second, logrus.New())

	base := time.Date(2026, 8, 31, 12, 0, 0, 0, time.UTC)
	tick := func(i int) time.Time { return base.Add(time.Duration(i) * time.Second) }

	// Polls: A A B B B A
	apps := []string{"chrome", "chrome", "code", "code", "code", "chrome"}
	for i, app := range apps {
		s.observe(context.Background(), app, tick(i))
	}

	require.Len(t, rec.records, 2)
	assert.Equal(t, "chrome", rec.records[0].AppName)
	assert.InDelta(t, 2.0, rec.records[0].Seconds, 0.001)
	assert.Equal(t, "code", rec.records[1].AppName)
	assert.InDelta(t, 3.0, rec.records[1].Seconds, 0.001)

	// The trailing chrome interval is still open.
	app, since := s.Current()
	assert.Equal(t, "chrome", app)
	assert.Equal(t, tick(5), since)
}

func TestObserveFirstPollFlushesNothing(t *testing.T) {
	rec := &recorderStub{}
	s := New(nil, rec, time.Second, logrus.New())

	s.observe(context.Background(), "chrome", time.Now())
	assert.Empty(t, rec.records)
}

func TestObserveSameAppIsNoop(t *testing.T) {
	rec := &recorderStub{}
	s := New(nil, rec, time.Second, logrus.New())

	now := time.Now()
	s.observe(context.Background(), "chrome", now)
	s.observe(context.Background(), "chrome", now.Add(time.Second))
	s.observe(context.Background(), "chrome", now.Add(2*time.Second))

	assert.Empty(t, rec.records)
	_, since := s.Current()
	assert.Equal(t, now, since, "open interval start must not move")
}

type failingProber struct{ calls int }

func (p *failingProber) ForegroundApp(context.Context) (string, error) {
	p.calls++
	return "", errors.New("no display")
}

func TestRunSkipsFailedProbes(t *testing.T) {
	rec := &recorderStub{}
	probe := &failingProber{}
	s := New(probe, rec, 10*time.Millisecond, logrus.New())

	ctx, cancel := context.WithTimeout(context.Background(), 60*time.Millisecond)
	defer cancel()
	s.Run(ctx)

	assert.Greater(t, probe.calls, 0)
	assert.Empty(t, rec.records, "failed probes must not produce records")
	app, _ := s.Current()
	assert.Empty(t, app)
}

func TestNewCommandProber(t *testing.T) {
	assert.Nil(t, NewCommandProber(nil))
	p := NewCommandProber([]string{"xdotool", "getactivewindow"})
	require.NotNil(t, p)
	assert.Equal(t, "xdotool", p.Name)
	assert.Equal(t, []string{"getactivewindow"}, p.Args)
}
