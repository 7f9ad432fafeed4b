// Trackerd is the activity-tracking daemon. It owns the screen capture,
// voice transcription, and workflow synthesis sessions, records foreground
// app usage, and streams everything to clients over HTTP and WebSocket.
// Shutdown is handled gracefully on SIGINT or SIGTERM.
package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/spf13/pflag"

	"github.com/jugogpt/tracker-engine/internal/app"
	"github.com/jugogpt/tracker-engine/internal/config"
)

func main() {
	var (
		configPath = pflag.StringP("config", "c", "tracker.toml", "Path to config TOML")
		bind       = pflag.String("bind", "", "HTTP bind address (overrides config)")
		logLevel   = pflag.String("log-level", "", "Log level (overrides config)")
	)
	pflag.Parse()

	logger := logrus.New()
	logger.SetFormatter(&logrus.TextFormatter{FullTimestamp: true})

	cfg, err := config.Load(*configPath)
	if err != nil {
		logger.WithError(err).Fatal("config load failed")
	}

	level := cfg.Logging.Level
	if *logLevel != "" {
		level = *logLevel
	}
	if parsed, err := logrus.ParseLevel(level); err == nil {
		logger.SetLevel(parsed)
	} else {
		logger.WithField("level", level).Warn("unknown log level, using info")
	}

	a, err := app.New(app.Options{
		Logger: logger,
		Cfg:    cfg,
		Bind:   *bind,
	})
	if err != nil {
		logger.WithError(err).Fatal("startup failed")
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := a.Run(ctx); err != nil {
		logger.WithError(err).Fatal("trackerd failed")
	}

	// Brief pause so in-flight log writes can flush before exit.
	time.Sleep(50 * time.Millisecond)
}
