// Trackctl is the command-line client for monitoring and controlling a
// running trackerd instance. It connects over HTTP and WebSocket to drive
// sessions and stream live events from the daemon.
package main

import (
	"fmt"
	"os"
	"strings"

	"github.com/spf13/pflag"

	"github.com/jugogpt/tracker-engine/internal/ctl"
)

func main() {
	var (
		host    = pflag.StringP("host", "H", "http://127.0.0.1:5000", "Tracker daemon URL (e.g. http://192.168.1.10:5000)")
		jsonOut = pflag.Bool("json", false, "Output raw JSON instead of formatted text")
		filter  = pflag.StringSlice("filter", nil, "Event types to show in watch (e.g. --filter session_state,final_transcript)")
	)

	// Stop parsing global flags at the first non-flag argument (the command
	// name), so subcommand-specific flags like --day are not rejected.
	pflag.CommandLine.SetInterspersed(false)
	pflag.Parse()

	if pflag.NArg() < 1 {
		usage()
		os.Exit(2)
	}

	cmd := pflag.Arg(0)
	subArgs := pflag.Args()[1:]

	var err error
	switch cmd {
	// ── Query commands ────────────────────────────────────────────
	case "status":
		err = ctl.Status(*host, *jsonOut)

	case "health":
		err = ctl.Health(*host, *jsonOut)

	case "version":
		err = ctl.VersionInfo(*host, *jsonOut)

	case "activity":
		err = ctl.Activity(*host, *jsonOut)

	case "usage":
		opts := ctl.UsageOptions{JSON: *jsonOut}
		usageFlags := pflag.NewFlagSet("usage", pflag.ContinueOnError)
		usageFlags.StringVar(&opts.Day, "day", "", "Day to report (YYYY-MM-DD, default today)")
		_ = usageFlags.Parse(subArgs)
		err = ctl.Usage(*host, opts)

	case "chart":
		err = ctl.Chart(*host, *jsonOut)

	case "recordings":
		err = ctl.Recordings(*host, *jsonOut)

	case "screenshots":
		err = ctl.Screenshots(*host, *jsonOut)

	case "transcripts":
		err = ctl.Transcripts(*host, *jsonOut)

	case "workflows":
		err = ctl.Workflows(*host, *jsonOut)

	case "folders":
		err = ctl.Folders(*host, *jsonOut)

	// ── Control commands ──────────────────────────────────────────
	case "record":
		err = subcommand(subArgs, map[string]func() error{
			"start":  func() error { return ctl.RecordStart(*host, *jsonOut) },
			"stop":   func() error { return ctl.RecordStop(*host, *jsonOut) },
			"status": func() error { return ctl.RecordStatus(*host, *jsonOut) },
		})

	case "voice":
		err = subcommand(subArgs, map[string]func() error{
			"start":  func() error { return ctl.VoiceStart(*host, *jsonOut) },
			"stop":   func() error { return ctl.VoiceStop(*host, *jsonOut) },
			"status": func() error { return ctl.VoiceStatus(*host, *jsonOut) },
			"say": func() error {
				return ctl.VoiceMessage(*host, strings.Join(subArgs[1:], " "), *jsonOut)
			},
		})

	case "shoot":
		err = ctl.Screenshot(*host, *jsonOut)

	case "generate":
		err = ctl.Generate(*host, strings.Join(subArgs, " "), *jsonOut)

	case "analyze":
		kind := "quick"
		analyzeFlags := pflag.NewFlagSet("analyze", pflag.ContinueOnError)
		detailed := analyzeFlags.Bool("detailed", false, "Run detailed analysis (feeds workflow synthesis)")
		_ = analyzeFlags.Parse(subArgs)
		if *detailed {
			kind = "detailed"
		}
		err = ctl.Analyze(*host, kind, analyzeFlags.Arg(0), *jsonOut)

	case "open":
		folder := "root"
		if len(subArgs) > 0 {
			folder = subArgs[0]
		}
		err = ctl.OpenFolder(*host, folder, *jsonOut)

	// ── Live streaming ────────────────────────────────────────────
	case "watch":
		watchFlags := pflag.NewFlagSet("watch", pflag.ContinueOnError)
		once := watchFlags.Bool("once", false, "Exit on disconnect instead of reconnecting")
		_ = watchFlags.Parse(subArgs)
		err = ctl.Watch(*host, ctl.WatchOptions{
			Filter: *filter,
			JSON:   *jsonOut,
			Once:   *once,
		})

	default:
		usage()
		os.Exit(2)
	}

	if err != nil {
		fmt.Fprintln(os.Stderr, "error:", err)
		os.Exit(1)
	}
}

// subcommand dispatches on the first argument of a two-level command.
func subcommand(args []string, cmds map[string]func() error) error {
	if len(args) < 1 {
		return fmt.Errorf("subcommand required")
	}
	fn, ok := cmds[args[0]]
	if !ok {
		return fmt.Errorf("unknown subcommand %q", args[0])
	}
	return fn()
}

func usage() {
	fmt.Print(`
  trackctl — Tracker Engine control CLI

  USAGE
    trackctl [flags] <command> [command-flags]

  COMMANDS (query)
    status          Show daemon state, sessions, and uptime
    health          Check daemon health
    version         Show CLI and daemon version information
    activity        Show the current foreground application
    usage           Show aggregated app usage for one day
    chart           Show the usage chart for today
    recordings      List recorded sessions
    screenshots     List captured screenshots
    transcripts     List saved conversation logs
    workflows       List generated workflow documents
    folders         Show the daemon's artifact directories

  COMMANDS (control)
    record start    Begin a screen recording session
    record stop     End the screen recording session
    record status   Show the capture session state
    voice start     Begin a voice transcription session
    voice stop      End the voice session (queues workflow synthesis)
    voice status    Show the voice session state
    voice say TEXT  Inject a typed message into the session transcript
    shoot           Capture a single screenshot
    generate TEXT   Queue workflow synthesis for a transcript
    analyze FILE    Run AI analysis of a recording
    open [FOLDER]   Open an artifact folder in the file manager

  COMMANDS (live)
    watch           Stream live events from the daemon (Ctrl-C to stop)

  GLOBAL FLAGS
    -H, --host URL      Daemon base URL (default: http://127.0.0.1:5000)
        --json          Output raw JSON instead of formatted text
        --filter TYPE   Event types to show in watch (comma-separated)

  COMMAND FLAGS
    usage:
        --day YYYY-MM-DD    Day to report (default: today)

    analyze:
        --detailed          Detailed analysis, feeds workflow synthesis

    watch:
        --once              Exit on disconnect instead of reconnecting

  EXAMPLES
    trackctl status
    trackctl --json status
    trackctl record start
    trackctl voice start
    trackctl voice say "open chrome and search cats"
    trackctl voice stop
    trackctl generate "open the editor and run the tests"
    trackctl analyze --detailed recording_20260831_120000.mp4
    trackctl usage --day 2026-08-30
    trackctl watch --filter session_state,final_transcript
    trackctl --host http://192.168.1.10:5000 watch

`)
}
