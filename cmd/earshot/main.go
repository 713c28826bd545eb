// Earshot is the console client for a running earshotd. It drives
// recognition sessions interactively or one at a time, manages the song
// catalog, and queries or streams the daemon's state.
package main

import (
	"context"
	"fmt"
	"io"
	"log"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/fatih/color"
	"github.com/spf13/pflag"

	"github.com/large-farva/earshot/internal/config"
	"github.com/large-farva/earshot/internal/ctl"
	"github.com/large-farva/earshot/internal/frontend"
	"github.com/large-farva/earshot/internal/session"
	"github.com/large-farva/earshot/internal/ws"
)

func main() {
	var (
		configPath = pflag.StringP("config", "c", defaultConfigPath(), "Path to config TOML (optional)")
		host       = pflag.StringP("host", "H", "", "Earshot daemon URL (overrides client.url)")
		jsonOut    = pflag.Bool("json", false, "Output raw JSON instead of formatted text")
		filter     = pflag.StringSlice("filter", nil, "Event types to show in watch (e.g. --filter result,error)")
		noColor    = pflag.Bool("no-color", false, "Disable ANSI colors")
		verbose    = pflag.BoolP("verbose", "v", false, "Log connection and session details to stderr")
	)

	// Stop parsing global flags at the first non-flag argument (the command
	// name), so subcommand-specific flags like --artist are not rejected.
	pflag.CommandLine.SetInterspersed(false)
	pflag.Parse()

	if pflag.NArg() < 1 {
		usage()
		os.Exit(2)
	}

	cfg, err := config.LoadOptional(*configPath)
	if err != nil {
		fmt.Fprintln(os.Stderr, "error: config:", err)
		os.Exit(1)
	}
	if *host != "" {
		cfg.Client.URL = *host
	}
	if *noColor || !cfg.UI.Color {
		color.NoColor = true
	}

	logOut := io.Discard
	if *verbose || cfg.Logging.Level == "debug" {
		logOut = os.Stderr
	}
	logger := log.New(logOut, "earshot ", log.LstdFlags|log.Lmicroseconds)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	client := ctl.NewClient(cfg.Client.URL, time.Duration(cfg.Client.HTTPTimeoutSeconds)*time.Second)

	cmd := pflag.Arg(0)
	subArgs := pflag.Args()[1:]

	switch cmd {
	// ── Session commands ──────────────────────────────────────────
	case "listen":
		err = withConsole(ctx, cfg, logger, func(c *frontend.Console) error {
			return c.Listen(ctx, os.Stdin)
		})

	case "identify":
		var final session.State
		err = withConsole(ctx, cfg, logger, func(c *frontend.Console) error {
			var ierr error
			final, ierr = c.Identify(ctx)
			return ierr
		})
		if err == nil && final == session.Error {
			os.Exit(1)
		}

	case "add-song":
		var req ctl.SongRequest
		addFlags := pflag.NewFlagSet("add-song", pflag.ContinueOnError)
		addFlags.StringVar(&req.Artist, "artist", "", "Artist name (required)")
		addFlags.StringVar(&req.Title, "title", "", "Song title (required)")
		addFlags.StringVar(&req.Album, "album", "", "Album name")
		_ = addFlags.Parse(subArgs)
		err = withConsole(ctx, cfg, logger, func(c *frontend.Console) error {
			return c.AddSong(ctx, req)
		})

	// ── Query commands ────────────────────────────────────────────
	case "songs":
		var query string
		songFlags := pflag.NewFlagSet("songs", pflag.ContinueOnError)
		songFlags.StringVar(&query, "search", "", "Only show songs whose title or artist contains this text")
		_ = songFlags.Parse(subArgs)
		err = ctl.Songs(ctx, client, os.Stdout, query, *jsonOut)

	case "status":
		err = ctl.Status(ctx, client, os.Stdout, *jsonOut)

	case "health":
		err = ctl.Health(ctx, client, os.Stdout, *jsonOut)

	case "version":
		err = ctl.VersionInfo(ctx, client, os.Stdout, *jsonOut)

	// ── Live streaming ────────────────────────────────────────────
	case "watch":
		opts := ctl.WatchOptions{
			Filter: *filter,
			JSON:   *jsonOut,
			Logger: logger,
			Retry:  ws.FixedDelay(config.Millis(cfg.Client.ReconnectDelayMs)),
		}
		watchFlags := pflag.NewFlagSet("watch", pflag.ContinueOnError)
		watchFlags.BoolVar(&opts.ShowDropped, "show-dropped", false, "Also print frames that failed to decode")
		_ = watchFlags.Parse(subArgs)
		err = ctl.Watch(ctx, cfg.Client.URL, os.Stdout, opts)

	default:
		usage()
		os.Exit(2)
	}

	if err != nil {
		fmt.Fprintln(os.Stderr, "error:", err)
		os.Exit(1)
	}
}

// withConsole runs fn against a console whose loop and connection live for
// the duration of the call.
func withConsole(ctx context.Context, cfg config.Config, logger *log.Logger, fn func(*frontend.Console) error) error {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	c, err := frontend.New(ctx, frontend.Options{
		Cfg:    cfg,
		Out:    os.Stdout,
		Logger: logger,
		Color:  !color.NoColor,
	})
	if err != nil {
		return err
	}

	done := make(chan struct{})
	go func() {
		defer close(done)
		_ = c.Run(ctx)
	}()

	err = fn(c)
	cancel()
	<-done
	if err == context.Canceled {
		return nil
	}
	return err
}

func defaultConfigPath() string {
	dir, err := os.UserConfigDir()
	if err != nil {
		return ""
	}
	return filepath.Join(dir, "earshot", "earshot.toml")
}

func usage() {
	fmt.Print(`
  earshot — song recognition console

  USAGE
    earshot [flags] <command> [command-flags]

  COMMANDS (session)
    listen          Interactive console (r record, x reset, a add song, q quit)
    identify        Run one recognition and exit (0 on a result, 1 on an error)
    add-song        Add one song to the catalog

  COMMANDS (query)
    songs           List the song catalog
    status          Show daemon state, uptime, and current recording
    health          Check daemon health
    version         Show CLI and daemon version information

  COMMANDS (live)
    watch           Stream live recognition events (Ctrl-C to stop)

  GLOBAL FLAGS
    -c, --config PATH   Config TOML (default: user config dir, optional)
    -H, --host URL      Daemon base URL (default: http://127.0.0.1:8080)
        --json          Output raw JSON instead of formatted text
        --filter TYPE   Event types to show in watch (comma-separated)
        --no-color      Disable ANSI colors
    -v, --verbose       Log connection and session details to stderr

  COMMAND FLAGS
    add-song:
        --artist NAME       Artist name (required)
        --title NAME        Song title (required)
        --album NAME        Album name

    songs:
        --search TEXT       Filter by title or artist

    watch:
        --show-dropped      Also print frames that failed to decode

  EXAMPLES
    earshot listen
    earshot identify
    earshot add-song --artist "Daft Punk" --title "Get Lucky" --album "Random Access Memories"
    earshot songs --search queen
    earshot --json status
    earshot --host http://192.168.8.1:8080 watch --filter result,error

`)
}
