// Package frontend is the composition root of the earshot console. It builds
// one event loop, one terminal renderer, one command dispatcher, one session
// controller and one connection manager, wires them together and exposes
// the three ways of driving them: an interactive console, a single
// identification, and a single add-song command.
package frontend

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"log"
	"strings"
	"time"

	"github.com/large-farva/earshot/internal/config"
	"github.com/large-farva/earshot/internal/ctl"
	"github.com/large-farva/earshot/internal/loop"
	"github.com/large-farva/earshot/internal/render"
	"github.com/large-farva/earshot/internal/session"
	"github.com/large-farva/earshot/internal/telemetry"
	"github.com/large-farva/earshot/internal/ws"
)

// Options configures a console.
type Options struct {
	Cfg config.Config
	// URL overrides Cfg.Client.URL.
	URL    string
	Out    io.Writer
	Logger *log.Logger
	// Color enables ANSI colors; callers combine the config switch with a
	// terminal check.
	Color bool
}

// Console owns every client-side component. All fields except the
// channels are touched only from the loop.
type Console struct {
	ctx    context.Context
	log    *log.Logger
	loop   *loop.Loop
	term   *render.Terminal
	client *ctl.Client
	disp   *ctl.Dispatcher
	ctrl   *session.Controller
	conn   *ws.Manager

	opened   chan struct{}
	isOpen   bool
	states   chan session.State
	reloaded chan []telemetry.Song
}

// New builds a console whose requests and reconnects are bound to ctx.
func New(ctx context.Context, opts Options) (*Console, error) {
	cfg := opts.Cfg
	base := opts.URL
	if base == "" {
		base = cfg.Client.URL
	}
	wsURL, err := ws.WebSocketURL(base)
	if err != nil {
		return nil, fmt.Errorf("server url: %w", err)
	}

	logger := opts.Logger
	if logger == nil {
		logger = log.New(io.Discard, "", 0)
	}

	c := &Console{
		ctx:      ctx,
		log:      logger,
		loop:     loop.New(),
		client:   ctl.NewClient(base, time.Duration(cfg.Client.HTTPTimeoutSeconds)*time.Second),
		opened:   make(chan struct{}),
		states:   make(chan session.State, 16),
		reloaded: make(chan []telemetry.Song, 1),
	}

	c.term = render.NewTerminal(render.Options{
		Out:       opts.Out,
		Scheduler: c.loop,
		Color:     opts.Color,
	})
	n := c.term.Notifier()
	n.AppearAfter = config.Millis(cfg.UI.NotificationAppearMs)
	n.HideAfter = config.Millis(cfg.UI.NotificationHideMs)
	n.RemoveAfter = config.Millis(cfg.UI.NotificationRemoveMs)

	c.disp = ctl.NewDispatcher(ctx, ctl.DispatcherOptions{
		API:         c.client,
		Scheduler:   c.loop,
		UI:          c.term,
		Reloader:    c,
		Logger:      logger,
		ReloadDelay: config.Millis(cfg.UI.ReloadDelayMs),
	})

	c.ctrl = session.New(session.Options{
		Scheduler:     c.loop,
		Recorder:      c.disp,
		Renderer:      c.term,
		Logger:        logger,
		CountdownFrom: cfg.Client.CountdownFrom,
		OnStateChange: c.stateChanged,
	})

	var onDrop func([]byte, error)
	if cfg.Logging.Level == "debug" {
		onDrop = func(raw []byte, err error) {
			logger.Printf("dropped frame (%d bytes): %v", len(raw), err)
		}
	}

	c.conn = ws.NewManager(ws.ManagerOptions{
		URL:         wsURL,
		Retry:       retryPolicy(cfg.Client),
		Logger:      logger,
		ReadTimeout: time.Duration(cfg.Client.ReadTimeoutSeconds) * time.Second,
		Post:        c.loop.Post,
		OnEvent:     c.ctrl.HandleEvent,
		OnDrop:      onDrop,
		OnStatus:    c.statusChanged,
	})
	return c, nil
}

func retryPolicy(cc config.ClientConfig) ws.RetryPolicy {
	base := config.Millis(cc.ReconnectDelayMs)
	if cc.ReconnectJitterMs > 0 {
		return ws.JitteredDelay{Base: base, Jitter: config.Millis(cc.ReconnectJitterMs)}
	}
	return ws.FixedDelay(base)
}

// Run drives the loop and the connection until ctx ends.
func (c *Console) Run(ctx context.Context) error {
	go func() { _ = c.conn.Run(ctx) }()
	err := c.loop.Run(ctx)
	if errors.Is(err, context.Canceled) {
		return nil
	}
	return err
}

// Snapshot returns the session fields, read on the loop.
func (c *Console) Snapshot(ctx context.Context) (session.Snapshot, error) {
	var s session.Snapshot
	err := loop.Do(ctx, c.loop, func() { s = c.ctrl.Snapshot() })
	return s, err
}

// Reload re-fetches the catalog and shows its size. It is the console
// counterpart of reloading the page.
func (c *Console) Reload() {
	go func() {
		songs, err := c.client.Songs(c.ctx)
		c.loop.Post(func() {
			if err != nil {
				c.log.Printf("reload catalog: %v", err)
				c.term.Printf("catalog reload failed: %v", err)
			} else {
				c.term.Catalog(songs)
			}
			select {
			case c.reloaded <- songs:
			default:
			}
		})
	}()
}

func (c *Console) stateChanged(from, to session.State) {
	c.log.Printf("session %s -> %s", from, to)
	select {
	case c.states <- to:
	default:
	}
}

func (c *Console) statusChanged(s ws.Status) {
	c.log.Printf("channel %s", s)
	switch s {
	case ws.StatusOpen:
		c.term.Printf("connected to %s", c.client.BaseURL())
		if !c.isOpen {
			c.isOpen = true
			close(c.opened)
		}
	case ws.StatusClosed:
		c.term.Printf("connection lost, reconnecting...")
	}
}

// waitOpen blocks until the channel has opened once.
func (c *Console) waitOpen(ctx context.Context) error {
	select {
	case <-c.opened:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Identify runs one session once the channel is open and returns the
// terminal state it ends in: session.Result or session.Error.
func (c *Console) Identify(ctx context.Context) (session.State, error) {
	if err := c.waitOpen(ctx); err != nil {
		return session.Idle, err
	}
	c.loop.Post(func() { c.ctrl.Start() })

	for {
		select {
		case s := <-c.states:
			if s.Terminal() {
				return s, nil
			}
		case <-ctx.Done():
			return session.Idle, ctx.Err()
		}
	}
}

// AddSong submits one catalog entry and waits for its side effects: on
// success the catalog reload, on failure the error notification.
func (c *Console) AddSong(ctx context.Context, req ctl.SongRequest) error {
	done := make(chan error, 1)
	c.loop.Post(func() {
		c.term.OpenModal()
		c.disp.AddSong(req, func(err error) { done <- err })
	})

	var err error
	select {
	case err = <-done:
	case <-ctx.Done():
		return ctx.Err()
	}

	if err != nil {
		c.settle(ctx, c.term.Notifier().AppearAfter)
		return err
	}
	select {
	case <-c.reloaded:
	case <-ctx.Done():
		return ctx.Err()
	}
	return nil
}

// settle waits until callbacks scheduled d from now have run.
func (c *Console) settle(ctx context.Context, d time.Duration) {
	ch := make(chan struct{})
	c.loop.AfterFunc(d+20*time.Millisecond, func() { close(ch) })
	select {
	case <-ch:
	case <-ctx.Done():
	}
}

const listenHelp = `commands:
  r                          start listening
  x                          reset after a result or error
  a artist | title | album   add a song to the catalog
  l                          list catalog size
  q                          quit`

// Listen reads console commands from in until "q", end of input, or ctx
// ends.
func (c *Console) Listen(ctx context.Context, in io.Reader) error {
	lines := make(chan string)
	go func() {
		defer close(lines)
		sc := bufio.NewScanner(in)
		for sc.Scan() {
			select {
			case lines <- sc.Text():
			case <-ctx.Done():
				return
			}
		}
	}()

	c.loop.Post(func() {
		c.term.Printf("%s", listenHelp)
		c.term.ResetView()
	})

	for {
		select {
		case <-ctx.Done():
			return nil
		case line, ok := <-lines:
			if !ok {
				return nil
			}
			if quit := c.command(strings.TrimSpace(line)); quit {
				return nil
			}
		}
	}
}

// command posts one console command to the loop. It reports whether the
// console should exit.
func (c *Console) command(line string) bool {
	if line == "" {
		return false
	}
	verb, rest, _ := strings.Cut(line, " ")
	switch verb {
	case "q", "quit":
		return true
	case "r", "record":
		c.loop.Post(func() {
			if c.term.Busy(ctl.ControlRecord) || !c.ctrl.Start() {
				c.term.Printf("a session is already running")
			}
		})
	case "x", "reset":
		c.loop.Post(func() {
			if !c.ctrl.Reset() {
				c.term.Printf("nothing to reset")
			}
		})
	case "a", "add":
		req := parseSong(rest)
		c.loop.Post(func() {
			if c.term.Busy(ctl.ControlAddSong) {
				c.term.Printf("an add-song request is already in flight")
				return
			}
			c.term.OpenModal()
			c.disp.AddSong(req, nil)
		})
	case "l", "list":
		c.Reload()
	default:
		c.loop.Post(func() { c.term.Printf("%s", listenHelp) })
	}
	return false
}

// parseSong splits "artist | title | album"; missing parts are empty.
func parseSong(s string) ctl.SongRequest {
	parts := strings.SplitN(s, "|", 3)
	for len(parts) < 3 {
		parts = append(parts, "")
	}
	return ctl.SongRequest{
		Artist: strings.TrimSpace(parts[0]),
		Title:  strings.TrimSpace(parts[1]),
		Album:  strings.TrimSpace(parts[2]),
	}
}
