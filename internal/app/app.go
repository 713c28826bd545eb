// Package app wires together the HTTP server, the WebSocket hub, the song
// catalog and the recording pipeline. It owns the daemon's lifecycle and is
// the single source of truth for the current operating state.
package app

import (
	"context"
	"fmt"
	"log"
	"net"
	"net/http"
	"sync/atomic"
	"time"

	"github.com/large-farva/earshot/internal/catalog"
	"github.com/large-farva/earshot/internal/config"
	"github.com/large-farva/earshot/internal/demo"
	"github.com/large-farva/earshot/internal/pipeline"
	"github.com/large-farva/earshot/internal/ws"
)

// Options holds everything the App needs from the caller.
type Options struct {
	Logger     *log.Logger
	Cfg        config.Config
	Bind       string
	ConfigPath string

	// Store overrides the catalog opened from Cfg.Catalog.Path.
	Store *catalog.Store
	// Recognizer overrides the demo recognizer.
	Recognizer pipeline.Recognizer
}

// App is the top-level daemon process.
type App struct {
	log        *log.Logger
	cfg        config.Config
	bind       string
	configPath string
	server     *http.Server

	startedAt time.Time
	state     atomic.Value // current state string (BOOTING, IDLE, etc.)

	wsHub  *ws.Hub
	store  *catalog.Store
	runner *pipeline.Runner
}

// New creates an App in the BOOTING state, opening and seeding the catalog
// when the caller did not supply one. Call Run to start serving.
func New(opts Options) (*App, error) {
	logger := opts.Logger
	if logger == nil {
		logger = log.New(log.Writer(), "[earshotd] ", log.LstdFlags)
	}

	store := opts.Store
	if store == nil {
		var err error
		store, err = catalog.Open(opts.Cfg.Catalog.Path)
		if err != nil {
			return nil, err
		}
		if opts.Cfg.Catalog.Seed {
			n, err := store.Seed(context.Background(), catalog.DefaultSeed)
			if err != nil {
				store.Close()
				return nil, fmt.Errorf("seed catalog: %w", err)
			}
			if n > 0 {
				logger.Printf("seeded catalog with %d songs", n)
			}
		}
	}

	rec := opts.Recognizer
	if rec == nil {
		rec = demo.New(store, opts.Cfg.Demo.MatchRate)
	}

	a := &App{
		log:        logger,
		cfg:        opts.Cfg,
		bind:       opts.Bind,
		configPath: opts.ConfigPath,
		startedAt:  time.Now(),
		wsHub:      ws.NewHub(logger),
		store:      store,
	}
	a.runner = pipeline.New(pipeline.Options{
		Publisher:       a.wsHub,
		Recognizer:      rec,
		Logger:          logger,
		Recording:       time.Duration(opts.Cfg.Demo.RecordingSeconds) * time.Second,
		EarlyGuessAfter: time.Duration(opts.Cfg.Demo.EarlyGuessSeconds) * time.Second,
		ProgressStep:    opts.Cfg.Demo.ProgressStep,
		Processing:      config.Millis(opts.Cfg.Demo.ProcessingMs),
	})
	a.state.Store("BOOTING")
	return a, nil
}

// Handler returns the daemon's HTTP routes.
func (a *App) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("/healthz", a.handleHealthz)
	mux.HandleFunc("/api/status", a.handleStatus)
	mux.HandleFunc("/api/version", a.handleVersion)
	mux.HandleFunc("/api/record", a.handleRecord)
	mux.HandleFunc("/api/cancel", a.handleCancel)
	mux.HandleFunc("/api/songs", a.handleSongs)
	mux.HandleFunc("/api/songs/add", a.handleAddSong)
	mux.HandleFunc("/api/songs/search", a.handleSearchSongs)
	mux.Handle("/ws", a.wsHub.Handler())
	return mux
}

// Start launches the hub and the pipeline. Run calls it; tests that serve
// Handler through httptest call it directly.
func (a *App) Start(ctx context.Context) {
	go a.wsHub.Run(ctx)
	go a.runner.Run(ctx, a.transition)
	a.transition(pipeline.StateIdle)
}

// Run starts the HTTP server and background workers. It blocks until the
// context is cancelled or the server returns an error.
func (a *App) Run(ctx context.Context) error {
	defer a.Close()

	bind := a.bind
	if bind == "" && a.cfg.Server.Bind != "" {
		bind = a.cfg.Server.Bind
	}
	if bind == "" {
		bind = "0.0.0.0:8080"
	}

	a.server = &http.Server{
		Addr:              bind,
		Handler:           a.Handler(),
		ReadHeaderTimeout: 5 * time.Second,
	}

	ln, err := net.Listen("tcp", bind)
	if err != nil {
		return err
	}

	a.log.Printf("listening on http://%s", bind)
	a.Start(ctx)

	go func() {
		<-ctx.Done()
		a.log.Printf("shutdown requested")
		_ = a.server.Shutdown(context.Background())
	}()

	if err := a.server.Serve(ln); err != nil && err != http.ErrServerClosed {
		return err
	}
	return nil
}

// Close releases the catalog.
func (a *App) Close() error {
	return a.store.Close()
}

// State returns the current daemon state.
func (a *App) State() string {
	return a.state.Load().(string)
}

// transition atomically updates the daemon state and logs the change.
func (a *App) transition(newState string) {
	old := a.state.Swap(newState)
	if old == newState {
		return
	}
	a.log.Printf("state %v -> %s", old, newState)
}
