package ctl

import (
	"context"
	"errors"
	"log"
	"strings"
	"time"

	"github.com/large-farva/earshot/internal/loop"
)

// Control names a user control that a command disables while in flight.
type Control string

const (
	ControlRecord  Control = "record"
	ControlAddSong Control = "add-song"
)

// Notification kinds.
const (
	NotifySuccess = "success"
	NotifyError   = "error"
	NotifyInfo    = "info"
)

// Fixed notification texts for add-song.
const (
	SongAddedMessage     = "Song added successfully!"
	SongAddFailedMessage = "Failed to add song"
)

// DefaultReloadDelay is how long after a successful add-song the catalog
// view is reloaded.
const DefaultReloadDelay = 1500 * time.Millisecond

// ErrMissingFields is returned when an add-song form lacks artist or title.
var ErrMissingFields = errors.New("artist and title are required")

// UI is the part of the presentation the dispatcher drives directly.
type UI interface {
	SetControlBusy(c Control, busy bool)
	CloseModal()
	ShowNotification(message, kind string)
}

// Reloader refreshes everything derived from the catalog.
type Reloader interface {
	Reload()
}

// API is the subset of Client the dispatcher uses.
type API interface {
	StartRecording(ctx context.Context) (RecordResponse, error)
	AddSong(ctx context.Context, req SongRequest) (AddSongResponse, error)
}

// DispatcherOptions configures a Dispatcher.
type DispatcherOptions struct {
	API         API
	Scheduler   loop.Scheduler
	UI          UI
	Reloader    Reloader
	Logger      *log.Logger
	ReloadDelay time.Duration
}

// Dispatcher runs commands off the event loop and reports their outcome
// back on it. Its methods must be called from the loop.
type Dispatcher struct {
	ctx         context.Context
	api         API
	sched       loop.Scheduler
	ui          UI
	reloader    Reloader
	log         *log.Logger
	reloadDelay time.Duration
}

// NewDispatcher builds a dispatcher whose requests are bound to ctx.
func NewDispatcher(ctx context.Context, opts DispatcherOptions) *Dispatcher {
	d := &Dispatcher{
		ctx:         ctx,
		api:         opts.API,
		sched:       opts.Scheduler,
		ui:          opts.UI,
		reloader:    opts.Reloader,
		log:         opts.Logger,
		reloadDelay: opts.ReloadDelay,
	}
	if d.reloadDelay <= 0 {
		d.reloadDelay = DefaultReloadDelay
	}
	return d
}

// StartRecording issues POST /api/record and calls done on the loop with
// the outcome. The record control is disabled until then.
func (d *Dispatcher) StartRecording(done func(error)) {
	d.ui.SetControlBusy(ControlRecord, true)
	go func() {
		resp, err := d.api.StartRecording(d.ctx)
		d.sched.Post(func() {
			d.ui.SetControlBusy(ControlRecord, false)
			if err == nil && resp.ID != "" {
				d.logf("recording %s started", resp.ID)
			}
			done(err)
		})
	}()
}

// AddSong submits a catalog entry. On success the modal closes, a success
// notification is shown and the catalog reloads after the reload delay; on
// failure a failure notification is shown and the form stays open. done,
// when non-nil, receives the outcome on the loop after the UI updates.
func (d *Dispatcher) AddSong(req SongRequest, done func(error)) {
	req.Artist = strings.TrimSpace(req.Artist)
	req.Title = strings.TrimSpace(req.Title)
	req.Album = strings.TrimSpace(req.Album)

	if req.Artist == "" || req.Title == "" {
		d.ui.ShowNotification(SongAddFailedMessage, NotifyError)
		if done != nil {
			done(ErrMissingFields)
		}
		return
	}

	d.ui.SetControlBusy(ControlAddSong, true)
	go func() {
		resp, err := d.api.AddSong(d.ctx, req)
		d.sched.Post(func() {
			if err != nil {
				d.logf("add song failed: %v", err)
				d.ui.ShowNotification(SongAddFailedMessage, NotifyError)
			} else {
				d.logf("song added: %s", resp.Message)
				d.ui.CloseModal()
				d.ui.ShowNotification(SongAddedMessage, NotifySuccess)
				if d.reloader != nil {
					d.sched.AfterFunc(d.reloadDelay, d.reloader.Reload)
				}
			}
			d.ui.SetControlBusy(ControlAddSong, false)
			if done != nil {
				done(err)
			}
		})
	}()
}

func (d *Dispatcher) logf(format string, args ...any) {
	if d.log != nil {
		d.log.Printf(format, args...)
	}
}
