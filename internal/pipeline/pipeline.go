// Package pipeline drives the daemon side of a recognition: it accepts
// record commands, runs one recording at a time, and publishes the
// resulting event stream (early guess, progress, processing, result or
// error) to every connected client.
package pipeline

import (
	"context"
	"errors"
	"fmt"
	"log"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"

	"github.com/large-farva/earshot/internal/telemetry"
)

// ErrBusy is returned when a record command arrives while a recording is
// already running.
var ErrBusy = errors.New("a recording is already in progress")

// Command types accepted on Runner.Commands.
const (
	CmdRecord = "record"
	CmdCancel = "cancel"
)

// Daemon states reported through setState.
const (
	StateIdle       = "IDLE"
	StateRecording  = "RECORDING"
	StateProcessing = "PROCESSING"
)

// Recognizer identifies whatever is currently playing.
type Recognizer interface {
	// EarlyGuess returns a provisional song name from a short preview.
	EarlyGuess(ctx context.Context) (string, error)
	// Identify returns the final match result.
	Identify(ctx context.Context) (telemetry.Result, error)
}

// Publisher fans events out to clients. *ws.Hub satisfies it.
type Publisher interface {
	Publish(ev telemetry.Event)
}

// Command represents an external command sent to the runner via its
// Commands channel. The Reply channel receives exactly one result.
type Command struct {
	Type  string
	Reply chan<- CommandResult
}

// CommandResult is the response sent back through a Command's Reply channel.
type CommandResult struct {
	OK      bool   `json:"ok"`
	Message string `json:"message,omitempty"`
	ID      string `json:"id,omitempty"`
	Err     error  `json:"-"`
}

// Options configures a Runner.
type Options struct {
	Publisher  Publisher
	Recognizer Recognizer
	Logger     *log.Logger

	// Recording is the simulated length of a capture.
	Recording time.Duration
	// EarlyGuessAfter is how far into the recording the preview guess is
	// published.
	EarlyGuessAfter time.Duration
	// ProgressStep is the percentage added by each progress tick.
	ProgressStep int
	// Processing is the pause between the end of the recording and the
	// result.
	Processing time.Duration
}

// Runner owns the recording loop.
type Runner struct {
	opts Options
	log  *log.Logger

	// Commands receives external commands from HTTP handlers.
	Commands chan Command

	busy atomic.Bool

	mu        sync.Mutex
	currentID string
	cancel    context.CancelFunc
	wg        sync.WaitGroup

	// sleep is swapped out by tests.
	sleep func(ctx context.Context, d time.Duration) bool
}

// New creates a runner. Zero durations are allowed; a zero ProgressStep
// falls back to 10.
func New(opts Options) *Runner {
	if opts.ProgressStep <= 0 || opts.ProgressStep > 100 {
		opts.ProgressStep = 10
	}
	logger := opts.Logger
	if logger == nil {
		logger = log.New(log.Writer(), "[pipeline] ", log.LstdFlags)
	}
	return &Runner{
		opts:     opts,
		log:      logger,
		Commands: make(chan Command, 4),
		sleep:    sleepOrCancel,
	}
}

// Busy reports whether a recording is running.
func (r *Runner) Busy() bool {
	return r.busy.Load()
}

// CurrentID returns the ID of the running recording, or "".
func (r *Runner) CurrentID() string {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.currentID
}

// Run serves commands until ctx is cancelled, then waits for any running
// recording to unwind.
func (r *Runner) Run(ctx context.Context, setState func(string)) {
	if setState == nil {
		setState = func(string) {}
	}
	defer r.wg.Wait()

	for {
		select {
		case <-ctx.Done():
			return
		case cmd := <-r.Commands:
			r.handleCommand(ctx, cmd, setState)
		}
	}
}

// Record submits a record command and waits for its reply. It returns the
// new recording ID or ErrBusy.
func (r *Runner) Record(ctx context.Context) (string, error) {
	res, err := r.submit(ctx, CmdRecord)
	if err != nil {
		return "", err
	}
	return res.ID, res.Err
}

// Cancel aborts the running recording.
func (r *Runner) Cancel(ctx context.Context) error {
	res, err := r.submit(ctx, CmdCancel)
	if err != nil {
		return err
	}
	return res.Err
}

func (r *Runner) submit(ctx context.Context, typ string) (CommandResult, error) {
	reply := make(chan CommandResult, 1)
	select {
	case r.Commands <- Command{Type: typ, Reply: reply}:
	case <-ctx.Done():
		return CommandResult{}, ctx.Err()
	}
	select {
	case res := <-reply:
		return res, nil
	case <-ctx.Done():
		return CommandResult{}, ctx.Err()
	}
}

// handleCommand dispatches an incoming command to the appropriate handler.
func (r *Runner) handleCommand(ctx context.Context, cmd Command, setState func(string)) {
	switch cmd.Type {
	case CmdRecord:
		r.handleRecord(ctx, cmd, setState)
	case CmdCancel:
		r.handleCancel(cmd)
	default:
		cmd.Reply <- CommandResult{Err: fmt.Errorf("unknown command: %s", cmd.Type)}
	}
}

func (r *Runner) handleRecord(ctx context.Context, cmd Command, setState func(string)) {
	if !r.busy.CompareAndSwap(false, true) {
		cmd.Reply <- CommandResult{Err: ErrBusy, ID: r.CurrentID()}
		return
	}

	id := uuid.NewString()
	recCtx, cancel := context.WithCancel(ctx)
	r.mu.Lock()
	r.currentID = id
	r.cancel = cancel
	r.mu.Unlock()

	// Reply before recording so the HTTP handler is not held for the whole
	// capture.
	cmd.Reply <- CommandResult{OK: true, Message: "Recording started successfully", ID: id}

	r.wg.Add(1)
	go func() {
		defer r.wg.Done()
		defer func() {
			cancel()
			r.mu.Lock()
			r.currentID = ""
			r.cancel = nil
			r.mu.Unlock()
			r.busy.Store(false)
			setState(StateIdle)
		}()
		r.record(ctx, recCtx, id, setState)
	}()
}

func (r *Runner) handleCancel(cmd Command) {
	r.mu.Lock()
	cancel := r.cancel
	r.mu.Unlock()

	if cancel == nil {
		cmd.Reply <- CommandResult{Err: errors.New("no recording in progress")}
		return
	}
	cancel()
	cmd.Reply <- CommandResult{OK: true, Message: "recording cancelled"}
}

// record runs one recording: progress ticks with an early guess part way
// through, a processing phase, then the result. parent is the runner's
// context; ctx is the recording's own.
func (r *Runner) record(parent, ctx context.Context, id string, setState func(string)) {
	short := id[:8]
	r.log.Printf("recording %s started", short)
	setState(StateRecording)

	r.publish(telemetry.RecordingStatus{
		Status:  telemetry.StatusRecording,
		Message: "Recording started...",
	})

	steps := (100 + r.opts.ProgressStep - 1) / r.opts.ProgressStep
	interval := r.opts.Recording / time.Duration(steps)
	guessed := false

	guess := func() {
		guessed = true
		name, err := r.opts.Recognizer.EarlyGuess(ctx)
		if err != nil || name == "" {
			name = "Unknown"
		}
		r.publish(telemetry.EarlyGuess{Name: name})
	}
	if r.opts.EarlyGuessAfter <= 0 {
		guess()
	}

	for i := 1; i <= steps; i++ {
		if !r.sleep(ctx, interval) {
			r.aborted(parent, short)
			return
		}
		if !guessed && time.Duration(i)*interval >= r.opts.EarlyGuessAfter {
			guess()
		}
		progress := min(i*r.opts.ProgressStep, 100)
		r.publish(telemetry.RecordingStatus{
			Status:   telemetry.StatusRecording,
			Message:  fmt.Sprintf("Recording... %d%%", progress),
			Progress: progress,
		})
	}

	setState(StateProcessing)
	r.publish(telemetry.RecordingStatus{
		Status:   telemetry.StatusProcessing,
		Message:  "Processing audio...",
		Progress: 100,
	})
	if !r.sleep(ctx, r.opts.Processing) {
		r.aborted(parent, short)
		return
	}

	result, err := r.opts.Recognizer.Identify(ctx)
	if err != nil {
		r.log.Printf("recording %s: matching failed: %v", short, err)
		r.publish(telemetry.ErrorReport{Message: "Matching failed: " + err.Error()})
		return
	}
	if result.Matched() {
		r.log.Printf("recording %s matched %q (%.2f)", short, result.Song.Title, result.Confidence)
	} else {
		r.log.Printf("recording %s: no match (%.2f)", short, result.Confidence)
	}
	r.publish(result)
}

// aborted reports a cancelled recording. A daemon shutdown is silent; a
// user cancel is pushed to clients as an error.
func (r *Runner) aborted(parent context.Context, short string) {
	if parent.Err() != nil {
		return
	}
	r.log.Printf("recording %s cancelled", short)
	r.publish(telemetry.ErrorReport{Message: "Recording cancelled"})
}

func (r *Runner) publish(ev telemetry.Event) {
	if r.opts.Publisher != nil {
		r.opts.Publisher.Publish(ev)
	}
}

// sleepOrCancel blocks for duration d or until the context is cancelled.
// Returns true if the sleep completed, false if interrupted.
func sleepOrCancel(ctx context.Context, d time.Duration) bool {
	if d <= 0 {
		return ctx.Err() == nil
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return false
	case <-t.C:
		return true
	}
}
