// Package session implements the recognition session state machine. It
// reconciles user actions (start, reset), command outcomes and
// server-pushed events into one state and drives a Renderer.
//
// Lifecycle:
//
//	Idle -> Countdown -> Recording -> Processing -> Result | Error -> Idle
//
// All methods must be called from the event loop the controller was built
// with.
package session

import (
	"log"
	"time"

	"github.com/large-farva/earshot/internal/loop"
	"github.com/large-farva/earshot/internal/telemetry"
)

// State is the session's position in its lifecycle.
type State int

const (
	Idle State = iota
	Countdown
	Recording
	Processing
	Result
	Error
)

func (s State) String() string {
	switch s {
	case Idle:
		return "IDLE"
	case Countdown:
		return "COUNTDOWN"
	case Recording:
		return "RECORDING"
	case Processing:
		return "PROCESSING"
	case Result:
		return "RESULT"
	case Error:
		return "ERROR"
	default:
		return "UNKNOWN"
	}
}

// Terminal reports whether s ends a session.
func (s State) Terminal() bool {
	return s == Result || s == Error
}

// Fixed user-facing texts.
const (
	StartFailedMessage = "Failed to start recording"
	RetryHint          = "Please try again"
	CountdownMessage   = "Recording now... Play your song!"
)

// Recorder issues the start-recording command. done is invoked on the
// event loop with nil on success or the failure.
type Recorder interface {
	StartRecording(done func(error))
}

// Snapshot is a copy of the session fields.
type Snapshot struct {
	State      State
	Recording  bool
	Progress   int
	EarlyGuess string
}

// Options configures a Controller.
type Options struct {
	Scheduler loop.Scheduler
	Recorder  Recorder
	Renderer  Renderer
	Logger    *log.Logger

	// CountdownFrom is the first countdown number. Zero means 3.
	CountdownFrom int
	// CountdownTick is the spacing between countdown numbers. Zero means
	// one second.
	CountdownTick time.Duration

	// OnStateChange, when set, is called after every state transition.
	OnStateChange func(from, to State)
}

// Controller is the session state machine.
type Controller struct {
	sched    loop.Scheduler
	recorder Recorder
	render   Renderer
	log      *log.Logger

	countdownFrom int
	countdownTick time.Duration
	onChange      func(from, to State)

	state      State
	recording  bool
	progress   int
	earlyGuess string

	// generation increments on every Start so that callbacks belonging to
	// a superseded session can recognise themselves.
	generation uint64
}

// New creates a controller in the Idle state.
func New(opts Options) *Controller {
	c := &Controller{
		sched:         opts.Scheduler,
		recorder:      opts.Recorder,
		render:        opts.Renderer,
		log:           opts.Logger,
		countdownFrom: opts.CountdownFrom,
		countdownTick: opts.CountdownTick,
		onChange:      opts.OnStateChange,
	}
	if c.countdownFrom <= 0 {
		c.countdownFrom = 3
	}
	if c.countdownTick <= 0 {
		c.countdownTick = time.Second
	}
	return c
}

// Snapshot returns the current session fields.
func (c *Controller) Snapshot() Snapshot {
	return Snapshot{
		State:      c.state,
		Recording:  c.recording,
		Progress:   c.progress,
		EarlyGuess: c.earlyGuess,
	}
}

// Start begins a new session. It does nothing while a session is active.
// It reports whether a session was started.
func (c *Controller) Start() bool {
	if c.recording {
		return false
	}

	c.generation++
	gen := c.generation
	c.recording = true
	c.progress = 0
	c.earlyGuess = ""
	c.transition(Countdown)
	c.startCountdown(gen)

	c.recorder.StartRecording(func(err error) {
		c.startFinished(gen, err)
	})
	return true
}

func (c *Controller) startFinished(gen uint64, err error) {
	if err == nil {
		c.logf("recording started")
		return
	}
	c.logf("start recording failed: %v", err)
	if gen != c.generation {
		return
	}
	c.fail(StartFailedMessage)
}

// startCountdown runs the local countdown ticks. The timer chain is never
// cancelled; ticks from a superseded session simply stop rendering.
func (c *Controller) startCountdown(gen uint64) {
	count := c.countdownFrom
	var tick func()
	tick = func() {
		if gen != c.generation || c.state != Countdown {
			return
		}
		c.render.ShowCountdown(count)
		count--
		if count >= 0 {
			c.sched.AfterFunc(c.countdownTick, tick)
			return
		}
		c.transition(Recording)
		c.HandleEvent(telemetry.RecordingStatus{
			Status:   telemetry.StatusRecording,
			Message:  CountdownMessage,
			Progress: 0,
		})
	}
	c.sched.AfterFunc(c.countdownTick, tick)
}

// HandleEvent applies one inbound event, local or remote.
func (c *Controller) HandleEvent(ev telemetry.Event) {
	switch e := ev.(type) {
	case telemetry.RecordingStatus:
		c.handleStatus(e)
	case telemetry.EarlyGuess:
		c.handleEarlyGuess(e)
	case telemetry.Result:
		c.handleResult(e)
	case telemetry.ErrorReport:
		c.fail(e.Message)
	}
}

// handleStatus always renders. State only advances once the countdown is
// over and while a session is active, so the recording invariant holds.
func (c *Controller) handleStatus(e telemetry.RecordingStatus) {
	c.progress = e.Progress
	c.render.UpdateStatus(StatusTitle(e.Status), e.Message, e.Progress)

	if !c.recording || c.state == Countdown {
		return
	}
	if e.Status == telemetry.StatusRecording {
		c.transition(Recording)
	} else {
		c.transition(Processing)
	}
}

func (c *Controller) handleEarlyGuess(e telemetry.EarlyGuess) {
	if e.Name == "" {
		return
	}
	c.earlyGuess = e.Name
	c.render.ShowEarlyGuess(e.Name)
}

func (c *Controller) handleResult(r telemetry.Result) {
	c.recording = false
	c.transition(Result)

	pct := ConfidencePercent(r.Confidence)
	if !r.Matched() {
		c.render.ShowNoMatchResult(pct)
		return
	}

	song := *r.Song
	if song.Album == "" {
		song.Album = "Unknown Album"
	}
	c.render.ShowSuccessResult(song, pct, TierFor(pct))
}

func (c *Controller) fail(message string) {
	c.recording = false
	c.transition(Error)
	c.render.ShowErrorResult(message, RetryHint)
}

// Reset returns a finished session to Idle. It only acts from Result or
// Error and reports whether it did.
func (c *Controller) Reset() bool {
	if !c.state.Terminal() {
		return false
	}
	c.progress = 0
	c.earlyGuess = ""
	c.transition(Idle)
	c.render.ResetView()
	return true
}

func (c *Controller) transition(to State) {
	from := c.state
	if from == to {
		return
	}
	c.state = to
	if c.onChange != nil {
		c.onChange(from, to)
	}
}

func (c *Controller) logf(format string, args ...any) {
	if c.log != nil {
		c.log.Printf(format, args...)
	}
}
