package session

import (
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/leanovate/gopter"
	"github.com/leanovate/gopter/gen"
	"github.com/leanovate/gopter/prop"

	"github.com/large-farva/earshot/internal/loop"
	"github.com/large-farva/earshot/internal/telemetry"
)

type fakeRenderer struct {
	calls []string

	statusTitle    string
	statusMessage  string
	statusProgress int
	countdown      []int
	earlyGuess     string

	song       telemetry.Song
	confidence int
	tier       ColorTier
	noMatch    bool
	errMessage string
	errHint    string
	resets     int
}

func (r *fakeRenderer) UpdateStatus(title, message string, progress int) {
	r.calls = append(r.calls, "status")
	r.statusTitle, r.statusMessage, r.statusProgress = title, message, progress
}

func (r *fakeRenderer) ShowCountdown(n int) {
	r.calls = append(r.calls, fmt.Sprintf("countdown:%d", n))
	r.countdown = append(r.countdown, n)
}

func (r *fakeRenderer) ShowEarlyGuess(name string) {
	r.calls = append(r.calls, "early_guess")
	r.earlyGuess = name
}

func (r *fakeRenderer) ShowSuccessResult(song telemetry.Song, confidence int, tier ColorTier) {
	r.calls = append(r.calls, "success")
	r.song, r.confidence, r.tier = song, confidence, tier
}

func (r *fakeRenderer) ShowNoMatchResult(confidence int) {
	r.calls = append(r.calls, "no_match")
	r.noMatch = true
	r.confidence = confidence
	r.tier = TierRed
}

func (r *fakeRenderer) ShowErrorResult(message, hint string) {
	r.calls = append(r.calls, "error")
	r.errMessage, r.errHint = message, hint
}

func (r *fakeRenderer) ResetView() {
	r.calls = append(r.calls, "reset")
	r.resets++
}

type fakeRecorder struct {
	pending []func(error)
}

func (f *fakeRecorder) StartRecording(done func(error)) {
	f.pending = append(f.pending, done)
}

func (f *fakeRecorder) finish(err error) {
	done := f.pending[0]
	f.pending = f.pending[1:]
	done(err)
}

type harness struct {
	sched    *loop.Manual
	render   *fakeRenderer
	recorder *fakeRecorder
	ctrl     *Controller
	changes  []string
}

func newHarness() *harness {
	h := &harness{
		sched:    loop.NewManual(),
		render:   &fakeRenderer{},
		recorder: &fakeRecorder{},
	}
	h.ctrl = New(Options{
		Scheduler: h.sched,
		Recorder:  h.recorder,
		Renderer:  h.render,
		OnStateChange: func(from, to State) {
			h.changes = append(h.changes, from.String()+"->"+to.String())
		},
	})
	return h
}

func (h *harness) assertState(t *testing.T, want State, recording bool) {
	t.Helper()
	snap := h.ctrl.Snapshot()
	if snap.State != want {
		t.Fatalf("state = %s, want %s", snap.State, want)
	}
	if snap.Recording != recording {
		t.Fatalf("recording = %v, want %v", snap.Recording, recording)
	}
}

func TestStartRunsCountdownBeforeRecording(t *testing.T) {
	h := newHarness()
	if !h.ctrl.Start() {
		t.Fatal("Start returned false")
	}
	h.assertState(t, Countdown, true)
	h.recorder.finish(nil)

	for i, want := range []int{3, 2, 1} {
		h.sched.Advance(time.Second)
		if len(h.render.countdown) != i+1 || h.render.countdown[i] != want {
			t.Fatalf("after %ds countdown = %v", i+1, h.render.countdown)
		}
		h.assertState(t, Countdown, true)
	}

	h.sched.Advance(999 * time.Millisecond)
	h.assertState(t, Countdown, true)
	h.sched.Advance(time.Millisecond)

	if got := h.render.countdown; len(got) != 4 || got[3] != 0 {
		t.Fatalf("countdown = %v, want [3 2 1 0]", got)
	}
	h.assertState(t, Recording, true)
	if h.render.statusTitle != "Recording Audio..." || h.render.statusMessage != CountdownMessage || h.render.statusProgress != 0 {
		t.Errorf("unexpected status %q %q %d", h.render.statusTitle, h.render.statusMessage, h.render.statusProgress)
	}
	if h.sched.Pending() != 0 {
		t.Errorf("countdown left %d timers pending", h.sched.Pending())
	}
}

func TestStartWhileRecordingIsNoop(t *testing.T) {
	h := newHarness()
	h.ctrl.Start()
	before := h.ctrl.Snapshot()

	if h.ctrl.Start() {
		t.Fatal("second Start returned true")
	}
	if len(h.recorder.pending) != 1 {
		t.Fatalf("issued %d start commands, want 1", len(h.recorder.pending))
	}
	if h.ctrl.Snapshot() != before {
		t.Errorf("state changed: %+v -> %+v", before, h.ctrl.Snapshot())
	}
}

func TestStartFailureEntersError(t *testing.T) {
	h := newHarness()
	h.ctrl.Start()
	h.recorder.finish(errors.New("HTTP 500 Internal Server Error"))

	h.assertState(t, Error, false)
	if h.render.errMessage != StartFailedMessage || h.render.errHint != RetryHint {
		t.Errorf("error rendered as %q / %q", h.render.errMessage, h.render.errHint)
	}

	// The abandoned countdown must not draw over the error.
	h.sched.Advance(5 * time.Second)
	if len(h.render.countdown) != 0 {
		t.Errorf("countdown rendered after failure: %v", h.render.countdown)
	}
	h.assertState(t, Error, false)
}

func TestStaleStartFailureIgnored(t *testing.T) {
	h := newHarness()
	h.ctrl.Start()
	h.ctrl.HandleEvent(telemetry.ErrorReport{Message: "boom"})
	h.ctrl.Reset()
	h.ctrl.Start()

	// The first session's command fails after the second has begun.
	h.recorder.finish(errors.New("late"))
	h.assertState(t, Countdown, true)
}

func TestMatchScenario(t *testing.T) {
	h := newHarness()
	h.ctrl.Start()
	h.recorder.finish(nil)
	h.sched.Advance(4 * time.Second)
	h.assertState(t, Recording, true)

	h.ctrl.HandleEvent(telemetry.Result{
		IsMatch:    true,
		Confidence: 0.75,
		Song:       &telemetry.Song{Title: "A", Artist: "B"},
	})

	h.assertState(t, Result, false)
	if h.render.noMatch {
		t.Fatal("rendered no-match for a match")
	}
	if h.render.confidence != 75 || h.render.tier != TierGreen {
		t.Errorf("confidence %d tier %s", h.render.confidence, h.render.tier)
	}
	if h.render.song.Title != "A" || h.render.song.Artist != "B" || h.render.song.Album != "Unknown Album" {
		t.Errorf("song rendered as %+v", h.render.song)
	}
}

func TestNoMatchScenario(t *testing.T) {
	h := newHarness()
	h.ctrl.Start()
	h.ctrl.HandleEvent(telemetry.Result{IsMatch: false, Confidence: 0.2})

	h.assertState(t, Result, false)
	if !h.render.noMatch || h.render.confidence != 20 {
		t.Errorf("noMatch=%v confidence=%d", h.render.noMatch, h.render.confidence)
	}
}

func TestMatchWithoutSongIsNoMatch(t *testing.T) {
	h := newHarness()
	h.ctrl.HandleEvent(telemetry.Result{IsMatch: true, Confidence: 0.9})
	if !h.render.noMatch || h.render.confidence != 90 {
		t.Errorf("noMatch=%v confidence=%d", h.render.noMatch, h.render.confidence)
	}
}

func TestResultMidCountdownSupersedesCountdown(t *testing.T) {
	h := newHarness()
	h.ctrl.Start()
	h.recorder.finish(nil)
	h.sched.Advance(time.Second)

	h.ctrl.HandleEvent(telemetry.Result{IsMatch: false, Confidence: 0.1})
	h.assertState(t, Result, false)

	callsAtResult := len(h.render.calls)
	h.sched.Advance(10 * time.Second)
	if len(h.render.calls) != callsAtResult {
		t.Errorf("countdown kept rendering: %v", h.render.calls[callsAtResult:])
	}
	h.assertState(t, Result, false)
}

func TestErrorEventMidCountdown(t *testing.T) {
	h := newHarness()
	h.ctrl.Start()
	h.sched.Advance(2 * time.Second)
	h.ctrl.HandleEvent(telemetry.ErrorReport{Message: "Recording failed: no device"})

	h.assertState(t, Error, false)
	if h.render.errMessage != "Recording failed: no device" || h.render.errHint != RetryHint {
		t.Errorf("error rendered as %q / %q", h.render.errMessage, h.render.errHint)
	}
}

func TestStatusEventsRenderInAnyState(t *testing.T) {
	h := newHarness()
	h.ctrl.HandleEvent(telemetry.RecordingStatus{Status: "processing", Message: "late", Progress: 80})

	if h.render.statusTitle != "Processing..." || h.render.statusMessage != "late" || h.render.statusProgress != 80 {
		t.Errorf("status not rendered in Idle: %q %q %d", h.render.statusTitle, h.render.statusMessage, h.render.statusProgress)
	}
	h.assertState(t, Idle, false)
}

func TestRemoteStatusDuringCountdownKeepsCountdown(t *testing.T) {
	h := newHarness()
	h.ctrl.Start()
	h.ctrl.HandleEvent(telemetry.RecordingStatus{Status: "recording", Message: "server", Progress: 10})
	h.assertState(t, Countdown, true)

	h.sched.Advance(4 * time.Second)
	if len(h.render.countdown) != 4 {
		t.Errorf("countdown = %v", h.render.countdown)
	}
	h.assertState(t, Recording, true)
}

func TestStatusAdvancesToProcessing(t *testing.T) {
	h := newHarness()
	h.ctrl.Start()
	h.sched.Advance(4 * time.Second)

	h.ctrl.HandleEvent(telemetry.RecordingStatus{Status: "recording", Message: "50%", Progress: 50})
	h.assertState(t, Recording, true)
	h.ctrl.HandleEvent(telemetry.RecordingStatus{Status: "processing", Message: "Matching...", Progress: 100})
	h.assertState(t, Processing, true)
	if h.ctrl.Snapshot().Progress != 100 {
		t.Errorf("progress = %d", h.ctrl.Snapshot().Progress)
	}
}

func TestEarlyGuessNeverChangesState(t *testing.T) {
	h := newHarness()
	h.ctrl.Start()
	h.ctrl.HandleEvent(telemetry.EarlyGuess{Name: "Shape of You"})

	h.assertState(t, Countdown, true)
	if h.ctrl.Snapshot().EarlyGuess != "Shape of You" || h.render.earlyGuess != "Shape of You" {
		t.Errorf("early guess = %q", h.ctrl.Snapshot().EarlyGuess)
	}

	h.ctrl.HandleEvent(telemetry.EarlyGuess{})
	if h.ctrl.Snapshot().EarlyGuess != "Shape of You" {
		t.Error("empty guess overwrote the previous one")
	}
}

func TestResetOnlyFromTerminalStates(t *testing.T) {
	h := newHarness()
	if h.ctrl.Reset() {
		t.Fatal("Reset from Idle returned true")
	}
	h.ctrl.Start()
	if h.ctrl.Reset() {
		t.Fatal("Reset from Countdown returned true")
	}

	h.sched.Advance(4 * time.Second)
	h.ctrl.HandleEvent(telemetry.RecordingStatus{Status: "recording", Progress: 60})
	h.ctrl.HandleEvent(telemetry.Result{IsMatch: true, Confidence: 0.5, Song: &telemetry.Song{Title: "A", Artist: "B"}})

	if !h.ctrl.Reset() {
		t.Fatal("Reset from Result returned false")
	}
	snap := h.ctrl.Snapshot()
	if snap.State != Idle || snap.Progress != 0 || snap.Recording {
		t.Errorf("after reset: %+v", snap)
	}
	if h.render.resets != 1 {
		t.Errorf("ResetView called %d times", h.render.resets)
	}
}

func TestStateChangesFollowLifecycle(t *testing.T) {
	h := newHarness()
	h.ctrl.Start()
	h.recorder.finish(nil)
	h.sched.Advance(4 * time.Second)
	h.ctrl.HandleEvent(telemetry.RecordingStatus{Status: "processing"})
	h.ctrl.HandleEvent(telemetry.Result{IsMatch: false})
	h.ctrl.Reset()

	want := []string{
		"IDLE->COUNTDOWN",
		"COUNTDOWN->RECORDING",
		"RECORDING->PROCESSING",
		"PROCESSING->RESULT",
		"RESULT->IDLE",
	}
	if fmt.Sprint(h.changes) != fmt.Sprint(want) {
		t.Errorf("changes = %v, want %v", h.changes, want)
	}
}

func TestRecordingInvariantProperty(t *testing.T) {
	parameters := gopter.DefaultTestParameters()
	parameters.MinSuccessfulTests = 200

	properties := gopter.NewProperties(parameters)

	// Each step is one of: start, advance 1s, status, early guess, result,
	// error event, reset, start command failure.
	properties.Property("recording iff countdown/recording/processing", prop.ForAll(
		func(steps []int) bool {
			h := newHarness()
			for _, s := range steps {
				switch s {
				case 0:
					h.ctrl.Start()
				case 1:
					h.sched.Advance(time.Second)
				case 2:
					h.ctrl.HandleEvent(telemetry.RecordingStatus{Status: "processing", Progress: 50})
				case 3:
					h.ctrl.HandleEvent(telemetry.EarlyGuess{Name: "x"})
				case 4:
					h.ctrl.HandleEvent(telemetry.Result{IsMatch: true, Confidence: 0.7, Song: &telemetry.Song{Title: "t"}})
				case 5:
					h.ctrl.HandleEvent(telemetry.ErrorReport{Message: "e"})
				case 6:
					h.ctrl.Reset()
				case 7:
					if len(h.recorder.pending) > 0 {
						h.recorder.finish(errors.New("fail"))
					}
				}
				snap := h.ctrl.Snapshot()
				active := snap.State == Countdown || snap.State == Recording || snap.State == Processing
				if snap.Recording != active {
					return false
				}
			}
			return true
		},
		gen.SliceOf(gen.IntRange(0, 7)),
	))

	properties.TestingRun(t)
}

func TestConfidenceProperties(t *testing.T) {
	parameters := gopter.DefaultTestParameters()
	parameters.MinSuccessfulTests = 500

	properties := gopter.NewProperties(parameters)

	properties.Property("match renders round(confidence*100) with its tier", prop.ForAll(
		func(c float64) bool {
			h := newHarness()
			h.ctrl.HandleEvent(telemetry.Result{IsMatch: true, Confidence: c, Song: &telemetry.Song{Title: "A", Artist: "B"}})
			pct := ConfidencePercent(c)
			if h.render.noMatch || h.render.confidence != pct {
				return false
			}
			switch {
			case pct >= 60:
				return h.render.tier == TierGreen
			case pct >= 40:
				return h.render.tier == TierOrange
			default:
				return h.render.tier == TierRed
			}
		},
		gen.Float64Range(0, 1),
	))

	properties.Property("no-match is always red", prop.ForAll(
		func(c float64, withSong bool) bool {
			h := newHarness()
			res := telemetry.Result{IsMatch: false, Confidence: c}
			if withSong {
				res.Song = &telemetry.Song{Title: "A", Artist: "B"}
			}
			h.ctrl.HandleEvent(res)
			return h.render.noMatch && h.render.tier == TierRed && h.render.confidence == ConfidencePercent(c)
		},
		gen.Float64Range(0, 1),
		gen.Bool(),
	))

	properties.TestingRun(t)
}

func TestConfidencePercentBoundaries(t *testing.T) {
	tests := []struct {
		in   float64
		want int
		tier ColorTier
	}{
		{0, 0, TierRed},
		{0.2, 20, TierRed},
		{0.39, 39, TierRed},
		{0.4, 40, TierOrange},
		{0.59, 59, TierOrange},
		{0.6, 60, TierGreen},
		{0.75, 75, TierGreen},
		{1, 100, TierGreen},
	}
	for _, tt := range tests {
		got := ConfidencePercent(tt.in)
		if got != tt.want {
			t.Errorf("ConfidencePercent(%v) = %d, want %d", tt.in, got, tt.want)
		}
		if tier := TierFor(got); tier != tt.tier {
			t.Errorf("TierFor(%d) = %s, want %s", got, tier, tt.tier)
		}
	}
}
