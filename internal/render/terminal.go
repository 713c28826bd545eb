// Package render draws the recognition session on a terminal. Terminal
// implements the session and command ports so the state machine never
// knows what it is being displayed on.
package render

import (
	"fmt"
	"io"
	"strings"

	"github.com/fatih/color"

	"github.com/large-farva/earshot/internal/ctl"
	"github.com/large-farva/earshot/internal/loop"
	"github.com/large-farva/earshot/internal/session"
	"github.com/large-farva/earshot/internal/telemetry"
)

// Terminal renders to an io.Writer. All methods run on the event loop.
type Terminal struct {
	out      io.Writer
	notifier *Notifier

	dim, bold, cyan        *color.Color
	green, orange, red     *color.Color
	successNote, errorNote *color.Color

	busy          map[ctl.Control]bool
	modalOpen     bool
	notifications map[int]string
}

// Options configures a Terminal.
type Options struct {
	Out       io.Writer
	Scheduler loop.Scheduler
	// Color forces ANSI colors on or off.
	Color bool
}

// NewTerminal builds a terminal renderer with its own notifier.
func NewTerminal(opts Options) *Terminal {
	t := &Terminal{
		out:           opts.Out,
		dim:           color.New(color.Faint),
		bold:          color.New(color.Bold),
		cyan:          color.New(color.FgCyan),
		green:         color.New(color.FgGreen, color.Bold),
		orange:        color.New(color.FgYellow, color.Bold),
		red:           color.New(color.FgRed, color.Bold),
		successNote:   color.New(color.FgBlack, color.BgGreen),
		errorNote:     color.New(color.FgWhite, color.BgRed),
		busy:          make(map[ctl.Control]bool),
		notifications: make(map[int]string),
	}
	for _, c := range []*color.Color{t.dim, t.bold, t.cyan, t.green, t.orange, t.red, t.successNote, t.errorNote} {
		if opts.Color {
			c.EnableColor()
		} else {
			c.DisableColor()
		}
	}
	t.notifier = NewNotifier(opts.Scheduler, t)
	return t
}

// Notifier exposes the notification sequencer so its timings can be tuned.
func (t *Terminal) Notifier() *Notifier {
	return t.notifier
}

// ── session.Renderer ─────────────────────────────────────────────────

func (t *Terminal) UpdateStatus(title, message string, progress int) {
	fmt.Fprintf(t.out, "  %s  [%s] %3d%%  %s\n",
		t.bold.Sprint(padRight(title, 18)),
		t.progressBar(progress, 20),
		progress,
		t.dim.Sprint(message),
	)
}

func (t *Terminal) ShowCountdown(n int) {
	fmt.Fprintf(t.out, "  %s\n", t.cyan.Sprintf("%d...", n))
}

func (t *Terminal) ShowEarlyGuess(name string) {
	fmt.Fprintf(t.out, "  %s %s\n", t.dim.Sprint("early guess:"), name)
}

func (t *Terminal) ShowSuccessResult(song telemetry.Song, confidence int, tier session.ColorTier) {
	fmt.Fprintln(t.out)
	fmt.Fprintf(t.out, "  %s\n", t.green.Sprint("✔ Song Identified!"))
	fmt.Fprintf(t.out, "    %-12s %s\n", t.dim.Sprint("Title:"), t.bold.Sprint(song.Title))
	fmt.Fprintf(t.out, "    %-12s %s\n", t.dim.Sprint("Artist:"), song.Artist)
	fmt.Fprintf(t.out, "    %-12s %s\n", t.dim.Sprint("Album:"), song.Album)
	t.printConfidence(confidence, tier)
	fmt.Fprintln(t.out)
}

func (t *Terminal) ShowNoMatchResult(confidence int) {
	fmt.Fprintln(t.out)
	fmt.Fprintf(t.out, "  %s\n", t.red.Sprint("✖ Song Not Found"))
	fmt.Fprintf(t.out, "    %-12s %s\n", t.dim.Sprint("Title:"), "Unknown")
	fmt.Fprintf(t.out, "    %-12s %s\n", t.dim.Sprint("Artist:"), "This song is not in our database")
	t.printConfidence(confidence, session.TierRed)
	fmt.Fprintln(t.out)
}

func (t *Terminal) ShowErrorResult(message, hint string) {
	fmt.Fprintln(t.out)
	fmt.Fprintf(t.out, "  %s\n", t.red.Sprint("⚠ Error"))
	fmt.Fprintf(t.out, "    %s\n", message)
	fmt.Fprintf(t.out, "    %s\n", t.dim.Sprint(hint))
	fmt.Fprintln(t.out)
}

func (t *Terminal) ResetView() {
	fmt.Fprintf(t.out, "  %s\n", t.dim.Sprint("ready"))
}

func (t *Terminal) printConfidence(confidence int, tier session.ColorTier) {
	c := t.tierColor(tier)
	fmt.Fprintf(t.out, "    %-12s %s  [%s]\n",
		t.dim.Sprint("Confidence:"),
		c.Sprintf("%d%%", confidence),
		c.Sprint(bar(confidence, 20)),
	)
}

func (t *Terminal) tierColor(tier session.ColorTier) *color.Color {
	switch tier {
	case session.TierGreen:
		return t.green
	case session.TierOrange:
		return t.orange
	default:
		return t.red
	}
}

// ── ctl.UI ───────────────────────────────────────────────────────────

func (t *Terminal) SetControlBusy(c ctl.Control, busy bool) {
	t.busy[c] = busy
}

// Busy reports whether a control is disabled by an in-flight command.
func (t *Terminal) Busy(c ctl.Control) bool {
	return t.busy[c]
}

// OpenModal marks the add-song form as open.
func (t *Terminal) OpenModal() {
	t.modalOpen = true
	fmt.Fprintf(t.out, "  %s\n", t.dim.Sprint("add song: enter artist | title | album"))
}

// ModalOpen reports whether the add-song form is open.
func (t *Terminal) ModalOpen() bool {
	return t.modalOpen
}

func (t *Terminal) CloseModal() {
	t.modalOpen = false
}

func (t *Terminal) ShowNotification(message, kind string) {
	t.notifier.Show(message, kind)
}

// ── NotificationSink ─────────────────────────────────────────────────

func (t *Terminal) AppearNotification(id int, message, kind string) {
	t.notifications[id] = message
	label := t.bold
	switch kind {
	case ctl.NotifySuccess:
		label = t.successNote
	case ctl.NotifyError:
		label = t.errorNote
	}
	fmt.Fprintf(t.out, "  %s %s\n", label.Sprintf(" %s ", strings.ToUpper(kind)), message)
}

func (t *Terminal) HideNotification(id int) {}

func (t *Terminal) RemoveNotification(id int) {
	delete(t.notifications, id)
}

// ActiveNotifications returns how many notifications are on screen.
func (t *Terminal) ActiveNotifications() int {
	return len(t.notifications)
}

// Catalog prints the song count after a reload.
func (t *Terminal) Catalog(songs []telemetry.Song) {
	fmt.Fprintf(t.out, "  %s %d song(s)\n", t.dim.Sprint("catalog:"), len(songs))
}

// Printf writes a free-form line.
func (t *Terminal) Printf(format string, args ...any) {
	fmt.Fprintf(t.out, "  "+format+"\n", args...)
}

// progressBar builds an ASCII bar; the filled part is green.
func (t *Terminal) progressBar(pct, width int) string {
	filled := bar(pct, width)
	return t.green.Sprint(strings.TrimRight(filled, " ")) + filled[len(strings.TrimRight(filled, " ")):]
}

func bar(pct, width int) string {
	if pct < 0 {
		pct = 0
	}
	filled := (pct * width) / 100
	if filled > width {
		filled = width
	}
	return strings.Repeat("=", filled) + strings.Repeat(" ", width-filled)
}

// padRight pads s with spaces to reach the given width.
func padRight(s string, width int) string {
	if len(s) >= width {
		return s
	}
	return s + strings.Repeat(" ", width-len(s))
}
