// Package ctl implements the client-side commands of earshot. Client talks
// to a running earshotd over HTTP; Dispatcher runs the start-recording and
// add-song commands for the interactive session and reports their outcome
// on the event loop. The print helpers render one-shot query results.
package ctl

import (
	"encoding/json"
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/fatih/color"

	"github.com/large-farva/earshot/internal/telemetry"
)

var (
	dim   = color.New(color.Faint)
	bold  = color.New(color.Bold)
	green = color.New(color.FgGreen)
	red   = color.New(color.FgRed)
)

// PrintJSON writes v as indented JSON.
func PrintJSON(w io.Writer, v any) error {
	b, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return err
	}
	_, err = fmt.Fprintln(w, string(b))
	return err
}

// PrintStatus renders a StatusResponse.
func PrintStatus(w io.Writer, s StatusResponse, host string) {
	uptime := formatDuration(time.Duration(s.UptimeSeconds) * time.Second)

	fmt.Fprintln(w)
	fmt.Fprintln(w, bold.Sprint("  EARSHOT STATUS"))
	fmt.Fprintln(w, dim.Sprint("  "+strings.Repeat("─", 38)))
	fmt.Fprintf(w, "  %-12s %s\n", dim.Sprint("Daemon:"), s.Name)
	fmt.Fprintf(w, "  %-12s %s\n", dim.Sprint("State:"), s.State)
	fmt.Fprintf(w, "  %-12s %s\n", dim.Sprint("Mode:"), s.Mode)
	if s.RecordingID != "" {
		fmt.Fprintf(w, "  %-12s %s\n", dim.Sprint("Recording:"), s.RecordingID)
	}
	fmt.Fprintf(w, "  %-12s %s\n", dim.Sprint("Uptime:"), uptime)
	fmt.Fprintf(w, "  %-12s %d\n", dim.Sprint("Clients:"), s.Clients)
	fmt.Fprintf(w, "  %-12s %d\n", dim.Sprint("Songs:"), s.Songs)
	fmt.Fprintf(w, "  %-12s %s\n", dim.Sprint("Host:"), host)
	fmt.Fprintln(w)
}

// PrintSongs renders a catalog listing.
func PrintSongs(w io.Writer, title string, songs []telemetry.Song) {
	fmt.Fprintln(w)
	fmt.Fprintln(w, bold.Sprint("  "+title))
	fmt.Fprintln(w, dim.Sprint("  "+strings.Repeat("─", 60)))
	if len(songs) == 0 {
		fmt.Fprintln(w, "  No songs found.")
		fmt.Fprintln(w)
		return
	}
	for _, s := range songs {
		album := s.Album
		if album == "" {
			album = "-"
		}
		fmt.Fprintf(w, "  %4d  %s  %s  %s\n",
			s.ID,
			padRight(s.Title, 28),
			padRight(s.Artist, 20),
			dim.Sprint(album),
		)
	}
	fmt.Fprintln(w)
	fmt.Fprintf(w, "  %d song(s)\n\n", len(songs))
}

// PrintVersion renders client and daemon versions side by side.
func PrintVersion(w io.Writer, client string, daemon *VersionResponse) {
	fmt.Fprintln(w)
	fmt.Fprintf(w, "  %-10s %s\n", dim.Sprint("Client:"), client)
	if daemon == nil {
		fmt.Fprintf(w, "  %-10s %s\n", dim.Sprint("Daemon:"), red.Sprint("unreachable"))
	} else {
		fmt.Fprintf(w, "  %-10s %s (%s, built %s)\n", dim.Sprint("Daemon:"), daemon.Version, daemon.GoVersion, daemon.BuiltAt)
	}
	fmt.Fprintln(w)
}

// PrintHealth renders the result of a health probe.
func PrintHealth(w io.Writer, body string, err error) {
	fmt.Fprintln(w)
	if err != nil {
		fmt.Fprintf(w, "  %s  %v\n\n", red.Sprint("UNHEALTHY"), err)
		return
	}
	fmt.Fprintf(w, "  %s  %s\n\n", green.Sprint("HEALTHY"), body)
}

// padRight pads s with spaces to reach the given width.
func padRight(s string, width int) string {
	if len(s) >= width {
		return s
	}
	return s + strings.Repeat(" ", width-len(s))
}

// formatDuration renders a duration as a compact human string like
// "2h 14m 8s" or "45s".
func formatDuration(d time.Duration) string {
	h := int(d.Hours())
	m := int(d.Minutes()) % 60
	s := int(d.Seconds()) % 60
	if h > 0 {
		return fmt.Sprintf("%dh %dm %ds", h, m, s)
	}
	if m > 0 {
		return fmt.Sprintf("%dm %ds", m, s)
	}
	return fmt.Sprintf("%ds", s)
}
