package ctl

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log"
	"strings"
	"time"

	"github.com/large-farva/earshot/internal/session"
	"github.com/large-farva/earshot/internal/telemetry"
	"github.com/large-farva/earshot/internal/ws"
)

// WatchOptions controls the watch command behavior.
type WatchOptions struct {
	Filter      []string // event types to show (empty = all)
	JSON        bool     // output raw JSON per event
	ShowDropped bool     // also print frames that failed to decode
	Retry       ws.RetryPolicy
	Logger      *log.Logger
}

// Watch streams channel events to out until ctx is cancelled. The
// connection is re-established after every loss, exactly like the
// interactive console does.
func Watch(ctx context.Context, baseURL string, out io.Writer, opts WatchOptions) error {
	u, err := ws.WebSocketURL(baseURL)
	if err != nil {
		return err
	}

	filterSet := make(map[string]bool, len(opts.Filter))
	for _, f := range opts.Filter {
		filterSet[strings.TrimSpace(f)] = true
	}

	if !opts.JSON {
		fmt.Fprintln(out)
		fmt.Fprintf(out, "  %s %s\n", green.Sprint("watching"), dim.Sprint(u))
		if len(opts.Filter) > 0 {
			fmt.Fprintf(out, "  %s %s\n", dim.Sprint("filter:"), dim.Sprint(strings.Join(opts.Filter, ", ")))
		}
		fmt.Fprintln(out, dim.Sprint("  "+strings.Repeat("─", 50)))
		fmt.Fprintln(out)
	}

	m := ws.NewManager(ws.ManagerOptions{
		URL:    u,
		Retry:  opts.Retry,
		Logger: opts.Logger,
		OnEvent: func(ev telemetry.Event) {
			if len(filterSet) > 0 && !filterSet[string(ev.Kind())] {
				return
			}
			if opts.JSON {
				if b, err := telemetry.Encode(ev); err == nil {
					fmt.Fprintln(out, string(b))
				}
				return
			}
			renderEvent(out, ev)
		},
		OnDrop: func(raw []byte, err error) {
			if opts.ShowDropped && !opts.JSON {
				fmt.Fprintf(out, "  %s %s  %s\n", dim.Sprint(clock()), red.Sprint("DROP "), dim.Sprint(err.Error()))
			}
		},
		OnStatus: func(s ws.Status) {
			if !opts.JSON {
				fmt.Fprintf(out, "  %s %s\n", dim.Sprint(clock()), dim.Sprint("channel "+s.String()))
			}
		},
	})

	err = m.Run(ctx)
	if errors.Is(err, context.Canceled) {
		if !opts.JSON {
			fmt.Fprintln(out)
			fmt.Fprintln(out, dim.Sprint("  disconnected"))
		}
		return nil
	}
	return err
}

// renderEvent prints one event in a human-friendly format.
func renderEvent(out io.Writer, ev telemetry.Event) {
	ts := clock()
	switch e := ev.(type) {
	case telemetry.RecordingStatus:
		fmt.Fprintf(out, "  %s %s  %-10s %3d%%  %s\n",
			dim.Sprint(ts), bold.Sprint("STATUS"), e.Status, e.Progress, e.Message)
	case telemetry.EarlyGuess:
		fmt.Fprintf(out, "  %s %s  %s\n", dim.Sprint(ts), bold.Sprint("GUESS "), e.Name)
	case telemetry.Result:
		pct := session.ConfidencePercent(e.Confidence)
		if e.Matched() {
			fmt.Fprintf(out, "  %s %s  %s by %s (%d%%)\n",
				dim.Sprint(ts), green.Sprint("MATCH "), e.Song.Title, e.Song.Artist, pct)
		} else {
			fmt.Fprintf(out, "  %s %s  no match (%d%%)\n", dim.Sprint(ts), red.Sprint("RESULT"), pct)
		}
	case telemetry.ErrorReport:
		fmt.Fprintf(out, "  %s %s  %s\n", dim.Sprint(ts), red.Sprint("ERROR "), e.Message)
	}
}

func clock() string {
	return time.Now().Format("15:04:05")
}
