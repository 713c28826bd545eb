package ctl

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/large-farva/earshot/internal/loop"
)

type fakeAPI struct {
	recordErr error
	addErr    error
	added     chan SongRequest
}

func (f *fakeAPI) StartRecording(context.Context) (RecordResponse, error) {
	if f.recordErr != nil {
		return RecordResponse{}, f.recordErr
	}
	return RecordResponse{Status: "started", ID: "rec-1"}, nil
}

func (f *fakeAPI) AddSong(_ context.Context, req SongRequest) (AddSongResponse, error) {
	if f.added != nil {
		f.added <- req
	}
	if f.addErr != nil {
		return AddSongResponse{}, f.addErr
	}
	return AddSongResponse{Status: "success", Message: "Added " + req.Artist + " - " + req.Title}, nil
}

// fakeUI is only touched from the loop.
type fakeUI struct {
	events []string
}

func (u *fakeUI) SetControlBusy(c Control, busy bool) {
	u.events = append(u.events, fmt.Sprintf("busy:%s:%v", c, busy))
}

func (u *fakeUI) CloseModal() {
	u.events = append(u.events, "close-modal")
}

func (u *fakeUI) ShowNotification(message, kind string) {
	u.events = append(u.events, "notify:"+kind+":"+message)
}

type fakeReloader struct {
	count int
}

func (r *fakeReloader) Reload() { r.count++ }

// timedScheduler records AfterFunc delays and runs the callback on the next
// loop turn instead of waiting.
type timedScheduler struct {
	*loop.Loop
	delays []time.Duration
}

func (s *timedScheduler) AfterFunc(d time.Duration, fn func()) loop.Timer {
	s.delays = append(s.delays, d)
	return s.Loop.AfterFunc(0, fn)
}

func newDispatcherHarness(t *testing.T, api API) (*Dispatcher, *timedScheduler, *fakeUI, *fakeReloader) {
	t.Helper()
	ctx, cancel := context.WithCancel(context.Background())
	t.Cleanup(cancel)

	sched := &timedScheduler{Loop: loop.New()}
	go sched.Run(ctx)

	ui := &fakeUI{}
	rel := &fakeReloader{}
	d := NewDispatcher(ctx, DispatcherOptions{
		API:       api,
		Scheduler: sched,
		UI:        ui,
		Reloader:  rel,
	})
	return d, sched, ui, rel
}

func waitErr(t *testing.T, ch <-chan error) error {
	t.Helper()
	select {
	case err := <-ch:
		return err
	case <-time.After(5 * time.Second):
		t.Fatal("command never completed")
		return nil
	}
}

func TestDispatcherStartRecordingReportsOutcome(t *testing.T) {
	for _, tt := range []struct {
		name string
		err  error
	}{
		{"success", nil},
		{"failure", &HTTPError{Status: "500 Internal Server Error", Code: 500}},
	} {
		t.Run(tt.name, func(t *testing.T) {
			d, sched, ui, _ := newDispatcherHarness(t, &fakeAPI{recordErr: tt.err})

			result := make(chan error, 1)
			_ = loop.Do(context.Background(), sched, func() {
				d.StartRecording(func(err error) { result <- err })
			})
			err := waitErr(t, result)
			if !errors.Is(err, tt.err) {
				t.Fatalf("got %v, want %v", err, tt.err)
			}

			var events []string
			_ = loop.Do(context.Background(), sched, func() { events = append(events, ui.events...) })
			want := []string{"busy:record:true", "busy:record:false"}
			if fmt.Sprint(events) != fmt.Sprint(want) {
				t.Errorf("ui events = %v, want %v", events, want)
			}
		})
	}
}

func TestDispatcherAddSongSuccess(t *testing.T) {
	api := &fakeAPI{added: make(chan SongRequest, 1)}
	d, sched, ui, rel := newDispatcherHarness(t, api)

	result := make(chan error, 1)
	_ = loop.Do(context.Background(), sched, func() {
		d.AddSong(SongRequest{Artist: " Ed Sheeran ", Title: "Shape of You"}, func(err error) { result <- err })
	})
	if err := waitErr(t, result); err != nil {
		t.Fatalf("AddSong: %v", err)
	}
	if req := <-api.added; req.Artist != "Ed Sheeran" || req.Album != "" {
		t.Errorf("submitted %+v", req)
	}

	// Let the reload callback run.
	var events []string
	var reloads int
	var delays []time.Duration
	deadline := time.Now().Add(5 * time.Second)
	for reloads == 0 && time.Now().Before(deadline) {
		_ = loop.Do(context.Background(), sched, func() {
			events = append(events[:0], ui.events...)
			reloads = rel.count
			delays = append(delays[:0], sched.delays...)
		})
		time.Sleep(5 * time.Millisecond)
	}

	want := []string{
		"busy:add-song:true",
		"close-modal",
		"notify:success:" + SongAddedMessage,
		"busy:add-song:false",
	}
	if fmt.Sprint(events) != fmt.Sprint(want) {
		t.Errorf("ui events = %v, want %v", events, want)
	}
	if len(delays) != 1 || delays[0] != 1500*time.Millisecond {
		t.Errorf("reload scheduled with %v, want [1.5s]", delays)
	}
	if reloads != 1 {
		t.Errorf("reloaded %d times, want 1", reloads)
	}
}

func TestDispatcherAddSongFailure(t *testing.T) {
	d, sched, ui, rel := newDispatcherHarness(t, &fakeAPI{addErr: errors.New("HTTP 500")})

	result := make(chan error, 1)
	_ = loop.Do(context.Background(), sched, func() {
		d.AddSong(SongRequest{Artist: "A", Title: "T"}, func(err error) { result <- err })
	})
	if err := waitErr(t, result); err == nil {
		t.Fatal("expected failure")
	}

	var events []string
	_ = loop.Do(context.Background(), sched, func() { events = append(events, ui.events...) })
	want := []string{
		"busy:add-song:true",
		"notify:error:" + SongAddFailedMessage,
		"busy:add-song:false",
	}
	if fmt.Sprint(events) != fmt.Sprint(want) {
		t.Errorf("ui events = %v, want %v", events, want)
	}
	if len(sched.delays) != 0 || rel.count != 0 {
		t.Errorf("reload scheduled after failure")
	}
}

func TestDispatcherAddSongRequiresFields(t *testing.T) {
	api := &fakeAPI{added: make(chan SongRequest, 1)}
	d, sched, ui, _ := newDispatcherHarness(t, api)

	var err error
	var events []string
	_ = loop.Do(context.Background(), sched, func() {
		d.AddSong(SongRequest{Artist: "  ", Title: "T"}, func(e error) { err = e })
		events = append(events, ui.events...)
	})
	if !errors.Is(err, ErrMissingFields) {
		t.Fatalf("got %v, want ErrMissingFields", err)
	}
	if len(api.added) != 0 {
		t.Error("request issued despite missing artist")
	}
	if len(events) != 1 || events[0] != "notify:error:"+SongAddFailedMessage {
		t.Errorf("ui events = %v", events)
	}
}
