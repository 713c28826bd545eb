package loop

import (
	"context"
	"sync"
	"testing"
	"time"
)

func TestLoopRunsCallbacksInOrder(t *testing.T) {
	l := New()
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	var got []int
	done := make(chan struct{})
	for i := 0; i < 50; i++ {
		l.Post(func() { got = append(got, i) })
	}
	l.Post(func() { close(done) })

	go l.Run(ctx)

	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("loop did not drain")
	}
	for i, v := range got {
		if v != i {
			t.Fatalf("callback %d ran as %d", i, v)
		}
	}
}

func TestLoopSerializesConcurrentPosts(t *testing.T) {
	l := New()
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go l.Run(ctx)

	counter := 0
	var wg sync.WaitGroup
	for i := 0; i < 20; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for j := 0; j < 50; j++ {
				_ = Do(ctx, l, func() { counter++ })
			}
		}()
	}
	wg.Wait()

	var final int
	if err := Do(ctx, l, func() { final = counter }); err != nil {
		t.Fatal(err)
	}
	if final != 1000 {
		t.Errorf("counter = %d, want 1000", final)
	}
}

func TestLoopCallbackCanPostWithoutDeadlock(t *testing.T) {
	l := New()
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go l.Run(ctx)

	done := make(chan struct{})
	var post func(n int)
	post = func(n int) {
		if n == 0 {
			close(done)
			return
		}
		l.Post(func() { post(n - 1) })
	}
	l.Post(func() { post(500) })

	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("recursive posts did not complete")
	}
}

func TestLoopAfterFunc(t *testing.T) {
	l := New()
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go l.Run(ctx)

	fired := make(chan struct{})
	l.AfterFunc(10*time.Millisecond, func() { close(fired) })

	select {
	case <-fired:
	case <-time.After(2 * time.Second):
		t.Fatal("timer never fired")
	}
}

func TestLoopStopsOnCancel(t *testing.T) {
	l := New()
	ctx, cancel := context.WithCancel(context.Background())

	errc := make(chan error, 1)
	go func() { errc <- l.Run(ctx) }()
	cancel()

	select {
	case err := <-errc:
		if err != context.Canceled {
			t.Errorf("Run returned %v", err)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("Run did not return")
	}

	// Posting after shutdown must not block.
	l.Post(func() {})
}

func TestManualAdvanceFiresInOrder(t *testing.T) {
	m := NewManual()
	var got []string
	m.AfterFunc(3*time.Second, func() { got = append(got, "c") })
	m.AfterFunc(1*time.Second, func() {
		got = append(got, "a")
		m.AfterFunc(1*time.Second, func() { got = append(got, "b") })
	})
	stopped := m.AfterFunc(2500*time.Millisecond, func() { got = append(got, "x") })
	stopped.Stop()

	m.Advance(2 * time.Second)
	if len(got) != 2 || got[0] != "a" || got[1] != "b" {
		t.Fatalf("after 2s got %v", got)
	}
	m.Advance(time.Second)
	if len(got) != 3 || got[2] != "c" {
		t.Fatalf("after 3s got %v", got)
	}
	if m.Pending() != 0 {
		t.Errorf("pending = %d", m.Pending())
	}
	if m.Now() != 3*time.Second {
		t.Errorf("now = %v", m.Now())
	}
}
