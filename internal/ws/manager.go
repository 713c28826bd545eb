package ws

import (
	"context"
	"fmt"
	"log"
	"math/rand/v2"
	"net/url"
	"strings"
	"sync/atomic"
	"time"

	"github.com/gorilla/websocket"

	"github.com/large-farva/earshot/internal/telemetry"
)

// Status is the state of the manager's current connection.
type Status int32

const (
	StatusConnecting Status = iota
	StatusOpen
	StatusClosed
)

func (s Status) String() string {
	switch s {
	case StatusConnecting:
		return "connecting"
	case StatusOpen:
		return "open"
	case StatusClosed:
		return "closed"
	default:
		return "unknown"
	}
}

// RetryPolicy decides how long to wait before redialing. attempt counts
// consecutive closes since the last successful open, starting at 1.
type RetryPolicy interface {
	Delay(attempt int) time.Duration
}

// FixedDelay waits the same duration before every reconnect.
type FixedDelay time.Duration

func (d FixedDelay) Delay(int) time.Duration { return time.Duration(d) }

// JitteredDelay waits Base plus or minus a random amount up to Jitter, so a
// fleet of clients does not reconnect in lockstep after an outage.
type JitteredDelay struct {
	Base   time.Duration
	Jitter time.Duration
}

func (d JitteredDelay) Delay(int) time.Duration {
	if d.Jitter <= 0 {
		return d.Base
	}
	offset := time.Duration(rand.Int64N(int64(2*d.Jitter+1))) - d.Jitter
	if delay := d.Base + offset; delay > 0 {
		return delay
	}
	return 0
}

// DefaultRetryDelay is the reconnect delay used when no policy is given.
const DefaultRetryDelay = 3 * time.Second

// ManagerOptions configures a Manager.
type ManagerOptions struct {
	// URL is the ws:// or wss:// endpoint.
	URL    string
	Dialer *websocket.Dialer
	Retry  RetryPolicy
	Logger *log.Logger

	// ReadTimeout, when positive, closes a connection that stays silent
	// longer than this. Server pings reset it.
	ReadTimeout time.Duration

	// Post hands a callback to the event loop. Events, drops and status
	// changes are all delivered through it, in order.
	Post func(func())

	OnEvent  func(telemetry.Event)
	OnDrop   func(raw []byte, err error)
	OnStatus func(Status)
}

// Manager keeps one WebSocket connection to the server alive for the life
// of a context. Inbound frames are decoded into telemetry events; frames
// that do not decode are dropped. Every close is followed by exactly one
// redial after the retry delay.
type Manager struct {
	url         string
	dialer      *websocket.Dialer
	retry       RetryPolicy
	log         *log.Logger
	readTimeout time.Duration

	post     func(func())
	onEvent  func(telemetry.Event)
	onDrop   func([]byte, error)
	onStatus func(Status)

	status atomic.Int32
	dials  atomic.Int64

	sleep func(ctx context.Context, d time.Duration) bool
}

// NewManager builds a manager. Call Run to start connecting.
func NewManager(opts ManagerOptions) *Manager {
	m := &Manager{
		url:         opts.URL,
		dialer:      opts.Dialer,
		retry:       opts.Retry,
		log:         opts.Logger,
		readTimeout: opts.ReadTimeout,
		post:        opts.Post,
		onEvent:     opts.OnEvent,
		onDrop:      opts.OnDrop,
		onStatus:    opts.OnStatus,
		sleep:       sleepOrCancel,
	}
	if m.dialer == nil {
		m.dialer = websocket.DefaultDialer
	}
	if m.retry == nil {
		m.retry = FixedDelay(DefaultRetryDelay)
	}
	if m.post == nil {
		m.post = func(fn func()) { fn() }
	}
	m.status.Store(int32(StatusClosed))
	return m
}

// Status returns the state of the current connection.
func (m *Manager) Status() Status {
	return Status(m.status.Load())
}

// Dials returns how many connection attempts have been made.
func (m *Manager) Dials() int64 {
	return m.dials.Load()
}

// Run connects and reconnects until ctx is cancelled. It always returns
// ctx.Err().
func (m *Manager) Run(ctx context.Context) error {
	attempt := 0
	for {
		if ctx.Err() != nil {
			return ctx.Err()
		}

		opened, err := m.connect(ctx)
		if opened {
			attempt = 0
		}
		m.setStatus(StatusClosed)
		if ctx.Err() != nil {
			return ctx.Err()
		}

		attempt++
		delay := m.retry.Delay(attempt)
		if err != nil {
			m.logf("connection lost: %v; reconnecting in %s", err, delay)
		} else {
			m.logf("connection closed; reconnecting in %s", delay)
		}
		if !m.sleep(ctx, delay) {
			return ctx.Err()
		}
	}
}

// connect dials once and reads until the connection ends. It reports
// whether the connection was ever open.
func (m *Manager) connect(ctx context.Context) (bool, error) {
	m.setStatus(StatusConnecting)
	m.dials.Add(1)

	conn, _, err := m.dialer.DialContext(ctx, m.url, nil)
	if err != nil {
		return false, err
	}
	defer conn.Close()

	m.setStatus(StatusOpen)
	m.logf("connected to %s", m.url)

	// Unblock ReadMessage when the application shuts down.
	stop := context.AfterFunc(ctx, func() {
		_ = conn.WriteControl(
			websocket.CloseMessage,
			websocket.FormatCloseMessage(websocket.CloseNormalClosure, "bye"),
			time.Now().Add(time.Second),
		)
		_ = conn.Close()
	})
	defer stop()

	if m.readTimeout > 0 {
		_ = conn.SetReadDeadline(time.Now().Add(m.readTimeout))
		conn.SetPingHandler(func(data string) error {
			_ = conn.SetReadDeadline(time.Now().Add(m.readTimeout))
			return conn.WriteControl(websocket.PongMessage, []byte(data), time.Now().Add(time.Second))
		})
	}

	for {
		_, msg, err := conn.ReadMessage()
		if err != nil {
			if websocket.IsCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
				return true, nil
			}
			return true, err
		}
		if m.readTimeout > 0 {
			_ = conn.SetReadDeadline(time.Now().Add(m.readTimeout))
		}
		m.deliver(msg)
	}
}

func (m *Manager) deliver(msg []byte) {
	ev, err := telemetry.Decode(msg)
	if err != nil {
		if m.onDrop != nil {
			m.post(func() { m.onDrop(msg, err) })
		}
		return
	}
	if m.onEvent != nil {
		m.post(func() { m.onEvent(ev) })
	}
}

func (m *Manager) setStatus(s Status) {
	if Status(m.status.Swap(int32(s))) == s {
		return
	}
	if m.onStatus != nil {
		m.post(func() { m.onStatus(s) })
	}
}

func (m *Manager) logf(format string, args ...any) {
	if m.log != nil {
		m.log.Printf(format, args...)
	}
}

// WebSocketURL derives the channel endpoint from the server's HTTP base URL.
func WebSocketURL(baseURL string) (string, error) {
	u, err := url.Parse(strings.TrimRight(baseURL, "/"))
	if err != nil {
		return "", err
	}

	switch u.Scheme {
	case "http":
		u.Scheme = "ws"
	case "https":
		u.Scheme = "wss"
	case "ws", "wss":
	default:
		return "", fmt.Errorf("unsupported scheme: %q", u.Scheme)
	}
	u.Path = "/ws"
	u.RawQuery = ""
	return u.String(), nil
}

// sleepOrCancel blocks for d or until ctx is cancelled. It reports whether
// the full duration elapsed.
func sleepOrCancel(ctx context.Context, d time.Duration) bool {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return false
	case <-t.C:
		return true
	}
}
