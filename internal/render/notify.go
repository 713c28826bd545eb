package render

import (
	"time"

	"github.com/large-farva/earshot/internal/loop"
)

// Default notification timings.
const (
	DefaultAppearAfter = 100 * time.Millisecond
	DefaultHideAfter   = 3000 * time.Millisecond
	DefaultRemoveAfter = 300 * time.Millisecond
)

// NotificationSink draws the three phases of a transient notification.
type NotificationSink interface {
	AppearNotification(id int, message, kind string)
	HideNotification(id int)
	RemoveNotification(id int)
}

// Notifier sequences transient notifications: each one appears shortly
// after it is requested, hides a few seconds later, and is removed once the
// hide has finished. Notifications are independent of each other and of
// every other timer on the loop.
type Notifier struct {
	sched loop.Scheduler
	sink  NotificationSink

	AppearAfter time.Duration
	HideAfter   time.Duration
	RemoveAfter time.Duration

	next int
}

// NewNotifier returns a notifier with the default timings.
func NewNotifier(sched loop.Scheduler, sink NotificationSink) *Notifier {
	return &Notifier{
		sched:       sched,
		sink:        sink,
		AppearAfter: DefaultAppearAfter,
		HideAfter:   DefaultHideAfter,
		RemoveAfter: DefaultRemoveAfter,
	}
}

// Show schedules a notification and returns its id.
func (n *Notifier) Show(message, kind string) int {
	n.next++
	id := n.next

	n.sched.AfterFunc(n.AppearAfter, func() {
		n.sink.AppearNotification(id, message, kind)
	})
	n.sched.AfterFunc(n.HideAfter, func() {
		n.sink.HideNotification(id)
		n.sched.AfterFunc(n.RemoveAfter, func() {
			n.sink.RemoveNotification(id)
		})
	})
	return id
}
