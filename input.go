package signalctl

import (
	"context"
	"sync"
	"time"
)

// InputSource is polled by the coordinator once per poll interval from
// inside every timed wait.
type InputSource interface {
	Poll() Events
}

// NoInput is an InputSource that never reports anything
type NoInput struct{}

// Poll implements InputSource
func (NoInput) Poll() Events {
	return Events{}
}

// EventQueue is an InputSource fed from other goroutines. Each event kind is
// a latch: producers set it, Poll hands it to the control loop and clears it.
type EventQueue struct {
	mutex   sync.Mutex
	pending Events
}

// NewEventQueue creates an empty queue
func NewEventQueue() *EventQueue {
	return &EventQueue{}
}

// Push latches ev until the next Poll
func (q *EventQueue) Push(ev Event) {
	q.mutex.Lock()
	defer q.mutex.Unlock()
	q.pending.Add(ev)
}

// RequestPedestrian latches a crossing request for street
func (q *EventQueue) RequestPedestrian(street Street) {
	q.Push(NewPedestrianRequest(street))
}

// RequestMode latches a mode change request
func (q *EventQueue) RequestMode(mode OperatingMode) {
	q.Push(NewModeChangeRequest(mode))
}

// TriggerEmergency latches the emergency trigger
func (q *EventQueue) TriggerEmergency() {
	q.Push(NewEmergencyTriggered())
}

// Poll implements InputSource
func (q *EventQueue) Poll() Events {
	q.mutex.Lock()
	defer q.mutex.Unlock()
	out := q.pending
	q.pending = Events{}
	return out
}

// MultiInput polls several sources and merges their batches
type MultiInput []InputSource

// Poll implements InputSource
func (m MultiInput) Poll() Events {
	var out Events
	for _, src := range m {
		if src == nil {
			continue
		}
		out.Merge(src.Poll())
	}
	return out
}

// ButtonLevels is one raw sample of the intersection's push buttons
type ButtonLevels struct {
	PedestrianV bool
	PedestrianH bool
	Emergency   bool
}

// PollButtons samples level inputs at rate and pushes an event on each
// rising edge. It returns when ctx is done.
func PollButtons(ctx context.Context, q *EventQueue, read func() ButtonLevels, clock Clock, rate time.Duration) {
	var prev ButtonLevels
	for {
		cur := read()
		if cur.PedestrianV && !prev.PedestrianV {
			q.RequestPedestrian(StreetV)
		}
		if cur.PedestrianH && !prev.PedestrianH {
			q.RequestPedestrian(StreetH)
		}
		if cur.Emergency && !prev.Emergency {
			q.TriggerEmergency()
		}
		prev = cur
		if err := clock.Sleep(ctx, rate); err != nil {
			return
		}
	}
}
