package dblk

import (
	"sync/atomic"

	"github.com/behrlich/go-dblk/internal/constants"
)

// EventChannel is the best-effort completion side channel, independent of
// the per-request callback. Consumers that poll for completions activate
// the channel, select on Wake, and drain the image's completed-request
// list with PollCompletions. Notify is fire-and-forget: wakes are
// coalesced when the consumer is behind, which loses nothing because a
// single drain pass observes every published completion.
type EventChannel struct {
	wake   chan struct{}
	active atomic.Bool
}

func newEventChannel() *EventChannel {
	return &EventChannel{
		wake: make(chan struct{}, constants.DefaultEventBacklog),
	}
}

// Activate enables publication on this channel
func (e *EventChannel) Activate() {
	e.active.Store(true)
}

// Deactivate disables publication; pending wakes remain readable
func (e *EventChannel) Deactivate() {
	e.active.Store(false)
}

// Active reports whether completions are being published
func (e *EventChannel) Active() bool {
	return e.active.Load()
}

// Notify wakes the consumer without blocking. A wake already pending is
// enough; additional ones coalesce.
func (e *EventChannel) Notify() {
	select {
	case e.wake <- struct{}{}:
	default:
	}
}

// Wake returns the channel a consumer selects on
func (e *EventChannel) Wake() <-chan struct{} {
	return e.wake
}
