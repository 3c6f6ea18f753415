// Package event implements the fixed-size per-process input-event queue
// (spec §3 "Event", §4 "per-process event queues"), grounded on
// internal/ring's lock-free SPSC ring.
package event

import "github.com/jncronin/gkos/internal/ring"

// Kind tags the variant carried by an Event (spec §3 "Event. Tagged
// union").
type Kind int

const (
	KeyDown Kind = iota
	KeyUp
	MouseDown
	MouseMove
	MouseUp
	AxisMotion
	ButtonDown
	ButtonUp
	CaptionChange
	RefreshScreen
)

// Event is the tagged union of input/UI notifications a process can
// receive (spec §3 "Event").
type Event struct {
	Kind Kind

	ScanCode uintptr // KeyDown/KeyUp

	X, Y     int32 // MouseDown/Move/Up
	Relative bool
	Buttons  uint32

	AxisID    int32 // AxisMotion
	AxisValue int32

	ButtonIndex int32 // ButtonDown/Up
}

// Queue is the fixed-size, lock-free per-process event ring (spec §3
// "events: ring<Event>(N)").
type Queue struct {
	ring *ring.SPSC[Event]
}

// NewQueue constructs a Queue with room for capacity events; capacity must
// be a power of two.
func NewQueue(capacity int) *Queue {
	return &Queue{ring: ring.NewSPSC[Event](capacity)}
}

// Push enqueues ev, returning false if the queue is full (the producer —
// the display/input driver — drops the event rather than blocking, since
// interrupt handlers never suspend, spec §5).
func (q *Queue) Push(ev Event) bool {
	return q.ring.Push(ev)
}

// Pop dequeues the oldest pending event, if any.
func (q *Queue) Pop() (Event, bool) {
	return q.ring.Pop()
}

// Len reports the number of events currently queued.
func (q *Queue) Len() int { return q.ring.Len() }
