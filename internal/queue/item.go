package queue

import (
	"strings"
	"time"
)

// Priority controls scheduling order. Lower values play first.
type Priority int

const (
	// PriorityHigh is for system messages and interrupts (chimes).
	PriorityHigh Priority = iota
	// PriorityNormal is for regular TTS messages.
	PriorityNormal
	// PriorityLow is for background or deferred messages.
	PriorityLow
)

// ParsePriority maps a wire string onto a Priority. Unknown values
// coerce to PriorityNormal; the queue never rejects a request over
// a bad priority label.
func ParsePriority(s string) Priority {
	switch strings.ToLower(s) {
	case "high":
		return PriorityHigh
	case "low":
		return PriorityLow
	default:
		return PriorityNormal
	}
}

// String returns the wire form of the priority.
func (p Priority) String() string {
	switch p {
	case PriorityHigh:
		return "high"
	case PriorityLow:
		return "low"
	default:
		return "normal"
	}
}

// State is the lifecycle state of a queue item.
type State int

const (
	// StatePending means the slot is reserved but audio has not arrived.
	StatePending State = iota
	// StateReady means audio is attached and the item is playable.
	StateReady
	// StatePlaying means the worker has handed the item to the engine.
	StatePlaying
	// StateDone means playback finished (or was stopped).
	StateDone
	// StateExpired means the item was removed without playing.
	StateExpired
)

// String returns a human-readable state name.
func (s State) String() string {
	switch s {
	case StatePending:
		return "pending"
	case StateReady:
		return "ready"
	case StatePlaying:
		return "playing"
	case StateDone:
		return "done"
	case StateExpired:
		return "expired"
	default:
		return "unknown"
	}
}

// Item is the unit of queued audio. A Pending item has no audio; Fill
// is the only transition that attaches it.
type Item struct {
	ID         string
	Priority   Priority
	Project    string
	ReservedAt time.Time
	Audio      []byte
	SampleRate int

	// seq breaks reservation-time ties deterministically.
	seq uint64

	state State
	index int // heap index, -1 when not in the heap
}

// State reports the item's lifecycle state. Reads are safe only while
// the owning queue's lock is held or after the item left the queue.
func (it *Item) State() State { return it.state }

// ready reports whether the item can be handed to the worker.
func (it *Item) ready() bool { return it.state == StateReady }

// Finish marks a dequeued item as done. Only the playback worker
// calls this, after the engine has reported the buffer consumed.
func (it *Item) Finish() { it.state = StateDone }

// before defines the strict weak order (priority, reservation time, seq).
func (it *Item) before(other *Item) bool {
	if it.Priority != other.Priority {
		return it.Priority < other.Priority
	}
	if !it.ReservedAt.Equal(other.ReservedAt) {
		return it.ReservedAt.Before(other.ReservedAt)
	}
	return it.seq < other.seq
}

// Duration returns the playback length of the attached audio.
func (it *Item) Duration() time.Duration {
	if len(it.Audio) == 0 || it.SampleRate <= 0 {
		return 0
	}
	samples := len(it.Audio) / bytesPerSample
	return time.Duration(samples) * time.Second / time.Duration(it.SampleRate)
}
