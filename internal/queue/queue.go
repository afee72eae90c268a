// Package queue implements the reservation-and-fill priority queue at
// the heart of the audio manager. Items are scheduled by (priority,
// reservation time), so a slot reserved before audio exists keeps its
// place in line while synthesis runs. A pending head blocks later ready
// items until the reservation timeout, which preserves FIFO order
// across windows with uneven synthesis latency.
package queue

import (
	"container/heap"
	"errors"
	"sync"
	"time"

	"github.com/charmbracelet/log"
	"github.com/google/uuid"
)

const (
	// DefaultSampleRate is assumed when a fill omits the rate.
	DefaultSampleRate = 24000

	// bytesPerSample for 16-bit signed mono PCM.
	bytesPerSample = 2

	// bytesPerSecond is the wait-estimate constant: 24 kHz 16-bit mono.
	// Estimates are advisory, so the per-item sample rate is ignored.
	bytesPerSecond = DefaultSampleRate * bytesPerSample

	// DefaultReservationTimeout bounds how long a pending head may
	// stall the queue before it is expired and skipped.
	DefaultReservationTimeout = 30 * time.Second
)

// ErrItemNotFound is returned by Fill for unknown, expired, or
// already-filled item ids.
var ErrItemNotFound = errors.New("item not found or expired")

// Options configures an AudioQueue.
type Options struct {
	// ReservationTimeout overrides DefaultReservationTimeout when > 0.
	ReservationTimeout time.Duration

	// OnExpire is invoked (without the queue lock) for every pending
	// item the queue removes after its reservation timed out.
	OnExpire func(*Item)

	// OnInsert is invoked with the queue lock held, before the new
	// item's id is visible to any other caller. The coordinator uses
	// it to register the completion event; it must be fast and must
	// not call back into the queue.
	OnInsert func(*Item)
}

// Status is a point-in-time snapshot of queue counters.
type Status struct {
	Length              int   `json:"queue_length"`
	PendingReservations int   `json:"pending_reservations"`
	TotalEnqueued       int64 `json:"total_enqueued"`
	TotalPlayed         int64 `json:"total_played"`
	EstimatedWaitMS     int   `json:"estimated_wait_ms"`
}

// AudioQueue is a thread-safe priority queue with reservation support.
type AudioQueue struct {
	mu    sync.Mutex
	items itemHeap
	byID  map[string]*Item

	// readyCh is closed and replaced whenever an item becomes ready or
	// is inserted, waking Dequeue waiters.
	readyCh chan struct{}

	seq                uint64
	reservationTimeout time.Duration
	onExpire           func(*Item)
	onInsert           func(*Item)

	totalEnqueued int64
	totalPlayed   int64
}

// New creates an empty queue.
func New(opts Options) *AudioQueue {
	timeout := opts.ReservationTimeout
	if timeout <= 0 {
		timeout = DefaultReservationTimeout
	}
	return &AudioQueue{
		byID:               make(map[string]*Item),
		readyCh:            make(chan struct{}),
		reservationTimeout: timeout,
		onExpire:           opts.OnExpire,
		onInsert:           opts.OnInsert,
	}
}

// Reserve inserts a pending item and returns it with its 1-indexed
// position in the current scheduling order. Call this before starting
// synthesis so FIFO order is frozen at request time.
func (q *AudioQueue) Reserve(project string, priority Priority) (*Item, int) {
	q.mu.Lock()
	defer q.mu.Unlock()

	it := q.insertLocked(project, priority, nil, 0)
	return it, q.rankLocked(it)
}

// Enqueue inserts an already-ready item (reserve + fill under one
// lock). Returns the item, its position, and the advisory wait
// estimate in milliseconds.
func (q *AudioQueue) Enqueue(audio []byte, sampleRate int, project string, priority Priority) (*Item, int, int) {
	if sampleRate <= 0 {
		sampleRate = DefaultSampleRate
	}

	q.mu.Lock()
	defer q.mu.Unlock()

	it := q.insertLocked(project, priority, audio, sampleRate)
	it.state = StateReady
	pos := q.rankLocked(it)
	wait := q.estimatedWaitLocked(it)
	q.notifyLocked()
	return it, pos, wait
}

// insertLocked allocates an item and places it in the heap.
func (q *AudioQueue) insertLocked(project string, priority Priority, audio []byte, sampleRate int) *Item {
	q.seq++
	it := &Item{
		ID:         uuid.NewString(),
		Priority:   priority,
		Project:    project,
		ReservedAt: time.Now(),
		Audio:      audio,
		SampleRate: sampleRate,
		seq:        q.seq,
		state:      StatePending,
	}
	heap.Push(&q.items, it)
	q.byID[it.ID] = it
	q.totalEnqueued++
	if q.onInsert != nil {
		q.onInsert(it)
	}
	return it
}

// Fill attaches audio to a pending item, transitioning it to ready and
// waking any worker waiting on it. Filling an unknown, expired, or
// already-filled id returns ErrItemNotFound.
func (q *AudioQueue) Fill(id string, audio []byte, sampleRate int) error {
	if sampleRate <= 0 {
		sampleRate = DefaultSampleRate
	}

	q.mu.Lock()
	defer q.mu.Unlock()

	it, ok := q.byID[id]
	if !ok || it.state != StatePending {
		return ErrItemNotFound
	}

	it.Audio = audio
	it.SampleRate = sampleRate
	it.state = StateReady
	q.notifyLocked()
	return nil
}

// Dequeue returns the highest-ordering ready item, removing it. When
// the head of the queue is a pending reservation that has not timed
// out, Dequeue waits up to wait for it to become ready or be overtaken
// by a higher-priority insert. Pending items older than the
// reservation timeout are expired and skipped. Returns nil when
// nothing became available within wait.
func (q *AudioQueue) Dequeue(wait time.Duration) *Item {
	timer := time.NewTimer(wait)
	defer timer.Stop()

	for {
		q.mu.Lock()
		expired := q.expireStaleLocked()
		it := q.popReadyHeadLocked()
		ch := q.readyCh
		q.mu.Unlock()

		for _, ex := range expired {
			log.Info("reservation expired", "item_id", ex.ID, "project", ex.Project)
			if q.onExpire != nil {
				q.onExpire(ex)
			}
		}
		if it != nil {
			return it
		}

		select {
		case <-ch:
		case <-timer.C:
			return nil
		}
	}
}

// popReadyHeadLocked removes and returns the head if it is ready.
func (q *AudioQueue) popReadyHeadLocked() *Item {
	if q.items.Len() == 0 {
		return nil
	}
	head := q.items[0]
	if !head.ready() {
		return nil
	}
	heap.Pop(&q.items)
	delete(q.byID, head.ID)
	head.state = StatePlaying
	q.totalPlayed++
	return head
}

// expireStaleLocked removes pending items at the head whose
// reservation has timed out. Pending items deeper in the queue are
// left alone; they are reconsidered once they reach the head.
func (q *AudioQueue) expireStaleLocked() []*Item {
	var expired []*Item
	for q.items.Len() > 0 {
		head := q.items[0]
		if head.ready() || time.Since(head.ReservedAt) <= q.reservationTimeout {
			break
		}
		heap.Pop(&q.items)
		delete(q.byID, head.ID)
		head.state = StateExpired
		expired = append(expired, head)
	}
	return expired
}

// Peek returns the next item in scheduling order without removing it.
func (q *AudioQueue) Peek() *Item {
	q.mu.Lock()
	defer q.mu.Unlock()

	if q.items.Len() == 0 {
		return nil
	}
	return q.items[0]
}

// Clear removes all items, or only those of the given project when
// project is non-empty. Removed items are marked expired and returned
// so the caller can fire their completion events; relative order of
// survivors is unchanged.
func (q *AudioQueue) Clear(project string) []*Item {
	q.mu.Lock()
	defer q.mu.Unlock()

	var removed []*Item
	for _, it := range q.items {
		if project == "" || it.Project == project {
			removed = append(removed, it)
		}
	}
	for _, it := range removed {
		heap.Remove(&q.items, it.index)
		delete(q.byID, it.ID)
		it.state = StateExpired
	}
	return removed
}

// ProjectsAhead returns the projects of items scheduled strictly ahead
// of id, in play order. An unknown id yields nil.
func (q *AudioQueue) ProjectsAhead(id string) []string {
	q.mu.Lock()
	defer q.mu.Unlock()

	it, ok := q.byID[id]
	if !ok {
		return nil
	}
	var ahead []string
	for _, other := range q.sortedLocked() {
		if other == it {
			break
		}
		ahead = append(ahead, other.Project)
	}
	return ahead
}

// Len returns the number of queued items (pending and ready).
func (q *AudioQueue) Len() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return q.items.Len()
}

// Status returns current queue counters.
func (q *AudioQueue) Status() Status {
	q.mu.Lock()
	defer q.mu.Unlock()

	pending := 0
	var newest *Item
	for _, it := range q.items {
		if it.state == StatePending {
			pending++
		}
		if newest == nil || it.seq > newest.seq {
			newest = it
		}
	}
	return Status{
		Length:              q.items.Len(),
		PendingReservations: pending,
		TotalEnqueued:       q.totalEnqueued,
		TotalPlayed:         q.totalPlayed,
		EstimatedWaitMS:     q.estimatedWaitLocked(newest),
	}
}

// estimatedWaitLocked sums the playback time of ready audio ahead of
// exclude (normally the newest item).
func (q *AudioQueue) estimatedWaitLocked(exclude *Item) int {
	total := 0
	for _, it := range q.items {
		if it == exclude || !it.ready() {
			continue
		}
		total += len(it.Audio)
	}
	return total * 1000 / bytesPerSecond
}

// rankLocked returns the 1-indexed position of it in scheduling order.
func (q *AudioQueue) rankLocked(it *Item) int {
	rank := 1
	for _, other := range q.items {
		if other != it && other.before(it) {
			rank++
		}
	}
	return rank
}

// sortedLocked returns the items in scheduling order without
// disturbing the heap.
func (q *AudioQueue) sortedLocked() []*Item {
	out := make([]*Item, len(q.items))
	copy(out, q.items)
	for i := 1; i < len(out); i++ {
		for j := i; j > 0 && out[j].before(out[j-1]); j-- {
			out[j], out[j-1] = out[j-1], out[j]
		}
	}
	return out
}

// notifyLocked wakes every Dequeue waiter.
func (q *AudioQueue) notifyLocked() {
	close(q.readyCh)
	q.readyCh = make(chan struct{})
}

// itemHeap orders items by (priority, reservation time, seq).
type itemHeap []*Item

func (h itemHeap) Len() int           { return len(h) }
func (h itemHeap) Less(i, j int) bool { return h[i].before(h[j]) }

func (h itemHeap) Swap(i, j int) {
	h[i], h[j] = h[j], h[i]
	h[i].index = i
	h[j].index = j
}

func (h *itemHeap) Push(x interface{}) {
	it := x.(*Item)
	it.index = len(*h)
	*h = append(*h, it)
}

func (h *itemHeap) Pop() interface{} {
	old := *h
	n := len(old)
	it := old[n-1]
	old[n-1] = nil // avoid memory leak
	it.index = -1
	*h = old[0 : n-1]
	return it
}
