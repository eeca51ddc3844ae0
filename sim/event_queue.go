package sim

import "container/heap"

// eventEntry wraps an Event with a sequence ID for deterministic FIFO
// tie-breaking when timestamps are equal.
type eventEntry struct {
	event Event
	seqID uint64
}

// eventHeap is a min-heap ordered by (Time, seqID). Implements heap.Interface.
type eventHeap []eventEntry

func (h eventHeap) Len() int { return len(h) }

func (h eventHeap) Less(i, j int) bool {
	if h[i].event.Time() != h[j].event.Time() {
		return h[i].event.Time() < h[j].event.Time()
	}
	return h[i].seqID < h[j].seqID
}

func (h eventHeap) Swap(i, j int) { h[i], h[j] = h[j], h[i] }

func (h *eventHeap) Push(x any) {
	*h = append(*h, x.(eventEntry))
}

func (h *eventHeap) Pop() any {
	old := *h
	n := len(old)
	item := old[n-1]
	*h = old[:n-1]
	return item
}

// EventQueue is the simulator's scheduler: a time-ordered priority queue of
// pending events. Events with equal times pop in the order they were scheduled.
type EventQueue struct {
	events  eventHeap
	nextSeq uint64
}

// NewEventQueue creates an empty event queue.
func NewEventQueue() *EventQueue {
	q := &EventQueue{events: make(eventHeap, 0)}
	heap.Init(&q.events)
	return q
}

// Schedule inserts an event in O(log n).
func (q *EventQueue) Schedule(ev Event) {
	heap.Push(&q.events, eventEntry{event: ev, seqID: q.nextSeq})
	q.nextSeq++
}

// PopEarliest removes and returns the event with the smallest time.
// Returns ErrEmptyQueue when nothing is pending.
func (q *EventQueue) PopEarliest() (Event, error) {
	if q.events.Len() == 0 {
		return Event{}, ErrEmptyQueue
	}
	return heap.Pop(&q.events).(eventEntry).event, nil
}

// Peek returns the next event without removing it.
func (q *EventQueue) Peek() (Event, bool) {
	if q.events.Len() == 0 {
		return Event{}, false
	}
	return q.events[0].event, true
}

// Len returns the number of pending events.
func (q *EventQueue) Len() int {
	return q.events.Len()
}
