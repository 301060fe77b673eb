package sim

import "container/heap"

// priority orders the kinds of events sharing a tick. Solids change before fluid
// is poured, so a source buried this tick is skipped, and mist checks run last.
func (t EventType) priority() int {
	switch t {
	case EventSolidChange:
		return 0
	case EventFluidSource:
		return 1
	default:
		return 2
	}
}

// queuedEvent is an event with its ordering key, fixed when it is scheduled.
type queuedEvent struct {
	tick int64
	rank int
	id   uint64
	ev   Event
}

func (a queuedEvent) before(b queuedEvent) bool {
	if a.tick != b.tick {
		return a.tick < b.tick
	}
	if a.rank != b.rank {
		return a.rank < b.rank
	}
	return a.id < b.id
}

// eventQueue is the container/heap view of the scheduled events.
type eventQueue []queuedEvent

func (q eventQueue) Len() int           { return len(q) }
func (q eventQueue) Less(i, j int) bool { return q[i].before(q[j]) }
func (q eventQueue) Swap(i, j int)      { q[i], q[j] = q[j], q[i] }
func (q *eventQueue) Push(x any)        { *q = append(*q, x.(queuedEvent)) }

func (q *eventQueue) Pop() any {
	old := *q
	last := old[len(old)-1]
	old[len(old)-1] = queuedEvent{}
	*q = old[:len(old)-1]
	return last
}

// EventHeap holds the pending world events of a Simulation. Events come out by
// tick, then by kind (solid change, fluid source, mist check), then in the order
// their IDs were assigned.
type EventHeap struct {
	queue eventQueue
}

// NewEventHeap creates an empty event heap.
func NewEventHeap() *EventHeap {
	return &EventHeap{}
}

// Len returns the number of pending events.
func (h *EventHeap) Len() int {
	return h.queue.Len()
}

// Schedule adds e. Its ID must already be assigned.
func (h *EventHeap) Schedule(e Event) {
	heap.Push(&h.queue, queuedEvent{tick: e.Timestamp(), rank: e.Type().priority(), id: e.EventID(), ev: e})
}

// Peek returns the next event without removing it, nil when empty.
func (h *EventHeap) Peek() Event {
	if h.queue.Len() == 0 {
		return nil
	}
	return h.queue[0].ev
}

// PopNext removes and returns the next event, nil when empty.
func (h *EventHeap) PopNext() Event {
	if h.queue.Len() == 0 {
		return nil
	}
	return heap.Pop(&h.queue).(queuedEvent).ev
}

// PopDue removes and returns the next event due at or before tick, nil when the
// next event is later.
func (h *EventHeap) PopDue(tick int64) Event {
	if h.queue.Len() == 0 || h.queue[0].tick > tick {
		return nil
	}
	return h.PopNext()
}
