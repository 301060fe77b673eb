package sim

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestEventHeap_Ordering(t *testing.T) {
	// GIVEN events sharing ticks and types, pushed out of order
	mist := NewMistDisperseEvent(5, 0, 0)
	source := NewFluidSourceEvent(5, 0, 0, 10, 0, 0)
	solid := NewSolidChangeEvent(5, 0, NoMaterial)
	early := NewMistDisperseEvent(1, 0, 0)
	sameA := NewFluidSourceEvent(7, 0, 0, 10, 0, 0)
	sameB := NewFluidSourceEvent(7, 1, 0, 10, 0, 0)
	for i, ev := range []Event{mist, sameB, source, solid, sameA, early} {
		ev.setEventID(uint64(i))
	}
	sameA.setEventID(10)
	sameB.setEventID(11)

	h := NewEventHeap()
	for _, ev := range []Event{mist, sameB, source, solid, sameA, early} {
		h.Schedule(ev)
	}

	// THEN they come out by tick, then type priority, then ID
	want := []Event{early, solid, source, mist, sameA, sameB}
	require.Equal(t, len(want), h.Len())
	assert.Same(t, early, h.Peek())
	for i, w := range want {
		got := h.PopNext()
		assert.Same(t, w, got, "position %d", i)
	}
	assert.Nil(t, h.PopNext())
	assert.Nil(t, h.Peek())
}

func TestEventHeap_PopDueStopsAtLaterTicks(t *testing.T) {
	// GIVEN events at ticks 1 and 3
	first := NewSolidChangeEvent(1, 0, NoMaterial)
	later := NewSolidChangeEvent(3, 0, NoMaterial)
	first.setEventID(0)
	later.setEventID(1)
	h := NewEventHeap()
	h.Schedule(later)
	h.Schedule(first)

	// WHEN draining everything due by tick 2
	assert.Same(t, first, h.PopDue(2))
	assert.Nil(t, h.PopDue(2))

	// THEN the tick 3 event is still queued
	assert.Equal(t, 1, h.Len())
	assert.Same(t, later, h.PopDue(3))
	assert.Nil(t, h.PopDue(100))
}

func TestEventType_String(t *testing.T) {
	assert.Equal(t, "solid_change", EventSolidChange.String())
	assert.Equal(t, "fluid_source", EventFluidSource.String())
	assert.Equal(t, "mist_disperse", EventMistDisperse.String())
	assert.Equal(t, "unknown", EventType(42).String())
}
