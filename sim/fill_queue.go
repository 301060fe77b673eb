package sim

import (
	"fmt"
	"math"
)

// FillQueue holds the blocks a FluidGroup can flow into: its members that are not
// full plus enterable neighbours. Lower and emptier blocks are filled first.
type FillQueue struct {
	flowQueue
	futureFull          BlockSet
	futureNoLongerEmpty BlockSet
	overfull            BlockSet
}

// NewFillQueue creates an empty fill queue for kind.
func NewFillQueue(ledger BlockLedger, kind FluidTypeID) FillQueue {
	return FillQueue{flowQueue: newFlowQueue(ledger, kind)}
}

// priority orders by z first, then by remaining capacity (emptier first).
// Blocks with no capacity sort last and are never part of a band.
func (q *FillQueue) priority(f FutureFlowBlock) uint32 {
	if f.Capacity == 0 {
		return math.MaxUint32
	}
	return uint32(q.ledger.Z(f.Block)+1)*MaxBlockVolume*2 - f.Capacity
}

// InitializeForStep refreshes capacities from the ledger, sorts, and opens the first band.
func (q *FillQueue) InitializeForStep() {
	for i := range q.queue {
		q.queue[i].Delta = 0
		q.queue[i].Capacity = q.ledger.VolumeCanEnter(q.queue[i].Block, q.fluid)
	}
	q.sortBy(q.priority, false)
	q.findGroupEnd()
	q.futureFull.Clear()
	q.futureNoLongerEmpty.Clear()
	q.overfull.Clear()
}

func (q *FillQueue) findGroupEnd() {
	if q.groupStart == len(q.queue) || q.queue[q.groupStart].Capacity == 0 {
		q.groupEnd = q.groupStart
		return
	}
	q.flowQueue.findGroupEnd(q.priority)
}

// RecordDelta adds volume to every block of the current band. When the band is
// saturated the next band opens; when it reaches the level of the next entry the
// band grows to include it.
func (q *FillQueue) RecordDelta(volume, flowCapacity, flowTillNextStep uint32) {
	if volume == 0 || q.groupStart == q.groupEnd {
		panic(fmt.Sprintf("FillQueue.RecordDelta: volume %d into band [%d, %d)", volume, q.groupStart, q.groupEnd))
	}
	for i := q.groupStart; i < q.groupEnd; i++ {
		f := &q.queue[i]
		if f.Delta == 0 && !q.ledger.FluidContains(f.Block, q.fluid) {
			q.futureNoLongerEmpty.Add(f.Block)
		}
		if f.Capacity < volume {
			panic(fmt.Sprintf("FillQueue.RecordDelta: block %d capacity %d < %d", f.Block, f.Capacity, volume))
		}
		f.Delta += volume
		f.Capacity -= volume
	}
	if volume == flowCapacity {
		for i := q.groupStart; i < q.groupEnd; i++ {
			f := q.queue[i]
			if q.ledger.FluidVolume(f.Block, q.fluid)+f.Delta == MaxBlockVolume {
				q.futureFull.Add(f.Block)
			}
		}
		q.groupStart = q.groupEnd
		q.findGroupEnd()
	} else if volume == flowTillNextStep {
		q.findGroupEnd()
	}
}

// ApplyDelta writes every recorded delta into the ledger, owned by group for new
// entries, and remembers blocks that ended up over capacity.
func (q *FillQueue) ApplyDelta(group GroupID) {
	for i := 0; i < q.groupEnd; i++ {
		f := q.queue[i]
		if f.Delta == 0 {
			continue
		}
		q.ledger.Fill(f.Block, f.Delta, q.fluid, group)
		if q.ledger.FluidTotal(f.Block) > MaxBlockVolume {
			q.overfull.Add(f.Block)
		}
	}
}

// GroupLevel returns the highest fluid level in the current band after recorded deltas.
func (q *FillQueue) GroupLevel() uint32 {
	var highest uint32
	for i := q.groupStart; i < q.groupEnd; i++ {
		f := q.queue[i]
		if level := f.Delta + q.ledger.FluidVolume(f.Block, q.fluid); level > highest {
			highest = level
		}
	}
	return highest
}

// FutureFull returns blocks that this step's deltas will fill to capacity.
func (q *FillQueue) FutureFull() BlockSet { return q.futureFull }

// FutureNoLongerEmpty returns blocks that will hold this kind for the first time.
func (q *FillQueue) FutureNoLongerEmpty() BlockSet { return q.futureNoLongerEmpty }

// Overfull returns blocks left over capacity by ApplyDelta.
func (q *FillQueue) Overfull() BlockSet { return q.overfull }
