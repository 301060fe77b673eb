package sim

import "fmt"

// DrainQueue holds the member blocks of a FluidGroup. Higher and fuller blocks
// drain first.
type DrainQueue struct {
	flowQueue
	futureEmpty        BlockSet
	futureNoLongerFull BlockSet
}

// NewDrainQueue creates an empty drain queue for kind.
func NewDrainQueue(ledger BlockLedger, kind FluidTypeID) DrainQueue {
	return DrainQueue{flowQueue: newFlowQueue(ledger, kind)}
}

func (q *DrainQueue) priority(f FutureFlowBlock) uint32 {
	return uint32(q.ledger.Z(f.Block))*MaxBlockVolume*2 + f.Capacity
}

// InitializeForStep refreshes capacities (the contained volume), sorts highest
// priority first, and opens the first band.
func (q *DrainQueue) InitializeForStep() {
	for i := range q.queue {
		b := q.queue[i].Block
		if !q.ledger.FluidContains(b, q.fluid) {
			panic(fmt.Sprintf("DrainQueue.InitializeForStep: member %d holds no fluid %d", b, q.fluid))
		}
		q.queue[i].Delta = 0
		q.queue[i].Capacity = q.ledger.FluidVolume(b, q.fluid)
	}
	q.sortBy(q.priority, true)
	q.findGroupEnd()
	q.futureEmpty.Clear()
	q.futureNoLongerFull.Clear()
}

func (q *DrainQueue) findGroupEnd() {
	q.flowQueue.findGroupEnd(q.priority)
}

// RecordDelta removes volume from every block of the current band.
func (q *DrainQueue) RecordDelta(volume, flowCapacity, flowTillNextStep uint32) {
	if volume == 0 || q.groupStart == q.groupEnd {
		panic(fmt.Sprintf("DrainQueue.RecordDelta: volume %d from band [%d, %d)", volume, q.groupStart, q.groupEnd))
	}
	if q.ledger.FluidTotal(q.queue[q.groupStart].Block) == MaxBlockVolume &&
		!q.futureNoLongerFull.Contains(q.queue[q.groupEnd-1].Block) {
		for i := q.groupStart; i < q.groupEnd; i++ {
			q.futureNoLongerFull.Add(q.queue[i].Block)
		}
	}
	for i := q.groupStart; i < q.groupEnd; i++ {
		f := &q.queue[i]
		if f.Capacity < volume {
			panic(fmt.Sprintf("DrainQueue.RecordDelta: block %d capacity %d < %d", f.Block, f.Capacity, volume))
		}
		f.Delta += volume
		f.Capacity -= volume
	}
	if volume == flowCapacity {
		for i := q.groupStart; i < q.groupEnd; i++ {
			q.futureEmpty.Add(q.queue[i].Block)
		}
		q.groupStart = q.groupEnd
		q.findGroupEnd()
	} else if volume == flowTillNextStep {
		q.findGroupEnd()
	}
}

// ApplyDelta removes every recorded delta from the ledger. It returns the drained
// blocks together with their enterable neighbours; groups of other kinds touching
// them lose their stability.
func (q *DrainQueue) ApplyDelta() BlockSet {
	var touched BlockSet
	for i := 0; i < q.groupEnd; i++ {
		f := q.queue[i]
		if f.Delta == 0 {
			continue
		}
		q.ledger.Drain(f.Block, f.Delta, q.fluid)
		touched.Add(f.Block)
		for _, a := range q.ledger.Adjacent(f.Block) {
			if q.ledger.CanEnterEver(a) {
				touched.Add(a)
			}
		}
	}
	return touched
}

// GroupLevel returns the fluid level of the band after recorded deltas.
func (q *DrainQueue) GroupLevel() uint32 {
	f := q.queue[q.groupStart]
	return q.ledger.FluidVolume(f.Block, q.fluid) - f.Delta
}

// FutureEmpty returns blocks this step's deltas will empty.
func (q *DrainQueue) FutureEmpty() BlockSet { return q.futureEmpty }

// FutureNoLongerFull returns blocks that were full and will not be after this step.
func (q *DrainQueue) FutureNoLongerFull() BlockSet { return q.futureNoLongerFull }
