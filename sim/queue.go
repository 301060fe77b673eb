// Implements the flow queue shared by the Fill and Drain queues of a FluidGroup.
// A queue is a list of FutureFlowBlock plus a membership set. Once per step the
// list is sorted by priority and then consumed one priority band at a time.

package sim

import (
	"fmt"
	"math"
	"slices"
	"strings"
)

// unbounded stands in for "no limit" when taking the minimum of flow limits.
const unbounded = math.MaxUint32

// FutureFlowBlock is the per-step record of one queued block.
type FutureFlowBlock struct {
	Block    BlockIndex
	Delta    uint32 // volume to add (fill) or remove (drain) this step
	Capacity uint32 // volume still available to add or remove
}

// flowQueue holds the state common to FillQueue and DrainQueue.
// The current band is queue[groupStart:groupEnd].
type flowQueue struct {
	ledger     BlockLedger
	fluid      FluidTypeID
	queue      []FutureFlowBlock
	set        BlockSet
	groupStart int
	groupEnd   int
}

func newFlowQueue(ledger BlockLedger, fluid FluidTypeID) flowQueue {
	return flowQueue{ledger: ledger, fluid: fluid}
}

// Set returns the membership set. Callers MUST NOT modify it.
func (q *flowQueue) Set() BlockSet {
	return q.set
}

// Len returns the number of queued blocks.
func (q *flowQueue) Len() int {
	return len(q.queue)
}

// Entries returns the working list. Callers MUST NOT append to or reslice it.
func (q *flowQueue) Entries() []FutureFlowBlock {
	return q.queue
}

// Contains reports whether b is queued.
func (q *flowQueue) Contains(b BlockIndex) bool {
	return q.set.Contains(b)
}

// AddBlock queues b, which must not already be queued.
func (q *flowQueue) AddBlock(b BlockIndex) {
	if q.set.Contains(b) {
		panic(fmt.Sprintf("AddBlock: block %d already queued", b))
	}
	q.set.Add(b)
	q.queue = append(q.queue, FutureFlowBlock{Block: b})
}

// MaybeAddBlock queues b unless it is already queued.
func (q *flowQueue) MaybeAddBlock(b BlockIndex) {
	if !q.set.Contains(b) {
		q.AddBlock(b)
	}
}

// MaybeAddBlocks queues every member of blocks not already queued.
func (q *flowQueue) MaybeAddBlocks(blocks BlockSet) {
	for _, b := range blocks.Sorted() {
		q.MaybeAddBlock(b)
	}
}

// RemoveBlock drops b from the queue if present.
func (q *flowQueue) RemoveBlock(b BlockIndex) {
	if !q.set.Contains(b) {
		return
	}
	q.set.Remove(b)
	q.queue = slices.DeleteFunc(q.queue, func(f FutureFlowBlock) bool { return f.Block == b })
	q.groupStart, q.groupEnd = 0, 0
}

// RemoveBlocks drops every member of blocks.
func (q *flowQueue) RemoveBlocks(blocks BlockSet) {
	if blocks.Empty() {
		return
	}
	q.set.RemoveIf(blocks.Contains)
	q.queue = slices.DeleteFunc(q.queue, func(f FutureFlowBlock) bool { return blocks.Contains(f.Block) })
	q.groupStart, q.groupEnd = 0, 0
}

// merge absorbs the blocks of other.
func (q *flowQueue) merge(other *flowQueue) {
	for _, f := range other.queue {
		q.MaybeAddBlock(f.Block)
	}
}

// NoChange empties the current band so that applying the queue commits nothing.
func (q *flowQueue) NoChange() {
	q.groupStart, q.groupEnd = 0, 0
}

// GroupSize returns the number of blocks in the current band.
func (q *flowQueue) GroupSize() uint32 {
	return uint32(q.groupEnd - q.groupStart)
}

// GroupCapacityPerBlock returns the capacity shared by every block of the band.
func (q *flowQueue) GroupCapacityPerBlock() uint32 {
	if q.groupStart == len(q.queue) {
		return 0
	}
	return q.queue[q.groupStart].Capacity
}

// GroupFlowTillNextStepPerBlock returns how much flow brings the band level with
// the next entry, which then joins the band. ok is false when the next entry is on
// another z level (or there is none), in which case there is no such step.
func (q *flowQueue) GroupFlowTillNextStepPerBlock() (volume uint32, ok bool) {
	if q.groupEnd == len(q.queue) {
		return 0, false
	}
	start, next := q.queue[q.groupStart], q.queue[q.groupEnd]
	if q.ledger.Z(start.Block) != q.ledger.Z(next.Block) {
		return 0, false
	}
	return start.Capacity - next.Capacity, true
}

// flowTillNextStep is GroupFlowTillNextStepPerBlock with "no step" mapped to unbounded.
func (q *flowQueue) flowTillNextStep() uint32 {
	if v, ok := q.GroupFlowTillNextStepPerBlock(); ok {
		return v
	}
	return unbounded
}

// findGroupEnd extends the band from groupStart over every entry sharing its priority.
func (q *flowQueue) findGroupEnd(priority func(FutureFlowBlock) uint32) {
	if q.groupStart == len(q.queue) {
		q.groupEnd = q.groupStart
		return
	}
	p := priority(q.queue[q.groupStart])
	for q.groupEnd = q.groupStart + 1; q.groupEnd < len(q.queue); q.groupEnd++ {
		if priority(q.queue[q.groupEnd]) != p {
			break
		}
	}
}

// sortBy orders the list by priority, ascending or descending, ties by block handle.
func (q *flowQueue) sortBy(priority func(FutureFlowBlock) uint32, descending bool) {
	slices.SortFunc(q.queue, func(a, b FutureFlowBlock) int {
		pa, pb := priority(a), priority(b)
		if pa != pb {
			if (pa < pb) != descending {
				return -1
			}
			return 1
		}
		return int(a.Block) - int(b.Block)
	})
	q.groupStart = 0
}

func (q *flowQueue) String() string {
	var sb strings.Builder
	sb.WriteString("[")
	for i, f := range q.queue {
		if i == q.groupEnd {
			sb.WriteString("| ")
		}
		fmt.Fprintf(&sb, "%d d:%d c:%d", f.Block, f.Delta, f.Capacity)
		if i < len(q.queue)-1 {
			sb.WriteString(" ")
		}
	}
	sb.WriteString("]")
	return sb.String()
}
