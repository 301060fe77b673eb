// Implements FluidGroup, one connected body of a single fluid kind.
//
// Each step a group computes its flow in ReadStep (which only reads the grid and
// writes group-local state, so groups can be read concurrently) and commits it in
// WriteStep. AfterWriteStep, MergeStep and SplitStep then resolve the
// consequences: overfull blocks, groups that now touch, and groups that came apart.

package sim

import (
	"fmt"
	"maps"
	"math"
	"slices"
)

// splitData describes one component found while checking for a split.
type splitData struct {
	members        BlockSet
	futureAdjacent BlockSet
}

// FluidGroup is a maximal connected set of blocks holding the same fluid kind.
// Its members are exactly the drain queue's set.
type FluidGroup struct {
	ID    GroupID
	Fluid FluidTypeID

	groups *FluidGroups
	ledger BlockLedger

	fill  FillQueue
	drain DrainQueue

	// Excess is volume owned by the group but not placed in any block.
	// Negative excess is volume owed, removed from blocks on the next step.
	Excess    int
	viscosity int

	stable    bool
	merged    bool
	destroyed bool
	dissolved bool

	// Groups of lighter kinds which lost their last block while inside this group.
	dissolvedInThis map[FluidTypeID]GroupID

	futureNewEmptyAdjacents BlockSet
	futureGroups            []splitData
	futureAddToDrain        BlockSet
	futureRemoveFromDrain   BlockSet
	futureAddToFill         BlockSet
	futureRemoveFromFill    BlockSet

	// Recorded by synchronous mutations between steps, consumed by the next ReadStep.
	potentiallySplit            BlockSet
	potentiallyNoLongerAdjacent BlockSet
}

func newFluidGroup(groups *FluidGroups, id GroupID, kind FluidTypeID) *FluidGroup {
	return &FluidGroup{
		ID:              id,
		Fluid:           kind,
		groups:          groups,
		ledger:          groups.grid,
		fill:            NewFillQueue(groups.grid, kind),
		drain:           NewDrainQueue(groups.grid, kind),
		dissolvedInThis: make(map[FluidTypeID]GroupID),
	}
}

// Stable reports whether the last ReadStep found nothing to do.
func (g *FluidGroup) Stable() bool { return g.stable }

// Merged reports whether another group absorbed this one.
func (g *FluidGroup) Merged() bool { return g.merged }

// Destroyed reports whether the group has been marked for removal.
func (g *FluidGroup) Destroyed() bool { return g.destroyed }

// Dissolved reports whether the group has no blocks and lives inside a denser group.
func (g *FluidGroup) Dissolved() bool { return g.dissolved }

// Blocks returns the member set. Callers MUST NOT modify it.
func (g *FluidGroup) Blocks() BlockSet { return g.drain.Set() }

// FillQueue exposes the fill queue for inspection.
func (g *FluidGroup) FillQueue() *FillQueue { return &g.fill }

// DrainQueue exposes the drain queue for inspection.
func (g *FluidGroup) DrainQueue() *DrainQueue { return &g.drain }

// DissolvedIn returns the group dissolved in this one for kind, if any.
func (g *FluidGroup) DissolvedIn(kind FluidTypeID) (GroupID, bool) {
	id, ok := g.dissolvedInThis[kind]
	return id, ok
}

// FutureAddToFill returns the blocks WriteStep will add to the fill queue.
func (g *FluidGroup) FutureAddToFill() BlockSet { return g.futureAddToFill }

// FutureRemoveFromFill returns the blocks WriteStep will remove from the fill queue.
func (g *FluidGroup) FutureRemoveFromFill() BlockSet { return g.futureRemoveFromFill }

// AddFluid adds unplaced volume; it is dispersed on the next step.
func (g *FluidGroup) AddFluid(volume uint32) {
	g.Excess += int(volume)
	g.setUnstable()
}

// RemoveFluid owes volume; it is drained on the next step.
func (g *FluidGroup) RemoveFluid(volume uint32) {
	g.Excess -= int(volume)
	g.setUnstable()
}

func (g *FluidGroup) setUnstable() {
	g.stable = false
	g.groups.MarkUnstable(g.ID)
}

// AddBlock makes b, which must hold this kind, a member. Enterable neighbours are
// queued for filling and, with checkMerge, touching groups of the same kind merge.
func (g *FluidGroup) AddBlock(b BlockIndex, checkMerge bool) {
	if g.merged {
		panic(fmt.Sprintf("AddBlock: group %d is merged", g.ID))
	}
	if !g.ledger.FluidContains(b, g.Fluid) {
		panic(fmt.Sprintf("AddBlock: block %d holds no fluid %d", b, g.Fluid))
	}
	if g.drain.Contains(b) {
		return
	}
	g.setUnstable()
	if g.ledger.FluidVolume(b, g.Fluid) < MaxBlockVolume {
		g.fill.MaybeAddBlock(b)
	} else {
		g.fill.RemoveBlock(b)
	}
	if old := g.ledger.GroupOf(b, g.Fluid); old != NoGroup && old != g.ID {
		g.groups.Group(old).RemoveBlock(b)
	}
	g.ledger.SetGroup(b, g.Fluid, g.ID)
	g.drain.MaybeAddBlock(b)

	var toMerge []GroupID
	for _, a := range g.ledger.Adjacent(b) {
		if !g.ledger.CanEnterEver(a) {
			continue
		}
		found := g.ledger.FluidContains(a, g.Fluid)
		if found && checkMerge {
			other := g.ledger.GroupOf(a, g.Fluid)
			if other == g.ID || other == NoGroup {
				continue
			}
			if !slices.Contains(toMerge, other) {
				toMerge = append(toMerge, other)
			}
		}
		if !found || g.ledger.FluidVolume(a, g.Fluid) < MaxBlockVolume {
			g.fill.MaybeAddBlock(a)
		}
	}
	larger := g
	for _, id := range toMerge {
		// An earlier merge in this loop may already have absorbed it.
		if other := g.groups.Group(id); other != nil && !other.merged {
			larger = larger.Merge(other)
		}
	}
	larger.AddMistFor(b)
}

// RemoveBlock drops b from membership. Its neighbours are remembered so the
// next ReadStep can look for a split and for fill entries no longer adjacent.
func (g *FluidGroup) RemoveBlock(b BlockIndex) {
	g.setUnstable()
	g.drain.RemoveBlock(b)
	g.potentiallyNoLongerAdjacent.Add(b)
	for _, a := range g.ledger.Adjacent(b) {
		if !g.ledger.CanEnterEver(a) {
			continue
		}
		if g.ledger.GroupOf(a, g.Fluid) == g.ID {
			g.potentiallySplit.Add(a)
		} else {
			g.potentiallyNoLongerAdjacent.Add(a)
		}
	}
}

// AddMistFor spawns mist beside b when this kind mists and b is not resting on a solid.
func (g *FluidGroup) AddMistFor(b BlockIndex) {
	g.groups.mist.AddMistFor(b, g.Fluid)
}

// Merge combines g and other. The group with more members survives and is returned;
// the other is flagged merged.
func (g *FluidGroup) Merge(other *FluidGroup) *FluidGroup {
	if other == g || other.Fluid != g.Fluid {
		panic(fmt.Sprintf("Merge: cannot merge group %d (fluid %d) into %d (fluid %d)", other.ID, other.Fluid, g.ID, g.Fluid))
	}
	if g.merged || other.merged || g.dissolved || other.dissolved || g.destroyed || other.destroyed {
		panic(fmt.Sprintf("Merge: groups %d and %d must both be live", g.ID, other.ID))
	}
	larger, smaller := g, other
	if smaller.drain.Set().Len() > larger.drain.Set().Len() {
		larger, smaller = smaller, larger
	}
	smaller.merged = true
	larger.setUnstable()
	larger.Excess += smaller.Excess
	larger.drain.merge(&smaller.drain.flowQueue)
	larger.fill.merge(&smaller.fill.flowQueue)
	for _, b := range smaller.drain.Set().Sorted() {
		larger.ledger.SetGroup(b, larger.Fluid, larger.ID)
	}
	for _, kind := range slices.Sorted(maps.Keys(smaller.dissolvedInThis)) {
		id := smaller.dissolvedInThis[kind]
		if existing, ok := larger.dissolvedInThis[kind]; ok {
			d := larger.groups.Group(id)
			larger.groups.Group(existing).Excess += d.Excess
			larger.groups.destroy(d)
			continue
		}
		larger.dissolvedInThis[kind] = id
	}
	clear(smaller.dissolvedInThis)
	larger.potentiallySplit.AddAll(smaller.potentiallySplit)
	larger.potentiallyNoLongerAdjacent.AddAll(smaller.potentiallyNoLongerAdjacent)
	larger.groups.record(smaller.ID, smaller.Fluid, TransitionMerged)
	// A split planned before the merge no longer covers every member; the next
	// ReadStep checks again from one block of each planned component.
	for _, pending := range [...]*FluidGroup{larger, smaller} {
		for _, s := range pending.futureGroups {
			larger.potentiallySplit.Add(s.members.Sorted()[0])
		}
		pending.futureGroups = nil
	}
	// Groups that were about to merge with smaller merge with larger instead.
	for _, b := range smaller.futureNewEmptyAdjacents.Sorted() {
		id := larger.ledger.GroupOf(b, larger.Fluid)
		if id == NoGroup {
			continue
		}
		found := larger.groups.Group(id)
		if found != nil && !found.merged && found != larger {
			larger.Merge(found)
			if larger.merged {
				larger = found
			}
		}
	}
	return larger
}

// ReadStep computes this step's flow. It reads the grid but writes only group state.
func (g *FluidGroup) ReadStep() {
	if g.merged || g.destroyed || g.dissolved {
		panic(fmt.Sprintf("ReadStep: group %d is not live", g.ID))
	}
	g.futureNewEmptyAdjacents.Clear()
	g.futureGroups = g.futureGroups[:0]
	g.futureAddToDrain.Clear()
	g.futureRemoveFromDrain.Clear()
	g.futureAddToFill.Clear()
	g.futureRemoveFromFill.Clear()
	g.stable = false
	g.viscosity = int(g.groups.catalog.Fluid(g.Fluid).Viscosity)
	g.pruneDetachedFill()
	g.drain.InitializeForStep()
	g.fill.InitializeForStep()

	// Nowhere to flow.
	if g.fill.Set().Empty() ||
		((g.fill.GroupSize() == 0 || g.fill.GroupCapacityPerBlock() == 0) && g.Excess >= 0) ||
		((g.drain.GroupSize() == 0 || g.drain.GroupCapacityPerBlock() == 0) && g.Excess <= 0) {
		g.stable = true
		g.fill.NoChange()
		g.drain.NoChange()
		// Blocks removed since the last step may still have cut the group in two.
		if !g.drain.Set().Empty() && (!g.potentiallySplit.Empty() || !g.potentiallyNoLongerAdjacent.Empty()) {
			g.planFuture()
		}
		return
	}

	g.disperseExcess()
	g.flow()
	g.planFuture()
}

// pruneDetachedFill drops fill entries that a removed member left touching no
// member, so no volume flows through a block that turned solid. A group with no
// members keeps its fill targets (a pushed piston or an undissolving group).
func (g *FluidGroup) pruneDetachedFill() {
	if g.drain.Set().Empty() {
		return
	}
	var detached BlockSet
	for _, b := range g.potentiallyNoLongerAdjacent.Sorted() {
		if g.fill.Contains(b) && !g.drain.Contains(b) && !g.ledger.IsAdjacentToAny(b, g.drain.Set()) {
			detached.Add(b)
		}
	}
	g.fill.RemoveBlocks(detached)
}

// disperseExcess places positive excess into the lowest fill bands and takes owed
// volume from the highest drain bands, in whole units per band member.
func (g *FluidGroup) disperseExcess() {
	for g.Excess > 0 && g.fill.GroupSize() != 0 {
		size := g.fill.GroupSize()
		if uint32(g.Excess) < size {
			break
		}
		capacity := g.fill.GroupCapacityPerBlock()
		tillNext := g.fill.flowTillNextStep()
		perBlock := min(tillNext, capacity, uint32(g.Excess)/size)
		g.Excess -= int(perBlock * size)
		g.fill.RecordDelta(perBlock, capacity, tillNext)
	}
	for g.Excess < 0 && g.drain.GroupSize() != 0 {
		size := g.drain.GroupSize()
		if uint32(-g.Excess) < size {
			break
		}
		capacity := g.drain.GroupCapacityPerBlock()
		tillNext := g.drain.flowTillNextStep()
		perBlock := min(capacity, tillNext, uint32(-g.Excess)/size)
		g.Excess += int(perBlock * size)
		g.drain.RecordDelta(perBlock, capacity, tillNext)
	}
}

// flow moves volume band by band from the drain queue to the fill queue until
// the levels settle, a queue runs out, or the viscosity budget is spent.
func (g *FluidGroup) flow() {
	for g.viscosity > 0 && g.drain.GroupSize() != 0 && g.fill.GroupSize() != 0 {
		drainVolume := g.drain.GroupLevel()
		fillVolume := g.fill.GroupLevel()
		if g.dispositionIsStable(fillVolume, drainVolume) {
			// Blocks joining this step may still have somewhere to go next step.
			if g.fill.FutureNoLongerEmpty().Empty() && len(g.dissolvedInThis) == 0 {
				g.stable = true
			}
			break
		}
		capacityFill := g.fill.GroupCapacityPerBlock()
		tillNextFill := g.fill.flowTillNextStep()
		capacityDrain := g.drain.GroupCapacityPerBlock()
		tillNextDrain := g.drain.flowTillNextStep()
		fillSize, drainSize := g.fill.GroupSize(), g.drain.GroupSize()

		// Equalization only limits flow between bands on the same z level.
		maxDrainForEquilibrium, maxFillForEquilibrium := uint32(unbounded), uint32(unbounded)
		if g.ledger.Z(g.fill.queue[g.fill.groupStart].Block) == g.ledger.Z(g.drain.queue[g.drain.groupStart].Block) {
			equilibrium := (fillVolume*fillSize + drainVolume*drainSize) / (fillSize + drainSize)
			maxDrainForEquilibrium = drainVolume - equilibrium
			maxFillForEquilibrium = equilibrium - fillVolume
		}
		// Viscosity limits fill only. Fill may be 0: when drain cannot give each fill
		// block at least one unit the drained volume goes to excess.
		perBlockFill := min(capacityFill, tillNextFill, maxFillForEquilibrium, uint32(g.viscosity))
		perBlockDrain := min(capacityDrain, tillNextDrain, maxDrainForEquilibrium)
		if perBlockDrain == 0 {
			break
		}
		totalFill := perBlockFill * fillSize
		totalDrain := perBlockDrain * drainSize
		if totalFill < totalDrain {
			if maxFillForEquilibrium == perBlockFill {
				perBlockDrain = maxDrainForEquilibrium
			} else {
				perBlockDrain = uint32(math.Ceil(float64(totalFill) / float64(drainSize)))
			}
			totalDrain = perBlockDrain * drainSize
		} else if totalFill > totalDrain {
			if maxDrainForEquilibrium == perBlockDrain {
				perBlockFill = maxFillForEquilibrium
			} else {
				perBlockFill = totalDrain / fillSize
			}
			totalFill = perBlockFill * fillSize
		}
		g.viscosity -= int(perBlockFill)
		g.drain.RecordDelta(perBlockDrain, capacityDrain, tillNextDrain)
		if perBlockFill != 0 {
			g.fill.RecordDelta(perBlockFill, capacityFill, tillNextFill)
		}
		g.Excess += int(totalDrain) - int(totalFill)
		// Levels met; new neighbours may still be worth flowing into next step.
		if perBlockDrain == maxDrainForEquilibrium {
			break
		}
	}
}

// dispositionIsStable reports whether the highest drain band has nothing to give
// the lowest fill band.
func (g *FluidGroup) dispositionIsStable(fillVolume, drainVolume uint32) bool {
	drainZ := g.ledger.Z(g.drain.queue[g.drain.groupStart].Block)
	fillZ := g.ledger.Z(g.fill.queue[g.fill.groupStart].Block)
	if drainZ < fillZ {
		return true
	}
	if drainZ == fillZ {
		if fillVolume >= drainVolume {
			return true
		}
		if fillVolume == 0 && (drainVolume == 1 ||
			drainVolume*g.drain.GroupSize() < g.fill.GroupSize()+g.drain.GroupSize()) {
			return true
		}
	}
	return false
}

// planFuture turns the recorded deltas into membership changes: which blocks join
// or leave the queues, which empty neighbours appear, and whether the group splits.
func (g *FluidGroup) planFuture() {
	var futureBlocks BlockSet
	for _, b := range g.drain.Set().Sorted() {
		if !g.drain.FutureEmpty().Contains(b) {
			futureBlocks.Add(b)
		}
	}
	futureBlocks.AddAll(g.fill.FutureNoLongerEmpty())
	if futureBlocks.Empty() {
		g.destroyed = true
	}

	for _, b := range g.fill.FutureNoLongerEmpty().Sorted() {
		for _, a := range g.ledger.Adjacent(b) {
			if !g.ledger.CanEnterEver(a) || g.drain.Contains(a) || g.fill.Contains(a) {
				continue
			}
			if !g.ledger.FluidContains(a, g.Fluid) ||
				g.ledger.FluidVolume(a, g.Fluid) < MaxBlockVolume ||
				g.ledger.GroupOf(a, g.Fluid) != g.ID {
				g.futureNewEmptyAdjacents.Add(a)
			}
		}
	}

	potentialNewGroups := g.potentiallySplit
	g.potentiallySplit = BlockSet{}
	possiblyNoLongerAdjacent := g.potentiallyNoLongerAdjacent
	g.potentiallyNoLongerAdjacent = BlockSet{}

	var adjacentToFutureEmpty BlockSet
	for _, b := range g.drain.FutureEmpty().Sorted() {
		for _, a := range g.ledger.Adjacent(b) {
			if g.ledger.CanEnterEver(a) {
				adjacentToFutureEmpty.Add(a)
			}
		}
	}
	for _, b := range adjacentToFutureEmpty.Sorted() {
		if futureBlocks.Contains(b) {
			potentialNewGroups.Add(b)
		} else {
			possiblyNoLongerAdjacent.Add(b)
		}
	}

	// A split needs at least two starting points.
	potentialNewGroups.RemoveIf(func(b BlockIndex) bool { return !futureBlocks.Contains(b) })
	if potentialNewGroups.Len() > 1 {
		var closed BlockSet
		for _, b := range potentialNewGroups.Sorted() {
			if closed.Contains(b) {
				continue
			}
			members := collectConnected(g.ledger, b, futureBlocks)
			closed.AddAll(members)
			g.futureGroups = append(g.futureGroups, splitData{members: members})
		}
		// Every future member belongs to exactly one component, including
		// members cut off without touching a removed block.
		for _, b := range futureBlocks.Sorted() {
			if closed.Contains(b) {
				continue
			}
			members := collectConnected(g.ledger, b, futureBlocks)
			closed.AddAll(members)
			g.futureGroups = append(g.futureGroups, splitData{members: members})
		}
	}
	if len(g.futureGroups) != 0 {
		// The largest component keeps this group's identity; move it to the end.
		largest := 0
		for i, fg := range g.futureGroups {
			if fg.members.Len() > g.futureGroups[largest].members.Len() {
				largest = i
			}
		}
		keep := g.futureGroups[largest]
		g.futureGroups = append(slices.Delete(g.futureGroups, largest, largest+1), keep)
		for _, b := range g.futureNewEmptyAdjacents.Sorted() {
			for _, a := range g.ledger.Adjacent(b) {
				if !g.ledger.CanEnterEver(a) {
					continue
				}
				for i := range g.futureGroups {
					if g.futureGroups[i].members.Contains(a) {
						g.futureGroups[i].futureAdjacent.Add(b)
					}
				}
			}
		}
	}

	var futureRemoveFromEmptyAdjacents BlockSet
	for _, b := range possiblyNoLongerAdjacent.Sorted() {
		if futureBlocks.Contains(b) {
			continue
		}
		stillAdjacent := false
		for _, a := range g.ledger.Adjacent(b) {
			if g.ledger.CanEnterEver(a) && futureBlocks.Contains(a) {
				stillAdjacent = true
				break
			}
		}
		if !stillAdjacent {
			futureRemoveFromEmptyAdjacents.Add(b)
		}
	}

	g.futureAddToDrain = g.fill.FutureNoLongerEmpty().Clone()
	g.futureRemoveFromDrain = g.drain.FutureEmpty().Clone()
	g.futureAddToFill = g.futureNewEmptyAdjacents.Clone()
	for _, b := range g.drain.FutureNoLongerFull().Sorted() {
		if !futureRemoveFromEmptyAdjacents.Contains(b) {
			g.futureAddToFill.Add(b)
		}
	}
	g.futureRemoveFromFill = futureRemoveFromEmptyAdjacents
	g.futureRemoveFromFill.AddAll(g.fill.FutureFull())
}

// collectConnected flood-fills from start through face neighbours in within.
func collectConnected(ledger BlockLedger, start BlockIndex, within BlockSet) BlockSet {
	out := NewBlockSet(start)
	open := []BlockIndex{start}
	for len(open) != 0 {
		b := open[len(open)-1]
		open = open[:len(open)-1]
		for _, a := range ledger.Adjacent(b) {
			if within.Contains(a) && !out.Contains(a) {
				out.Add(a)
				open = append(open, a)
			}
		}
	}
	return out
}

// WriteStep commits the deltas computed by ReadStep and updates the queues.
func (g *FluidGroup) WriteStep() {
	if g.merged || g.dissolved {
		panic(fmt.Sprintf("WriteStep: group %d is not live", g.ID))
	}
	touched := g.drain.ApplyDelta()
	g.fill.ApplyDelta(g.ID)
	for _, b := range touched.Sorted() {
		g.groups.setAllUnstableExcept(b, g.Fluid)
	}
	// Blocks claimed by another group of this kind join through a merge instead.
	g.futureAddToDrain.RemoveIf(func(b BlockIndex) bool {
		id := g.ledger.GroupOf(b, g.Fluid)
		return id != NoGroup && id != g.ID
	})
	g.fill.RemoveBlocks(g.futureRemoveFromFill)
	g.fill.MaybeAddBlocks(g.futureAddToFill)
	g.drain.RemoveBlocks(g.futureRemoveFromDrain)
	g.drain.MaybeAddBlocks(g.futureAddToDrain)
}

// AfterWriteStep resolves blocks left overfull and spawns mist for newly filled blocks.
func (g *FluidGroup) AfterWriteStep() {
	// Another group's overfull resolution may have dissolved or destroyed this one.
	if g.dissolved || g.destroyed {
		return
	}
	for _, b := range g.fill.Overfull().Sorted() {
		if g.ledger.FluidTotal(b) > MaxBlockVolume {
			g.groups.ResolveOverfull(b)
		}
		if g.dissolved || g.destroyed {
			return
		}
	}
	for _, b := range g.fill.FutureNoLongerEmpty().Sorted() {
		g.AddMistFor(b)
	}
}

// SplitStep releases dissolved groups into this group's fill queue and splits off
// every component except the largest as a new group.
func (g *FluidGroup) SplitStep() {
	if g.merged || g.destroyed || g.dissolved {
		panic(fmt.Sprintf("SplitStep: group %d is not live", g.ID))
	}
	var dispersed []FluidTypeID
	for _, kind := range slices.Sorted(maps.Keys(g.dissolvedInThis)) {
		d := g.groups.Group(g.dissolvedInThis[kind])
		if d == nil || !d.dissolved {
			dispersed = append(dispersed, kind)
			continue
		}
		for _, f := range slices.Clone(g.fill.Entries()) {
			if g.groups.Undissolve(f.Block, d) {
				dispersed = append(dispersed, kind)
				break
			}
		}
	}
	for _, kind := range dispersed {
		delete(g.dissolvedInThis, kind)
	}

	if len(g.futureGroups) < 2 {
		g.futureGroups = nil
		return
	}
	keep := g.futureGroups[len(g.futureGroups)-1]
	var formerMembers BlockSet
	for _, b := range g.drain.Set().Sorted() {
		if !keep.members.Contains(b) {
			formerMembers.Add(b)
			// The new group must not try to take these from us.
			g.ledger.UnsetGroup(b, g.Fluid)
		}
	}
	splits := g.futureGroups[:len(g.futureGroups)-1]
	for _, b := range formerMembers.Sorted() {
		if !slices.ContainsFunc(splits, func(s splitData) bool { return s.members.Contains(b) }) {
			panic(fmt.Sprintf("SplitStep: group %d member %d is in no component", g.ID, b))
		}
	}
	g.drain.RemoveBlocks(formerMembers)
	var formerFill BlockSet
	for _, b := range g.fill.Set().Sorted() {
		if !g.drain.Contains(b) && !g.ledger.IsAdjacentToAny(b, g.drain.Set()) {
			formerFill.Add(b)
		}
	}
	g.fill.RemoveBlocks(formerFill)
	g.futureNewEmptyAdjacents = keep.futureAdjacent
	g.futureGroups = nil
	for _, s := range splits {
		created := g.groups.createFluidGroup(g.Fluid, s.members, false)
		created.futureNewEmptyAdjacents = s.futureAdjacent
		g.groups.record(created.ID, g.Fluid, TransitionSplit)
	}
}

// MergeStep merges with every same-kind group found next to blocks this group
// started filling.
func (g *FluidGroup) MergeStep() {
	if g.destroyed || g.dissolved {
		panic(fmt.Sprintf("MergeStep: group %d is not live", g.ID))
	}
	for _, b := range g.futureNewEmptyAdjacents.Sorted() {
		// Merging may hand this group to a larger one mid-loop.
		if g.merged {
			return
		}
		id := g.ledger.GroupOf(b, g.Fluid)
		if id == NoGroup || id == g.ID {
			continue
		}
		if other := g.groups.Group(id); other != nil && !other.merged {
			g.Merge(other)
		}
	}
}

// TotalVolume returns the placed volume plus excess.
func (g *FluidGroup) TotalVolume() int {
	total := g.Excess
	for _, b := range g.drain.Set().Sorted() {
		total += int(g.ledger.FluidVolume(b, g.Fluid))
	}
	return total
}

// CountBlocksOnSurface returns how many members have nothing solid above them.
func (g *FluidGroup) CountBlocksOnSurface() int {
	n := 0
	for _, b := range g.drain.Set().Sorted() {
		if g.ledger.IsExposedToSky(b) {
			n++
		}
	}
	return n
}

func (g *FluidGroup) String() string {
	return fmt.Sprintf("group %d fluid %d blocks %d excess %d stable %t drain %v fill %v",
		g.ID, g.Fluid, g.drain.Len(), g.Excess, g.stable, &g.drain.flowQueue, &g.fill.flowQueue)
}
