// Implements the per-block fluid ledger: which fluid kinds a block holds,
// how much of each, and which FluidGroup owns each entry.

package sim

import (
	"fmt"
	"slices"
)

// GroupID is a stable handle to a FluidGroup in the FluidGroups arena.
type GroupID int32

// NoGroup marks a ledger entry whose owning group is being reassigned.
const NoGroup GroupID = -1

// FluidData is one ledger entry.
type FluidData struct {
	Type   FluidTypeID
	Group  GroupID
	Volume uint32
}

// BlockLedger is everything a FluidGroup and its queues may ask of the grid.
// Groups never touch block storage directly.
type BlockLedger interface {
	Z(b BlockIndex) int
	Below(b BlockIndex) BlockIndex
	Adjacent(b BlockIndex) []BlockIndex
	AdjacentSameZ(b BlockIndex) []BlockIndex
	IsAdjacentToAny(b BlockIndex, set BlockSet) bool
	IsSolid(b BlockIndex) bool
	IsExposedToSky(b BlockIndex) bool

	CanEnterEver(b BlockIndex) bool
	CanEnterCurrently(b BlockIndex, kind FluidTypeID) bool
	VolumeCanEnter(b BlockIndex, kind FluidTypeID) uint32
	FluidContains(b BlockIndex, kind FluidTypeID) bool
	FluidVolume(b BlockIndex, kind FluidTypeID) uint32
	FluidTotal(b BlockIndex) uint32
	GroupOf(b BlockIndex, kind FluidTypeID) GroupID

	Fill(b BlockIndex, volume uint32, kind FluidTypeID, group GroupID)
	Drain(b BlockIndex, volume uint32, kind FluidTypeID)
	SetGroup(b BlockIndex, kind FluidTypeID, group GroupID)
	UnsetGroup(b BlockIndex, kind FluidTypeID)
}

var _ BlockLedger = (*Grid)(nil)

func (g *Grid) density(kind FluidTypeID) uint32 {
	return g.catalog.Fluid(kind).Density
}

func (g *Grid) entry(b BlockIndex, kind FluidTypeID) *FluidData {
	for i := range g.fluids[b] {
		if g.fluids[b][i].Type == kind {
			return &g.fluids[b][i]
		}
	}
	return nil
}

// Fluids returns a copy of the ledger entries of b.
func (g *Grid) Fluids(b BlockIndex) []FluidData {
	return slices.Clone(g.fluids[b])
}

// HasFluid reports whether b holds any fluid.
func (g *Grid) HasFluid(b BlockIndex) bool {
	return len(g.fluids[b]) != 0
}

// FluidContains reports whether b holds some of kind.
func (g *Grid) FluidContains(b BlockIndex, kind FluidTypeID) bool {
	return g.entry(b, kind) != nil
}

// FluidVolume returns the volume of kind in b.
func (g *Grid) FluidVolume(b BlockIndex, kind FluidTypeID) uint32 {
	if e := g.entry(b, kind); e != nil {
		return e.Volume
	}
	return 0
}

// FluidTotal returns the summed volume of every kind in b.
func (g *Grid) FluidTotal(b BlockIndex) uint32 {
	return g.totalFluid[b]
}

// GroupOf returns the group owning kind in b, NoGroup if b holds none.
func (g *Grid) GroupOf(b BlockIndex, kind FluidTypeID) GroupID {
	if e := g.entry(b, kind); e != nil {
		return e.Group
	}
	return NoGroup
}

// CanEnterEver reports whether fluid may ever occupy b.
func (g *Grid) CanEnterEver(b BlockIndex) bool {
	return !g.IsSolid(b)
}

// CanEnterCurrently reports whether kind could enter b now: either there is
// free space or some resident is lighter and can be pushed aside.
func (g *Grid) CanEnterCurrently(b BlockIndex, kind FluidTypeID) bool {
	if g.totalFluid[b] < MaxBlockVolume {
		return true
	}
	d := g.density(kind)
	for _, e := range g.fluids[b] {
		if g.density(e.Type) < d {
			return true
		}
	}
	return false
}

// VolumeCanEnter returns how much of kind b could take: capacity not held by
// residents at least as dense as kind.
func (g *Grid) VolumeCanEnter(b BlockIndex, kind FluidTypeID) uint32 {
	out := MaxBlockVolume
	d := g.density(kind)
	for _, e := range g.fluids[b] {
		if g.density(e.Type) >= d {
			out -= e.Volume
		}
	}
	return out
}

// FluidWithMostVolume returns the kind with the largest volume in b, NoFluid if empty.
func (g *Grid) FluidWithMostVolume(b BlockIndex) FluidTypeID {
	best := NoFluid
	var volume uint32
	for _, e := range g.fluids[b] {
		if e.Volume > volume {
			best, volume = e.Type, e.Volume
		}
	}
	return best
}

// Fill adds volume of kind to b, creating the entry owned by group when absent.
func (g *Grid) Fill(b BlockIndex, volume uint32, kind FluidTypeID, group GroupID) {
	if e := g.entry(b, kind); e != nil {
		e.Volume += volume
	} else {
		g.fluids[b] = append(g.fluids[b], FluidData{Type: kind, Group: group, Volume: volume})
	}
	g.totalFluid[b] += volume
}

// Drain removes volume of kind from b. The entry is erased when it reaches zero.
func (g *Grid) Drain(b BlockIndex, volume uint32, kind FluidTypeID) {
	i := slices.IndexFunc(g.fluids[b], func(e FluidData) bool { return e.Type == kind })
	if i < 0 {
		panic(fmt.Sprintf("Drain: block %d holds no fluid %d", b, kind))
	}
	e := &g.fluids[b][i]
	if e.Volume < volume || g.totalFluid[b] < volume {
		panic(fmt.Sprintf("Drain: removing %d from block %d holding %d", volume, b, e.Volume))
	}
	if e.Volume == volume {
		g.fluids[b] = slices.Delete(g.fluids[b], i, i+1)
	} else {
		e.Volume -= volume
	}
	g.totalFluid[b] -= volume
}

// SetGroup records group as the owner of kind in b.
func (g *Grid) SetGroup(b BlockIndex, kind FluidTypeID, group GroupID) {
	e := g.entry(b, kind)
	if e == nil {
		panic(fmt.Sprintf("SetGroup: block %d holds no fluid %d", b, kind))
	}
	e.Group = group
}

// UnsetGroup clears the owner of kind in b ahead of a reassignment.
func (g *Grid) UnsetGroup(b BlockIndex, kind FluidTypeID) {
	if e := g.entry(b, kind); e != nil {
		e.Group = NoGroup
	}
}

// sortedByDensity sorts the entries of b lightest first and returns the
// backing slice, so callers may mutate volumes in place.
func (g *Grid) sortedByDensity(b BlockIndex) []FluidData {
	slices.SortStableFunc(g.fluids[b], func(x, y FluidData) int {
		dx, dy := g.density(x.Type), g.density(y.Type)
		switch {
		case dx < dy:
			return -1
		case dx > dy:
			return 1
		}
		return 0
	})
	return g.fluids[b]
}

// addEntry appends a fresh entry without a group.
func (g *Grid) addEntry(b BlockIndex, kind FluidTypeID, volume uint32) {
	g.fluids[b] = append(g.fluids[b], FluidData{Type: kind, Group: NoGroup, Volume: volume})
	g.totalFluid[b] += volume
}

// destroyEntry removes the entry for kind; its volume must already be accounted for.
func (g *Grid) destroyEntry(b BlockIndex, kind FluidTypeID) {
	g.fluids[b] = slices.DeleteFunc(g.fluids[b], func(e FluidData) bool { return e.Type == kind })
}

// clearFluids drops every entry of b and zeroes its total.
func (g *Grid) clearFluids(b BlockIndex) {
	g.fluids[b] = nil
	g.totalFluid[b] = 0
}
