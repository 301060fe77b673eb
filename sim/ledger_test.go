package sim

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// newFloorGrid returns a grid of the default catalog with a stone floor at z = 0.
func newFloorGrid(sx, sy, sz int) *Grid {
	g := NewGrid(sx, sy, sz, DefaultCatalog())
	g.SetSolidLayers(0, 0, g.Catalog().MustMaterial("stone"))
	return g
}

func TestGrid_IndexRoundTrip(t *testing.T) {
	g := NewGrid(4, 3, 2, DefaultCatalog())
	for z := 0; z < 2; z++ {
		for y := 0; y < 3; y++ {
			for x := 0; x < 4; x++ {
				b := g.Index(x, y, z)
				gx, gy, gz := g.Coordinates(b)
				assert.Equal(t, [3]int{x, y, z}, [3]int{gx, gy, gz})
			}
		}
	}
	assert.Equal(t, BlockIndex(1+2*4+1*4*3), g.Index(1, 2, 1))
}

func TestGrid_LookupOutOfBounds(t *testing.T) {
	g := NewGrid(2, 2, 2, DefaultCatalog())
	_, err := g.Lookup(2, 0, 0)
	assert.ErrorIs(t, err, ErrOutOfBounds)
	_, err = g.Lookup(0, -1, 0)
	assert.ErrorIs(t, err, ErrOutOfBounds)
	b, err := g.Lookup(1, 1, 1)
	require.NoError(t, err)
	assert.Equal(t, g.Index(1, 1, 1), b)
}

func TestGrid_AdjacentOrderAndEdges(t *testing.T) {
	g := NewGrid(3, 3, 3, DefaultCatalog())
	center := g.Index(1, 1, 1)

	// Below, above, -x, +x, -y, +y.
	want := []BlockIndex{
		g.Index(1, 1, 0), g.Index(1, 1, 2),
		g.Index(0, 1, 1), g.Index(2, 1, 1),
		g.Index(1, 0, 1), g.Index(1, 2, 1),
	}
	assert.Equal(t, want, g.Adjacent(center))
	assert.False(t, g.IsEdge(center))

	corner := g.Index(0, 0, 0)
	assert.Len(t, g.Adjacent(corner), 3)
	assert.True(t, g.IsEdge(corner))
	assert.True(t, g.IsEdge(g.Index(1, 1, 2)), "top face is an edge")
	assert.Equal(t, NoBlock, g.Below(corner))
	assert.Equal(t, NoBlock, g.Above(g.Index(1, 1, 2)))
}

func TestGrid_MassUsesMaterialDensity(t *testing.T) {
	g := NewGrid(1, 1, 1, DefaultCatalog())
	b := g.Index(0, 0, 0)
	assert.Zero(t, g.Mass(b))
	g.PlaceSolid(b, g.Catalog().MustMaterial("dirt"))
	assert.Equal(t, 70*MaxBlockVolume, g.Mass(b))
}

func TestLedger_FillAndDrain(t *testing.T) {
	g := NewGrid(1, 1, 1, DefaultCatalog())
	water := g.Catalog().MustFluid("water")
	b := g.Index(0, 0, 0)

	// GIVEN an empty block
	assert.False(t, g.HasFluid(b))
	assert.Equal(t, NoGroup, g.GroupOf(b, water))

	// WHEN 30 is filled twice and 60 drained
	g.Fill(b, 30, water, 7)
	g.Fill(b, 30, water, 9)
	assert.Equal(t, uint32(60), g.FluidVolume(b, water))
	assert.Equal(t, GroupID(7), g.GroupOf(b, water), "existing entry keeps its owner")
	g.Drain(b, 60, water)

	// THEN the entry is gone
	assert.False(t, g.FluidContains(b, water))
	assert.Zero(t, g.FluidTotal(b))
	assert.Panics(t, func() { g.Drain(b, 1, water) })
}

func TestLedger_VolumeCanEnterIgnoresLighterResidents(t *testing.T) {
	g := NewGrid(1, 1, 1, DefaultCatalog())
	c := g.Catalog()
	water, co2, mercury := c.MustFluid("water"), c.MustFluid("CO2"), c.MustFluid("mercury")
	b := g.Index(0, 0, 0)

	// GIVEN a full block of 60 water and 40 CO2
	g.Fill(b, 60, water, NoGroup)
	g.Fill(b, 40, co2, NoGroup)

	// THEN water could still push the CO2 aside, CO2 could not enter at all,
	// and mercury could take the whole block
	assert.Equal(t, uint32(40), g.VolumeCanEnter(b, water))
	assert.True(t, g.CanEnterCurrently(b, water))
	assert.Zero(t, g.VolumeCanEnter(b, co2))
	assert.False(t, g.CanEnterCurrently(b, co2))
	assert.Equal(t, MaxBlockVolume, g.VolumeCanEnter(b, mercury))
	assert.Equal(t, water, g.FluidWithMostVolume(b))
}

func TestLedger_SortedByDensity(t *testing.T) {
	g := NewGrid(1, 1, 1, DefaultCatalog())
	c := g.Catalog()
	b := g.Index(0, 0, 0)
	g.Fill(b, 10, c.MustFluid("mercury"), NoGroup)
	g.Fill(b, 10, c.MustFluid("CO2"), NoGroup)
	g.Fill(b, 10, c.MustFluid("water"), NoGroup)

	var names []string
	for _, e := range g.sortedByDensity(b) {
		names = append(names, c.Fluid(e.Type).Name)
	}
	assert.Equal(t, []string{"CO2", "water", "mercury"}, names)
}

func TestFillQueue_BandsByLevelThenCapacity(t *testing.T) {
	g := NewGrid(3, 1, 2, DefaultCatalog())
	water := g.Catalog().MustFluid("water")
	low, partial, high := g.Index(1, 0, 0), g.Index(0, 0, 0), g.Index(1, 0, 1)
	g.Fill(partial, 40, water, 0)

	q := NewFillQueue(g, water)
	q.AddBlock(high)
	q.AddBlock(partial)
	q.AddBlock(low)

	// WHEN the queue is prepared
	q.InitializeForStep()

	// THEN the emptiest low block comes first and forms its own band
	require.Equal(t, 3, q.Len())
	assert.Equal(t, []BlockIndex{low, partial, high}, blocksOf(q.Entries()))
	assert.Equal(t, uint32(1), q.GroupSize())
	assert.Equal(t, uint32(100), q.GroupCapacityPerBlock())
	step, ok := q.GroupFlowTillNextStepPerBlock()
	require.True(t, ok)
	assert.Equal(t, uint32(40), step)

	// WHEN the band is raised to the level of the partial block
	q.RecordDelta(40, 100, 40)

	// THEN both z = 0 blocks share the band and there is no step to z = 1
	assert.Equal(t, uint32(2), q.GroupSize())
	assert.Equal(t, uint32(60), q.GroupCapacityPerBlock())
	_, ok = q.GroupFlowTillNextStepPerBlock()
	assert.False(t, ok)
	assert.Equal(t, uint32(40), q.GroupLevel())

	// WHEN the band is saturated
	q.RecordDelta(60, 60, unbounded)

	// THEN both blocks become full and the next band is the upper block
	assert.True(t, q.FutureFull().Contains(low))
	assert.True(t, q.FutureFull().Contains(partial))
	assert.True(t, q.FutureNoLongerEmpty().Contains(low))
	assert.False(t, q.FutureNoLongerEmpty().Contains(partial))
	assert.Equal(t, uint32(1), q.GroupSize())

	q.ApplyDelta(0)
	assert.Equal(t, MaxBlockVolume, g.FluidVolume(low, water))
	assert.Equal(t, MaxBlockVolume, g.FluidVolume(partial, water))
	assert.Zero(t, g.FluidVolume(high, water))
}

func TestFillQueue_FullBlocksNeverFormABand(t *testing.T) {
	g := NewGrid(1, 1, 1, DefaultCatalog())
	water := g.Catalog().MustFluid("water")
	b := g.Index(0, 0, 0)
	g.Fill(b, MaxBlockVolume, water, 0)

	q := NewFillQueue(g, water)
	q.AddBlock(b)
	q.InitializeForStep()

	assert.Zero(t, q.GroupSize())
	assert.Panics(t, func() { q.RecordDelta(1, 1, 1) })
}

func TestDrainQueue_HighestAndFullestFirst(t *testing.T) {
	g := NewGrid(2, 1, 2, DefaultCatalog())
	water := g.Catalog().MustFluid("water")
	floorA, floorB, top := g.Index(0, 0, 0), g.Index(1, 0, 0), g.Index(0, 0, 1)
	g.Fill(floorA, 100, water, 0)
	g.Fill(floorB, 70, water, 0)
	g.Fill(top, 20, water, 0)

	q := NewDrainQueue(g, water)
	q.AddBlock(floorA)
	q.AddBlock(floorB)
	q.AddBlock(top)
	q.InitializeForStep()

	// The upper block drains first even though it holds the least.
	assert.Equal(t, []BlockIndex{top, floorA, floorB}, blocksOf(q.Entries()))
	assert.Equal(t, uint32(20), q.GroupLevel())

	// WHEN the upper block is emptied
	q.RecordDelta(20, 20, unbounded)

	// THEN the full floor block is next, alone in its band
	assert.True(t, q.FutureEmpty().Contains(top))
	assert.Equal(t, uint32(1), q.GroupSize())
	step, ok := q.GroupFlowTillNextStepPerBlock()
	require.True(t, ok)
	assert.Equal(t, uint32(30), step)

	q.RecordDelta(30, 100, 30)
	assert.True(t, q.FutureNoLongerFull().Contains(floorA))
	assert.Equal(t, uint32(2), q.GroupSize())

	touched := q.ApplyDelta()
	assert.False(t, g.FluidContains(top, water))
	assert.Equal(t, uint32(70), g.FluidVolume(floorA, water))
	assert.True(t, touched.Contains(top))
	assert.True(t, touched.Contains(floorB), "neighbours of drained blocks are touched")
}

func TestDrainQueue_InitializeRejectsEmptyMember(t *testing.T) {
	g := NewGrid(1, 1, 1, DefaultCatalog())
	q := NewDrainQueue(g, g.Catalog().MustFluid("water"))
	q.AddBlock(g.Index(0, 0, 0))
	assert.Panics(t, q.InitializeForStep)
}

func TestFlowQueue_MembershipMatchesEntries(t *testing.T) {
	g := NewGrid(3, 1, 1, DefaultCatalog())
	q := NewFillQueue(g, g.Catalog().MustFluid("water"))
	a, b, c := g.Index(0, 0, 0), g.Index(1, 0, 0), g.Index(2, 0, 0)

	q.MaybeAddBlocks(NewBlockSet(a, b, c))
	q.MaybeAddBlock(b)
	assert.Equal(t, 3, q.Len())
	assert.Panics(t, func() { q.AddBlock(a) })

	q.RemoveBlocks(NewBlockSet(a, c))
	q.RemoveBlock(c)
	assert.Equal(t, []BlockIndex{b}, blocksOf(q.Entries()))
	assert.Equal(t, []BlockIndex{b}, q.Set().Sorted())
}

func blocksOf(entries []FutureFlowBlock) []BlockIndex {
	out := make([]BlockIndex, len(entries))
	for i, f := range entries {
		out[i] = f.Block
	}
	return out
}
