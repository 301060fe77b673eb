// Implements the cave-in engine: finding solid chunks that lost their anchor and
// letting them fall.

package sim

import (
	"cmp"
	"slices"

	"github.com/sirupsen/logrus"
)

// Terrain moves solids on behalf of the cave-in engine. The Simulation's
// implementation also displaces fluid from the landing block.
type Terrain interface {
	MoveContentsTo(from, to BlockIndex)
}

var _ Terrain = (*Grid)(nil)

// FallingChunk is one unanchored chunk found by Read.
type FallingChunk struct {
	Blocks   []BlockIndex // ascending by z
	Distance int
	Energy   uint64 // summed mass times Distance
	// Member blocks at the minimal fall distance and the blocks they land on.
	// Recorded only; nothing consumes impact energy.
	AbsorbingImpact []BlockIndex
}

type caveInChunk struct {
	members BlockSet
}

// CaveIn holds the blocks to check and the falls found by the last Read.
type CaveIn struct {
	grid    *Grid
	terrain Terrain

	check    BlockSet
	fallData []FallingChunk
}

// NewCaveIn creates the engine for grid. terrain receives every move; nil moves
// solids directly in grid.
func NewCaveIn(grid *Grid, terrain Terrain) *CaveIn {
	if terrain == nil {
		terrain = grid
	}
	return &CaveIn{grid: grid, terrain: terrain}
}

// RegisterPotentialCaveIn queues b for the next Read.
func (c *CaveIn) RegisterPotentialCaveIn(b BlockIndex) {
	c.check.Add(b)
}

// Pending returns the number of blocks queued for checking.
func (c *CaveIn) Pending() int {
	return c.check.Len()
}

// FallData returns the chunks found by the last Read.
func (c *CaveIn) FallData() []FallingChunk {
	return c.fallData
}

// Step runs Read then Write and returns the falls applied.
func (c *CaveIn) Step() []FallingChunk {
	c.Read()
	falls := c.fallData
	c.Write()
	return falls
}

// Read groups the queued blocks into connected chunks of solids and records every
// chunk which reaches neither the edge of the grid nor an anchored chunk.
//
// The search is breadth first. Until some chunk is anchored, the block below is
// explored before anything else so that a path to the ground is found quickly;
// afterwards chunks grow evenly until they touch each other or an edge.
func (c *CaveIn) Read() {
	g := c.grid
	var blockQueue []BlockIndex
	checklist := BlockSet{}
	for _, b := range c.check.Sorted() {
		// A block that is no longer solid has nothing to hold up.
		if !g.IsSupport(b) {
			continue
		}
		blockQueue = append(blockQueue, b)
		checklist.Add(b)
	}
	c.check.Clear()
	c.fallData = nil

	var chunks []*caveInChunk
	chunksByBlock := make(map[BlockIndex]*caveInChunk)
	anchored := make(map[*caveInChunk]bool)
	var toAdd []BlockIndex

	for len(blockQueue) != 0 && !checklist.Empty() {
		b := blockQueue[0]
		blockQueue = blockQueue[1:]
		toAdd = toAdd[:0]
		if _, ok := chunksByBlock[b]; ok {
			continue
		}
		chunkFound := false
		prioritizeAdjacent := false
		below := g.Below(b)
		for _, a := range g.Adjacent(b) {
			if !g.IsSupport(a) {
				// Nothing directly below: look sideways first to get around the void.
				if a == below {
					prioritizeAdjacent = true
				}
				continue
			}
			if adjacentChunk, ok := chunksByBlock[a]; ok {
				if own, ok := chunksByBlock[b]; ok && own != adjacentChunk {
					for _, m := range own.members.Sorted() {
						chunksByBlock[m] = adjacentChunk
						adjacentChunk.members.Add(m)
					}
					if anchored[own] || anchored[adjacentChunk] {
						anchored[adjacentChunk] = true
						for _, m := range own.members.Sorted() {
							checklist.Remove(m)
						}
					}
					delete(anchored, own)
					chunks = slices.DeleteFunc(chunks, func(ch *caveInChunk) bool { return ch == own })
				}
				adjacentChunk.members.Add(b)
				chunksByBlock[b] = adjacentChunk
				chunkFound = true
				continue
			}
			if len(anchored) == 0 && (prioritizeAdjacent || a == below) {
				blockQueue = slices.Insert(blockQueue, 0, a)
			} else {
				toAdd = append(toAdd, a)
			}
		}
		if !chunkFound {
			ch := &caveInChunk{members: NewBlockSet(b)}
			chunks = append(chunks, ch)
			chunksByBlock[b] = ch
		}
		own := chunksByBlock[b]
		switch {
		case g.IsEdge(b):
			anchored[own] = true
			for _, m := range own.members.Sorted() {
				checklist.Remove(m)
			}
		case !anchored[own]:
			// Anchored chunks stop growing: whatever touches them is anchored too.
			for i := len(toAdd) - 1; i >= 0; i-- {
				blockQueue = append(blockQueue, toAdd[i])
			}
		}
	}

	for _, ch := range chunks {
		if anchored[ch] {
			continue
		}
		if fall, ok := c.measureFall(ch); ok {
			c.fallData = append(c.fallData, fall)
		}
	}
	if len(c.fallData) != 0 {
		logrus.Debugf("cave-in read: %d chunks, %d falling", len(chunks), len(c.fallData))
	}
}

// measureFall finds the smallest distance any bottom block of ch can drop before
// reaching support or the floor of the grid. Internal voids are ignored.
func (c *CaveIn) measureFall(ch *caveInChunk) (FallingChunk, bool) {
	g := c.grid
	smallest := -1
	var absorbing []BlockIndex
	for _, b := range ch.members.Sorted() {
		distance := 0
		below := g.Below(b)
		for below != NoBlock && !g.IsSupport(below) {
			distance++
			below = g.Below(below)
		}
		if distance == 0 || (below != NoBlock && ch.members.Contains(below)) {
			continue
		}
		switch {
		case smallest < 0 || distance < smallest:
			smallest = distance
			absorbing = absorbing[:0]
			fallthrough
		case distance == smallest:
			if below != NoBlock {
				absorbing = append(absorbing, below)
			}
			absorbing = append(absorbing, b)
		}
	}
	// Resting on something that is not part of this chunk; the cave-in of that
	// support will register a new check.
	if smallest < 0 {
		return FallingChunk{}, false
	}
	var mass uint64
	for _, b := range ch.members.Sorted() {
		mass += uint64(g.Mass(b))
	}
	blocks := ch.members.Sorted()
	slices.SortStableFunc(blocks, func(x, y BlockIndex) int { return cmp.Compare(g.Z(x), g.Z(y)) })
	return FallingChunk{
		Blocks:          blocks,
		Distance:        smallest,
		Energy:          mass * uint64(smallest),
		AbsorbingImpact: absorbing,
	}, true
}

// Write moves every falling chunk down by its distance, lowest blocks first, and
// queues the last landing block of each chunk for another check.
func (c *CaveIn) Write() {
	for _, fall := range c.fallData {
		landing := NoBlock
		for _, b := range fall.Blocks {
			landing = b
			for range fall.Distance {
				landing = c.grid.Below(landing)
			}
			c.terrain.MoveContentsTo(b, landing)
		}
		// Whatever it landed on may not be anchored either.
		c.check.Add(landing)
		logrus.Debugf("cave-in: %d blocks fell %d, energy %d", len(fall.Blocks), fall.Distance, fall.Energy)
	}
	c.fallData = nil
}
