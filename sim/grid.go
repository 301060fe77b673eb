// Implements the Grid, the arena that owns every block of a simulated area.
// Blocks are addressed by BlockIndex handles; nothing outside the grid holds
// pointers into its storage.

package sim

import (
	"errors"
	"fmt"
)

// BlockIndex is a stable handle to one cell of the grid.
type BlockIndex int32

// NoBlock is returned by geometry queries that step outside the grid.
const NoBlock BlockIndex = -1

var ErrOutOfBounds = errors.New("coordinates out of bounds")

// Grid is a dense 3D array of blocks. z grows upward; z == 0 is the bottom layer.
type Grid struct {
	SizeX, SizeY, SizeZ int

	catalog *Catalog

	solid      []MaterialTypeID
	fluids     [][]FluidData
	totalFluid []uint32

	mist                []FluidTypeID
	mistInverseDistance []int32
	mistSource          []FluidTypeID
}

// NewGrid creates an empty grid (no solids, no fluids) of the given size.
func NewGrid(sizeX, sizeY, sizeZ int, catalog *Catalog) *Grid {
	if sizeX <= 0 || sizeY <= 0 || sizeZ <= 0 {
		panic(fmt.Sprintf("NewGrid: dimensions must be > 0, got %dx%dx%d", sizeX, sizeY, sizeZ))
	}
	if catalog == nil {
		panic("NewGrid: catalog must not be nil")
	}
	n := sizeX * sizeY * sizeZ
	g := &Grid{
		SizeX:               sizeX,
		SizeY:               sizeY,
		SizeZ:               sizeZ,
		catalog:             catalog,
		solid:               make([]MaterialTypeID, n),
		fluids:              make([][]FluidData, n),
		totalFluid:          make([]uint32, n),
		mist:                make([]FluidTypeID, n),
		mistInverseDistance: make([]int32, n),
		mistSource:          make([]FluidTypeID, n),
	}
	for i := 0; i < n; i++ {
		g.solid[i] = NoMaterial
		g.mist[i] = NoFluid
		g.mistSource[i] = NoFluid
	}
	return g
}

// Catalog returns the catalog the grid was built with.
func (g *Grid) Catalog() *Catalog {
	return g.catalog
}

// Len returns the number of blocks.
func (g *Grid) Len() int {
	return len(g.solid)
}

// InBounds reports whether the coordinates name a block of this grid.
func (g *Grid) InBounds(x, y, z int) bool {
	return x >= 0 && y >= 0 && z >= 0 && x < g.SizeX && y < g.SizeY && z < g.SizeZ
}

// Index returns the handle for (x, y, z), or NoBlock when out of bounds.
func (g *Grid) Index(x, y, z int) BlockIndex {
	if !g.InBounds(x, y, z) {
		return NoBlock
	}
	return BlockIndex(x + y*g.SizeX + z*g.SizeX*g.SizeY)
}

// Lookup is Index with an error for out-of-bounds coordinates.
func (g *Grid) Lookup(x, y, z int) (BlockIndex, error) {
	b := g.Index(x, y, z)
	if b == NoBlock {
		return NoBlock, fmt.Errorf("%w: (%d, %d, %d) in %dx%dx%d grid", ErrOutOfBounds, x, y, z, g.SizeX, g.SizeY, g.SizeZ)
	}
	return b, nil
}

// Coordinates is the inverse of Index.
func (g *Grid) Coordinates(b BlockIndex) (x, y, z int) {
	i := int(b)
	layer := g.SizeX * g.SizeY
	z = i / layer
	i -= z * layer
	y = i / g.SizeX
	x = i - y*g.SizeX
	return x, y, z
}

// Z returns the height of b.
func (g *Grid) Z(b BlockIndex) int {
	return int(b) / (g.SizeX * g.SizeY)
}

// Below returns the block directly under b, or NoBlock on the bottom layer.
func (g *Grid) Below(b BlockIndex) BlockIndex {
	if g.Z(b) == 0 {
		return NoBlock
	}
	return b - BlockIndex(g.SizeX*g.SizeY)
}

// Above returns the block directly over b, or NoBlock on the top layer.
func (g *Grid) Above(b BlockIndex) BlockIndex {
	if g.Z(b) == g.SizeZ-1 {
		return NoBlock
	}
	return b + BlockIndex(g.SizeX*g.SizeY)
}

// Adjacent returns the up to six face neighbours of b, below first and above second.
func (g *Grid) Adjacent(b BlockIndex) []BlockIndex {
	x, y, z := g.Coordinates(b)
	out := make([]BlockIndex, 0, 6)
	for _, o := range [...][3]int{{0, 0, -1}, {0, 0, 1}, {-1, 0, 0}, {1, 0, 0}, {0, -1, 0}, {0, 1, 0}} {
		if n := g.Index(x+o[0], y+o[1], z+o[2]); n != NoBlock {
			out = append(out, n)
		}
	}
	return out
}

// AdjacentSameZ returns the up to four horizontal neighbours of b.
func (g *Grid) AdjacentSameZ(b BlockIndex) []BlockIndex {
	x, y, z := g.Coordinates(b)
	out := make([]BlockIndex, 0, 4)
	for _, o := range [...][2]int{{-1, 0}, {1, 0}, {0, -1}, {0, 1}} {
		if n := g.Index(x+o[0], y+o[1], z); n != NoBlock {
			out = append(out, n)
		}
	}
	return out
}

// IsAdjacentToAny reports whether any face neighbour of b is in set.
func (g *Grid) IsAdjacentToAny(b BlockIndex, set BlockSet) bool {
	for _, a := range g.Adjacent(b) {
		if set.Contains(a) {
			return true
		}
	}
	return false
}

// IsEdge reports whether b lies on any face of the grid, bottom and top included.
func (g *Grid) IsEdge(b BlockIndex) bool {
	x, y, z := g.Coordinates(b)
	return x == 0 || x == g.SizeX-1 ||
		y == 0 || y == g.SizeY-1 ||
		z == 0 || z == g.SizeZ-1
}

// IsSolid reports whether b holds a solid material.
func (g *Grid) IsSolid(b BlockIndex) bool {
	return g.solid[b] != NoMaterial
}

// Solid returns the material of b, NoMaterial if none.
func (g *Grid) Solid(b BlockIndex) MaterialTypeID {
	return g.solid[b]
}

// IsSupport reports whether something can rest on b.
func (g *Grid) IsSupport(b BlockIndex) bool {
	return g.IsSolid(b)
}

// Mass returns the mass of the solid in b, 0 when b is not solid.
func (g *Grid) Mass(b BlockIndex) uint32 {
	if !g.IsSolid(b) {
		return 0
	}
	return g.catalog.Material(g.solid[b]).Density * MaxBlockVolume
}

// IsExposedToSky reports whether no solid block lies anywhere above b.
func (g *Grid) IsExposedToSky(b BlockIndex) bool {
	for a := g.Above(b); a != NoBlock; a = g.Above(a) {
		if g.IsSolid(a) {
			return false
		}
	}
	return true
}

// setSolid writes the material without touching fluids. Callers that need
// fluid displacement go through Simulation.SetSolid.
func (g *Grid) setSolid(b BlockIndex, m MaterialTypeID) {
	g.solid[b] = m
}

// MoveContentsTo moves the solid content of from into to and leaves from empty.
func (g *Grid) MoveContentsTo(from, to BlockIndex) {
	if from == to {
		return
	}
	g.solid[to] = g.solid[from]
	g.solid[from] = NoMaterial
}

// PlaceSolid sets b to material m without notifying the engines.
// Intended for building areas before any fluid is added.
func (g *Grid) PlaceSolid(b BlockIndex, m MaterialTypeID) {
	g.solid[b] = m
}

// SetSolidLayers fills every block with z in [zFrom, zTo] with material m.
// Intended for building areas before any fluid is added.
func (g *Grid) SetSolidLayers(zFrom, zTo int, m MaterialTypeID) {
	for z := zFrom; z <= zTo; z++ {
		for y := 0; y < g.SizeY; y++ {
			for x := 0; x < g.SizeX; x++ {
				g.solid[g.Index(x, y, z)] = m
			}
		}
	}
}

// Mist returns the mist kind present in b, NoFluid if none.
func (g *Grid) Mist(b BlockIndex) FluidTypeID {
	return g.mist[b]
}

// MistInverseDistance returns how many more blocks the mist in b may spread.
func (g *Grid) MistInverseDistance(b BlockIndex) int32 {
	return g.mistInverseDistance[b]
}

// MistSource returns the fluid kind b emits mist for, NoFluid if none.
func (g *Grid) MistSource(b BlockIndex) FluidTypeID {
	return g.mistSource[b]
}

func (g *Grid) setMist(b BlockIndex, kind FluidTypeID, inverseDistance int32) {
	g.mist[b] = kind
	g.mistInverseDistance[b] = inverseDistance
}

func (g *Grid) clearMist(b BlockIndex) {
	g.mist[b] = NoFluid
	g.mistInverseDistance[b] = 0
}

func (g *Grid) setMistSource(b BlockIndex, kind FluidTypeID) {
	g.mistSource[b] = kind
}
