package scenario

import (
	"fmt"
	"math"

	"github.com/aquilax/go-perlin"
	"github.com/sirupsen/logrus"

	"github.com/strata-sim/strata-sim/sim"
)

// Build creates the grid described by s and a Simulation over it with every
// source and change scheduled. Nothing has stepped yet.
func (s *Spec) Build() (*sim.Simulation, error) {
	catalog := sim.DefaultCatalog()
	if s.Catalog != "" {
		loaded, err := sim.LoadCatalog(s.Catalog)
		if err != nil {
			return nil, err
		}
		catalog = loaded
	}
	rng := sim.NewScenarioRNG(s.Seed)
	grid := sim.NewGrid(s.Size.X, s.Size.Y, s.Size.Z, catalog)

	if err := s.buildLayers(grid, rng); err != nil {
		return nil, err
	}
	if err := s.buildTerrain(grid, rng); err != nil {
		return nil, err
	}
	for i, sol := range s.Solids {
		m, err := catalog.MaterialByName(sol.Material)
		if err != nil {
			return nil, fmt.Errorf("solid %d: %w", i, err)
		}
		grid.PlaceSolid(grid.Index(sol.At[0], sol.At[1], sol.At[2]), m)
	}

	simulation, err := sim.NewSimulation(grid, s.Engine)
	if err != nil {
		return nil, err
	}
	for i, f := range s.Fluids {
		kind, err := catalog.FluidByName(f.Fluid)
		if err != nil {
			return nil, fmt.Errorf("fluid %d: %w", i, err)
		}
		until := f.Until
		if until == 0 {
			until = s.Engine.Horizon
		}
		b := grid.Index(f.At[0], f.At[1], f.At[2])
		simulation.Schedule(sim.NewFluidSourceEvent(f.Start, b, kind, f.Volume, f.Period, until))
	}
	if err := s.buildRandomSources(simulation, rng); err != nil {
		return nil, err
	}
	for i, c := range s.SolidChanges {
		m := sim.NoMaterial
		if c.Material != "" {
			if m, err = catalog.MaterialByName(c.Material); err != nil {
				return nil, fmt.Errorf("solid change %d: %w", i, err)
			}
		}
		simulation.Schedule(sim.NewSolidChangeEvent(c.Tick, grid.Index(c.At[0], c.At[1], c.At[2]), m))
	}
	for i, ms := range s.MistSources {
		kind, err := catalog.FluidByName(ms.Fluid)
		if err != nil {
			return nil, fmt.Errorf("mist source %d: %w", i, err)
		}
		if err := simulation.SetMistSource(grid.Index(ms.At[0], ms.At[1], ms.At[2]), kind); err != nil {
			return nil, fmt.Errorf("mist source %d: %w", i, err)
		}
	}
	logrus.Infof("built scenario %q: %dx%dx%d, %d scheduled events", s.Name, s.Size.X, s.Size.Y, s.Size.Z, simulation.PendingEvents())
	return simulation, nil
}

func (s *Spec) buildLayers(grid *sim.Grid, rng *sim.ScenarioRNG) error {
	catalog := grid.Catalog()
	for i, l := range s.Layers {
		if l.Material != "" {
			m, err := catalog.MaterialByName(l.Material)
			if err != nil {
				return fmt.Errorf("layer %d: %w", i, err)
			}
			grid.SetSolidLayers(l.From, l.To, m)
			continue
		}
		mix := make([]sim.MaterialTypeID, len(l.Mix))
		for j, name := range l.Mix {
			m, err := catalog.MaterialByName(name)
			if err != nil {
				return fmt.Errorf("layer %d: %w", i, err)
			}
			mix[j] = m
		}
		r := rng.Stream(sim.LayerStream(i))
		for z := l.From; z <= l.To; z++ {
			for y := 0; y < s.Size.Y; y++ {
				for x := 0; x < s.Size.X; x++ {
					grid.PlaceSolid(grid.Index(x, y, z), mix[r.Intn(len(mix))])
				}
			}
		}
	}
	return nil
}

// HeightMap returns the terrain surface height of every column, indexed [x][y].
// Columns are solid for z < height.
func (t *TerrainSpec) HeightMap(sizeX, sizeY int, seed int64) [][]int {
	alpha, beta, octaves := t.Alpha, t.Beta, t.Octaves
	if alpha == 0 {
		alpha = 2
	}
	if beta == 0 {
		beta = 2
	}
	if octaves == 0 {
		octaves = 3
	}
	noise := perlin.NewPerlin(alpha, beta, octaves, seed)
	heights := make([][]int, sizeX)
	for x := range heights {
		heights[x] = make([]int, sizeY)
		for y := range heights[x] {
			// Noise2D is in [-1, 1]; map it to [0, 1].
			n := (noise.Noise2D(float64(x)/t.Scale, float64(y)/t.Scale) + 1) / 2
			n = math.Min(math.Max(n, 0), 1)
			heights[x][y] = t.Base + int(math.Round(n*float64(t.Amplitude)))
		}
	}
	return heights
}

func (s *Spec) buildTerrain(grid *sim.Grid, rng *sim.ScenarioRNG) error {
	if s.Terrain == nil {
		return nil
	}
	m, err := grid.Catalog().MaterialByName(s.Terrain.Material)
	if err != nil {
		return fmt.Errorf("terrain: %w", err)
	}
	heights := s.Terrain.HeightMap(s.Size.X, s.Size.Y, rng.Seed(sim.StreamTerrain))
	for x, column := range heights {
		for y, h := range column {
			for z := 0; z < h; z++ {
				grid.PlaceSolid(grid.Index(x, y, z), m)
			}
		}
	}
	return nil
}

// buildRandomSources picks columns with room in the top layer.
func (s *Spec) buildRandomSources(simulation *sim.Simulation, rng *sim.ScenarioRNG) error {
	r := s.RandomSources
	if r == nil || r.Count == 0 {
		return nil
	}
	kind, err := simulation.Catalog.FluidByName(r.Fluid)
	if err != nil {
		return fmt.Errorf("random sources: %w", err)
	}
	until := r.Until
	if until == 0 {
		until = s.Engine.Horizon
	}
	grid := simulation.Grid
	draw := rng.Stream(sim.StreamSources)
	top := s.Size.Z - 1
	placed := 0
	for attempt := 0; placed < r.Count && attempt < r.Count*16; attempt++ {
		b := grid.Index(draw.Intn(s.Size.X), draw.Intn(s.Size.Y), top)
		if grid.IsSolid(b) {
			continue
		}
		simulation.Schedule(sim.NewFluidSourceEvent(0, b, kind, r.Volume, r.Period, until))
		placed++
	}
	if placed < r.Count {
		logrus.Warnf("random sources: placed %d of %d, the top layer is mostly solid", placed, r.Count)
	}
	return nil
}
