// Package scenario loads yaml scenario files and builds a ready-to-run
// sim.Simulation from them: the grid size, solid layers, a perlin height map,
// fluid sources, scheduled solid changes and mist sources.
package scenario

import (
	"bytes"
	"errors"
	"fmt"
	"os"

	"gopkg.in/yaml.v3"

	"github.com/strata-sim/strata-sim/sim"
)

// Point is a block position written as [x, y, z].
type Point [3]int

// Spec is the top-level scenario configuration.
// Loaded from YAML via LoadSpec(path).
type Spec struct {
	Version string `yaml:"version"`
	Name    string `yaml:"name"`
	Seed    int64  `yaml:"seed"`
	Size    Size   `yaml:"size"`
	// Catalog is a path to a catalog yaml; empty uses sim.DefaultCatalog.
	Catalog string           `yaml:"catalog,omitempty"`
	Engine  sim.EngineConfig `yaml:"engine"`

	Layers        []LayerSpec        `yaml:"layers,omitempty"`
	Terrain       *TerrainSpec       `yaml:"terrain,omitempty"`
	Solids        []SolidSpec        `yaml:"solids,omitempty"`
	Fluids        []FluidSpec        `yaml:"fluids,omitempty"`
	RandomSources *RandomSourcesSpec `yaml:"random_sources,omitempty"`
	SolidChanges  []SolidChangeSpec  `yaml:"solid_changes,omitempty"`
	MistSources   []MistSourceSpec   `yaml:"mist_sources,omitempty"`
}

// Size is the grid extent in blocks.
type Size struct {
	X int `yaml:"x"`
	Y int `yaml:"y"`
	Z int `yaml:"z"`
}

// LayerSpec fills every block with From <= z <= To. With Mix set, each block
// draws its material from Mix instead of using Material.
type LayerSpec struct {
	Material string   `yaml:"material,omitempty"`
	Mix      []string `yaml:"mix,omitempty"`
	From     int      `yaml:"from"`
	To       int      `yaml:"to"`
}

// TerrainSpec raises a perlin height map of Material above Base. Each column
// (x, y) is solid up to Base + noise(x/Scale, y/Scale) * Amplitude.
type TerrainSpec struct {
	Material  string  `yaml:"material"`
	Base      int     `yaml:"base"`
	Amplitude int     `yaml:"amplitude"`
	Scale     float64 `yaml:"scale"`
	Alpha     float64 `yaml:"alpha,omitempty"`   // smoothing; 0 = 2
	Beta      float64 `yaml:"beta,omitempty"`    // frequency; 0 = 2
	Octaves   int32   `yaml:"octaves,omitempty"` // 0 = 3
}

// SolidSpec places one solid block.
type SolidSpec struct {
	At       Point  `yaml:"at"`
	Material string `yaml:"material"`
}

// FluidSpec adds Volume of Fluid at tick Start, then every Period ticks up to
// Until (the horizon when 0) if Period > 0.
type FluidSpec struct {
	At     Point  `yaml:"at"`
	Fluid  string `yaml:"fluid"`
	Volume uint32 `yaml:"volume"`
	Start  int64  `yaml:"start,omitempty"`
	Period int64  `yaml:"period,omitempty"`
	Until  int64  `yaml:"until,omitempty"`
}

// RandomSourcesSpec places Count periodic sources at random columns, in the
// topmost layer.
type RandomSourcesSpec struct {
	Count  int    `yaml:"count"`
	Fluid  string `yaml:"fluid"`
	Volume uint32 `yaml:"volume"`
	Period int64  `yaml:"period"`
	Until  int64  `yaml:"until,omitempty"`
}

// SolidChangeSpec sets or clears (empty Material) a block at Tick.
type SolidChangeSpec struct {
	Tick     int64  `yaml:"tick"`
	At       Point  `yaml:"at"`
	Material string `yaml:"material,omitempty"`
}

// MistSourceSpec makes a block emit mist of Fluid.
type MistSourceSpec struct {
	At    Point  `yaml:"at"`
	Fluid string `yaml:"fluid"`
}

var ErrInvalidSpec = errors.New("invalid scenario")

// LoadSpec reads and parses a scenario file.
func LoadSpec(path string) (*Spec, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading scenario: %w", err)
	}
	return ParseSpec(data)
}

// ParseSpec parses scenario yaml with strict field checking and validates it.
func ParseSpec(data []byte) (*Spec, error) {
	var spec Spec
	decoder := yaml.NewDecoder(bytes.NewReader(data))
	decoder.KnownFields(true)
	if err := decoder.Decode(&spec); err != nil {
		return nil, fmt.Errorf("parsing scenario YAML: %w", err)
	}
	if err := spec.Validate(); err != nil {
		return nil, err
	}
	return &spec, nil
}

// Validate checks everything that does not need the catalog.
func (s *Spec) Validate() error {
	if s.Version != "" && s.Version != "1" {
		return fmt.Errorf("%w: unsupported version %q", ErrInvalidSpec, s.Version)
	}
	if s.Size.X <= 0 || s.Size.Y <= 0 || s.Size.Z <= 0 {
		return fmt.Errorf("%w: size must be positive, got %dx%dx%d", ErrInvalidSpec, s.Size.X, s.Size.Y, s.Size.Z)
	}
	if err := s.Engine.Validate(); err != nil {
		return fmt.Errorf("%w: engine: %v", ErrInvalidSpec, err)
	}
	for i, l := range s.Layers {
		if (l.Material == "") == (len(l.Mix) == 0) {
			return fmt.Errorf("%w: layer %d needs exactly one of material or mix", ErrInvalidSpec, i)
		}
		if l.From < 0 || l.To >= s.Size.Z || l.From > l.To {
			return fmt.Errorf("%w: layer %d spans z %d..%d outside 0..%d", ErrInvalidSpec, i, l.From, l.To, s.Size.Z-1)
		}
	}
	if t := s.Terrain; t != nil {
		if t.Material == "" {
			return fmt.Errorf("%w: terrain needs a material", ErrInvalidSpec)
		}
		if t.Base < 0 || t.Amplitude < 0 || t.Base+t.Amplitude > s.Size.Z {
			return fmt.Errorf("%w: terrain base %d + amplitude %d exceeds height %d", ErrInvalidSpec, t.Base, t.Amplitude, s.Size.Z)
		}
		if t.Scale <= 0 {
			return fmt.Errorf("%w: terrain scale must be > 0", ErrInvalidSpec)
		}
	}
	for i, sol := range s.Solids {
		if err := s.checkPoint(sol.At); err != nil {
			return fmt.Errorf("%w: solid %d: %v", ErrInvalidSpec, i, err)
		}
	}
	for i, f := range s.Fluids {
		if err := s.checkPoint(f.At); err != nil {
			return fmt.Errorf("%w: fluid %d: %v", ErrInvalidSpec, i, err)
		}
		if f.Volume == 0 {
			return fmt.Errorf("%w: fluid %d has zero volume", ErrInvalidSpec, i)
		}
		if f.Start < 0 || f.Period < 0 {
			return fmt.Errorf("%w: fluid %d has negative start or period", ErrInvalidSpec, i)
		}
	}
	if r := s.RandomSources; r != nil {
		if r.Count < 0 || r.Volume == 0 || r.Period <= 0 {
			return fmt.Errorf("%w: random sources need count >= 0, volume > 0 and period > 0", ErrInvalidSpec)
		}
	}
	for i, c := range s.SolidChanges {
		if err := s.checkPoint(c.At); err != nil {
			return fmt.Errorf("%w: solid change %d: %v", ErrInvalidSpec, i, err)
		}
		if c.Tick < 0 {
			return fmt.Errorf("%w: solid change %d at negative tick", ErrInvalidSpec, i)
		}
	}
	for i, m := range s.MistSources {
		if err := s.checkPoint(m.At); err != nil {
			return fmt.Errorf("%w: mist source %d: %v", ErrInvalidSpec, i, err)
		}
	}
	return nil
}

func (s *Spec) checkPoint(p Point) error {
	if p[0] < 0 || p[0] >= s.Size.X || p[1] < 0 || p[1] >= s.Size.Y || p[2] < 0 || p[2] >= s.Size.Z {
		return fmt.Errorf("%v outside %dx%dx%d", p, s.Size.X, s.Size.Y, s.Size.Z)
	}
	return nil
}
