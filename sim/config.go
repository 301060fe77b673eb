package sim

import (
	"bytes"
	"errors"
	"fmt"
	"os"

	"gopkg.in/yaml.v3"
)

// MaxBlockVolume is the fluid capacity of a single block.
const MaxBlockVolume uint32 = 100

// FluidTypeID indexes Catalog.Fluids. NoFluid marks an absent fluid (e.g. no mist).
type FluidTypeID int16

// MaterialTypeID indexes Catalog.Materials. NoMaterial marks a non-solid block.
type MaterialTypeID int16

const (
	NoFluid    FluidTypeID    = -1
	NoMaterial MaterialTypeID = -1
)

var (
	ErrUnknownFluid    = errors.New("unknown fluid type")
	ErrUnknownMaterial = errors.New("unknown material type")
)

// FluidType describes one kind of fluid.
type FluidType struct {
	Name          string `yaml:"name"`
	Viscosity     uint32 `yaml:"viscosity"`       // per-tick fill budget of a group (must be > 0)
	Density       uint32 `yaml:"density"`         // denser fluids sink below lighter ones
	MistDuration  int64  `yaml:"mist_duration"`   // ticks between mist checks; 0 = never mists
	MaxMistSpread int32  `yaml:"max_mist_spread"` // default inverse distance of spawned mist
}

// MaterialType describes a solid material.
type MaterialType struct {
	Name    string `yaml:"name"`
	Density uint32 `yaml:"density"` // mass of a solid block is Density * MaxBlockVolume
}

// Catalog holds every fluid and material the engine knows about.
// All top-level sections must be listed to satisfy KnownFields(true) strict parsing.
type Catalog struct {
	Fluids    []FluidType    `yaml:"fluids"`
	Materials []MaterialType `yaml:"materials"`
}

// EngineConfig groups engine tuning parameters.
type EngineConfig struct {
	Workers     int   `yaml:"workers"`      // goroutines used by the fluid read phase (0 = one per CPU)
	FluidPiston bool  `yaml:"fluid_piston"` // push displaced fluid upward instead of destroying it
	Horizon     int64 `yaml:"horizon"`      // last tick executed by Run
}

// DefaultCatalog returns the built-in fluids and materials.
func DefaultCatalog() *Catalog {
	return &Catalog{
		Fluids: []FluidType{
			{Name: "water", Viscosity: 100, Density: 100, MistDuration: 10, MaxMistSpread: 3},
			{Name: "CO2", Viscosity: 100, Density: 10},
			{Name: "lava", Viscosity: 100, Density: 200, MistDuration: 30, MaxMistSpread: 1},
			{Name: "mercury", Viscosity: 100, Density: 1300},
		},
		Materials: []MaterialType{
			{Name: "dirt", Density: 70},
			{Name: "stone", Density: 100},
			{Name: "marble", Density: 110},
		},
	}
}

// DefaultEngineConfig returns the engine defaults used by the CLI.
func DefaultEngineConfig() EngineConfig {
	return EngineConfig{Workers: 0, FluidPiston: false, Horizon: 100}
}

// LoadCatalog reads a YAML catalog file.
// Uses strict parsing: unrecognized keys (typos) are rejected.
func LoadCatalog(path string) (*Catalog, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading catalog: %w", err)
	}
	return ParseCatalog(data)
}

// ParseCatalog decodes and validates a YAML catalog.
func ParseCatalog(data []byte) (*Catalog, error) {
	var c Catalog
	decoder := yaml.NewDecoder(bytes.NewReader(data))
	decoder.KnownFields(true)
	if err := decoder.Decode(&c); err != nil {
		return nil, fmt.Errorf("parsing catalog: %w", err)
	}
	if err := c.Validate(); err != nil {
		return nil, err
	}
	return &c, nil
}

// Validate checks that names are unique and every fluid can flow.
func (c *Catalog) Validate() error {
	if len(c.Fluids) == 0 {
		return fmt.Errorf("catalog must define at least one fluid")
	}
	seen := make(map[string]bool)
	for i, f := range c.Fluids {
		if f.Name == "" {
			return fmt.Errorf("fluids[%d]: name is required", i)
		}
		if seen[f.Name] {
			return fmt.Errorf("fluids[%d]: duplicate fluid %q", i, f.Name)
		}
		seen[f.Name] = true
		if f.Viscosity == 0 {
			return fmt.Errorf("fluid %q: viscosity must be > 0", f.Name)
		}
		if f.Density == 0 {
			return fmt.Errorf("fluid %q: density must be > 0", f.Name)
		}
		if f.MistDuration < 0 || f.MaxMistSpread < 0 {
			return fmt.Errorf("fluid %q: mist settings must be >= 0", f.Name)
		}
	}
	seen = make(map[string]bool)
	for i, m := range c.Materials {
		if m.Name == "" {
			return fmt.Errorf("materials[%d]: name is required", i)
		}
		if seen[m.Name] {
			return fmt.Errorf("materials[%d]: duplicate material %q", i, m.Name)
		}
		seen[m.Name] = true
	}
	return nil
}

// Fluid returns the fluid type for id. Panics on an id the catalog never issued.
func (c *Catalog) Fluid(id FluidTypeID) *FluidType {
	if id < 0 || int(id) >= len(c.Fluids) {
		panic(fmt.Sprintf("Fluid: id %d out of range", id))
	}
	return &c.Fluids[id]
}

// Material returns the material type for id.
func (c *Catalog) Material(id MaterialTypeID) *MaterialType {
	if id < 0 || int(id) >= len(c.Materials) {
		panic(fmt.Sprintf("Material: id %d out of range", id))
	}
	return &c.Materials[id]
}

// HasFluid reports whether id names a fluid of the catalog.
func (c *Catalog) HasFluid(id FluidTypeID) bool {
	return id >= 0 && int(id) < len(c.Fluids)
}

// HasMaterial reports whether id names a material of the catalog.
func (c *Catalog) HasMaterial(id MaterialTypeID) bool {
	return id >= 0 && int(id) < len(c.Materials)
}

// FluidByName looks up a fluid id by name.
func (c *Catalog) FluidByName(name string) (FluidTypeID, error) {
	for i := range c.Fluids {
		if c.Fluids[i].Name == name {
			return FluidTypeID(i), nil
		}
	}
	return NoFluid, fmt.Errorf("%w: %q", ErrUnknownFluid, name)
}

// MaterialByName looks up a material id by name.
func (c *Catalog) MaterialByName(name string) (MaterialTypeID, error) {
	for i := range c.Materials {
		if c.Materials[i].Name == name {
			return MaterialTypeID(i), nil
		}
	}
	return NoMaterial, fmt.Errorf("%w: %q", ErrUnknownMaterial, name)
}

// MustFluid is FluidByName for names known to exist, such as those of DefaultCatalog.
func (c *Catalog) MustFluid(name string) FluidTypeID {
	id, err := c.FluidByName(name)
	if err != nil {
		panic(err)
	}
	return id
}

// MustMaterial is MaterialByName for names known to exist.
func (c *Catalog) MustMaterial(name string) MaterialTypeID {
	id, err := c.MaterialByName(name)
	if err != nil {
		panic(err)
	}
	return id
}

// Validate checks engine parameters.
func (e EngineConfig) Validate() error {
	if e.Workers < 0 {
		return fmt.Errorf("workers must be >= 0, got %d", e.Workers)
	}
	if e.Horizon < 0 {
		return fmt.Errorf("horizon must be >= 0, got %d", e.Horizon)
	}
	return nil
}
