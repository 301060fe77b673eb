package sim

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDefaultCatalog_IsValid(t *testing.T) {
	c := DefaultCatalog()
	require.NoError(t, c.Validate())

	water, err := c.FluidByName("water")
	require.NoError(t, err)
	assert.Equal(t, "water", c.Fluid(water).Name)
	assert.True(t, c.HasFluid(water))
	assert.False(t, c.HasFluid(NoFluid))
	assert.False(t, c.HasFluid(FluidTypeID(len(c.Fluids))))
	assert.True(t, c.HasMaterial(c.MustMaterial("marble")))
	assert.False(t, c.HasMaterial(NoMaterial))
}

func TestCatalog_UnknownNames(t *testing.T) {
	c := DefaultCatalog()
	_, err := c.FluidByName("honey")
	assert.ErrorIs(t, err, ErrUnknownFluid)
	_, err = c.MaterialByName("cheese")
	assert.ErrorIs(t, err, ErrUnknownMaterial)
	assert.Panics(t, func() { c.MustFluid("honey") })
	assert.Panics(t, func() { c.Fluid(NoFluid) })
	assert.Panics(t, func() { c.Material(MaterialTypeID(len(c.Materials))) })
}

func TestParseCatalog(t *testing.T) {
	data := []byte(`
fluids:
  - name: oil
    viscosity: 20
    density: 80
    mist_duration: 0
materials:
  - name: granite
    density: 120
`)
	c, err := ParseCatalog(data)
	require.NoError(t, err)
	require.Len(t, c.Fluids, 1)
	assert.Equal(t, FluidType{Name: "oil", Viscosity: 20, Density: 80}, c.Fluids[0])
	assert.Equal(t, uint32(120), c.Materials[0].Density)
}

func TestParseCatalog_Rejects(t *testing.T) {
	tests := []struct {
		name string
		yaml string
	}{
		{"unknown key", "fluids:\n  - name: oil\n    viscosity: 1\n    density: 1\n    colour: black\n"},
		{"no fluids", "materials:\n  - name: granite\n    density: 1\n"},
		{"duplicate fluid", "fluids:\n  - {name: a, viscosity: 1, density: 1}\n  - {name: a, viscosity: 1, density: 1}\n"},
		{"zero viscosity", "fluids:\n  - {name: a, viscosity: 0, density: 1}\n"},
		{"zero density", "fluids:\n  - {name: a, viscosity: 1, density: 0}\n"},
		{"negative mist", "fluids:\n  - {name: a, viscosity: 1, density: 1, mist_duration: -1}\n"},
		{"unnamed material", "fluids:\n  - {name: a, viscosity: 1, density: 1}\nmaterials:\n  - {density: 1}\n"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := ParseCatalog([]byte(tt.yaml))
			assert.Error(t, err)
		})
	}
}

func TestLoadCatalog(t *testing.T) {
	path := filepath.Join(t.TempDir(), "catalog.yaml")
	require.NoError(t, os.WriteFile(path, []byte("fluids:\n  - {name: brine, viscosity: 50, density: 120}\n"), 0o644))

	c, err := LoadCatalog(path)
	require.NoError(t, err)
	assert.Equal(t, FluidTypeID(0), c.MustFluid("brine"))

	_, err = LoadCatalog(filepath.Join(t.TempDir(), "missing.yaml"))
	assert.Error(t, err)
}

func TestEngineConfig_Validate(t *testing.T) {
	assert.NoError(t, DefaultEngineConfig().Validate())
	assert.Error(t, EngineConfig{Workers: -1}.Validate())
	assert.Error(t, EngineConfig{Horizon: -1}.Validate())
}
