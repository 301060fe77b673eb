package cmd

import (
	"gopkg.in/yaml.v3"

	"github.com/strata-sim/strata-sim/sim"
	"github.com/strata-sim/strata-sim/sim/scenario"
)

// defaultScenario is run when no --scenario is given: a stone basin with
// perlin hills, a few rain sources and a wall removed mid-run.
const defaultScenario = `
version: "1"
name: demo
seed: 42
size: {x: 12, y: 12, z: 10}
engine:
  horizon: 100
layers:
  - material: stone
    from: 0
    to: 0
terrain:
  material: dirt
  base: 1
  amplitude: 4
  scale: 5
random_sources:
  count: 4
  fluid: water
  volume: 25
  period: 4
  until: 60
solid_changes:
  - tick: 70
    at: [6, 6, 1]
`

// loadScenario parses the scenario at path, or the built-in demo when path is
// empty. Both use strict field checking.
func loadScenario(path string) (*scenario.Spec, error) {
	if path == "" {
		return scenario.ParseSpec([]byte(defaultScenario))
	}
	return scenario.LoadSpec(path)
}

// loadCatalog returns the catalog at path, or the built-in one.
func loadCatalog(path string) (*sim.Catalog, error) {
	if path == "" {
		return sim.DefaultCatalog(), nil
	}
	return sim.LoadCatalog(path)
}

// marshalCatalog renders c in the format LoadCatalog reads.
func marshalCatalog(c *sim.Catalog) ([]byte, error) {
	return yaml.Marshal(c)
}
