package sim

import (
	"hash/fnv"
	"math/rand"
	"strconv"
)

// Named random streams used while building a scenario.
const (
	// StreamTerrain drives the terrain height map. It uses the scenario seed
	// unchanged, so --seed alone pins the landscape.
	StreamTerrain = "terrain"
	// StreamSources places random fluid sources.
	StreamSources = "sources"
)

// LayerStream names the stream that picks materials for solid layer n.
func LayerStream(n int) string {
	return "layer_" + strconv.Itoa(n)
}

// ScenarioRNG gives every part of scenario generation its own random stream
// derived from one seed, so drawing more numbers for one layer never moves the
// sources or the terrain. Stream seeds are seed XOR fnv1a(name), except for
// StreamTerrain.
//
// Not safe for concurrent use.
type ScenarioRNG struct {
	seed    int64
	streams map[string]*rand.Rand
}

// NewScenarioRNG creates the streams for seed.
func NewScenarioRNG(seed int64) *ScenarioRNG {
	return &ScenarioRNG{seed: seed, streams: make(map[string]*rand.Rand)}
}

// MasterSeed returns the seed every stream derives from.
func (r *ScenarioRNG) MasterSeed() int64 {
	return r.seed
}

// Seed returns the seed of stream name, for libraries that want a seed rather
// than a *rand.Rand.
func (r *ScenarioRNG) Seed(name string) int64 {
	if name == StreamTerrain {
		return r.seed
	}
	return r.seed ^ streamHash(name)
}

// Stream returns the random stream for name. Repeated calls share one stream.
func (r *ScenarioRNG) Stream(name string) *rand.Rand {
	s, ok := r.streams[name]
	if !ok {
		s = rand.New(rand.NewSource(r.Seed(name)))
		r.streams[name] = s
	}
	return s
}

func streamHash(name string) int64 {
	h := fnv.New64a()
	_, _ = h.Write([]byte(name))
	return int64(h.Sum64())
}
