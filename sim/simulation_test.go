package sim

import (
	"context"
	"math/rand"
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/strata-sim/strata-sim/sim/trace"
)

func newTestSimulation(t *testing.T, sx, sy, sz int, horizon int64) *Simulation {
	t.Helper()
	s, err := NewSimulation(newFloorGrid(sx, sy, sz), EngineConfig{Workers: 1, Horizon: horizon})
	require.NoError(t, err)
	return s
}

func TestNewSimulation_Validation(t *testing.T) {
	_, err := NewSimulation(nil, EngineConfig{})
	assert.Error(t, err)

	_, err = NewSimulation(newFloorGrid(1, 1, 1), EngineConfig{Workers: -1})
	assert.Error(t, err)

	s, err := NewSimulation(newFloorGrid(1, 1, 1), EngineConfig{Horizon: 7})
	require.NoError(t, err)
	assert.Equal(t, int64(7), s.Horizon)
	assert.True(t, s.Idle())
}

func TestSimulation_ScheduleAssignsIDsAndRejectsPast(t *testing.T) {
	s := newTestSimulation(t, 1, 1, 2, 10)
	a := NewSolidChangeEvent(3, 0, NoMaterial)
	b := NewSolidChangeEvent(3, 0, NoMaterial)
	s.Schedule(a)
	s.Schedule(b)
	assert.Less(t, a.EventID(), b.EventID())
	assert.Equal(t, 2, s.PendingEvents())

	s.Clock = 5
	assert.Panics(t, func() { s.Schedule(NewSolidChangeEvent(4, 0, NoMaterial)) })
}

func TestSimulation_RejectsBadTargets(t *testing.T) {
	s := newTestSimulation(t, 2, 2, 2, 10)
	b := s.Grid.Index(1, 1, 1)
	water := s.Catalog.MustFluid("water")

	assert.ErrorIs(t, s.SetSolid(BlockIndex(-1), 0), ErrOutOfBounds)
	assert.ErrorIs(t, s.SetSolid(b, MaterialTypeID(99)), ErrUnknownMaterial)
	assert.ErrorIs(t, s.SetNotSolid(BlockIndex(s.Grid.Len())), ErrOutOfBounds)
	assert.ErrorIs(t, s.AddFluid(b, 10, FluidTypeID(99)), ErrUnknownFluid)
	assert.ErrorIs(t, s.AddFluid(s.Grid.Index(0, 0, 0), 10, water), ErrSolidBlock)
	assert.ErrorIs(t, s.RemoveFluid(b, 10, water), ErrNoFluid)
	assert.ErrorIs(t, s.SetMistSource(b, FluidTypeID(99)), ErrUnknownFluid)
	assert.NoError(t, s.SetNotSolid(b), "clearing an empty block is a no-op")
}

func TestSimulation_EventsFireBeforeFluidStep(t *testing.T) {
	s := newTestSimulation(t, 1, 1, 4, 10)
	water := s.Catalog.MustFluid("water")
	z1, z2 := s.Grid.Index(0, 0, 1), s.Grid.Index(0, 0, 2)

	// GIVEN a source due at tick 0 two blocks above the floor
	s.Schedule(NewFluidSourceEvent(0, z2, water, 100, 0, 0))

	// WHEN tick 0 runs
	require.NoError(t, s.Step(context.Background()))

	// THEN the water was added and fell within the same tick
	assert.Equal(t, int64(1), s.Clock)
	assert.Equal(t, uint32(100), s.Grid.FluidVolume(z1, water))
	assert.Zero(t, s.Grid.FluidVolume(z2, water))
	assert.Equal(t, 1, s.Metrics.EventsFired)
}

func TestSimulation_RepeatingSourceConservesVolume(t *testing.T) {
	s := newTestSimulation(t, 1, 1, 3, 20)
	water := s.Catalog.MustFluid("water")
	z1 := s.Grid.Index(0, 0, 1)

	// GIVEN a source of 10 firing at ticks 0, 2 and 4
	s.Schedule(NewFluidSourceEvent(0, z1, water, 10, 2, 4))

	// WHEN the simulation runs until idle
	require.NoError(t, s.Run(context.Background()))

	// THEN every firing landed and the run ended early
	assert.Equal(t, 3, s.Metrics.EventsFired)
	assert.Equal(t, 30, s.Fluids.TotalVolume(water))
	assert.Equal(t, uint32(30), s.Grid.FluidVolume(z1, water))
	assert.Equal(t, map[string]int{"water": 30}, s.Metrics.FinalVolumes)
	assert.Equal(t, 1, s.Metrics.FinalLive)
	assert.Less(t, s.Metrics.SimEndedTime, int64(20))
	assert.True(t, s.Idle())
}

func TestSimulation_SolidChangeEvent(t *testing.T) {
	s := newTestSimulation(t, 1, 1, 3, 10)
	water := s.Catalog.MustFluid("water")
	stone := s.Catalog.MustMaterial("stone")
	z1, z2 := s.Grid.Index(0, 0, 1), s.Grid.Index(0, 0, 2)
	require.NoError(t, s.AddFluid(z1, 40, water))

	// WHEN the water block is turned to stone at tick 1 and a source is buried at tick 2
	s.Schedule(NewSolidChangeEvent(1, z1, stone))
	s.Schedule(NewSolidChangeEvent(2, z2, stone))
	s.Schedule(NewFluidSourceEvent(2, z2, water, 10, 0, 0))
	require.NoError(t, s.Run(context.Background()))

	// THEN the water rose into the block above, was displaced again with nowhere
	// to go, and the buried source was skipped
	assert.Equal(t, stone, s.Grid.Solid(z1))
	assert.Equal(t, stone, s.Grid.Solid(z2))
	assert.Zero(t, s.Fluids.TotalVolume(water))
	assert.Empty(t, s.Metrics.FinalVolumes)
}

func TestSimulation_RemovedSupportCausesCaveIn(t *testing.T) {
	s := newTestSimulation(t, 3, 3, 5, 20)
	stone := s.Catalog.MustMaterial("stone")
	base, post, top := s.Grid.Index(1, 1, 1), s.Grid.Index(1, 1, 2), s.Grid.Index(1, 1, 3)
	for _, b := range []BlockIndex{base, post, top} {
		s.Grid.PlaceSolid(b, stone)
	}

	// WHEN the middle of the pillar is removed
	require.NoError(t, s.SetNotSolid(post))
	assert.Equal(t, 2, s.CaveIn.Pending())
	require.NoError(t, s.Run(context.Background()))

	// THEN the top block drops onto the base and stays
	assert.Equal(t, 1, s.Metrics.ChunksFallen)
	assert.Equal(t, 1, s.Metrics.BlocksFallen)
	assert.Equal(t, uint64(MaxBlockVolume*100), s.Metrics.FallEnergy)
	assert.True(t, s.Grid.IsSolid(post))
	assert.False(t, s.Grid.IsSolid(top))
}

func TestSimulation_FallingBlockDisplacesFluid(t *testing.T) {
	s := newTestSimulation(t, 3, 3, 5, 200)
	water := s.Catalog.MustFluid("water")
	landing, block := s.Grid.Index(1, 1, 1), s.Grid.Index(1, 1, 3)
	s.Grid.PlaceSolid(block, s.Catalog.MustMaterial("stone"))
	require.NoError(t, s.AddFluid(landing, 100, water))
	s.CaveIn.RegisterPotentialCaveIn(block)

	// WHEN the block falls through the air into the water
	require.NoError(t, s.Run(context.Background()))

	// THEN it took the water's place and the water went elsewhere
	assert.Equal(t, 1, s.Metrics.ChunksFallen)
	assert.True(t, s.Grid.IsSolid(landing))
	assert.False(t, s.Grid.HasFluid(landing))
	assert.Equal(t, 100, s.Fluids.TotalVolume(water))
}

func TestSimulation_MistSourceKeepsRunning(t *testing.T) {
	s := newTestSimulation(t, 3, 3, 2, 25)
	water := s.Catalog.MustFluid("water")
	b := s.Grid.Index(1, 1, 1)

	require.NoError(t, s.SetMistSource(b, water))
	require.NoError(t, s.Run(context.Background()))

	// A live mist source always has a check pending, so only the horizon stops the run.
	assert.Equal(t, int64(26), s.Clock)
	assert.Equal(t, water, s.Grid.Mist(b))
	assert.Equal(t, water, s.Grid.Mist(s.Grid.Index(0, 1, 1)))

	// Turning a block solid clears its mist.
	require.NoError(t, s.SetSolid(b, s.Catalog.MustMaterial("stone")))
	assert.Equal(t, NoFluid, s.Grid.Mist(b))
}

func TestSimulation_RunHonoursCancellation(t *testing.T) {
	s := newTestSimulation(t, 1, 1, 3, 10)
	s.Schedule(NewFluidSourceEvent(0, s.Grid.Index(0, 0, 1), s.Catalog.MustFluid("water"), 10, 1, 10))

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	assert.ErrorIs(t, s.Run(ctx), context.Canceled)
	assert.Zero(t, s.Clock)
}

func TestSimulation_TraceAndCollectors(t *testing.T) {
	s := newTestSimulation(t, 3, 3, 5, 20)
	water := s.Catalog.MustFluid("water")
	s.Grid.PlaceSolid(s.Grid.Index(1, 1, 3), s.Catalog.MustMaterial("stone"))
	s.CaveIn.RegisterPotentialCaveIn(s.Grid.Index(1, 1, 3))
	require.NoError(t, s.AddFluid(s.Grid.Index(0, 0, 1), 50, water))

	reg := prometheus.NewRegistry()
	var err error
	s.Collectors, err = NewCollectors(reg)
	require.NoError(t, err)
	s.Trace = trace.NewSimulationTrace(trace.TraceConfig{Level: trace.TraceLevelTicks})

	require.NoError(t, s.Run(context.Background()))

	// Every tick is traced and counted.
	require.Len(t, s.Trace.Ticks, int(s.Metrics.Ticks))
	assert.Equal(t, float64(s.Metrics.Ticks), testutil.ToFloat64(s.Collectors.Ticks))
	assert.Equal(t, float64(s.Metrics.GroupsRead), testutil.ToFloat64(s.Collectors.GroupsRead))
	assert.Equal(t, map[string]int{"water": 50}, s.Trace.Ticks[0].FluidVolumes)
	assert.Positive(t, s.Trace.Ticks[0].SurfaceBlocks)

	// The group creation and the fall are both recorded.
	require.NotEmpty(t, s.Trace.Groups)
	assert.Equal(t, "water", s.Trace.Groups[0].Fluid)
	assert.Equal(t, string(TransitionCreated), s.Trace.Groups[0].Transition)
	require.Len(t, s.Trace.Falls, 1)
	assert.Equal(t, 2, s.Trace.Falls[0].Distance)
	assert.Equal(t, 1.0, testutil.ToFloat64(s.Collectors.ChunksFallen))
	assert.GreaterOrEqual(t, testutil.ToFloat64(s.Collectors.Transitions.WithLabelValues(string(TransitionCreated))), 1.0)
}

// requireOwnedFluid fails unless every fluid entry belongs to a live group that
// lists the block as a member.
func requireOwnedFluid(t *testing.T, s *Simulation) {
	t.Helper()
	for i := 0; i < s.Grid.Len(); i++ {
		b := BlockIndex(i)
		for _, e := range s.Grid.Fluids(b) {
			require.NotEqual(t, NoGroup, e.Group, "tick %d block %d fluid %d has no group", s.Clock, b, e.Type)
			group := s.Fluids.Group(e.Group)
			require.NotNil(t, group, "tick %d block %d fluid %d owned by freed group %d", s.Clock, b, e.Type, e.Group)
			require.True(t, group.Blocks().Contains(b), "tick %d block %d missing from group %d", s.Clock, b, e.Group)
		}
	}
}

func TestSimulation_RandomSolidChangesKeepFluidOwned(t *testing.T) {
	for seed := int64(0); seed < 200; seed++ {
		s := newTestSimulation(t, 6, 6, 6, 1000)
		stone := s.Catalog.MustMaterial("stone")
		kinds := []FluidTypeID{s.Catalog.MustFluid("water"), s.Catalog.MustFluid("mercury"), s.Catalog.MustFluid("CO2")}
		rng := rand.New(rand.NewSource(seed))

		// GIVEN a random mix of solids set and cleared and fluids poured, one step each
		for step := 0; step < 15; step++ {
			b := s.Grid.Index(rng.Intn(6), rng.Intn(6), 1+rng.Intn(5))
			switch op := rng.Intn(4); op {
			case 0:
				_ = s.SetSolid(b, stone)
			case 1:
				_ = s.SetNotSolid(b)
			default:
				_ = s.AddFluid(b, uint32(1+rng.Intn(100)), kinds[rng.Intn(len(kinds))])
			}
			require.NoError(t, s.Step(context.Background()))

			// THEN no fluid is left without a group
			requireOwnedFluid(t, s)
		}

		// AND every fluid block still accepts more of its fluid
		for i := 0; i < s.Grid.Len(); i++ {
			b := BlockIndex(i)
			for _, e := range s.Grid.Fluids(b) {
				require.NotPanics(t, func() { _ = s.AddFluid(b, 1, e.Type) }, "seed %d block %d", seed, b)
			}
		}
	}
}
