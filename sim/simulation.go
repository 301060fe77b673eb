// sim/simulation.go
package sim

import (
	"context"
	"fmt"

	"github.com/sirupsen/logrus"

	"github.com/strata-sim/strata-sim/sim/trace"
)

// Simulation is the core object that holds simulation time, the grid, the fluid
// and cave-in engines, and the event loop.
//
// Each tick runs, in order: every event due at the tick, one fluid step, and one
// cave-in step.
type Simulation struct {
	Clock   int64
	Horizon int64
	Config  EngineConfig

	Grid    *Grid
	Catalog *Catalog
	Fluids  *FluidGroups
	Mist    *Mist
	CaveIn  *CaveIn

	events      *EventHeap
	nextEventID uint64

	Metrics *Metrics
	// Collectors, when set, receives every tick.
	Collectors *Collectors
	// Trace, when set, records transitions and falls at its level.
	Trace *trace.SimulationTrace
}

// NewSimulation creates a simulation over grid.
func NewSimulation(grid *Grid, config EngineConfig) (*Simulation, error) {
	if grid == nil {
		return nil, fmt.Errorf("simulation needs a grid")
	}
	if err := config.Validate(); err != nil {
		return nil, err
	}
	s := &Simulation{
		Horizon: config.Horizon,
		Config:  config,
		Grid:    grid,
		Catalog: grid.Catalog(),
		events:  NewEventHeap(),
		Metrics: NewMetrics(),
	}
	s.Mist = NewMist(grid, s)
	s.Fluids = NewFluidGroups(grid, config, s.Mist)
	s.CaveIn = NewCaveIn(grid, simTerrain{s})
	return s, nil
}

// Now returns the current tick.
func (sim *Simulation) Now() int64 {
	return sim.Clock
}

// Schedule queues ev. Events due at the current tick still run this tick when
// scheduled before the event phase ends.
func (sim *Simulation) Schedule(ev Event) {
	if ev.Timestamp() < sim.Clock {
		panic(fmt.Sprintf("Schedule: event %s at tick %d is in the past (now %d)", ev.Type(), ev.Timestamp(), sim.Clock))
	}
	ev.setEventID(sim.nextEventID)
	sim.nextEventID++
	sim.events.Schedule(ev)
}

// PendingEvents returns the number of scheduled events not yet executed.
func (sim *Simulation) PendingEvents() int {
	return sim.events.Len()
}

// SetSolid makes b solid with material m. Fluid in b becomes excess of its
// groups, mist in b clears, and b and the solids touching it are checked for
// cave-ins on the next step.
func (sim *Simulation) SetSolid(b BlockIndex, m MaterialTypeID) error {
	if err := sim.checkBlock(b); err != nil {
		return err
	}
	if !sim.Catalog.HasMaterial(m) {
		return fmt.Errorf("%w: %d", ErrUnknownMaterial, m)
	}
	sim.Grid.setSolid(b, m)
	sim.Fluids.OnBlockSetSolid(b)
	sim.Mist.Clear(b)
	sim.CaveIn.RegisterPotentialCaveIn(b)
	sim.registerSolidAdjacents(b)
	return nil
}

// SetNotSolid clears the solid in b. Fluid groups touching b may flow into it
// and the solids that were resting on or beside it are checked for cave-ins.
func (sim *Simulation) SetNotSolid(b BlockIndex) error {
	if err := sim.checkBlock(b); err != nil {
		return err
	}
	if !sim.Grid.IsSolid(b) {
		return nil
	}
	sim.Grid.setSolid(b, NoMaterial)
	sim.Fluids.OnBlockSetNotSolid(b)
	sim.registerSolidAdjacents(b)
	return nil
}

func (sim *Simulation) registerSolidAdjacents(b BlockIndex) {
	for _, a := range sim.Grid.Adjacent(b) {
		if sim.Grid.IsSupport(a) {
			sim.CaveIn.RegisterPotentialCaveIn(a)
		}
	}
}

// AddFluid adds volume of kind to b.
func (sim *Simulation) AddFluid(b BlockIndex, volume uint32, kind FluidTypeID) error {
	if err := sim.checkBlock(b); err != nil {
		return err
	}
	if !sim.Catalog.HasFluid(kind) {
		return fmt.Errorf("%w: %d", ErrUnknownFluid, kind)
	}
	return sim.Fluids.AddFluid(b, volume, kind)
}

// RemoveFluid removes volume of kind from b on the next step.
func (sim *Simulation) RemoveFluid(b BlockIndex, volume uint32, kind FluidTypeID) error {
	if err := sim.checkBlock(b); err != nil {
		return err
	}
	return sim.Fluids.RemoveFluid(b, volume, kind)
}

// SetMistSource makes b emit mist of kind; NoFluid stops it.
func (sim *Simulation) SetMistSource(b BlockIndex, kind FluidTypeID) error {
	if err := sim.checkBlock(b); err != nil {
		return err
	}
	if kind != NoFluid && !sim.Catalog.HasFluid(kind) {
		return fmt.Errorf("%w: %d", ErrUnknownFluid, kind)
	}
	sim.Mist.SetSource(b, kind)
	return nil
}

func (sim *Simulation) checkBlock(b BlockIndex) error {
	if b < 0 || int(b) >= sim.Grid.Len() {
		return fmt.Errorf("%w: block %d", ErrOutOfBounds, b)
	}
	return nil
}

// Idle reports whether another step would change nothing: no unstable groups,
// no cave-in checks and no scheduled events.
func (sim *Simulation) Idle() bool {
	return sim.Fluids.UnstableCount() == 0 && sim.CaveIn.Pending() == 0 && sim.events.Len() == 0
}

// Step runs one tick and advances the clock.
func (sim *Simulation) Step(ctx context.Context) error {
	fired := 0
	for ev := sim.events.PopDue(sim.Clock); ev != nil; ev = sim.events.PopDue(sim.Clock) {
		ev.Execute(sim)
		fired++
	}

	report, err := sim.Fluids.DoStep(ctx)
	if err != nil {
		return fmt.Errorf("tick %d: %w", sim.Clock, err)
	}
	falls := sim.CaveIn.Step()

	sim.Metrics.RecordStep(sim.Clock, report, falls, fired)
	if sim.Collectors != nil {
		sim.Collectors.Observe(report, falls, fired, sim.events.Len())
	}
	if sim.Trace.Enabled() {
		sim.recordTrace(report, falls, fired)
	}
	logrus.Debugf("[tick %07d] events %d, groups read %d, unstable %d, live %d, falls %d",
		sim.Clock, fired, report.Read, report.Unstable, report.Live, len(falls))
	sim.Clock++
	return nil
}

func (sim *Simulation) recordTrace(report StepReport, falls []FallingChunk, fired int) {
	for _, t := range report.Transitions {
		sim.Trace.RecordGroup(trace.GroupRecord{
			Tick:       sim.Clock,
			Group:      int32(t.Group),
			Fluid:      sim.Catalog.Fluid(t.Fluid).Name,
			Transition: string(t.Kind),
		})
	}
	for _, f := range falls {
		sim.Trace.RecordFall(trace.FallRecord{
			Tick:            sim.Clock,
			Blocks:          len(f.Blocks),
			Distance:        f.Distance,
			Energy:          f.Energy,
			AbsorbingImpact: len(f.AbsorbingImpact),
			LowestBlock:     int32(f.Blocks[0]),
		})
	}
	if sim.Trace.Config.Level == trace.TraceLevelTicks {
		surface := 0
		for _, g := range sim.Fluids.Live() {
			surface += g.CountBlocksOnSurface()
		}
		sim.Trace.RecordTick(trace.TickRecord{
			Tick:          sim.Clock,
			GroupsRead:    report.Read,
			Unstable:      report.Unstable,
			LiveGroups:    report.Live,
			EventsFired:   fired,
			SurfaceBlocks: surface,
			FluidVolumes:  sim.FluidVolumes(),
		})
	}
}

// FluidVolumes returns the placed volume plus excess of every fluid kind with
// any volume, keyed by name.
func (sim *Simulation) FluidVolumes() map[string]int {
	out := make(map[string]int)
	for i, f := range sim.Catalog.Fluids {
		if v := sim.Fluids.TotalVolume(FluidTypeID(i)); v != 0 {
			out[f.Name] = v
		}
	}
	return out
}

// Run steps until the clock passes the horizon, or earlier once the simulation
// is idle.
func (sim *Simulation) Run(ctx context.Context) error {
	for sim.Clock <= sim.Horizon {
		if err := ctx.Err(); err != nil {
			return err
		}
		if sim.Idle() {
			logrus.Infof("[tick %07d] simulation idle", sim.Clock)
			break
		}
		if err := sim.Step(ctx); err != nil {
			return err
		}
	}
	sim.Metrics.SimEndedTime = sim.Clock
	sim.Metrics.FinalLive = len(sim.Fluids.Live())
	sim.Metrics.FinalVolumes = sim.FluidVolumes()
	return nil
}

// simTerrain moves solids for the cave-in engine and keeps fluids and mist
// consistent with the move.
type simTerrain struct {
	sim *Simulation
}

func (t simTerrain) MoveContentsTo(from, to BlockIndex) {
	if from == to {
		return
	}
	s := t.sim
	s.Grid.MoveContentsTo(from, to)
	s.Fluids.OnBlockSetSolid(to)
	s.Mist.Clear(to)
	s.Fluids.OnBlockSetNotSolid(from)
}
