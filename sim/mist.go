package sim

import "github.com/sirupsen/logrus"

// DefaultMistSpread asks Spawn for the kind's MaxMistSpread.
const DefaultMistSpread int32 = -1

// mistScheduler is the part of the Simulation the mist needs: a clock and a way
// to register a future check.
type mistScheduler interface {
	Now() int64
	Schedule(ev Event)
}

// Mist spreads a short-lived gas-like effect from falling fluid and explicit
// mist sources. Each mist block checks itself again after the kind's
// MistDuration and either spreads one step further or clears.
type Mist struct {
	grid      *Grid
	catalog   *Catalog
	scheduler mistScheduler
	pending   BlockSet // blocks with a check queued
}

// NewMist creates the mist system for grid. Checks are queued on scheduler.
func NewMist(grid *Grid, scheduler mistScheduler) *Mist {
	return &Mist{grid: grid, catalog: grid.Catalog(), scheduler: scheduler}
}

// Spawn places mist of kind in b with spread budget maxSpread (DefaultMistSpread
// for the kind's default) and schedules its first check. Mist of the same kind or of a
// denser kind already in b is left alone.
func (m *Mist) Spawn(b BlockIndex, kind FluidTypeID, maxSpread int32) {
	if current := m.grid.Mist(b); current != NoFluid &&
		(current == kind || m.catalog.Fluid(current).Density > m.catalog.Fluid(kind).Density) {
		return
	}
	fluid := m.catalog.Fluid(kind)
	if maxSpread < 0 {
		maxSpread = fluid.MaxMistSpread
	}
	m.grid.setMist(b, kind, maxSpread)
	m.scheduleCheck(b, kind)
}

func (m *Mist) scheduleCheck(b BlockIndex, kind FluidTypeID) {
	if m.pending.Contains(b) {
		return
	}
	m.pending.Add(b)
	m.scheduler.Schedule(NewMistDisperseEvent(m.scheduler.Now()+max(m.catalog.Fluid(kind).MistDuration, 1), b, kind))
}

// SetSource makes b emit mist of kind until cleared with NoFluid.
func (m *Mist) SetSource(b BlockIndex, kind FluidTypeID) {
	m.grid.setMistSource(b, kind)
	if kind != NoFluid && !m.grid.IsSolid(b) {
		m.Spawn(b, kind, DefaultMistSpread)
	}
}

// Clear removes any mist from b. A pending check for b finds nothing and drops.
func (m *Mist) Clear(b BlockIndex) {
	m.grid.clearMist(b)
}

// AddMistFor spawns mist of kind beside b when kind mists and b is not resting
// on a solid block, i.e. the fluid in b is falling.
func (m *Mist) AddMistFor(b BlockIndex, kind FluidTypeID) {
	if m.catalog.Fluid(kind).MistDuration == 0 {
		return
	}
	if below := m.grid.Below(b); below != NoBlock && m.grid.IsSolid(below) {
		return
	}
	for _, a := range m.grid.AdjacentSameZ(b) {
		if m.grid.CanEnterEver(a) {
			m.Spawn(a, kind, DefaultMistSpread)
		}
	}
}

// Check runs the scheduled check of the mist of kind in b.
func (m *Mist) Check(b BlockIndex, kind FluidTypeID) {
	m.pending.Remove(b)
	// Replaced by another kind since the check was scheduled.
	if current := m.grid.Mist(b); current != kind {
		if current != NoFluid {
			m.scheduleCheck(b, current)
		}
		return
	}
	if m.grid.IsSolid(b) || m.grid.FluidTotal(b) >= MaxBlockVolume || !m.continuesToExist(b, kind) {
		logrus.Tracef("mist %d cleared from block %d", kind, b)
		m.Clear(b)
		return
	}
	if inverseDistance := m.grid.MistInverseDistance(b); inverseDistance > 0 {
		for _, a := range m.grid.Adjacent(b) {
			if m.grid.CanEnterEver(a) {
				m.Spawn(a, kind, inverseDistance-1)
			}
		}
	}
	m.scheduleCheck(b, kind)
}

// continuesToExist reports whether something still feeds the mist in b: b is a
// source of kind, kind is falling next to b, or a neighbour holds mist of kind
// nearer its source.
func (m *Mist) continuesToExist(b BlockIndex, kind FluidTypeID) bool {
	if m.grid.MistSource(b) == kind {
		return true
	}
	for _, a := range m.grid.AdjacentSameZ(b) {
		if !m.grid.FluidContains(a, kind) {
			continue
		}
		if below := m.grid.Below(a); below == NoBlock || !m.grid.IsSolid(below) {
			return true
		}
	}
	inverseDistance := m.grid.MistInverseDistance(b)
	for _, a := range m.grid.Adjacent(b) {
		if m.grid.Mist(a) == kind && m.grid.MistInverseDistance(a) > inverseDistance {
			return true
		}
	}
	return false
}
