// Implements FluidGroups, the arena that owns every FluidGroup of a grid, runs
// the per-tick fluid step and applies synchronous fluid mutations.

package sim

import (
	"context"
	"errors"
	"fmt"
	"maps"
	"runtime"
	"slices"

	"github.com/sirupsen/logrus"
	"golang.org/x/sync/errgroup"
)

var (
	ErrSolidBlock     = errors.New("block is solid")
	ErrNoFluid        = errors.New("block holds no such fluid")
	ErrNotEnoughFluid = errors.New("block holds less fluid than requested")
	ErrZeroVolume     = errors.New("fluid volume must be > 0")
)

// Transition names a change in the set of groups.
type Transition string

const (
	TransitionCreated     Transition = "created"
	TransitionMerged      Transition = "merged"
	TransitionSplit       Transition = "split"
	TransitionDestroyed   Transition = "destroyed"
	TransitionDissolved   Transition = "dissolved"
	TransitionUndissolved Transition = "undissolved"
)

// GroupTransition is one entry of a StepReport.
type GroupTransition struct {
	Group GroupID
	Fluid FluidTypeID
	Kind  Transition
}

// StepReport summarizes one DoStep and any synchronous mutations before it.
type StepReport struct {
	Read        int // groups whose flow was computed
	Unstable    int // groups still unstable afterwards
	Live        int
	Transitions []GroupTransition
}

// MistSpawner is notified when a block of fluid may emit mist.
type MistSpawner interface {
	AddMistFor(b BlockIndex, kind FluidTypeID)
}

type noMist struct{}

func (noMist) AddMistFor(BlockIndex, FluidTypeID) {}

// FluidGroups owns the groups of one grid.
type FluidGroups struct {
	grid    *Grid
	catalog *Catalog
	config  EngineConfig
	mist    MistSpawner

	groups   []*FluidGroup // indexed by GroupID; nil once freed
	unstable map[GroupID]struct{}

	transitions []GroupTransition
}

// NewFluidGroups creates an empty arena over grid. mist may be nil.
func NewFluidGroups(grid *Grid, config EngineConfig, mist MistSpawner) *FluidGroups {
	if mist == nil {
		mist = noMist{}
	}
	return &FluidGroups{
		grid:     grid,
		catalog:  grid.Catalog(),
		config:   config,
		mist:     mist,
		unstable: make(map[GroupID]struct{}),
	}
}

// Group returns the group with id, nil if it was freed.
func (fg *FluidGroups) Group(id GroupID) *FluidGroup {
	if id < 0 || int(id) >= len(fg.groups) {
		return nil
	}
	return fg.groups[id]
}

// Live returns every group not yet freed, in ID order.
func (fg *FluidGroups) Live() []*FluidGroup {
	var out []*FluidGroup
	for _, g := range fg.groups {
		if g != nil && !g.merged && !g.destroyed {
			out = append(out, g)
		}
	}
	return out
}

// TotalVolume returns the placed volume plus excess of every group of kind,
// including groups dissolved in another.
func (fg *FluidGroups) TotalVolume(kind FluidTypeID) int {
	total := 0
	for _, g := range fg.groups {
		if g != nil && g.Fluid == kind && !g.merged && !g.destroyed {
			total += g.TotalVolume()
		}
	}
	return total
}

// UnstableCount returns how many groups will be read on the next step.
func (fg *FluidGroups) UnstableCount() int {
	return len(fg.unstable)
}

// MarkUnstable schedules id for the next step.
func (fg *FluidGroups) MarkUnstable(id GroupID) {
	fg.unstable[id] = struct{}{}
}

func (fg *FluidGroups) record(id GroupID, kind FluidTypeID, t Transition) {
	fg.transitions = append(fg.transitions, GroupTransition{Group: id, Fluid: kind, Kind: t})
}

// CreateFluidGroup creates a group of kind over blocks, which must all hold kind.
func (fg *FluidGroups) CreateFluidGroup(kind FluidTypeID, blocks ...BlockIndex) *FluidGroup {
	return fg.createFluidGroup(kind, NewBlockSet(blocks...), true)
}

func (fg *FluidGroups) createFluidGroup(kind FluidTypeID, blocks BlockSet, checkMerge bool) *FluidGroup {
	g := newFluidGroup(fg, GroupID(len(fg.groups)), kind)
	fg.groups = append(fg.groups, g)
	fg.record(g.ID, kind, TransitionCreated)
	g.setUnstable()
	for _, b := range blocks.Sorted() {
		if g.merged {
			break
		}
		g.AddBlock(b, checkMerge)
	}
	return g
}

// destroy marks g for removal at the end of the current or next step.
func (fg *FluidGroups) destroy(g *FluidGroup) {
	if g.destroyed {
		return
	}
	g.destroyed = true
	g.dissolved = false
	g.Excess = 0
	fg.record(g.ID, g.Fluid, TransitionDestroyed)
	fg.MarkUnstable(g.ID)
}

func (fg *FluidGroups) free(id GroupID) {
	g := fg.groups[id]
	// Groups dissolved in g have nowhere left to go.
	for _, kind := range slices.Sorted(maps.Keys(g.dissolvedInThis)) {
		if d := fg.Group(g.dissolvedInThis[kind]); d != nil && d.dissolved {
			fg.destroy(d)
			fg.groups[d.ID] = nil
			delete(fg.unstable, d.ID)
		}
	}
	fg.groups[id] = nil
	delete(fg.unstable, id)
}

// clearMerged frees groups absorbed by a synchronous merge.
func (fg *FluidGroups) clearMerged() {
	for _, g := range fg.groups {
		if g != nil && g.merged {
			fg.free(g.ID)
		}
	}
}

// setAllUnstableExcept wakes every group with an entry in b other than kind.
func (fg *FluidGroups) setAllUnstableExcept(b BlockIndex, kind FluidTypeID) {
	for _, e := range fg.grid.fluids[b] {
		if e.Type == kind || e.Group == NoGroup {
			continue
		}
		if g := fg.Group(e.Group); g != nil {
			g.setUnstable()
		}
	}
}

func (fg *FluidGroups) workers() int {
	if fg.config.Workers > 0 {
		return fg.config.Workers
	}
	return runtime.GOMAXPROCS(0)
}

// DoStep advances every unstable group by one tick. The read phase runs
// concurrently; every other phase runs sequentially in group ID order.
func (fg *FluidGroups) DoStep(ctx context.Context) (StepReport, error) {
	var read []*FluidGroup
	for _, id := range sortedGroupIDs(fg.unstable) {
		g := fg.Group(id)
		if g == nil || g.merged || g.destroyed || g.dissolved {
			continue
		}
		read = append(read, g)
	}

	eg, egCtx := errgroup.WithContext(ctx)
	eg.SetLimit(fg.workers())
	for _, g := range read {
		eg.Go(func() error {
			if err := egCtx.Err(); err != nil {
				return err
			}
			g.ReadStep()
			return nil
		})
	}
	if err := eg.Wait(); err != nil {
		return StepReport{}, fmt.Errorf("fluid read phase: %w", err)
	}

	// Groups with nothing left after this step still commit their drain.
	for _, g := range read {
		if g.destroyed {
			g.WriteStep()
			fg.record(g.ID, g.Fluid, TransitionDestroyed)
			fg.free(g.ID)
		}
	}
	// Groups woken during this phase have no plan yet; they are read next step.
	for _, g := range read {
		if !g.destroyed && !g.merged && !g.dissolved {
			g.WriteStep()
		}
	}
	for _, g := range read {
		if fg.Group(g.ID) != nil && !g.merged {
			g.AfterWriteStep()
		}
	}
	fg.dropUnstableIf(func(g *FluidGroup) bool { return g.merged || g.dissolved })
	for _, id := range sortedGroupIDs(fg.unstable) {
		if g := fg.Group(id); g != nil && !g.merged && !g.destroyed {
			g.MergeStep()
		}
	}
	fg.dropUnstableIf(func(g *FluidGroup) bool { return g.merged })
	for _, id := range sortedGroupIDs(fg.unstable) {
		if g := fg.Group(id); g != nil && !g.merged && !g.destroyed && !g.dissolved {
			g.SplitStep()
		}
	}

	for _, g := range fg.groups {
		if g == nil {
			continue
		}
		if !g.dissolved && g.Excess <= 0 && g.drain.Set().Empty() {
			fg.destroy(g)
		}
		if g.destroyed || g.merged || g.dissolved || g.stable {
			delete(fg.unstable, g.ID)
		} else {
			fg.unstable[g.ID] = struct{}{}
		}
		if g.destroyed || g.merged {
			fg.free(g.ID)
		}
	}

	report := StepReport{
		Read:        len(read),
		Unstable:    len(fg.unstable),
		Live:        len(fg.Live()),
		Transitions: fg.transitions,
	}
	fg.transitions = nil
	logrus.Debugf("fluid step: read %d groups, %d unstable, %d live, %d transitions",
		report.Read, report.Unstable, report.Live, len(report.Transitions))
	return report, nil
}

func (fg *FluidGroups) dropUnstableIf(fn func(*FluidGroup) bool) {
	for id := range fg.unstable {
		if g := fg.Group(id); g == nil || fn(g) {
			delete(fg.unstable, id)
		}
	}
}

func sortedGroupIDs(m map[GroupID]struct{}) []GroupID {
	ids := make([]GroupID, 0, len(m))
	for id := range m {
		ids = append(ids, id)
	}
	slices.Sort(ids)
	return ids
}

// AddFluid puts volume of kind into b. Volume added to a block already holding
// kind becomes group excess and spreads on the next step; otherwise b joins a
// touching group of kind or starts a new one.
func (fg *FluidGroups) AddFluid(b BlockIndex, volume uint32, kind FluidTypeID) error {
	if fg.grid.IsSolid(b) {
		return fmt.Errorf("%w: cannot add fluid to block %d", ErrSolidBlock, b)
	}
	if volume == 0 {
		return fmt.Errorf("%w: block %d", ErrZeroVolume, b)
	}
	if e := fg.grid.entry(b, kind); e != nil {
		fg.Group(e.Group).AddFluid(volume)
		return nil
	}
	fg.grid.addEntry(b, kind, volume)
	var joined *FluidGroup
	for _, a := range fg.grid.Adjacent(b) {
		if fg.grid.FluidContains(a, kind) {
			if g := fg.Group(fg.grid.GroupOf(a, kind)); g != nil && !g.merged {
				joined = g
				break
			}
		}
	}
	if joined != nil {
		joined.AddBlock(b, true)
		fg.clearMerged()
	} else {
		fg.createFluidGroup(kind, NewBlockSet(b), false)
	}
	if fg.grid.FluidTotal(b) > MaxBlockVolume {
		fg.ResolveOverfull(b)
	}
	return nil
}

// RemoveFluid owes volume of kind to the group holding it in b. The group drains
// it from its highest blocks on the next step.
func (fg *FluidGroups) RemoveFluid(b BlockIndex, volume uint32, kind FluidTypeID) error {
	e := fg.grid.entry(b, kind)
	if e == nil {
		return fmt.Errorf("%w: block %d, fluid %d", ErrNoFluid, b, kind)
	}
	fg.Group(e.Group).RemoveFluid(volume)
	return nil
}

// RemoveFluidImmediately takes volume of kind out of b now.
func (fg *FluidGroups) RemoveFluidImmediately(b BlockIndex, volume uint32, kind FluidTypeID) error {
	e := fg.grid.entry(b, kind)
	if e == nil {
		return fmt.Errorf("%w: block %d, fluid %d", ErrNoFluid, b, kind)
	}
	if e.Volume < volume {
		return fmt.Errorf("%w: block %d holds %d, requested %d", ErrNotEnoughFluid, b, e.Volume, volume)
	}
	g := fg.Group(e.Group)
	emptied := e.Volume == volume
	fg.grid.Drain(b, volume, kind)
	fg.setAllUnstableExcept(b, kind)
	if !emptied {
		g.fill.MaybeAddBlock(b)
		g.setUnstable()
		return nil
	}
	g.RemoveBlock(b)
	if g.drain.Set().Empty() {
		if g.Excess <= 0 {
			fg.destroy(g)
		}
		return nil
	}
	if g.ledger.IsAdjacentToAny(b, g.drain.Set()) {
		g.fill.MaybeAddBlock(b)
	} else {
		g.fill.RemoveBlock(b)
	}
	return nil
}

// ResolveOverfull pushes the lightest residents of b out until b holds at most
// MaxBlockVolume. Displaced volume becomes excess of its group. A group pushed out
// of its last block dissolves into the group of the next denser resident.
func (fg *FluidGroups) ResolveOverfull(b BlockIndex) {
	entries := fg.grid.sortedByDensity(b)
	var erased []FluidTypeID
	for i := range entries {
		total := fg.grid.totalFluid[b]
		if total <= MaxBlockVolume {
			break
		}
		e := &entries[i]
		displaced := min(e.Volume, total-MaxBlockVolume)
		g := fg.Group(e.Group)
		e.Volume -= displaced
		fg.grid.totalFluid[b] -= displaced
		g.Excess += int(displaced)
		g.setUnstable()
		if e.Volume != 0 {
			g.fill.MaybeAddBlock(b)
			continue
		}
		erased = append(erased, e.Type)
		g.RemoveBlock(b)
		g.fill.MaybeAddBlock(b)
		if !g.drain.Set().Empty() {
			continue
		}
		var host *FluidGroup
		for _, denser := range entries[i+1:] {
			if fg.catalog.Fluid(denser.Type).Density > fg.catalog.Fluid(e.Type).Density {
				host = fg.Group(denser.Group)
				break
			}
		}
		switch {
		case host == nil:
			logrus.Debugf("fluid %d in block %d displaced with nowhere to dissolve", e.Type, b)
			fg.destroy(g)
		default:
			if existing, ok := host.dissolvedInThis[e.Type]; ok {
				fg.Group(existing).Excess += g.Excess
				fg.destroy(g)
				continue
			}
			host.dissolvedInThis[e.Type] = g.ID
			g.dissolved = true
			fg.record(g.ID, g.Fluid, TransitionDissolved)
		}
	}
	for _, kind := range erased {
		fg.grid.destroyEntry(b, kind)
	}
}

// OnBlockSetSolid is called after b became solid. Its fluid becomes excess of
// the owning groups and b leaves every queue.
func (fg *FluidGroups) OnBlockSetSolid(b BlockIndex) {
	for _, e := range fg.grid.Fluids(b) {
		g := fg.Group(e.Group)
		if g == nil {
			continue
		}
		g.RemoveBlock(b)
		g.fill.RemoveBlock(b)
		g.AddFluid(e.Volume)
		if !g.drain.Set().Empty() || !g.fill.Set().Empty() {
			continue
		}
		pushed := false
		if fg.config.FluidPiston {
			for a := fg.grid.Above(b); a != NoBlock; a = fg.grid.Above(a) {
				if fg.grid.CanEnterEver(a) {
					g.fill.MaybeAddBlock(a)
					pushed = true
					break
				}
			}
		}
		if !pushed {
			fg.destroy(g)
		}
	}
	fg.grid.clearFluids(b)
	for _, a := range fg.grid.Adjacent(b) {
		for _, e := range fg.grid.fluids[a] {
			if g := fg.Group(e.Group); g != nil {
				g.fill.RemoveBlock(b)
			}
		}
	}
}

// OnBlockSetNotSolid is called after b stopped being solid. Groups touching b may
// now flow into it.
func (fg *FluidGroups) OnBlockSetNotSolid(b BlockIndex) {
	for _, a := range fg.grid.Adjacent(b) {
		for _, e := range fg.grid.fluids[a] {
			if g := fg.Group(e.Group); g != nil && !g.merged && !g.destroyed {
				g.fill.MaybeAddBlock(b)
				g.setUnstable()
			}
		}
	}
}

// Undissolve moves dissolved group d into b if its kind can enter. It reports
// whether d was placed (and is no longer dissolved).
func (fg *FluidGroups) Undissolve(b BlockIndex, d *FluidGroup) bool {
	kind := d.Fluid
	found := fg.grid.entry(b, kind)
	if found == nil && !fg.grid.CanEnterCurrently(b, kind) {
		return false
	}
	if d.Excess <= 0 {
		fg.destroy(d)
		return true
	}
	flow := min(fg.grid.VolumeCanEnter(b, kind), uint32(d.Excess))
	if found != nil {
		host := fg.Group(found.Group)
		fg.grid.Fill(b, flow, kind, found.Group)
		host.Excess += d.Excess - int(flow)
		host.setUnstable()
		fg.destroy(d)
	} else {
		fg.grid.Fill(b, flow, kind, d.ID)
		d.Excess -= int(flow)
		d.dissolved = false
		fg.record(d.ID, kind, TransitionUndissolved)
		d.AddBlock(b, false)
	}
	if fg.grid.FluidTotal(b) > MaxBlockVolume {
		fg.ResolveOverfull(b)
	}
	return true
}
