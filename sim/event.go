package sim

import "github.com/sirupsen/logrus"

// EventType identifies an event kind. Kinds sharing a tick fire in a fixed order.
type EventType int

const (
	EventSolidChange EventType = iota
	EventFluidSource
	EventMistDisperse
)

func (t EventType) String() string {
	switch t {
	case EventSolidChange:
		return "solid_change"
	case EventFluidSource:
		return "fluid_source"
	case EventMistDisperse:
		return "mist_disperse"
	}
	return "unknown"
}

// Event defines the interface for all scheduled simulation events.
// Each event has a Timestamp (in ticks), a Type that breaks ties between events
// of the same tick, and an Execute method that re-validates its target and
// applies the effect.
type Event interface {
	Timestamp() int64
	Type() EventType
	EventID() uint64
	Execute(*Simulation)

	setEventID(uint64)
}

// baseEvent carries the schedule bookkeeping shared by every event.
type baseEvent struct {
	time int64
	id   uint64 // assigned by Simulation.Schedule
}

func (e *baseEvent) Timestamp() int64     { return e.time }
func (e *baseEvent) EventID() uint64      { return e.id }
func (e *baseEvent) setEventID(id uint64) { e.id = id }

// MistDisperseEvent is the delayed check of the mist in one block.
type MistDisperseEvent struct {
	baseEvent
	Block BlockIndex
	Fluid FluidTypeID
}

// NewMistDisperseEvent creates a mist check for b at tick time.
func NewMistDisperseEvent(time int64, b BlockIndex, kind FluidTypeID) *MistDisperseEvent {
	return &MistDisperseEvent{baseEvent: baseEvent{time: time}, Block: b, Fluid: kind}
}

func (e *MistDisperseEvent) Type() EventType { return EventMistDisperse }

// Execute runs the check. A block whose mist is gone just drops it.
func (e *MistDisperseEvent) Execute(sim *Simulation) {
	logrus.Tracef("<< MistDisperseEvent block %d at %d ticks", e.Block, e.time)
	sim.Mist.Check(e.Block, e.Fluid)
}

// FluidSourceEvent adds Volume of Fluid to Block, repeating every Period ticks
// while Period > 0 and the tick does not pass Until.
type FluidSourceEvent struct {
	baseEvent
	Block  BlockIndex
	Fluid  FluidTypeID
	Volume uint32
	Period int64
	Until  int64
}

// NewFluidSourceEvent creates a fluid source firing first at tick time.
func NewFluidSourceEvent(time int64, b BlockIndex, kind FluidTypeID, volume uint32, period, until int64) *FluidSourceEvent {
	return &FluidSourceEvent{
		baseEvent: baseEvent{time: time},
		Block:     b,
		Fluid:     kind,
		Volume:    volume,
		Period:    period,
		Until:     until,
	}
}

func (e *FluidSourceEvent) Type() EventType { return EventFluidSource }

// Execute adds the fluid. A source buried under a solid skips this firing.
func (e *FluidSourceEvent) Execute(sim *Simulation) {
	logrus.Debugf("<< FluidSourceEvent %d of fluid %d into block %d at %d ticks", e.Volume, e.Fluid, e.Block, e.time)
	if err := sim.AddFluid(e.Block, e.Volume, e.Fluid); err != nil {
		logrus.Debugf("fluid source at block %d skipped: %v", e.Block, err)
	}
	if e.Period > 0 && e.time+e.Period <= e.Until {
		sim.Schedule(NewFluidSourceEvent(e.time+e.Period, e.Block, e.Fluid, e.Volume, e.Period, e.Until))
	}
}

// SolidChangeEvent sets Block to Material, or clears it when Material is NoMaterial.
type SolidChangeEvent struct {
	baseEvent
	Block    BlockIndex
	Material MaterialTypeID
}

// NewSolidChangeEvent creates a solid change at tick time.
func NewSolidChangeEvent(time int64, b BlockIndex, m MaterialTypeID) *SolidChangeEvent {
	return &SolidChangeEvent{baseEvent: baseEvent{time: time}, Block: b, Material: m}
}

func (e *SolidChangeEvent) Type() EventType { return EventSolidChange }

// Execute applies the change through the Simulation so fluids and cave-ins follow.
func (e *SolidChangeEvent) Execute(sim *Simulation) {
	logrus.Debugf("<< SolidChangeEvent block %d material %d at %d ticks", e.Block, e.Material, e.time)
	var err error
	if e.Material == NoMaterial {
		err = sim.SetNotSolid(e.Block)
	} else {
		err = sim.SetSolid(e.Block, e.Material)
	}
	if err != nil {
		logrus.Warnf("solid change at block %d skipped: %v", e.Block, err)
	}
}
