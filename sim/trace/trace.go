package trace

// TraceLevel controls the verbosity of step tracing.
type TraceLevel string

const (
	// TraceLevelNone disables tracing (zero overhead).
	TraceLevelNone TraceLevel = "none"
	// TraceLevelEvents captures group transitions and cave-in falls.
	TraceLevelEvents TraceLevel = "events"
	// TraceLevelTicks additionally captures a summary record for every tick.
	TraceLevelTicks TraceLevel = "ticks"
)

// validTraceLevels maps accepted trace level strings.
var validTraceLevels = map[TraceLevel]bool{
	TraceLevelNone:   true,
	TraceLevelEvents: true,
	TraceLevelTicks:  true,
	"":               true, // empty defaults to none
}

// IsValidTraceLevel returns true if the given level string is a recognized trace level.
func IsValidTraceLevel(level string) bool {
	return validTraceLevels[TraceLevel(level)]
}

// TraceConfig controls trace collection behavior.
type TraceConfig struct {
	Level TraceLevel
}

// SimulationTrace collects step records during a simulation.
type SimulationTrace struct {
	Config TraceConfig
	Ticks  []TickRecord
	Groups []GroupRecord
	Falls  []FallRecord
}

// NewSimulationTrace creates a SimulationTrace ready for recording.
func NewSimulationTrace(config TraceConfig) *SimulationTrace {
	return &SimulationTrace{
		Config: config,
		Ticks:  make([]TickRecord, 0),
		Groups: make([]GroupRecord, 0),
		Falls:  make([]FallRecord, 0),
	}
}

// Enabled reports whether anything is recorded at all.
func (st *SimulationTrace) Enabled() bool {
	return st != nil && st.Config.Level != TraceLevelNone && st.Config.Level != ""
}

// RecordTick appends a tick record when the level includes ticks.
func (st *SimulationTrace) RecordTick(record TickRecord) {
	if st.Config.Level != TraceLevelTicks {
		return
	}
	st.Ticks = append(st.Ticks, record)
}

// RecordGroup appends a group transition record.
func (st *SimulationTrace) RecordGroup(record GroupRecord) {
	st.Groups = append(st.Groups, record)
}

// RecordFall appends a cave-in fall record.
func (st *SimulationTrace) RecordFall(record FallRecord) {
	st.Falls = append(st.Falls, record)
}
