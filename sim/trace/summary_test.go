package trace

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestSummarize_NilTrace_ZeroValues(t *testing.T) {
	summary := Summarize(nil)

	assert.Equal(t, 0, summary.Ticks)
	assert.Equal(t, 0, summary.Falls)
	assert.Equal(t, int64(-1), summary.SettledAt)
	assert.Empty(t, summary.Transitions)
}

func TestSummarize_PopulatedTrace_CorrectCounts(t *testing.T) {
	// GIVEN a trace where the fluid settles at tick 2 and two chunks fall
	st := NewSimulationTrace(TraceConfig{Level: TraceLevelTicks})
	st.RecordTick(TickRecord{Tick: 0, Unstable: 2})
	st.RecordTick(TickRecord{Tick: 1, Unstable: 3})
	st.RecordTick(TickRecord{Tick: 2, Unstable: 0})
	st.RecordTick(TickRecord{Tick: 3, Unstable: 0, FluidVolumes: map[string]int{"water": 250}})
	st.RecordGroup(GroupRecord{Transition: "created"})
	st.RecordGroup(GroupRecord{Transition: "created"})
	st.RecordGroup(GroupRecord{Transition: "merged"})
	st.RecordFall(FallRecord{Blocks: 2, Distance: 1, Energy: 100})
	st.RecordFall(FallRecord{Blocks: 1, Distance: 4, Energy: 40})

	// WHEN summarized
	summary := Summarize(st)

	// THEN counts and extremes match
	assert.Equal(t, 4, summary.Ticks)
	assert.Equal(t, 3, summary.PeakUnstable)
	assert.Equal(t, int64(2), summary.SettledAt)
	assert.Equal(t, 2, summary.Transitions["created"])
	assert.Equal(t, 1, summary.Transitions["merged"])
	assert.Equal(t, 2, summary.Falls)
	assert.Equal(t, 3, summary.BlocksFallen)
	assert.Equal(t, uint64(140), summary.TotalFallEnergy)
	assert.Equal(t, 4, summary.MaxFallDistance)
	assert.Equal(t, 250, summary.FinalFluidVolume["water"])
}

func TestSummarize_UnsettledAgain_ResetsSettledAt(t *testing.T) {
	st := NewSimulationTrace(TraceConfig{Level: TraceLevelTicks})
	st.RecordTick(TickRecord{Tick: 0, Unstable: 0})
	st.RecordTick(TickRecord{Tick: 1, Unstable: 1})

	assert.Equal(t, int64(-1), Summarize(st).SettledAt)
}
