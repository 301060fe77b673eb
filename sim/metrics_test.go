package sim

import (
	"bytes"
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMetrics_RecordStep(t *testing.T) {
	m := NewMetrics()

	// GIVEN a busy tick with a fall, then two quiet ticks, then a busy one and a quiet one
	m.RecordStep(0, StepReport{
		Read: 3, Unstable: 2, Live: 3,
		Transitions: []GroupTransition{{Kind: TransitionCreated}, {Kind: TransitionCreated}, {Kind: TransitionMerged}},
	}, []FallingChunk{{Blocks: []BlockIndex{1, 2}, Distance: 2, Energy: 400}}, 4)
	m.RecordStep(1, StepReport{Read: 2, Unstable: 0, Live: 2}, nil, 0)
	assert.Equal(t, int64(1), m.SettledAtTick)
	m.RecordStep(2, StepReport{Read: 0, Unstable: 0, Live: 2}, nil, 0)
	assert.Equal(t, int64(1), m.SettledAtTick, "staying settled keeps the first settled tick")
	m.RecordStep(3, StepReport{Read: 1, Unstable: 5, Live: 2}, nil, 1)
	assert.Equal(t, int64(-1), m.SettledAtTick)
	m.RecordStep(4, StepReport{Read: 5, Unstable: 0, Live: 1}, nil, 0)

	// THEN totals and peaks add up
	assert.Equal(t, int64(5), m.Ticks)
	assert.Equal(t, 11, m.GroupsRead)
	assert.Equal(t, 5, m.PeakUnstable)
	assert.Equal(t, 2, m.Transitions[TransitionCreated])
	assert.Equal(t, 1, m.Transitions[TransitionMerged])
	assert.Equal(t, 1, m.ChunksFallen)
	assert.Equal(t, 2, m.BlocksFallen)
	assert.Equal(t, uint64(400), m.FallEnergy)
	assert.Equal(t, 5, m.EventsFired)
	assert.Equal(t, 1, m.FinalLive)
	assert.Equal(t, int64(4), m.SettledAtTick)
}

func TestMetrics_Print(t *testing.T) {
	m := NewMetrics()
	m.RecordStep(0, StepReport{Read: 2, Unstable: 1, Live: 1,
		Transitions: []GroupTransition{{Kind: TransitionSplit}}}, nil, 0)
	m.SimEndedTime = 1
	m.FinalVolumes = map[string]int{"water": 120}

	var buf bytes.Buffer
	m.Print(&buf)
	out := buf.String()

	assert.Contains(t, out, "=== Simulation Metrics ===")
	assert.Contains(t, out, "Ticks                : 1")
	assert.Contains(t, out, "Average Groups Read  : 2.00 per tick")
	assert.Contains(t, out, "Settled At           : never")
	assert.Contains(t, out, "Groups split")
	assert.Contains(t, out, "Volume water")
	assert.Contains(t, out, ": 120")
}

func TestCollectors_Observe(t *testing.T) {
	reg := prometheus.NewRegistry()
	c, err := NewCollectors(reg)
	require.NoError(t, err)

	c.Observe(StepReport{Read: 4, Unstable: 2, Live: 3,
		Transitions: []GroupTransition{{Kind: TransitionCreated}, {Kind: TransitionDestroyed}, {Kind: TransitionCreated}},
	}, []FallingChunk{{Energy: 300}, {Energy: 200}}, 2, 7)
	c.Observe(StepReport{Read: 1, Unstable: 0, Live: 3}, nil, 0, 5)

	assert.Equal(t, 2.0, testutil.ToFloat64(c.Ticks))
	assert.Equal(t, 5.0, testutil.ToFloat64(c.GroupsRead))
	assert.Equal(t, 0.0, testutil.ToFloat64(c.Unstable))
	assert.Equal(t, 3.0, testutil.ToFloat64(c.LiveGroups))
	assert.Equal(t, 2.0, testutil.ToFloat64(c.Transitions.WithLabelValues(string(TransitionCreated))))
	assert.Equal(t, 1.0, testutil.ToFloat64(c.Transitions.WithLabelValues(string(TransitionDestroyed))))
	assert.Equal(t, 2.0, testutil.ToFloat64(c.ChunksFallen))
	assert.Equal(t, 500.0, testutil.ToFloat64(c.FallEnergy))
	assert.Equal(t, 2.0, testutil.ToFloat64(c.EventsFired))
	assert.Equal(t, 5.0, testutil.ToFloat64(c.PendingEvents))

	n, err := testutil.GatherAndCount(reg, "strata_ticks_total", "strata_fluid_group_transitions_total")
	require.NoError(t, err)
	assert.Equal(t, 3, n)
}

func TestNewCollectors_DuplicateRegistration(t *testing.T) {
	reg := prometheus.NewRegistry()
	_, err := NewCollectors(reg)
	require.NoError(t, err)

	_, err = NewCollectors(reg)
	assert.Error(t, err)
}
