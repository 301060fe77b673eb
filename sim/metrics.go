// Tracks simulation-wide statistics: fluid group activity, group lifecycle
// transitions, cave-in falls and scheduled events.

package sim

import (
	"fmt"
	"io"
	"maps"
	"slices"

	"github.com/prometheus/client_golang/prometheus"
)

// Metrics aggregates statistics about the simulation for final reporting.
type Metrics struct {
	Ticks          int64 // ticks stepped
	GroupsRead     int   // sum over ticks of groups whose flow was computed
	PeakUnstable   int   // max number of unstable groups after a tick
	Transitions    map[Transition]int
	ChunksFallen   int
	BlocksFallen   int
	FallEnergy     uint64
	EventsFired    int
	SimEndedTime   int64
	FinalLive      int
	FinalVolumes   map[string]int // fluid name → placed volume plus excess at the end
	SettledAtTick  int64          // first tick after which no group stayed unstable; -1 if never
	lastWasSettled bool
}

// NewMetrics creates empty Metrics.
func NewMetrics() *Metrics {
	return &Metrics{
		Transitions:   make(map[Transition]int),
		FinalVolumes:  make(map[string]int),
		SettledAtTick: -1,
	}
}

// RecordStep folds one tick into the totals.
func (m *Metrics) RecordStep(tick int64, report StepReport, falls []FallingChunk, eventsFired int) {
	m.Ticks++
	m.GroupsRead += report.Read
	m.PeakUnstable = max(m.PeakUnstable, report.Unstable)
	for _, t := range report.Transitions {
		m.Transitions[t.Kind]++
	}
	for _, f := range falls {
		m.ChunksFallen++
		m.BlocksFallen += len(f.Blocks)
		m.FallEnergy += f.Energy
	}
	m.EventsFired += eventsFired
	m.FinalLive = report.Live
	settled := report.Unstable == 0
	if settled && !m.lastWasSettled {
		m.SettledAtTick = tick
	} else if !settled {
		m.SettledAtTick = -1
	}
	m.lastWasSettled = settled
}

// Print displays aggregated metrics at the end of the simulation.
func (m *Metrics) Print(w io.Writer) {
	fmt.Fprintln(w, "=== Simulation Metrics ===")
	fmt.Fprintf(w, "Ticks                : %d\n", m.Ticks)
	fmt.Fprintf(w, "Simulation Ended     : tick %d\n", m.SimEndedTime)
	fmt.Fprintf(w, "Groups Read          : %d\n", m.GroupsRead)
	if m.Ticks > 0 {
		fmt.Fprintf(w, "Average Groups Read  : %.2f per tick\n", float64(m.GroupsRead)/float64(m.Ticks))
	}
	fmt.Fprintf(w, "Peak Unstable Groups : %d\n", m.PeakUnstable)
	fmt.Fprintf(w, "Live Groups          : %d\n", m.FinalLive)
	if m.SettledAtTick >= 0 {
		fmt.Fprintf(w, "Settled At           : tick %d\n", m.SettledAtTick)
	} else {
		fmt.Fprintln(w, "Settled At           : never")
	}
	for _, t := range slices.Sorted(maps.Keys(m.Transitions)) {
		fmt.Fprintf(w, "Groups %-13s : %d\n", t, m.Transitions[t])
	}
	fmt.Fprintf(w, "Chunks Fallen        : %d (%d blocks, energy %d)\n", m.ChunksFallen, m.BlocksFallen, m.FallEnergy)
	fmt.Fprintf(w, "Events Fired         : %d\n", m.EventsFired)
	for _, name := range slices.Sorted(maps.Keys(m.FinalVolumes)) {
		fmt.Fprintf(w, "Volume %-13s : %d\n", name, m.FinalVolumes[name])
	}
}

// Collectors exports per-tick engine activity to Prometheus.
type Collectors struct {
	Ticks         prometheus.Counter
	GroupsRead    prometheus.Counter
	Unstable      prometheus.Gauge
	LiveGroups    prometheus.Gauge
	Transitions   *prometheus.CounterVec
	ChunksFallen  prometheus.Counter
	FallEnergy    prometheus.Counter
	EventsFired   prometheus.Counter
	PendingEvents prometheus.Gauge
}

// NewCollectors creates the collectors and registers them with reg.
func NewCollectors(reg prometheus.Registerer) (*Collectors, error) {
	c := &Collectors{
		Ticks: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "strata",
			Name:      "ticks_total",
			Help:      "Simulation ticks stepped.",
		}),
		GroupsRead: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "strata",
			Subsystem: "fluid",
			Name:      "groups_read_total",
			Help:      "Fluid groups whose flow was computed.",
		}),
		Unstable: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: "strata",
			Subsystem: "fluid",
			Name:      "unstable_groups",
			Help:      "Fluid groups scheduled for the next tick.",
		}),
		LiveGroups: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: "strata",
			Subsystem: "fluid",
			Name:      "live_groups",
			Help:      "Fluid groups not merged or destroyed.",
		}),
		Transitions: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "strata",
			Subsystem: "fluid",
			Name:      "group_transitions_total",
			Help:      "Fluid group lifecycle transitions by kind.",
		}, []string{"transition"}),
		ChunksFallen: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "strata",
			Subsystem: "cavein",
			Name:      "chunks_fallen_total",
			Help:      "Unanchored chunks moved by cave-ins.",
		}),
		FallEnergy: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "strata",
			Subsystem: "cavein",
			Name:      "fall_energy_total",
			Help:      "Summed mass times fall distance of every fallen chunk.",
		}),
		EventsFired: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "strata",
			Name:      "events_fired_total",
			Help:      "Scheduled events executed.",
		}),
		PendingEvents: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: "strata",
			Name:      "pending_events",
			Help:      "Scheduled events not yet executed.",
		}),
	}
	for _, collector := range []prometheus.Collector{
		c.Ticks, c.GroupsRead, c.Unstable, c.LiveGroups, c.Transitions,
		c.ChunksFallen, c.FallEnergy, c.EventsFired, c.PendingEvents,
	} {
		if err := reg.Register(collector); err != nil {
			return nil, fmt.Errorf("registering collector: %w", err)
		}
	}
	return c, nil
}

// Observe records one tick.
func (c *Collectors) Observe(report StepReport, falls []FallingChunk, eventsFired, pendingEvents int) {
	c.Ticks.Inc()
	c.GroupsRead.Add(float64(report.Read))
	c.Unstable.Set(float64(report.Unstable))
	c.LiveGroups.Set(float64(report.Live))
	for _, t := range report.Transitions {
		c.Transitions.WithLabelValues(string(t.Kind)).Inc()
	}
	for _, f := range falls {
		c.ChunksFallen.Inc()
		c.FallEnergy.Add(float64(f.Energy))
	}
	c.EventsFired.Add(float64(eventsFired))
	c.PendingEvents.Set(float64(pendingEvents))
}
