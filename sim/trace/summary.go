package trace

// TraceSummary aggregates statistics from a SimulationTrace.
type TraceSummary struct {
	Ticks            int
	Transitions      map[string]int // transition name → count
	Falls            int
	BlocksFallen     int
	TotalFallEnergy  uint64
	MaxFallDistance  int
	PeakUnstable     int
	SettledAt        int64 // first traced tick from which no group stayed unstable; -1 if never
	FinalFluidVolume map[string]int
}

// Summarize computes aggregate statistics from a SimulationTrace.
// Safe for nil or empty traces (returns zero-value fields).
func Summarize(st *SimulationTrace) *TraceSummary {
	summary := &TraceSummary{
		Transitions:      make(map[string]int),
		FinalFluidVolume: make(map[string]int),
		SettledAt:        -1,
	}
	if st == nil {
		return summary
	}

	for _, g := range st.Groups {
		summary.Transitions[g.Transition]++
	}
	summary.Falls = len(st.Falls)
	for _, f := range st.Falls {
		summary.BlocksFallen += f.Blocks
		summary.TotalFallEnergy += f.Energy
		summary.MaxFallDistance = max(summary.MaxFallDistance, f.Distance)
	}

	summary.Ticks = len(st.Ticks)
	for _, t := range st.Ticks {
		summary.PeakUnstable = max(summary.PeakUnstable, t.Unstable)
		switch {
		case t.Unstable == 0 && summary.SettledAt < 0:
			summary.SettledAt = t.Tick
		case t.Unstable != 0:
			summary.SettledAt = -1
		}
	}
	if len(st.Ticks) > 0 {
		for name, v := range st.Ticks[len(st.Ticks)-1].FluidVolumes {
			summary.FinalFluidVolume[name] = v
		}
	}

	return summary
}
