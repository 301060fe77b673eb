// Package trace provides step-trace recording for fluid and cave-in analysis.
// It has no dependencies on sim/ and stores only plain data types.
package trace

// TickRecord captures the outcome of one simulation tick.
type TickRecord struct {
	Tick          int64          `json:"tick"`
	GroupsRead    int            `json:"groups_read"`
	Unstable      int            `json:"unstable"`
	LiveGroups    int            `json:"live_groups"`
	EventsFired   int            `json:"events_fired"`
	SurfaceBlocks int            `json:"surface_blocks"`          // fluid blocks open to the sky
	FluidVolumes  map[string]int `json:"fluid_volumes,omitempty"` // fluid name → placed volume plus excess
}

// GroupRecord captures one fluid-group lifecycle transition.
type GroupRecord struct {
	Tick       int64  `json:"tick"`
	Group      int32  `json:"group"`
	Fluid      string `json:"fluid"`
	Transition string `json:"transition"`
}

// FallRecord captures one chunk falling in a cave-in.
type FallRecord struct {
	Tick            int64  `json:"tick"`
	Blocks          int    `json:"blocks"`
	Distance        int    `json:"distance"`
	Energy          uint64 `json:"energy"`
	AbsorbingImpact int    `json:"absorbing_impact"` // blocks at the point of impact, both sides
	LowestBlock     int32  `json:"lowest_block"`
}
