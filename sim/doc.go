// Package sim provides the voxel fluid and cave-in engine for strata-sim.
//
// # Reading Guide
//
// Start with these files to understand the engine:
//   - grid.go, ledger.go: the block grid and the per-block fluid ledger
//   - fluid_group.go: one connected body of a single fluid and its read/write step
//   - fluid_groups.go: the step driver that runs every group through its phases
//   - simulation.go: the tick loop tying events, fluids, mist and cave-ins together
//
// # Architecture
//
// A tick runs in a fixed order:
//  1. Scheduled events due at the current tick fire (solid changes, fluid sources,
//     mist checks), ordered by event_heap.go.
//  2. FluidGroups.DoStep computes every unstable group's flow in parallel, then
//     writes, merges and splits them serially in group-ID order.
//  3. CaveIn.Step drops every unsupported chunk of solid blocks registered since
//     the previous tick.
//
// Flow within a group is driven by two priority queues (fill_queue.go and
// drain_queue.go, sharing queue.go): the lowest emptiest blocks fill first and
// the highest fullest blocks drain first, one priority band at a time.
//
// Sub-packages:
//   - sim/scenario/: YAML scenario loading and grid construction
//   - sim/trace/: per-tick, group and fall records with compressed JSONL output
//
// # Key Interfaces
//
//   - BlockLedger: the fluid view of the grid used by the flow queues
//   - MistSpawner: lets fluid groups spawn mist without knowing the scheduler
//   - Event: a scheduled change executed against the Simulation at its tick
//   - Terrain: lets the cave-in engine move solids while keeping fluids consistent
package sim
