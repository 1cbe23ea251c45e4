// Package lifecycle discovers projects in the synced tree and advances them
// through invite, join, running and complete.
//
// Lifecycle state is positional: the directory segment a descriptor or join
// marker sits under is its state. A transition is a move between segments.
//
// The package is split the way the state machine wants to be tested:
//
//   - Observe reads the tree into a Snapshot of facts (which folders and
//     markers exist, whether a completion pipe is ready).
//   - Plan is a pure function from a Snapshot to the Transitions that
//     should run, each a list of filesystem Ops.
//   - Apply executes the Ops. Moves are two-phase (stage beside the
//     destination, verify, publish by rename, then delete the source), so a
//     pass that dies half-way leaves either the old state or the new one
//     plus a hidden staging directory, and the next pass finishes the job.
//
// Engine.Pass strings these together with the pipeline driver once per
// scheduling tick.
package lifecycle
