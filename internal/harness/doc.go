// Package harness runs multi-datasite scenarios against the real lifecycle
// engine.
//
// A scenario describes a set of datasites sharing one sync root and a flow
// of actions taken by them in turn: invite, join, leave, start and pass.
// Passes run the full engine with a fake clock, so steps waiting on a
// neighbour time out immediately and deterministically. Between actions
// nothing else touches the tree, which makes the flow a faithful model of
// the sync layer delivering every write before the next datasite wakes up.
//
// Each action leaves one TraceEvent. Expect clauses check an action's own
// event; assertions check the final tree, the trace as a whole, and the
// datasites' run ledgers. RunWithGolden compares the trace against
// testdata/golden/<name>.golden.
package harness
