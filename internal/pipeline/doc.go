// Package pipeline drives a project's steps for one local identity.
//
// A role-tagged pipeline is a ring: workflow.datasites lists the
// participants in order, and every position held by the local identity
// runs the foreach body, with the first and last overrides merged in at the
// two ends. Neighbour variables wrap, so position 0's prev_datasite is the
// last participant.
//
// Positions run strictly in order. Each is wrapped in step.Retry; a
// timeout or step failure is logged and recorded in the Report, then the
// driver moves on to the next position. Only a malformed pipeline makes
// Run return an error.
package pipeline
