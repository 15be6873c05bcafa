// Package plan defines the instruction set the run engine interprets and
// the Plan abstraction that produces instructions.
//
// A Plan is an explicit pull-based iterator: the engine calls Next with the
// result of dispatching the previous instruction ("sent value"), and the
// plan returns either the next instruction or a sub-plan to delegate to.
// Plans are lazy and may be infinite; they are never materialized in full
// by the engine.
//
// Capability mismatches (e.g. reading a device that is not Readable) are
// rejected at plan construction time via the Require helpers, so a plan
// handed to the engine only references devices that implement the
// capabilities its instructions use.
package plan
