// Package document defines the document model emitted by the run engine.
//
// This package contains type definitions and serialization only. All other
// internal packages import document; document imports nothing internal. This
// keeps the document model the foundational layer with no circular
// dependencies.
//
// A run is externalized as an ordered stream of four document kinds:
//
//   - RunStart: opens a run, carries metadata
//   - Descriptor: declares the data keys of an event stream
//   - Event: one row of readings, seq-numbered per run
//   - RunStop: seals the run with a terminal exit status
//
// Ordering invariants (enforced by the engine, verifiable via Validate):
//   - RunStart precedes every other document of its run
//   - each Descriptor precedes the Events referencing it
//   - Event seq_num starts at 1 and is strictly increasing per run
//   - RunStop is the final document of its run
package document
