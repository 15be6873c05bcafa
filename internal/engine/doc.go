// Package engine implements the run engine: a single-writer interpreter
// over a lazy instruction stream with device side effects and an ordered
// document output stream.
//
// The interpreter loop pulls one instruction at a time from the top of a
// plan stack, dispatches it through a command table, and feeds the
// dispatch result back into the plan before pulling the next instruction.
// Sub-plans are pushed onto the stack and drained in place, so composed
// plans stay lazy end to end.
//
// Thread-safety model:
//   - Run must be called from exactly one goroutine at a time
//   - Pause, Resume, Abort, Subscribe, Unsubscribe are safe from any
//     goroutine; they communicate with the interpreter through buffered
//     control channels consumed at suspension points
//   - all run state, the pending-group table, and the plan stack are
//     mutated only inside the interpreter goroutine
//   - devices resolve Status futures from their own goroutines; the
//     interpreter observes completion only through Done channels
//
// INVARIANTS:
//   - documents reach subscribers in strict causal order: RunStart first,
//     Descriptor before its Events, Event seq_num strictly increasing,
//     RunStop last
//   - the engine always returns to the idle state, whatever happened:
//     cleanup cancels outstanding statuses best-effort, unstages staged
//     devices in LIFO order, and seals any open run
package engine
