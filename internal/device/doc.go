// Package device defines the capability interfaces the run engine drives and
// a catalog of simulated devices for tests and the CLI.
//
// The engine never inspects device internals. It sees devices only through
// the capability interfaces (Readable, Settable, Triggerable, Stageable) and
// through Status futures returned by asynchronous operations. Composite
// devices expose their parts via Children and are walked by explicit tree
// traversal.
//
// Thread-safety model:
//   - capability methods are called from the engine's interpreter goroutine
//   - a device may resolve its Status futures from internal goroutines;
//     Future.Resolve is safe from any goroutine
//   - the engine observes completion only through Status.Done channels,
//     never through callbacks into engine state
package device
