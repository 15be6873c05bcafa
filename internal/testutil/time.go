// Package testutil provides deterministic time and sequencing helpers for
// tests and the scenario harness.
package testutil

import (
	"sync"
	"time"
)

// Epoch is the reference instant used by deterministic time sources.
var Epoch = time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC)

// FrozenTime returns a clock function that always reports Epoch.
// Use with engine.WithNowFunc for byte-stable document output.
func FrozenTime() func() time.Time {
	return func() time.Time { return Epoch }
}

// SteppingTime returns a clock function that starts at start and advances
// by step on every call. Successive documents get distinct, reproducible
// timestamps.
//
// Thread-safety: safe for concurrent use via internal mutex.
func SteppingTime(start time.Time, step time.Duration) func() time.Time {
	var mu sync.Mutex
	next := start
	return func() time.Time {
		mu.Lock()
		defer mu.Unlock()
		now := next
		next = next.Add(step)
		return now
	}
}
