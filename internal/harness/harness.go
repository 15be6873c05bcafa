// Package harness executes acquisition scenarios deterministically and
// compares their document traces against golden files.
//
// A scenario pins every source of nondeterminism: document ids come from
// a sequential generator, document times from a stepping clock, and the
// simulated devices complete instantly unless the scenario says
// otherwise. Two executions of the same scenario therefore produce
// identical traces, which is what makes golden comparison meaningful.
package harness

import (
	"context"
	"time"

	"github.com/seqlab/beamrun/internal/document"
	"github.com/seqlab/beamrun/internal/engine"
	"github.com/seqlab/beamrun/internal/plan"
	"github.com/seqlab/beamrun/internal/testutil"
)

// Scenario is one deterministic engine execution.
type Scenario struct {
	// Name identifies the scenario and its golden file.
	Name string

	// Plan is the plan to execute.
	Plan plan.Plan

	// Options are appended to the deterministic defaults, so a scenario
	// can, for example, tighten the step quota.
	Options []engine.Option
}

// Result is the outcome of a scenario execution.
type Result struct {
	RunID     string
	Err       error
	Documents []document.Document
}

// Run executes the scenario on a fresh engine with deterministic ids and
// timestamps. The returned Result always carries the documents emitted,
// even when the run failed partway.
func Run(s *Scenario) *Result {
	rec := &collector{}

	opts := []engine.Option{
		engine.WithIDGenerator(engine.NewPrefixGenerator("doc")),
		engine.WithNowFunc(testutil.SteppingTime(testutil.Epoch, time.Second)),
	}
	opts = append(opts, s.Options...)

	e := engine.New(opts...)
	runID, err := e.Run(context.Background(), s.Plan, rec)
	return &Result{RunID: runID, Err: err, Documents: rec.docs}
}

type collector struct {
	docs []document.Document
}

func (c *collector) OnDocument(_ document.Kind, doc document.Document) error {
	c.docs = append(c.docs, doc)
	return nil
}
