package plan

import "errors"

// Done is returned by Next when a plan is exhausted.
var Done = errors.New("plan exhausted")

// Step is the unit a plan yields: exactly one of Instr or Sub is set.
// A Sub step delegates to a nested plan, which the engine pushes onto its
// plan stack and drains before returning to the parent.
type Step struct {
	Instr Instruction
	Sub   Plan
}

// Plan is a lazy, possibly infinite instruction source.
//
// Next receives the result of dispatching the previously yielded
// instruction (nil on the first call and after sub-plan returns) and
// yields the next step, or Done when exhausted. Implementations are
// driven from the single interpreter goroutine and need no locking.
type Plan interface {
	// Name identifies the plan in run metadata and logs.
	Name() string
	Next(sent any) (Step, error)
}

// Checkpointable plans expose resumable state. Snapshot is taken when the
// engine dispatches a checkpoint instruction; Restore rewinds the plan to
// that point on resume-after-pause.
type Checkpointable interface {
	Snapshot() any
	Restore(snapshot any) error
}

// Rewindable plans can restart from their beginning, so a single plan
// value can be executed more than once. The engine never rewinds a plan
// on its own; callers that reuse a plan must Rewind it between runs.
type Rewindable interface {
	Rewind()
}

// sequence is a finite, materialized plan over a fixed instruction list.
type sequence struct {
	name   string
	instrs []Instruction
	idx    int
}

// Sequence builds a plan that yields the given instructions in order.
// It is checkpointable (snapshot = position) and rewindable.
func Sequence(name string, instrs ...Instruction) Plan {
	return &sequence{name: name, instrs: instrs}
}

func (s *sequence) Name() string { return s.name }

func (s *sequence) Next(any) (Step, error) {
	if s.idx >= len(s.instrs) {
		return Step{}, Done
	}
	step := Step{Instr: s.instrs[s.idx]}
	s.idx++
	return step, nil
}

func (s *sequence) Snapshot() any { return s.idx }

func (s *sequence) Restore(snapshot any) error {
	idx, ok := snapshot.(int)
	if !ok || idx < 0 || idx > len(s.instrs) {
		return errors.New("sequence: invalid snapshot")
	}
	s.idx = idx
	return nil
}

func (s *sequence) Rewind() { s.idx = 0 }

// chain delegates to a list of sub-plans in order.
type chain struct {
	name  string
	plans []Plan
	idx   int
}

// Chain builds a plan that runs each sub-plan to completion in order.
// Like Sequence it is checkpointable: the snapshot is the cursor, and the
// delegated sub-plan carries its own snapshot.
func Chain(name string, plans ...Plan) Plan {
	return &chain{name: name, plans: plans}
}

func (c *chain) Name() string { return c.name }

func (c *chain) Next(any) (Step, error) {
	if c.idx >= len(c.plans) {
		return Step{}, Done
	}
	step := Step{Sub: c.plans[c.idx]}
	c.idx++
	return step, nil
}

func (c *chain) Snapshot() any { return c.idx }

func (c *chain) Restore(snapshot any) error {
	idx, ok := snapshot.(int)
	if !ok || idx < 0 || idx > len(c.plans) {
		return errors.New("chain: invalid snapshot")
	}
	c.idx = idx
	return nil
}

func (c *chain) Rewind() {
	c.idx = 0
	for _, p := range c.plans {
		if r, ok := p.(Rewindable); ok {
			r.Rewind()
		}
	}
}

// funcPlan adapts a closure into a Plan. The closure owns its iteration
// state; it is the escape hatch for adaptive plans that branch on sent
// values read back from the engine.
type funcPlan struct {
	name string
	fn   func(sent any) (Step, error)
}

// Func wraps fn as a Plan named name.
func Func(name string, fn func(sent any) (Step, error)) Plan {
	return &funcPlan{name: name, fn: fn}
}

func (f *funcPlan) Name() string                { return f.name }
func (f *funcPlan) Next(sent any) (Step, error) { return f.fn(sent) }
