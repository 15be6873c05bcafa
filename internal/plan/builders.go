package plan

import (
	"errors"

	"github.com/seqlab/beamrun/internal/device"
)

// stepper is the lazy backbone of the stock plan builders: a preamble, a
// per-step instruction batch generated on demand, and a postamble. Steps
// are never materialized ahead of the interpreter pulling them.
//
// numSteps < 0 means an unbounded plan; the engine's step quota is the
// only brake on those.
type stepper struct {
	name     string
	pre      []Instruction
	post     []Instruction
	numSteps int
	step     func(i int) []Instruction

	phase int // 0 preamble, 1 steps, 2 postamble, 3 done
	i     int
	buf   []Instruction
	pos   int
}

func (p *stepper) Name() string { return p.name }

func (p *stepper) Next(any) (Step, error) {
	for {
		if p.pos < len(p.buf) {
			in := p.buf[p.pos]
			p.pos++
			return Step{Instr: in}, nil
		}
		switch p.phase {
		case 0:
			p.buf, p.pos, p.phase = p.pre, 0, 1
		case 1:
			if p.numSteps >= 0 && p.i >= p.numSteps {
				p.buf, p.pos, p.phase = p.post, 0, 2
				continue
			}
			p.buf, p.pos = p.step(p.i), 0
			p.i++
		case 2:
			p.phase = 3
		default:
			return Step{}, Done
		}
	}
}

// stepperSnapshot captures resumable stepper state. The in-flight batch is
// copied so the remaining instructions after a checkpoint replay verbatim.
type stepperSnapshot struct {
	phase int
	i     int
	buf   []Instruction
	pos   int
}

func (p *stepper) Snapshot() any {
	buf := make([]Instruction, len(p.buf))
	copy(buf, p.buf)
	return stepperSnapshot{phase: p.phase, i: p.i, buf: buf, pos: p.pos}
}

func (p *stepper) Restore(snapshot any) error {
	snap, ok := snapshot.(stepperSnapshot)
	if !ok {
		return errors.New("stepper: invalid snapshot")
	}
	p.phase, p.i, p.pos = snap.phase, snap.i, snap.pos
	p.buf = make([]Instruction, len(snap.buf))
	copy(p.buf, snap.buf)
	return nil
}

func (p *stepper) Rewind() {
	p.phase, p.i, p.pos = 0, 0, 0
	p.buf = nil
}

// triggerGroup is the synchronization group used for detector triggers.
const triggerGroup = "trigger"

// motionGroup is the synchronization group used for motor moves.
const motionGroup = "motion"

// Count acquires num identical shots from the given detectors.
//
// Each shot records a checkpoint, triggers every triggerable detector in
// parallel, waits for the group, and saves one bundled event row on the
// primary stream. Stageable detectors are staged up front and unstaged in
// reverse at the end.
func Count(detectors []device.Readable, num int) Plan {
	names := make([]any, len(detectors))
	for i, d := range detectors {
		names[i] = d.Name()
	}

	pre := []Instruction{OpenRun(map[string]any{
		"plan_name": "count",
		"num":       num,
		"detectors": names,
	})}
	var post []Instruction
	for _, d := range detectors {
		if s, ok := d.(device.Stageable); ok {
			pre = append(pre, Stage(s))
			post = append([]Instruction{Unstage(s)}, post...)
		}
	}
	post = append(post, CloseRun())

	return &stepper{
		name:     "count",
		pre:      pre,
		post:     post,
		numSteps: num,
		step: func(int) []Instruction {
			batch := []Instruction{Checkpoint(), Create(DefaultStream)}
			batch = append(batch, triggerAll(detectors)...)
			batch = append(batch, Read(detectors...), Save())
			return batch
		},
	}
}

// Scan moves a motor through num evenly spaced positions from start to
// stop, acquiring the detectors at each position. The motor's own reading
// is included in every event row when the motor is readable.
func Scan(motor device.Settable, detectors []device.Readable, start, stop float64, num int) Plan {
	names := make([]any, len(detectors))
	for i, d := range detectors {
		names[i] = d.Name()
	}

	readables := detectors
	if r, ok := motor.(device.Readable); ok {
		readables = append([]device.Readable{r}, detectors...)
	}

	pre := []Instruction{OpenRun(map[string]any{
		"plan_name": "scan",
		"motor":     motor.Name(),
		"detectors": names,
		"num":       num,
		"start":     start,
		"stop":      stop,
	})}
	var post []Instruction
	for _, d := range detectors {
		if s, ok := d.(device.Stageable); ok {
			pre = append(pre, Stage(s))
			post = append([]Instruction{Unstage(s)}, post...)
		}
	}
	if s, ok := motor.(device.Stageable); ok {
		pre = append(pre, Stage(s))
		post = append([]Instruction{Unstage(s)}, post...)
	}
	post = append(post, CloseRun())

	return &stepper{
		name:     "scan",
		pre:      pre,
		post:     post,
		numSteps: num,
		step: func(i int) []Instruction {
			pos := start
			if num > 1 {
				pos = start + (stop-start)*float64(i)/float64(num-1)
			}
			batch := []Instruction{
				Checkpoint(),
				Set(motor, pos, motionGroup),
				Wait(motionGroup),
				Create(DefaultStream),
			}
			batch = append(batch, triggerAll(detectors)...)
			batch = append(batch, Read(readables...), Save())
			return batch
		},
	}
}

// triggerAll triggers every triggerable detector under triggerGroup and
// waits once for the whole group. Detectors without the capability (plain
// signals) contribute nothing to the group.
func triggerAll(detectors []device.Readable) []Instruction {
	var batch []Instruction
	triggered := false
	for _, d := range detectors {
		if tr, ok := d.(device.Triggerable); ok {
			batch = append(batch, Trigger(tr, triggerGroup))
			triggered = true
		}
	}
	if triggered {
		batch = append(batch, Wait(triggerGroup))
	}
	return batch
}
