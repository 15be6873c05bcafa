package engine

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/seqlab/beamrun/internal/device"
	"github.com/seqlab/beamrun/internal/document"
	"github.com/seqlab/beamrun/internal/plan"
)

// handlerFunc executes one command. The returned value is fed back into
// the plan as the sent value of the next pull.
type handlerFunc func(ctx context.Context, in plan.Instruction) (any, error)

// buildDispatchTable maps every command to its handler. Each command maps
// 1:1; an instruction with an unknown command is a PlanError.
func (e *Engine) buildDispatchTable() map[plan.Command]handlerFunc {
	return map[plan.Command]handlerFunc{
		plan.CmdOpenRun:    e.handleOpenRun,
		plan.CmdCloseRun:   e.handleCloseRun,
		plan.CmdSet:        e.handleSet,
		plan.CmdTrigger:    e.handleTrigger,
		plan.CmdRead:       e.handleRead,
		plan.CmdStage:      e.handleStage,
		plan.CmdUnstage:    e.handleUnstage,
		plan.CmdWait:       e.handleWait,
		plan.CmdSleep:      e.handleSleep,
		plan.CmdCreate:     e.handleCreate,
		plan.CmdSave:       e.handleSave,
		plan.CmdCheckpoint: e.handleCheckpoint,
		plan.CmdPause:      e.handlePause,
	}
}

func (e *Engine) dispatch(ctx context.Context, in plan.Instruction) (any, error) {
	h, ok := e.handlers[in.Command]
	if !ok {
		return nil, &PlanError{Command: in.Command, Message: "unknown command"}
	}
	if target := in.Target(); target != nil {
		slog.Debug("dispatch", "command", in.Command, "target", target.Name(), "group", in.Group)
	} else {
		slog.Debug("dispatch", "command", in.Command, "group", in.Group)
	}
	return h(ctx, in)
}

func (e *Engine) handleOpenRun(_ context.Context, in plan.Instruction) (any, error) {
	if e.run != nil {
		return nil, &StateError{Message: "open_run while run " + e.run.id + " is open"}
	}
	var md map[string]any
	if raw, ok := in.Kwargs["metadata"]; ok && raw != nil {
		md, ok = raw.(map[string]any)
		if !ok {
			return nil, &PlanError{Command: in.Command, Message: "metadata must be a mapping"}
		}
	}
	r := e.openRun(md)
	return r.id, nil
}

func (e *Engine) handleCloseRun(ctx context.Context, in plan.Instruction) (any, error) {
	if e.run == nil {
		return nil, &StateError{Message: "close_run with no open run"}
	}
	if e.run.bundle != nil {
		return nil, &PlanError{Command: in.Command, Message: "close_run with an open event bundle"}
	}

	// Implicit drain: a run never closes with unobserved statuses.
	if err := e.waitAllGroups(ctx); err != nil {
		return nil, err
	}

	exit := document.ExitSuccess
	if raw, ok := in.Kwargs["exit_status"]; ok {
		s, ok := raw.(string)
		if !ok {
			return nil, &PlanError{Command: in.Command, Message: "exit_status must be a string"}
		}
		switch document.ExitStatus(s) {
		case document.ExitSuccess, document.ExitAbort, document.ExitFail:
			exit = document.ExitStatus(s)
		default:
			return nil, &PlanError{Command: in.Command, Message: fmt.Sprintf("unknown exit_status %q", s)}
		}
	}
	reason, _ := in.Kwargs["reason"].(string)

	id := e.run.id
	e.closeRun(exit, reason)
	return id, nil
}

func (e *Engine) handleSet(ctx context.Context, in plan.Instruction) (any, error) {
	target := in.Target()
	if target == nil || len(in.Args) == 0 {
		return nil, &PlanError{Command: in.Command, Message: "set requires a target and a value"}
	}
	s, err := plan.RequireSettable(target)
	if err != nil {
		return nil, &PlanError{Command: in.Command, Message: err.Error()}
	}
	st := s.Set(ctx, in.Args[0])
	e.register(in.Group, st)
	return st, nil
}

func (e *Engine) handleTrigger(ctx context.Context, in plan.Instruction) (any, error) {
	target := in.Target()
	if target == nil {
		return nil, &PlanError{Command: in.Command, Message: "trigger requires a target"}
	}
	tr, err := plan.RequireTriggerable(target)
	if err != nil {
		return nil, &PlanError{Command: in.Command, Message: err.Error()}
	}
	st := tr.Trigger(ctx)
	e.register(in.Group, st)
	return st, nil
}

func (e *Engine) handleRead(ctx context.Context, in plan.Instruction) (any, error) {
	if e.run == nil {
		return nil, &StateError{Message: "read with no open run"}
	}
	if len(in.Targets) == 0 {
		return nil, &PlanError{Command: in.Command, Message: "read requires at least one device"}
	}

	readings := make(map[string]device.Reading)
	keys := make(map[string]document.DataKey)
	for _, target := range in.Targets {
		r, err := plan.RequireReadable(target)
		if err != nil {
			return nil, &PlanError{Command: in.Command, Message: err.Error()}
		}
		got, err := r.Read(ctx)
		if err != nil {
			return nil, &DeviceError{Failures: []DeviceFailure{{Device: target.Name(), Err: err}}}
		}
		desc, err := r.Describe()
		if err != nil {
			return nil, &DeviceError{Failures: []DeviceFailure{{Device: target.Name(), Err: err}}}
		}
		for name, reading := range got {
			readings[name] = reading
		}
		for name, dk := range desc {
			keys[name] = dk
		}
	}

	if e.run.bundle != nil {
		e.run.bundle.add(readings, keys)
		return readings, nil
	}

	// Bare read outside a bundle emits a single-row event.
	data := make(map[string]any, len(readings))
	timestamps := make(map[string]time.Time, len(readings))
	for name, r := range readings {
		data[name] = r.Value
		timestamps[name] = r.Timestamp
	}
	if err := e.emitEvent(plan.DefaultStream, data, timestamps, keys); err != nil {
		return nil, err
	}
	return readings, nil
}

func (e *Engine) handleStage(ctx context.Context, in plan.Instruction) (any, error) {
	target := in.Target()
	if target == nil {
		return nil, &PlanError{Command: in.Command, Message: "stage requires a target"}
	}
	s, err := plan.RequireStageable(target)
	if err != nil {
		return nil, &PlanError{Command: in.Command, Message: err.Error()}
	}
	staged, err := s.Stage(ctx)
	if err != nil {
		return nil, &DeviceError{Failures: []DeviceFailure{{Device: target.Name(), Err: err}}}
	}
	if len(staged) > 0 {
		e.staged = append(e.staged, s)
	}
	return staged, nil
}

func (e *Engine) handleUnstage(ctx context.Context, in plan.Instruction) (any, error) {
	target := in.Target()
	if target == nil {
		return nil, &PlanError{Command: in.Command, Message: "unstage requires a target"}
	}
	s, err := plan.RequireStageable(target)
	if err != nil {
		return nil, &PlanError{Command: in.Command, Message: err.Error()}
	}
	unstaged, err := s.Unstage(ctx)
	if err != nil {
		return nil, &DeviceError{Failures: []DeviceFailure{{Device: target.Name(), Err: err}}}
	}
	for i := len(e.staged) - 1; i >= 0; i-- {
		if e.staged[i] == s {
			e.staged = append(e.staged[:i], e.staged[i+1:]...)
			break
		}
	}
	return unstaged, nil
}

func (e *Engine) handleWait(ctx context.Context, in plan.Instruction) (any, error) {
	return nil, e.waitGroup(ctx, in.Group)
}

func (e *Engine) handleSleep(ctx context.Context, in plan.Instruction) (any, error) {
	if len(in.Args) == 0 {
		return nil, &PlanError{Command: in.Command, Message: "sleep requires a duration"}
	}
	d, ok := in.Args[0].(time.Duration)
	if !ok {
		return nil, &PlanError{Command: in.Command, Message: fmt.Sprintf("sleep duration has type %T", in.Args[0])}
	}

	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-timer.C:
		return nil, nil
	case reason := <-e.pauseCh:
		// Abandon the sleep; it replays in full from the checkpoint.
		e.pauseReason = reason
		return nil, errPauseRequested
	case reason := <-e.abortCh:
		e.abortReason = reason
		return nil, errAbortRequested
	case <-ctx.Done():
		e.abortReason = ctx.Err().Error()
		return nil, errAbortRequested
	}
}

func (e *Engine) handleCreate(_ context.Context, in plan.Instruction) (any, error) {
	if e.run == nil {
		return nil, &StateError{Message: "create with no open run"}
	}
	if e.run.bundle != nil {
		return nil, &PlanError{Command: in.Command, Message: "create while an event bundle is open"}
	}
	stream := plan.DefaultStream
	if len(in.Args) > 0 {
		s, ok := in.Args[0].(string)
		if !ok || s == "" {
			return nil, &PlanError{Command: in.Command, Message: "stream name must be a non-empty string"}
		}
		stream = s
	}
	e.run.bundle = newEventBundle(stream)
	return nil, nil
}

func (e *Engine) handleSave(_ context.Context, in plan.Instruction) (any, error) {
	if e.run == nil {
		return nil, &StateError{Message: "save with no open run"}
	}
	b := e.run.bundle
	if b == nil {
		return nil, &PlanError{Command: in.Command, Message: "save without create"}
	}
	if err := e.emitEvent(b.stream, b.data, b.timestamps, b.keys); err != nil {
		return nil, err
	}
	e.run.bundle = nil
	return nil, nil
}

func (e *Engine) handleCheckpoint(_ context.Context, _ plan.Instruction) (any, error) {
	if e.run != nil && e.run.bundle != nil {
		return nil, &PlanError{Command: plan.CmdCheckpoint, Message: "checkpoint inside an open event bundle"}
	}

	cp := &checkpointState{
		stack: make([]plan.Plan, len(e.stack)),
	}
	copy(cp.stack, e.stack)
	for _, p := range e.stack {
		if c, ok := p.(plan.Checkpointable); ok {
			cp.snapshots = append(cp.snapshots, checkpointEntry{p: c, snap: c.Snapshot()})
		}
	}
	e.cp = cp
	e.markCheckpoint()
	slog.Debug("checkpoint recorded", "stack_depth", len(cp.stack))
	return nil, nil
}

func (e *Engine) handlePause(_ context.Context, in plan.Instruction) (any, error) {
	reason, _ := in.Kwargs["reason"].(string)
	e.requestPause(reason)
	return nil, errPauseRequested
}
