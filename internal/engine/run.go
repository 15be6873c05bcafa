package engine

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/seqlab/beamrun/internal/device"
	"github.com/seqlab/beamrun/internal/document"
	"github.com/seqlab/beamrun/internal/plan"
)

// checkpointState is the resumable point recorded by a checkpoint
// instruction: the plan stack at that moment plus each plan's own
// snapshot, for plans that expose one.
type checkpointState struct {
	stack     []plan.Plan
	snapshots []checkpointEntry
}

type checkpointEntry struct {
	p    plan.Checkpointable
	snap any
}

// Run interprets p to completion, fanning emitted documents out to the
// permanent subscribers plus subs (which are registered for the duration
// of this invocation only). Blocks until the plan is exhausted, the run
// is aborted, or a fatal error unwinds it.
//
// Returns the id of the last run opened by the plan, which is set even
// when the returned error is non-nil if a run had been opened.
func (e *Engine) Run(ctx context.Context, p plan.Plan, subs ...Subscriber) (string, error) {
	e.mu.Lock()
	if e.state != StateIdle {
		e.mu.Unlock()
		return "", &StateError{Message: "engine is busy, state is " + e.state.String()}
	}
	e.setStateLocked(StateRunning)
	e.hasCheckpoint = false
	e.mu.Unlock()

	tokens := make([]Token, 0, len(subs))
	for _, s := range subs {
		tokens = append(tokens, e.Subscribe(s))
	}
	defer func() {
		for _, tok := range tokens {
			e.Unsubscribe(tok)
		}
	}()

	// Reset interpreter state and drop any stale control requests from a
	// previous invocation.
	e.stack = []plan.Plan{p}
	e.rootName = p.Name()
	e.run = nil
	e.groups = make(map[string][]device.Status)
	e.staged = nil
	e.steps = 0
	e.cp = nil
	e.lastRunID = ""
	e.pauseReason = ""
	e.abortReason = ""
	drainString(e.pauseCh)
	drainString(e.abortCh)
	drainSignal(e.resumeCh)

	slog.Info("run starting", "plan", p.Name())
	if err := e.loop(ctx); err != nil {
		return e.lastRunID, err
	}
	e.setState(StateIdle)
	slog.Info("run complete", "run_id", e.lastRunID, "steps", e.steps)
	return e.lastRunID, nil
}

// loop is the interpreter: pull, dispatch, feed back, repeat.
func (e *Engine) loop(ctx context.Context) error {
	var sent any
	for len(e.stack) > 0 {
		switch ctrl := e.checkControl(ctx); {
		case ctrl == nil:
		case errors.Is(ctrl, errPauseRequested):
			if err := e.pauseAndWait(ctx); err != nil {
				return err
			}
			sent = nil
			continue
		case errors.Is(ctrl, errAbortRequested):
			return e.doAbort(ctx)
		default:
			return e.doAbortFor(ctx, ctrl)
		}

		top := e.stack[len(e.stack)-1]
		step, err := top.Next(sent)
		sent = nil
		if errors.Is(err, plan.Done) {
			e.stack = e.stack[:len(e.stack)-1]
			continue
		}
		if err != nil {
			return e.fail(ctx, fmt.Errorf("plan %s: %w", top.Name(), err))
		}
		if step.Sub != nil {
			e.stack = append(e.stack, step.Sub)
			continue
		}

		e.steps++
		if e.maxSteps > 0 && e.steps > e.maxSteps {
			return e.fail(ctx, &StepsExceededError{Steps: e.steps, Limit: e.maxSteps})
		}

		result, derr := e.dispatch(ctx, step.Instr)
		switch {
		case derr == nil:
			sent = result
		case errors.Is(derr, errPauseRequested):
			if err := e.pauseAndWait(ctx); err != nil {
				return err
			}
		case errors.Is(derr, errAbortRequested):
			return e.doAbort(ctx)
		default:
			return e.fail(ctx, derr)
		}
	}

	// Plan exhausted: the implicit end-of-plan drain surfaces any
	// failures that were fired but never waited on.
	if err := e.waitAllGroups(ctx); err != nil {
		switch {
		case errors.Is(err, errAbortRequested):
			return e.doAbort(ctx)
		default:
			return e.fail(ctx, err)
		}
	}
	if e.run != nil {
		return e.fail(ctx, &PlanError{Message: "plan exhausted with an open run"})
	}
	return nil
}

// checkControl polls the control channels without blocking. Returns nil,
// a pause/abort sentinel, or the context error.
func (e *Engine) checkControl(ctx context.Context) error {
	select {
	case <-ctx.Done():
		return ctx.Err()
	case reason := <-e.abortCh:
		e.abortReason = reason
		return errAbortRequested
	case reason := <-e.pauseCh:
		e.pauseReason = reason
		return errPauseRequested
	default:
		return nil
	}
}

// pauseAndWait completes the PAUSING -> PAUSED transition: drain every
// pending group so resume never races a stale completion, then block
// until Resume, Abort, or context cancellation.
func (e *Engine) pauseAndWait(ctx context.Context) error {
	e.mu.Lock()
	if e.state == StateRunning {
		e.setStateLocked(StatePausing)
	}
	e.mu.Unlock()
	slog.Info("pausing", "reason", e.pauseReason)

	if err := e.drainForPause(ctx); err != nil {
		switch {
		case errors.Is(err, errAbortRequested):
			return e.doAbort(ctx)
		default:
			return e.doAbortFor(ctx, err)
		}
	}

	e.setState(StatePaused)
	slog.Info("paused", "reason", e.pauseReason)

	select {
	case <-ctx.Done():
		return e.doAbortFor(ctx, ctx.Err())
	case reason := <-e.abortCh:
		e.abortReason = reason
		return e.doAbort(ctx)
	case <-e.resumeCh:
		if err := e.restoreCheckpoint(); err != nil {
			e.setState(StateRunning)
			return e.fail(ctx, err)
		}
		e.setState(StateRunning)
		slog.Info("resumed from checkpoint")
		return nil
	}
}

// drainForPause waits for every outstanding status to resolve, success or
// failure. Failures are not raised here: they stay recorded in the group
// table and are observed by the wait instructions the resumed plan
// replays.
func (e *Engine) drainForPause(ctx context.Context) error {
	for group, statuses := range e.groups {
		for _, st := range statuses {
			select {
			case <-st.Done():
			case reason := <-e.abortCh:
				e.abortReason = reason
				return errAbortRequested
			case <-ctx.Done():
				return ctx.Err()
			}
		}
		slog.Debug("group drained for pause", "group", group)
	}
	return nil
}

// restoreCheckpoint rewinds the plan stack to the last checkpoint. Any
// open event bundle is dropped (its reads replay). The pause drain left
// every status resolved: failures stay in the group table so the wait
// instructions the resumed plan replays still observe them, while
// successes are dropped because their instructions may re-issue.
func (e *Engine) restoreCheckpoint() error {
	if e.cp == nil {
		return &StateError{Message: "resume signalled without a checkpoint"}
	}
	for _, entry := range e.cp.snapshots {
		if err := entry.p.Restore(entry.snap); err != nil {
			return &StateError{Message: "checkpoint restore failed: " + err.Error()}
		}
	}
	e.stack = make([]plan.Plan, len(e.cp.stack))
	copy(e.stack, e.cp.stack)
	kept := make(map[string][]device.Status)
	for group, statuses := range e.groups {
		for _, st := range statuses {
			if st.Err() != nil {
				kept[group] = append(kept[group], st)
			}
		}
	}
	e.groups = kept
	if e.run != nil {
		e.run.bundle = nil
	}
	return nil
}

// doAbort unwinds after an abort request.
func (e *Engine) doAbort(ctx context.Context) error {
	return e.doAbortFor(ctx, nil)
}

// doAbortFor unwinds after an abort request or context cancellation.
// cause (may be nil) is recorded in the RunStop reason alongside the
// requested abort reason.
func (e *Engine) doAbortFor(ctx context.Context, cause error) error {
	reason := e.abortReason
	if reason == "" && cause != nil {
		reason = cause.Error()
	}
	slog.Warn("aborting run", "reason", reason)
	e.setState(StateAborting)
	e.cleanup(ctx, document.ExitAbort, reason)
	e.setState(StateIdle)
	return &AbortedError{Reason: reason}
}

// fail unwinds after a fatal interpreter error: identical cleanup to
// abort but with exit status "fail", then the error propagates to the
// Run caller.
func (e *Engine) fail(ctx context.Context, cause error) error {
	slog.Error("run failed", "error", cause)
	e.setState(StateFailed)
	e.cleanup(ctx, document.ExitFail, cause.Error())
	e.setState(StateIdle)
	return cause
}

// cleanup returns the engine to a quiescent state: cancel outstanding
// statuses best-effort, unstage staged devices in LIFO order, and seal
// any open run. Uses a non-cancelable context so cleanup still runs when
// the caller's context is already dead.
func (e *Engine) cleanup(ctx context.Context, exit document.ExitStatus, reason string) {
	cleanupCtx := context.WithoutCancel(ctx)

	for group, statuses := range e.groups {
		for _, st := range statuses {
			if c, ok := st.(device.Cancelable); ok {
				c.Cancel()
			}
		}
		slog.Debug("group canceled", "group", group)
	}
	e.groups = make(map[string][]device.Status)

	for i := len(e.staged) - 1; i >= 0; i-- {
		dev := e.staged[i]
		if _, err := dev.Unstage(cleanupCtx); err != nil {
			slog.Error("unstage during cleanup failed", "device", dev.Name(), "error", err)
		}
	}
	e.staged = nil

	if e.run != nil {
		e.closeRun(exit, reason)
	}
	e.cp = nil
}

func drainString(ch chan string) {
	select {
	case <-ch:
	default:
	}
}

func drainSignal(ch chan struct{}) {
	select {
	case <-ch:
	default:
	}
}
