package engine

import (
	"context"
	"errors"
	"sort"
	"time"

	"github.com/seqlab/beamrun/internal/device"
	"github.com/seqlab/beamrun/internal/plan"
)

// register adds a status to its synchronization group. An empty group
// name maps to the default group.
func (e *Engine) register(group string, st device.Status) {
	if group == "" {
		group = plan.DefaultGroup
	}
	e.groups[group] = append(e.groups[group], st)
}

// waitGroup suspends the interpreter until every status under group
// resolves, then reports all failures in one aggregated DeviceError.
// A group with no registered statuses returns immediately.
//
// Aborts interrupt a wait. Pause requests do not: the pause is consumed
// at the next instruction boundary, which is also how the PAUSING state
// guarantees its groups-drained invariant.
func (e *Engine) waitGroup(ctx context.Context, group string) error {
	if group == "" {
		group = plan.DefaultGroup
	}
	statuses := e.groups[group]

	var timeoutCh <-chan time.Time
	if e.waitTimeout > 0 {
		timer := time.NewTimer(e.waitTimeout)
		defer timer.Stop()
		timeoutCh = timer.C
	}

	var failures []DeviceFailure
	for i, st := range statuses {
		select {
		case <-st.Done():
			if err := st.Err(); err != nil {
				failures = append(failures, DeviceFailure{Device: st.DeviceName(), Err: err})
			}
		case <-timeoutCh:
			// The group stays registered: its unresolved statuses are
			// canceled by the failure cleanup, not abandoned here.
			return e.timeoutError(group, statuses[i:])
		case reason := <-e.abortCh:
			e.abortReason = reason
			return errAbortRequested
		case <-ctx.Done():
			e.abortReason = ctx.Err().Error()
			return errAbortRequested
		}
	}
	delete(e.groups, group)

	if len(failures) > 0 {
		return &DeviceError{Group: group, Failures: failures}
	}
	return nil
}

// timeoutError builds the DeviceError for a timed-out wait, naming every
// status still unresolved at the deadline.
func (e *Engine) timeoutError(group string, remaining []device.Status) error {
	var unresolved []DeviceFailure
	for _, st := range remaining {
		select {
		case <-st.Done():
			if err := st.Err(); err != nil {
				unresolved = append(unresolved, DeviceFailure{Device: st.DeviceName(), Err: err})
			}
		default:
			unresolved = append(unresolved, DeviceFailure{Device: st.DeviceName(), Err: errors.New("unresolved at timeout")})
		}
	}
	return &DeviceError{Group: group, Timeout: true, Failures: unresolved}
}

// waitAllGroups drains every pending group in name order (deterministic)
// and aggregates failures across groups into one DeviceError.
func (e *Engine) waitAllGroups(ctx context.Context) error {
	names := make([]string, 0, len(e.groups))
	for name := range e.groups {
		names = append(names, name)
	}
	sort.Strings(names)

	var failures []DeviceFailure
	timedOut := false
	for _, name := range names {
		err := e.waitGroup(ctx, name)
		if err == nil {
			continue
		}
		if errors.Is(err, errAbortRequested) {
			return err
		}
		var de *DeviceError
		if errors.As(err, &de) {
			failures = append(failures, de.Failures...)
			timedOut = timedOut || de.Timeout
			continue
		}
		return err
	}
	if len(failures) > 0 {
		return &DeviceError{Group: "all", Timeout: timedOut, Failures: failures}
	}
	return nil
}
