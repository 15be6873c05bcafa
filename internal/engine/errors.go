package engine

import (
	"errors"
	"fmt"
	"strings"

	"github.com/seqlab/beamrun/internal/plan"
)

// PlanError reports a malformed instruction stream: unknown commands,
// missing arguments, save without create. Fatal to the current run.
type PlanError struct {
	Command plan.Command
	Message string
}

func (e *PlanError) Error() string {
	if e.Command != "" {
		return fmt.Sprintf("plan error in %s: %s", e.Command, e.Message)
	}
	return fmt.Sprintf("plan error: %s", e.Message)
}

// StateError reports an operation illegal in the current engine state:
// close_run with no open run, nested open_run, resume without a
// checkpoint. Immediately fatal, no retry.
type StateError struct {
	Message string
}

func (e *StateError) Error() string {
	return fmt.Sprintf("state error: %s", e.Message)
}

// DeviceFailure attributes one failed status to its device.
type DeviceFailure struct {
	Device string
	Err    error
}

// DeviceError surfaces failed device operations at a synchronization
// point. Every failure in the group is aggregated so a single wait
// reports all devices that went wrong, not just the first. Timeout marks
// the variant where the wait exceeded the configured bound before every
// status resolved.
type DeviceError struct {
	Group    string
	Timeout  bool
	Failures []DeviceFailure
}

func (e *DeviceError) Error() string {
	if e.Timeout {
		return fmt.Sprintf("wait on group %q timed out with %d unresolved status(es)", e.Group, len(e.Failures))
	}
	parts := make([]string, len(e.Failures))
	for i, f := range e.Failures {
		parts[i] = fmt.Sprintf("%s: %v", f.Device, f.Err)
	}
	return fmt.Sprintf("group %q failed: %s", e.Group, strings.Join(parts, "; "))
}

// FailedDevices returns the names of the devices referenced by the error.
func (e *DeviceError) FailedDevices() []string {
	names := make([]string, len(e.Failures))
	for i, f := range e.Failures {
		names[i] = f.Device
	}
	return names
}

// StepsExceededError reports a run that exceeded the engine's step quota.
// The quota guards against unbounded plans consuming the engine forever.
type StepsExceededError struct {
	Steps int
	Limit int
}

func (e *StepsExceededError) Error() string {
	return fmt.Sprintf("run exceeded max steps (%d >= %d)", e.Steps, e.Limit)
}

// AbortedError is returned by Run when the invocation was aborted, either
// via Abort or by context cancellation.
type AbortedError struct {
	Reason string
}

func (e *AbortedError) Error() string {
	if e.Reason == "" {
		return "run aborted"
	}
	return fmt.Sprintf("run aborted: %s", e.Reason)
}

// IsDeviceError reports whether err is (or wraps) a DeviceError.
func IsDeviceError(err error) bool {
	var de *DeviceError
	return errors.As(err, &de)
}

// IsStateError reports whether err is (or wraps) a StateError.
func IsStateError(err error) bool {
	var se *StateError
	return errors.As(err, &se)
}

// IsAborted reports whether err is (or wraps) an AbortedError.
func IsAborted(err error) bool {
	var ae *AbortedError
	return errors.As(err, &ae)
}

// Control-flow sentinels passed from dispatch handlers that observed a
// pause or abort request to the interpreter loop. Never escape Run.
var (
	errPauseRequested = errors.New("pause requested")
	errAbortRequested = errors.New("abort requested")
)
