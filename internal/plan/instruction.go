package plan

import (
	"time"

	"github.com/seqlab/beamrun/internal/device"
)

// Command names one interpreter operation. Each command maps 1:1 to a
// dispatch handler in the engine.
type Command string

const (
	CmdOpenRun    Command = "open_run"
	CmdCloseRun   Command = "close_run"
	CmdSet        Command = "set"
	CmdTrigger    Command = "trigger"
	CmdRead       Command = "read"
	CmdStage      Command = "stage"
	CmdUnstage    Command = "unstage"
	CmdWait       Command = "wait"
	CmdSleep      Command = "sleep"
	CmdCreate     Command = "create"
	CmdSave       Command = "save"
	CmdCheckpoint Command = "checkpoint"
	CmdPause      Command = "pause"
)

// DefaultGroup is the synchronization group used when none is named.
const DefaultGroup = "default"

// DefaultStream is the event stream name used by bare reads and by
// Create() without an explicit name.
const DefaultStream = "primary"

// Instruction is one requested operation. Immutable once constructed:
// callers must not mutate Targets, Args, or Kwargs after handing the
// instruction to the engine.
type Instruction struct {
	Command Command
	Targets []device.Device
	Args    []any
	Kwargs  map[string]any
	Group   string
}

// Target returns the primary target device, or nil.
func (in Instruction) Target() device.Device {
	if len(in.Targets) == 0 {
		return nil
	}
	return in.Targets[0]
}

// OpenRun opens a run with user metadata (may be nil).
func OpenRun(metadata map[string]any) Instruction {
	return Instruction{Command: CmdOpenRun, Kwargs: map[string]any{"metadata": metadata}}
}

// CloseRun seals the open run with exit status "success".
func CloseRun() Instruction {
	return Instruction{Command: CmdCloseRun}
}

// CloseRunWith seals the open run with an explicit exit status and
// reason, for plans that detect their own failure conditions.
func CloseRunWith(status, reason string) Instruction {
	return Instruction{Command: CmdCloseRun, Kwargs: map[string]any{
		"exit_status": status,
		"reason":      reason,
	}}
}

// Set requests a move of a settable device, synchronized under group.
// An empty group means DefaultGroup.
func Set(dev device.Settable, value any, group string) Instruction {
	return Instruction{Command: CmdSet, Targets: []device.Device{dev}, Args: []any{value}, Group: group}
}

// Trigger starts an acquisition on a triggerable device under group.
func Trigger(dev device.Triggerable, group string) Instruction {
	return Instruction{Command: CmdTrigger, Targets: []device.Device{dev}, Group: group}
}

// Read reads one or more readable devices. Inside a Create/Save bundle the
// readings are buffered into the pending event row; otherwise a
// single-row event is emitted immediately.
func Read(devs ...device.Readable) Instruction {
	targets := make([]device.Device, len(devs))
	for i, d := range devs {
		targets[i] = d
	}
	return Instruction{Command: CmdRead, Targets: targets}
}

// Stage prepares a device for data collection.
func Stage(dev device.Stageable) Instruction {
	return Instruction{Command: CmdStage, Targets: []device.Device{dev}}
}

// Unstage reverts staging. No-op if the device is not staged.
func Unstage(dev device.Stageable) Instruction {
	return Instruction{Command: CmdUnstage, Targets: []device.Device{dev}}
}

// Wait suspends the interpreter until every status in group resolves.
func Wait(group string) Instruction {
	return Instruction{Command: CmdWait, Group: group}
}

// Sleep suspends the interpreter for at least d while remaining
// responsive to pause and abort requests.
func Sleep(d time.Duration) Instruction {
	return Instruction{Command: CmdSleep, Args: []any{d}}
}

// Create opens an event bundle on the named stream.
func Create(stream string) Instruction {
	if stream == "" {
		stream = DefaultStream
	}
	return Instruction{Command: CmdCreate, Args: []any{stream}}
}

// Save seals the open bundle and emits its event row.
func Save() Instruction {
	return Instruction{Command: CmdSave}
}

// Checkpoint records a resumable point.
func Checkpoint() Instruction {
	return Instruction{Command: CmdCheckpoint}
}

// Pause requests a transition to the paused state at the next boundary.
func Pause(reason string) Instruction {
	return Instruction{Command: CmdPause, Kwargs: map[string]any{"reason": reason}}
}
