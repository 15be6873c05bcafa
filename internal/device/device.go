package device

import (
	"context"
	"time"

	"github.com/seqlab/beamrun/internal/document"
)

// Reading is one observed value with its acquisition timestamp.
type Reading struct {
	Value     any
	Timestamp time.Time
}

// Device is the minimal interface every device implements.
// Capabilities are discovered by interface assertion against the
// capability interfaces below.
type Device interface {
	Name() string
}

// Readable devices produce named readings and describe their data keys.
// Read returns one reading per data key; Describe returns the matching
// key descriptions used to build event stream Descriptors.
type Readable interface {
	Device
	Read(ctx context.Context) (map[string]Reading, error)
	Describe() (map[string]document.DataKey, error)
}

// Settable devices accept a target value. Set returns immediately with a
// Status that resolves when the device reaches the target (or fails).
// Errors during the motion are captured in the Status, not returned.
type Settable interface {
	Device
	Set(ctx context.Context, value any) Status
}

// Triggerable devices start an acquisition. Trigger returns immediately
// with a Status that resolves when the acquisition completes.
type Triggerable interface {
	Device
	Trigger(ctx context.Context) Status
}

// Stageable devices prepare for data collection. Stage returns the list of
// devices actually staged (a composite may stage children). Both operations
// are idempotent: staging a staged device or unstaging an unstaged one is a
// no-op returning an empty list.
type Stageable interface {
	Device
	Stage(ctx context.Context) ([]Device, error)
	Unstage(ctx context.Context) ([]Device, error)
}

// Composite devices expose sub-devices in a stable order.
type Composite interface {
	Device
	Children() []Device
}

// StageDirective is one staging step: set a named signal to a value.
// Directives are applied in order on stage and reverted in reverse order
// on unstage.
type StageDirective struct {
	Signal string
	Value  any
}
