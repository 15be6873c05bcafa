package plan

import (
	"fmt"

	"github.com/seqlab/beamrun/internal/device"
)

// CapabilityError reports a device that does not implement a capability an
// instruction requires. Raised when the engine dispatches the instruction.
type CapabilityError struct {
	Device     string
	Capability string
}

func (e *CapabilityError) Error() string {
	return fmt.Sprintf("device %q does not implement %s", e.Device, e.Capability)
}

// RequireReadable asserts the Readable capability.
func RequireReadable(d device.Device) (device.Readable, error) {
	r, ok := d.(device.Readable)
	if !ok {
		return nil, &CapabilityError{Device: d.Name(), Capability: "Readable"}
	}
	return r, nil
}

// RequireSettable asserts the Settable capability.
func RequireSettable(d device.Device) (device.Settable, error) {
	s, ok := d.(device.Settable)
	if !ok {
		return nil, &CapabilityError{Device: d.Name(), Capability: "Settable"}
	}
	return s, nil
}

// RequireTriggerable asserts the Triggerable capability.
func RequireTriggerable(d device.Device) (device.Triggerable, error) {
	tr, ok := d.(device.Triggerable)
	if !ok {
		return nil, &CapabilityError{Device: d.Name(), Capability: "Triggerable"}
	}
	return tr, nil
}

// RequireStageable asserts the Stageable capability.
func RequireStageable(d device.Device) (device.Stageable, error) {
	s, ok := d.(device.Stageable)
	if !ok {
		return nil, &CapabilityError{Device: d.Name(), Capability: "Stageable"}
	}
	return s, nil
}
