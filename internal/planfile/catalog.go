package planfile

import (
	"fmt"
	"sort"
	"time"

	"github.com/seqlab/beamrun/internal/device"
)

// Catalog resolves the device names used in plan files to live devices.
type Catalog struct {
	devices map[string]device.Device
}

// NewCatalog creates an empty catalog.
func NewCatalog() *Catalog {
	return &Catalog{devices: make(map[string]device.Device)}
}

// Add registers a device under its own name. Duplicate names are an
// error: a plan file naming "motor" must resolve to exactly one device.
func (c *Catalog) Add(d device.Device) error {
	name := d.Name()
	if _, exists := c.devices[name]; exists {
		return fmt.Errorf("catalog: duplicate device %q", name)
	}
	c.devices[name] = d
	return nil
}

// Lookup returns the device registered under name.
func (c *Catalog) Lookup(name string) (device.Device, error) {
	d, ok := c.devices[name]
	if !ok {
		return nil, fmt.Errorf("catalog: unknown device %q", name)
	}
	return d, nil
}

// Names returns the registered device names, sorted.
func (c *Catalog) Names() []string {
	names := make([]string, 0, len(c.devices))
	for name := range c.devices {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Settable resolves name to a settable device.
func (c *Catalog) Settable(name string) (device.Settable, error) {
	d, err := c.Lookup(name)
	if err != nil {
		return nil, err
	}
	s, ok := d.(device.Settable)
	if !ok {
		return nil, fmt.Errorf("catalog: device %q is not settable", name)
	}
	return s, nil
}

// Readable resolves name to a readable device.
func (c *Catalog) Readable(name string) (device.Readable, error) {
	d, err := c.Lookup(name)
	if err != nil {
		return nil, err
	}
	r, ok := d.(device.Readable)
	if !ok {
		return nil, fmt.Errorf("catalog: device %q is not readable", name)
	}
	return r, nil
}

func (c *Catalog) readables(names []string) ([]device.Readable, error) {
	out := make([]device.Readable, 0, len(names))
	for _, name := range names {
		r, err := c.Readable(name)
		if err != nil {
			return nil, err
		}
		out = append(out, r)
	}
	return out, nil
}

// SimCatalog builds the standard simulated beamline: one motor, a
// gaussian point detector watching it, and two environment signals. It
// backs the CLI's dry-run mode and the test harness.
func SimCatalog() *Catalog {
	motor := device.NewSimMotor("motor",
		device.WithTravelTime(time.Millisecond),
		device.WithStageDirectives(device.StageDirective{Signal: "velocity", Value: 2.0}))
	det := device.NewSimDetector("det", motor, device.WithResponse(0, 1, 10))

	c := NewCatalog()
	for _, d := range []device.Device{
		motor,
		det,
		device.NewSimSignal("temp", 293.15),
		device.NewSimSignal("pressure", 1.01),
	} {
		// Names are distinct by construction.
		_ = c.Add(d)
	}
	return c
}
