package device

import (
	"context"
	"fmt"
	"math"
	"sync"
	"time"

	"github.com/seqlab/beamrun/internal/document"
)

// dtypeOf maps a Go value to a data-key dtype string.
func dtypeOf(v any) string {
	switch v.(type) {
	case float64, float32, int, int64:
		return "number"
	case bool:
		return "boolean"
	case string:
		return "string"
	case []float64, []int, []any:
		return "array"
	default:
		return "string"
	}
}

// toFloat coerces the numeric types accepted by Set targets.
func toFloat(v any) (float64, error) {
	switch n := v.(type) {
	case float64:
		return n, nil
	case float32:
		return float64(n), nil
	case int:
		return float64(n), nil
	case int64:
		return float64(n), nil
	default:
		return 0, fmt.Errorf("not a numeric value: %T", v)
	}
}

// SimSignal is a readable, settable scalar that updates instantly.
// Used as a staging target and for soft configuration values.
type SimSignal struct {
	name string
	now  func() time.Time

	mu    sync.Mutex
	value any
}

// NewSimSignal creates a signal holding an initial value.
func NewSimSignal(name string, initial any) *SimSignal {
	return &SimSignal{name: name, value: initial, now: time.Now}
}

func (s *SimSignal) Name() string { return s.name }

func (s *SimSignal) Get() any {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.value
}

func (s *SimSignal) Set(_ context.Context, value any) Status {
	s.mu.Lock()
	s.value = value
	s.mu.Unlock()
	return Completed(s.name)
}

func (s *SimSignal) Read(_ context.Context) (map[string]Reading, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return map[string]Reading{
		s.name: {Value: s.value, Timestamp: s.now()},
	}, nil
}

func (s *SimSignal) Describe() (map[string]document.DataKey, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return map[string]document.DataKey{
		s.name: {Dtype: dtypeOf(s.value), Source: "sim:" + s.name},
	}, nil
}

// SimMotorOption configures a SimMotor.
type SimMotorOption func(*SimMotor)

// WithTravelTime sets the fixed delay a move takes to complete.
func WithTravelTime(d time.Duration) SimMotorOption {
	return func(m *SimMotor) { m.travel = d }
}

// WithStageDirectives sets the ordered staging directives applied on Stage.
func WithStageDirectives(directives ...StageDirective) SimMotorOption {
	return func(m *SimMotor) { m.stageSigs = directives }
}

// WithMotorNow overrides the timestamp source (tests).
func WithMotorNow(now func() time.Time) SimMotorOption {
	return func(m *SimMotor) { m.now = now }
}

// SimMotor is a settable, readable, stageable positioner. Moves complete
// asynchronously after a configurable travel time; the position updates
// only when the move resolves, so a canceled move leaves the motor where
// it was.
type SimMotor struct {
	name   string
	travel time.Duration
	now    func() time.Time

	mu        sync.Mutex
	position  float64
	fault     error
	staged    bool
	stageSigs []StageDirective
	signals   map[string]any
	reverted  []StageDirective // prior values, revert order
}

// NewSimMotor creates a motor at position 0 with instant moves unless
// WithTravelTime is given.
func NewSimMotor(name string, opts ...SimMotorOption) *SimMotor {
	m := &SimMotor{
		name:    name,
		now:     time.Now,
		signals: map[string]any{"velocity": 1.0, "acceleration": 0.5},
	}
	for _, opt := range opts {
		opt(m)
	}
	return m
}

func (m *SimMotor) Name() string { return m.name }

// Position returns the current (last settled) position.
func (m *SimMotor) Position() float64 {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.position
}

// SetFault makes subsequent moves resolve with err. ClearFault undoes it.
func (m *SimMotor) SetFault(err error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.fault = err
}

func (m *SimMotor) ClearFault() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.fault = nil
}

// Signal returns the current value of a configuration signal.
func (m *SimMotor) Signal(name string) (any, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	v, ok := m.signals[name]
	return v, ok
}

// Staged reports whether the motor is currently staged.
func (m *SimMotor) Staged() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.staged
}

func (m *SimMotor) Set(_ context.Context, value any) Status {
	target, err := toFloat(value)
	if err != nil {
		return Failed(m.name, fmt.Errorf("set %s: %w", m.name, err))
	}

	m.mu.Lock()
	fault := m.fault
	travel := m.travel
	m.mu.Unlock()

	fut := NewFuture(m.name)
	settle := func() {
		if fault != nil {
			fut.Resolve(fmt.Errorf("set %s: %w", m.name, fault))
			return
		}
		m.mu.Lock()
		m.position = target
		m.mu.Unlock()
		fut.Resolve(nil)
	}

	if travel <= 0 {
		settle()
		return fut
	}

	timer := time.AfterFunc(travel, settle)
	fut.OnCancel(func() { timer.Stop() })
	return fut
}

func (m *SimMotor) Read(_ context.Context) (map[string]Reading, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return map[string]Reading{
		m.name: {Value: m.position, Timestamp: m.now()},
	}, nil
}

func (m *SimMotor) Describe() (map[string]document.DataKey, error) {
	return map[string]document.DataKey{
		m.name: {Dtype: "number", Source: "sim:" + m.name},
	}, nil
}

// Stage applies the staging directives in order, recording prior signal
// values for revert. Idempotent: staging a staged motor returns an empty
// list and changes nothing.
func (m *SimMotor) Stage(_ context.Context) ([]Device, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.staged {
		return nil, nil
	}
	m.reverted = m.reverted[:0]
	for _, d := range m.stageSigs {
		prior, ok := m.signals[d.Signal]
		if !ok {
			return nil, fmt.Errorf("stage %s: unknown signal %q", m.name, d.Signal)
		}
		m.reverted = append(m.reverted, StageDirective{Signal: d.Signal, Value: prior})
		m.signals[d.Signal] = d.Value
	}
	m.staged = true
	return []Device{m}, nil
}

// Unstage reverts the staging directives in reverse order. Idempotent.
func (m *SimMotor) Unstage(_ context.Context) ([]Device, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if !m.staged {
		return nil, nil
	}
	for i := len(m.reverted) - 1; i >= 0; i-- {
		m.signals[m.reverted[i].Signal] = m.reverted[i].Value
	}
	m.reverted = m.reverted[:0]
	m.staged = false
	return []Device{m}, nil
}

// SimDetectorOption configures a SimDetector.
type SimDetectorOption func(*SimDetector)

// WithExposure sets the acquisition delay per trigger.
func WithExposure(d time.Duration) SimDetectorOption {
	return func(det *SimDetector) { det.exposure = d }
}

// WithResponse sets the gaussian response of the detector to its motor:
// intensity = amplitude * exp(-(pos-center)^2 / (2*sigma^2)).
func WithResponse(center, sigma, amplitude float64) SimDetectorOption {
	return func(det *SimDetector) {
		det.center, det.sigma, det.amplitude = center, sigma, amplitude
	}
}

// WithDetectorNow overrides the timestamp source (tests).
func WithDetectorNow(now func() time.Time) SimDetectorOption {
	return func(det *SimDetector) { det.now = now }
}

// SimDetector is a triggerable, readable point detector. Its reading is a
// gaussian function of an attached motor's position, computed when the
// trigger resolves. A nil motor yields the peak amplitude every time.
type SimDetector struct {
	name     string
	motor    *SimMotor
	exposure time.Duration
	now      func() time.Time

	center    float64
	sigma     float64
	amplitude float64

	mu    sync.Mutex
	last  float64
	fault error
}

// NewSimDetector creates a detector observing motor (may be nil).
func NewSimDetector(name string, motor *SimMotor, opts ...SimDetectorOption) *SimDetector {
	det := &SimDetector{
		name:      name,
		motor:     motor,
		now:       time.Now,
		sigma:     1,
		amplitude: 1,
	}
	for _, opt := range opts {
		opt(det)
	}
	return det
}

func (det *SimDetector) Name() string { return det.name }

// SetFault makes subsequent triggers resolve with err.
func (det *SimDetector) SetFault(err error) {
	det.mu.Lock()
	defer det.mu.Unlock()
	det.fault = err
}

func (det *SimDetector) Trigger(_ context.Context) Status {
	det.mu.Lock()
	fault := det.fault
	exposure := det.exposure
	det.mu.Unlock()

	fut := NewFuture(det.name)
	acquire := func() {
		if fault != nil {
			fut.Resolve(fmt.Errorf("trigger %s: %w", det.name, fault))
			return
		}
		pos := det.center
		if det.motor != nil {
			pos = det.motor.Position()
		}
		intensity := det.amplitude * math.Exp(-math.Pow(pos-det.center, 2)/(2*det.sigma*det.sigma))
		det.mu.Lock()
		det.last = intensity
		det.mu.Unlock()
		fut.Resolve(nil)
	}

	if exposure <= 0 {
		acquire()
		return fut
	}

	timer := time.AfterFunc(exposure, acquire)
	fut.OnCancel(func() { timer.Stop() })
	return fut
}

func (det *SimDetector) Read(_ context.Context) (map[string]Reading, error) {
	det.mu.Lock()
	defer det.mu.Unlock()
	return map[string]Reading{
		det.name: {Value: det.last, Timestamp: det.now()},
	}, nil
}

func (det *SimDetector) Describe() (map[string]document.DataKey, error) {
	return map[string]document.DataKey{
		det.name: {Dtype: "number", Source: "sim:" + det.name},
	}, nil
}

// Bundle groups devices into one composite. Staging a bundle stages every
// stageable child depth-first in declaration order; reading merges the
// readings of every readable child.
type Bundle struct {
	name     string
	children []Device
}

// NewBundle creates a composite over children in the given order.
func NewBundle(name string, children ...Device) *Bundle {
	return &Bundle{name: name, children: children}
}

func (b *Bundle) Name() string       { return b.name }
func (b *Bundle) Children() []Device { return b.children }

func (b *Bundle) Stage(ctx context.Context) ([]Device, error) {
	var staged []Device
	for _, child := range b.children {
		s, ok := child.(Stageable)
		if !ok {
			continue
		}
		got, err := s.Stage(ctx)
		if err != nil {
			return staged, fmt.Errorf("stage %s: %w", b.name, err)
		}
		staged = append(staged, got...)
	}
	return staged, nil
}

func (b *Bundle) Unstage(ctx context.Context) ([]Device, error) {
	var unstaged []Device
	for i := len(b.children) - 1; i >= 0; i-- {
		s, ok := b.children[i].(Stageable)
		if !ok {
			continue
		}
		got, err := s.Unstage(ctx)
		if err != nil {
			return unstaged, fmt.Errorf("unstage %s: %w", b.name, err)
		}
		unstaged = append(unstaged, got...)
	}
	return unstaged, nil
}

func (b *Bundle) Read(ctx context.Context) (map[string]Reading, error) {
	merged := make(map[string]Reading)
	for _, child := range b.children {
		r, ok := child.(Readable)
		if !ok {
			continue
		}
		readings, err := r.Read(ctx)
		if err != nil {
			return nil, fmt.Errorf("read %s: %w", b.name, err)
		}
		for k, v := range readings {
			merged[k] = v
		}
	}
	return merged, nil
}

func (b *Bundle) Describe() (map[string]document.DataKey, error) {
	merged := make(map[string]document.DataKey)
	for _, child := range b.children {
		r, ok := child.(Readable)
		if !ok {
			continue
		}
		keys, err := r.Describe()
		if err != nil {
			return nil, fmt.Errorf("describe %s: %w", b.name, err)
		}
		for k, v := range keys {
			merged[k] = v
		}
	}
	return merged, nil
}
