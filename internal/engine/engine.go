package engine

import (
	"sync"
	"time"

	"github.com/seqlab/beamrun/internal/device"
	"github.com/seqlab/beamrun/internal/plan"
)

// Version is stamped into RunStart metadata as engine_version.
const Version = "0.4.0"

// DefaultMaxSteps is the default instruction quota per Run invocation.
// It prevents unbounded plans from consuming the engine forever.
const DefaultMaxSteps = 100000

// DefaultSubscriberFailureLimit is the default number of consecutive
// subscriber failures tolerated before the subscriber is dropped.
const DefaultSubscriberFailureLimit = 3

// Engine interprets plans against devices and emits documents.
//
// Construct one Engine per process region that needs run orchestration
// and pass it explicitly; there is no package-level instance.
type Engine struct {
	idgen           IDGenerator
	now             func() time.Time
	maxSteps        int
	waitTimeout     time.Duration
	subFailureLimit int

	handlers map[plan.Command]handlerFunc

	mu            sync.Mutex
	state         State
	subs          []*subscription
	nextToken     Token
	hasCheckpoint bool

	// Control channels, buffered size 1: requests coalesce, the
	// interpreter consumes them at suspension points.
	pauseCh  chan string
	resumeCh chan struct{}
	abortCh  chan string

	// Interpreter-local state. Touched only inside Run.
	stack       []plan.Plan
	rootName    string
	run         *runState
	groups      map[string][]device.Status
	staged      []device.Stageable
	steps       int
	cp          *checkpointState
	lastRunID   string
	pauseReason string
	abortReason string
}

// Option configures an Engine.
type Option func(*Engine)

// WithIDGenerator overrides the id source (tests use FixedGenerator).
func WithIDGenerator(g IDGenerator) Option {
	return func(e *Engine) { e.idgen = g }
}

// WithNowFunc overrides the wall-clock source for document timestamps.
func WithNowFunc(now func() time.Time) Option {
	return func(e *Engine) { e.now = now }
}

// WithMaxSteps sets the instruction quota per Run invocation.
// Zero disables the quota.
func WithMaxSteps(n int) Option {
	return func(e *Engine) { e.maxSteps = n }
}

// WithWaitTimeout bounds every group wait. Zero (the default) means no
// timeout; a wait then blocks until every status resolves.
func WithWaitTimeout(d time.Duration) Option {
	return func(e *Engine) { e.waitTimeout = d }
}

// WithSubscriberFailureLimit sets how many consecutive failures a
// subscriber may accumulate before being dropped. Zero disables dropping.
func WithSubscriberFailureLimit(n int) Option {
	return func(e *Engine) { e.subFailureLimit = n }
}

// New creates an idle Engine.
func New(opts ...Option) *Engine {
	e := &Engine{
		idgen:           UUIDv7Generator{},
		now:             time.Now,
		maxSteps:        DefaultMaxSteps,
		subFailureLimit: DefaultSubscriberFailureLimit,
		state:           StateIdle,
		pauseCh:         make(chan string, 1),
		resumeCh:        make(chan struct{}, 1),
		abortCh:         make(chan string, 1),
	}
	for _, opt := range opts {
		opt(e)
	}
	e.handlers = e.buildDispatchTable()
	return e
}

// State returns the current interpreter state. Safe from any goroutine.
func (e *Engine) State() State {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.state
}

// setState performs a checked transition. An illegal transition is an
// interpreter bug, so it panics rather than limping on.
func (e *Engine) setState(to State) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.setStateLocked(to)
}

func (e *Engine) setStateLocked(to State) {
	if !canTransition(e.state, to) {
		panic("engine: illegal state transition " + e.state.String() + " -> " + to.String())
	}
	e.state = to
}

// Pause requests a transition to the paused state. The interpreter honors
// the request at its next suspension point, after draining every pending
// group. Returns a StateError unless the engine is running.
func (e *Engine) Pause(reason string) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.state != StateRunning {
		return &StateError{Message: "pause requires a running engine, state is " + e.state.String()}
	}
	e.setStateLocked(StatePausing)
	select {
	case e.pauseCh <- reason:
	default:
	}
	return nil
}

// Resume continues a paused run from its last checkpoint.
//
// If the plan never recorded a checkpoint the resume is refused with a
// StateError and the engine stays paused: restarting from the beginning
// would re-issue open_run into the still-open run. Abort is the only way
// out of a checkpoint-less pause.
func (e *Engine) Resume() error {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.state != StatePaused {
		return &StateError{Message: "resume requires a paused engine, state is " + e.state.String()}
	}
	if !e.hasCheckpoint {
		return &StateError{Message: "no checkpoint recorded; resume unavailable, abort the run instead"}
	}
	select {
	case e.resumeCh <- struct{}{}:
	default:
	}
	return nil
}

// Abort cancels the current run. Outstanding statuses are canceled
// best-effort, staged devices are unstaged in LIFO order, and any open
// run is sealed with exit status "abort". Run returns an AbortedError.
func (e *Engine) Abort(reason string) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	switch e.state {
	case StateRunning, StatePausing, StatePaused:
	default:
		return &StateError{Message: "abort requires an active run, state is " + e.state.String()}
	}
	select {
	case e.abortCh <- reason:
	default:
	}
	return nil
}

// requestPause is the in-band form of Pause used by the pause
// instruction. Called from the interpreter goroutine while RUNNING.
func (e *Engine) requestPause(reason string) {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.state == StateRunning {
		e.setStateLocked(StatePausing)
	}
	e.pauseReason = reason
}

// markCheckpoint records that a checkpoint exists, unblocking Resume.
func (e *Engine) markCheckpoint() {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.hasCheckpoint = true
}

// clearCheckpoint invalidates the recorded checkpoint, so Resume is
// refused until a new one is recorded.
func (e *Engine) clearCheckpoint() {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.hasCheckpoint = false
}
