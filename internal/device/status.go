package device

import "sync"

// Status represents an outstanding asynchronous device operation.
//
// Done is closed exactly once, when the operation resolves. Err may be read
// after Done is closed; nil means success. DeviceName identifies the issuing
// device for failure attribution when statuses are aggregated by group.
type Status interface {
	Done() <-chan struct{}
	Err() error
	DeviceName() string
}

// Cancelable is implemented by statuses whose underlying operation can be
// interrupted. Cancellation is best-effort: the engine proceeds with
// cleanup whether or not the device honors it.
type Cancelable interface {
	Cancel()
}

// Future is the standard Status implementation for device authors.
//
// Resolve may be called from any goroutine and is idempotent: the first
// call wins, later calls are ignored. Cancel invokes the optional hook and
// then resolves with ErrCanceled if the operation has not already resolved.
type Future struct {
	device string

	mu       sync.Mutex
	done     chan struct{}
	resolved bool
	err      error
	onCancel func()
}

// NewFuture creates an unresolved Future attributed to the named device.
func NewFuture(device string) *Future {
	return &Future{
		device: device,
		done:   make(chan struct{}),
	}
}

// Completed returns an already-resolved successful Future.
func Completed(device string) *Future {
	f := NewFuture(device)
	f.Resolve(nil)
	return f
}

// Failed returns an already-resolved Future carrying err.
func Failed(device string, err error) *Future {
	f := NewFuture(device)
	f.Resolve(err)
	return f
}

// OnCancel registers a hook invoked by Cancel before the Future resolves.
// Must be called before the Future is handed to the engine.
func (f *Future) OnCancel(hook func()) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.onCancel = hook
}

// Resolve marks the operation finished. A nil err means success.
// Idempotent: only the first call has effect.
func (f *Future) Resolve(err error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.resolved {
		return
	}
	f.resolved = true
	f.err = err
	close(f.done)
}

// Cancel requests best-effort interruption of the operation.
func (f *Future) Cancel() {
	f.mu.Lock()
	hook := f.onCancel
	f.mu.Unlock()

	if hook != nil {
		hook()
	}
	f.Resolve(ErrCanceled)
}

// Done returns the channel closed when the operation resolves.
func (f *Future) Done() <-chan struct{} {
	return f.done
}

// Err returns the resolution error. Valid only after Done is closed.
func (f *Future) Err() error {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.err
}

// DeviceName returns the name of the device that issued this status.
func (f *Future) DeviceName() string {
	return f.device
}
