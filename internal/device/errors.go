package device

import "errors"

// ErrCanceled is the resolution error of a Status whose operation was
// canceled before it completed.
var ErrCanceled = errors.New("device operation canceled")
