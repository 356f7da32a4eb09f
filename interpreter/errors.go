package interpreter

import "errors"

var (
	ErrNotRunning      = errors.New("interpreter is not running")
	ErrStopped         = errors.New("interpreter has been stopped")
	ErrQueueFull       = errors.New("event queue full (backpressure)")
	ErrMachineMismatch = errors.New("snapshot belongs to a different machine")
	ErrInvalidState    = errors.New("invalid state value")
)
