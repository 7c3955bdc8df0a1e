package session

import "errors"

var (
	// ErrBundleNotIntercepted means the network went idle without the
	// library bundle ever being requested.
	ErrBundleNotIntercepted = errors.New("session: library bundle not intercepted")
	// ErrProfilerTimeout means coverage collection lost its race.
	ErrProfilerTimeout = errors.New("session: profiler timed out")
	// ErrPageCrashed means the renderer process died.
	ErrPageCrashed = errors.New("session: page crashed")
)
