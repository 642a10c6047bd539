package engine

import "errors"

// AlreadyRunningError is returned by Start when a session is in progress.
// It is fatal only to the offending call; the running session is untouched.
type AlreadyRunningError struct{}

func (e *AlreadyRunningError) Error() string {
	return "a sync session is already running"
}

// IsAlreadyRunning reports whether err is an AlreadyRunningError.
// Uses errors.As to handle wrapped errors.
func IsAlreadyRunning(err error) bool {
	var are *AlreadyRunningError
	return errors.As(err, &are)
}
