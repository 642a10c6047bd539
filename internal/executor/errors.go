package executor

import (
	"errors"
	"fmt"
)

// ElementNotFoundError reports a selector that did not resolve within the
// step timeout. Selectors are captured during learning and assumed stable,
// so there is no per-step retry; the whole record may be retried by a
// later session instead.
type ElementNotFoundError struct {
	Selector  string
	StepIndex int
	Err       error
}

func (e *ElementNotFoundError) Error() string {
	return fmt.Sprintf("step %d: element not found: %q", e.StepIndex, e.Selector)
}

func (e *ElementNotFoundError) Unwrap() error { return e.Err }

// NavigationError reports a navigation that failed or timed out.
type NavigationError struct {
	URL       string
	StepIndex int
	Err       error
}

func (e *NavigationError) Error() string {
	return fmt.Sprintf("step %d: navigate %s: %v", e.StepIndex, e.URL, e.Err)
}

func (e *NavigationError) Unwrap() error { return e.Err }

// SuccessNotObservedError reports a wait_for barrier whose expected text
// never appeared. This is how a genuinely successful submission is told
// apart from a silently stuck one.
type SuccessNotObservedError struct {
	Selector  string
	Expected  string
	StepIndex int
}

func (e *SuccessNotObservedError) Error() string {
	return fmt.Sprintf("step %d: success indicator not observed: want %q in %q",
		e.StepIndex, e.Expected, e.Selector)
}

// IsElementNotFound reports whether err is an ElementNotFoundError,
// unwrapping as needed.
func IsElementNotFound(err error) bool {
	var e *ElementNotFoundError
	return errors.As(err, &e)
}
