// Package browser defines the capability interface between the step
// executor and a live automation backend.
//
// The executor never touches a backend protocol directly: it locates an
// element handle through the Driver and acts on the handle through typed
// methods. Any browser-control protocol can implement Driver without
// changes to the executor or the destination adapter.
package browser

import (
	"context"
	"time"
)

// Element is an opaque handle to a located page element.
type Element interface {
	// Click activates the element.
	Click(ctx context.Context) error

	// Type replaces the element's value with text.
	Type(ctx context.Context, text string) error

	// Select chooses the option matching value in a select-like control.
	Select(ctx context.Context, value string) error

	// Upload injects a local file reference into a file-input-like control.
	Upload(ctx context.Context, filePath string) error

	// Text returns the element's visible text.
	Text(ctx context.Context) (string, error)
}

// Driver owns one live automation target (a browser tab or equivalent).
//
// Locate must respect the timeout: an element that does not appear within
// it yields an error, never a hang. Implementations are not required to be
// safe for concurrent use; the executor is strictly sequential.
type Driver interface {
	// Navigate loads the target location and blocks until the load settles
	// or the timeout elapses.
	Navigate(ctx context.Context, url string, timeout time.Duration) error

	// Locate resolves a selector to an element handle, waiting up to
	// timeout for it to appear.
	Locate(ctx context.Context, selector string, timeout time.Duration) (Element, error)

	// Location reports the current URL, used by the destination adapter to
	// detect silent logouts (unexpected redirects to the login stage).
	Location(ctx context.Context) (string, error)

	// Close releases the underlying automation session. Failing to call
	// Close leaks a live browser process; the orchestrator guarantees it
	// runs on every exit path.
	Close(ctx context.Context) error
}
