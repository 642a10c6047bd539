// Package browsertest provides a scripted in-memory Driver for testing the
// executor, destination adapter, and orchestrator without a live browser.
//
// Tests install elements by selector, script reactions to actions (OnClick
// hooks mutating page state), and assert on the recorded call log.
package browsertest

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/roach88/syndicate/internal/browser"
)

// Call is one recorded driver interaction.
type Call struct {
	Op       string // "navigate", "click", "type", "select", "upload"
	Selector string
	Value    string
}

// Element is a scriptable fake page element.
type Element struct {
	mu sync.Mutex

	// TextValue is returned by Text. TextFn, when set, wins.
	TextValue string
	TextFn    func() string

	// Per-action error injection.
	ClickErr  error
	TypeErr   error
	SelectErr error
	UploadErr error

	// OnClick runs after a successful click, letting tests mutate page
	// state (change location, reveal a success banner).
	OnClick func()

	Typed    []string
	Selected []string
	Uploaded []string
}

func (e *Element) Click(ctx context.Context) error {
	e.mu.Lock()
	err := e.ClickErr
	hook := e.OnClick
	e.mu.Unlock()
	if err != nil {
		return err
	}
	if hook != nil {
		hook()
	}
	return nil
}

func (e *Element) Type(ctx context.Context, text string) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.TypeErr != nil {
		return e.TypeErr
	}
	e.Typed = append(e.Typed, text)
	return nil
}

func (e *Element) Select(ctx context.Context, value string) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.SelectErr != nil {
		return e.SelectErr
	}
	e.Selected = append(e.Selected, value)
	return nil
}

func (e *Element) Upload(ctx context.Context, filePath string) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.UploadErr != nil {
		return e.UploadErr
	}
	e.Uploaded = append(e.Uploaded, filePath)
	return nil
}

func (e *Element) Text(ctx context.Context) (string, error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.TextFn != nil {
		return e.TextFn(), nil
	}
	return e.TextValue, nil
}

// Driver is a scripted browser.Driver.
type Driver struct {
	mu       sync.Mutex
	elements map[string]*Element
	location string
	navErr   map[string]error
	calls    []Call
	closed   bool

	// OnNavigate runs after every successful navigation.
	OnNavigate func(url string)
}

// New creates an empty scripted driver.
func New() *Driver {
	return &Driver{
		elements: make(map[string]*Element),
		navErr:   make(map[string]error),
	}
}

// Install places an element at selector, replacing any existing one.
// Returns the element for scripting.
func (d *Driver) Install(selector string) *Element {
	el := &Element{}
	d.mu.Lock()
	d.elements[selector] = el
	d.mu.Unlock()
	return el
}

// InstallElement places a pre-built element at selector.
func (d *Driver) InstallElement(selector string, el *Element) {
	d.mu.Lock()
	d.elements[selector] = el
	d.mu.Unlock()
}

// Remove deletes the element at selector; later Locate calls time out.
func (d *Driver) Remove(selector string) {
	d.mu.Lock()
	delete(d.elements, selector)
	d.mu.Unlock()
}

// FailNavigation makes Navigate to url return err.
func (d *Driver) FailNavigation(url string, err error) {
	d.mu.Lock()
	d.navErr[url] = err
	d.mu.Unlock()
}

// SetLocation scripts the current URL (e.g. to simulate a silent redirect
// to the login page).
func (d *Driver) SetLocation(url string) {
	d.mu.Lock()
	d.location = url
	d.mu.Unlock()
}

// Calls returns a copy of the recorded interaction log.
func (d *Driver) Calls() []Call {
	d.mu.Lock()
	defer d.mu.Unlock()
	out := make([]Call, len(d.calls))
	copy(out, d.calls)
	return out
}

// Closed reports whether Close has been called.
func (d *Driver) Closed() bool {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.closed
}

func (d *Driver) record(c Call) {
	d.mu.Lock()
	d.calls = append(d.calls, c)
	d.mu.Unlock()
}

func (d *Driver) Navigate(ctx context.Context, url string, timeout time.Duration) error {
	d.mu.Lock()
	err := d.navErr[url]
	d.mu.Unlock()
	if err != nil {
		return err
	}

	d.record(Call{Op: "navigate", Value: url})
	d.mu.Lock()
	d.location = url
	hook := d.OnNavigate
	d.mu.Unlock()
	if hook != nil {
		hook(url)
	}
	return nil
}

// Locate polls for the element until it appears or the timeout elapses,
// mirroring how a real backend waits for selectors.
func (d *Driver) Locate(ctx context.Context, selector string, timeout time.Duration) (browser.Element, error) {
	deadline := time.Now().Add(timeout)
	for {
		d.mu.Lock()
		el, ok := d.elements[selector]
		d.mu.Unlock()
		if ok {
			return &tracked{el: el, selector: selector, driver: d}, nil
		}
		if time.Now().After(deadline) {
			return nil, fmt.Errorf("no element for selector %q", selector)
		}
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-time.After(time.Millisecond):
		}
	}
}

func (d *Driver) Location(ctx context.Context) (string, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.location, nil
}

func (d *Driver) Close(ctx context.Context) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.closed = true
	return nil
}

// tracked wraps an Element to record calls on the owning driver.
type tracked struct {
	el       *Element
	selector string
	driver   *Driver
}

func (t *tracked) Click(ctx context.Context) error {
	if err := t.el.Click(ctx); err != nil {
		return err
	}
	t.driver.record(Call{Op: "click", Selector: t.selector})
	return nil
}

func (t *tracked) Type(ctx context.Context, text string) error {
	if err := t.el.Type(ctx, text); err != nil {
		return err
	}
	t.driver.record(Call{Op: "type", Selector: t.selector, Value: text})
	return nil
}

func (t *tracked) Select(ctx context.Context, value string) error {
	if err := t.el.Select(ctx, value); err != nil {
		return err
	}
	t.driver.record(Call{Op: "select", Selector: t.selector, Value: value})
	return nil
}

func (t *tracked) Upload(ctx context.Context, filePath string) error {
	if err := t.el.Upload(ctx, filePath); err != nil {
		return err
	}
	t.driver.record(Call{Op: "upload", Selector: t.selector, Value: filePath})
	return nil
}

func (t *tracked) Text(ctx context.Context) (string, error) {
	return t.el.Text(ctx)
}
