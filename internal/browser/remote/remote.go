// Package remote implements the browser.Driver capability over the
// extension bridge protocol: length-prefixed JSON command frames on a
// byte stream, answered one reply per command.
//
// The peer is the browser-extension collaborator that performs the
// actual DOM work. File uploads ship the staged bytes in the command
// because the extension has no filesystem access of its own.
package remote

import (
	"context"
	"fmt"
	"io"
	"sync"
	"time"

	"github.com/spf13/afero"

	"github.com/roach88/syndicate/internal/assets"
	"github.com/roach88/syndicate/internal/browser"
	"github.com/roach88/syndicate/internal/nativehost"
)

type command struct {
	ID        uint64          `json:"id"`
	Op        string          `json:"op"`
	URL       string          `json:"url,omitempty"`
	Selector  string          `json:"selector,omitempty"`
	Value     string          `json:"value,omitempty"`
	TimeoutMs int64           `json:"timeout_ms,omitempty"`
	File      *assets.Payload `json:"file,omitempty"`
}

type reply struct {
	ID       uint64 `json:"id"`
	OK       bool   `json:"ok"`
	Error    string `json:"error,omitempty"`
	Text     string `json:"text,omitempty"`
	Location string `json:"location,omitempty"`
}

// Driver drives one remote automation session over a frame stream.
//
// Commands are strictly request/reply; the mutex keeps one command in
// flight at a time. Waiting behavior lives on the peer side, bounded by
// the timeout_ms carried in each command.
type Driver struct {
	mu   sync.Mutex
	conn io.ReadWriteCloser
	fs   afero.Fs
	seq  uint64
}

// New wraps an established bridge connection. The fs is where staged
// asset files live; Upload reads them from it.
func New(conn io.ReadWriteCloser, fs afero.Fs) *Driver {
	return &Driver{conn: conn, fs: fs}
}

func (d *Driver) roundTrip(ctx context.Context, cmd command) (reply, error) {
	d.mu.Lock()
	defer d.mu.Unlock()

	if err := ctx.Err(); err != nil {
		return reply{}, err
	}

	d.seq++
	cmd.ID = d.seq
	if err := nativehost.WriteFrame(d.conn, cmd); err != nil {
		return reply{}, fmt.Errorf("send %s: %w", cmd.Op, err)
	}

	var rep reply
	if err := nativehost.DecodeFrame(d.conn, &rep); err != nil {
		return reply{}, fmt.Errorf("reply to %s: %w", cmd.Op, err)
	}
	if rep.ID != cmd.ID {
		return reply{}, fmt.Errorf("reply id %d for command %d", rep.ID, cmd.ID)
	}
	if !rep.OK {
		return reply{}, fmt.Errorf("%s: %s", cmd.Op, rep.Error)
	}
	return rep, nil
}

func (d *Driver) Navigate(ctx context.Context, url string, timeout time.Duration) error {
	_, err := d.roundTrip(ctx, command{Op: "navigate", URL: url, TimeoutMs: timeout.Milliseconds()})
	return err
}

func (d *Driver) Locate(ctx context.Context, selector string, timeout time.Duration) (browser.Element, error) {
	_, err := d.roundTrip(ctx, command{Op: "locate", Selector: selector, TimeoutMs: timeout.Milliseconds()})
	if err != nil {
		return nil, err
	}
	return &element{d: d, selector: selector}, nil
}

func (d *Driver) Location(ctx context.Context) (string, error) {
	rep, err := d.roundTrip(ctx, command{Op: "location"})
	if err != nil {
		return "", err
	}
	return rep.Location, nil
}

// Close tells the peer to tear down the session, then closes the stream.
// The stream is closed even when the farewell fails.
func (d *Driver) Close(ctx context.Context) error {
	_, sendErr := d.roundTrip(ctx, command{Op: "close"})
	closeErr := d.conn.Close()
	if sendErr != nil {
		return sendErr
	}
	return closeErr
}

// element addresses the peer-side element by selector; the peer re-finds
// it per action, which keeps handles valid across page mutations.
type element struct {
	d        *Driver
	selector string
}

func (e *element) Click(ctx context.Context) error {
	_, err := e.d.roundTrip(ctx, command{Op: "click", Selector: e.selector})
	return err
}

func (e *element) Type(ctx context.Context, text string) error {
	_, err := e.d.roundTrip(ctx, command{Op: "type", Selector: e.selector, Value: text})
	return err
}

func (e *element) Select(ctx context.Context, value string) error {
	_, err := e.d.roundTrip(ctx, command{Op: "select", Selector: e.selector, Value: value})
	return err
}

func (e *element) Upload(ctx context.Context, filePath string) error {
	payload, err := assets.ReadPayload(e.d.fs, filePath)
	if err != nil {
		return err
	}
	_, err = e.d.roundTrip(ctx, command{Op: "upload", Selector: e.selector, File: &payload})
	return err
}

func (e *element) Text(ctx context.Context) (string, error) {
	rep, err := e.d.roundTrip(ctx, command{Op: "text", Selector: e.selector})
	if err != nil {
		return "", err
	}
	return rep.Text, nil
}
