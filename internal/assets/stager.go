// Package assets stages remote binary assets on the local filesystem so
// upload steps can inject them into the destination, and guarantees the
// staged files are deleted on every code path that staged them.
package assets

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"os"
	"path"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/spf13/afero"

	"github.com/roach88/syndicate/internal/retry"
)

// Defaults for the stager. Retries counts additional attempts beyond the
// first, so the default is three total tries per asset.
const (
	DefaultBatchSize = 3
	DefaultRetries   = 2
	DefaultBaseDelay = 500 * time.Millisecond
	DefaultTimeout   = 30 * time.Second
)

// Staged describes one asset after a fetch attempt.
// Lifecycle: staged -> consumed (by an upload step) -> deleted.
type Staged struct {
	URL       string
	LocalPath string
	OK        bool
	Err       error
}

// AssetFetchError is the terminal per-asset failure after the retry budget
// is exhausted. It degrades to a warning at the record level; a missing
// asset never fails a record outright on its own.
type AssetFetchError struct {
	URL      string
	Attempts int
	Err      error
}

func (e *AssetFetchError) Error() string {
	return fmt.Sprintf("fetch %s: %d attempts: %v", e.URL, e.Attempts, e.Err)
}

func (e *AssetFetchError) Unwrap() error { return e.Err }

// Stager downloads referenced assets with bounded concurrency and retry.
//
// Files are written under Dir/<correlationID>/. The zero value is not
// usable; construct with New.
type Stager struct {
	fs        afero.Fs
	client    *http.Client
	dir       string
	batchSize int
	retries   int
	baseDelay time.Duration

	mu     sync.Mutex
	staged []Staged // everything staged since the last CleanupAll
}

// Option configures a Stager.
type Option func(*Stager)

// WithBatchSize bounds the number of concurrent downloads per batch.
func WithBatchSize(n int) Option {
	return func(s *Stager) {
		if n > 0 {
			s.batchSize = n
		}
	}
}

// WithRetries sets the number of additional attempts per asset.
func WithRetries(n int) Option {
	return func(s *Stager) {
		if n >= 0 {
			s.retries = n
		}
	}
}

// WithBaseDelay sets the initial backoff delay; it doubles per attempt.
func WithBaseDelay(d time.Duration) Option {
	return func(s *Stager) {
		if d > 0 {
			s.baseDelay = d
		}
	}
}

// WithHTTPClient overrides the HTTP client (used by tests).
func WithHTTPClient(c *http.Client) Option {
	return func(s *Stager) { s.client = c }
}

// New creates a Stager writing under dir on fs.
//
// The client follows at most one redirect hop before giving up; recorded
// asset URLs are expected to be at most one hop from the served file.
func New(fs afero.Fs, dir string, opts ...Option) *Stager {
	s := &Stager{
		fs:        fs,
		dir:       dir,
		batchSize: DefaultBatchSize,
		retries:   DefaultRetries,
		baseDelay: DefaultBaseDelay,
		client: &http.Client{
			Timeout: DefaultTimeout,
			CheckRedirect: func(req *http.Request, via []*http.Request) error {
				if len(via) > 1 {
					return http.ErrUseLastResponse
				}
				return nil
			},
		},
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// FetchAll stages every URL, processing them in batches of the configured
// size. Results are returned in input order. A final per-asset failure is
// reported as {OK:false, Err} rather than an error return: callers decide
// whether a missing asset is fatal to the record.
func (s *Stager) FetchAll(ctx context.Context, urls []string, correlationID string) []Staged {
	results := make([]Staged, len(urls))

	for base := 0; base < len(urls); base += s.batchSize {
		end := base + s.batchSize
		if end > len(urls) {
			end = len(urls)
		}

		var wg sync.WaitGroup
		for i := base; i < end; i++ {
			wg.Add(1)
			go func(idx int) {
				defer wg.Done()
				results[idx] = s.fetchOne(ctx, urls[idx], correlationID, idx)
			}(i)
		}
		wg.Wait()
	}

	s.mu.Lock()
	s.staged = append(s.staged, results...)
	s.mu.Unlock()
	return results
}

// fetchOne downloads a single asset with the retry policy applied.
func (s *Stager) fetchOne(ctx context.Context, url, correlationID string, idx int) Staged {
	dest := filepath.Join(s.dir, correlationID, fmt.Sprintf("%03d_%s", idx, safeName(url)))

	policy := retry.Policy{
		Attempts:  s.retries + 1,
		BaseDelay: s.baseDelay,
	}
	err := policy.Do(ctx, func(ctx context.Context) error {
		return s.download(ctx, url, dest)
	})
	if err != nil {
		slog.Warn("asset fetch failed",
			"url", url,
			"correlation_id", correlationID,
			"attempts", s.retries+1,
			"error", err,
		)
		return Staged{URL: url, Err: &AssetFetchError{URL: url, Attempts: s.retries + 1, Err: err}}
	}

	slog.Debug("asset staged", "url", url, "path", dest)
	return Staged{URL: url, LocalPath: dest, OK: true}
}

func (s *Stager) download(ctx context.Context, url, dest string) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return fmt.Errorf("build request: %w", err)
	}
	resp, err := s.client.Do(req)
	if err != nil {
		return fmt.Errorf("get: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("unexpected status %d", resp.StatusCode)
	}

	if err := s.fs.MkdirAll(filepath.Dir(dest), 0o755); err != nil {
		return fmt.Errorf("mkdir: %w", err)
	}
	f, err := s.fs.Create(dest)
	if err != nil {
		return fmt.Errorf("create: %w", err)
	}
	if _, err := io.Copy(f, resp.Body); err != nil {
		f.Close()
		_ = s.fs.Remove(dest)
		return fmt.Errorf("write: %w", err)
	}
	return f.Close()
}

// Cleanup deletes the files behind the given staged refs. Idempotent: a
// file already removed (or never written) is not an error.
func (s *Stager) Cleanup(refs []Staged) {
	for _, ref := range refs {
		if ref.LocalPath == "" {
			continue
		}
		if err := s.fs.Remove(ref.LocalPath); err != nil && !isNotExist(err) {
			slog.Warn("asset cleanup failed", "path", ref.LocalPath, "error", err)
		}
	}
}

// CleanupAll deletes every file staged since the last CleanupAll.
// Idempotent for the same reason Cleanup is.
func (s *Stager) CleanupAll() {
	s.mu.Lock()
	refs := s.staged
	s.staged = nil
	s.mu.Unlock()
	s.Cleanup(refs)
}

// isNotExist recognizes not-found errors from both OsFs and MemMapFs
// (afero's in-memory fs reports its own sentinel, not os.ErrNotExist).
func isNotExist(err error) bool {
	if err == nil {
		return false
	}
	if os.IsNotExist(err) {
		return true
	}
	return strings.Contains(err.Error(), "file does not exist")
}

// safeName derives a stable filename from an asset URL.
func safeName(url string) string {
	base := path.Base(strings.SplitN(url, "?", 2)[0])
	if base == "" || base == "." || base == "/" {
		base = "asset"
	}
	return strings.Map(func(r rune) rune {
		switch {
		case r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z', r >= '0' && r <= '9':
			return r
		case r == '.' || r == '-' || r == '_':
			return r
		default:
			return '_'
		}
	}, base)
}
