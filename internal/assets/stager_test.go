package assets

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/spf13/afero"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestStager(t *testing.T, opts ...Option) (*Stager, afero.Fs) {
	t.Helper()
	fs := afero.NewMemMapFs()
	base := []Option{WithBaseDelay(time.Millisecond)}
	s := New(fs, "staging", append(base, opts...)...)
	return s, fs
}

func TestFetchAll_StagesEveryAsset(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprintf(w, "image-bytes-%s", r.URL.Path)
	}))
	defer srv.Close()

	s, fs := newTestStager(t)
	urls := []string{srv.URL + "/a.jpg", srv.URL + "/b.jpg", srv.URL + "/c.jpg", srv.URL + "/d.jpg"}

	results := s.FetchAll(context.Background(), urls, "rec-1")
	require.Len(t, results, 4)
	for i, res := range results {
		require.True(t, res.OK, "asset %d: %v", i, res.Err)
		require.NoError(t, res.Err)
		data, err := afero.ReadFile(fs, res.LocalPath)
		require.NoError(t, err)
		assert.Contains(t, string(data), "image-bytes-")
	}
	// Results come back in input order.
	assert.Equal(t, urls[0], results[0].URL)
	assert.Equal(t, urls[3], results[3].URL)
}

func TestFetchAll_RetryBoundOnPermanentFailure(t *testing.T) {
	var hits atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		hits.Add(1)
		w.WriteHeader(http.StatusInternalServerError)
	}))
	defer srv.Close()

	s, _ := newTestStager(t, WithRetries(2))
	results := s.FetchAll(context.Background(), []string{srv.URL + "/x.png"}, "rec-2")

	require.Len(t, results, 1)
	assert.False(t, results[0].OK)

	var fe *AssetFetchError
	require.True(t, errors.As(results[0].Err, &fe))
	assert.Equal(t, 3, fe.Attempts)
	// Exactly retries+1 attempts, no more.
	assert.Equal(t, int32(3), hits.Load())
}

func TestFetchAll_RecoversOnRetry(t *testing.T) {
	var hits atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if hits.Add(1) < 3 {
			w.WriteHeader(http.StatusServiceUnavailable)
			return
		}
		fmt.Fprint(w, "eventually")
	}))
	defer srv.Close()

	s, fs := newTestStager(t, WithRetries(2))
	results := s.FetchAll(context.Background(), []string{srv.URL + "/y.png"}, "rec-3")

	require.True(t, results[0].OK)
	data, err := afero.ReadFile(fs, results[0].LocalPath)
	require.NoError(t, err)
	assert.Equal(t, "eventually", string(data))
}

func TestFetchAll_FollowsOneRedirect(t *testing.T) {
	mux := http.NewServeMux()
	srv := httptest.NewServer(mux)
	defer srv.Close()
	mux.HandleFunc("/moved", func(w http.ResponseWriter, r *http.Request) {
		http.Redirect(w, r, srv.URL+"/final", http.StatusFound)
	})
	mux.HandleFunc("/final", func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, "landed")
	})

	s, fs := newTestStager(t)
	results := s.FetchAll(context.Background(), []string{srv.URL + "/moved"}, "rec-4")

	require.True(t, results[0].OK, "err: %v", results[0].Err)
	data, err := afero.ReadFile(fs, results[0].LocalPath)
	require.NoError(t, err)
	assert.Equal(t, "landed", string(data))
}

func TestCleanup_Idempotent(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, "x")
	}))
	defer srv.Close()

	s, fs := newTestStager(t)
	results := s.FetchAll(context.Background(), []string{srv.URL + "/a.jpg"}, "rec-5")
	require.True(t, results[0].OK)

	s.Cleanup(results)
	exists, err := afero.Exists(fs, results[0].LocalPath)
	require.NoError(t, err)
	assert.False(t, exists)

	// Second cleanup of the same refs must not panic or error.
	s.Cleanup(results)
	s.CleanupAll()
}

func TestCleanupAll_RemovesEverythingStaged(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, "x")
	}))
	defer srv.Close()

	s, fs := newTestStager(t)
	r1 := s.FetchAll(context.Background(), []string{srv.URL + "/a.jpg"}, "rec-6")
	r2 := s.FetchAll(context.Background(), []string{srv.URL + "/b.jpg"}, "rec-7")

	s.CleanupAll()
	for _, res := range append(r1, r2...) {
		exists, err := afero.Exists(fs, res.LocalPath)
		require.NoError(t, err)
		assert.False(t, exists, "still staged: %s", res.LocalPath)
	}
}

func TestReadPayload_EncodesAndSniffsMime(t *testing.T) {
	fs := afero.NewMemMapFs()
	require.NoError(t, afero.WriteFile(fs, "pics/house.png", []byte{1, 2, 3}, 0o644))

	p, err := ReadPayload(fs, "pics/house.png")
	require.NoError(t, err)
	assert.Equal(t, "house.png", p.Filename)
	assert.Equal(t, "image/png", p.MimeType)
	assert.Equal(t, 3, p.Size)
	assert.Equal(t, "AQID", p.Data)
}

func TestReadPayload_UnknownExtensionFallsBack(t *testing.T) {
	fs := afero.NewMemMapFs()
	require.NoError(t, afero.WriteFile(fs, "blob.weird", []byte("x"), 0o644))

	p, err := ReadPayload(fs, "blob.weird")
	require.NoError(t, err)
	assert.Equal(t, "application/octet-stream", p.MimeType)
}

func TestWritePayload_RoundTrip(t *testing.T) {
	fs := afero.NewMemMapFs()
	n, err := WritePayload(fs, "deep/dir/out.bin", "AQID")
	require.NoError(t, err)
	assert.Equal(t, 3, n)

	data, err := afero.ReadFile(fs, "deep/dir/out.bin")
	require.NoError(t, err)
	assert.Equal(t, []byte{1, 2, 3}, data)
}

func TestWritePayload_RejectsBadBase64(t *testing.T) {
	fs := afero.NewMemMapFs()
	_, err := WritePayload(fs, "out.bin", "not base64!!!")
	assert.Error(t, err)
}
