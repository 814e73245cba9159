package pypi

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/simonkienzler/reqsniffer/pkg/cache"
)

const numpyJSON = `{
  "info": {"name": "numpy", "version": "2.3.1", "summary": "Fundamental package for array computing in Python"},
  "releases": {
    "1.26.0": [{"yanked": false}],
    "2.3.1": [{"yanked": false}, {"yanked": false}],
    "2.0.0rc1": [{"yanked": true}],
    "0.9.6": []
  }
}`

func registry(t *testing.T, hits *atomic.Int32) *httptest.Server {
	t.Helper()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if hits != nil {
			hits.Add(1)
		}
		switch r.URL.Path {
		case "/numpy/json":
			fmt.Fprint(w, numpyJSON)
		case "/python-dateutil/json":
			fmt.Fprint(w, `{"info": {"name": "python-dateutil", "version": "2.9.0.post0"}, "releases": {"2.9.0.post0": [{}]}}`)
		default:
			http.NotFound(w, r)
		}
	}))
	t.Cleanup(srv.Close)
	return srv
}

func TestClient_FetchPackage(t *testing.T) {
	srv := registry(t, nil)
	c := NewClient(srv.URL, nil, nil)

	info, err := c.FetchPackage(context.Background(), "NumPy", false)
	require.NoError(t, err)

	assert.Equal(t, "numpy", info.Name)
	assert.Equal(t, "2.3.1", info.Version)
	assert.Equal(t, []string{"0.9.6", "1.26.0", "2.0.0rc1", "2.3.1"}, info.Releases)
	assert.Equal(t, []string{"2.0.0rc1"}, info.Yanked)

	assert.True(t, info.HasRelease("1.26.0"))
	assert.False(t, info.HasRelease("1.26.1"))
	assert.True(t, info.IsYanked("2.0.0rc1"))
	assert.False(t, info.IsYanked("0.9.6"))
}

func TestPackageInfo_MatchesEquivalentVersions(t *testing.T) {
	info := &PackageInfo{
		Releases: []string{"1.0rc1", "1.26.0", "2025.7.14"},
		Yanked:   []string{"1.0rc1"},
	}

	tests := []struct {
		version string
		release bool
		yanked  bool
	}{
		{version: "1.26", release: true},
		{version: "1.26.0.0", release: true},
		{version: "2025.07.14", release: true},
		{version: "1.0RC1", release: true, yanked: true},
		{version: "1.0.0rc1", release: true, yanked: true},
		{version: "1.27"},
		{version: "1.0rc2"},
	}

	for _, tt := range tests {
		t.Run(tt.version, func(t *testing.T) {
			assert.Equal(t, tt.release, info.HasRelease(tt.version))
			assert.Equal(t, tt.yanked, info.IsYanked(tt.version))
		})
	}
}

func TestClient_FetchPackage_NormalizesName(t *testing.T) {
	srv := registry(t, nil)
	c := NewClient(srv.URL, nil, nil)

	info, err := c.FetchPackage(context.Background(), "Python_DateUtil", false)
	require.NoError(t, err)
	assert.Equal(t, "2.9.0.post0", info.Version)
}

func TestClient_FetchPackage_NotFound(t *testing.T) {
	srv := registry(t, nil)
	c := NewClient(srv.URL, nil, nil)

	_, err := c.FetchPackage(context.Background(), "does-not-exist", false)
	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrNotFound), "got %v", err)
}

func TestClient_FetchPackage_RetriesServerErrors(t *testing.T) {
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if calls.Add(1) < 3 {
			w.WriteHeader(http.StatusBadGateway)
			return
		}
		fmt.Fprint(w, numpyJSON)
	}))
	defer srv.Close()

	c := NewClient(srv.URL, nil, nil)
	c.retryDelay = time.Millisecond

	info, err := c.FetchPackage(context.Background(), "numpy", false)
	require.NoError(t, err)
	assert.Equal(t, "2.3.1", info.Version)
	assert.Equal(t, int32(3), calls.Load())
}

func TestClient_FetchPackage_NoRetryOnClientError(t *testing.T) {
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		w.WriteHeader(http.StatusForbidden)
	}))
	defer srv.Close()

	c := NewClient(srv.URL, nil, nil)
	c.retryDelay = time.Millisecond

	_, err := c.FetchPackage(context.Background(), "numpy", false)
	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrNetwork))
	assert.Equal(t, int32(1), calls.Load())
}

func TestClient_FetchPackage_Cached(t *testing.T) {
	var hits atomic.Int32
	srv := registry(t, &hits)

	store, err := cache.New(t.TempDir(), time.Hour)
	require.NoError(t, err)
	c := NewClient(srv.URL, store, nil)

	for range 3 {
		_, err := c.FetchPackage(context.Background(), "numpy", false)
		require.NoError(t, err)
	}
	assert.Equal(t, int32(1), hits.Load())

	_, err = c.FetchPackage(context.Background(), "numpy", true)
	require.NoError(t, err)
	assert.Equal(t, int32(2), hits.Load())
}

func TestClient_FetchAll(t *testing.T) {
	srv := registry(t, nil)
	c := NewClient(srv.URL, nil, nil).WithConcurrency(2)

	found, missing, err := c.FetchAll(context.Background(), []string{"numpy", "nope", "python-dateutil", "also-nope"}, false)
	require.NoError(t, err)

	assert.Len(t, found, 2)
	assert.Equal(t, "2.3.1", found["numpy"].Version)
	assert.Equal(t, []string{"also-nope", "nope"}, missing)
}

func TestClient_FetchAll_NetworkFailure(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusTeapot)
	}))
	defer srv.Close()

	c := NewClient(srv.URL, nil, nil)

	_, _, err := c.FetchAll(context.Background(), []string{"numpy"}, false)
	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrNetwork))
}

func TestRetry_ContextCancelled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	err := retry(ctx, 3, time.Hour, func() error {
		return &retryableError{err: ErrNetwork}
	})
	assert.ErrorIs(t, err, context.Canceled)
}
