package downloader

import (
	"context"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/bluele/gcache"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func server(t *testing.T, hits *int32) *httptest.Server {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(hits, 1)
		switch r.URL.Path {
		case "/feed":
			w.Write([]byte("feed:" + r.Header.Get("X-Api-Key")))
		case "/big":
			w.Write(make([]byte, 2048))
		case "/agent":
			w.Write([]byte(r.Header.Get("User-Agent")))
		case "/flaky":
			// Unavailable for the first two requests
			if atomic.LoadInt32(hits) <= 2 {
				w.WriteHeader(http.StatusServiceUnavailable)
				return
			}
			w.Write([]byte("feed"))
		case "/forbidden":
			w.WriteHeader(http.StatusForbidden)
		default:
			w.WriteHeader(http.StatusNotFound)
		}
	}))
	t.Cleanup(srv.Close)
	return srv
}

func TestHTTPGet(t *testing.T) {
	var hits int32
	srv := server(t, &hits)

	for _, tc := range []struct {
		name    string
		path    string
		options GetOptions
		body    string
		err     bool
	}{
		{"ok", "/feed", GetOptions{}, "feed:key", false},
		{"not found", "/nope", GetOptions{}, "", true},
		{"within max size", "/feed", GetOptions{MaxSize: 8}, "feed:key", false},
		{"too big", "/big", GetOptions{MaxSize: 1024}, "", true},
	} {
		t.Run(tc.name, func(t *testing.T) {
			body, err := HTTPGet(context.Background(), srv.URL+tc.path, map[string]string{"X-Api-Key": "key"}, tc.options)
			if tc.err {
				assert.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tc.body, string(body))
		})
	}
}

func TestMemoryDownloaderCaches(t *testing.T) {
	var hits int32
	srv := server(t, &hits)
	clock := gcache.NewFakeClock()
	d := newMemoryDownloader(4, clock)

	opts := GetOptions{Cache: true, CacheTTL: time.Minute}
	for i := 0; i < 3; i++ {
		body, err := d.Get(context.Background(), srv.URL+"/feed", nil, opts)
		require.NoError(t, err)
		assert.Equal(t, "feed:", string(body))
	}
	assert.Equal(t, int32(1), atomic.LoadInt32(&hits))
	assert.Equal(t, 1, d.Len())

	// Expired
	clock.Advance(2 * time.Minute)
	assert.Equal(t, 0, d.Len())
	_, err := d.Get(context.Background(), srv.URL+"/feed", nil, opts)
	require.NoError(t, err)
	assert.Equal(t, int32(2), atomic.LoadInt32(&hits))
	assert.Equal(t, 1, d.Len())

	// Not cached unless asked
	_, err = d.Get(context.Background(), srv.URL+"/feed", nil, GetOptions{})
	require.NoError(t, err)
	assert.Equal(t, int32(3), atomic.LoadInt32(&hits))

	// Errors aren't cached
	_, err = d.Get(context.Background(), srv.URL+"/nope", nil, opts)
	assert.Error(t, err)
	_, err = d.Get(context.Background(), srv.URL+"/nope", nil, opts)
	assert.Error(t, err)
	assert.Equal(t, int32(5), atomic.LoadInt32(&hits))

	d.Purge()
	assert.Equal(t, 0, d.Len())
}

func TestHTTPGetHeaders(t *testing.T) {
	var hits int32
	srv := server(t, &hits)

	body, err := HTTPGet(context.Background(), srv.URL+"/agent", nil, GetOptions{})
	require.NoError(t, err)
	assert.Equal(t, UserAgent, string(body))

	body, err = HTTPGet(context.Background(), srv.URL+"/agent", map[string]string{"User-Agent": "custom"}, GetOptions{})
	require.NoError(t, err)
	assert.Equal(t, "custom", string(body))
}

func TestHTTPGetRetries(t *testing.T) {
	var hits int32
	srv := server(t, &hits)
	opts := GetOptions{Retries: 3, RetryDelay: time.Millisecond}

	body, err := HTTPGet(context.Background(), srv.URL+"/flaky", nil, opts)
	require.NoError(t, err)
	assert.Equal(t, "feed", string(body))
	assert.Equal(t, int32(3), atomic.LoadInt32(&hits))

	// Permanent failures aren't retried
	atomic.StoreInt32(&hits, 0)
	_, err = HTTPGet(context.Background(), srv.URL+"/forbidden", nil, opts)
	var statusErr *StatusError
	require.ErrorAs(t, err, &statusErr)
	assert.Equal(t, http.StatusForbidden, statusErr.StatusCode)
	assert.False(t, statusErr.Temporary())
	assert.Equal(t, int32(1), atomic.LoadInt32(&hits))

	// Out of retries
	atomic.StoreInt32(&hits, 0)
	_, err = HTTPGet(context.Background(), srv.URL+"/flaky", nil, GetOptions{Retries: 1, RetryDelay: time.Millisecond})
	require.ErrorAs(t, err, &statusErr)
	assert.Equal(t, http.StatusServiceUnavailable, statusErr.StatusCode)
	assert.True(t, statusErr.Temporary())
	assert.Equal(t, int32(2), atomic.LoadInt32(&hits))

	// Canceled while waiting to retry
	atomic.StoreInt32(&hits, 0)
	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	_, err = HTTPGet(ctx, srv.URL+"/flaky", nil, GetOptions{Retries: 3, RetryDelay: time.Hour})
	assert.ErrorIs(t, err, context.DeadlineExceeded)
	assert.Equal(t, int32(1), atomic.LoadInt32(&hits))
}
