package downloader_test

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"transitboard.dev/gtfsrt/downloader"
)

func TestMemoryDownloaderCache(t *testing.T) {
	requests := 0
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		requests++
		w.Write([]byte("archive bytes"))
	}))
	defer server.Close()

	now := time.Date(2020, 1, 15, 12, 0, 0, 0, time.UTC)
	d := downloader.NewMemoryDownloader()
	d.TimeNow = func() time.Time { return now }

	opts := downloader.GetOptions{Cache: true, CacheTTL: time.Hour}

	body, err := d.Get(context.Background(), server.URL, nil, opts)
	require.NoError(t, err)
	assert.Equal(t, "archive bytes", string(body))
	assert.Equal(t, 1, requests)

	// Within the TTL: served from cache.
	_, err = d.Get(context.Background(), server.URL, nil, opts)
	require.NoError(t, err)
	assert.Equal(t, 1, requests)

	// TTL expired: refetched.
	now = now.Add(2 * time.Hour)
	_, err = d.Get(context.Background(), server.URL, nil, opts)
	require.NoError(t, err)
	assert.Equal(t, 2, requests)
}

func TestMemoryDownloaderNoCache(t *testing.T) {
	requests := 0
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		requests++
		w.Write([]byte("data"))
	}))
	defer server.Close()

	d := downloader.NewMemoryDownloader()

	for i := 0; i < 2; i++ {
		_, err := d.Get(context.Background(), server.URL, nil, downloader.GetOptions{})
		require.NoError(t, err)
	}
	assert.Equal(t, 2, requests)
}

func TestHTTPGetStatusError(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNotFound)
	}))
	defer server.Close()

	_, err := downloader.HTTPGet(context.Background(), server.URL, nil, downloader.GetOptions{})
	require.Error(t, err)

	var statusErr *downloader.StatusError
	require.ErrorAs(t, err, &statusErr)
	assert.Equal(t, http.StatusNotFound, statusErr.StatusCode)
}

func TestHTTPGetHeaders(t *testing.T) {
	var gotHeader string
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotHeader = r.Header.Get("x-api-key")
		w.Write([]byte("ok"))
	}))
	defer server.Close()

	_, err := downloader.HTTPGet(
		context.Background(),
		server.URL,
		map[string]string{"x-api-key": "secret"},
		downloader.GetOptions{},
	)
	require.NoError(t, err)
	assert.Equal(t, "secret", gotHeader)
}
