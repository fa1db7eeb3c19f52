package chatwoot

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"zapdesk/internal/ports"
	apperrors "zapdesk/pkg/errors"
	"zapdesk/platform/logger"
)

func newTestMediaFetcher(maxBytes int64) *MediaFetcher {
	f := NewMediaFetcher(maxBytes, logger.NewWithConfig(logger.TestConfig()))
	f.baseDelay = time.Millisecond
	f.maxDelay = 5 * time.Millisecond
	return f
}

func TestFetchURLSuccess(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "image/png")
		_, _ = w.Write([]byte("pngbytes"))
	}))
	defer server.Close()

	fetcher := newTestMediaFetcher(1024)
	data, contentType, err := fetcher.FetchURL(context.Background(), server.URL)
	require.NoError(t, err)
	assert.Equal(t, []byte("pngbytes"), data)
	assert.Equal(t, "image/png", contentType)
}

func TestFetchURLRetriesOn404(t *testing.T) {
	var hits int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if atomic.AddInt32(&hits, 1) < 3 {
			w.WriteHeader(http.StatusNotFound)
			return
		}
		_, _ = w.Write([]byte("late"))
	}))
	defer server.Close()

	fetcher := newTestMediaFetcher(1024)
	data, _, err := fetcher.FetchURL(context.Background(), server.URL)
	require.NoError(t, err)
	assert.Equal(t, []byte("late"), data)
	assert.Equal(t, int32(3), atomic.LoadInt32(&hits))
}

func TestFetchURL403IsPermanent(t *testing.T) {
	var hits int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&hits, 1)
		w.WriteHeader(http.StatusForbidden)
	}))
	defer server.Close()

	fetcher := newTestMediaFetcher(1024)
	_, _, err := fetcher.FetchURL(context.Background(), server.URL)
	require.Error(t, err)
	assert.True(t, apperrors.IsPermanent(err))
	// No retries on an expired link
	assert.Equal(t, int32(1), atomic.LoadInt32(&hits))
}

func TestFetchURLExhaustsRetries(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNotFound)
	}))
	defer server.Close()

	fetcher := newTestMediaFetcher(1024)
	_, _, err := fetcher.FetchURL(context.Background(), server.URL)
	require.Error(t, err)
	assert.True(t, apperrors.IsTransient(err))
}

func TestFetchURLOversizeBody(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write(make([]byte, 2048))
	}))
	defer server.Close()

	fetcher := newTestMediaFetcher(1024)
	_, _, err := fetcher.FetchURL(context.Background(), server.URL)
	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrMediaTooLarge))
}

func TestFetchInboundPrefersDownload(t *testing.T) {
	fetcher := newTestMediaFetcher(1024)
	media := &ports.InboundMedia{
		URL: "http://should-not-be-hit.invalid/file",
		Download: func(ctx context.Context) ([]byte, error) {
			return []byte("direct"), nil
		},
	}

	data, err := fetcher.FetchInbound(context.Background(), media)
	require.NoError(t, err)
	assert.Equal(t, []byte("direct"), data)
}

func TestFetchInboundDeclaredSizeOverLimit(t *testing.T) {
	fetcher := newTestMediaFetcher(1024)
	media := &ports.InboundMedia{
		Size: 4096,
		Download: func(ctx context.Context) ([]byte, error) {
			t.Fatal("download must not run for oversize media")
			return nil, nil
		},
	}

	_, err := fetcher.FetchInbound(context.Background(), media)
	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrMediaTooLarge))
}

func TestFetchInboundNoSource(t *testing.T) {
	fetcher := newTestMediaFetcher(1024)
	_, err := fetcher.FetchInbound(context.Background(), &ports.InboundMedia{})
	require.Error(t, err)
	assert.True(t, apperrors.IsPermanent(err))
}
