package chatwoot

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"time"

	"zapdesk/internal/ports"
	apperrors "zapdesk/pkg/errors"
	"zapdesk/platform/logger"
)

const (
	mediaFetchAttempts  = 5
	mediaFetchBaseDelay = 500 * time.Millisecond
	mediaFetchMaxDelay  = 10 * time.Second
)

// ErrMediaTooLarge marks attachments over the configured size cap. The
// bridge degrades to a placeholder message instead of failing the event.
var ErrMediaTooLarge = errors.New("media exceeds size limit")

// MediaFetcher downloads attachment bytes. Remote media propagates
// asynchronously, so a 404 is retried with exponential backoff; a 403
// means the link expired and retrying cannot help.
type MediaFetcher struct {
	httpClient *http.Client
	logger     *logger.Logger
	maxBytes   int64
	attempts   int
	baseDelay  time.Duration
	maxDelay   time.Duration
}

func NewMediaFetcher(maxBytes int64, logger *logger.Logger) *MediaFetcher {
	return &MediaFetcher{
		httpClient: &http.Client{
			Timeout: 60 * time.Second,
		},
		logger:    logger.WithModule("media-fetcher"),
		maxBytes:  maxBytes,
		attempts:  mediaFetchAttempts,
		baseDelay: mediaFetchBaseDelay,
		maxDelay:  mediaFetchMaxDelay,
	}
}

// FetchInbound pulls the bytes for an inbound attachment, preferring the
// chat client's own download path over a plain URL.
func (f *MediaFetcher) FetchInbound(ctx context.Context, media *ports.InboundMedia) ([]byte, error) {
	if media.Size > 0 && f.maxBytes > 0 && media.Size > f.maxBytes {
		return nil, fmt.Errorf("%w: %d bytes", ErrMediaTooLarge, media.Size)
	}

	if media.Download != nil {
		data, err := media.Download(ctx)
		if err != nil {
			return nil, apperrors.Transient("media download", err)
		}
		if f.maxBytes > 0 && int64(len(data)) > f.maxBytes {
			return nil, fmt.Errorf("%w: %d bytes", ErrMediaTooLarge, len(data))
		}
		return data, nil
	}

	if media.URL != "" {
		data, _, err := f.FetchURL(ctx, media.URL)
		return data, err
	}

	return nil, apperrors.Permanent("media download", errors.New("no download source"))
}

// FetchURL downloads from a plain HTTP URL with the retry policy. Returns
// the bytes and the content type.
func (f *MediaFetcher) FetchURL(ctx context.Context, url string) ([]byte, string, error) {
	var lastErr error

	for attempt := 0; attempt < f.attempts; attempt++ {
		if attempt > 0 {
			delay := f.backoffDelay(attempt)
			f.logger.DebugWithFields("Retrying media fetch", map[string]interface{}{
				"attempt":  attempt + 1,
				"delay_ms": delay.Milliseconds(),
			})
			select {
			case <-ctx.Done():
				return nil, "", ctx.Err()
			case <-time.After(delay):
			}
		}

		data, contentType, err := f.fetchOnce(ctx, url)
		if err == nil {
			return data, contentType, nil
		}
		if apperrors.IsPermanent(err) || errors.Is(err, ErrMediaTooLarge) {
			return nil, "", err
		}
		lastErr = err
	}

	return nil, "", apperrors.Transient("media fetch",
		fmt.Errorf("exhausted %d attempts: %w", f.attempts, lastErr))
}

func (f *MediaFetcher) fetchOnce(ctx context.Context, url string) ([]byte, string, error) {
	req, err := http.NewRequestWithContext(ctx, "GET", url, nil)
	if err != nil {
		return nil, "", apperrors.Permanent("media fetch", err)
	}

	resp, err := f.httpClient.Do(req)
	if err != nil {
		return nil, "", apperrors.Transient("media fetch", err)
	}
	defer func() { _ = resp.Body.Close() }()

	switch {
	case resp.StatusCode == http.StatusOK:
	case resp.StatusCode == http.StatusNotFound:
		// Media may not have propagated to the CDN yet
		return nil, "", apperrors.Transient("media fetch",
			fmt.Errorf("media not available yet (status 404)"))
	case resp.StatusCode == http.StatusForbidden:
		return nil, "", apperrors.Permanent("media fetch",
			fmt.Errorf("media link expired (status 403)"))
	case resp.StatusCode >= 500 || resp.StatusCode == http.StatusTooManyRequests:
		return nil, "", apperrors.Transient("media fetch",
			fmt.Errorf("media fetch failed with status %d", resp.StatusCode))
	default:
		return nil, "", apperrors.Permanent("media fetch",
			fmt.Errorf("media fetch failed with status %d", resp.StatusCode))
	}

	reader := io.Reader(resp.Body)
	if f.maxBytes > 0 {
		reader = io.LimitReader(resp.Body, f.maxBytes+1)
	}

	data, err := io.ReadAll(reader)
	if err != nil {
		return nil, "", apperrors.Transient("media fetch", err)
	}
	if f.maxBytes > 0 && int64(len(data)) > f.maxBytes {
		return nil, "", fmt.Errorf("%w: over %d bytes", ErrMediaTooLarge, f.maxBytes)
	}

	return data, resp.Header.Get("Content-Type"), nil
}

func (f *MediaFetcher) backoffDelay(attempt int) time.Duration {
	delay := f.baseDelay << (attempt - 1)
	if delay > f.maxDelay {
		delay = f.maxDelay
	}
	return delay
}
