package downloader

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/cenkalti/backoff/v4"
)

const (
	UserAgent         = "tidbyt-transit/1.0"
	DefaultRetryDelay = time.Second
)

type GetOptions struct {
	// Larger responses are rejected, if positive.
	MaxSize  int
	Timeout  time.Duration
	Cache    bool
	CacheTTL time.Duration

	// Transient failures (network errors, 5xx and 429) are retried
	// this many times, with exponential backoff from RetryDelay.
	Retries    int
	RetryDelay time.Duration
}

// A thing capable of downloading a feed, optionally with caching
type Downloader interface {
	Get(ctx context.Context, url string, headers map[string]string, options GetOptions) ([]byte, error)
}

// Non-200 response from a feed server.
type StatusError struct {
	URL        string
	StatusCode int
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("status %d", e.StatusCode)
}

// Server side trouble and rate limiting may pass. Anything else in
// the 4xx range (bad API key, moved feed) won't.
func (e *StatusError) Temporary() bool {
	return e.StatusCode >= 500 || e.StatusCode == http.StatusTooManyRequests
}

// Gets a feed, retrying transient failures as configured. Doesn't
// cache. Provided as convenience for implementing custom
// Downloaders.
func HTTPGet(ctx context.Context, url string, headers map[string]string, options GetOptions) ([]byte, error) {
	client := &http.Client{
		Timeout: options.Timeout,
	}

	b := backoff.NewExponentialBackOff()
	b.InitialInterval = options.RetryDelay
	if b.InitialInterval <= 0 {
		b.InitialInterval = DefaultRetryDelay
	}
	b.MaxElapsedTime = 0

	return backoff.RetryWithData(func() ([]byte, error) {
		body, err := get(ctx, client, url, headers, options.MaxSize)
		if err != nil && !retryable(err) {
			return nil, backoff.Permanent(err)
		}
		return body, err
	}, backoff.WithContext(backoff.WithMaxRetries(b, uint64(max(options.Retries, 0))), ctx))
}

func retryable(err error) bool {
	switch e := err.(type) {
	case *StatusError:
		return e.Temporary()
	case *fetchError:
		return true
	}
	return false
}

// Failure to complete the request, as opposed to a bad response.
type fetchError struct {
	err error
}

func (e *fetchError) Error() string { return fmt.Sprintf("making request: %s", e.err) }
func (e *fetchError) Unwrap() error { return e.err }

func get(ctx context.Context, client *http.Client, url string, headers map[string]string, maxSize int) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, "GET", url, nil)
	if err != nil {
		return nil, fmt.Errorf("creating request: %w", err)
	}

	req.Header.Set("User-Agent", UserAgent)
	for k, v := range headers {
		req.Header.Set(k, v)
	}

	resp, err := client.Do(req)
	if err != nil {
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		return nil, &fetchError{err}
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, &StatusError{URL: url, StatusCode: resp.StatusCode}
	}

	var reader io.Reader = resp.Body
	if maxSize > 0 {
		reader = io.LimitReader(resp.Body, int64(maxSize)+1)
	}

	body, err := io.ReadAll(reader)
	if err != nil {
		return nil, fmt.Errorf("reading body: %w", err)
	}
	if maxSize > 0 && len(body) > maxSize {
		return nil, fmt.Errorf("body exceeds %d bytes", maxSize)
	}

	return body, nil
}
