package httputil

import (
	"context"
	"fmt"
	"io"
	"net/http"
)

// MaxFetchSize caps the body read by Fetch.
const MaxFetchSize = 8 << 20

// StatusError reports a completed request whose status was not 2xx.
type StatusError struct {
	StatusCode int
	URL        string
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("response status code is not success: %d %s (%s)", e.StatusCode, http.StatusText(e.StatusCode), e.URL)
}

// Fetch GETs url through Do and returns the body of a 2xx response.
func Fetch(ctx context.Context, client *http.Client, url string, cfg RetryConfig) ([]byte, error) {
	resp, err := Do(ctx, client, http.MethodGet, url, nil, nil, cfg)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		io.Copy(io.Discard, io.LimitReader(resp.Body, 64<<10))
		return nil, &StatusError{StatusCode: resp.StatusCode, URL: url}
	}

	body, err := io.ReadAll(io.LimitReader(resp.Body, MaxFetchSize+1))
	if err != nil {
		return nil, fmt.Errorf("read body of %s: %w", url, err)
	}
	if len(body) > MaxFetchSize {
		return nil, fmt.Errorf("response from %s exceeds %d bytes", url, MaxFetchSize)
	}
	return body, nil
}
