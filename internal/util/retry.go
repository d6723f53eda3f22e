package util

import (
	"context"
	"io"
	"net/http"
	"time"

	"github.com/failsafe-go/failsafe-go"
	"github.com/failsafe-go/failsafe-go/retrypolicy"
	"github.com/pkg/errors"
)

// HTTPResult is a response whose body has already been read and closed, so
// discarded attempts never leak connections.
type HTTPResult struct {
	StatusCode int
	Header     http.Header
	Body       []byte
}

// RetryableHTTP reports whether an attempt should be retried: transport
// errors, 5xx responses and 429s are.
func RetryableHTTP(res *HTTPResult, err error) bool {
	if err != nil {
		return true
	}
	return res.StatusCode >= http.StatusInternalServerError || res.StatusCode == http.StatusTooManyRequests
}

// NewHTTPRetryPolicy retries up to maxRetries times with exponential
// backoff between baseDelay and maxDelay. After the last attempt the last
// response or error is returned as is.
func NewHTTPRetryPolicy(maxRetries int, baseDelay, maxDelay time.Duration) retrypolicy.RetryPolicy[*HTTPResult] {
	b := retrypolicy.NewBuilder[*HTTPResult]().
		HandleIf(RetryableHTTP).
		WithMaxRetries(maxRetries).
		ReturnLastFailure()
	if baseDelay > 0 {
		if maxDelay < baseDelay {
			maxDelay = baseDelay
		}
		b = b.WithBackoff(baseDelay, maxDelay)
	}
	return b.Build()
}

// DoHTTP sends the request built by newReq through policy. newReq is called
// for every attempt.
func DoHTTP(ctx context.Context, client *http.Client, policy retrypolicy.RetryPolicy[*HTTPResult], newReq func(ctx context.Context) (*http.Request, error)) (*HTTPResult, error) {
	return failsafe.With[*HTTPResult](policy).WithContext(ctx).Get(func() (*HTTPResult, error) {
		req, err := newReq(ctx)
		if err != nil {
			return nil, err
		}
		resp, err := client.Do(req)
		if err != nil {
			return nil, errors.Wrapf(err, "%s %s", req.Method, req.URL.Path)
		}
		defer resp.Body.Close()

		body, err := io.ReadAll(resp.Body)
		if err != nil {
			return nil, errors.Wrap(err, "reading response body")
		}
		return &HTTPResult{StatusCode: resp.StatusCode, Header: resp.Header, Body: body}, nil
	})
}
