package auth

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"
)

// DefaultVerifyTimeout bounds a verification request when the context has no
// deadline.
const DefaultVerifyTimeout = 5 * time.Second

// HTTPVerifier forwards parameters to an auth endpoint with a GET request.
type HTTPVerifier struct {
	// URL of the endpoint. Parameters are appended as the query string.
	URL string

	// Client sends the request. Default: http.DefaultClient.
	Client *http.Client

	// Timeout applies when ctx has no deadline. Default: DefaultVerifyTimeout.
	Timeout time.Duration
}

// Verify calls the endpoint. A non-2xx status or an undecodable body is an
// error wrapping ErrEndpoint; a rejection is a Result, not an error.
func (v *HTTPVerifier) Verify(ctx context.Context, params string) (Result, error) {
	if v.URL == "" {
		return Result{}, ErrNoURL
	}
	if _, ok := ctx.Deadline(); !ok {
		timeout := v.Timeout
		if timeout <= 0 {
			timeout = DefaultVerifyTimeout
		}
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, timeout)
		defer cancel()
	}

	target := v.URL
	if params != "" {
		sep := "?"
		if strings.Contains(target, "?") {
			sep = "&"
		}
		target += sep + strings.TrimPrefix(params, "?")
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, target, nil)
	if err != nil {
		return Result{}, fmt.Errorf("%w: %v", ErrEndpoint, err)
	}
	client := v.Client
	if client == nil {
		client = http.DefaultClient
	}
	resp, err := client.Do(req)
	if err != nil {
		return Result{}, fmt.Errorf("%w: %v", ErrEndpoint, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		io.Copy(io.Discard, resp.Body)
		return Result{}, fmt.Errorf("%w: status %d", ErrEndpoint, resp.StatusCode)
	}

	var res Result
	if err := json.NewDecoder(resp.Body).Decode(&res); err != nil {
		return Result{}, fmt.Errorf("%w: decode result: %v", ErrEndpoint, err)
	}
	return res, nil
}
