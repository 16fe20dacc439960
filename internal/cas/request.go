package cas

import (
	"context"
	"fmt"
	"strings"

	"github.com/raysh454/casprobe/internal/webclient"
)

// DoRequest sends a body-less request and fails on transport errors and
// non-2xx answers.
func DoRequest(ctx context.Context, client webclient.WebClient, url, method string) (*webclient.Response, error) {
	method = strings.ToUpper(strings.TrimSpace(method))
	if method == "" {
		method = "GET"
	}

	resp, err := client.Do(ctx, &webclient.Request{Method: method, URL: url})
	if err != nil {
		return nil, fmt.Errorf("%w: %s %s: %w", ErrRequestFailed, method, url, err)
	}
	if !resp.OK() {
		return resp, &StatusError{
			Method:     method,
			URL:        url,
			StatusCode: resp.StatusCode,
			Body:       string(resp.Body),
		}
	}
	return resp, nil
}
