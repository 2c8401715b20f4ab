package transport

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"net/http"
	"time"
)

const defaultRequestTimeout = 10 * time.Second

// Response is the part of an HTTP response the bootstraps care about.
type Response struct {
	StatusCode int
	Body       []byte
}

// HTTP sends the JSON requests used to talk to the matchmaker and the
// sessions service. The zero value uses a client with a 10 second timeout.
type HTTP struct {
	Client *http.Client
}

func NewHTTP(timeout time.Duration) HTTP {
	if timeout <= 0 {
		timeout = defaultRequestTimeout
	}
	return HTTP{Client: &http.Client{Timeout: timeout}}
}

// PostHTTP sends body to url as JSON. A nil body is sent as an empty object.
func (h HTTP) PostHTTP(ctx context.Context, url string, body []byte) (*Response, error) {
	if body == nil {
		body = []byte("{}")
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("error building POST %s: %w", url, err)
	}
	req.Header.Set("Content-Type", "application/json")
	return h.do(req)
}

// GetHTTP fetches url.
func (h HTTP) GetHTTP(ctx context.Context, url string) (*Response, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, fmt.Errorf("error building GET %s: %w", url, err)
	}
	req.Header.Set("Accept", "application/json")
	return h.do(req)
}

func (h HTTP) do(req *http.Request) (*Response, error) {
	client := h.Client
	if client == nil {
		client = &http.Client{Timeout: defaultRequestTimeout}
	}

	resp, err := client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("error calling %s %s: %w", req.Method, req.URL, err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("error reading response from %s: %w", req.URL, err)
	}
	return &Response{StatusCode: resp.StatusCode, Body: body}, nil
}
