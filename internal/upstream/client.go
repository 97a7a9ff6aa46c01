// Package upstream talks to the backend session service. It performs exactly
// one HTTP exchange per call and never retries; callers decide what a failed
// exchange means.
package upstream

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/hashicorp/go-cleanhttp"
)

// ErrTransport marks failures where no backend response was obtained.
var ErrTransport = errors.New("upstream transport failure")

// Call describes one outbound request.
type Call struct {
	Method      string
	Path        string
	Query       url.Values
	Body        []byte
	ContentType string
	BearerToken string
	// Cookie is forwarded verbatim as the Cookie header.
	Cookie    string
	RequestID string
}

// Response is a fully read backend answer.
type Response struct {
	Status int
	Header http.Header
	Body   []byte
}

func (r Response) OK() bool {
	return r.Status >= 200 && r.Status < 300
}

// IsJSON reports whether the body is a well-formed JSON document.
func (r Response) IsJSON() bool {
	return json.Valid(r.Body)
}

// Decode unmarshals the body into out.
func (r Response) Decode(out any) error {
	if err := json.Unmarshal(r.Body, out); err != nil {
		return fmt.Errorf("decode upstream body: %w", err)
	}
	return nil
}

// Client is safe for concurrent use.
type Client struct {
	baseURL    string
	httpClient *http.Client
}

func NewClient(baseURL string, timeout time.Duration) *Client {
	httpClient := cleanhttp.DefaultPooledClient()
	httpClient.Timeout = timeout
	return NewClientWithHTTP(baseURL, httpClient)
}

func NewClientWithHTTP(baseURL string, httpClient *http.Client) *Client {
	return &Client{
		baseURL:    strings.TrimRight(baseURL, "/"),
		httpClient: httpClient,
	}
}

func (c *Client) BaseURL() string {
	return c.baseURL
}

// Do sends the call and reads the whole response. Any error it returns wraps
// ErrTransport.
func (c *Client) Do(ctx context.Context, call Call) (Response, error) {
	target := c.baseURL + call.Path
	if len(call.Query) > 0 {
		target += "?" + call.Query.Encode()
	}

	var body io.Reader
	if call.Body != nil {
		body = bytes.NewReader(call.Body)
	}

	req, err := http.NewRequestWithContext(ctx, call.Method, target, body)
	if err != nil {
		return Response{}, fmt.Errorf("%w: build request: %v", ErrTransport, err)
	}

	if call.ContentType != "" {
		req.Header.Set("Content-Type", call.ContentType)
	}
	if call.BearerToken != "" {
		req.Header.Set("Authorization", "Bearer "+call.BearerToken)
	}
	if call.Cookie != "" {
		req.Header.Set("Cookie", call.Cookie)
	}
	if call.RequestID != "" {
		req.Header.Set("X-Request-Id", call.RequestID)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return Response{}, fmt.Errorf("%w: %s %s: %v", ErrTransport, call.Method, call.Path, err)
	}
	defer func() {
		_ = resp.Body.Close()
	}()

	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return Response{}, fmt.Errorf("%w: read body: %v", ErrTransport, err)
	}

	return Response{
		Status: resp.StatusCode,
		Header: resp.Header,
		Body:   raw,
	}, nil
}

// Probe issues a GET and reports whether the backend answered 2xx.
func (c *Client) Probe(ctx context.Context, path string) error {
	resp, err := c.Do(ctx, Call{Method: http.MethodGet, Path: path})
	if err != nil {
		return err
	}
	if !resp.OK() {
		return fmt.Errorf("probe %s: status %d", path, resp.Status)
	}
	return nil
}
