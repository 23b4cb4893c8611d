package httpclient

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"roomlink/internal/credentials"
)

// Client talks JSON to the backend REST API. The bearer token is read from
// the credential store on every request.
type Client struct {
	baseURL string
	http    *http.Client
	store   credentials.Store
}

func New(baseURL string, store credentials.Store, timeout time.Duration) *Client {
	return &Client{
		baseURL: strings.TrimRight(baseURL, "/"),
		http:    &http.Client{Timeout: timeout},
		store:   store,
	}
}

// Response is a fully read HTTP response.
type Response struct {
	Status int
	Body   []byte
}

func (r *Response) OK() bool {
	return r.Status >= 200 && r.Status < 300
}

// Decode unmarshals the body into out. Empty bodies decode to nothing.
func (r *Response) Decode(out interface{}) error {
	if out == nil || len(bytes.TrimSpace(r.Body)) == 0 {
		return nil
	}
	if err := json.Unmarshal(r.Body, out); err != nil {
		return fmt.Errorf("failed to decode response: %w", err)
	}
	return nil
}

// Err returns an *APIError for non-2xx responses.
func (r *Response) Err() error {
	if r.OK() {
		return nil
	}
	return &APIError{Status: r.Status, Message: ExtractMessage(r.Status, r.Body)}
}

// Send performs the request and returns the response whatever its status.
// Only failures to get a response at all are returned as errors.
func (c *Client) Send(ctx context.Context, method, path string, in interface{}) (*Response, error) {
	var body io.Reader
	if in != nil {
		data, err := json.Marshal(in)
		if err != nil {
			return nil, fmt.Errorf("failed to encode request: %w", err)
		}
		body = bytes.NewReader(data)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, body)
	if err != nil {
		return nil, fmt.Errorf("failed to build request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "application/json")

	if c.store != nil {
		token, err := c.store.Token(ctx)
		if err != nil {
			return nil, fmt.Errorf("failed to read token: %w", err)
		}
		if token = credentials.Normalize(token); token != "" {
			req.Header.Set("Authorization", "Bearer "+token)
		}
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, fmt.Errorf("%s %s: %w", method, path, err)
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("failed to read response: %w", err)
	}

	return &Response{Status: resp.StatusCode, Body: data}, nil
}

// Do sends the request, turns non-2xx responses into *APIError and decodes
// the body into out.
func (c *Client) Do(ctx context.Context, method, path string, in, out interface{}) error {
	resp, err := c.Send(ctx, method, path, in)
	if err != nil {
		return err
	}
	if err := resp.Err(); err != nil {
		return err
	}
	if resp.Status == http.StatusNoContent {
		return nil
	}
	return resp.Decode(out)
}
