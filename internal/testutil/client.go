// Package testutil provides helpers shared by integration tests.
package testutil

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"testing"
)

// Client calls the API of a running test server. When a validator is set, every
// response is checked against the OpenAPI document.
type Client struct {
	BaseURL    string
	Token      string
	HTTPClient *http.Client
	Validator  *OpenAPIValidator
	t          *testing.T
}

// NewClient creates a client for baseURL. validator may be nil.
func NewClient(t *testing.T, baseURL string, validator *OpenAPIValidator) *Client {
	return &Client{
		BaseURL:    baseURL,
		HTTPClient: &http.Client{},
		Validator:  validator,
		t:          t,
	}
}

// WithToken returns a copy that sends token as a bearer credential.
func (c *Client) WithToken(token string) *Client {
	clone := *c
	clone.Token = token
	return &clone
}

// WithoutValidation returns a copy that skips OpenAPI checks, for deliberately malformed calls.
func (c *Client) WithoutValidation() *Client {
	clone := *c
	clone.Validator = nil
	return &clone
}

// GET performs a GET request.
func (c *Client) GET(path string) (*http.Response, error) {
	return c.Do(http.MethodGet, path, nil, nil)
}

// POST performs a POST request with a JSON body.
func (c *Client) POST(path string, body any) (*http.Response, error) {
	data, err := json.Marshal(body)
	if err != nil {
		return nil, fmt.Errorf("marshal body: %w", err)
	}
	return c.Do(http.MethodPost, path, data, nil)
}

// Do sends body as is with the extra headers, e.g. a webhook signature.
func (c *Client) Do(method, path string, body []byte, header http.Header) (*http.Response, error) {
	var reader io.Reader
	if body != nil {
		reader = bytes.NewReader(body)
	}

	req, err := http.NewRequest(method, c.BaseURL+path, reader)
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}

	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	for k, vs := range header {
		for _, v := range vs {
			req.Header.Add(k, v)
		}
	}
	if c.Token != "" {
		req.Header.Set("Authorization", "Bearer "+c.Token)
	}

	resp, err := c.HTTPClient.Do(req)
	if err != nil {
		return nil, err
	}

	if c.Validator != nil && c.t != nil {
		c.Validator.ValidateResponse(c.t, req, resp)
	}

	return resp, nil
}

// DecodeJSON decodes and closes the response body.
func DecodeJSON(t *testing.T, resp *http.Response, v any) {
	t.Helper()
	defer func() { _ = resp.Body.Close() }()

	if err := json.NewDecoder(resp.Body).Decode(v); err != nil {
		t.Fatalf("decode response: %v", err)
	}
}

// ReadBody reads and closes the response body.
func ReadBody(t *testing.T, resp *http.Response) string {
	t.Helper()
	defer func() { _ = resp.Body.Close() }()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		t.Fatalf("read body: %v", err)
	}
	return string(body)
}
