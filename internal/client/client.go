// Package client talks to a window endpoint over loopback HTTP.
//
// Every call takes a context and is expected to carry a short deadline; the
// client itself adds none so callers decide how long a probe may take.
package client

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"

	"github.com/codefionn/vo/internal/protocol"
)

const maxResponseBytes = 1 << 20

var (
	// ErrUnreachable wraps transport failures: refused connections, timeouts, resets.
	ErrUnreachable = errors.New("endpoint unreachable")
	// ErrBadResponse wraps replies that are not the expected JSON document.
	ErrBadResponse = errors.New("unexpected endpoint response")
)

// Client is bound to one endpoint address ("127.0.0.1:47301").
type Client struct {
	endpoint string
	http     *http.Client
}

// New returns a client for endpoint.
func New(endpoint string) *Client {
	transport := &http.Transport{
		Proxy:             nil,
		DisableKeepAlives: true,
		DialContext:       (&net.Dialer{}).DialContext,
	}
	return &Client{
		endpoint: endpoint,
		http:     &http.Client{Transport: transport},
	}
}

// Endpoint returns the address this client talks to.
func (c *Client) Endpoint() string {
	return c.endpoint
}

// Identity calls the liveness and identity probe.
func (c *Client) Identity(ctx context.Context) (*protocol.IdentityResponse, error) {
	var resp protocol.IdentityResponse
	if err := c.do(ctx, http.MethodGet, protocol.PathHealth, nil, &resp); err != nil {
		return nil, err
	}
	return &resp, nil
}

// Open dispatches an open request. Endpoint-reported failures come back as a
// response with Success=false, not as an error.
func (c *Client) Open(ctx context.Context, req protocol.OpenRequest) (*protocol.OpenResponse, error) {
	var resp protocol.OpenResponse
	if err := c.do(ctx, http.MethodPost, protocol.PathOpen, req, &resp); err != nil {
		return nil, err
	}
	return &resp, nil
}

// Files lists the files open in the window.
func (c *Client) Files(ctx context.Context) (*protocol.FilesResponse, error) {
	var resp protocol.FilesResponse
	if err := c.do(ctx, http.MethodGet, protocol.PathFiles, nil, &resp); err != nil {
		return nil, err
	}
	return &resp, nil
}

// Focus tells the window it should treat itself as focused.
func (c *Client) Focus(ctx context.Context) error {
	var resp protocol.Ack
	if err := c.do(ctx, http.MethodPost, protocol.PathFocus, nil, &resp); err != nil {
		return err
	}
	if !resp.Success {
		return fmt.Errorf("focus rejected by %s: %s", c.endpoint, resp.Error)
	}
	return nil
}

func (c *Client) do(ctx context.Context, method, path string, body, out any) error {
	var reader io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("failed to encode request: %w", err)
		}
		reader = bytes.NewReader(data)
	}

	req, err := http.NewRequestWithContext(ctx, method, "http://"+c.endpoint+path, reader)
	if err != nil {
		return fmt.Errorf("%w: %s: %v", ErrUnreachable, c.endpoint, err)
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	req.Header.Set("Accept", "application/json")

	resp, err := c.http.Do(req)
	if err != nil {
		return fmt.Errorf("%w: %s: %v", ErrUnreachable, c.endpoint, err)
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseBytes))
	if err != nil {
		return fmt.Errorf("%w: %s: %v", ErrUnreachable, c.endpoint, err)
	}

	// Error statuses still carry a JSON body describing the failure.
	if err := json.Unmarshal(data, out); err != nil {
		return fmt.Errorf("%w: %s %s returned %d: %v", ErrBadResponse, method, path, resp.StatusCode, err)
	}
	return nil
}
