// Package client is the HTTP client of the task store service. TasksRemote
// and TargetsRemote satisfy optimistic.Remote for the two entity kinds.
package client

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/meikuraledutech/tasktree"
)

// Client talks to a task store service base URL.
type Client struct {
	base string
	hc   *http.Client
}

// New creates a client for the service at base, e.g. "http://localhost:3000".
func New(base string) *Client {
	return &Client{
		base: strings.TrimRight(base, "/"),
		hc:   &http.Client{Timeout: 30 * time.Second},
	}
}

// NewWithHTTPClient creates a client using the given http.Client.
func NewWithHTTPClient(base string, hc *http.Client) *Client {
	return &Client{base: strings.TrimRight(base, "/"), hc: hc}
}

// Tasks returns the task-tree surface of the service.
func (c *Client) Tasks() *TasksRemote { return &TasksRemote{c: c} }

// Targets returns the goal-target surface for one goal.
func (c *Client) Targets(goalID int64) *TargetsRemote { return &TargetsRemote{c: c, goalID: goalID} }

// do sends a JSON request and decodes the JSON response into out (when out is
// non-nil). Service error statuses map back onto the package's sentinel
// errors: 404 → ErrNotFound, 422 → ErrInvalidMove.
func (c *Client) do(ctx context.Context, method, path string, body, out any) error {
	var rdr io.Reader
	if body != nil {
		buf, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("client: encode %s %s: %w", method, path, err)
		}
		rdr = bytes.NewReader(buf)
	}
	req, err := http.NewRequestWithContext(ctx, method, c.base+path, rdr)
	if err != nil {
		return fmt.Errorf("client: %s %s: %w", method, path, err)
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	resp, err := c.hc.Do(req)
	if err != nil {
		return fmt.Errorf("client: %s %s: %w", method, path, err)
	}
	defer resp.Body.Close()

	switch {
	case resp.StatusCode == http.StatusNotFound:
		return tasktree.ErrNotFound
	case resp.StatusCode == http.StatusUnprocessableEntity:
		return tasktree.ErrInvalidMove
	case resp.StatusCode >= 400:
		var e struct {
			Error string `json:"error"`
		}
		_ = json.NewDecoder(resp.Body).Decode(&e)
		return fmt.Errorf("client: %s %s: status %d: %s", method, path, resp.StatusCode, e.Error)
	}
	if out == nil {
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("%w: %s %s: %v", tasktree.ErrMalformedResponse, method, path, err)
	}
	return nil
}
