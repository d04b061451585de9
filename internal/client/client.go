// Package client talks to a jobmarket node over its HTTP API.
package client

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/cockroachdb/errors"

	"github.com/zerverless/jobmarket/internal/api"
	"github.com/zerverless/jobmarket/internal/check"
	"github.com/zerverless/jobmarket/internal/identity"
	"github.com/zerverless/jobmarket/internal/job"
	"github.com/zerverless/jobmarket/internal/market"
)

// APIError is a failed response. It unwraps to the sentinel named by Code,
// so errors.Is(err, job.ErrWorkerBusy) works across the wire.
type APIError struct {
	Status  int
	Code    string
	Message string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("%s (%s, http %d)", e.Message, e.Code, e.Status)
}

func (e *APIError) Unwrap() error {
	if err, ok := api.SentinelFor(e.Code); ok {
		return err
	}
	return nil
}

type Client struct {
	baseURL  string
	http     *http.Client
	identity string
	header   string
	token    string
}

type Option func(*Client)

// WithIdentity sends id in the identity header on every request.
func WithIdentity(id, header string) Option {
	return func(c *Client) {
		c.identity = id
		if header != "" {
			c.header = header
		}
	}
}

func WithToken(token string) Option {
	return func(c *Client) { c.token = token }
}

func WithHTTPClient(hc *http.Client) Option {
	return func(c *Client) { c.http = hc }
}

func New(baseURL string, opts ...Option) *Client {
	c := &Client{
		baseURL: strings.TrimRight(baseURL, "/"),
		http:    &http.Client{Timeout: 30 * time.Second},
		header:  identity.DefaultHeader,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// FeedURL is the websocket address of the node's event feed.
func (c *Client) FeedURL() string {
	u := c.baseURL + "/ws/feed"
	switch {
	case strings.HasPrefix(u, "https://"):
		return "wss://" + strings.TrimPrefix(u, "https://")
	case strings.HasPrefix(u, "http://"):
		return "ws://" + strings.TrimPrefix(u, "http://")
	}
	return u
}

func (c *Client) do(ctx context.Context, method, path string, body, out any) error {
	var rd io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			return errors.Wrap(err, "encode request")
		}
		rd = bytes.NewReader(data)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, rd)
	if err != nil {
		return errors.Wrap(err, "build request")
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if c.identity != "" {
		req.Header.Set(c.header, c.identity)
	}
	if c.token != "" {
		req.Header.Set("Authorization", "Bearer "+c.token)
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return errors.Wrapf(err, "%s %s", method, path)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 400 {
		apiErr := &APIError{Status: resp.StatusCode, Code: "internal", Message: resp.Status}
		var body struct {
			Error string `json:"error"`
			Code  string `json:"code"`
		}
		if err := json.NewDecoder(resp.Body).Decode(&body); err == nil {
			if body.Error != "" {
				apiErr.Message = body.Error
			}
			if body.Code != "" {
				apiErr.Code = body.Code
			}
		}
		return apiErr
	}

	if out == nil {
		return nil
	}
	return errors.Wrap(json.NewDecoder(resp.Body).Decode(out), "decode response")
}

func jobPath(id job.JobID, action string) string {
	p := fmt.Sprintf("/api/jobs/%d", id)
	if action != "" {
		p += "/" + action
	}
	return p
}

func (c *Client) Health(ctx context.Context) error {
	return c.do(ctx, http.MethodGet, "/health", nil, nil)
}

func (c *Client) Stats(ctx context.Context) (map[string]any, error) {
	var out map[string]any
	return out, c.do(ctx, http.MethodGet, "/stats", nil, &out)
}

func (c *Client) CreateJob(ctx context.Context, req api.CreateJobRequest) (*job.Job, error) {
	var j job.Job
	if err := c.do(ctx, http.MethodPost, "/api/jobs", req, &j); err != nil {
		return nil, err
	}
	return &j, nil
}

func (c *Client) GetJob(ctx context.Context, id job.JobID) (*job.Job, error) {
	var j job.Job
	if err := c.do(ctx, http.MethodGet, jobPath(id, ""), nil, &j); err != nil {
		return nil, err
	}
	return &j, nil
}

// ListJobs returns jobs in status; owner may be empty, an identity or "me".
func (c *Client) ListJobs(ctx context.Context, status job.Status, owner string) ([]*job.Job, error) {
	q := url.Values{"status": {string(status)}}
	if owner != "" {
		q.Set("owner", owner)
	}
	var out struct {
		Jobs []*job.Job `json:"jobs"`
	}
	if err := c.do(ctx, http.MethodGet, "/api/jobs?"+q.Encode(), nil, &out); err != nil {
		return nil, err
	}
	return out.Jobs, nil
}

func (c *Client) transition(ctx context.Context, id job.JobID, action string, body any) (*job.Job, error) {
	var j job.Job
	if err := c.do(ctx, http.MethodPost, jobPath(id, action), body, &j); err != nil {
		return nil, err
	}
	return &j, nil
}

func (c *Client) Obtain(ctx context.Context, id job.JobID) (*job.Job, error) {
	return c.transition(ctx, id, "obtain", nil)
}

func (c *Client) Submit(ctx context.Context, id job.JobID, result string) (*job.Job, error) {
	return c.transition(ctx, id, "submit", api.SubmitRequest{Result: result})
}

func (c *Client) Reject(ctx context.Context, id job.JobID, role job.Role) (*job.Job, error) {
	return c.transition(ctx, id, "reject", api.RoleRequest{Role: role.String()})
}

func (c *Client) Approve(ctx context.Context, id job.JobID, role job.Role) (*job.Job, error) {
	return c.transition(ctx, id, "approve", api.RoleRequest{Role: role.String()})
}

func (c *Client) Check(ctx context.Context, id job.JobID) (*check.Verdict, error) {
	var v check.Verdict
	if err := c.do(ctx, http.MethodGet, jobPath(id, "check"), nil, &v); err != nil {
		return nil, err
	}
	return &v, nil
}

func (c *Client) Me(ctx context.Context) (*market.Account, error) {
	var a market.Account
	if err := c.do(ctx, http.MethodGet, "/api/accounts/me", nil, &a); err != nil {
		return nil, err
	}
	return &a, nil
}

func (c *Client) Fund(ctx context.Context, to job.Identity, amount job.Amount) (*market.Account, error) {
	var a market.Account
	path := "/api/accounts/" + url.PathEscape(string(to)) + "/fund"
	if err := c.do(ctx, http.MethodPost, path, api.FundRequest{Amount: amount}, &a); err != nil {
		return nil, err
	}
	return &a, nil
}
