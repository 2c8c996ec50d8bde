package client

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"billscan/internal/core"
)

// ErrUnauthorized means the server rejected the session token.
var ErrUnauthorized = errors.New("not signed in or session expired")

// StatusError is a non-2xx answer other than 401.
type StatusError struct {
	Code    int
	Message string
}

func (e *StatusError) Error() string {
	if e.Message == "" {
		return fmt.Sprintf("server returned %d %s", e.Code, http.StatusText(e.Code))
	}
	return fmt.Sprintf("server returned %d: %s", e.Code, e.Message)
}

// Query selects bills. Nil criteria are not sent; a non-nil empty value
// is sent and selects the empty value.
type Query struct {
	Criteria core.Criteria
	Paid     *bool
}

// SyncStarted is the answer to a sync request.
type SyncStarted struct {
	Message string       `json:"message"`
	Job     core.SyncJob `json:"job"`
}

// Client calls the billscan API with the session token.
type Client struct {
	baseURL string
	token   string
	http    *http.Client
}

// New builds a client for s. A nil httpClient gets a 30s timeout.
func New(s Session, httpClient *http.Client) *Client {
	if httpClient == nil {
		httpClient = &http.Client{Timeout: 30 * time.Second}
	}
	base := strings.TrimRight(s.BaseURL, "/")
	if base == "" {
		base = DefaultBaseURL
	}
	return &Client{baseURL: base, token: s.Token, http: httpClient}
}

// LoginURL is where a browser starts Google sign-in. redirect, when set,
// must be a loopback URL that receives ?token=.
func (c *Client) LoginURL(redirect string) string {
	u := c.baseURL + "/auth/google"
	if redirect != "" {
		u += "?redirect=" + url.QueryEscape(redirect)
	}
	return u
}

// WithToken returns a copy of the client using token.
func (c *Client) WithToken(token string) *Client {
	cp := *c
	cp.token = token
	return &cp
}

func (c *Client) Me(ctx context.Context) (core.User, error) {
	var u core.User
	err := c.do(ctx, http.MethodGet, "/api/user/me", nil, &u)
	return u, err
}

func (c *Client) Bills(ctx context.Context, q Query) ([]core.Bill, error) {
	params := criteriaParams(q.Criteria)
	if q.Paid != nil {
		params.Set("paid", fmt.Sprint(*q.Paid))
	}
	var bills []core.Bill
	if err := c.do(ctx, http.MethodGet, "/api/bills", params, &bills); err != nil {
		return nil, err
	}
	return bills, nil
}

func (c *Client) Summary(ctx context.Context, criteria core.Criteria) (core.Summary, error) {
	var sum core.Summary
	err := c.do(ctx, http.MethodGet, "/api/bills/summary", criteriaParams(criteria), &sum)
	return sum, err
}

// Sync asks the server to scan the mailbox. An already running sync is
// returned instead of a new one.
func (c *Client) Sync(ctx context.Context) (SyncStarted, error) {
	var started SyncStarted
	err := c.do(ctx, http.MethodPost, "/api/sync", nil, &started)
	return started, err
}

func (c *Client) SyncStatus(ctx context.Context, id string) (core.SyncJob, error) {
	var job core.SyncJob
	err := c.do(ctx, http.MethodGet, "/api/sync/"+url.PathEscape(id), nil, &job)
	return job, err
}

// WaitSync polls the job every interval until it completes or fails. The
// caller re-reads bills afterwards.
func (c *Client) WaitSync(ctx context.Context, id string, interval time.Duration) (core.SyncJob, error) {
	if interval <= 0 {
		interval = 2 * time.Second
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		job, err := c.SyncStatus(ctx, id)
		if err != nil {
			return job, err
		}
		if job.Status.Done() {
			return job, nil
		}
		select {
		case <-ctx.Done():
			return job, ctx.Err()
		case <-ticker.C:
		}
	}
}

func criteriaParams(c core.Criteria) url.Values {
	params := url.Values{}
	if c.Vendor != nil {
		params.Set("vendor", *c.Vendor)
	}
	if c.Category != nil {
		params.Set("category", *c.Category)
	}
	if c.Month != nil {
		params.Set("month", *c.Month)
	}
	return params
}

func (c *Client) do(ctx context.Context, method, path string, params url.Values, out any) error {
	target := c.baseURL + path
	if len(params) > 0 {
		target += "?" + params.Encode()
	}

	req, err := http.NewRequestWithContext(ctx, method, target, nil)
	if err != nil {
		return fmt.Errorf("building request: %w", err)
	}
	req.Header.Set("Accept", "application/json")
	if c.token != "" {
		req.Header.Set("Authorization", "Bearer "+c.token)
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return fmt.Errorf("%s %s: %w", method, path, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusUnauthorized {
		return ErrUnauthorized
	}
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return statusError(resp)
	}

	if out == nil {
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("decoding %s response: %w", path, err)
	}
	return nil
}

func statusError(resp *http.Response) error {
	body, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
	var payload struct {
		Error string `json:"error"`
	}
	msg := strings.TrimSpace(string(body))
	if json.Unmarshal(body, &payload) == nil && payload.Error != "" {
		msg = payload.Error
	}
	return &StatusError{Code: resp.StatusCode, Message: msg}
}
