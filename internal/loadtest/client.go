package loadtest

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/okian/placement/internal/domain/types"
)

// ErrUnexpectedStatus is returned when the server answers with a status the
// call does not expect.
var ErrUnexpectedStatus = errors.New("unexpected status")

// Client talks to a placement server over its JSON API.
type Client struct {
	baseURL string
	client  *http.Client
}

// SubmitResult is the outcome of one POST /runs.
type SubmitResult struct {
	RunID     string `json:"run_id"`
	Status    string `json:"status"`
	Duplicate bool   `json:"duplicate"`
	Code      int    `json:"-"`
}

// NewClient creates a client with a per-request timeout.
func NewClient(baseURL string, timeout time.Duration) *Client {
	return &Client{
		baseURL: baseURL,
		client:  &http.Client{Timeout: timeout},
	}
}

// Health checks that /healthz answers 200.
func (c *Client) Health(ctx context.Context) error {
	resp, err := c.do(ctx, http.MethodGet, "/healthz", nil, nil)
	if err != nil {
		return err
	}
	_, err = readBody(resp, http.StatusOK)
	return err
}

// PutDataset uploads a dataset document and returns the id it was given.
func (c *Client) PutDataset(ctx context.Context, doc any) (string, error) {
	resp, err := c.do(ctx, http.MethodPost, "/dataset", doc, nil)
	if err != nil {
		return "", err
	}
	body, err := readBody(resp, http.StatusCreated)
	if err != nil {
		return "", err
	}
	var out struct {
		ID string `json:"id"`
	}
	if err := json.Unmarshal(body, &out); err != nil {
		return "", fmt.Errorf("decode dataset response: %w", err)
	}
	return out.ID, nil
}

// Submit queues a run. Backpressure answers are reported through Code
// rather than as errors.
func (c *Client) Submit(ctx context.Context, req types.AllocateRequest, key string) (SubmitResult, error) {
	var headers map[string]string
	if key != "" {
		headers = map[string]string{"Idempotency-Key": key}
	}
	resp, err := c.do(ctx, http.MethodPost, "/runs", req, headers)
	if err != nil {
		return SubmitResult{}, err
	}
	body, err := readBody(resp, http.StatusAccepted, http.StatusOK, http.StatusTooManyRequests, http.StatusServiceUnavailable)
	if err != nil {
		return SubmitResult{}, err
	}
	out := SubmitResult{Code: resp.StatusCode}
	if resp.StatusCode == http.StatusAccepted || resp.StatusCode == http.StatusOK {
		if err := json.Unmarshal(body, &out); err != nil {
			return SubmitResult{}, fmt.Errorf("decode submit response: %w", err)
		}
	}
	return out, nil
}

// Run fetches one run by id.
func (c *Client) Run(ctx context.Context, id string) (types.Run, error) {
	resp, err := c.do(ctx, http.MethodGet, "/runs/"+id, nil, nil)
	if err != nil {
		return types.Run{}, err
	}
	body, err := readBody(resp, http.StatusOK)
	if err != nil {
		return types.Run{}, err
	}
	var run types.Run
	if err := json.Unmarshal(body, &run); err != nil {
		return types.Run{}, fmt.Errorf("decode run: %w", err)
	}
	return run, nil
}

func (c *Client) do(ctx context.Context, method, path string, body any, headers map[string]string) (*http.Response, error) {
	var rd io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			return nil, fmt.Errorf("failed to marshal request body: %w", err)
		}
		rd = bytes.NewReader(data)
	}
	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, rd)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	for k, v := range headers {
		req.Header.Set(k, v)
	}
	resp, err := c.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("%s %s: %w", method, path, err)
	}
	return resp, nil
}

// readBody reads and closes the response body, failing on any status not in
// want.
func readBody(resp *http.Response, want ...int) ([]byte, error) {
	defer resp.Body.Close()
	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("read response: %w", err)
	}
	for _, code := range want {
		if resp.StatusCode == code {
			return body, nil
		}
	}
	return nil, fmt.Errorf("%w %d: %s", ErrUnexpectedStatus, resp.StatusCode, bytes.TrimSpace(body))
}
