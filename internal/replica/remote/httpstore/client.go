// Package httpstore is a remote.Store that talks to a hivesync server over
// HTTP.
package httpstore

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

	"github.com/hivelog/hivesync/internal/replica/remote"
	"github.com/hivelog/hivesync/internal/replica/schema"
	"github.com/hivelog/hivesync/internal/replica/scope"
	"github.com/hivelog/hivesync/internal/replica/tombstone"
)

// Error codes shared with the server.
const (
	CodeNotFound          = "not_found"
	CodeMalformedSnapshot = "malformed_snapshot"
	CodeUnauthorized      = "unauthorized"
	CodeBadRequest        = "bad_request"
	CodeInternal          = "internal"
)

// VersionResponse is the body of GET /v1/replicas/{scope}/version and of a
// successful PUT.
type VersionResponse struct {
	Version remote.Version `json:"version"`
}

// ErrorResponse is the error body returned by the server.
type ErrorResponse struct {
	Error APIError `json:"error"`
}

// APIError is a structured server error.
type APIError struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

func (e *APIError) Error() string {
	if e.Message != "" {
		return fmt.Sprintf("%s: %s", e.Code, e.Message)
	}
	return e.Code
}

// Client is an HTTP remote store.
type Client struct {
	BaseURL string
	APIKey  string
	HTTP    *http.Client
}

// New creates a client for the server at baseURL.
func New(baseURL, apiKey string) *Client {
	return &Client{
		BaseURL: strings.TrimRight(baseURL, "/"),
		APIKey:  apiKey,
		HTTP:    &http.Client{Timeout: 30 * time.Second},
	}
}

// ReplicaPath returns the resource path of the snapshot of c.
func ReplicaPath(c scope.Context) string {
	return "/v1/replicas/" + url.PathEscape(c.String())
}

// Pull implements remote.Store.
func (c *Client) Pull(ctx context.Context, sc scope.Context) (remote.Snapshot, error) {
	body, err := c.do(ctx, http.MethodGet, ReplicaPath(sc), nil)
	if err != nil {
		return remote.Snapshot{}, fmt.Errorf("pull %s: %w", sc, err)
	}
	snap, err := remote.DecodePayload(body)
	if err != nil {
		return remote.Snapshot{}, fmt.Errorf("pull %s: %w", sc, err)
	}
	return snap, nil
}

// Push implements remote.Store.
func (c *Client) Push(ctx context.Context, sc scope.Context, ds *schema.Dataset, tombs tombstone.Set) (remote.Version, error) {
	payload, err := remote.EncodePayload(ds, tombs, "")
	if err != nil {
		return "", err
	}
	body, err := c.do(ctx, http.MethodPut, ReplicaPath(sc), payload)
	if err != nil {
		return "", fmt.Errorf("push %s: %w", sc, err)
	}
	return decodeVersion(body)
}

// PeekVersion implements remote.Store.
func (c *Client) PeekVersion(ctx context.Context, sc scope.Context) (remote.Version, error) {
	body, err := c.do(ctx, http.MethodGet, ReplicaPath(sc)+"/version", nil)
	if err != nil {
		return "", fmt.Errorf("peek %s: %w", sc, err)
	}
	return decodeVersion(body)
}

// HealthCheck hits /healthz to verify the server is reachable.
func (c *Client) HealthCheck(ctx context.Context) error {
	_, err := c.do(ctx, http.MethodGet, "/healthz", nil)
	return err
}

func decodeVersion(body []byte) (remote.Version, error) {
	var resp VersionResponse
	if err := json.Unmarshal(body, &resp); err != nil {
		return "", fmt.Errorf("%w: unmarshal version: %v", remote.ErrUnreachable, err)
	}
	return resp.Version, nil
}

// do executes a request and maps failures onto the remote error taxonomy.
func (c *Client) do(ctx context.Context, method, path string, body []byte) ([]byte, error) {
	var bodyReader io.Reader
	if body != nil {
		bodyReader = bytes.NewReader(body)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.BaseURL+path, bodyReader)
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if c.APIKey != "" {
		req.Header.Set("Authorization", "Bearer "+c.APIKey)
	}

	resp, err := c.HTTP.Do(req)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", remote.ErrUnreachable, err)
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("%w: read response: %v", remote.ErrUnreachable, err)
	}

	if resp.StatusCode >= 400 {
		return nil, classify(resp.StatusCode, respBody)
	}
	return respBody, nil
}

// classify turns an error response into one of the remote sentinels.
func classify(status int, body []byte) error {
	var er ErrorResponse
	apiErr := &APIError{Code: fmt.Sprintf("http_%d", status), Message: strings.TrimSpace(string(body))}
	if json.Unmarshal(body, &er) == nil && er.Error.Code != "" {
		apiErr = &er.Error
	}

	var sentinel error
	switch {
	case apiErr.Code == CodeMalformedSnapshot:
		sentinel = remote.ErrMalformedSnapshot
	case status == http.StatusNotFound:
		sentinel = remote.ErrNotFound
	case status == http.StatusUnauthorized, status == http.StatusForbidden:
		sentinel = remote.ErrRejected
	case status >= 500, status == http.StatusTooManyRequests:
		sentinel = remote.ErrUnreachable
	default:
		sentinel = remote.ErrRejected
	}
	return fmt.Errorf("%w: %w", sentinel, apiErr)
}

var _ remote.Store = (*Client)(nil)
