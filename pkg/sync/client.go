// Package sync is the remote HTTPS JSON sync client: it pushes queued
// offline operations to the device's paired backend and pulls down
// transactions the backend has accepted from other devices, resolving any
// conflict the remote reports with the policy in package conflict.
package sync

import (
	"bytes"
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/ghanavoice/ledger/internal/config"
	"github.com/ghanavoice/ledger/internal/errs"
)

// Client is the thin HTTP transport to the remote ledger API. Every request
// carries the device's bearer token.
type Client struct {
	baseURL     string
	deviceToken string
	httpClient  *http.Client
}

// NewClient builds a Client from the sync section of the config.
func NewClient(cfg config.SyncConfig) *Client {
	return &Client{
		baseURL:     cfg.BaseURL,
		deviceToken: cfg.DeviceToken,
		httpClient:  &http.Client{Timeout: cfg.HTTPTimeout},
	}
}

// PushResult is the remote's response to a push: either it accepted the
// write, or it returned 409 with its own conflicting copy in RemoteJSON.
type PushResult struct {
	Conflict   bool
	RemoteJSON []byte
}

func (c *Client) push(ctx context.Context, method, path string, payload []byte) (PushResult, error) {
	var body *bytes.Reader
	if payload != nil {
		body = bytes.NewReader(payload)
	} else {
		body = bytes.NewReader(nil)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, body)
	if err != nil {
		return PushResult{}, errs.Wrap(errs.NetworkError, "build sync request", true, err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+c.deviceToken)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return PushResult{}, errs.Wrap(errs.NetworkError, "sync request failed", true, err)
	}
	defer resp.Body.Close()

	var buf bytes.Buffer
	if _, err := buf.ReadFrom(resp.Body); err != nil {
		return PushResult{}, errs.Wrap(errs.NetworkError, "read sync response", true, err)
	}

	switch resp.StatusCode {
	case http.StatusOK:
		return PushResult{}, nil
	case http.StatusConflict:
		return PushResult{Conflict: true, RemoteJSON: buf.Bytes()}, nil
	default:
		return PushResult{}, errs.Wrap(errs.NetworkError,
			fmt.Sprintf("sync request to %s returned status %d: %s", path, resp.StatusCode, buf.String()), true, nil)
	}
}

// PushTransaction POSTs a transaction, idempotent by id.
func (c *Client) PushTransaction(ctx context.Context, payload []byte) (PushResult, error) {
	return c.push(ctx, http.MethodPost, "/transactions", payload)
}

// PushSummary POSTs a daily summary for dateKey.
func (c *Client) PushSummary(ctx context.Context, dateKey string, payload []byte) (PushResult, error) {
	return c.push(ctx, http.MethodPost, "/summaries/"+dateKey, payload)
}

// PushSpeakerProfile POSTs a speaker profile for id.
func (c *Client) PushSpeakerProfile(ctx context.Context, id string, payload []byte) (PushResult, error) {
	return c.push(ctx, http.MethodPost, "/speaker_profiles/"+id, payload)
}

// DeleteTransaction issues the analogous DELETE for id.
func (c *Client) DeleteTransaction(ctx context.Context, id string) (PushResult, error) {
	return c.push(ctx, http.MethodDelete, "/transactions/"+id, nil)
}

// PullTransactionsSince fetches the raw JSON array of transactions the
// remote has updated since the given time.
func (c *Client) PullTransactionsSince(ctx context.Context, since time.Time) ([]byte, error) {
	url := fmt.Sprintf("%s/transactions?since=%d", c.baseURL, since.UnixMilli())
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, errs.Wrap(errs.NetworkError, "build pull request", true, err)
	}
	req.Header.Set("Authorization", "Bearer "+c.deviceToken)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, errs.Wrap(errs.NetworkError, "pull request failed", true, err)
	}
	defer resp.Body.Close()

	var buf bytes.Buffer
	if _, err := buf.ReadFrom(resp.Body); err != nil {
		return nil, errs.Wrap(errs.NetworkError, "read pull response", true, err)
	}
	if resp.StatusCode != http.StatusOK {
		return nil, errs.Wrap(errs.NetworkError,
			fmt.Sprintf("pull request returned status %d: %s", resp.StatusCode, buf.String()), true, nil)
	}
	return buf.Bytes(), nil
}
