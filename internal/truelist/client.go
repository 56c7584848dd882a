// Package truelist is the REST client for the external email validation
// provider. Dispatch is fire-and-forget: the provider validates the batch
// asynchronously and the reconciler polls for the outcome.
package truelist

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"

	"github.com/bluelime/bluesender/internal/config"
	"github.com/bluelime/bluesender/internal/pkg/httpretry"
)

// Client is a validation provider API client.
type Client struct {
	baseURL    string
	apiKey     string
	httpClient httpretry.HTTPDoer
}

// NewClient creates a new provider client from config.
func NewClient(cfg config.TruelistConfig) *Client {
	return &Client{
		baseURL: cfg.BaseURL,
		apiKey:  cfg.APIKey,
		httpClient: httpretry.NewRetryClient(&http.Client{
			Timeout: cfg.Timeout(),
		}, 3),
	}
}

// doRequest makes an HTTP request to the provider API.
func (c *Client) doRequest(ctx context.Context, method, path string, payload any) ([]byte, error) {
	var body io.Reader
	if payload != nil {
		data, err := json.Marshal(payload)
		if err != nil {
			return nil, fmt.Errorf("encoding request: %w", err)
		}
		body = bytes.NewReader(data)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, body)
	if err != nil {
		return nil, fmt.Errorf("creating request: %w", err)
	}

	req.Header.Set("Authorization", "Bearer "+c.apiKey)
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("executing request: %w", err)
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("reading response: %w", err)
	}

	if resp.StatusCode != http.StatusOK && resp.StatusCode != http.StatusCreated {
		return nil, fmt.Errorf("API error (status %d): %s", resp.StatusCode, string(respBody))
	}

	return respBody, nil
}

// StartBatch submits a batch of addresses for validation, keyed by the
// local list ID. The call returns as soon as the provider acknowledges
// the batch; completion is observed later via BatchStatus.
func (c *Client) StartBatch(ctx context.Context, emails []string, listName, listID string) (*BatchAck, error) {
	if len(emails) == 0 {
		return nil, fmt.Errorf("empty address batch")
	}

	body, err := c.doRequest(ctx, http.MethodPost, "/batches", StartBatchRequest{
		Emails:   emails,
		ListName: listName,
		ListID:   listID,
	})
	if err != nil {
		return nil, fmt.Errorf("starting batch: %w", err)
	}

	var ack BatchAck
	if err := json.Unmarshal(body, &ack); err != nil {
		return nil, fmt.Errorf("parsing batch ack: %w", err)
	}
	return &ack, nil
}

// BatchStatus fetches the current state of a batch and, once completed,
// the per-address results. Each result keeps the provider's raw JSON.
func (c *Client) BatchStatus(ctx context.Context, listID string) (*BatchStatus, error) {
	body, err := c.doRequest(ctx, http.MethodGet, "/batches/"+listID, nil)
	if err != nil {
		return nil, fmt.Errorf("fetching batch status: %w", err)
	}

	var envelope struct {
		ID      string            `json:"id"`
		State   BatchState        `json:"state"`
		Message string            `json:"message"`
		Results []json.RawMessage `json:"results"`
	}
	if err := json.Unmarshal(body, &envelope); err != nil {
		return nil, fmt.Errorf("parsing batch status: %w", err)
	}

	status := &BatchStatus{
		ID:      envelope.ID,
		State:   envelope.State,
		Message: envelope.Message,
		Results: make([]EmailResult, 0, len(envelope.Results)),
	}
	for _, raw := range envelope.Results {
		var res EmailResult
		if err := json.Unmarshal(raw, &res); err != nil {
			return nil, fmt.Errorf("parsing batch result: %w", err)
		}
		res.Raw = raw
		status.Results = append(status.Results, res)
	}
	return status, nil
}
