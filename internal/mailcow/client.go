// Package mailcow is the client for the mail server's administrative API,
// used to provision sending domains and mailboxes. When the endpoint is
// unconfigured or points at a local development target, the client runs in
// an explicit simulated mode that skips all network calls.
package mailcow

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"

	"github.com/bluelime/bluesender/internal/config"
	"github.com/bluelime/bluesender/internal/pkg/httpretry"
	"github.com/bluelime/bluesender/internal/pkg/logger"
)

// Domain creation defaults, matching the mail server's policy limits.
const (
	defaultMaxAliases   = 400
	defaultMaxMailboxes = 100
	defaultQuotaMB      = 3072
)

// Client is a mail-admin API client.
type Client struct {
	apiURL     string
	apiToken   string
	simulated  bool
	httpClient httpretry.HTTPDoer
}

// NewClient creates a mail-admin client from config. Simulated mode is
// decided once at construction and logged loudly so it can never be
// mistaken for a deployed configuration.
func NewClient(cfg config.MailcowConfig) *Client {
	c := &Client{
		apiURL:    cfg.APIURL,
		apiToken:  cfg.APIToken,
		simulated: cfg.Simulated(),
		httpClient: httpretry.NewRetryClient(&http.Client{
			Timeout: cfg.Timeout(),
		}, 3),
	}
	if c.simulated {
		logger.Warn("mailcow client in SIMULATED mode, no mailboxes will be created on the mail server",
			"api_url", cfg.APIURL)
	}
	return c
}

// Simulated reports whether the client is in simulated (dev) mode.
func (c *Client) Simulated() bool { return c.simulated }

// apiResponse is one element of the admin API's response. Responses come
// back either as a bare object or as an array of these.
type apiResponse struct {
	Type string          `json:"type"`
	Msg  json.RawMessage `json:"msg"`
}

// do executes a request and reports whether the API answered with a
// success-typed payload. The raw body is returned for diagnostics.
func (c *Client) do(ctx context.Context, method, path string, payload any) (ok bool, raw []byte, err error) {
	var body io.Reader
	if payload != nil {
		data, err := json.Marshal(payload)
		if err != nil {
			return false, nil, fmt.Errorf("encoding request: %w", err)
		}
		body = bytes.NewReader(data)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.apiURL+path, body)
	if err != nil {
		return false, nil, fmt.Errorf("creating request: %w", err)
	}
	req.Header.Set("X-API-Key", c.apiToken)
	if payload != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return false, nil, fmt.Errorf("executing request: %w", err)
	}
	defer resp.Body.Close()

	raw, err = io.ReadAll(resp.Body)
	if err != nil {
		return false, nil, fmt.Errorf("reading response: %w", err)
	}
	if resp.StatusCode != http.StatusOK {
		return false, raw, nil
	}
	return responseSuccess(raw), raw, nil
}

// responseSuccess handles both response shapes the admin API produces:
// a single object with a type field, or an array whose first element
// carries it.
func responseSuccess(raw []byte) bool {
	var single apiResponse
	if err := json.Unmarshal(raw, &single); err == nil && single.Type == "success" {
		return true
	}
	var many []apiResponse
	if err := json.Unmarshal(raw, &many); err == nil && len(many) > 0 && many[0].Type == "success" {
		return true
	}
	return false
}

// EnsureDomain checks that the domain exists on the mail server, creating
// it with default policy limits when absent. The returned bool reports
// whether the domain already existed; a rejected creation is an error
// carrying the raw provider payload.
func (c *Client) EnsureDomain(ctx context.Context, domain string) (bool, error) {
	if c.simulated {
		logger.Warn("simulated: skipping domain check", "domain", domain)
		return true, nil
	}

	// Existence check: a 200 with domain data means it's already there.
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.apiURL+"/get/domain/"+domain, nil)
	if err != nil {
		return false, fmt.Errorf("creating request: %w", err)
	}
	req.Header.Set("X-API-Key", c.apiToken)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return false, fmt.Errorf("checking domain %s: %w", domain, err)
	}
	body, _ := io.ReadAll(resp.Body)
	resp.Body.Close()
	if resp.StatusCode == http.StatusOK && len(bytes.TrimSpace(body)) > 0 && !bytes.Equal(bytes.TrimSpace(body), []byte("[]")) {
		logger.Info("domain already exists on mail server", "domain", domain)
		return true, nil
	}

	logger.Info("creating domain on mail server", "domain", domain)
	ok, raw, err := c.do(ctx, http.MethodPost, "/add/domain", map[string]any{
		"domain":        domain,
		"description":   "Created via BlueSender",
		"active":        1,
		"max_aliases":   defaultMaxAliases,
		"max_mailboxes": defaultMaxMailboxes,
		"def_quota":     defaultQuotaMB,
	})
	if err != nil {
		return false, err
	}
	if !ok {
		logger.Error("domain creation rejected", "domain", domain, "response", string(raw))
		return false, fmt.Errorf("domain creation rejected: %s", string(raw))
	}
	return false, nil
}

// CreateMailbox provisions a mailbox on the mail server, creating the
// owning domain first when needed. Any non-success API response surfaces
// as an error carrying the raw provider payload.
func (c *Client) CreateMailbox(ctx context.Context, localPart, domain, name, password string) error {
	if c.simulated {
		logger.Warn("simulated: mailbox not created on mail server",
			"mailbox", localPart+"@"+domain)
		return nil
	}

	existed, err := c.EnsureDomain(ctx, domain)
	if err != nil {
		return fmt.Errorf("ensure domain %s: %w", domain, err)
	}
	if !existed {
		logger.Info("domain created on mail server", "domain", domain)
	}

	ok, raw, err := c.do(ctx, http.MethodPost, "/add/mailbox", map[string]any{
		"local_part": localPart,
		"domain":     domain,
		"name":       name,
		"password":   password,
		"password2":  password,
		"quota":      defaultQuotaMB,
		"active":     1,
	})
	if err != nil {
		return fmt.Errorf("creating mailbox %s@%s: %w", localPart, domain, err)
	}
	if !ok {
		return fmt.Errorf("mailbox creation rejected: %s", string(raw))
	}
	return nil
}
