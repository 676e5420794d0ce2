// Package ticket provides an HTTP client for the issue tracker proxy that turns bugs found
// during test runs into tracker tickets.
package ticket

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/dhyansraj/qa-testdesk/internal/apperr"
	"github.com/dhyansraj/qa-testdesk/internal/models"
)

// DefaultTimeout bounds one proxy call
const DefaultTimeout = 30 * time.Second

// Client talks to the tracker proxy
type Client struct {
	proxyURL   string
	httpClient *http.Client
}

// NewClient creates a new proxy client. A zero timeout means DefaultTimeout.
func NewClient(proxyURL string, timeout time.Duration) *Client {
	if timeout <= 0 {
		timeout = DefaultTimeout
	}
	return &Client{
		proxyURL: proxyURL,
		httpClient: &http.Client{
			Timeout: timeout,
		},
	}
}

// createIssueRequest is the create-issue action body
type createIssueRequest struct {
	Action string              `json:"action"`
	BugID  string              `json:"bugId"`
	Bug    models.Bug          `json:"bug"`
	Config models.TicketConfig `json:"config"`
}

// IssueResult is the proxy's answer to create-issue
type IssueResult struct {
	Success bool   `json:"success"`
	Key     string `json:"key,omitempty"`
	URL     string `json:"url,omitempty"`
	Error   string `json:"error,omitempty"`
}

// CreateIssue files bug in the tracker configured by cfg
func (c *Client) CreateIssue(ctx context.Context, bugID string, bug models.Bug, cfg models.TicketConfig) (*IssueResult, error) {
	req := createIssueRequest{Action: "create-issue", BugID: bugID, Bug: bug, Config: cfg}

	var result IssueResult
	if err := c.post(ctx, req, &result); err != nil {
		return nil, fmt.Errorf("failed to create issue: %w", err)
	}
	if !result.Success {
		return &result, fmt.Errorf("failed to create issue: %s", orUnknown(result.Error))
	}
	return &result, nil
}

// connectionConfig is the subset of TicketConfig test-connection needs
type connectionConfig struct {
	BaseURL  string `json:"base_url"`
	Email    string `json:"email"`
	APIToken string `json:"api_token"`
}

type testConnectionRequest struct {
	Action string           `json:"action"`
	Config connectionConfig `json:"config"`
}

// TrackerUser is the account the proxy authenticated as
type TrackerUser struct {
	DisplayName string `json:"displayName"`
	Email       string `json:"email"`
}

// ConnectionResult is the proxy's answer to test-connection
type ConnectionResult struct {
	Success bool         `json:"success"`
	User    *TrackerUser `json:"user,omitempty"`
	Error   string       `json:"error,omitempty"`
}

// TestConnection checks the tracker credentials in cfg
func (c *Client) TestConnection(ctx context.Context, cfg models.TicketConfig) (*ConnectionResult, error) {
	req := testConnectionRequest{
		Action: "test-connection",
		Config: connectionConfig{BaseURL: cfg.BaseURL, Email: cfg.Email, APIToken: cfg.APIToken},
	}

	var result ConnectionResult
	if err := c.post(ctx, req, &result); err != nil {
		return nil, fmt.Errorf("connection test failed: %w", err)
	}
	if !result.Success {
		return &result, fmt.Errorf("connection test failed: %s", orUnknown(result.Error))
	}
	return &result, nil
}

// post sends body and decodes the JSON answer into out. Proxy error bodies still carry
// {success:false,error}, so non-2xx answers are decoded when possible.
func (c *Client) post(ctx context.Context, body, out any) error {
	if c.proxyURL == "" {
		return fmt.Errorf("ticket proxy url is not configured: %w", apperr.ErrInvalidInput)
	}
	payload, err := json.Marshal(body)
	if err != nil {
		return err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.proxyURL, bytes.NewReader(payload))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("%v: %w", err, apperr.ErrNetworkFailure)
	}
	defer resp.Body.Close()

	bodyBytes, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("read response: %v: %w", err, apperr.ErrNetworkFailure)
	}

	switch {
	case resp.StatusCode == http.StatusUnauthorized || resp.StatusCode == http.StatusForbidden:
		return fmt.Errorf("%s - %s: %w", resp.Status, string(bodyBytes), apperr.ErrPermissionDenied)
	case resp.StatusCode >= 500:
		return fmt.Errorf("%s - %s: %w", resp.Status, string(bodyBytes), apperr.ErrNetworkFailure)
	}

	if err := json.Unmarshal(bodyBytes, out); err != nil {
		return fmt.Errorf("%s - invalid response: %w", resp.Status, err)
	}
	return nil
}

func orUnknown(msg string) string {
	if msg == "" {
		return "unknown error"
	}
	return msg
}
