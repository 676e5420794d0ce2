package ticket

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dhyansraj/qa-testdesk/internal/apperr"
	"github.com/dhyansraj/qa-testdesk/internal/models"
)

var cfg = models.TicketConfig{
	BaseURL:    "https://tracker.example",
	Email:      "qa@example.com",
	APIToken:   "secret",
	ProjectKey: "QA",
	IssueType:  "Bug",
}

func proxy(t *testing.T, status int, answer any, seen *map[string]any) *Client {
	t.Helper()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodPost, r.Method)
		assert.Equal(t, "application/json", r.Header.Get("Content-Type"))
		if seen != nil {
			require.NoError(t, json.NewDecoder(r.Body).Decode(seen))
		}
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(status)
		_ = json.NewEncoder(w).Encode(answer)
	}))
	t.Cleanup(srv.Close)
	return NewClient(srv.URL, 0)
}

func TestCreateIssue(t *testing.T) {
	var body map[string]any
	c := proxy(t, http.StatusOK, IssueResult{Success: true, Key: "QA-12", URL: "https://tracker.example/browse/QA-12"}, &body)

	res, err := c.CreateIssue(context.Background(), "bug-1", models.Bug{Title: "Login fails", TestCaseID: "c1"}, cfg)
	require.NoError(t, err)
	assert.Equal(t, "QA-12", res.Key)

	assert.Equal(t, "create-issue", body["action"])
	assert.Equal(t, "bug-1", body["bugId"])
	assert.Equal(t, "Login fails", body["bug"].(map[string]any)["title"])
	assert.Equal(t, "QA", body["config"].(map[string]any)["project_key"])
}

func TestCreateIssue_ProxyRefusal(t *testing.T) {
	c := proxy(t, http.StatusBadRequest, IssueResult{Success: false, Error: "project QA not found"}, nil)

	res, err := c.CreateIssue(context.Background(), "bug-1", models.Bug{Title: "x"}, cfg)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "project QA not found")
	require.NotNil(t, res)
	assert.False(t, res.Success)
}

func TestTestConnection(t *testing.T) {
	var body map[string]any
	c := proxy(t, http.StatusOK, ConnectionResult{Success: true, User: &TrackerUser{DisplayName: "QA Bot", Email: "qa@example.com"}}, &body)

	res, err := c.TestConnection(context.Background(), cfg)
	require.NoError(t, err)
	require.NotNil(t, res.User)
	assert.Equal(t, "QA Bot", res.User.DisplayName)

	assert.Equal(t, "test-connection", body["action"])
	sent := body["config"].(map[string]any)
	assert.Equal(t, map[string]any{"base_url": cfg.BaseURL, "email": cfg.Email, "api_token": cfg.APIToken}, sent)
}

func TestClient_ErrorClasses(t *testing.T) {
	t.Run("unauthorized", func(t *testing.T) {
		c := proxy(t, http.StatusUnauthorized, map[string]string{"error": "bad token"}, nil)
		_, err := c.TestConnection(context.Background(), cfg)
		assert.ErrorIs(t, err, apperr.ErrPermissionDenied)
	})

	t.Run("proxy down", func(t *testing.T) {
		c := proxy(t, http.StatusBadGateway, map[string]string{}, nil)
		_, err := c.TestConnection(context.Background(), cfg)
		assert.ErrorIs(t, err, apperr.ErrNetworkFailure)
	})

	t.Run("unreachable", func(t *testing.T) {
		srv := httptest.NewServer(http.NotFoundHandler())
		url := srv.URL
		srv.Close()
		_, err := NewClient(url, 0).TestConnection(context.Background(), cfg)
		assert.ErrorIs(t, err, apperr.ErrNetworkFailure)
	})

	t.Run("not configured", func(t *testing.T) {
		_, err := NewClient("", 0).TestConnection(context.Background(), cfg)
		assert.ErrorIs(t, err, apperr.ErrInvalidInput)
	})
}
