package api

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dhyansraj/qa-testdesk/internal/config"
	"github.com/dhyansraj/qa-testdesk/internal/db"
	"github.com/dhyansraj/qa-testdesk/internal/dragdrop"
	"github.com/dhyansraj/qa-testdesk/internal/models"
	"github.com/dhyansraj/qa-testdesk/internal/tree"
)

func newTestServer(t *testing.T, proxyURL string) http.Handler {
	t.Helper()
	conn, err := db.Open(context.Background(), db.DriverSQLite, filepath.Join(t.TempDir(), "api.db"))
	require.NoError(t, err)
	repo := db.NewRepository(conn)
	t.Cleanup(func() { repo.Close() })

	cfg := config.Defaults()
	cfg.Ticket.ProxyURL = proxyURL
	return NewServer(repo, cfg).Handler()
}

func call[T any](t *testing.T, h http.Handler, method, path string, body any) (int, T) {
	t.Helper()
	var reader io.Reader
	switch b := body.(type) {
	case nil:
	case string:
		reader = strings.NewReader(b)
	default:
		data, err := json.Marshal(b)
		require.NoError(t, err)
		reader = bytes.NewReader(data)
	}
	req := httptest.NewRequest(method, path, reader)
	req.Header.Set("Content-Type", "application/json")
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)

	var out T
	if rec.Body.Len() > 0 {
		require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &out), rec.Body.String())
	}
	return rec.Code, out
}

type treeResponse struct {
	Tree     []tree.Node `json:"tree"`
	Expanded []string    `json:"expanded"`
}

type errorResponse struct {
	Error string `json:"error"`
}

func caseTitles(cases []models.TestCase) []string {
	out := make([]string, 0, len(cases))
	for _, c := range cases {
		out = append(out, c.Title)
	}
	return out
}

func TestHealth(t *testing.T) {
	h := newTestServer(t, "")
	code, body := call[map[string]any](t, h, http.MethodGet, "/health", nil)
	assert.Equal(t, http.StatusOK, code)
	assert.Equal(t, "ok", body["status"])
}

func TestSessionTreeAndMutations(t *testing.T) {
	h := newTestServer(t, "")

	code, opened := call[map[string]string](t, h, http.MethodPost, "/api/sessions", map[string]string{"project_id": "p1"})
	require.Equal(t, http.StatusCreated, code)
	base := "/api/sessions/" + opened["session_id"]

	code, auth := call[models.Suite](t, h, http.MethodPost, base+"/suites", map[string]any{"name": "Auth"})
	require.Equal(t, http.StatusCreated, code)
	code, billing := call[models.Suite](t, h, http.MethodPost, base+"/suites", map[string]any{"name": "Billing"})
	require.Equal(t, http.StatusCreated, code)
	assert.Equal(t, 1, billing.Position)

	var login, logout models.TestCase
	code, login = call[models.TestCase](t, h, http.MethodPost, base+"/cases", map[string]any{"title": "Login", "suite_id": auth.ID})
	require.Equal(t, http.StatusCreated, code)
	code, logout = call[models.TestCase](t, h, http.MethodPost, base+"/cases", map[string]any{"title": "Logout", "suite_id": auth.ID, "priority": "high"})
	require.Equal(t, http.StatusCreated, code)
	assert.Equal(t, 1, logout.Position)
	code, stray := call[models.TestCase](t, h, http.MethodPost, base+"/cases", map[string]any{"title": "Stray"})
	require.Equal(t, http.StatusCreated, code)

	code, bad := call[errorResponse](t, h, http.MethodPost, base+"/cases", map[string]any{"title": "x", "priority": "urgent"})
	assert.Equal(t, http.StatusBadRequest, code)
	assert.Contains(t, bad.Error, "priority")

	code, tr := call[treeResponse](t, h, http.MethodGet, base+"/tree?expanded="+auth.ID, nil)
	require.Equal(t, http.StatusOK, code)
	require.Len(t, tr.Tree, 3)
	assert.Equal(t, "Auth", tr.Tree[0].Suite.Name)
	assert.True(t, tr.Tree[0].IsExpanded)
	assert.Equal(t, []string{"Login", "Logout"}, caseTitles(tr.Tree[0].TestCases))
	assert.Equal(t, models.UncategorizedID, tr.Tree[2].Suite.ID)
	assert.Equal(t, []string{auth.ID}, tr.Expanded)

	t.Run("reorder survives a reload", func(t *testing.T) {
		code, _ := call[map[string]any](t, h, http.MethodPost, base+"/cases/reorder",
			map[string]any{"suite_id": auth.ID, "case_ids": []string{logout.ID, login.ID}})
		require.Equal(t, http.StatusOK, code)

		code, tr := call[treeResponse](t, h, http.MethodGet, base+"/tree?refresh=1", nil)
		require.Equal(t, http.StatusOK, code)
		assert.Equal(t, []string{"Logout", "Login"}, caseTitles(tr.Tree[0].TestCases))
		assert.True(t, tr.Tree[0].IsExpanded, "expanded set kept without the query")
	})

	t.Run("incomplete reorder", func(t *testing.T) {
		code, _ := call[errorResponse](t, h, http.MethodPost, base+"/cases/reorder",
			map[string]any{"suite_id": auth.ID, "case_ids": []string{login.ID}})
		assert.Equal(t, http.StatusBadRequest, code)
	})

	t.Run("drag stray case into billing", func(t *testing.T) {
		code, _ := call[map[string]any](t, h, http.MethodPost, base+"/drag/start", map[string]string{"kind": "case", "id": stray.ID})
		require.Equal(t, http.StatusOK, code)
		code, state := call[dragdrop.State](t, h, http.MethodPost, base+"/drag/hover",
			dragdrop.TargetRef{Kind: dragdrop.KindSuiteZone, ID: billing.ID})
		require.Equal(t, http.StatusOK, code)
		assert.True(t, state.Dragging)

		code, res := call[dragdrop.DropResult](t, h, http.MethodPost, base+"/drag/drop",
			map[string]any{"target": dragdrop.TargetRef{Kind: dragdrop.KindSuiteZone, ID: billing.ID}})
		require.Equal(t, http.StatusOK, code)
		assert.Equal(t, dragdrop.ActionMoveTestCase, res.Action)
		assert.True(t, res.Applied)

		code, state = call[dragdrop.State](t, h, http.MethodGet, base+"/drag", nil)
		require.Equal(t, http.StatusOK, code)
		assert.False(t, state.Dragging)
	})

	t.Run("cyclic suite move", func(t *testing.T) {
		code, child := call[models.Suite](t, h, http.MethodPost, base+"/suites", map[string]any{"name": "SSO", "parent_id": auth.ID})
		require.Equal(t, http.StatusCreated, code)
		assert.Equal(t, 0, child.Position)

		code, _ = call[errorResponse](t, h, http.MethodPost, base+"/suites/"+auth.ID+"/move", map[string]any{"parent_id": child.ID})
		assert.Equal(t, http.StatusConflict, code)
	})

	t.Run("delete suite moves its cases to uncategorized", func(t *testing.T) {
		code, _ := call[map[string]any](t, h, http.MethodDelete, base+"/suites/"+auth.ID, nil)
		require.Equal(t, http.StatusOK, code)

		code, tr := call[treeResponse](t, h, http.MethodGet, base+"/tree?refresh=1", nil)
		require.Equal(t, http.StatusOK, code)
		last := tr.Tree[len(tr.Tree)-1]
		require.True(t, last.IsUncategorized())
		assert.Equal(t, []string{"Logout", "Login"}, caseTitles(last.TestCases))
		_, found := tree.Find(tr.Tree, auth.ID)
		assert.False(t, found)
	})

	t.Run("delete case closes the gap", func(t *testing.T) {
		code, _ := call[map[string]any](t, h, http.MethodDelete, base+"/cases/"+logout.ID, nil)
		require.Equal(t, http.StatusOK, code)
		code, list := call[struct {
			TestCases []models.TestCase `json:"test_cases"`
		}](t, h, http.MethodGet, base+"/cases?refresh=1", nil)
		require.Equal(t, http.StatusOK, code)
		for _, c := range list.TestCases {
			if c.ID == login.ID {
				assert.Equal(t, 0, c.Position)
			}
		}
	})

	code, _ = call[map[string]any](t, h, http.MethodDelete, base, nil)
	assert.Equal(t, http.StatusOK, code)
	code, _ = call[errorResponse](t, h, http.MethodGet, base+"/tree", nil)
	assert.Equal(t, http.StatusNotFound, code)
}

func TestTreeToggleAndReveal(t *testing.T) {
	h := newTestServer(t, "")
	_, opened := call[map[string]string](t, h, http.MethodPost, "/api/sessions", map[string]string{"project_id": "p1"})
	base := "/api/sessions/" + opened["session_id"]

	_, auth := call[models.Suite](t, h, http.MethodPost, base+"/suites", map[string]any{"name": "Auth"})
	_, sso := call[models.Suite](t, h, http.MethodPost, base+"/suites", map[string]any{"name": "SSO", "parent_id": auth.ID})
	_, saml := call[models.Suite](t, h, http.MethodPost, base+"/suites", map[string]any{"name": "SAML", "parent_id": sso.ID})

	code, revealed := call[struct {
		Expanded []string `json:"expanded"`
	}](t, h, http.MethodPost, base+"/tree/reveal", map[string]string{"suite_id": saml.ID})
	require.Equal(t, http.StatusOK, code)
	assert.ElementsMatch(t, []string{auth.ID, sso.ID}, revealed.Expanded)

	code, toggled := call[map[string]any](t, h, http.MethodPost, base+"/tree/toggle", map[string]string{"suite_id": sso.ID})
	require.Equal(t, http.StatusOK, code)
	assert.Equal(t, false, toggled["is_expanded"])

	code, tr := call[treeResponse](t, h, http.MethodGet, base+"/tree", nil)
	require.Equal(t, http.StatusOK, code)
	assert.True(t, tr.Tree[0].IsExpanded)
	require.Len(t, tr.Tree[0].Children, 1)
	assert.False(t, tr.Tree[0].Children[0].IsExpanded)

	code, _ = call[errorResponse](t, h, http.MethodPost, base+"/tree/toggle", map[string]string{"suite_id": "nope"})
	assert.Equal(t, http.StatusNotFound, code)
	code, _ = call[errorResponse](t, h, http.MethodPost, base+"/tree/reveal", map[string]string{"suite_id": "nope"})
	assert.Equal(t, http.StatusNotFound, code)
}

func TestDragDrop_BadOrEmptyBodyEndsGesture(t *testing.T) {
	h := newTestServer(t, "")
	_, opened := call[map[string]string](t, h, http.MethodPost, "/api/sessions", map[string]string{"project_id": "p1"})
	base := "/api/sessions/" + opened["session_id"]
	_, tc := call[models.TestCase](t, h, http.MethodPost, base+"/cases", map[string]any{"title": "Stray"})

	start := func() {
		code, _ := call[map[string]any](t, h, http.MethodPost, base+"/drag/start", map[string]string{"kind": "case", "id": tc.ID})
		require.Equal(t, http.StatusOK, code)
	}

	start()
	code, _ := call[errorResponse](t, h, http.MethodPost, base+"/drag/drop", "{")
	assert.Equal(t, http.StatusBadRequest, code)
	_, state := call[dragdrop.State](t, h, http.MethodGet, base+"/drag", nil)
	assert.False(t, state.Dragging, "malformed drop cancels the drag")

	start()
	code, res := call[dragdrop.DropResult](t, h, http.MethodPost, base+"/drag/drop", nil)
	require.Equal(t, http.StatusOK, code)
	assert.Equal(t, dragdrop.ActionCancelled, res.Action)
	_, state = call[dragdrop.State](t, h, http.MethodGet, base+"/drag", nil)
	assert.False(t, state.Dragging)
}

func TestImportCSV(t *testing.T) {
	h := newTestServer(t, "")
	_, opened := call[map[string]string](t, h, http.MethodPost, "/api/sessions", map[string]string{"project_id": "p1"})
	base := "/api/sessions/" + opened["session_id"]

	csv := "title,priority,suite_name\nLogin,high,Auth\nBroken,urgent,Auth\nStray,,\n"
	code, report := call[map[string]any](t, h, http.MethodPost, base+"/cases/import", csv)
	require.Equal(t, http.StatusOK, code)
	assert.Equal(t, float64(1), report["created_suites"])
	assert.Equal(t, float64(2), report["created_cases"])
	assert.Len(t, report["errors"], 1)

	code, _ = call[errorResponse](t, h, http.MethodPost, base+"/cases/import", "name\nx\n")
	assert.Equal(t, http.StatusBadRequest, code)
}

func TestRunLifecycle(t *testing.T) {
	h := newTestServer(t, "")
	_, opened := call[map[string]string](t, h, http.MethodPost, "/api/sessions", map[string]string{"project_id": "p1"})
	base := "/api/sessions/" + opened["session_id"]

	var ids []string
	for _, title := range []string{"one", "two"} {
		_, tc := call[models.TestCase](t, h, http.MethodPost, base+"/cases", map[string]any{"title": title})
		ids = append(ids, tc.ID)
	}

	code, plan := call[models.TestPlan](t, h, http.MethodPost, "/api/projects/p1/plans",
		map[string]any{"name": "Smoke", "test_case_ids": ids})
	require.Equal(t, http.StatusCreated, code)

	code, run := call[models.TestRun](t, h, http.MethodPost, "/api/projects/p1/runs",
		map[string]any{"test_plan_id": plan.ID, "environment": "staging"})
	require.Equal(t, http.StatusCreated, code)
	assert.Equal(t, "Smoke", run.Name)
	assert.Equal(t, models.RunStatusNotStarted, run.RunStatus)

	code, view := call[map[string]any](t, h, http.MethodPost, "/api/runs/"+run.ID+"/execute", map[string]string{"executed_by": "qa"})
	require.Equal(t, http.StatusCreated, code)
	eid := view["execution_id"].(string)
	assert.Equal(t, float64(2), view["total"])

	code, _ = call[errorResponse](t, h, http.MethodPut, "/api/executions/"+eid, map[string]any{"result_status": "in_progress"})
	assert.Equal(t, http.StatusBadRequest, code)

	code, _ = call[map[string]any](t, h, http.MethodPut, "/api/executions/"+eid, map[string]any{"result_status": "passed", "comments": "ok"})
	require.Equal(t, http.StatusOK, code)
	code, view = call[map[string]any](t, h, http.MethodPost, "/api/executions/"+eid+"/next", nil)
	require.Equal(t, http.StatusOK, code)
	assert.Equal(t, float64(1), view["cursor"])

	code, closed := call[map[string]any](t, h, http.MethodPost, "/api/executions/"+eid+"/close", nil)
	require.Equal(t, http.StatusOK, code)
	assert.Equal(t, string(models.RunStatusInProgress), closed["run_status"])

	code, _ = call[errorResponse](t, h, http.MethodGet, "/api/executions/"+eid, nil)
	assert.Equal(t, http.StatusNotFound, code)

	code, results := call[map[string]any](t, h, http.MethodGet, "/api/runs/"+run.ID+"/results", nil)
	require.Equal(t, http.StatusOK, code)
	summary := results["summary"].(map[string]any)
	assert.Equal(t, float64(1), summary["passed"])
	assert.Equal(t, float64(1), summary["untested"])

	code, clone := call[models.TestRun](t, h, http.MethodPost, "/api/runs/"+run.ID+"/clone", nil)
	require.Equal(t, http.StatusCreated, code)
	assert.Equal(t, "Smoke (copy)", clone.Name)

	code, runs := call[map[string]any](t, h, http.MethodGet, "/api/projects/p1/runs", nil)
	require.Equal(t, http.StatusOK, code)
	assert.Equal(t, float64(2), runs["count"])

	code, _ = call[map[string]any](t, h, http.MethodPatch, "/api/runs/"+run.ID, map[string]string{"run_status": "completed"})
	require.Equal(t, http.StatusOK, code)
	code, _ = call[errorResponse](t, h, http.MethodPatch, "/api/runs/"+run.ID, map[string]string{"run_status": "done"})
	assert.Equal(t, http.StatusBadRequest, code)

	code, _ = call[map[string]any](t, h, http.MethodDelete, "/api/runs/"+run.ID, nil)
	require.Equal(t, http.StatusOK, code)
	code, _ = call[errorResponse](t, h, http.MethodGet, "/api/runs/"+run.ID, nil)
	assert.Equal(t, http.StatusNotFound, code)
}

func TestCreateRun_PlanOfAnotherProject(t *testing.T) {
	h := newTestServer(t, "")
	_, opened := call[map[string]string](t, h, http.MethodPost, "/api/sessions", map[string]string{"project_id": "p1"})
	_, tc := call[models.TestCase](t, h, http.MethodPost, "/api/sessions/"+opened["session_id"]+"/cases", map[string]any{"title": "one"})

	code, plan := call[models.TestPlan](t, h, http.MethodPost, "/api/projects/p1/plans",
		map[string]any{"name": "Smoke", "test_case_ids": []string{tc.ID}})
	require.Equal(t, http.StatusCreated, code)

	code, _ = call[errorResponse](t, h, http.MethodPost, "/api/projects/p2/runs", map[string]any{"test_plan_id": plan.ID})
	assert.Equal(t, http.StatusNotFound, code)
	code, _ = call[errorResponse](t, h, http.MethodPost, "/api/projects/p2/runs",
		map[string]any{"test_plan_id": plan.ID, "name": "linked", "test_case_ids": []string{tc.ID}})
	assert.Equal(t, http.StatusNotFound, code)

	code, runs := call[map[string]any](t, h, http.MethodGet, "/api/projects/p2/runs", nil)
	require.Equal(t, http.StatusOK, code)
	assert.Equal(t, float64(0), runs["count"])
}

func TestTickets(t *testing.T) {
	proxy := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var body map[string]any
		_ = json.NewDecoder(r.Body).Decode(&body)
		w.Header().Set("Content-Type", "application/json")
		switch body["action"] {
		case "test-connection":
			_, _ = w.Write([]byte(`{"success":true,"user":{"displayName":"QA Bot","email":"qa@example.com"}}`))
		case "create-issue":
			_, _ = w.Write([]byte(`{"success":true,"key":"QA-7","url":"https://tracker.example/browse/QA-7"}`))
		}
	}))
	defer proxy.Close()
	h := newTestServer(t, proxy.URL)

	code, conn := call[map[string]any](t, h, http.MethodPost, "/api/tickets/test-connection",
		models.TicketConfig{BaseURL: "https://tracker.example", Email: "qa@example.com", APIToken: "t"})
	require.Equal(t, http.StatusOK, code)
	assert.Equal(t, true, conn["success"])

	code, issue := call[map[string]any](t, h, http.MethodPost, "/api/bugs/bug-1/ticket",
		map[string]any{"bug": models.Bug{Title: "Crash"}, "config": models.TicketConfig{ProjectKey: "QA"}})
	require.Equal(t, http.StatusCreated, code)
	assert.Equal(t, "QA-7", issue["key"])
}

func TestUnknownSessionAndBadBody(t *testing.T) {
	h := newTestServer(t, "")

	code, _ := call[errorResponse](t, h, http.MethodGet, "/api/sessions/nope/tree", nil)
	assert.Equal(t, http.StatusNotFound, code)

	code, _ = call[errorResponse](t, h, http.MethodPost, "/api/sessions", "{")
	assert.Equal(t, http.StatusBadRequest, code)

	code, _ = call[errorResponse](t, h, http.MethodPost, "/api/sessions", map[string]string{})
	assert.Equal(t, http.StatusBadRequest, code)
}
