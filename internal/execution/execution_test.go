package execution

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dhyansraj/qa-testdesk/internal/apperr"
	"github.com/dhyansraj/qa-testdesk/internal/models"
)

type memStore struct {
	mu      sync.Mutex
	plans   map[string]models.TestPlan
	runs    map[string]models.TestRun
	results map[string]models.TestRunResult // by id
	cases   map[string]models.TestCase
	nextID  int
	failOn  string
	inserts int
	updates int
}

func newMemStore() *memStore {
	return &memStore{
		plans:   map[string]models.TestPlan{},
		runs:    map[string]models.TestRun{},
		results: map[string]models.TestRunResult{},
		cases:   map[string]models.TestCase{},
	}
}

func (m *memStore) id(prefix string) string {
	m.nextID++
	return fmt.Sprintf("%s%d", prefix, m.nextID)
}

func (m *memStore) ListResults(_ context.Context, runID string) ([]models.TestRunResult, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []models.TestRunResult
	for _, r := range m.results {
		if r.TestRunID == runID {
			out = append(out, r)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Position < out[j].Position })
	return out, nil
}

func (m *memStore) FindResult(_ context.Context, runID, caseID string) (*models.TestRunResult, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, r := range m.results {
		if r.TestRunID == runID && r.TestCaseID == caseID {
			return &r, nil
		}
	}
	return nil, nil
}

func (m *memStore) InsertResult(_ context.Context, r models.TestRunResult) (models.TestRunResult, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.failOn == "insert" {
		return models.TestRunResult{}, apperr.ErrNetworkFailure
	}
	m.inserts++
	r.ID = m.id("res")
	m.results[r.ID] = r
	return r, nil
}

func (m *memStore) UpdateResult(_ context.Context, r models.TestRunResult) (models.TestRunResult, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.failOn == "update" {
		return models.TestRunResult{}, apperr.ErrPermissionDenied
	}
	m.updates++
	m.results[r.ID] = r
	return r, nil
}

func (m *memStore) UpdateRunStatus(_ context.Context, runID string, status models.RunStatus) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	run := m.runs[runID]
	run.RunStatus = status
	m.runs[runID] = run
	return nil
}

func (m *memStore) GetTestPlan(_ context.Context, id string) (*models.TestPlan, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	p, ok := m.plans[id]
	if !ok {
		return nil, nil
	}
	return &p, nil
}

func (m *memStore) GetTestRun(_ context.Context, id string) (*models.TestRun, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	r, ok := m.runs[id]
	if !ok {
		return nil, nil
	}
	return &r, nil
}

func (m *memStore) CreateTestRun(_ context.Context, run models.TestRun, caseIDs []string) (models.TestRun, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	run.ID = m.id("run")
	m.runs[run.ID] = run
	for i, cid := range caseIDs {
		id := m.id("res")
		m.results[id] = models.TestRunResult{ID: id, TestRunID: run.ID, TestCaseID: cid, ResultStatus: models.ResultUntested, Position: i}
	}
	return run, nil
}

func (m *memStore) DeleteTestRun(_ context.Context, id string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.runs, id)
	for rid, r := range m.results {
		if r.TestRunID == id {
			delete(m.results, rid)
		}
	}
	return nil
}

func (m *memStore) GetTestCases(_ context.Context, ids []string) ([]models.TestCase, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []models.TestCase
	for _, id := range ids {
		if c, ok := m.cases[id]; ok {
			out = append(out, c)
		}
	}
	return out, nil
}

func results(statuses ...models.ResultStatus) []models.TestRunResult {
	out := make([]models.TestRunResult, 0, len(statuses))
	for i, s := range statuses {
		out = append(out, models.TestRunResult{TestCaseID: fmt.Sprintf("c%d", i), ResultStatus: s})
	}
	return out
}

func TestDeriveRunStatus(t *testing.T) {
	tests := []struct {
		name string
		in   []models.TestRunResult
		want models.RunStatus
	}{
		{"no rows", nil, models.RunStatusNotStarted},
		{"all untested", results(models.ResultUntested, models.ResultUntested), models.RunStatusNotStarted},
		{"partially executed", results(models.ResultPassed, models.ResultFailed, models.ResultUntested, models.ResultUntested, models.ResultUntested), models.RunStatusInProgress},
		{"all executed", results(models.ResultPassed, models.ResultFailed, models.ResultBlocked, models.ResultSkipped), models.RunStatusCompleted},
		{"in_progress counts as executed", results(models.ResultInProgress, models.ResultPassed), models.RunStatusCompleted},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, DeriveRunStatus(tt.in))
		})
	}
}

func TestSummarize(t *testing.T) {
	s := Summarize(results(models.ResultPassed, models.ResultPassed, models.ResultFailed, models.ResultUntested, models.ResultSkipped))

	assert.Equal(t, 5, s.Total)
	assert.Equal(t, 2, s.Passed)
	assert.Equal(t, 1, s.Failed)
	assert.Equal(t, 1, s.Skipped)
	assert.Equal(t, 1, s.Untested)
	assert.Equal(t, 4, s.Executed())
	assert.InDelta(t, 50.0, s.PassRate, 0.001)
	assert.Equal(t, []string{"c2"}, s.FailedCaseIDs)

	assert.Zero(t, Summarize(nil).PassRate)
}

// seededRun creates run "run" over cases c1..c3 with untested rows
func seededRun(t *testing.T) (*memStore, *Service, models.TestRun) {
	t.Helper()
	m := newMemStore()
	for i := 1; i <= 3; i++ {
		id := fmt.Sprintf("c%d", i)
		m.cases[id] = models.TestCase{ID: id, ProjectID: "p1", Title: "Case " + id}
	}
	m.plans["plan1"] = models.TestPlan{ID: "plan1", ProjectID: "p1", Name: "Regression", CaseIDs: []string{"c1", "c2", "c3"}}
	svc := NewService(m)
	run, err := svc.CreateRunFromPlan(context.Background(), "p1", "plan1", "", "staging")
	require.NoError(t, err)
	return m, svc, run
}

func TestService_CreateRunFromPlan(t *testing.T) {
	m, _, run := seededRun(t)

	assert.Equal(t, "Regression", run.Name)
	assert.Equal(t, "plan1", models.IDValue(run.TestPlanID))
	assert.Equal(t, models.RunStatusNotStarted, run.RunStatus)

	rows, err := m.ListResults(context.Background(), run.ID)
	require.NoError(t, err)
	require.Len(t, rows, 3)
	for i, r := range rows {
		assert.Equal(t, fmt.Sprintf("c%d", i+1), r.TestCaseID)
		assert.Equal(t, models.ResultUntested, r.ResultStatus)
	}

	_, err = NewService(m).CreateRunFromPlan(context.Background(), "p1", "missing", "", "")
	assert.ErrorIs(t, err, apperr.ErrNotFound)
}

func TestService_PlanFromOtherProjectIsNotFound(t *testing.T) {
	m, svc, _ := seededRun(t)
	ctx := context.Background()
	before := len(m.runs)

	_, err := svc.CreateRunFromPlan(ctx, "p2", "plan1", "", "")
	assert.ErrorIs(t, err, apperr.ErrNotFound)

	_, err = svc.CreateRun(ctx, NewRun{ProjectID: "p2", TestPlanID: models.StringPtr("plan1"), Name: "r", CaseIDs: []string{"c1"}})
	assert.ErrorIs(t, err, apperr.ErrNotFound)
	assert.Len(t, m.runs, before)
}

func TestService_CreateRunValidates(t *testing.T) {
	svc := NewService(newMemStore())
	_, err := svc.CreateRun(context.Background(), NewRun{Name: " ", CaseIDs: []string{"c1"}})
	assert.ErrorIs(t, err, apperr.ErrInvalidInput)
	_, err = svc.CreateRun(context.Background(), NewRun{Name: "r"})
	assert.ErrorIs(t, err, apperr.ErrInvalidInput)
}

func TestStepper_SaveAndNavigate(t *testing.T) {
	m, svc, run := seededRun(t)
	ctx := context.Background()
	st, err := svc.Open(ctx, run.ID, "alex")
	require.NoError(t, err)
	require.Equal(t, 3, st.Len())

	// previous at index 0 saves but stays
	require.NoError(t, st.Edit(Execution{Status: models.ResultPassed}))
	require.NoError(t, st.SaveAndPrevious(ctx))
	assert.Equal(t, 0, st.Cursor())
	assert.Equal(t, 1, m.updates, "existing row is updated, not duplicated")
	assert.Zero(t, m.inserts)

	require.NoError(t, st.SaveAndNext(ctx))
	assert.Equal(t, 1, st.Cursor())

	require.NoError(t, st.GoTo(2))
	require.NoError(t, st.Edit(Execution{Status: models.ResultFailed, ActualResult: "500 error"}))
	require.NoError(t, st.SaveAndNext(ctx))
	assert.Equal(t, 2, st.Cursor(), "next at the last index saves but stays")

	r, err := m.FindResult(ctx, run.ID, "c3")
	require.NoError(t, err)
	require.NotNil(t, r)
	assert.Equal(t, models.ResultFailed, r.ResultStatus)
	assert.Equal(t, "500 error", r.ActualResult)
	assert.Equal(t, "alex", r.ExecutedBy)
	assert.NotNil(t, r.ExecutedAt)
}

func TestStepper_InsertsWhenNoRowExists(t *testing.T) {
	m := newMemStore()
	m.runs["r1"] = models.TestRun{ID: "r1"}
	st, err := NewStepper(context.Background(), m, "r1", []models.TestCase{{ID: "c1"}}, "")
	require.NoError(t, err)

	require.NoError(t, st.Edit(Execution{Status: models.ResultBlocked}))
	require.NoError(t, st.SaveAndNext(context.Background()))
	assert.Equal(t, 1, m.inserts)

	require.NoError(t, st.SaveAndNext(context.Background()))
	assert.Equal(t, 1, m.inserts)
	assert.Equal(t, 1, m.updates)
}

func TestStepper_FailedSaveKeepsEdits(t *testing.T) {
	m, svc, run := seededRun(t)
	ctx := context.Background()
	st, err := svc.Open(ctx, run.ID, "")
	require.NoError(t, err)

	require.NoError(t, st.Edit(Execution{Status: models.ResultFailed, Comments: "flaky"}))
	require.NoError(t, st.AddAttachment(models.Attachment{Type: models.AttachmentLink, URL: "https://logs.example/1"}))

	m.failOn = "update"
	err = st.SaveAndNext(ctx)
	require.ErrorIs(t, err, apperr.ErrPermissionDenied)
	assert.Equal(t, 0, st.Cursor())

	_, exec := st.Current()
	assert.Equal(t, models.ResultFailed, exec.Status)
	assert.Equal(t, "flaky", exec.Comments)
	require.Len(t, exec.Attachments, 1)
	assert.Equal(t, "https://logs.example/1", exec.Attachments[0].Name)

	m.failOn = ""
	require.NoError(t, st.SaveAndNext(ctx))
	r, _ := m.FindResult(ctx, run.ID, "c1")
	assert.Len(t, r.Attachments, 1)
}

func TestStepper_RejectsInvalidInput(t *testing.T) {
	_, svc, run := seededRun(t)
	st, err := svc.Open(context.Background(), run.ID, "")
	require.NoError(t, err)

	assert.ErrorIs(t, st.Edit(Execution{Status: models.ResultInProgress}), apperr.ErrInvalidInput)
	assert.ErrorIs(t, st.Edit(Execution{Status: "done"}), apperr.ErrInvalidInput)
	assert.ErrorIs(t, st.AddAttachment(models.Attachment{Type: models.AttachmentLink}), apperr.ErrInvalidInput)
	assert.ErrorIs(t, st.AddAttachment(models.Attachment{Type: "ftp", URL: "x"}), apperr.ErrInvalidInput)
	assert.ErrorIs(t, st.GoTo(3), apperr.ErrInvalidInput)
}

func TestStepper_SaveAndCloseReadsEveryPersistedRow(t *testing.T) {
	m, svc, run := seededRun(t)
	ctx := context.Background()
	st, err := svc.Open(ctx, run.ID, "")
	require.NoError(t, err)

	require.NoError(t, st.Edit(Execution{Status: models.ResultPassed}))
	status, err := st.SaveAndClose(ctx)
	require.NoError(t, err)
	assert.Equal(t, models.RunStatusInProgress, status)
	assert.Equal(t, models.RunStatusInProgress, m.runs[run.ID].RunStatus)

	// another tester finishes c2 and c3 behind this stepper's back
	for _, cid := range []string{"c2", "c3"} {
		r, _ := m.FindResult(ctx, run.ID, cid)
		r.ResultStatus = models.ResultSkipped
		_, err := m.UpdateResult(ctx, *r)
		require.NoError(t, err)
	}

	status, err = st.SaveAndClose(ctx)
	require.NoError(t, err)
	assert.Equal(t, models.RunStatusCompleted, status)
}

func TestService_CloneDeleteAndStatus(t *testing.T) {
	m, svc, run := seededRun(t)
	ctx := context.Background()

	clone, err := svc.CloneRun(ctx, run.ID, "")
	require.NoError(t, err)
	assert.Equal(t, "Regression (copy)", clone.Name)
	assert.Equal(t, run.TestPlanID, clone.TestPlanID)
	rows, _ := m.ListResults(ctx, clone.ID)
	assert.Len(t, rows, 3)

	require.NoError(t, svc.SetRunStatus(ctx, clone.ID, models.RunStatusCompleted))
	assert.ErrorIs(t, svc.SetRunStatus(ctx, clone.ID, "finished"), apperr.ErrInvalidInput)

	report, err := svc.Report(ctx, clone.ID)
	require.NoError(t, err)
	assert.Equal(t, models.RunStatusCompleted, report.Run.RunStatus)
	assert.Equal(t, 3, report.Summary.Untested)

	require.NoError(t, svc.DeleteRun(ctx, clone.ID))
	rows, _ = m.ListResults(ctx, clone.ID)
	assert.Empty(t, rows)
	assert.ErrorIs(t, svc.DeleteRun(ctx, clone.ID), apperr.ErrNotFound)
}

func TestService_OpenSkipsDeletedCases(t *testing.T) {
	m, svc, run := seededRun(t)
	delete(m.cases, "c2")

	st, err := svc.Open(context.Background(), run.ID, "")
	require.NoError(t, err)
	assert.Equal(t, 2, st.Len())
	require.NoError(t, st.GoTo(1))
	tc, _ := st.Current()
	assert.Equal(t, "c3", tc.ID)
}
