package db

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"

	"github.com/google/uuid"

	"github.com/dhyansraj/qa-testdesk/internal/apperr"
	"github.com/dhyansraj/qa-testdesk/internal/models"
)

// ==================== Test Plans ====================

// ListTestPlans returns the plans of a project, newest first, with their case ids
func (r *Repository) ListTestPlans(ctx context.Context, projectID string) ([]models.TestPlan, error) {
	var rows []planRow
	err := r.db.SelectContext(ctx, &rows, r.db.Rebind(`
		SELECT id, project_id, name, description, created_at FROM test_plans
		WHERE project_id = ?
		ORDER BY created_at DESC`), projectID)
	if err != nil {
		return nil, classify("list test plans", err)
	}
	plans := make([]models.TestPlan, 0, len(rows))
	for _, row := range rows {
		p := row.model()
		if p.CaseIDs, err = r.planCaseIDs(ctx, p.ID); err != nil {
			return nil, err
		}
		plans = append(plans, p)
	}
	return plans, nil
}

// GetTestPlan returns a plan by id, or nil if it does not exist
func (r *Repository) GetTestPlan(ctx context.Context, id string) (*models.TestPlan, error) {
	var rows []planRow
	err := r.db.SelectContext(ctx, &rows, r.db.Rebind(`
		SELECT id, project_id, name, description, created_at FROM test_plans WHERE id = ?`), id)
	if err != nil {
		return nil, classify("get test plan", err)
	}
	if len(rows) == 0 {
		return nil, nil
	}
	p := rows[0].model()
	if p.CaseIDs, err = r.planCaseIDs(ctx, id); err != nil {
		return nil, err
	}
	return &p, nil
}

func (r *Repository) planCaseIDs(ctx context.Context, planID string) ([]string, error) {
	ids := []string{}
	err := r.db.SelectContext(ctx, &ids, r.db.Rebind(`
		SELECT test_case_id FROM test_plan_cases WHERE test_plan_id = ? ORDER BY position`), planID)
	if err != nil {
		return nil, classify("list plan cases", err)
	}
	return ids, nil
}

// CreateTestPlan inserts a plan and its ordered case list in one transaction
func (r *Repository) CreateTestPlan(ctx context.Context, p models.TestPlan) (models.TestPlan, error) {
	if strings.TrimSpace(p.Name) == "" {
		return models.TestPlan{}, fmt.Errorf("plan name is required: %w", apperr.ErrInvalidInput)
	}
	tx, err := r.db.BeginTxx(ctx, nil)
	if err != nil {
		return models.TestPlan{}, classify("begin", err)
	}
	defer tx.Rollback()

	now := r.stamp()
	p.ID = newID(p.ID)
	if _, err := tx.ExecContext(ctx, tx.Rebind(`
		INSERT INTO test_plans (id, project_id, name, description, created_at)
		VALUES (?, ?, ?, ?, ?)`), p.ID, p.ProjectID, p.Name, p.Description, now); err != nil {
		return models.TestPlan{}, classify("create test plan", err)
	}
	for i, caseID := range p.CaseIDs {
		if _, err := tx.ExecContext(ctx, tx.Rebind(`
			INSERT INTO test_plan_cases (test_plan_id, test_case_id, position)
			VALUES (?, ?, ?)`), p.ID, caseID, i); err != nil {
			return models.TestPlan{}, classify("add plan case", err)
		}
	}
	if err := tx.Commit(); err != nil {
		return models.TestPlan{}, classify("commit", err)
	}
	if p.CaseIDs == nil {
		p.CaseIDs = []string{}
	}
	p.CreatedAt = parseTimeValue(now)
	return p, nil
}

// ==================== Test Runs ====================

const runColumns = `id, project_id, test_plan_id, name, description, environment, run_status, created_at, updated_at`

// ListTestRuns returns the runs of a project, newest first
func (r *Repository) ListTestRuns(ctx context.Context, projectID string) ([]models.TestRun, error) {
	var rows []runRow
	err := r.db.SelectContext(ctx, &rows, r.db.Rebind(`
		SELECT `+runColumns+` FROM test_runs
		WHERE project_id = ?
		ORDER BY created_at DESC`), projectID)
	if err != nil {
		return nil, classify("list test runs", err)
	}
	runs := make([]models.TestRun, 0, len(rows))
	for _, row := range rows {
		runs = append(runs, row.model())
	}
	return runs, nil
}

// GetTestRun returns a run by id, or nil if it does not exist
func (r *Repository) GetTestRun(ctx context.Context, id string) (*models.TestRun, error) {
	var rows []runRow
	err := r.db.SelectContext(ctx, &rows, r.db.Rebind(`SELECT `+runColumns+` FROM test_runs WHERE id = ?`), id)
	if err != nil {
		return nil, classify("get test run", err)
	}
	if len(rows) == 0 {
		return nil, nil
	}
	run := rows[0].model()
	return &run, nil
}

// CreateTestRun inserts the run and one untested result row per case, in order
func (r *Repository) CreateTestRun(ctx context.Context, run models.TestRun, caseIDs []string) (models.TestRun, error) {
	tx, err := r.db.BeginTxx(ctx, nil)
	if err != nil {
		return models.TestRun{}, classify("begin", err)
	}
	defer tx.Rollback()

	now := r.stamp()
	run.ID = newID(run.ID)
	if run.RunStatus == "" {
		run.RunStatus = models.RunStatusNotStarted
	}
	if _, err := tx.ExecContext(ctx, tx.Rebind(`
		INSERT INTO test_runs (`+runColumns+`)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`),
		run.ID, run.ProjectID, nullID(run.TestPlanID), run.Name, run.Description,
		run.Environment, string(run.RunStatus), now, now); err != nil {
		return models.TestRun{}, classify("create test run", err)
	}
	for i, caseID := range caseIDs {
		if _, err := tx.ExecContext(ctx, tx.Rebind(`
			INSERT INTO test_run_results (id, test_run_id, test_case_id, result_status, position)
			VALUES (?, ?, ?, ?, ?)`),
			uuid.NewString(), run.ID, caseID, string(models.ResultUntested), i); err != nil {
			return models.TestRun{}, classify("create run result", err)
		}
	}
	if err := tx.Commit(); err != nil {
		return models.TestRun{}, classify("commit", err)
	}
	run.CreatedAt = parseTimeValue(now)
	run.UpdatedAt = run.CreatedAt
	return run, nil
}

// UpdateRunStatus updates the aggregate status of a run
func (r *Repository) UpdateRunStatus(ctx context.Context, runID string, status models.RunStatus) error {
	return r.execOne(ctx, "update run status",
		`UPDATE test_runs SET run_status = ?, updated_at = ? WHERE id = ?`,
		string(status), r.stamp(), runID)
}

// DeleteTestRun deletes a run and all its results
func (r *Repository) DeleteTestRun(ctx context.Context, id string) error {
	tx, err := r.db.BeginTxx(ctx, nil)
	if err != nil {
		return classify("begin", err)
	}
	defer tx.Rollback()

	if _, err := tx.ExecContext(ctx, tx.Rebind(`DELETE FROM test_run_results WHERE test_run_id = ?`), id); err != nil {
		return classify("delete run results", err)
	}
	res, err := tx.ExecContext(ctx, tx.Rebind(`DELETE FROM test_runs WHERE id = ?`), id)
	if err != nil {
		return classify("delete test run", err)
	}
	if n, err := res.RowsAffected(); err == nil && n == 0 {
		return fmt.Errorf("delete test run %s: %w", id, apperr.ErrNotFound)
	}
	return classify("commit", tx.Commit())
}

// ==================== Test Run Results ====================

const resultColumns = `id, test_run_id, test_case_id, result_status, actual_result, comments, attachments,
	execution_time, executed_by, executed_at, position`

// ListResults returns every result row of a run ordered by position
func (r *Repository) ListResults(ctx context.Context, runID string) ([]models.TestRunResult, error) {
	var rows []resultRow
	err := r.db.SelectContext(ctx, &rows, r.db.Rebind(`
		SELECT `+resultColumns+` FROM test_run_results
		WHERE test_run_id = ?
		ORDER BY position, id`), runID)
	if err != nil {
		return nil, classify("list results", err)
	}
	results := make([]models.TestRunResult, 0, len(rows))
	for _, row := range rows {
		results = append(results, row.model())
	}
	return results, nil
}

// FindResult returns the row of (runID, caseID), or nil if there is none
func (r *Repository) FindResult(ctx context.Context, runID, caseID string) (*models.TestRunResult, error) {
	var row resultRow
	err := r.db.GetContext(ctx, &row, r.db.Rebind(`
		SELECT `+resultColumns+` FROM test_run_results
		WHERE test_run_id = ? AND test_case_id = ?`), runID, caseID)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, classify("find result", err)
	}
	res := row.model()
	return &res, nil
}

// InsertResult inserts a verdict row
func (r *Repository) InsertResult(ctx context.Context, res models.TestRunResult) (models.TestRunResult, error) {
	res.ID = newID(res.ID)
	if res.Attachments == nil {
		res.Attachments = []models.Attachment{}
	}
	_, err := r.db.ExecContext(ctx, r.db.Rebind(`
		INSERT INTO test_run_results (`+resultColumns+`)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`),
		res.ID, res.TestRunID, res.TestCaseID, string(res.ResultStatus), res.ActualResult, res.Comments,
		toJSON(res.Attachments), nullInt(res.ExecutionTime), res.ExecutedBy, formatTime(res.ExecutedAt), res.Position)
	if err != nil {
		return models.TestRunResult{}, classify("insert result", err)
	}
	return res, nil
}

// UpdateResult overwrites the verdict fields of an existing row
func (r *Repository) UpdateResult(ctx context.Context, res models.TestRunResult) (models.TestRunResult, error) {
	if res.Attachments == nil {
		res.Attachments = []models.Attachment{}
	}
	err := r.execOne(ctx, "update result", `
		UPDATE test_run_results
		SET result_status = ?, actual_result = ?, comments = ?, attachments = ?,
		    execution_time = ?, executed_by = ?, executed_at = ?
		WHERE id = ?`,
		string(res.ResultStatus), res.ActualResult, res.Comments, toJSON(res.Attachments),
		nullInt(res.ExecutionTime), res.ExecutedBy, formatTime(res.ExecutedAt), res.ID)
	if err != nil {
		return models.TestRunResult{}, err
	}
	return res, nil
}

// ==================== Stats ====================

// RunStats holds aggregate statistics across the runs of a project
type RunStats struct {
	TotalRuns     int64   `json:"total_runs" db:"total_runs"`
	CompletedRuns int64   `json:"completed_runs" db:"completed_runs"`
	TotalResults  int64   `json:"total_results" db:"total_results"`
	TotalPassed   int64   `json:"total_passed" db:"total_passed"`
	TotalFailed   int64   `json:"total_failed" db:"total_failed"`
	PassRate      float64 `json:"pass_rate" db:"-"`
}

// GetRunStats returns aggregate statistics across all runs of a project
func (r *Repository) GetRunStats(ctx context.Context, projectID string) (*RunStats, error) {
	stats := &RunStats{}
	err := r.db.GetContext(ctx, stats, r.db.Rebind(`
		SELECT
			COUNT(DISTINCT tr.id) AS total_runs,
			COUNT(DISTINCT CASE WHEN tr.run_status = 'completed' THEN tr.id END) AS completed_runs,
			COUNT(res.id) AS total_results,
			COALESCE(SUM(CASE WHEN res.result_status = 'passed' THEN 1 ELSE 0 END), 0) AS total_passed,
			COALESCE(SUM(CASE WHEN res.result_status = 'failed' THEN 1 ELSE 0 END), 0) AS total_failed
		FROM test_runs tr
		LEFT JOIN test_run_results res ON res.test_run_id = tr.id
		WHERE tr.project_id = ?`), projectID)
	if err != nil {
		return nil, classify("run stats", err)
	}

	total := stats.TotalPassed + stats.TotalFailed
	if total > 0 {
		stats.PassRate = float64(stats.TotalPassed) / float64(total) * 100
		// Round to 2 decimal places
		stats.PassRate = float64(int(stats.PassRate*100)) / 100
	}
	return stats, nil
}
