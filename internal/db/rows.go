package db

import (
	"database/sql"
	"encoding/json"
	"time"

	"github.com/dhyansraj/qa-testdesk/internal/models"
)

type suiteRow struct {
	ID          string         `db:"id"`
	ProjectID   string         `db:"project_id"`
	Name        string         `db:"name"`
	Description string         `db:"description"`
	ParentID    sql.NullString `db:"parent_id"`
	Position    int            `db:"position"`
	CreatedAt   string         `db:"created_at"`
	UpdatedAt   string         `db:"updated_at"`
}

func (r suiteRow) model() models.Suite {
	return models.Suite{
		ID:          r.ID,
		ProjectID:   r.ProjectID,
		Name:        r.Name,
		Description: r.Description,
		ParentID:    fromNull(r.ParentID),
		Position:    r.Position,
		CreatedAt:   parseTimeValue(r.CreatedAt),
		UpdatedAt:   parseTimeValue(r.UpdatedAt),
	}
}

type caseRow struct {
	ID            string         `db:"id"`
	ProjectID     string         `db:"project_id"`
	SuiteID       sql.NullString `db:"suite_id"`
	Title         string         `db:"title"`
	Description   string         `db:"description"`
	TestType      string         `db:"test_type"`
	Priority      string         `db:"priority"`
	Status        string         `db:"status"`
	Position      int            `db:"position"`
	Steps         string         `db:"steps"`
	Preconditions string         `db:"preconditions"`
	Tags          string         `db:"tags"`
	CreatedAt     string         `db:"created_at"`
	UpdatedAt     string         `db:"updated_at"`
}

func (r caseRow) model() models.TestCase {
	tc := models.TestCase{
		ID:            r.ID,
		ProjectID:     r.ProjectID,
		SuiteID:       fromNull(r.SuiteID),
		Title:         r.Title,
		Description:   r.Description,
		TestType:      models.TestType(r.TestType),
		Priority:      models.Priority(r.Priority),
		Status:        models.CaseStatus(r.Status),
		Position:      r.Position,
		Preconditions: r.Preconditions,
		Steps:         []models.Step{},
		Tags:          []string{},
		CreatedAt:     parseTimeValue(r.CreatedAt),
		UpdatedAt:     parseTimeValue(r.UpdatedAt),
	}
	// malformed JSON columns read as empty lists
	_ = json.Unmarshal([]byte(r.Steps), &tc.Steps)
	_ = json.Unmarshal([]byte(r.Tags), &tc.Tags)
	return tc
}

type planRow struct {
	ID          string `db:"id"`
	ProjectID   string `db:"project_id"`
	Name        string `db:"name"`
	Description string `db:"description"`
	CreatedAt   string `db:"created_at"`
}

func (r planRow) model() models.TestPlan {
	return models.TestPlan{
		ID:          r.ID,
		ProjectID:   r.ProjectID,
		Name:        r.Name,
		Description: r.Description,
		CaseIDs:     []string{},
		CreatedAt:   parseTimeValue(r.CreatedAt),
	}
}

type runRow struct {
	ID          string         `db:"id"`
	ProjectID   string         `db:"project_id"`
	TestPlanID  sql.NullString `db:"test_plan_id"`
	Name        string         `db:"name"`
	Description string         `db:"description"`
	Environment string         `db:"environment"`
	RunStatus   string         `db:"run_status"`
	CreatedAt   string         `db:"created_at"`
	UpdatedAt   string         `db:"updated_at"`
}

func (r runRow) model() models.TestRun {
	return models.TestRun{
		ID:          r.ID,
		ProjectID:   r.ProjectID,
		TestPlanID:  fromNull(r.TestPlanID),
		Name:        r.Name,
		Description: r.Description,
		Environment: r.Environment,
		RunStatus:   models.RunStatus(r.RunStatus),
		CreatedAt:   parseTimeValue(r.CreatedAt),
		UpdatedAt:   parseTimeValue(r.UpdatedAt),
	}
}

type resultRow struct {
	ID            string         `db:"id"`
	TestRunID     string         `db:"test_run_id"`
	TestCaseID    string         `db:"test_case_id"`
	ResultStatus  string         `db:"result_status"`
	ActualResult  string         `db:"actual_result"`
	Comments      string         `db:"comments"`
	Attachments   string         `db:"attachments"`
	ExecutionTime sql.NullInt64  `db:"execution_time"`
	ExecutedBy    string         `db:"executed_by"`
	ExecutedAt    sql.NullString `db:"executed_at"`
	Position      int            `db:"position"`
}

func (r resultRow) model() models.TestRunResult {
	res := models.TestRunResult{
		ID:           r.ID,
		TestRunID:    r.TestRunID,
		TestCaseID:   r.TestCaseID,
		ResultStatus: models.ResultStatus(r.ResultStatus),
		ActualResult: r.ActualResult,
		Comments:     r.Comments,
		Attachments:  []models.Attachment{},
		ExecutedBy:   r.ExecutedBy,
		ExecutedAt:   parseTime(r.ExecutedAt),
		Position:     r.Position,
	}
	_ = json.Unmarshal([]byte(r.Attachments), &res.Attachments)
	if r.ExecutionTime.Valid {
		minutes := int(r.ExecutionTime.Int64)
		res.ExecutionTime = &minutes
	}
	return res
}

// ==================== Helper Functions ====================

func parseTime(ns sql.NullString) *time.Time {
	if !ns.Valid || ns.String == "" {
		return nil
	}
	t := parseTimeValue(ns.String)
	if t.IsZero() {
		return nil
	}
	return &t
}

func parseTimeValue(s string) time.Time {
	t, err := time.Parse(time.RFC3339Nano, s)
	if err != nil {
		// Try alternative format
		t, _ = time.Parse("2006-01-02 15:04:05", s)
	}
	return t
}

func formatTime(t *time.Time) interface{} {
	if t == nil {
		return nil
	}
	return t.UTC().Format(time.RFC3339Nano)
}

func formatTimeValue(t time.Time) string {
	return t.UTC().Format(time.RFC3339Nano)
}

func fromNull(ns sql.NullString) *string {
	if !ns.Valid {
		return nil
	}
	return models.StringPtr(ns.String)
}

func nullID(id *string) interface{} {
	if id == nil || *id == "" {
		return nil
	}
	return *id
}

func nullInt(v *int) interface{} {
	if v == nil {
		return nil
	}
	return *v
}

func toJSON(v any) string {
	b, err := json.Marshal(v)
	if err != nil || string(b) == "null" {
		return "[]"
	}
	return string(b)
}
