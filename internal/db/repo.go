package db

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"

	"github.com/dhyansraj/qa-testdesk/internal/apperr"
	"github.com/dhyansraj/qa-testdesk/internal/cache"
	"github.com/dhyansraj/qa-testdesk/internal/models"
	"github.com/dhyansraj/qa-testdesk/internal/mutation"
)

// Repository provides database operations
type Repository struct {
	db  *sqlx.DB
	now func() time.Time
}

// NewRepository creates a new repository over an open database
func NewRepository(db *sqlx.DB) *Repository {
	return &Repository{db: db, now: time.Now}
}

// Close closes the underlying database
func (r *Repository) Close() error {
	return r.db.Close()
}

// Ping checks the database connection
func (r *Repository) Ping(ctx context.Context) error {
	return classify("ping", r.db.PingContext(ctx))
}

func (r *Repository) stamp() string {
	return formatTimeValue(r.now())
}

// newID keeps backend ids and replaces temporary client ids
func newID(id string) string {
	if id == "" || strings.HasPrefix(id, cache.TempIDPrefix) {
		return uuid.NewString()
	}
	return id
}

// execOne runs a statement that must touch exactly one row
func (r *Repository) execOne(ctx context.Context, op, query string, args ...interface{}) error {
	return execOneOn(ctx, r.db, op, query, args...)
}

// execOneOn runs query on a database or an open transaction
func execOneOn(ctx context.Context, ext sqlx.ExtContext, op, query string, args ...interface{}) error {
	res, err := ext.ExecContext(ctx, ext.Rebind(query), args...)
	if err != nil {
		return classify(op, err)
	}
	if n, err := res.RowsAffected(); err == nil && n == 0 {
		return fmt.Errorf("%s: %w", op, apperr.ErrNotFound)
	}
	return nil
}

// ==================== Suites ====================

const suiteColumns = `id, project_id, name, description, parent_id, position, created_at, updated_at`

// ListSuites returns all suites of a project ordered by position
func (r *Repository) ListSuites(ctx context.Context, projectID string) ([]models.Suite, error) {
	var rows []suiteRow
	err := r.db.SelectContext(ctx, &rows, r.db.Rebind(`
		SELECT `+suiteColumns+` FROM test_suites
		WHERE project_id = ?
		ORDER BY position, name`), projectID)
	if err != nil {
		return nil, classify("list suites", err)
	}
	suites := make([]models.Suite, 0, len(rows))
	for _, row := range rows {
		suites = append(suites, row.model())
	}
	return suites, nil
}

// GetSuite returns a suite by id, or nil if it does not exist
func (r *Repository) GetSuite(ctx context.Context, id string) (*models.Suite, error) {
	var rows []suiteRow
	err := r.db.SelectContext(ctx, &rows, r.db.Rebind(`SELECT `+suiteColumns+` FROM test_suites WHERE id = ?`), id)
	if err != nil {
		return nil, classify("get suite", err)
	}
	if len(rows) == 0 {
		return nil, nil
	}
	s := rows[0].model()
	return &s, nil
}

// CreateSuite inserts a suite and returns the stored record
func (r *Repository) CreateSuite(ctx context.Context, s models.Suite) (models.Suite, error) {
	if strings.TrimSpace(s.Name) == "" {
		return models.Suite{}, fmt.Errorf("suite name is required: %w", apperr.ErrInvalidInput)
	}
	now := r.stamp()
	s.ID = newID(s.ID)
	_, err := r.db.ExecContext(ctx, r.db.Rebind(`
		INSERT INTO test_suites (`+suiteColumns+`)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)`),
		s.ID, s.ProjectID, s.Name, s.Description, nullID(s.ParentID), s.Position, now, now)
	if err != nil {
		return models.Suite{}, classify("create suite", err)
	}
	s.CreatedAt = parseTimeValue(now)
	s.UpdatedAt = s.CreatedAt
	return s, nil
}

// UpdateSuite writes every mutable field of a suite
func (r *Repository) UpdateSuite(ctx context.Context, s models.Suite) (models.Suite, error) {
	now := r.stamp()
	err := r.execOne(ctx, "update suite", `
		UPDATE test_suites
		SET name = ?, description = ?, parent_id = ?, position = ?, updated_at = ?
		WHERE id = ?`,
		s.Name, s.Description, nullID(s.ParentID), s.Position, now, s.ID)
	if err != nil {
		return models.Suite{}, err
	}
	s.UpdatedAt = parseTimeValue(now)
	return s, nil
}

// SetSuitePlacement updates parent and position of a suite
func (r *Repository) SetSuitePlacement(ctx context.Context, id string, parentID *string, position int) error {
	return r.execOne(ctx, "set suite placement", `
		UPDATE test_suites SET parent_id = ?, position = ?, updated_at = ? WHERE id = ?`,
		nullID(parentID), position, r.stamp(), id)
}

// ApplyPlan writes all placements of a mutation plan in one transaction. A missing row or
// a failed statement rolls the whole plan back.
func (r *Repository) ApplyPlan(ctx context.Context, p mutation.Plan) error {
	tx, err := r.db.BeginTxx(ctx, nil)
	if err != nil {
		return classify("begin", err)
	}
	defer tx.Rollback()

	now := r.stamp()
	for _, c := range p.Cases {
		if err := execOneOn(ctx, tx, "set test case placement", `
			UPDATE test_cases SET suite_id = ?, position = ?, updated_at = ? WHERE id = ?`,
			nullID(c.SuiteID), c.Position, now, c.ID); err != nil {
			return err
		}
	}
	for _, s := range p.Suites {
		if err := execOneOn(ctx, tx, "set suite placement", `
			UPDATE test_suites SET parent_id = ?, position = ?, updated_at = ? WHERE id = ?`,
			nullID(s.ParentID), s.Position, now, s.ID); err != nil {
			return err
		}
	}
	if p.DeleteSuiteID != "" {
		if err := execOneOn(ctx, tx, "delete suite", `DELETE FROM test_suites WHERE id = ?`, p.DeleteSuiteID); err != nil {
			return err
		}
	}
	return classify("commit", tx.Commit())
}

// DeleteSuite deletes the suite row. Test cases still pointing at it make this fail, so
// callers reassign them first.
func (r *Repository) DeleteSuite(ctx context.Context, id string) error {
	return r.execOne(ctx, "delete suite", `DELETE FROM test_suites WHERE id = ?`, id)
}

// ==================== Test Cases ====================

const caseColumns = `id, project_id, suite_id, title, description, test_type, priority, status,
	position, steps, preconditions, tags, created_at, updated_at`

// ListTestCases returns all test cases of a project ordered by position
func (r *Repository) ListTestCases(ctx context.Context, projectID string) ([]models.TestCase, error) {
	var rows []caseRow
	err := r.db.SelectContext(ctx, &rows, r.db.Rebind(`
		SELECT `+caseColumns+` FROM test_cases
		WHERE project_id = ?
		ORDER BY position, title`), projectID)
	if err != nil {
		return nil, classify("list test cases", err)
	}
	return caseModels(rows), nil
}

// GetTestCases returns the cases with the given ids that still exist, in no particular order
func (r *Repository) GetTestCases(ctx context.Context, ids []string) ([]models.TestCase, error) {
	if len(ids) == 0 {
		return []models.TestCase{}, nil
	}
	query, args, err := sqlx.In(`SELECT `+caseColumns+` FROM test_cases WHERE id IN (?)`, ids)
	if err != nil {
		return nil, err
	}
	var rows []caseRow
	if err := r.db.SelectContext(ctx, &rows, r.db.Rebind(query), args...); err != nil {
		return nil, classify("get test cases", err)
	}
	return caseModels(rows), nil
}

// GetTestCase returns a test case by id, or nil if it does not exist
func (r *Repository) GetTestCase(ctx context.Context, id string) (*models.TestCase, error) {
	cases, err := r.GetTestCases(ctx, []string{id})
	if err != nil || len(cases) == 0 {
		return nil, err
	}
	return &cases[0], nil
}

// CreateTestCase inserts a test case and returns the stored record
func (r *Repository) CreateTestCase(ctx context.Context, tc models.TestCase) (models.TestCase, error) {
	if strings.TrimSpace(tc.Title) == "" {
		return models.TestCase{}, fmt.Errorf("test case title is required: %w", apperr.ErrInvalidInput)
	}
	tc.ApplyDefaults()
	if tc.Steps == nil {
		tc.Steps = []models.Step{}
	}
	if tc.Tags == nil {
		tc.Tags = []string{}
	}
	now := r.stamp()
	tc.ID = newID(tc.ID)
	_, err := r.db.ExecContext(ctx, r.db.Rebind(`
		INSERT INTO test_cases (`+caseColumns+`)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`),
		tc.ID, tc.ProjectID, nullID(tc.SuiteID), tc.Title, tc.Description,
		string(tc.TestType), string(tc.Priority), string(tc.Status), tc.Position,
		toJSON(tc.Steps), tc.Preconditions, toJSON(tc.Tags), now, now)
	if err != nil {
		return models.TestCase{}, classify("create test case", err)
	}
	tc.CreatedAt = parseTimeValue(now)
	tc.UpdatedAt = tc.CreatedAt
	return tc, nil
}

// UpdateTestCase writes every mutable field of a test case
func (r *Repository) UpdateTestCase(ctx context.Context, tc models.TestCase) (models.TestCase, error) {
	tc.ApplyDefaults()
	now := r.stamp()
	err := r.execOne(ctx, "update test case", `
		UPDATE test_cases
		SET suite_id = ?, title = ?, description = ?, test_type = ?, priority = ?, status = ?,
		    position = ?, steps = ?, preconditions = ?, tags = ?, updated_at = ?
		WHERE id = ?`,
		nullID(tc.SuiteID), tc.Title, tc.Description, string(tc.TestType), string(tc.Priority),
		string(tc.Status), tc.Position, toJSON(tc.Steps), tc.Preconditions, toJSON(tc.Tags), now, tc.ID)
	if err != nil {
		return models.TestCase{}, err
	}
	tc.UpdatedAt = parseTimeValue(now)
	return tc, nil
}

// SetTestCasePlacement updates suite and position of a test case
func (r *Repository) SetTestCasePlacement(ctx context.Context, id string, suiteID *string, position int) error {
	return r.execOne(ctx, "set test case placement", `
		UPDATE test_cases SET suite_id = ?, position = ?, updated_at = ? WHERE id = ?`,
		nullID(suiteID), position, r.stamp(), id)
}

// DeleteTestCase deletes a test case together with its plan entries and run results
func (r *Repository) DeleteTestCase(ctx context.Context, id string) error {
	return r.execOne(ctx, "delete test case", `DELETE FROM test_cases WHERE id = ?`, id)
}

func caseModels(rows []caseRow) []models.TestCase {
	cases := make([]models.TestCase, 0, len(rows))
	for _, row := range rows {
		cases = append(cases, row.model())
	}
	return cases
}
