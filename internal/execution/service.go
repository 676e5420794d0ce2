package execution

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	"github.com/dhyansraj/qa-testdesk/internal/apperr"
	"github.com/dhyansraj/qa-testdesk/internal/logging"
	"github.com/dhyansraj/qa-testdesk/internal/models"
)

// RunStore is the persistence needed for run lifecycle operations.
type RunStore interface {
	ResultStore
	GetTestPlan(ctx context.Context, id string) (*models.TestPlan, error)
	GetTestRun(ctx context.Context, id string) (*models.TestRun, error)
	// CreateTestRun inserts the run and one untested result row per case id, in order
	CreateTestRun(ctx context.Context, run models.TestRun, caseIDs []string) (models.TestRun, error)
	DeleteTestRun(ctx context.Context, id string) error
	GetTestCases(ctx context.Context, ids []string) ([]models.TestCase, error)
}

// NewRun is the input of CreateRun
type NewRun struct {
	ProjectID   string   `json:"project_id"`
	TestPlanID  *string  `json:"test_plan_id"`
	Name        string   `json:"name"`
	Description string   `json:"description"`
	Environment string   `json:"environment"`
	CaseIDs     []string `json:"test_case_ids"`
}

// Service creates, clones and closes runs.
type Service struct {
	store RunStore
	log   *slog.Logger
}

// NewService creates a run service over store
func NewService(store RunStore) *Service {
	return &Service{store: store, log: logging.New("runs")}
}

// CreateRun creates a run over an explicit ordered case list. A linked plan must belong to
// the run's project.
func (s *Service) CreateRun(ctx context.Context, in NewRun) (models.TestRun, error) {
	if in.TestPlanID != nil {
		if _, err := s.planInProject(ctx, in.ProjectID, *in.TestPlanID); err != nil {
			return models.TestRun{}, err
		}
	}
	return s.createRun(ctx, in)
}

func (s *Service) createRun(ctx context.Context, in NewRun) (models.TestRun, error) {
	if strings.TrimSpace(in.Name) == "" {
		return models.TestRun{}, fmt.Errorf("run name is required: %w", apperr.ErrInvalidInput)
	}
	ids := dedupe(in.CaseIDs)
	if len(ids) == 0 {
		return models.TestRun{}, fmt.Errorf("a run needs at least one test case: %w", apperr.ErrInvalidInput)
	}
	run, err := s.store.CreateTestRun(ctx, models.TestRun{
		ProjectID:   in.ProjectID,
		TestPlanID:  models.CopyID(in.TestPlanID),
		Name:        in.Name,
		Description: in.Description,
		Environment: in.Environment,
		RunStatus:   models.RunStatusNotStarted,
	}, ids)
	if err != nil {
		return models.TestRun{}, fmt.Errorf("create run: %w", err)
	}
	s.log.Info("run created", slog.String("run_id", run.ID), slog.Int("cases", len(ids)))
	return run, nil
}

// CreateRunFromPlan creates a run in projectID over the plan's case list and links it to
// the plan. A plan of another project is reported as not found.
func (s *Service) CreateRunFromPlan(ctx context.Context, projectID, planID, name, environment string) (models.TestRun, error) {
	plan, err := s.planInProject(ctx, projectID, planID)
	if err != nil {
		return models.TestRun{}, err
	}
	if name == "" {
		name = plan.Name
	}
	return s.createRun(ctx, NewRun{
		ProjectID:   plan.ProjectID,
		TestPlanID:  models.StringPtr(plan.ID),
		Name:        name,
		Description: plan.Description,
		Environment: environment,
		CaseIDs:     plan.CaseIDs,
	})
}

func (s *Service) planInProject(ctx context.Context, projectID, planID string) (*models.TestPlan, error) {
	plan, err := s.store.GetTestPlan(ctx, planID)
	if err != nil {
		return nil, err
	}
	if plan == nil || plan.ProjectID != projectID {
		return nil, fmt.Errorf("test plan %s in project %s: %w", planID, projectID, apperr.ErrNotFound)
	}
	return plan, nil
}

// CloneRun copies a run's ordered case list into a fresh, untested run.
func (s *Service) CloneRun(ctx context.Context, runID, name string) (models.TestRun, error) {
	src, err := s.getRun(ctx, runID)
	if err != nil {
		return models.TestRun{}, err
	}
	results, err := s.store.ListResults(ctx, runID)
	if err != nil {
		return models.TestRun{}, err
	}
	ids := make([]string, 0, len(results))
	for _, r := range results {
		ids = append(ids, r.TestCaseID)
	}
	if name == "" {
		name = src.Name + " (copy)"
	}
	return s.createRun(ctx, NewRun{
		ProjectID:   src.ProjectID,
		TestPlanID:  src.TestPlanID,
		Name:        name,
		Description: src.Description,
		Environment: src.Environment,
		CaseIDs:     ids,
	})
}

// SetRunStatus overrides the derived status
func (s *Service) SetRunStatus(ctx context.Context, runID string, status models.RunStatus) error {
	if !status.Valid() {
		return fmt.Errorf("run status %q: %w", status, apperr.ErrInvalidInput)
	}
	if _, err := s.getRun(ctx, runID); err != nil {
		return err
	}
	return s.store.UpdateRunStatus(ctx, runID, status)
}

// DeleteRun removes a run and its results
func (s *Service) DeleteRun(ctx context.Context, runID string) error {
	if _, err := s.getRun(ctx, runID); err != nil {
		return err
	}
	if err := s.store.DeleteTestRun(ctx, runID); err != nil {
		return err
	}
	s.log.Info("run deleted", slog.String("run_id", runID))
	return nil
}

// RunReport is a run with its results and their summary
type RunReport struct {
	Run     models.TestRun         `json:"run"`
	Results []models.TestRunResult `json:"results"`
	Summary Summary                `json:"summary"`
}

// Report loads a run with its results
func (s *Service) Report(ctx context.Context, runID string) (RunReport, error) {
	run, err := s.getRun(ctx, runID)
	if err != nil {
		return RunReport{}, err
	}
	results, err := s.store.ListResults(ctx, runID)
	if err != nil {
		return RunReport{}, err
	}
	return RunReport{Run: *run, Results: results, Summary: Summarize(results)}, nil
}

// Open starts a stepper over the run's cases in result order. Cases deleted since the run
// was created are skipped.
func (s *Service) Open(ctx context.Context, runID, executedBy string) (*Stepper, error) {
	if _, err := s.getRun(ctx, runID); err != nil {
		return nil, err
	}
	results, err := s.store.ListResults(ctx, runID)
	if err != nil {
		return nil, err
	}
	ids := make([]string, 0, len(results))
	for _, r := range results {
		ids = append(ids, r.TestCaseID)
	}
	cases, err := s.store.GetTestCases(ctx, ids)
	if err != nil {
		return nil, err
	}
	byID := make(map[string]models.TestCase, len(cases))
	for _, c := range cases {
		byID[c.ID] = c
	}
	ordered := make([]models.TestCase, 0, len(ids))
	for _, id := range ids {
		if c, ok := byID[id]; ok {
			ordered = append(ordered, c)
		}
	}
	return NewStepper(ctx, s.store, runID, ordered, executedBy)
}

func (s *Service) getRun(ctx context.Context, runID string) (*models.TestRun, error) {
	run, err := s.store.GetTestRun(ctx, runID)
	if err != nil {
		return nil, err
	}
	if run == nil {
		return nil, fmt.Errorf("test run %s: %w", runID, apperr.ErrNotFound)
	}
	return run, nil
}

func dedupe(ids []string) []string {
	seen := make(map[string]bool, len(ids))
	out := make([]string, 0, len(ids))
	for _, id := range ids {
		if id == "" || seen[id] {
			continue
		}
		seen[id] = true
		out = append(out, id)
	}
	return out
}
