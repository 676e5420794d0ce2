package execution

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/dhyansraj/qa-testdesk/internal/apperr"
	"github.com/dhyansraj/qa-testdesk/internal/logging"
	"github.com/dhyansraj/qa-testdesk/internal/models"
)

// ResultStore persists the verdict rows of runs.
type ResultStore interface {
	// ListResults returns every result row of the run ordered by position
	ListResults(ctx context.Context, runID string) ([]models.TestRunResult, error)
	// FindResult returns nil, nil when no row exists for (runID, caseID)
	FindResult(ctx context.Context, runID, caseID string) (*models.TestRunResult, error)
	InsertResult(ctx context.Context, r models.TestRunResult) (models.TestRunResult, error)
	UpdateResult(ctx context.Context, r models.TestRunResult) (models.TestRunResult, error)
	UpdateRunStatus(ctx context.Context, runID string, status models.RunStatus) error
}

// Execution is the unsaved verdict of one case
type Execution struct {
	Status        models.ResultStatus `json:"result_status"`
	ActualResult  string              `json:"actual_result"`
	Comments      string              `json:"comments"`
	Attachments   []models.Attachment `json:"attachments"`
	ExecutionTime *int                `json:"execution_time,omitempty"`
}

func (e Execution) clone() Execution {
	e.Attachments = append([]models.Attachment(nil), e.Attachments...)
	if e.ExecutionTime != nil {
		v := *e.ExecutionTime
		e.ExecutionTime = &v
	}
	return e
}

// Stepper walks one run's cases in order. Edits live in memory until a Save* call persists
// the current case.
type Stepper struct {
	mu         sync.Mutex
	runID      string
	cases      []models.TestCase
	states     []Execution
	cursor     int
	store      ResultStore
	executedBy string
	now        func() time.Time
	log        *slog.Logger
}

// NewStepper opens a stepper over cases, prefilled from the run's persisted results.
func NewStepper(ctx context.Context, store ResultStore, runID string, cases []models.TestCase, executedBy string) (*Stepper, error) {
	if len(cases) == 0 {
		return nil, fmt.Errorf("run %s has no test cases: %w", runID, apperr.ErrInvalidInput)
	}
	existing, err := store.ListResults(ctx, runID)
	if err != nil {
		return nil, fmt.Errorf("load results of run %s: %w", runID, err)
	}
	byCase := make(map[string]models.TestRunResult, len(existing))
	for _, r := range existing {
		byCase[r.TestCaseID] = r
	}

	s := &Stepper{
		runID:      runID,
		cases:      make([]models.TestCase, len(cases)),
		states:     make([]Execution, len(cases)),
		store:      store,
		executedBy: executedBy,
		now:        time.Now,
		log:        logging.New("execution").With(slog.String("run_id", runID)),
	}
	for i, c := range cases {
		s.cases[i] = c.Clone()
		s.states[i] = Execution{Status: models.ResultUntested}
		if r, ok := byCase[c.ID]; ok {
			s.states[i] = Execution{
				Status:        r.ResultStatus,
				ActualResult:  r.ActualResult,
				Comments:      r.Comments,
				Attachments:   r.Attachments,
				ExecutionTime: r.ExecutionTime,
			}.clone()
		}
	}
	return s, nil
}

// RunID returns the run the stepper is bound to
func (s *Stepper) RunID() string { return s.runID }

// Len returns the number of cases
func (s *Stepper) Len() int { return len(s.cases) }

// Cursor returns the index of the current case
func (s *Stepper) Cursor() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.cursor
}

// Current returns the current case and its unsaved execution state
func (s *Stepper) Current() (models.TestCase, Execution) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.cases[s.cursor].Clone(), s.states[s.cursor].clone()
}

// GoTo moves the cursor without saving
func (s *Stepper) GoTo(index int) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if index < 0 || index >= len(s.cases) {
		return fmt.Errorf("index %d out of range [0,%d): %w", index, len(s.cases), apperr.ErrInvalidInput)
	}
	s.cursor = index
	return nil
}

// Edit replaces the unsaved state of the current case. Attachments are kept.
func (s *Stepper) Edit(e Execution) error {
	if err := validVerdict(e.Status); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	cur := &s.states[s.cursor]
	cur.Status = e.Status
	cur.ActualResult = e.ActualResult
	cur.Comments = e.Comments
	cur.ExecutionTime = e.ExecutionTime
	return nil
}

// AddAttachment appends evidence to the current case. Links are stored as given.
func (s *Stepper) AddAttachment(a models.Attachment) error {
	switch a.Type {
	case models.AttachmentLink, models.AttachmentUpload:
	default:
		return fmt.Errorf("attachment type %q: %w", a.Type, apperr.ErrInvalidInput)
	}
	if a.URL == "" {
		return fmt.Errorf("attachment needs a url: %w", apperr.ErrInvalidInput)
	}
	if a.Name == "" {
		a.Name = a.URL
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.states[s.cursor].Attachments = append(s.states[s.cursor].Attachments, a)
	return nil
}

// SaveAndNext persists the current case and advances. At the last case the cursor stays.
func (s *Stepper) SaveAndNext(ctx context.Context) error {
	return s.saveAndMove(ctx, +1)
}

// SaveAndPrevious persists the current case and steps back. At the first case the cursor stays.
func (s *Stepper) SaveAndPrevious(ctx context.Context) error {
	return s.saveAndMove(ctx, -1)
}

// SaveAndClose persists the current case, re-reads every result of the run from the store,
// and writes the derived run status.
func (s *Stepper) SaveAndClose(ctx context.Context) (models.RunStatus, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.saveCurrent(ctx); err != nil {
		return "", err
	}

	results, err := s.store.ListResults(ctx, s.runID)
	if err != nil {
		return "", fmt.Errorf("reload results: %w", err)
	}
	status := DeriveRunStatus(results)
	if err := s.store.UpdateRunStatus(ctx, s.runID, status); err != nil {
		return "", fmt.Errorf("update run status: %w", err)
	}
	s.log.Info("run closed", slog.String("status", string(status)), slog.Int("results", len(results)))
	return status, nil
}

func (s *Stepper) saveAndMove(ctx context.Context, step int) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.saveCurrent(ctx); err != nil {
		return err
	}
	if next := s.cursor + step; next >= 0 && next < len(s.cases) {
		s.cursor = next
	}
	return nil
}

// saveCurrent upserts the current case by (run, case). Caller holds mu. On failure the
// unsaved state is left untouched.
func (s *Stepper) saveCurrent(ctx context.Context) error {
	tc := s.cases[s.cursor]
	state := s.states[s.cursor].clone()

	row := models.TestRunResult{
		TestRunID:     s.runID,
		TestCaseID:    tc.ID,
		ResultStatus:  state.Status,
		ActualResult:  state.ActualResult,
		Comments:      state.Comments,
		Attachments:   state.Attachments,
		ExecutionTime: state.ExecutionTime,
		Position:      s.cursor,
	}
	if state.Status.IsExecuted() {
		now := s.now().UTC()
		row.ExecutedAt = &now
		row.ExecutedBy = s.executedBy
	}

	existing, err := s.store.FindResult(ctx, s.runID, tc.ID)
	if err != nil {
		return fmt.Errorf("save %s: %w", tc.ID, err)
	}
	if existing != nil {
		row.ID = existing.ID
		row.Position = existing.Position
		_, err = s.store.UpdateResult(ctx, row)
	} else {
		_, err = s.store.InsertResult(ctx, row)
	}
	if err != nil {
		s.log.Warn("save failed", slog.String("test_case_id", tc.ID), slog.String("error", err.Error()))
		return fmt.Errorf("save %s: %w", tc.ID, err)
	}
	s.log.Debug("saved", slog.String("test_case_id", tc.ID), slog.String("status", string(state.Status)))
	return nil
}

// validVerdict accepts the statuses a tester can pick; in_progress is never set by hand
func validVerdict(st models.ResultStatus) error {
	switch st {
	case models.ResultUntested, models.ResultPassed, models.ResultFailed, models.ResultBlocked, models.ResultSkipped:
		return nil
	}
	return fmt.Errorf("verdict %q: %w", st, apperr.ErrInvalidInput)
}
