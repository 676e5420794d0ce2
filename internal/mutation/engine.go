// Package mutation validates and applies structural changes to the suite tree: case moves,
// suite moves, reorders and suite deletion. Every operation is planned as the minimal set of
// placement writes, persisted, and only then reflected in the session caches.
package mutation

import (
	"context"
	"fmt"
	"log/slog"

	"golang.org/x/sync/errgroup"

	"github.com/dhyansraj/qa-testdesk/internal/cache"
	"github.com/dhyansraj/qa-testdesk/internal/logging"
	"github.com/dhyansraj/qa-testdesk/internal/models"
	"github.com/dhyansraj/qa-testdesk/internal/tree"
)

// maxConcurrentWrites bounds the fan-out of a multi-case move
const maxConcurrentWrites = 8

// Writer persists placements. Implementations must be safe for concurrent use.
type Writer interface {
	// ApplyPlan writes every placement of p in one transaction; on error nothing is written.
	ApplyPlan(ctx context.Context, p Plan) error
	SetTestCasePlacement(ctx context.Context, id string, suiteID *string, position int) error
	SetSuitePlacement(ctx context.Context, id string, parentID *string, position int) error
	DeleteSuite(ctx context.Context, id string) error
}

// persistMode selects how a plan reaches the Writer
type persistMode int

const (
	// persistAtomic sends the whole plan as one transaction
	persistAtomic persistMode = iota
	// persistConcurrent writes case placements in parallel
	persistConcurrent
	// persistStepwise writes cases, then suites, then the delete, stopping at the first error
	persistStepwise
)

// Engine applies tree mutations for one project on top of the session caches.
type Engine struct {
	projectID string
	suites    *cache.Store[models.Suite]
	cases     *cache.Store[models.TestCase]
	writer    Writer
	log       *slog.Logger
}

// NewEngine creates an engine bound to projectID
func NewEngine(projectID string, suites *cache.Store[models.Suite], cases *cache.Store[models.TestCase], writer Writer) *Engine {
	return &Engine{
		projectID: projectID,
		suites:    suites,
		cases:     cases,
		writer:    writer,
		log:       logging.New("mutation").With(slog.String("project_id", projectID)),
	}
}

// Index returns an arena view of the current cached tree, loading it if needed.
func (e *Engine) Index(ctx context.Context) (*tree.Index, error) {
	suites, err := e.suites.Fetch(ctx, e.projectID, false)
	if err != nil {
		return nil, err
	}
	cases, err := e.cases.Fetch(ctx, e.projectID, false)
	if err != nil {
		return nil, err
	}
	return tree.NewIndex(suites, cases), nil
}

// ==================== Test cases ====================

// MoveTestCase moves a case into targetSuiteID (nil = uncategorized) at targetPosition.
func (e *Engine) MoveTestCase(ctx context.Context, caseID string, targetSuiteID *string, targetPosition int) (Plan, error) {
	return e.run(ctx, "move_test_case", persistAtomic, func(idx *tree.Index) (Plan, error) {
		return PlanCaseMove(idx, caseID, targetSuiteID, targetPosition)
	})
}

// MoveMultipleTestCases appends every listed case to targetSuiteID in argument order.
// Writes are issued concurrently.
func (e *Engine) MoveMultipleTestCases(ctx context.Context, caseIDs []string, targetSuiteID *string) (Plan, error) {
	return e.run(ctx, "move_multiple_test_cases", persistConcurrent, func(idx *tree.Index) (Plan, error) {
		return PlanMultiCaseMove(idx, caseIDs, targetSuiteID)
	})
}

// ReorderTestCases sets the complete order of one case group.
func (e *Engine) ReorderTestCases(ctx context.Context, suiteID *string, orderedCaseIDs []string) (Plan, error) {
	return e.run(ctx, "reorder_test_cases", persistAtomic, func(idx *tree.Index) (Plan, error) {
		return PlanCaseReorder(idx, suiteID, orderedCaseIDs)
	})
}

// ==================== Suites ====================

// MoveSuite reparents a suite under targetParentID (nil = root level) at targetPosition.
func (e *Engine) MoveSuite(ctx context.Context, suiteID string, targetParentID *string, targetPosition int) (Plan, error) {
	return e.run(ctx, "move_suite", persistAtomic, func(idx *tree.Index) (Plan, error) {
		return PlanSuiteMove(idx, suiteID, targetParentID, targetPosition)
	})
}

// ReorderSuites sets the complete order of the children of parentID.
func (e *Engine) ReorderSuites(ctx context.Context, parentID *string, orderedSuiteIDs []string) (Plan, error) {
	return e.run(ctx, "reorder_suites", persistAtomic, func(idx *tree.Index) (Plan, error) {
		return PlanSuiteReorder(idx, parentID, orderedSuiteIDs)
	})
}

// DeleteSuite removes a suite after moving its cases to uncategorized and its child suites
// to its parent.
func (e *Engine) DeleteSuite(ctx context.Context, suiteID string) (Plan, error) {
	return e.run(ctx, "delete_suite", persistStepwise, func(idx *tree.Index) (Plan, error) {
		return PlanSuiteDelete(idx, suiteID)
	})
}

// ==================== Execution ====================

func (e *Engine) run(ctx context.Context, op string, mode persistMode, plan func(*tree.Index) (Plan, error)) (Plan, error) {
	idx, err := e.Index(ctx)
	if err != nil {
		return Plan{}, fmt.Errorf("%s: %w", op, err)
	}
	p, err := plan(idx)
	if err != nil {
		return Plan{}, err
	}
	if p.Empty() {
		e.log.Debug("no-op", slog.String("op", op))
		return p, nil
	}

	if err := e.persist(ctx, p, mode); err != nil {
		// stepwise and concurrent writes may have partly landed; reload on the next fetch
		e.suites.ClearCache()
		e.cases.ClearCache()
		e.log.Error("mutation failed", slog.String("op", op), slog.String("error", err.Error()))
		return Plan{}, fmt.Errorf("%s: %w", op, err)
	}

	e.cases.ApplyLocal(func(items []models.TestCase) []models.TestCase { return ApplyToCases(items, p) })
	e.suites.ApplyLocal(func(items []models.Suite) []models.Suite { return ApplyToSuites(items, p) })
	e.log.Info("mutation applied", slog.String("op", op),
		slog.Int("case_writes", len(p.Cases)), slog.Int("suite_writes", len(p.Suites)))
	return p, nil
}

func (e *Engine) persist(ctx context.Context, p Plan, mode persistMode) error {
	switch mode {
	case persistAtomic:
		return e.writer.ApplyPlan(ctx, p)
	case persistConcurrent:
		g, gctx := errgroup.WithContext(ctx)
		g.SetLimit(maxConcurrentWrites)
		for _, c := range p.Cases {
			g.Go(func() error {
				return e.writer.SetTestCasePlacement(gctx, c.ID, c.SuiteID, c.Position)
			})
		}
		if err := g.Wait(); err != nil {
			return err
		}
	default:
		for _, c := range p.Cases {
			if err := e.writer.SetTestCasePlacement(ctx, c.ID, c.SuiteID, c.Position); err != nil {
				return err
			}
		}
	}

	for _, s := range p.Suites {
		if err := e.writer.SetSuitePlacement(ctx, s.ID, s.ParentID, s.Position); err != nil {
			return err
		}
	}
	if p.DeleteSuiteID != "" {
		return e.writer.DeleteSuite(ctx, p.DeleteSuiteID)
	}
	return nil
}

// ApplyToCases returns cases with the plan's placements applied
func ApplyToCases(cases []models.TestCase, p Plan) []models.TestCase {
	byID := make(map[string]CasePlacement, len(p.Cases))
	for _, c := range p.Cases {
		byID[c.ID] = c
	}
	out := make([]models.TestCase, 0, len(cases))
	for _, c := range cases {
		if pl, ok := byID[c.ID]; ok {
			c.SuiteID = models.CopyID(pl.SuiteID)
			c.Position = pl.Position
		}
		out = append(out, c)
	}
	return out
}

// ApplyToSuites returns suites with the plan's placements and delete applied
func ApplyToSuites(suites []models.Suite, p Plan) []models.Suite {
	byID := make(map[string]SuitePlacement, len(p.Suites))
	for _, s := range p.Suites {
		byID[s.ID] = s
	}
	out := make([]models.Suite, 0, len(suites))
	for _, s := range suites {
		if s.ID == p.DeleteSuiteID {
			continue
		}
		if pl, ok := byID[s.ID]; ok {
			s.ParentID = models.CopyID(pl.ParentID)
			s.Position = pl.Position
		}
		out = append(out, s)
	}
	return out
}
