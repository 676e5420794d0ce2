// Package dragdrop turns drag gestures over the suite tree into exactly one mutation engine
// call per drop.
package dragdrop

import (
	"context"
	"fmt"
	"log/slog"
	"sync"

	"github.com/dhyansraj/qa-testdesk/internal/apperr"
	"github.com/dhyansraj/qa-testdesk/internal/logging"
	"github.com/dhyansraj/qa-testdesk/internal/models"
	"github.com/dhyansraj/qa-testdesk/internal/mutation"
	"github.com/dhyansraj/qa-testdesk/internal/tree"
)

// Mover is the part of the mutation engine a drop can call.
type Mover interface {
	Index(ctx context.Context) (*tree.Index, error)
	MoveTestCase(ctx context.Context, caseID string, targetSuiteID *string, targetPosition int) (mutation.Plan, error)
	MoveMultipleTestCases(ctx context.Context, caseIDs []string, targetSuiteID *string) (mutation.Plan, error)
	ReorderTestCases(ctx context.Context, suiteID *string, orderedCaseIDs []string) (mutation.Plan, error)
	MoveSuite(ctx context.Context, suiteID string, targetParentID *string, targetPosition int) (mutation.Plan, error)
	ReorderSuites(ctx context.Context, parentID *string, orderedSuiteIDs []string) (mutation.Plan, error)
}

// Action names the engine call a drop resolved to
type Action string

const (
	ActionNone          Action = "none"
	ActionCancelled     Action = "cancelled"
	ActionMoveTestCase  Action = "move_test_case"
	ActionMoveMultiple  Action = "move_multiple_test_cases"
	ActionReorderCases  Action = "reorder_test_cases"
	ActionMoveSuite     Action = "move_suite"
	ActionReorderSuites Action = "reorder_suites"
)

// DropResult describes a completed drop
type DropResult struct {
	Action  Action        `json:"action"`
	Applied bool          `json:"applied"`
	Plan    mutation.Plan `json:"plan"`
}

// State is a read-only view of the controller
type State struct {
	Dragging    bool       `json:"dragging"`
	PayloadKind string     `json:"payload_kind,omitempty"`
	ItemIDs     []string   `json:"item_ids,omitempty"`
	Hover       *TargetRef `json:"hover,omitempty"`
	Selection   []string   `json:"selection"`
}

// Controller holds the multi-select checked set and at most one in-flight gesture.
type Controller struct {
	mu      sync.Mutex
	engine  Mover
	checked tree.Set
	payload Payload
	hover   Target
	log     *slog.Logger
}

// NewController creates an idle controller over engine
func NewController(engine Mover) *Controller {
	return &Controller{
		engine:  engine,
		checked: tree.NewSet(),
		log:     logging.New("dragdrop"),
	}
}

// ==================== Selection ====================

func (c *Controller) Check(caseID string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.checked[caseID] = struct{}{}
}

func (c *Controller) Uncheck(caseID string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	delete(c.checked, caseID)
}

// Toggle flips caseID and reports whether it is now checked
func (c *Controller) Toggle(caseID string) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.checked.Toggle(caseID)
}

func (c *Controller) ClearSelection() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.checked = tree.NewSet()
}

// Selection returns the checked ids, sorted
func (c *Controller) Selection() []string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.checked.IDs()
}

// State returns the current gesture and selection
func (c *Controller) State() State {
	c.mu.Lock()
	defer c.mu.Unlock()
	st := State{Selection: c.checked.IDs()}
	if c.payload != nil {
		st.Dragging = true
		st.PayloadKind = c.payload.Kind()
		st.ItemIDs = c.payload.ItemIDs()
	}
	if c.hover != nil {
		ref := c.hover.Ref()
		st.Hover = &ref
	}
	return st
}

// ==================== Gesture ====================

// PickUpCase starts dragging caseID. When the case is checked and more than one case is
// checked the payload snapshots every checked case.
func (c *Controller) PickUpCase(ctx context.Context, caseID string) (Payload, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.payload != nil {
		return nil, fmt.Errorf("a drag is already in progress: %w", apperr.ErrInvalidInput)
	}

	idx, err := c.engine.Index(ctx)
	if err != nil {
		return nil, err
	}
	tc, ok := idx.Case(caseID)
	if !ok {
		return nil, fmt.Errorf("test case %s: %w", caseID, apperr.ErrNotFound)
	}

	var p Payload = SingleCase{Case: tc}
	if c.checked.Has(caseID) && len(c.checked) > 1 {
		var cases []models.TestCase
		for _, id := range idx.CaseDisplayOrder() {
			if c.checked.Has(id) {
				cs, _ := idx.Case(id)
				cases = append(cases, cs)
			}
		}
		if len(cases) > 1 {
			p = MultiCase{Cases: cases}
		}
	}
	c.payload = p
	c.hover = nil
	c.log.Debug("pick up", slog.String("kind", p.Kind()), slog.Any("ids", p.ItemIDs()))
	return p, nil
}

// PickUpSuite starts dragging suiteID
func (c *Controller) PickUpSuite(ctx context.Context, suiteID string) (Payload, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.payload != nil {
		return nil, fmt.Errorf("a drag is already in progress: %w", apperr.ErrInvalidInput)
	}
	if suiteID == models.UncategorizedID {
		return nil, fmt.Errorf("the uncategorized bucket cannot be dragged: %w", apperr.ErrInvalidTarget)
	}

	idx, err := c.engine.Index(ctx)
	if err != nil {
		return nil, err
	}
	s, ok := idx.Suite(suiteID)
	if !ok {
		return nil, fmt.Errorf("suite %s: %w", suiteID, apperr.ErrNotFound)
	}
	c.payload = SuiteMove{Suite: s}
	c.hover = nil
	return c.payload, nil
}

// Hover records the target under the pointer. No mutation happens.
func (c *Controller) Hover(target Target) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.payload == nil {
		return fmt.Errorf("hover without a drag: %w", apperr.ErrInvalidInput)
	}
	c.hover = target
	return nil
}

// Cancel ends the gesture without a mutation
func (c *Controller) Cancel() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.payload = nil
	c.hover = nil
}

// Drop resolves the gesture into at most one engine call and waits for it. A nil target is
// a cancelled drag. The controller is idle again when Drop returns, whatever the outcome.
func (c *Controller) Drop(ctx context.Context, target Target) (DropResult, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.payload == nil {
		return DropResult{Action: ActionNone}, fmt.Errorf("drop without a drag: %w", apperr.ErrInvalidInput)
	}
	payload := c.payload
	defer func() {
		c.payload = nil
		c.hover = nil
	}()

	if target == nil {
		return DropResult{Action: ActionCancelled}, nil
	}

	idx, err := c.engine.Index(ctx)
	if err != nil {
		return DropResult{Action: ActionNone}, err
	}

	var res DropResult
	switch p := payload.(type) {
	case SingleCase:
		res, err = c.dropCase(ctx, idx, p.Case.ID, target)
	case MultiCase:
		res, err = c.dropCases(ctx, idx, p.ItemIDs(), target)
		if err == nil && res.Applied {
			c.checked = tree.NewSet()
		}
	case SuiteMove:
		res, err = c.dropSuite(ctx, idx, p.Suite.ID, target)
	default:
		err = fmt.Errorf("unknown payload %T: %w", payload, apperr.ErrInvalidInput)
	}
	if err != nil {
		c.log.Warn("drop failed", slog.String("payload", payload.Kind()),
			slog.String("target", target.Ref().Kind), slog.String("error", err.Error()))
		return res, err
	}
	c.log.Info("drop", slog.String("action", string(res.Action)), slog.Bool("applied", res.Applied))
	return res, nil
}

func (c *Controller) dropCase(ctx context.Context, idx *tree.Index, caseID string, target Target) (DropResult, error) {
	var into *string
	switch t := target.(type) {
	case UncategorizedZone:
		into = nil
	case SuiteZone:
		into = models.StringPtr(t.SuiteID)
	case SuiteSlot:
		into = models.StringPtr(t.SuiteID)
	case CaseSlot:
		return c.dropCaseOnCase(ctx, idx, caseID, t.CaseID)
	default:
		return DropResult{Action: ActionNone}, fmt.Errorf("unknown target %T: %w", target, apperr.ErrInvalidTarget)
	}

	if models.SameID(idx.GroupOf(caseID), into) {
		return DropResult{Action: ActionNone}, nil
	}
	return applied(ActionMoveTestCase)(c.engine.MoveTestCase(ctx, caseID, into, 0))
}

func (c *Controller) dropCaseOnCase(ctx context.Context, idx *tree.Index, caseID, overID string) (DropResult, error) {
	if overID == caseID {
		return DropResult{Action: ActionNone}, nil
	}
	if _, ok := idx.Case(overID); !ok {
		return DropResult{Action: ActionNone}, fmt.Errorf("test case %s: %w", overID, apperr.ErrInvalidTarget)
	}
	group := idx.GroupOf(overID)
	order := idx.Cases(group)

	if models.SameID(idx.GroupOf(caseID), group) {
		spliced, changed := splice(order, caseID, overID)
		if !changed {
			return DropResult{Action: ActionNone}, nil
		}
		return applied(ActionReorderCases)(c.engine.ReorderTestCases(ctx, group, spliced))
	}
	return applied(ActionMoveTestCase)(c.engine.MoveTestCase(ctx, caseID, group, indexOf(order, overID)))
}

func (c *Controller) dropCases(ctx context.Context, idx *tree.Index, caseIDs []string, target Target) (DropResult, error) {
	var into *string
	switch t := target.(type) {
	case UncategorizedZone:
		into = nil
	case SuiteZone:
		into = models.StringPtr(t.SuiteID)
	case SuiteSlot:
		into = models.StringPtr(t.SuiteID)
	case CaseSlot:
		if _, ok := idx.Case(t.CaseID); !ok {
			return DropResult{Action: ActionNone}, fmt.Errorf("test case %s: %w", t.CaseID, apperr.ErrInvalidTarget)
		}
		into = idx.GroupOf(t.CaseID)
	default:
		return DropResult{Action: ActionNone}, fmt.Errorf("unknown target %T: %w", target, apperr.ErrInvalidTarget)
	}
	if allIn(idx, caseIDs, into) {
		return DropResult{Action: ActionNone}, nil
	}
	return applied(ActionMoveMultiple)(c.engine.MoveMultipleTestCases(ctx, caseIDs, into))
}

// allIn reports whether every id is a known case already grouped under into
func allIn(idx *tree.Index, caseIDs []string, into *string) bool {
	for _, id := range caseIDs {
		if _, ok := idx.Case(id); !ok || !models.SameID(idx.GroupOf(id), into) {
			return false
		}
	}
	return len(caseIDs) > 0
}

func (c *Controller) dropSuite(ctx context.Context, idx *tree.Index, suiteID string, target Target) (DropResult, error) {
	switch t := target.(type) {
	case SuiteZone:
		if t.SuiteID == suiteID || idx.IsDescendant(suiteID, t.SuiteID) {
			return DropResult{Action: ActionNone}, fmt.Errorf("drop %s into %s: %w", suiteID, t.SuiteID, apperr.ErrCyclicMove)
		}
		return applied(ActionMoveSuite)(c.engine.MoveSuite(ctx, suiteID, models.StringPtr(t.SuiteID), 0))

	case SuiteSlot:
		if t.SuiteID == suiteID {
			return DropResult{Action: ActionNone}, nil
		}
		if !idx.HasSuite(t.SuiteID) {
			return DropResult{Action: ActionNone}, fmt.Errorf("suite %s: %w", t.SuiteID, apperr.ErrInvalidTarget)
		}
		parent := idx.Parent(t.SuiteID)
		siblings := idx.Children(parent)
		if models.SameID(idx.Parent(suiteID), parent) {
			spliced, changed := splice(siblings, suiteID, t.SuiteID)
			if !changed {
				return DropResult{Action: ActionNone}, nil
			}
			return applied(ActionReorderSuites)(c.engine.ReorderSuites(ctx, parent, spliced))
		}
		if parent != nil && (*parent == suiteID || idx.IsDescendant(suiteID, *parent)) {
			return DropResult{Action: ActionNone}, fmt.Errorf("drop %s next to %s: %w", suiteID, t.SuiteID, apperr.ErrCyclicMove)
		}
		return applied(ActionMoveSuite)(c.engine.MoveSuite(ctx, suiteID, parent, indexOf(siblings, t.SuiteID)))

	default:
		return DropResult{Action: ActionNone}, fmt.Errorf("a suite cannot be dropped on %s: %w", target.Ref().Kind, apperr.ErrInvalidTarget)
	}
}

func applied(action Action) func(mutation.Plan, error) (DropResult, error) {
	return func(p mutation.Plan, err error) (DropResult, error) {
		if err != nil {
			return DropResult{Action: action}, err
		}
		return DropResult{Action: action, Applied: !p.Empty(), Plan: p}, nil
	}
}

// splice moves id to the slot currently held by overID
func splice(order []string, id, overID string) ([]string, bool) {
	from, to := indexOf(order, id), indexOf(order, overID)
	if from < 0 || to < 0 || from == to {
		return order, false
	}
	out := make([]string, 0, len(order))
	for _, v := range order {
		if v != id {
			out = append(out, v)
		}
	}
	out = append(out[:to], append([]string{id}, out[to:]...)...)
	return out, true
}

func indexOf(ids []string, id string) int {
	for i, v := range ids {
		if v == id {
			return i
		}
	}
	return -1
}
