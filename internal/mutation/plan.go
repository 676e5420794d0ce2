package mutation

import (
	"fmt"

	"github.com/dhyansraj/qa-testdesk/internal/apperr"
	"github.com/dhyansraj/qa-testdesk/internal/models"
	"github.com/dhyansraj/qa-testdesk/internal/tree"
)

// CasePlacement is the (suite, position) a test case must be written with
type CasePlacement struct {
	ID       string  `json:"id"`
	SuiteID  *string `json:"suite_id"`
	Position int     `json:"position"`
}

// SuitePlacement is the (parent, position) a suite must be written with
type SuitePlacement struct {
	ID       string  `json:"id"`
	ParentID *string `json:"parent_id"`
	Position int     `json:"position"`
}

// Plan is the minimal write set of one operation, in execution order:
// case placements, then suite placements, then the optional suite delete.
type Plan struct {
	Cases         []CasePlacement  `json:"cases"`
	Suites        []SuitePlacement `json:"suites"`
	DeleteSuiteID string           `json:"delete_suite_id,omitempty"`
}

// Writes returns the number of persistence calls the plan needs
func (p Plan) Writes() int {
	n := len(p.Cases) + len(p.Suites)
	if p.DeleteSuiteID != "" {
		n++
	}
	return n
}

// Empty reports a no-op plan
func (p Plan) Empty() bool { return p.Writes() == 0 }

// PlanCaseMove moves one case into targetSuiteID at targetPosition and renumbers both groups.
func PlanCaseMove(idx *tree.Index, caseID string, targetSuiteID *string, targetPosition int) (Plan, error) {
	if _, ok := idx.Case(caseID); !ok {
		return Plan{}, fmt.Errorf("test case %s: %w", caseID, apperr.ErrNotFound)
	}
	if err := checkCaseTarget(idx, targetSuiteID); err != nil {
		return Plan{}, err
	}

	source := idx.GroupOf(caseID)
	sourceIDs := idx.Cases(source)

	if models.SameID(source, targetSuiteID) {
		from := indexOf(sourceIDs, caseID)
		to := clamp(targetPosition, 0, len(sourceIDs)-1)
		if from == to {
			return Plan{}, nil
		}
		reordered := insertAt(remove(sourceIDs, caseID), caseID, to)
		return Plan{Cases: caseDiff(idx, targetSuiteID, reordered)}, nil
	}

	targetIDs := idx.Cases(targetSuiteID)
	to := clamp(targetPosition, 0, len(targetIDs))
	var plan Plan
	plan.Cases = append(plan.Cases, caseDiff(idx, source, remove(sourceIDs, caseID))...)
	plan.Cases = append(plan.Cases, caseDiff(idx, targetSuiteID, insertAt(targetIDs, caseID, to))...)
	return plan, nil
}

// PlanMultiCaseMove moves every listed case to targetSuiteID. Moved cases are removed from
// their groups and appended to the end of the target group in the order of caseIDs;
// duplicate ids are ignored.
func PlanMultiCaseMove(idx *tree.Index, caseIDs []string, targetSuiteID *string) (Plan, error) {
	if err := checkCaseTarget(idx, targetSuiteID); err != nil {
		return Plan{}, err
	}

	moved := make([]string, 0, len(caseIDs))
	movedSet := make(map[string]bool, len(caseIDs))
	for _, id := range caseIDs {
		if movedSet[id] {
			continue
		}
		if _, ok := idx.Case(id); !ok {
			return Plan{}, fmt.Errorf("test case %s: %w", id, apperr.ErrNotFound)
		}
		movedSet[id] = true
		moved = append(moved, id)
	}
	if len(moved) == 0 {
		return Plan{}, nil
	}

	// source groups in first-seen order keep the plan deterministic
	var sources []*string
	seenGroup := map[string]bool{models.IDValue(targetSuiteID): true}
	for _, id := range moved {
		g := idx.GroupOf(id)
		if !seenGroup[models.IDValue(g)] {
			seenGroup[models.IDValue(g)] = true
			sources = append(sources, g)
		}
	}

	var plan Plan
	for _, g := range sources {
		plan.Cases = append(plan.Cases, caseDiff(idx, g, without(idx.Cases(g), movedSet))...)
	}
	target := append(without(idx.Cases(targetSuiteID), movedSet), moved...)
	plan.Cases = append(plan.Cases, caseDiff(idx, targetSuiteID, target)...)
	return plan, nil
}

// PlanCaseReorder assigns position = index for the complete ordered id list of one group.
func PlanCaseReorder(idx *tree.Index, suiteID *string, orderedCaseIDs []string) (Plan, error) {
	if err := checkCaseTarget(idx, suiteID); err != nil {
		return Plan{}, err
	}
	if err := checkComplete(idx.Cases(suiteID), orderedCaseIDs); err != nil {
		return Plan{}, fmt.Errorf("reorder cases of %q: %w", models.IDValue(suiteID), err)
	}
	return Plan{Cases: caseDiff(idx, suiteID, orderedCaseIDs)}, nil
}

// PlanSuiteMove reparents suiteID under targetParentID at targetPosition.
func PlanSuiteMove(idx *tree.Index, suiteID string, targetParentID *string, targetPosition int) (Plan, error) {
	if err := checkSuiteExists(idx, suiteID); err != nil {
		return Plan{}, err
	}
	if err := checkSuiteTarget(idx, suiteID, targetParentID); err != nil {
		return Plan{}, err
	}

	source := idx.Parent(suiteID)
	sourceIDs := idx.Children(source)

	if models.SameID(source, targetParentID) {
		from := indexOf(sourceIDs, suiteID)
		to := clamp(targetPosition, 0, len(sourceIDs)-1)
		if from == to {
			return Plan{}, nil
		}
		reordered := insertAt(remove(sourceIDs, suiteID), suiteID, to)
		return Plan{Suites: suiteDiff(idx, targetParentID, reordered)}, nil
	}

	targetIDs := idx.Children(targetParentID)
	to := clamp(targetPosition, 0, len(targetIDs))
	var plan Plan
	plan.Suites = append(plan.Suites, suiteDiff(idx, source, remove(sourceIDs, suiteID))...)
	plan.Suites = append(plan.Suites, suiteDiff(idx, targetParentID, insertAt(targetIDs, suiteID, to))...)
	return plan, nil
}

// PlanSuiteReorder assigns position = index for the complete ordered child list of parentID.
func PlanSuiteReorder(idx *tree.Index, parentID *string, orderedSuiteIDs []string) (Plan, error) {
	if parentID != nil && !idx.HasSuite(*parentID) {
		return Plan{}, fmt.Errorf("parent suite %s: %w", *parentID, apperr.ErrInvalidTarget)
	}
	if err := checkComplete(idx.Children(parentID), orderedSuiteIDs); err != nil {
		return Plan{}, fmt.Errorf("reorder suites of %q: %w", models.IDValue(parentID), err)
	}
	return Plan{Suites: suiteDiff(idx, parentID, orderedSuiteIDs)}, nil
}

// PlanSuiteDelete moves the suite's cases to uncategorized and its child suites to its parent,
// closes the sibling gap, and only then deletes the suite row.
func PlanSuiteDelete(idx *tree.Index, suiteID string) (Plan, error) {
	if err := checkSuiteExists(idx, suiteID); err != nil {
		return Plan{}, err
	}
	self := models.StringPtr(suiteID)

	var plan Plan
	uncategorized := append(idx.Cases(nil), idx.Cases(self)...)
	plan.Cases = caseDiff(idx, nil, uncategorized)

	parent := idx.Parent(suiteID)
	siblings := append(remove(idx.Children(parent), suiteID), idx.Children(self)...)
	plan.Suites = suiteDiff(idx, parent, siblings)
	plan.DeleteSuiteID = suiteID
	return plan, nil
}

func checkCaseTarget(idx *tree.Index, suiteID *string) error {
	if suiteID == nil {
		return nil
	}
	if *suiteID == models.UncategorizedID || !idx.HasSuite(*suiteID) {
		return fmt.Errorf("suite %s: %w", *suiteID, apperr.ErrInvalidTarget)
	}
	return nil
}

func checkSuiteExists(idx *tree.Index, suiteID string) error {
	if suiteID == models.UncategorizedID {
		return fmt.Errorf("the uncategorized bucket cannot be changed: %w", apperr.ErrInvalidTarget)
	}
	if !idx.HasSuite(suiteID) {
		return fmt.Errorf("suite %s: %w", suiteID, apperr.ErrNotFound)
	}
	return nil
}

func checkSuiteTarget(idx *tree.Index, suiteID string, targetParentID *string) error {
	if targetParentID == nil {
		return nil
	}
	if *targetParentID == models.UncategorizedID || !idx.HasSuite(*targetParentID) {
		return fmt.Errorf("parent suite %s: %w", *targetParentID, apperr.ErrInvalidTarget)
	}
	if *targetParentID == suiteID || idx.IsDescendant(suiteID, *targetParentID) {
		return fmt.Errorf("move %s under %s: %w", suiteID, *targetParentID, apperr.ErrCyclicMove)
	}
	return nil
}

// checkComplete requires ordered to be a permutation of current
func checkComplete(current, ordered []string) error {
	if len(current) != len(ordered) {
		return fmt.Errorf("got %d ids for %d items: %w", len(ordered), len(current), apperr.ErrIncompleteOrdering)
	}
	want := make(map[string]bool, len(current))
	for _, id := range current {
		want[id] = true
	}
	seen := make(map[string]bool, len(ordered))
	for _, id := range ordered {
		if !want[id] {
			return fmt.Errorf("id %s is not in the group: %w", id, apperr.ErrIncompleteOrdering)
		}
		if seen[id] {
			return fmt.Errorf("id %s listed twice: %w", id, apperr.ErrIncompleteOrdering)
		}
		seen[id] = true
	}
	return nil
}

func caseDiff(idx *tree.Index, suiteID *string, ordered []string) []CasePlacement {
	var out []CasePlacement
	for i, id := range ordered {
		c, _ := idx.Case(id)
		if models.SameID(c.SuiteID, suiteID) && c.Position == i {
			continue
		}
		out = append(out, CasePlacement{ID: id, SuiteID: models.CopyID(suiteID), Position: i})
	}
	return out
}

func suiteDiff(idx *tree.Index, parentID *string, ordered []string) []SuitePlacement {
	var out []SuitePlacement
	for i, id := range ordered {
		s, _ := idx.Suite(id)
		if models.SameID(s.ParentID, parentID) && s.Position == i {
			continue
		}
		out = append(out, SuitePlacement{ID: id, ParentID: models.CopyID(parentID), Position: i})
	}
	return out
}

func indexOf(ids []string, id string) int {
	for i, v := range ids {
		if v == id {
			return i
		}
	}
	return -1
}

func remove(ids []string, id string) []string {
	out := make([]string, 0, len(ids))
	for _, v := range ids {
		if v != id {
			out = append(out, v)
		}
	}
	return out
}

func without(ids []string, drop map[string]bool) []string {
	out := make([]string, 0, len(ids))
	for _, v := range ids {
		if !drop[v] {
			out = append(out, v)
		}
	}
	return out
}

func insertAt(ids []string, id string, pos int) []string {
	out := make([]string, 0, len(ids)+1)
	out = append(out, ids[:pos]...)
	out = append(out, id)
	return append(out, ids[pos:]...)
}

func clamp(v, lo, hi int) int {
	if hi < lo {
		return lo
	}
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}
