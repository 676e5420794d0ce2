// Package tree builds the suite/test case hierarchy from flat records.
//
// Suites are kept in an arena keyed by id with explicit parent and child links, so ancestor
// and descendant queries are plain map walks.
package tree

import (
	"sort"

	"github.com/dhyansraj/qa-testdesk/internal/models"
)

// SuiteRecord is one arena slot
type SuiteRecord struct {
	Suite models.Suite
	// ParentID is the effective parent: nil when the stored parent is unknown or would
	// close a loop.
	ParentID *string
	ChildIDs []string
}

// Index is the arena view of one project's suites and cases.
type Index struct {
	suites  map[string]*SuiteRecord
	rootIDs []string
	cases   map[string]models.TestCase
	// case ids per suite id in display order; "" holds uncategorized cases
	caseIDs map[string][]string
}

// NewIndex links suites and cases into an arena. Inputs are not modified.
func NewIndex(suites []models.Suite, cases []models.TestCase) *Index {
	idx := &Index{
		suites:  make(map[string]*SuiteRecord, len(suites)),
		cases:   make(map[string]models.TestCase, len(cases)),
		caseIDs: make(map[string][]string),
	}

	sorted := make([]models.Suite, 0, len(suites))
	for _, s := range suites {
		if s.ID == "" || s.ID == models.UncategorizedID {
			continue
		}
		if _, dup := idx.suites[s.ID]; dup {
			continue
		}
		cp := s.Clone()
		idx.suites[s.ID] = &SuiteRecord{Suite: cp}
		sorted = append(sorted, cp)
	}
	sort.SliceStable(sorted, func(i, j int) bool { return lessSuite(sorted[i], sorted[j]) })

	for _, s := range sorted {
		rec := idx.suites[s.ID]
		if s.ParentID != nil && idx.linkable(s.ID, *s.ParentID) {
			rec.ParentID = models.CopyID(s.ParentID)
			parent := idx.suites[*s.ParentID]
			parent.ChildIDs = append(parent.ChildIDs, s.ID)
			continue
		}
		idx.rootIDs = append(idx.rootIDs, s.ID)
	}

	sortedCases := make([]models.TestCase, 0, len(cases))
	for _, c := range cases {
		if _, dup := idx.cases[c.ID]; dup {
			continue
		}
		idx.cases[c.ID] = c.Clone()
		sortedCases = append(sortedCases, c)
	}
	sort.SliceStable(sortedCases, func(i, j int) bool { return lessCase(sortedCases[i], sortedCases[j]) })
	for _, c := range sortedCases {
		key := ""
		if c.SuiteID != nil {
			if _, ok := idx.suites[*c.SuiteID]; ok {
				key = *c.SuiteID
			}
		}
		idx.caseIDs[key] = append(idx.caseIDs[key], c.ID)
	}

	return idx
}

// linkable reports whether id can hang under parentID using stored parent pointers.
func (idx *Index) linkable(id, parentID string) bool {
	if _, ok := idx.suites[parentID]; !ok {
		return false
	}
	seen := map[string]bool{}
	cur := parentID
	for {
		if cur == id {
			return false
		}
		if seen[cur] {
			// loop above us that does not include id
			return true
		}
		seen[cur] = true
		rec, ok := idx.suites[cur]
		if !ok || rec.Suite.ParentID == nil {
			return true
		}
		cur = *rec.Suite.ParentID
	}
}

func lessSuite(a, b models.Suite) bool {
	if a.Position != b.Position {
		return a.Position < b.Position
	}
	if a.Name != b.Name {
		return a.Name < b.Name
	}
	return a.ID < b.ID
}

func lessCase(a, b models.TestCase) bool {
	if a.Position != b.Position {
		return a.Position < b.Position
	}
	if a.Title != b.Title {
		return a.Title < b.Title
	}
	return a.ID < b.ID
}

// HasSuite reports whether id is a known suite
func (idx *Index) HasSuite(id string) bool {
	_, ok := idx.suites[id]
	return ok
}

// Suite returns the suite with id
func (idx *Index) Suite(id string) (models.Suite, bool) {
	rec, ok := idx.suites[id]
	if !ok {
		return models.Suite{}, false
	}
	return rec.Suite.Clone(), true
}

// Parent returns the effective parent id of a suite
func (idx *Index) Parent(id string) *string {
	if rec, ok := idx.suites[id]; ok {
		return models.CopyID(rec.ParentID)
	}
	return nil
}

// Children returns the ordered child suite ids of parentID; nil means root level
func (idx *Index) Children(parentID *string) []string {
	if parentID == nil {
		return append([]string(nil), idx.rootIDs...)
	}
	rec, ok := idx.suites[*parentID]
	if !ok {
		return nil
	}
	return append([]string(nil), rec.ChildIDs...)
}

// Case returns the case with id
func (idx *Index) Case(id string) (models.TestCase, bool) {
	c, ok := idx.cases[id]
	if !ok {
		return models.TestCase{}, false
	}
	return c.Clone(), true
}

// Cases returns the ordered case ids of a suite group; nil means uncategorized
func (idx *Index) Cases(suiteID *string) []string {
	return append([]string(nil), idx.caseIDs[models.IDValue(suiteID)]...)
}

// GroupOf returns the group a case is displayed in (nil = uncategorized)
func (idx *Index) GroupOf(caseID string) *string {
	c, ok := idx.cases[caseID]
	if !ok || c.SuiteID == nil {
		return nil
	}
	if _, known := idx.suites[*c.SuiteID]; !known {
		return nil
	}
	return models.CopyID(c.SuiteID)
}

// IsDescendant walks parent pointers upward from targetID and reports whether
// candidateAncestorID appears in that chain.
func (idx *Index) IsDescendant(candidateAncestorID, targetID string) bool {
	for _, id := range idx.Ancestors(targetID) {
		if id == candidateAncestorID {
			return true
		}
	}
	return false
}

// Ancestors returns the ancestor ids of a suite, nearest first
func (idx *Index) Ancestors(id string) []string {
	var out []string
	rec, ok := idx.suites[id]
	for ok && rec.ParentID != nil {
		out = append(out, *rec.ParentID)
		rec, ok = idx.suites[*rec.ParentID]
	}
	return out
}

// Descendants returns every suite id below id in breadth-first order
func (idx *Index) Descendants(id string) []string {
	rec, ok := idx.suites[id]
	if !ok {
		return nil
	}
	var out []string
	queue := append([]string(nil), rec.ChildIDs...)
	for len(queue) > 0 {
		cur := queue[0]
		queue = queue[1:]
		out = append(out, cur)
		queue = append(queue, idx.suites[cur].ChildIDs...)
	}
	return out
}

// CaseDisplayOrder returns every case id in the order the tree shows them:
// depth-first over suites (child suites before the suite's own cases), uncategorized last.
func (idx *Index) CaseDisplayOrder() []string {
	type frame struct {
		id   string
		done bool
	}
	var out []string
	stack := make([]frame, 0, len(idx.rootIDs))
	for i := len(idx.rootIDs) - 1; i >= 0; i-- {
		stack = append(stack, frame{id: idx.rootIDs[i]})
	}
	for len(stack) > 0 {
		f := stack[len(stack)-1]
		stack = stack[:len(stack)-1]
		if f.done {
			out = append(out, idx.caseIDs[f.id]...)
			continue
		}
		stack = append(stack, frame{id: f.id, done: true})
		children := idx.suites[f.id].ChildIDs
		for i := len(children) - 1; i >= 0; i-- {
			stack = append(stack, frame{id: children[i]})
		}
	}
	return append(out, idx.caseIDs[""]...)
}
