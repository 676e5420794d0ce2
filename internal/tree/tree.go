package tree

import (
	"sort"

	"github.com/dhyansraj/qa-testdesk/internal/models"
)

// UncategorizedName is the display name of the synthetic node
const UncategorizedName = "Uncategorized"

// Node is the derived, never persisted view of one suite
type Node struct {
	Suite      models.Suite      `json:"suite"`
	Children   []Node            `json:"children"`
	TestCases  []models.TestCase `json:"test_cases"`
	IsExpanded bool              `json:"is_expanded"`
}

// IsUncategorized reports whether n is the synthetic root bucket
func (n Node) IsUncategorized() bool {
	return n.Suite.ID == models.UncategorizedID
}

// Set is the client-held set of expanded suite ids
type Set map[string]struct{}

// NewSet builds a set from ids
func NewSet(ids ...string) Set {
	s := make(Set, len(ids))
	for _, id := range ids {
		s[id] = struct{}{}
	}
	return s
}

// Has reports membership; a nil set is empty
func (s Set) Has(id string) bool {
	_, ok := s[id]
	return ok
}

// Toggle flips id and returns the new state
func (s Set) Toggle(id string) bool {
	if s.Has(id) {
		delete(s, id)
		return false
	}
	s[id] = struct{}{}
	return true
}

// IDs returns the members sorted
func (s Set) IDs() []string {
	out := make([]string, 0, len(s))
	for id := range s {
		out = append(out, id)
	}
	sort.Strings(out)
	return out
}

// ExpandPath adds every ancestor of suiteID to s, so the suite becomes visible
func (s Set) ExpandPath(idx *Index, suiteID string) {
	for _, id := range idx.Ancestors(suiteID) {
		s[id] = struct{}{}
	}
}

// Build returns the root nodes for the given records. It is a pure function of its inputs.
func Build(suites []models.Suite, cases []models.TestCase, expanded Set) []Node {
	return NewIndex(suites, cases).Nodes(expanded)
}

// Nodes materializes the arena into nested nodes.
func (idx *Index) Nodes(expanded Set) []Node {
	var build func(id string) Node
	build = func(id string) Node {
		rec := idx.suites[id]
		n := Node{
			Suite:      rec.Suite.Clone(),
			Children:   make([]Node, 0, len(rec.ChildIDs)),
			TestCases:  idx.caseList(id),
			IsExpanded: expanded.Has(id),
		}
		for _, child := range rec.ChildIDs {
			n.Children = append(n.Children, build(child))
		}
		return n
	}

	roots := make([]Node, 0, len(idx.rootIDs)+1)
	for _, id := range idx.rootIDs {
		roots = append(roots, build(id))
	}

	if uncategorized := idx.caseList(""); len(uncategorized) > 0 {
		roots = append(roots, Node{
			Suite: models.Suite{
				ID:        models.UncategorizedID,
				ProjectID: uncategorized[0].ProjectID,
				Name:      UncategorizedName,
				Position:  len(idx.rootIDs),
			},
			Children:   []Node{},
			TestCases:  uncategorized,
			IsExpanded: true,
		})
	}
	return roots
}

func (idx *Index) caseList(key string) []models.TestCase {
	ids := idx.caseIDs[key]
	out := make([]models.TestCase, 0, len(ids))
	for _, id := range ids {
		out = append(out, idx.cases[id].Clone())
	}
	return out
}

// Find returns the node with id, searching depth-first
func Find(nodes []Node, id string) (*Node, bool) {
	stack := make([]*Node, 0, len(nodes))
	for i := len(nodes) - 1; i >= 0; i-- {
		stack = append(stack, &nodes[i])
	}
	for len(stack) > 0 {
		n := stack[len(stack)-1]
		stack = stack[:len(stack)-1]
		if n.Suite.ID == id {
			return n, true
		}
		for i := len(n.Children) - 1; i >= 0; i-- {
			stack = append(stack, &n.Children[i])
		}
	}
	return nil, false
}

// Row is one visible line of the tree: a suite header or a test case. Exactly one of Suite
// and Case is set.
type Row struct {
	Depth int
	Suite *models.Suite
	Case  *models.TestCase
}

// Flatten lists the visible rows in display order. A suite's child suites and cases are
// only listed when it is expanded; child suites come before the suite's own cases.
func Flatten(nodes []Node) []Row {
	type frame struct {
		node  *Node
		depth int
		cases bool // emit node's cases instead of the node itself
	}
	var rows []Row
	stack := make([]frame, 0, len(nodes))
	for i := len(nodes) - 1; i >= 0; i-- {
		stack = append(stack, frame{node: &nodes[i]})
	}
	for len(stack) > 0 {
		f := stack[len(stack)-1]
		stack = stack[:len(stack)-1]

		if f.cases {
			for i := range f.node.TestCases {
				rows = append(rows, Row{Depth: f.depth, Case: &f.node.TestCases[i]})
			}
			continue
		}
		rows = append(rows, Row{Depth: f.depth, Suite: &f.node.Suite})
		if !f.node.IsExpanded {
			continue
		}
		stack = append(stack, frame{node: f.node, depth: f.depth + 1, cases: true})
		for i := len(f.node.Children) - 1; i >= 0; i-- {
			stack = append(stack, frame{node: &f.node.Children[i], depth: f.depth + 1})
		}
	}
	return rows
}
