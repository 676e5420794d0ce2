package dragdrop

import (
	"fmt"

	"github.com/dhyansraj/qa-testdesk/internal/apperr"
	"github.com/dhyansraj/qa-testdesk/internal/models"
)

// Payload is what is being dragged. Values are snapshots taken at pick-up.
type Payload interface {
	Kind() string
	ItemIDs() []string
	isPayload()
}

// SingleCase drags one test case
type SingleCase struct {
	Case models.TestCase
}

// MultiCase drags every checked test case, in tree display order
type MultiCase struct {
	Cases []models.TestCase
}

// SuiteMove drags one suite with its subtree
type SuiteMove struct {
	Suite models.Suite
}

func (SingleCase) Kind() string { return "single_case" }
func (MultiCase) Kind() string  { return "multi_case" }
func (SuiteMove) Kind() string  { return "suite" }

func (p SingleCase) ItemIDs() []string { return []string{p.Case.ID} }
func (p SuiteMove) ItemIDs() []string  { return []string{p.Suite.ID} }
func (p MultiCase) ItemIDs() []string {
	ids := make([]string, 0, len(p.Cases))
	for _, c := range p.Cases {
		ids = append(ids, c.ID)
	}
	return ids
}

func (SingleCase) isPayload() {}
func (MultiCase) isPayload()  {}
func (SuiteMove) isPayload()  {}

// Target kinds as they appear on the wire
const (
	KindCaseSlot          = "case_slot"
	KindSuiteSlot         = "suite_slot"
	KindSuiteZone         = "suite_zone"
	KindUncategorizedZone = "uncategorized_zone"
)

// TargetRef is the serializable form of a Target
type TargetRef struct {
	Kind string `json:"kind"`
	ID   string `json:"id,omitempty"`
}

// Target is what the pointer is over.
type Target interface {
	Ref() TargetRef
	isTarget()
}

// CaseSlot is another test case row (reorder slot)
type CaseSlot struct{ CaseID string }

// SuiteSlot is another suite header (reorder slot)
type SuiteSlot struct{ SuiteID string }

// SuiteZone is the body of a suite (drop into)
type SuiteZone struct{ SuiteID string }

// UncategorizedZone is the uncategorized bucket
type UncategorizedZone struct{}

func (t CaseSlot) Ref() TargetRef        { return TargetRef{Kind: KindCaseSlot, ID: t.CaseID} }
func (t SuiteSlot) Ref() TargetRef       { return TargetRef{Kind: KindSuiteSlot, ID: t.SuiteID} }
func (t SuiteZone) Ref() TargetRef       { return TargetRef{Kind: KindSuiteZone, ID: t.SuiteID} }
func (UncategorizedZone) Ref() TargetRef { return TargetRef{Kind: KindUncategorizedZone} }

func (CaseSlot) isTarget()          {}
func (SuiteSlot) isTarget()         {}
func (SuiteZone) isTarget()         {}
func (UncategorizedZone) isTarget() {}

// ParseTarget turns a TargetRef back into a Target. A suite zone for the synthetic root id is
// the uncategorized zone.
func ParseTarget(ref TargetRef) (Target, error) {
	switch ref.Kind {
	case KindUncategorizedZone:
		return UncategorizedZone{}, nil
	case KindSuiteZone:
		if ref.ID == models.UncategorizedID {
			return UncategorizedZone{}, nil
		}
		if ref.ID != "" {
			return SuiteZone{SuiteID: ref.ID}, nil
		}
	case KindSuiteSlot:
		if ref.ID != "" {
			return SuiteSlot{SuiteID: ref.ID}, nil
		}
	case KindCaseSlot:
		if ref.ID != "" {
			return CaseSlot{CaseID: ref.ID}, nil
		}
	default:
		return nil, fmt.Errorf("unknown target kind %q: %w", ref.Kind, apperr.ErrInvalidInput)
	}
	return nil, fmt.Errorf("target %s needs an id: %w", ref.Kind, apperr.ErrInvalidInput)
}
