// Package execution drives manual test runs: a linear stepper that records one verdict per
// case, run status derivation, and run lifecycle operations.
package execution

import (
	"github.com/dhyansraj/qa-testdesk/internal/models"
)

// DeriveRunStatus computes the run status from every persisted result row. A row counts as
// executed when its status is anything but untested.
func DeriveRunStatus(results []models.TestRunResult) models.RunStatus {
	executed := 0
	for _, r := range results {
		if r.ResultStatus.IsExecuted() {
			executed++
		}
	}
	switch {
	case len(results) == 0 || executed == 0:
		return models.RunStatusNotStarted
	case executed == len(results):
		return models.RunStatusCompleted
	default:
		return models.RunStatusInProgress
	}
}

// Summary aggregates the verdicts of one run.
type Summary struct {
	Total         int      `json:"total"`
	Untested      int      `json:"untested"`
	InProgress    int      `json:"in_progress"`
	Passed        int      `json:"passed"`
	Failed        int      `json:"failed"`
	Blocked       int      `json:"blocked"`
	Skipped       int      `json:"skipped"`
	PassRate      float64  `json:"pass_rate"` // percent of executed rows
	FailedCaseIDs []string `json:"failed_case_ids,omitempty"`
}

// Executed returns the number of rows with a verdict other than untested
func (s Summary) Executed() int { return s.Total - s.Untested }

// Summarize counts results per verdict
func Summarize(results []models.TestRunResult) Summary {
	var s Summary
	for _, r := range results {
		s.Total++
		switch r.ResultStatus {
		case models.ResultPassed:
			s.Passed++
		case models.ResultFailed:
			s.Failed++
			s.FailedCaseIDs = append(s.FailedCaseIDs, r.TestCaseID)
		case models.ResultBlocked:
			s.Blocked++
		case models.ResultSkipped:
			s.Skipped++
		case models.ResultInProgress:
			s.InProgress++
		default:
			s.Untested++
		}
	}
	if n := s.Executed(); n > 0 {
		s.PassRate = float64(s.Passed) * 100 / float64(n)
	}
	return s
}
