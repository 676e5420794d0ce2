package csvimport

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/dhyansraj/qa-testdesk/internal/cache"
	"github.com/dhyansraj/qa-testdesk/internal/logging"
	"github.com/dhyansraj/qa-testdesk/internal/models"
	"github.com/dhyansraj/qa-testdesk/internal/tree"
)

// Report counts what Import did
type Report struct {
	CreatedSuites int        `json:"created_suites"`
	ReusedSuites  int        `json:"reused_suites"`
	CreatedCases  int        `json:"created_cases"`
	Errors        []RowError `json:"errors,omitempty"`
}

// Importer creates parsed rows through the session caches.
type Importer struct {
	suites *cache.Store[models.Suite]
	cases  *cache.Store[models.TestCase]
	log    *slog.Logger
}

// NewImporter creates an importer writing through the given stores
func NewImporter(suites *cache.Store[models.Suite], cases *cache.Store[models.TestCase]) *Importer {
	return &Importer{suites: suites, cases: cases, log: logging.New("csvimport")}
}

// Import creates every suite name not yet present as a root suite, reuses existing suites
// by name, then appends the cases to their suites. It stops at the first failed write and
// returns what was created so far.
func (im *Importer) Import(ctx context.Context, projectID string, res Result) (Report, error) {
	report := Report{Errors: res.Errors}

	suites, err := im.suites.Fetch(ctx, projectID, false)
	if err != nil {
		return report, err
	}
	cases, err := im.cases.Fetch(ctx, projectID, false)
	if err != nil {
		return report, err
	}
	idx := tree.NewIndex(suites, cases)

	// first suite in tree order wins when names repeat
	byName := map[string]string{}
	var walk func(parent *string)
	walk = func(parent *string) {
		for _, id := range idx.Children(parent) {
			s, _ := idx.Suite(id)
			if _, ok := byName[s.Name]; !ok {
				byName[s.Name] = id
			}
			walk(models.StringPtr(id))
		}
	}
	walk(nil)

	rootCount := len(idx.Children(nil))
	for _, name := range res.Suites {
		if _, ok := byName[name]; ok {
			report.ReusedSuites++
			continue
		}
		created, err := im.suites.Add(ctx, models.Suite{ProjectID: projectID, Name: name, Position: rootCount})
		if err != nil {
			return report, fmt.Errorf("create suite %q: %w", name, err)
		}
		rootCount++
		byName[name] = created.ID
		report.CreatedSuites++
	}

	next := map[string]int{}
	for _, row := range res.Cases {
		tc := row.Case.Clone()
		tc.ID = ""
		tc.ProjectID = projectID
		tc.SuiteID = nil
		if row.SuiteName != "" {
			tc.SuiteID = models.StringPtr(byName[row.SuiteName])
		}
		key := models.IDValue(tc.SuiteID)
		if _, ok := next[key]; !ok {
			next[key] = len(idx.Cases(tc.SuiteID))
		}
		tc.Position = next[key]
		tc.ApplyDefaults()

		if _, err := im.cases.Add(ctx, tc); err != nil {
			return report, fmt.Errorf("create test case from line %d: %w", row.Line, err)
		}
		next[key]++
		report.CreatedCases++
	}

	im.log.Info("import finished", slog.String("project_id", projectID),
		slog.Int("created_suites", report.CreatedSuites), slog.Int("reused_suites", report.ReusedSuites),
		slog.Int("created_cases", report.CreatedCases), slog.Int("row_errors", len(report.Errors)))
	return report, nil
}
