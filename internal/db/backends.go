package db

import (
	"context"

	"github.com/dhyansraj/qa-testdesk/internal/cache"
	"github.com/dhyansraj/qa-testdesk/internal/models"
)

// SuiteBackend adapts the repository to the suite cache
type SuiteBackend struct{ *Repository }

var _ cache.Backend[models.Suite] = SuiteBackend{}

func (b SuiteBackend) List(ctx context.Context, projectID string) ([]models.Suite, error) {
	return b.ListSuites(ctx, projectID)
}

func (b SuiteBackend) Create(ctx context.Context, s models.Suite) (models.Suite, error) {
	return b.CreateSuite(ctx, s)
}

func (b SuiteBackend) Update(ctx context.Context, s models.Suite) (models.Suite, error) {
	return b.UpdateSuite(ctx, s)
}

func (b SuiteBackend) Delete(ctx context.Context, id string) error {
	return b.DeleteSuite(ctx, id)
}

// CaseBackend adapts the repository to the test case cache
type CaseBackend struct{ *Repository }

var _ cache.Backend[models.TestCase] = CaseBackend{}

func (b CaseBackend) List(ctx context.Context, projectID string) ([]models.TestCase, error) {
	return b.ListTestCases(ctx, projectID)
}

func (b CaseBackend) Create(ctx context.Context, tc models.TestCase) (models.TestCase, error) {
	return b.CreateTestCase(ctx, tc)
}

func (b CaseBackend) Update(ctx context.Context, tc models.TestCase) (models.TestCase, error) {
	return b.UpdateTestCase(ctx, tc)
}

func (b CaseBackend) Delete(ctx context.Context, id string) error {
	return b.DeleteTestCase(ctx, id)
}
