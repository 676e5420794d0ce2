package cache

import (
	"context"
	"errors"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dhyansraj/qa-testdesk/internal/apperr"
	"github.com/dhyansraj/qa-testdesk/internal/models"
)

type fakeBackend struct {
	mu        sync.Mutex
	rows      []models.TestCase
	listCalls int
	nextID    int
	failWith  error
	// seen records what the cache held while the backend call was in flight
	seen func()
}

func (f *fakeBackend) List(_ context.Context, projectID string) ([]models.TestCase, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.listCalls++
	var out []models.TestCase
	for _, r := range f.rows {
		if r.ProjectID == projectID {
			out = append(out, r)
		}
	}
	return out, nil
}

func (f *fakeBackend) Create(_ context.Context, item models.TestCase) (models.TestCase, error) {
	if f.seen != nil {
		f.seen()
	}
	if f.failWith != nil {
		return models.TestCase{}, f.failWith
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	f.nextID++
	item.ID = "srv-" + string(rune('0'+f.nextID))
	f.rows = append(f.rows, item)
	return item, nil
}

func (f *fakeBackend) Update(_ context.Context, item models.TestCase) (models.TestCase, error) {
	if f.failWith != nil {
		return models.TestCase{}, f.failWith
	}
	item.UpdatedAt = time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	return item, nil
}

func (f *fakeBackend) Delete(_ context.Context, _ string) error {
	return f.failWith
}

func seeded() *fakeBackend {
	return &fakeBackend{rows: []models.TestCase{
		{ID: "c1", ProjectID: "p1", Title: "Login", Tags: []string{"smoke"}},
		{ID: "c2", ProjectID: "p1", Title: "Logout"},
		{ID: "x1", ProjectID: "p2", Title: "Other project"},
	}}
}

func TestStore_FetchServesFromCacheWithinTimeout(t *testing.T) {
	backend := seeded()
	now := time.Date(2026, 10, 1, 12, 0, 0, 0, time.UTC)
	s := New[models.TestCase]("test_cases", backend, WithClock(func() time.Time { return now }))
	ctx := context.Background()

	items, err := s.Fetch(ctx, "p1", false)
	require.NoError(t, err)
	assert.Len(t, items, 2)

	now = now.Add(4 * time.Minute)
	_, err = s.Fetch(ctx, "p1", false)
	require.NoError(t, err)
	assert.Equal(t, 1, backend.listCalls, "second fetch within timeout must hit the cache")

	now = now.Add(2 * time.Minute)
	_, err = s.Fetch(ctx, "p1", false)
	require.NoError(t, err)
	assert.Equal(t, 2, backend.listCalls, "expired cache must reload")

	_, err = s.Fetch(ctx, "p1", true)
	require.NoError(t, err)
	assert.Equal(t, 3, backend.listCalls, "forced refresh must reload")

	_, err = s.Fetch(ctx, "p2", false)
	require.NoError(t, err)
	assert.Equal(t, 4, backend.listCalls, "other project must reload")
}

func TestStore_EmptyCacheAlwaysReloads(t *testing.T) {
	backend := &fakeBackend{}
	s := New[models.TestCase]("test_cases", backend)

	for i := 0; i < 3; i++ {
		_, err := s.Fetch(context.Background(), "p1", false)
		require.NoError(t, err)
	}
	assert.Equal(t, 3, backend.listCalls)
}

func TestStore_ClearCache(t *testing.T) {
	backend := seeded()
	s := New[models.TestCase]("test_cases", backend)
	ctx := context.Background()

	_, err := s.Fetch(ctx, "p1", false)
	require.NoError(t, err)
	s.ClearCache()
	assert.Empty(t, s.Items())

	_, err = s.Fetch(ctx, "p1", false)
	require.NoError(t, err)
	assert.Equal(t, 2, backend.listCalls)
}

func TestStore_AddOptimisticThenReplacesTempID(t *testing.T) {
	backend := seeded()
	s := New[models.TestCase]("test_cases", backend)
	ctx := context.Background()
	_, err := s.Fetch(ctx, "p1", false)
	require.NoError(t, err)

	var inFlight []models.TestCase
	backend.seen = func() { inFlight = s.Items() }

	created, err := s.Add(ctx, models.TestCase{ProjectID: "p1", Title: "Signup"})
	require.NoError(t, err)

	require.Len(t, inFlight, 3)
	assert.True(t, strings.HasPrefix(inFlight[2].ID, TempIDPrefix), "pending record carries a temp id")

	items := s.Items()
	require.Len(t, items, 3)
	assert.Equal(t, created.ID, items[2].ID)
	assert.False(t, strings.HasPrefix(items[2].ID, TempIDPrefix))
}

func TestStore_AddFailureRestoresSnapshot(t *testing.T) {
	backend := seeded()
	s := New[models.TestCase]("test_cases", backend)
	ctx := context.Background()
	_, err := s.Fetch(ctx, "p1", false)
	require.NoError(t, err)
	before := s.Items()

	backend.failWith = apperr.ErrNetworkFailure
	_, err = s.Add(ctx, models.TestCase{ProjectID: "p1", Title: "Signup"})

	require.Error(t, err)
	assert.True(t, errors.Is(err, apperr.ErrNetworkFailure))
	assert.Equal(t, before, s.Items())
}

func TestStore_UpdateAndDeleteRollback(t *testing.T) {
	backend := seeded()
	s := New[models.TestCase]("test_cases", backend)
	ctx := context.Background()
	_, err := s.Fetch(ctx, "p1", false)
	require.NoError(t, err)
	before := s.Items()

	backend.failWith = apperr.ErrPermissionDenied

	_, err = s.Update(ctx, models.TestCase{ID: "c1", ProjectID: "p1", Title: "Renamed"})
	require.ErrorIs(t, err, apperr.ErrPermissionDenied)
	assert.Equal(t, before, s.Items())

	err = s.Delete(ctx, "c2")
	require.ErrorIs(t, err, apperr.ErrPermissionDenied)
	assert.Equal(t, before, s.Items())
}

func TestStore_UpdateAndDeleteSuccess(t *testing.T) {
	backend := seeded()
	s := New[models.TestCase]("test_cases", backend)
	ctx := context.Background()
	_, err := s.Fetch(ctx, "p1", false)
	require.NoError(t, err)

	updated, err := s.Update(ctx, models.TestCase{ID: "c1", ProjectID: "p1", Title: "Renamed"})
	require.NoError(t, err)
	assert.False(t, updated.UpdatedAt.IsZero(), "backend record replaces the optimistic one")
	assert.Equal(t, "Renamed", s.Items()[0].Title)

	require.NoError(t, s.Delete(ctx, "c2"))
	items := s.Items()
	require.Len(t, items, 1)
	assert.Equal(t, "c1", items[0].ID)
}

func TestTransaction_RollbackWithoutApplyIsNoop(t *testing.T) {
	s := New[models.TestCase]("test_cases", seeded())
	_, err := s.Fetch(context.Background(), "p1", false)
	require.NoError(t, err)

	tx := s.Begin()
	s.ApplyLocal(func(items []models.TestCase) []models.TestCase { return items[:1] })
	tx.Rollback()

	assert.Len(t, s.Items(), 1)
	assert.Len(t, tx.Snapshot(), 2)
}
