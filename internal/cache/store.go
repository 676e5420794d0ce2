// Package cache provides the per-session read-through cache for suite and test case
// collections, with optimistic writes that roll back on backend failure.
package cache

import (
	"context"
	"crypto/rand"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/oklog/ulid/v2"

	"github.com/dhyansraj/qa-testdesk/internal/logging"
)

// DefaultTimeout is how long a fetched collection is served from memory
const DefaultTimeout = 5 * time.Minute

// TempIDPrefix marks client generated ids that have not been confirmed by the backend
const TempIDPrefix = "tmp_"

// Entity is a record the cache can key and re-key.
type Entity[T any] interface {
	EntityID() string
	WithID(id string) T
}

// Backend is the persistence side of one collection.
type Backend[T any] interface {
	List(ctx context.Context, projectID string) ([]T, error)
	Create(ctx context.Context, item T) (T, error)
	Update(ctx context.Context, item T) (T, error)
	Delete(ctx context.Context, id string) error
}

// Store caches one collection for one session.
type Store[T Entity[T]] struct {
	mu        sync.Mutex
	name      string
	backend   Backend[T]
	items     []T
	projectID string
	lastFetch time.Time
	timeout   time.Duration
	now       func() time.Time
	log       *slog.Logger
}

// Option configures a Store
type Option func(*options)

type options struct {
	timeout time.Duration
	now     func() time.Time
}

// WithTimeout overrides DefaultTimeout
func WithTimeout(d time.Duration) Option {
	return func(o *options) {
		if d > 0 {
			o.timeout = d
		}
	}
}

// WithClock injects the time source
func WithClock(now func() time.Time) Option {
	return func(o *options) {
		if now != nil {
			o.now = now
		}
	}
}

// New creates an empty store named after its collection (used in logs).
func New[T Entity[T]](name string, backend Backend[T], opts ...Option) *Store[T] {
	o := options{timeout: DefaultTimeout, now: time.Now}
	for _, opt := range opts {
		opt(&o)
	}
	return &Store[T]{
		name:    name,
		backend: backend,
		timeout: o.timeout,
		now:     o.now,
		log:     logging.New("cache").With(slog.String("collection", name)),
	}
}

// Fetch returns the collection for projectID, reloading it when forceRefresh is set, the
// cache is empty, belongs to another project or is older than the timeout.
func (s *Store[T]) Fetch(ctx context.Context, projectID string, forceRefresh bool) ([]T, error) {
	s.mu.Lock()
	fresh := !forceRefresh &&
		len(s.items) > 0 &&
		s.projectID == projectID &&
		s.now().Sub(s.lastFetch) < s.timeout
	if fresh {
		out := copyItems(s.items)
		s.mu.Unlock()
		return out, nil
	}
	s.mu.Unlock()

	items, err := s.backend.List(ctx, projectID)
	if err != nil {
		return nil, fmt.Errorf("load %s: %w", s.name, err)
	}

	s.mu.Lock()
	s.items = copyItems(items)
	s.projectID = projectID
	s.lastFetch = s.now()
	s.mu.Unlock()

	s.log.Debug("reloaded", slog.String("project_id", projectID), slog.Int("count", len(items)))
	return copyItems(items), nil
}

// Items returns a copy of the cached collection without touching the backend
func (s *Store[T]) Items() []T {
	s.mu.Lock()
	defer s.mu.Unlock()
	return copyItems(s.items)
}

// ClearCache drops every cached item; the next Fetch reloads.
func (s *Store[T]) ClearCache() {
	s.mu.Lock()
	s.items = nil
	s.lastFetch = time.Time{}
	s.mu.Unlock()
}

// Add inserts item optimistically under a temporary id and replaces it with the backend
// record once created.
func (s *Store[T]) Add(ctx context.Context, item T) (T, error) {
	tempID := NewTempID()
	pending := item.WithID(tempID)

	tx := s.Begin()
	tx.Apply(func(items []T) []T { return append(items, pending) })

	created, err := s.backend.Create(ctx, item)
	if err != nil {
		tx.Rollback()
		s.log.Warn("add rolled back", slog.String("error", err.Error()))
		var zero T
		return zero, err
	}
	tx.Apply(func(items []T) []T { return replaceByID(items, tempID, created) })
	return created, nil
}

// Update replaces the cached record with the same id, then persists it.
func (s *Store[T]) Update(ctx context.Context, item T) (T, error) {
	id := item.EntityID()

	tx := s.Begin()
	tx.Apply(func(items []T) []T { return replaceByID(items, id, item) })

	updated, err := s.backend.Update(ctx, item)
	if err != nil {
		tx.Rollback()
		s.log.Warn("update rolled back", slog.String("id", id), slog.String("error", err.Error()))
		var zero T
		return zero, err
	}
	tx.Apply(func(items []T) []T { return replaceByID(items, id, updated) })
	return updated, nil
}

// Delete removes the record with id, then deletes it in the backend.
func (s *Store[T]) Delete(ctx context.Context, id string) error {
	tx := s.Begin()
	tx.Apply(func(items []T) []T { return removeByID(items, id) })

	if err := s.backend.Delete(ctx, id); err != nil {
		tx.Rollback()
		s.log.Warn("delete rolled back", slog.String("id", id), slog.String("error", err.Error()))
		return err
	}
	return nil
}

// ApplyLocal mutates the cached collection without a backend call. Used after writes that
// were persisted elsewhere (tree moves).
func (s *Store[T]) ApplyLocal(fn func(items []T) []T) {
	s.Begin().Apply(fn)
}

// NewTempID returns a unique temporary client id
func NewTempID() string {
	return TempIDPrefix + ulid.MustNew(ulid.Now(), rand.Reader).String()
}

func copyItems[T any](items []T) []T {
	if items == nil {
		return nil
	}
	return append([]T(nil), items...)
}

func replaceByID[T Entity[T]](items []T, id string, with T) []T {
	for i := range items {
		if items[i].EntityID() == id {
			items[i] = with
			return items
		}
	}
	return items
}

func removeByID[T Entity[T]](items []T, id string) []T {
	out := items[:0]
	for _, it := range items {
		if it.EntityID() != id {
			out = append(out, it)
		}
	}
	return out
}
